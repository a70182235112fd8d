package railway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trinitydeploy/trinity/pkg/engine"
	"github.com/trinitydeploy/trinity/pkg/platforms"
)

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type fakeRailway struct {
	mu       sync.Mutex
	ops      []string
	lastVars map[string]any
	missing  map[string]bool
}

func (f *fakeRailway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req gqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	op := strings.Fields(strings.NewReplacer("(", " ", "{", " ").Replace(req.Query))[1]
	f.mu.Lock()
	f.ops = append(f.ops, op)
	f.lastVars = req.Variables
	f.mu.Unlock()

	switch op {
	case "projectCreate":
		_, _ = w.Write([]byte(`{"data":{"projectCreate":{"id":"prj-1","name":"shop-backend"}}}`))
	case "serviceCreate":
		_, _ = w.Write([]byte(`{"data":{"serviceCreate":{"id":"svc-1","name":"shop-backend"}}}`))
	case "project":
		_, _ = w.Write([]byte(`{"data":{"project":{"environments":{"edges":[
			{"node":{"id":"env-staging","name":"staging"}},
			{"node":{"id":"env-prod","name":"production"}}]}}}}`))
	case "variableCollectionUpsert":
		_, _ = w.Write([]byte(`{"data":{"variableCollectionUpsert":true}}`))
	case "serviceDelete", "projectDelete":
		if f.missing[req.Variables["id"].(string)] {
			_, _ = w.Write([]byte(`{"errors":[{"message":"Service not found"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"` + op + `":true}}`))
	default:
		_, _ = w.Write([]byte(`{"data":{"me":{"id":"u-1"}}}`))
	}
}

func newAdapter(t *testing.T, fake *fakeRailway, dryRun bool) *Adapter {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	a, err := New(Config{Token: "tok", BaseURL: srv.URL}, platforms.Options{DryRun: dryRun})
	require.NoError(t, err)
	return a
}

func TestAdapterLifecycle(t *testing.T) {
	fake := &fakeRailway{missing: map[string]bool{"svc-gone": true}}
	a := newAdapter(t, fake, false)
	ctx := context.Background()
	repo := engine.Repository{Owner: "acme", Name: "shop", Branch: "main"}

	project, err := a.CreateProject(ctx, "shop-backend")
	require.NoError(t, err)
	assert.Equal(t, "prj-1", project.ID)

	service, err := a.CreateService(ctx, project.ID, "shop-backend", repo)
	require.NoError(t, err)
	assert.Equal(t, "svc-1", service.ID)
	assert.Equal(t, "prj-1", service.ProjectID)

	input := fake.lastVars["input"].(map[string]any)
	assert.Equal(t, map[string]any{"repo": "acme/shop"}, input["source"])
	assert.Equal(t, "main", input["branch"])

	require.NoError(t, a.SetVariables(ctx, project.ID, service.ID, map[string]string{"DATABASE_URL": "postgres://x"}))
	input = fake.lastVars["input"].(map[string]any)
	assert.Equal(t, "env-prod", input["environmentId"])
	assert.Equal(t, map[string]any{"DATABASE_URL": "postgres://x"}, input["variables"])

	url, err := a.GetEndpoint(ctx, *service)
	require.NoError(t, err)
	assert.Equal(t, "https://shop-backend-production.up.railway.app", url)

	require.NoError(t, a.DeleteService(ctx, "svc-gone"))
	require.NoError(t, a.DeleteProject(ctx, project.ID))
	require.NoError(t, a.Verify(ctx))

	assert.Equal(t, []string{
		"projectCreate", "serviceCreate", "project", "variableCollectionUpsert",
		"serviceDelete", "projectDelete", "me",
	}, fake.ops)
}

func TestDryRunMakesNoCalls(t *testing.T) {
	fake := &fakeRailway{}
	a := newAdapter(t, fake, true)
	ctx := context.Background()

	project, err := a.CreateProject(ctx, "shop-backend")
	require.NoError(t, err)
	assert.Equal(t, "dry-railway-shop-backend", project.ID)

	service, err := a.CreateService(ctx, project.ID, "api", engine.Repository{Owner: "acme", Name: "shop"})
	require.NoError(t, err)
	require.NoError(t, a.SetVariables(ctx, project.ID, service.ID, map[string]string{"A": "1"}))

	url, err := a.GetEndpoint(ctx, *service)
	require.NoError(t, err)
	assert.Equal(t, "https://api-production.up.railway.app", url)

	require.NoError(t, a.DeleteService(ctx, service.ID))
	require.NoError(t, a.DeleteProject(ctx, project.ID))
	assert.Empty(t, fake.ops)
}
