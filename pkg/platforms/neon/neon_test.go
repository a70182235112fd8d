package neon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trinitydeploy/trinity/pkg/platforms"
)

func newServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var calls []string
	mux := http.NewServeMux()

	mux.HandleFunc("POST /projects", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "create")
		var req createProjectRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "shop-db", req.Project.Name)
		_, _ = w.Write([]byte(`{"project":{"id":"wild-sun-123","name":"shop-db"}}`))
	})
	mux.HandleFunc("GET /projects/{id}/connection_uri", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "uri")
		assert.Equal(t, "neondb", r.URL.Query().Get("database_name"))
		assert.Equal(t, "neondb_owner", r.URL.Query().Get("role_name"))
		_, _ = w.Write([]byte(`{"uri":"postgresql://neondb_owner:pw@ep-1.neon.tech/neondb"}`))
	})
	mux.HandleFunc("DELETE /projects/{id}", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "delete:"+r.PathValue("id"))
		if r.PathValue("id") == "gone" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("GET /projects", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"projects":[]}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestAdapterLifecycle(t *testing.T) {
	srv, calls := newServer(t)
	a, err := New(Config{APIKey: "key", BaseURL: srv.URL}, platforms.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	ctx := context.Background()

	project, err := a.CreateProject(ctx, "shop-db")
	require.NoError(t, err)
	assert.Equal(t, "wild-sun-123", project.ID)

	uri, err := a.GetEndpoint(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, "postgresql://neondb_owner:pw@ep-1.neon.tech/neondb", uri)

	require.NoError(t, a.DeleteProject(ctx, project.ID))
	require.NoError(t, a.DeleteProject(ctx, "gone"))
	require.NoError(t, a.Verify(ctx))

	assert.Equal(t, []string{"create", "uri", "delete:wild-sun-123", "delete:gone"}, *calls)
}

func TestVerifyRejectsBadKey(t *testing.T) {
	srv, _ := newServer(t)
	a, err := New(Config{APIKey: "wrong", BaseURL: srv.URL}, platforms.Options{})
	require.NoError(t, err)

	assert.Error(t, a.Verify(context.Background()))
}

func TestDryRunMakesNoCalls(t *testing.T) {
	srv, calls := newServer(t)
	a, err := New(Config{BaseURL: srv.URL}, platforms.Options{DryRun: true})
	require.NoError(t, err)
	ctx := context.Background()

	project, err := a.CreateProject(ctx, "shop-db")
	require.NoError(t, err)
	assert.Equal(t, "dry-neon-shop-db", project.ID)

	uri, err := a.GetEndpoint(ctx, project.ID)
	require.NoError(t, err)
	assert.Contains(t, uri, "postgresql://")

	require.NoError(t, a.DeleteProject(ctx, project.ID))
	require.NoError(t, a.Verify(ctx))
	assert.Empty(t, *calls)
}

func TestSlowCreateIsNotRepeated(t *testing.T) {
	var created atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := created.Add(1)
		if n == 1 {
			time.Sleep(300 * time.Millisecond)
		}
		_, _ = fmt.Fprintf(w, `{"project":{"id":"p-%d","name":"shop-db"}}`, n)
	}))
	defer srv.Close()

	a, err := New(Config{APIKey: "key", BaseURL: srv.URL}, platforms.Options{RequestTimeout: 100 * time.Millisecond})
	require.NoError(t, err)

	project, err := a.CreateProject(context.Background(), "shop-db")
	require.Error(t, err)
	assert.Nil(t, project)
	assert.Equal(t, int32(1), created.Load())
}
