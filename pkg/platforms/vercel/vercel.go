// Package vercel implements the frontend platform adapter against the
// Vercel REST API.
package vercel

import (
	"context"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/trinitydeploy/trinity/pkg/engine"
	"github.com/trinitydeploy/trinity/pkg/platforms"
	"github.com/trinitydeploy/trinity/pkg/transports/httpapi"
)

// Name identifies the platform in logs and metrics.
const Name = "vercel"

// DefaultBaseURL is the Vercel API root.
const DefaultBaseURL = "https://api.vercel.com"

// envTargets are the deployment targets every variable is written to.
var envTargets = []string{"production", "preview", "development"}

// Config configures the adapter.
type Config struct {
	Token   string
	BaseURL string
	TeamID  string
}

// Adapter provisions Vercel projects.
type Adapter struct {
	client *httpapi.Client
	cfg    Config
	dryRun bool
	logger zerolog.Logger
}

var _ engine.FrontendProvisioner = (*Adapter)(nil)

// New creates a Vercel adapter.
func New(cfg Config, opts platforms.Options) (*Adapter, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	client, err := httpapi.New(Name, opts.TransportConfig(cfg.BaseURL, cfg.Token), opts.ClientOptions()...)
	if err != nil {
		return nil, err
	}

	return &Adapter{
		client: client,
		cfg:    cfg,
		dryRun: opts.DryRun,
		logger: opts.Logger.With().Str("component", "platform").Str("platform", Name).Logger(),
	}, nil
}

// Name returns the platform name.
func (a *Adapter) Name() string {
	return Name
}

// path appends the team scope to an API path.
func (a *Adapter) path(p string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	if a.cfg.TeamID != "" {
		query.Set("teamId", a.cfg.TeamID)
	}
	if len(query) == 0 {
		return p
	}
	return p + "?" + query.Encode()
}

type project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateProject creates a Vercel project.
func (a *Adapter) CreateProject(ctx context.Context, name string) (*engine.ProjectRef, error) {
	if a.dryRun {
		a.logger.Info().Str("name", name).Msg("dry run: would create project")
		return &engine.ProjectRef{ID: platforms.DryRunID(Name, name), Name: name}, nil
	}

	var resp project
	if err := a.client.Create(ctx, "create_project", a.path("/v10/projects", nil),
		map[string]string{"name": name}, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("vercel: create project returned no id")
	}

	a.logger.Info().Str("project_id", resp.ID).Str("name", resp.Name).Msg("project created")
	return &engine.ProjectRef{ID: resp.ID, Name: resp.Name}, nil
}

// ConnectSource links the project to a git repository.
func (a *Adapter) ConnectSource(ctx context.Context, projectID string, repo engine.Repository) error {
	if a.dryRun {
		a.logger.Info().Str("project_id", projectID).Str("repo", repo.String()).Msg("dry run: would link repository")
		return nil
	}

	body := map[string]string{
		"type": gitProvider(repo.Host),
		"repo": repo.FullName(),
	}
	if err := a.client.Post(ctx, "connect_source", a.path("/v9/projects/"+url.PathEscape(projectID)+"/link", nil),
		body, nil); err != nil {
		return err
	}

	a.logger.Info().
		Str("project_id", projectID).
		Str("repo", repo.FullName()).
		Str("branch", repo.Branch).
		Msg("repository linked")
	return nil
}

type envVar struct {
	Key    string   `json:"key"`
	Value  string   `json:"value"`
	Type   string   `json:"type"`
	Target []string `json:"target"`
}

// SetVariables upserts vars on every deployment target.
func (a *Adapter) SetVariables(ctx context.Context, projectID string, vars map[string]string) error {
	keys := slices.Sorted(maps.Keys(vars))
	if a.dryRun {
		a.logger.Info().Str("project_id", projectID).Strs("keys", keys).Msg("dry run: would set variables")
		return nil
	}

	body := make([]envVar, 0, len(vars))
	for _, k := range keys {
		body = append(body, envVar{Key: k, Value: vars[k], Type: "encrypted", Target: envTargets})
	}

	q := url.Values{}
	q.Set("upsert", "true")
	if err := a.client.Post(ctx, "set_variables", a.path("/v10/projects/"+url.PathEscape(projectID)+"/env", q),
		body, nil); err != nil {
		return err
	}

	a.logger.Info().Str("project_id", projectID).Int("count", len(vars)).Msg("variables set")
	return nil
}

// GetEndpoint returns the project's default production domain.
func (a *Adapter) GetEndpoint(ctx context.Context, projectID string) (string, error) {
	if a.dryRun {
		return "https://" + strings.TrimPrefix(projectID, "dry-"+Name+"-") + ".vercel.app", nil
	}

	var resp project
	if err := a.client.Get(ctx, "get_project", a.path("/v9/projects/"+url.PathEscape(projectID), nil), &resp); err != nil {
		return "", err
	}
	if resp.Name == "" {
		return "", fmt.Errorf("vercel: project %s has no name", projectID)
	}
	return "https://" + resp.Name + ".vercel.app", nil
}

// DeleteProject deletes the project. A project that no longer exists is
// treated as deleted.
func (a *Adapter) DeleteProject(ctx context.Context, projectID string) error {
	if a.dryRun {
		a.logger.Info().Str("project_id", projectID).Msg("dry run: would delete project")
		return nil
	}

	err := a.client.Delete(ctx, "delete_project", a.path("/v9/projects/"+url.PathEscape(projectID), nil))
	if httpapi.IsNotFound(err) {
		a.logger.Warn().Str("project_id", projectID).Msg("project already deleted")
		return nil
	}
	if err != nil {
		return err
	}
	a.logger.Info().Str("project_id", projectID).Msg("project deleted")
	return nil
}

// Verify reads the authenticated user to confirm the token is accepted.
func (a *Adapter) Verify(ctx context.Context) error {
	if a.dryRun {
		return nil
	}
	return a.client.Get(ctx, "verify", "/v2/user", nil)
}

func gitProvider(host string) string {
	switch {
	case strings.Contains(host, "gitlab"):
		return "gitlab"
	case strings.Contains(host, "bitbucket"):
		return "bitbucket"
	default:
		return "github"
	}
}
