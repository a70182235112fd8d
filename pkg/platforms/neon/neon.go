// Package neon implements the database platform adapter against the Neon
// management API.
package neon

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/trinitydeploy/trinity/pkg/engine"
	"github.com/trinitydeploy/trinity/pkg/platforms"
	"github.com/trinitydeploy/trinity/pkg/transports/httpapi"
)

// Name identifies the platform in logs and metrics.
const Name = "neon"

// DefaultBaseURL is the Neon v2 API root.
const DefaultBaseURL = "https://console.neon.tech/api/v2"

// Defaults for the connection URI lookup.
const (
	DefaultDatabase = "neondb"
	DefaultRole     = "neondb_owner"
)

// Config configures the adapter.
type Config struct {
	APIKey   string
	BaseURL  string
	RegionID string
	Database string
	Role     string
}

// Adapter provisions Neon projects.
type Adapter struct {
	client *httpapi.Client
	cfg    Config
	dryRun bool
	logger zerolog.Logger
}

var _ engine.DatabaseProvisioner = (*Adapter)(nil)

// New creates a Neon adapter.
func New(cfg Config, opts platforms.Options) (*Adapter, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.Role == "" {
		cfg.Role = DefaultRole
	}

	client, err := httpapi.New(Name, opts.TransportConfig(cfg.BaseURL, cfg.APIKey), opts.ClientOptions()...)
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

type createProjectRequest struct {
	Project struct {
		Name     string `json:"name"`
		RegionID string `json:"region_id,omitempty"`
	} `json:"project"`
}

type projectResponse struct {
	Project struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"project"`
}

// CreateProject creates a Neon project named name.
func (a *Adapter) CreateProject(ctx context.Context, name string) (*engine.ProjectRef, error) {
	if a.dryRun {
		a.logger.Info().Str("name", name).Msg("dry run: would create project")
		return &engine.ProjectRef{ID: platforms.DryRunID(Name, name), Name: name}, nil
	}

	var req createProjectRequest
	req.Project.Name = name
	req.Project.RegionID = a.cfg.RegionID

	var resp projectResponse
	if err := a.client.Create(ctx, "create_project", "/projects", req, &resp); err != nil {
		return nil, err
	}
	if resp.Project.ID == "" {
		return nil, fmt.Errorf("neon: create project returned no id")
	}

	a.logger.Info().Str("project_id", resp.Project.ID).Str("name", resp.Project.Name).Msg("project created")
	return &engine.ProjectRef{ID: resp.Project.ID, Name: resp.Project.Name}, nil
}

// GetEndpoint returns the Postgres connection URI of the project's
// default database and role.
func (a *Adapter) GetEndpoint(ctx context.Context, projectID string) (string, error) {
	if a.dryRun {
		return fmt.Sprintf("postgresql://%s@%s.neon.dry-run/%s?sslmode=require",
			a.cfg.Role, projectID, a.cfg.Database), nil
	}

	q := url.Values{}
	q.Set("database_name", a.cfg.Database)
	q.Set("role_name", a.cfg.Role)
	path := "/projects/" + url.PathEscape(projectID) + "/connection_uri?" + q.Encode()

	var resp struct {
		URI string `json:"uri"`
	}
	if err := a.client.Get(ctx, "get_connection_uri", path, &resp); err != nil {
		return "", err
	}
	if resp.URI == "" {
		return "", fmt.Errorf("neon: project %s returned an empty connection uri", projectID)
	}
	return resp.URI, nil
}

// DeleteProject deletes the project. A project that no longer exists is
// treated as deleted.
func (a *Adapter) DeleteProject(ctx context.Context, projectID string) error {
	if a.dryRun {
		a.logger.Info().Str("project_id", projectID).Msg("dry run: would delete project")
		return nil
	}

	err := a.client.Delete(ctx, "delete_project", "/projects/"+url.PathEscape(projectID))
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

// Verify lists one project to confirm the API key is accepted.
func (a *Adapter) Verify(ctx context.Context) error {
	if a.dryRun {
		return nil
	}
	return a.client.Get(ctx, "verify", "/projects?limit=1", nil)
}
