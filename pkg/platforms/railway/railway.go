// Package railway implements the compute platform adapter against the
// Railway GraphQL API.
package railway

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/trinitydeploy/trinity/pkg/engine"
	"github.com/trinitydeploy/trinity/pkg/platforms"
	"github.com/trinitydeploy/trinity/pkg/transports/httpapi"
)

// Name identifies the platform in logs and metrics.
const Name = "railway"

// DefaultBaseURL is the Railway API host.
const DefaultBaseURL = "https://backboard.railway.com"

const graphQLPath = "/graphql/v2"

// DefaultEnvironment is the environment variables are written to.
const DefaultEnvironment = "production"

// Config configures the adapter.
type Config struct {
	Token       string
	BaseURL     string
	Environment string
	TeamID      string
}

// Adapter provisions Railway projects and services.
type Adapter struct {
	client *httpapi.Client
	cfg    Config
	dryRun bool
	logger zerolog.Logger
}

var _ engine.ComputeProvisioner = (*Adapter)(nil)

// New creates a Railway adapter.
func New(cfg Config, opts platforms.Options) (*Adapter, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Environment == "" {
		cfg.Environment = DefaultEnvironment
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

const projectCreateMutation = `mutation projectCreate($input: ProjectCreateInput!) {
  projectCreate(input: $input) { id name }
}`

// CreateProject creates an empty Railway project.
func (a *Adapter) CreateProject(ctx context.Context, name string) (*engine.ProjectRef, error) {
	if a.dryRun {
		a.logger.Info().Str("name", name).Msg("dry run: would create project")
		return &engine.ProjectRef{ID: platforms.DryRunID(Name, name), Name: name}, nil
	}

	input := map[string]any{"name": name}
	if a.cfg.TeamID != "" {
		input["teamId"] = a.cfg.TeamID
	}

	var out struct {
		ProjectCreate struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"projectCreate"`
	}
	if err := a.client.CreateGraphQL(ctx, "projectCreate", graphQLPath, projectCreateMutation,
		map[string]any{"input": input}, &out); err != nil {
		return nil, err
	}
	if out.ProjectCreate.ID == "" {
		return nil, fmt.Errorf("railway: projectCreate returned no id")
	}

	a.logger.Info().Str("project_id", out.ProjectCreate.ID).Msg("project created")
	return &engine.ProjectRef{ID: out.ProjectCreate.ID, Name: out.ProjectCreate.Name}, nil
}

const serviceCreateMutation = `mutation serviceCreate($input: ServiceCreateInput!) {
  serviceCreate(input: $input) { id name }
}`

// CreateService creates a service in projectID that builds from repo.
func (a *Adapter) CreateService(ctx context.Context, projectID, name string, repo engine.Repository) (*engine.ServiceRef, error) {
	if a.dryRun {
		a.logger.Info().Str("name", name).Str("repo", repo.String()).Msg("dry run: would create service")
		return &engine.ServiceRef{ID: platforms.DryRunID(Name, name+"-service"), Name: name, ProjectID: projectID}, nil
	}

	input := map[string]any{
		"projectId": projectID,
		"name":      name,
		"source":    map[string]any{"repo": repo.FullName()},
		"branch":    repo.Branch,
	}

	var out struct {
		ServiceCreate struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"serviceCreate"`
	}
	if err := a.client.CreateGraphQL(ctx, "serviceCreate", graphQLPath, serviceCreateMutation,
		map[string]any{"input": input}, &out); err != nil {
		return nil, err
	}
	if out.ServiceCreate.ID == "" {
		return nil, fmt.Errorf("railway: serviceCreate returned no id")
	}

	a.logger.Info().
		Str("project_id", projectID).
		Str("service_id", out.ServiceCreate.ID).
		Str("repo", repo.FullName()).
		Msg("service created")
	return &engine.ServiceRef{ID: out.ServiceCreate.ID, Name: out.ServiceCreate.Name, ProjectID: projectID}, nil
}

const environmentsQuery = `query project($id: String!) {
  project(id: $id) { environments { edges { node { id name } } } }
}`

// environmentID resolves the configured environment of a project,
// falling back to the first one.
func (a *Adapter) environmentID(ctx context.Context, projectID string) (string, error) {
	var out struct {
		Project struct {
			Environments struct {
				Edges []struct {
					Node struct {
						ID   string `json:"id"`
						Name string `json:"name"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"environments"`
		} `json:"project"`
	}
	if err := a.client.GraphQL(ctx, "project", graphQLPath, environmentsQuery,
		map[string]any{"id": projectID}, &out); err != nil {
		return "", err
	}

	edges := out.Project.Environments.Edges
	if len(edges) == 0 {
		return "", fmt.Errorf("railway: project %s has no environments", projectID)
	}
	for _, e := range edges {
		if strings.EqualFold(e.Node.Name, a.cfg.Environment) {
			return e.Node.ID, nil
		}
	}
	return edges[0].Node.ID, nil
}

const variableUpsertMutation = `mutation variableCollectionUpsert($input: VariableCollectionUpsertInput!) {
  variableCollectionUpsert(input: $input)
}`

// SetVariables upserts vars on the service in the configured environment.
func (a *Adapter) SetVariables(ctx context.Context, projectID, serviceID string, vars map[string]string) error {
	if a.dryRun {
		a.logger.Info().Str("service_id", serviceID).Strs("keys", keys(vars)).Msg("dry run: would set variables")
		return nil
	}

	envID, err := a.environmentID(ctx, projectID)
	if err != nil {
		return err
	}

	input := map[string]any{
		"projectId":     projectID,
		"environmentId": envID,
		"serviceId":     serviceID,
		"variables":     vars,
	}
	if err := a.client.GraphQL(ctx, "variableCollectionUpsert", graphQLPath, variableUpsertMutation,
		map[string]any{"input": input}, nil); err != nil {
		return err
	}

	a.logger.Info().Str("service_id", serviceID).Int("count", len(vars)).Msg("variables set")
	return nil
}

// GetEndpoint returns the public URL Railway assigns to the service.
func (a *Adapter) GetEndpoint(_ context.Context, service engine.ServiceRef) (string, error) {
	name := platforms.Slug(service.Name)
	if name == "" {
		return "", fmt.Errorf("railway: service %s has no name to derive a domain from", service.ID)
	}
	return "https://" + name + "-" + platforms.Slug(a.cfg.Environment) + ".up.railway.app", nil
}

const serviceDeleteMutation = `mutation serviceDelete($id: String!) { serviceDelete(id: $id) }`

// DeleteService deletes a service. A service that no longer exists is
// treated as deleted.
func (a *Adapter) DeleteService(ctx context.Context, serviceID string) error {
	return a.delete(ctx, "serviceDelete", serviceDeleteMutation, serviceID)
}

const projectDeleteMutation = `mutation projectDelete($id: String!) { projectDelete(id: $id) }`

// DeleteProject deletes a project and everything in it.
func (a *Adapter) DeleteProject(ctx context.Context, projectID string) error {
	return a.delete(ctx, "projectDelete", projectDeleteMutation, projectID)
}

func (a *Adapter) delete(ctx context.Context, op, mutation, id string) error {
	if a.dryRun {
		a.logger.Info().Str("id", id).Str("op", op).Msg("dry run: would delete")
		return nil
	}

	err := a.client.GraphQL(ctx, op, graphQLPath, mutation, map[string]any{"id": id}, nil)
	if httpapi.IsNotFound(err) {
		a.logger.Warn().Str("id", id).Str("op", op).Msg("resource already deleted")
		return nil
	}
	if err != nil {
		return err
	}
	a.logger.Info().Str("id", id).Str("op", op).Msg("resource deleted")
	return nil
}

const meQuery = `query { me { id } }`

// Verify runs a trivial query to confirm the token is accepted.
func (a *Adapter) Verify(ctx context.Context) error {
	if a.dryRun {
		return nil
	}
	return a.client.GraphQL(ctx, "verify", graphQLPath, meQuery, nil, nil)
}

func keys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
