package engine

import (
	"context"
	"errors"
	"maps"

	"github.com/trinitydeploy/trinity/pkg/telemetry"
)

// provision runs one platform stage inside a stage span.
func (o *Orchestrator) provision(ctx context.Context, r *run, p Platform) error {
	stage := StageFor(p)
	ctx, span := o.tracer.StartStageSpan(ctx, string(stage), string(p))
	timer := telemetry.NewTimer()

	var err error
	switch p {
	case PlatformDatabase:
		err = o.provisionDatabase(ctx, r)
	case PlatformCompute:
		err = o.provisionCompute(ctx, r)
	case PlatformFrontend:
		err = o.provisionFrontend(ctx, r)
	}

	o.metrics.RecordStage(string(stage), string(p), timer.Duration(), err)
	telemetry.EndSpan(span, err)
	return err
}

// provisionDatabase creates the database project and reads its
// connection URI. Two progress events.
func (o *Orchestrator) provisionDatabase(ctx context.Context, r *run) error {
	name := r.names.DatabaseProject
	r.emitter.Info(PlatformDatabase, "creating database project %s", name)

	project, err := created(o.adapters.Database.CreateProject(ctx, name))
	if err != nil {
		return NewProvisioningError(PlatformDatabase, "create project", err).WithCode(ErrCodeProviderFailed)
	}
	projectName := nameOr(project.Name, name)
	o.track(ctx, r, TrackedResource{
		Platform: PlatformDatabase,
		Kind:     ResourceKindProject,
		ID:       project.ID,
		Name:     projectName,
	})

	uri, err := o.adapters.Database.GetEndpoint(ctx, project.ID)
	if err != nil {
		return NewProvisioningError(PlatformDatabase, "get connection uri", err).WithCode(ErrCodeProviderFailed)
	}

	r.outcome.Platforms[PlatformDatabase] = PlatformResult{
		ProjectID:     project.ID,
		ProjectName:   projectName,
		ConnectionURI: uri,
	}
	r.logger.Info().Str("project_id", project.ID).Msg("database provisioned")
	r.emitter.Done(PlatformDatabase, "database %s ready", projectName)
	return nil
}

// provisionCompute creates the backend project and service, sets its
// variables and resolves its URL. Four progress events.
func (o *Orchestrator) provisionCompute(ctx context.Context, r *run) error {
	name := r.names.ComputeProject
	r.emitter.Info(PlatformCompute, "creating backend project %s", name)

	project, err := created(o.adapters.Compute.CreateProject(ctx, name))
	if err != nil {
		return NewProvisioningError(PlatformCompute, "create project", err).WithCode(ErrCodeProviderFailed)
	}
	projectName := nameOr(project.Name, name)
	o.track(ctx, r, TrackedResource{
		Platform: PlatformCompute,
		Kind:     ResourceKindProject,
		ID:       project.ID,
		Name:     projectName,
	})

	serviceName := r.names.ComputeService
	r.emitter.Info(PlatformCompute, "creating service %s from %s", serviceName, r.repo.FullName())

	service, err := created(o.adapters.Compute.CreateService(ctx, project.ID, serviceName, r.repo))
	if err != nil {
		return NewProvisioningError(PlatformCompute, "create service", err).WithCode(ErrCodeProviderFailed)
	}
	if service.ProjectID == "" {
		service.ProjectID = project.ID
	}
	service.Name = nameOr(service.Name, serviceName)
	o.track(ctx, r, TrackedResource{
		Platform: PlatformCompute,
		Kind:     ResourceKindService,
		ID:       service.ID,
		Name:     service.Name,
	})

	var databaseURL string
	if r.mode == ModeFull {
		databaseURL = r.outcome.Platforms[PlatformDatabase].ConnectionURI
	}
	vars := ComputeVariables(r.result, databaseURL, r.req.BackendEnv)
	if len(vars) > 0 {
		r.emitter.Info(PlatformCompute, "setting %d environment variables", len(vars))
		if err := o.adapters.Compute.SetVariables(ctx, project.ID, service.ID, vars); err != nil {
			return NewProvisioningError(PlatformCompute, "set variables", err).WithCode(ErrCodeProviderFailed)
		}
	} else {
		r.emitter.Info(PlatformCompute, "no environment variables to set")
	}

	url, err := o.adapters.Compute.GetEndpoint(ctx, *service)
	if err != nil {
		r.logger.Warn().Err(err).Str("service_id", service.ID).Msg("could not resolve backend url")
		url = ""
	}

	r.outcome.Platforms[PlatformCompute] = PlatformResult{
		ProjectID:   project.ID,
		ProjectName: projectName,
		ServiceID:   service.ID,
		ServiceName: service.Name,
		URL:         url,
	}
	r.logger.Info().Str("project_id", project.ID).Str("service_id", service.ID).Msg("backend provisioned")
	if url != "" {
		r.emitter.Done(PlatformCompute, "backend deployed at %s", url)
	} else {
		r.emitter.Done(PlatformCompute, "backend deployed")
	}
	return nil
}

// provisionFrontend creates the frontend project, connects the repository,
// sets its variables and reads its URL. Four progress events.
func (o *Orchestrator) provisionFrontend(ctx context.Context, r *run) error {
	name := r.names.FrontendProject
	r.emitter.Info(PlatformFrontend, "creating frontend project %s", name)

	project, err := created(o.adapters.Frontend.CreateProject(ctx, name))
	if err != nil {
		return NewProvisioningError(PlatformFrontend, "create project", err).WithCode(ErrCodeProviderFailed)
	}
	projectName := nameOr(project.Name, name)
	o.track(ctx, r, TrackedResource{
		Platform: PlatformFrontend,
		Kind:     ResourceKindProject,
		ID:       project.ID,
		Name:     projectName,
	})

	r.emitter.Info(PlatformFrontend, "connecting repository %s (branch %s)", r.repo.FullName(), r.repo.Branch)
	if err := o.adapters.Frontend.ConnectSource(ctx, project.ID, r.repo); err != nil {
		return NewProvisioningError(PlatformFrontend, "connect source", err).WithCode(ErrCodeProviderFailed)
	}

	var vars map[string]string
	if r.mode == ModeFull {
		vars = FrontendVariables(r.outcome.Platforms[PlatformCompute].URL, r.req.FrontendEnv)
	} else {
		vars = maps.Clone(r.req.FrontendEnv)
	}
	if len(vars) > 0 {
		r.emitter.Info(PlatformFrontend, "setting %d environment variables", len(vars))
		if err := o.adapters.Frontend.SetVariables(ctx, project.ID, vars); err != nil {
			return NewProvisioningError(PlatformFrontend, "set variables", err).WithCode(ErrCodeProviderFailed)
		}
	} else {
		r.emitter.Info(PlatformFrontend, "no environment variables to set")
	}

	url, err := o.adapters.Frontend.GetEndpoint(ctx, project.ID)
	if err != nil {
		return NewProvisioningError(PlatformFrontend, "get endpoint", err).WithCode(ErrCodeProviderFailed)
	}

	r.outcome.Platforms[PlatformFrontend] = PlatformResult{
		ProjectID:   project.ID,
		ProjectName: projectName,
		URL:         url,
	}
	r.logger.Info().Str("project_id", project.ID).Msg("frontend provisioned")
	r.emitter.Done(PlatformFrontend, "frontend deployed at %s", url)
	return nil
}

// created rejects a nil resource returned without an error.
func created[T any](v *T, err error) (*T, error) {
	if err == nil && v == nil {
		return nil, errors.New("platform returned no resource")
	}
	return v, err
}

func nameOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}
