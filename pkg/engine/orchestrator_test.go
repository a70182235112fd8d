package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/trinitydeploy/trinity/pkg/engine"
	"github.com/trinitydeploy/trinity/pkg/engine/enginetest"
)

const testRepo = "https://github.com/acme/my-app"

type fixture struct {
	platforms  *enginetest.Platforms
	classifier *enginetest.Classifier
	observer   *enginetest.Observer
	gate       *enginetest.Gate
	events     *enginetest.Events
	orch       *engine.Orchestrator
}

func newFixture(t *testing.T, category engine.Category) *fixture {
	t.Helper()
	f := &fixture{
		platforms:  enginetest.NewPlatforms(),
		classifier: enginetest.NewClassifier(category),
		observer:   enginetest.NewObserver(),
		gate:       &enginetest.Gate{},
		events:     &enginetest.Events{},
	}
	orch, err := engine.NewOrchestrator(f.classifier, f.platforms.Adapters(),
		engine.WithResourceObserver(f.observer),
		engine.WithPolicyGate(f.gate),
	)
	require.NoError(t, err)
	f.orch = orch
	return f
}

func (f *fixture) deploy(req engine.Request) (*engine.Outcome, error) {
	return f.orch.Deploy(context.Background(), req, f.events)
}

func TestNewOrchestratorRequiresAdapters(t *testing.T) {
	_, err := engine.NewOrchestrator(nil, enginetest.NewPlatforms().Adapters())
	assert.Error(t, err)

	_, err = engine.NewOrchestrator(enginetest.NewClassifier(engine.CategoryBackend), engine.Adapters{})
	assert.Error(t, err)
}

func TestDeploySuccess(t *testing.T) {
	f := newFixture(t, engine.CategoryBackend)

	outcome, err := f.deploy(engine.Request{Target: testRepo})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"database-platform:create_project",
		"database-platform:get_endpoint",
		"compute-platform:create_project",
		"compute-platform:create_service",
		"compute-platform:set_variables",
		"compute-platform:get_endpoint",
		"frontend-platform:create_project",
		"frontend-platform:connect_source",
		"frontend-platform:set_variables",
		"frontend-platform:get_endpoint",
	}, f.platforms.Keys())

	assert.Equal(t, engine.RunStateSucceeded, outcome.State)
	assert.Equal(t, engine.ModeFull, outcome.Mode)
	assert.Equal(t, engine.PlatformResult{
		ProjectID:     "db-project-1",
		ProjectName:   "myapp-db",
		ConnectionURI: f.platforms.DatabaseURI,
	}, outcome.Platforms[engine.PlatformDatabase])
	assert.Equal(t, engine.PlatformResult{
		ProjectID:   "compute-project-2",
		ProjectName: "myapp-backend",
		ServiceID:   "compute-service-3",
		ServiceName: "myapp-backend",
		URL:         f.platforms.BackendURL,
	}, outcome.Platforms[engine.PlatformCompute])
	assert.Equal(t, engine.PlatformResult{
		ProjectID:   "frontend-project-4",
		ProjectName: "myapp-frontend",
		URL:         f.platforms.FrontendURL,
	}, outcome.Platforms[engine.PlatformFrontend])

	assert.Equal(t, engine.Repository{Host: "github.com", Owner: "acme", Name: "my-app", Branch: "main"},
		f.platforms.Repos[engine.PlatformCompute])
}

func TestDeployProgressCadence(t *testing.T) {
	f := newFixture(t, engine.CategoryFrontend)

	_, err := f.deploy(engine.Request{Target: testRepo})
	require.NoError(t, err)

	events := f.events.All()
	require.Len(t, events, engine.FullPipelineSteps)
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Step, "event %d: %s", i, ev.Message)
		assert.Equal(t, engine.FullPipelineSteps, ev.Total)
	}

	assert.Equal(t, engine.PlatformSystem, events[0].Platform)
	assert.Contains(t, events[0].Message, "frontend")
	assert.Contains(t, events[0].Message, "90% confidence")

	final := events[len(events)-1]
	assert.Equal(t, engine.PlatformSystem, final.Platform)
	assert.Equal(t, engine.FullPipelineSteps, final.Step)
	assert.True(t, final.Completed)

	var completed []engine.Platform
	for _, ev := range events {
		if ev.Completed {
			completed = append(completed, ev.Platform)
		}
	}
	assert.Equal(t, []engine.Platform{
		engine.PlatformSystem,
		engine.PlatformDatabase,
		engine.PlatformCompute,
		engine.PlatformFrontend,
		engine.PlatformSystem,
	}, completed)
}

func TestDeployUsesClockAndRunID(t *testing.T) {
	f := newFixture(t, engine.CategoryFrontend)
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	ticks := 0
	orch, err := engine.NewOrchestrator(f.classifier, f.platforms.Adapters(),
		engine.WithResourceObserver(f.observer),
		engine.WithClock(func() time.Time {
			ticks++
			return base.Add(time.Duration(ticks-1) * time.Second)
		}),
		engine.WithIDGenerator(func() string { return "run-fixed" }),
	)
	require.NoError(t, err)

	outcome, err := orch.Deploy(context.Background(), engine.Request{Target: testRepo}, f.events)
	require.NoError(t, err)

	assert.Equal(t, "run-fixed", outcome.RunID)
	assert.Equal(t, base, outcome.StartedAt)
	assert.True(t, outcome.CompletedAt.After(outcome.StartedAt))
	assert.Equal(t, outcome.CompletedAt.Sub(base), outcome.Duration())
	assert.Len(t, f.observer.Tracked["run-fixed"], 4)

	events := f.events.All()
	require.Len(t, events, engine.FullPipelineSteps)
	prev := base
	for _, ev := range events {
		assert.True(t, ev.Timestamp.After(prev), ev.Message)
		assert.True(t, !ev.Timestamp.After(outcome.CompletedAt.Add(time.Second)), ev.Message)
		prev = ev.Timestamp
	}
}

func TestDeployFailureKeepsRunID(t *testing.T) {
	f := newFixture(t, engine.CategoryBackend)
	f.platforms.FailOn(engine.PlatformCompute, enginetest.OpCreateService, errors.New("quota exceeded"))
	orch, err := engine.NewOrchestrator(f.classifier, f.platforms.Adapters(),
		engine.WithResourceObserver(f.observer),
		engine.WithIDGenerator(func() string { return "run-failed" }),
	)
	require.NoError(t, err)

	_, err = orch.Deploy(context.Background(), engine.Request{Target: testRepo}, f.events)
	require.Error(t, err)

	assert.Len(t, f.observer.Tracked["run-failed"], 2)
	assert.Len(t, f.observer.Deleted["run-failed"], 2)
	assert.Equal(t, []string{"run-failed"}, f.observer.Cleared)
}

func TestDeployPropagatesValues(t *testing.T) {
	f := newFixture(t, engine.CategoryBackend)

	_, err := f.deploy(engine.Request{
		Target:      testRepo,
		BackendEnv:  map[string]string{"DATABASE_URL": "caller-value", "LOG_LEVEL": "debug"},
		FrontendEnv: map[string]string{"NEXT_PUBLIC_API_URL": "caller-value", "THEME": "dark"},
	})
	require.NoError(t, err)

	compute := f.platforms.Vars[engine.PlatformCompute]
	assert.Equal(t, f.platforms.DatabaseURI, compute["DATABASE_URL"])
	assert.Equal(t, "debug", compute["LOG_LEVEL"])

	frontend := f.platforms.Vars[engine.PlatformFrontend]
	assert.Equal(t, f.platforms.BackendURL, frontend["NEXT_PUBLIC_API_URL"])
	assert.Equal(t, "dark", frontend["THEME"])
}

func TestDeployOptimizedRuntime(t *testing.T) {
	f := newFixture(t, engine.CategoryBackend)
	f.classifier.Result.Metadata = engine.Metadata{Framework: "fastapi", OptimizedRuntime: true}

	_, err := f.deploy(engine.Request{Target: testRepo})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"PORT":             "8000",
		"HOST":             "0.0.0.0",
		"PYTHONUNBUFFERED": "1",
		"DATABASE_URL":     f.platforms.DatabaseURI,
	}, f.platforms.Vars[engine.PlatformCompute])
}

func TestDeployBackendURLPlaceholder(t *testing.T) {
	f := newFixture(t, engine.CategoryBackend)
	f.platforms.BackendURL = ""

	outcome, err := f.deploy(engine.Request{Target: testRepo})
	require.NoError(t, err)

	assert.Empty(t, outcome.Platforms[engine.PlatformCompute].URL)
	assert.Equal(t, engine.BackendURLPlaceholder, f.platforms.Vars[engine.PlatformFrontend]["NEXT_PUBLIC_API_URL"])
}

func TestDeployComputeEndpointFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, engine.CategoryBackend)
	f.platforms.FailOn(engine.PlatformCompute, enginetest.OpGetEndpoint, errors.New("domain not ready"))

	_, err := f.deploy(engine.Request{Target: testRepo})
	require.NoError(t, err)
	assert.Equal(t, engine.BackendURLPlaceholder, f.platforms.Vars[engine.PlatformFrontend]["NEXT_PUBLIC_API_URL"])
}

func TestDeployNameOverrides(t *testing.T) {
	f := newFixture(t, engine.CategoryBackend)

	outcome, err := f.deploy(engine.Request{Target: testRepo, ProjectName: "shop", ServiceName: "api"})
	require.NoError(t, err)

	assert.Equal(t, "shop-db", outcome.Platforms[engine.PlatformDatabase].ProjectName)
	assert.Equal(t, "shop-backend", outcome.Platforms[engine.PlatformCompute].ProjectName)
	assert.Equal(t, "api", outcome.Platforms[engine.PlatformCompute].ServiceName)
	assert.Equal(t, "shop-frontend", outcome.Platforms[engine.PlatformFrontend].ProjectName)
}

func TestDeployRollbackOnComputeFailure(t *testing.T) {
	f := newFixture(t, engine.CategoryBackend)
	f.platforms.FailOn(engine.PlatformCompute, enginetest.OpCreateService, errors.New("quota exceeded"))

	outcome, err := f.deploy(engine.Request{Target: testRepo})
	require.Error(t, err)
	assert.Nil(t, outcome)

	assert.Equal(t, []string{"compute-project-2", "db-project-1"}, f.platforms.Deleted())
	for _, key := range f.platforms.Keys() {
		assert.NotContains(t, key, "frontend-platform")
	}

	var de *engine.DeployError
	require.ErrorAs(t, err, &de)
	assert.True(t, engine.IsProvisioning(err))
	assert.Equal(t, engine.StageCompute, de.Stage)
	assert.Equal(t, engine.PlatformCompute, de.Platform)
	assert.Equal(t, "create service", de.Operation)
	assert.True(t, de.RollbackCompleted)
	assert.Empty(t, de.Leftover)
	assert.Equal(t, engine.RunStateFailed, de.State)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Contains(t, err.Error(), "rollback completed")

	events := f.events.All()
	// classification, database x2, compute x2, then rollback 2*2+2
	require.Len(t, events, 5+6)
	rollback := events[5:]
	for i, ev := range rollback {
		assert.Equal(t, i+1, ev.Step)
		assert.Equal(t, 6, ev.Total)
	}
	assert.Contains(t, rollback[0].Message, "deployment failed")
	assert.Contains(t, rollback[0].Message, "initiating rollback")
	assert.Equal(t, engine.EventLevelError, rollback[0].Level)
	assert.Contains(t, rollback[1].Message, "deleting project myapp-backend")
	assert.Contains(t, rollback[2].Message, "deleted successfully")
	assert.Contains(t, rollback[3].Message, "deleting project myapp-db")
	assert.Equal(t, "rollback completed", rollback[5].Message)

	require.Len(t, f.observer.Cleared, 1)
	runID := f.observer.Cleared[0]
	assert.Len(t, f.observer.Tracked[runID], 2)
	assert.Len(t, f.observer.Deleted[runID], 2)
}

func TestDeployRollbackOnFrontendFailure(t *testing.T) {
	f := newFixture(t, engine.CategoryFrontend)
	f.platforms.FailOn(engine.PlatformFrontend, enginetest.OpSetVariables, errors.New("bad request"))

	_, err := f.deploy(engine.Request{Target: testRepo})
	require.Error(t, err)

	assert.Equal(t, []string{
		"frontend-project-4",
		"compute-service-3",
		"compute-project-2",
		"db-project-1",
	}, f.platforms.Deleted())

	var de *engine.DeployError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, engine.StageFrontend, de.Stage)
	assert.True(t, de.RollbackCompleted)
}

func TestDeployRollbackOnDatabaseEndpointFailure(t *testing.T) {
	f := newFixture(t, engine.CategoryDatabase)
	f.platforms.FailOn(engine.PlatformDatabase, enginetest.OpGetEndpoint, errors.New("timeout"))

	_, err := f.deploy(engine.Request{Target: testRepo})
	require.Error(t, err)
	assert.Equal(t, []string{"db-project-1"}, f.platforms.Deleted())
}

func TestDeployRollbackContinuesPastDeleteFailure(t *testing.T) {
	f := newFixture(t, engine.CategoryFrontend)
	f.platforms.FailOn(engine.PlatformFrontend, enginetest.OpConnectSource, errors.New("no access to repo"))
	f.platforms.DeleteFail["compute-service-3"] = errors.New("service busy")

	_, err := f.deploy(engine.Request{Target: testRepo})
	require.Error(t, err)

	assert.Equal(t, []string{
		"frontend-project-4",
		"compute-service-3",
		"compute-project-2",
		"db-project-1",
	}, f.platforms.Deleted())

	var de *engine.DeployError
	require.ErrorAs(t, err, &de)
	assert.False(t, de.RollbackCompleted)
	require.Len(t, de.Leftover, 1)
	assert.Equal(t, "compute-service-3", de.Leftover[0].ID)
	assert.Equal(t, engine.ResourceKindService, de.Leftover[0].Kind)
	assert.Contains(t, err.Error(), "manual cleanup")
	assert.Equal(t, de.Leftover, engine.LeftoverResources(err))

	var errorEvents int
	for _, ev := range f.events.All() {
		if ev.Level == engine.EventLevelError {
			errorEvents++
		}
	}
	// the initiating event and the failed delete
	assert.Equal(t, 2, errorEvents)

	// the leftover stays with the observer for later cleanup
	assert.Empty(t, f.observer.Cleared)
	require.Len(t, f.observer.Deleted, 1)
	for runID, deleted := range f.observer.Deleted {
		assert.Len(t, f.observer.Tracked[runID], 4)
		assert.Len(t, deleted, 3)
		for _, res := range deleted {
			assert.NotEqual(t, "compute-service-3", res.ID)
		}
	}
}

func TestDeployClassificationFailure(t *testing.T) {
	f := newFixture(t, engine.CategoryBackend)
	f.classifier.Err = errors.New("path does not exist")

	_, err := f.deploy(engine.Request{Target: testRepo})
	require.Error(t, err)

	assert.True(t, engine.IsClassification(err))
	assert.Empty(t, f.platforms.Calls())
	assert.Empty(t, f.events.All())

	var de *engine.DeployError
	require.ErrorAs(t, err, &de)
	assert.False(t, de.RollbackAttempted)
	assert.Equal(t, engine.RunStateFailed, de.State)
}

func TestDeployValidationFailure(t *testing.T) {
	f := newFixture(t, engine.CategoryBackend)

	_, err := f.deploy(engine.Request{})
	require.Error(t, err)
	assert.True(t, engine.IsValidation(err))

	_, err = f.deploy(engine.Request{Target: "./local-dir"})
	require.Error(t, err)
	assert.True(t, engine.IsValidation(err))

	assert.Empty(t, f.classifier.Targets())
	assert.Empty(t, f.platforms.Calls())
}

func TestDeployUsesRepositoryOverride(t *testing.T) {
	f := newFixture(t, engine.CategoryBackend)

	outcome, err := f.deploy(engine.Request{Target: "./services/my-api", Repository: "acme/monorepo#prod"})
	require.NoError(t, err)

	assert.Equal(t, []string{"./services/my-api"}, f.classifier.Targets())
	assert.Equal(t, "myapi-db", outcome.Platforms[engine.PlatformDatabase].ProjectName)
	assert.Equal(t, "prod", f.platforms.Repos[engine.PlatformFrontend].Branch)
}

func TestDeployPolicyDenial(t *testing.T) {
	f := newFixture(t, engine.CategoryBackend)
	f.gate.Decision = &engine.AdmissionDecision{Allowed: false, Violations: []string{"name too long"}}

	_, err := f.deploy(engine.Request{Target: testRepo})
	require.Error(t, err)

	assert.True(t, engine.IsValidation(err))
	assert.ErrorContains(t, err, "name too long")
	assert.Empty(t, f.platforms.Calls())

	require.Len(t, f.gate.Requests, 1)
	req := f.gate.Requests[0]
	assert.Equal(t, engine.ModeFull, req.Mode)
	assert.Equal(t, "myapp-db", req.Names.DatabaseProject)
}

func TestDeployPolicyWarningsReachOutcome(t *testing.T) {
	f := newFixture(t, engine.CategoryBackend)
	f.gate.Decision = &engine.AdmissionDecision{Allowed: true, Warnings: []string{"low confidence"}}

	outcome, err := f.deploy(engine.Request{Target: testRepo})
	require.NoError(t, err)
	assert.Equal(t, []string{"low confidence"}, outcome.Warnings)
	assert.Len(t, f.events.All(), engine.FullPipelineSteps)
}

func TestDeployTrackerClearedOnSuccess(t *testing.T) {
	f := newFixture(t, engine.CategoryBackend)

	_, err := f.deploy(engine.Request{Target: testRepo})
	require.NoError(t, err)

	require.Len(t, f.observer.Cleared, 1)
	runID := f.observer.Cleared[0]
	assert.Len(t, f.observer.Tracked[runID], 4)
}

func TestDeployIgnoresCancellationOnceProvisioning(t *testing.T) {
	f := newFixture(t, engine.CategoryBackend)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.platforms.OnCall = func(c enginetest.Call) {
		if c.Key() == enginetest.Key(engine.PlatformDatabase, enginetest.OpCreateProject) {
			cancel()
		}
	}

	outcome, err := f.orch.Deploy(ctx, engine.Request{Target: testRepo}, f.events)
	require.NoError(t, err)
	assert.Equal(t, engine.RunStateSucceeded, outcome.State)

	for _, c := range f.platforms.Calls() {
		assert.NoError(t, c.CtxErr, c.Key())
	}
}

func TestDeployCancelledBeforeProvisioning(t *testing.T) {
	f := newFixture(t, engine.CategoryBackend)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.Deploy(ctx, engine.Request{Target: testRepo}, f.events)
	require.Error(t, err)
	assert.Empty(t, f.platforms.Calls())
}

func TestConcurrentDeploysAreIsolated(t *testing.T) {
	platforms := enginetest.NewPlatforms()
	orch, err := engine.NewOrchestrator(enginetest.NewClassifier(engine.CategoryBackend), platforms.Adapters())
	require.NoError(t, err)

	const runs = 8
	sinks := make([]*enginetest.Events, runs)
	var g errgroup.Group
	for i := 0; i < runs; i++ {
		sinks[i] = &enginetest.Events{}
		sink := sinks[i]
		target := fmt.Sprintf("https://github.com/acme/app-%d", i)
		g.Go(func() error {
			_, err := orch.Deploy(context.Background(), engine.Request{Target: target}, sink)
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, sink := range sinks {
		events := sink.All()
		require.Len(t, events, engine.FullPipelineSteps)
		for i, ev := range events {
			assert.Equal(t, i+1, ev.Step)
		}
	}
	assert.Len(t, platforms.Calls(), runs*10)
}

func TestDeploySingleRoutesByCategory(t *testing.T) {
	tests := []struct {
		category engine.Category
		platform engine.Platform
		calls    []string
		steps    int
	}{
		{
			category: engine.CategoryDatabase,
			platform: engine.PlatformDatabase,
			calls:    []string{"database-platform:create_project", "database-platform:get_endpoint"},
			steps:    engine.SingleStepsDatabase,
		},
		{
			category: engine.CategoryBackend,
			platform: engine.PlatformCompute,
			calls: []string{
				"compute-platform:create_project",
				"compute-platform:create_service",
				"compute-platform:get_endpoint",
			},
			steps: engine.SingleStepsCompute,
		},
		{
			category: engine.CategoryFrontend,
			platform: engine.PlatformFrontend,
			calls: []string{
				"frontend-platform:create_project",
				"frontend-platform:connect_source",
				"frontend-platform:get_endpoint",
			},
			steps: engine.SingleStepsFrontend,
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			f := newFixture(t, tt.category)

			outcome, err := f.orch.DeploySingle(context.Background(), engine.Request{Target: testRepo}, f.events)
			require.NoError(t, err)

			assert.Equal(t, tt.calls, f.platforms.Keys())
			assert.Len(t, outcome.Platforms, 1)
			assert.Contains(t, outcome.Platforms, tt.platform)
			assert.Equal(t, engine.ModeSingle, outcome.Mode)

			events := f.events.All()
			require.Len(t, events, tt.steps)
			for i, ev := range events {
				assert.Equal(t, i+1, ev.Step)
				assert.Equal(t, tt.steps, ev.Total)
			}
		})
	}
}

func TestDeploySingleLocalDatabaseNeedsNoSource(t *testing.T) {
	f := newFixture(t, engine.CategoryDatabase)

	outcome, err := f.orch.DeploySingle(context.Background(), engine.Request{Target: "/home/dev/schemas/my-db"}, f.events)
	require.NoError(t, err)

	assert.Equal(t, []string{"/home/dev/schemas/my-db"}, f.classifier.Targets())
	assert.Equal(t, []string{"database-platform:create_project", "database-platform:get_endpoint"}, f.platforms.Keys())
	assert.Equal(t, "mydb-db", outcome.Platforms[engine.PlatformDatabase].ProjectName)
	require.Len(t, f.gate.Requests, 1)
	assert.Empty(t, f.gate.Requests[0].Repository.Name)
}

func TestDeploySingleLocalTargetNeedsSourceForBuilds(t *testing.T) {
	for _, category := range []engine.Category{engine.CategoryBackend, engine.CategoryFrontend} {
		t.Run(string(category), func(t *testing.T) {
			f := newFixture(t, category)

			_, err := f.orch.DeploySingle(context.Background(), engine.Request{Target: "./local-dir"}, f.events)
			require.Error(t, err)
			assert.True(t, engine.IsValidation(err))
			assert.Empty(t, f.platforms.Calls())
		})
	}

	f := newFixture(t, engine.CategoryDatabase)
	_, err := f.orch.DeploySingle(context.Background(),
		engine.Request{Target: "./schema", Repository: "not a repo"}, f.events)
	require.Error(t, err)
	assert.True(t, engine.IsValidation(err))
	assert.Empty(t, f.platforms.Calls())
}

func TestDeploySingleNoPropagation(t *testing.T) {
	f := newFixture(t, engine.CategoryFrontend)

	_, err := f.orch.DeploySingle(context.Background(), engine.Request{
		Target:      testRepo,
		FrontendEnv: map[string]string{"THEME": "dark"},
	}, f.events)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"THEME": "dark"}, f.platforms.Vars[engine.PlatformFrontend])
}

func TestDeploySingleProjectNameVerbatim(t *testing.T) {
	f := newFixture(t, engine.CategoryDatabase)

	outcome, err := f.orch.DeploySingle(context.Background(), engine.Request{Target: testRepo, ProjectName: "orders"}, f.events)
	require.NoError(t, err)
	assert.Equal(t, "orders", outcome.Platforms[engine.PlatformDatabase].ProjectName)
}

func TestDeploySingleUnknownCategory(t *testing.T) {
	f := newFixture(t, engine.CategoryUnknown)

	_, err := f.orch.DeploySingle(context.Background(), engine.Request{Target: testRepo}, f.events)
	require.Error(t, err)

	assert.True(t, engine.IsClassification(err))
	assert.ErrorContains(t, err, "cannot deploy project of this type")
	assert.Empty(t, f.platforms.Calls())
}

func TestDeploySingleRollsBack(t *testing.T) {
	f := newFixture(t, engine.CategoryBackend)
	f.platforms.FailOn(engine.PlatformCompute, enginetest.OpCreateService, errors.New("boom"))

	_, err := f.orch.DeploySingle(context.Background(), engine.Request{Target: testRepo}, f.events)
	require.Error(t, err)
	assert.True(t, engine.IsProvisioning(err))
	assert.Equal(t, []string{"compute-project-1"}, f.platforms.Deleted())
}
