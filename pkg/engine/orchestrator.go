package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/trinitydeploy/trinity/pkg/telemetry"
)

// Orchestrator sequences classification, provisioning and rollback.
// It holds no per-run state: every Deploy call builds its own tracker
// and emitter, so concurrent runs share nothing mutable.
type Orchestrator struct {
	classifier Classifier
	adapters   Adapters
	policy     PolicyGate
	observer   ResourceObserver
	logger     zerolog.Logger
	metrics    *telemetry.Metrics
	tracer     *telemetry.Tracer
	validate   *validator.Validate
	now        func() time.Time
	newID      func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPolicyGate sets the admission gate. The default admits everything.
func WithPolicyGate(gate PolicyGate) Option {
	return func(o *Orchestrator) {
		if gate != nil {
			o.policy = gate
		}
	}
}

// WithResourceObserver sets the observer given to every run's tracker.
func WithResourceObserver(obs ResourceObserver) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t *telemetry.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithIDGenerator overrides how run ids are generated.
func WithIDGenerator(gen func() string) Option {
	return func(o *Orchestrator) {
		o.newID = gen
	}
}

// NewOrchestrator creates an orchestrator over a classifier and the three
// platform adapters.
func NewOrchestrator(classifier Classifier, adapters Adapters, opts ...Option) (*Orchestrator, error) {
	if classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if err := adapters.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		classifier: classifier,
		adapters:   adapters,
		policy:     allowAllGate{},
		observer:   nopObserver{},
		logger:     zerolog.Nop(),
		metrics:    telemetry.NoopMetrics(),
		tracer:     telemetry.NoopTracer(),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With().Str("component", "orchestrator").Logger()
	return o, nil
}

// run is the state of a single deployment.
type run struct {
	id       string
	mode     Mode
	req      Request
	repo     Repository
	names    Names
	result   *ClassificationResult
	state    RunState
	tracker  *Tracker
	emitter  *Emitter
	sink     ProgressSink
	logger   zerolog.Logger
	started  time.Time
	outcome  *Outcome
	warnings []string
}

func (o *Orchestrator) newRun(mode Mode, req Request, sink ProgressSink) *run {
	if sink == nil {
		sink = NopSink{}
	}
	id := o.newID()
	started := o.now()
	return &run{
		id:      id,
		mode:    mode,
		req:     req,
		state:   RunStateIdle,
		tracker: NewTracker(id, o.observer),
		sink:    sink,
		logger:  o.logger.With().Str("run_id", id).Str("mode", string(mode)).Logger(),
		started: started,
		outcome: &Outcome{
			RunID:     id,
			Mode:      mode,
			DryRun:    req.DryRun,
			Platforms: make(map[Platform]PlatformResult),
			StartedAt: started,
		},
	}
}

func (r *run) transition(next RunState) {
	if !r.state.CanTransitionTo(next) {
		r.logger.Error().
			Str("from", string(r.state)).
			Str("to", string(next)).
			Msg("unexpected run state transition")
	}
	r.logger.Debug().Str("from", string(r.state)).Str("to", string(next)).Msg("run state changed")
	r.state = next
}

// Deploy runs the full pipeline: classification, then database, compute
// and frontend provisioning with value propagation. On failure every
// created resource is deleted in reverse order and a *DeployError is
// returned.
//
// Cancelling ctx before provisioning starts aborts the run. Once the first
// platform call is made the run continues to completion or rollback
// regardless of ctx.
func (o *Orchestrator) Deploy(ctx context.Context, req Request, sink ProgressSink) (*Outcome, error) {
	return o.execute(ctx, ModeFull, req, sink)
}

// DeploySingle classifies the target and provisions only the platform that
// hosts its category, without propagation.
func (o *Orchestrator) DeploySingle(ctx context.Context, req Request, sink ProgressSink) (*Outcome, error) {
	return o.execute(ctx, ModeSingle, req, sink)
}

func (o *Orchestrator) execute(ctx context.Context, mode Mode, req Request, sink ProgressSink) (*Outcome, error) {
	r := o.newRun(mode, req, sink)

	ctx, span := o.tracer.StartRunSpan(ctx, r.id, string(mode), req.Target)
	o.metrics.RecordDeploymentStarted(string(mode))
	r.logger.Info().Str("target", req.Target).Bool("dry_run", req.DryRun).Msg("deployment started")

	outcome, err := o.runPipeline(ctx, r)

	status := string(RunStateSucceeded)
	if err != nil {
		status = string(RunStateFailed)
		r.logger.Error().Err(err).Msg("deployment failed")
	} else {
		r.logger.Info().Dur("duration", outcome.Duration()).Msg("deployment succeeded")
	}
	o.metrics.RecordDeploymentCompleted(string(mode), status, o.now().Sub(r.started))
	telemetry.EndSpan(span, err)

	return outcome, err
}

func (o *Orchestrator) runPipeline(ctx context.Context, r *run) (*Outcome, error) {
	if err := o.validateRequest(r); err != nil {
		return nil, o.abort(r, err)
	}

	r.transition(RunStateClassifying)
	result, err := o.classify(ctx, r)
	if err != nil {
		return nil, o.abort(r, err)
	}
	r.result = result
	r.outcome.Classification = result

	platforms, err := o.route(r)
	if err != nil {
		return nil, o.abort(r, err)
	}
	if err := o.resolveSource(r, platforms); err != nil {
		return nil, o.abort(r, err)
	}

	r.emitter.Done(PlatformSystem, "classified as %s (%d%% confidence, %d indicators)",
		result.Category, result.ConfidencePercent(), len(result.Indicators))

	if err := o.admit(ctx, r, platforms); err != nil {
		return nil, o.abort(r, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, o.abort(r, NewValidationError("deployment cancelled before provisioning", err).
			WithCode(ErrCodeCancelled))
	}

	// Provisioning and rollback ignore caller cancellation.
	pctx := context.WithoutCancel(ctx)
	r.tracker.Reset()

	for _, p := range platforms {
		r.transition(provisioningState(p))
		if err := o.provision(pctx, r, p); err != nil {
			return nil, o.rollback(pctx, r, err)
		}
	}

	return o.succeed(pctx, r), nil
}

// validateRequest checks the request. The full pipeline always needs a
// source reference, so it is resolved here before classification.
func (o *Orchestrator) validateRequest(r *run) error {
	if err := o.validate.Struct(r.req); err != nil {
		return NewValidationError("invalid deployment request", err).WithCode(ErrCodeInvalidRequest)
	}
	if r.mode == ModeFull {
		repo, err := ParseRepository(r.req.repositoryRef())
		if err != nil {
			return err
		}
		r.repo = repo
	}
	return nil
}

// resolveSource parses the source reference for single-platform runs once
// the platform is known. The database platform builds nothing from source,
// so an unparseable target is only an error when a repository was given
// explicitly.
func (o *Orchestrator) resolveSource(r *run, platforms []Platform) error {
	if r.mode == ModeFull {
		return nil
	}

	needsSource := false
	for _, p := range platforms {
		if p == PlatformCompute || p == PlatformFrontend {
			needsSource = true
		}
	}

	repo, err := ParseRepository(r.req.repositoryRef())
	if err != nil {
		if needsSource || r.req.Repository != "" {
			return err
		}
		r.logger.Debug().Err(err).Msg("no source reference for database target")
		return nil
	}
	r.repo = repo
	return nil
}

func (o *Orchestrator) classify(ctx context.Context, r *run) (*ClassificationResult, error) {
	ctx, span := o.tracer.StartStageSpan(ctx, string(StageClassification), string(PlatformSystem))
	timer := telemetry.NewTimer()

	result, err := o.classifier.Classify(ctx, r.req.Target)
	if err == nil && result == nil {
		err = fmt.Errorf("classifier returned no result")
	}
	if err == nil {
		err = result.Category.Validate()
	}
	if err == nil {
		span.SetAttributes(telemetry.AttrCategory.String(string(result.Category)))
	}

	o.metrics.RecordStage(string(StageClassification), string(PlatformSystem), timer.Duration(), err)
	telemetry.EndSpan(span, err)

	if err != nil {
		if IsClassification(err) {
			return nil, err
		}
		return nil, NewClassificationError("failed to classify target", err).WithCode(ErrCodeClassifierFailed)
	}

	o.metrics.RecordClassification(string(result.Category))
	r.logger.Info().
		Str("category", string(result.Category)).
		Float64("confidence", result.Confidence).
		Strs("indicators", result.Indicators).
		Msg("target classified")
	return result, nil
}

// route resolves names, the platforms to provision and the progress total.
func (o *Orchestrator) route(r *run) ([]Platform, error) {
	if r.mode == ModeFull {
		r.names = ResolveNames(r.req.Target, r.req.ProjectName, r.req.ServiceName)
		r.emitter = NewEmitter(r.sink, FullPipelineSteps)
		r.emitter.now = o.now
		return []Platform{PlatformDatabase, PlatformCompute, PlatformFrontend}, nil
	}

	platform, ok := PlatformFor(r.result.Category)
	if !ok {
		return nil, NewClassificationError("cannot deploy project of this type",
			fmt.Errorf("category %q has no target platform", r.result.Category)).
			WithCode(ErrCodeUnsupportedType)
	}

	r.names = ResolveSingleNames(r.result.Category, r.req.Target, r.req.ProjectName, r.req.ServiceName)
	total := SingleStepsFrontend
	switch platform {
	case PlatformDatabase:
		total = SingleStepsDatabase
	case PlatformCompute:
		total = SingleStepsCompute
	}
	r.emitter = NewEmitter(r.sink, total)
	r.emitter.now = o.now
	return []Platform{platform}, nil
}

func (o *Orchestrator) admit(ctx context.Context, r *run, platforms []Platform) error {
	keys := make(map[Platform][]string)
	for _, p := range platforms {
		switch p {
		case PlatformCompute:
			keys[p] = sortedKeys(r.req.BackendEnv)
		case PlatformFrontend:
			keys[p] = sortedKeys(r.req.FrontendEnv)
		}
	}

	decision, err := o.policy.Admit(ctx, &AdmissionRequest{
		RunID:          r.id,
		Mode:           r.mode,
		Target:         r.req.Target,
		Repository:     r.repo,
		Classification: r.result,
		Names:          r.names,
		VariableKeys:   keys,
		DryRun:         r.req.DryRun,
	})
	if err != nil {
		return NewValidationError("admission policy evaluation failed", err).
			WithStage(StageAdmission).WithCode(ErrCodePolicyDenied)
	}

	for _, w := range decision.Warnings {
		r.logger.Warn().Str("warning", w).Msg("admission warning")
	}
	r.warnings = append(r.warnings, decision.Warnings...)

	if !decision.Allowed {
		o.metrics.RecordPolicyDenial(string(r.mode))
		return NewValidationError("deployment denied by policy",
			errors.New(joinViolations(decision.Violations))).
			WithStage(StageAdmission).WithCode(ErrCodePolicyDenied)
	}
	return nil
}

// abort ends a run that failed before any resource was created.
func (o *Orchestrator) abort(r *run, err error) error {
	r.transition(RunStateFailed)
	de := asDeployError(err)
	de.State = r.state
	return de
}

func (o *Orchestrator) succeed(ctx context.Context, r *run) *Outcome {
	if err := r.tracker.Clear(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("failed to clear resource ledger")
	}
	r.transition(RunStateSucceeded)

	r.outcome.State = r.state
	r.outcome.CompletedAt = o.now()
	r.outcome.Warnings = r.warnings
	r.emitter.Finish("deployment completed successfully")
	return r.outcome
}

// track records a created resource and logs observer failures.
func (o *Orchestrator) track(ctx context.Context, r *run, res TrackedResource) {
	if err := r.tracker.Track(ctx, res); err != nil {
		r.logger.Warn().Err(err).
			Str("platform", string(res.Platform)).
			Str("resource_id", res.ID).
			Msg("resource tracked with errors")
	}
}

func asDeployError(err error) *DeployError {
	var de *DeployError
	if errors.As(err, &de) {
		return de
	}
	return NewValidationError("deployment failed", err)
}

func joinViolations(v []string) string {
	if len(v) == 0 {
		return "no reason given"
	}
	return strings.Join(v, "; ")
}
