package commands

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/trinitydeploy/trinity/pkg/config"
	"github.com/trinitydeploy/trinity/pkg/discovery"
	"github.com/trinitydeploy/trinity/pkg/engine"
	"github.com/trinitydeploy/trinity/pkg/platforms"
	"github.com/trinitydeploy/trinity/pkg/platforms/neon"
	"github.com/trinitydeploy/trinity/pkg/platforms/railway"
	"github.com/trinitydeploy/trinity/pkg/platforms/vercel"
	"github.com/trinitydeploy/trinity/pkg/policy"
	"github.com/trinitydeploy/trinity/pkg/stores"
	"github.com/trinitydeploy/trinity/pkg/telemetry"
)

// app is the runtime shared by every command: configuration, telemetry
// and the lazily opened ledger and policy engine.
type app struct {
	cfg    *config.Config
	tel    *telemetry.Telemetry
	logger zerolog.Logger

	classifier *discovery.Classifier
	ledger     *stores.SQLiteStore
	policies   *policy.Engine

	mu            sync.Mutex
	orchestrators map[bool]*engine.Orchestrator
}

func newApp(version string) (*app, error) {
	cfg, err := config.Load(config.LoadOptions{Path: configPath, EnvFile: envFile})
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	cfg.Telemetry.ServiceVersion = version

	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, engine.NewConfigurationError("failed to initialise telemetry", err)
	}
	logger := tel.Logger.Zerolog()
	zerolog.SetGlobalLevel(telemetry.ParseLevel(cfg.Telemetry.Logging.Level))
	log.Logger = logger

	return &app{
		cfg:    cfg,
		tel:    tel,
		logger: logger,
		classifier: discovery.New(
			discovery.WithLogger(logger),
			discovery.WithCloneTimeout(cfg.Git.CloneTimeout),
			discovery.WithCloner(discovery.GitCloner{Token: cfg.Git.Token}),
		),
		orchestrators: make(map[bool]*engine.Orchestrator),
	}, nil
}

// openLedger opens the in-flight ledger unless it is disabled.
func (a *app) openLedger(ctx context.Context) error {
	if a.ledger != nil || a.cfg.Ledger.Path == "" {
		return nil
	}
	store, err := stores.Open(ctx, stores.Config{Path: a.cfg.Ledger.Path, Logger: a.logger})
	if err != nil {
		return fmt.Errorf("failed to open ledger %s: %w", a.cfg.Ledger.Path, err)
	}
	a.ledger = store
	return nil
}

// loadPolicies builds the policy engine with the configured files and
// disabled list applied.
func (a *app) loadPolicies(ctx context.Context) error {
	if a.policies != nil {
		return nil
	}
	e, err := policy.NewEngine(a.logger)
	if err != nil {
		return err
	}
	if len(a.cfg.Policy.Paths) > 0 {
		if err := e.LoadPolicies(ctx, a.cfg.Policy.Paths); err != nil {
			return engine.NewConfigurationError("failed to load policies", err)
		}
	}
	a.policies = e
	a.applyDisabled()
	return nil
}

func (a *app) applyDisabled() {
	for _, name := range a.cfg.Policy.Disabled {
		if err := a.policies.DisablePolicy(name); err != nil {
			a.logger.Warn().Err(err).Str("policy", name).Msg("cannot disable unknown policy")
		}
	}
}

// reloadPolicies swaps in freshly loaded custom policies.
func (a *app) reloadPolicies(ctx context.Context) func([]policy.Policy) error {
	return func(p []policy.Policy) error {
		if err := a.policies.SetPolicies(ctx, p); err != nil {
			a.logger.Error().Err(err).Msg("policy reload rejected, keeping current set")
			return nil
		}
		a.applyDisabled()
		a.logger.Info().Int("count", len(p)).Msg("policies reloaded")
		return nil
	}
}

func (a *app) platformOptions(dryRun bool) platforms.Options {
	return platforms.Options{
		DryRun:         dryRun,
		Logger:         a.logger,
		Tracer:         a.tel.Tracer,
		Metrics:        a.tel.Metrics,
		RequestTimeout: a.cfg.HTTP.Timeout,
		MaxRetries:     a.cfg.HTTP.MaxRetries,
	}
}

// adapters builds the three platform adapters. Live adapters require every
// credential.
func (a *app) adapters(dryRun bool) (engine.Adapters, []platforms.Verifier, error) {
	if !dryRun {
		if err := a.cfg.RequireCredentials(); err != nil {
			return engine.Adapters{}, nil, err
		}
	}
	opts := a.platformOptions(dryRun)

	db, err := neon.New(neon.Config{
		APIKey:   a.cfg.Neon.APIKey,
		BaseURL:  a.cfg.Neon.BaseURL,
		RegionID: a.cfg.Neon.RegionID,
		Database: a.cfg.Neon.Database,
		Role:     a.cfg.Neon.Role,
	}, opts)
	if err != nil {
		return engine.Adapters{}, nil, engine.NewConfigurationError("invalid database platform settings", err)
	}

	compute, err := railway.New(railway.Config{
		Token:       a.cfg.Railway.Token,
		BaseURL:     a.cfg.Railway.BaseURL,
		Environment: a.cfg.Railway.Environment,
		TeamID:      a.cfg.Railway.TeamID,
	}, opts)
	if err != nil {
		return engine.Adapters{}, nil, engine.NewConfigurationError("invalid compute platform settings", err)
	}

	frontend, err := vercel.New(vercel.Config{
		Token:   a.cfg.Vercel.Token,
		BaseURL: a.cfg.Vercel.BaseURL,
		TeamID:  a.cfg.Vercel.TeamID,
	}, opts)
	if err != nil {
		return engine.Adapters{}, nil, engine.NewConfigurationError("invalid frontend platform settings", err)
	}

	return engine.Adapters{Database: db, Compute: compute, Frontend: frontend},
		[]platforms.Verifier{db, compute, frontend}, nil
}

// orchestrator returns the orchestrator for live or dry runs, building it
// on first use.
func (a *app) orchestrator(ctx context.Context, dryRun bool) (*engine.Orchestrator, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if o, ok := a.orchestrators[dryRun]; ok {
		return o, nil
	}

	adapters, _, err := a.adapters(dryRun)
	if err != nil {
		return nil, err
	}
	if err := a.loadPolicies(ctx); err != nil {
		return nil, err
	}

	opts := []engine.Option{
		engine.WithPolicyGate(a.policies),
		engine.WithLogger(a.logger),
		engine.WithMetrics(a.tel.Metrics),
		engine.WithTracer(a.tel.Tracer),
	}
	// Dry runs create nothing, so they never reach the ledger.
	if !dryRun {
		if err := a.openLedger(ctx); err != nil {
			return nil, err
		}
		if a.ledger != nil {
			opts = append(opts, engine.WithResourceObserver(a.ledger))
		}
	}

	o, err := engine.NewOrchestrator(a.classifier, adapters, opts...)
	if err != nil {
		return nil, err
	}
	a.orchestrators[dryRun] = o
	return o, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if a.ledger != nil {
		errs = append(errs, a.ledger.Close())
	}
	errs = append(errs, a.tel.Shutdown(ctx))
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn().Err(err).Msg("shutdown incomplete")
	}
}
