package telemetry

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles logging, tracing and metrics for one process.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// Noop returns a telemetry bundle that records nothing.
func Noop() *Telemetry {
	cfg := DefaultConfig()
	cfg.Metrics.Enabled = false
	return &Telemetry{
		Logger:  &Logger{zlog: zerolog.Nop(), config: cfg.Logging},
		Tracer:  NoopTracer(),
		Metrics: NoopMetrics(),
		Config:  cfg,
	}
}

// Shutdown flushes and stops the tracer.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.Tracer.Shutdown(ctx)
}

// ObserveProviderCall runs fn inside a provider span and records its
// duration and failure in metrics. Either tracer or metrics may be nil.
func ObserveProviderCall(ctx context.Context, tracer *Tracer, metrics *Metrics, provider, operation string, fn func(context.Context) error) error {
	var span trace.Span
	if tracer != nil {
		ctx, span = tracer.StartProviderSpan(ctx, provider, operation)
	}

	timer := NewTimer()
	err := fn(ctx)

	metrics.RecordProviderCall(provider, operation, timer.Duration())
	if err != nil {
		metrics.RecordProviderError(provider, operation)
	}
	if span != nil {
		EndSpan(span, err)
	}
	return err
}
