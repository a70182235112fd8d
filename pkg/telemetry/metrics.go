package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for Trinity. A disabled or nil
// *Metrics accepts every Record call and does nothing.
type Metrics struct {
	config MetricsConfig

	// Deployment metrics
	deploymentsStarted   *prometheus.CounterVec
	deploymentsCompleted *prometheus.CounterVec
	deploymentDuration   *prometheus.HistogramVec
	activeDeployments    prometheus.Gauge

	// Stage metrics
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec

	// Rollback metrics
	rollbackDeletions *prometheus.CounterVec

	// Classification and admission
	classifications *prometheus.CounterVec
	policyDenials   *prometheus.CounterVec

	// Provider metrics
	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	providerErrors   *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		deploymentsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deployments_started_total",
				Help:      "Total number of deployment runs started",
			},
			[]string{"mode"},
		),
		deploymentsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deployments_total",
				Help:      "Total number of deployment runs finished, by outcome",
			},
			[]string{"mode", "status"},
		),
		deploymentDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "deployment_duration_seconds",
				Help:      "Duration of deployment runs in seconds",
				Buckets:   buckets,
			},
			[]string{"mode", "status"},
		),
		activeDeployments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_deployments",
				Help:      "Number of deployment runs in progress",
			},
		),

		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   buckets,
			},
			[]string{"stage", "status"},
		),
		stageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_failures_total",
				Help:      "Total number of failed pipeline stages",
			},
			[]string{"stage", "platform"},
		),

		rollbackDeletions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollback_deletions_total",
				Help:      "Total number of rollback deletions attempted",
			},
			[]string{"platform", "kind", "status"},
		),

		classifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "classifications_total",
				Help:      "Total number of classifications by category",
			},
			[]string{"category"},
		),
		policyDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_denials_total",
				Help:      "Total number of deployments denied by admission policy",
			},
			[]string{"mode"},
		),

		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Total number of platform API calls",
			},
			[]string{"provider", "operation"},
		),
		providerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Duration of platform API calls in seconds",
				Buckets:   buckets,
			},
			[]string{"provider", "operation"},
		),
		providerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_errors_total",
				Help:      "Total number of failed platform API calls",
			},
			[]string{"provider", "operation"},
		),
	}

	collectors := []prometheus.Collector{
		m.deploymentsStarted,
		m.deploymentsCompleted,
		m.deploymentDuration,
		m.activeDeployments,
		m.stageDuration,
		m.stageFailures,
		m.rollbackDeletions,
		m.classifications,
		m.policyDenials,
		m.providerCalls,
		m.providerDuration,
		m.providerErrors,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// NoopMetrics returns a metrics collector that records nothing.
func NoopMetrics() *Metrics {
	return &Metrics{}
}

// Deployment Metrics

// RecordDeploymentStarted increments the counter for started runs.
func (m *Metrics) RecordDeploymentStarted(mode string) {
	if m == nil || m.deploymentsStarted == nil {
		return
	}
	m.deploymentsStarted.WithLabelValues(mode).Inc()
	m.activeDeployments.Inc()
}

// RecordDeploymentCompleted records a finished run with its status and duration.
func (m *Metrics) RecordDeploymentCompleted(mode, status string, duration time.Duration) {
	if m == nil || m.deploymentsCompleted == nil {
		return
	}
	m.deploymentsCompleted.WithLabelValues(mode, status).Inc()
	m.deploymentDuration.WithLabelValues(mode, status).Observe(duration.Seconds())
	m.activeDeployments.Dec()
}

// Stage Metrics

// RecordStage records a pipeline stage duration and, on failure, the failing platform.
func (m *Metrics) RecordStage(stage, platform string, duration time.Duration, err error) {
	if m == nil || m.stageDuration == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
		m.stageFailures.WithLabelValues(stage, platform).Inc()
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(duration.Seconds())
}

// RecordRollbackDeletion records one rollback delete attempt.
func (m *Metrics) RecordRollbackDeletion(platform, kind string, err error) {
	if m == nil || m.rollbackDeletions == nil {
		return
	}
	status := "deleted"
	if err != nil {
		status = "failed"
	}
	m.rollbackDeletions.WithLabelValues(platform, kind, status).Inc()
}

// RecordClassification records a classifier verdict.
func (m *Metrics) RecordClassification(category string) {
	if m == nil || m.classifications == nil {
		return
	}
	m.classifications.WithLabelValues(category).Inc()
}

// RecordPolicyDenial records an admission denial.
func (m *Metrics) RecordPolicyDenial(mode string) {
	if m == nil || m.policyDenials == nil {
		return
	}
	m.policyDenials.WithLabelValues(mode).Inc()
}

// Provider Metrics

// RecordProviderCall records a provider call with its duration.
func (m *Metrics) RecordProviderCall(provider, operation string, duration time.Duration) {
	if m == nil || m.providerCalls == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, operation).Inc()
	m.providerDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// RecordProviderError records a provider error.
func (m *Metrics) RecordProviderError(provider, operation string) {
	if m == nil || m.providerErrors == nil {
		return
	}
	m.providerErrors.WithLabelValues(provider, operation).Inc()
}

// Registry returns the underlying registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
