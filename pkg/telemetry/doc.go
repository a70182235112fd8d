// Package telemetry provides observability instrumentation for Trinity.
//
// It integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry) and metrics (Prometheus).
//
// # Usage
//
// Initialize telemetry at startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// # Structured Logging
//
//	logger := tel.Logger.NewComponentLogger("engine")
//	logger.WithRunID(runID).WithPlatform("compute-platform").Info("service created")
//
// Events logged with a context carrying a recording span get a trace_id field.
//
// # Distributed Tracing
//
// The orchestrator opens one span per run and one per stage; platform
// adapters open one span per API call:
//
//	ctx, span := tel.Tracer.StartRunSpan(ctx, runID, "full", target)
//	defer telemetry.EndSpan(span, err)
//
// Supported exporters: otlp (gRPC), stdout, none.
//
// # Metrics
//
//	tel.Metrics.RecordDeploymentStarted("full")
//	tel.Metrics.RecordStage("compute", "compute-platform", d, err)
//	tel.Metrics.RecordProviderCall("neon", "create_project", d)
//
// Metrics are exposed by the serve command at /metrics. A nil or disabled
// *Metrics silently ignores every call.
package telemetry
