// Package observe provides the telemetry layer for pipeline execution:
// structured JSON logging, OpenTelemetry tracing, and execution metrics.
//
// The entry point is NewObserver, which validates a Config, starts the
// enabled providers, and vends the instruments the engine consumes:
//
//	obs, err := observe.NewObserver(ctx, observe.Config{
//		ServiceName: "leadpipe",
//		Tracing:     observe.TracingConfig{Enabled: true, Exporter: "otlp", SamplePct: 0.1},
//		Metrics:     observe.MetricsConfig{Enabled: true, Exporter: "prometheus"},
//		Logging:     observe.LoggingConfig{Enabled: true, Level: "info"},
//	})
//	if err != nil {
//		return err
//	}
//	defer obs.Shutdown(ctx)
//
// obs.Tracer() plugs into workflow.WithTracer, obs.Metrics() into
// monitor.NewOTelMonitor, and obs.Logger() anywhere a Logger is
// accepted. Disabled subsystems vend noop instruments, so call sites
// never branch on telemetry configuration.
//
// The package performs no execution or transport of its own beyond
// exporter setup. Spans are named op.exec.<key>, and log fields that
// may carry pipeline payloads are redacted.
package observe
