package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/stageflow/admin"
	"github.com/jonwraymond/stageflow/health"
	"github.com/jonwraymond/stageflow/monitor"
	"github.com/jonwraymond/stageflow/observe"
	"github.com/jonwraymond/stageflow/resilience"
	"github.com/jonwraymond/stageflow/workflow"
)

// Coordinator is the engine's coordinator instantiation: stage state in,
// stage state out.
type Coordinator = resilience.Coordinator[workflow.State, workflow.State]

// Engine bundles the components Build wires together from one config
// file. Close releases the sinks Build opened.
type Engine struct {
	// Coordinator hosts one guarded operation per pipeline stage.
	Coordinator *Coordinator

	// Runner executes the declared pipeline.
	Runner *workflow.Runner

	// Monitor is the composed record sink shared by the coordinator and
	// the runner.
	Monitor monitor.Monitor

	// Recent is the in-memory record ring. Nil unless monitor.memory is
	// declared.
	Recent *monitor.Memory

	// Health aggregates the engine's checkers: always the breaker
	// checker, plus a failure rate checker when the memory ring is on
	// and a ledger ping when Postgres is on.
	Health *health.Aggregator

	// Admin serves the operations API. Nil unless the admin section is
	// declared.
	Admin *admin.API

	postgres *monitor.PostgresSink
	archiver *monitor.ObjectArchiver
}

// Close releases the sinks Build opened. Safe on a partially built
// engine.
func (e *Engine) Close() error {
	var errs []error
	if e.archiver != nil {
		if err := e.archiver.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.postgres != nil {
		if err := e.postgres.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type builder struct {
	logger  observe.Logger
	tracer  observe.Tracer
	metrics observe.Metrics
}

// BuildOption customizes assembly with runtime objects a config file
// cannot carry.
type BuildOption func(*builder)

// WithLogger overrides the logger the engine components share. Default:
// a structured logger at the configured observability.log_level.
func WithLogger(l observe.Logger) BuildOption {
	return func(b *builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithTracer wraps every stage execution in a span.
func WithTracer(t observe.Tracer) BuildOption {
	return func(b *builder) {
		if t != nil {
			b.tracer = t
		}
	}
}

// WithMetrics adds an OpenTelemetry sink recording execution counts and
// latencies alongside the configured sinks.
func WithMetrics(m observe.Metrics) BuildOption {
	return func(b *builder) {
		if m != nil {
			b.metrics = m
		}
	}
}

// Build assembles a runnable engine from a validated declaration and the
// registered functions it names. Every stage key needs a registered
// stage function; every route and fallback name needs a registered
// implementation. The context bounds sink startup, Postgres included.
func Build(ctx context.Context, cfg Config, reg *Registry, opts ...BuildOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, errors.New("config: registry is required")
	}

	var b builder
	for _, opt := range opts {
		if opt != nil {
			opt(&b)
		}
	}
	logger := b.logger
	if logger == nil {
		logger = observe.NewLogger(cfg.Observability.LogLevel)
	}

	// Resolve every named function before touching external resources so
	// wiring mistakes fail without opening connections.
	stages := make([]workflow.Stage, 0, len(cfg.Pipeline.Stages))
	guards := make(map[string]resilience.OperationConfig[workflow.State, workflow.State], len(cfg.Pipeline.Stages))
	for _, st := range cfg.Pipeline.Stages {
		fn, ok := reg.stage(st.Key)
		if !ok {
			return nil, fmt.Errorf("config: pipeline stage %q has no registered function", st.Key)
		}
		stage := workflow.Stage{Key: st.Key, Run: fn, Next: st.Next}
		if st.Route != "" {
			route, ok := reg.route(st.Route)
			if !ok {
				return nil, fmt.Errorf("config: pipeline stage %q names unregistered route %q", st.Key, st.Route)
			}
			stage.Route = route
		}
		stages = append(stages, stage)

		guard, err := guardConfig(cfg.Operations[st.Key], reg, st.Key)
		if err != nil {
			return nil, err
		}
		guards[st.Key] = guard
	}

	graph, err := workflow.NewGraph(workflow.GraphConfig{
		Entry:    cfg.Pipeline.Entry,
		Stages:   stages,
		MaxSteps: cfg.Pipeline.MaxSteps,
	})
	if err != nil {
		return nil, err
	}

	eng := &Engine{}
	done := false
	defer func() {
		if !done {
			eng.Close()
		}
	}()

	sinks := make([]monitor.Monitor, 0, 5)
	if cfg.Monitor.Memory != nil {
		eng.Recent = monitor.NewMemory(cfg.Monitor.Memory.Capacity)
		sinks = append(sinks, eng.Recent)
	}
	if cfg.Monitor.Log {
		sinks = append(sinks, monitor.NewLogMonitor(logger))
	}
	if b.metrics != nil {
		sinks = append(sinks, monitor.NewOTelMonitor(b.metrics))
	}
	if pg := cfg.Monitor.Postgres; pg != nil {
		sink, err := monitor.NewPostgresSink(ctx, monitor.PostgresConfig{
			URL:           pg.URL,
			BufferSize:    pg.BufferSize,
			InsertTimeout: pg.InsertTimeout.Std(),
		}, monitor.WithPostgresLogger(logger))
		if err != nil {
			return nil, err
		}
		eng.postgres = sink
		sinks = append(sinks, sink)
	}
	if ar := cfg.Monitor.Archive; ar != nil {
		arch, err := monitor.NewObjectArchiver(monitor.ArchiveConfig{
			Endpoint:       ar.Endpoint,
			AccessKey:      ar.AccessKey,
			SecretKey:      ar.SecretKey,
			Region:         ar.Region,
			UseSSL:         ar.UseSSL,
			Bucket:         ar.Bucket,
			Prefix:         ar.Prefix,
			MaxPendingRuns: ar.MaxPendingRuns,
		}, monitor.WithArchiveLogger(logger))
		if err != nil {
			return nil, err
		}
		eng.archiver = arch
		sinks = append(sinks, arch)
	}
	eng.Monitor = monitor.Multi(sinks...)

	coordOpts := []resilience.CoordinatorOption[workflow.State, workflow.State]{
		resilience.WithMonitor[workflow.State, workflow.State](eng.Monitor),
	}
	if cfg.LastGoodTTL > 0 {
		coordOpts = append(coordOpts, resilience.WithLastGoodTTL[workflow.State, workflow.State](cfg.LastGoodTTL.Std()))
	}
	coord := resilience.NewCoordinator(coordOpts...)
	for _, st := range cfg.Pipeline.Stages {
		if err := coord.Register(st.Key, guards[st.Key]); err != nil {
			return nil, err
		}
	}
	eng.Coordinator = coord

	runnerOpts := []workflow.RunnerOption{
		workflow.WithName(cfg.Pipeline.Name),
		workflow.WithLogger(logger),
		workflow.WithMonitor(eng.Monitor),
	}
	if b.tracer != nil {
		runnerOpts = append(runnerOpts, workflow.WithTracer(b.tracer))
	}
	runner, err := workflow.NewRunner(graph, coord, runnerOpts...)
	if err != nil {
		return nil, err
	}
	eng.Runner = runner

	agg := health.NewAggregator()
	agg.Register("breakers", health.NewBreakerChecker(coord))
	if eng.Recent != nil {
		agg.Register("executions", health.NewFailureRateChecker(eng.Recent, health.FailureRateCheckerConfig{}))
	}
	if eng.postgres != nil {
		agg.Register("ledger", health.NewPingChecker(eng.postgres.Ping))
	}
	eng.Health = agg

	if cfg.Admin != nil {
		verifier, err := admin.NewTokenVerifier(admin.AuthConfig{
			Secret:   []byte(cfg.Admin.Secret),
			Issuer:   cfg.Admin.Issuer,
			Audience: cfg.Admin.Audience,
		})
		if err != nil {
			return nil, err
		}
		api, err := admin.NewAPI(admin.APIConfig{
			Controls: coord,
			Recent:   eng.Recent,
			Auth:     verifier,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		eng.Admin = api
	}

	done = true
	return eng, nil
}

// guardConfig translates one declared operation policy into the
// coordinator's config, resolving the fallback name.
func guardConfig(oc OperationConfig, reg *Registry, key string) (resilience.OperationConfig[workflow.State, workflow.State], error) {
	out := resilience.OperationConfig[workflow.State, workflow.State]{
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: oc.Breaker.FailureThreshold,
			RecoveryTimeout:  oc.Breaker.RecoveryTimeout.Std(),
			SuccessThreshold: oc.Breaker.SuccessThreshold,
		},
		Retry: resilience.RetryConfig{
			MaxAttempts:   oc.Retry.MaxAttempts,
			BaseDelay:     oc.Retry.BaseDelay.Std(),
			MaxDelay:      oc.Retry.MaxDelay.Std(),
			BackoffFactor: oc.Retry.BackoffFactor,
		},
		Timeout: oc.Timeout.Std(),
	}

	switch oc.Fallback {
	case "":
	case FallbackLastGood:
		out.FallbackToLastGood = true
	default:
		fn, ok := reg.fallback(oc.Fallback)
		if !ok {
			return out, fmt.Errorf("config: operations.%s names unregistered fallback %q", key, oc.Fallback)
		}
		out.Fallback = fn
	}

	if oc.Bulkhead != nil {
		out.Bulkhead = &resilience.BulkheadConfig{
			MaxConcurrent: oc.Bulkhead.MaxConcurrent,
			MaxWait:       oc.Bulkhead.MaxWait.Std(),
		}
	}
	if oc.RateLimit != nil {
		out.RateLimit = &resilience.RateLimiterConfig{
			PerSecond: oc.RateLimit.PerSecond,
			Burst:     oc.RateLimit.Burst,
			MaxWait:   oc.RateLimit.MaxWait.Std(),
		}
	}
	return out, nil
}
