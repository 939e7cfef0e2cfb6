// Package config assembles a stageflow engine from a declarative YAML
// file.
//
// The file declares the pipeline graph, per-stage guard policies, record
// sinks, health checkers, and the optional admin API. Stage, route, and
// fallback functions cannot live in YAML, so the file names them and the
// embedding program binds the names through a Registry before building:
//
//	reg := config.NewRegistry()
//	reg.RegisterStage("fetch", fetchLeads)
//	reg.RegisterStage("score", scoreLeads)
//	reg.RegisterRoute("score_or_stop", scoreOrStop)
//
//	cfg, err := config.Load("engine.yaml")
//	if err != nil {
//	    return err
//	}
//	eng, err := config.Build(ctx, cfg, reg)
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//
//	final, err := eng.Runner.Run(ctx, workflow.State{"lead": id})
//
// Values in the file may reference the environment two ways: ${VAR} is
// expanded strictly (an unset variable fails the load), and
// secretref:env:NAME marks required secrets such as ledger credentials
// and the admin signing secret. Both keep literals out of committed
// files.
//
// Build-time options carry the runtime objects a file cannot: WithLogger
// and WithTracer replace the defaults, and WithMetrics adds an
// OpenTelemetry record sink next to the configured ones.
package config
