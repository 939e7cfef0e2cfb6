// Package workflow runs a pipeline of stages over shared state, with
// data-dependent routing between stages.
//
// A Graph is a fixed set of named stages, one entry stage, and per stage
// either a static successor or a routing function. A Runner walks the
// graph: it executes the current stage through a resilience.Coordinator
// (so the stage key's breaker, retry, and fallback policy applies),
// overlays the returned update onto the running State, and asks the
// stage's route where to go next. The run ends when routing returns
// Terminal or a stage has no successor.
//
// Stage failures are absorbed: the failure is appended to the state's
// error list and routing continues, so a route can degrade or bail out
// deliberately. Only three things end a run with an error: a route naming
// an unknown stage, the per-run step budget running out, and context
// cancellation. The partial state is returned in all three cases.
//
//	graph, err := workflow.NewGraph(workflow.GraphConfig{
//	    Entry: "fetch",
//	    Stages: []workflow.Stage{
//	        {Key: "fetch", Run: fetchLeads, Next: "score"},
//	        {Key: "score", Run: scoreLeads, Route: func(s workflow.State) string {
//	            if len(s.Errors()) > 0 {
//	                return workflow.Terminal
//	            }
//	            return "notify"
//	        }},
//	        {Key: "notify", Run: notifyOwners},
//	    },
//	})
//
// Each stage key must be registered with the coordinator before the
// runner is built; NewRunner fails on the first unregistered key.
package workflow
