// Package harvest implements the multi-market harvesting engine: the
// normalized record model, the deduplicating aggregator, and the convergence
// orchestrator that drives market adapters round by round until the yield
// quota is met or the round budget is exhausted.
package harvest
