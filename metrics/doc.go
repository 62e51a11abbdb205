// Package metrics records per-request instrumentation for the query
// router: phase latencies, token usage, retrieval stats, and outcome
// flags. A QueryMetrics record is owned by a single request, mutated
// through its phases, and frozen at finalization; the finalized field set
// is the contract consumed by persistence and dashboards.
package metrics
