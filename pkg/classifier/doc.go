// Package classifier labels captured pages as work, neutral or
// distracting using an LLM backend.
//
// The classifier is advisory: the policy engine consults its result
// only after deterministic rules (schedule, lists, temporary allows)
// have had their say. When the LLM call fails or the deployment runs
// in deterministic-only mode, callers proceed without an opinion or
// receive a synthesized neutral result.
package classifier
