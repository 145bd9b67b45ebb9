// Package metrics provides Prometheus instrumentation for the daemon.
//
// A single Collector owns a private registry and pre-registered metric
// families for the pipeline (decisions by action and reason), the
// classifier (call latency, cache hits/misses/evictions), the state
// manager (active temporary allows, appeal sessions) and the settings
// store (tamper detections). The /metrics endpoint serves the registry
// through Handler.
//
// All recording methods are no-ops when metrics are disabled in config,
// so callers never need to guard their calls.
package metrics
