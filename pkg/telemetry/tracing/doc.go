// Package tracing wires OpenTelemetry for the daemon.
//
// When enabled it installs a batching OTLP gRPC exporter as the global
// tracer provider, so instrumented code can obtain tracers through
// otel.Tracer without holding a reference to this package. Disabled
// tracing installs nothing and spans become no-ops.
package tracing
