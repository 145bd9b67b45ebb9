// Package telemetry provides observability for the gatekeeper daemon.
//
// # Components
//
//   - logging: structured slog logging with page-privacy redaction
//   - metrics: Prometheus metrics collection
//   - tracing: OpenTelemetry distributed tracing
//
// Each subpackage is wired independently from configuration at startup;
// none is required for the core subsystems to function.
package telemetry
