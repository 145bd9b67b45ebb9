package config

import (
	"fmt"
	"net"
)

// ValidationError names the configuration field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Validate checks a configuration for consistency. Defaults must already
// be applied.
func Validate(cfg *Config) error {
	if cfg.Server.ListenAddress == "" {
		return &ValidationError{Field: "server.listen_address", Message: "must not be empty"}
	}
	if _, _, err := net.SplitHostPort(cfg.Server.ListenAddress); err != nil {
		return &ValidationError{Field: "server.listen_address", Message: fmt.Sprintf("not a host:port address: %v", err)}
	}

	switch cfg.Storage.Backend {
	case "sqlite":
		if cfg.Storage.Path == "" {
			return &ValidationError{Field: "storage.path", Message: "required for the sqlite backend"}
		}
	case "memory":
	default:
		return &ValidationError{Field: "storage.backend", Message: fmt.Sprintf("unknown backend %q (want sqlite or memory)", cfg.Storage.Backend)}
	}

	if !cfg.Classifier.Deterministic && cfg.LLM.BaseURL == "" {
		return &ValidationError{Field: "llm.base_url", Message: "required unless classifier.deterministic is true"}
	}

	switch cfg.Telemetry.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ValidationError{Field: "telemetry.logging.level", Message: fmt.Sprintf("unknown level %q", cfg.Telemetry.Logging.Level)}
	}
	switch cfg.Telemetry.Logging.Format {
	case "json", "text":
	default:
		return &ValidationError{Field: "telemetry.logging.format", Message: fmt.Sprintf("unknown format %q", cfg.Telemetry.Logging.Format)}
	}

	if r := cfg.Telemetry.Tracing.SampleRatio; r <= 0 || r > 1 {
		return &ValidationError{Field: "telemetry.tracing.sample_ratio", Message: "must be in (0,1]"}
	}
	if cfg.Telemetry.Tracing.Enabled && cfg.Telemetry.Tracing.Endpoint == "" {
		return &ValidationError{Field: "telemetry.tracing.endpoint", Message: "required when tracing is enabled"}
	}

	return nil
}
