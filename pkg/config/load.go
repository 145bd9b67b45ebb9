package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file, applies defaults and
// validates the result. An empty path yields the pure defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadWithEnvOverrides loads configuration and applies environment
// variable overrides using the GATEKEEPER_SECTION_FIELD convention
// (e.g. GATEKEEPER_SERVER_LISTEN_ADDRESS). Environment variables take
// precedence over file values.
func LoadWithEnvOverrides(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if val := os.Getenv(key); val != "" {
			if d, err := time.ParseDuration(val); err == nil {
				*dst = d
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if val := os.Getenv(key); val != "" {
			if b, err := strconv.ParseBool(val); err == nil {
				*dst = b
			}
		}
	}

	setString("GATEKEEPER_SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	setDuration("GATEKEEPER_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	setDuration("GATEKEEPER_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	setDuration("GATEKEEPER_SERVER_REQUEST_TIMEOUT", &cfg.Server.RequestTimeout)
	if val := os.Getenv("GATEKEEPER_SERVER_CORS_ALLOWED_ORIGINS"); val != "" {
		cfg.Server.CORS.AllowedOrigins = strings.Split(val, ",")
	}

	setString("GATEKEEPER_STORAGE_BACKEND", &cfg.Storage.Backend)
	setString("GATEKEEPER_STORAGE_PATH", &cfg.Storage.Path)

	setString("GATEKEEPER_SETTINGS_OPERATOR_SECRET", &cfg.Settings.OperatorSecret)

	setString("GATEKEEPER_LLM_BASE_URL", &cfg.LLM.BaseURL)
	setString("GATEKEEPER_LLM_API_KEY", &cfg.LLM.APIKey)
	setString("GATEKEEPER_LLM_CLASSIFIER_MODEL", &cfg.LLM.ClassifierModel)
	setString("GATEKEEPER_LLM_APPEAL_MODEL", &cfg.LLM.AppealModel)
	setDuration("GATEKEEPER_LLM_TIMEOUT", &cfg.LLM.Timeout)

	setBool("GATEKEEPER_CLASSIFIER_DETERMINISTIC", &cfg.Classifier.Deterministic)
	setDuration("GATEKEEPER_CLASSIFIER_TIMEOUT", &cfg.Classifier.Timeout)

	setString("GATEKEEPER_LOG_LEVEL", &cfg.Telemetry.Logging.Level)
	setString("GATEKEEPER_LOG_FORMAT", &cfg.Telemetry.Logging.Format)
	setBool("GATEKEEPER_LOG_REDACT_PAGES", &cfg.Telemetry.Logging.RedactPages)
	setBool("GATEKEEPER_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	setBool("GATEKEEPER_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	setString("GATEKEEPER_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
}
