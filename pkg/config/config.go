package config

import "time"

// Config is the root configuration for the gatekeeper daemon.
type Config struct {
	// Server configures the loopback HTTP API.
	Server ServerConfig `yaml:"server"`

	// Storage configures the persistence backend for the encrypted
	// settings envelope and ephemeral-state snapshots.
	Storage StorageConfig `yaml:"storage"`

	// Settings configures the secure settings store.
	Settings SettingsConfig `yaml:"settings"`

	// LLM configures the external language-model service.
	LLM LLMConfig `yaml:"llm"`

	// Classifier configures the page classifier.
	Classifier ClassifierConfig `yaml:"classifier"`

	// Telemetry configures logging, metrics and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP surface the browser extensions talk to.
type ServerConfig struct {
	// ListenAddress is "host:port". The daemon serves local UI surfaces,
	// so the default binds loopback only.
	// Default: "127.0.0.1:8377"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout bounds reading a request including its body.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds writing a response. Zero disables it, which
	// the SSE signal stream requires.
	// Default: 0
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout bounds keep-alive idle connections.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// RequestTimeout bounds handler execution for non-streaming routes.
	// Default: 60s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// CORS configures cross-origin access for extension pages.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig configures cross-origin resource sharing.
type CORSConfig struct {
	// Enabled turns CORS headers on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins lists permitted origins. "*" allows any.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Backend is "sqlite" or "memory".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// Path is the sqlite database file.
	// Default: "gatekeeper.db"
	Path string `yaml:"path"`
}

// SettingsConfig configures the secure settings store.
type SettingsConfig struct {
	// OperatorSecret is the operator-supplied half of the key-derivation
	// secret. The runtime instance id is appended; with neither present
	// a fixed fallback is used.
	OperatorSecret string `yaml:"operator_secret"`
}

// LLMConfig configures the external language-model service.
type LLMConfig struct {
	// BaseURL is the OpenAI-compatible service base, e.g.
	// "https://api.openai.com/v1". Required unless the classifier runs
	// deterministic-only.
	BaseURL string `yaml:"base_url"`

	// APIKey authorizes requests. Optional for local endpoints.
	APIKey string `yaml:"api_key"`

	// ClassifierModel is used for page classification.
	// Default: "gpt-5-nano"
	ClassifierModel string `yaml:"classifier_model"`

	// AppealModel is used for appeal arbitration.
	// Default: "gpt-5-mini"
	AppealModel string `yaml:"appeal_model"`

	// SummaryModel is used by the summarize-title utility agent.
	// Default: "gpt-5-mini"
	SummaryModel string `yaml:"summary_model"`

	// Timeout bounds each service call attempt.
	// Default: 15s
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the retry budget per call.
	// Default: 2
	MaxRetries int `yaml:"max_retries"`
}

// ClassifierConfig configures the page classifier.
type ClassifierConfig struct {
	// Deterministic forces deterministic-only mode: the LLM is never
	// consulted and a neutral zero-confidence result is synthesized.
	// Default: false
	Deterministic bool `yaml:"deterministic"`

	// Timeout bounds one classification call.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// TelemetryConfig groups observability settings.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file:line in records.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactPages masks URL/title/host attribute values in log output.
	// Default: true
	RedactPages bool `yaml:"redact_pages"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	// Enabled turns metric recording on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Namespace prefixes all metric names.
	// Default: "gatekeeper"
	Namespace string `yaml:"namespace"`

	// ClassifyDurationBuckets are histogram buckets (seconds) for
	// classifier call latency.
	ClassifyDurationBuckets []float64 `yaml:"classify_duration_buckets"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled turns span export on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables transport security to the collector.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// SampleRatio is the fraction of traces sampled, in (0,1].
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName identifies this daemon in trace backends.
	// Default: "gatekeeper"
	ServiceName string `yaml:"service_name"`
}
