package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"spai-hq/gatekeeper/pkg/llm"
	"spai-hq/gatekeeper/pkg/policy"
)

// systemPrompt instructs the model to act as a strict focus guardian and
// emit machine-readable output only.
const systemPrompt = `You are a very strict focus guardian to a software engineer. ` +
	`Allow tech-related subreddits and youtube videos, block all other social media sites. ` +
	`Allow tech-related websites and articles, block everything else. ` +
	`Return ONLY a strict JSON object: {"label": "distract" | "neutral" | "work", "confidence": number between 0 and 1}. No prose.`

// defaultTimeout bounds a single classification call.
const defaultTimeout = 10 * time.Second

// Classifier labels pages by title and host via an LLM backend.
type Classifier struct {
	client  llm.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger

	// deterministic disables LLM calls entirely; Classify synthesizes a
	// neutral zero-confidence result instead.
	deterministic bool
}

// Config configures a Classifier.
type Config struct {
	// Client is the LLM backend. Required unless Deterministic is set.
	Client llm.Client

	// Model overrides the client's default model when non-empty.
	Model string

	// Timeout bounds each classification call. Default: 10 seconds.
	Timeout time.Duration

	// Deterministic forces deterministic-only operation: no LLM calls
	// are ever made.
	Deterministic bool

	// Logger for structured logging. Defaults to slog.Default.
	Logger *slog.Logger
}

// New creates a Classifier.
func New(cfg Config) (*Classifier, error) {
	if cfg.Client == nil && !cfg.Deterministic {
		return nil, fmt.Errorf("classifier: LLM client is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Classifier{
		client:        cfg.Client,
		model:         cfg.Model,
		timeout:       cfg.Timeout,
		logger:        cfg.Logger,
		deterministic: cfg.Deterministic,
	}, nil
}

// Deterministic reports whether the classifier never calls the LLM.
func (c *Classifier) Deterministic() bool { return c.deterministic }

// wireResult is the model's raw answer.
type wireResult struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classify labels the page identified by title and host. In deterministic
// mode it returns a neutral zero-confidence result without any external
// call. A failed or unparseable LLM call returns an error; callers should
// proceed without a classifier opinion.
func (c *Classifier) Classify(ctx context.Context, title, host string) (*policy.ClassifierResult, error) {
	if c.deterministic {
		return &policy.ClassifierResult{
			SchemaVersion: policy.ClassifierSchemaVersion,
			Label:         policy.LabelNeutral,
			Confidence:    0,
		}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	content, err := c.client.Chat(ctx, &llm.ChatRequest{
		Model: c.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: fmt.Sprintf("Title: %s | Host: %s", title, host)},
		},
	})
	if err != nil {
		c.logger.Warn("classification call failed", "host", host, "error", err)
		return nil, fmt.Errorf("classifier: chat failed: %w", err)
	}

	var raw wireResult
	if err := json.Unmarshal([]byte(extractJSON(content)), &raw); err != nil {
		c.logger.Warn("classification response unparseable", "host", host, "error", err)
		return nil, fmt.Errorf("classifier: unparseable response: %w", err)
	}

	label, ok := parseLabel(raw.Label)
	if !ok {
		return nil, fmt.Errorf("classifier: unknown label %q", raw.Label)
	}

	return &policy.ClassifierResult{
		SchemaVersion: policy.ClassifierSchemaVersion,
		Label:         label,
		Confidence:    clamp01(raw.Confidence),
	}, nil
}

// parseLabel maps the model's label string to a policy label.
func parseLabel(s string) (policy.Label, bool) {
	switch policy.Label(strings.ToLower(strings.TrimSpace(s))) {
	case policy.LabelDistract:
		return policy.LabelDistract, true
	case policy.LabelNeutral:
		return policy.LabelNeutral, true
	case policy.LabelWork:
		return policy.LabelWork, true
	}
	return "", false
}

// extractJSON pulls the first JSON object out of a completion that may be
// wrapped in prose or a markdown fence despite the prompt.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
