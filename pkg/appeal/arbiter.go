package appeal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"spai-hq/gatekeeper/pkg/llm"
)

// systemPrompt frames the arbiter as a strict but fair productivity coach
// and pins the output format.
const systemPrompt = `You are a helpful but strict productivity coach. ` +
	`The user is blocked from a potentially distracting site. ` +
	`Engage briefly and decide whether access is justified for work or general wellbeing. ` +
	`Respond ONLY with strict JSON of the form {"assistant": string, "allow": boolean, "minutes": number}. ` +
	`Keep assistant concise. Minutes should be between 5 and 30 when allow=true, else 0.`

// Fallback replies shown when the coach's answer is unusable.
const (
	fallbackUnparseable = "I could not process that. Please try again."
	fallbackNoAssistant = "I did not understand. Could you rephrase?"
)

// maxGrantMinutes caps any single grant.
const maxGrantMinutes = 30

// defaultTimeout bounds a single evaluation call.
const defaultTimeout = 20 * time.Second

// Turn is one exchange in an appeal conversation.
type Turn struct {
	// Role is "user" or "assistant".
	Role string `json:"role"`

	// Content is the turn's text.
	Content string `json:"content"`
}

// PageContext identifies the blocked page under appeal.
type PageContext struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Verdict is the arbiter's answer to one appeal turn.
type Verdict struct {
	// Assistant is the coach's reply to show the user.
	Assistant string `json:"assistant"`

	// Allow reports whether access is granted.
	Allow bool `json:"allow"`

	// Minutes is the grant duration, clamped to [0,30]; zero when
	// Allow is false.
	Minutes int `json:"minutes"`
}

// Arbiter evaluates appeal conversations via an LLM backend.
type Arbiter struct {
	client  llm.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// Config configures an Arbiter.
type Config struct {
	// Client is the LLM backend. Required.
	Client llm.Client

	// Model overrides the client's default model when non-empty.
	Model string

	// Timeout bounds each evaluation call. Default: 20 seconds.
	Timeout time.Duration

	// Logger for structured logging. Defaults to slog.Default.
	Logger *slog.Logger
}

// New creates an Arbiter.
func New(cfg Config) (*Arbiter, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("appeal: LLM client is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Arbiter{
		client:  cfg.Client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}, nil
}

// wireVerdict is the model's raw answer.
type wireVerdict struct {
	Assistant *string  `json:"assistant"`
	Allow     bool     `json:"allow"`
	Minutes   *float64 `json:"minutes"`
}

// Evaluate runs one appeal turn. The returned verdict is always usable:
// an LLM failure yields an error, but a malformed or partial answer from
// the coach degrades to a denial with fallback text.
func (a *Arbiter) Evaluate(ctx context.Context, conversation []Turn, page PageContext) (*Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	messages := make([]llm.Message, 0, len(conversation)+2)
	messages = append(messages,
		llm.Message{Role: llm.RoleSystem, Content: systemPrompt},
		llm.Message{Role: llm.RoleSystem, Content: fmt.Sprintf("Context URL: %s | Title: %s", page.URL, page.Title)},
	)
	for _, turn := range conversation {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}

	content, err := a.client.Chat(ctx, &llm.ChatRequest{Model: a.model, Messages: messages})
	if err != nil {
		a.logger.Warn("appeal evaluation call failed", "url", page.URL, "error", err)
		return nil, fmt.Errorf("appeal: chat failed: %w", err)
	}

	var raw wireVerdict
	if err := json.Unmarshal([]byte(extractJSON(content)), &raw); err != nil {
		a.logger.Warn("appeal verdict unparseable", "url", page.URL, "error", err)
		return &Verdict{Assistant: fallbackUnparseable}, nil
	}

	verdict := &Verdict{
		Assistant: fallbackNoAssistant,
		Allow:     raw.Allow,
	}
	if raw.Assistant != nil && *raw.Assistant != "" {
		verdict.Assistant = *raw.Assistant
	}
	if raw.Minutes != nil {
		verdict.Minutes = clampMinutes(int(*raw.Minutes))
	}
	return verdict, nil
}

// clampMinutes bounds a grant duration to [0, maxGrantMinutes].
func clampMinutes(m int) int {
	switch {
	case m < 0:
		return 0
	case m > maxGrantMinutes:
		return maxGrantMinutes
	}
	return m
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
