package llm

import (
	"context"
	"fmt"
	"time"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a chat-completion request.
type ChatRequest struct {
	// Model overrides the client's default model when non-empty.
	Model string

	// Messages is the ordered conversation, system prompts first.
	Messages []Message

	// Temperature, when non-nil, overrides the service default.
	Temperature *float64

	// MaxTokens caps the completion length when positive.
	MaxTokens int
}

// Client sends chat-completion requests.
type Client interface {
	// Chat returns the assistant's completion text.
	Chat(ctx context.Context, req *ChatRequest) (string, error)
}

// APIError is a non-success status from the service.
type APIError struct {
	StatusCode int
	Message    string

	// RetryAfter is the service-suggested backoff on rate limits.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm: service returned status %d: %s", e.StatusCode, e.Message)
}

// TimeoutError marks a call that exceeded its deadline.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("llm: call timed out after %s", e.Timeout)
}

// ParseError marks an unreadable or empty completion.
type ParseError struct {
	RawResponse string
	Cause       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("llm: unparseable response: %v", e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }
