package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"
)

// HTTPClient is an OpenAI-compatible chat client over HTTP with connection
// pooling, bounded retries and timeout handling.
type HTTPClient struct {
	config ClientConfig
	client *http.Client
	logger *slog.Logger
}

// ClientConfig configures an HTTPClient.
type ClientConfig struct {
	// BaseURL is the service base, e.g. "https://api.openai.com/v1" or a
	// local endpoint. Required.
	BaseURL string

	// APIKey authorizes requests. Optional; local endpoints often need
	// none.
	APIKey string

	// Model is the default model for requests that don't name one.
	Model string

	// Timeout bounds each attempt. Default: 15 seconds.
	Timeout time.Duration

	// MaxRetries is the number of retry attempts after the first try.
	// Default: 2.
	MaxRetries int

	// MaxIdleConns bounds the connection pool. Default: 10.
	MaxIdleConns int

	// Logger for structured logging. Defaults to slog.Default.
	Logger *slog.Logger
}

// chatCompletionRequest is the wire request.
type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// chatCompletionResponse is the wire response, reduced to what we consume.
type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewHTTPClient creates a chat client.
func NewHTTPClient(cfg ClientConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("llm: base URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &HTTPClient{
		config: cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		logger: cfg.Logger,
	}, nil
}

// Chat sends a completion request and returns the assistant's text.
func (c *HTTPClient) Chat(ctx context.Context, req *ChatRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.config.Model
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("llm: failed to marshal request: %w", err)
	}

	raw, err := c.doWithRetry(ctx, body)
	if err != nil {
		return "", err
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &ParseError{RawResponse: string(raw), Cause: err}
	}
	if len(parsed.Choices) == 0 {
		return "", &ParseError{RawResponse: string(raw), Cause: fmt.Errorf("no choices in response")}
	}
	return parsed.Choices[0].Message.Content, nil
}

// doWithRetry posts the body with exponential backoff on transient
// failures. Client errors (4xx other than 429) never retry.
func (c *HTTPClient) doWithRetry(ctx context.Context, body []byte) ([]byte, error) {
	url := c.config.BaseURL + "/chat/completions"
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			if apiErr, ok := lastErr.(*APIError); ok && apiErr.RetryAfter > 0 {
				backoff = apiErr.RetryAfter
			}
			c.logger.Debug("retrying llm request",
				"attempt", attempt,
				"max_retries", c.config.MaxRetries,
				"backoff", backoff,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("llm: failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &TimeoutError{Timeout: c.config.Timeout}
			}
			lastErr = err
			c.logger.Warn("llm request failed, will retry", "attempt", attempt+1, "error", err)
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if readErr != nil {
				return nil, &ParseError{Cause: readErr}
			}
			return respBody, nil
		}

		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
			lastErr = apiErr
		case resp.StatusCode >= 500:
			lastErr = apiErr
			c.logger.Warn("llm request returned server error, will retry",
				"status", resp.StatusCode,
				"attempt", attempt+1,
			)
		default:
			// 4xx other than rate limiting is not retryable.
			return nil, apiErr
		}
	}

	return nil, lastErr
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// parseRetryAfter parses the Retry-After header value,
// in either delay-seconds or HTTP-date form.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 0
}
