package agent

import "context"

// Environment identifies the runtime environment an invocation runs in.
type Environment string

const (
	// EnvDevelopment marks invocations from a development build.
	EnvDevelopment Environment = "development"
	// EnvProduction marks invocations from a production build.
	EnvProduction Environment = "production"
)

// Context carries per-invocation context into an agent.
type Context struct {
	// TabID identifies the originating tab, if any. Zero means no tab
	// context is available.
	TabID int

	// UserID identifies the user, if known.
	UserID string

	// Env is the runtime environment.
	Env Environment
}

// HasTab reports whether the invocation carries a tab context.
func (c *Context) HasTab() bool {
	return c != nil && c.TabID > 0
}

// Request is a single agent request.
type Request struct {
	// Kind is the request kind (e.g. "sense", "classify", "decide").
	// Agents declare the kinds they support; the registry rejects
	// undeclared kinds before the agent sees them.
	Kind string

	// Payload is the kind-specific input. Agents validate its shape.
	Payload any
}

// ErrorCode classifies agent failures.
type ErrorCode string

const (
	// CodeNotFound means no agent with the requested name is registered.
	CodeNotFound ErrorCode = "NOT_FOUND"
	// CodeUnsupported means the agent does not support the request kind.
	CodeUnsupported ErrorCode = "UNSUPPORTED"
	// CodeBadInput means the payload was malformed or missing required fields.
	CodeBadInput ErrorCode = "BAD_INPUT"
	// CodeLLMError means an external language-model call failed or timed out.
	CodeLLMError ErrorCode = "LLM_ERROR"
	// CodeTamper means the settings store detected a tampered envelope.
	CodeTamper ErrorCode = "TAMPER"
	// CodeNoTab means enforcement could not resolve a target tab.
	CodeNoTab ErrorCode = "NO_TAB"
	// CodeInternal means an unexpected failure outside the caller's control.
	CodeInternal ErrorCode = "INTERNAL"
)

// Error is the error half of the response envelope.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Response is the uniform envelope every invocation returns.
type Response struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// OKResponse builds a successful response carrying data.
func OKResponse(data any) *Response {
	return &Response{OK: true, Data: data}
}

// ErrResponse builds a failed response with a code and message.
func ErrResponse(code ErrorCode, message string) *Response {
	return &Response{OK: false, Error: &Error{Code: code, Message: message}}
}

// Agent is a named handler with a declared capability set.
type Agent interface {
	// Name returns the agent's registry name.
	Name() string

	// Supports returns the request kinds this agent handles.
	Supports() []string

	// Handle processes a request. Implementations report failure through
	// the response envelope, not by panicking.
	Handle(ctx context.Context, ac *Context, req *Request) *Response
}
