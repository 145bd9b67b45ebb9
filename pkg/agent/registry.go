package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Registry maps agent names to handlers.
//
// Registration overwrites on name collision (last registration wins).
// Dispatch is a synchronous lookup plus capability check; handling itself
// may block on external calls and honors the invocation context.
//
// The registry is stateless beyond the name->handler map and is safe for
// concurrent use.
type Registry struct {
	// agents maps names to registered agents
	agents map[string]Agent

	// mu protects the agents map
	mu sync.RWMutex

	// logger for structured logging
	logger *slog.Logger
}

// NewRegistry creates an empty agent registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		agents: make(map[string]Agent),
		logger: logger,
	}
}

// Register adds an agent under its name. A later registration with the same
// name replaces the earlier one.
func (r *Registry) Register(a Agent) {
	r.mu.Lock()
	if _, exists := r.agents[a.Name()]; exists {
		r.logger.Warn("replacing registered agent", "agent", a.Name())
	}
	r.agents[a.Name()] = a
	r.mu.Unlock()
}

// Names returns the names of all registered agents.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	return names
}

// Invoke dispatches a request to the named agent.
//
// Returns a NOT_FOUND envelope if no agent with that name is registered and
// an UNSUPPORTED envelope if the agent does not declare the request's kind.
// No other validation happens at this layer.
func (r *Registry) Invoke(ctx context.Context, name string, ac *Context, req *Request) *Response {
	r.mu.RLock()
	a, ok := r.agents[name]
	r.mu.RUnlock()

	if !ok {
		return ErrResponse(CodeNotFound, fmt.Sprintf("agent %q not found", name))
	}

	supported := false
	for _, kind := range a.Supports() {
		if kind == req.Kind {
			supported = true
			break
		}
	}
	if !supported {
		return ErrResponse(CodeUnsupported, fmt.Sprintf("kind %q not supported by agent %q", req.Kind, name))
	}

	resp := a.Handle(ctx, ac, req)
	if resp == nil {
		// An agent returning nil is a bug in the agent; surface it as a
		// failed envelope rather than letting callers dereference nil.
		r.logger.Error("agent returned nil response", "agent", name, "kind", req.Kind)
		return ErrResponse(CodeBadInput, fmt.Sprintf("agent %q returned no response", name))
	}
	return resp
}
