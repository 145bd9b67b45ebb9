package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"spai-hq/gatekeeper/pkg/agent"
	"spai-hq/gatekeeper/pkg/classifier"
	"spai-hq/gatekeeper/pkg/policy"
	"spai-hq/gatekeeper/pkg/state"
	"spai-hq/gatekeeper/pkg/telemetry/metrics"
)

// Agent names and request kinds for the core pipeline stages.
const (
	AgentSense      = "sense"
	AgentClassifier = "classifier"
	AgentPolicy     = "policy"
	AgentEnforce    = "enforce"

	KindSense    = "sense"
	KindClassify = "classify"
	KindDecide   = "decide"
	KindApply    = "apply"
)

// Capture is a page capture event submitted by a tab surface.
type Capture struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// ClassifyInput is the classifier agent's payload.
type ClassifyInput struct {
	Title string `json:"title"`
	Host  string `json:"host"`
}

// EnforceInput is the enforcement agent's payload.
type EnforceInput struct {
	Decision policy.Decision  `json:"decision"`
	Page     BlockPagePayload `json:"page"`
	Host     string           `json:"host"`
}

// EnforceOutcome reports what enforcement did.
type EnforceOutcome struct {
	// Enforced is true when a block dialog was requested.
	Enforced bool `json:"enforced"`

	// SessionID is the appeal session opened for the tab, when enforced.
	SessionID string `json:"sessionId,omitempty"`
}

// SenseAgent derives page features from a capture. A URL that cannot be
// parsed or has no host is a BAD_INPUT failure; the pipeline aborts the
// run without recording a decision.
type SenseAgent struct{}

func (SenseAgent) Name() string       { return AgentSense }
func (SenseAgent) Supports() []string { return []string{KindSense} }

func (SenseAgent) Handle(_ context.Context, _ *agent.Context, req *agent.Request) *agent.Response {
	capture, ok := req.Payload.(Capture)
	if !ok {
		return agent.ErrResponse(agent.CodeBadInput, "payload is not a capture")
	}

	u, err := url.Parse(capture.URL)
	if err != nil || u.Hostname() == "" {
		return agent.ErrResponse(agent.CodeBadInput, fmt.Sprintf("unusable URL %q", capture.URL))
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	return agent.OKResponse(policy.PageFeatures{
		Host:  u.Hostname(),
		Path:  path,
		Title: capture.Title,
	})
}

// ClassifyAgent consults the LLM classifier for a page opinion.
type ClassifyAgent struct {
	classifier *classifier.Classifier
	metrics    *metrics.Collector
}

// NewClassifyAgent wraps a classifier as a registry agent. metrics may be
// nil.
func NewClassifyAgent(c *classifier.Classifier, m *metrics.Collector) *ClassifyAgent {
	return &ClassifyAgent{classifier: c, metrics: m}
}

func (a *ClassifyAgent) Name() string       { return AgentClassifier }
func (a *ClassifyAgent) Supports() []string { return []string{KindClassify} }

func (a *ClassifyAgent) Handle(ctx context.Context, _ *agent.Context, req *agent.Request) *agent.Response {
	in, ok := req.Payload.(ClassifyInput)
	if !ok {
		return agent.ErrResponse(agent.CodeBadInput, "payload is not a classify input")
	}

	start := time.Now()
	result, err := a.classifier.Classify(ctx, in.Title, in.Host)
	if a.metrics != nil {
		a.metrics.RecordClassify(time.Since(start))
	}
	if err != nil {
		if a.metrics != nil {
			a.metrics.RecordClassifierError()
		}
		return agent.ErrResponse(agent.CodeLLMError, err.Error())
	}
	return agent.OKResponse(result)
}

// DecideAgent evaluates the policy precedence chain. Pure: everything the
// decision depends on arrives in the payload.
type DecideAgent struct{}

func (DecideAgent) Name() string       { return AgentPolicy }
func (DecideAgent) Supports() []string { return []string{KindDecide} }

func (DecideAgent) Handle(_ context.Context, _ *agent.Context, req *agent.Request) *agent.Response {
	in, ok := req.Payload.(policy.Input)
	if !ok {
		return agent.ErrResponse(agent.CodeBadInput, "payload is not a policy input")
	}
	return agent.OKResponse(policy.Evaluate(in))
}

// EnforceAgent applies a decision: on block or promptAppeal it opens an
// appeal session for the tab and signals its UI surface to present the
// dialog. Both actions enforce identically; only the reason differs, and
// the appeal path is the sole unblock mechanism.
type EnforceAgent struct {
	state    *state.Manager
	signaler TabSignaler
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// NewEnforceAgent builds the enforcement agent. metrics may be nil.
func NewEnforceAgent(st *state.Manager, sig TabSignaler, m *metrics.Collector, logger *slog.Logger) *EnforceAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnforceAgent{state: st, signaler: sig, metrics: m, logger: logger}
}

func (a *EnforceAgent) Name() string       { return AgentEnforce }
func (a *EnforceAgent) Supports() []string { return []string{KindApply} }

func (a *EnforceAgent) Handle(_ context.Context, ac *agent.Context, req *agent.Request) *agent.Response {
	in, ok := req.Payload.(EnforceInput)
	if !ok {
		return agent.ErrResponse(agent.CodeBadInput, "payload is not an enforce input")
	}

	if !in.Decision.Enforcing() {
		a.recordEnforcement("noop")
		return agent.OKResponse(EnforceOutcome{})
	}

	if !ac.HasTab() {
		a.recordEnforcement("no_tab")
		return agent.ErrResponse(agent.CodeNoTab, "no tab context for enforcement")
	}

	session := a.state.CreateAppealSession(ac.TabID, in.Host)
	if err := a.signaler.SignalTab(ac.TabID, Signal{
		Type:    SignalShowBlockModal,
		Payload: in.Page,
	}); err != nil {
		// The session stays open; the surface can reconnect and the next
		// capture will re-enforce.
		a.logger.Warn("block signal undeliverable", "tab", ac.TabID, "host", in.Host, "error", err)
		a.recordEnforcement("unreachable")
	} else {
		a.recordEnforcement("signaled")
	}

	return agent.OKResponse(EnforceOutcome{Enforced: true, SessionID: session.ID})
}

func (a *EnforceAgent) recordEnforcement(result string) {
	if a.metrics != nil {
		a.metrics.RecordEnforcement(result)
	}
}
