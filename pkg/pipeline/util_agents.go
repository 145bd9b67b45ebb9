package pipeline

import (
	"context"
	"fmt"

	"spai-hq/gatekeeper/pkg/agent"
	"spai-hq/gatekeeper/pkg/llm"
)

// EchoAgent answers invocations with their own payload. Useful for
// exercising the dispatch path end to end.
type EchoAgent struct{}

func (EchoAgent) Name() string       { return "echo" }
func (EchoAgent) Supports() []string { return []string{"invoke", "echo"} }

func (EchoAgent) Handle(_ context.Context, _ *agent.Context, req *agent.Request) *agent.Response {
	if req.Kind == "echo" {
		return agent.OKResponse(req.Payload)
	}
	return agent.OKResponse(map[string]any{"message": "invoked", "input": req.Payload})
}

// SummarizeTitleAgent condenses a page title to one short sentence via the
// LLM backend. A generic "invoke" maps to "summarize" for convenience.
type SummarizeTitleAgent struct {
	client llm.Client
	model  string
}

// NewSummarizeTitleAgent builds the summarizer over an LLM client.
func NewSummarizeTitleAgent(client llm.Client, model string) *SummarizeTitleAgent {
	return &SummarizeTitleAgent{client: client, model: model}
}

func (a *SummarizeTitleAgent) Name() string       { return "summarizeTitle" }
func (a *SummarizeTitleAgent) Supports() []string { return []string{"summarize", "invoke"} }

func (a *SummarizeTitleAgent) Handle(ctx context.Context, _ *agent.Context, req *agent.Request) *agent.Response {
	if a.client == nil {
		return agent.ErrResponse(agent.CodeLLMError, "no LLM backend configured")
	}

	title := fmt.Sprintf("%v", req.Payload)
	content, err := a.client.Chat(ctx, &llm.ChatRequest{
		Model: a.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "Summarize the following page title in 1 short sentence."},
			{Role: llm.RoleUser, Content: title},
		},
	})
	if err != nil {
		return agent.ErrResponse(agent.CodeLLMError, err.Error())
	}
	return agent.OKResponse(map[string]any{"summary": content})
}
