package classifier

import (
	"context"
	"errors"
	"testing"

	"spai-hq/gatekeeper/pkg/llm"
	"spai-hq/gatekeeper/pkg/policy"
)

// fakeChat replays a canned completion or error.
type fakeChat struct {
	content string
	err     error
	calls   int
	lastReq *llm.ChatRequest
}

func (f *fakeChat) Chat(_ context.Context, req *llm.ChatRequest) (string, error) {
	f.calls++
	f.lastReq = req
	return f.content, f.err
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name           string
		content        string
		wantLabel      policy.Label
		wantConfidence float64
		wantErr        bool
	}{
		{
			name:           "distract",
			content:        `{"label":"distract","confidence":0.92}`,
			wantLabel:      policy.LabelDistract,
			wantConfidence: 0.92,
		},
		{
			name:           "work",
			content:        `{"label":"work","confidence":0.8}`,
			wantLabel:      policy.LabelWork,
			wantConfidence: 0.8,
		},
		{
			name:           "neutral",
			content:        `{"label":"neutral","confidence":0.4}`,
			wantLabel:      policy.LabelNeutral,
			wantConfidence: 0.4,
		},
		{
			name:           "fenced json is unwrapped",
			content:        "```json\n{\"label\":\"work\",\"confidence\":0.7}\n```",
			wantLabel:      policy.LabelWork,
			wantConfidence: 0.7,
		},
		{
			name:           "label is case-insensitive",
			content:        `{"label":"Work","confidence":0.6}`,
			wantLabel:      policy.LabelWork,
			wantConfidence: 0.6,
		},
		{
			name:           "confidence clamped to unit interval",
			content:        `{"label":"distract","confidence":1.7}`,
			wantLabel:      policy.LabelDistract,
			wantConfidence: 1,
		},
		{
			name:    "unknown label",
			content: `{"label":"maybe","confidence":0.5}`,
			wantErr: true,
		},
		{
			name:    "prose instead of json",
			content: "This page looks distracting to me.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeChat{content: tt.content}
			c, err := New(Config{Client: fake})
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			result, err := c.Classify(context.Background(), "Some Page", "example.com")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if result.SchemaVersion != policy.ClassifierSchemaVersion {
				t.Errorf("schemaVersion = %d", result.SchemaVersion)
			}
			if result.Label != tt.wantLabel {
				t.Errorf("label = %q, want %q", result.Label, tt.wantLabel)
			}
			if result.Confidence != tt.wantConfidence {
				t.Errorf("confidence = %v, want %v", result.Confidence, tt.wantConfidence)
			}
		})
	}
}

func TestClassify_ChatError(t *testing.T) {
	fake := &fakeChat{err: errors.New("backend down")}
	c, err := New(Config{Client: fake})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Classify(context.Background(), "t", "h"); err == nil {
		t.Fatal("expected error")
	}
}

func TestClassify_Deterministic(t *testing.T) {
	fake := &fakeChat{content: `{"label":"distract","confidence":0.99}`}
	c, err := New(Config{Client: fake, Deterministic: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := c.Classify(context.Background(), "t", "h")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if fake.calls != 0 {
		t.Errorf("deterministic mode made %d LLM calls", fake.calls)
	}
	if result.Label != policy.LabelNeutral || result.Confidence != 0 {
		t.Errorf("result = %+v, want neutral with zero confidence", result)
	}
}

func TestNew_RequiresClient(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for missing client")
	}
	if _, err := New(Config{Deterministic: true}); err != nil {
		t.Fatalf("deterministic mode should not need a client: %v", err)
	}
}

func TestClassify_RequestShape(t *testing.T) {
	fake := &fakeChat{content: `{"label":"neutral","confidence":0.1}`}
	c, err := New(Config{Client: fake, Model: "tiny-model"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Classify(context.Background(), "My Title", "news.example.com"); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if fake.lastReq.Model != "tiny-model" {
		t.Errorf("model = %q", fake.lastReq.Model)
	}
	if len(fake.lastReq.Messages) != 2 {
		t.Fatalf("got %d messages, want system + user", len(fake.lastReq.Messages))
	}
	if fake.lastReq.Messages[0].Role != llm.RoleSystem {
		t.Errorf("first message role = %q", fake.lastReq.Messages[0].Role)
	}
	if got := fake.lastReq.Messages[1].Content; got != "Title: My Title | Host: news.example.com" {
		t.Errorf("user message = %q", got)
	}
}
