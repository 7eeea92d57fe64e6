package anthropic

import (
	"context"
	"errors"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"autoanalyze-backend/internal/llm"
)

type fakeModel struct {
	resp     *llms.ContentResponse
	err      error
	messages []llms.MessageContent
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	_ = ctx
	_ = options
	f.messages = messages
	return f.resp, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestCompleteReadsUsageAndStripsFences(t *testing.T) {
	model := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:        "```json\n{\"sessions\":[]}\n```",
		GenerationInfo: map[string]any{"InputTokens": 120, "OutputTokens": 30},
	}}}}
	client := New(model, "claude-3-5-haiku-latest")

	resp, err := client.Complete(context.Background(), llm.Request{System: "sys", User: "user", JSON: true})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != `{"sessions":[]}` {
		t.Fatalf("unexpected content %q", resp.Content)
	}
	if resp.Usage.PromptTokens != 120 || resp.Usage.CompletionTokens != 30 {
		t.Fatalf("unexpected usage %+v", resp.Usage)
	}
	if len(model.messages) != 2 || model.messages[0].Role != llms.ChatMessageTypeSystem {
		t.Fatalf("expected system + human messages, got %#v", model.messages)
	}
}

func TestCompleteWrapsProviderError(t *testing.T) {
	client := New(&fakeModel{err: errors.New("overloaded")}, "claude-3-5-haiku-latest")
	_, err := client.Complete(context.Background(), llm.Request{User: "u"})
	if err == nil || !llm.ShouldRetry(err) {
		t.Fatalf("expected retryable wrapped error, got %v", err)
	}
}

func TestCompleteEmptyContent(t *testing.T) {
	client := New(&fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "  "}}}}, "claude")
	if _, err := client.Complete(context.Background(), llm.Request{User: "u"}); !errors.Is(err, llm.ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}
