package llm

import (
	"context"
	"errors"
	"strings"
)

// Client abstracts LLM providers used by the fact extractor.
type Client interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// Request is a single system+user prompt.
type Request struct {
	System    string
	User      string
	JSON      bool // ask the provider for a JSON object response
	MaxTokens int
}

// Usage is the token accounting reported by a provider.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Total returns prompt plus completion tokens.
func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// Completion is the provider response.
type Completion struct {
	Content string
	Model   string
	Usage   Usage
}

// Provider identifies which backend serves a model.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// ProviderFor returns the provider that serves model.
func ProviderFor(model string) Provider {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "claude") {
		return ProviderAnthropic
	}
	return ProviderOpenAI
}

// ErrEmptyResponse is returned when a provider answers without content.
var ErrEmptyResponse = errors.New("llm response empty content")
