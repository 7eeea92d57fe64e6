// Package anthropic serves claude-* models through langchaingo.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	lcanthropic "github.com/tmc/langchaingo/llms/anthropic"

	"autoanalyze-backend/internal/llm"
	"autoanalyze-backend/internal/shared/telemetry"
)

const defaultMaxTokens = 4096

// Client implements llm.Client on top of a langchaingo model.
type Client struct {
	model llms.Model
	name  string
}

// NewClient constructs an Anthropic-backed client.
func NewClient(apiKey, model string) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("anthropic model is required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	m, err := lcanthropic.New(
		lcanthropic.WithToken(apiKey),
		lcanthropic.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create anthropic model: %w", err)
	}
	return New(m, model), nil
}

// New wraps an existing langchaingo model.
func New(model llms.Model, name string) *Client {
	return &Client{model: model, name: name}
}

// Complete sends one system+user exchange.
func (c *Client) Complete(ctx context.Context, in llm.Request) (llm.Completion, error) {
	messages := make([]llms.MessageContent, 0, 2)
	system := in.System
	if in.JSON {
		system = strings.TrimSpace(system + "\nRespond with a single JSON object and nothing else.")
	}
	if system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, in.User))

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	resp, err := c.model.GenerateContent(ctx, messages,
		llms.WithTemperature(0),
		llms.WithMaxTokens(maxTokens),
	)
	if err != nil {
		return llm.Completion{}, fmt.Errorf("anthropic generate: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return llm.Completion{}, fmt.Errorf("anthropic response missing choices")
	}

	choice := resp.Choices[0]
	content := strings.TrimSpace(choice.Content)
	if content == "" {
		return llm.Completion{}, llm.ErrEmptyResponse
	}
	usage := llm.Usage{
		PromptTokens:     intFromInfo(choice.GenerationInfo, "InputTokens"),
		CompletionTokens: intFromInfo(choice.GenerationInfo, "OutputTokens"),
	}
	telemetry.Debug("llm.response", map[string]any{
		"provider":          "anthropic",
		"model":             c.name,
		"prompt_tokens":     usage.PromptTokens,
		"completion_tokens": usage.CompletionTokens,
	})
	return llm.Completion{Content: stripFences(content), Model: c.name, Usage: usage}, nil
}

func intFromInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// stripFences removes a ```json fence some models wrap around JSON output.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

var _ llm.Client = (*Client)(nil)
