package facts

import (
	"fmt"
	"time"

	"autoanalyze-backend/internal/llm"
	"autoanalyze-backend/internal/llm/anthropic"
	"autoanalyze-backend/internal/llm/openai"
)

// NewClient builds the provider client serving model, wrapped with a single transient retry.
func NewClient(model, apiKey, analysisID string, timeout time.Duration) (llm.Client, error) {
	var (
		client llm.Client
		err    error
	)
	switch llm.ProviderFor(model) {
	case llm.ProviderAnthropic:
		client, err = anthropic.NewClient(apiKey, model)
	case llm.ProviderOpenAI:
		client, err = openai.NewClient(apiKey, model, timeout)
	default:
		return nil, fmt.Errorf("unsupported model %q", model)
	}
	if err != nil {
		return nil, err
	}
	return llm.WithRetry(client, analysisID), nil
}
