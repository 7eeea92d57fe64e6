package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"autoanalyze-backend/internal/llm"
)

// LLMExtractor implements Extractor with an llm.Client.
type LLMExtractor struct {
	Client llm.Client
	Model  string
	Now    func() time.Time
}

// NewLLMExtractor constructs an LLMExtractor.
func NewLLMExtractor(client llm.Client, model string) *LLMExtractor {
	return &LLMExtractor{Client: client, Model: model, Now: time.Now}
}

type extractResponse struct {
	Sessions []struct {
		SessionID string `json:"sessionId"`
		Facts
	} `json:"sessions"`
}

// ExtractFacts labels every session in the batch with one LLM call.
func (e *LLMExtractor) ExtractFacts(ctx context.Context, batch Batch) (BatchResult, error) {
	if len(batch.Sessions) == 0 {
		return BatchResult{}, nil
	}
	if e.Client == nil {
		return BatchResult{}, fmt.Errorf("fact extractor: llm client not configured")
	}
	started := e.now()
	resp, err := e.Client.Complete(ctx, llm.Request{
		System: extractSystemPrompt,
		User:   buildExtractPrompt(batch),
		JSON:   true,
	})
	if err != nil {
		return BatchResult{}, fmt.Errorf("llm extract batch %s: %w", batch.BatchID, err)
	}
	elapsed := e.now().Sub(started)

	var parsed extractResponse
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return BatchResult{}, fmt.Errorf("llm output parse batch %s: %w", batch.BatchID, err)
	}

	byID := make(map[string]Facts, len(parsed.Sessions))
	for _, item := range parsed.Sessions {
		id := strings.TrimSpace(item.SessionID)
		if id == "" {
			continue
		}
		byID[id] = normalizeFacts(item.Facts)
	}

	result := BatchResult{
		Usage: resp.Usage,
		Cost:  llm.EstimateCost(e.Model, resp.Usage),
	}
	processed := 0
	for _, s := range batch.Sessions {
		if _, ok := byID[s.ID]; ok {
			processed++
		}
	}
	perSession := 0
	if processed > 0 {
		perSession = resp.Usage.Total() / processed
	}
	for _, s := range batch.Sessions {
		f, ok := byID[s.ID]
		if !ok {
			result.Missing = append(result.Missing, s.ID)
			continue
		}
		result.Sessions = append(result.Sessions, SessionWithFacts{
			Session: s,
			Facts:   f,
			Metadata: Metadata{
				TokensUsed:       perSession,
				ProcessingTimeMs: elapsed.Milliseconds(),
				BatchID:          batch.BatchID,
				Round:            batch.Round,
				Stream:           batch.Stream,
				Timestamp:        e.now().UTC(),
				Model:            e.Model,
			},
		})
	}
	return result, nil
}

// Summarize writes the narrative summary.
func (e *LLMExtractor) Summarize(ctx context.Context, in SummaryInput) (SummaryResult, error) {
	if e.Client == nil {
		return SummaryResult{}, fmt.Errorf("fact extractor: llm client not configured")
	}
	resp, err := e.Client.Complete(ctx, llm.Request{
		System:    summarySystemPrompt,
		User:      buildSummaryPrompt(in),
		MaxTokens: 800,
	})
	if err != nil {
		return SummaryResult{}, fmt.Errorf("llm summary: %w", err)
	}
	return SummaryResult{
		Text:  strings.TrimSpace(resp.Content),
		Usage: resp.Usage,
		Cost:  llm.EstimateCost(e.Model, resp.Usage),
	}, nil
}

func (e *LLMExtractor) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func normalizeFacts(f Facts) Facts {
	f.GeneralIntent = strings.TrimSpace(f.GeneralIntent)
	f.TransferReason = strings.TrimSpace(f.TransferReason)
	f.DropOffLocation = strings.TrimSpace(f.DropOffLocation)
	f.Notes = strings.TrimSpace(f.Notes)
	f.SessionOutcome = normalizeOutcome(f.SessionOutcome, f.TransferReason)
	if f.SessionOutcome == OutcomeContained {
		f.TransferReason = ""
	}
	return f
}

func normalizeOutcome(raw, transferReason string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(v, "transfer"), strings.Contains(v, "escalat"), strings.Contains(v, "handoff"), strings.Contains(v, "agent"):
		return OutcomeTransfer
	case v == "" && transferReason != "":
		return OutcomeTransfer
	default:
		return OutcomeContained
	}
}

var _ Extractor = (*LLMExtractor)(nil)
