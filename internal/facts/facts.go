// Package facts adapts an LLM into the fact extractor used by the analysis
// engine: sessions go in, per-session classification facts and token/cost
// accounting come out.
package facts

import (
	"context"
	"time"

	"autoanalyze-backend/internal/llm"
	"autoanalyze-backend/internal/sessions"
)

// Session outcomes.
const (
	OutcomeContained = "Contained"
	OutcomeTransfer  = "Transfer"
)

// Facts is the classification assigned to one session.
type Facts struct {
	GeneralIntent   string `json:"generalIntent"`
	SessionOutcome  string `json:"sessionOutcome"`
	TransferReason  string `json:"transferReason"`
	DropOffLocation string `json:"dropOffLocation"`
	Notes           string `json:"notes"`
}

// Metadata records how and when facts were produced.
type Metadata struct {
	TokensUsed       int       `json:"tokensUsed"`
	ProcessingTimeMs int64     `json:"processingTime"`
	BatchID          string    `json:"batchId"`
	Round            int       `json:"round"`
	Stream           int       `json:"stream"`
	Timestamp        time.Time `json:"timestamp"`
	Model            string    `json:"model"`
}

// SessionWithFacts is a session plus its facts.
type SessionWithFacts struct {
	Session  sessions.Session `json:"session"`
	Facts    Facts            `json:"facts"`
	Metadata Metadata         `json:"analysisMetadata"`
}

// Labels are the taxonomy values known when a batch is sent.
type Labels struct {
	Intents          []string `json:"intents"`
	TransferReasons  []string `json:"transferReasons"`
	DropOffLocations []string `json:"dropOffLocations"`
}

// Batch is one extractor call.
type Batch struct {
	Sessions          []sessions.Session
	Known             Labels
	AdditionalContext string
	BatchID           string
	Round             int
	Stream            int
}

// BatchResult is the outcome of one extractor call.
type BatchResult struct {
	Sessions []SessionWithFacts
	Missing  []string // session ids the model returned no facts for
	Usage    llm.Usage
	Cost     float64
}

// LabelCount is a label and how many sessions carry it.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// SummaryInput carries aggregate statistics for the narrative summary.
type SummaryInput struct {
	TotalSessions      int
	Contained          int
	Transferred        int
	TopIntents         []LabelCount
	TopTransferReasons []LabelCount
	TopDropOffs        []LabelCount
	AdditionalContext  string
}

// SummaryResult is the narrative summary plus accounting.
type SummaryResult struct {
	Text  string
	Usage llm.Usage
	Cost  float64
}

// Extractor labels batches of sessions.
type Extractor interface {
	ExtractFacts(ctx context.Context, batch Batch) (BatchResult, error)
	Summarize(ctx context.Context, in SummaryInput) (SummaryResult, error)
}
