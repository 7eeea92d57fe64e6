package analyses

import (
	"time"

	"autoanalyze-backend/internal/facts"
)

// Phase is one stage of the job lifecycle.
type Phase string

const (
	PhaseSampling  Phase = "sampling"
	PhaseDiscovery Phase = "discovery"
	PhaseParallel  Phase = "parallel_processing"
	PhaseConflicts Phase = "conflict_resolution"
	PhaseSummary   Phase = "generating_summary"
	PhaseComplete  Phase = "complete"
	PhaseError     Phase = "error"
)

var phaseOrder = map[Phase]int{
	PhaseSampling:  0,
	PhaseDiscovery: 1,
	PhaseParallel:  2,
	PhaseConflicts: 3,
	PhaseSummary:   4,
	PhaseComplete:  5,
}

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseError
}

// AnalysisConfig is the client request that starts a job.
type AnalysisConfig struct {
	StartDate         string `json:"startDate"`
	StartTime         string `json:"startTime"`
	SessionCount      int    `json:"sessionCount"`
	ModelID           string `json:"modelId"`
	APIKey            string `json:"apiKey,omitempty"`
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// redacted drops the credential so the config can be stored and echoed.
func (c AnalysisConfig) redacted() AnalysisConfig {
	c.APIKey = ""
	return c
}

type SamplingProgress struct {
	WindowIndex  int    `json:"windowIndex"`
	TotalWindows int    `json:"totalWindows"`
	WindowLabel  string `json:"windowLabel"`
	TargetCount  int    `json:"targetCount"`
}

type DiscoveryStats struct {
	Intents          int     `json:"intents"`
	TransferReasons  int     `json:"transferReasons"`
	DropOffLocations int     `json:"dropOffLocations"`
	DiscoveryRate    float64 `json:"discoveryRate"`
}

type ConflictStats struct {
	ConflictsFound    int `json:"conflictsFound"`
	ConflictsResolved int `json:"conflictsResolved"`
	CanonicalMappings int `json:"canonicalMappings"`
}

// Progress is the authoritative progress record of a job.
type Progress struct {
	Phase             Phase             `json:"phase"`
	CurrentStep       string            `json:"currentStep"`
	SessionsFound     int               `json:"sessionsFound"`
	SessionsProcessed int               `json:"sessionsProcessed"`
	SessionsSkipped   int               `json:"sessionsSkipped"`
	TotalSessions     int               `json:"totalSessions"`
	TokensUsed        int               `json:"tokensUsed"`
	EstimatedCost     float64           `json:"estimatedCost"`
	SamplingProgress  *SamplingProgress `json:"samplingProgress,omitempty"`
	DiscoveryStats    *DiscoveryStats   `json:"discoveryStats,omitempty"`
	RoundsCompleted   int               `json:"roundsCompleted"`
	TotalRounds       int               `json:"totalRounds"`
	StreamsActive     int               `json:"streamsActive"`
	ConflictStats     *ConflictStats    `json:"conflictStats,omitempty"`
	StartTime         time.Time         `json:"startTime"`
	EndTime           *time.Time        `json:"endTime,omitempty"`
	Error             string            `json:"error,omitempty"`
	ErrorCode         string            `json:"errorCode,omitempty"`
}

func (p Progress) clone() Progress {
	out := p
	if p.SamplingProgress != nil {
		v := *p.SamplingProgress
		out.SamplingProgress = &v
	}
	if p.DiscoveryStats != nil {
		v := *p.DiscoveryStats
		out.DiscoveryStats = &v
	}
	if p.ConflictStats != nil {
		v := *p.ConflictStats
		out.ConflictStats = &v
	}
	if p.EndTime != nil {
		v := *p.EndTime
		out.EndTime = &v
	}
	return out
}

// ProgressView is what a poll returns: the record plus display fields.
type ProgressView struct {
	AnalysisID string `json:"analysisId"`
	Progress
	Percent    int    `json:"progressPercentage"`
	StatusText string `json:"statusText"`
}

// CountEntry is one row of a summary breakdown.
type CountEntry = facts.LabelCount

// Summary aggregates the labelled sessions.
type Summary struct {
	TotalSessions    int          `json:"totalSessions"`
	Contained        int          `json:"contained"`
	Transferred      int          `json:"transferred"`
	ContainmentRate  float64      `json:"containmentRate"`
	Intents          []CountEntry `json:"intents"`
	TransferReasons  []CountEntry `json:"transferReasons"`
	DropOffLocations []CountEntry `json:"dropOffLocations"`
	Narrative        string       `json:"narrative,omitempty"`
}

// Results is the payload of a completed job.
type Results struct {
	AnalysisID      string                   `json:"analysisId"`
	Sessions        []facts.SessionWithFacts `json:"sessions"`
	Taxonomy        facts.Labels             `json:"taxonomy"`
	Summary         *Summary                 `json:"summary,omitempty"`
	NoSessionsFound bool                     `json:"noSessionsFound"`
	Message         string                   `json:"message,omitempty"`
	TokensUsed      int                      `json:"tokensUsed"`
	EstimatedCost   float64                  `json:"estimatedCost"`
	// SessionsSkipped counts sampled sessions left out because no facts came back.
	SessionsSkipped int `json:"sessionsSkipped"`
}

// Job is a snapshot of one analysis.
type Job struct {
	ID         string         `json:"analysisId"`
	Config     AnalysisConfig `json:"config"`
	Progress   Progress       `json:"progress"`
	MaxPercent int            `json:"maxPercent"`
	Results    *Results       `json:"results,omitempty"`
	RequestID  string         `json:"requestId,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}
