package analyses

import (
	"sort"

	"autoanalyze-backend/internal/facts"
)

const narrativeTopN = 10

func buildSummary(items []facts.SessionWithFacts) Summary {
	intents := map[string]int{}
	reasons := map[string]int{}
	dropOffs := map[string]int{}
	s := Summary{TotalSessions: len(items)}
	for _, it := range items {
		switch it.Facts.SessionOutcome {
		case facts.OutcomeContained:
			s.Contained++
		case facts.OutcomeTransfer:
			s.Transferred++
		}
		count(intents, it.Facts.GeneralIntent)
		count(reasons, it.Facts.TransferReason)
		count(dropOffs, it.Facts.DropOffLocation)
	}
	if s.TotalSessions > 0 {
		s.ContainmentRate = float64(s.Contained) / float64(s.TotalSessions)
	}
	s.Intents = ranked(intents)
	s.TransferReasons = ranked(reasons)
	s.DropOffLocations = ranked(dropOffs)
	return s
}

func summaryInput(s Summary, additionalContext string) facts.SummaryInput {
	return facts.SummaryInput{
		TotalSessions:      s.TotalSessions,
		Contained:          s.Contained,
		Transferred:        s.Transferred,
		TopIntents:         top(s.Intents, narrativeTopN),
		TopTransferReasons: top(s.TransferReasons, narrativeTopN),
		TopDropOffs:        top(s.DropOffLocations, narrativeTopN),
		AdditionalContext:  additionalContext,
	}
}

func count(m map[string]int, label string) {
	if label == "" {
		return
	}
	m[label]++
}

// ranked orders by count descending, then label.
func ranked(m map[string]int) []CountEntry {
	out := make([]CountEntry, 0, len(m))
	for label, n := range m {
		out = append(out, CountEntry{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

func top(entries []CountEntry, n int) []CountEntry {
	if len(entries) <= n {
		return entries
	}
	return entries[:n]
}
