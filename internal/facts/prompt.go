package facts

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"autoanalyze-backend/internal/sessions"
)

const (
	maxMessagesPerSession = 40
	maxMessageChars       = 600
)

const extractSystemPrompt = `You analyze chatbot conversations for a customer support team.
For every session return one entry with:
- generalIntent: short title-case phrase naming what the user wanted
- sessionOutcome: "Contained" if the bot resolved it, "Transfer" if it was handed to a human
- transferReason: why it was transferred (empty when Contained)
- dropOffLocation: the point in the flow where the user left or was transferred (empty if unknown)
- notes: one sentence of supporting detail
Reuse an existing label whenever one fits; only invent a new label when none applies.
Respond with JSON: {"sessions":[{"sessionId":"...","generalIntent":"...","sessionOutcome":"...","transferReason":"...","dropOffLocation":"...","notes":"..."}]}`

const summarySystemPrompt = `You write concise executive summaries of chatbot performance for support leads.
Use plain prose, at most three short paragraphs. Mention containment, the dominant intents, and the main transfer drivers.`

func buildExtractPrompt(b Batch) string {
	var sb strings.Builder
	if ctx := strings.TrimSpace(b.AdditionalContext); ctx != "" {
		sb.WriteString("Business context:\n")
		sb.WriteString(ctx)
		sb.WriteString("\n\n")
	}
	writeLabels(&sb, "Existing intents", b.Known.Intents)
	writeLabels(&sb, "Existing transfer reasons", b.Known.TransferReasons)
	writeLabels(&sb, "Existing drop-off locations", b.Known.DropOffLocations)

	fmt.Fprintf(&sb, "Sessions (%d):\n", len(b.Sessions))
	for _, s := range b.Sessions {
		writeTranscript(&sb, s)
	}
	return sb.String()
}

func writeLabels(sb *strings.Builder, title string, labels []string) {
	if len(labels) == 0 {
		return
	}
	sb.WriteString(title)
	sb.WriteString(": ")
	sb.WriteString(strings.Join(labels, "; "))
	sb.WriteString("\n")
}

func writeTranscript(sb *strings.Builder, s sessions.Session) {
	fmt.Fprintf(sb, "\n=== sessionId: %s ===\n", s.ID)
	msgs := s.Messages
	if len(msgs) > maxMessagesPerSession {
		msgs = msgs[len(msgs)-maxMessagesPerSession:]
		fmt.Fprintf(sb, "[%d earlier messages omitted]\n", len(s.Messages)-maxMessagesPerSession)
	}
	for _, m := range msgs {
		fmt.Fprintf(sb, "%s: %s\n", m.Role, clip(m.Content, maxMessageChars))
	}
}

func buildSummaryPrompt(in SummaryInput) string {
	var sb strings.Builder
	if ctx := strings.TrimSpace(in.AdditionalContext); ctx != "" {
		fmt.Fprintf(&sb, "Business context:\n%s\n\n", ctx)
	}
	fmt.Fprintf(&sb, "Sessions analyzed: %d\nContained: %d\nTransferred: %d\n", in.TotalSessions, in.Contained, in.Transferred)
	writeCounts(&sb, "Top intents", in.TopIntents)
	writeCounts(&sb, "Top transfer reasons", in.TopTransferReasons)
	writeCounts(&sb, "Top drop-off locations", in.TopDropOffs)
	return sb.String()
}

func writeCounts(sb *strings.Builder, title string, counts []LabelCount) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s:\n", title)
	for _, c := range counts {
		fmt.Fprintf(sb, "- %s: %d\n", c.Label, c.Count)
	}
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
