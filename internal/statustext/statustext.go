// Package statustext maps internal progress steps to stable display phrases.
// Output is for display only and never drives control flow.
package statustext

import (
	"regexp"
	"strings"
)

const placeholder = "Preparing analysis"

// Stage names the rule that produced a display phrase.
type Stage string

const (
	StageEmpty     Stage = "empty"
	StageCanonical Stage = "canonical"
	StageDirect    Stage = "direct"
	StagePattern   Stage = "pattern"
	StageKeyword   Stage = "keyword"
	StageIdentity  Stage = "identity"
)

// TraceFunc receives every normalization decision.
type TraceFunc func(raw, display string, stage Stage)

var direct = map[string]string{
	"Initializing analysis":                    placeholder,
	"Starting analysis":                        placeholder,
	"Taxonomy discovery complete":              "Conversation patterns discovered",
	"Generating summary":                       "Writing summary",
	"Analysis complete":                        "Analysis complete",
	"No sessions found in selected time range": "No conversations found in the selected time range",
	"Analysis cancelled by user":               "Analysis cancelled",
	"Analysis cancelled":                       "Analysis cancelled",
}

type template struct {
	re     *regexp.Regexp
	render func(m []string) string
}

var templates = []template{
	{
		re: regexp.MustCompile(`(?i)^searching for sessions in (.+?) \(window (\d+)/(\d+)\)$`),
		render: func(m []string) string {
			return "Searching conversations: window " + m[2] + " of " + m[3] + " (" + m[1] + ")"
		},
	},
	{
		re: regexp.MustCompile(`(?i)^found (\d+) sessions?$`),
		render: func(m []string) string {
			if m[1] == "1" {
				return "Found 1 conversation"
			}
			return "Found " + m[1] + " conversations"
		},
	},
	{
		re: regexp.MustCompile(`(?i)^processing discovery batch (\d+)/(\d+)`),
		render: func(m []string) string {
			return "Discovering conversation patterns: batch " + m[1] + " of " + m[2]
		},
	},
	{
		re:     regexp.MustCompile(`(?i)^starting parallel processing with \d+ streams?$`),
		render: func([]string) string { return "Analyzing conversations in parallel" },
	},
	{
		re:     regexp.MustCompile(`(?i)^processing round (\d+)/(\d+)`),
		render: func(m []string) string { return "Analyzing conversations: round " + m[1] + " of " + m[2] },
	},
	{
		re:     regexp.MustCompile(`(?i)^resolving conflicts for round (\d+)/(\d+)`),
		render: func(m []string) string { return "Reconciling labels: round " + m[1] + " of " + m[2] },
	},
}

// Canonical display forms that templates emit, so normalized text maps to itself.
var canonicalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^Searching conversations: window \d+ of \d+ \(.+\)$`),
	regexp.MustCompile(`^Found \d+ conversations?$`),
	regexp.MustCompile(`^Discovering conversation patterns: batch \d+ of \d+$`),
	regexp.MustCompile(`^Analyzing conversations: round \d+ of \d+$`),
	regexp.MustCompile(`^Reconciling labels: round \d+ of \d+$`),
}

type keyword struct {
	words   []string
	display string
}

// Checked in order; the first hit wins.
var keywords = []keyword{
	{[]string{"cancel"}, "Analysis cancelled"},
	{[]string{"error", "fail"}, "Analysis failed"},
	{[]string{"discovery", "discover"}, "Discovering conversation patterns"},
	{[]string{"conflict"}, "Reconciling labels"},
	{[]string{"round", "stream", "parallel"}, "Analyzing conversations"},
	{[]string{"sampling", "search", "window"}, "Searching conversations"},
	{[]string{"summary"}, "Writing summary"},
}

var canonical = func() map[string]struct{} {
	out := map[string]struct{}{
		"Analysis failed":                     {},
		"Analyzing conversations in parallel": {},
	}
	for _, v := range direct {
		out[v] = struct{}{}
	}
	for _, k := range keywords {
		out[k.display] = struct{}{}
	}
	return out
}()

// Normalize returns the display phrase for raw.
func Normalize(raw string) string {
	return NormalizeWithTrace(raw, nil)
}

// NormalizeWithTrace is Normalize with an optional trace hook.
func NormalizeWithTrace(raw string, trace TraceFunc) string {
	display, stage := resolve(raw)
	if trace != nil {
		trace(raw, display, stage)
	}
	return display
}

func resolve(raw string) (string, Stage) {
	step := strings.TrimSpace(raw)
	if step == "" {
		return placeholder, StageEmpty
	}
	if _, ok := canonical[step]; ok {
		return step, StageCanonical
	}
	for _, re := range canonicalPatterns {
		if re.MatchString(step) {
			return step, StageCanonical
		}
	}
	if v, ok := direct[step]; ok {
		return v, StageDirect
	}
	for _, t := range templates {
		if m := t.re.FindStringSubmatch(step); m != nil {
			return t.render(m), StagePattern
		}
	}
	lower := strings.ToLower(step)
	for _, k := range keywords {
		for _, w := range k.words {
			if strings.Contains(lower, w) {
				return k.display, StageKeyword
			}
		}
	}
	return step, StageIdentity
}
