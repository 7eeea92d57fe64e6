package statustext

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"", "Preparing analysis"},
		{"   ", "Preparing analysis"},
		{"Initializing analysis", "Preparing analysis"},
		{"Searching for sessions in last 3 hours (window 1/6)", "Searching conversations: window 1 of 6 (last 3 hours)"},
		{"Found 42 sessions", "Found 42 conversations"},
		{"Found 1 session", "Found 1 conversation"},
		{"Processing discovery batch 2/3 (5 sessions)", "Discovering conversation patterns: batch 2 of 3"},
		{"Taxonomy discovery complete", "Conversation patterns discovered"},
		{"Starting parallel processing with 4 streams", "Analyzing conversations in parallel"},
		{"Processing round 2/5 across 4 streams", "Analyzing conversations: round 2 of 5"},
		{"Resolving conflicts for round 2/5", "Reconciling labels: round 2 of 5"},
		{"Generating summary", "Writing summary"},
		{"Analysis complete", "Analysis complete"},
		{"No sessions found in selected time range", "No conversations found in the selected time range"},
		{"Analysis cancelled by user", "Analysis cancelled"},
		{"Running discovery", "Discovering conversation patterns"},
		{"Merging conflict labels", "Reconciling labels"},
		{"Stream 3 waiting", "Analyzing conversations"},
		{"Window search widened", "Searching conversations"},
		{"Summary pending", "Writing summary"},
		{"Upstream failure", "Analysis failed"},
		{"Warming up", "Warming up"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.raw); got != tc.want {
			t.Fatalf("Normalize(%q)=%q want %q", tc.raw, got, tc.want)
		}
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"Initializing analysis",
		"Searching for sessions in last 6 days (window 6/6)",
		"Found 7 sessions",
		"Processing discovery batch 1/1 (5 sessions)",
		"Processing round 4/9 across 2 streams",
		"Resolving conflicts for round 4/9",
		"Starting parallel processing with 4 streams",
		"No sessions found in selected time range",
		"Analysis cancelled by user",
		"Found 1 session",
		"Analyzing conversations in parallel",
		"Something unrelated",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Fatalf("not idempotent for %q: %q -> %q", in, once, twice)
		}
	}
}

func TestNormalizeIsOrderIndependent(t *testing.T) {
	const raw = "Processing discovery batch 2/3 (5 sessions)"
	first := Normalize(raw)
	Normalize("Processing round 9/9 across 4 streams")
	Normalize("Processing discovery batch 7/8 (10 sessions)")
	if got := Normalize(raw); got != first || got != "Discovering conversation patterns: batch 2 of 3" {
		t.Fatalf("unexpected %q (first %q)", got, first)
	}
}

func TestNormalizeWithTrace(t *testing.T) {
	var stages []Stage
	trace := func(_, _ string, s Stage) { stages = append(stages, s) }
	NormalizeWithTrace("", trace)
	NormalizeWithTrace("Generating summary", trace)
	NormalizeWithTrace("Writing summary", trace)
	NormalizeWithTrace("Processing round 1/2 across 2 streams", trace)
	NormalizeWithTrace("round robin", trace)
	NormalizeWithTrace("hello", trace)
	want := []Stage{StageEmpty, StageDirect, StageCanonical, StagePattern, StageKeyword, StageIdentity}
	if len(stages) != len(want) {
		t.Fatalf("stages=%v", stages)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("stage %d = %s want %s", i, stages[i], want[i])
		}
	}
}
