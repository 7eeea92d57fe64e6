package llm

import (
	"sort"
	"strings"
)

// Price is USD per one million tokens.
type Price struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

var pricing = map[string]Price{
	"gpt-4o-mini":                {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"gpt-4o":                     {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"gpt-4.1":                    {InputPerMillion: 2.00, OutputPerMillion: 8.00},
	"gpt-4.1-mini":               {InputPerMillion: 0.40, OutputPerMillion: 1.60},
	"gpt-4.1-nano":               {InputPerMillion: 0.10, OutputPerMillion: 0.40},
	"gpt-5-mini":                 {InputPerMillion: 0.25, OutputPerMillion: 2.00},
	"claude-3-5-haiku-latest":    {InputPerMillion: 0.80, OutputPerMillion: 4.00},
	"claude-3-5-sonnet-latest":   {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-sonnet-4-20250514":   {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-3-7-sonnet-20250219": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
}

// KnownModel reports whether model has a pricing entry.
func KnownModel(model string) bool {
	_, ok := pricing[strings.ToLower(strings.TrimSpace(model))]
	return ok
}

// Models returns the supported model identifiers.
func Models() []string {
	out := make([]string, 0, len(pricing))
	for m := range pricing {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// EstimateCost returns the USD cost of usage on model; unknown models cost 0.
func EstimateCost(model string, usage Usage) float64 {
	p, ok := pricing[strings.ToLower(strings.TrimSpace(model))]
	if !ok {
		return 0
	}
	return float64(usage.PromptTokens)/1e6*p.InputPerMillion +
		float64(usage.CompletionTokens)/1e6*p.OutputPerMillion
}
