package analyses

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"autoanalyze-backend/internal/llm"
)

const (
	MinSessionCount      = 5
	MaxSessionCount      = 1000
	maxAdditionalContext = 2000
)

var apiKeyPattern = regexp.MustCompile(`^sk-[A-Za-z0-9_-]{20,}$`)

// ValidateConfig checks cfg against now and returns the UTC start timestamp.
// The first failing constraint is reported.
func ValidateConfig(cfg AnalysisConfig, now time.Time) (time.Time, error) {
	now = now.UTC()
	if cfg.SessionCount < MinSessionCount || cfg.SessionCount > MaxSessionCount {
		return time.Time{}, &ValidationError{
			Field:   "sessionCount",
			Issue:   "out_of_range",
			Message: fmt.Sprintf("sessionCount must be between %d and %d", MinSessionCount, MaxSessionCount),
		}
	}
	if !apiKeyPattern.MatchString(strings.TrimSpace(cfg.APIKey)) {
		return time.Time{}, &ValidationError{
			Field:   "apiKey",
			Issue:   "invalid_format",
			Message: "apiKey must look like sk-...",
		}
	}
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(cfg.StartDate), time.UTC)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "startDate", Issue: "invalid_format", Message: "startDate must be YYYY-MM-DD"}
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if day.After(today) {
		return time.Time{}, &ValidationError{Field: "startDate", Issue: "in_future", Message: "startDate must not be in the future"}
	}
	clock, ok := parseClock(strings.TrimSpace(cfg.StartTime))
	if !ok {
		return time.Time{}, &ValidationError{Field: "startTime", Issue: "invalid_format", Message: "startTime must be HH:MM or HH:MM:SS"}
	}
	start := day.Add(clock)
	if !start.Before(now) {
		return time.Time{}, &ValidationError{Field: "startTime", Issue: "not_in_past", Message: "start must be in the past"}
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		return time.Time{}, &ValidationError{Field: "modelId", Issue: "required", Message: "modelId is required"}
	}
	if !llm.KnownModel(cfg.ModelID) {
		return time.Time{}, &ValidationError{
			Field:   "modelId",
			Issue:   "unsupported",
			Message: fmt.Sprintf("modelId must be one of %s", strings.Join(llm.Models(), ", ")),
		}
	}
	if utf8.RuneCountInString(cfg.AdditionalContext) > maxAdditionalContext {
		return time.Time{}, &ValidationError{
			Field:   "additionalContext",
			Issue:   "too_long",
			Message: fmt.Sprintf("additionalContext must be at most %d characters", maxAdditionalContext),
		}
	}
	return start, nil
}

func parseClock(raw string) (time.Duration, bool) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second, true
		}
	}
	return 0, false
}
