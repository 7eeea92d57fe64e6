package analyses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"autoanalyze-backend/internal/sessions"
)

func TestClassifyFailure(t *testing.T) {
	sourceTimeout := fmt.Errorf("session api request: %w", context.DeadlineExceeded)
	llmTimeout := fmt.Errorf("openai request: %w", context.DeadlineExceeded)

	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ErrorCodeInternal},
		{name: "cancelled", err: context.Canceled, want: ErrorCodeCancelled},
		{name: "validation", err: &ValidationError{Field: "sessionCount", Issue: "out_of_range"}, want: ErrorCodeValidation},
		{name: "sampling timeout", err: &UpstreamError{Stage: "sampling", Err: sourceTimeout}, want: ErrorCodeUpstream},
		{name: "discovery timeout", err: &UpstreamError{Stage: "discovery", Err: llmTimeout}, want: ErrorCodeLLMTimeout},
		{name: "stream timeout", err: &UpstreamError{Stage: "parallel_processing", Err: llmTimeout}, want: ErrorCodeLLMTimeout},
		{name: "discovery failure", err: &UpstreamError{Stage: "discovery", Err: errors.New("model unavailable")}, want: ErrorCodeUpstream},
		{name: "source missing", err: sessions.ErrSourceUnavailable, want: ErrorCodeUpstream},
		{name: "bare deadline", err: context.DeadlineExceeded, want: ErrorCodeInternal},
		{name: "other", err: errors.New("boom"), want: ErrorCodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyFailure(tc.err); got != tc.want {
				t.Fatalf("classifyFailure(%v) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
}

func TestSanitizeErrorKeepsValidUTF8(t *testing.T) {
	msg := strings.Repeat("a", 499) + strings.Repeat("é", 10)
	got := sanitizeError(errors.New(msg))
	if !utf8.ValidString(got) {
		t.Fatalf("expected valid utf-8, got tail %q", got[len(got)-4:])
	}
	if len(got) != 499 {
		t.Fatalf("expected cut before the split rune, got len %d", len(got))
	}
}

func TestSanitizeErrorStripsNewlines(t *testing.T) {
	got := sanitizeError(errors.New("line one\nline two\r\n"))
	if got != "line one line two" {
		t.Fatalf("unexpected message %q", got)
	}
}
