package analyses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"autoanalyze-backend/internal/sessions"
)

var (
	ErrNotFound = errors.New("analysis not found")
	ErrNotReady = errors.New("analysis results not ready")
)

const (
	ErrorCodeValidation = "VALIDATION_ERROR"
	ErrorCodeUpstream   = "UPSTREAM_ERROR"
	ErrorCodeLLMTimeout = "LLM_TIMEOUT"
	ErrorCodeCancelled  = "CANCELLED"
	ErrorCodeInternal   = "INTERNAL_ERROR"
)

const (
	msgFailed          = "Analysis failed"
	msgCancelled       = "Analysis cancelled by user"
	msgShutdown        = "Analysis cancelled: server shutting down"
	msgNoSessionsFound = "No sessions found in selected time range"
)

// ValidationError reports the first invalid field of an AnalysisConfig.
type ValidationError struct {
	Field   string
	Issue   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s: %s", e.Field, e.Issue, e.Message)
}

// UpstreamError wraps a failure of the session source or the extractor.
type UpstreamError struct {
	Stage string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// NotReadyError carries the reason results cannot be served yet.
type NotReadyError struct {
	Phase  Phase
	Reason string
}

func (e *NotReadyError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("analysis results not ready (phase %s): %s", e.Phase, e.Reason)
	}
	return fmt.Sprintf("analysis results not ready (phase %s)", e.Phase)
}

func (e *NotReadyError) Is(target error) bool { return target == ErrNotReady }

func classifyFailure(err error) string {
	if err == nil {
		return ErrorCodeInternal
	}
	if errors.Is(err, context.Canceled) {
		return ErrorCodeCancelled
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ErrorCodeValidation
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		if llmStage(ue.Stage) && isTimeout(err) {
			return ErrorCodeLLMTimeout
		}
		return ErrorCodeUpstream
	}
	if errors.Is(err, sessions.ErrSourceUnavailable) {
		return ErrorCodeUpstream
	}
	return ErrorCodeInternal
}

// llmStage reports whether stage failures come from extractor calls.
func llmStage(stage string) bool {
	switch Phase(strings.SplitN(stage, " ", 2)[0]) {
	case PhaseDiscovery, PhaseParallel, PhaseSummary:
		return true
	default:
		return false
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return msg
}
