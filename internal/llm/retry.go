package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"autoanalyze-backend/internal/shared/telemetry"
)

const retryBaseDelay = 300 * time.Millisecond

type retryingClient struct {
	base       Client
	delay      time.Duration
	analysisID string
}

// WithRetry wraps base so a single transient failure is retried once.
func WithRetry(base Client, analysisID string) Client {
	if base == nil {
		return nil
	}
	return retryingClient{base: base, delay: retryBaseDelay, analysisID: analysisID}
}

func (r retryingClient) Complete(ctx context.Context, req Request) (Completion, error) {
	resp, err := r.base.Complete(ctx, req)
	if err == nil || !ShouldRetry(err) || ctx.Err() != nil {
		return resp, err
	}

	telemetry.Warn("llm.retry", map[string]any{
		"analysis_id": r.analysisID,
		"attempt":     1,
		"error":       err.Error(),
	})
	select {
	case <-time.After(r.delay):
	case <-ctx.Done():
		return Completion{}, ctx.Err()
	}
	return r.base.Complete(ctx, req)
}

// ShouldRetry reports whether err looks transient.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "http status 5") || strings.Contains(msg, "server_error") || strings.Contains(msg, "overloaded") {
		return true
	}
	if strings.Contains(msg, "http status 429") || strings.Contains(msg, "rate limit") {
		return true
	}
	if strings.Contains(msg, "timeout") && (strings.Contains(msg, "openai") || strings.Contains(msg, "llm") || strings.Contains(msg, "client.timeout")) {
		return true
	}
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "unexpected eof")
}
