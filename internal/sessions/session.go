// Package sessions provides read access to chatbot conversation sessions
// held by the external session API.
package sessions

import (
	"context"
	"errors"
	"time"
)

// Message is one turn in a conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a single chatbot conversation.
type Session struct {
	ID        string            `json:"sessionId"`
	UserID    string            `json:"userId,omitempty"`
	StartTime time.Time         `json:"startTime"`
	EndTime   time.Time         `json:"endTime,omitempty"`
	Messages  []Message         `json:"messages"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Source lists sessions whose start time falls in [start, end).
type Source interface {
	ListSessions(ctx context.Context, start, end time.Time) ([]Session, error)
}

// ErrSourceUnavailable is returned when no session API is configured.
var ErrSourceUnavailable = errors.New("session source not configured")
