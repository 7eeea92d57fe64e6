package sessions

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemorySource serves sessions from memory and is safe for concurrent use.
type MemorySource struct {
	mu       sync.RWMutex
	sessions []Session
	calls    int
}

// NewMemorySource constructs a MemorySource seeded with sessions.
func NewMemorySource(seed ...Session) *MemorySource {
	s := &MemorySource{}
	s.Add(seed...)
	return s
}

// Add appends sessions to the source.
func (s *MemorySource) Add(sessions ...Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, sessions...)
}

// ListSessions returns sessions started in [start, end), oldest first.
func (s *MemorySource) ListSessions(ctx context.Context, start, end time.Time) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, 0)
	for _, sess := range s.sessions {
		if !sess.StartTime.Before(start) && sess.StartTime.Before(end) {
			out = append(out, sess)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

// Calls reports how many times ListSessions was invoked.
func (s *MemorySource) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}
