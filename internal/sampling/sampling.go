// Package sampling searches an expanding list of time windows for sessions
// until a target count is reached.
package sampling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"autoanalyze-backend/internal/sessions"
)

// Window is one lookback span tried by the sampler.
type Window struct {
	Duration time.Duration
	Label    string
}

// DefaultWindows grow from three hours to six days.
var DefaultWindows = []Window{
	{Duration: 3 * time.Hour, Label: "last 3 hours"},
	{Duration: 6 * time.Hour, Label: "last 6 hours"},
	{Duration: 12 * time.Hour, Label: "last 12 hours"},
	{Duration: 24 * time.Hour, Label: "last 24 hours"},
	{Duration: 3 * 24 * time.Hour, Label: "last 3 days"},
	{Duration: 6 * 24 * time.Hour, Label: "last 6 days"},
}

// Event reports search progress for one window. It fires once before the
// window is queried (Searched=false) and once after (Searched=true).
type Event struct {
	Index    int // 1-based
	Total    int
	Label    string
	Found    int
	Target   int
	Searched bool
}

// Result is the outcome of a search.
type Result struct {
	Sessions    []sessions.Session
	WindowsUsed int
	Exhausted   bool // every window was tried without reaching the target
}

// Sampler queries a session source window by window.
type Sampler struct {
	Source  sessions.Source
	Windows []Window
	Now     func() time.Time
}

// New returns a sampler over src with the default windows.
func New(src sessions.Source) *Sampler {
	return &Sampler{Source: src, Windows: DefaultWindows, Now: time.Now}
}

// Sample collects up to target distinct sessions starting at start. Finding
// nothing is not an error; callers check len(Result.Sessions).
func (s *Sampler) Sample(ctx context.Context, start time.Time, target int, onWindow func(Event)) (Result, error) {
	if s.Source == nil {
		return Result{}, errors.New("sampling: source is required")
	}
	if target <= 0 {
		return Result{}, fmt.Errorf("sampling: target must be positive, got %d", target)
	}
	windows := s.Windows
	if len(windows) == 0 {
		windows = DefaultWindows
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	notify := func(e Event) {
		if onWindow != nil {
			onWindow(e)
		}
	}

	seen := make(map[string]struct{})
	var found []sessions.Session
	var res Result
	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ev := Event{Index: i + 1, Total: len(windows), Label: w.Label, Found: len(found), Target: target}
		notify(ev)

		end := start.Add(w.Duration)
		if n := now(); n.Before(end) {
			end = n
		}
		res.WindowsUsed = i + 1
		if end.After(start) {
			batch, err := s.Source.ListSessions(ctx, start, end)
			if err != nil {
				return res, fmt.Errorf("sampling window %q: %w", w.Label, err)
			}
			for _, sess := range batch {
				if sess.ID == "" {
					continue
				}
				if _, dup := seen[sess.ID]; dup {
					continue
				}
				seen[sess.ID] = struct{}{}
				found = append(found, sess)
			}
		}

		ev.Found = len(found)
		ev.Searched = true
		notify(ev)
		if len(found) >= target {
			break
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].StartTime.Before(found[j].StartTime)
	})
	if len(found) > target {
		found = found[:target]
	}
	res.Sessions = found
	res.Exhausted = res.WindowsUsed == len(windows) && len(found) < target
	return res, nil
}
