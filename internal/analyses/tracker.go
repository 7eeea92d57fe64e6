package analyses

import (
	"context"
	"sync"
	"time"

	"autoanalyze-backend/internal/sampling"
	"autoanalyze-backend/internal/taxonomy"
)

// tracker owns one job's state. Every write goes through its mutex, so the
// pipeline stages only report measurements and never touch the record directly.
type tracker struct {
	mu        sync.Mutex
	job       Job
	cancel    context.CancelFunc
	done      chan struct{}
	now       func() time.Time
	onPersist func(Job)

	persistMu sync.Mutex
}

func newTracker(job Job, now func() time.Time) *tracker {
	if now == nil {
		now = time.Now
	}
	return &tracker{job: job, now: now, done: make(chan struct{})}
}

// snapshot returns a copy safe to hand to readers.
func (t *tracker) snapshot() Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.copyLocked()
}

func (t *tracker) copyLocked() Job {
	return copyJob(t.job)
}

// poll projects the percentage, records it as the new floor and returns the view.
func (t *tracker) poll() (Job, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pct := t.recordPercentLocked()
	return t.copyLocked(), pct
}

func (t *tracker) recordPercentLocked() int {
	pct := Project(t.job.Progress, t.job.MaxPercent)
	if pct > t.job.MaxPercent {
		t.job.MaxPercent = pct
	}
	return pct
}

// mutate applies fn unless the job is terminal. Every successful mutation
// refreshes the stored percentage so error keeps the last computed value.
func (t *tracker) mutate(fn func(p *Progress)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job.Progress.Phase.Terminal() {
		return false
	}
	fn(&t.job.Progress)
	t.job.UpdatedAt = t.now().UTC()
	t.recordPercentLocked()
	return true
}

func (t *tracker) terminal() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job.Progress.Phase.Terminal()
}

// advance moves to next if it lies ahead of the current phase. The only
// backwards move allowed is conflict_resolution -> parallel_processing between rounds.
func (t *tracker) advance(next Phase, step string) bool {
	t.mu.Lock()
	cur := t.job.Progress.Phase
	allowed := !cur.Terminal() && !next.Terminal() &&
		(next == cur || phaseOrder[next] > phaseOrder[cur] || (cur == PhaseConflicts && next == PhaseParallel))
	if allowed {
		t.job.Progress.Phase = next
		t.job.Progress.CurrentStep = step
		t.job.UpdatedAt = t.now().UTC()
		t.recordPercentLocked()
	}
	t.mu.Unlock()

	if allowed {
		t.persist()
	}
	return allowed
}

func (t *tracker) step(step string) {
	t.mutate(func(p *Progress) { p.CurrentStep = step })
}

func (t *tracker) samplingEvent(ev sampling.Event, step string) {
	t.mutate(func(p *Progress) {
		p.CurrentStep = step
		p.SamplingProgress = &SamplingProgress{
			WindowIndex:  ev.Index,
			TotalWindows: ev.Total,
			WindowLabel:  ev.Label,
			TargetCount:  ev.Target,
		}
		if ev.Found > p.SessionsFound {
			p.SessionsFound = ev.Found
		}
	})
}

func (t *tracker) sampled(found, total int, step string) {
	t.mutate(func(p *Progress) {
		p.CurrentStep = step
		if found > p.SessionsFound {
			p.SessionsFound = found
		}
		if total > p.TotalSessions {
			p.TotalSessions = total
		}
	})
}

func (t *tracker) addUsage(tokens int, cost float64) {
	if tokens <= 0 && cost <= 0 {
		return
	}
	t.mutate(func(p *Progress) {
		if tokens > 0 {
			p.TokensUsed += tokens
		}
		if cost > 0 {
			p.EstimatedCost += cost
		}
	})
}

func (t *tracker) addProcessed(n int) {
	if n <= 0 {
		return
	}
	t.mutate(func(p *Progress) {
		p.SessionsProcessed += n
		if p.SessionsProcessed > p.TotalSessions {
			p.SessionsProcessed = p.TotalSessions
		}
	})
}

// addSkipped counts sampled sessions the extractor returned no facts for.
func (t *tracker) addSkipped(n int) {
	if n <= 0 {
		return
	}
	t.mutate(func(p *Progress) {
		p.SessionsSkipped += n
	})
}

func (t *tracker) discovery(counts map[taxonomy.Category]int, rate float64) {
	t.mutate(func(p *Progress) {
		stats := DiscoveryStats{
			Intents:          counts[taxonomy.Intents],
			TransferReasons:  counts[taxonomy.TransferReasons],
			DropOffLocations: counts[taxonomy.DropOffLocations],
			DiscoveryRate:    clamp01(rate),
		}
		if prev := p.DiscoveryStats; prev != nil && prev.DiscoveryRate > stats.DiscoveryRate {
			stats.DiscoveryRate = prev.DiscoveryRate
		}
		p.DiscoveryStats = &stats
	})
}

func (t *tracker) plannedRounds(rounds int) {
	t.mutate(func(p *Progress) {
		if rounds > p.TotalRounds {
			p.TotalRounds = rounds
		}
	})
}

func (t *tracker) streamDelta(delta int) {
	t.mutate(func(p *Progress) {
		p.StreamsActive += delta
		if p.StreamsActive < 0 {
			p.StreamsActive = 0
		}
	})
}

func (t *tracker) roundCompleted(round int) {
	t.mutate(func(p *Progress) {
		if round > p.RoundsCompleted {
			p.RoundsCompleted = round
		}
		p.StreamsActive = 0
	})
}

func (t *tracker) conflicts(found, resolved, mappings int) {
	t.mutate(func(p *Progress) {
		cs := ConflictStats{}
		if p.ConflictStats != nil {
			cs = *p.ConflictStats
		}
		cs.ConflictsFound += found
		cs.ConflictsResolved += resolved
		if mappings > cs.CanonicalMappings {
			cs.CanonicalMappings = mappings
		}
		p.ConflictStats = &cs
	})
}

// complete stores results and finishes the job.
func (t *tracker) complete(res Results, step string) bool {
	t.mu.Lock()
	if t.job.Progress.Phase.Terminal() {
		t.mu.Unlock()
		return false
	}
	end := t.now().UTC()
	p := &t.job.Progress
	p.Phase = PhaseComplete
	p.CurrentStep = step
	p.EndTime = &end
	p.StreamsActive = 0
	res.AnalysisID = t.job.ID
	res.TokensUsed = p.TokensUsed
	res.EstimatedCost = p.EstimatedCost
	res.SessionsSkipped = p.SessionsSkipped
	t.job.Results = &res
	t.job.UpdatedAt = end
	t.recordPercentLocked()
	t.mu.Unlock()

	t.persist()
	return true
}

// fail moves the job to error, keeping the progress reached so far.
func (t *tracker) fail(code, message string) bool {
	t.mu.Lock()
	if t.job.Progress.Phase.Terminal() {
		t.mu.Unlock()
		return false
	}
	t.recordPercentLocked()
	end := t.now().UTC()
	p := &t.job.Progress
	p.Phase = PhaseError
	p.CurrentStep = message
	if code != ErrorCodeCancelled {
		p.CurrentStep = msgFailed
	}
	p.Error = message
	p.ErrorCode = code
	p.EndTime = &end
	p.StreamsActive = 0
	t.job.UpdatedAt = end
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.persist()
	return true
}

// requestCancel reports whether a running job was cancelled.
func (t *tracker) requestCancel(message string) bool {
	return t.fail(ErrorCodeCancelled, message)
}

// persist hands the latest snapshot to onPersist. persistMu keeps saves in
// order, so the last write always carries the newest state.
func (t *tracker) persist() {
	if t.onPersist == nil {
		return
	}
	t.persistMu.Lock()
	defer t.persistMu.Unlock()
	t.onPersist(t.snapshot())
}
