package analyses

import (
	"context"
	"sync"

	"autoanalyze-backend/internal/facts"
)

// MemoryRepo stores job snapshots in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Job
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Job)}
}

// Save stores or replaces the snapshot.
func (r *MemoryRepo) Save(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[job.ID] = copyJob(job)
	return nil
}

// Get returns a snapshot by ID.
func (r *MemoryRepo) Get(ctx context.Context, analysisID string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.byID[analysisID]
	if !ok {
		return Job{}, ErrNotFound
	}
	return copyJob(job), nil
}

func copyJob(job Job) Job {
	out := job
	out.Progress = job.Progress.clone()
	if job.Results != nil {
		res := *job.Results
		res.Sessions = append([]facts.SessionWithFacts(nil), res.Sessions...)
		out.Results = &res
	}
	return out
}
