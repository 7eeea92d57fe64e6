package analyses

import "context"

// Repo persists job snapshots so progress and results outlive the in-process registry.
type Repo interface {
	Save(ctx context.Context, job Job) error
	Get(ctx context.Context, analysisID string) (Job, error)
}
