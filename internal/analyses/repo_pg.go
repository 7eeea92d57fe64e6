package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Save upserts the job snapshot.
func (r *PGRepo) Save(ctx context.Context, job Job) error {
	const query = `
INSERT INTO analysis_jobs (id, phase, request_id, config, progress, max_percent, results, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
	phase = EXCLUDED.phase,
	progress = EXCLUDED.progress,
	max_percent = GREATEST(analysis_jobs.max_percent, EXCLUDED.max_percent),
	results = COALESCE(EXCLUDED.results, analysis_jobs.results),
	updated_at = EXCLUDED.updated_at`

	configPayload, err := marshalJSONB(job.Config.redacted())
	if err != nil {
		return err
	}
	progressPayload, err := marshalJSONB(job.Progress)
	if err != nil {
		return err
	}
	var resultsPayload any
	if job.Results != nil {
		b, err := json.Marshal(job.Results)
		if err != nil {
			return err
		}
		resultsPayload = b
	}

	_, err = r.DB.ExecContext(ctx, query,
		job.ID,
		string(job.Progress.Phase),
		job.RequestID,
		configPayload,
		progressPayload,
		job.MaxPercent,
		resultsPayload,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save analysis job id=%s: %w", job.ID, err)
	}
	return nil
}

// Get returns a job snapshot by ID.
func (r *PGRepo) Get(ctx context.Context, analysisID string) (Job, error) {
	const query = `
SELECT id, request_id, config, progress, max_percent, results, created_at, updated_at
FROM analysis_jobs
WHERE id = $1
LIMIT 1`
	var (
		job      Job
		config   []byte
		progress []byte
		results  []byte
	)
	err := r.DB.QueryRowContext(ctx, query, analysisID).Scan(
		&job.ID,
		&job.RequestID,
		&config,
		&progress,
		&job.MaxPercent,
		&results,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("load analysis job id=%s: %w", analysisID, err)
	}
	if err := unmarshalJSONB(config, &job.Config); err != nil {
		return Job{}, fmt.Errorf("decode config: %w", err)
	}
	if err := unmarshalJSONB(progress, &job.Progress); err != nil {
		return Job{}, fmt.Errorf("decode progress: %w", err)
	}
	if len(results) > 0 {
		var res Results
		if err := json.Unmarshal(results, &res); err != nil {
			return Job{}, fmt.Errorf("decode results: %w", err)
		}
		job.Results = &res
	}
	return job, nil
}

func marshalJSONB(value any) ([]byte, error) {
	if value == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(value)
}

func unmarshalJSONB(data []byte, dest any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}
