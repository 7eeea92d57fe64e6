package analyses

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGRepoSaveUpsertsRedactedSnapshot(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	job := Job{
		ID:         "analysis-1",
		Config:     AnalysisConfig{StartDate: "2026-03-01", StartTime: "08:00", SessionCount: 20, ModelID: "gpt-4o-mini", APIKey: "sk-secretsecretsecretsecret"},
		Progress:   Progress{Phase: PhaseDiscovery, CurrentStep: "Processing discovery batch 1/1 (5 sessions)", StartTime: now},
		MaxPercent: 24,
		RequestID:  "req-1",
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	mock.ExpectExec("INSERT INTO analysis_jobs").
		WithArgs(
			job.ID,
			"discovery",
			job.RequestID,
			redactedConfigArg{},
			sqlmock.AnyArg(), // progress
			24,
			nil, // results
			now,
			now,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Save(context.Background(), job); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

// redactedConfigArg matches a config payload without an apiKey.
type redactedConfigArg struct{}

func (redactedConfigArg) Match(v driver.Value) bool {
	b, ok := v.([]byte)
	if !ok {
		return false
	}
	var cfg map[string]any
	if err := json.Unmarshal(b, &cfg); err != nil {
		return false
	}
	_, hasKey := cfg["apiKey"]
	return !hasKey && cfg["modelId"] == "gpt-4o-mini"
}

func TestPGRepoGetDecodesSnapshot(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "request_id", "config", "progress", "max_percent", "results", "created_at", "updated_at"}).
		AddRow(
			"analysis-2",
			"req-2",
			[]byte(`{"startDate":"2026-03-01","startTime":"08:00","sessionCount":10,"modelId":"gpt-4o-mini"}`),
			[]byte(`{"phase":"complete","currentStep":"Analysis complete","sessionsFound":0}`),
			100,
			[]byte(`{"analysisId":"analysis-2","sessions":[],"taxonomy":{"intents":[],"transferReasons":[],"dropOffLocations":[]},"noSessionsFound":true,"message":"No sessions found in selected time range","tokensUsed":0,"estimatedCost":0}`),
			now,
			now,
		)
	mock.ExpectQuery("SELECT id, request_id, config, progress").WithArgs("analysis-2").WillReturnRows(rows)

	repo := &PGRepo{DB: db}
	job, err := repo.Get(context.Background(), "analysis-2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Progress.Phase != PhaseComplete || job.MaxPercent != 100 {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.Results == nil || !job.Results.NoSessionsFound {
		t.Fatalf("expected decoded results, got %+v", job.Results)
	}
	if job.Config.SessionCount != 10 {
		t.Fatalf("expected config decoded, got %+v", job.Config)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery("SELECT id, request_id, config, progress").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "request_id", "config", "progress", "max_percent", "results", "created_at", "updated_at"}))

	repo := &PGRepo{DB: db}
	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
