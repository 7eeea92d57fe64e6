package analyses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	"autoanalyze-backend/internal/shared/storage/object"
)

// ResultStore keeps a JSON copy of completed results in object storage.
type ResultStore struct {
	Store object.ObjectStore
}

func resultsKey(analysisID string) string {
	return path.Join("analyses", analysisID, "results.json")
}

// Save writes res under analyses/<id>/results.json.
func (s *ResultStore) Save(ctx context.Context, res Results) error {
	if s == nil || s.Store == nil {
		return nil
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if _, err := s.Store.Put(ctx, resultsKey(res.AnalysisID), "application/json", bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("storage put results: %w", err)
	}
	return nil
}

// Load reads stored results. Missing objects map to ErrNotFound.
func (s *ResultStore) Load(ctx context.Context, analysisID string) (Results, error) {
	if s == nil || s.Store == nil {
		return Results{}, ErrNotFound
	}
	body, err := s.Store.Open(ctx, resultsKey(analysisID))
	if errors.Is(err, object.ErrNotExist) {
		return Results{}, ErrNotFound
	}
	if err != nil {
		return Results{}, fmt.Errorf("storage open results: %w", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return Results{}, fmt.Errorf("storage read results: %w", err)
	}
	var res Results
	if err := json.Unmarshal(data, &res); err != nil {
		return Results{}, fmt.Errorf("decode results: %w", err)
	}
	return res, nil
}
