package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPageSize = 200
	maxPages        = 50
)

// HTTPSource reads sessions from the external session API.
//
// The API is expected to answer GET {baseURL}/sessions?start_time=...&end_time=...&limit=...&cursor=...
// with {"sessions": [...], "nextCursor": "..."}.
type HTTPSource struct {
	baseURL    string
	apiKey     string
	pageSize   int
	httpClient *http.Client
}

// NewHTTPSource constructs an HTTPSource.
func NewHTTPSource(baseURL, apiKey string, timeout time.Duration) (*HTTPSource, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrSourceUnavailable
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("session api url: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSource{
		baseURL:    baseURL,
		apiKey:     apiKey,
		pageSize:   defaultPageSize,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type listResponse struct {
	Sessions   []Session `json:"sessions"`
	NextCursor string    `json:"nextCursor"`
	Error      *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ListSessions walks every page for the range and returns the combined result.
func (s *HTTPSource) ListSessions(ctx context.Context, start, end time.Time) ([]Session, error) {
	var (
		out    []Session
		cursor string
	)
	for page := 0; page < maxPages; page++ {
		resp, err := s.fetchPage(ctx, start, end, cursor)
		if err != nil {
			return nil, err
		}
		out = append(out, resp.Sessions...)
		if resp.NextCursor == "" {
			return out, nil
		}
		cursor = resp.NextCursor
	}
	return out, nil
}

func (s *HTTPSource) fetchPage(ctx context.Context, start, end time.Time, cursor string) (listResponse, error) {
	q := url.Values{}
	q.Set("start_time", start.UTC().Format(time.RFC3339))
	q.Set("end_time", end.UTC().Format(time.RFC3339))
	q.Set("limit", strconv.Itoa(s.pageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/sessions?"+q.Encode(), nil)
	if err != nil {
		return listResponse{}, err
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return listResponse{}, fmt.Errorf("session api request timeout: %w", err)
		}
		return listResponse{}, fmt.Errorf("session api request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return listResponse{}, fmt.Errorf("session api read body: %w", err)
	}
	if resp.StatusCode >= 300 {
		return listResponse{}, fmt.Errorf("session api http status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed listResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return listResponse{}, fmt.Errorf("session api response parse: %w", err)
	}
	if parsed.Error != nil {
		return listResponse{}, fmt.Errorf("session api error: %s", parsed.Error.Message)
	}
	return parsed, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var (
	_ Source = (*HTTPSource)(nil)
	_ Source = (*MemorySource)(nil)
)
