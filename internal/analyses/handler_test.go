package analyses

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"autoanalyze-backend/internal/facts"
	"autoanalyze-backend/internal/shared/server/middleware"
)

func setupRouter(t *testing.T, svc *Service) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.RequestID())
	NewHandler(svc).RegisterRoutes(router.Group("/api/v1"))
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

type errorEnvelope struct {
	Error struct {
		Code    string              `json:"code"`
		Message string              `json:"message"`
		Details []map[string]string `json:"details"`
	} `json:"error"`
}

func TestStartEndpointValidation(t *testing.T) {
	svc := newTestService(t, seedSessions(10, "Order Status"), &fakeExtractor{})
	router := setupRouter(t, svc)

	resp := doJSON(t, router, http.MethodPost, "/api/v1/auto-analyze/start", validConfig(3))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	var env errorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Code != "validation_error" || len(env.Error.Details) != 1 || env.Error.Details[0]["field"] != "sessionCount" {
		t.Fatalf("unexpected error body %+v", env)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auto-analyze/start", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestStartProgressResultsFlow(t *testing.T) {
	svc := newTestService(t, seedSessions(10, "Order Status"), &fakeExtractor{})
	router := setupRouter(t, svc)

	resp := doJSON(t, router, http.MethodPost, "/api/v1/auto-analyze/start", validConfig(10))
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
	}
	var started struct {
		AnalysisID string `json:"analysisId"`
		Status     string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if started.AnalysisID == "" || started.Status != "started" {
		t.Fatalf("unexpected start response %+v", started)
	}
	svc.wait(started.AnalysisID)

	resp = doJSON(t, router, http.MethodGet, "/api/v1/auto-analyze/progress/"+started.AnalysisID, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var progress map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&progress); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if progress["phase"] != "complete" || progress["progressPercentage"] != float64(100) || progress["statusText"] != "Analysis complete" {
		t.Fatalf("unexpected progress %+v", progress)
	}

	resp = doJSON(t, router, http.MethodGet, "/api/v1/auto-analyze/results/"+started.AnalysisID, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var res Results
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Sessions) != 10 || res.AnalysisID != started.AnalysisID {
		t.Fatalf("unexpected results: %d sessions, id %q", len(res.Sessions), res.AnalysisID)
	}

	resp = doJSON(t, router, http.MethodPost, "/api/v1/auto-analyze/cancel/"+started.AnalysisID, nil)
	var cancelled struct {
		Cancelled bool `json:"cancelled"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&cancelled)
	if resp.Code != http.StatusOK || cancelled.Cancelled {
		t.Fatalf("cancel of finished job should report false, got %d %+v", resp.Code, cancelled)
	}
}

func TestResultsNotReadyWhileRunning(t *testing.T) {
	ext := &fakeExtractor{block: func(facts.Batch) bool { return true }, entered: make(chan struct{})}
	svc := newTestService(t, seedSessions(10, "Order Status"), ext)
	router := setupRouter(t, svc)

	resp := doJSON(t, router, http.MethodPost, "/api/v1/auto-analyze/start", validConfig(10))
	var started struct {
		AnalysisID string `json:"analysisId"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&started)
	waitFor(t, ext.entered)

	resp = doJSON(t, router, http.MethodGet, "/api/v1/auto-analyze/results/"+started.AnalysisID, nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}

	resp = doJSON(t, router, http.MethodPost, "/api/v1/auto-analyze/cancel/"+started.AnalysisID, nil)
	var cancelled struct {
		Cancelled bool `json:"cancelled"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&cancelled)
	if !cancelled.Cancelled {
		t.Fatalf("expected running job to be cancelled")
	}
	svc.wait(started.AnalysisID)

	resp = doJSON(t, router, http.MethodGet, "/api/v1/auto-analyze/results/"+started.AnalysisID, nil)
	var env errorEnvelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	if resp.Code != http.StatusConflict || env.Error.Message != msgCancelled {
		t.Fatalf("expected 409 with cancellation message, got %d %+v", resp.Code, env)
	}
}

func TestUnknownIDReturns404(t *testing.T) {
	svc := newTestService(t, seedSessions(1, ""), &fakeExtractor{})
	router := setupRouter(t, svc)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/auto-analyze/progress/unknown"},
		{http.MethodGet, "/api/v1/auto-analyze/results/unknown"},
		{http.MethodPost, "/api/v1/auto-analyze/cancel/unknown"},
	} {
		resp := doJSON(t, router, tc.method, tc.path, nil)
		if resp.Code != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d", tc.method, tc.path, resp.Code)
		}
	}
}
