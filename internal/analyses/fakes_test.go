package analyses

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"autoanalyze-backend/internal/facts"
	"autoanalyze-backend/internal/llm"
	"autoanalyze-backend/internal/sessions"
)

var (
	testStart = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	testNow   = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
)

const testAPIKey = "sk-test_0123456789abcdefghijkl"

// fakeExtractor labels sessions from their metadata so tests control every label.
type fakeExtractor struct {
	mu          sync.Mutex
	calls       []facts.Batch
	label       func(s sessions.Session, b facts.Batch) facts.Facts
	fail        func(b facts.Batch) error
	skip        func(s sessions.Session) bool
	block       func(b facts.Batch) bool
	entered     chan struct{}
	enteredOnce sync.Once
	delay       time.Duration
	summaryErr  error
}

func (f *fakeExtractor) ExtractFacts(ctx context.Context, b facts.Batch) (facts.BatchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, b)
	f.mu.Unlock()

	if f.block != nil && f.block(b) {
		if f.entered != nil {
			f.enteredOnce.Do(func() { close(f.entered) })
		}
		<-ctx.Done()
		return facts.BatchResult{}, ctx.Err()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return facts.BatchResult{}, ctx.Err()
		}
	}
	if f.fail != nil {
		if err := f.fail(b); err != nil {
			return facts.BatchResult{}, err
		}
	}
	out := facts.BatchResult{
		Usage: llm.Usage{PromptTokens: 10 * len(b.Sessions), CompletionTokens: 5 * len(b.Sessions)},
		Cost:  0.001,
	}
	for _, s := range b.Sessions {
		if f.skip != nil && f.skip(s) {
			out.Missing = append(out.Missing, s.ID)
			continue
		}
		var fx facts.Facts
		if f.label != nil {
			fx = f.label(s, b)
		} else {
			fx = facts.Facts{GeneralIntent: s.Metadata["intent"], SessionOutcome: facts.OutcomeContained}
		}
		out.Sessions = append(out.Sessions, facts.SessionWithFacts{
			Session:  s,
			Facts:    fx,
			Metadata: facts.Metadata{BatchID: b.BatchID, Round: b.Round, Stream: b.Stream, TokensUsed: 15},
		})
	}
	return out, nil
}

func (f *fakeExtractor) Summarize(ctx context.Context, in facts.SummaryInput) (facts.SummaryResult, error) {
	if f.summaryErr != nil {
		return facts.SummaryResult{}, f.summaryErr
	}
	return facts.SummaryResult{
		Text:  fmt.Sprintf("%d sessions, %d contained", in.TotalSessions, in.Contained),
		Usage: llm.Usage{PromptTokens: 100, CompletionTokens: 50},
	}, nil
}

func (f *fakeExtractor) batches() []facts.Batch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]facts.Batch(nil), f.calls...)
}

func seedSessions(n int, intent string) *sessions.MemorySource {
	src := sessions.NewMemorySource()
	for i := 0; i < n; i++ {
		src.Add(sessions.Session{
			ID:        fmt.Sprintf("sess-%03d", i),
			StartTime: testStart.Add(time.Duration(i) * time.Minute),
			Metadata:  map[string]string{"intent": intent},
			Messages:  []sessions.Message{{Role: "user", Content: "hello"}},
		})
	}
	return src
}

func seedSessionsSlice(n int) []sessions.Session {
	out, _ := seedSessions(n, "").ListSessions(context.Background(), testStart, testNow)
	return out
}

func newTestService(t *testing.T, src sessions.Source, ext facts.Extractor) *Service {
	t.Helper()
	return &Service{
		Repo:   NewMemoryRepo(),
		Source: src,
		NewExtractor: func(AnalysisConfig, string) (facts.Extractor, error) {
			return ext, nil
		},
		MaxStreams: 4,
		BatchSize:  3,
		Now:        func() time.Time { return testNow },
	}
}

func validConfig(count int) AnalysisConfig {
	return AnalysisConfig{
		StartDate:    "2026-03-01",
		StartTime:    "08:00",
		SessionCount: count,
		ModelID:      "gpt-4o-mini",
		APIKey:       testAPIKey,
	}
}

func startAndWait(t *testing.T, svc *Service, cfg AnalysisConfig) string {
	t.Helper()
	id, err := svc.Start(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	svc.wait(id)
	return id
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for extractor")
	}
}

var errUpstream = errors.New("model unavailable")
