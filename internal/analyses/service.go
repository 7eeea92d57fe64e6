package analyses

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"autoanalyze-backend/internal/facts"
	"autoanalyze-backend/internal/sampling"
	"autoanalyze-backend/internal/sessions"
	"autoanalyze-backend/internal/shared/metrics"
	"autoanalyze-backend/internal/shared/telemetry"
	"autoanalyze-backend/internal/statustext"
	"autoanalyze-backend/internal/taxonomy"
)

const defaultRetention = time.Hour

// ExtractorFactory builds the fact extractor for one job from its config.
type ExtractorFactory func(cfg AnalysisConfig, analysisID string) (facts.Extractor, error)

// LLMExtractorFactory returns a factory backed by the provider matching the model id.
func LLMExtractorFactory(callTimeout time.Duration) ExtractorFactory {
	return func(cfg AnalysisConfig, analysisID string) (facts.Extractor, error) {
		client, err := facts.NewClient(cfg.ModelID, cfg.APIKey, analysisID, callTimeout)
		if err != nil {
			return nil, err
		}
		return facts.NewLLMExtractor(client, cfg.ModelID), nil
	}
}

// Service runs analysis jobs in the background and answers polls about them.
type Service struct {
	Repo         Repo
	Artifacts    *ResultStore
	Source       sessions.Source
	NewExtractor ExtractorFactory
	Windows      []sampling.Window
	MaxStreams   int
	BatchSize    int
	CallTimeout  time.Duration
	// Retention is how long finished jobs stay in the in-process registry.
	Retention time.Duration
	Now       func() time.Time

	mu   sync.RWMutex
	jobs map[string]*tracker
	wg   sync.WaitGroup
}

// Start validates cfg, registers a job and runs it in the background.
// Invalid configs are rejected before any job id exists.
func (s *Service) Start(ctx context.Context, cfg AnalysisConfig) (string, error) {
	now := s.now()
	startAt, err := ValidateConfig(cfg, now)
	if err != nil {
		return "", err
	}
	if s.Source == nil {
		return "", errors.New("session source not configured")
	}
	if s.NewExtractor == nil {
		return "", errors.New("extractor factory not configured")
	}

	id := uuid.NewString()
	ext, err := s.NewExtractor(cfg, id)
	if err != nil {
		return "", &ValidationError{Field: "modelId", Issue: "unsupported", Message: err.Error()}
	}

	requestID := requestIDFromContext(ctx)
	created := now.UTC()
	job := Job{
		ID:     id,
		Config: cfg.redacted(),
		Progress: Progress{
			Phase:       PhaseSampling,
			CurrentStep: "Initializing analysis",
			StartTime:   created,
		},
		RequestID: requestID,
		CreatedAt: created,
		UpdatedAt: created,
	}
	t := newTracker(job, s.now)
	t.onPersist = s.persist

	runCtx, cancel := context.WithCancel(backgroundWithRequestID(ctx))
	t.cancel = cancel

	s.mu.Lock()
	if s.jobs == nil {
		s.jobs = make(map[string]*tracker)
	}
	s.evictLocked(created)
	s.jobs[id] = t
	s.mu.Unlock()

	t.persist()

	r := &runner{
		id:          id,
		requestID:   requestID,
		cfg:         cfg,
		start:       startAt,
		t:           t,
		source:      s.Source,
		windows:     s.Windows,
		ext:         ext,
		tax:         taxonomy.New(),
		artifacts:   s.Artifacts,
		maxStreams:  s.MaxStreams,
		batchSize:   s.BatchSize,
		callTimeout: s.CallTimeout,
		now:         s.now,
		phase:       PhaseSampling,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		r.run(runCtx)
	}()
	return id, nil
}

// Progress returns the current snapshot with the projected percentage.
func (s *Service) Progress(ctx context.Context, analysisID string) (ProgressView, error) {
	if t := s.lookup(analysisID); t != nil {
		job, pct := t.poll()
		return s.view(job, pct), nil
	}
	job, err := s.load(ctx, analysisID)
	if err != nil {
		return ProgressView{}, err
	}
	pct := Project(job.Progress, job.MaxPercent)
	return s.view(job, pct), nil
}

// Results returns the output of a completed job.
func (s *Service) Results(ctx context.Context, analysisID string) (Results, error) {
	var job Job
	if t := s.lookup(analysisID); t != nil {
		job = t.snapshot()
	} else {
		loaded, err := s.load(ctx, analysisID)
		if errors.Is(err, ErrNotFound) {
			return s.Artifacts.Load(ctx, analysisID)
		}
		if err != nil {
			return Results{}, err
		}
		job = loaded
	}

	if job.Progress.Phase != PhaseComplete {
		return Results{}, &NotReadyError{Phase: job.Progress.Phase, Reason: job.Progress.Error}
	}
	if job.Results != nil {
		return *job.Results, nil
	}
	return s.Artifacts.Load(ctx, analysisID)
}

// Cancel stops a running job. It reports false when the job had already finished.
func (s *Service) Cancel(ctx context.Context, analysisID string) (bool, error) {
	t := s.lookup(analysisID)
	if t == nil {
		if _, err := s.load(ctx, analysisID); err != nil {
			return false, err
		}
		return false, nil
	}
	if !t.requestCancel(msgCancelled) {
		return false, nil
	}
	metrics.IncAnalysisCancelled()
	snap := t.snapshot()
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"analysis_id":       analysisID,
		"phase":             PhaseError,
		"status_transition": "cancelled",
		"percent":           snap.MaxPercent,
	})
	return true, nil
}

// Shutdown cancels running jobs and waits for their goroutines or ctx.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	for _, t := range s.jobs {
		t.requestCancel(msgShutdown)
	}
	s.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// wait blocks until the job goroutine exits. Tests use it.
func (s *Service) wait(analysisID string) {
	if t := s.lookup(analysisID); t != nil {
		<-t.done
	}
}

func (s *Service) view(job Job, pct int) ProgressView {
	display := statustext.NormalizeWithTrace(job.Progress.CurrentStep, func(raw, out string, stage statustext.Stage) {
		telemetry.Debug("status.normalize", map[string]any{
			"analysis_id": job.ID,
			"raw":         raw,
			"display":     out,
			"stage":       stage,
		})
	})
	return ProgressView{
		AnalysisID: job.ID,
		Progress:   job.Progress,
		Percent:    pct,
		StatusText: display,
	}
}

func (s *Service) lookup(analysisID string) *tracker {
	analysisID = strings.TrimSpace(analysisID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[analysisID]
}

func (s *Service) load(ctx context.Context, analysisID string) (Job, error) {
	if s.Repo == nil {
		return Job{}, ErrNotFound
	}
	return s.Repo.Get(ctx, strings.TrimSpace(analysisID))
}

func (s *Service) persist(job Job) {
	if s.Repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Repo.Save(ctx, job); err != nil {
		telemetry.Warn("analysis.persist_failed", map[string]any{
			"analysis_id": job.ID,
			"phase":       job.Progress.Phase,
			"error":       sanitizeError(err),
		})
	}
}

// evictLocked drops finished jobs older than the retention window; the repo
// keeps answering for them. Callers hold s.mu.
func (s *Service) evictLocked(now time.Time) {
	retention := s.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	for id, t := range s.jobs {
		snap := t.snapshot()
		if !snap.Progress.Phase.Terminal() || snap.Progress.EndTime == nil {
			continue
		}
		if now.Sub(*snap.Progress.EndTime) > retention {
			delete(s.jobs, id)
		}
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
