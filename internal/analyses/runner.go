package analyses

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"autoanalyze-backend/internal/facts"
	"autoanalyze-backend/internal/sampling"
	"autoanalyze-backend/internal/sessions"
	"autoanalyze-backend/internal/shared/metrics"
	"autoanalyze-backend/internal/shared/telemetry"
	"autoanalyze-backend/internal/taxonomy"
)

const (
	discoveryShare   = 0.2
	discoveryMin     = 5
	discoveryMax     = 30
	defaultBatchSize = 10
	defaultStreams   = 4
)

// runner drives one job through sampling, discovery, the parallel rounds and
// the summary. Only the runner advances phases; the tracker records them.
type runner struct {
	id          string
	requestID   string
	cfg         AnalysisConfig
	start       time.Time
	t           *tracker
	source      sessions.Source
	windows     []sampling.Window
	ext         facts.Extractor
	tax         *taxonomy.Taxonomy
	artifacts   *ResultStore
	maxStreams  int
	batchSize   int
	callTimeout time.Duration
	now         func() time.Time

	phase Phase
}

func (r *runner) run(ctx context.Context) {
	startedAt := r.now()
	defer close(r.t.done)
	defer func() {
		if rec := recover(); rec != nil {
			r.failWith(ctx, fmt.Errorf("panic: %v", rec), startedAt)
		}
	}()

	metrics.IncAnalysisStarted()
	r.logStatus("", PhaseSampling, nil)

	if err := r.pipeline(ctx, startedAt); err != nil {
		r.failWith(ctx, err, startedAt)
	}
}

func (r *runner) pipeline(ctx context.Context, startedAt time.Time) error {
	sampled, err := r.sample(ctx)
	if err != nil {
		return err
	}
	if len(sampled) == 0 {
		r.finish(ctx, Results{
			Sessions:        []facts.SessionWithFacts{},
			Taxonomy:        emptyLabels(),
			NoSessionsFound: true,
			Message:         msgNoSessionsFound,
		}, msgNoSessionsFound, startedAt)
		return nil
	}

	collected, size, err := r.discover(ctx, sampled)
	if err != nil {
		return err
	}
	more, err := r.parallel(ctx, sampled[size:])
	if err != nil {
		return err
	}
	collected = append(collected, more...)

	summary, err := r.summarize(ctx, collected)
	if err != nil {
		return err
	}
	if orphans := r.tax.Orphans(collected); len(orphans) > 0 {
		return fmt.Errorf("taxonomy: %d labels missing after reconciliation", len(orphans))
	}
	r.finish(ctx, Results{
		Sessions: collected,
		Taxonomy: r.tax.Snapshot(),
		Summary:  &summary,
	}, "Analysis complete", startedAt)
	return nil
}

func (r *runner) sample(ctx context.Context) ([]sessions.Session, error) {
	sampler := &sampling.Sampler{Source: r.source, Windows: r.windows, Now: r.now}
	res, err := sampler.Sample(ctx, r.start, r.cfg.SessionCount, func(ev sampling.Event) {
		if ev.Searched {
			r.t.samplingEvent(ev, fmt.Sprintf("Found %d sessions", ev.Found))
			return
		}
		r.t.samplingEvent(ev, fmt.Sprintf("Searching for sessions in %s (window %d/%d)", ev.Label, ev.Index, ev.Total))
	})
	if err != nil {
		return nil, r.upstream(ctx, "sampling", err)
	}
	n := len(res.Sessions)
	r.t.sampled(n, n, fmt.Sprintf("Found %d sessions", n))
	telemetry.Info("analysis.sampled", map[string]any{
		"analysis_id":  r.id,
		"request_id":   r.requestID,
		"sessions":     n,
		"target":       r.cfg.SessionCount,
		"windows_used": res.WindowsUsed,
		"exhausted":    res.Exhausted,
	})
	return res.Sessions, nil
}

func (r *runner) discover(ctx context.Context, sampled []sessions.Session) ([]facts.SessionWithFacts, int, error) {
	size := discoverySize(len(sampled))
	r.transition(PhaseDiscovery, "Starting taxonomy discovery")

	batches := chunk(sampled[:size], r.batchSize)
	collected := make([]facts.SessionWithFacts, 0, len(sampled))
	processed := 0
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		r.t.step(fmt.Sprintf("Processing discovery batch %d/%d (%d sessions)", i+1, len(batches), len(batch)))
		out, err := r.extract(ctx, facts.Batch{
			Sessions:          batch,
			Known:             r.tax.Snapshot(),
			AdditionalContext: r.cfg.AdditionalContext,
			BatchID:           fmt.Sprintf("discovery-%d", i+1),
		})
		if err != nil {
			return nil, 0, r.upstream(ctx, "discovery", err)
		}
		r.tax.Reconcile(out.Sessions)
		collected = append(collected, out.Sessions...)
		processed += len(out.Sessions)
		r.t.addProcessed(len(out.Sessions))
		r.t.discovery(r.tax.Counts(), ratio(processed, size))
	}
	if processed == 0 {
		return nil, 0, &UpstreamError{Stage: "discovery", Err: errors.New("extractor returned no facts for the discovery slice")}
	}
	r.t.step("Taxonomy discovery complete")
	return collected, size, nil
}

func (r *runner) parallel(ctx context.Context, remaining []sessions.Session) ([]facts.SessionWithFacts, error) {
	if len(remaining) == 0 {
		return nil, nil
	}
	streams := partition(remaining, r.maxStreams, r.batchSize)
	rounds := 0
	for _, s := range streams {
		if len(s) > rounds {
			rounds = len(s)
		}
	}
	r.t.plannedRounds(rounds)
	r.transition(PhaseParallel, fmt.Sprintf("Starting parallel processing with %d streams", len(streams)))

	var collected []facts.SessionWithFacts
	for k := 0; k < rounds; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		active := 0
		for _, s := range streams {
			if k < len(s) {
				active++
			}
		}
		r.transition(PhaseParallel, fmt.Sprintf("Processing round %d/%d across %d streams", k+1, rounds, active))
		outputs, err := r.round(ctx, streams, k)
		if err != nil {
			return nil, err
		}
		r.t.roundCompleted(k + 1)
		metrics.IncRounds()

		// barrier: every stream finished round k before labels are reconciled
		r.transition(PhaseConflicts, fmt.Sprintf("Resolving conflicts for round %d/%d", k+1, rounds))
		var merged []facts.SessionWithFacts
		for _, out := range outputs {
			merged = append(merged, out...)
		}
		report := r.tax.Reconcile(merged)
		r.t.conflicts(report.ConflictsFound, report.ConflictsResolved, r.tax.MappingCount())
		metrics.AddConflictsResolved(report.ConflictsResolved)
		if report.ConflictsFound > 0 || report.Added() > 0 {
			telemetry.Debug("analysis.conflicts", map[string]any{
				"analysis_id":        r.id,
				"round":              k + 1,
				"conflicts_found":    report.ConflictsFound,
				"conflicts_resolved": report.ConflictsResolved,
				"new_labels":         report.Added(),
			})
		}
		collected = append(collected, merged...)
	}
	return collected, nil
}

// round runs chunk k of every stream concurrently and waits for all of them.
func (r *runner) round(ctx context.Context, streams [][][]sessions.Session, k int) ([][]facts.SessionWithFacts, error) {
	known := r.tax.Snapshot()
	outputs := make([][]facts.SessionWithFacts, len(streams))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(streams))
	for i, chunks := range streams {
		if k >= len(chunks) {
			continue
		}
		batch := facts.Batch{
			Sessions:          chunks[k],
			Known:             known,
			AdditionalContext: r.cfg.AdditionalContext,
			BatchID:           fmt.Sprintf("round-%d-stream-%d", k+1, i+1),
			Round:             k + 1,
			Stream:            i + 1,
		}
		g.Go(func() error {
			r.t.streamDelta(1)
			defer r.t.streamDelta(-1)
			out, err := r.extract(gctx, batch)
			if err != nil {
				return fmt.Errorf("stream %d round %d: %w", batch.Stream, batch.Round, err)
			}
			outputs[i] = out.Sessions
			r.t.addProcessed(len(out.Sessions))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, r.upstream(ctx, "parallel_processing", err)
	}
	return outputs, nil
}

func (r *runner) summarize(ctx context.Context, collected []facts.SessionWithFacts) (Summary, error) {
	r.transition(PhaseSummary, "Generating summary")
	summary := buildSummary(collected)
	callCtx, cancel := r.callContext(ctx)
	defer cancel()
	out, err := r.ext.Summarize(callCtx, summaryInput(summary, r.cfg.AdditionalContext))
	if err != nil {
		if ctx.Err() != nil {
			return Summary{}, ctx.Err()
		}
		telemetry.Warn("analysis.summary_failed", map[string]any{
			"analysis_id": r.id,
			"request_id":  r.requestID,
			"error":       sanitizeError(err),
		})
		return summary, nil
	}
	summary.Narrative = out.Text
	r.t.addUsage(out.Usage.Total(), out.Cost)
	metrics.AddTokens(out.Usage.Total())
	return summary, nil
}

func (r *runner) extract(ctx context.Context, batch facts.Batch) (facts.BatchResult, error) {
	callCtx, cancel := r.callContext(ctx)
	defer cancel()
	out, err := r.ext.ExtractFacts(callCtx, batch)
	if err != nil {
		return facts.BatchResult{}, err
	}
	r.t.addUsage(out.Usage.Total(), out.Cost)
	metrics.AddTokens(out.Usage.Total())
	if len(out.Missing) > 0 {
		r.t.addSkipped(len(out.Missing))
		telemetry.Warn("analysis.facts_missing", map[string]any{
			"analysis_id": r.id,
			"batch_id":    batch.BatchID,
			"missing":     len(out.Missing),
		})
	}
	return out, nil
}

func (r *runner) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.callTimeout > 0 {
		return context.WithTimeout(ctx, r.callTimeout)
	}
	return context.WithCancel(ctx)
}

// upstream wraps a collaborator failure unless the job itself was cancelled.
func (r *runner) upstream(ctx context.Context, stage string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &UpstreamError{Stage: stage, Err: err}
}

func (r *runner) transition(next Phase, step string) {
	prev := r.phase
	if !r.t.advance(next, step) {
		return
	}
	r.phase = next
	if prev != next {
		r.logStatus(prev, next, nil)
	}
}

func (r *runner) finish(ctx context.Context, res Results, step string, startedAt time.Time) {
	if !r.t.complete(res, step) {
		return
	}
	duration := durationMs(startedAt, r.now())
	metrics.IncAnalysisCompleted()
	metrics.ObserveAnalysisDurationMs(duration)
	r.logStatus(r.phase, PhaseComplete, map[string]any{"duration_ms": duration})
	r.phase = PhaseComplete

	if r.artifacts != nil {
		snap := r.t.snapshot()
		if snap.Results != nil {
			saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			if err := r.artifacts.Save(saveCtx, *snap.Results); err != nil {
				telemetry.Warn("analysis.artifact_failed", map[string]any{
					"analysis_id": r.id,
					"error":       sanitizeError(err),
				})
			}
		}
	}
}

func (r *runner) failWith(ctx context.Context, err error, startedAt time.Time) {
	code := classifyFailure(err)
	msg := sanitizeError(err)
	if code == ErrorCodeCancelled {
		msg = msgCancelled
	}
	if !r.t.fail(code, msg) {
		return
	}
	duration := durationMs(startedAt, r.now())
	if code == ErrorCodeCancelled {
		metrics.IncAnalysisCancelled()
	} else {
		metrics.IncAnalysisFailed()
	}
	metrics.ObserveAnalysisDurationMs(duration)
	r.logStatus(r.phase, PhaseError, map[string]any{
		"duration_ms": duration,
		"error_code":  code,
		"error":       msg,
	})
	r.phase = PhaseError
}

func (r *runner) logStatus(from, to Phase, extra map[string]any) {
	transition := string(to)
	if from != "" {
		transition = string(from) + "->" + string(to)
	}
	fields := map[string]any{
		"request_id":        r.requestID,
		"analysis_id":       r.id,
		"phase":             to,
		"status_transition": transition,
	}
	for k, v := range extra {
		fields[k] = v
	}
	telemetry.Info("analysis.status", fields)
}

func durationMs(startedAt, completedAt time.Time) float64 {
	if startedAt.IsZero() || completedAt.IsZero() {
		return 0
	}
	return float64(completedAt.Sub(startedAt).Microseconds()) / 1000.0
}

// discoverySize is 20% of n, at least min(5, n) and at most 30.
func discoverySize(n int) int {
	size := int(math.Ceil(float64(n) * discoveryShare))
	floor := discoveryMin
	if n < floor {
		floor = n
	}
	if size < floor {
		size = floor
	}
	if size > discoveryMax {
		size = discoveryMax
	}
	return size
}

// partition deals sessions round-robin into streams and cuts each stream into batches.
func partition(items []sessions.Session, maxStreams, batchSize int) [][][]sessions.Session {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if maxStreams <= 0 {
		maxStreams = defaultStreams
	}
	n := (len(items) + batchSize - 1) / batchSize
	if n > maxStreams {
		n = maxStreams
	}
	if n == 0 {
		return nil
	}
	dealt := make([][]sessions.Session, n)
	for i, s := range items {
		dealt[i%n] = append(dealt[i%n], s)
	}
	out := make([][][]sessions.Session, n)
	for i, stream := range dealt {
		out[i] = chunk(stream, batchSize)
	}
	return out
}

func chunk(items []sessions.Session, size int) [][]sessions.Session {
	if size <= 0 {
		size = defaultBatchSize
	}
	var out [][]sessions.Session
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

func emptyLabels() facts.Labels {
	return facts.Labels{Intents: []string{}, TransferReasons: []string{}, DropOffLocations: []string{}}
}
