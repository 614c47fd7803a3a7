package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/talentpipe/sourcing/internal/database"
	"github.com/talentpipe/sourcing/internal/domain"
	"github.com/talentpipe/sourcing/internal/external"
	"github.com/talentpipe/sourcing/internal/logger"
	"github.com/talentpipe/sourcing/internal/metrics"
	"github.com/talentpipe/sourcing/internal/modelcache"
	"github.com/talentpipe/sourcing/internal/realtime"
)

// Evaluator scores one candidate profile against a scoring model. Backed by
// the external evaluate collaborator.
type Evaluator interface {
	Evaluate(ctx context.Context, profile, model json.RawMessage, candidateID string) (*external.EvaluateResult, error)
}

// Worker defaults, overridable through WorkerConfig.
const (
	defaultMaxAttempts = 3
	defaultBackoff     = 400 * time.Millisecond
)

// WorkerConfig tunes the per-candidate attempt loop.
type WorkerConfig struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultWorkerConfig returns the production attempt budget.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{MaxAttempts: defaultMaxAttempts, Backoff: defaultBackoff}
}

// Result is the outcome of one worker invocation.
type Result struct {
	Score    *int
	Progress *domain.ScoringProgress
}

// Worker scores exactly one candidate per invocation. Invocations are
// stateless and independent; any number may run concurrently, and redelivery
// of an already-scored candidate is a no-op.
type Worker struct {
	searches   *database.SearchRepository
	candidates *database.CandidateRepository
	models     *modelcache.Service
	evaluator  Evaluator
	aggregator *Aggregator
	bus        realtime.Bus
	metrics    *metrics.Metrics
	logger     logger.Logger
	cfg        WorkerConfig
}

// NewWorker creates a worker.
func NewWorker(
	searches *database.SearchRepository,
	candidates *database.CandidateRepository,
	models *modelcache.Service,
	evaluator Evaluator,
	aggregator *Aggregator,
	bus realtime.Bus,
	m *metrics.Metrics,
	log logger.Logger,
	cfg WorkerConfig,
) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	return &Worker{
		searches:   searches,
		candidates: candidates,
		models:     models,
		evaluator:  evaluator,
		aggregator: aggregator,
		bus:        bus,
		metrics:    m,
		logger:     log,
		cfg:        cfg,
	}
}

// Process runs one scoring cycle for the job's candidate. Per-candidate
// failures are recorded on the candidate row and never abort the batch: an
// error return here means the job itself could not be processed (missing
// search or candidate), not that scoring failed.
func (w *Worker) Process(ctx context.Context, job *Job) (*Result, error) {
	start := time.Now()

	search, err := w.searches.GetByID(ctx, job.SearchID)
	if err != nil {
		return nil, err
	}
	candidate, err := w.candidates.GetByID(ctx, job.SearchCandidateID)
	if err != nil {
		return nil, err
	}

	// At-least-once delivery: a candidate scored by an earlier delivery keeps
	// its score, whatever this delivery would have produced.
	if candidate.IsScored() {
		w.logger.Debug("candidate already scored, skipping",
			logger.String("search_candidate_id", candidate.ID))
		return w.finish(ctx, job, candidate.MatchScore)
	}

	model, loadErr := w.loadModel(ctx, search)
	if loadErr != nil {
		// Missing criteria or model is a per-candidate scoring error, not a
		// batch abort: record it and move on.
		if err := w.candidates.MarkScoringError(ctx, candidate.ID, loadErr.Error()); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		w.metrics.CandidatesFailed.Inc()
		return w.finish(ctx, job, nil)
	}

	profile := job.CandidateData
	if len(profile) == 0 {
		profile = candidate.Profile
	}

	score, raw, evalErr := w.attemptLoop(ctx, candidate, profile, model.Payload)
	w.metrics.ScoringDuration.Observe(time.Since(start).Seconds())

	if evalErr != nil {
		if err := w.candidates.MarkScoringError(ctx, candidate.ID, evalErr.Error()); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		w.metrics.CandidatesFailed.Inc()
		return w.finish(ctx, job, nil)
	}

	err = w.candidates.MarkScored(ctx, candidate.ID, score, raw)
	if errors.Is(err, domain.ErrNotFound) {
		// A concurrent delivery won the terminal write; its score stands.
		return w.finish(ctx, job, &score)
	}
	if err != nil {
		return nil, err
	}

	w.metrics.CandidatesScored.Inc()
	return w.finish(ctx, job, &score)
}

// loadModel resolves the cached scoring model, requiring parsed criteria
// first: the model is computed from them and both must exist before any
// evaluate call.
func (w *Worker) loadModel(ctx context.Context, search *domain.Search) (*modelcache.ScoringModel, error) {
	if !search.HasParsedCriteria() {
		return nil, fmt.Errorf("search %s has no parsed criteria", search.ID)
	}
	model, err := w.models.GetComputed(ctx, search.ID)
	if err != nil {
		return nil, fmt.Errorf("scoring model unavailable for search %s: %w", search.ID, err)
	}
	return model, nil
}

// attemptLoop calls the evaluate API with bounded retries and linear backoff
// (400ms × attempt). The attempt counter is persisted before each call so a
// crash mid-attempt still leaves an accurate count.
func (w *Worker) attemptLoop(ctx context.Context, candidate *domain.SearchCandidate, profile, model json.RawMessage) (int, json.RawMessage, error) {
	var lastErr error

	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		if err := w.candidates.IncrementAttempts(ctx, candidate.ID); err != nil {
			return 0, nil, err
		}
		w.metrics.ScoringAttempts.Inc()

		result, err := w.evaluator.Evaluate(ctx, profile, model, candidate.CandidateID)
		switch {
		case err != nil:
			lastErr = err
		case result.FinalScore == nil:
			lastErr = fmt.Errorf("evaluate response missing final_score")
		default:
			return int(math.Round(*result.FinalScore)), result.Raw, nil
		}

		w.logger.Warn("evaluate attempt failed",
			logger.String("search_candidate_id", candidate.ID),
			logger.Int("attempt", attempt),
			logger.Error(lastErr))

		if attempt < w.cfg.MaxAttempts {
			if err := sleepCtx(ctx, time.Duration(attempt)*w.cfg.Backoff); err != nil {
				return 0, nil, err
			}
		}
	}

	return 0, nil, fmt.Errorf("scoring failed after %d attempts: %w", w.cfg.MaxAttempts, lastErr)
}

// finish recomputes progress, emits the progress event, and emits completion
// when every candidate has reached a terminal state. Multiple workers may
// cross the completion threshold concurrently and each will emit; the
// duplicate is tolerated and consumers treat the signal idempotently.
func (w *Worker) finish(ctx context.Context, job *Job, score *int) (*Result, error) {
	progress, err := w.aggregator.Counts(ctx, job.SearchID)
	if err != nil {
		return nil, err
	}
	if job.Total > progress.Total {
		progress.Total = job.Total
	}

	channel := realtime.SearchChannel(job.SearchID)
	w.bus.Emit(ctx, channel, realtime.EventScoringProgress, map[string]any{
		"candidateId": job.CandidateID,
		"score":       score,
		"scored":      progress.Scored,
		"total":       progress.Total,
	})
	w.metrics.EventsEmitted.WithLabelValues(realtime.EventScoringProgress).Inc()

	if err := w.searches.UpdateProgress(ctx, job.SearchID, progress.Percent()); err != nil && !errors.Is(err, domain.ErrNotFound) {
		w.logger.Warn("failed to update search progress",
			logger.String("search_id", job.SearchID),
			logger.Error(err))
	}

	if progress.Done() {
		w.bus.Emit(ctx, channel, realtime.EventScoringCompleted, map[string]any{
			"scored": progress.Scored,
			"errors": progress.Errors,
		})
		w.metrics.EventsEmitted.WithLabelValues(realtime.EventScoringCompleted).Inc()

		if err := w.searches.UpdateStatus(ctx, job.SearchID, domain.SearchStatusCompleted); err != nil && !errors.Is(err, domain.ErrNotFound) {
			w.logger.Warn("failed to mark search completed",
				logger.String("search_id", job.SearchID),
				logger.Error(err))
		}
	}

	return &Result{Score: score, Progress: progress}, nil
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
