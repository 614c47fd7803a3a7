// Package workflow drives sourcing strategies through their state machine:
// pending → executing → polling → {completed | error}.
//
// Each strategy runs as one queue-delivered job, independent of its siblings.
// State is persisted at every transition, so a redelivered job resumes from
// the database instead of repeating completed work; terminal states are
// final — a failed strategy is relaunched as a new entity, never retried in
// place.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/talentpipe/sourcing/internal/database"
	"github.com/talentpipe/sourcing/internal/domain"
	"github.com/talentpipe/sourcing/internal/external"
	"github.com/talentpipe/sourcing/internal/logger"
	"github.com/talentpipe/sourcing/internal/metrics"
	"github.com/talentpipe/sourcing/internal/modelcache"
	"github.com/talentpipe/sourcing/internal/queue"
	"github.com/talentpipe/sourcing/internal/realtime"
)

// Queue callback paths for workflow jobs.
const (
	StrategyJobPath = "/api/v1/workflow/strategy"
	ScoringJobPath  = "/api/v1/workflow/scoring"
)

// pollingTimeoutMessage is the terminal error for an exhausted poll budget.
const pollingTimeoutMessage = "Polling timeout"

// Sourcer is the external strategy execution collaborator.
type Sourcer interface {
	ExecuteStrategy(ctx context.Context, payload json.RawMessage) (string, error)
	PollResults(ctx context.Context, taskID string) (*external.TaskResult, error)
}

// Parser is the external query parsing collaborator.
type Parser interface {
	ParseQuery(ctx context.Context, query string) (json.RawMessage, error)
}

// Config tunes the poll loop. MaxPollAttempts bounds total ticks, so a
// strategy waits at most MaxPollAttempts × PollInterval before timing out.
type Config struct {
	PollInterval    time.Duration
	MaxPollAttempts int
}

// DefaultConfig returns the production poll budget (5s × 60 ≈ 5 minutes).
func DefaultConfig() Config {
	return Config{PollInterval: 5 * time.Second, MaxPollAttempts: 60}
}

// StrategyJob is the queue payload for running one strategy.
type StrategyJob struct {
	StrategyID string `json:"strategyId"`
	SearchID   string `json:"searchId"`
}

// ScoringDispatchJob is the queue payload handing a search off to scoring.
type ScoringDispatchJob struct {
	SearchID    string `json:"searchId"`
	Parallelism int    `json:"parallelism,omitempty"`
}

// StrategyPlan describes one strategy to launch for a search.
type StrategyPlan struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// Orchestrator runs the per-strategy state machine.
type Orchestrator struct {
	searches   *database.SearchRepository
	strategies *database.StrategyRepository
	candidates *database.CandidateRepository
	models     *modelcache.Service
	sourcer    Sourcer
	parser     Parser
	publisher  queue.Publisher
	bus        realtime.Bus
	metrics    *metrics.Metrics
	logger     logger.Logger
	cfg        Config
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(
	searches *database.SearchRepository,
	strategies *database.StrategyRepository,
	candidates *database.CandidateRepository,
	models *modelcache.Service,
	sourcer Sourcer,
	parser Parser,
	publisher queue.Publisher,
	bus realtime.Bus,
	m *metrics.Metrics,
	log logger.Logger,
	cfg Config,
) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = DefaultConfig().MaxPollAttempts
	}
	return &Orchestrator{
		searches:   searches,
		strategies: strategies,
		candidates: candidates,
		models:     models,
		sourcer:    sourcer,
		parser:     parser,
		publisher:  publisher,
		bus:        bus,
		metrics:    m,
		logger:     log,
		cfg:        cfg,
	}
}

// LaunchStrategies creates pending strategies for a search and enqueues one
// strategy job each. The search moves to processing.
func (o *Orchestrator) LaunchStrategies(ctx context.Context, searchID string, plans []StrategyPlan) ([]domain.SourcingStrategy, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("%w: at least one strategy is required", domain.ErrValidation)
	}
	search, err := o.searches.GetByID(ctx, searchID)
	if err != nil {
		return nil, err
	}

	created := make([]domain.SourcingStrategy, 0, len(plans))
	for _, plan := range plans {
		if plan.Name == "" {
			return nil, fmt.Errorf("%w: strategy name is required", domain.ErrValidation)
		}
		strategy, err := o.strategies.Create(ctx, search.ID, plan.Name, plan.Payload)
		if err != nil {
			return nil, err
		}
		created = append(created, *strategy)
	}

	if err := o.searches.UpdateStatus(ctx, search.ID, domain.SearchStatusProcessing); err != nil {
		return nil, err
	}

	for i := range created {
		job := StrategyJob{StrategyID: created[i].ID, SearchID: search.ID}
		if err := o.publisher.Publish(ctx, StrategyJobPath, job, 0); err != nil {
			o.logger.Error("failed to enqueue strategy job",
				logger.String("strategy_id", created[i].ID),
				logger.Error(err))
		}
	}
	return created, nil
}

// RunStrategy executes one strategy to a terminal state. Safe under
// at-least-once delivery: a strategy already terminal is left untouched.
func (o *Orchestrator) RunStrategy(ctx context.Context, strategyID string) error {
	strategy, err := o.strategies.GetByID(ctx, strategyID)
	if err != nil {
		return err
	}
	if strategy.Status.IsTerminal() {
		o.logger.Debug("strategy already terminal, skipping",
			logger.String("strategy_id", strategy.ID),
			logger.String("status", string(strategy.Status)))
		return nil
	}

	if err := o.strategies.MarkExecuting(ctx, strategy.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	o.emitStrategyEvent(ctx, strategy.SearchID, strategy.ID, domain.StrategyStatusExecuting)

	taskID, err := o.sourcer.ExecuteStrategy(ctx, strategy.Payload)
	if err != nil {
		return o.failStrategy(ctx, strategy, executionFailureMessage(err), "execute")
	}

	if err := o.strategies.MarkPolling(ctx, strategy.ID, taskID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	o.emitStrategyEvent(ctx, strategy.SearchID, strategy.ID, domain.StrategyStatusPolling)

	candidates, pollErr := o.pollUntilDone(ctx, strategy, taskID)
	if pollErr != nil {
		var upstream *pollFailure
		if errors.As(pollErr, &upstream) {
			return o.failStrategy(ctx, strategy, upstream.message, "upstream")
		}
		if errors.Is(pollErr, domain.ErrPollingTimeout) {
			return o.failStrategy(ctx, strategy, pollingTimeoutMessage, "timeout")
		}
		return pollErr
	}

	persisted, err := o.candidates.UpsertProfiles(ctx, strategy.SearchID, toRawProfiles(candidates))
	if err != nil {
		return o.failStrategy(ctx, strategy, fmt.Sprintf("persist candidates: %v", err), "persist")
	}
	o.metrics.CandidatesSourced.Add(float64(persisted))

	if err := o.strategies.MarkCompleted(ctx, strategy.ID, len(candidates)); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	o.metrics.StrategiesCompleted.Inc()
	o.emitStrategyEvent(ctx, strategy.SearchID, strategy.ID, domain.StrategyStatusCompleted)

	o.logger.Info("strategy completed",
		logger.String("strategy_id", strategy.ID),
		logger.String("search_id", strategy.SearchID),
		logger.Int("candidates_found", len(candidates)))

	return o.maybeHandOffToScoring(ctx, strategy.SearchID)
}

// pollFailure carries an upstream task failure message to the caller.
type pollFailure struct {
	message string
}

func (f *pollFailure) Error() string { return f.message }

// pollUntilDone polls the external task until it completes, fails, or the
// tick budget is exhausted. An errored poll call is logged and retried on
// the next tick; it still consumes a tick, keeping the wait bounded.
func (o *Orchestrator) pollUntilDone(ctx context.Context, strategy *domain.SourcingStrategy, taskID string) ([]external.TaskCandidate, error) {
	for i := 0; i < o.cfg.MaxPollAttempts; i++ {
		if err := sleepCtx(ctx, o.cfg.PollInterval); err != nil {
			return nil, err
		}

		result, err := o.sourcer.PollResults(ctx, taskID)
		if err != nil {
			o.logger.Debug("poll call failed, will retry on next tick",
				logger.String("strategy_id", strategy.ID),
				logger.Int("iteration", i+1),
				logger.Error(err))
			continue
		}

		switch result.Status {
		case external.TaskStatusCompleted:
			o.metrics.PollIterations.Observe(float64(i + 1))
			return result.Candidates, nil
		case external.TaskStatusFailed:
			message := result.Error
			if message == "" {
				message = "sourcing task failed"
			}
			return nil, &pollFailure{message: message}
		}
	}
	return nil, domain.ErrPollingTimeout
}

// maybeHandOffToScoring enqueues the scoring dispatch once every strategy of
// the search is terminal. Two strategies finishing simultaneously may both
// enqueue; the dispatch is idempotent over unscored candidates, so the
// duplicate is tolerated.
func (o *Orchestrator) maybeHandOffToScoring(ctx context.Context, searchID string) error {
	strategies, err := o.strategies.ListBySearch(ctx, searchID)
	if err != nil {
		return err
	}
	for i := range strategies {
		if !strategies[i].Status.IsTerminal() {
			return nil
		}
	}

	if err := o.ensureScoringReady(ctx, searchID); err != nil {
		return err
	}

	if err := o.searches.UpdateStatus(ctx, searchID, domain.SearchStatusScoring); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	job := ScoringDispatchJob{SearchID: searchID}
	if err := o.publisher.Publish(ctx, ScoringJobPath, job, 0); err != nil {
		return fmt.Errorf("enqueue scoring dispatch: %w", err)
	}
	o.logger.Info("search handed off to scoring",
		logger.String("search_id", searchID))
	return nil
}

// ensureScoringReady guarantees the ordering dependency of scoring: parsed
// criteria first, then the once-computed scoring model.
func (o *Orchestrator) ensureScoringReady(ctx context.Context, searchID string) error {
	search, err := o.searches.GetByID(ctx, searchID)
	if err != nil {
		return err
	}

	if !search.HasParsedCriteria() {
		criteria, err := o.parser.ParseQuery(ctx, search.Query)
		if err != nil {
			return fmt.Errorf("parse search query: %w", err)
		}
		if err := o.searches.SetParsedCriteria(ctx, search.ID, criteria); err != nil {
			return err
		}
		search.ParsedCriteria = criteria
	}

	if _, err := o.models.EnsureComputed(ctx, search); err != nil {
		return err
	}
	return nil
}

// failStrategy terminates a strategy with an error message and records the
// failure. The returned error is nil: a terminal strategy failure is handled,
// not propagated, so sibling strategies and the queue delivery both proceed.
func (o *Orchestrator) failStrategy(ctx context.Context, strategy *domain.SourcingStrategy, message, reason string) error {
	if err := o.strategies.MarkError(ctx, strategy.ID, message); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	o.metrics.StrategiesFailed.WithLabelValues(reason).Inc()
	o.emitStrategyEvent(ctx, strategy.SearchID, strategy.ID, domain.StrategyStatusError)

	o.logger.Warn("strategy failed",
		logger.String("strategy_id", strategy.ID),
		logger.String("search_id", strategy.SearchID),
		logger.String("reason", reason),
		logger.String("message", message))

	// Sibling strategies may all be terminal now; scoring still proceeds over
	// whatever candidates were sourced.
	return o.maybeHandOffToScoring(ctx, strategy.SearchID)
}

func (o *Orchestrator) emitStrategyEvent(ctx context.Context, searchID, strategyID string, status domain.StrategyStatus) {
	o.bus.Emit(ctx, realtime.SearchChannel(searchID), realtime.EventStrategyUpdated, map[string]any{
		"strategyId": strategyID,
		"status":     status,
	})
	o.metrics.EventsEmitted.WithLabelValues(realtime.EventStrategyUpdated).Inc()
}

// executionFailureMessage formats the terminal message for a failed execute
// call: the upstream status code when available, the error otherwise.
func executionFailureMessage(err error) string {
	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) {
		return fmt.Sprintf("Execution failed: %d", upstream.StatusCode)
	}
	return fmt.Sprintf("Execution failed: %v", err)
}

func toRawProfiles(candidates []external.TaskCandidate) []database.RawProfile {
	profiles := make([]database.RawProfile, 0, len(candidates))
	for i := range candidates {
		profiles = append(profiles, database.RawProfile{
			CandidateID: candidates[i].CandidateID,
			Profile:     candidates[i].Profile,
		})
	}
	return profiles
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
