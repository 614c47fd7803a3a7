package scoring

import (
	"context"
	"encoding/json"
	"time"

	"github.com/talentpipe/sourcing/internal/database"
	"github.com/talentpipe/sourcing/internal/logger"
	"github.com/talentpipe/sourcing/internal/metrics"
	"github.com/talentpipe/sourcing/internal/modelcache"
	"github.com/talentpipe/sourcing/internal/queue"
	"github.com/talentpipe/sourcing/internal/realtime"
)

// CandidateJobPath is the callback path scoring jobs are delivered to.
const CandidateJobPath = "/api/v1/scoring/candidate"

// delayBucket is the admission window width: at most `parallelism` jobs
// become eligible in any bucket, approximating a concurrency cap on the
// evaluate API without a shared semaphore.
const delayBucket = 2 * time.Second

// DefaultParallelism is the dispatch parallelism when the caller does not
// specify one.
const DefaultParallelism = 5

// Job is the queue payload for scoring one candidate.
type Job struct {
	SearchID          string          `json:"searchId"`
	SearchCandidateID string          `json:"searchCandidateId"`
	CandidateID       string          `json:"candidateId"`
	CandidateData     json.RawMessage `json:"candidateData,omitempty"`
	Total             int             `json:"total"`
}

// Dispatcher enqueues one scoring job per unscored candidate of a search,
// time-bucketed by the parallelism window.
type Dispatcher struct {
	searches   *database.SearchRepository
	candidates *database.CandidateRepository
	models     *modelcache.Service
	publisher  queue.Publisher
	bus        realtime.Bus
	metrics    *metrics.Metrics
	logger     logger.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(
	searches *database.SearchRepository,
	candidates *database.CandidateRepository,
	models *modelcache.Service,
	publisher queue.Publisher,
	bus realtime.Bus,
	m *metrics.Metrics,
	log logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		searches:   searches,
		candidates: candidates,
		models:     models,
		publisher:  publisher,
		bus:        bus,
		metrics:    m,
		logger:     log,
	}
}

// Dispatch enqueues scoring jobs for every unscored candidate of the search.
// Preconditions: the search exists and its scoring model is computed —
// dispatching before the model exists fails fast with
// domain.ErrModelNotComputed rather than racing workers against the
// computation. Returns the number of jobs queued.
func (d *Dispatcher) Dispatch(ctx context.Context, searchID string, parallelism int) (int, error) {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	search, err := d.searches.GetByID(ctx, searchID)
	if err != nil {
		return 0, err
	}
	if _, err := d.models.GetComputed(ctx, search.ID); err != nil {
		return 0, err
	}

	unscored, err := d.candidates.ListUnscored(ctx, searchID)
	if err != nil {
		return 0, err
	}
	total, err := d.candidates.CountBySearch(ctx, searchID)
	if err != nil {
		return 0, err
	}
	if len(unscored) == 0 {
		d.logger.Info("no unscored candidates to dispatch",
			logger.String("search_id", searchID))
		return 0, nil
	}

	d.bus.Emit(ctx, realtime.SearchChannel(searchID), realtime.EventScoringStarted,
		map[string]any{"total": total})
	d.metrics.EventsEmitted.WithLabelValues(realtime.EventScoringStarted).Inc()

	queued := 0
	for i := range unscored {
		candidate := &unscored[i]
		delay := time.Duration(i/parallelism) * delayBucket

		job := Job{
			SearchID:          searchID,
			SearchCandidateID: candidate.ID,
			CandidateID:       candidate.CandidateID,
			CandidateData:     candidate.Profile,
			Total:             total,
		}
		if err := d.publisher.Publish(ctx, CandidateJobPath, job, delay); err != nil {
			// At-least-once queue: a lost enqueue surfaces as a stuck
			// candidate, visible through the progress endpoint.
			d.logger.Error("failed to enqueue scoring job",
				logger.String("search_id", searchID),
				logger.String("search_candidate_id", candidate.ID),
				logger.Error(err))
			continue
		}
		queued++
	}

	d.metrics.ScoringDispatched.Add(float64(queued))
	d.logger.Info("scoring jobs dispatched",
		logger.String("search_id", searchID),
		logger.Int("queued", queued),
		logger.Int("parallelism", parallelism))

	return queued, nil
}

// DelayFor returns the enqueue delay for the candidate at 0-based index i.
func DelayFor(i, parallelism int) time.Duration {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	return time.Duration(i/parallelism) * delayBucket
}
