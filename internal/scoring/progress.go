// Package scoring fans candidate scoring out as delayed queue jobs and
// processes one candidate per worker invocation.
package scoring

import (
	"context"

	"github.com/talentpipe/sourcing/internal/database"
	"github.com/talentpipe/sourcing/internal/domain"
)

// Aggregator derives scoring progress for a search. It holds no state:
// counts are always recomputed from search_candidates rows, which keeps the
// view correct under any interleaving of concurrent workers.
type Aggregator struct {
	candidates *database.CandidateRepository
}

// NewAggregator creates an aggregator.
func NewAggregator(candidates *database.CandidateRepository) *Aggregator {
	return &Aggregator{candidates: candidates}
}

// Counts returns scored/error/total counts for a search.
func (a *Aggregator) Counts(ctx context.Context, searchID string) (*domain.ScoringProgress, error) {
	return a.candidates.CountProgress(ctx, searchID)
}

// Progress returns counts plus score-bucket breakdown for client display.
func (a *Aggregator) Progress(ctx context.Context, searchID string) (*domain.ScoringProgress, error) {
	progress, err := a.candidates.CountProgress(ctx, searchID)
	if err != nil {
		return nil, err
	}
	buckets, err := a.candidates.BucketCounts(ctx, searchID)
	if err != nil {
		return nil, err
	}
	progress.Buckets = buckets
	return progress, nil
}
