package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/talentpipe/sourcing/internal/domain"
)

const candidateSelectList = `id, search_id, candidate_id, profile, match_score,
	scoring_result, scoring_error, scoring_error_at, scoring_attempts,
	scoring_updated_at, created_at`

// CandidateRepository manages search_candidates rows. Strategy result
// persistence upserts by (search_id, candidate_id); scoring writes are
// guarded so an existing score is never overwritten by a late or duplicate
// delivery.
type CandidateRepository struct {
	db *sqlx.DB
}

// NewCandidateRepository creates a new repository.
func NewCandidateRepository(db *sqlx.DB) *CandidateRepository {
	return &CandidateRepository{db: db}
}

// RawProfile is one raw candidate profile returned by a sourcing task.
type RawProfile struct {
	CandidateID string          `json:"candidate_id"`
	Profile     json.RawMessage `json:"profile"`
}

// UpsertProfiles persists raw candidate profiles for a search. The upsert
// refreshes the profile blob only; scoring columns are never touched, so
// concurrent strategies and redelivered results cannot clobber a score.
func (r *CandidateRepository) UpsertProfiles(ctx context.Context, searchID string, profiles []RawProfile) (int, error) {
	if len(profiles) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO search_candidates (id, search_id, candidate_id, profile)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (search_id, candidate_id)
		DO UPDATE SET profile = EXCLUDED.profile`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i := range profiles {
		p := &profiles[i]
		if p.CandidateID == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), searchID, p.CandidateID, []byte(p.Profile)); err != nil {
			return 0, fmt.Errorf("upsert candidate %s: %w", p.CandidateID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	return len(profiles), nil
}

// GetByID retrieves one search candidate row.
func (r *CandidateRepository) GetByID(ctx context.Context, id string) (*domain.SearchCandidate, error) {
	var c domain.SearchCandidate
	err := r.db.GetContext(ctx, &c,
		`SELECT `+candidateSelectList+` FROM search_candidates WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get candidate: %w", err)
	}
	return &c, nil
}

// ListUnscored returns candidates without a terminal scoring state, in
// creation order so dispatch delays are deterministic.
func (r *CandidateRepository) ListUnscored(ctx context.Context, searchID string) ([]domain.SearchCandidate, error) {
	candidates := []domain.SearchCandidate{}
	err := r.db.SelectContext(ctx, &candidates, `
		SELECT `+candidateSelectList+` FROM search_candidates
		WHERE search_id = $1 AND match_score IS NULL AND scoring_error IS NULL
		ORDER BY created_at ASC, id ASC`, searchID)
	if err != nil {
		return nil, fmt.Errorf("list unscored: %w", err)
	}
	return candidates, nil
}

// CountBySearch returns the total number of candidates for a search.
func (r *CandidateRepository) CountBySearch(ctx context.Context, searchID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM search_candidates WHERE search_id = $1`, searchID)
	if err != nil {
		return 0, fmt.Errorf("count candidates: %w", err)
	}
	return count, nil
}

// IncrementAttempts bumps the monotonic attempt counter before an evaluate call.
func (r *CandidateRepository) IncrementAttempts(ctx context.Context, id string) error {
	if err := execExpectOneRow(ctx, r.db, `
		UPDATE search_candidates
		SET scoring_attempts = scoring_attempts + 1
		WHERE id = $1`, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("increment attempts: %w", err)
	}
	return nil
}

// MarkScored records a successful terminal write: sets the score and raw
// result, clears the error fields. Guarded on match_score IS NULL so an
// at-least-once redelivery never regresses an existing score; a guarded miss
// is reported as ErrNotFound for the caller to treat as already-scored.
func (r *CandidateRepository) MarkScored(ctx context.Context, id string, score int, result json.RawMessage) error {
	if err := execExpectOneRow(ctx, r.db, `
		UPDATE search_candidates
		SET match_score = $2,
		    scoring_result = $3,
		    scoring_error = NULL,
		    scoring_error_at = NULL,
		    scoring_updated_at = NOW()
		WHERE id = $1 AND match_score IS NULL`, id, score, []byte(result)); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("mark scored: %w", err)
	}
	return nil
}

// MarkScoringError records a failed terminal write: sets the error fields and
// leaves match_score null. Guarded on match_score IS NULL so a failing
// redelivery cannot erase a previously persisted score.
func (r *CandidateRepository) MarkScoringError(ctx context.Context, id, message string) error {
	if err := execExpectOneRow(ctx, r.db, `
		UPDATE search_candidates
		SET scoring_error = $2,
		    scoring_error_at = NOW(),
		    match_score = NULL,
		    scoring_result = NULL,
		    scoring_updated_at = NOW()
		WHERE id = $1 AND match_score IS NULL`, id, message); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("mark scoring error: %w", err)
	}
	return nil
}

// ClearScore resets scoring state for an explicit re-scoring request. This is
// the only path that may discard a persisted score.
func (r *CandidateRepository) ClearScore(ctx context.Context, id string) error {
	if err := execExpectOneRow(ctx, r.db, `
		UPDATE search_candidates
		SET match_score = NULL,
		    scoring_result = NULL,
		    scoring_error = NULL,
		    scoring_error_at = NULL,
		    scoring_updated_at = NOW()
		WHERE id = $1`, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("clear score: %w", err)
	}
	return nil
}

// CountProgress recomputes the aggregate scoring counts for a search.
func (r *CandidateRepository) CountProgress(ctx context.Context, searchID string) (*domain.ScoringProgress, error) {
	progress := domain.ScoringProgress{SearchID: searchID}
	err := r.db.QueryRowxContext(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE match_score IS NOT NULL) AS scored,
			COUNT(*) FILTER (WHERE match_score IS NULL AND scoring_error IS NOT NULL) AS errors
		FROM search_candidates
		WHERE search_id = $1`, searchID).
		Scan(&progress.Total, &progress.Scored, &progress.Errors)
	if err != nil {
		return nil, fmt.Errorf("count progress: %w", err)
	}
	return &progress, nil
}

// BucketCounts returns scored-candidate counts per display bucket.
func (r *CandidateRepository) BucketCounts(ctx context.Context, searchID string) (map[string]int, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT
			CASE
				WHEN match_score >= 80 THEN 'strong'
				WHEN match_score >= 60 THEN 'good'
				WHEN match_score >= 40 THEN 'fair'
				ELSE 'weak'
			END AS bucket,
			COUNT(*) AS count
		FROM search_candidates
		WHERE search_id = $1 AND match_score IS NOT NULL
		GROUP BY bucket`, searchID)
	if err != nil {
		return nil, fmt.Errorf("bucket counts: %w", err)
	}
	defer rows.Close()

	buckets := map[string]int{}
	for rows.Next() {
		var bucket string
		var count int
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		buckets[bucket] = count
	}
	return buckets, rows.Err()
}
