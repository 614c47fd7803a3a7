package modelcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/talentpipe/sourcing/internal/domain"
)

const modelSelectList = `search_id, status, version, checksum, payload, created_at, computed_at`

// Repository persists scoring-model cache entries in PostgreSQL.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a new repository.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the cache entry for a search, or domain.ErrNotFound.
func (r *Repository) Get(ctx context.Context, searchID string) (*ScoringModel, error) {
	var m ScoringModel
	err := r.db.GetContext(ctx, &m,
		`SELECT `+modelSelectList+` FROM scoring_models WHERE search_id = $1`, searchID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scoring model: %w", err)
	}
	return &m, nil
}

// GetComputed returns the entry only when it is fully computed; otherwise
// domain.ErrModelNotComputed. This is the read path for dispatcher
// preconditions and worker loads.
func (r *Repository) GetComputed(ctx context.Context, searchID string) (*ScoringModel, error) {
	m, err := r.Get(ctx, searchID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrModelNotComputed
	}
	if err != nil {
		return nil, err
	}
	if !m.IsComputed() {
		return nil, domain.ErrModelNotComputed
	}
	return m, nil
}

// Claim inserts a computing entry for a search. Returns true when this caller
// won the claim; false when an entry already exists (computing or computed).
func (r *Repository) Claim(ctx context.Context, searchID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO scoring_models (search_id, status)
		VALUES ($1, 'computing')
		ON CONFLICT (search_id) DO NOTHING`, searchID)
	if err != nil {
		return false, fmt.Errorf("claim scoring model: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get affected rows: %w", err)
	}
	return rows == 1, nil
}

// MarkComputed completes a claimed entry with the computed payload. Only a
// computing entry can be completed; a computed entry is never overwritten.
func (r *Repository) MarkComputed(ctx context.Context, searchID string, version int, payload json.RawMessage) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE scoring_models
		SET status = 'computed',
		    version = $2,
		    checksum = $3,
		    payload = $4,
		    computed_at = NOW()
		WHERE search_id = $1 AND status = 'computing'`,
		searchID, version, ChecksumOf(payload), []byte(payload))
	if err != nil {
		return fmt.Errorf("mark computed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Invalidate removes the entry so the next EnsureComputed recomputes it.
// Used when search criteria change upstream.
func (r *Repository) Invalidate(ctx context.Context, searchID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM scoring_models WHERE search_id = $1`, searchID)
	if err != nil {
		return fmt.Errorf("invalidate scoring model: %w", err)
	}
	return nil
}
