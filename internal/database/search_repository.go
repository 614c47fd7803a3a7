package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/talentpipe/sourcing/internal/domain"
)

// searchSelectList is the column list for SELECT on searches (single source
// for schema changes).
const searchSelectList = `id, organization_id, query, parsed_criteria, status,
	progress, created_at, updated_at`

// SearchRepository manages searches rows.
type SearchRepository struct {
	db *sqlx.DB
}

// NewSearchRepository creates a new repository.
func NewSearchRepository(db *sqlx.DB) *SearchRepository {
	return &SearchRepository{db: db}
}

// GetByID retrieves a search by id.
func (r *SearchRepository) GetByID(ctx context.Context, id string) (*domain.Search, error) {
	var s domain.Search
	err := r.db.GetContext(ctx, &s,
		`SELECT `+searchSelectList+` FROM searches WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get search: %w", err)
	}
	return &s, nil
}

// UpdateStatus sets the search status.
func (r *SearchRepository) UpdateStatus(ctx context.Context, id string, status domain.SearchStatus) error {
	if err := execExpectOneRow(ctx, r.db,
		`UPDATE searches SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("update search status: %w", err)
	}
	return nil
}

// UpdateProgress sets the search progress percentage, clamped to [0,100].
func (r *SearchRepository) UpdateProgress(ctx context.Context, id string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if err := execExpectOneRow(ctx, r.db,
		`UPDATE searches SET progress = $2, updated_at = NOW() WHERE id = $1`,
		id, progress); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("update search progress: %w", err)
	}
	return nil
}

// SetParsedCriteria writes the parsed-criteria blob produced by the parse
// collaborator. Written at most once per search unless invalidated upstream.
func (r *SearchRepository) SetParsedCriteria(ctx context.Context, id string, criteria json.RawMessage) error {
	if err := execExpectOneRow(ctx, r.db,
		`UPDATE searches SET parsed_criteria = $2, updated_at = NOW() WHERE id = $1`,
		id, []byte(criteria)); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("set parsed criteria: %w", err)
	}
	return nil
}

// execExpectOneRow runs an exec and returns domain.ErrNotFound when no row
// was affected.
func execExpectOneRow(ctx context.Context, db *sqlx.DB, query string, args ...any) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
