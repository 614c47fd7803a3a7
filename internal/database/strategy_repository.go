package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/talentpipe/sourcing/internal/domain"
)

const strategySelectList = `id, search_id, name, payload, status, external_task_id,
	candidates_found, error_message, created_at, updated_at`

// StrategyRepository manages sourcing_strategies rows. Status updates are
// guarded in SQL so transitions only ever move forward; an update against a
// terminal or later state affects zero rows and returns ErrNotFound.
type StrategyRepository struct {
	db *sqlx.DB
}

// NewStrategyRepository creates a new repository.
func NewStrategyRepository(db *sqlx.DB) *StrategyRepository {
	return &StrategyRepository{db: db}
}

// Create inserts a pending strategy for a search.
func (r *StrategyRepository) Create(ctx context.Context, searchID, name string, payload []byte) (*domain.SourcingStrategy, error) {
	var s domain.SourcingStrategy
	err := r.db.GetContext(ctx, &s, `
		INSERT INTO sourcing_strategies (id, search_id, name, payload, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING `+strategySelectList,
		uuid.NewString(), searchID, name, payload)
	if err != nil {
		return nil, fmt.Errorf("create strategy: %w", err)
	}
	return &s, nil
}

// GetByID retrieves a strategy by id.
func (r *StrategyRepository) GetByID(ctx context.Context, id string) (*domain.SourcingStrategy, error) {
	var s domain.SourcingStrategy
	err := r.db.GetContext(ctx, &s,
		`SELECT `+strategySelectList+` FROM sourcing_strategies WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get strategy: %w", err)
	}
	return &s, nil
}

// ListBySearch returns all strategies for a search.
func (r *StrategyRepository) ListBySearch(ctx context.Context, searchID string) ([]domain.SourcingStrategy, error) {
	strategies := []domain.SourcingStrategy{}
	err := r.db.SelectContext(ctx, &strategies,
		`SELECT `+strategySelectList+` FROM sourcing_strategies
		 WHERE search_id = $1 ORDER BY created_at ASC`, searchID)
	if err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}
	return strategies, nil
}

// MarkExecuting moves a pending strategy to executing.
func (r *StrategyRepository) MarkExecuting(ctx context.Context, id string) error {
	return r.transition(ctx, `
		UPDATE sourcing_strategies
		SET status = 'executing', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, id)
}

// MarkPolling moves an executing strategy to polling and records the
// accepted external task id.
func (r *StrategyRepository) MarkPolling(ctx context.Context, id, externalTaskID string) error {
	return r.transition(ctx, `
		UPDATE sourcing_strategies
		SET status = 'polling', external_task_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'executing'`, id, externalTaskID)
}

// MarkCompleted terminates a strategy successfully with its result count.
func (r *StrategyRepository) MarkCompleted(ctx context.Context, id string, candidatesFound int) error {
	return r.transition(ctx, `
		UPDATE sourcing_strategies
		SET status = 'completed', candidates_found = $2, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'error')`, id, candidatesFound)
}

// MarkError terminates a strategy with an error message. Terminal states are
// never overwritten.
func (r *StrategyRepository) MarkError(ctx context.Context, id, message string) error {
	return r.transition(ctx, `
		UPDATE sourcing_strategies
		SET status = 'error', error_message = $2, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'error')`, id, message)
}

func (r *StrategyRepository) transition(ctx context.Context, query string, args ...any) error {
	if err := execExpectOneRow(ctx, r.db, query, args...); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("strategy transition: %w", err)
	}
	return nil
}
