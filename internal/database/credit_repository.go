package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/talentpipe/sourcing/internal/domain"
)

const transactionSelectList = `id, organization_id, user_id, type, credit_type,
	amount, balance_before, balance_after, related_entity_id, description,
	metadata, created_at`

// CreditRepository manages the organization credit balance and its immutable
// transaction log. Deduct runs as a single database transaction with a row
// lock on the organization, so concurrent debits serialize and the balance
// always equals the balance_after of the latest committed transaction.
type CreditRepository struct {
	db *sqlx.DB
}

// NewCreditRepository creates a new repository.
func NewCreditRepository(db *sqlx.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

// Deduct atomically debits an organization and appends the consumption
// transaction. Returns domain.ErrInsufficientCredits without any mutation
// when the balance cannot cover the amount. The request must already be
// validated (positive amount).
func (r *CreditRepository) Deduct(ctx context.Context, req *domain.DeductRequest) (*domain.CreditTransaction, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin deduct: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var balanceBefore int
	err = tx.GetContext(ctx, &balanceBefore,
		`SELECT credits FROM organizations WHERE id = $1 FOR UPDATE`,
		req.OrganizationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}

	if balanceBefore < req.Amount {
		return nil, fmt.Errorf("%w: balance %d, requested %d",
			domain.ErrInsufficientCredits, balanceBefore, req.Amount)
	}
	balanceAfter := balanceBefore - req.Amount

	if _, err = tx.ExecContext(ctx,
		`UPDATE organizations SET credits = $2, updated_at = NOW() WHERE id = $1`,
		req.OrganizationID, balanceAfter); err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}

	var relatedEntityID *string
	if req.RelatedEntityID != "" {
		relatedEntityID = &req.RelatedEntityID
	}

	var txn domain.CreditTransaction
	err = tx.GetContext(ctx, &txn, `
		INSERT INTO credit_transactions
			(id, organization_id, user_id, type, credit_type, amount,
			 balance_before, balance_after, related_entity_id, description, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+transactionSelectList,
		uuid.NewString(), req.OrganizationID, req.UserID,
		domain.CreditTypeConsumption, req.CreditType, -req.Amount,
		balanceBefore, balanceAfter, relatedEntityID, req.Description,
		[]byte(req.Metadata))
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit deduct: %w", err)
	}
	return &txn, nil
}

// GetBalance returns the organization's current credit balance.
func (r *CreditRepository) GetBalance(ctx context.Context, organizationID string) (int, error) {
	var balance int
	err := r.db.GetContext(ctx, &balance,
		`SELECT credits FROM organizations WHERE id = $1`, organizationID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// UsageForPeriod sums the absolute consumption amounts for an organization
// in [from, to). Pure read, no locking.
func (r *CreditRepository) UsageForPeriod(ctx context.Context, organizationID string, from, to time.Time) (int, error) {
	var total int
	err := r.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(ABS(amount)), 0)
		FROM credit_transactions
		WHERE organization_id = $1
		  AND type = $2
		  AND created_at >= $3
		  AND created_at < $4`,
		organizationID, domain.CreditTypeConsumption, from, to)
	if err != nil {
		return 0, fmt.Errorf("usage for period: %w", err)
	}
	return total, nil
}

// ListTransactions returns recent ledger rows for an organization, newest first.
func (r *CreditRepository) ListTransactions(ctx context.Context, organizationID string, limit int) ([]domain.CreditTransaction, error) {
	txns := []domain.CreditTransaction{}
	err := r.db.SelectContext(ctx, &txns,
		`SELECT `+transactionSelectList+` FROM credit_transactions
		 WHERE organization_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, organizationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txns, nil
}
