// Package ledger gates paid actions through the organization credit balance.
//
// Debits are atomic: the balance update and the immutable transaction row
// commit together or not at all, so no partial debit is ever observable.
// Threshold signals fire post-commit and are best effort; losing one never
// breaks ledger correctness.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/talentpipe/sourcing/internal/database"
	"github.com/talentpipe/sourcing/internal/domain"
	"github.com/talentpipe/sourcing/internal/logger"
	"github.com/talentpipe/sourcing/internal/metrics"
)

// Ledger is the credit ledger service.
type Ledger struct {
	repo         *database.CreditRepository
	metrics      *metrics.Metrics
	logger       logger.Logger
	lowThreshold int
}

// New creates a Ledger. lowThreshold is the externally configured balance
// below which a credits_low signal fires.
func New(repo *database.CreditRepository, m *metrics.Metrics, log logger.Logger, lowThreshold int) *Ledger {
	return &Ledger{
		repo:         repo,
		metrics:      m,
		logger:       log,
		lowThreshold: lowThreshold,
	}
}

// DeductCredits debits an organization for a consumption action.
//
// Rejects with domain.ErrInsufficientCredits when the amount is not positive
// or exceeds the balance, with no mutation. On success the returned
// transaction carries the before/after balance snapshot.
func (l *Ledger) DeductCredits(ctx context.Context, req *domain.DeductRequest) (*domain.CreditTransaction, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	txn, err := l.repo.Deduct(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			l.logger.Warn("credit deduction rejected",
				logger.String("organization_id", req.OrganizationID),
				logger.Int("amount", req.Amount))
		}
		return nil, err
	}

	l.logger.Info("credits deducted",
		logger.String("organization_id", txn.OrganizationID),
		logger.String("transaction_id", txn.ID),
		logger.Int("amount", req.Amount),
		logger.Int("balance_after", txn.BalanceAfter))

	l.emitThresholdSignals(txn)
	return txn, nil
}

// emitThresholdSignals fires post-commit analytics signals. Skipped on crash,
// by contract with the external collector.
func (l *Ledger) emitThresholdSignals(txn *domain.CreditTransaction) {
	l.metrics.CreditsConsumed.Add(float64(-txn.Amount))

	switch {
	case txn.BalanceAfter == 0:
		l.metrics.CreditsExhausted.Inc()
		l.logger.Warn("organization credits exhausted",
			logger.String("organization_id", txn.OrganizationID))
	case txn.BalanceBefore > l.lowThreshold &&
		txn.BalanceAfter <= l.lowThreshold &&
		txn.BalanceAfter > 0:
		l.metrics.CreditsLow.Inc()
		l.logger.Warn("organization credits low",
			logger.String("organization_id", txn.OrganizationID),
			logger.Int("balance", txn.BalanceAfter),
			logger.Int("threshold", l.lowThreshold))
	}
}

// GetBalance returns the organization's current balance.
func (l *Ledger) GetBalance(ctx context.Context, organizationID string) (int, error) {
	return l.repo.GetBalance(ctx, organizationID)
}

// GetCreditsUsageForPeriod sums consumption over [from, to).
func (l *Ledger) GetCreditsUsageForPeriod(ctx context.Context, organizationID string, from, to time.Time) (int, error) {
	if !to.After(from) {
		return 0, fmt.Errorf("%w: period end must be after start", domain.ErrValidation)
	}
	return l.repo.UsageForPeriod(ctx, organizationID, from, to)
}

// ListTransactions returns recent ledger rows for an organization.
func (l *Ledger) ListTransactions(ctx context.Context, organizationID string, limit int) ([]domain.CreditTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.repo.ListTransactions(ctx, organizationID, limit)
}
