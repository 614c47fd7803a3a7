package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// CreditTransactionType classifies ledger entries.
type CreditTransactionType string

const (
	CreditTypeSubscriptionGrant CreditTransactionType = "subscription_grant"
	CreditTypeManualGrant       CreditTransactionType = "manual_grant"
	CreditTypePurchase          CreditTransactionType = "purchase"
	CreditTypeConsumption       CreditTransactionType = "consumption"
)

// CreditTransaction is an immutable ledger row. Amount is signed: negative
// for consumption, positive for grants and purchases. BalanceBefore and
// BalanceAfter snapshot the organization balance around this entry; the
// organization's live balance always equals the BalanceAfter of its most
// recently committed transaction.
type CreditTransaction struct {
	ID              string                `db:"id"                json:"id"`
	OrganizationID  string                `db:"organization_id"   json:"organization_id"`
	UserID          string                `db:"user_id"           json:"user_id"`
	Type            CreditTransactionType `db:"type"              json:"type"`
	CreditType      string                `db:"credit_type"       json:"credit_type"`
	Amount          int                   `db:"amount"            json:"amount"`
	BalanceBefore   int                   `db:"balance_before"    json:"balance_before"`
	BalanceAfter    int                   `db:"balance_after"     json:"balance_after"`
	RelatedEntityID *string               `db:"related_entity_id" json:"related_entity_id,omitempty"`
	Description     string                `db:"description"       json:"description"`
	Metadata        json.RawMessage       `db:"metadata"          json:"metadata,omitempty"`
	CreatedAt       time.Time             `db:"created_at"        json:"created_at"`
}

// DeductRequest describes one consumption debit against an organization.
type DeductRequest struct {
	OrganizationID  string
	UserID          string
	Amount          int
	CreditType      string
	RelatedEntityID string
	Description     string
	Metadata        json.RawMessage
}

// Validate checks the request fields that do not require a balance read.
func (r *DeductRequest) Validate() error {
	if r.OrganizationID == "" {
		return fmt.Errorf("%w: organization_id is required", ErrValidation)
	}
	if r.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if r.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %d", ErrInsufficientCredits, r.Amount)
	}
	return nil
}
