package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/talentpipe/sourcing/internal/database"
	"github.com/talentpipe/sourcing/internal/domain"
)

var transactionColumns = []string{
	"id", "organization_id", "user_id", "type", "credit_type",
	"amount", "balance_before", "balance_after", "related_entity_id",
	"description", "metadata", "created_at",
}

func deductRequest() *domain.DeductRequest {
	return &domain.DeductRequest{
		OrganizationID:  "org-1",
		UserID:          "user-1",
		Amount:          5,
		CreditType:      "search",
		RelatedEntityID: "search-1",
		Description:     "candidate search",
	}
}

func TestCreditRepository_Deduct(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewCreditRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT credits FROM organizations").
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(20))
	mock.ExpectExec("UPDATE organizations SET credits").
		WithArgs("org-1", 15).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO credit_transactions").
		WithArgs(sqlmock.AnyArg(), "org-1", "user-1", domain.CreditTypeConsumption,
			"search", -5, 20, 15, strPtr("search-1"), "candidate search", []byte(nil)).
		WillReturnRows(sqlmock.NewRows(transactionColumns).
			AddRow("txn-1", "org-1", "user-1", "consumption", "search",
				-5, 20, 15, strPtr("search-1"), "candidate search", nil, testTime()))
	mock.ExpectCommit()

	txn, err := repo.Deduct(ctx, deductRequest())
	if err != nil {
		t.Fatalf("Deduct() error = %v", err)
	}
	if txn.Amount != -5 {
		t.Errorf("transaction amount = %d, want -5", txn.Amount)
	}
	if txn.BalanceBefore != 20 || txn.BalanceAfter != 15 {
		t.Errorf("balance snapshot = %d/%d, want 20/15", txn.BalanceBefore, txn.BalanceAfter)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestCreditRepository_DeductInsufficientBalance(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewCreditRepository(db)
	ctx := context.Background()

	// Balance below the requested amount: the transaction rolls back with no
	// balance update and no ledger row.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT credits FROM organizations").
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(3))
	mock.ExpectRollback()

	_, err := repo.Deduct(ctx, deductRequest())
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("Deduct() error = %v, want ErrInsufficientCredits", err)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestCreditRepository_DeductUnknownOrganization(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewCreditRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT credits FROM organizations").
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"credits"}))
	mock.ExpectRollback()

	_, err := repo.Deduct(ctx, deductRequest())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Deduct() error = %v, want ErrNotFound", err)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestCreditRepository_UsageForPeriod(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewCreditRepository(db)

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("org-1", domain.CreditTypeConsumption, from, to).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(42))

	usage, err := repo.UsageForPeriod(context.Background(), "org-1", from, to)
	if err != nil {
		t.Fatalf("UsageForPeriod() error = %v", err)
	}
	if usage != 42 {
		t.Errorf("usage = %d, want 42", usage)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestCreditRepository_ListTransactions(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewCreditRepository(db)

	rows := sqlmock.NewRows(transactionColumns).
		AddRow("txn-2", "org-1", "user-1", "consumption", "search",
			-5, 15, 10, nil, "", nil, testTime()).
		AddRow("txn-1", "org-1", "user-1", "purchase", "search",
			20, 0, 20, nil, "", nil, testTime())
	mock.ExpectQuery("SELECT (.+) FROM credit_transactions").
		WithArgs("org-1", 50).
		WillReturnRows(rows)

	txns, err := repo.ListTransactions(context.Background(), "org-1", 50)
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("got %d transactions, want 2", len(txns))
	}
	if txns[0].ID != "txn-2" {
		t.Errorf("first transaction = %s, want newest first", txns[0].ID)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}
