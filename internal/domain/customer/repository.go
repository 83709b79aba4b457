package customer

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Directory resolves customers owned by the customer directory
type Directory interface {
	GetByID(ctx context.Context, id string) (*Customer, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// DebtIndex is the materialized current balance per customer
type DebtIndex interface {
	// LockBalance returns the customer's balance row locked for the rest of the
	// transaction, creating a zero row on first use
	LockBalance(ctx context.Context, customerID string) (*Balance, error)
	// Save writes balance, sequence counter and entry count
	Save(ctx context.Context, balance *Balance) error
	Get(ctx context.Context, customerID string) (*Balance, error)
	// ListDebtors returns customers with a non-zero balance, largest balance first
	ListDebtors(ctx context.Context) ([]Debtor, error)
	// ListCustomerIDs returns every customer that has a balance row
	ListCustomerIDs(ctx context.Context) ([]string, error)
	WithTx(tx pgx.Tx) DebtIndex
}
