package service

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mycelium-customer-ledger/internal/domain/customer"
	"github.com/mycelium-customer-ledger/internal/domain/ledger"
)

// LedgerService is the command surface of the ledger engine
type LedgerService interface {
	CreateEntry(ctx context.Context, req CreateEntryRequest) (*ledger.Entry, error)
	UpdateEntry(ctx context.Context, req UpdateEntryRequest) (*ledger.Entry, error)
	DeleteEntry(ctx context.Context, req DeleteEntryRequest) error
	// GetLedger returns the customer's entries most recent first, so the first
	// element's running balance is the current balance
	GetLedger(ctx context.Context, customerID string, filter ledger.ListFilter) ([]*ledger.Entry, error)
	GetCustomersWithDebt(ctx context.Context) ([]customer.Debtor, error)
}

// ReconciliationService checks cached balances against a full recompute
type ReconciliationService interface {
	VerifyCustomer(ctx context.Context, customerID string) (*Report, error)
	RepairCustomer(ctx context.Context, customerID string) (*Report, error)
	VerifyAll(ctx context.Context) (*Summary, error)
	RepairAll(ctx context.Context) (*Summary, error)
}

// CustomerLocker serializes mutations per customer
type CustomerLocker interface {
	// Lock blocks until the customer's lock is held or ctx ends, in which case it fails with ledger.ErrConflict
	Lock(ctx context.Context, customerID string) (unlock func(), err error)
}

// OutboxManager records committed changes in the outbox inside the mutation's transaction
type OutboxManager interface {
	Enqueue(ctx context.Context, tx pgx.Tx, event *ledger.ChangeEvent) error
}

// Clock returns the current time; injected so tests control "today"
type Clock func() time.Time

// CreateEntryRequest carries one create_entry call
type CreateEntryRequest struct {
	Params        ledger.NewEntryParams
	Source        ledger.Source
	CorrelationID string
	// ClampToRemaining posts a reversal for whatever is left of its sale instead of
	// rejecting one that asks for more
	ClampToRemaining bool
}

// UpdateEntryRequest carries one update_entry call
type UpdateEntryRequest struct {
	EntryID       string
	Changes       ledger.EntryChanges
	Source        ledger.Source
	CorrelationID string
}

// DeleteEntryRequest carries one delete_entry call
type DeleteEntryRequest struct {
	EntryID       string
	Source        ledger.Source
	CorrelationID string
}
