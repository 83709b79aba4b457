package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ListFilter narrows get_ledger to an inclusive date window
type ListFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
}

// Validate requires both bounds or neither, in order
func (f ListFilter) Validate() error {
	if (f.StartDate == nil) != (f.EndDate == nil) {
		return ValidationError{Field: "date_range", Reason: "start_date and end_date must be given together"}
	}
	if f.StartDate != nil && f.EndDate.Before(*f.StartDate) {
		return ValidationError{Field: "date_range", Reason: "end_date is before start_date"}
	}
	return nil
}

// Repository persists ledger entries. All list methods are scoped to one customer.
type Repository interface {
	Insert(ctx context.Context, entry *Entry) error
	// Update writes the mutable fields and the running balance of entry
	Update(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	FindByReference(ctx context.Context, customerID string, txType TransactionType, referenceID string) (*Entry, error)
	// ListByReference returns every entry posted for a sale, in canonical order
	ListByReference(ctx context.Context, customerID string, referenceID string) ([]*Entry, error)

	// BalanceBefore returns the running balance of the last entry strictly before pos, or 0
	BalanceBefore(ctx context.Context, customerID string, pos Position) (int64, error)
	// ListFrom returns the entries at or after pos in canonical order
	ListFrom(ctx context.Context, customerID string, pos Position) ([]*Entry, error)
	// ListByCustomer returns entries most-recent-first
	ListByCustomer(ctx context.Context, customerID string, filter ListFilter) ([]*Entry, error)
	// UpdateRunningBalances rewrites the cached balance of each entry
	UpdateRunningBalances(ctx context.Context, entries []*Entry) error

	WithTx(tx pgx.Tx) Repository
}
