package ledger

import "context"

// HistoryRepository stores the projected audit trail of committed ledger changes
type HistoryRepository interface {
	// Record stores event once; replays of the same EventID are ignored
	Record(ctx context.Context, event *ChangeEvent) error
	// ListByCustomer returns the customer's events newest first
	ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*ChangeEvent, error)
	CountByCustomer(ctx context.Context, customerID string) (int64, error)
}
