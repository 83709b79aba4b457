// Package service holds the read-side services the gateway needs beyond the ledger engine.
package service

import (
	"context"

	"github.com/mycelium-customer-ledger/internal/domain/ledger"
)

// HistoryService defines the interface for reading the projected ledger history
type HistoryService interface {
	// GetHistory returns one page of a customer's change events, newest first, and the total count.
	// Returns ErrCustomerNotFound if the customer is unknown to the directory.
	GetHistory(ctx context.Context, customerID string, page, perPage int) ([]*ledger.ChangeEvent, int64, error)
}
