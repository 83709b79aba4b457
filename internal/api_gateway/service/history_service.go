package service

import (
	"context"
	"log/slog"

	"github.com/mycelium-customer-ledger/internal/domain/customer"
	"github.com/mycelium-customer-ledger/internal/domain/ledger"
)

// HistoryServiceImpl implements the HistoryService interface
type HistoryServiceImpl struct {
	history   ledger.HistoryRepository
	directory customer.Directory
	logger    *slog.Logger
}

// NewHistoryService creates a new history service
func NewHistoryService(logger *slog.Logger, history ledger.HistoryRepository, directory customer.Directory) HistoryService {
	return &HistoryServiceImpl{
		history:   history,
		directory: directory,
		logger:    logger,
	}
}

// GetHistory retrieves a page of the customer's ledger history
func (s *HistoryServiceImpl) GetHistory(ctx context.Context, customerID string, page, perPage int) ([]*ledger.ChangeEvent, int64, error) {
	if page < 1 || perPage < 1 {
		return nil, 0, ledger.ValidationError{Field: "pagination", Reason: "page and per_page must be positive"}
	}

	exists, err := s.directory.Exists(ctx, customerID)
	if err != nil {
		s.logger.Error("Failed to look up customer", "customer_id", customerID, "error", err)
		return nil, 0, ledger.WrapStorage("look up customer", err)
	}
	if !exists {
		return nil, 0, ledger.ErrCustomerNotFound{CustomerID: customerID}
	}

	offset := (page - 1) * perPage

	events, err := s.history.ListByCustomer(ctx, customerID, perPage, offset)
	if err != nil {
		s.logger.Error("Failed to get ledger history",
			"customer_id", customerID,
			"page", page,
			"per_page", perPage,
			"error", err,
		)
		return nil, 0, ledger.WrapStorage("list ledger history", err)
	}

	total, err := s.history.CountByCustomer(ctx, customerID)
	if err != nil {
		s.logger.Error("Failed to count ledger history", "customer_id", customerID, "error", err)
		return nil, 0, ledger.WrapStorage("count ledger history", err)
	}

	return events, total, nil
}
