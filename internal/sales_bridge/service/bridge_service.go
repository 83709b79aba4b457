package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mycelium-customer-ledger/internal/domain/ledger"
	"github.com/mycelium-customer-ledger/internal/domain/sales"
	engine "github.com/mycelium-customer-ledger/internal/ledger_engine/service"
)

// BridgeServiceImpl posts sale-driven entries through the ledger engine. Past Sale entries
// are never edited: cancellations and returns post reversing entries dated today.
type BridgeServiceImpl struct {
	ledgerService engine.LedgerService
	sales         SaleLookup
	now           Clock
	logger        *slog.Logger
}

func NewBridgeService(
	ledgerService engine.LedgerService,
	sales SaleLookup,
	now Clock,
	logger *slog.Logger,
) *BridgeServiceImpl {
	if now == nil {
		now = time.Now
	}
	return &BridgeServiceImpl{
		ledgerService: ledgerService,
		sales:         sales,
		now:           now,
		logger:        logger,
	}
}

// HandleSaleEvent dispatches on the event type
func (s *BridgeServiceImpl) HandleSaleEvent(ctx context.Context, event *sales.Event) (Outcome, error) {
	if err := event.Validate(); err != nil {
		return "", ledger.ValidationError{Field: "sale_event", Reason: err.Error()}
	}

	switch event.Type {
	case sales.EventSaleRecorded:
		return s.OnSaleRecorded(ctx, event)
	case sales.EventSaleCancelled:
		return s.OnSaleCancelled(ctx, event)
	case sales.EventSaleReturned:
		return s.OnSaleReturned(ctx, event)
	default:
		return "", ledger.ValidationError{Field: "event_type", Reason: fmt.Sprintf("unsupported sale event %q", event.Type)}
	}
}

// OnSaleRecorded posts a Sale entry on the sale date when the sale was made on credit
func (s *BridgeServiceImpl) OnSaleRecorded(ctx context.Context, event *sales.Event) (Outcome, error) {
	logger := s.eventLogger(event)
	if !event.PaymentPending() {
		logger.Info("Sale paid in full, nothing to post", "payment_status", string(event.PaymentStatus))
		return OutcomeSkipped, nil
	}

	date, err := event.SaleDate()
	if err != nil {
		return "", ledger.ValidationError{Field: "order_date", Reason: err.Error()}
	}
	return s.post(ctx, logger, event, ledger.TypeSale, date, false)
}

// OnSaleCancelled reverses what is left of a posted sale after earlier returns with a
// SaleCancelled entry
func (s *BridgeServiceImpl) OnSaleCancelled(ctx context.Context, event *sales.Event) (Outcome, error) {
	return s.reverse(ctx, event, ledger.TypeSaleCancelled, true)
}

// OnSaleReturned reverses a posted sale, fully or partially, with a Return entry. Returns
// together may not exceed the sale.
func (s *BridgeServiceImpl) OnSaleReturned(ctx context.Context, event *sales.Event) (Outcome, error) {
	return s.reverse(ctx, event, ledger.TypeReturn, false)
}

func (s *BridgeServiceImpl) reverse(ctx context.Context, event *sales.Event, txType ledger.TransactionType, clamp bool) (Outcome, error) {
	logger := s.eventLogger(event)

	sale, err := s.sales.FindByReference(ctx, event.CustomerID, ledger.TypeSale, event.SaleID)
	if err != nil {
		logger.Error("Failed to look up posted sale", "error", err)
		return "", ledger.WrapStorage("find sale entry", err)
	}
	if sale == nil {
		logger.Info("No ledger entry for sale, nothing to reverse", "transaction_type", string(txType))
		return OutcomeSkipped, nil
	}

	return s.post(ctx, logger, event, txType, ledger.TruncateDate(s.now()), clamp)
}

func (s *BridgeServiceImpl) post(ctx context.Context, logger *slog.Logger, event *sales.Event, txType ledger.TransactionType, date time.Time, clamp bool) (Outcome, error) {
	amount, err := event.LedgerAmount()
	if err != nil {
		return "", ledger.ValidationError{Field: "amount", Reason: err.Error()}
	}

	entry, err := s.ledgerService.CreateEntry(ctx, engine.CreateEntryRequest{
		Params: ledger.NewEntryParams{
			CustomerID:      event.CustomerID,
			TransactionDate: date,
			Type:            txType,
			Amount:          amount,
			Description:     event.Description(),
			ReferenceID:     event.SaleID,
			EventRef:        event.LedgerEventRef(),
		},
		Source:           ledger.SourceSalesBridge,
		CorrelationID:    event.CorrelationID,
		ClampToRemaining: clamp,
	})
	if err != nil {
		var dup ledger.ErrDuplicateReference
		if errors.As(err, &dup) {
			logger.Info("Sale event already applied", "transaction_type", string(txType), "entry_id", dup.ExistingEntryID.String())
			return OutcomeDuplicate, nil
		}
		var exceeded ledger.ErrReversalExceedsSale
		if clamp && errors.As(err, &exceeded) && exceeded.Remaining == 0 {
			logger.Info("Sale already fully reversed, nothing to post", "transaction_type", string(txType))
			return OutcomeSkipped, nil
		}
		return "", err
	}

	logger.Info("Posted sale entry",
		"transaction_type", string(txType),
		"entry_id", entry.ID.String(),
		"amount", entry.Amount,
		"running_balance", entry.RunningBalance,
	)
	return OutcomePosted, nil
}

func (s *BridgeServiceImpl) eventLogger(event *sales.Event) *slog.Logger {
	logger := s.logger.With("sale_id", event.SaleID, "customer_id", event.CustomerID, "event_type", string(event.Type))
	if event.CorrelationID != "" {
		logger = logger.With("correlation_id", event.CorrelationID)
	}
	return logger
}
