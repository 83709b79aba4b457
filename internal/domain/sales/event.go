// Package sales models the sale lifecycle notifications pushed by the sales subsystem.
package sales

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mycelium-customer-ledger/internal/domain/ledger"
	"github.com/mycelium-customer-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// EventType names a sale lifecycle transition
type EventType string

const (
	EventSaleRecorded  EventType = "sale.recorded"
	EventSaleCancelled EventType = "sale.cancelled"
	EventSaleReturned  EventType = "sale.returned"
)

var (
	ErrUnknownEventType = errors.New("unknown sale event type")
	ErrInvalidSale      = errors.New("invalid sale event")
)

// Event is one notification on the sale lifecycle topic. Money arrives as decimal
// strings and must be whole won.
type Event struct {
	EventID       string                   `json:"event_id,omitempty"`
	Type          EventType                `json:"event_type"`
	SaleID        string                   `json:"sale_id"`
	ReturnID      string                   `json:"return_id,omitempty"`
	CustomerID    string                   `json:"customer_id"`
	OrderDate     string                   `json:"order_date"`
	TotalAmount   decimal.Decimal          `json:"total_amount"`
	ReturnAmount  *decimal.Decimal         `json:"return_amount,omitempty"`
	PaymentStatus shared.SalePaymentStatus `json:"payment_status"`
	ProductName   string                   `json:"product_name,omitempty"`
	CorrelationID string                   `json:"correlation_id,omitempty"`
	OccurredAt    time.Time                `json:"occurred_at"`
}

// Validate checks the fields every event type needs
func (e *Event) Validate() error {
	switch e.Type {
	case EventSaleRecorded, EventSaleCancelled, EventSaleReturned:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}
	if strings.TrimSpace(e.SaleID) == "" {
		return fmt.Errorf("%w: sale_id is required", ErrInvalidSale)
	}
	if strings.TrimSpace(e.CustomerID) == "" {
		return fmt.Errorf("%w: customer_id is required", ErrInvalidSale)
	}
	if _, err := e.LedgerAmount(); err != nil {
		return err
	}
	if e.Type == EventSaleRecorded {
		if _, err := e.SaleDate(); err != nil {
			return err
		}
	}
	return nil
}

// LedgerAmount is the magnitude to post: the return amount for partial returns, otherwise the total
func (e *Event) LedgerAmount() (int64, error) {
	amount := e.TotalAmount
	if e.Type == EventSaleReturned && e.ReturnAmount != nil {
		amount = *e.ReturnAmount
	}
	if !amount.IsPositive() {
		return 0, fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidSale, amount.String())
	}
	if !amount.Equal(amount.Truncate(0)) {
		return 0, fmt.Errorf("%w: amount must be whole won, got %s", ErrInvalidSale, amount.String())
	}
	if amount.GreaterThan(decimal.NewFromInt(ledger.MaxAmount)) {
		return 0, fmt.Errorf("%w: amount %s exceeds the maximum entry amount", ErrInvalidSale, amount.String())
	}
	return amount.IntPart(), nil
}

// LedgerEventRef keys the ledger entry this event posts. A sale is recorded and cancelled
// once, so those use the sale id. Each return is its own event: it is keyed by return_id,
// else event_id. A return carrying neither is keyed by the sale and can be posted only once.
func (e *Event) LedgerEventRef() string {
	if e.Type != EventSaleReturned {
		return e.SaleID
	}
	if id := strings.TrimSpace(e.ReturnID); id != "" {
		return "return:" + id
	}
	if id := strings.TrimSpace(e.EventID); id != "" {
		return "event:" + id
	}
	return e.SaleID
}

// SaleDate parses the order date of the sale
func (e *Event) SaleDate() (time.Time, error) {
	d, err := ledger.ParseDate(e.OrderDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidSale, err)
	}
	return d, nil
}

// PaymentPending reports whether the sale was recorded on credit
func (e *Event) PaymentPending() bool {
	return strings.EqualFold(string(e.PaymentStatus), string(shared.SalePaymentPending))
}

// Description is the ledger description for the entry this event posts
func (e *Event) Description() string {
	var label string
	switch e.Type {
	case EventSaleCancelled:
		label = ledger.TypeSaleCancelled.DefaultDescription()
	case EventSaleReturned:
		label = ledger.TypeReturn.DefaultDescription()
	default:
		label = ledger.TypeSale.DefaultDescription()
	}
	if e.ProductName != "" {
		return fmt.Sprintf("%s: %s (%s)", label, e.ProductName, e.SaleID)
	}
	return fmt.Sprintf("%s (%s)", label, e.SaleID)
}
