package ledger

import "github.com/google/uuid"

// SaleTotals summarizes the entries posted for one sale reference
type SaleTotals struct {
	SaleEntryID uuid.UUID
	SaleAmount  int64
	Reversed    int64 // SaleCancelled and Return amounts
}

// Posted reports whether a Sale entry exists for the reference
func (t SaleTotals) Posted() bool {
	return t.SaleEntryID != uuid.Nil
}

// Remaining is how much of the sale can still be reversed
func (t SaleTotals) Remaining() int64 {
	if r := t.SaleAmount - t.Reversed; r > 0 {
		return r
	}
	return 0
}

// SummarizeSale totals the entries sharing one reference_id
func SummarizeSale(linked []*Entry) SaleTotals {
	var t SaleTotals
	for _, e := range linked {
		switch e.Type {
		case TypeSale:
			t.SaleEntryID = e.ID
			t.SaleAmount += e.Amount
		case TypeSaleCancelled, TypeReturn:
			t.Reversed += e.Amount
		}
	}
	return t
}

// FindPostedEvent returns the entry of txType already posted for eventKey, if any
func FindPostedEvent(linked []*Entry, txType TransactionType, eventKey string) *Entry {
	for _, e := range linked {
		if e.Type == txType && e.EventKey() == eventKey {
			return e
		}
	}
	return nil
}
