package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TransactionType is the closed set of ledger entry kinds
type TransactionType string

const (
	TypeCarryForward  TransactionType = "CarryForward"
	TypePayment       TransactionType = "Payment"
	TypeAdjustment    TransactionType = "Adjustment"
	TypeSale          TransactionType = "Sale"
	TypeSaleCancelled TransactionType = "SaleCancelled"
	TypeReturn        TransactionType = "Return"
)

// AllTransactionTypes lists every valid kind in display order
var AllTransactionTypes = []TransactionType{
	TypeCarryForward,
	TypePayment,
	TypeAdjustment,
	TypeSale,
	TypeSaleCancelled,
	TypeReturn,
}

var koreanLabels = map[TransactionType]string{
	TypeCarryForward:  "이월",
	TypePayment:       "입금",
	TypeAdjustment:    "조정",
	TypeSale:          "매출",
	TypeSaleCancelled: "매출취소",
	TypeReturn:        "반품",
}

var defaultDescriptions = map[TransactionType]string{
	TypeCarryForward:  "기초 잔액 이월",
	TypePayment:       "잔금 입금",
	TypeAdjustment:    "잔액 조정",
	TypeSale:          "매출",
	TypeSaleCancelled: "매출 취소",
	TypeReturn:        "반품",
}

// ParseTransactionType accepts the English names (case-insensitive) and the Korean labels
func ParseTransactionType(raw string) (TransactionType, error) {
	trimmed := strings.TrimSpace(raw)
	for _, t := range AllTransactionTypes {
		if strings.EqualFold(trimmed, string(t)) || trimmed == koreanLabels[t] {
			return t, nil
		}
	}
	return "", ValidationError{Field: "transaction_type", Reason: fmt.Sprintf("unknown transaction type %q", raw)}
}

// Valid reports whether t belongs to the closed set
func (t TransactionType) Valid() bool {
	_, ok := koreanLabels[t]
	return ok
}

// Label returns the Korean label shown in the ledger UI
func (t TransactionType) Label() string {
	return koreanLabels[t]
}

// DefaultDescription is used when an entry is created without a description
func (t TransactionType) DefaultDescription() string {
	return defaultDescriptions[t]
}

// SaleLinked reports whether entries of this kind may carry a sale reference
func (t TransactionType) SaleLinked() bool {
	return t == TypeSale || t == TypeSaleCancelled || t == TypeReturn
}

// IsReversal reports whether t undoes part of a posted sale
func (t TransactionType) IsReversal() bool {
	return t == TypeSaleCancelled || t == TypeReturn
}

// ReducesBalance reports whether the kind lowers what the customer owes
func (t TransactionType) ReducesBalance() bool {
	return t == TypePayment || t == TypeSaleCancelled || t == TypeReturn
}

// SignedDelta is the balance effect of an entry. Payment, SaleCancelled and Return
// reduce the balance; every other kind increases it. Adjustment is strictly additive.
func SignedDelta(t TransactionType, amount int64) int64 {
	if t.ReducesBalance() {
		return -amount
	}
	return amount
}

// UnmarshalJSON lets API and event payloads use either naming
func (t *TransactionType) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseTransactionType(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
