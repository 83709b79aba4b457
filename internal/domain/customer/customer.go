package customer

import "time"

// Customer is the slice of the customer directory the ledger reads
type Customer struct {
	ID           string `json:"customer_id"`
	Name         string `json:"customer_name"`
	MobileNumber string `json:"mobile_number"`
}

// Balance is a customer's DebtIndex row. It also owns the customer's entry sequence counter.
type Balance struct {
	CustomerID     string    `json:"customer_id"`
	CurrentBalance int64     `json:"current_balance"`
	LastSequenceNo int64     `json:"last_sequence_no"`
	EntryCount     int64     `json:"entry_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NextSequence reserves the next sequence number
func (b *Balance) NextSequence() int64 {
	b.LastSequenceNo++
	return b.LastSequenceNo
}

// Debtor is one line of get_customers_with_debt
type Debtor struct {
	CustomerID     string `json:"customer_id"`
	CustomerName   string `json:"customer_name"`
	MobileNumber   string `json:"mobile_number"`
	CurrentBalance int64  `json:"current_balance"`
}

// Owes reports whether the customer owes money, as opposed to holding a prepayment
func (d Debtor) Owes() bool {
	return d.CurrentBalance > 0
}
