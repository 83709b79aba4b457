package handler

import (
	"time"

	"github.com/mycelium-customer-ledger/internal/domain/customer"
	"github.com/mycelium-customer-ledger/internal/domain/ledger"
	engine "github.com/mycelium-customer-ledger/internal/ledger_engine/service"
)

// CreateEntryRequest represents a request to create a manual ledger entry.
// Amount and type are validated by the engine so every caller gets the same rules.
type CreateEntryRequest struct {
	TransactionDate string `json:"transaction_date" binding:"required"`
	TransactionType string `json:"transaction_type" binding:"required"`
	Amount          *int64 `json:"amount" binding:"required"`
	Description     string `json:"description"`
}

// UpdateEntryRequest replaces the editable fields of an entry. A missing description keeps the current one.
type UpdateEntryRequest struct {
	TransactionDate string  `json:"transaction_date" binding:"required"`
	TransactionType string  `json:"transaction_type" binding:"required"`
	Amount          *int64  `json:"amount" binding:"required"`
	Description     *string `json:"description"`
}

// LedgerQuery is the optional inclusive date window of get_customer_ledger
type LedgerQuery struct {
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=20" binding:"min=1,max=100"`
}

// CreatedEntryResponse is returned by create_ledger_entry
type CreatedEntryResponse struct {
	EntryID        string `json:"entry_id"`
	RunningBalance int64  `json:"running_balance"`
}

// EntryResponse represents a ledger entry in API responses
type EntryResponse struct {
	EntryID         string  `json:"entry_id"`
	CustomerID      string  `json:"customer_id"`
	TransactionDate string  `json:"transaction_date"`
	SequenceNo      int64   `json:"sequence_no"`
	TransactionType string  `json:"transaction_type"`
	TypeLabel       string  `json:"type_label"`
	Amount          int64   `json:"amount"`
	SignedAmount    int64   `json:"signed_amount"`
	Description     string  `json:"description"`
	ReferenceID     *string `json:"reference_id,omitempty"`
	RunningBalance  int64   `json:"running_balance"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

// LedgerResponse lists a customer's entries most recent first
type LedgerResponse struct {
	CustomerID string          `json:"customer_id"`
	Entries    []EntryResponse `json:"entries"`
}

// DebtorListResponse represents get_customers_with_debt in API responses
type DebtorListResponse struct {
	Debtors      []customer.Debtor `json:"debtors"`
	TotalBalance int64             `json:"total_balance"`
}

// HistoryEventResponse represents one projected change event
type HistoryEventResponse struct {
	EventID         string         `json:"event_id"`
	EventType       string         `json:"event_type"`
	EntryID         string         `json:"entry_id"`
	Before          *EntryResponse `json:"before,omitempty"`
	After           *EntryResponse `json:"after,omitempty"`
	RecomputedCount int            `json:"recomputed_count"`
	CurrentBalance  int64          `json:"current_balance"`
	Source          string         `json:"source"`
	CorrelationID   string         `json:"correlation_id,omitempty"`
	OccurredAt      string         `json:"occurred_at"`
}

// VerificationResponse represents a verification report
type VerificationResponse struct {
	*engine.Report
	Consistent bool `json:"consistent"`
}

func mapEntryToResponse(entry *ledger.Entry) EntryResponse {
	return EntryResponse{
		EntryID:         entry.ID.String(),
		CustomerID:      entry.CustomerID,
		TransactionDate: entry.TransactionDate.Format(ledger.DateLayout),
		SequenceNo:      entry.SequenceNo,
		TransactionType: string(entry.Type),
		TypeLabel:       entry.Type.Label(),
		Amount:          entry.Amount,
		SignedAmount:    entry.Delta(),
		Description:     entry.Description,
		ReferenceID:     entry.ReferenceID,
		RunningBalance:  entry.RunningBalance,
		CreatedAt:       entry.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       entry.UpdatedAt.Format(time.RFC3339),
	}
}

func mapEntriesToResponse(entries []*ledger.Entry) []EntryResponse {
	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, mapEntryToResponse(e))
	}
	return out
}

func mapEventToResponse(event *ledger.ChangeEvent) HistoryEventResponse {
	response := HistoryEventResponse{
		EventID:         event.EventID.String(),
		EventType:       string(event.Type),
		EntryID:         event.EntryID.String(),
		RecomputedCount: event.RecomputedCount,
		CurrentBalance:  event.CurrentBalance,
		Source:          string(event.Source),
		CorrelationID:   event.CorrelationID,
		OccurredAt:      event.OccurredAt.Format(time.RFC3339),
	}
	if event.Before != nil {
		before := mapEntryToResponse(event.Before)
		response.Before = &before
	}
	if event.After != nil {
		after := mapEntryToResponse(event.After)
		response.After = &after
	}
	return response
}
