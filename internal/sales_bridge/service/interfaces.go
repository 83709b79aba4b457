package service

import (
	"context"
	"time"

	"github.com/mycelium-customer-ledger/internal/domain/ledger"
	"github.com/mycelium-customer-ledger/internal/domain/sales"
)

// Outcome tells the consumer what a sale event did to the ledger
type Outcome string

const (
	OutcomePosted    Outcome = "posted"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDuplicate Outcome = "duplicate"
)

// BridgeService turns sale lifecycle notifications into ledger entries
type BridgeService interface {
	HandleSaleEvent(ctx context.Context, event *sales.Event) (Outcome, error)
}

// SaleLookup finds the entry a sale already posted. ledger.Repository satisfies it.
type SaleLookup interface {
	FindByReference(ctx context.Context, customerID string, txType ledger.TransactionType, referenceID string) (*ledger.Entry, error)
}

// Clock returns the current time; cancellations and returns are dated with it
type Clock func() time.Time
