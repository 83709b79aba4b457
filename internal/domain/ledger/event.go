package ledger

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a committed ledger mutation
type EventType string

const (
	EventEntryCreated   EventType = "ledger.entry_created"
	EventEntryUpdated   EventType = "ledger.entry_updated"
	EventEntryDeleted   EventType = "ledger.entry_deleted"
	EventLedgerRepaired EventType = "ledger.repaired"
)

// Source identifies which path issued a mutation
type Source string

const (
	SourceManual      Source = "manual"
	SourceSalesBridge Source = "sales_bridge"
	SourceRepair      Source = "repair"
)

// ChangeEvent records one committed mutation. It is written to the outbox in the
// mutation's transaction and later projected into the ledger history.
type ChangeEvent struct {
	EventID         uuid.UUID `json:"event_id" bson:"event_id"`
	Type            EventType `json:"event_type" bson:"event_type"`
	CustomerID      string    `json:"customer_id" bson:"customer_id"`
	EntryID         uuid.UUID `json:"entry_id" bson:"entry_id"`
	Before          *Entry    `json:"before,omitempty" bson:"before,omitempty"`
	After           *Entry    `json:"after,omitempty" bson:"after,omitempty"`
	RecomputedCount int       `json:"recomputed_count" bson:"recomputed_count"`
	CurrentBalance  int64     `json:"current_balance" bson:"current_balance"`
	Source          Source    `json:"source" bson:"source"`
	CorrelationID   string    `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
	OccurredAt      time.Time `json:"occurred_at" bson:"occurred_at"`
}
