package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mycelium-customer-ledger/internal/domain/ledger"
	"github.com/mycelium-customer-ledger/internal/domain/shared"
)

// Message carries a committed ledger change until it has been projected and published
type Message struct {
	ID            int64               `json:"id"`
	EventID       uuid.UUID           `json:"event_id"`
	CustomerID    string              `json:"customer_id"`
	EntryID       uuid.UUID           `json:"entry_id"`
	EventType     ledger.EventType    `json:"event_type"`
	Payload       json.RawMessage     `json:"payload"`
	Status        shared.OutboxStatus `json:"status"`
	Attempts      int                 `json:"attempts"`
	LastError     string              `json:"last_error,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	LastAttemptAt *time.Time          `json:"last_attempt_at,omitempty"`
}

func NewMessage(event *ledger.ChangeEvent) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return &Message{
		EventID:    event.EventID,
		CustomerID: event.CustomerID,
		EntryID:    event.EntryID,
		EventType:  event.Type,
		Payload:    payload,
		Status:     shared.OutboxStatusPending,
		CreatedAt:  event.OccurredAt,
	}, nil
}

// RecordFailure counts a failed delivery and parks the message once maxAttempts is reached
func (m *Message) RecordFailure(reason string, maxAttempts int) {
	m.Attempts++
	m.LastError = reason
	now := time.Now()
	m.LastAttemptAt = &now
	if m.Attempts >= maxAttempts {
		m.Status = shared.OutboxStatusFailed
	}
}

func (m *Message) MarkAsProcessed() {
	m.Status = shared.OutboxStatusProcessed
	now := time.Now()
	m.LastAttemptAt = &now
}

// ChangeEvent decodes the payload
func (m *Message) ChangeEvent() (*ledger.ChangeEvent, error) {
	var event ledger.ChangeEvent
	if err := json.Unmarshal(m.Payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
