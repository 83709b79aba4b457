package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mycelium-customer-ledger/internal/domain/ledger"
	"github.com/mycelium-customer-ledger/internal/domain/outbox"
	"github.com/mycelium-customer-ledger/internal/domain/shared"
	"github.com/mycelium-customer-ledger/internal/platform/messaging/producers"
)

// EventTypeHeader names the Kafka header carrying the ledger event type
const EventTypeHeader = "event-type"

// ErrUndecodablePayload marks an outbox row whose payload will never decode
var ErrUndecodablePayload = errors.New("undecodable outbox payload")

// HistoryPublisher delivers one outbox message to its downstream consumers
type HistoryPublisher interface {
	Publish(ctx context.Context, message *outbox.Message) error
}

// HistoryPublisherImpl projects a change event into the Mongo ledger history and then
// publishes it on the ledger events topic. Both steps are idempotent per event id, so a
// message redelivered after a partial failure is safe.
type HistoryPublisherImpl struct {
	history   ledger.HistoryRepository
	publisher producers.MessagePublisher
	logger    *slog.Logger
}

// NewHistoryPublisher creates a new publisher
func NewHistoryPublisher(
	history ledger.HistoryRepository,
	publisher producers.MessagePublisher,
	logger *slog.Logger,
) HistoryPublisher {
	return &HistoryPublisherImpl{
		history:   history,
		publisher: publisher,
		logger:    logger,
	}
}

// Publish records and forwards the message's change event
func (p *HistoryPublisherImpl) Publish(ctx context.Context, message *outbox.Message) error {
	event, err := message.ChangeEvent()
	if err != nil {
		p.logger.Error("Failed to unmarshal change event from outbox payload",
			"outbox_id", message.ID, "event_id", message.EventID.String(), "error", err,
		)
		return fmt.Errorf("outbox %d: %w: %v", message.ID, ErrUndecodablePayload, err)
	}

	logger := p.logger
	if event.CorrelationID != "" {
		logger = p.logger.With("correlation_id", event.CorrelationID)
	}

	if err := p.history.Record(ctx, event); err != nil {
		logger.Error("Failed to record ledger history", "outbox_id", message.ID, "event_id", event.EventID.String(), "error", err)
		return fmt.Errorf("failed to record history for event %s: %w", event.EventID, err)
	}

	headers := map[string]string{EventTypeHeader: string(event.Type)}
	if event.CorrelationID != "" {
		headers[shared.CorrelationIDHeader] = event.CorrelationID
	}
	if err := p.publisher.Publish(ctx, event.CustomerID, event, headers); err != nil {
		logger.Error("Failed to publish ledger event", "outbox_id", message.ID, "event_id", event.EventID.String(), "error", err)
		return fmt.Errorf("failed to publish event %s: %w", event.EventID, err)
	}

	logger.Debug("Ledger change delivered",
		"outbox_id", message.ID,
		"event_id", event.EventID.String(),
		"event_type", string(event.Type),
		"customer_id", event.CustomerID,
	)
	return nil
}
