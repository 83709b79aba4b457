package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mycelium-customer-ledger/internal/domain/ledger"
	"github.com/mycelium-customer-ledger/internal/domain/sales"
	"github.com/mycelium-customer-ledger/internal/domain/shared"
	"github.com/mycelium-customer-ledger/internal/platform/messaging/producers"
	"github.com/mycelium-customer-ledger/internal/sales_bridge/service"
)

// SaleEventHandler handles sale lifecycle messages from Kafka. Returning an error leaves
// the offset uncommitted so the consumer retries; messages that can never apply go to the DLQ.
type SaleEventHandler struct {
	bridge   service.BridgeService
	producer producers.DeadLetterPublisher
	logger   *slog.Logger
}

// NewSaleEventHandler creates a new handler
func NewSaleEventHandler(
	logger *slog.Logger,
	bridge service.BridgeService,
	producer producers.DeadLetterPublisher,
) *SaleEventHandler {
	return &SaleEventHandler{
		bridge:   bridge,
		producer: producer,
		logger:   logger,
	}
}

// HandleMessage processes one Kafka message
func (h *SaleEventHandler) HandleMessage(ctx context.Context, key []byte, value []byte, headers map[string]string) error {
	var event sales.Event
	if err := json.Unmarshal(value, &event); err != nil {
		h.logger.Error("Failed to unmarshal sale event from Kafka message",
			"error", err,
			"message_key", string(key),
		)
		return h.deadLetter(ctx, h.logger, key, value, "Failed to unmarshal sale event", err)
	}

	if event.CorrelationID == "" {
		event.CorrelationID = headers[shared.CorrelationIDHeader]
	}

	logger := h.logger
	if event.CorrelationID != "" {
		logger = h.logger.With("correlation_id", event.CorrelationID)
	}

	if err := event.Validate(); err != nil {
		logger.Warn("Rejected sale event", "message_key", string(key), "error", err)
		return h.deadLetter(ctx, logger, key, value, "Invalid sale event", err)
	}

	logger.Info("Received sale event",
		"event_type", string(event.Type),
		"sale_id", event.SaleID,
		"customer_id", event.CustomerID,
	)

	outcome, err := h.bridge.HandleSaleEvent(ctx, &event)
	if err != nil {
		if permanent(err) {
			logger.Warn("Sale event cannot be applied to the ledger", "sale_id", event.SaleID, "error", err)
			return h.deadLetter(ctx, logger, key, value, "Sale event rejected by ledger", err)
		}
		logger.Error("Failed to apply sale event", "sale_id", event.SaleID, "error", err)
		return fmt.Errorf("applying sale event %s for %s failed: %w", event.Type, event.SaleID, err)
	}

	logger.Info("Successfully handled sale event", "sale_id", event.SaleID, "outcome", string(outcome))
	return nil
}

// permanent reports whether redelivering the event can never succeed
func permanent(err error) bool {
	return errors.Is(err, ledger.ErrInvalidInput) ||
		errors.Is(err, ledger.ErrNotFound) ||
		errors.Is(err, ledger.ErrReferentialIntegrity)
}

func (h *SaleEventHandler) deadLetter(ctx context.Context, logger *slog.Logger, key, value []byte, msg string, cause error) error {
	reason := fmt.Sprintf("%s: %s", msg, cause.Error())

	if h.producer == nil {
		logger.Error("Dropping unprocessable sale event, no DLQ configured", "message_key", string(key), "reason", reason)
		return nil
	}

	if err := h.producer.PublishToDLQ(ctx, string(key), value, reason); err != nil {
		if errors.Is(err, producers.ErrDLQDisabled) {
			logger.Error("Dropping unprocessable sale event, no DLQ configured", "message_key", string(key), "reason", reason)
			return nil
		}
		logger.Error("Failed to publish message to DLQ",
			"dlq_error", err,
			"original_error", cause,
			"message_key", string(key),
		)
		return fmt.Errorf("failed to dead-letter sale event: %w", err)
	}

	logger.Info("Successfully published unprocessable message to DLQ", "message_key", string(key), "reason", reason)
	return nil
}
