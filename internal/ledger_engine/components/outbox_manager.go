package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/mycelium-customer-ledger/internal/domain/ledger"
	"github.com/mycelium-customer-ledger/internal/domain/outbox"
)

type OutboxManagerImpl struct {
	outboxRepo outbox.Repository
	logger     *slog.Logger
}

func NewOutboxManager(outboxRepo outbox.Repository, logger *slog.Logger) *OutboxManagerImpl {
	return &OutboxManagerImpl{
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

// Enqueue stores the change event in the outbox using the mutation's transaction
func (m *OutboxManagerImpl) Enqueue(ctx context.Context, tx pgx.Tx, event *ledger.ChangeEvent) error {
	logger := m.logger
	if event.CorrelationID != "" {
		logger = m.logger.With("correlation_id", event.CorrelationID)
	}

	outboxMessage, err := outbox.NewMessage(event)
	if err != nil {
		logger.Error("Failed to create new outbox message (marshal payload)",
			"event_id", event.EventID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to create outbox message payload for event %s: %w", event.EventID.String(), err)
	}

	if err = m.outboxRepo.WithTx(tx).Create(ctx, outboxMessage); err != nil {
		logger.Error("Failed to create outbox message",
			"event_id", event.EventID.String(),
			"customer_id", event.CustomerID,
			"error", err,
		)
		return fmt.Errorf("failed to create outbox message for event %s: %w", event.EventID.String(), err)
	}

	logger.Debug("Outbox message created",
		"event_id", event.EventID.String(),
		"event_type", string(event.Type),
		"outbox_id", outboxMessage.ID,
	)
	return nil
}
