// Package outbox_poller delivers committed ledger changes from the transactional outbox.
package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mycelium-customer-ledger/internal/config"
	"github.com/mycelium-customer-ledger/internal/domain/outbox"
)

// Poller processes pending outbox messages
type Poller struct {
	outboxRepo       outbox.Repository
	publisher        HistoryPublisher
	logger           *slog.Logger
	pollInterval     time.Duration
	batchSize        int
	maxRetryAttempts int
}

func NewPoller(
	cfg *config.OutboxConfig,
	outboxRepo outbox.Repository,
	publisher HistoryPublisher,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		outboxRepo:       outboxRepo,
		publisher:        publisher,
		logger:           logger,
		pollInterval:     cfg.PollingInterval,
		batchSize:        cfg.BatchSize,
		maxRetryAttempts: cfg.MaxRetryAttempts,
	}
}

// Start begins polling until context is canceled
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting Outbox Poller",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
		"max_retry_attempts", p.maxRetryAttempts,
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox Poller stopping due to context cancellation.")
			return
		case <-ticker.C:
			p.logger.Debug("Outbox Poller tick: processing pending messages")
			if _, err := p.ProcessPending(ctx); err != nil {
				p.logger.Error("Error during batch processing of pending outbox messages", "error", err)
			}
		}
	}
}

// ProcessPending delivers one batch in outbox order and returns how many messages succeeded
func (p *Poller) ProcessPending(ctx context.Context) (int, error) {
	messages, err := p.outboxRepo.GetPending(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending outbox messages: %w", err)
	}

	if len(messages) == 0 {
		p.logger.Debug("No pending outbox messages found.")
		return 0, nil
	}

	p.logger.Info("Fetched pending outbox messages", "count", len(messages))

	delivered := 0
	for _, msg := range messages {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}

		logger := p.logger.With("outbox_id", msg.ID, "event_id", msg.EventID.String(), "customer_id", msg.CustomerID)

		if err := p.publisher.Publish(ctx, msg); err != nil {
			p.recordFailure(ctx, logger, msg, err)
			continue
		}

		if err := p.outboxRepo.MarkProcessed(ctx, msg.ID); err != nil {
			logger.Error("Delivered outbox message but failed to mark it processed", "error", err)
			continue
		}
		delivered++
		logger.Info("Successfully delivered outbox message", "event_type", string(msg.EventType))
	}
	return delivered, nil
}

func (p *Poller) recordFailure(ctx context.Context, logger *slog.Logger, msg *outbox.Message, cause error) {
	maxAttempts := p.maxRetryAttempts
	if errors.Is(cause, ErrUndecodablePayload) {
		maxAttempts = msg.Attempts + 1
	}
	msg.RecordFailure(cause.Error(), maxAttempts)

	logger.Error("Failed to deliver outbox message",
		"attempts", msg.Attempts,
		"status", string(msg.Status),
		"error", cause,
	)
	if msg.Attempts >= maxAttempts {
		logger.Warn("Max retry attempts reached for outbox message, parking it", "attempts_made", msg.Attempts)
	}

	if err := p.outboxRepo.SaveFailure(ctx, msg); err != nil {
		logger.Error("Failed to save outbox delivery failure", "error", err)
	}
}
