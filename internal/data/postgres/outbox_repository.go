package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mycelium-customer-ledger/internal/domain/ledger"
	"github.com/mycelium-customer-ledger/internal/domain/outbox"
	"github.com/mycelium-customer-ledger/internal/domain/shared"
	"github.com/mycelium-customer-ledger/internal/platform/persistence"
)

// OutboxRepository implements the outbox.Repository interface for PostgreSQL
type OutboxRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewOutboxRepository creates a new PostgreSQL outbox repository
func NewOutboxRepository(logger *slog.Logger, db *persistence.PostgresDB) outbox.Repository {
	return &OutboxRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx binds the repository to tx so the message commits with the ledger change it describes
func (r *OutboxRepository) WithTx(tx pgx.Tx) outbox.Repository {
	return &OutboxRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new outbox message in pending status
func (r *OutboxRepository) Create(ctx context.Context, message *outbox.Message) error {
	query := `
		INSERT INTO ledger_outbox (event_id, customer_id, entry_id, event_type, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := r.querier.QueryRow(ctx, query,
		message.EventID,
		message.CustomerID,
		message.EntryID,
		string(message.EventType),
		message.Payload,
		string(message.Status),
		message.Attempts,
		message.CreatedAt,
	).Scan(&message.ID)

	if err != nil {
		r.logger.Error("Failed to create outbox message",
			"event_id", message.EventID.String(),
			"customer_id", message.CustomerID,
			"error", err,
		)
		return fmt.Errorf("failed to create outbox message: %w", err)
	}

	return nil
}

// GetPending retrieves a batch of pending outbox messages in FIFO order
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	query := `
		SELECT id, event_id, customer_id, entry_id, event_type, payload, status, attempts, last_error,
			created_at, last_attempt_at
		FROM ledger_outbox
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`

	rows, err := r.querier.Query(ctx, query, string(shared.OutboxStatusPending), limit)
	if err != nil {
		r.logger.Error("Failed to get pending outbox messages", "error", err)
		return nil, fmt.Errorf("failed to get pending outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []*outbox.Message
	for rows.Next() {
		var (
			message   outbox.Message
			eventType string
			status    string
		)
		err := rows.Scan(
			&message.ID,
			&message.EventID,
			&message.CustomerID,
			&message.EntryID,
			&eventType,
			&message.Payload,
			&status,
			&message.Attempts,
			&message.LastError,
			&message.CreatedAt,
			&message.LastAttemptAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan outbox message", "error", err)
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		message.EventType = ledger.EventType(eventType)
		message.Status = shared.OutboxStatus(status)
		messages = append(messages, &message)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over outbox messages", "error", err)
		return nil, fmt.Errorf("error iterating over outbox messages: %w", err)
	}

	return messages, nil
}

// MarkProcessed flags a delivered message
func (r *OutboxRepository) MarkProcessed(ctx context.Context, id int64) error {
	query := `
		UPDATE ledger_outbox
		SET status = $1, last_attempt_at = $2
		WHERE id = $3
	`

	result, err := r.querier.Exec(ctx, query, string(shared.OutboxStatusProcessed), time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to mark outbox message processed", "id", id, "error", err)
		return fmt.Errorf("failed to mark outbox message processed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return outbox.ErrMessageNotFound{ID: id}
	}

	return nil
}

// SaveFailure persists the attempt count, error text and status of a failed delivery
func (r *OutboxRepository) SaveFailure(ctx context.Context, message *outbox.Message) error {
	query := `
		UPDATE ledger_outbox
		SET status = $1, attempts = $2, last_error = $3, last_attempt_at = $4
		WHERE id = $5
	`

	result, err := r.querier.Exec(ctx, query,
		string(message.Status),
		message.Attempts,
		message.LastError,
		message.LastAttemptAt,
		message.ID,
	)
	if err != nil {
		r.logger.Error("Failed to record outbox failure", "id", message.ID, "error", err)
		return fmt.Errorf("failed to record outbox failure: %w", err)
	}

	if result.RowsAffected() == 0 {
		return outbox.ErrMessageNotFound{ID: message.ID}
	}

	return nil
}
