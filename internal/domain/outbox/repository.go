package outbox

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"
)

// Repository manages transactional outbox message persistence
type Repository interface {
	Create(ctx context.Context, message *Message) error
	// GetPending returns up to limit pending messages, oldest first
	GetPending(ctx context.Context, limit int) ([]*Message, error)
	MarkProcessed(ctx context.Context, id int64) error
	// SaveFailure persists attempts, last error and status after a failed delivery
	SaveFailure(ctx context.Context, message *Message) error
	WithTx(tx pgx.Tx) Repository
}

// ErrMessageNotFound indicates missing outbox message
type ErrMessageNotFound struct {
	ID int64
}

func (e ErrMessageNotFound) Error() string {
	return "outbox message not found: " + strconv.FormatInt(e.ID, 10)
}
