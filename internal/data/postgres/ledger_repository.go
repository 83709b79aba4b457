// Package postgres provides PostgreSQL implementations of the domain repositories.
// Every repository can be rebound to a transaction with WithTx so that a ledger
// mutation, its balance rewrites and the DebtIndex update commit together.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mycelium-customer-ledger/internal/domain/ledger"
	"github.com/mycelium-customer-ledger/internal/platform/persistence"
)

const entryColumns = `ledger_id, customer_id, transaction_date, sequence_no, transaction_type, amount,
		description, reference_id, event_ref, running_balance, created_at, updated_at`

// LedgerRepository implements the ledger.Repository interface for PostgreSQL
type LedgerRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewLedgerRepository creates a new PostgreSQL ledger repository
func NewLedgerRepository(logger *slog.Logger, db *persistence.PostgresDB) ledger.Repository {
	return &LedgerRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx
func (r *LedgerRepository) WithTx(tx pgx.Tx) ledger.Repository {
	return &LedgerRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Insert stores a sequenced entry. A second entry of the same kind for the same sale event
// violates uq_customer_ledger_event_ref and is reported as ErrDuplicateReference.
func (r *LedgerRepository) Insert(ctx context.Context, e *ledger.Entry) error {
	query := `
		INSERT INTO customer_ledger (ledger_id, customer_id, transaction_date, sequence_no, transaction_type, amount,
			description, reference_id, event_ref, running_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.querier.Exec(ctx, query,
		e.ID,
		e.CustomerID,
		e.TransactionDate,
		e.SequenceNo,
		string(e.Type),
		e.Amount,
		e.Description,
		e.ReferenceID,
		e.EventRef,
		e.RunningBalance,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		if _, constraint, ok := persistence.ConstraintViolation(err); ok && constraint == "uq_customer_ledger_event_ref" {
			return ledger.ErrDuplicateReference{
				CustomerID:      e.CustomerID,
				ReferenceID:     derefString(e.ReferenceID),
				EventRef:        e.EventKey(),
				TransactionType: e.Type,
			}
		}
		if persistence.IsForeignKeyViolation(err) {
			return ledger.ErrCustomerNotFound{CustomerID: e.CustomerID}
		}
		r.logger.Error("Failed to insert ledger entry", "entry_id", e.ID.String(), "customer_id", e.CustomerID, "error", err)
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	return nil
}

// Update writes the mutable fields and the cached running balance of e
func (r *LedgerRepository) Update(ctx context.Context, e *ledger.Entry) error {
	query := `
		UPDATE customer_ledger
		SET transaction_date = $1, transaction_type = $2, amount = $3, description = $4,
			running_balance = $5, updated_at = $6
		WHERE ledger_id = $7
	`

	result, err := r.querier.Exec(ctx, query,
		e.TransactionDate,
		string(e.Type),
		e.Amount,
		e.Description,
		e.RunningBalance,
		e.UpdatedAt,
		e.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update ledger entry", "entry_id", e.ID.String(), "error", err)
		return fmt.Errorf("failed to update ledger entry: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ledger.ErrEntryNotFound{EntryID: e.ID}
	}

	return nil
}

// Delete removes the entry row
func (r *LedgerRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM customer_ledger WHERE ledger_id = $1`

	result, err := r.querier.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to delete ledger entry", "entry_id", id.String(), "error", err)
		return fmt.Errorf("failed to delete ledger entry: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ledger.ErrEntryNotFound{EntryID: id}
	}

	return nil
}

// GetByID retrieves an entry by its id
func (r *LedgerRepository) GetByID(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	query := `SELECT ` + entryColumns + `
		FROM customer_ledger
		WHERE ledger_id = $1
	`

	entry, err := scanEntry(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound{EntryID: id}
		}
		r.logger.Error("Failed to get ledger entry", "entry_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}

	return entry, nil
}

// FindByReference returns the entry of txType posted for a sale, or nil when none exists
func (r *LedgerRepository) FindByReference(ctx context.Context, customerID string, txType ledger.TransactionType, referenceID string) (*ledger.Entry, error) {
	query := `SELECT ` + entryColumns + `
		FROM customer_ledger
		WHERE customer_id = $1 AND transaction_type = $2 AND reference_id = $3
	`

	entry, err := scanEntry(r.querier.QueryRow(ctx, query, customerID, string(txType), referenceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to find ledger entry by reference",
			"customer_id", customerID,
			"reference_id", referenceID,
			"error", err,
		)
		return nil, fmt.Errorf("failed to find ledger entry by reference: %w", err)
	}

	return entry, nil
}

// ListByReference returns the sale entry and its reversals for one sale in canonical order
func (r *LedgerRepository) ListByReference(ctx context.Context, customerID string, referenceID string) ([]*ledger.Entry, error) {
	query := `SELECT ` + entryColumns + `
		FROM customer_ledger
		WHERE customer_id = $1 AND reference_id = $2
		ORDER BY transaction_date ASC, sequence_no ASC
	`

	return r.queryEntries(ctx, "sale-linked", query, customerID, referenceID)
}

// BalanceBefore returns the cached running balance of the entry immediately before pos
func (r *LedgerRepository) BalanceBefore(ctx context.Context, customerID string, pos ledger.Position) (int64, error) {
	query := `
		SELECT running_balance
		FROM customer_ledger
		WHERE customer_id = $1 AND (transaction_date, sequence_no) < ($2, $3)
		ORDER BY transaction_date DESC, sequence_no DESC
		LIMIT 1
	`

	var balance int64
	err := r.querier.QueryRow(ctx, query, customerID, pos.Date, pos.SequenceNo).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		r.logger.Error("Failed to read prefix balance", "customer_id", customerID, "error", err)
		return 0, fmt.Errorf("failed to read prefix balance: %w", err)
	}

	return balance, nil
}

// ListFrom returns entries at or after pos in canonical order. The zero Position lists everything.
func (r *LedgerRepository) ListFrom(ctx context.Context, customerID string, pos ledger.Position) ([]*ledger.Entry, error) {
	query := `SELECT ` + entryColumns + `
		FROM customer_ledger
		WHERE customer_id = $1 AND (transaction_date, sequence_no) >= ($2, $3)
		ORDER BY transaction_date ASC, sequence_no ASC
	`

	return r.queryEntries(ctx, "suffix", query, customerID, pos.Date, pos.SequenceNo)
}

// ListByCustomer returns entries most-recent-first, optionally inside an inclusive date window
func (r *LedgerRepository) ListByCustomer(ctx context.Context, customerID string, filter ledger.ListFilter) ([]*ledger.Entry, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + entryColumns + `
		FROM customer_ledger
		WHERE customer_id = $1`)
	args := []interface{}{customerID}

	if filter.StartDate != nil && filter.EndDate != nil {
		sb.WriteString(` AND transaction_date BETWEEN $2 AND $3`)
		args = append(args, *filter.StartDate, *filter.EndDate)
	}
	sb.WriteString(`
		ORDER BY transaction_date DESC, sequence_no DESC`)

	return r.queryEntries(ctx, "ledger", sb.String(), args...)
}

// UpdateRunningBalances rewrites the cached balance of every entry in one statement
func (r *LedgerRepository) UpdateRunningBalances(ctx context.Context, entries []*ledger.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	ids := make([]string, len(entries))
	balances := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.ID.String()
		balances[i] = e.RunningBalance
	}

	query := `
		UPDATE customer_ledger AS l
		SET running_balance = v.running_balance
		FROM UNNEST($1::uuid[], $2::bigint[]) AS v(ledger_id, running_balance)
		WHERE l.ledger_id = v.ledger_id
	`

	result, err := r.querier.Exec(ctx, query, ids, balances)
	if err != nil {
		r.logger.Error("Failed to rewrite running balances", "count", len(entries), "error", err)
		return fmt.Errorf("failed to rewrite running balances: %w", err)
	}

	if result.RowsAffected() != int64(len(entries)) {
		return fmt.Errorf("failed to rewrite running balances: updated %d of %d entries", result.RowsAffected(), len(entries))
	}

	return nil
}

func (r *LedgerRepository) queryEntries(ctx context.Context, what string, query string, args ...interface{}) ([]*ledger.Entry, error) {
	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list "+what+" entries", "error", err)
		return nil, fmt.Errorf("failed to list %s entries: %w", what, err)
	}
	defer rows.Close()

	var entries []*ledger.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			r.logger.Error("Failed to scan ledger entry", "error", err)
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over ledger entries", "error", err)
		return nil, fmt.Errorf("error iterating over ledger entries: %w", err)
	}

	return entries, nil
}

func scanEntry(row pgx.Row) (*ledger.Entry, error) {
	var (
		e      ledger.Entry
		txType string
	)
	err := row.Scan(
		&e.ID,
		&e.CustomerID,
		&e.TransactionDate,
		&e.SequenceNo,
		&txType,
		&e.Amount,
		&e.Description,
		&e.ReferenceID,
		&e.EventRef,
		&e.RunningBalance,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Type = ledger.TransactionType(txType)
	return &e, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
