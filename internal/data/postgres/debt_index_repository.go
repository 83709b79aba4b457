package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/mycelium-customer-ledger/internal/domain/customer"
	"github.com/mycelium-customer-ledger/internal/domain/ledger"
	"github.com/mycelium-customer-ledger/internal/platform/persistence"
)

// DebtIndexRepository implements customer.DebtIndex on the customer_balances table
type DebtIndexRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewDebtIndexRepository creates a new PostgreSQL DebtIndex
func NewDebtIndexRepository(logger *slog.Logger, db *persistence.PostgresDB) customer.DebtIndex {
	return &DebtIndexRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a DebtIndex bound to tx
func (r *DebtIndexRepository) WithTx(tx pgx.Tx) customer.DebtIndex {
	return &DebtIndexRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// LockBalance creates the customer's balance row if needed and locks it until the
// transaction ends. Concurrent writers for the same customer queue on this row.
func (r *DebtIndexRepository) LockBalance(ctx context.Context, customerID string) (*customer.Balance, error) {
	ensure := `
		INSERT INTO customer_balances (customer_id)
		VALUES ($1)
		ON CONFLICT (customer_id) DO NOTHING
	`
	if _, err := r.querier.Exec(ctx, ensure, customerID); err != nil {
		if persistence.IsForeignKeyViolation(err) {
			return nil, ledger.ErrCustomerNotFound{CustomerID: customerID}
		}
		r.logger.Error("Failed to create balance row", "customer_id", customerID, "error", err)
		return nil, fmt.Errorf("failed to create balance row: %w", err)
	}

	query := `
		SELECT customer_id, current_balance, last_sequence_no, entry_count, updated_at
		FROM customer_balances
		WHERE customer_id = $1
		FOR UPDATE
	`

	var b customer.Balance
	err := r.querier.QueryRow(ctx, query, customerID).Scan(
		&b.CustomerID,
		&b.CurrentBalance,
		&b.LastSequenceNo,
		&b.EntryCount,
		&b.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to lock balance row", "customer_id", customerID, "error", err)
		return nil, fmt.Errorf("failed to lock balance row: %w", err)
	}

	return &b, nil
}

// Save writes the balance, sequence counter and entry count of b
func (r *DebtIndexRepository) Save(ctx context.Context, b *customer.Balance) error {
	query := `
		UPDATE customer_balances
		SET current_balance = $1, last_sequence_no = $2, entry_count = $3, updated_at = $4
		WHERE customer_id = $5
	`

	result, err := r.querier.Exec(ctx, query,
		b.CurrentBalance,
		b.LastSequenceNo,
		b.EntryCount,
		b.UpdatedAt,
		b.CustomerID,
	)
	if err != nil {
		r.logger.Error("Failed to save balance", "customer_id", b.CustomerID, "error", err)
		return fmt.Errorf("failed to save balance: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ledger.ErrCustomerNotFound{CustomerID: b.CustomerID}
	}

	return nil
}

// Get reads a balance row without locking; a customer without entries has a zero balance
func (r *DebtIndexRepository) Get(ctx context.Context, customerID string) (*customer.Balance, error) {
	query := `
		SELECT customer_id, current_balance, last_sequence_no, entry_count, updated_at
		FROM customer_balances
		WHERE customer_id = $1
	`

	var b customer.Balance
	err := r.querier.QueryRow(ctx, query, customerID).Scan(
		&b.CustomerID,
		&b.CurrentBalance,
		&b.LastSequenceNo,
		&b.EntryCount,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &customer.Balance{CustomerID: customerID}, nil
		}
		r.logger.Error("Failed to get balance", "customer_id", customerID, "error", err)
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	return &b, nil
}

// ListDebtors joins the index with the customer directory, largest balance first
func (r *DebtIndexRepository) ListDebtors(ctx context.Context) ([]customer.Debtor, error) {
	query := `
		SELECT c.customer_id, c.customer_name, c.mobile_number, b.current_balance
		FROM customer_balances b
		JOIN customers c ON c.customer_id = b.customer_id
		WHERE b.current_balance <> 0
		ORDER BY b.current_balance DESC, c.customer_name ASC
	`

	rows, err := r.querier.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list debtors", "error", err)
		return nil, fmt.Errorf("failed to list debtors: %w", err)
	}
	defer rows.Close()

	debtors := []customer.Debtor{}
	for rows.Next() {
		var d customer.Debtor
		if err := rows.Scan(&d.CustomerID, &d.CustomerName, &d.MobileNumber, &d.CurrentBalance); err != nil {
			r.logger.Error("Failed to scan debtor", "error", err)
			return nil, fmt.Errorf("failed to scan debtor: %w", err)
		}
		debtors = append(debtors, d)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over debtors", "error", err)
		return nil, fmt.Errorf("error iterating over debtors: %w", err)
	}

	return debtors, nil
}

// ListCustomerIDs returns every customer that has ever had a ledger entry
func (r *DebtIndexRepository) ListCustomerIDs(ctx context.Context) ([]string, error) {
	query := `
		SELECT customer_id FROM customer_balances
		UNION
		SELECT DISTINCT customer_id FROM customer_ledger
		ORDER BY customer_id
	`

	rows, err := r.querier.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list customer ids", "error", err)
		return nil, fmt.Errorf("failed to list customer ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan customer id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over customer ids: %w", err)
	}

	return ids, nil
}
