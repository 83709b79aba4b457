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

// CustomerRepository reads the customers table maintained by the customer directory
type CustomerRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewCustomerRepository creates a new PostgreSQL customer directory reader
func NewCustomerRepository(logger *slog.Logger, db *persistence.PostgresDB) customer.Directory {
	return &CustomerRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// GetByID returns ErrCustomerNotFound for unknown ids
func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*customer.Customer, error) {
	query := `
		SELECT customer_id, customer_name, mobile_number
		FROM customers
		WHERE customer_id = $1
	`

	var c customer.Customer
	err := r.querier.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.MobileNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrCustomerNotFound{CustomerID: id}
		}
		r.logger.Error("Failed to get customer", "customer_id", id, "error", err)
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	return &c, nil
}

// Exists reports whether the directory knows the customer
func (r *CustomerRepository) Exists(ctx context.Context, id string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM customers WHERE customer_id = $1)`

	var exists bool
	if err := r.querier.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		r.logger.Error("Failed to check customer", "customer_id", id, "error", err)
		return false, fmt.Errorf("failed to check customer: %w", err)
	}

	return exists, nil
}
