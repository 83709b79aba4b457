package components

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mycelium-customer-ledger/internal/config"
	"github.com/mycelium-customer-ledger/internal/data/postgres"
	"github.com/mycelium-customer-ledger/internal/platform/persistence"
)

func TestCreateEngine(t *testing.T) {
	pgDB := &persistence.PostgresDB{}
	logger := newTestLogger()

	cfg := &config.Config{
		Ledger: config.LedgerConfig{
			LockTimeout:        time.Second,
			TransactionTimeout: 5 * time.Second,
		},
		WorkerPool: config.WorkerPoolConfig{Size: 4},
	}

	engine := CreateEngine(
		pgDB,
		postgres.NewLedgerRepository(logger, pgDB),
		postgres.NewDebtIndexRepository(logger, pgDB),
		postgres.NewCustomerRepository(logger, pgDB),
		postgres.NewOutboxRepository(logger, pgDB),
		logger,
		cfg,
	)

	assert.NotNil(t, engine)
	assert.NotNil(t, engine.Ledger)
	assert.NotNil(t, engine.Reconciliation)
}
