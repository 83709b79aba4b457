package components

import (
	"log/slog"

	"github.com/mycelium-customer-ledger/internal/config"
	"github.com/mycelium-customer-ledger/internal/domain/customer"
	"github.com/mycelium-customer-ledger/internal/domain/ledger"
	"github.com/mycelium-customer-ledger/internal/domain/outbox"
	"github.com/mycelium-customer-ledger/internal/ledger_engine/service"
	"github.com/mycelium-customer-ledger/internal/platform/persistence"
)

// Engine bundles the ledger services that share one customer locker
type Engine struct {
	Ledger         service.LedgerService
	Reconciliation service.ReconciliationService
}

// CreateEngine wires the ledger and reconciliation services with their dependencies.
// Both share a locker so repairs and mutations of one customer never interleave.
func CreateEngine(
	txRunner persistence.TxRunner,
	ledgerRepo ledger.Repository,
	debtIndex customer.DebtIndex,
	directory customer.Directory,
	outboxRepo outbox.Repository,
	logger *slog.Logger,
	cfg *config.Config,
) *Engine {
	locker := NewCustomerLocker(cfg.Ledger.LockTimeout, logger.With("component", "customer_locker"))
	outboxManager := NewOutboxManager(outboxRepo, logger.With("component", "outbox_manager"))

	ledgerService := service.NewLedgerService(
		txRunner,
		ledgerRepo,
		debtIndex,
		directory,
		locker,
		outboxManager,
		service.LedgerServiceConfig{TransactionTimeout: cfg.Ledger.TransactionTimeout},
		logger.With("component", "ledger_service"),
	)

	reconciliationService := service.NewReconciliationService(
		txRunner,
		ledgerRepo,
		debtIndex,
		directory,
		locker,
		outboxManager,
		cfg.WorkerPool.Size,
		logger.With("component", "reconciliation"),
	)

	logger.Info("Ledger engine created",
		"lock_timeout", cfg.Ledger.LockTimeout,
		"transaction_timeout", cfg.Ledger.TransactionTimeout,
		"worker_pool_size", cfg.WorkerPool.Size)

	return &Engine{
		Ledger:         ledgerService,
		Reconciliation: reconciliationService,
	}
}
