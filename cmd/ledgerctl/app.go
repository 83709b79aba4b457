package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mycelium-customer-ledger/internal/config"
	"github.com/mycelium-customer-ledger/internal/data/postgres"
	"github.com/mycelium-customer-ledger/internal/ledger_engine/components"
	"github.com/mycelium-customer-ledger/internal/ledger_engine/service"
	"github.com/mycelium-customer-ledger/internal/logger"
	"github.com/mycelium-customer-ledger/internal/platform/persistence"
)

// app holds what the commands share. The hooks are swapped out in tests.
type app struct {
	configName string
	out        io.Writer // reports
	logOut     io.Writer

	loadConfig func(name string) (*config.Config, error)
	openEngine func(ctx context.Context, cfg *config.Config, log *slog.Logger) (service.ReconciliationService, func(), error)

	runMigrations      func(url, path string) error
	migrationVersion   func(url, path string) (uint, bool, error)
	rollbackMigrations func(url, path string, steps int) error
}

func newApp() *app {
	return &app{
		configName:         "ledgerctl",
		out:                os.Stdout,
		logOut:             os.Stderr,
		loadConfig:         config.LoadConfig,
		openEngine:         openEngine,
		runMigrations:      persistence.RunMigrations,
		migrationVersion:   persistence.MigrationVersion,
		rollbackMigrations: persistence.RollbackMigrations,
	}
}

func (a *app) setup() (*config.Config, *slog.Logger, error) {
	cfg, err := a.loadConfig(a.configName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, logger.NewLoggerWithWriter(cfg, a.logOut), nil
}

// openEngine connects to PostgreSQL and builds the reconciliation service on top of it
func openEngine(ctx context.Context, cfg *config.Config, log *slog.Logger) (service.ReconciliationService, func(), error) {
	db, err := persistence.NewPostgresDB(ctx, log, &cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	engine := components.CreateEngine(
		db,
		postgres.NewLedgerRepository(log, db),
		postgres.NewDebtIndexRepository(log, db),
		postgres.NewCustomerRepository(log, db),
		postgres.NewOutboxRepository(log, db),
		log,
		cfg,
	)
	return engine.Reconciliation, db.Close, nil
}

func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
