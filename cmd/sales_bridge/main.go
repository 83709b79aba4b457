package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mycelium-customer-ledger/internal/config"
	"github.com/mycelium-customer-ledger/internal/data/mongo"
	"github.com/mycelium-customer-ledger/internal/data/postgres"
	"github.com/mycelium-customer-ledger/internal/ledger_engine/components"
	"github.com/mycelium-customer-ledger/internal/logger"
	"github.com/mycelium-customer-ledger/internal/platform/messaging/consumers"
	"github.com/mycelium-customer-ledger/internal/platform/messaging/producers"
	"github.com/mycelium-customer-ledger/internal/platform/persistence"
	"github.com/mycelium-customer-ledger/internal/sales_bridge/consumer"
	"github.com/mycelium-customer-ledger/internal/sales_bridge/outbox_poller"
	"github.com/mycelium-customer-ledger/internal/sales_bridge/service"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("sales_bridge")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Sales Bridge",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Initialize databases with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	ledgerRepo := postgres.NewLedgerRepository(log, postgresDB)
	debtIndex := postgres.NewDebtIndexRepository(log, postgresDB)
	directory := postgres.NewCustomerRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	historyRepo := mongo.NewHistoryRepository(log, mongoDB.Database())

	if err := historyRepo.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to prepare ledger history collection", "error", err)
		os.Exit(1)
	}

	// Initialize Kafka clients
	kafkaConsumer := consumers.NewKafkaConsumer(log, &cfg.Kafka)

	dlqProducer, err := producers.NewDLQProducer(log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}

	ledgerEventProducer, err := producers.NewLedgerEventProducer(log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize ledger event producer", "error", err)
		os.Exit(1)
	}

	// Initialize the ledger engine and the bridge on top of it
	engine := components.CreateEngine(postgresDB, ledgerRepo, debtIndex, directory, outboxRepo, log, cfg)
	bridgeService := service.NewBridgeService(engine.Ledger, ledgerRepo, time.Now, log.With("component", "sales_bridge"))

	saleEventHandler := consumer.NewSaleEventHandler(log, bridgeService, dlqProducer)

	// Initialize outbox poller
	historyPublisher := outbox_poller.NewHistoryPublisher(historyRepo, ledgerEventProducer, log)
	poller := outbox_poller.NewPoller(&cfg.Outbox, outboxRepo, historyPublisher, log)

	// Create wait group for graceful shutdown
	var wg sync.WaitGroup

	log.Info("Starting Kafka consumer",
		"topic", cfg.Kafka.SaleEventsTopic,
		"group", cfg.Kafka.ConsumerGroup,
	)
	consumerDone := kafkaConsumer.Subscribe(appCtx, saleEventHandler.HandleMessage)

	// Start outbox poller in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Start(appCtx)
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var consumerStopped bool
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case <-consumerDone:
		log.Error("Kafka consumer stopped unexpectedly")
		consumerStopped = true
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// Wait for all goroutines to finish
	log.Info("Waiting for services to stop...")
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		<-consumerDone
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	if err = dlqProducer.Close(); err != nil {
		log.Error("Error closing DLQ Kafka producer", "error", err)
	}
	if err = ledgerEventProducer.Close(); err != nil {
		log.Error("Error closing ledger event producer", "error", err)
	}
	if err = kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
	}

	postgresDB.Close()

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	if consumerStopped {
		log.Error("Sales Bridge shutdown with errors")
		os.Exit(1)
	}
	log.Info("Sales Bridge shutdown completed")
}
