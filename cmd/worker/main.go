// Package main provides the headless job worker entry point for the shielded
// scanner service. It processes the same queue as the API server, so extra
// workers scale out webhook-heavy or scan-heavy workloads. Live connection
// pushes only happen in the process that owns the connections; from here a
// ui delivery is a no-op.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shielded-scanner/internal/alert"
	"github.com/shielded-scanner/internal/chain"
	"github.com/shielded-scanner/internal/config"
	"github.com/shielded-scanner/internal/indexer"
	"github.com/shielded-scanner/internal/job"
	"github.com/shielded-scanner/internal/logging"
	"github.com/shielded-scanner/internal/notify"
	"github.com/shielded-scanner/internal/scanner"
	"github.com/shielded-scanner/internal/storage"
)

func main() {
	fmt.Println("Shielded Scanner Job Worker")
	log.Println("Worker starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	// Chain node RPC client
	chainClient, err := chain.NewRPCClient(&chain.RPCClientConfig{
		Host:                 cfg.Chain.RPCHost,
		User:                 cfg.Chain.RPCUser,
		Password:             cfg.Chain.RPCPassword,
		MaxRequestsPerSecond: cfg.Chain.MaxRequestsPerSecond,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create chain RPC client")
	}
	defer chainClient.Shutdown()

	// Initialize repositories
	txRepo := storage.NewTransactionRepository(postgres)
	alertRepo := storage.NewAlertRepository(postgres)
	notificationRepo := storage.NewNotificationRepository(postgres)
	viewingKeyRepo := storage.NewViewingKeyRepository(postgres)

	// Job queue
	queue, err := job.NewQueue(&job.QueueConfig{
		Cache:        redis,
		Workers:      cfg.Jobs.Workers,
		MaxAttempts:  cfg.Jobs.MaxAttempts,
		BackoffBase:  cfg.Jobs.BackoffBase,
		HistoryLimit: cfg.Jobs.HistoryLimit,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create job queue")
	}
	scheduler := job.NewScheduler(queue)

	// Block indexer
	blockIndexer, err := indexer.NewBlockIndexer(&indexer.BlockIndexerConfig{
		Client:           chainClient,
		Store:            txRepo,
		PollInterval:     cfg.Indexer.PollInterval,
		BatchSize:        cfg.Indexer.BatchSize,
		ReorgRewindLimit: int(cfg.Indexer.ReorgRewindLimit),
		StartHeight:      cfg.Indexer.StartHeight,
		OnIndexed: func(transactionID string, height int64) {
			if _, err := scheduler.ScheduleAlertCheck(context.Background(), transactionID, height); err != nil {
				logger.WithError(err).Warn("Failed to schedule alert check")
			}
		},
		OnBlock: func(height int64) {
			if _, err := scheduler.ScheduleAlertCheck(context.Background(), "", height); err != nil {
				logger.WithError(err).Warn("Failed to schedule block alert check")
			}
		},
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create block indexer")
	}

	// Viewing key scanner
	keyScanner, err := scanner.NewScanner(&scanner.ScannerConfig{
		Transactions: txRepo,
		Associations: viewingKeyRepo,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create scanner")
	}

	// Notification delivery. The hub here never holds connections; webhook
	// and email deliveries are what this process contributes.
	notifyService, err := notify.NewService(&notify.ServiceConfig{
		Hub:            notify.NewHub(),
		WebhookTimeout: cfg.Notify.WebhookTimeout,
		Workers:        cfg.Notify.DispatchWorkers,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create notification service")
	}

	engine, err := alert.NewEngine(alertRepo, notificationRepo, txRepo, viewingKeyRepo, notifyService)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create alert engine")
	}

	executor, err := job.NewExecutor(blockIndexer, keyScanner, engine)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create job executor")
	}
	executor.RegisterHandlers(queue)

	ctx := context.Background()

	if err := notifyService.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start notification service")
	}
	if err := queue.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start job queue")
	}

	logger.WithFields(map[string]interface{}{
		"workers": cfg.Jobs.Workers,
	}).Info("Worker started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")

	if err := queue.Stop(); err != nil {
		logger.WithError(err).Warn("Job queue did not stop cleanly")
	}
	if err := notifyService.Stop(); err != nil {
		logger.WithError(err).Warn("Notification service did not stop cleanly")
	}

	logger.Info("Worker exited")
}
