// Package main provides the API server entry point for the shielded scanner service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shielded-scanner/internal/alert"
	"github.com/shielded-scanner/internal/api"
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
	fmt.Println("Shielded Scanner API Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

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

	// Job queue and scheduler
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

	// Block indexer. Every stored transaction posts an alert-check job so
	// ingestion completion drives evaluation; every advanced block posts a
	// block-scoped check for new-block alerts.
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

	// Notification delivery
	hub := notify.NewHub()
	notifyService, err := notify.NewService(&notify.ServiceConfig{
		Hub:            hub,
		WebhookTimeout: cfg.Notify.WebhookTimeout,
		Workers:        cfg.Notify.DispatchWorkers,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create notification service")
	}

	// Alert services
	alertService := alert.NewService(alertRepo, notificationRepo)
	engine, err := alert.NewEngine(alertRepo, notificationRepo, txRepo, viewingKeyRepo, notifyService)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create alert engine")
	}

	// Bind job types to their implementations
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

	// Seed the repeating singletons; re-enqueueing on restart is a no-op
	if _, err := scheduler.StartContinuousSync(ctx, cfg.Indexer.PollInterval); err != nil {
		logger.WithError(err).Fatal("Failed to schedule continuous sync")
	}
	if _, err := scheduler.SchedulePeriodicReindex(ctx, cfg.Indexer.ReindexInterval, cfg.Indexer.ReindexDepth); err != nil {
		logger.WithError(err).Fatal("Failed to schedule periodic re-index")
	}
	if _, err := scheduler.StartPeriodicAlertCheck(ctx, cfg.Alerts.CheckInterval); err != nil {
		logger.WithError(err).Fatal("Failed to schedule periodic alert check")
	}

	logger.Info("Background processing started")

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}

	server := api.NewServer(serverConfig, alertService, blockIndexer, scheduler, queue, hub)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	if err := queue.Stop(); err != nil {
		logger.WithError(err).Warn("Job queue did not stop cleanly")
	}
	if err := notifyService.Stop(); err != nil {
		logger.WithError(err).Warn("Notification service did not stop cleanly")
	}

	logger.Info("Server exited")
}
