// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/shielded-scanner/internal/alert"
	"github.com/shielded-scanner/internal/indexer"
	"github.com/shielded-scanner/internal/models"
	"github.com/shielded-scanner/internal/notify"
)

// Service interfaces for dependency injection and testing

// AlertServiceInterface defines the interface for alert rule operations
type AlertServiceInterface interface {
	CreateAlert(ctx context.Context, input *alert.CreateAlertInput) (*models.Alert, error)
	GetUserAlerts(ctx context.Context, userID string) ([]*models.Alert, error)
	UpdateAlertStatus(ctx context.Context, userID, alertID string, active bool) (*models.Alert, error)
	DeleteAlert(ctx context.Context, userID, alertID string) error
	GetUserNotifications(ctx context.Context, userID string, limit, offset int) ([]*models.AlertNotification, error)
}

// IndexerInterface defines the interface for sync status reporting
type IndexerInterface interface {
	GetStatus() *indexer.Status
}

// SchedulerInterface defines the interface for job scheduling operations
type SchedulerInterface interface {
	ScheduleRangeIndex(ctx context.Context, start, end int64) (*models.JobRecord, error)
	ScheduleViewingKeyScan(ctx context.Context, viewingKey, userID string, start, end int64) (*models.JobRecord, error)
}

// JobStoreInterface defines the interface for job observability
type JobStoreInterface interface {
	GetJob(ctx context.Context, id string) (*models.JobRecord, error)
	History(ctx context.Context, limit int) ([]*models.JobRecord, error)
}

// Server represents the HTTP API server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	alertService AlertServiceInterface
	indexer      IndexerInterface
	scheduler    SchedulerInterface
	jobs         JobStoreInterface
	hub          *notify.Hub
	config       *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	alertService AlertServiceInterface,
	indexer IndexerInterface,
	scheduler SchedulerInterface,
	jobs JobStoreInterface,
	hub *notify.Hub,
) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		alertService: alertService,
		indexer:      indexer,
		scheduler:    scheduler,
		jobs:         jobs,
		hub:          hub,
		config:       config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Live notification stream (upgraded, bypasses the JSON middleware path)
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Alert endpoints
	api.HandleFunc("/alerts", s.handleCreateAlert).Methods("POST")
	api.HandleFunc("/alerts", s.handleListAlerts).Methods("GET")
	api.HandleFunc("/alerts/{id}", s.handleUpdateAlertStatus).Methods("PATCH")
	api.HandleFunc("/alerts/{id}", s.handleDeleteAlert).Methods("DELETE")

	// Notification history
	api.HandleFunc("/notifications", s.handleListNotifications).Methods("GET")

	// Indexer endpoints
	api.HandleFunc("/indexer/status", s.handleIndexerStatus).Methods("GET")
	api.HandleFunc("/indexer/reindex", s.handleReindex).Methods("POST")

	// Viewing key scan
	api.HandleFunc("/scans", s.handleScheduleScan).Methods("POST")

	// Job observability
	api.HandleFunc("/jobs", s.handleJobHistory).Methods("GET")
	api.HandleFunc("/jobs/{id}", s.handleGetJob).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "shielded-scanner",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
