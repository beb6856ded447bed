// Package api provides the admin HTTP API for the migration engine.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/ledger-migrator/internal/models"
	"github.com/ledger-migrator/internal/service"
)

// Service interfaces for dependency injection and testing

// MigrationEngineInterface runs migrations
type MigrationEngineInterface interface {
	Run(ctx context.Context, def service.Definition, operatorID string) (*models.MigrationResult, error)
}

// RollbackEngineInterface performs rollbacks
type RollbackEngineInterface interface {
	PerformRollback(ctx context.Context, backupID, operatorID string) (*models.RollbackResult, error)
}

// BackupReaderInterface provides operational visibility into backups
type BackupReaderInterface interface {
	GetByID(ctx context.Context, backupID string) (*models.Backup, error)
	List(ctx context.Context, limit int) ([]*models.Backup, error)
}

// BackupCacheInterface caches backup reads; a nil cache disables caching
type BackupCacheInterface interface {
	GetBackup(ctx context.Context, backupID string) (*models.Backup, error)
	SetBackup(ctx context.Context, backup *models.Backup) error
	GetBackupList(ctx context.Context, limit int) ([]*models.Backup, error)
	SetBackupList(ctx context.Context, limit int, backups []*models.Backup) error
	InvalidateBackup(ctx context.Context, backupID string) error
}

// Server represents the admin HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	engine     MigrationEngineInterface
	rollback   RollbackEngineInterface
	backups    BackupReaderInterface
	cache      BackupCacheInterface
	registry   *service.Registry
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AdminToken      string
	OperatorRPS     int
	OperatorBurst   int
	ListLimit       int // default page size for backup listings
}

// NewServer creates a new admin API server instance.
func NewServer(
	config *ServerConfig,
	engine MigrationEngineInterface,
	rollback RollbackEngineInterface,
	backups BackupReaderInterface,
	cache BackupCacheInterface,
	registry *service.Registry,
) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		engine:   engine,
		rollback: rollback,
		backups:  backups,
		cache:    cache,
		registry: registry,
		config:   config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewOperatorRateLimiter(s.config.OperatorRPS, s.config.OperatorBurst)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)

	// Health check stays outside auth
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(AdminAuthMiddleware(s.config.AdminToken))
	api.Use(RateLimitMiddleware(rateLimiter))

	// Backup endpoints
	api.HandleFunc("/backups", s.handleListBackups).Methods("GET")
	api.HandleFunc("/backups/{id}", s.handleGetBackup).Methods("GET")
	api.HandleFunc("/backups/{id}/rollback", s.handleRollback).Methods("POST")

	// Migration trigger endpoints
	api.HandleFunc("/migrations", s.handleListMigrations).Methods("GET")
	api.HandleFunc("/migrations/{type}/run", s.handleRunMigration).Methods("POST")

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "ledger-migrator",
	})
}

// Router returns the configured router; used by handler tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting admin API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down admin API server...")
	return s.httpServer.Shutdown(ctx)
}
