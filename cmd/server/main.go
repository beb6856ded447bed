// Package main provides the admin API server entry point for the ledger
// migrator service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ledger-migrator/internal/api"
	"github.com/ledger-migrator/internal/config"
	"github.com/ledger-migrator/internal/logging"
	"github.com/ledger-migrator/internal/retry"
	"github.com/ledger-migrator/internal/service"
	"github.com/ledger-migrator/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
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

	// Connect to Postgres; retried because the database may still be coming
	// up when the service starts.
	var postgres *storage.PostgresDB
	err = retry.WithRetry(context.Background(), func(ctx context.Context, attempt int) error {
		var connErr error
		postgres, connErr = storage.NewPostgresDB(&cfg.Database.Postgres)
		return connErr
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	// ClickHouse audit sink is optional: without it, per-record outcomes are
	// still returned to the caller, just not shipped for aggregation.
	var auditSink service.AuditSink
	clickhouseDB, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Warn("ClickHouse unavailable, audit events will not be persisted")
	} else {
		defer clickhouseDB.Close()
		auditSink = storage.NewAuditRepository(clickhouseDB)
	}

	// Redis cache is optional as well; the API falls through to Postgres.
	var cache api.BackupCacheInterface
	redisCache, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, backup reads will not be cached")
	} else {
		defer redisCache.Close()
		cache = storage.NewCacheService(redisCache, cfg.Cache.TTL)
	}

	logger.Info("Database connections established")

	// Initialize repositories and engines
	backupRepo := storage.NewBackupRepository(postgres)
	recordStore := storage.NewRecordStore(postgres)

	engine := service.NewEngine(recordStore, backupRepo, auditSink)
	rollbackService := service.NewRollbackService(recordStore, backupRepo, auditSink)
	registry := service.DefaultRegistry(cfg.Migration.RebalanceAmount)

	// Create server configuration; the write timeout is generous because a
	// migration run holds the request open until the batch finishes.
	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    5 * time.Minute,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		AdminToken:      cfg.Auth.AdminToken,
		OperatorRPS:     cfg.RateLimit.RequestsPerSecond,
		OperatorBurst:   cfg.RateLimit.Burst,
		ListLimit:       cfg.Migration.ListLimit,
	}

	server := api.NewServer(serverConfig, engine, rollbackService, backupRepo, cache, registry)

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

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
