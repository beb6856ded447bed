// Package main provides an operator CLI that rolls back a migration backup
// directly against the databases, for when the admin API is unavailable.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/ledger-migrator/internal/config"
	"github.com/ledger-migrator/internal/logging"
	"github.com/ledger-migrator/internal/service"
	"github.com/ledger-migrator/internal/storage"
)

func main() {
	var (
		backupID = flag.String("backup", "", "Backup ID to roll back (required)")
		operator = flag.String("operator", "", "Operator identifier (required)")
	)
	flag.Parse()

	if *backupID == "" || *operator == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	var auditSink service.AuditSink
	clickhouseDB, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Warn("ClickHouse unavailable, audit events will not be persisted")
	} else {
		defer clickhouseDB.Close()
		auditSink = storage.NewAuditRepository(clickhouseDB)
	}

	rollbackService := service.NewRollbackService(
		storage.NewRecordStore(postgres),
		storage.NewBackupRepository(postgres),
		auditSink,
	)

	result, err := rollbackService.PerformRollback(context.Background(), *backupID, *operator)
	if err != nil {
		if result != nil {
			printResult(result)
		}
		logger.WithError(err).Fatal("Rollback failed")
	}

	printResult(result)
	if result.Errors > 0 {
		logger.Warnf("Rollback completed with %d per-user errors; inspect errorDetails", result.Errors)
	}
}

func printResult(result interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(result) // nolint:errcheck // stdout
}
