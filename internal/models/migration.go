package models

import (
	"time"

	"github.com/ledger-migrator/internal/types"
)

// MigrationLogEntry records the outcome of one user within one run. Entries
// are ephemeral: they are returned to the caller and shipped to the audit
// sink, not linked durably to the backup.
type MigrationLogEntry struct {
	UserID         string                 `json:"userId"`
	Status         types.LogStatus        `json:"status"`
	Reason         string                 `json:"reason,omitempty"`
	BeforeState    map[string]interface{} `json:"beforeState,omitempty"`
	AmountMigrated *float64               `json:"amountMigrated,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	Error          string                 `json:"error,omitempty"`
}

// MigrationResult is the aggregate outcome of one migration run.
type MigrationResult struct {
	MigrationType string              `json:"migrationType"`
	Migrated      int                 `json:"migrated"`
	Skipped       int                 `json:"skipped"`
	Errors        int                 `json:"errors"`
	Total         int                 `json:"total"`
	BackupID      string              `json:"backupId,omitempty"`
	Log           []MigrationLogEntry `json:"log"`
	StartedAt     time.Time           `json:"startedAt"`
	FinishedAt    time.Time           `json:"finishedAt"`
	Duration      time.Duration       `json:"duration"`
}

// RollbackError describes one user that could not be restored.
type RollbackError struct {
	UserID string `json:"userId"`
	Error  string `json:"error"`
}

// RollbackResult is the outcome of one rollback invocation. Success reports
// that the procedure ran to completion; per-user restore failures are
// counted in Errors/ErrorDetails and do not flip it to false.
type RollbackResult struct {
	Success      bool            `json:"success"`
	BackupID     string          `json:"backupId"`
	Restored     int             `json:"restored"`
	Errors       int             `json:"errors"`
	ErrorDetails []RollbackError `json:"errorDetails,omitempty"`
	RolledBackBy string          `json:"rolledBackBy"`
	RolledBackAt time.Time       `json:"rolledBackAt"`
}
