// Package models provides data models for the ledger migrator system.
package models

import (
	"time"

	"github.com/ledger-migrator/internal/types"
)

// AffectedUser is one entry of a backup's write-once snapshot list. The
// snapshot holds the pre-mutation values of exactly the fields the migration
// touched, keyed by dotted path.
type AffectedUser struct {
	UserID    string `json:"userId"`
	UserLabel string `json:"userLabel,omitempty"`
	Snapshot  Patch  `json:"snapshot"`
}

// Backup is the durable record of pre-mutation state for one migration run.
// AffectedUsers is write-once at creation; rollback reads it but never
// mutates it.
type Backup struct {
	ID              string                 `json:"id" db:"id"`
	MigrationType   string                 `json:"migrationType" db:"migration_type"`
	CreatedAt       time.Time              `json:"createdAt" db:"created_at"`
	CreatedBy       string                 `json:"createdBy" db:"created_by"`
	AffectedUsers   []AffectedUser         `json:"affectedUsers" db:"affected_users"`
	MigrationParams map[string]interface{} `json:"migrationParams,omitempty" db:"migration_params"`
	Status          types.BackupStatus     `json:"status" db:"status"`
	CompletedAt     *time.Time             `json:"completedAt,omitempty" db:"completed_at"`
	RolledBackAt    *time.Time             `json:"rolledBackAt,omitempty" db:"rolled_back_at"`
	RolledBackBy    string                 `json:"rolledBackBy,omitempty" db:"rolled_back_by"`
}
