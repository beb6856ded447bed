package models

import (
	"time"

	"github.com/ledger-migrator/internal/types"
)

// AuditEvent is one append-only entry emitted for every per-user outcome of
// a migration run or rollback. Events are shipped to the audit store for
// external aggregation; the engine never queries them back.
type AuditEvent struct {
	Action        types.AuditAction `json:"action"`
	MigrationType string            `json:"migrationType"`
	BackupID      string            `json:"backupId"`
	UserID        string            `json:"userId"`
	Status        string            `json:"status"`
	Reason        string            `json:"reason,omitempty"`
	Operator      string            `json:"operator"`
	Error         string            `json:"error,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}
