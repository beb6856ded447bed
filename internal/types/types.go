// Package types provides shared types for the ledger migrator system.
package types

// BackupStatus represents the lifecycle state of a migration backup
type BackupStatus string

const (
	// BackupPending means the backup was written but the run has not finished
	BackupPending BackupStatus = "pending"
	// BackupCompleted means the migration run finished normally
	BackupCompleted BackupStatus = "completed"
	// BackupRolledBack is terminal; a rolled back backup is never reusable
	BackupRolledBack BackupStatus = "rolled_back"
)

// LogStatus classifies the per-record outcome of a migration run
type LogStatus string

const (
	LogSuccess LogStatus = "success"
	LogSkipped LogStatus = "skipped"
	LogError   LogStatus = "error"
)

// AuditAction identifies the kind of engine operation an audit event records
type AuditAction string

const (
	AuditMigration AuditAction = "migration"
	AuditRollback  AuditAction = "rollback"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
