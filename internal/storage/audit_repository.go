package storage

import (
	"context"
	"fmt"

	"github.com/ledger-migrator/internal/models"
)

// AuditRepository appends migration and rollback audit events to ClickHouse.
// The table is append-only; the engine never reads it back, retention and
// querying belong to the external log aggregation side.
type AuditRepository struct {
	db *ClickHouseDB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *ClickHouseDB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts a batch of audit events.
func (r *AuditRepository) Append(ctx context.Context, events []models.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO migration_audit_log (
			action, migration_type, backup_id, user_id, status, reason, operator, error, timestamp
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare audit batch: %w", err)
	}

	for _, event := range events {
		err := batch.Append(
			string(event.Action),
			event.MigrationType,
			event.BackupID,
			event.UserID,
			event.Status,
			event.Reason,
			event.Operator,
			event.Error,
			event.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to append audit event: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send audit batch: %w", err)
	}

	return nil
}
