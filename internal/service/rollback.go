package service

import (
	"context"
	"time"

	apperrors "github.com/ledger-migrator/internal/errors"
	"github.com/ledger-migrator/internal/logging"
	"github.com/ledger-migrator/internal/models"
	"github.com/ledger-migrator/internal/types"
)

// RollbackService restores the snapshotted fields of every record a backup
// protects and terminally marks the backup as rolled back.
type RollbackService struct {
	records RecordStore
	backups BackupStore
	audit   AuditSink
}

// NewRollbackService creates a new rollback service. The audit sink may be nil.
func NewRollbackService(records RecordStore, backups BackupStore, audit AuditSink) *RollbackService {
	return &RollbackService{
		records: records,
		backups: backups,
		audit:   audit,
	}
}

// PerformRollback restores every affected user of the backup to its
// snapshotted state. Per-user restore errors are counted and do not stop the
// remaining users; the backup always transitions to rolled_back afterwards
// so the attempt is auditable even when partial. A backup that was already
// rolled back is refused before any side effect: a prior rollback may have
// been followed by legitimate writes, and re-applying snapshots would
// corrupt them.
func (s *RollbackService) PerformRollback(ctx context.Context, backupID, operatorID string) (*models.RollbackResult, error) {
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"backupId": backupID,
		"operator": operatorID,
	})

	backup, err := s.backups.GetByID(ctx, backupID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("load backup", err)
	}
	if backup == nil {
		return nil, apperrors.NewBackupNotFoundError(backupID)
	}
	if backup.Status == types.BackupRolledBack {
		return nil, apperrors.NewAlreadyRolledBackError(backupID)
	}

	logger.WithFields(map[string]interface{}{
		"migrationType": backup.MigrationType,
		"affectedUsers": len(backup.AffectedUsers),
	}).Info("Rollback started")

	result := &models.RollbackResult{
		BackupID:     backupID,
		RolledBackBy: operatorID,
	}
	events := make([]models.AuditEvent, 0, len(backup.AffectedUsers))

	for _, affected := range backup.AffectedUsers {
		event := models.AuditEvent{
			Action:        types.AuditRollback,
			MigrationType: backup.MigrationType,
			BackupID:      backupID,
			UserID:        affected.UserID,
			Operator:      operatorID,
			Timestamp:     time.Now().UTC(),
		}

		// Restore only the snapshotted paths; fields written after the
		// migration by unrelated callers are left alone.
		if err := s.records.MergePatch(ctx, affected.UserID, affected.Snapshot); err != nil {
			result.Errors++
			result.ErrorDetails = append(result.ErrorDetails, models.RollbackError{
				UserID: affected.UserID,
				Error:  err.Error(),
			})
			event.Status = string(types.LogError)
			event.Error = err.Error()
			logger.WithError(err).WithField("userId", affected.UserID).Error("Failed to restore user")
		} else {
			result.Restored++
			event.Status = string(types.LogSuccess)
		}

		events = append(events, event)
	}

	// The backup transitions even when some restores failed: a clearly
	// logged partial rollback that operators can re-drive from ErrorDetails
	// beats leaving the backup open for a second blind attempt.
	if err := s.backups.MarkRolledBack(ctx, backupID, operatorID); err != nil {
		result.Success = false
		logger.WithError(err).Error("Failed to mark backup rolled back")
		return result, apperrors.NewDatabaseError("mark backup rolled back", err)
	}

	result.Success = true
	result.RolledBackAt = time.Now().UTC()

	if s.audit != nil {
		if err := s.audit.Append(ctx, events); err != nil {
			logger.WithError(err).Warn("Failed to append rollback audit events")
		}
	}

	logger.WithFields(map[string]interface{}{
		"restored": result.Restored,
		"errors":   result.Errors,
	}).Info("Rollback finished")

	return result, nil
}
