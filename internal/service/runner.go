// Package service implements the migration engine: the runner contract, the
// run loop that snapshots before mutating, and the rollback engine.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ledger-migrator/internal/logging"
	"github.com/ledger-migrator/internal/models"
	"github.com/ledger-migrator/internal/storage"
	"github.com/ledger-migrator/internal/types"
)

// RecordStore is the user-record boundary consumed by the engine
type RecordStore interface {
	Get(ctx context.Context, userID string) (*models.UserRecord, error)
	Scan(ctx context.Context, filter storage.RecordFilter) ([]*models.UserRecord, error)
	MergePatch(ctx context.Context, userID string, patch models.Patch) error
}

// BackupStore is the snapshot store consumed by the engine
type BackupStore interface {
	Create(ctx context.Context, backup *models.Backup) error
	MarkCompleted(ctx context.Context, backupID string) error
	MarkRolledBack(ctx context.Context, backupID, operatorID string) error
	GetByID(ctx context.Context, backupID string) (*models.Backup, error)
	List(ctx context.Context, limit int) ([]*models.Backup, error)
}

// AuditSink receives append-only audit events; appends are best effort
type AuditSink interface {
	Append(ctx context.Context, events []models.AuditEvent) error
}

// Decision is the outcome of evaluating one candidate record: either a skip
// with a reason, or a merge-patch to apply. Evaluate must be deterministic
// and must mark migrated records so a re-run classifies them as skipped.
type Decision struct {
	Skip           bool
	Reason         string
	BeforeState    map[string]interface{}
	Patch          models.Patch
	AmountMigrated *float64
}

// Definition is the caller-supplied migration contract. The engine owns
// snapshotting, backup lifecycle, and accounting; the definition owns what
// to select and what to change.
type Definition interface {
	// Type is the free-form migration tag stored on the backup
	Type() string
	// Filter selects candidate records from the record store
	Filter() storage.RecordFilter
	// Evaluate classifies one candidate using only data on the record
	Evaluate(record *models.UserRecord) *Decision
	// Params describes the run for audit; never interpreted by the engine
	Params() map[string]interface{}
}

// Engine executes migration runs against the record store, backing up every
// record it is about to touch before the first write.
type Engine struct {
	records RecordStore
	backups BackupStore
	audit   AuditSink
}

// NewEngine creates a new migration engine. The audit sink may be nil.
func NewEngine(records RecordStore, backups BackupStore, audit AuditSink) *Engine {
	return &Engine{
		records: records,
		backups: backups,
		audit:   audit,
	}
}

// Run executes one migration run:
//  1. scan candidates (fatal on error, zero side effects),
//  2. evaluate eligibility per record,
//  3. back up the exact set of eligible records before any write,
//  4. merge-patch eligible records independently,
//  5. mark the backup completed when at least one record migrated.
//
// Per-record mutation errors are absorbed into the log; only scan and backup
// failures abort the run.
func (e *Engine) Run(ctx context.Context, def Definition, operatorID string) (*models.MigrationResult, error) {
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"migrationType": def.Type(),
		"operator":      operatorID,
	})

	result := &models.MigrationResult{
		MigrationType: def.Type(),
		StartedAt:     time.Now().UTC(),
	}

	candidates, err := e.records.Scan(ctx, def.Filter())
	if err != nil {
		return nil, fmt.Errorf("failed to scan migration candidates: %w", err)
	}

	result.Total = len(candidates)
	logger.WithField("candidates", len(candidates)).Info("Migration run started")

	type planned struct {
		record   *models.UserRecord
		decision *Decision
	}
	var eligible []planned

	for _, record := range candidates {
		decision := def.Evaluate(record)
		if decision.Skip {
			result.Skipped++
			result.Log = append(result.Log, models.MigrationLogEntry{
				UserID:      record.UserID,
				Status:      types.LogSkipped,
				Reason:      decision.Reason,
				BeforeState: decision.BeforeState,
				Timestamp:   time.Now().UTC(),
			})
			continue
		}
		eligible = append(eligible, planned{record: record, decision: decision})
	}

	// Back up the exact set of records the mutation will touch, before any
	// write. The snapshot captures the current values at the patch's paths,
	// so rollback restores exactly the fields the migration changes.
	if len(eligible) > 0 {
		backup := &models.Backup{
			MigrationType:   def.Type(),
			CreatedBy:       operatorID,
			MigrationParams: def.Params(),
			AffectedUsers:   make([]models.AffectedUser, 0, len(eligible)),
		}
		for _, p := range eligible {
			backup.AffectedUsers = append(backup.AffectedUsers, models.AffectedUser{
				UserID:    p.record.UserID,
				UserLabel: p.record.Label,
				Snapshot:  p.record.Fields.Pick(p.decision.Patch.Paths()...),
			})
		}

		if err := e.backups.Create(ctx, backup); err != nil {
			return nil, fmt.Errorf("failed to create backup: %w", err)
		}
		result.BackupID = backup.ID
		logger.WithFields(map[string]interface{}{
			"backupId":      backup.ID,
			"affectedUsers": len(backup.AffectedUsers),
		}).Info("Backup created")
	}

	for _, p := range eligible {
		entry := models.MigrationLogEntry{
			UserID:      p.record.UserID,
			BeforeState: p.decision.BeforeState,
			Timestamp:   time.Now().UTC(),
		}

		if err := e.records.MergePatch(ctx, p.record.UserID, p.decision.Patch); err != nil {
			// Record-level failure: count it and keep going, the rest of
			// the batch is independent.
			result.Errors++
			entry.Status = types.LogError
			entry.Error = err.Error()
			logger.WithError(err).WithField("userId", p.record.UserID).Error("Record migration failed")
		} else {
			result.Migrated++
			entry.Status = types.LogSuccess
			entry.AmountMigrated = p.decision.AmountMigrated
		}

		result.Log = append(result.Log, entry)
	}

	if result.Migrated > 0 {
		if err := e.backups.MarkCompleted(ctx, result.BackupID); err != nil {
			// The backup stays pending, which is still a valid rollback
			// target; surface the failure in the log only.
			logger.WithError(err).WithField("backupId", result.BackupID).Error("Failed to mark backup completed")
		}
	}

	result.FinishedAt = time.Now().UTC()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)

	e.appendAudit(ctx, logger, result, operatorID)

	logger.WithFields(map[string]interface{}{
		"migrated": result.Migrated,
		"skipped":  result.Skipped,
		"errors":   result.Errors,
		"duration": result.Duration.String(),
	}).Info("Migration run finished")

	return result, nil
}

// appendAudit ships per-record outcomes to the audit sink, best effort.
func (e *Engine) appendAudit(ctx context.Context, logger *logging.Logger, result *models.MigrationResult, operatorID string) {
	if e.audit == nil {
		return
	}

	events := make([]models.AuditEvent, 0, len(result.Log))
	for _, entry := range result.Log {
		events = append(events, models.AuditEvent{
			Action:        types.AuditMigration,
			MigrationType: result.MigrationType,
			BackupID:      result.BackupID,
			UserID:        entry.UserID,
			Status:        string(entry.Status),
			Reason:        entry.Reason,
			Operator:      operatorID,
			Error:         entry.Error,
			Timestamp:     entry.Timestamp,
		})
	}

	if err := e.audit.Append(ctx, events); err != nil {
		logger.WithError(err).Warn("Failed to append migration audit events")
	}
}
