package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ledger-migrator/internal/models"
	"github.com/ledger-migrator/internal/types"
)

// BackupRepository is the snapshot store: it persists the immutable backup
// document of each migration run and owns its status lifecycle.
type BackupRepository struct {
	db *PostgresDB
}

// NewBackupRepository creates a new backup repository
func NewBackupRepository(db *PostgresDB) *BackupRepository {
	return &BackupRepository{db: db}
}

// Create persists a new backup with status pending. The full affected_users
// list is written in a single insert, so no reader ever observes a partial
// backup. The caller must invoke this before mutating any record.
func (r *BackupRepository) Create(ctx context.Context, backup *models.Backup) error {
	if backup.ID == "" {
		backup.ID = uuid.New().String()
	}

	backup.Status = types.BackupPending
	backup.CreatedAt = time.Now().UTC()

	affectedUsersJSON, err := json.Marshal(backup.AffectedUsers)
	if err != nil {
		return fmt.Errorf("failed to marshal affected users: %w", err)
	}

	var paramsJSON []byte
	if backup.MigrationParams != nil {
		paramsJSON, err = json.Marshal(backup.MigrationParams)
		if err != nil {
			return fmt.Errorf("failed to marshal migration params: %w", err)
		}
	}

	query := `
		INSERT INTO backups (
			id, migration_type, created_at, created_by, affected_users, migration_params, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.Pool().Exec(ctx, query,
		backup.ID,
		backup.MigrationType,
		backup.CreatedAt,
		backup.CreatedBy,
		affectedUsersJSON,
		paramsJSON,
		string(backup.Status),
	)

	if err != nil {
		return fmt.Errorf("failed to insert backup: %w", err)
	}

	return nil
}

// MarkCompleted transitions pending -> completed and records completed_at.
// The WHERE clause guards the transition: marking a non-pending backup is an
// error.
func (r *BackupRepository) MarkCompleted(ctx context.Context, backupID string) error {
	query := `
		UPDATE backups
		SET status = $1, completed_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := r.db.Pool().Exec(ctx, query,
		string(types.BackupCompleted),
		time.Now().UTC(),
		backupID,
		string(types.BackupPending),
	)

	if err != nil {
		return fmt.Errorf("failed to mark backup completed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("backup %s is not pending, cannot mark completed", backupID)
	}

	return nil
}

// MarkRolledBack terminally transitions pending|completed -> rolled_back.
// The conditional update refuses a backup that was already rolled back, even
// across concurrent rollback attempts.
func (r *BackupRepository) MarkRolledBack(ctx context.Context, backupID, operatorID string) error {
	query := `
		UPDATE backups
		SET status = $1, rolled_back_at = $2, rolled_back_by = $3
		WHERE id = $4 AND status IN ($5, $6)
	`

	result, err := r.db.Pool().Exec(ctx, query,
		string(types.BackupRolledBack),
		time.Now().UTC(),
		operatorID,
		backupID,
		string(types.BackupPending),
		string(types.BackupCompleted),
	)

	if err != nil {
		return fmt.Errorf("failed to mark backup rolled back: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("backup %s is already rolled back or missing", backupID)
	}

	return nil
}

// GetByID retrieves a backup by ID. Returns nil without error when no backup
// exists.
func (r *BackupRepository) GetByID(ctx context.Context, backupID string) (*models.Backup, error) {
	query := `
		SELECT id, migration_type, created_at, created_by, affected_users,
			migration_params, status, completed_at, rolled_back_at, rolled_back_by
		FROM backups
		WHERE id = $1
	`

	backup, err := r.scanBackup(r.db.Pool().QueryRow(ctx, query, backupID))
	if err == pgx.ErrNoRows {
		return nil, nil // No backup found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query backup: %w", err)
	}

	return backup, nil
}

// List retrieves the most recent backups ordered by creation time descending.
func (r *BackupRepository) List(ctx context.Context, limit int) ([]*models.Backup, error) {
	query := `
		SELECT id, migration_type, created_at, created_by, affected_users,
			migration_params, status, completed_at, rolled_back_at, rolled_back_by
		FROM backups
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query backups: %w", err)
	}
	defer rows.Close()

	var backups []*models.Backup

	for rows.Next() {
		backup, err := r.scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backup row: %w", err)
		}
		backups = append(backups, backup)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backup rows: %w", err)
	}

	return backups, nil
}

// scanBackup reads one backup row and deserializes its JSON columns.
func (r *BackupRepository) scanBackup(row pgx.Row) (*models.Backup, error) {
	var backup models.Backup
	var affectedUsersJSON []byte
	var paramsJSON []byte
	var status string
	var rolledBackBy *string

	err := row.Scan(
		&backup.ID,
		&backup.MigrationType,
		&backup.CreatedAt,
		&backup.CreatedBy,
		&affectedUsersJSON,
		&paramsJSON,
		&status,
		&backup.CompletedAt,
		&backup.RolledBackAt,
		&rolledBackBy,
	)
	if err != nil {
		return nil, err
	}

	backup.Status = types.BackupStatus(status)
	if rolledBackBy != nil {
		backup.RolledBackBy = *rolledBackBy
	}

	if err := json.Unmarshal(affectedUsersJSON, &backup.AffectedUsers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal affected users: %w", err)
	}

	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &backup.MigrationParams); err != nil {
			return nil, fmt.Errorf("failed to unmarshal migration params: %w", err)
		}
	}

	return &backup, nil
}
