package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/ledger-migrator/internal/models"
)

// FilterOp is a comparison operator on a jsonb field path
type FilterOp string

const (
	// OpExists matches records where the path holds a non-null value
	OpExists FilterOp = "exists"
	// OpMissing matches records where the path is absent or null
	OpMissing FilterOp = "missing"
	// OpGte matches records where the numeric value at the path is >= Value
	OpGte FilterOp = "gte"
	// OpLte matches records where the numeric value at the path is <= Value
	OpLte FilterOp = "lte"
	// OpEq matches records where the value at the path equals Value
	OpEq FilterOp = "eq"
)

// FieldCondition is one filter clause over a dotted field path
type FieldCondition struct {
	Path  string
	Op    FilterOp
	Value interface{}
}

// RecordFilter selects migration candidates from the record store
type RecordFilter struct {
	Conditions []FieldCondition
	Limit      int
}

// pathPattern restricts field paths to safe identifier segments; paths are
// interpolated into jsonb path literals, not bound as parameters.
var pathPattern = regexp.MustCompile(`^[A-Za-z0-9_]+(\.[A-Za-z0-9_]+)*$`)

// RecordStore is the user-record document boundary: per-key reads,
// merge-patch writes, and filtered range scans ordered by creation time.
// Record contents beyond the explicitly addressed paths are opaque.
type RecordStore struct {
	db *PostgresDB
}

// NewRecordStore creates a new record store
func NewRecordStore(db *PostgresDB) *RecordStore {
	return &RecordStore{db: db}
}

// Get retrieves a user record by ID. Returns nil without error when no
// record exists.
func (s *RecordStore) Get(ctx context.Context, userID string) (*models.UserRecord, error) {
	query := `
		SELECT user_id, label, fields, created_at, updated_at
		FROM user_records
		WHERE user_id = $1
	`

	var record models.UserRecord
	var fieldsJSON []byte

	err := s.db.Pool().QueryRow(ctx, query, userID).Scan(
		&record.UserID,
		&record.Label,
		&fieldsJSON,
		&record.CreatedAt,
		&record.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil // No record found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user record: %w", err)
	}

	if err := json.Unmarshal(fieldsJSON, &record.Fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record fields: %w", err)
	}

	return &record, nil
}

// Scan retrieves records matching the filter, ordered by created_at ascending.
func (s *RecordStore) Scan(ctx context.Context, filter RecordFilter) ([]*models.UserRecord, error) {
	query := `
		SELECT user_id, label, fields, created_at, updated_at
		FROM user_records
	`

	where, args, err := buildFilterClauses(filter.Conditions)
	if err != nil {
		return nil, err
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan user records: %w", err)
	}
	defer rows.Close()

	var records []*models.UserRecord

	for rows.Next() {
		var record models.UserRecord
		var fieldsJSON []byte

		err := rows.Scan(
			&record.UserID,
			&record.Label,
			&fieldsJSON,
			&record.CreatedAt,
			&record.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user record row: %w", err)
		}

		if err := json.Unmarshal(fieldsJSON, &record.Fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record fields: %w", err)
		}

		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user record rows: %w", err)
	}

	return records, nil
}

// MergePatch sets exactly the patch's dotted paths on the record's fields,
// leaving all other fields untouched. The full read-modify-write runs inside
// one transaction with the row locked.
func (s *RecordStore) MergePatch(ctx context.Context, userID string, patch models.Patch) error {
	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck // no-op after commit

	var fieldsJSON []byte
	err = tx.QueryRow(ctx,
		`SELECT fields FROM user_records WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&fieldsJSON)

	if err == pgx.ErrNoRows {
		return fmt.Errorf("user record not found: %s", userID)
	}
	if err != nil {
		return fmt.Errorf("failed to lock user record: %w", err)
	}

	var fields models.FieldSet
	if err := json.Unmarshal(fieldsJSON, &fields); err != nil {
		return fmt.Errorf("failed to unmarshal record fields: %w", err)
	}
	if fields == nil {
		fields = make(models.FieldSet)
	}

	fields.Apply(patch)

	updatedJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal record fields: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE user_records SET fields = $1, updated_at = NOW() WHERE user_id = $2`,
		updatedJSON,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit record update: %w", err)
	}

	return nil
}

// Upsert inserts or replaces a user record. Used by seed tooling and tests;
// the engine itself only merge-patches existing records.
func (s *RecordStore) Upsert(ctx context.Context, record *models.UserRecord) error {
	fieldsJSON, err := json.Marshal(record.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal record fields: %w", err)
	}

	query := `
		INSERT INTO user_records (user_id, label, fields, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET
			label = EXCLUDED.label,
			fields = EXCLUDED.fields,
			updated_at = NOW()
	`

	_, err = s.db.Pool().Exec(ctx, query, record.UserID, record.Label, fieldsJSON)
	if err != nil {
		return fmt.Errorf("failed to upsert user record: %w", err)
	}

	return nil
}

// buildFilterClauses converts filter conditions into SQL clauses. Paths are
// validated before being embedded as jsonb path literals.
func buildFilterClauses(conditions []FieldCondition) ([]string, []interface{}, error) {
	var clauses []string
	var args []interface{}

	for _, cond := range conditions {
		if !pathPattern.MatchString(cond.Path) {
			return nil, nil, fmt.Errorf("invalid field path: %q", cond.Path)
		}

		jsonbPath := "{" + strings.ReplaceAll(cond.Path, ".", ",") + "}"

		switch cond.Op {
		case OpExists:
			clauses = append(clauses, fmt.Sprintf("fields #> '%s' IS NOT NULL", jsonbPath))
		case OpMissing:
			clauses = append(clauses, fmt.Sprintf("fields #> '%s' IS NULL", jsonbPath))
		case OpGte:
			args = append(args, cond.Value)
			clauses = append(clauses, fmt.Sprintf("(fields #>> '%s')::numeric >= $%d", jsonbPath, len(args)))
		case OpLte:
			args = append(args, cond.Value)
			clauses = append(clauses, fmt.Sprintf("(fields #>> '%s')::numeric <= $%d", jsonbPath, len(args)))
		case OpEq:
			valueJSON, err := json.Marshal(cond.Value)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to marshal filter value: %w", err)
			}
			args = append(args, string(valueJSON))
			clauses = append(clauses, fmt.Sprintf("fields #> '%s' = $%d::jsonb", jsonbPath, len(args)))
		default:
			return nil, nil, fmt.Errorf("unsupported filter op: %q", cond.Op)
		}
	}

	return clauses, args, nil
}
