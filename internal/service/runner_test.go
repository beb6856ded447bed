package service

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/ledger-migrator/internal/models"
	"github.com/ledger-migrator/internal/storage"
	"github.com/ledger-migrator/internal/types"
)

// Mock stores for testing

type mockRecordStore struct {
	records   map[string]*models.UserRecord
	patchErrs map[string]error
	scanErr   error
	ops       *[]string
}

func newMockRecordStore() *mockRecordStore {
	ops := []string{}
	return &mockRecordStore{
		records:   make(map[string]*models.UserRecord),
		patchErrs: make(map[string]error),
		ops:       &ops,
	}
}

func (m *mockRecordStore) add(userID string, fields models.FieldSet) {
	m.records[userID] = &models.UserRecord{
		UserID: userID,
		Label:  "user " + userID,
		Fields: fields,
	}
}

func (m *mockRecordStore) Get(ctx context.Context, userID string) (*models.UserRecord, error) {
	record, ok := m.records[userID]
	if !ok {
		return nil, nil
	}
	return record, nil
}

func (m *mockRecordStore) Scan(ctx context.Context, filter storage.RecordFilter) ([]*models.UserRecord, error) {
	if m.scanErr != nil {
		return nil, m.scanErr
	}

	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([]*models.UserRecord, 0, len(ids))
	for _, id := range ids {
		result = append(result, m.records[id])
	}
	return result, nil
}

func (m *mockRecordStore) MergePatch(ctx context.Context, userID string, patch models.Patch) error {
	*m.ops = append(*m.ops, "patch:"+userID)
	if err := m.patchErrs[userID]; err != nil {
		return err
	}
	record, ok := m.records[userID]
	if !ok {
		return fmt.Errorf("user record not found: %s", userID)
	}
	record.Fields.Apply(patch)
	return nil
}

type mockBackupStore struct {
	backups        map[string]*models.Backup
	createErr      error
	markRolledErr  error
	completedCalls []string
	ops            *[]string
	nextID         int
}

func newMockBackupStore(ops *[]string) *mockBackupStore {
	return &mockBackupStore{
		backups: make(map[string]*models.Backup),
		ops:     ops,
	}
}

func (m *mockBackupStore) Create(ctx context.Context, backup *models.Backup) error {
	*m.ops = append(*m.ops, "backup:create")
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	backup.ID = fmt.Sprintf("backup-%d", m.nextID)
	backup.Status = types.BackupPending
	stored := *backup
	m.backups[backup.ID] = &stored
	return nil
}

func (m *mockBackupStore) MarkCompleted(ctx context.Context, backupID string) error {
	m.completedCalls = append(m.completedCalls, backupID)
	backup, ok := m.backups[backupID]
	if !ok {
		return fmt.Errorf("backup not found: %s", backupID)
	}
	if backup.Status != types.BackupPending {
		return fmt.Errorf("backup %s is not pending", backupID)
	}
	backup.Status = types.BackupCompleted
	return nil
}

func (m *mockBackupStore) MarkRolledBack(ctx context.Context, backupID, operatorID string) error {
	if m.markRolledErr != nil {
		return m.markRolledErr
	}
	backup, ok := m.backups[backupID]
	if !ok {
		return fmt.Errorf("backup not found: %s", backupID)
	}
	if backup.Status == types.BackupRolledBack {
		return fmt.Errorf("backup %s is already rolled back", backupID)
	}
	backup.Status = types.BackupRolledBack
	backup.RolledBackBy = operatorID
	return nil
}

func (m *mockBackupStore) GetByID(ctx context.Context, backupID string) (*models.Backup, error) {
	backup, ok := m.backups[backupID]
	if !ok {
		return nil, nil
	}
	return backup, nil
}

func (m *mockBackupStore) List(ctx context.Context, limit int) ([]*models.Backup, error) {
	var result []*models.Backup
	for _, backup := range m.backups {
		result = append(result, backup)
	}
	return result, nil
}

func findLogEntry(t *testing.T, log []models.MigrationLogEntry, userID string) models.MigrationLogEntry {
	t.Helper()
	for _, entry := range log {
		if entry.UserID == userID {
			return entry
		}
	}
	t.Fatalf("no log entry for user %s", userID)
	return models.MigrationLogEntry{}
}

// Tests

func TestEngineRun_BalanceRebalanceScenario(t *testing.T) {
	records := newMockRecordStore()
	backups := newMockBackupStore(records.ops)
	engine := NewEngine(records, backups, nil)

	records.add("u1", models.FieldSet{
		"balances": map[string]interface{}{"source": 600.0, "dest": 0.0},
	})

	result, err := engine.Run(context.Background(), NewBalanceRebalance(500), "op-1")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Migrated != 1 || result.Skipped != 0 || result.Errors != 0 || result.Total != 1 {
		t.Errorf("unexpected counts: migrated=%d skipped=%d errors=%d total=%d",
			result.Migrated, result.Skipped, result.Errors, result.Total)
	}
	if result.BackupID == "" {
		t.Fatal("expected a backup to be created")
	}

	entry := findLogEntry(t, result.Log, "u1")
	if entry.Status != types.LogSuccess {
		t.Errorf("log status = %s, want success", entry.Status)
	}
	if entry.AmountMigrated == nil || *entry.AmountMigrated != 500 {
		t.Errorf("amountMigrated = %v, want 500", entry.AmountMigrated)
	}

	fields := records.records["u1"].Fields
	if source, _ := fields.Float("balances.source"); source != 100 {
		t.Errorf("balances.source = %v, want 100", source)
	}
	if dest, _ := fields.Float("balances.dest"); dest != 500 {
		t.Errorf("balances.dest = %v, want 500", dest)
	}

	backup := backups.backups[result.BackupID]
	if backup.Status != types.BackupCompleted {
		t.Errorf("backup status = %s, want completed", backup.Status)
	}
	if len(backup.AffectedUsers) != 1 || backup.AffectedUsers[0].UserID != "u1" {
		t.Fatalf("unexpected affected users: %+v", backup.AffectedUsers)
	}

	snapshot := backup.AffectedUsers[0].Snapshot
	if snapshot["balances.source"] != 600.0 {
		t.Errorf("snapshot balances.source = %v, want 600", snapshot["balances.source"])
	}
	if snapshot["balances.dest"] != 0.0 {
		t.Errorf("snapshot balances.dest = %v, want 0", snapshot["balances.dest"])
	}
	if value, ok := snapshot["flags.balanceRebalanced"]; !ok || value != nil {
		t.Errorf("snapshot flags.balanceRebalanced = %v, want captured nil", value)
	}
}

func TestEngineRun_BackupCreatedBeforeAnyMutation(t *testing.T) {
	records := newMockRecordStore()
	backups := newMockBackupStore(records.ops)
	engine := NewEngine(records, backups, nil)

	records.add("u1", models.FieldSet{
		"balances": map[string]interface{}{"source": 700.0},
	})
	records.add("u2", models.FieldSet{
		"balances": map[string]interface{}{"source": 800.0},
	})

	if _, err := engine.Run(context.Background(), NewBalanceRebalance(500), "op-1"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	ops := *records.ops
	if len(ops) != 3 {
		t.Fatalf("unexpected ops: %v", ops)
	}
	if ops[0] != "backup:create" {
		t.Errorf("first operation = %s, want backup:create", ops[0])
	}
}

func TestEngineRun_SkipsIneligibleRecords(t *testing.T) {
	records := newMockRecordStore()
	backups := newMockBackupStore(records.ops)
	engine := NewEngine(records, backups, nil)

	records.add("rich", models.FieldSet{
		"balances": map[string]interface{}{"source": 600.0},
	})
	records.add("poor", models.FieldSet{
		"balances": map[string]interface{}{"source": 100.0},
	})

	result, err := engine.Run(context.Background(), NewBalanceRebalance(500), "op-1")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Migrated != 1 || result.Skipped != 1 {
		t.Errorf("migrated=%d skipped=%d, want 1/1", result.Migrated, result.Skipped)
	}

	entry := findLogEntry(t, result.Log, "poor")
	if entry.Status != types.LogSkipped || entry.Reason != "insufficient source balance" {
		t.Errorf("poor entry = %+v, want skipped with reason", entry)
	}

	// The backup must cover only the records the run intends to mutate.
	backup := backups.backups[result.BackupID]
	if len(backup.AffectedUsers) != 1 || backup.AffectedUsers[0].UserID != "rich" {
		t.Errorf("affected users = %+v, want only rich", backup.AffectedUsers)
	}
}

func TestEngineRun_RecordErrorDoesNotAbortBatch(t *testing.T) {
	records := newMockRecordStore()
	backups := newMockBackupStore(records.ops)
	engine := NewEngine(records, backups, nil)

	records.add("a", models.FieldSet{
		"balances": map[string]interface{}{"source": 600.0},
	})
	records.add("b", models.FieldSet{
		"balances": map[string]interface{}{"source": 600.0},
	})
	records.patchErrs["a"] = fmt.Errorf("write conflict")

	result, err := engine.Run(context.Background(), NewBalanceRebalance(500), "op-1")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Migrated != 1 || result.Errors != 1 {
		t.Errorf("migrated=%d errors=%d, want 1/1", result.Migrated, result.Errors)
	}

	entry := findLogEntry(t, result.Log, "a")
	if entry.Status != types.LogError || entry.Error == "" {
		t.Errorf("entry for a = %+v, want error entry", entry)
	}

	// b still migrated
	if source, _ := records.records["b"].Fields.Float("balances.source"); source != 100 {
		t.Errorf("b balances.source = %v, want 100", source)
	}

	// One migrated record is enough to complete the backup.
	if backups.backups[result.BackupID].Status != types.BackupCompleted {
		t.Error("backup should be completed when at least one record migrated")
	}
}

func TestEngineRun_ScanFailureIsFatal(t *testing.T) {
	records := newMockRecordStore()
	backups := newMockBackupStore(records.ops)
	engine := NewEngine(records, backups, nil)

	records.scanErr = fmt.Errorf("store unreachable")

	if _, err := engine.Run(context.Background(), NewBalanceRebalance(500), "op-1"); err == nil {
		t.Fatal("expected a fatal error")
	}

	if len(backups.backups) != 0 {
		t.Error("no backup may be created when the scan fails")
	}
	if len(*records.ops) != 0 {
		t.Errorf("no side effects expected, got ops %v", *records.ops)
	}
}

func TestEngineRun_BackupFailureAbortsBeforeMutation(t *testing.T) {
	records := newMockRecordStore()
	backups := newMockBackupStore(records.ops)
	engine := NewEngine(records, backups, nil)

	records.add("u1", models.FieldSet{
		"balances": map[string]interface{}{"source": 600.0},
	})
	backups.createErr = fmt.Errorf("insert failed")

	if _, err := engine.Run(context.Background(), NewBalanceRebalance(500), "op-1"); err == nil {
		t.Fatal("expected a fatal error")
	}

	if source, _ := records.records["u1"].Fields.Float("balances.source"); source != 600 {
		t.Errorf("record mutated despite backup failure: source = %v", source)
	}
}

func TestEngineRun_SecondRunSkipsMigratedRecords(t *testing.T) {
	records := newMockRecordStore()
	backups := newMockBackupStore(records.ops)
	engine := NewEngine(records, backups, nil)

	records.add("u1", models.FieldSet{
		"balances": map[string]interface{}{"source": 1200.0, "dest": 0.0},
	})

	first, err := engine.Run(context.Background(), NewBalanceRebalance(500), "op-1")
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if first.Migrated != 1 {
		t.Fatalf("first run migrated = %d, want 1", first.Migrated)
	}

	second, err := engine.Run(context.Background(), NewBalanceRebalance(500), "op-1")
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if second.Migrated != 0 || second.Skipped != 1 {
		t.Errorf("second run migrated=%d skipped=%d, want 0/1", second.Migrated, second.Skipped)
	}
	if entry := findLogEntry(t, second.Log, "u1"); entry.Reason != "already migrated" {
		t.Errorf("skip reason = %q, want already migrated", entry.Reason)
	}

	// No second backup, and no duplicate entry for the user anywhere.
	if second.BackupID != "" {
		t.Error("second run must not create a backup")
	}
	if len(backups.backups) != 1 {
		t.Errorf("backup count = %d, want 1", len(backups.backups))
	}
}

func TestEngineRun_NoEligibleRecordsCreatesNoBackup(t *testing.T) {
	records := newMockRecordStore()
	backups := newMockBackupStore(records.ops)
	engine := NewEngine(records, backups, nil)

	records.add("u1", models.FieldSet{
		"balances": map[string]interface{}{"source": 10.0},
	})

	result, err := engine.Run(context.Background(), NewBalanceRebalance(500), "op-1")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.BackupID != "" || len(backups.backups) != 0 {
		t.Error("no backup expected for an all-skip run")
	}
	if len(backups.completedCalls) != 0 {
		t.Error("MarkCompleted must not be called without migrated records")
	}
}

func TestPointsRecalculation_Evaluate(t *testing.T) {
	def := NewPointsRecalculation()

	record := &models.UserRecord{
		UserID: "u1",
		Fields: models.FieldSet{
			"points": map[string]interface{}{
				"base":       100.0,
				"multiplier": 1.5,
				"bonus":      25.0,
				"total":      100.0,
			},
		},
	}

	decision := def.Evaluate(record)
	if decision.Skip {
		t.Fatalf("unexpected skip: %s", decision.Reason)
	}
	if total := decision.Patch["points.total"]; total != 175.0 {
		t.Errorf("points.total = %v, want 175", total)
	}

	// A recalculated record is skipped on re-evaluation.
	record.Fields.Apply(decision.Patch)
	second := def.Evaluate(record)
	if !second.Skip || second.Reason != "already recalculated" {
		t.Errorf("second decision = %+v, want skip already recalculated", second)
	}
}
