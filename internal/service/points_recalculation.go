package service

import (
	"time"

	"github.com/ledger-migrator/internal/models"
	"github.com/ledger-migrator/internal/storage"
)

// PointsRecalculation recomputes the accumulated points total of every user
// still carrying a legacy base value: total = base * multiplier + bonus.
// The recalculatedAt stamp makes a second run skip already-processed users.
type PointsRecalculation struct {
	// now is swappable for tests
	now func() time.Time
}

// NewPointsRecalculation creates a points recalculation definition
func NewPointsRecalculation() *PointsRecalculation {
	return &PointsRecalculation{now: time.Now}
}

// Type returns the migration tag
func (m *PointsRecalculation) Type() string {
	return "points-recalculation"
}

// Filter selects users that have base points to recalculate from
func (m *PointsRecalculation) Filter() storage.RecordFilter {
	return storage.RecordFilter{
		Conditions: []storage.FieldCondition{
			{Path: "points.base", Op: storage.OpExists},
		},
	}
}

// Params describes the run for audit
func (m *PointsRecalculation) Params() map[string]interface{} {
	return map[string]interface{}{
		"formula": "base * multiplier + bonus",
	}
}

// Evaluate decides eligibility from the record alone and plans the mutation.
func (m *PointsRecalculation) Evaluate(record *models.UserRecord) *Decision {
	base, hasBase := record.Fields.Float("points.base")
	previousTotal, _ := record.Fields.Float("points.total")

	before := map[string]interface{}{
		"basePoints":    base,
		"previousTotal": previousTotal,
	}

	if record.Fields.Has("points.recalculatedAt") {
		return &Decision{Skip: true, Reason: "already recalculated", BeforeState: before}
	}
	if !hasBase {
		return &Decision{Skip: true, Reason: "no base points", BeforeState: before}
	}

	multiplier, hasMultiplier := record.Fields.Float("points.multiplier")
	if !hasMultiplier {
		multiplier = 1
	}
	bonus, _ := record.Fields.Float("points.bonus")

	total := base*multiplier + bonus
	migrated := total - previousTotal

	return &Decision{
		BeforeState: before,
		Patch: models.Patch{
			"points.total":          total,
			"points.recalculatedAt": m.now().UTC().Format(time.RFC3339),
		},
		AmountMigrated: &migrated,
	}
}
