package service

import (
	"github.com/ledger-migrator/internal/models"
	"github.com/ledger-migrator/internal/storage"
)

// BalanceRebalance moves a fixed amount from the source ledger balance to
// the destination balance for every user holding at least that amount. A
// flag on the record marks migrated users, so re-running the migration
// classifies them as skipped.
type BalanceRebalance struct {
	Amount float64
}

// NewBalanceRebalance creates a balance rebalance definition
func NewBalanceRebalance(amount float64) *BalanceRebalance {
	return &BalanceRebalance{Amount: amount}
}

// Type returns the migration tag
func (m *BalanceRebalance) Type() string {
	return "balance-rebalance"
}

// Filter selects users that carry a source balance at all
func (m *BalanceRebalance) Filter() storage.RecordFilter {
	return storage.RecordFilter{
		Conditions: []storage.FieldCondition{
			{Path: "balances.source", Op: storage.OpExists},
		},
	}
}

// Params describes the run for audit
func (m *BalanceRebalance) Params() map[string]interface{} {
	return map[string]interface{}{
		"amount": m.Amount,
	}
}

// Evaluate decides eligibility from the record alone and plans the mutation.
func (m *BalanceRebalance) Evaluate(record *models.UserRecord) *Decision {
	source, hasSource := record.Fields.Float("balances.source")
	dest, _ := record.Fields.Float("balances.dest")

	before := map[string]interface{}{
		"balanceSource": source,
		"balanceDest":   dest,
	}

	if record.Fields.Bool("flags.balanceRebalanced") {
		return &Decision{Skip: true, Reason: "already migrated", BeforeState: before}
	}
	if !hasSource {
		return &Decision{Skip: true, Reason: "no source balance", BeforeState: before}
	}
	if source < m.Amount {
		return &Decision{Skip: true, Reason: "insufficient source balance", BeforeState: before}
	}

	amount := m.Amount
	return &Decision{
		BeforeState: before,
		Patch: models.Patch{
			"balances.source":         source - m.Amount,
			"balances.dest":           dest + m.Amount,
			"flags.balanceRebalanced": true,
		},
		AmountMigrated: &amount,
	}
}
