package service

import (
	apperrors "github.com/ledger-migrator/internal/errors"
	"github.com/ledger-migrator/internal/models"
)

// DefinitionFactory builds a migration definition from the opaque run
// parameters supplied by the trigger endpoint.
type DefinitionFactory func(params models.FieldSet) (Definition, error)

// Registry maps migration types to definition factories. The API's
// "run now" trigger resolves types here instead of through any ambient
// global.
type Registry struct {
	factories map[string]DefinitionFactory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]DefinitionFactory)}
}

// Register adds a factory for a migration type
func (r *Registry) Register(migrationType string, factory DefinitionFactory) {
	r.factories[migrationType] = factory
}

// Types lists the registered migration types
func (r *Registry) Types() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// Build resolves a migration type and constructs its definition
func (r *Registry) Build(migrationType string, params models.FieldSet) (Definition, error) {
	factory, ok := r.factories[migrationType]
	if !ok {
		return nil, apperrors.NewUnknownMigrationError(migrationType)
	}
	return factory(params)
}

// DefaultRegistry registers the built-in migrations. defaultAmount feeds the
// balance rebalance when the trigger supplies no amount.
func DefaultRegistry(defaultAmount float64) *Registry {
	registry := NewRegistry()

	registry.Register("balance-rebalance", func(params models.FieldSet) (Definition, error) {
		amount, ok := params.Float("amount")
		if !ok {
			amount = defaultAmount
		}
		if amount <= 0 {
			return nil, apperrors.NewInvalidParameterError("amount", "must be positive")
		}
		return NewBalanceRebalance(amount), nil
	})

	registry.Register("points-recalculation", func(params models.FieldSet) (Definition, error) {
		return NewPointsRecalculation(), nil
	})

	return registry
}
