/*
store.go - Persistence interface for finalized calculations

PURPOSE:
  Defines the boundary between the ledger and the database. Backends keep
  calculations and their trace steps; the engine never depends on which.

APPEND-ONLY CONTRACT:
  - AppendCalculation(): the ONLY write. Calculation and every trace step
    are committed together or not at all.
  - NO Update() or Delete() methods exist. A stored calculation and its
    trace are immutable. A new rule set version produces new calculations;
    it never rewrites old ones.

IMPLEMENTATIONS:
  - engine/store/memory.go: In-memory for tests and single-process runs
  - store/sqlite: SQLite via mattn/go-sqlite3
  - store/postgres: PostgreSQL via pgx

SEE ALSO:
  - ledger.go: Higher-level interface using Store
*/
package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Interface for calculation persistence (append-only)
// =============================================================================

type Store interface {
	// AppendCalculation persists calc and calc.Trace atomically.
	// Returns ErrDuplicateCalculation if calc.ID already exists.
	AppendCalculation(ctx context.Context, calc *FeeCalculation) error

	// LoadCalculation returns the calculation with its trace ordered by
	// step number. Returns ErrCalculationNotFound for unknown ids.
	LoadCalculation(ctx context.Context, id CalculationID) (*FeeCalculation, error)

	// ListCalculations returns summaries, newest first.
	ListCalculations(ctx context.Context, filter CalculationFilter) ([]CalculationSummary, error)
}

// CalculationFilter narrows ListCalculations. Zero values match everything.
type CalculationFilter struct {
	Jurisdiction JurisdictionCode
	Limit        int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// EffectiveLimit clamps Limit into [1, MaxListLimit].
func (f CalculationFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}

type CalculationSummary struct {
	ID             CalculationID    `json:"calculation_id"`
	Jurisdiction   JurisdictionCode `json:"jurisdiction"`
	RuleSetVersion string           `json:"rule_set_version"`
	EffectiveDate  Date             `json:"effective_date"`
	CalculatedAt   time.Time        `json:"calculated_at"`
	Currency       string           `json:"currency"`
	TotalFee       decimal.Decimal  `json:"total_fee"`
	Status         ComplianceStatus `json:"compliance_status"`
	DataSource     string           `json:"data_source,omitempty"`
}
