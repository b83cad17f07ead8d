/*
ledger.go - Calculation versioning and lookup

PURPOSE:
  The CalculationLedger is the only path into and out of the Store. It
  issues calculation ids, enforces that only verified traces are stored,
  and re-verifies traces on the way out.

LIFECYCLE:
  Calculator.Calculate  → finalized calculation, no id
  Ledger.Store          → verify, assign calc_<ULID>, stamp calculation and
                          every step, one atomic append
  Ledger.Trace / Get    → load, verify, return

  An id that was never issued is ErrCalculationNotFound. An id whose stored
  trace fails verification is ErrIncompleteTrace. The two are never
  conflated.

SEE ALSO:
  - store.go: Store interface
  - trace.go: VerifyTrace
*/
package engine

import (
	"context"
	"fmt"
)

type CalculationLedger struct {
	store Store
	newID func() CalculationID
}

func NewCalculationLedger(store Store) *CalculationLedger {
	return &CalculationLedger{store: store, newID: NewCalculationID}
}

// WithIDGenerator replaces the id source. Used by tests.
func (l *CalculationLedger) WithIDGenerator(gen func() CalculationID) *CalculationLedger {
	l.newID = gen
	return l
}

// Store assigns an id and commits the calculation with its trace. On
// success calc.ID and every calc.Trace step carry the new id.
func (l *CalculationLedger) Store(ctx context.Context, calc *FeeCalculation) (CalculationID, error) {
	if calc.ID != "" {
		return "", fmt.Errorf("calculation already stored as %s", calc.ID)
	}
	if err := VerifyTrace(calc.Trace, calc); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := l.newID()
	stamped := calc.Clone()
	stamped.ID = id
	for i := range stamped.Trace {
		stamped.Trace[i].CalculationID = id
	}

	if err := l.store.AppendCalculation(ctx, stamped); err != nil {
		return "", fmt.Errorf("store calculation %s: %w", id, err)
	}

	calc.ID = id
	calc.Trace = stamped.Trace
	return id, nil
}

// Get returns a stored calculation whose trace still verifies.
func (l *CalculationLedger) Get(ctx context.Context, id CalculationID) (*FeeCalculation, error) {
	calc, err := l.store.LoadCalculation(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := VerifyTrace(calc.Trace, calc); err != nil {
		return nil, err
	}
	return calc, nil
}

// Trace returns the ordered audit trace of a stored calculation.
func (l *CalculationLedger) Trace(ctx context.Context, id CalculationID) (*AuditTrace, error) {
	calc, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return newAuditTrace(calc), nil
}

func (l *CalculationLedger) List(ctx context.Context, filter CalculationFilter) ([]CalculationSummary, error) {
	return l.store.ListCalculations(ctx, filter)
}
