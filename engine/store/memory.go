// Package store provides in-process engine.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/epr-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	calculations map[engine.CalculationID]*engine.FeeCalculation
	order        []*engine.FeeCalculation // CalculatedAt ascending
}

func NewMemory() *Memory {
	return &Memory{
		calculations: make(map[engine.CalculationID]*engine.FeeCalculation),
	}
}

// AppendCalculation stores a deep copy of calc and its trace under one lock.
func (m *Memory) AppendCalculation(_ context.Context, calc *engine.FeeCalculation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.calculations[calc.ID]; exists {
		return engine.ErrDuplicateCalculation
	}

	stored := calc.Clone()
	m.calculations[calc.ID] = stored

	// Binary search for insertion point, ties keep arrival order
	i := sort.Search(len(m.order), func(i int) bool {
		return m.order[i].CalculatedAt.After(stored.CalculatedAt)
	})
	m.order = append(m.order, nil)
	copy(m.order[i+1:], m.order[i:])
	m.order[i] = stored
	return nil
}

func (m *Memory) LoadCalculation(_ context.Context, id engine.CalculationID) (*engine.FeeCalculation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	calc, ok := m.calculations[id]
	if !ok {
		return nil, engine.ErrCalculationNotFound
	}
	return calc.Clone(), nil
}

// ListCalculations walks newest first.
func (m *Memory) ListCalculations(_ context.Context, filter engine.CalculationFilter) ([]engine.CalculationSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := filter.EffectiveLimit()
	result := make([]engine.CalculationSummary, 0)
	for i := len(m.order) - 1; i >= 0 && len(result) < limit; i-- {
		calc := m.order[i]
		if filter.Jurisdiction != "" && calc.Jurisdiction.Code != filter.Jurisdiction {
			continue
		}
		result = append(result, calc.Summary())
	}
	return result, nil
}

// =============================================================================
// TAMPERING - Test support for integrity checks
// =============================================================================

// DropStep removes one stored trace step, simulating a lost row. It exists
// so tests can prove a damaged trace is reported, not silently served.
func (m *Memory) DropStep(id engine.CalculationID, stepNumber int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	calc, ok := m.calculations[id]
	if !ok {
		return false
	}
	for i, s := range calc.Trace {
		if s.Number == stepNumber {
			calc.Trace = append(calc.Trace[:i:i], calc.Trace[i+1:]...)
			return true
		}
	}
	return false
}
