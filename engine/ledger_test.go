package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/epr-engine/engine"
	"github.com/warp/epr-engine/engine/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger(t *testing.T) (*engine.CalculationLedger, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return engine.NewCalculationLedger(mem), mem
}

func finalizedCalculation(t *testing.T) *engine.FeeCalculation {
	t.Helper()
	c := component(ldpe, 100, 1000)
	c.Recyclable = true
	calc, err := newCalculator(t, recyclabilityRule("-0.25")).Calculate(context.Background(), request(c))
	require.NoError(t, err)
	return calc
}

// =============================================================================
// STORE / LOOKUP
// =============================================================================

func TestLedger_StoreAssignsIDAndStampsSteps(t *testing.T) {
	ledger, _ := newTestLedger(t)
	calc := finalizedCalculation(t)

	id, err := ledger.Store(context.Background(), calc)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(string(id), "calc_"))
	assert.Len(t, string(id), len("calc_")+26)
	assert.Equal(t, id, calc.ID)
	for _, s := range calc.Trace {
		assert.Equal(t, id, s.CalculationID)
	}
}

func TestLedger_IDsAreUnique(t *testing.T) {
	ledger, _ := newTestLedger(t)
	seen := make(map[engine.CalculationID]bool)

	for i := 0; i < 50; i++ {
		id, err := ledger.Store(context.Background(), finalizedCalculation(t))
		require.NoError(t, err)
		assert.False(t, seen[id], "id %s reused", id)
		seen[id] = true
	}
}

func TestLedger_TraceRoundTripPreservesOrder(t *testing.T) {
	// GIVEN: A stored calculation
	ledger, _ := newTestLedger(t)
	calc := finalizedCalculation(t)
	id, err := ledger.Store(context.Background(), calc)
	require.NoError(t, err)

	// WHEN: Retrieving its trace
	trace, err := ledger.Trace(context.Background(), id)
	require.NoError(t, err)

	// THEN: Same steps, same order, same numbers
	assert.Equal(t, id, trace.CalculationID)
	assert.Equal(t, len(calc.Trace), trace.TotalSteps)
	for i, s := range trace.Steps {
		assert.Equal(t, calc.Trace[i].Number, s.Number)
		assert.Equal(t, calc.Trace[i].Name, s.Name)
		assert.True(t, calc.Trace[i].Delta.Equal(s.Delta))
	}
	assert.Equal(t, calc.Citations, trace.Citations)
}

func TestLedger_UnknownIDIsNotFound(t *testing.T) {
	ledger, _ := newTestLedger(t)

	_, err := ledger.Trace(context.Background(), "calc_01HZZZZZZZZZZZZZZZZZZZZZZZ")

	assert.True(t, engine.IsNotFound(err))
	assert.False(t, errors.Is(err, engine.ErrIncompleteTrace))
}

func TestLedger_DamagedTraceIsIncompleteNotNotFound(t *testing.T) {
	// GIVEN: A stored calculation that later loses a trace row
	ledger, mem := newTestLedger(t)
	id, err := ledger.Store(context.Background(), finalizedCalculation(t))
	require.NoError(t, err)
	require.True(t, mem.DropStep(id, 2))

	// WHEN: Retrieving it
	_, traceErr := ledger.Trace(context.Background(), id)
	_, getErr := ledger.Get(context.Background(), id)

	// THEN: Reported as an integrity failure
	assert.True(t, errors.Is(traceErr, engine.ErrIncompleteTrace))
	assert.False(t, engine.IsNotFound(traceErr))
	assert.True(t, errors.Is(getErr, engine.ErrIncompleteTrace))
}

func TestLedger_RejectsUnverifiedTrace(t *testing.T) {
	ledger, _ := newTestLedger(t)
	calc := finalizedCalculation(t)
	calc.Trace = calc.Trace[:len(calc.Trace)-1]

	_, err := ledger.Store(context.Background(), calc)

	assert.True(t, errors.Is(err, engine.ErrIncompleteTrace))
	assert.Empty(t, calc.ID)
}

func TestLedger_DuplicateIDRejectedAtomically(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ledger.WithIDGenerator(func() engine.CalculationID { return "calc_FIXED" })

	_, err := ledger.Store(context.Background(), finalizedCalculation(t))
	require.NoError(t, err)
	_, err = ledger.Store(context.Background(), finalizedCalculation(t))

	assert.ErrorIs(t, err, engine.ErrDuplicateCalculation)
	list, err := ledger.List(context.Background(), engine.CalculationFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestLedger_ListNewestFirstWithFilter(t *testing.T) {
	ledger, _ := newTestLedger(t)
	var ids []engine.CalculationID
	for i := 0; i < 3; i++ {
		calc := finalizedCalculation(t)
		calc.CalculatedAt = fixedNow.Add(time.Duration(i) * time.Minute)
		id, err := ledger.Store(context.Background(), calc)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	all, err := ledger.List(context.Background(), engine.CalculationFilter{Jurisdiction: "OR", Limit: 2})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, ids[2], all[0].ID)
	assert.Equal(t, ids[1], all[1].ID)
	assert.True(t, all[0].TotalFee.Equal(dec("46.5")))

	none, err := ledger.List(context.Background(), engine.CalculationFilter{Jurisdiction: "CA"})
	require.NoError(t, err)
	assert.Empty(t, none)
}
