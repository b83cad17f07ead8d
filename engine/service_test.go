package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/epr-engine/engine"
	"github.com/warp/epr-engine/engine/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordedObservation struct {
	jurisdiction engine.JurisdictionCode
	outcome      string
	total        decimal.Decimal
}

type fakeMetrics struct {
	mu  sync.Mutex
	obs []recordedObservation
}

func (f *fakeMetrics) ObserveCalculation(j engine.JurisdictionCode, outcome string, _ time.Duration, total decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.obs = append(f.obs, recordedObservation{jurisdiction: j, outcome: outcome, total: total})
}

type fakeArchive struct {
	archived []engine.CalculationID
	err      error
}

func (f *fakeArchive) ArchiveTrace(_ context.Context, calc *engine.FeeCalculation) error {
	if f.err != nil {
		return f.err
	}
	f.archived = append(f.archived, calc.ID)
	return nil
}

func newTestService(t *testing.T, opts ...engine.ServiceOption) *engine.Service {
	t.Helper()
	ledger := engine.NewCalculationLedger(store.NewMemory())
	opts = append([]engine.ServiceOption{engine.WithClock(fixedClock)}, opts...)
	return engine.NewService(testRates(t), testRules(t, recyclabilityRule("-0.25")), ledger, opts...)
}

func TestService_CalculateStoresAndArchives(t *testing.T) {
	metrics := &fakeMetrics{}
	archive := &fakeArchive{}
	svc := newTestService(t, engine.WithMetrics(metrics), engine.WithArchive(archive))

	calc, err := svc.Calculate(context.Background(), request(component(ldpe, 100, 1000)))
	require.NoError(t, err)

	assert.NotEmpty(t, calc.ID)
	assert.Equal(t, []engine.CalculationID{calc.ID}, archive.archived)
	require.Len(t, metrics.obs, 1)
	assert.Equal(t, engine.OutcomeStored, metrics.obs[0].outcome)
	assert.True(t, metrics.obs[0].total.Equal(dec("62")))

	stored, err := svc.Get(context.Background(), calc.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalFee.Equal(calc.TotalFee))
}

func TestService_EstimateIsNotStored(t *testing.T) {
	metrics := &fakeMetrics{}
	svc := newTestService(t, engine.WithMetrics(metrics))

	calc, err := svc.Estimate(context.Background(), request(component(ldpe, 100, 1000)))
	require.NoError(t, err)

	assert.Empty(t, calc.ID)
	assert.NotEmpty(t, calc.Trace)
	list, err := svc.List(context.Background(), engine.CalculationFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, engine.OutcomeEstimated, metrics.obs[0].outcome)
}

func TestService_RateNotFoundStoresNothing(t *testing.T) {
	metrics := &fakeMetrics{}
	svc := newTestService(t, engine.WithMetrics(metrics))
	req := request(component(ldpe, 100, 1000))
	req.Jurisdiction = "ZZ"

	_, err := svc.Calculate(context.Background(), req)

	assert.ErrorIs(t, err, engine.ErrRateNotFound)
	list, err := svc.List(context.Background(), engine.CalculationFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, engine.OutcomeRateNotFound, metrics.obs[0].outcome)
}

func TestService_ArchiveFailureDoesNotFailCalculation(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	archive := &fakeArchive{err: errors.New("bucket unavailable")}
	svc := newTestService(t, engine.WithArchive(archive), engine.WithLogger(zap.New(core)))

	calc, err := svc.Calculate(context.Background(), request(component(ldpe, 100, 1000)))
	require.NoError(t, err)

	_, err = svc.Trace(context.Background(), calc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("trace archive failed").Len())
}

func TestService_JurisdictionsAndRates(t *testing.T) {
	svc := newTestService(t)

	assert.Equal(t, []engine.Jurisdiction{oregon}, svc.Jurisdictions())

	rates, err := svc.Rates("OR", engine.MustParseDate("2025-09-01"))
	require.NoError(t, err)
	assert.Len(t, rates, 2)

	_, err = svc.Rates("ZZ", engine.MustParseDate("2025-09-01"))
	assert.ErrorIs(t, err, engine.ErrRateNotFound)

	assert.Equal(t, "2025-09-01", svc.Today().String())
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestService_ConcurrentCalculationsAreIndependent(t *testing.T) {
	// GIVEN: One service sharing rates, rules and ledger across goroutines
	svc := newTestService(t)
	ctx := context.Background()
	recyclable := component(ldpe, 100, 1000)
	recyclable.Recyclable = true
	req := request(recyclable, component(glass, 250, 400))

	want, err := svc.Estimate(ctx, req)
	require.NoError(t, err)

	// WHEN: Many calculations run at once
	const workers = 32
	results := make([]*engine.FeeCalculation, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = svc.Calculate(ctx, req)
		}()
	}
	wg.Wait()

	// THEN: Every calculation has its own id, the same total and a gapless trace
	seen := make(map[engine.CalculationID]bool, workers)
	for i := range workers {
		require.NoError(t, errs[i])
		calc := results[i]
		assert.False(t, seen[calc.ID], "duplicate id %s", calc.ID)
		seen[calc.ID] = true
		assert.True(t, calc.TotalFee.Equal(want.TotalFee), "got %s want %s", calc.TotalFee, want.TotalFee)

		trace, err := svc.Trace(ctx, calc.ID)
		require.NoError(t, err)
		require.Len(t, trace.Steps, len(want.Trace))
		for n, step := range trace.Steps {
			assert.Equal(t, n+1, step.Number)
			assert.Equal(t, calc.ID, step.CalculationID)
		}
	}

	list, err := svc.List(ctx, engine.CalculationFilter{})
	require.NoError(t, err)
	assert.Len(t, list, workers)
}
