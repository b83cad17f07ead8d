package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/epr-engine/engine"
	"github.com/warp/epr-engine/store/postgres"
)

// Runs against a real server only when EPR_POSTGRES_DSN is set.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("EPR_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("EPR_POSTGRES_DSN not set")
	}
	store, err := postgres.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPostgres_RequiresDSN(t *testing.T) {
	_, err := postgres.New(context.Background(), "")
	assert.Error(t, err)
}

func TestPostgres_AppendAndLoad(t *testing.T) {
	store := newTestStore(t)

	rates := engine.NewRateSchedule()
	require.NoError(t, rates.Add(engine.RateEntry{
		Jurisdiction: "OR", Material: "Glass", Rate: decimal.RequireFromString("0.05"),
		Unit: engine.UnitKilogram, Currency: "USD",
		Effective: engine.OpenPeriod(engine.MustParseDate("2025-07-01")),
		Citation:  "OAR 340-090-0900",
	}))
	rules := engine.NewRuleSetRegistry()
	require.NoError(t, rules.Register(engine.StaticRuleSet{
		Info: engine.Jurisdiction{Code: "OR", Name: "Oregon", Currency: "USD"},
		Ver:  engine.RuleSetVersion{ID: "OR-2025.1", Effective: engine.OpenPeriod(engine.MustParseDate("2025-07-01"))},
	}))
	calculator := engine.NewCalculator(rates, rules)
	calculator.Clock = func() time.Time { return time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC) }

	calc, err := calculator.Calculate(context.Background(), engine.CalculationRequest{
		Jurisdiction: "OR",
		Components: []engine.PackagingComponent{{
			MaterialType:  "Glass",
			WeightPerUnit: engine.NewMass(decimal.NewFromInt(500), engine.UnitGram),
			UnitsSold:     100,
		}},
	})
	require.NoError(t, err)

	ledger := engine.NewCalculationLedger(store)
	id, err := ledger.Store(context.Background(), calc)
	require.NoError(t, err)

	trace, err := ledger.Trace(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, len(calc.Trace), trace.TotalSteps)

	loaded, err := ledger.Get(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, loaded.TotalFee.Equal(decimal.RequireFromString("2.50")))
}
