package engine_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/epr-engine/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const (
	ldpe  = engine.MaterialType("Plastic (LDPE)")
	glass = engine.MaterialType("Glass")

	rateCitation = engine.Citation("OAR 340-090-0900 Table 1")
	ruleCitation = engine.Citation("ORS 459A.875(3)(a)")
)

var (
	fixedNow  = time.Date(2025, time.September, 1, 12, 0, 0, 0, time.UTC)
	effective = engine.MustParseDate("2025-09-01")

	oregon = engine.Jurisdiction{
		Code:      "OR",
		Name:      "Oregon",
		ModelType: engine.ModelEcoModulatedFee,
		Currency:  "USD",
	}
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(s string) *engine.Date {
	d := engine.MustParseDate(s)
	return &d
}

func fixedClock() time.Time { return fixedNow }

func testRates(t *testing.T) *engine.RateSchedule {
	t.Helper()
	s := engine.NewRateSchedule()
	require.NoError(t, s.AddAll([]engine.RateEntry{
		{
			Jurisdiction: "OR", Material: ldpe, Rate: dec("0.62"), Unit: engine.UnitKilogram, Currency: "USD",
			Effective:       engine.BoundedPeriod(engine.MustParseDate("2025-07-01"), engine.MustParseDate("2026-07-01")),
			ScheduleVersion: "OR-2025", Citation: rateCitation,
		},
		{
			Jurisdiction: "OR", Material: ldpe, Rate: dec("0.66"), Unit: engine.UnitKilogram, Currency: "USD",
			Effective:       engine.OpenPeriod(engine.MustParseDate("2026-07-01")),
			ScheduleVersion: "OR-2026", Citation: rateCitation,
		},
		{
			Jurisdiction: "OR", Material: glass, Rate: dec("0.05"), Unit: engine.UnitKilogram, Currency: "USD",
			Effective:       engine.OpenPeriod(engine.MustParseDate("2025-07-01")),
			ScheduleVersion: "OR-2025", Citation: rateCitation,
		},
	}))
	return s
}

func recyclabilityRule(fraction string) engine.AdjustmentRule {
	return engine.AdjustmentRule{
		ID:       "or-recyclable",
		Name:     "Recyclability adjustment",
		Category: engine.CategoryRecyclability,
		Citation: ruleCitation,
		Applies: func(c engine.PackagingComponent, _ engine.ProducerProfile) bool {
			return c.Recyclable
		},
		Formula: engine.PercentOfBasis(dec(fraction)),
	}
}

func perKgRule(id string, amount string, category engine.RuleCategory) engine.AdjustmentRule {
	return engine.AdjustmentRule{
		ID:       engine.RuleID(id),
		Name:     id,
		Category: category,
		Citation: engine.Citation("OAR 340-090-0910(" + id + ")"),
		Formula:  engine.PerUnitMass(dec(amount)),
	}
}

func percentRule(id string, fraction string, absolute bool) engine.AdjustmentRule {
	return engine.AdjustmentRule{
		ID:       engine.RuleID(id),
		Name:     id,
		Category: engine.CategoryProducerIncentive,
		Absolute: absolute,
		Citation: engine.Citation("OAR 340-090-0920(" + id + ")"),
		Formula:  engine.PercentOfBasis(dec(fraction)),
	}
}

func testRules(t *testing.T, rules ...engine.AdjustmentRule) *engine.RuleSetRegistry {
	t.Helper()
	r := engine.NewRuleSetRegistry()
	require.NoError(t, r.Register(engine.StaticRuleSet{
		Info:  oregon,
		Ver:   engine.RuleSetVersion{ID: "OR-2025.1", Effective: engine.OpenPeriod(engine.MustParseDate("2025-07-01"))},
		Rules: rules,
	}))
	return r
}

func newCalculator(t *testing.T, rules ...engine.AdjustmentRule) *engine.Calculator {
	t.Helper()
	c := engine.NewCalculator(testRates(t), testRules(t, rules...))
	c.Clock = fixedClock
	return c
}

func component(material engine.MaterialType, grams int64, units int64) engine.PackagingComponent {
	return engine.PackagingComponent{
		MaterialType:  material,
		WeightPerUnit: engine.NewMass(decimal.NewFromInt(grams), engine.UnitGram),
		UnitsSold:     units,
	}
}

func request(components ...engine.PackagingComponent) engine.CalculationRequest {
	return engine.CalculationRequest{
		Jurisdiction:  "OR",
		Producer:      engine.ProducerProfile{Name: "Acme Foods", AnnualRevenue: dec("12000000"), AnnualTonnage: dec("40")},
		Components:    components,
		EffectiveDate: &effective,
	}
}
