package factory_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/epr-engine/engine"
	"github.com/warp/epr-engine/factory"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// =============================================================================
// RATES
// =============================================================================

func TestLoadRates_ParsesExactDecimals(t *testing.T) {
	entries, err := factory.LoadRates(os.DirFS("testdata/rates"))
	require.NoError(t, err)

	require.Len(t, entries, 4)
	// sorted by jurisdiction, material, effective date
	assert.Equal(t, engine.MaterialType("Glass"), entries[0].Material)
	assert.Equal(t, engine.MaterialType("Plastic (HDPE)"), entries[1].Material)
	assert.True(t, entries[1].Rate.Equal(dec("0.51")))
	assert.Equal(t, "WA-2026", entries[2].ScheduleVersion)
	assert.Equal(t, "WA-2027", entries[3].ScheduleVersion)
	assert.Nil(t, entries[3].Effective.To)

	for _, e := range entries {
		assert.Equal(t, engine.JurisdictionCode("WA"), e.Jurisdiction)
		assert.Equal(t, engine.UnitKilogram, e.Unit)
	}
}

func TestInstallRates_PeriodsResolve(t *testing.T) {
	schedule := engine.NewRateSchedule()
	n, err := factory.InstallRates(os.DirFS("testdata/rates"), schedule)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	rate, err := schedule.RateFor("WA", "Plastic (PET)", engine.MustParseDate("2027-06-30"))
	require.NoError(t, err)
	assert.True(t, rate.Rate.Equal(dec("0.48")))

	rate, err = schedule.RateFor("WA", "Plastic (PET)", engine.MustParseDate("2027-07-01"))
	require.NoError(t, err)
	assert.True(t, rate.Rate.Equal(dec("0.5")))
}

func TestParseRates_Errors(t *testing.T) {
	tests := map[string]string{
		"missing jurisdiction": "schedules:\n  - effective_from: 2025-01-01\n    rates: {Glass: 0.1}\n",
		"bad decimal":          "schedules:\n  - jurisdiction: OR\n    effective_from: 2025-01-01\n    rates: {Glass: abc}\n",
		"bad date":             "schedules:\n  - jurisdiction: OR\n    effective_from: 01/01/2025\n    rates: {Glass: 0.1}\n",
		"unknown unit":         "schedules:\n  - jurisdiction: OR\n    unit: stone\n    effective_from: 2025-01-01\n    rates: {Glass: 0.1}\n",
		"no rates":             "schedules:\n  - jurisdiction: OR\n    effective_from: 2025-01-01\n",
		"misspelled key":       "schedules:\n  - jurisdiction: OR\n    effective_from: 2025-01-01\n    efective_to: 2026-01-01\n    rates: {Glass: 0.1}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := factory.ParseRates([]byte(doc))
			assert.Error(t, err)
		})
	}
}

// =============================================================================
// RULE SETS
// =============================================================================

func TestLoadRuleSets_YAMLAndJSON(t *testing.T) {
	sets, err := factory.LoadRuleSets(os.DirFS("testdata/rules"))
	require.NoError(t, err)
	require.Len(t, sets, 2)

	wa := sets[0]
	assert.Equal(t, engine.JurisdictionCode("WA"), wa.Jurisdiction().Code)
	assert.Equal(t, "WA-2026.1", wa.Version().ID)
	assert.Nil(t, wa.Version().Effective.To)
	require.Len(t, wa.Adjustments(), 4)
	assert.Equal(t, engine.RuleID("wa-recyclable"), wa.Adjustments()[0].ID)

	nj := sets[1]
	assert.Equal(t, engine.ModelMaterialCategory, nj.Jurisdiction().ModelType)
	require.Len(t, nj.Adjustments(), 1)
	assert.Equal(t, engine.CategoryReuse, nj.Adjustments()[0].Category)
}

func TestDeclaredRuleSet_Conditions(t *testing.T) {
	sets, err := factory.LoadRuleSets(os.DirFS("testdata/rules"))
	require.NoError(t, err)
	rules := sets[0].Adjustments()
	recyclable, content, pfas, exemption := rules[0], rules[1], rules[2], rules[3]

	pet := engine.PackagingComponent{MaterialType: "Plastic (PET)", Recyclable: true}
	glass := engine.PackagingComponent{MaterialType: "Glass", Recyclable: true}
	big := engine.ProducerProfile{AnnualRevenue: dec("20000000"), AnnualTonnage: dec("300")}
	lowRevenue := engine.ProducerProfile{AnnualRevenue: dec("999999"), AnnualTonnage: dec("300")}
	lowTonnage := engine.ProducerProfile{AnnualRevenue: dec("20000000"), AnnualTonnage: dec("0.5")}

	assert.True(t, recyclable.Matches(pet, big))
	assert.False(t, recyclable.Matches(glass, big), "material list restricts the rule")

	pet.RecycledContent = dec("9.99")
	assert.False(t, content.Matches(pet, big))
	pet.RecycledContent = dec("10")
	assert.True(t, content.Matches(pet, big), "min threshold is inclusive")

	assert.False(t, pfas.Matches(pet, big))
	pet.ContainsPFAS = true
	assert.True(t, pfas.Matches(pet, big))

	assert.False(t, exemption.Matches(pet, big))
	assert.True(t, exemption.Matches(pet, lowRevenue))
	assert.True(t, exemption.Matches(pet, lowTonnage))
}

func TestDeclaredRuleSet_DrivesCalculation(t *testing.T) {
	// GIVEN: Washington rates and rules loaded from data files
	schedule := engine.NewRateSchedule()
	_, err := factory.InstallRates(os.DirFS("testdata/rates"), schedule)
	require.NoError(t, err)
	registry := engine.NewRuleSetRegistry()
	_, err = factory.InstallRuleSets(os.DirFS("testdata/rules"), registry)
	require.NoError(t, err)

	calc := engine.NewCalculator(schedule, registry)
	calc.Clock = func() time.Time { return time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC) }

	// WHEN: 200 kg of recyclable PET with 30% recycled content
	result, err := calc.Calculate(context.Background(), engine.CalculationRequest{
		Jurisdiction: "WA",
		Producer:     engine.ProducerProfile{AnnualRevenue: dec("20000000"), AnnualTonnage: dec("300")},
		Components: []engine.PackagingComponent{{
			MaterialType:    "Plastic (PET)",
			WeightPerUnit:   engine.NewMass(dec("0.2"), engine.UnitKilogram),
			UnitsSold:       1000,
			Recyclable:      true,
			RecycledContent: dec("30"),
		}},
	})
	require.NoError(t, err)

	// THEN: base 96.00, recyclable -19.20 → 76.80, content 76.80 × -0.4 × 30/100 = -9.216 → 67.584
	assert.True(t, result.Components[0].BaseFee.Equal(dec("96")))
	assert.True(t, result.UnroundedTotal.Equal(dec("67.584")), "got %s", result.UnroundedTotal)
	assert.True(t, result.TotalFee.Equal(dec("67.58")))
	assert.Equal(t, "WA-2026.1", result.RuleSetVersion)
	// base + four rules + aggregation
	assert.Len(t, result.Trace, 6)
}

func TestParseRuleSet_Errors(t *testing.T) {
	base := "jurisdiction: {code: WA}\nversion: WA-1\neffective_from: 2026-01-01\n"
	tests := map[string]string{
		"no version":       "jurisdiction: {code: WA}\neffective_from: 2026-01-01\n",
		"unknown kind":     base + "rules:\n  - {id: r1, name: R, category: reuse, kind: magic, value: 1, citation: X}\n",
		"unknown category": base + "rules:\n  - {id: r1, name: R, category: vibes, kind: percent, value: 1, citation: X}\n",
		"no citation":      base + "rules:\n  - {id: r1, name: R, category: reuse, kind: percent, value: 1}\n",
		"missing value":    base + "rules:\n  - {id: r1, name: R, category: reuse, kind: percent, citation: X}\n",
		"misspelled value": base + "rules:\n  - {id: r1, name: R, category: reuse, kind: percent, valeu: -0.25, citation: X}\n",
		"misspelled flag":  base + "rules:\n  - {id: r1, name: R, category: reuse, kind: percent, value: -0.25, citation: X, when: {recylable: true}}\n",
		"misspelled any":   base + "rules:\n  - {id: r1, name: R, category: reuse, kind: percent, value: -1, citation: X, when: {any: [{producer: {max_revenu: 5}}]}}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := factory.ParseRuleSet([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParseRuleSet_MisspelledConditionNeverWidensRule(t *testing.T) {
	// GIVEN: A conditional discount whose flag is misspelled
	doc := "jurisdiction: {code: WA}\nversion: WA-1\neffective_from: 2026-01-01\n" +
		"rules:\n  - id: r1\n    name: Recyclable discount\n    category: recyclability\n" +
		"    kind: percent\n    value: -0.25\n    citation: X\n    when:\n      recylable: true\n"

	// WHEN: Parsing it
	rs, err := factory.ParseRuleSet([]byte(doc))

	// THEN: The document is rejected instead of applying to every component
	require.Error(t, err)
	assert.Nil(t, rs)
	assert.Contains(t, err.Error(), "recylable")
}

func TestParseRates_EmptyDocument(t *testing.T) {
	entries, err := factory.ParseRates(nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
