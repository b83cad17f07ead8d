package jurisdictions

import (
	"github.com/shopspring/decimal"
	"github.com/warp/epr-engine/engine"
)

var oregonInfo = engine.Jurisdiction{
	Code:      "OR",
	Name:      "Oregon",
	ModelType: engine.ModelEcoModulatedFee,
	Currency:  "USD",
	Authority: "Oregon Department of Environmental Quality",
}

// Oregon applies its percentage discounts first, then flat penalties.
// Program years differ only in the recyclability discount.
type Oregon struct {
	version            engine.RuleSetVersion
	recyclableDiscount decimal.Decimal
}

func Oregon2025() Oregon {
	return Oregon{
		version:            engine.RuleSetVersion{ID: "OR-2025.1", Effective: between("2025-07-01", "2026-07-01")},
		recyclableDiscount: d("-0.25"),
	}
}

func Oregon2026() Oregon {
	return Oregon{
		version:            engine.RuleSetVersion{ID: "OR-2026.1", Effective: since("2026-07-01")},
		recyclableDiscount: d("-0.30"),
	}
}

func (o Oregon) Jurisdiction() engine.Jurisdiction { return oregonInfo }
func (o Oregon) Version() engine.RuleSetVersion    { return o.version }

func (o Oregon) Adjustments() []engine.AdjustmentRule {
	return []engine.AdjustmentRule{
		{
			ID:       "or-recyclable",
			Name:     "Recyclability adjustment",
			Category: engine.CategoryRecyclability,
			Citation: "ORS 459A.884(2)(a)",
			Applies:  recyclable,
			Formula:  engine.PercentOfBasis(o.recyclableDiscount),
		},
		{
			ID:       "or-recycled-content",
			Name:     "Recycled content credit",
			Category: engine.CategoryRecycledContent,
			Citation: "ORS 459A.884(2)(b)",
			Applies:  hasRecycledContent,
			Formula:  engine.ScaledByRecycledContent(d("-0.5"), d("50")),
		},
		{
			ID:       "or-reusable",
			Name:     "Reuse credit",
			Category: engine.CategoryReuse,
			Citation: "ORS 459A.884(2)(c)",
			Applies:  reusable,
			Formula:  engine.PercentOfBasis(d("-0.40")),
		},
		{
			ID:       "or-lca-disclosure",
			Name:     "Life cycle assessment disclosure bonus",
			Category: engine.CategoryProducerIncentive,
			Citation: "ORS 459A.944(1)",
			Applies: func(_ engine.PackagingComponent, p engine.ProducerProfile) bool {
				return p.HasLCADisclosure
			},
			Formula: engine.PercentOfBasis(d("-0.05")),
		},
		{
			ID:       "or-disrupts-recycling",
			Name:     "Recycling disruption penalty",
			Category: engine.CategoryDisruptionPenalty,
			Citation: "OAR 340-090-0920(3)",
			Applies:  disruptsRecycling,
			Formula:  engine.PerUnitMass(d("0.15")),
		},
		{
			ID:       "or-pfas",
			Name:     "PFAS surcharge",
			Category: engine.CategorySubstancePenalty,
			Absolute: true,
			Citation: "ORS 459A.884(3)",
			Applies:  pfas,
			Formula:  engine.PercentOfBasis(d("0.50")),
		},
	}
}
