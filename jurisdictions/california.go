package jurisdictions

import "github.com/warp/epr-engine/engine"

var californiaInfo = engine.Jurisdiction{
	Code:      "CA",
	Name:      "California",
	ModelType: engine.ModelMaterialCategory,
	Currency:  "USD",
	Authority: "CalRecycle",
}

var californiaMinScore = d("70")

// California charges flat per-kilogram penalties before any percentage
// discount, so discounts reduce the penalized fee.
type California struct {
	version engine.RuleSetVersion
}

func California2026() California {
	return California{version: engine.RuleSetVersion{ID: "CA-2026.1", Effective: since("2026-01-01")}}
}

func (ca California) Jurisdiction() engine.Jurisdiction { return californiaInfo }
func (ca California) Version() engine.RuleSetVersion    { return ca.version }

func (ca California) Adjustments() []engine.AdjustmentRule {
	return []engine.AdjustmentRule{
		{
			ID:       "ca-pfas",
			Name:     "PFAS penalty",
			Category: engine.CategorySubstancePenalty,
			Citation: "Cal. Pub. Res. Code 42357(a)(1)",
			Applies:  pfas,
			Formula:  engine.PerUnitMass(d("0.40")),
		},
		{
			ID:       "ca-phthalates",
			Name:     "Phthalates penalty",
			Category: engine.CategorySubstancePenalty,
			Citation: "Cal. Pub. Res. Code 42357(a)(2)",
			Applies: func(c engine.PackagingComponent, _ engine.ProducerProfile) bool {
				return c.ContainsPhthalates
			},
			Formula: engine.PerUnitMass(d("0.30")),
		},
		{
			ID:       "ca-disrupts-recycling",
			Name:     "Recycling disruption penalty",
			Category: engine.CategoryDisruptionPenalty,
			Citation: "Cal. Pub. Res. Code 42053(c)",
			Applies:  disruptsRecycling,
			Formula:  engine.PerUnitMass(d("0.20")),
		},
		{
			ID:       "ca-recyclable",
			Name:     "Recyclability discount",
			Category: engine.CategoryRecyclability,
			Citation: "Cal. Pub. Res. Code 42053(b)(1)",
			Applies: func(c engine.PackagingComponent, _ engine.ProducerProfile) bool {
				// Components without a score are judged by the recyclable flag alone.
				return c.Recyclable && (c.RecyclabilityScore == nil || c.RecyclabilityScore.GreaterThanOrEqual(californiaMinScore))
			},
			Formula: engine.PercentOfBasis(d("-0.20")),
		},
		{
			ID:       "ca-recycled-content",
			Name:     "Recycled content discount",
			Category: engine.CategoryRecycledContent,
			Citation: "Cal. Pub. Res. Code 42053(b)(2)",
			Applies:  recycledContentAtLeast(d("25")),
			Formula:  engine.PercentOfBasis(d("-0.10")),
		},
		{
			ID:       "ca-reusable",
			Name:     "Reuse discount",
			Category: engine.CategoryReuse,
			Citation: "Cal. Pub. Res. Code 42053(b)(3)",
			Applies:  reusable,
			Formula:  engine.PercentOfBasis(d("-0.50")),
		},
		{
			ID:       "ca-marine-harm",
			Name:     "Marine harm surcharge",
			Category: engine.CategoryMarine,
			Absolute: true,
			Citation: "Cal. Pub. Res. Code 42064(e)",
			Applies:  harmfulToMarineLife,
			Formula:  engine.PercentOfBasis(d("0.25")),
		},
	}
}
