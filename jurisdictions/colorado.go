package jurisdictions

import "github.com/warp/epr-engine/engine"

var coloradoInfo = engine.Jurisdiction{
	Code:      "CO",
	Name:      "Colorado",
	ModelType: engine.ModelTieredProducer,
	Currency:  "USD",
	Authority: "Colorado Department of Public Health and Environment",
}

// Colorado layers producer incentives over design discounts. The small
// producer exemption runs last and zeroes whatever remains.
type Colorado struct {
	version engine.RuleSetVersion
}

func Colorado2026() Colorado {
	return Colorado{version: engine.RuleSetVersion{ID: "CO-2026.1", Effective: since("2026-01-01")}}
}

func (c Colorado) Jurisdiction() engine.Jurisdiction { return coloradoInfo }
func (c Colorado) Version() engine.RuleSetVersion    { return c.version }

func (c Colorado) Adjustments() []engine.AdjustmentRule {
	return []engine.AdjustmentRule{
		{
			ID:       "co-recyclable",
			Name:     "Recyclability discount",
			Category: engine.CategoryRecyclability,
			Citation: "C.R.S. 25-17-705(4)(a)",
			Applies:  recyclable,
			Formula:  engine.PercentOfBasis(d("-0.20")),
		},
		{
			ID:       "co-recycled-content",
			Name:     "Recycled content credit",
			Category: engine.CategoryRecycledContent,
			Citation: "C.R.S. 25-17-705(4)(b)",
			Applies:  hasRecycledContent,
			Formula:  engine.ScaledByRecycledContent(d("-0.40"), d("50")),
		},
		{
			ID:       "co-perishable-food",
			Name:     "Perishable food allowance",
			Category: engine.CategoryProducerIncentive,
			Citation: "C.R.S. 25-17-705(5)(a)",
			Applies: func(_ engine.PackagingComponent, p engine.ProducerProfile) bool {
				return p.ProducesPerishableFood
			},
			Formula: engine.PercentOfBasis(d("-0.10")),
		},
		{
			ID:       "co-impact-reduction",
			Name:     "Impact reduction program credit",
			Category: engine.CategoryProducerIncentive,
			Citation: "C.R.S. 25-17-705(5)(b)",
			Applies: func(_ engine.PackagingComponent, p engine.ProducerProfile) bool {
				return p.HasImpactReductionProgram
			},
			Formula: engine.PercentOfBasis(d("-0.05")),
		},
		{
			ID:       "co-recycling-performance",
			Name:     "Recycling performance credit",
			Category: engine.CategoryPerformance,
			Citation: "C.R.S. 25-17-705(5)(c)",
			Applies: func(_ engine.PackagingComponent, p engine.ProducerProfile) bool {
				return p.RecyclingRateImproved()
			},
			Formula: engine.PercentOfBasis(d("-0.05")),
		},
		{
			ID:       "co-small-producer",
			Name:     "Small producer exemption",
			Category: engine.CategoryExemption,
			Citation: "C.R.S. 25-17-703(19)",
			Applies:  smallProducer(d("5000000"), d("1")),
			Formula:  engine.PercentOfBasis(d("-1")),
		},
	}
}
