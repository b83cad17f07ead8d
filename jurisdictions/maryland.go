package jurisdictions

import "github.com/warp/epr-engine/engine"

var marylandInfo = engine.Jurisdiction{
	Code:      "MD",
	Name:      "Maryland",
	ModelType: engine.ModelWatershedProtection,
	Currency:  "USD",
	Authority: "Maryland Department of the Environment",
}

// Maryland prices Chesapeake Bay impact before the usual design discounts.
type Maryland struct {
	version engine.RuleSetVersion
}

func Maryland2026() Maryland {
	return Maryland{version: engine.RuleSetVersion{ID: "MD-2026.1", Effective: since("2026-01-01")}}
}

func (m Maryland) Jurisdiction() engine.Jurisdiction { return marylandInfo }
func (m Maryland) Version() engine.RuleSetVersion    { return m.version }

func (m Maryland) Adjustments() []engine.AdjustmentRule {
	return []engine.AdjustmentRule{
		{
			ID:       "md-bay-friendly",
			Name:     "Bay friendly design credit",
			Category: engine.CategoryMarine,
			Citation: "Md. Code, Env. 9-2404(b)(1)",
			Applies: func(c engine.PackagingComponent, _ engine.ProducerProfile) bool {
				return c.BayFriendly
			},
			Formula: engine.PercentOfBasis(d("-0.15")),
		},
		{
			ID:       "md-marine-harm",
			Name:     "Watershed harm penalty",
			Category: engine.CategoryMarine,
			Citation: "Md. Code, Env. 9-2404(b)(2)",
			Applies:  harmfulToMarineLife,
			Formula:  engine.PerUnitMass(d("0.30")),
		},
		{
			ID:       "md-recyclable",
			Name:     "Recyclability discount",
			Category: engine.CategoryRecyclability,
			Citation: "Md. Code, Env. 9-2404(c)(1)",
			Applies:  recyclable,
			Formula:  engine.PercentOfBasis(d("-0.20")),
		},
		{
			ID:       "md-reusable",
			Name:     "Reuse discount",
			Category: engine.CategoryReuse,
			Citation: "Md. Code, Env. 9-2404(c)(2)",
			Applies:  reusable,
			Formula:  engine.PercentOfBasis(d("-0.25")),
		},
		{
			ID:       "md-reusable-program",
			Name:     "Producer reuse program credit",
			Category: engine.CategoryProducerIncentive,
			Citation: "Md. Code, Env. 9-2404(d)",
			Applies: func(_ engine.PackagingComponent, p engine.ProducerProfile) bool {
				return p.UsesReusablePackaging
			},
			Formula: engine.PercentOfBasis(d("-0.03")),
		},
		{
			ID:       "md-pfas",
			Name:     "PFAS surcharge",
			Category: engine.CategorySubstancePenalty,
			Absolute: true,
			Citation: "Md. Code, Env. 9-2404(e)",
			Applies:  pfas,
			Formula:  engine.PercentOfBasis(d("0.50")),
		},
	}
}
