package jurisdictions

import "github.com/warp/epr-engine/engine"

var maineInfo = engine.Jurisdiction{
	Code:      "ME",
	Name:      "Maine",
	ModelType: engine.ModelMunicipalReimbursement,
	Currency:  "USD",
	Authority: "Maine Department of Environmental Protection",
}

type Maine struct {
	version engine.RuleSetVersion
}

func Maine2026() Maine {
	return Maine{version: engine.RuleSetVersion{ID: "ME-2026.1", Effective: since("2026-01-01")}}
}

func (m Maine) Jurisdiction() engine.Jurisdiction { return maineInfo }
func (m Maine) Version() engine.RuleSetVersion    { return m.version }

func (m Maine) Adjustments() []engine.AdjustmentRule {
	return []engine.AdjustmentRule{
		{
			ID:       "me-recyclable",
			Name:     "Recyclability discount",
			Category: engine.CategoryRecyclability,
			Citation: "38 M.R.S. 2146(6)(A)",
			Applies:  recyclable,
			Formula:  engine.PercentOfBasis(d("-0.15")),
		},
		{
			ID:       "me-cold-weather",
			Name:     "Cold weather stability credit",
			Category: engine.CategoryPerformance,
			Citation: "06-096 C.M.R. ch. 428 s. 7(B)",
			Applies: func(c engine.PackagingComponent, _ engine.ProducerProfile) bool {
				return c.ColdWeatherStable
			},
			Formula: engine.PercentOfBasis(d("-0.05")),
		},
		{
			ID:       "me-marine-degradable",
			Name:     "Marine degradable credit",
			Category: engine.CategoryMarine,
			Citation: "06-096 C.M.R. ch. 428 s. 7(C)",
			Applies: func(c engine.PackagingComponent, _ engine.ProducerProfile) bool {
				return c.MarineDegradable
			},
			Formula: engine.PercentOfBasis(d("-0.10")),
		},
		{
			ID:       "me-marine-harm",
			Name:     "Marine harm surcharge",
			Category: engine.CategoryMarine,
			Absolute: true,
			Citation: "06-096 C.M.R. ch. 428 s. 7(D)",
			Applies:  harmfulToMarineLife,
			Formula:  engine.PercentOfBasis(d("0.25")),
		},
		{
			ID:       "me-toxics",
			Name:     "Toxic substance penalty",
			Category: engine.CategorySubstancePenalty,
			Citation: "38 M.R.S. 1614",
			Applies: func(c engine.PackagingComponent, _ engine.ProducerProfile) bool {
				return c.ContainsPFAS || c.ContainsPhthalates
			},
			Formula: engine.PerUnitMass(d("0.35")),
		},
	}
}
