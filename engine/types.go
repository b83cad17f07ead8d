/*
Package engine provides the EPR fee calculation engine.

PURPOSE:
  Computes the Extended Producer Responsibility fee a producer owes in a
  jurisdiction for the packaging it places on the market. Base rates come
  from an effective-dated rate schedule, eco-modulation adjustments come from
  a versioned jurisdiction rule set, and every rule application is recorded
  as a citable audit trace step.

KEY CONCEPTS IN THIS FILE (types.go):
  - Mass: A quantity with a mass unit (e.g., 100 g, 2.5 kg, 3 lb)
  - PackagingComponent: One physical packaging element of a product
  - ProducerProfile: The fee-paying entity's attributes
  - Jurisdiction: Code, name and structural model of a rule set

DESIGN PRINCIPLES:
  1. Precision: All money and mass arithmetic uses decimal.Decimal
  2. Immutability: Inputs are never mutated during a calculation
  3. Type Safety: Distinct types for jurisdiction codes, materials, ids
  4. Auditability: Every number in a result is re-derivable from its trace

USAGE:
  c := engine.PackagingComponent{
      MaterialType:  "Plastic (LDPE)",
      WeightPerUnit: engine.NewMass(decimal.NewFromInt(100), engine.UnitGram),
      UnitsSold:     1000,
  }

SEE ALSO:
  - rates.go: Rate schedule registry
  - rules.go: Adjustment rules and rule sets
  - calculator.go: The fee calculation algorithm
  - trace.go: Audit trace recording
*/
package engine

import (
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MASS - Quantity with unit
// =============================================================================

type Mass struct {
	Value decimal.Decimal `json:"value"`
	Unit  MassUnit        `json:"unit"`
}

func NewMass(value decimal.Decimal, unit MassUnit) Mass {
	return Mass{Value: value, Unit: unit}
}

func (m Mass) Mul(s decimal.Decimal) Mass { return Mass{Value: m.Value.Mul(s), Unit: m.Unit} }
func (m Mass) IsPositive() bool          { return m.Value.IsPositive() }
func (m Mass) String() string            { return m.Value.String() + " " + string(m.Unit) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CalculationID string
type JurisdictionCode string
type MaterialType string
type RuleID string

// Citation is the legal reference a rate or rule is grounded on.
type Citation string

// NormalizeJurisdiction upper-cases and trims a caller-supplied code.
func NormalizeJurisdiction(code string) JurisdictionCode {
	return JurisdictionCode(strings.ToUpper(strings.TrimSpace(code)))
}

// =============================================================================
// JURISDICTION
// =============================================================================

// ModelType names the structural fee model a jurisdiction uses. Callers
// branch on it instead of hardcoding jurisdiction codes.
type ModelType string

const (
	ModelEcoModulatedFee        ModelType = "eco_modulated_fee"
	ModelMaterialCategory       ModelType = "material_category"
	ModelTieredProducer         ModelType = "tiered_producer"
	ModelMunicipalReimbursement ModelType = "municipal_reimbursement"
	ModelWatershedProtection    ModelType = "watershed_protection"
)

type Jurisdiction struct {
	Code      JurisdictionCode `json:"code"`
	Name      string           `json:"name"`
	ModelType ModelType        `json:"model_type"`
	Currency  string           `json:"currency"`
	Authority string           `json:"authority,omitempty"`
}

// =============================================================================
// PACKAGING COMPONENT - Caller input, immutable for one calculation
// =============================================================================

type PackagingComponent struct {
	MaterialType  MaterialType `json:"material_type"`
	Name          string       `json:"component_name,omitempty"`
	WeightPerUnit Mass         `json:"weight_per_unit"`
	UnitsSold     int64        `json:"units_sold"`

	// Percentages are expressed on a 0-100 scale.
	RecycledContent    decimal.Decimal  `json:"recycled_content_percentage"`
	RecyclabilityScore *decimal.Decimal `json:"recyclability_score,omitempty"`

	Recyclable          bool `json:"recyclable"`
	Reusable            bool `json:"reusable"`
	DisruptsRecycling   bool `json:"disrupts_recycling"`
	ContainsPFAS        bool `json:"contains_pfas"`
	ContainsPhthalates  bool `json:"contains_phthalates"`
	MarineDegradable    bool `json:"marine_degradable"`
	HarmfulToMarineLife bool `json:"harmful_to_marine_life"`
	BayFriendly         bool `json:"bay_friendly"`
	ColdWeatherStable   bool `json:"cold_weather_stable"`
}

// TotalMass is weight per unit times units sold, in the component's unit.
func (c PackagingComponent) TotalMass() Mass {
	return c.WeightPerUnit.Mul(decimal.NewFromInt(c.UnitsSold))
}

// Label names the component for trace step names.
func (c PackagingComponent) Label() string {
	if c.Name != "" {
		return c.Name + " (" + string(c.MaterialType) + ")"
	}
	return string(c.MaterialType)
}

// =============================================================================
// PRODUCER PROFILE
// =============================================================================

type ProducerProfile struct {
	Name          string          `json:"name,omitempty"`
	AnnualRevenue decimal.Decimal `json:"annual_revenue"`
	AnnualTonnage decimal.Decimal `json:"annual_tonnage"`

	ProducesPerishableFood    bool `json:"produces_perishable_food"`
	HasLCADisclosure          bool `json:"has_lca_disclosure"`
	HasImpactReductionProgram bool `json:"has_impact_reduction_program"`
	UsesReusablePackaging     bool `json:"uses_reusable_packaging"`

	// Ordered oldest first, most recent last. 0-100 scale.
	AnnualRecyclingRates []decimal.Decimal `json:"annual_recycling_rates,omitempty"`
}

// RecyclingRateImproved reports whether the most recent rate is strictly
// higher than the oldest one. Fewer than two data points never improve.
func (p ProducerProfile) RecyclingRateImproved() bool {
	if len(p.AnnualRecyclingRates) < 2 {
		return false
	}
	first := p.AnnualRecyclingRates[0]
	last := p.AnnualRecyclingRates[len(p.AnnualRecyclingRates)-1]
	return last.GreaterThan(first)
}
