package factory

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/warp/epr-engine/engine"
	"gopkg.in/yaml.v3"
)

/*
RULE SET DOCUMENT:
  jurisdiction:
    code: WA
    name: Washington
    model_type: eco_modulated_fee
    currency: USD
    authority: Washington State Department of Ecology
  version: WA-2026.1
  effective_from: 2026-07-01
  rules:
    - id: wa-recyclable
      name: Recyclability discount
      category: recyclability
      kind: percent                  # percent | per_unit_mass |
                                     # recycled_content_scaled | score_scaled
      value: -0.20
      citation: "RCW 70A.520.070(2)"
      when:
        recyclable: true
        materials: ["Plastic (PET)", "Plastic (HDPE)"]
    - id: wa-small-producer
      name: Small producer exemption
      category: exemption
      kind: percent
      value: -1
      citation: "RCW 70A.520.020(4)"
      when:
        any:
          - producer: {max_revenue: 5000000}
          - producer: {max_tonnage: 1}

CONDITIONS:
  Every field in a `when` block must hold (AND). `any` holds if at least
  one nested block holds (OR). Component flags and producer flags compare
  for equality; max_revenue and max_tonnage are strict upper bounds;
  min_* thresholds are inclusive.
*/

// =============================================================================
// YAML SCHEMA TYPES
// =============================================================================

type RuleSetDoc struct {
	Jurisdiction  JurisdictionDoc `yaml:"jurisdiction"`
	Version       string          `yaml:"version"`
	EffectiveFrom Date            `yaml:"effective_from"`
	EffectiveTo   *Date           `yaml:"effective_to,omitempty"`
	Rules         []RuleDoc       `yaml:"rules"`
}

type JurisdictionDoc struct {
	Code      string `yaml:"code"`
	Name      string `yaml:"name"`
	ModelType string `yaml:"model_type"`
	Currency  string `yaml:"currency"`
	Authority string `yaml:"authority,omitempty"`
}

type RuleDoc struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Category string   `yaml:"category"`
	Kind     string   `yaml:"kind"`
	Value    *Decimal `yaml:"value"`
	Cap      *Decimal `yaml:"cap,omitempty"`
	Absolute bool     `yaml:"absolute,omitempty"`
	Citation string   `yaml:"citation"`
	When     *WhenDoc `yaml:"when,omitempty"`
}

type WhenDoc struct {
	Recyclable          *bool `yaml:"recyclable,omitempty"`
	Reusable            *bool `yaml:"reusable,omitempty"`
	DisruptsRecycling   *bool `yaml:"disrupts_recycling,omitempty"`
	ContainsPFAS        *bool `yaml:"contains_pfas,omitempty"`
	ContainsPhthalates  *bool `yaml:"contains_phthalates,omitempty"`
	MarineDegradable    *bool `yaml:"marine_degradable,omitempty"`
	HarmfulToMarineLife *bool `yaml:"harmful_to_marine_life,omitempty"`
	BayFriendly         *bool `yaml:"bay_friendly,omitempty"`
	ColdWeatherStable   *bool `yaml:"cold_weather_stable,omitempty"`

	Materials          []string `yaml:"materials,omitempty"`
	MinRecycledContent *Decimal `yaml:"min_recycled_content,omitempty"`
	MinScore           *Decimal `yaml:"min_score,omitempty"`
	MaxScore           *Decimal `yaml:"max_score,omitempty"`

	Producer *ProducerWhenDoc `yaml:"producer,omitempty"`
	Any      []WhenDoc        `yaml:"any,omitempty"`
}

type ProducerWhenDoc struct {
	ProducesPerishableFood    *bool    `yaml:"produces_perishable_food,omitempty"`
	HasLCADisclosure          *bool    `yaml:"has_lca_disclosure,omitempty"`
	HasImpactReductionProgram *bool    `yaml:"has_impact_reduction_program,omitempty"`
	UsesReusablePackaging     *bool    `yaml:"uses_reusable_packaging,omitempty"`
	RecyclingRateImproved     *bool    `yaml:"recycling_rate_improved,omitempty"`
	MaxRevenue                *Decimal `yaml:"max_revenue,omitempty"`
	MaxTonnage                *Decimal `yaml:"max_tonnage,omitempty"`
}

// =============================================================================
// DECLARED RULE SET - engine.RuleSet built from a document
// =============================================================================

type DeclaredRuleSet struct {
	info    engine.Jurisdiction
	version engine.RuleSetVersion
	rules   []engine.AdjustmentRule
}

func (s *DeclaredRuleSet) Jurisdiction() engine.Jurisdiction    { return s.info }
func (s *DeclaredRuleSet) Version() engine.RuleSetVersion       { return s.version }
func (s *DeclaredRuleSet) Adjustments() []engine.AdjustmentRule { return s.rules }

// ParseRuleSet parses a YAML or JSON rule set document. Unknown keys are
// rejected: a misspelled condition would otherwise widen the rule.
func ParseRuleSet(data []byte) (*DeclaredRuleSet, error) {
	var doc RuleSetDoc
	if err := decodeStrict(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rule set document: %w", err)
	}
	return FromDoc(doc)
}

// decodeStrict decodes one YAML (or JSON) document, failing on keys the
// target does not declare. An empty document leaves out untouched.
func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// FromDoc converts a RuleSetDoc into a rule set.
func FromDoc(doc RuleSetDoc) (*DeclaredRuleSet, error) {
	if doc.Jurisdiction.Code == "" {
		return nil, fmt.Errorf("rule set: jurisdiction.code is required")
	}
	if doc.Version == "" {
		return nil, fmt.Errorf("rule set %s: version is required", doc.Jurisdiction.Code)
	}
	if doc.EffectiveFrom.IsZero() {
		return nil, fmt.Errorf("rule set %s: effective_from is required", doc.Version)
	}

	rs := &DeclaredRuleSet{
		info: engine.Jurisdiction{
			Code:      engine.NormalizeJurisdiction(doc.Jurisdiction.Code),
			Name:      doc.Jurisdiction.Name,
			ModelType: engine.ModelType(defaultString(doc.Jurisdiction.ModelType, string(engine.ModelEcoModulatedFee))),
			Currency:  defaultString(doc.Jurisdiction.Currency, "USD"),
			Authority: doc.Jurisdiction.Authority,
		},
		version: engine.RuleSetVersion{
			ID:        doc.Version,
			Effective: period(doc.EffectiveFrom, doc.EffectiveTo),
		},
	}

	for i, rd := range doc.Rules {
		rule, err := parseRule(rd)
		if err != nil {
			return nil, fmt.Errorf("rule set %s rule %d: %w", doc.Version, i, err)
		}
		rs.rules = append(rs.rules, rule)
	}
	return rs, nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseRule(rd RuleDoc) (engine.AdjustmentRule, error) {
	formula, err := parseFormula(rd)
	if err != nil {
		return engine.AdjustmentRule{}, err
	}
	category := engine.RuleCategory(rd.Category)
	if !category.Valid() {
		return engine.AdjustmentRule{}, fmt.Errorf("%s: unknown category %q", rd.ID, rd.Category)
	}

	rule := engine.AdjustmentRule{
		ID:       engine.RuleID(rd.ID),
		Name:     rd.Name,
		Category: category,
		Absolute: rd.Absolute,
		Citation: engine.Citation(rd.Citation),
		Formula:  formula,
	}
	if rd.When != nil {
		rule.Applies = parseCondition(*rd.When)
	}
	return rule, rule.Validate()
}

func parseFormula(rd RuleDoc) (engine.Formula, error) {
	if rd.Value == nil {
		return engine.Formula{}, fmt.Errorf("%s: value is required", rd.ID)
	}
	value := rd.Value.Decimal

	switch rd.Kind {
	case "percent":
		return engine.PercentOfBasis(value), nil
	case "per_unit_mass":
		return engine.PerUnitMass(value), nil
	case "recycled_content_scaled":
		limit := decimal.NewFromInt(100)
		if rd.Cap != nil {
			limit = rd.Cap.Decimal
		}
		return engine.ScaledByRecycledContent(value, limit), nil
	case "score_scaled":
		return engine.ScaledByScore(value), nil
	default:
		return engine.Formula{}, fmt.Errorf("%s: unknown rule kind %q", rd.ID, rd.Kind)
	}
}

func parseCondition(w WhenDoc) engine.Predicate {
	materials := make(map[engine.MaterialType]bool, len(w.Materials))
	for _, m := range w.Materials {
		materials[engine.MaterialType(m)] = true
	}
	minContent := decimalPtr(w.MinRecycledContent)
	minScore := decimalPtr(w.MinScore)
	maxScore := decimalPtr(w.MaxScore)

	var alternatives []engine.Predicate
	for _, alt := range w.Any {
		alternatives = append(alternatives, parseCondition(alt))
	}
	producer := parseProducerCondition(w.Producer)

	return func(c engine.PackagingComponent, p engine.ProducerProfile) bool {
		flags := []struct {
			want *bool
			got  bool
		}{
			{w.Recyclable, c.Recyclable},
			{w.Reusable, c.Reusable},
			{w.DisruptsRecycling, c.DisruptsRecycling},
			{w.ContainsPFAS, c.ContainsPFAS},
			{w.ContainsPhthalates, c.ContainsPhthalates},
			{w.MarineDegradable, c.MarineDegradable},
			{w.HarmfulToMarineLife, c.HarmfulToMarineLife},
			{w.BayFriendly, c.BayFriendly},
			{w.ColdWeatherStable, c.ColdWeatherStable},
		}
		for _, f := range flags {
			if f.want != nil && *f.want != f.got {
				return false
			}
		}
		if len(materials) > 0 && !materials[c.MaterialType] {
			return false
		}
		if minContent != nil && c.RecycledContent.LessThan(*minContent) {
			return false
		}
		if minScore != nil && (c.RecyclabilityScore == nil || c.RecyclabilityScore.LessThan(*minScore)) {
			return false
		}
		if maxScore != nil && (c.RecyclabilityScore == nil || c.RecyclabilityScore.GreaterThan(*maxScore)) {
			return false
		}
		if producer != nil && !producer(c, p) {
			return false
		}
		if len(alternatives) > 0 {
			for _, alt := range alternatives {
				if alt(c, p) {
					return true
				}
			}
			return false
		}
		return true
	}
}

func parseProducerCondition(w *ProducerWhenDoc) engine.Predicate {
	if w == nil {
		return nil
	}
	maxRevenue := decimalPtr(w.MaxRevenue)
	maxTonnage := decimalPtr(w.MaxTonnage)

	return func(_ engine.PackagingComponent, p engine.ProducerProfile) bool {
		flags := []struct {
			want *bool
			got  bool
		}{
			{w.ProducesPerishableFood, p.ProducesPerishableFood},
			{w.HasLCADisclosure, p.HasLCADisclosure},
			{w.HasImpactReductionProgram, p.HasImpactReductionProgram},
			{w.UsesReusablePackaging, p.UsesReusablePackaging},
			{w.RecyclingRateImproved, p.RecyclingRateImproved()},
		}
		for _, f := range flags {
			if f.want != nil && *f.want != f.got {
				return false
			}
		}
		if maxRevenue != nil && !p.AnnualRevenue.LessThan(*maxRevenue) {
			return false
		}
		if maxTonnage != nil && !p.AnnualTonnage.LessThan(*maxTonnage) {
			return false
		}
		return true
	}
}
