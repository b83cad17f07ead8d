/*
rules.go - Eco-modulation adjustment rules and versioned rule sets

PURPOSE:
  Jurisdictions modulate the base fee with ordered adjustment rules:
  discounts for recyclability, recycled content, and reuse; surcharges for
  PFAS or recycling-disrupting designs; producer-level incentives and
  exemptions. Each jurisdiction publishes these as a versioned RuleSet.

KEY CONCEPTS:
  AdjustmentRule: One rule with a predicate, a formula, and a citation
  RuleSet:        Polymorphic interface, one Go type per built-in
                  jurisdiction plus a data-driven type (factory package)
  RuleSetRegistry: Resolves the rule set version in force on a date

ORDERING:
  Rules apply strictly in declared order. A relative rule sees the running
  fee (base fee plus all earlier deltas). An absolute rule sees the base fee
  regardless of position. Order matters for relative rules: a 50% discount
  before a flat surcharge yields a different total than after it.

  Oregon applies percentage discounts before flat penalties, California
  applies flat penalties first. Both are encoded only by rule order.

EXAMPLE:
  rule := AdjustmentRule{
      ID:       "or-recyclable",
      Name:     "Recyclability discount",
      Category: CategoryRecyclability,
      Citation: "ORS 459A.875(3)(a)",
      Applies:  func(c PackagingComponent, _ ProducerProfile) bool { return c.Recyclable },
      Formula:  PercentOfBasis(decimal.RequireFromString("-0.25")),
  }

SEE ALSO:
  - calculator.go: Applies rules and records each step
  - jurisdictions/: Built-in rule sets
  - factory/rulesets.go: Declarative rule sets from YAML
*/
package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RULE CATEGORY
// =============================================================================

type RuleCategory string

const (
	CategoryRecyclability     RuleCategory = "recyclability"
	CategoryRecycledContent   RuleCategory = "recycled_content"
	CategoryReuse             RuleCategory = "reuse"
	CategorySubstancePenalty  RuleCategory = "substance_penalty"
	CategoryDisruptionPenalty RuleCategory = "disruption_penalty"
	CategoryMarine            RuleCategory = "marine"
	CategoryProducerIncentive RuleCategory = "producer_incentive"
	CategoryPerformance       RuleCategory = "performance"
	CategoryExemption         RuleCategory = "exemption"
)

var knownCategories = map[RuleCategory]bool{
	CategoryRecyclability: true, CategoryRecycledContent: true, CategoryReuse: true,
	CategorySubstancePenalty: true, CategoryDisruptionPenalty: true, CategoryMarine: true,
	CategoryProducerIncentive: true, CategoryPerformance: true, CategoryExemption: true,
}

func (c RuleCategory) Valid() bool { return knownCategories[c] }

// =============================================================================
// FORMULAS
// =============================================================================

// RuleInput is everything a formula may read. Basis is the running fee for
// relative rules and the base fee for absolute rules.
type RuleInput struct {
	Basis      decimal.Decimal
	BaseFee    decimal.Decimal
	RunningFee decimal.Decimal
	BaseRate   decimal.Decimal
	Mass       Mass // converted into the rate's unit
	Component  PackagingComponent
	Producer   ProducerProfile
}

// Predicate decides whether a rule applies to a component.
type Predicate func(c PackagingComponent, p ProducerProfile) bool

type DeltaFunc func(in RuleInput) decimal.Decimal

// Formula pairs a delta computation with the human-readable method string
// written into the trace.
type Formula struct {
	Method string
	Delta  DeltaFunc
}

var hundred = decimal.NewFromInt(100)

// PercentOfBasis: delta = basis × fraction. Negative fractions are discounts.
func PercentOfBasis(fraction decimal.Decimal) Formula {
	return Formula{
		Method: fmt.Sprintf("basis × %s", fraction),
		Delta: func(in RuleInput) decimal.Decimal {
			return in.Basis.Mul(fraction)
		},
	}
}

// PerUnitMass: delta = mass × amount, independent of the basis.
func PerUnitMass(amount decimal.Decimal) Formula {
	return Formula{
		Method: fmt.Sprintf("total_mass × %s", amount),
		Delta: func(in RuleInput) decimal.Decimal {
			return in.Mass.Value.Mul(amount)
		},
	}
}

// ScaledByRecycledContent: delta = basis × factor × min(content, cap) / 100.
func ScaledByRecycledContent(factor, capPercent decimal.Decimal) Formula {
	return Formula{
		Method: fmt.Sprintf("basis × %s × min(recycled_content, %s) / 100", factor, capPercent),
		Delta: func(in RuleInput) decimal.Decimal {
			content := decimal.Min(in.Component.RecycledContent, capPercent)
			return in.Basis.Mul(factor).Mul(content).Div(hundred)
		},
	}
}

// ScaledByScore: delta = basis × factor × recyclability_score / 100.
// A component without a score contributes zero.
func ScaledByScore(factor decimal.Decimal) Formula {
	return Formula{
		Method: fmt.Sprintf("basis × %s × recyclability_score / 100", factor),
		Delta: func(in RuleInput) decimal.Decimal {
			if in.Component.RecyclabilityScore == nil {
				return decimal.Zero
			}
			return in.Basis.Mul(factor).Mul(*in.Component.RecyclabilityScore).Div(hundred)
		},
	}
}

// =============================================================================
// ADJUSTMENT RULE
// =============================================================================

type AdjustmentRule struct {
	ID       RuleID
	Name     string
	Category RuleCategory
	Absolute bool
	Citation Citation
	Applies  Predicate
	Formula  Formula
}

// Matches reports whether the rule applies. A nil predicate always applies.
func (r AdjustmentRule) Matches(c PackagingComponent, p ProducerProfile) bool {
	if r.Applies == nil {
		return true
	}
	return r.Applies(c, p)
}

func (r AdjustmentRule) Compute(in RuleInput) decimal.Decimal {
	return r.Formula.Delta(in)
}

func (r AdjustmentRule) Validate() error {
	switch {
	case r.ID == "":
		return fmt.Errorf("rule %q: id is required", r.Name)
	case r.Name == "":
		return fmt.Errorf("rule %s: name is required", r.ID)
	case !r.Category.Valid():
		return fmt.Errorf("rule %s: unknown category %q", r.ID, r.Category)
	case r.Citation == "":
		return fmt.Errorf("rule %s: citation is required", r.ID)
	case r.Formula.Delta == nil:
		return fmt.Errorf("rule %s: formula is required", r.ID)
	}
	return nil
}

// =============================================================================
// RULE SET - Versioned, per jurisdiction
// =============================================================================

type RuleSetVersion struct {
	ID        string          `json:"id"`
	Effective EffectivePeriod `json:"effective"`
}

// RuleSet is one published version of a jurisdiction's adjustments.
// Adjustments must return the same rules in the same order on every call.
type RuleSet interface {
	Jurisdiction() Jurisdiction
	Version() RuleSetVersion
	Adjustments() []AdjustmentRule
}

// StaticRuleSet is a RuleSet assembled from plain values.
type StaticRuleSet struct {
	Info  Jurisdiction
	Ver   RuleSetVersion
	Rules []AdjustmentRule
}

func (s StaticRuleSet) Jurisdiction() Jurisdiction    { return s.Info }
func (s StaticRuleSet) Version() RuleSetVersion       { return s.Ver }
func (s StaticRuleSet) Adjustments() []AdjustmentRule { return s.Rules }

// RuleLookup resolves the rule set in force for a jurisdiction on a date.
type RuleLookup interface {
	AdjustmentsFor(jurisdiction JurisdictionCode, at Date) (RuleSet, []AdjustmentRule, error)
}

// =============================================================================
// RULE SET REGISTRY
// =============================================================================

type RuleSetRegistry struct {
	mu   sync.RWMutex
	sets map[JurisdictionCode][]RuleSet
}

func NewRuleSetRegistry() *RuleSetRegistry {
	return &RuleSetRegistry{sets: make(map[JurisdictionCode][]RuleSet)}
}

// Register publishes a rule set version. Versions of one jurisdiction must
// not overlap and rule ids must be unique within a version.
func (r *RuleSetRegistry) Register(rs RuleSet) error {
	info := rs.Jurisdiction()
	ver := rs.Version()
	if info.Code == "" {
		return fmt.Errorf("rule set: jurisdiction code is required")
	}
	if ver.ID == "" {
		return fmt.Errorf("rule set %s: version id is required", info.Code)
	}
	if !ver.Effective.Valid() {
		return fmt.Errorf("rule set %s/%s: effective period %s is empty", info.Code, ver.ID, ver.Effective)
	}
	seen := make(map[RuleID]bool)
	for _, rule := range rs.Adjustments() {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("rule set %s/%s: %w", info.Code, ver.ID, err)
		}
		if seen[rule.ID] {
			return fmt.Errorf("rule set %s/%s: duplicate rule id %s", info.Code, ver.ID, rule.ID)
		}
		seen[rule.ID] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.sets[info.Code] {
		if existing.Version().Effective.Overlaps(ver.Effective) {
			return &OverlapError{
				Key:      "rule set " + string(info.Code),
				Existing: existing.Version().Effective,
				Incoming: ver.Effective,
			}
		}
	}
	list := append(r.sets[info.Code], rs)
	sort.Slice(list, func(i, j int) bool {
		return list[i].Version().Effective.From.Before(list[j].Version().Effective.From)
	})
	r.sets[info.Code] = list
	return nil
}

func (r *RuleSetRegistry) AdjustmentsFor(jurisdiction JurisdictionCode, at Date) (RuleSet, []AdjustmentRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rs := range r.sets[jurisdiction] {
		if rs.Version().Effective.Contains(at) {
			rules := rs.Adjustments()
			out := make([]AdjustmentRule, len(rules))
			copy(out, rules)
			return rs, out, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: %s on %s", ErrRuleSetNotFound, jurisdiction, at)
}

// Jurisdictions lists every registered jurisdiction as described by its
// latest version, sorted by code.
func (r *RuleSetRegistry) Jurisdictions() []Jurisdiction {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Jurisdiction, 0, len(r.sets))
	for _, list := range r.sets {
		if len(list) == 0 {
			continue
		}
		result = append(result, list[len(list)-1].Jurisdiction())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result
}

// Versions lists a jurisdiction's registered versions, oldest first.
func (r *RuleSetRegistry) Versions(jurisdiction JurisdictionCode) []RuleSetVersion {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.sets[jurisdiction]
	out := make([]RuleSetVersion, len(list))
	for i, rs := range list {
		out[i] = rs.Version()
	}
	return out
}
