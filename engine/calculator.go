/*
calculator.go - The EPR fee calculation algorithm

PURPOSE:
  Turns a producer's packaging inventory into a fee, one component at a
  time, recording a trace step for every number it produces.

ALGORITHM (per component, in input order):
  1. Resolve the base rate in force on the effective date
  2. mass = weight_per_unit × units_sold, converted to the rate's unit
  3. base_fee = mass × rate                                  → base_fee step
  4. For each rule in the rule set's declared order:
       not matching → zero delta                             → not_applicable step
       matching     → delta from the rule's formula,
                      running fee floored at zero            → adjustment step
  5. final_fee = running fee after the last rule

  Then: unrounded_total = Σ final_fee, total_fee = round(unrounded_total, 2)
  → aggregation step. Rounding happens exactly once, here.

FAILURE MODES:
  - Invalid input is rejected before any rate or rule is consulted
  - Every rate is resolved before any rule is applied, so an unknown
    material aborts the calculation with no partial trace
  - A cancelled context aborts between components
  - A trace that fails verification is ErrIncompleteTrace

SEE ALSO:
  - rates.go, rules.go: Inputs to the algorithm
  - trace.go: Recording and verification
  - ledger.go: Persisting the result
*/
package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Trace output keys read back by verification and the API.
const (
	OutputBaseFee        = "base_fee"
	OutputRunningFee     = "running_fee"
	OutputTotalFee       = "total_fee"
	OutputUnroundedTotal = "unrounded_total"
)

// =============================================================================
// REQUEST
// =============================================================================

type CalculationRequest struct {
	Jurisdiction JurisdictionCode
	Producer     ProducerProfile
	Components   []PackagingComponent

	// EffectiveDate selects rates and rule set version. Nil means today.
	EffectiveDate *Date
	DataSource    string
}

// =============================================================================
// CALCULATOR
// =============================================================================

type Calculator struct {
	Rates RateLookup
	Rules RuleLookup

	// Clock stamps CalculatedAt and trace steps, and supplies the default
	// effective date.
	Clock func() time.Time

	// CurrencyPlaces is the precision of the rounded total.
	CurrencyPlaces int32
}

func NewCalculator(rates RateLookup, rules RuleLookup) *Calculator {
	return &Calculator{
		Rates:          rates,
		Rules:          rules,
		Clock:          time.Now,
		CurrencyPlaces: 2,
	}
}

func (c *Calculator) now() time.Time {
	if c.Clock == nil {
		return time.Now().UTC()
	}
	return c.Clock().UTC()
}

// Calculate computes a fee and its finalized trace. The result has no ID;
// CalculationLedger.Store assigns one.
func (c *Calculator) Calculate(ctx context.Context, req CalculationRequest) (*FeeCalculation, error) {
	req.Jurisdiction = NormalizeJurisdiction(string(req.Jurisdiction))
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := c.now()
	at := DateOf(now)
	if req.EffectiveDate != nil {
		at = *req.EffectiveDate
	}

	rates := make([]RateEntry, len(req.Components))
	for i, comp := range req.Components {
		rate, err := c.Rates.RateFor(req.Jurisdiction, comp.MaterialType, at)
		if err != nil {
			return nil, err
		}
		rates[i] = rate
	}

	ruleSet, rules, err := c.Rules.AdjustmentsFor(req.Jurisdiction, at)
	if err != nil {
		return nil, err
	}
	info := ruleSet.Jurisdiction()
	for _, rate := range rates {
		if rate.Currency != info.Currency {
			return nil, fmt.Errorf("rate %s/%s is in %s but rule set %s is in %s",
				rate.Jurisdiction, rate.Material, rate.Currency, ruleSet.Version().ID, info.Currency)
		}
	}

	calc := &FeeCalculation{
		Jurisdiction:   info,
		RuleSetVersion: ruleSet.Version().ID,
		EffectiveDate:  at,
		CalculatedAt:   now,
		Currency:       info.Currency,
		Producer:       req.Producer,
		DataSource:     req.DataSource,
		Components:     make([]ComponentFee, 0, len(req.Components)),
	}

	rec := NewRecorder(req.Jurisdiction, c.Clock)
	citations := newCitationSet()
	penalized, exempt := false, false

	for i, comp := range req.Components {
		fee, err := c.priceComponent(rec, i, comp, rates[i], rules, req.Producer, citations)
		if err != nil {
			return nil, err
		}
		for _, adj := range fee.Adjustments {
			if !adj.Applied {
				continue
			}
			if adj.Category == CategoryExemption {
				exempt = true
			}
			if adj.Delta.IsPositive() {
				penalized = true
			}
			if adj.Category == CategoryRecyclability && adj.Delta.IsNegative() {
				calc.RecyclabilityDiscount = calc.RecyclabilityDiscount.Add(adj.Delta)
			}
		}
		calc.UnroundedTotal = calc.UnroundedTotal.Add(fee.FinalFee)
		calc.Components = append(calc.Components, fee)

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	calc.TotalFee = calc.UnroundedTotal.Round(c.CurrencyPlaces)
	calc.Citations = citations.list()
	switch {
	case exempt:
		calc.Status = StatusExempt
	case penalized:
		calc.Status = StatusPenaltiesApplied
	default:
		calc.Status = StatusCompliant
	}

	if err := c.recordAggregation(rec, calc); err != nil {
		return nil, err
	}

	steps, err := rec.Finalize(calc)
	if err != nil {
		return nil, err
	}
	calc.Trace = steps
	return calc, nil
}

func (c *Calculator) priceComponent(
	rec *Recorder,
	index int,
	comp PackagingComponent,
	rate RateEntry,
	rules []AdjustmentRule,
	producer ProducerProfile,
	citations *citationSet,
) (ComponentFee, error) {
	mass, err := comp.TotalMass().In(rate.Unit)
	if err != nil {
		return ComponentFee{}, err
	}
	base := mass.Value.Mul(rate.Rate)

	_, err = rec.Record(TraceStep{
		Kind:           StepBaseFee,
		Name:           "Base fee: " + comp.Label(),
		ComponentIndex: index,
		Input: map[string]string{
			"material_type":    string(comp.MaterialType),
			"weight_per_unit":  comp.WeightPerUnit.Value.String(),
			"weight_unit":      string(comp.WeightPerUnit.Unit),
			"units_sold":       strconv.FormatInt(comp.UnitsSold, 10),
			"total_mass":       mass.Value.String(),
			"mass_unit":        string(mass.Unit),
			"base_rate":        rate.Rate.String(),
			"rate_unit":        rate.Currency + "/" + string(rate.Unit),
			"schedule_version": rate.ScheduleVersion,
		},
		Output:     map[string]string{OutputBaseFee: base.String()},
		Citation:   rate.Citation,
		Method:     "weight_per_unit × units_sold → total_mass; total_mass × base_rate",
		Delta:      base,
		RunningFee: base,
	})
	if err != nil {
		return ComponentFee{}, err
	}
	citations.add(rate.Citation)

	fee := ComponentFee{
		Index:       index,
		Component:   comp,
		Mass:        mass,
		Rate:        rate,
		BaseFee:     base,
		Adjustments: make([]AdjustmentDelta, 0, len(rules)),
	}

	running := base
	for _, rule := range rules {
		if !rule.Matches(comp, producer) {
			_, err := rec.Record(TraceStep{
				Kind:           StepNotApplicable,
				Name:           fmt.Sprintf("%s [%s]: not applicable", rule.Name, comp.Label()),
				ComponentIndex: index,
				Input:          map[string]string{OutputRunningFee: running.String()},
				Output: map[string]string{
					"applied":        "false",
					OutputRunningFee: running.String(),
				},
				RuleID:     rule.ID,
				Citation:   rule.Citation,
				Method:     "conditions not met; delta = 0",
				Delta:      decimal.Zero,
				RunningFee: running,
			})
			if err != nil {
				return ComponentFee{}, err
			}
			fee.Adjustments = append(fee.Adjustments, AdjustmentDelta{
				RuleID: rule.ID, RuleName: rule.Name, Category: rule.Category,
				Citation: rule.Citation, RunningFee: running,
			})
			continue
		}

		basis := running
		basisName := "running_fee"
		if rule.Absolute {
			basis = base
			basisName = "base_fee"
		}
		raw := rule.Compute(RuleInput{
			Basis:      basis,
			BaseFee:    base,
			RunningFee: running,
			BaseRate:   rate.Rate,
			Mass:       mass,
			Component:  comp,
			Producer:   producer,
		})
		next := running.Add(raw)
		if next.IsNegative() {
			next = decimal.Zero
		}
		delta := next.Sub(running)

		_, err := rec.Record(TraceStep{
			Kind:           StepAdjustment,
			Name:           fmt.Sprintf("%s [%s]: applied", rule.Name, comp.Label()),
			ComponentIndex: index,
			Input: map[string]string{
				"basis":         basis.String(),
				"basis_kind":    basisName,
				OutputBaseFee:   base.String(),
				"prior_fee":     running.String(),
				"total_mass":    mass.Value.String(),
				"rule_category": string(rule.Category),
				"recycled_pct":  comp.RecycledContent.String(),
			},
			Output: map[string]string{
				"applied":        "true",
				"raw_delta":      raw.String(),
				"delta":          delta.String(),
				OutputRunningFee: next.String(),
			},
			RuleID:     rule.ID,
			Citation:   rule.Citation,
			Method:     rule.Formula.Method + "; running fee floored at 0",
			Delta:      delta,
			RunningFee: next,
		})
		if err != nil {
			return ComponentFee{}, err
		}
		citations.add(rule.Citation)

		fee.Adjustments = append(fee.Adjustments, AdjustmentDelta{
			RuleID:     rule.ID,
			RuleName:   rule.Name,
			Category:   rule.Category,
			Citation:   rule.Citation,
			Applied:    true,
			RawDelta:   raw,
			Delta:      delta,
			RunningFee: next,
		})
		running = next
	}

	fee.FinalFee = running
	return fee, nil
}

func (c *Calculator) recordAggregation(rec *Recorder, calc *FeeCalculation) error {
	input := make(map[string]string, len(calc.Components)+1)
	input["component_count"] = strconv.Itoa(len(calc.Components))
	for _, comp := range calc.Components {
		input[fmt.Sprintf("component_%d_final_fee", comp.Index)] = comp.FinalFee.String()
	}
	_, err := rec.Record(TraceStep{
		Kind:           StepAggregation,
		Name:           "Total fee",
		ComponentIndex: AggregateIndex,
		Input:          input,
		Output: map[string]string{
			OutputUnroundedTotal:     calc.UnroundedTotal.String(),
			OutputTotalFee:           calc.TotalFee.String(),
			"recyclability_discount": calc.RecyclabilityDiscount.String(),
			"currency":               calc.Currency,
			"compliance_status":      string(calc.Status),
		},
		Method:     fmt.Sprintf("Σ component final fees; rounded half away from zero to %d places", c.CurrencyPlaces),
		Delta:      calc.TotalFee.Sub(calc.UnroundedTotal),
		RunningFee: calc.UnroundedTotal,
	})
	return err
}

// =============================================================================
// CITATIONS - Deduplicated, first-seen order
// =============================================================================

type citationSet struct {
	seen  map[Citation]bool
	order []Citation
}

func newCitationSet() *citationSet {
	return &citationSet{seen: make(map[Citation]bool)}
}

func (s *citationSet) add(c Citation) {
	if c == "" || s.seen[c] {
		return
	}
	s.seen[c] = true
	s.order = append(s.order, c)
}

func (s *citationSet) list() []Citation {
	return append([]Citation{}, s.order...)
}
