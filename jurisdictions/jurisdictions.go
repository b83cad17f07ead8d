/*
Package jurisdictions provides the built-in EPR rule sets and rate schedules.

PURPOSE:
  Each supported jurisdiction structures its fee differently. Rather than
  one rigid schema with optional fields, every jurisdiction is its own Go
  type implementing engine.RuleSet, selected by the registry at lookup time.

AVAILABLE JURISDICTIONS:
  Oregon:     Eco-modulated fee, percentage discounts before flat penalties
  California: Material category fee, flat penalties before percentage discounts
  Colorado:   Tiered producer dues with a small producer exemption
  Maine:      Municipal reimbursement with marine and climate modifiers
  Maryland:   Watershed protection with Chesapeake Bay modifiers

RATES:
  Base rates live in data/rates.yaml, embedded into the binary and parsed
  with the factory package. Maintainers can add schedules for new program
  years there, or in a rates directory loaded at startup.

EXAMPLE:
  rates := engine.NewRateSchedule()
  rules := engine.NewRuleSetRegistry()
  if err := jurisdictions.Install(rates, rules); err != nil {
      log.Fatal(err)
  }

SEE ALSO:
  - engine/rules.go: RuleSet interface and registry
  - factory/: Declarative rule sets for jurisdictions without Go code
*/
package jurisdictions

import (
	_ "embed"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/epr-engine/engine"
	"github.com/warp/epr-engine/factory"
)

//go:embed data/rates.yaml
var ratesYAML []byte

// Builtin returns every built-in rule set version.
func Builtin() []engine.RuleSet {
	return []engine.RuleSet{
		Oregon2025(),
		Oregon2026(),
		California2026(),
		Colorado2026(),
		Maine2026(),
		Maryland2026(),
	}
}

// Rates returns the embedded base rate schedules.
func Rates() ([]engine.RateEntry, error) {
	entries, err := factory.ParseRates(ratesYAML)
	if err != nil {
		return nil, fmt.Errorf("built-in rates: %w", err)
	}
	return entries, nil
}

// Install publishes the built-in rates and rule sets.
func Install(rates *engine.RateSchedule, rules *engine.RuleSetRegistry) error {
	entries, err := Rates()
	if err != nil {
		return err
	}
	if err := rates.AddAll(entries); err != nil {
		return fmt.Errorf("built-in rates: %w", err)
	}
	for _, rs := range Builtin() {
		if err := rules.Register(rs); err != nil {
			return fmt.Errorf("built-in rule set %s: %w", rs.Version().ID, err)
		}
	}
	return nil
}

// =============================================================================
// PREDICATES
// =============================================================================

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func since(from string) engine.EffectivePeriod {
	return engine.OpenPeriod(engine.MustParseDate(from))
}

func between(from, to string) engine.EffectivePeriod {
	return engine.BoundedPeriod(engine.MustParseDate(from), engine.MustParseDate(to))
}

func recyclable(c engine.PackagingComponent, _ engine.ProducerProfile) bool { return c.Recyclable }
func reusable(c engine.PackagingComponent, _ engine.ProducerProfile) bool   { return c.Reusable }
func pfas(c engine.PackagingComponent, _ engine.ProducerProfile) bool       { return c.ContainsPFAS }

func disruptsRecycling(c engine.PackagingComponent, _ engine.ProducerProfile) bool {
	return c.DisruptsRecycling
}

func harmfulToMarineLife(c engine.PackagingComponent, _ engine.ProducerProfile) bool {
	return c.HarmfulToMarineLife
}

func hasRecycledContent(c engine.PackagingComponent, _ engine.ProducerProfile) bool {
	return c.RecycledContent.IsPositive()
}

func recycledContentAtLeast(pct decimal.Decimal) engine.Predicate {
	return func(c engine.PackagingComponent, _ engine.ProducerProfile) bool {
		return c.RecycledContent.GreaterThanOrEqual(pct)
	}
}

// smallProducer holds when revenue or tonnage falls strictly below its bound.
func smallProducer(maxRevenue, maxTonnage decimal.Decimal) engine.Predicate {
	return func(_ engine.PackagingComponent, p engine.ProducerProfile) bool {
		return p.AnnualRevenue.LessThan(maxRevenue) || p.AnnualTonnage.LessThan(maxTonnage)
	}
}
