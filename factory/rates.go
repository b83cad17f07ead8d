/*
Package factory converts YAML (or JSON) documents into rate schedules and
rule sets.

PURPOSE:
  Regulators publish new fee schedules and eco-modulation rules on their
  own calendar. Maintainers encode those as data files; the factory turns
  them into engine.RateEntry values and engine.RuleSet implementations
  without a code change.

RATES DOCUMENT:
  schedules:
    - jurisdiction: OR
      version: OR-2025
      currency: USD
      unit: kg
      effective_from: 2025-07-01
      effective_to: 2026-07-01        # exclusive, omit for open-ended
      citation: "OAR 340-090-0900"
      rates:
        "Plastic (LDPE)": 0.62
        "Glass": 0.05

  Rates are read as exact decimals. A schedule whose period overlaps an
  already published one for the same material is rejected when added to
  an engine.RateSchedule.

SEE ALSO:
  - rulesets.go: Declarative rule set documents
  - jurisdictions/data/rates.yaml: Built-in schedules
*/
package factory

import (
	"fmt"
	"sort"

	"github.com/warp/epr-engine/engine"
)

// =============================================================================
// YAML SCHEMA TYPES
// =============================================================================

type RatesDoc struct {
	Schedules []ScheduleDoc `yaml:"schedules"`
}

type ScheduleDoc struct {
	Jurisdiction  string             `yaml:"jurisdiction"`
	Version       string             `yaml:"version"`
	Currency      string             `yaml:"currency"`
	Unit          string             `yaml:"unit"`
	EffectiveFrom Date               `yaml:"effective_from"`
	EffectiveTo   *Date              `yaml:"effective_to,omitempty"`
	Citation      string             `yaml:"citation"`
	Rates         map[string]Decimal `yaml:"rates"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseRates parses a rates document into entries, sorted by jurisdiction,
// material and effective date so loading order never depends on map order.
func ParseRates(data []byte) ([]engine.RateEntry, error) {
	var doc RatesDoc
	if err := decodeStrict(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rates document: %w", err)
	}
	return doc.Entries()
}

func (doc RatesDoc) Entries() ([]engine.RateEntry, error) {
	var entries []engine.RateEntry
	for i, s := range doc.Schedules {
		if s.Jurisdiction == "" {
			return nil, fmt.Errorf("schedule %d: jurisdiction is required", i)
		}
		if s.EffectiveFrom.IsZero() {
			return nil, fmt.Errorf("schedule %d (%s): effective_from is required", i, s.Jurisdiction)
		}
		if len(s.Rates) == 0 {
			return nil, fmt.Errorf("schedule %d (%s): no rates", i, s.Jurisdiction)
		}
		unit, err := engine.ParseMassUnit(defaultString(s.Unit, "kg"))
		if err != nil {
			return nil, fmt.Errorf("schedule %d (%s): %w", i, s.Jurisdiction, err)
		}
		for material, rate := range s.Rates {
			entries = append(entries, engine.RateEntry{
				Jurisdiction:    engine.NormalizeJurisdiction(s.Jurisdiction),
				Material:        engine.MaterialType(material),
				Rate:            rate.Decimal,
				Unit:            unit,
				Currency:        defaultString(s.Currency, "USD"),
				Effective:       period(s.EffectiveFrom, s.EffectiveTo),
				ScheduleVersion: s.Version,
				Citation:        engine.Citation(s.Citation),
			})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Jurisdiction != b.Jurisdiction {
			return a.Jurisdiction < b.Jurisdiction
		}
		if a.Material != b.Material {
			return a.Material < b.Material
		}
		return a.Effective.From.Before(b.Effective.From)
	})
	return entries, nil
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
