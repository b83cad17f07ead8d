/*
rates.go - Effective-dated base rate schedules

PURPOSE:
  Holds the base rate (currency per unit mass) each jurisdiction charges per
  material, and resolves the single entry in force on an effective date.

KEY CONCEPTS:
  RateEntry:    One rate for (jurisdiction, material) over an EffectivePeriod
  RateSchedule: Append-only registry of entries, safe for concurrent readers
  RateLookup:   The read-side interface the calculator depends on

RESOLUTION RULES:
  - Exactly one entry may be in force for a key on any date. Adding an
    entry whose period overlaps an existing one for the same key is a
    configuration error (OverlapError), not a runtime ambiguity.
  - A missing jurisdiction, material, or date is ErrRateNotFound. There is
    never a zero-rate fallback.

SEE ALSO:
  - factory/rates.go: Loads RateEntry values from YAML documents
  - jurisdictions/data/rates.yaml: Built-in schedules
*/
package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RATE ENTRY
// =============================================================================

type RateEntry struct {
	Jurisdiction    JurisdictionCode `json:"jurisdiction"`
	Material        MaterialType     `json:"material_type"`
	Rate            decimal.Decimal  `json:"rate"`
	Unit            MassUnit         `json:"unit"`
	Currency        string           `json:"currency"`
	Effective       EffectivePeriod  `json:"effective"`
	ScheduleVersion string           `json:"schedule_version"`
	Citation        Citation         `json:"citation"`
}

func (e RateEntry) key() rateKey {
	return rateKey{jurisdiction: e.Jurisdiction, material: e.Material}
}

// Validate checks an entry before it is published.
func (e RateEntry) Validate() error {
	switch {
	case e.Jurisdiction == "":
		return fmt.Errorf("rate entry: jurisdiction is required")
	case e.Material == "":
		return fmt.Errorf("rate entry %s: material is required", e.Jurisdiction)
	case e.Rate.IsNegative():
		return fmt.Errorf("rate entry %s/%s: rate must not be negative", e.Jurisdiction, e.Material)
	case !e.Unit.Valid():
		return fmt.Errorf("rate entry %s/%s: %w: %q", e.Jurisdiction, e.Material, ErrUnknownUnit, e.Unit)
	case e.Currency == "":
		return fmt.Errorf("rate entry %s/%s: currency is required", e.Jurisdiction, e.Material)
	case !e.Effective.Valid():
		return fmt.Errorf("rate entry %s/%s: effective period %s is empty", e.Jurisdiction, e.Material, e.Effective)
	}
	return nil
}

// =============================================================================
// RATE LOOKUP
// =============================================================================

// RateLookup resolves the base rate in force for a material on a date.
type RateLookup interface {
	RateFor(jurisdiction JurisdictionCode, material MaterialType, at Date) (RateEntry, error)
}

type rateKey struct {
	jurisdiction JurisdictionCode
	material     MaterialType
}

// RateSchedule is the in-process registry of rate entries.
type RateSchedule struct {
	mu      sync.RWMutex
	entries map[rateKey][]RateEntry
}

func NewRateSchedule() *RateSchedule {
	return &RateSchedule{entries: make(map[rateKey][]RateEntry)}
}

// Add publishes one entry. Published entries are never modified.
func (s *RateSchedule) Add(entry RateEntry) error {
	return s.AddAll([]RateEntry{entry})
}

// AddAll publishes a batch atomically: every entry is validated and checked
// for overlaps, against published entries and each other, before any of
// them becomes visible.
func (s *RateSchedule) AddAll(entries []RateEntry) error {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[rateKey][]RateEntry)
	for _, e := range entries {
		k := e.key()
		if err := checkOverlap(k, s.entries[k], e); err != nil {
			return err
		}
		if err := checkOverlap(k, staged[k], e); err != nil {
			return err
		}
		staged[k] = append(staged[k], e)
	}

	for k, batch := range staged {
		list := append(append([]RateEntry(nil), s.entries[k]...), batch...)
		sort.Slice(list, func(i, j int) bool {
			return list[i].Effective.From.Before(list[j].Effective.From)
		})
		s.entries[k] = list
	}
	return nil
}

func checkOverlap(k rateKey, published []RateEntry, entry RateEntry) error {
	for _, existing := range published {
		if existing.Effective.Overlaps(entry.Effective) {
			return &OverlapError{
				Key:      fmt.Sprintf("%s/%s", k.jurisdiction, k.material),
				Existing: existing.Effective,
				Incoming: entry.Effective,
			}
		}
	}
	return nil
}

func (s *RateSchedule) RateFor(jurisdiction JurisdictionCode, material MaterialType, at Date) (RateEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.hasJurisdictionLocked(jurisdiction) {
		return RateEntry{}, &RateNotFoundError{
			Jurisdiction: jurisdiction, Material: material, At: at,
			Reason: "unknown jurisdiction",
		}
	}

	list, ok := s.entries[rateKey{jurisdiction: jurisdiction, material: material}]
	if !ok {
		return RateEntry{}, &RateNotFoundError{
			Jurisdiction: jurisdiction, Material: material, At: at,
			Reason: "material not priced in jurisdiction",
		}
	}
	for _, e := range list {
		if e.Effective.Contains(at) {
			return e, nil
		}
	}
	return RateEntry{}, &RateNotFoundError{
		Jurisdiction: jurisdiction, Material: material, At: at,
		Reason: "no rate in force on date",
	}
}

// Materials lists the entries in force for a jurisdiction on a date,
// sorted by material name.
func (s *RateSchedule) Materials(jurisdiction JurisdictionCode, at Date) []RateEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []RateEntry
	for k, list := range s.entries {
		if k.jurisdiction != jurisdiction {
			continue
		}
		for _, e := range list {
			if e.Effective.Contains(at) {
				result = append(result, e)
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Material < result[j].Material })
	return result
}

func (s *RateSchedule) HasJurisdiction(jurisdiction JurisdictionCode) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasJurisdictionLocked(jurisdiction)
}

func (s *RateSchedule) hasJurisdictionLocked(jurisdiction JurisdictionCode) bool {
	for k := range s.entries {
		if k.jurisdiction == jurisdiction {
			return true
		}
	}
	return false
}
