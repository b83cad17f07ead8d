package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type MassUnit string

const (
	UnitGram     MassUnit = "g"
	UnitKilogram MassUnit = "kg"
	UnitTonne    MassUnit = "t"
	UnitPound    MassUnit = "lb"
	UnitOunce    MassUnit = "oz"
)

// Exact gram equivalents. The pound and ounce factors are the international
// definitions, so conversions through grams never lose precision.
var gramsPer = map[MassUnit]decimal.Decimal{
	UnitGram:     decimal.NewFromInt(1),
	UnitKilogram: decimal.NewFromInt(1000),
	UnitTonne:    decimal.NewFromInt(1000000),
	UnitPound:    decimal.RequireFromString("453.59237"),
	UnitOunce:    decimal.RequireFromString("28.349523125"),
}

var unitAliases = map[string]MassUnit{
	"g": UnitGram, "gram": UnitGram, "grams": UnitGram,
	"kg": UnitKilogram, "kilogram": UnitKilogram, "kilograms": UnitKilogram,
	"t": UnitTonne, "tonne": UnitTonne, "tonnes": UnitTonne, "metric_ton": UnitTonne,
	"lb": UnitPound, "lbs": UnitPound, "pound": UnitPound, "pounds": UnitPound,
	"oz": UnitOunce, "ounce": UnitOunce, "ounces": UnitOunce,
}

// ParseMassUnit accepts the canonical symbols and common spellings.
func ParseMassUnit(s string) (MassUnit, error) {
	if u, ok := unitAliases[s]; ok {
		return u, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownUnit, s)
}

// Valid reports whether the unit has a known conversion factor.
func (u MassUnit) Valid() bool {
	_, ok := gramsPer[u]
	return ok
}

// In converts the mass to another unit. Conversions into pounds or ounces
// may not terminate; those are carried at decimal.DivisionPrecision digits.
func (m Mass) In(unit MassUnit) (Mass, error) {
	if m.Unit == unit {
		return m, nil
	}
	from, ok := gramsPer[m.Unit]
	if !ok {
		return Mass{}, fmt.Errorf("%w: %q", ErrUnknownUnit, m.Unit)
	}
	to, ok := gramsPer[unit]
	if !ok {
		return Mass{}, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}
	return Mass{Value: m.Value.Mul(from).Div(to), Unit: unit}, nil
}
