package factory

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/epr-engine/engine"
	"gopkg.in/yaml.v3"
)

// Decimal reads a YAML scalar verbatim into an exact decimal. Quoted and
// unquoted numbers are both accepted; neither passes through a float.
type Decimal struct {
	decimal.Decimal
}

func (d *Decimal) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number", node.Line)
	}
	v, err := decimal.NewFromString(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid decimal %q", node.Line, node.Value)
	}
	d.Decimal = v
	return nil
}

// Date reads a YYYY-MM-DD scalar. YAML would otherwise resolve it as a
// timestamp with a time zone.
type Date struct {
	engine.Date
}

func (d *Date) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a date", node.Line)
	}
	v, err := engine.ParseDate(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	d.Date = v
	return nil
}

func period(from Date, to *Date) engine.EffectivePeriod {
	if to == nil {
		return engine.OpenPeriod(from.Date)
	}
	return engine.BoundedPeriod(from.Date, to.Date)
}

func decimalPtr(d *Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := d.Decimal
	return &v
}
