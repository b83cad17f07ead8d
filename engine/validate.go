package engine

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

var jurisdictionPattern = regexp.MustCompile(`^[A-Z]{2,3}(-[A-Z0-9]{1,3})?$`)

// Decimal inputs are checked against these bounds before any arithmetic
// touches them. The exponent check runs first so that comparisons never
// rescale an enormous coefficient.
const (
	maxInputScale    = 12
	maxInputExponent = 15
	maxInputBits     = 128
)

var (
	minWeightPerUnit = decimal.New(1, -9)
	maxWeightPerUnit = decimal.New(1, 9)
	maxRevenue       = decimal.New(1, 15)
	maxTonnage       = decimal.New(1, 12)
)

// ValidateRequest reports the first malformed field. It runs before any
// rate or rule is looked up.
func ValidateRequest(req CalculationRequest) error {
	code := NormalizeJurisdiction(string(req.Jurisdiction))
	if code == "" {
		return &ValidationError{Field: "jurisdiction_code", Reason: "is required"}
	}
	if !jurisdictionPattern.MatchString(string(code)) {
		return &ValidationError{Field: "jurisdiction_code", Reason: fmt.Sprintf("%q is not a jurisdiction code", req.Jurisdiction)}
	}

	if err := validateProducer(req.Producer); err != nil {
		return err
	}

	if len(req.Components) == 0 {
		return &ValidationError{Field: "packaging_data", Reason: "at least one component is required"}
	}
	for i, c := range req.Components {
		if err := validateComponent(i, c); err != nil {
			return err
		}
	}
	return nil
}

func validateProducer(p ProducerProfile) error {
	if err := checkAmount("producer_data.annual_revenue", p.AnnualRevenue, maxRevenue); err != nil {
		return err
	}
	if err := checkAmount("producer_data.annual_tonnage", p.AnnualTonnage, maxTonnage); err != nil {
		return err
	}
	for i, r := range p.AnnualRecyclingRates {
		field := fmt.Sprintf("producer_data.annual_recycling_rates[%d]", i)
		if err := checkPrecision(field, r); err != nil {
			return err
		}
		if !isPercentage(r) {
			return &ValidationError{
				Field:  fmt.Sprintf("producer_data.annual_recycling_rates[%d]", i),
				Reason: "must be between 0 and 100",
			}
		}
	}
	return nil
}

func validateComponent(i int, c PackagingComponent) error {
	field := func(name string) string { return fmt.Sprintf("packaging_data[%d].%s", i, name) }

	if c.MaterialType == "" {
		return &ValidationError{Field: field("material_type"), Reason: "is required"}
	}
	if err := checkPrecision(field("weight_per_unit"), c.WeightPerUnit.Value); err != nil {
		return err
	}
	if !c.WeightPerUnit.IsPositive() {
		return &ValidationError{Field: field("weight_per_unit"), Reason: "must be greater than 0"}
	}
	if c.WeightPerUnit.Value.LessThan(minWeightPerUnit) || c.WeightPerUnit.Value.GreaterThan(maxWeightPerUnit) {
		return &ValidationError{
			Field:  field("weight_per_unit"),
			Reason: fmt.Sprintf("must be between %s and %s", minWeightPerUnit, maxWeightPerUnit),
		}
	}
	if !c.WeightPerUnit.Unit.Valid() {
		return &ValidationError{Field: field("weight_unit"), Reason: fmt.Sprintf("unknown unit %q", c.WeightPerUnit.Unit)}
	}
	if c.UnitsSold < 0 {
		return &ValidationError{Field: field("units_sold"), Reason: "must not be negative"}
	}
	if err := checkPrecision(field("recycled_content_percentage"), c.RecycledContent); err != nil {
		return err
	}
	if !isPercentage(c.RecycledContent) {
		return &ValidationError{Field: field("recycled_content_percentage"), Reason: "must be between 0 and 100"}
	}
	if c.RecyclabilityScore != nil {
		if err := checkPrecision(field("recyclability_score"), *c.RecyclabilityScore); err != nil {
			return err
		}
		if !isPercentage(*c.RecyclabilityScore) {
			return &ValidationError{Field: field("recyclability_score"), Reason: "must be between 0 and 100"}
		}
	}
	return nil
}

func isPercentage(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThanOrEqual(hundred)
}

// checkPrecision rejects values with too many decimal places or a
// coefficient or exponent far beyond any real measurement.
func checkPrecision(field string, d decimal.Decimal) error {
	if d.Exponent() < -maxInputScale {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must have at most %d decimal places", maxInputScale)}
	}
	if d.Exponent() > maxInputExponent || d.Coefficient().BitLen() > maxInputBits {
		return &ValidationError{Field: field, Reason: "is out of range"}
	}
	return nil
}

func checkAmount(field string, d, limit decimal.Decimal) error {
	if err := checkPrecision(field, d); err != nil {
		return err
	}
	if d.IsNegative() {
		return &ValidationError{Field: field, Reason: "must not be negative"}
	}
	if d.GreaterThan(limit) {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must not exceed %s", limit)}
	}
	return nil
}
