package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COMPLIANCE STATUS
// =============================================================================

type ComplianceStatus string

const (
	StatusCompliant        ComplianceStatus = "compliant"
	StatusPenaltiesApplied ComplianceStatus = "penalties_applied"
	StatusExempt           ComplianceStatus = "exempt"
)

// =============================================================================
// FEE CALCULATION - The result of one calculation
// =============================================================================

// AdjustmentDelta is one rule's contribution to a component fee. RawDelta is
// what the formula produced; Delta is what remained after the zero floor.
type AdjustmentDelta struct {
	RuleID     RuleID          `json:"rule_id"`
	RuleName   string          `json:"rule_name"`
	Category   RuleCategory    `json:"category"`
	Citation   Citation        `json:"citation"`
	Applied    bool            `json:"applied"`
	RawDelta   decimal.Decimal `json:"raw_delta"`
	Delta      decimal.Decimal `json:"delta"`
	RunningFee decimal.Decimal `json:"running_fee"`
}

type ComponentFee struct {
	Index       int                `json:"index"`
	Component   PackagingComponent `json:"component"`
	Mass        Mass               `json:"mass"`
	Rate        RateEntry          `json:"rate"`
	BaseFee     decimal.Decimal    `json:"base_fee"`
	Adjustments []AdjustmentDelta  `json:"adjustments"`
	FinalFee    decimal.Decimal    `json:"final_fee"`
}

// FeeCalculation is immutable once stored. Trace is persisted separately
// from the calculation payload and reattached on load.
type FeeCalculation struct {
	ID             CalculationID   `json:"calculation_id"`
	Jurisdiction   Jurisdiction    `json:"jurisdiction"`
	RuleSetVersion string          `json:"rule_set_version"`
	EffectiveDate  Date            `json:"effective_date"`
	CalculatedAt   time.Time       `json:"calculated_at"`
	Currency       string          `json:"currency"`
	Producer       ProducerProfile `json:"producer"`
	Components     []ComponentFee  `json:"components"`

	UnroundedTotal        decimal.Decimal  `json:"unrounded_total"`
	TotalFee              decimal.Decimal  `json:"total_fee"`
	RecyclabilityDiscount decimal.Decimal  `json:"recyclability_discount"`
	Citations             []Citation       `json:"legal_citations"`
	Status                ComplianceStatus `json:"compliance_status"`
	DataSource            string           `json:"data_source,omitempty"`

	Trace []TraceStep `json:"-"`
}

// MaterialTotals sums component final fees per material, unrounded.
func (c *FeeCalculation) MaterialTotals() map[MaterialType]decimal.Decimal {
	totals := make(map[MaterialType]decimal.Decimal)
	for _, comp := range c.Components {
		m := comp.Component.MaterialType
		totals[m] = totals[m].Add(comp.FinalFee)
	}
	return totals
}

// Clone returns a deep copy that shares no slices or maps with c.
func (c *FeeCalculation) Clone() *FeeCalculation {
	out := *c
	out.Producer.AnnualRecyclingRates = append([]decimal.Decimal(nil), c.Producer.AnnualRecyclingRates...)
	out.Components = make([]ComponentFee, len(c.Components))
	for i, comp := range c.Components {
		comp.Adjustments = append([]AdjustmentDelta(nil), comp.Adjustments...)
		out.Components[i] = comp
	}
	out.Citations = append([]Citation(nil), c.Citations...)
	out.Trace = cloneSteps(c.Trace)
	return &out
}

// Summary is the listing view of a stored calculation.
func (c *FeeCalculation) Summary() CalculationSummary {
	return CalculationSummary{
		ID:             c.ID,
		Jurisdiction:   c.Jurisdiction.Code,
		RuleSetVersion: c.RuleSetVersion,
		EffectiveDate:  c.EffectiveDate,
		CalculatedAt:   c.CalculatedAt,
		Currency:       c.Currency,
		TotalFee:       c.TotalFee,
		Status:         c.Status,
		DataSource:     c.DataSource,
	}
}

// =============================================================================
// AUDIT TRACE - The ordered, citable record of one calculation
// =============================================================================

type AuditTrace struct {
	CalculationID CalculationID    `json:"calculation_id"`
	Jurisdiction  JurisdictionCode `json:"jurisdiction"`
	Steps         []TraceStep      `json:"steps"`
	TotalSteps    int              `json:"total_steps"`
	Citations     []Citation       `json:"legal_citations"`
}

func newAuditTrace(calc *FeeCalculation) *AuditTrace {
	steps := cloneSteps(calc.Trace)
	return &AuditTrace{
		CalculationID: calc.ID,
		Jurisdiction:  calc.Jurisdiction.Code,
		Steps:         steps,
		TotalSteps:    len(steps),
		Citations:     append([]Citation(nil), calc.Citations...),
	}
}
