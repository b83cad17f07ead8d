/*
dto.go - Data Transfer Objects for the fee API

PURPOSE:
  Defines the JSON contract. These types decouple the engine's model from
  the wire format so engine fields can change without breaking clients.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *DTO:     Nested response types
  - *Response: Top-level response wrappers

DECIMALS:
  Decimal inputs accept JSON numbers or strings ("0.62" or 0.62) and are
  parsed exactly, never through float64. Monetary outputs are strings:
  totals with the currency's two places, intermediate values exact.

SEE ALSO:
  - handlers.go: Uses these types
  - engine/calculation.go: The engine's result model
*/
package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/epr-engine/engine"
)

// currencyPlaces formats totals. All built-in currencies use two places.
const currencyPlaces = 2

// =============================================================================
// REQUEST TYPES
// =============================================================================

type CalculateRequest struct {
	JurisdictionCode string         `json:"jurisdiction_code"`
	ProducerData     ProducerDTO    `json:"producer_data"`
	PackagingData    []PackagingDTO `json:"packaging_data"`
	CalculationDate  string         `json:"calculation_date,omitempty"`
	DataSource       string         `json:"data_source,omitempty"`
}

type ProducerDTO struct {
	Name                      string            `json:"name,omitempty"`
	AnnualRevenue             decimal.Decimal   `json:"annual_revenue"`
	AnnualTonnage             decimal.Decimal   `json:"annual_tonnage"`
	ProducesPerishableFood    bool              `json:"produces_perishable_food"`
	HasLCADisclosure          bool              `json:"has_lca_disclosure"`
	HasImpactReductionProgram bool              `json:"has_impact_reduction_program"`
	UsesReusablePackaging     bool              `json:"uses_reusable_packaging"`
	AnnualRecyclingRates      []decimal.Decimal `json:"annual_recycling_rates,omitempty"`
}

type PackagingDTO struct {
	MaterialType        string           `json:"material_type"`
	ComponentName       string           `json:"component_name,omitempty"`
	WeightPerUnit       decimal.Decimal  `json:"weight_per_unit"`
	WeightUnit          string           `json:"weight_unit,omitempty"`
	UnitsSold           int64            `json:"units_sold"`
	RecycledContent     decimal.Decimal  `json:"recycled_content_percentage"`
	RecyclabilityScore  *decimal.Decimal `json:"recyclability_score,omitempty"`
	Recyclable          bool             `json:"recyclable"`
	Reusable            bool             `json:"reusable"`
	DisruptsRecycling   bool             `json:"disrupts_recycling"`
	ContainsPFAS        bool             `json:"contains_pfas"`
	ContainsPhthalates  bool             `json:"contains_phthalates"`
	MarineDegradable    bool             `json:"marine_degradable"`
	HarmfulToMarineLife bool             `json:"harmful_to_marine_life"`
	BayFriendly         bool             `json:"bay_friendly"`
	ColdWeatherStable   bool             `json:"cold_weather_stable"`
}

// defaultWeightUnit applies when a component omits weight_unit.
const defaultWeightUnit = engine.UnitGram

// ToEngine converts the request. Range checks are left to the engine so
// every entry point validates the same way.
func (r CalculateRequest) ToEngine() (engine.CalculationRequest, error) {
	req := engine.CalculationRequest{
		Jurisdiction: engine.JurisdictionCode(r.JurisdictionCode),
		DataSource:   r.DataSource,
		Producer: engine.ProducerProfile{
			Name:                      r.ProducerData.Name,
			AnnualRevenue:             r.ProducerData.AnnualRevenue,
			AnnualTonnage:             r.ProducerData.AnnualTonnage,
			ProducesPerishableFood:    r.ProducerData.ProducesPerishableFood,
			HasLCADisclosure:          r.ProducerData.HasLCADisclosure,
			HasImpactReductionProgram: r.ProducerData.HasImpactReductionProgram,
			UsesReusablePackaging:     r.ProducerData.UsesReusablePackaging,
			AnnualRecyclingRates:      r.ProducerData.AnnualRecyclingRates,
		},
	}

	if r.CalculationDate != "" {
		at, err := engine.ParseDate(r.CalculationDate)
		if err != nil {
			return req, &engine.ValidationError{Field: "calculation_date", Reason: "must be YYYY-MM-DD"}
		}
		req.EffectiveDate = &at
	}

	for i, p := range r.PackagingData {
		unit := defaultWeightUnit
		if s := strings.ToLower(strings.TrimSpace(p.WeightUnit)); s != "" {
			parsed, err := engine.ParseMassUnit(s)
			if err != nil {
				return req, &engine.ValidationError{
					Field:  fmt.Sprintf("packaging_data[%d].weight_unit", i),
					Reason: fmt.Sprintf("unknown unit %q", p.WeightUnit),
				}
			}
			unit = parsed
		}
		req.Components = append(req.Components, engine.PackagingComponent{
			MaterialType:        engine.MaterialType(p.MaterialType),
			Name:                p.ComponentName,
			WeightPerUnit:       engine.NewMass(p.WeightPerUnit, unit),
			UnitsSold:           p.UnitsSold,
			RecycledContent:     p.RecycledContent,
			RecyclabilityScore:  p.RecyclabilityScore,
			Recyclable:          p.Recyclable,
			Reusable:            p.Reusable,
			DisruptsRecycling:   p.DisruptsRecycling,
			ContainsPFAS:        p.ContainsPFAS,
			ContainsPhthalates:  p.ContainsPhthalates,
			MarineDegradable:    p.MarineDegradable,
			HarmfulToMarineLife: p.HarmfulToMarineLife,
			BayFriendly:         p.BayFriendly,
			ColdWeatherStable:   p.ColdWeatherStable,
		})
	}
	return req, nil
}

// =============================================================================
// CALCULATION RESPONSE
// =============================================================================

type CalculationResponse struct {
	CalculationID         engine.CalculationID    `json:"calculation_id,omitempty"`
	Jurisdiction          engine.JurisdictionCode `json:"jurisdiction"`
	JurisdictionName      string                  `json:"jurisdiction_name"`
	ModelType             engine.ModelType        `json:"model_type"`
	RuleSetVersion        string                  `json:"rule_set_version"`
	EffectiveDate         engine.Date             `json:"effective_date"`
	CalculationTimestamp  time.Time               `json:"calculation_timestamp"`
	Currency              string                  `json:"currency"`
	TotalFee              string                  `json:"total_fee"`
	UnroundedTotal        string                  `json:"unrounded_total"`
	RecyclabilityDiscount string                  `json:"recyclability_discount"`
	MaterialTotals        map[string]string       `json:"material_totals"`
	Breakdown             []ComponentDTO          `json:"calculation_breakdown"`
	Citations             []engine.Citation       `json:"legal_citations"`
	Status                engine.ComplianceStatus `json:"compliance_status"`
	DataSource            string                  `json:"data_source,omitempty"`
	Stored                bool                    `json:"stored"`
}

type ComponentDTO struct {
	Index           int             `json:"component_index"`
	MaterialType    string          `json:"material_type"`
	ComponentName   string          `json:"component_name,omitempty"`
	UnitsSold       int64           `json:"units_sold"`
	Mass            string          `json:"mass"`
	MassUnit        engine.MassUnit `json:"mass_unit"`
	BaseRate        string          `json:"base_rate"`
	ScheduleVersion string          `json:"schedule_version"`
	BaseFee         string          `json:"base_fee"`
	Adjustments     []AdjustmentDTO `json:"adjustments"`
	FinalFee        string          `json:"final_fee"`
}

type AdjustmentDTO struct {
	RuleID     engine.RuleID       `json:"rule_id"`
	RuleName   string              `json:"rule_name"`
	Category   engine.RuleCategory `json:"category"`
	Citation   engine.Citation     `json:"legal_citation"`
	Applied    bool                `json:"applied"`
	Delta      string              `json:"delta"`
	RunningFee string              `json:"running_fee"`
}

func toCalculationResponse(calc *engine.FeeCalculation) CalculationResponse {
	resp := CalculationResponse{
		CalculationID:         calc.ID,
		Jurisdiction:          calc.Jurisdiction.Code,
		JurisdictionName:      calc.Jurisdiction.Name,
		ModelType:             calc.Jurisdiction.ModelType,
		RuleSetVersion:        calc.RuleSetVersion,
		EffectiveDate:         calc.EffectiveDate,
		CalculationTimestamp:  calc.CalculatedAt,
		Currency:              calc.Currency,
		TotalFee:              calc.TotalFee.StringFixed(currencyPlaces),
		UnroundedTotal:        calc.UnroundedTotal.String(),
		RecyclabilityDiscount: calc.RecyclabilityDiscount.StringFixed(currencyPlaces),
		MaterialTotals:        make(map[string]string),
		Breakdown:             make([]ComponentDTO, 0, len(calc.Components)),
		Citations:             calc.Citations,
		Status:                calc.Status,
		DataSource:            calc.DataSource,
		Stored:                calc.ID != "",
	}
	if resp.Citations == nil {
		resp.Citations = []engine.Citation{}
	}
	for material, total := range calc.MaterialTotals() {
		resp.MaterialTotals[string(material)] = total.String()
	}

	for _, c := range calc.Components {
		dto := ComponentDTO{
			Index:           c.Index,
			MaterialType:    string(c.Component.MaterialType),
			ComponentName:   c.Component.Name,
			UnitsSold:       c.Component.UnitsSold,
			Mass:            c.Mass.Value.String(),
			MassUnit:        c.Mass.Unit,
			BaseRate:        c.Rate.Rate.String(),
			ScheduleVersion: c.Rate.ScheduleVersion,
			BaseFee:         c.BaseFee.String(),
			Adjustments:     make([]AdjustmentDTO, 0, len(c.Adjustments)),
			FinalFee:        c.FinalFee.String(),
		}
		for _, a := range c.Adjustments {
			dto.Adjustments = append(dto.Adjustments, AdjustmentDTO{
				RuleID:     a.RuleID,
				RuleName:   a.RuleName,
				Category:   a.Category,
				Citation:   a.Citation,
				Applied:    a.Applied,
				Delta:      a.Delta.String(),
				RunningFee: a.RunningFee.String(),
			})
		}
		resp.Breakdown = append(resp.Breakdown, dto)
	}
	return resp
}

// =============================================================================
// LISTINGS
// =============================================================================

type CalculationListResponse struct {
	Calculations []CalculationSummaryDTO `json:"calculations"`
	Count        int                     `json:"count"`
}

type CalculationSummaryDTO struct {
	CalculationID        engine.CalculationID    `json:"calculation_id"`
	Jurisdiction         engine.JurisdictionCode `json:"jurisdiction"`
	RuleSetVersion       string                  `json:"rule_set_version"`
	EffectiveDate        engine.Date             `json:"effective_date"`
	CalculationTimestamp time.Time               `json:"calculation_timestamp"`
	Currency             string                  `json:"currency"`
	TotalFee             string                  `json:"total_fee"`
	Status               engine.ComplianceStatus `json:"compliance_status"`
	DataSource           string                  `json:"data_source,omitempty"`
}

func toSummaryDTO(s engine.CalculationSummary) CalculationSummaryDTO {
	return CalculationSummaryDTO{
		CalculationID:        s.ID,
		Jurisdiction:         s.Jurisdiction,
		RuleSetVersion:       s.RuleSetVersion,
		EffectiveDate:        s.EffectiveDate,
		CalculationTimestamp: s.CalculatedAt,
		Currency:             s.Currency,
		TotalFee:             s.TotalFee.StringFixed(currencyPlaces),
		Status:               s.Status,
		DataSource:           s.DataSource,
	}
}

type JurisdictionListResponse struct {
	Jurisdictions []engine.Jurisdiction `json:"jurisdictions"`
}

type RatesResponse struct {
	Jurisdiction  engine.JurisdictionCode `json:"jurisdiction"`
	EffectiveDate engine.Date             `json:"effective_date"`
	Rates         []RateDTO               `json:"rates"`
}

type RateDTO struct {
	MaterialType    engine.MaterialType `json:"material_type"`
	Rate            string              `json:"rate"`
	Unit            engine.MassUnit     `json:"unit"`
	Currency        string              `json:"currency"`
	EffectiveFrom   engine.Date         `json:"effective_from"`
	EffectiveTo     *engine.Date        `json:"effective_to,omitempty"`
	ScheduleVersion string              `json:"schedule_version"`
	Citation        engine.Citation     `json:"legal_citation"`
}

func toRateDTO(e engine.RateEntry) RateDTO {
	return RateDTO{
		MaterialType:    e.Material,
		Rate:            e.Rate.String(),
		Unit:            e.Unit,
		Currency:        e.Currency,
		EffectiveFrom:   e.Effective.From,
		EffectiveTo:     e.Effective.To,
		ScheduleVersion: e.ScheduleVersion,
		Citation:        e.Citation,
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}
