/*
handlers_test.go - HTTP tests for the fee API

Tests for:
- Calculate/get/trace round trip
- Error mapping (400, 404, 422)
- Estimate is never stored
- Listing, jurisdictions, rates and health
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/epr-engine/engine"
	"github.com/warp/epr-engine/engine/store"
	"github.com/warp/epr-engine/jurisdictions"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestServer(t *testing.T) (http.Handler, *Handler) {
	t.Helper()
	rates := engine.NewRateSchedule()
	rules := engine.NewRuleSetRegistry()
	require.NoError(t, jurisdictions.Install(rates, rules))

	clock := func() time.Time { return time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC) }
	svc := engine.NewService(rates, rules, engine.NewCalculationLedger(store.NewMemory()), engine.WithClock(clock))
	h := NewHandler(svc)
	return NewRouter(h, RouterOptions{}), h
}

func do(t *testing.T, srv http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// oregonLDPE is 100 kg of non-recyclable LDPE sold by a large producer.
func oregonLDPE(code string) map[string]any {
	return map[string]any{
		"jurisdiction_code": code,
		"producer_data": map[string]any{
			"name":           "Acme Foods",
			"annual_revenue": "20000000",
			"annual_tonnage": 300,
		},
		"packaging_data": []map[string]any{{
			"material_type":               "Plastic (LDPE)",
			"component_name":              "film wrap",
			"weight_per_unit":             100,
			"weight_unit":                 "g",
			"units_sold":                  1000,
			"recycled_content_percentage": 0,
		}},
	}
}

// =============================================================================
// CALCULATE / GET / TRACE
// =============================================================================

func TestCalculateFee_StoresAndReturnsTrace(t *testing.T) {
	srv, _ := newTestServer(t)

	// WHEN: Calculating an Oregon fee
	rec := do(t, srv, http.MethodPost, "/api/v1/fees/calculate", oregonLDPE("or"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN: Fixed-point total, stored with an id
	calc := decode[CalculationResponse](t, rec)
	assert.Equal(t, "62.00", calc.TotalFee)
	assert.Equal(t, "0.00", calc.RecyclabilityDiscount)
	assert.Equal(t, engine.JurisdictionCode("OR"), calc.Jurisdiction)
	assert.Equal(t, "OR-2025.1", calc.RuleSetVersion)
	assert.Equal(t, "2025-09-01", calc.EffectiveDate.String())
	assert.True(t, calc.Stored)
	require.NotEmpty(t, calc.CalculationID)
	require.Len(t, calc.Breakdown, 1)
	assert.Equal(t, "62", calc.Breakdown[0].BaseFee)
	assert.Equal(t, "100", calc.Breakdown[0].Mass)

	// AND: The trace covers every rule plus base fee and aggregation
	rec = do(t, srv, http.MethodGet, "/api/v1/fees/calculations/"+string(calc.CalculationID)+"/trace", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	trace := decode[engine.AuditTrace](t, rec)
	assert.Equal(t, calc.CalculationID, trace.CalculationID)
	assert.Equal(t, 8, trace.TotalSteps)
	require.Len(t, trace.Steps, 8)
	for i, s := range trace.Steps {
		assert.Equal(t, i+1, s.Number)
	}
	assert.NotEmpty(t, trace.Citations)

	// AND: The stored calculation is retrievable unchanged
	rec = do(t, srv, http.MethodGet, "/api/v1/fees/calculations/"+string(calc.CalculationID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[CalculationResponse](t, rec)
	assert.Equal(t, calc.TotalFee, got.TotalFee)
	assert.Equal(t, calc.CalculationID, got.CalculationID)
}

func TestCalculateFee_Errors(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("unknown jurisdiction is 422", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/api/v1/fees/calculate", oregonLDPE("ZZ"))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		resp := decode[ErrorResponse](t, rec)
		assert.Equal(t, "rate_not_found", resp.Code)
		assert.Equal(t, "ZZ", resp.Details["jurisdiction"])
	})

	t.Run("no packaging is 400", func(t *testing.T) {
		body := oregonLDPE("OR")
		body["packaging_data"] = []map[string]any{}
		rec := do(t, srv, http.MethodPost, "/api/v1/fees/calculate", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_input", decode[ErrorResponse](t, rec).Code)
	})

	t.Run("unknown weight unit is 400", func(t *testing.T) {
		body := oregonLDPE("OR")
		body["packaging_data"].([]map[string]any)[0]["weight_unit"] = "stone"
		rec := do(t, srv, http.MethodPost, "/api/v1/fees/calculate", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("out of range weight is 400", func(t *testing.T) {
		body := oregonLDPE("OR")
		body["packaging_data"].([]map[string]any)[0]["weight_per_unit"] = "1e2000000"
		rec := do(t, srv, http.MethodPost, "/api/v1/fees/calculate", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decode[ErrorResponse](t, rec)
		assert.Equal(t, "invalid_input", resp.Code)
		assert.Equal(t, "packaging_data[0].weight_per_unit", resp.Details["field"])
	})

	t.Run("malformed json is 400", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/api/v1/fees/calculate", `{"jurisdiction_code":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_input", decode[ErrorResponse](t, rec).Code)
	})

	t.Run("unknown calculation is 404", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/api/v1/fees/calculations/calc_missing/trace", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", decode[ErrorResponse](t, rec).Code)
	})
}

func TestEstimateFee_IsNotStored(t *testing.T) {
	srv, _ := newTestServer(t)

	// WHEN: Estimating
	rec := do(t, srv, http.MethodPost, "/api/v1/fees/estimate", oregonLDPE("OR"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: Same total, no id, nothing listed
	calc := decode[CalculationResponse](t, rec)
	assert.Equal(t, "62.00", calc.TotalFee)
	assert.Empty(t, calc.CalculationID)
	assert.False(t, calc.Stored)

	list := decode[CalculationListResponse](t, do(t, srv, http.MethodGet, "/api/v1/fees/calculations", nil))
	assert.Zero(t, list.Count)
}

// =============================================================================
// LISTING AND REFERENCE DATA
// =============================================================================

func TestListCalculations_FilterAndLimit(t *testing.T) {
	srv, _ := newTestServer(t)

	// GIVEN: Two Oregon calculations and one Colorado calculation
	// (Colorado takes effect in 2026, so pin the date)
	for range 2 {
		require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/v1/fees/calculate", oregonLDPE("OR")).Code)
	}
	co := oregonLDPE("CO")
	co["calculation_date"] = "2026-03-01"
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/v1/fees/calculate", co).Code)

	// WHEN/THEN: Filter by jurisdiction (case-insensitive)
	list := decode[CalculationListResponse](t, do(t, srv, http.MethodGet, "/api/v1/fees/calculations?jurisdiction=or", nil))
	assert.Equal(t, 2, list.Count)
	for _, s := range list.Calculations {
		assert.Equal(t, engine.JurisdictionCode("OR"), s.Jurisdiction)
		assert.Equal(t, "62.00", s.TotalFee)
	}

	// AND: Limit caps the result
	list = decode[CalculationListResponse](t, do(t, srv, http.MethodGet, "/api/v1/fees/calculations?limit=1", nil))
	assert.Equal(t, 1, list.Count)

	// AND: A bad limit is rejected
	rec := do(t, srv, http.MethodGet, "/api/v1/fees/calculations?limit=-3", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "limit", decode[ErrorResponse](t, rec).Details["field"])
}

func TestListJurisdictions(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/v1/jurisdictions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[JurisdictionListResponse](t, rec)
	require.Len(t, resp.Jurisdictions, 5)
	codes := make([]engine.JurisdictionCode, 0, 5)
	for _, j := range resp.Jurisdictions {
		codes = append(codes, j.Code)
		assert.NotEmpty(t, j.Name)
		assert.NotEmpty(t, j.ModelType)
	}
	assert.Equal(t, []engine.JurisdictionCode{"CA", "CO", "MD", "ME", "OR"}, codes)
}

func TestListRates(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("explicit date selects the program year", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/api/v1/jurisdictions/or/rates?date=2026-08-01", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[RatesResponse](t, rec)
		assert.Equal(t, engine.JurisdictionCode("OR"), resp.Jurisdiction)

		var found bool
		for _, r := range resp.Rates {
			if r.MaterialType == "Plastic (LDPE)" {
				found = true
				assert.Equal(t, "0.66", r.Rate)
			}
		}
		assert.True(t, found, "LDPE missing from %s", rec.Body.String())
	})

	t.Run("defaults to today", func(t *testing.T) {
		resp := decode[RatesResponse](t, do(t, srv, http.MethodGet, "/api/v1/jurisdictions/OR/rates", nil))
		assert.Equal(t, "2025-09-01", resp.EffectiveDate.String())
		assert.Len(t, resp.Rates, 10)
	})

	t.Run("bad date", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/api/v1/jurisdictions/OR/rates?date=tomorrow", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown jurisdiction", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/api/v1/jurisdictions/ZZ/rates", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestHealthz(t *testing.T) {
	srv, h := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// GIVEN: Storage is unreachable
	h.Health = func(_ context.Context) error { return errors.New("database is locked") }

	rec = do(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
