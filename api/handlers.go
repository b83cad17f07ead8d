/*
handlers.go - HTTP API handlers for the EPR fee engine

PURPOSE:
  Exposes the fee engine via REST. Handles HTTP request/response and JSON
  serialization, and delegates everything else to engine.Service.

ENDPOINTS:
  Fees:
    POST   /api/v1/fees/calculate                 Calculate and store
    POST   /api/v1/fees/estimate                  Calculate without storing
    GET    /api/v1/fees/calculations              List stored calculations
    GET    /api/v1/fees/calculations/{id}         Stored calculation
    GET    /api/v1/fees/calculations/{id}/trace   Ordered audit trace

  Reference data:
    GET    /api/v1/jurisdictions                  Supported jurisdictions
    GET    /api/v1/jurisdictions/{code}/rates     Rates in force on ?date=

ERROR HANDLING:
  Errors are returned as {error, code, details}:
  - 400 invalid_input:    Malformed JSON or failed validation
  - 422 rate_not_found:   No rate or rule set in force for the request
  - 404 not_found:        Unknown calculation id
  - 500 incomplete_trace: A stored trace failed verification
  - 500 internal_error:   Anything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/warp/epr-engine/engine"
	"github.com/warp/epr-engine/observability"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies. Large inventories fit comfortably.
const maxBodyBytes = 8 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

type Handler struct {
	Service *engine.Service

	// Health reports storage reachability for /healthz. Nil means always healthy.
	Health func(ctx context.Context) error
}

func NewHandler(svc *engine.Service) *Handler {
	return &Handler{Service: svc}
}

// =============================================================================
// FEE HANDLERS
// =============================================================================

// CalculateFee calculates, stores, and returns a fee with its id.
// POST /api/v1/fees/calculate
func (h *Handler) CalculateFee(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCalculation(w, r)
	if !ok {
		return
	}
	calc, err := h.Service.Calculate(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCalculationResponse(calc))
}

// EstimateFee calculates without storing. The response has no id.
// POST /api/v1/fees/estimate
func (h *Handler) EstimateFee(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCalculation(w, r)
	if !ok {
		return
	}
	calc, err := h.Service.Estimate(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCalculationResponse(calc))
}

// ListCalculations returns stored calculation summaries, newest first.
// GET /api/v1/fees/calculations?jurisdiction=OR&limit=20
func (h *Handler) ListCalculations(w http.ResponseWriter, r *http.Request) {
	filter := engine.CalculationFilter{
		Jurisdiction: engine.NormalizeJurisdiction(r.URL.Query().Get("jurisdiction")),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, r, &engine.ValidationError{Field: "limit", Reason: "must be a positive integer"})
			return
		}
		filter.Limit = limit
	}

	summaries, err := h.Service.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := CalculationListResponse{Calculations: make([]CalculationSummaryDTO, 0, len(summaries))}
	for _, s := range summaries {
		resp.Calculations = append(resp.Calculations, toSummaryDTO(s))
	}
	resp.Count = len(resp.Calculations)
	writeJSON(w, http.StatusOK, resp)
}

// GetCalculation returns a stored calculation.
// GET /api/v1/fees/calculations/{id}
func (h *Handler) GetCalculation(w http.ResponseWriter, r *http.Request) {
	calc, err := h.Service.Get(r.Context(), engine.CalculationID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCalculationResponse(calc))
}

// GetTrace returns the verified audit trace of a stored calculation.
// GET /api/v1/fees/calculations/{id}/trace
func (h *Handler) GetTrace(w http.ResponseWriter, r *http.Request) {
	trace, err := h.Service.Trace(r.Context(), engine.CalculationID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

// =============================================================================
// REFERENCE DATA HANDLERS
// =============================================================================

// ListJurisdictions returns {code, name, model_type} per jurisdiction.
// GET /api/v1/jurisdictions
func (h *Handler) ListJurisdictions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, JurisdictionListResponse{Jurisdictions: h.Service.Jurisdictions()})
}

// ListRates returns the rates in force on ?date=YYYY-MM-DD (default today).
// GET /api/v1/jurisdictions/{code}/rates
func (h *Handler) ListRates(w http.ResponseWriter, r *http.Request) {
	code := engine.NormalizeJurisdiction(chi.URLParam(r, "code"))
	at := h.Service.Today()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := engine.ParseDate(raw)
		if err != nil {
			writeError(w, r, &engine.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"})
			return
		}
		at = parsed
	}

	entries, err := h.Service.Rates(code, at)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := RatesResponse{Jurisdiction: code, EffectiveDate: at, Rates: make([]RateDTO, 0, len(entries))}
	for _, e := range entries {
		resp.Rates = append(resp.Rates, toRateDTO(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Healthz reports liveness and, when configured, storage reachability.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health(r.Context()); err != nil {
			observability.FromContext(r.Context()).Error("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) decodeCalculation(w http.ResponseWriter, r *http.Request) (engine.CalculationRequest, bool) {
	var body CalculateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "invalid_input",
			Details: map[string]string{
				"reason": err.Error(),
			},
		})
		return engine.CalculationRequest{}, false
	}
	req, err := body.ToEngine()
	if err != nil {
		writeError(w, r, err)
		return engine.CalculationRequest{}, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps engine errors onto status codes. Internal details are
// logged, never returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *engine.ValidationError
		rateErr    *engine.RateNotFoundError
		traceErr   *engine.IncompleteTraceError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   validation.Error(),
			Code:    "invalid_input",
			Details: map[string]string{"field": validation.Field, "reason": validation.Reason},
		})

	case errors.Is(err, engine.ErrInvalidInput), errors.Is(err, engine.ErrUnknownUnit):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid_input"})

	case errors.As(err, &rateErr):
		details := map[string]string{
			"jurisdiction": string(rateErr.Jurisdiction),
			"date":         rateErr.At.String(),
			"reason":       rateErr.Reason,
		}
		if rateErr.Material != "" {
			details["material_type"] = string(rateErr.Material)
		}
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: rateErr.Error(), Code: "rate_not_found", Details: details})

	case errors.Is(err, engine.ErrRateNotFound), errors.Is(err, engine.ErrRuleSetNotFound):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: "rate_not_found"})

	case errors.Is(err, engine.ErrCalculationNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Calculation not found", Code: "not_found"})

	case errors.As(err, &traceErr):
		observability.FromContext(r.Context()).Error("incomplete trace", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "Stored audit trace failed verification",
			Code:    "incomplete_trace",
			Details: map[string]string{"calculation_id": string(traceErr.CalculationID), "step": fmt.Sprint(traceErr.StepNumber)},
		})

	case errors.Is(err, engine.ErrIncompleteTrace):
		observability.FromContext(r.Context()).Error("incomplete trace", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Audit trace failed verification", Code: "incomplete_trace"})

	default:
		observability.FromContext(r.Context()).Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error", Code: "internal_error"})
	}
}
