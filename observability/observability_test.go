package observability_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/epr-engine/engine"
	"github.com/warp/epr-engine/observability"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_FallsBackToInfo(t *testing.T) {
	for _, level := range []string{"", "nonsense", "INFO"} {
		logger, err := observability.NewLogger(level)
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(zapcore.InfoLevel), level)
		assert.False(t, logger.Core().Enabled(zapcore.DebugLevel), level)
	}

	logger, err := observability.NewLogger("debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestFromContext_DefaultsToNop(t *testing.T) {
	assert.NotNil(t, observability.FromContext(context.Background()))

	core, logs := observer.New(zapcore.InfoLevel)
	ctx := observability.WithLogger(context.Background(), zap.New(core))
	observability.FromContext(ctx).Info("hello")
	assert.Equal(t, 1, logs.Len())
}

func TestRequestLogger_LogsCompletionWithRoute(t *testing.T) {
	// GIVEN: A router with the request logger and a failing route
	core, logs := observer.New(zapcore.InfoLevel)
	r := chi.NewRouter()
	r.Use(middleware.RequestID, observability.TraceMiddleware, observability.RequestLogger(zap.New(core)))
	r.Get("/calculations/{id}", func(w http.ResponseWriter, r *http.Request) {
		observability.FromContext(r.Context()).Info("looking up")
		w.WriteHeader(http.StatusNotFound)
	})

	// WHEN: Requesting a missing calculation
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/calculations/calc_x", nil))

	// THEN: The handler log carries request fields and completion logs at warn
	require.Equal(t, http.StatusNotFound, rec.Code)
	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "looking up", entries[0].Message)
	assert.NotEmpty(t, entries[0].ContextMap()["request_id"])

	done := entries[1]
	assert.Equal(t, zapcore.WarnLevel, done.Level)
	assert.Equal(t, "/calculations/{id}", done.ContextMap()["route"])
	assert.EqualValues(t, http.StatusNotFound, done.ContextMap()["status"])
}

func TestMetrics_ObserveCalculation(t *testing.T) {
	m := observability.NewMetrics()

	m.ObserveCalculation("OR", engine.OutcomeStored, 3*time.Millisecond, decimal.RequireFromString("46.50"))
	m.ObserveCalculation("OR", engine.OutcomeStored, 2*time.Millisecond, decimal.RequireFromString("10"))
	m.ObserveCalculation("OR", engine.OutcomeRateNotFound, time.Millisecond, decimal.Zero)
	m.ObserveCalculation("CA", engine.OutcomeEstimated, time.Millisecond, decimal.RequireFromString("5"))

	expected := `
# HELP epr_calculations_total Fee calculation attempts by jurisdiction and outcome.
# TYPE epr_calculations_total counter
epr_calculations_total{jurisdiction="CA",outcome="estimated"} 1
epr_calculations_total{jurisdiction="OR",outcome="rate_not_found"} 1
epr_calculations_total{jurisdiction="OR",outcome="stored"} 2
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "epr_calculations_total"))

	// estimates are not counted as billed fees
	fees := `
# HELP epr_fees_calculated_total Sum of rounded total fees from successful calculations.
# TYPE epr_fees_calculated_total counter
epr_fees_calculated_total{jurisdiction="OR"} 56.5
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(fees), "epr_fees_calculated_total"))
}

func TestMetrics_Handler(t *testing.T) {
	m := observability.NewMetrics()
	m.ObserveCalculation("OR", engine.OutcomeStored, time.Millisecond, decimal.NewFromInt(1))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "epr_calculation_duration_seconds_bucket")
}
