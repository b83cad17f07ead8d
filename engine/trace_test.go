package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/epr-engine/engine"
)

func TestRecorder_AssignsGaplessNumbers(t *testing.T) {
	rec := engine.NewRecorder("OR", fixedClock)

	for i := 0; i < 3; i++ {
		n, err := rec.Record(engine.TraceStep{Number: 99, Name: "step"})
		require.NoError(t, err)
		assert.Equal(t, i+1, n)
	}

	steps := rec.Steps()
	require.Len(t, steps, 3)
	for i, s := range steps {
		assert.Equal(t, i+1, s.Number)
		assert.Equal(t, engine.JurisdictionCode("OR"), s.Jurisdiction)
		assert.Equal(t, fixedNow, s.Timestamp)
	}
}

func TestRecorder_StepsAreCopies(t *testing.T) {
	rec := engine.NewRecorder("OR", fixedClock)
	input := map[string]string{"base_rate": "0.62"}
	_, err := rec.Record(engine.TraceStep{Name: "Base fee", Input: input})
	require.NoError(t, err)

	input["base_rate"] = "9.99"
	steps := rec.Steps()
	steps[0].Input["base_rate"] = "1.00"
	steps[0].Name = "tampered"

	again := rec.Steps()
	assert.Equal(t, "0.62", again[0].Input["base_rate"])
	assert.Equal(t, "Base fee", again[0].Name)
}

func TestRecorder_SealedAfterFinalize(t *testing.T) {
	rec := engine.NewRecorder("OR", fixedClock)
	_, _ = rec.Finalize(&engine.FeeCalculation{})

	_, err := rec.Record(engine.TraceStep{Name: "late"})

	assert.ErrorIs(t, err, engine.ErrTraceSealed)
}

func TestVerifyTrace_DetectsDamage(t *testing.T) {
	c := component(ldpe, 100, 1000)
	c.Recyclable = true
	calc, err := newCalculator(t, recyclabilityRule("-0.25")).Calculate(context.Background(), request(c))
	require.NoError(t, err)
	require.NoError(t, engine.VerifyTrace(calc.Trace, calc))

	tests := []struct {
		name   string
		damage func([]engine.TraceStep) []engine.TraceStep
	}{
		{"empty", func([]engine.TraceStep) []engine.TraceStep { return nil }},
		{"missing middle step", func(s []engine.TraceStep) []engine.TraceStep { return append(s[:1:1], s[2:]...) }},
		{"missing aggregation", func(s []engine.TraceStep) []engine.TraceStep { return s[:2] }},
		{"renumbered", func(s []engine.TraceStep) []engine.TraceStep { s[1].Number = 5; return s }},
		{"component total altered", func(s []engine.TraceStep) []engine.TraceStep {
			s[1].RunningFee = dec("40")
			return s
		}},
		{"rounded total altered", func(s []engine.TraceStep) []engine.TraceStep {
			s[2].Output = map[string]string{engine.OutputTotalFee: "46.49"}
			return s
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps := tt.damage(calc.Clone().Trace)

			err := engine.VerifyTrace(steps, calc)

			require.Error(t, err)
			assert.True(t, errors.Is(err, engine.ErrIncompleteTrace))
		})
	}
}
