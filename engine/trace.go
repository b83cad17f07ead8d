/*
trace.go - Write-once audit trace recording and verification

PURPOSE:
  Every number in a FeeCalculation must be re-derivable by a regulator from
  the trace alone. The Recorder collects one step per base fee, per rule
  evaluation (applied or not), and one final aggregation step.

INVARIANTS:
  - Step numbers are 1..N with no gaps or duplicates
  - Steps are never modified or removed once recorded
  - Every running fee is non-negative
  - A component's last step carries its final fee
  - The last step is the aggregation and carries the calculation totals

  Finalize checks all of the above before a calculation may be stored.
  VerifyTrace runs the same check on traces loaded back from storage, so
  a trace that lost a row reads as ErrIncompleteTrace, never as a smaller
  fee.

SEE ALSO:
  - calculator.go: Records the steps
  - ledger.go: Re-verifies stored traces
*/
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TRACE STEP
// =============================================================================

type StepKind string

const (
	StepBaseFee       StepKind = "base_fee"
	StepAdjustment    StepKind = "adjustment"
	StepNotApplicable StepKind = "not_applicable"
	StepAggregation   StepKind = "aggregation"
)

// AggregateIndex is the ComponentIndex of steps that span all components.
const AggregateIndex = -1

type TraceStep struct {
	CalculationID  CalculationID     `json:"calculation_id,omitempty"`
	Number         int               `json:"step_number"`
	Kind           StepKind          `json:"step_kind"`
	Name           string            `json:"step_name"`
	ComponentIndex int               `json:"component_index"`
	Input          map[string]string `json:"input_data"`
	Output         map[string]string `json:"output_data"`
	RuleID         RuleID            `json:"rule_applied,omitempty"`
	Citation       Citation          `json:"legal_citation,omitempty"`
	Method         string            `json:"calculation_method"`
	Delta          decimal.Decimal   `json:"delta"`
	RunningFee     decimal.Decimal   `json:"running_fee"`
	Jurisdiction   JurisdictionCode  `json:"jurisdiction"`
	Timestamp      time.Time         `json:"timestamp"`
}

func (s TraceStep) clone() TraceStep {
	s.Input = cloneMap(s.Input)
	s.Output = cloneMap(s.Output)
	return s
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneSteps(steps []TraceStep) []TraceStep {
	if steps == nil {
		return nil
	}
	out := make([]TraceStep, len(steps))
	for i, s := range steps {
		out[i] = s.clone()
	}
	return out
}

// =============================================================================
// RECORDER
// =============================================================================

// Recorder is owned by a single calculation.
type Recorder struct {
	mu           sync.Mutex
	jurisdiction JurisdictionCode
	clock        func() time.Time
	steps        []TraceStep
	sealed       bool
}

func NewRecorder(jurisdiction JurisdictionCode, clock func() time.Time) *Recorder {
	if clock == nil {
		clock = time.Now
	}
	return &Recorder{jurisdiction: jurisdiction, clock: clock}
}

// Record appends a step and returns its assigned number. The caller's
// Number, Jurisdiction and Timestamp are overwritten.
func (r *Recorder) Record(step TraceStep) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return 0, ErrTraceSealed
	}
	step = step.clone()
	step.Number = len(r.steps) + 1
	step.Jurisdiction = r.jurisdiction
	step.Timestamp = r.clock().UTC()
	r.steps = append(r.steps, step)
	return step.Number, nil
}

// Steps returns a copy of the steps recorded so far.
func (r *Recorder) Steps() []TraceStep {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneSteps(r.steps)
}

// Finalize seals the recorder and verifies the trace against the
// calculation it produced. Nothing can be recorded afterwards.
func (r *Recorder) Finalize(calc *FeeCalculation) ([]TraceStep, error) {
	r.mu.Lock()
	r.sealed = true
	steps := cloneSteps(r.steps)
	r.mu.Unlock()

	if err := VerifyTrace(steps, calc); err != nil {
		return nil, err
	}
	return steps, nil
}

// =============================================================================
// VERIFICATION
// =============================================================================

// VerifyTrace checks that steps completely and consistently describe calc.
func VerifyTrace(steps []TraceStep, calc *FeeCalculation) error {
	fail := func(n int, format string, args ...any) error {
		return &IncompleteTraceError{
			CalculationID: calc.ID,
			StepNumber:    n,
			Reason:        fmt.Sprintf(format, args...),
		}
	}

	if len(steps) == 0 {
		return fail(0, "trace has no steps")
	}

	lastByComponent := make(map[int]TraceStep)
	baseSeen := make(map[int]bool)
	for i, s := range steps {
		want := i + 1
		if s.Number != want {
			return fail(want, "expected step %d, found step %d", want, s.Number)
		}
		if calc.ID != "" && s.CalculationID != calc.ID {
			return fail(s.Number, "step belongs to calculation %q", s.CalculationID)
		}
		if s.RunningFee.IsNegative() {
			return fail(s.Number, "negative running fee %s", s.RunningFee)
		}
		if s.ComponentIndex == AggregateIndex {
			continue
		}
		if s.Kind == StepBaseFee {
			baseSeen[s.ComponentIndex] = true
		} else if !baseSeen[s.ComponentIndex] {
			return fail(s.Number, "component %d adjusted before its base fee", s.ComponentIndex)
		}
		lastByComponent[s.ComponentIndex] = s
	}

	for _, comp := range calc.Components {
		last, ok := lastByComponent[comp.Index]
		if !ok {
			return fail(0, "component %d has no steps", comp.Index)
		}
		if !last.RunningFee.Equal(comp.FinalFee) {
			return fail(last.Number, "component %d ends at %s, reported final fee %s",
				comp.Index, last.RunningFee, comp.FinalFee)
		}
	}
	if len(lastByComponent) != len(calc.Components) {
		return fail(0, "trace covers %d components, calculation has %d",
			len(lastByComponent), len(calc.Components))
	}

	final := steps[len(steps)-1]
	if final.Kind != StepAggregation {
		return fail(final.Number, "last step is %s, expected %s", final.Kind, StepAggregation)
	}
	if !final.RunningFee.Equal(calc.UnroundedTotal) {
		return fail(final.Number, "aggregate %s does not match unrounded total %s",
			final.RunningFee, calc.UnroundedTotal)
	}
	total, err := decimal.NewFromString(final.Output[OutputTotalFee])
	if err != nil {
		return fail(final.Number, "aggregation step has no %s output", OutputTotalFee)
	}
	if !total.Equal(calc.TotalFee) {
		return fail(final.Number, "trace total %s does not match total fee %s", total, calc.TotalFee)
	}
	return nil
}
