/*
errors.go - Centralized error types for the fee engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify errors with errors.Is against the sentinels; structured
  errors carry the context needed for a user-facing message.

ERROR CATEGORIES:
  1. Input errors - InvalidInput, rejected before any rule is applied
  2. Rule data errors - RateNotFound, RuleSetNotFound, OverlappingRates
  3. Integrity errors - IncompleteTrace (server-side defect, never swallowed)
  4. Lookup errors - CalculationNotFound

PROPAGATION:
  Nothing is retried. A calculation is deterministic: retrying the same
  input reproduces the same result (modulo a new calculation id).

SEE ALSO:
  - validate.go: Produces ValidationError
  - rates.go: Produces RateNotFoundError and OverlapError
  - trace.go: Produces IncompleteTraceError
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRateNotFound is returned when no base rate applies to a
	// jurisdiction/material/date. The whole calculation aborts.
	ErrRateNotFound = errors.New("rate not found")

	// ErrInvalidInput is returned for malformed requests.
	ErrInvalidInput = errors.New("invalid input")

	// ErrIncompleteTrace is returned when a trace has a gap or its final
	// values disagree with the calculation it belongs to.
	ErrIncompleteTrace = errors.New("incomplete trace")

	// ErrCalculationNotFound is returned when a calculation id was never issued.
	ErrCalculationNotFound = errors.New("calculation not found")

	// ErrRuleSetNotFound is returned when no rule set version is in force
	// for a jurisdiction on the effective date.
	ErrRuleSetNotFound = errors.New("rule set not found")

	// ErrOverlappingRates is returned when two schedule entries (or two rule
	// set versions) for the same key would both apply on some date.
	ErrOverlappingRates = errors.New("overlapping effective periods")

	// ErrDuplicateCalculation is returned when a calculation id already exists.
	ErrDuplicateCalculation = errors.New("duplicate calculation id")

	// ErrUnknownUnit is returned for mass units without a conversion factor.
	ErrUnknownUnit = errors.New("unknown mass unit")

	// ErrTraceSealed is returned when recording into a finalized trace.
	ErrTraceSealed = errors.New("trace already finalized")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RateNotFoundError details which lookup failed.
type RateNotFoundError struct {
	Jurisdiction JurisdictionCode
	Material     MaterialType
	At           Date
	Reason       string
}

func (e *RateNotFoundError) Error() string {
	return fmt.Sprintf("rate not found: %s for %q on %s (%s)",
		e.Jurisdiction, e.Material, e.At, e.Reason)
}

func (e *RateNotFoundError) Unwrap() error {
	return ErrRateNotFound
}

// ValidationError names the offending request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// IncompleteTraceError describes which trace invariant failed.
type IncompleteTraceError struct {
	CalculationID CalculationID
	StepNumber    int
	Reason        string
}

func (e *IncompleteTraceError) Error() string {
	id := string(e.CalculationID)
	if id == "" {
		id = "<unissued>"
	}
	return fmt.Sprintf("incomplete trace for %s at step %d: %s", id, e.StepNumber, e.Reason)
}

func (e *IncompleteTraceError) Unwrap() error {
	return ErrIncompleteTrace
}

// OverlapError identifies the conflicting registration.
type OverlapError struct {
	Key      string
	Existing EffectivePeriod
	Incoming EffectivePeriod
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("overlapping effective periods for %s: existing %s, incoming %s",
		e.Key, e.Existing, e.Incoming)
}

func (e *OverlapError) Unwrap() error {
	return ErrOverlappingRates
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the caller's request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrRateNotFound) ||
		errors.Is(err, ErrRuleSetNotFound) ||
		errors.Is(err, ErrUnknownUnit)
}

// IsNotFound returns true if the error indicates an unknown calculation id.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCalculationNotFound)
}
