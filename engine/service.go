package engine

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/warp/epr-engine/engine")

// Outcome labels reported to Metrics.
const (
	OutcomeStored          = "stored"
	OutcomeEstimated       = "estimated"
	OutcomeInvalidInput    = "invalid_input"
	OutcomeRateNotFound    = "rate_not_found"
	OutcomeIncompleteTrace = "incomplete_trace"
	OutcomeError           = "error"
)

// Metrics receives one observation per calculation attempt.
type Metrics interface {
	ObserveCalculation(jurisdiction JurisdictionCode, outcome string, elapsed time.Duration, total decimal.Decimal)
}

// TraceArchiver copies a stored calculation and its trace to long-term
// storage after commit.
type TraceArchiver interface {
	ArchiveTrace(ctx context.Context, calc *FeeCalculation) error
}

// RateCatalog is the rate registry as seen by the service.
type RateCatalog interface {
	RateLookup
	Materials(jurisdiction JurisdictionCode, at Date) []RateEntry
	HasJurisdiction(jurisdiction JurisdictionCode) bool
}

// RuleCatalog is the rule set registry as seen by the service.
type RuleCatalog interface {
	RuleLookup
	Jurisdictions() []Jurisdiction
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	calculator *Calculator
	ledger     *CalculationLedger
	rates      RateCatalog
	rules      RuleCatalog
	logger     *zap.Logger
	metrics    Metrics
	archive    TraceArchiver
	clock      func() time.Time
}

type ServiceOption func(*Service)

func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m Metrics) ServiceOption { return func(s *Service) { s.metrics = m } }

func WithArchive(a TraceArchiver) ServiceOption { return func(s *Service) { s.archive = a } }

func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) { s.clock = clock }
}

func NewService(rates RateCatalog, rules RuleCatalog, ledger *CalculationLedger, opts ...ServiceOption) *Service {
	s := &Service{
		ledger: ledger,
		rates:  rates,
		rules:  rules,
		logger: zap.NewNop(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.calculator = NewCalculator(rates, rules)
	s.calculator.Clock = s.clock
	return s
}

// Calculate computes, finalizes, and stores a calculation.
func (s *Service) Calculate(ctx context.Context, req CalculationRequest) (*FeeCalculation, error) {
	ctx, span := tracer.Start(ctx, "engine.Calculate")
	defer span.End()
	started := time.Now()

	calc, err := s.calculator.Calculate(ctx, req)
	if err == nil {
		_, err = s.ledger.Store(ctx, calc)
	}
	s.observe(span, req, calc, err, OutcomeStored, time.Since(started))
	if err != nil {
		return nil, err
	}

	if s.archive != nil {
		if aerr := s.archive.ArchiveTrace(ctx, calc); aerr != nil {
			s.logger.Warn("trace archive failed",
				zap.String("calculation_id", string(calc.ID)),
				zap.Error(aerr))
		}
	}
	return calc, nil
}

// Estimate computes and finalizes a calculation without storing it. The
// result has no id and cannot be looked up later.
func (s *Service) Estimate(ctx context.Context, req CalculationRequest) (*FeeCalculation, error) {
	ctx, span := tracer.Start(ctx, "engine.Estimate")
	defer span.End()
	started := time.Now()

	calc, err := s.calculator.Calculate(ctx, req)
	s.observe(span, req, calc, err, OutcomeEstimated, time.Since(started))
	if err != nil {
		return nil, err
	}
	return calc, nil
}

func (s *Service) Get(ctx context.Context, id CalculationID) (*FeeCalculation, error) {
	ctx, span := tracer.Start(ctx, "engine.Get")
	defer span.End()

	calc, err := s.ledger.Get(ctx, id)
	if err != nil {
		s.logLookupFailure(span, id, err)
		return nil, err
	}
	return calc, nil
}

func (s *Service) Trace(ctx context.Context, id CalculationID) (*AuditTrace, error) {
	ctx, span := tracer.Start(ctx, "engine.Trace")
	defer span.End()

	trace, err := s.ledger.Trace(ctx, id)
	if err != nil {
		s.logLookupFailure(span, id, err)
		return nil, err
	}
	return trace, nil
}

func (s *Service) List(ctx context.Context, filter CalculationFilter) ([]CalculationSummary, error) {
	return s.ledger.List(ctx, filter)
}

func (s *Service) Jurisdictions() []Jurisdiction {
	return s.rules.Jurisdictions()
}

// Rates lists the base rates in force for a jurisdiction on a date.
func (s *Service) Rates(jurisdiction JurisdictionCode, at Date) ([]RateEntry, error) {
	if !s.rates.HasJurisdiction(jurisdiction) {
		return nil, &RateNotFoundError{Jurisdiction: jurisdiction, At: at, Reason: "unknown jurisdiction"}
	}
	return s.rates.Materials(jurisdiction, at), nil
}

// Today is the service clock's current date.
func (s *Service) Today() Date {
	return DateOf(s.clock())
}

// =============================================================================
// OBSERVATION
// =============================================================================

func (s *Service) observe(span spanRecorder, req CalculationRequest, calc *FeeCalculation, err error, success string, elapsed time.Duration) {
	jurisdiction := NormalizeJurisdiction(string(req.Jurisdiction))
	outcome := success
	if err != nil {
		outcome = classifyOutcome(err)
	}
	span.SetAttributes(
		attribute.String("epr.jurisdiction", string(jurisdiction)),
		attribute.String("epr.outcome", outcome),
		attribute.Int("epr.components", len(req.Components)),
	)

	total := decimal.Zero
	fields := []zap.Field{
		zap.String("jurisdiction", string(jurisdiction)),
		zap.String("outcome", outcome),
		zap.Int("components", len(req.Components)),
		zap.Duration("elapsed", elapsed),
	}
	if calc != nil {
		total = calc.TotalFee
		fields = append(fields,
			zap.String("rule_set_version", calc.RuleSetVersion),
			zap.String("total_fee", calc.TotalFee.String()),
			zap.Int("trace_steps", len(calc.Trace)))
		if calc.ID != "" {
			fields = append(fields, zap.String("calculation_id", string(calc.ID)))
			span.SetAttributes(attribute.String("epr.calculation_id", string(calc.ID)))
		}
	}

	switch {
	case err == nil:
		s.logger.Info("fee calculation completed", fields...)
	case errors.Is(err, ErrIncompleteTrace):
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("fee calculation produced an incomplete trace", append(fields, zap.Error(err))...)
	case IsClientError(err):
		s.logger.Info("fee calculation rejected", append(fields, zap.Error(err))...)
	default:
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("fee calculation failed", append(fields, zap.Error(err))...)
	}

	if s.metrics != nil {
		s.metrics.ObserveCalculation(jurisdiction, outcome, elapsed, total)
	}
}

func (s *Service) logLookupFailure(span spanRecorder, id CalculationID, err error) {
	if errors.Is(err, ErrIncompleteTrace) {
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("stored trace failed verification",
			zap.String("calculation_id", string(id)), zap.Error(err))
		return
	}
	if !IsNotFound(err) {
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("calculation lookup failed",
			zap.String("calculation_id", string(id)), zap.Error(err))
	}
}

// spanRecorder is the subset of trace.Span the service writes to.
type spanRecorder interface {
	SetAttributes(kv ...attribute.KeyValue)
	SetStatus(code codes.Code, description string)
}

func classifyOutcome(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnknownUnit):
		return OutcomeInvalidInput
	case errors.Is(err, ErrRateNotFound), errors.Is(err, ErrRuleSetNotFound):
		return OutcomeRateNotFound
	case errors.Is(err, ErrIncompleteTrace):
		return OutcomeIncompleteTrace
	default:
		return OutcomeError
	}
}
