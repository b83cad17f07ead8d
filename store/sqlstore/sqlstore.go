/*
Package sqlstore implements engine.Store over database/sql.

PURPOSE:
  One implementation of the append-only calculation store shared by the
  SQLite and PostgreSQL backends. Backends differ only in driver,
  placeholder style, and how they report unique-key violations.

APPEND-ONLY ENFORCEMENT:
  - AppendCalculation is the only write: one INSERT into calculations plus
    one INSERT per trace step, inside a single SQL transaction
  - No UPDATE or DELETE statements are issued against either table

KEY TABLES:
  calculations:      One row per stored calculation. Indexed columns for
                     listing; the full calculation as a JSON payload.
  calculation_steps: One row per trace step, keyed by (calculation_id,
                     step_number).

  Decimals are stored as TEXT so no value passes through a float. Times are
  stored as fixed-width UTC strings so lexical order is time order.

MIGRATION:
  Schema is versioned with goose. Migrations are embedded and applied on
  Open, using the goose dialect of the backend.

SEE ALSO:
  - store/sqlite: SQLite backend (mattn/go-sqlite3)
  - store/postgres: PostgreSQL backend (pgx)
  - engine/store.go: Interface definition
*/
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"github.com/warp/epr-engine/engine"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// =============================================================================
// DIALECT
// =============================================================================

type Dialect struct {
	Name  string
	Goose goose.Dialect

	// Numbered placeholders ($1, $2, ...) instead of ?.
	NumberedPlaceholders bool

	// IsUniqueViolation recognizes the driver's duplicate-key error.
	IsUniqueViolation func(err error) bool
}

// rebind rewrites ? placeholders for dialects that number them.
func (d Dialect) rebind(query string) string {
	if !d.NumberedPlaceholders {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// =============================================================================
// STORE
// =============================================================================

type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open applies pending migrations and returns a store over db. The caller
// keeps ownership of db until Close.
func Open(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	if err := Migrate(ctx, db, dialect); err != nil {
		return nil, err
	}
	return &Store{db: db, dialect: dialect}, nil
}

// Migrate runs all pending embedded migrations.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	provider, err := goose.NewProvider(dialect.Goose, db, fsys)
	if err != nil {
		return fmt.Errorf("create %s migration provider: %w", dialect.Name, err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("run %s migrations: %w", dialect.Name, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for health checks and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// =============================================================================
// WRITE PATH
// =============================================================================

func (s *Store) AppendCalculation(ctx context.Context, calc *engine.FeeCalculation) error {
	payload, err := json.Marshal(calc)
	if err != nil {
		return fmt.Errorf("encode calculation %s: %w", calc.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO calculations
		(id, jurisdiction, rule_set_version, effective_date, calculated_at, currency,
		 total_fee, unrounded_total, recyclability_discount, compliance_status,
		 data_source, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		string(calc.ID),
		string(calc.Jurisdiction.Code),
		calc.RuleSetVersion,
		calc.EffectiveDate.String(),
		formatTime(calc.CalculatedAt),
		calc.Currency,
		calc.TotalFee.String(),
		calc.UnroundedTotal.String(),
		calc.RecyclabilityDiscount.String(),
		string(calc.Status),
		nullString(calc.DataSource),
		string(payload),
		formatTime(time.Now()),
	)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return engine.ErrDuplicateCalculation
		}
		return fmt.Errorf("insert calculation %s: %w", calc.ID, err)
	}

	stepQuery := s.dialect.rebind(`
		INSERT INTO calculation_steps
		(calculation_id, step_number, step_kind, step_name, component_index, rule_id,
		 citation, method, delta, running_fee, jurisdiction, input_json, output_json, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	for _, step := range calc.Trace {
		input, err := json.Marshal(step.Input)
		if err != nil {
			return fmt.Errorf("encode step %d input: %w", step.Number, err)
		}
		output, err := json.Marshal(step.Output)
		if err != nil {
			return fmt.Errorf("encode step %d output: %w", step.Number, err)
		}
		_, err = tx.ExecContext(ctx, stepQuery,
			string(step.CalculationID),
			step.Number,
			string(step.Kind),
			step.Name,
			step.ComponentIndex,
			nullString(string(step.RuleID)),
			nullString(string(step.Citation)),
			step.Method,
			step.Delta.String(),
			step.RunningFee.String(),
			string(step.Jurisdiction),
			string(input),
			string(output),
			formatTime(step.Timestamp),
		)
		if err != nil {
			return fmt.Errorf("insert step %d of %s: %w", step.Number, calc.ID, err)
		}
	}

	return tx.Commit()
}

// =============================================================================
// READ PATH
// =============================================================================

func (s *Store) LoadCalculation(ctx context.Context, id engine.CalculationID) (*engine.FeeCalculation, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		s.dialect.rebind("SELECT payload FROM calculations WHERE id = ?"),
		string(id),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrCalculationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load calculation %s: %w", id, err)
	}

	var calc engine.FeeCalculation
	if err := json.Unmarshal([]byte(payload), &calc); err != nil {
		return nil, fmt.Errorf("decode calculation %s: %w", id, err)
	}

	steps, err := s.loadSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	calc.Trace = steps
	return &calc, nil
}

func (s *Store) loadSteps(ctx context.Context, id engine.CalculationID) ([]engine.TraceStep, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT calculation_id, step_number, step_kind, step_name, component_index, rule_id,
		       citation, method, delta, running_fee, jurisdiction, input_json, output_json, recorded_at
		FROM calculation_steps
		WHERE calculation_id = ?
		ORDER BY step_number ASC
	`), string(id))
	if err != nil {
		return nil, fmt.Errorf("query steps of %s: %w", id, err)
	}
	defer rows.Close()

	var steps []engine.TraceStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func scanStep(rows *sql.Rows) (engine.TraceStep, error) {
	var (
		step         engine.TraceStep
		calcID       string
		kind         string
		ruleID       sql.NullString
		citation     sql.NullString
		delta        string
		runningFee   string
		jurisdiction string
		inputJSON    string
		outputJSON   string
		recordedAt   string
	)
	err := rows.Scan(
		&calcID, &step.Number, &kind, &step.Name, &step.ComponentIndex, &ruleID,
		&citation, &step.Method, &delta, &runningFee, &jurisdiction, &inputJSON, &outputJSON, &recordedAt,
	)
	if err != nil {
		return step, fmt.Errorf("scan step: %w", err)
	}

	step.CalculationID = engine.CalculationID(calcID)
	step.Kind = engine.StepKind(kind)
	step.RuleID = engine.RuleID(ruleID.String)
	step.Citation = engine.Citation(citation.String)
	step.Jurisdiction = engine.JurisdictionCode(jurisdiction)
	if step.Delta, err = decimal.NewFromString(delta); err != nil {
		return step, fmt.Errorf("step %d delta: %w", step.Number, err)
	}
	if step.RunningFee, err = decimal.NewFromString(runningFee); err != nil {
		return step, fmt.Errorf("step %d running fee: %w", step.Number, err)
	}
	if err := json.Unmarshal([]byte(inputJSON), &step.Input); err != nil {
		return step, fmt.Errorf("step %d input: %w", step.Number, err)
	}
	if err := json.Unmarshal([]byte(outputJSON), &step.Output); err != nil {
		return step, fmt.Errorf("step %d output: %w", step.Number, err)
	}
	if step.Timestamp, err = time.Parse(timeLayout, recordedAt); err != nil {
		return step, fmt.Errorf("step %d timestamp: %w", step.Number, err)
	}
	return step, nil
}

func (s *Store) ListCalculations(ctx context.Context, filter engine.CalculationFilter) ([]engine.CalculationSummary, error) {
	query := `
		SELECT id, jurisdiction, rule_set_version, effective_date, calculated_at,
		       currency, total_fee, compliance_status, data_source
		FROM calculations`
	var args []any
	if filter.Jurisdiction != "" {
		query += " WHERE jurisdiction = ?"
		args = append(args, string(filter.Jurisdiction))
	}
	query += " ORDER BY calculated_at DESC, id DESC LIMIT ?"
	args = append(args, filter.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list calculations: %w", err)
	}
	defer rows.Close()

	result := make([]engine.CalculationSummary, 0)
	for rows.Next() {
		var (
			sum           engine.CalculationSummary
			id, code      string
			effective     string
			calculatedAt  string
			total, status string
			dataSource    sql.NullString
		)
		if err := rows.Scan(&id, &code, &sum.RuleSetVersion, &effective, &calculatedAt,
			&sum.Currency, &total, &status, &dataSource); err != nil {
			return nil, fmt.Errorf("scan calculation summary: %w", err)
		}
		sum.ID = engine.CalculationID(id)
		sum.Jurisdiction = engine.JurisdictionCode(code)
		sum.Status = engine.ComplianceStatus(status)
		sum.DataSource = dataSource.String
		if sum.EffectiveDate, err = engine.ParseDate(effective); err != nil {
			return nil, err
		}
		if sum.CalculatedAt, err = time.Parse(timeLayout, calculatedAt); err != nil {
			return nil, fmt.Errorf("calculation %s timestamp: %w", id, err)
		}
		if sum.TotalFee, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("calculation %s total: %w", id, err)
		}
		result = append(result, sum)
	}
	return result, rows.Err()
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
