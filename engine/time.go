package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Day-granularity point used for effective-date resolution
// =============================================================================

const dateLayout = "2006-01-02"

type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DateOf(t), nil
}

func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }
func (d Date) Equal(other Date) bool  { return d.Time.Equal(other.Time) }
func (d Date) After(other Date) bool  { return d.Time.After(other.Time) }
func (d Date) IsZero() bool           { return d.Time.IsZero() }

func (d Date) String() string { return d.Time.Format(dateLayout) }

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// EFFECTIVE PERIOD - [From, To) validity window of a rate or rule set
// =============================================================================

// EffectivePeriod is half-open: From is inclusive, To is exclusive.
// A nil To means the period is open-ended (currently in force).
type EffectivePeriod struct {
	From Date  `json:"from"`
	To   *Date `json:"to,omitempty"`
}

func OpenPeriod(from Date) EffectivePeriod {
	return EffectivePeriod{From: from}
}

func BoundedPeriod(from, to Date) EffectivePeriod {
	return EffectivePeriod{From: from, To: &to}
}

// Valid rejects periods whose end is not after their start.
func (p EffectivePeriod) Valid() bool {
	return p.To == nil || p.To.After(p.From)
}

func (p EffectivePeriod) Contains(d Date) bool {
	if d.Before(p.From) {
		return false
	}
	return p.To == nil || d.Before(*p.To)
}

// Overlaps reports whether the two half-open periods share at least one day.
func (p EffectivePeriod) Overlaps(other EffectivePeriod) bool {
	startsBeforeOtherEnds := other.To == nil || p.From.Before(*other.To)
	otherStartsBeforeEnd := p.To == nil || other.From.Before(*p.To)
	return startsBeforeOtherEnds && otherStartsBeforeEnd
}

func (p EffectivePeriod) String() string {
	if p.To == nil {
		return "[" + p.From.String() + ", open)"
	}
	return "[" + p.From.String() + ", " + p.To.String() + ")"
}
