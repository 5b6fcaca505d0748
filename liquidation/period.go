package liquidation

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - The accounting month every calculation is scoped to
// =============================================================================

// Period is a calendar (month, year) pair. Every tariff, additional, group
// assignment and batch is versioned by Period; there is no ambient "current
// period" anywhere in the engine. Callers pass the period explicitly.
type Period struct {
	Month time.Month
	Year  int
}

func NewPeriod(month time.Month, year int) Period {
	return Period{Month: month, Year: year}
}

// PeriodOf returns the period containing the given date.
func PeriodOf(t time.Time) Period {
	return Period{Month: t.Month(), Year: t.Year()}
}

// Start returns the first instant of the period (UTC).
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last day of the period at 00:00 (UTC).
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

// Contains reports whether the date falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return t.Year() == p.Year && t.Month() == p.Month
}

func (p Period) Next() Period {
	t := p.Start().AddDate(0, 1, 0)
	return PeriodOf(t)
}

func (p Period) Previous() Period {
	t := p.Start().AddDate(0, -1, 0)
	return PeriodOf(t)
}

func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

func (p Period) Equal(other Period) bool {
	return p.Month == other.Month && p.Year == other.Year
}

// String formats the period as "2006-01", the form used in store keys.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// ParsePeriod parses the "2006-01" form produced by String.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: %w", s, err)
	}
	return PeriodOf(t), nil
}
