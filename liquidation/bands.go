/*
bands.go - Time-band partitioning for hourly schemes

PURPOSE:
  Hourly schemes pay a different rate depending on when the work happened.
  A worked interval is partitioned into sub-intervals by band:

    weekday_day     Mon-Fri 08:00-16:00
    weekday_night   Mon-Fri 16:00-08:00
    weekend_day     Sat/Sun/holiday 08:00-16:00
    weekend_night   Sat/Sun/holiday 16:00-08:00

  Intervals may cross band boundaries and midnight; the partitioner walks
  boundary to boundary so each sub-interval falls entirely inside one band.
  The weekend/holiday class of each sub-interval is decided by the calendar
  day it falls on, so a Friday-night shift rolling into Saturday is paid
  weekday-night until midnight and weekend-night after.

HOLIDAYS:
  Holidays are classified like weekends. The calendar is an interface with
  a no-op default so the engine works without holiday data.

SEE ALSO:
  - hourly.go: Multiplies band durations by configured rates
  - config.go: RateCard holding per-band rates
*/
package liquidation

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BAND
// =============================================================================

type Band string

const (
	BandWeekdayDay   Band = "weekday_day"
	BandWeekdayNight Band = "weekday_night"
	BandWeekendDay   Band = "weekend_day"
	BandWeekendNight Band = "weekend_night"
)

// dayBandStart/End bound the "day" window; everything else is "night".
const (
	dayBandStartHour = 8
	dayBandEndHour   = 16
)

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

// Holiday is a non-working date paid at weekend rates.
type Holiday struct {
	ID        string
	Date      time.Time // day granularity
	Name      string
	Recurring bool // same month/day every year
}

// HolidayCalendar answers whether a date is a holiday.
type HolidayCalendar interface {
	IsHoliday(date time.Time) bool
}

// NoHolidays is the default calendar: nothing is a holiday.
type NoHolidays struct{}

func (NoHolidays) IsHoliday(time.Time) bool { return false }

// CalendarFromHolidays builds a calendar from a holiday list.
func CalendarFromHolidays(holidays []Holiday) HolidayCalendar {
	c := holidayCalendar{fixed: make(map[string]bool), recurring: make(map[string]bool)}
	for _, h := range holidays {
		if h.Recurring {
			c.recurring[h.Date.Format("01-02")] = true
		} else {
			c.fixed[h.Date.Format("2006-01-02")] = true
		}
	}
	return c
}

type holidayCalendar struct {
	fixed     map[string]bool
	recurring map[string]bool
}

func (c holidayCalendar) IsHoliday(date time.Time) bool {
	return c.fixed[date.Format("2006-01-02")] || c.recurring[date.Format("01-02")]
}

// =============================================================================
// PARTITIONER
// =============================================================================

// BandSlice is the portion of a worked interval falling in one band.
type BandSlice struct {
	Band  Band
	Hours decimal.Decimal
}

// BandAt classifies a single instant.
func BandAt(t time.Time, cal HolidayCalendar) Band {
	weekend := t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
	if cal != nil && cal.IsHoliday(t) {
		weekend = true
	}
	day := t.Hour() >= dayBandStartHour && t.Hour() < dayBandEndHour
	switch {
	case weekend && day:
		return BandWeekendDay
	case weekend:
		return BandWeekendNight
	case day:
		return BandWeekdayDay
	default:
		return BandWeekdayNight
	}
}

// PartitionInterval splits [start, end) into band slices with fractional-hour
// durations. Intervals where end is earlier than start cross midnight and
// end rolls into the next day; zero-length intervals yield no slices (the
// filter rejects them before aggregation anyway).
func PartitionInterval(start, end time.Time, cal HolidayCalendar) []BandSlice {
	if end.Before(start) {
		end = end.Add(24 * time.Hour)
	}

	totals := make(map[Band]decimal.Decimal)
	var order []Band

	for cursor := start; cursor.Before(end); {
		band := BandAt(cursor, cal)
		next := nextBoundary(cursor)
		if next.After(end) {
			next = end
		}
		hours := decimal.NewFromFloat(next.Sub(cursor).Hours())
		if _, seen := totals[band]; !seen {
			order = append(order, band)
		}
		totals[band] = totals[band].Add(hours)
		cursor = next
	}

	slices := make([]BandSlice, 0, len(order))
	for _, band := range order {
		slices = append(slices, BandSlice{Band: band, Hours: totals[band]})
	}
	return slices
}

// nextBoundary returns the first band boundary strictly after t:
// 08:00, 16:00 or midnight of the next day.
func nextBoundary(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	for _, hour := range []int{dayBandStartHour, dayBandEndHour, 24} {
		b := day.Add(time.Duration(hour) * time.Hour)
		if b.After(t) {
			return b
		}
	}
	return day.Add(24 * time.Hour)
}
