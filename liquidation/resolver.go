/*
resolver.go - Rate and classification resolver

PURPOSE:
  Answers, for a single billable event, three questions:
  1. Which physician is this, and are they a resident?
  2. Which unit value applies (payer tariff for the period)?
  3. Is the event payable at all (training-hour rule, missing config)?

TRAINING-HOUR RULE:
  An event is a training hour - and therefore NOT payable - iff ALL of:
    (a) the physician's roster record marks them as a resident
    (b) the weekday is Monday through Saturday (Sunday is always payable)
    (c) the start time falls in [07:00, 15:00) - inclusive lower bound,
        exclusive upper bound
  Non-residents are always payable regardless of hour and day.

MISSING CONFIGURATION:
  If no tariff row matches (payer, type, period), the resolved value is 0
  and the event is retained as not payable rather than dropped, so it stays
  visible for audit. A ConfigWarning is attached.

SEE ALSO:
  - normalize.go: Payer-key canonicalization used for tariff lookup
  - roster.go: Physician matching and unmatched-name policy
  - config.go: Tariff and Additional records
*/
package liquidation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Training-hour window bounds: [07:00, 15:00).
const (
	trainingWindowStartHour = 7
	trainingWindowEndHour   = 15
)

// =============================================================================
// CLASSIFICATION - Resolver output for one event
// =============================================================================

type Classification struct {
	// UnitValue is the tariff value for the event's (payer, type, period).
	UnitValue decimal.Decimal

	// Value is the event's gross contribution: the invoiced amount when the
	// source row carried one, the tariff unit value otherwise.
	Value decimal.Decimal

	// Payable is false for training hours and unconfigured tariffs.
	Payable bool

	TrainingHour bool

	// Bands holds the time-band partition for hourly events.
	Bands []BandSlice

	// ExcludePhysician is set under RosterExclude when the name is unmatched.
	ExcludePhysician bool

	// Warning is non-nil when configuration was missing for the event's key.
	Warning *ConfigWarning
}

// =============================================================================
// RESOLVER
// =============================================================================

// Resolver classifies events against the configuration active for a period.
type Resolver struct {
	Config   ConfigStore
	Roster   Roster
	Policy   RosterPolicy
	Calendar HolidayCalendar

	// Kind is the consultation type used for tariff lookup.
	// Defaults to "CONSULTA".
	Kind string
}

func (r *Resolver) kind() string {
	if r.Kind == "" {
		return "CONSULTA"
	}
	return r.Kind
}

func (r *Resolver) calendar() HolidayCalendar {
	if r.Calendar == nil {
		return NoHolidays{}
	}
	return r.Calendar
}

// Resolve classifies one event in place: it fills the event's physician
// reference and training flag, and returns the monetary classification.
// The period is passed explicitly; the resolver holds no ambient state.
func (r *Resolver) Resolve(ctx context.Context, e *BillableEvent, scheme Scheme, period Period) (Classification, error) {
	var c Classification

	phys, err := r.resolvePhysician(ctx, e)
	if err != nil {
		return c, err
	}
	if !e.Matched && r.Policy == RosterExclude {
		c.ExcludePhysician = true
		return c, nil
	}

	switch scheme {
	case SchemeHourly:
		return r.resolveHourly(e, phys)
	default:
		return r.resolveTariffed(ctx, e, period)
	}
}

// resolvePhysician matches the event's free-text name against the roster
// and applies the unmatched-name policy. Returns the roster record when
// matched, nil otherwise.
func (r *Resolver) resolvePhysician(ctx context.Context, e *BillableEvent) (*Physician, error) {
	if r.Roster != nil {
		if e.PhysicianID != "" && e.Matched {
			p, err := r.Roster.Get(ctx, e.PhysicianID)
			if err != nil {
				return nil, err
			}
			if p != nil {
				return p, nil
			}
		}
		p, err := r.Roster.FindByName(ctx, e.PhysicianName)
		if err != nil {
			return nil, err
		}
		if p != nil {
			e.PhysicianID = p.ID
			e.Matched = true
			return p, nil
		}
	}
	e.Matched = false
	e.PhysicianID = NormalizePhysicianName(e.PhysicianName)
	return nil, nil
}

// resolveHourly classifies a worked interval: training-hour rule first,
// then the band partition. Monetary values come later from the rate card;
// the hourly aggregator multiplies bands by rates per line.
func (r *Resolver) resolveHourly(e *BillableEvent, phys *Physician) (Classification, error) {
	var c Classification

	e.TrainingHour = isTrainingHour(phys, e.Start)
	c.TrainingHour = e.TrainingHour
	c.Payable = !e.TrainingHour

	if c.Payable && e.Start != nil && e.End != nil {
		c.Bands = PartitionInterval(*e.Start, *e.End, r.calendar())
	}
	return c, nil
}

// resolveTariffed classifies a consultation or admission row against the
// tariff table for its period.
func (r *Resolver) resolveTariffed(ctx context.Context, e *BillableEvent, period Period) (Classification, error) {
	var c Classification

	tariff, err := r.Config.GetTariff(ctx, e.PayerKey, r.kind(), period)
	if err != nil {
		return c, err
	}
	if tariff == nil {
		c.Warning = &ConfigWarning{
			EventID:   e.ID,
			RowNumber: e.RowNumber,
			Payer:     e.PayerKey,
			Specialty: e.Specialty,
			Period:    period,
			Missing:   "tariff",
		}
		if e.InvoicedAmount != nil {
			// The source row carried its own amount; the missing tariff is a
			// warning, not a reason to zero out real billing.
			c.Value = *e.InvoicedAmount
			c.Payable = true
		}
		return c, nil
	}

	c.UnitValue = tariff.UnitValue
	c.Payable = true
	if e.InvoicedAmount != nil {
		c.Value = *e.InvoicedAmount
	} else {
		c.Value = tariff.UnitValue
	}
	return c, nil
}

// isTrainingHour applies the residency exemption window.
func isTrainingHour(phys *Physician, start *time.Time) bool {
	if phys == nil || !phys.Resident || start == nil {
		return false
	}
	if start.Weekday() == time.Sunday {
		return false
	}
	h := start.Hour()
	return h >= trainingWindowStartHour && h < trainingWindowEndHour
}
