/*
config.go - Period-versioned tariff, additional, and group configuration

PURPOSE:
  Defines the configuration records the resolver and aggregators read:
  - Tariff: (payer, consultation type, period) -> unit value
  - RateCard: (specialty, period) -> time-band hourly rates + guaranteed minimum
  - Additional: (payer, specialty, period) -> base amount + payable percentage
  - GroupAssignment: (physician, period) -> fixed share of gross

VERSIONING CONTRACT:
  Exactly one active value per key tuple per (month, year). Records are never
  retroactively mutated: opening a new period copies rows into new records,
  optionally scaled by a percentage increase. Past liquidations therefore
  stay reproducible forever.

SEE ALSO:
  - resolver.go: Tariff and additional lookup per event
  - hourly.go: RateCard and GroupAssignment consumers
  - store.go: ConfigStore persistence contract
*/
package liquidation

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TARIFF - Per-consultation unit value
// =============================================================================

// Tariff is the unit value for one (payer, consultation type) in a period.
type Tariff struct {
	Payer     PayerKey
	Kind      string // consultation type, normalized (e.g. "CONSULTA")
	Period    Period
	UnitValue decimal.Decimal
}

// =============================================================================
// RATE CARD - Hourly band rates with guaranteed minimum
// =============================================================================

// RateCard holds the hourly rates per time band for a specialty in a period,
// plus the guaranteed minimum applied to the blended rate.
type RateCard struct {
	Specialty         string
	Period            Period
	Rates             map[Band]decimal.Decimal
	GuaranteedMinimum decimal.Decimal
}

// Rate returns the configured rate for a band, zero when unconfigured.
func (rc *RateCard) Rate(band Band) decimal.Decimal {
	if rc == nil || rc.Rates == nil {
		return decimal.Zero
	}
	return rc.Rates[band]
}

// =============================================================================
// ADDITIONAL - Fixed extra paid once per (physician, payer, specialty, period)
// =============================================================================

// Additional is the configured extra amount for a (payer, specialty) pair.
// The payable portion is Base × Percentage / 100, applied once per
// liquidation line, never per event.
type Additional struct {
	Payer      PayerKey
	Specialty  string
	Period     Period
	Base       decimal.Decimal
	Percentage decimal.Decimal
}

// Payable returns the amount actually paid to the physician.
func (a Additional) Payable() decimal.Decimal {
	return a.Base.Mul(a.Percentage).Div(hundred)
}

// =============================================================================
// GROUP ASSIGNMENT - Fixed share of gross instead of hourly banding
// =============================================================================

// GroupAssignment places a physician in a compensation-share group for one
// period. A physician holds at most one assignment per period; saving a new
// one replaces the old.
type GroupAssignment struct {
	PhysicianID  PhysicianID
	Period       Period
	SharePercent decimal.Decimal // e.g. 70 or 40
}

// Share returns the gross multiplier (SharePercent / 100).
func (g GroupAssignment) Share() decimal.Decimal {
	return g.SharePercent.Div(hundred)
}

// =============================================================================
// PERIOD COPY - Open a new period from a prior one
// =============================================================================

// CopyConfigToPeriod clones all tariff, rate-card and additional records from
// one period into another, scaling monetary values by scalePct percent
// (0 copies unchanged, 10 raises everything 10%). Existing records in the
// target period are left untouched; the source period is never mutated.
func CopyConfigToPeriod(ctx context.Context, store ConfigStore, from, to Period, scalePct decimal.Decimal) (int, error) {
	if from.Equal(to) {
		return 0, ErrSamePeriodCopy
	}
	factor := decimal.NewFromInt(1).Add(scalePct.Div(hundred))
	copied := 0

	tariffs, err := store.ListTariffs(ctx, from)
	if err != nil {
		return 0, err
	}
	for _, t := range tariffs {
		if existing, err := store.GetTariff(ctx, t.Payer, t.Kind, to); err != nil {
			return copied, err
		} else if existing != nil {
			continue
		}
		t.Period = to
		t.UnitValue = t.UnitValue.Mul(factor)
		if err := store.SaveTariff(ctx, t); err != nil {
			return copied, err
		}
		copied++
	}

	cards, err := store.ListRateCards(ctx, from)
	if err != nil {
		return copied, err
	}
	for _, rc := range cards {
		if existing, err := store.GetRateCard(ctx, rc.Specialty, to); err != nil {
			return copied, err
		} else if existing != nil {
			continue
		}
		scaled := RateCard{
			Specialty:         rc.Specialty,
			Period:            to,
			Rates:             make(map[Band]decimal.Decimal, len(rc.Rates)),
			GuaranteedMinimum: rc.GuaranteedMinimum.Mul(factor),
		}
		for band, rate := range rc.Rates {
			scaled.Rates[band] = rate.Mul(factor)
		}
		if err := store.SaveRateCard(ctx, scaled); err != nil {
			return copied, err
		}
		copied++
	}

	additionals, err := store.ListAdditionals(ctx, from)
	if err != nil {
		return copied, err
	}
	for _, a := range additionals {
		if existing, err := store.GetAdditional(ctx, a.Payer, a.Specialty, to); err != nil {
			return copied, err
		} else if existing != nil {
			continue
		}
		a.Period = to
		a.Base = a.Base.Mul(factor)
		// Percentage is a split, not a price: it is never scaled.
		if err := store.SaveAdditional(ctx, a); err != nil {
			return copied, err
		}
		copied++
	}

	return copied, nil
}
