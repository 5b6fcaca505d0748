/*
hourly.go - Hourly-banded / guaranteed-minimum aggregator

PURPOSE:
  The hourly scheme (e.g. clinical on-call shifts) pays worked intervals by
  time band:

    raw              = Σ (band duration × band rate)
    effective hourly = raw / total duration (fractional hours)
    paid             = raw,                        if effective ≥ minimum
                       total duration × minimum,   otherwise

  The guarantee applies PER LIQUIDATION LINE using the blended rate, never
  per sub-interval: a shift mixing cheap and expensive bands is topped up
  only if its overall average falls below the minimum.

GROUP MODE:
  Physicians holding a GroupAssignment for the period are not paid by the
  hour at all: their gross consultation billing for the period is
  multiplied by the group's fixed share (e.g. 70% or 40%). A physician is
  in exactly one of {hourly, grouped} modes, decided solely by whether an
  assignment exists for the period.

PRECONDITIONS:
  Zero-duration and hourless rows were excluded by the filter; training
  hours were marked not payable by the resolver. Neither reaches this fold.

SEE ALSO:
  - bands.go: Interval partitioning
  - config.go: RateCard and GroupAssignment
*/
package liquidation

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// HOURLY AGGREGATOR
// =============================================================================

type HourlyAggregator struct{}

// Aggregate folds classified hourly events into one line per
// (physician, payer). card may be nil (unconfigured period: everything
// rates at zero and the engine records the warning). groups is the
// period's assignment table keyed by physician.
func (ha *HourlyAggregator) Aggregate(batchID BatchID, events []ClassifiedEvent, card *RateCard, groups map[PhysicianID]GroupAssignment) []LiquidationLine {
	type lineKey struct {
		physician PhysicianID
		payer     PayerKey
	}
	type acc struct {
		name     string
		raw      decimal.Decimal // Σ band duration × band rate
		hours    decimal.Decimal
		gross    decimal.Decimal // consultation billing (group mode)
		quantity int64
	}

	hourly := make(map[lineKey]*acc)
	grouped := make(map[lineKey]*acc)

	for _, ce := range events {
		if !ce.Class.Payable {
			continue
		}
		k := lineKey{physician: ce.Event.PhysicianID, payer: ce.Event.PayerKey}

		if _, inGroup := groups[ce.Event.PhysicianID]; inGroup {
			g, ok := grouped[k]
			if !ok {
				g = &acc{name: ce.Event.PhysicianName}
				grouped[k] = g
			}
			if ce.Event.InvoicedAmount != nil {
				g.gross = g.gross.Add(*ce.Event.InvoicedAmount)
			}
			g.quantity++
			continue
		}

		g, ok := hourly[k]
		if !ok {
			g = &acc{name: ce.Event.PhysicianName}
			hourly[k] = g
		}
		for _, slice := range ce.Class.Bands {
			g.raw = g.raw.Add(slice.Hours.Mul(card.Rate(slice.Band)))
			g.hours = g.hours.Add(slice.Hours)
		}
		g.quantity++
	}

	var minimum decimal.Decimal
	if card != nil {
		minimum = card.GuaranteedMinimum
	}

	lines := make([]LiquidationLine, 0, len(hourly)+len(grouped))

	for k, g := range hourly {
		paid := g.raw
		unit := decimal.Zero
		if g.hours.IsPositive() {
			unit = g.raw.Div(g.hours)
			if unit.LessThan(minimum) {
				paid = g.hours.Mul(minimum)
				unit = minimum
			}
		}
		lines = append(lines, LiquidationLine{
			BatchID:       batchID,
			PhysicianID:   k.physician,
			PhysicianName: g.name,
			PayerKey:      k.payer,
			Scheme:        SchemeHourly,
			Quantity:      g.hours,
			UnitValue:     unit,
			Gross:         paid,
			Net:           paid,
		})
	}

	for k, g := range grouped {
		share := groups[k.physician].Share()
		paid := g.gross.Mul(share)
		lines = append(lines, LiquidationLine{
			BatchID:       batchID,
			PhysicianID:   k.physician,
			PhysicianName: g.name,
			PayerKey:      k.payer,
			Scheme:        SchemeHourly,
			Quantity:      decimal.NewFromInt(g.quantity),
			UnitValue:     share,
			Gross:         g.gross,
			Retention:     g.gross.Sub(paid),
			Net:           paid,
		})
	}

	SortLines(lines)
	return lines
}
