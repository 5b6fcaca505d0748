/*
production.go - Production/retention aggregator

PURPOSE:
  The production scheme (e.g. pediatrics) pays physicians a share of what
  they billed. For each (physician, payer):

    gross      = Σ invoiced amounts (tariff value when the row has none)
    retention  = gross × 30%          (configurable percentage)
    subtotal   = gross − retention
    additional = Additional.Base × Additional.Percentage / 100
                 applied ONCE per (physician, payer, specialty, period),
                 never per event
    net        = subtotal + additional

  Purely a fold over classified events grouped by (physician, payer); no
  side effects beyond the produced LiquidationLines.

SEE ALSO:
  - resolver.go: Computes each event's Value
  - config.go: Additional.Payable()
*/
package liquidation

import (
	"sort"

	"github.com/shopspring/decimal"
)

// DefaultRetentionPct is the standard production retention.
var DefaultRetentionPct = decimal.NewFromInt(30)

// =============================================================================
// PRODUCTION AGGREGATOR
// =============================================================================

type ProductionAggregator struct {
	// RetentionPct defaults to 30 when zero.
	RetentionPct decimal.Decimal
}

func (pa *ProductionAggregator) retention() decimal.Decimal {
	if pa.RetentionPct.IsZero() {
		return DefaultRetentionPct
	}
	return pa.RetentionPct
}

// Aggregate folds classified events into one line per (physician, payer).
// additionals is the period's Additional table keyed by payer; the batch is
// single-specialty so the specialty dimension is already fixed.
func (pa *ProductionAggregator) Aggregate(batchID BatchID, events []ClassifiedEvent, additionals map[PayerKey]Additional) []LiquidationLine {
	type lineKey struct {
		physician PhysicianID
		payer     PayerKey
	}
	type acc struct {
		name      string
		gross     decimal.Decimal
		quantity  int64
		unitValue decimal.Decimal
	}

	groups := make(map[lineKey]*acc)
	for _, ce := range events {
		if !ce.Class.Payable {
			continue
		}
		k := lineKey{physician: ce.Event.PhysicianID, payer: ce.Event.PayerKey}
		g, ok := groups[k]
		if !ok {
			g = &acc{name: ce.Event.PhysicianName}
			groups[k] = g
		}
		g.gross = g.gross.Add(ce.Class.Value)
		g.quantity++
		if !ce.Class.UnitValue.IsZero() {
			g.unitValue = ce.Class.UnitValue
		}
	}

	pct := pa.retention()
	lines := make([]LiquidationLine, 0, len(groups))
	for k, g := range groups {
		retention := g.gross.Mul(pct).Div(hundred)
		subtotal := g.gross.Sub(retention)

		var additional decimal.Decimal
		if a, ok := additionals[k.payer]; ok {
			additional = a.Payable()
		}

		lines = append(lines, LiquidationLine{
			BatchID:       batchID,
			PhysicianID:   k.physician,
			PhysicianName: g.name,
			PayerKey:      k.payer,
			Scheme:        SchemeProduction,
			Quantity:      decimal.NewFromInt(g.quantity),
			UnitValue:     g.unitValue,
			Gross:         g.gross,
			Retention:     retention,
			Additional:    additional,
			Net:           subtotal.Add(additional),
		})
	}

	SortLines(lines)
	return lines
}

// SortLines orders lines deterministically so re-running aggregation on the
// same admitted-row set yields an identical result, byte for byte.
func SortLines(lines []LiquidationLine) {
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].PhysicianID != lines[j].PhysicianID {
			return lines[i].PhysicianID < lines[j].PhysicianID
		}
		return lines[i].PayerKey < lines[j].PayerKey
	})
}
