/*
admission.go - Fixed-fee-per-admission aggregator

PURPOSE:
  Pays one fixed fee per admission. An admission is identified by
  (patient, physician, timestamp); duplicates were already removed by the
  filter's first-come-first-served rule, so this fold simply counts
  admitted rows per (physician, payer) and multiplies by the fee.

  gross = admissions × fee; no retention; additionals apply once per line
  like the production scheme.

SEE ALSO:
  - filter.go: FCFS deduplication (reason "duplicado")
  - production.go: Additional application pattern
*/
package liquidation

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// ADMISSION AGGREGATOR
// =============================================================================

type AdmissionAggregator struct {
	// Fee is the fixed amount paid per deduplicated admission.
	Fee decimal.Decimal
}

// Aggregate counts admitted admissions per (physician, payer).
func (aa *AdmissionAggregator) Aggregate(batchID BatchID, events []ClassifiedEvent, additionals map[PayerKey]Additional) []LiquidationLine {
	type lineKey struct {
		physician PhysicianID
		payer     PayerKey
	}
	type acc struct {
		name  string
		count int64
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
		g.count++
	}

	lines := make([]LiquidationLine, 0, len(groups))
	for k, g := range groups {
		quantity := decimal.NewFromInt(g.count)
		gross := quantity.Mul(aa.Fee)

		var additional decimal.Decimal
		if a, ok := additionals[k.payer]; ok {
			additional = a.Payable()
		}

		lines = append(lines, LiquidationLine{
			BatchID:       batchID,
			PhysicianID:   k.physician,
			PhysicianName: g.name,
			PayerKey:      k.payer,
			Scheme:        SchemeAdmission,
			Quantity:      quantity,
			UnitValue:     aa.Fee,
			Gross:         gross,
			Additional:    additional,
			Net:           gross.Add(additional),
		})
	}

	SortLines(lines)
	return lines
}
