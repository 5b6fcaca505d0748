/*
filter.go - Exclusion and deduplication pass

PURPOSE:
  Runs before any aggregator, for every scheme. Separates raw rows into
  admitted rows and excluded rows, recording why each exclusion happened.
  Excluded rows never enter an aggregator and never count toward totals,
  but they are kept (soft-invalidated) so operators can review them.

REASON PRIORITY (first match wins):
  1. sin_fecha       no parseable date
  2. fecha_invalida  date outside the declared batch period
  3. duracion_cero   zero-length interval, incl.
                     a start with no end time    (hourly schemes only)
  4. sin_hora        missing start time          (hourly schemes only)
  5. particular      self-pay / no-coverage payer
  6. duplicado       same (patient, physician, timestamp) already admitted
                     earlier in iteration order - first occurrence wins

  The duplicado rule is the shared first-come-first-served rule the
  fixed-fee-per-admission scheme builds on: since the filter admits only
  the first copy of an admission, the admission aggregator can simply
  count admitted rows.

SEE ALSO:
  - types.go: ReasonCode definitions
  - admission.go: Relies on FCFS dedup having run
*/
package liquidation

import "strings"

// =============================================================================
// FILTER
// =============================================================================

// Filter validates and deduplicates the raw rows of one batch.
type Filter struct {
	// Period the batch was declared for; dates outside it are rejected.
	Period Period

	// Scheme decides whether the hourly-only rules apply.
	Scheme Scheme

	// SelfPayPatterns are normalized payer substrings treated as
	// self-pay/no-coverage. Defaults to the canonical "PARTICULAR" key.
	SelfPayPatterns []string
}

// FilterResult is the outcome of one filter pass. Events are returned in
// input order with their Excluded/ExclusionReason flags set.
type FilterResult struct {
	Admitted []BillableEvent
	Excluded []ExcludedRow

	// Events holds every input event, flagged, for persistence.
	Events []BillableEvent
}

// Run applies the exclusion rules to events in iteration order.
// Payloads for the exclusion records are taken from the paired raw rows
// when provided (same indexing as events); nil is accepted.
func (f *Filter) Run(events []BillableEvent, rows []RawRow) FilterResult {
	result := FilterResult{Events: make([]BillableEvent, 0, len(events))}
	seen := make(map[string]bool)

	for i := range events {
		e := events[i]
		reason := f.classify(&e, seen)

		e.Excluded = reason != ReasonNone
		e.ExclusionReason = reason
		result.Events = append(result.Events, e)

		if reason == ReasonNone {
			seen[e.DedupKey()] = true
			result.Admitted = append(result.Admitted, e)
			continue
		}

		var payload map[string]string
		if i < len(rows) && rows[i] != nil {
			payload = rows[i]
		}
		result.Excluded = append(result.Excluded, ExcludedRow{
			BatchID:   e.BatchID,
			RowNumber: e.RowNumber,
			Reason:    reason,
			EventID:   e.ID,
			Payload:   payload,
		})
	}

	return result
}

// classify returns the highest-priority exclusion reason, ReasonNone if the
// event is admissible.
func (f *Filter) classify(e *BillableEvent, seen map[string]bool) ReasonCode {
	if e.Date.IsZero() {
		return ReasonNoDate
	}
	if !f.Period.Contains(e.Date) {
		return ReasonInvalidDate
	}
	if f.Scheme == SchemeHourly {
		// Duration() is zero both for equal start/end and for a missing end
		// time, so a start-only row is rejected here too: the hourly
		// aggregator must never see a zero-length interval.
		if e.Start != nil && e.Duration() == 0 {
			return ReasonZeroDuration
		}
		if e.Start == nil {
			return ReasonNoStartTime
		}
	}
	if f.isSelfPay(e.PayerKey) {
		return ReasonSelfPay
	}
	if seen[e.DedupKey()] {
		return ReasonDuplicate
	}
	return ReasonNone
}

func (f *Filter) isSelfPay(payer PayerKey) bool {
	patterns := f.SelfPayPatterns
	if len(patterns) == 0 {
		patterns = []string{"PARTICULAR"}
	}
	for _, p := range patterns {
		if strings.Contains(string(payer), normalizeLabel(p)) {
			return true
		}
	}
	return false
}
