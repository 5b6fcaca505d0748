package liquidation_test

import (
	"testing"
	"time"

	"github.com/andes/liquidation-engine/liquidation"
)

// =============================================================================
// EXCLUSION REASON TESTS
// =============================================================================

func hourlyEvent(id string, date time.Time, start, end *time.Time) liquidation.BillableEvent {
	return liquidation.BillableEvent{
		ID:            liquidation.EventID(id),
		BatchID:       "b1",
		PhysicianName: "RUIZ, MARCOS",
		Payer:         "OSEP",
		PayerKey:      "OSEP",
		Date:          date,
		Start:         start,
		End:           end,
		PatientID:     liquidation.PatientID(id),
	}
}

func TestFilter_ReasonPriority(t *testing.T) {
	// GIVEN: Rows failing several rules at once
	// WHEN: Classifying under the hourly scheme
	// THEN: The highest-priority reason wins

	f := liquidation.Filter{Period: june2025(), Scheme: liquidation.SchemeHourly}

	noDate := hourlyEvent("e1", time.Time{}, nil, nil)
	noDate.PayerKey = "PARTICULAR" // sin_fecha must still win

	outsidePeriod := hourlyEvent("e2", day(2025, time.May, 30), nil, nil)

	zeroLen := hourlyEvent("e3", day(2025, time.June, 9),
		tp(at(2025, time.June, 9, 8, 0)), tp(at(2025, time.June, 9, 8, 0)))

	noStart := hourlyEvent("e4", day(2025, time.June, 9), nil, tp(at(2025, time.June, 9, 14, 0)))

	selfPay := hourlyEvent("e5", day(2025, time.June, 9),
		tp(at(2025, time.June, 9, 8, 0)), tp(at(2025, time.June, 9, 14, 0)))
	selfPay.PayerKey = "PARTICULAR"

	result := f.Run([]liquidation.BillableEvent{noDate, outsidePeriod, zeroLen, noStart, selfPay}, nil)

	want := []liquidation.ReasonCode{
		liquidation.ReasonNoDate,
		liquidation.ReasonInvalidDate,
		liquidation.ReasonZeroDuration,
		liquidation.ReasonNoStartTime,
		liquidation.ReasonSelfPay,
	}
	if len(result.Excluded) != len(want) {
		t.Fatalf("expected %d exclusions, got %d", len(want), len(result.Excluded))
	}
	for i, ex := range result.Excluded {
		if ex.Reason != want[i] {
			t.Errorf("row %d: expected reason %s, got %s", i, want[i], ex.Reason)
		}
	}
	if len(result.Admitted) != 0 {
		t.Errorf("expected no admitted rows, got %d", len(result.Admitted))
	}
}

func TestFilter_HourlyRulesSkippedForProduction(t *testing.T) {
	// GIVEN: A consultation row with no start time
	// WHEN: Filtering under the production scheme
	// THEN: The row is admitted; sin_hora applies to hourly schemes only

	f := liquidation.Filter{Period: june2025(), Scheme: liquidation.SchemeProduction}
	e := hourlyEvent("e1", day(2025, time.June, 9), nil, nil)

	result := f.Run([]liquidation.BillableEvent{e}, nil)
	if len(result.Admitted) != 1 {
		t.Fatalf("expected admission, got exclusions %v", result.Excluded)
	}
}

func TestFilter_MissingEndTimeIsZeroDuration(t *testing.T) {
	// GIVEN: An hourly row with a start time but no end time
	// WHEN: Filtering under the hourly scheme
	// THEN: The row is rejected as duracion_cero, never reaching the aggregator

	f := liquidation.Filter{Period: june2025(), Scheme: liquidation.SchemeHourly}
	e := hourlyEvent("e1", day(2025, time.June, 9),
		tp(at(2025, time.June, 9, 8, 0)), nil)

	result := f.Run([]liquidation.BillableEvent{e}, nil)
	if len(result.Admitted) != 0 {
		t.Fatalf("start-only row must not be admitted, got %d admitted", len(result.Admitted))
	}
	if len(result.Excluded) != 1 || result.Excluded[0].Reason != liquidation.ReasonZeroDuration {
		t.Errorf("expected duracion_cero, got %v", result.Excluded)
	}
}

func TestFilter_MidnightCrossingIsNotZeroDuration(t *testing.T) {
	// GIVEN: A shift from 22:00 to 06:00 (end before start on the clock)
	// WHEN: Filtering under the hourly scheme
	// THEN: The row is admitted; the interval rolls into the next day

	f := liquidation.Filter{Period: june2025(), Scheme: liquidation.SchemeHourly}
	e := hourlyEvent("e1", day(2025, time.June, 9),
		tp(at(2025, time.June, 9, 22, 0)), tp(at(2025, time.June, 9, 6, 0)))

	result := f.Run([]liquidation.BillableEvent{e}, nil)
	if len(result.Admitted) != 1 {
		t.Fatalf("expected admission, got exclusions %v", result.Excluded)
	}
}

// =============================================================================
// DEDUPLICATION TESTS
// =============================================================================

func TestFilter_FirstComeFirstServedDedup(t *testing.T) {
	// GIVEN: Three copies of the same (patient, physician, timestamp) and one
	//        distinct admission
	// WHEN: Filtering in input order
	// THEN: The first copy is admitted, later copies are duplicado

	f := liquidation.Filter{Period: june2025(), Scheme: liquidation.SchemeAdmission}

	first := hourlyEvent("e1", day(2025, time.June, 9), nil, nil)
	first.PatientID = "30111222"
	second := hourlyEvent("e2", day(2025, time.June, 9), nil, nil)
	second.PatientID = "30111222"
	third := hourlyEvent("e3", day(2025, time.June, 9), nil, nil)
	third.PatientID = "30111222"
	other := hourlyEvent("e4", day(2025, time.June, 10), nil, nil)
	other.PatientID = "30111222"

	result := f.Run([]liquidation.BillableEvent{first, second, third, other}, nil)

	if len(result.Admitted) != 2 {
		t.Fatalf("expected 2 admitted, got %d", len(result.Admitted))
	}
	if result.Admitted[0].ID != "e1" || result.Admitted[1].ID != "e4" {
		t.Errorf("wrong rows admitted: %s, %s", result.Admitted[0].ID, result.Admitted[1].ID)
	}
	for _, ex := range result.Excluded {
		if ex.Reason != liquidation.ReasonDuplicate {
			t.Errorf("expected duplicado, got %s", ex.Reason)
		}
	}
}

func TestFilter_DedupDistinguishesPhysiciansBeforeResolution(t *testing.T) {
	// GIVEN: Two rows for the same patient and timestamp by different
	//        physicians, before any roster lookup has assigned IDs
	// WHEN: Filtering
	// THEN: Both are admitted; only a same-name copy is duplicado

	f := liquidation.Filter{Period: june2025(), Scheme: liquidation.SchemeAdmission}

	byGomez := hourlyEvent("e1", day(2025, time.June, 9), nil, nil)
	byGomez.PhysicianName = "GOMEZ, ANA"
	byGomez.PatientID = "30111222"
	byRuiz := hourlyEvent("e2", day(2025, time.June, 9), nil, nil)
	byRuiz.PhysicianName = "RUIZ, MARCOS"
	byRuiz.PatientID = "30111222"
	// Same physician as the first row, just spelled the way clerks type it.
	byGomezAgain := hourlyEvent("e3", day(2025, time.June, 9), nil, nil)
	byGomezAgain.PhysicianName = "Dra. Gómez, Ana"
	byGomezAgain.PatientID = "30111222"

	result := f.Run([]liquidation.BillableEvent{byGomez, byRuiz, byGomezAgain}, nil)

	if len(result.Admitted) != 2 {
		t.Fatalf("expected 2 admitted (one per physician), got %d", len(result.Admitted))
	}
	if result.Admitted[0].ID != "e1" || result.Admitted[1].ID != "e2" {
		t.Errorf("wrong rows admitted: %s, %s", result.Admitted[0].ID, result.Admitted[1].ID)
	}
	if len(result.Excluded) != 1 || result.Excluded[0].Reason != liquidation.ReasonDuplicate {
		t.Errorf("respelled copy should be duplicado, got %v", result.Excluded)
	}
}

func TestFilter_ExclusionKeepsPayload(t *testing.T) {
	// GIVEN: A rejected row with its original raw columns
	// WHEN: Filtering
	// THEN: The exclusion record carries the full payload for review

	f := liquidation.Filter{Period: june2025(), Scheme: liquidation.SchemeProduction}
	e := hourlyEvent("e1", time.Time{}, nil, nil)
	rows := []liquidation.RawRow{{"PROFESIONAL": "RUIZ, MARCOS", "FECHA": "sin dato"}}

	result := f.Run([]liquidation.BillableEvent{e}, rows)
	if len(result.Excluded) != 1 {
		t.Fatalf("expected 1 exclusion, got %d", len(result.Excluded))
	}
	if result.Excluded[0].Payload["FECHA"] != "sin dato" {
		t.Errorf("payload lost: %v", result.Excluded[0].Payload)
	}
}
