package liquidation_test

import (
	"context"
	"testing"
	"time"

	"github.com/andes/liquidation-engine/liquidation"
	memstore "github.com/andes/liquidation-engine/liquidation/store"
)

// =============================================================================
// TRAINING-HOUR RULE TESTS
// =============================================================================

// June 9 2025 is a Monday, June 8 a Sunday.
func TestResolver_TrainingHourWindow(t *testing.T) {
	cases := []struct {
		name     string
		phys     string
		start    time.Time
		training bool
	}{
		{"resident monday 06:59 before window", "RUIZ, MARCOS", at(2025, time.June, 9, 6, 59), false},
		{"resident monday 07:00 inclusive bound", "RUIZ, MARCOS", at(2025, time.June, 9, 7, 0), true},
		{"resident monday 14:59 inside window", "RUIZ, MARCOS", at(2025, time.June, 9, 14, 59), true},
		{"resident monday 15:00 exclusive bound", "RUIZ, MARCOS", at(2025, time.June, 9, 15, 0), false},
		{"resident saturday 10:00 in window", "RUIZ, MARCOS", at(2025, time.June, 14, 10, 0), true},
		{"resident sunday 10:00 always payable", "RUIZ, MARCOS", at(2025, time.June, 8, 10, 0), false},
		{"non-resident monday 10:00 always payable", "GOMEZ, ANA", at(2025, time.June, 9, 10, 0), false},
	}

	r := liquidation.Resolver{
		Config: memstore.NewMemory(),
		Roster: testRoster(),
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			end := tc.start.Add(2 * time.Hour)
			e := liquidation.BillableEvent{
				PhysicianName: tc.phys,
				Date:          day(tc.start.Year(), tc.start.Month(), tc.start.Day()),
				Start:         tp(tc.start),
				End:           tp(end),
			}

			class, err := r.Resolve(context.Background(), &e, liquidation.SchemeHourly, june2025())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if class.TrainingHour != tc.training {
				t.Errorf("training=%v, want %v", class.TrainingHour, tc.training)
			}
			if class.Payable == tc.training {
				t.Errorf("training hours must not be payable")
			}
			if e.TrainingHour != tc.training {
				t.Errorf("event flag not set in place")
			}
			if !tc.training && len(class.Bands) == 0 {
				t.Errorf("payable interval should carry a band partition")
			}
		})
	}
}

// =============================================================================
// ROSTER MATCHING TESTS
// =============================================================================

func TestResolver_UnmatchedName_AggregatesUnderNormalizedKey(t *testing.T) {
	// GIVEN: A name with no roster record, default policy
	// WHEN: Resolving
	// THEN: The event keeps flowing under a normalized free-text key

	r := liquidation.Resolver{Config: memstore.NewMemory(), Roster: testRoster()}
	e := liquidation.BillableEvent{
		PhysicianName: "Dra. Pérez, Laura",
		Date:          day(2025, time.June, 9),
	}

	class, err := r.Resolve(context.Background(), &e, liquidation.SchemeProduction, june2025())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if class.ExcludePhysician {
		t.Fatal("aggregate policy must not exclude")
	}
	if e.Matched {
		t.Error("event should be flagged unmatched")
	}
	if e.PhysicianID != "unmatched:PEREZ, LAURA" {
		t.Errorf("unexpected aggregation key %q", e.PhysicianID)
	}
}

func TestResolver_UnmatchedName_ExcludePolicy(t *testing.T) {
	// GIVEN: The strict roster policy
	// WHEN: Resolving an unknown name
	// THEN: The event is marked for exclusion

	r := liquidation.Resolver{
		Config: memstore.NewMemory(),
		Roster: testRoster(),
		Policy: liquidation.RosterExclude,
	}
	e := liquidation.BillableEvent{PhysicianName: "NADIE, JUAN", Date: day(2025, time.June, 9)}

	class, err := r.Resolve(context.Background(), &e, liquidation.SchemeProduction, june2025())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !class.ExcludePhysician {
		t.Error("exclude policy should reject unmatched names")
	}
}

func TestResolver_AliasMatchesRosterRecord(t *testing.T) {
	// GIVEN: A roster record with an alias spelling
	// WHEN: Resolving the alias
	// THEN: The canonical physician ID is used

	roster := liquidation.NewStaticRoster(liquidation.Physician{
		ID: "p-gomez", Name: "GOMEZ, ANA", Aliases: []string{"GÓMEZ ANA"}, Active: true,
	})
	r := liquidation.Resolver{Config: memstore.NewMemory(), Roster: roster}
	e := liquidation.BillableEvent{PhysicianName: "gómez ana", Date: day(2025, time.June, 9)}

	if _, err := r.Resolve(context.Background(), &e, liquidation.SchemeProduction, june2025()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.Matched || e.PhysicianID != "p-gomez" {
		t.Errorf("alias not matched: matched=%v id=%s", e.Matched, e.PhysicianID)
	}
}

// =============================================================================
// TARIFF RESOLUTION TESTS
// =============================================================================

func TestResolver_TariffValueUsedWhenRowHasNoAmount(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemory()
	store.SaveTariff(ctx, liquidation.Tariff{
		Payer: "OSEP", Kind: "CONSULTA", Period: june2025(), UnitValue: d("950"),
	})

	r := liquidation.Resolver{Config: store, Roster: testRoster()}
	e := liquidation.BillableEvent{
		PhysicianName: "GOMEZ, ANA",
		PayerKey:      "OSEP",
		Date:          day(2025, time.June, 9),
	}

	class, err := r.Resolve(ctx, &e, liquidation.SchemeProduction, june2025())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !class.Payable || !class.Value.Equal(d("950")) || !class.UnitValue.Equal(d("950")) {
		t.Errorf("expected tariff value 950, got payable=%v value=%s", class.Payable, class.Value)
	}
	if class.Warning != nil {
		t.Errorf("unexpected warning: %v", class.Warning)
	}
}

func TestResolver_InvoicedAmountWinsOverTariff(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemory()
	store.SaveTariff(ctx, liquidation.Tariff{
		Payer: "OSEP", Kind: "CONSULTA", Period: june2025(), UnitValue: d("950"),
	})

	amount := d("1200")
	r := liquidation.Resolver{Config: store, Roster: testRoster()}
	e := liquidation.BillableEvent{
		PhysicianName:  "GOMEZ, ANA",
		PayerKey:       "OSEP",
		Date:           day(2025, time.June, 9),
		InvoicedAmount: &amount,
	}

	class, err := r.Resolve(ctx, &e, liquidation.SchemeProduction, june2025())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !class.Value.Equal(d("1200")) {
		t.Errorf("expected invoiced 1200, got %s", class.Value)
	}
}

func TestResolver_MissingTariff_NoAmount_ZeroNotPayable(t *testing.T) {
	// GIVEN: No tariff and no invoiced amount
	// WHEN: Resolving
	// THEN: Value 0, not payable, warning attached - the row stays for audit

	r := liquidation.Resolver{Config: memstore.NewMemory(), Roster: testRoster()}
	e := liquidation.BillableEvent{
		PhysicianName: "GOMEZ, ANA",
		PayerKey:      "SWISS MEDICAL",
		Date:          day(2025, time.June, 9),
		RowNumber:     7,
	}

	class, err := r.Resolve(context.Background(), &e, liquidation.SchemeProduction, june2025())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if class.Payable || !class.Value.IsZero() {
		t.Errorf("expected zero not-payable, got payable=%v value=%s", class.Payable, class.Value)
	}
	if class.Warning == nil || class.Warning.Missing != "tariff" || class.Warning.RowNumber != 7 {
		t.Errorf("expected attributable tariff warning, got %v", class.Warning)
	}
}
