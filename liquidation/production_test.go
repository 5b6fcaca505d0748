package liquidation_test

import (
	"testing"

	"github.com/andes/liquidation-engine/liquidation"
)

// =============================================================================
// PRODUCTION FOLD TESTS
// =============================================================================

func consultation(physID, name, payer, value string) liquidation.ClassifiedEvent {
	return liquidation.ClassifiedEvent{
		Event: liquidation.BillableEvent{
			PhysicianID:   liquidation.PhysicianID(physID),
			PhysicianName: name,
			PayerKey:      liquidation.PayerKey(payer),
		},
		Class: liquidation.Classification{Payable: true, Value: d(value)},
	}
}

func TestProductionAggregator_RetentionAndAdditional(t *testing.T) {
	// GIVEN: Two consultations of 600 and 400 for one (physician, payer),
	//        retention 30%, additional 1500 at 50%
	// WHEN: Aggregating
	// THEN: gross 1000, retention 300, additional 750, net 700 + 750 = 1450

	additionals := map[liquidation.PayerKey]liquidation.Additional{
		"004 - DAMSU": {Payer: "004 - DAMSU", Base: d("1500"), Percentage: d("50")},
	}
	events := []liquidation.ClassifiedEvent{
		consultation("p-gomez", "GOMEZ, ANA", "004 - DAMSU", "600"),
		consultation("p-gomez", "GOMEZ, ANA", "004 - DAMSU", "400"),
	}

	pa := liquidation.ProductionAggregator{}
	lines := pa.Aggregate("b1", events, additionals)

	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	l := lines[0]
	if !l.Gross.Equal(d("1000")) {
		t.Errorf("gross = %s, want 1000", l.Gross)
	}
	if !l.Retention.Equal(d("300")) {
		t.Errorf("retention = %s, want 300", l.Retention)
	}
	if !l.Additional.Equal(d("750")) {
		t.Errorf("additional = %s, want 750", l.Additional)
	}
	if !l.Net.Equal(d("1450")) {
		t.Errorf("net = %s, want 1450", l.Net)
	}
	if !l.Quantity.Equal(d("2")) {
		t.Errorf("quantity = %s, want 2", l.Quantity)
	}
}

func TestProductionAggregator_AdditionalOncePerLine(t *testing.T) {
	// GIVEN: Three consultations for the same line and a configured additional
	// WHEN: Aggregating
	// THEN: The additional appears exactly once, not three times

	additionals := map[liquidation.PayerKey]liquidation.Additional{
		"OSEP": {Payer: "OSEP", Base: d("1000"), Percentage: d("20")},
	}
	events := []liquidation.ClassifiedEvent{
		consultation("p-gomez", "GOMEZ, ANA", "OSEP", "800"),
		consultation("p-gomez", "GOMEZ, ANA", "OSEP", "800"),
		consultation("p-gomez", "GOMEZ, ANA", "OSEP", "800"),
	}

	pa := liquidation.ProductionAggregator{}
	lines := pa.Aggregate("b1", events, additionals)

	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	// 2400 gross - 720 retention + 200 additional.
	if !lines[0].Net.Equal(d("1880")) {
		t.Errorf("net = %s, want 1880", lines[0].Net)
	}
	if !lines[0].Additional.Equal(d("200")) {
		t.Errorf("additional = %s, want 200 applied once", lines[0].Additional)
	}
}

func TestProductionAggregator_CustomRetentionPercentage(t *testing.T) {
	pa := liquidation.ProductionAggregator{RetentionPct: d("10")}
	lines := pa.Aggregate("b1", []liquidation.ClassifiedEvent{
		consultation("p-gomez", "GOMEZ, ANA", "OSEP", "1000"),
	}, nil)

	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if !lines[0].Retention.Equal(d("100")) || !lines[0].Net.Equal(d("900")) {
		t.Errorf("10%% retention: got retention %s net %s", lines[0].Retention, lines[0].Net)
	}
}

func TestProductionAggregator_NotPayableEventsAreSkipped(t *testing.T) {
	// An unconfigured-tariff row (value 0, not payable) must not create or
	// inflate a line.
	zero := consultation("p-gomez", "GOMEZ, ANA", "SWISS MEDICAL", "0")
	zero.Class.Payable = false

	pa := liquidation.ProductionAggregator{}
	lines := pa.Aggregate("b1", []liquidation.ClassifiedEvent{zero}, nil)
	if len(lines) != 0 {
		t.Fatalf("expected no lines, got %v", lines)
	}
}

func TestSortLines_DeterministicOrder(t *testing.T) {
	// GIVEN: Events arriving in arbitrary physician/payer order
	// WHEN: Aggregating twice with shuffled input
	// THEN: Both runs yield the same ordered lines

	forward := []liquidation.ClassifiedEvent{
		consultation("p-a", "ALONSO", "OSEP", "100"),
		consultation("p-b", "BRAVO", "004 - DAMSU", "200"),
		consultation("p-a", "ALONSO", "004 - DAMSU", "300"),
	}
	backward := []liquidation.ClassifiedEvent{forward[2], forward[1], forward[0]}

	pa := liquidation.ProductionAggregator{}
	first := pa.Aggregate("b1", forward, nil)
	second := pa.Aggregate("b1", backward, nil)

	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("expected 3 lines each, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].PhysicianID != second[i].PhysicianID || first[i].PayerKey != second[i].PayerKey {
			t.Errorf("line %d differs: %s/%s vs %s/%s", i,
				first[i].PhysicianID, first[i].PayerKey, second[i].PhysicianID, second[i].PayerKey)
		}
	}
	if first[0].PhysicianID != "p-a" || first[0].PayerKey != "004 - DAMSU" {
		t.Errorf("unexpected first line %s/%s", first[0].PhysicianID, first[0].PayerKey)
	}
}
