package liquidation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andes/liquidation-engine/liquidation"
	memstore "github.com/andes/liquidation-engine/liquidation/store"
)

// =============================================================================
// PERIOD COPY TESTS
// =============================================================================

func TestCopyConfigToPeriod_ScalesMonetaryValues(t *testing.T) {
	// GIVEN: June configuration: a 800 tariff, a rate card, and an additional
	// WHEN: Copying into July with a 10% raise
	// THEN: Unit values, band rates, the minimum and the additional base all
	//       scale; the additional percentage does not

	ctx := context.Background()
	s := memstore.NewMemory()
	from, to := june2025(), liquidation.NewPeriod(time.July, 2025)

	s.SaveTariff(ctx, liquidation.Tariff{Payer: "OSEP", Kind: "CONSULTA", Period: from, UnitValue: d("800")})
	s.SaveRateCard(ctx, liquidation.RateCard{
		Specialty: "clinica medica",
		Period:    from,
		Rates: map[liquidation.Band]decimal.Decimal{
			liquidation.BandWeekdayDay: d("500"),
		},
		GuaranteedMinimum: d("600"),
	})
	s.SaveAdditional(ctx, liquidation.Additional{
		Payer: "OSEP", Specialty: "pediatria", Period: from, Base: d("1000"), Percentage: d("50"),
	})

	copied, err := liquidation.CopyConfigToPeriod(ctx, s, from, to, d("10"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if copied != 3 {
		t.Errorf("copied = %d, want 3", copied)
	}

	tariff, err := s.GetTariff(ctx, "OSEP", "CONSULTA", to)
	if err != nil || tariff == nil {
		t.Fatalf("tariff not copied: %v", err)
	}
	if !tariff.UnitValue.Equal(d("880")) {
		t.Errorf("tariff = %s, want 880", tariff.UnitValue)
	}

	card, err := s.GetRateCard(ctx, "clinica medica", to)
	if err != nil || card == nil {
		t.Fatalf("rate card not copied: %v", err)
	}
	if !card.Rates[liquidation.BandWeekdayDay].Equal(d("550")) {
		t.Errorf("band rate = %s, want 550", card.Rates[liquidation.BandWeekdayDay])
	}
	if !card.GuaranteedMinimum.Equal(d("660")) {
		t.Errorf("minimum = %s, want 660", card.GuaranteedMinimum)
	}

	add, err := s.GetAdditional(ctx, "OSEP", "pediatria", to)
	if err != nil || add == nil {
		t.Fatalf("additional not copied: %v", err)
	}
	if !add.Base.Equal(d("1100")) {
		t.Errorf("additional base = %s, want 1100", add.Base)
	}
	if !add.Percentage.Equal(d("50")) {
		t.Errorf("percentage must never scale, got %s", add.Percentage)
	}
}

func TestCopyConfigToPeriod_ExistingTargetRowsAreKept(t *testing.T) {
	// GIVEN: July already holds a hand-entered OSEP tariff
	// WHEN: Copying June into July
	// THEN: The existing row wins and is not counted as copied

	ctx := context.Background()
	s := memstore.NewMemory()
	from, to := june2025(), liquidation.NewPeriod(time.July, 2025)

	s.SaveTariff(ctx, liquidation.Tariff{Payer: "OSEP", Kind: "CONSULTA", Period: from, UnitValue: d("800")})
	s.SaveTariff(ctx, liquidation.Tariff{Payer: "OSEP", Kind: "CONSULTA", Period: to, UnitValue: d("999")})

	copied, err := liquidation.CopyConfigToPeriod(ctx, s, from, to, decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if copied != 0 {
		t.Errorf("copied = %d, want 0", copied)
	}
	tariff, _ := s.GetTariff(ctx, "OSEP", "CONSULTA", to)
	if tariff == nil || !tariff.UnitValue.Equal(d("999")) {
		t.Errorf("existing target row was overwritten: %v", tariff)
	}
}

func TestCopyConfigToPeriod_SourceIsNeverMutated(t *testing.T) {
	ctx := context.Background()
	s := memstore.NewMemory()
	from, to := june2025(), liquidation.NewPeriod(time.July, 2025)

	s.SaveTariff(ctx, liquidation.Tariff{Payer: "OSEP", Kind: "CONSULTA", Period: from, UnitValue: d("800")})

	if _, err := liquidation.CopyConfigToPeriod(ctx, s, from, to, d("25")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	src, _ := s.GetTariff(ctx, "OSEP", "CONSULTA", from)
	if src == nil || !src.UnitValue.Equal(d("800")) {
		t.Errorf("source period changed: %v", src)
	}
}

func TestCopyConfigToPeriod_SamePeriodRejected(t *testing.T) {
	ctx := context.Background()
	s := memstore.NewMemory()

	_, err := liquidation.CopyConfigToPeriod(ctx, s, june2025(), june2025(), decimal.Zero)
	if !errors.Is(err, liquidation.ErrSamePeriodCopy) {
		t.Fatalf("expected ErrSamePeriodCopy, got %v", err)
	}
}

// =============================================================================
// CONFIG RECORD TESTS
// =============================================================================

func TestAdditional_Payable(t *testing.T) {
	a := liquidation.Additional{Base: d("1500"), Percentage: d("50")}
	if !a.Payable().Equal(d("750")) {
		t.Errorf("payable = %s, want 750", a.Payable())
	}
}

func TestGroupAssignment_Share(t *testing.T) {
	g := liquidation.GroupAssignment{SharePercent: d("70")}
	if !g.Share().Equal(d("0.7")) {
		t.Errorf("share = %s, want 0.7", g.Share())
	}
}

func TestRateCard_RateOnNilCard(t *testing.T) {
	var rc *liquidation.RateCard
	if !rc.Rate(liquidation.BandWeekdayDay).IsZero() {
		t.Error("nil rate card must rate at zero")
	}
}
