package factory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/andes/liquidation-engine/liquidation"
)

// =============================================================================
// SETTINGS PARSING TESTS
// =============================================================================

func TestParseSettings_FullConfiguration(t *testing.T) {
	// GIVEN: One entry per scheme, with accents in the specialty names
	// WHEN: Parsing
	// THEN: Entries land under their normalized keys with typed fields

	f := NewSettingsFactory()
	settings, err := f.ParseSettings(`[
		{
			"specialty": "Pediatría",
			"scheme": "production",
			"retention_pct": 30,
			"self_pay_patterns": ["PARTICULAR", "SIN COBERTURA"],
			"roster_policy": "flag"
		},
		{"specialty": "Clínica Médica", "scheme": "hourly"},
		{"specialty": "Internación", "scheme": "admission", "admission_fee": "3500"}
	]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(settings) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(settings))
	}

	ped, ok := settings[liquidation.SettingsKey("pediatria")]
	if !ok {
		t.Fatal("accented specialty not reachable through its normalized key")
	}
	if ped.Scheme != liquidation.SchemeProduction {
		t.Errorf("scheme = %s", ped.Scheme)
	}
	if !ped.RetentionPct.Equal(liquidation.MustDecimal("30")) {
		t.Errorf("retention = %s", ped.RetentionPct)
	}
	if ped.RosterPolicy != liquidation.RosterFlag {
		t.Errorf("roster policy = %s", ped.RosterPolicy)
	}
	if len(ped.SelfPayPatterns) != 2 {
		t.Errorf("self-pay patterns = %v", ped.SelfPayPatterns)
	}

	if s := settings[liquidation.SettingsKey("Clínica Médica")]; s.Scheme != liquidation.SchemeHourly {
		t.Errorf("hourly scheme = %s", s.Scheme)
	}
	adm := settings[liquidation.SettingsKey("Internación")]
	if adm.Scheme != liquidation.SchemeAdmission || !adm.AdmissionFee.Equal(liquidation.MustDecimal("3500")) {
		t.Errorf("admission settings = %+v", adm)
	}
}

func TestParseSettings_DefaultsWhenFieldsOmitted(t *testing.T) {
	f := NewSettingsFactory()
	settings, err := f.ParseSettings(`[{"specialty": "Pediatría"}]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := settings[liquidation.SettingsKey("Pediatría")]
	if s.Scheme != liquidation.SchemeProduction {
		t.Errorf("default scheme = %s, want production", s.Scheme)
	}
	if s.RosterPolicy != liquidation.RosterAggregate {
		t.Errorf("default roster policy = %s, want aggregate", s.RosterPolicy)
	}
}

func TestParseSettings_Rejections(t *testing.T) {
	f := NewSettingsFactory()

	cases := []struct {
		name string
		json string
	}{
		{"missing specialty", `[{"scheme": "production"}]`},
		{"unknown scheme", `[{"specialty": "X", "scheme": "per-click"}]`},
		{"unknown roster policy", `[{"specialty": "X", "roster_policy": "drop"}]`},
		{"malformed json", `{not json`},
	}
	for _, tc := range cases {
		if _, err := f.ParseSettings(tc.json); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestPresets_RoundTripThroughParser(t *testing.T) {
	f := NewSettingsFactory()
	payload := "[" + ProductionJSON("Pediatría", 30) + "," +
		HourlyJSON("Clínica Médica") + "," +
		AdmissionJSON("Internación", "3500") + "]"

	settings, err := f.ParseSettings(payload)
	if err != nil {
		t.Fatalf("presets should parse: %v", err)
	}
	if len(settings) != 3 {
		t.Errorf("expected 3 entries, got %d", len(settings))
	}
}

// =============================================================================
// AMOUNT TESTS
// =============================================================================

func TestAmount_NumberOrString(t *testing.T) {
	cases := []struct {
		raw, want string
	}{
		{`30`, "30"},
		{`"30.5"`, "30.5"},
		{`3500.25`, "3500.25"},
	}
	for _, tc := range cases {
		var a Amount
		if err := json.Unmarshal([]byte(tc.raw), &a); err != nil {
			t.Errorf("Unmarshal(%s): %v", tc.raw, err)
			continue
		}
		if !a.Equal(liquidation.MustDecimal(tc.want)) {
			t.Errorf("Amount(%s) = %s, want %s", tc.raw, a, tc.want)
		}
	}

	var a Amount
	if err := json.Unmarshal([]byte(`"treinta"`), &a); err == nil {
		t.Error("non-numeric string should fail")
	}
}

// =============================================================================
// ROSTER PARSING TESTS
// =============================================================================

func TestParseRoster(t *testing.T) {
	f := NewSettingsFactory()
	roster, err := f.ParseRoster(`[
		{"id": "p-gomez", "name": "GOMEZ, ANA", "aliases": ["GÓMEZ ANA"]},
		{"id": "p-ruiz", "name": "RUIZ, MARCOS", "resident": true, "active": false}
	]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	byAlias, err := roster.FindByName(ctx, "gómez ana")
	if err != nil || byAlias == nil || byAlias.ID != "p-gomez" {
		t.Errorf("alias lookup failed: %v %v", byAlias, err)
	}
	if !byAlias.Active {
		t.Error("active should default true")
	}

	ruiz, _ := roster.Get(ctx, "p-ruiz")
	if ruiz == nil || !ruiz.Resident || ruiz.Active {
		t.Errorf("explicit fields lost: %+v", ruiz)
	}
}

func TestParseRoster_RequiresIDAndName(t *testing.T) {
	f := NewSettingsFactory()
	if _, err := f.ParseRoster(`[{"name": "GOMEZ, ANA"}]`); err == nil {
		t.Error("missing id should fail")
	}
	if _, err := f.ParseRoster(`[{"id": "p-1"}]`); err == nil {
		t.Error("missing name should fail")
	}
}
