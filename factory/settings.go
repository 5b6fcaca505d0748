/*
Package factory provides JSON to Go scheme-settings conversion.

PURPOSE:
  Converts JSON specialty configurations into liquidation.SchemeSettings and
  roster records. This enables configuration without code changes - the
  billing office can define how a specialty is liquidated in JSON, and the
  factory creates the proper Go structs.

WHY JSON?
  - Non-developers can modify specialty configuration
  - Easy integration with admin UI
  - Version control for configuration definitions
  - Database storage of configs

JSON SCHEMA:
  {
    "specialty": "Pediatría",
    "scheme": "production",
    "retention_pct": 30,
    "consultation_kind": "CONSULTA",
    "self_pay_patterns": ["PARTICULAR"],
    "roster_policy": "aggregate"
  }

  {
    "specialty": "Clínica Médica",
    "scheme": "hourly"
  }

  {
    "specialty": "Internación",
    "scheme": "admission",
    "admission_fee": "3500"
  }

KEY FEATURES:
  - Validates scheme and roster-policy names
  - Sets sensible defaults (production, standard retention)
  - Monetary fields accepted as JSON numbers or strings

USAGE:
  f := factory.NewSettingsFactory()

  settings, err := f.ParseSettings(jsonString)

  engine := &liquidation.Engine{Settings: settings, ...}

SEE ALSO:
  - liquidation/engine.go: SchemeSettings consumer
  - liquidation/roster.go: Roster and RosterPolicy definitions
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/andes/liquidation-engine/liquidation"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// SettingsJSON is the JSON representation of one specialty's configuration.
type SettingsJSON struct {
	Specialty        string   `json:"specialty"`
	Scheme           string   `json:"scheme"` // production, hourly, admission
	RetentionPct     *Amount  `json:"retention_pct,omitempty"`
	AdmissionFee     *Amount  `json:"admission_fee,omitempty"`
	ConsultationKind string   `json:"consultation_kind,omitempty"`
	SelfPayPatterns  []string `json:"self_pay_patterns,omitempty"`
	RosterPolicy     string   `json:"roster_policy,omitempty"` // aggregate, flag, exclude
}

// PhysicianJSON is the JSON representation of a roster record.
type PhysicianJSON struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Aliases  []string `json:"aliases,omitempty"`
	Resident bool     `json:"resident,omitempty"`
	Active   *bool    `json:"active,omitempty"` // default true
}

// Amount is a decimal that accepts both JSON numbers and strings, so
// configuration files can write 30 or "30.5" interchangeably.
type Amount struct {
	decimal.Decimal
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid amount %s: %w", string(data), err)
	}
	a.Decimal = d
	return nil
}

// =============================================================================
// SETTINGS FACTORY
// =============================================================================

// SettingsFactory converts JSON configurations to Go structs.
type SettingsFactory struct{}

// NewSettingsFactory creates a new settings factory.
func NewSettingsFactory() *SettingsFactory {
	return &SettingsFactory{}
}

// ParseSettings parses a JSON array of specialty configurations into the
// settings map the engine consumes, keyed by normalized specialty name.
func (f *SettingsFactory) ParseSettings(jsonStr string) (map[string]liquidation.SchemeSettings, error) {
	var entries []SettingsJSON
	if err := json.Unmarshal([]byte(jsonStr), &entries); err != nil {
		return nil, fmt.Errorf("failed to parse settings JSON: %w", err)
	}

	settings := make(map[string]liquidation.SchemeSettings, len(entries))
	for _, entry := range entries {
		s, err := f.FromJSON(entry)
		if err != nil {
			return nil, err
		}
		settings[liquidation.SettingsKey(entry.Specialty)] = s
	}
	return settings, nil
}

// FromJSON converts one SettingsJSON entry to SchemeSettings.
func (f *SettingsFactory) FromJSON(sj SettingsJSON) (liquidation.SchemeSettings, error) {
	if sj.Specialty == "" {
		return liquidation.SchemeSettings{}, fmt.Errorf("settings entry missing specialty")
	}

	s := liquidation.DefaultSettings(sj.Specialty)

	switch sj.Scheme {
	case "", "production":
		s.Scheme = liquidation.SchemeProduction
	case "hourly":
		s.Scheme = liquidation.SchemeHourly
	case "admission":
		s.Scheme = liquidation.SchemeAdmission
	default:
		return s, fmt.Errorf("specialty %s: unknown scheme %q", sj.Specialty, sj.Scheme)
	}

	if sj.RetentionPct != nil {
		s.RetentionPct = sj.RetentionPct.Decimal
	}
	if sj.AdmissionFee != nil {
		s.AdmissionFee = sj.AdmissionFee.Decimal
	}
	if sj.ConsultationKind != "" {
		s.ConsultationKind = sj.ConsultationKind
	}
	if len(sj.SelfPayPatterns) > 0 {
		s.SelfPayPatterns = sj.SelfPayPatterns
	}

	switch sj.RosterPolicy {
	case "":
		// keep default
	case string(liquidation.RosterAggregate):
		s.RosterPolicy = liquidation.RosterAggregate
	case string(liquidation.RosterFlag):
		s.RosterPolicy = liquidation.RosterFlag
	case string(liquidation.RosterExclude):
		s.RosterPolicy = liquidation.RosterExclude
	default:
		return s, fmt.Errorf("specialty %s: unknown roster policy %q", sj.Specialty, sj.RosterPolicy)
	}

	return s, nil
}

// ParseRoster parses a JSON array of physician records into a StaticRoster.
func (f *SettingsFactory) ParseRoster(jsonStr string) (*liquidation.StaticRoster, error) {
	var entries []PhysicianJSON
	if err := json.Unmarshal([]byte(jsonStr), &entries); err != nil {
		return nil, fmt.Errorf("failed to parse roster JSON: %w", err)
	}

	physicians := make([]liquidation.Physician, 0, len(entries))
	for _, entry := range entries {
		if entry.ID == "" || entry.Name == "" {
			return nil, fmt.Errorf("roster entry missing id or name")
		}
		active := true
		if entry.Active != nil {
			active = *entry.Active
		}
		physicians = append(physicians, liquidation.Physician{
			ID:       liquidation.PhysicianID(entry.ID),
			Name:     entry.Name,
			Aliases:  entry.Aliases,
			Resident: entry.Resident,
			Active:   active,
		})
	}
	return liquidation.NewStaticRoster(physicians...), nil
}

// =============================================================================
// PRESETS - Convenience JSON builders
// =============================================================================

// ProductionJSON builds a production-scheme configuration entry.
func ProductionJSON(specialty string, retentionPct int) string {
	return fmt.Sprintf(`{"specialty": %q, "scheme": "production", "retention_pct": %d}`,
		specialty, retentionPct)
}

// HourlyJSON builds an hourly-scheme configuration entry.
func HourlyJSON(specialty string) string {
	return fmt.Sprintf(`{"specialty": %q, "scheme": "hourly"}`, specialty)
}

// AdmissionJSON builds an admission-scheme configuration entry.
func AdmissionJSON(specialty string, fee string) string {
	return fmt.Sprintf(`{"specialty": %q, "scheme": "admission", "admission_fee": %q}`,
		specialty, fee)
}
