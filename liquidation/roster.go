/*
roster.go - Physician roster and unmatched-name policy

PURPOSE:
  Source rows reference physicians by free-text name. The roster resolves
  those names to stable physician records, which carry the residency flag
  the training-hour rule depends on.

UNMATCHED NAMES:
  What to do with a name the roster cannot resolve is a policy decision,
  not a hardcoded behavior:

  RosterAggregate (default):
    Aggregate under a normalized free-text key. Matches the historical
    behavior reviewers expect: the physician still appears in the output.

  RosterFlag:
    Same as aggregate, but the event is marked unmatched so the review
    screen can highlight it.

  RosterExclude:
    Reject the row. Strictest option for clinics that require a complete
    roster before liquidation.

SEE ALSO:
  - resolver.go: Uses IsResident for the training-hour rule
  - engine.go: Applies the policy during classification
*/
package liquidation

import (
	"context"
	"strings"
)

// =============================================================================
// PHYSICIAN
// =============================================================================

// Physician is a roster record.
type Physician struct {
	ID       PhysicianID
	Name     string
	Aliases  []string // Alternate spellings seen in source files
	Resident bool     // Residents are not paid for weekday training hours
	Active   bool
}

// =============================================================================
// ROSTER
// =============================================================================

// Roster resolves free-text physician names to roster records.
type Roster interface {
	// FindByName resolves a name (or alias), case-insensitively.
	// Returns nil when no record matches; that is not an error.
	FindByName(ctx context.Context, name string) (*Physician, error)

	// Get returns the record for a known ID.
	Get(ctx context.Context, id PhysicianID) (*Physician, error)
}

// RosterPolicy decides what happens to events whose physician name has no
// roster match.
type RosterPolicy string

const (
	RosterAggregate RosterPolicy = "aggregate" // Aggregate by normalized name (default)
	RosterFlag      RosterPolicy = "flag"      // Aggregate but mark unmatched
	RosterExclude   RosterPolicy = "exclude"   // Reject the row
)

// physicianNameKey collapses a free-text physician name to a stable key:
// normalized casing/whitespace/diacritics, honorifics stripped. Used both
// for unmatched-name aggregation and for deduplication before the roster
// has resolved the name.
func physicianNameKey(name string) string {
	n := normalizeLabel(name)
	n = strings.TrimPrefix(n, "DR. ")
	n = strings.TrimPrefix(n, "DRA. ")
	n = strings.TrimPrefix(n, "DR ")
	n = strings.TrimPrefix(n, "DRA ")
	return n
}

// NormalizePhysicianName produces the aggregation key for unmatched names.
func NormalizePhysicianName(name string) PhysicianID {
	return PhysicianID("unmatched:" + physicianNameKey(name))
}

// =============================================================================
// STATIC ROSTER - In-memory implementation
// =============================================================================

// StaticRoster is a map-backed Roster for tests and single-batch runs where
// the roster is loaded up front.
type StaticRoster struct {
	byID   map[PhysicianID]*Physician
	byName map[string]*Physician
}

func NewStaticRoster(physicians ...Physician) *StaticRoster {
	r := &StaticRoster{
		byID:   make(map[PhysicianID]*Physician),
		byName: make(map[string]*Physician),
	}
	for i := range physicians {
		p := physicians[i]
		r.byID[p.ID] = &p
		r.byName[normalizeLabel(p.Name)] = &p
		for _, alias := range p.Aliases {
			r.byName[normalizeLabel(alias)] = &p
		}
	}
	return r
}

func (r *StaticRoster) FindByName(_ context.Context, name string) (*Physician, error) {
	return r.byName[normalizeLabel(name)], nil
}

func (r *StaticRoster) Get(_ context.Context, id PhysicianID) (*Physician, error) {
	return r.byID[id], nil
}
