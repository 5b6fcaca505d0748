/*
store.go - Persistence contracts for the liquidation engine

PURPOSE:
  Defines the interface between the engine and the database. The engine is
  agnostic to the storage backend: everything is expressed as get-by-key,
  list-by-filter and upsert. Two implementations exist:

  - store/memory.go:  In-memory, for tests and single-batch runs
  - store/sqlite:     SQLite, used by the server binary

UPSERT SEMANTICS:
  SaveEvent and friends are idempotent upserts keyed by ID. The edit buffer
  relies on this: repeated flushes of the same pending edit are safe.

DERIVED DATA:
  LiquidationLines and ExcludedRows are derived, so their stores expose
  Replace (delete-then-insert per batch) rather than row-level mutation.
  Invalidation is ReplaceLines with an empty slice.

SEE ALSO:
  - engine.go: Drives Replace* after each processing run
  - editbuffer.go: Flushes coalesced event upserts
*/
package liquidation

import "context"

// =============================================================================
// EVENT STORE
// =============================================================================

type EventStore interface {
	// SaveEvent upserts a single event by ID.
	SaveEvent(ctx context.Context, e BillableEvent) error

	// SaveEvents upserts a batch of events atomically.
	SaveEvents(ctx context.Context, events []BillableEvent) error

	// GetEvent returns an event by ID, ErrEventNotFound if absent.
	GetEvent(ctx context.Context, id EventID) (*BillableEvent, error)

	// ListEvents returns ALL events of a batch, including excluded and
	// deleted ones, ordered by row number. Callers filter with Admitted().
	ListEvents(ctx context.Context, batchID BatchID) ([]BillableEvent, error)
}

// =============================================================================
// BATCH STORE
// =============================================================================

type BatchStore interface {
	SaveBatch(ctx context.Context, b LiquidationBatch) error
	GetBatch(ctx context.Context, id BatchID) (*LiquidationBatch, error)

	// FindBatch locates the batch for a (specialty, period), nil if none.
	FindBatch(ctx context.Context, specialty string, period Period) (*LiquidationBatch, error)

	ListBatches(ctx context.Context) ([]LiquidationBatch, error)
}

// =============================================================================
// LINE STORE - derived output
// =============================================================================

type LineStore interface {
	// ReplaceLines swaps the full line set of a batch atomically.
	// An empty slice invalidates previously generated summaries.
	ReplaceLines(ctx context.Context, batchID BatchID, lines []LiquidationLine) error

	ListLines(ctx context.Context, batchID BatchID) ([]LiquidationLine, error)
}

// =============================================================================
// EXCLUSION STORE - derived audit trail
// =============================================================================

type ExclusionStore interface {
	ReplaceExclusions(ctx context.Context, batchID BatchID, rows []ExcludedRow) error
	ListExclusions(ctx context.Context, batchID BatchID) ([]ExcludedRow, error)
}

// =============================================================================
// CONFIG STORE - period-versioned configuration
// =============================================================================

type ConfigStore interface {
	// Tariffs. Save upserts by (payer, kind, period), so at most one
	// active value exists per tuple.
	GetTariff(ctx context.Context, payer PayerKey, kind string, period Period) (*Tariff, error)
	SaveTariff(ctx context.Context, t Tariff) error
	ListTariffs(ctx context.Context, period Period) ([]Tariff, error)

	// Rate cards, one per (specialty, period).
	GetRateCard(ctx context.Context, specialty string, period Period) (*RateCard, error)
	SaveRateCard(ctx context.Context, rc RateCard) error
	ListRateCards(ctx context.Context, period Period) ([]RateCard, error)

	// Additionals, one per (payer, specialty, period).
	GetAdditional(ctx context.Context, payer PayerKey, specialty string, period Period) (*Additional, error)
	SaveAdditional(ctx context.Context, a Additional) error
	ListAdditionals(ctx context.Context, period Period) ([]Additional, error)

	// Group assignments, at most one per (physician, period);
	// saving replaces any existing assignment for the tuple.
	GetGroupAssignment(ctx context.Context, physician PhysicianID, period Period) (*GroupAssignment, error)
	SaveGroupAssignment(ctx context.Context, g GroupAssignment) error
	ListGroupAssignments(ctx context.Context, period Period) ([]GroupAssignment, error)

	// Holidays feed the band partitioner's calendar.
	ListHolidays(ctx context.Context) ([]Holiday, error)
	SaveHoliday(ctx context.Context, h Holiday) error
	DeleteHoliday(ctx context.Context, id string) error
}

// =============================================================================
// STORE - Full contract bundle
// =============================================================================

// Store bundles every persistence capability the engine needs.
type Store interface {
	EventStore
	BatchStore
	LineStore
	ExclusionStore
	ConfigStore
}
