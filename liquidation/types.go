/*
Package liquidation provides the core liquidation calculation engine.

PURPOSE:
  This package contains the deterministic rules that turn a normalized list
  of billable events (consultations or worked-hour intervals) into
  per-physician, per-payer monetary liquidation lines. Four compensation
  schemes are supported concurrently:
  - Production with retention (e.g. pediatrics outpatient billing)
  - Hourly-banded with guaranteed minimum (e.g. clinical on-call shifts)
  - Fixed-fee-per-admission with first-come-first-served deduplication
  - Group-percentage (gross billing split by fixed group share)

KEY CONCEPTS IN THIS FILE (types.go):
  - BillableEvent: One clinical act (consultation or worked interval)
  - LiquidationLine: Computed output per (physician, payer)
  - ExcludedRow: A row rejected by the filter, with its reason
  - Scheme: Which compensation scheme governs a specialty

DESIGN PRINCIPLES:
  1. Determinism: The same admitted-row set always produces the same lines
  2. Precision: Uses decimal.Decimal to avoid floating-point money errors
  3. Type Safety: Strong typing for IDs prevents mixing physician/payer keys
  4. Auditability: Every exclusion carries the original row number and payload

USAGE:
  event := liquidation.BillableEvent{
      PhysicianID: "phys-123",
      PayerKey:    "004 - DAMSU",
      Date:        time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC),
  }

SEE ALSO:
  - resolver.go: Tariff and time-band classification per event
  - filter.go: Exclusion and deduplication pass
  - engine.go: Full classify-and-aggregate pipeline
*/
package liquidation

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EventID string
type BatchID string
type PhysicianID string
type PatientID string

// PayerKey is the canonical, normalized form of a payer label.
// Raw spreadsheet labels are collapsed to a PayerKey by NormalizePayer.
type PayerKey string

// =============================================================================
// SCHEME - Compensation scheme governing a specialty
// =============================================================================

type Scheme string

const (
	// SchemeProduction: sum invoiced amounts, apply retention, add the
	// configured additional once per (physician, payer, specialty, period).
	SchemeProduction Scheme = "production"

	// SchemeHourly: partition worked intervals into time bands, pay band
	// rates with a blended guaranteed minimum. Physicians holding a
	// GroupAssignment for the period are paid a fixed share of gross instead.
	SchemeHourly Scheme = "hourly"

	// SchemeAdmission: one fixed fee per deduplicated admission.
	SchemeAdmission Scheme = "admission"
)

// =============================================================================
// BILLABLE EVENT - One clinical act
// =============================================================================

// BillableEvent is a consultation or a worked time interval, already parsed
// from a source spreadsheet row by the ingestion collaborator.
//
// Events are mutated in place when a reviewer edits payer/physician/patient
// fields, soft-excluded when they fail validation, and soft-deleted only by
// explicit user action. Every mutation goes through the recompute coordinator.
type BillableEvent struct {
	ID        EventID
	BatchID   BatchID
	RowNumber int // Original row number in the source file, for audit

	// Physician reference. Matched=false means the roster lookup failed and
	// PhysicianID holds a normalized free-text key (see RosterPolicy).
	PhysicianID   PhysicianID
	PhysicianName string
	Matched       bool

	// Payer: raw label as ingested, and its canonical key.
	Payer    string
	PayerKey PayerKey

	Specialty string

	// Date is the day of the act (day granularity, UTC).
	Date time.Time

	// Start/End bound the worked interval for hourly schemes. Nil for
	// consultation rows.
	Start *time.Time
	End   *time.Time

	// PatientID is used for admission deduplication.
	PatientID PatientID

	// InvoicedAmount is the raw invoiced value from the source row.
	// Nil means the scheme derives the value from configuration.
	InvoicedAmount *decimal.Decimal

	// TrainingHour marks a resident shift inside the non-payable training
	// window. Computed by the resolver, never set by ingestion.
	TrainingHour bool

	// Soft flags. Excluded rows keep their data for operator review;
	// deleted rows are removed from totals but retained in the store.
	Excluded        bool
	ExclusionReason ReasonCode
	Deleted         bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Duration returns the worked interval length. Intervals that cross midnight
// (End earlier than Start on the clock) are normalized by rolling End into
// the next day. Equal Start and End is a zero-length interval, not a full
// day; the filter rejects those.
func (e *BillableEvent) Duration() time.Duration {
	if e.Start == nil || e.End == nil {
		return 0
	}
	start, end := *e.Start, *e.End
	if end.Equal(start) {
		return 0
	}
	if end.Before(start) {
		end = end.Add(24 * time.Hour)
	}
	return end.Sub(start)
}

// Hours returns the worked duration in fractional hours as a decimal.
func (e *BillableEvent) Hours() decimal.Decimal {
	return decimal.NewFromFloat(e.Duration().Hours())
}

// Admitted reports whether the event participates in aggregation and totals.
func (e *BillableEvent) Admitted() bool {
	return !e.Excluded && !e.Deleted
}

// DedupKey identifies an admission for first-come-first-served deduplication:
// same patient + physician + timestamp is the same admission. The physician
// dimension is the normalized source name, not the roster ID: the filter runs
// before roster resolution, and the name key is the one field that is stable
// on both sides of it.
func (e *BillableEvent) DedupKey() string {
	at := e.Date
	if e.Start != nil {
		at = *e.Start
	}
	return string(e.PatientID) + "|" + physicianNameKey(e.PhysicianName) + "|" + at.UTC().Format(time.RFC3339)
}

// =============================================================================
// LIQUIDATION LINE - Computed output per (physician, payer)
// =============================================================================

// LiquidationLine is the derived result of aggregation. Lines are never
// edited independently; they are regenerated whenever their inputs change.
type LiquidationLine struct {
	BatchID       BatchID
	PhysicianID   PhysicianID
	PhysicianName string
	PayerKey      PayerKey
	Scheme        Scheme

	// Quantity is scheme-dependent: consultations for production, worked
	// hours for hourly, deduplicated admissions for admission.
	Quantity  decimal.Decimal
	UnitValue decimal.Decimal

	Gross      decimal.Decimal
	Retention  decimal.Decimal
	Additional decimal.Decimal
	Net        decimal.Decimal
}

// =============================================================================
// EXCLUDED ROW - Filter rejection with reason
// =============================================================================

// ReasonCode identifies why a row was excluded. Codes are ordered by
// priority in filter.go; the first matching reason wins.
type ReasonCode string

const (
	ReasonNone         ReasonCode = ""
	ReasonNoDate       ReasonCode = "sin_fecha"      // no parseable date
	ReasonInvalidDate  ReasonCode = "fecha_invalida" // date outside the batch period
	ReasonZeroDuration ReasonCode = "duracion_cero"  // zero-length interval (hourly only)
	ReasonNoStartTime  ReasonCode = "sin_hora"       // missing start time (hourly only)
	ReasonSelfPay      ReasonCode = "particular"     // self-pay / no-coverage payer
	ReasonDuplicate    ReasonCode = "duplicado"      // later copy of an admitted admission

	// ReasonUnknownPhysician is emitted only under the RosterExclude policy,
	// when a physician name has no roster match.
	ReasonUnknownPhysician ReasonCode = "profesional_desconocido"
)

// ExcludedRow records a rejected row for operator review. The payload keeps
// the original column-label to raw-value mapping so nothing is lost.
type ExcludedRow struct {
	BatchID   BatchID
	RowNumber int
	Reason    ReasonCode
	EventID   EventID
	Payload   map[string]string
}

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

// MustDecimal parses a decimal literal, returning zero on malformed input.
// Intended for constants and configuration defaults.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

var (
	hundred = decimal.NewFromInt(100)
)
