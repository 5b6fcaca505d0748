/*
errors.go - Centralized error types for the liquidation engine

PURPOSE:
  All error types in one place. The taxonomy mirrors how each failure is
  handled, which is the part that matters operationally:

  1. Validation problems  - the ROW is excluded with a reason code; the
                            batch keeps going. These are not Go errors at
                            all, they are ReasonCodes (types.go).
  2. Missing configuration - resolved value becomes 0 / not payable and a
                            warning is recorded. Never fatal.
  3. Persistence failures  - retried with backoff by the edit buffer and
                            surfaced as a transient saving state.
  4. Integrity failures    - batch totals disagree with summed row data
                            after a recompute. This is a programming defect
                            in an aggregator: logged loudly, never silently
                            re-derived.

USAGE:
  if errors.Is(err, liquidation.ErrBatchFinalized) { ... }

SEE ALSO:
  - resolver.go: Emits configuration warnings
  - recompute.go: Raises IntegrityError on reconciliation failure
  - editbuffer.go: Retry handling for persistence errors
*/
package liquidation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrBatchNotFound is returned when a referenced batch doesn't exist.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrEventNotFound is returned when a referenced event doesn't exist.
	ErrEventNotFound = errors.New("event not found")

	// ErrInvalidTransition is returned for a disallowed batch state change.
	ErrInvalidTransition = errors.New("invalid batch state transition")

	// ErrBatchFinalized is returned when editing a batch in a final state.
	ErrBatchFinalized = errors.New("batch is finalized")

	// ErrSamePeriodCopy is returned when copying configuration onto itself.
	ErrSamePeriodCopy = errors.New("cannot copy configuration onto the same period")

	// ErrStoreUnavailable wraps transport-level persistence failures.
	// The edit buffer retries these with backoff.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConfigWarning records a non-fatal configuration gap for one event.
// Warnings are enumerable per batch and attributable to a source row.
type ConfigWarning struct {
	EventID   EventID
	RowNumber int
	Payer     PayerKey
	Specialty string
	Period    Period
	Missing   string // "tariff", "additional", "rate_card"
}

func (w ConfigWarning) String() string {
	return fmt.Sprintf("row %d: no %s configured for %s / %s in %s",
		w.RowNumber, w.Missing, w.Payer, w.Specialty, w.Period)
}

// IntegrityError reports that denormalized batch totals do not reconcile
// with the sum over admitted events. This signals an aggregator bug and
// must never be corrected silently.
type IntegrityError struct {
	BatchID       BatchID
	ExpectedGross decimal.Decimal // Σ admitted event contributions
	StoredGross   decimal.Decimal // denormalized batch total
	ExpectedRows  int
	StoredRows    int
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("batch %s totals do not reconcile: gross %s != %s, rows %d != %d",
		e.BatchID, e.StoredGross, e.ExpectedGross, e.StoredRows, e.ExpectedRows)
}

// TransitionError carries the attempted state change.
type TransitionError struct {
	BatchID BatchID
	From    BatchState
	To      BatchState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("batch %s: cannot transition %s -> %s", e.BatchID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the operation might succeed on retry. The edit
// buffer keeps retrying these with backoff and drops everything else.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBatchNotFound) || errors.Is(err, ErrEventNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrBatchFinalized) ||
		errors.Is(err, ErrSamePeriodCopy)
}
