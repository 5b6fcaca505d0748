/*
batch.go - Liquidation batch and its state machine

PURPOSE:
  A LiquidationBatch groups all billable events for one (specialty, month,
  year) and owns the review lifecycle:

    borrador -> procesando -> pendiente_revision -> revisado
             -> listo_para_liquidar -> finalizada

  plus a terminal "error" state reachable from any non-final state.

  borrador -> procesando -> pendiente_revision is driven synchronously by
  the processing pipeline; every other transition is an explicit operator
  action. Finalized batches are immutable.

TOTALS:
  The batch carries denormalized totals (row count, gross, net) that must
  always equal the sum over its admitted, non-deleted events. The recompute
  coordinator verifies this after every recompute; a mismatch is an
  IntegrityError, never silently patched.

SEE ALSO:
  - engine.go: Sets totals during processing
  - recompute.go: Re-verifies totals after edits
*/
package liquidation

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BATCH STATE
// =============================================================================

type BatchState string

const (
	StateDraft      BatchState = "borrador"
	StateProcessing BatchState = "procesando"
	StateReview     BatchState = "pendiente_revision"
	StateReviewed   BatchState = "revisado"
	StateReady      BatchState = "listo_para_liquidar"
	StateFinalized  BatchState = "finalizada"
	StateError      BatchState = "error"
)

// allowedTransitions lists the forward edges of the lifecycle. The error
// state is handled separately: reachable from any non-final state.
var allowedTransitions = map[BatchState][]BatchState{
	StateDraft:      {StateProcessing},
	StateProcessing: {StateReview},
	StateReview:     {StateReviewed},
	StateReviewed:   {StateReady},
	StateReady:      {StateFinalized},
}

// IsFinal reports whether no further transitions are allowed.
func (s BatchState) IsFinal() bool {
	return s == StateFinalized || s == StateError
}

// CanTransition reports whether s -> to is a legal step.
func (s BatchState) CanTransition(to BatchState) bool {
	if to == StateError {
		return !s.IsFinal()
	}
	for _, next := range allowedTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Editable reports whether events in a batch in this state may be edited.
func (s BatchState) Editable() bool {
	return s == StateReview || s == StateReviewed
}

// =============================================================================
// LIQUIDATION BATCH
// =============================================================================

// BatchTotals are the denormalized sums kept consistent with row data.
type BatchTotals struct {
	RowCount      int // admitted, non-deleted events
	ExcludedCount int
	Gross         decimal.Decimal
	Net           decimal.Decimal
}

// LiquidationBatch is one liquidation run for a (specialty, month, year).
type LiquidationBatch struct {
	ID        BatchID
	Specialty string
	Period    Period
	Scheme    Scheme
	State     BatchState

	// SourceFiles lists the uploaded spreadsheets this batch was built from.
	SourceFiles []string

	Totals BatchTotals

	// LastError holds the failure that moved the batch to StateError.
	LastError string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transition moves the batch to a new state, enforcing the lifecycle.
func (b *LiquidationBatch) Transition(to BatchState) error {
	if !b.State.CanTransition(to) {
		return &TransitionError{BatchID: b.ID, From: b.State, To: to}
	}
	b.State = to
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail moves the batch to the error state, recording the cause.
func (b *LiquidationBatch) Fail(cause error) error {
	if err := b.Transition(StateError); err != nil {
		return err
	}
	if cause != nil {
		b.LastError = cause.Error()
	}
	return nil
}
