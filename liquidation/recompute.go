/*
recompute.go - Recompute coordinator

PURPOSE:
  Centralizes every recompute-on-edit path. Any mutation of a
  BillableEvent's payer/physician/patient fields after initial processing
  goes through here, which guarantees the same four steps every time:

  1. Re-run the resolver for the affected event
  2. Recompute the event's contribution to gross/net
  3. Recompute the batch's denormalized totals
  4. Invalidate previously generated per-physician/per-payer summaries

  In practice steps 1-4 are one idempotent operation: the coordinator
  re-runs filter + classification + aggregation over the batch's current
  non-deleted events and swaps the derived data atomically. Re-running with
  no new edits yields identical totals; there is no double counting.

INTEGRITY:
  After every recompute the coordinator reconciles the stored batch totals
  against the freshly summed line data. A mismatch means an aggregator bug:
  it is logged loudly as an IntegrityError and never papered over by
  re-deriving from a different source.

SEE ALSO:
  - engine.go: The pipeline being re-run
  - editbuffer.go: Debounced persistence feeding this coordinator
*/
package liquidation

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EVENT EDIT - Reviewer correction to one row
// =============================================================================

// EventEdit carries the editable fields of a billable event. Nil pointers
// leave the field untouched, so edits coalesce cleanly in the buffer.
type EventEdit struct {
	PhysicianName  *string
	Payer          *string
	PatientID      *string
	InvoicedAmount *decimal.Decimal
}

// Apply merges the edit into an event, renormalizing derived keys.
func (ed EventEdit) Apply(e *BillableEvent) {
	if ed.PhysicianName != nil {
		e.PhysicianName = *ed.PhysicianName
		e.Matched = false // force a fresh roster lookup
		e.PhysicianID = ""
	}
	if ed.Payer != nil {
		e.Payer = *ed.Payer
		e.PayerKey = NormalizePayer(*ed.Payer)
	}
	if ed.PatientID != nil {
		e.PatientID = PatientID(normalizeLabel(*ed.PatientID))
	}
	if ed.InvoicedAmount != nil {
		amount := *ed.InvoicedAmount
		e.InvoicedAmount = &amount
	}
	e.UpdatedAt = time.Now().UTC()
}

// Merge overlays a later edit onto this one (later fields win).
func (ed EventEdit) Merge(later EventEdit) EventEdit {
	if later.PhysicianName != nil {
		ed.PhysicianName = later.PhysicianName
	}
	if later.Payer != nil {
		ed.Payer = later.Payer
	}
	if later.PatientID != nil {
		ed.PatientID = later.PatientID
	}
	if later.InvoicedAmount != nil {
		ed.InvoicedAmount = later.InvoicedAmount
	}
	return ed
}

// =============================================================================
// COORDINATOR
// =============================================================================

type Coordinator struct {
	Engine *Engine
}

// ApplyEdit mutates one event and recomputes its batch. The batch must be
// in an editable state.
func (c *Coordinator) ApplyEdit(ctx context.Context, eventID EventID, edit EventEdit) (*LiquidationBatch, error) {
	event, err := c.Engine.Store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	batch, err := c.editableBatch(ctx, event.BatchID)
	if err != nil {
		return nil, err
	}

	edit.Apply(event)
	if err := c.Engine.Store.SaveEvent(ctx, *event); err != nil {
		return nil, err
	}

	return c.recompute(ctx, batch)
}

// DeleteEvent soft-deletes one event and recomputes its batch. Deleted
// events stay in the store but leave every total and line.
func (c *Coordinator) DeleteEvent(ctx context.Context, eventID EventID) (*LiquidationBatch, error) {
	event, err := c.Engine.Store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	batch, err := c.editableBatch(ctx, event.BatchID)
	if err != nil {
		return nil, err
	}

	event.Deleted = true
	event.UpdatedAt = time.Now().UTC()
	if err := c.Engine.Store.SaveEvent(ctx, *event); err != nil {
		return nil, err
	}

	return c.recompute(ctx, batch)
}

// RecomputeBatch re-runs filter + classification + aggregation over the
// batch's current non-deleted events. Safe to call at any time for a
// non-final batch; always reads the current admitted set, never a snapshot.
func (c *Coordinator) RecomputeBatch(ctx context.Context, batchID BatchID) (*LiquidationBatch, error) {
	batch, err := c.Engine.Store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.State.IsFinal() {
		return nil, ErrBatchFinalized
	}
	return c.recompute(ctx, batch)
}

func (c *Coordinator) editableBatch(ctx context.Context, batchID BatchID) (*LiquidationBatch, error) {
	batch, err := c.Engine.Store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if !batch.State.Editable() {
		if batch.State.IsFinal() {
			return nil, ErrBatchFinalized
		}
		return nil, &TransitionError{BatchID: batch.ID, From: batch.State, To: batch.State}
	}
	return batch, nil
}

func (c *Coordinator) recompute(ctx context.Context, batch *LiquidationBatch) (*LiquidationBatch, error) {
	en := c.Engine
	settings := en.SettingsFor(batch.Specialty)

	stored, err := en.Store.ListEvents(ctx, batch.ID)
	if err != nil {
		return nil, err
	}

	// Reset exclusion flags: an edit may have cured (or introduced) an
	// exclusion reason, so the filter decides from scratch.
	live := make([]BillableEvent, 0, len(stored))
	for _, e := range stored {
		if e.Deleted {
			continue
		}
		e.Excluded = false
		e.ExclusionReason = ReasonNone
		live = append(live, e)
	}

	filter := Filter{Period: batch.Period, Scheme: settings.Scheme, SelfPayPatterns: settings.SelfPayPatterns}
	filtered := filter.Run(live, eventPayloads(live))

	classified, extraExcluded, warnings, err := en.classify(ctx, batch, settings, filtered.Admitted, nil)
	if err != nil {
		return nil, err
	}
	allExcluded := append(filtered.Excluded, extraExcluded...)

	mergeClassified(filtered.Events, classified)
	excludedIDs := make(map[EventID]ReasonCode, len(extraExcluded))
	for _, ex := range extraExcluded {
		excludedIDs[ex.EventID] = ex.Reason
	}
	for i := range filtered.Events {
		if reason, ok := excludedIDs[filtered.Events[i].ID]; ok {
			filtered.Events[i].Excluded = true
			filtered.Events[i].ExclusionReason = reason
		}
	}

	lines, aggWarnings, err := en.aggregate(ctx, batch, settings, classified)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, aggWarnings...)

	batch.Totals = computeTotals(classified, lines, len(allExcluded))
	batch.UpdatedAt = time.Now().UTC()

	if err := en.Store.SaveEvents(ctx, filtered.Events); err != nil {
		return nil, fmt.Errorf("persist events: %w", err)
	}
	if err := en.Store.ReplaceExclusions(ctx, batch.ID, allExcluded); err != nil {
		return nil, fmt.Errorf("persist exclusions: %w", err)
	}
	if err := en.Store.ReplaceLines(ctx, batch.ID, lines); err != nil {
		return nil, fmt.Errorf("persist lines: %w", err)
	}
	if err := en.Store.SaveBatch(ctx, *batch); err != nil {
		return nil, fmt.Errorf("persist batch: %w", err)
	}

	for _, w := range warnings {
		en.Log.Warn().
			Str("batch", string(batch.ID)).
			Int("row", w.RowNumber).
			Str("payer", string(w.Payer)).
			Str("missing", w.Missing).
			Msg("configuration missing during recompute")
	}

	if err := c.Verify(ctx, batch.ID); err != nil {
		return nil, err
	}
	return batch, nil
}

// Verify reconciles the stored batch totals against the freshly summed line
// data. A mismatch is an aggregator defect: it is logged at error level and
// returned, never silently corrected.
func (c *Coordinator) Verify(ctx context.Context, batchID BatchID) error {
	batch, err := c.Engine.Store.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	lines, err := c.Engine.Store.ListLines(ctx, batchID)
	if err != nil {
		return err
	}

	var gross decimal.Decimal
	for _, l := range lines {
		gross = gross.Add(l.Gross)
	}

	events, err := c.Engine.Store.ListEvents(ctx, batchID)
	if err != nil {
		return err
	}
	admitted := 0
	for _, e := range events {
		if e.Admitted() {
			admitted++
		}
	}

	if !gross.Equal(batch.Totals.Gross) || admitted != batch.Totals.RowCount {
		ierr := &IntegrityError{
			BatchID:       batchID,
			ExpectedGross: gross,
			StoredGross:   batch.Totals.Gross,
			ExpectedRows:  admitted,
			StoredRows:    batch.Totals.RowCount,
		}
		c.Engine.Log.Error().
			Str("batch", string(batchID)).
			Str("stored_gross", batch.Totals.Gross.String()).
			Str("summed_gross", gross.String()).
			Int("stored_rows", batch.Totals.RowCount).
			Int("admitted_rows", admitted).
			Msg("batch totals do not reconcile with row data")
		return ierr
	}
	return nil
}

// eventPayloads rebuilds exclusion payloads from stored event fields when
// the original raw rows are no longer at hand.
func eventPayloads(events []BillableEvent) []RawRow {
	rows := make([]RawRow, len(events))
	for i, e := range events {
		row := RawRow{
			"PROFESIONAL": e.PhysicianName,
			"OBRA SOCIAL": e.Payer,
			"PACIENTE":    string(e.PatientID),
		}
		if !e.Date.IsZero() {
			row["FECHA"] = e.Date.Format("02/01/2006")
		}
		if e.Start != nil {
			row["HORA DESDE"] = e.Start.Format("15:04")
		}
		if e.End != nil {
			row["HORA HASTA"] = e.End.Format("15:04")
		}
		if e.InvoicedAmount != nil {
			row["IMPORTE"] = e.InvoicedAmount.String()
		}
		rows[i] = row
	}
	return rows
}
