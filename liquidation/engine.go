/*
engine.go - Classify-and-aggregate pipeline

PURPOSE:
  Orchestrates one full processing run for a batch:

    raw rows -> MapRow -> Filter -> Resolver (per row)
             -> scheme aggregator -> totals -> persist

  The pipeline is deterministic and idempotent: re-running it on the same
  admitted-row set with no intervening edits yields an identical line set
  and identical totals. All period and specialty parameters are explicit;
  the engine holds no "current period" state.

SCHEME SELECTION:
  Each specialty maps to SchemeSettings (scheme kind, retention percentage,
  admission fee, self-pay patterns). Unconfigured specialties default to
  the production scheme with standard retention.

SEE ALSO:
  - recompute.go: Re-runs this pipeline after row edits
  - factory/: Builds SchemeSettings from JSON configuration
*/
package liquidation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SCHEME SETTINGS - Per-specialty behavior
// =============================================================================

// SchemeSettings configures how one specialty is liquidated.
type SchemeSettings struct {
	Specialty        string
	Scheme           Scheme
	RetentionPct     decimal.Decimal // production
	AdmissionFee     decimal.Decimal // admission
	ConsultationKind string          // tariff lookup key, default "CONSULTA"
	SelfPayPatterns  []string
	RosterPolicy     RosterPolicy
}

// DefaultSettings is applied to specialties with no explicit configuration.
func DefaultSettings(specialty string) SchemeSettings {
	return SchemeSettings{
		Specialty:    specialty,
		Scheme:       SchemeProduction,
		RetentionPct: DefaultRetentionPct,
		RosterPolicy: RosterAggregate,
	}
}

// =============================================================================
// CLASSIFIED EVENT
// =============================================================================

// ClassifiedEvent pairs an admitted event with its resolver output.
type ClassifiedEvent struct {
	Event BillableEvent
	Class Classification
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Store  Store
	Roster Roster
	Log    zerolog.Logger

	// Settings maps normalized specialty name -> scheme configuration.
	Settings map[string]SchemeSettings
}

// SettingsKey returns the Settings map key for a specialty name.
func SettingsKey(specialty string) string {
	return normalizeLabel(specialty)
}

// SettingsFor returns the scheme configuration for a specialty.
func (en *Engine) SettingsFor(specialty string) SchemeSettings {
	if s, ok := en.Settings[SettingsKey(specialty)]; ok {
		return s
	}
	return DefaultSettings(specialty)
}

// ProcessResult is the outcome of one processing run.
type ProcessResult struct {
	Batch    LiquidationBatch
	Lines    []LiquidationLine
	Excluded []ExcludedRow
	Warnings []ConfigWarning
}

// ProcessRows ingests raw rows into a batch and runs the full pipeline.
// Drives borrador -> procesando -> pendiente_revision synchronously; a
// fatal failure moves the batch to the error state instead.
func (en *Engine) ProcessRows(ctx context.Context, batch *LiquidationBatch, rows []RawRow) (*ProcessResult, error) {
	if err := batch.Transition(StateProcessing); err != nil {
		return nil, err
	}
	if err := en.Store.SaveBatch(ctx, *batch); err != nil {
		return nil, err
	}

	result, err := en.process(ctx, batch, rows)
	if err != nil {
		if ferr := batch.Fail(err); ferr == nil {
			_ = en.Store.SaveBatch(ctx, *batch)
		}
		return nil, err
	}

	if err := batch.Transition(StateReview); err != nil {
		return nil, err
	}
	if err := en.Store.SaveBatch(ctx, *batch); err != nil {
		return nil, err
	}
	result.Batch = *batch
	return result, nil
}

func (en *Engine) process(ctx context.Context, batch *LiquidationBatch, rows []RawRow) (*ProcessResult, error) {
	settings := en.SettingsFor(batch.Specialty)
	now := time.Now().UTC()

	events := make([]BillableEvent, 0, len(rows))
	for i, row := range rows {
		e := MapRow(row, batch.ID, i+1, batch.Specialty)
		e.ID = EventID(uuid.NewString())
		e.CreatedAt = now
		e.UpdatedAt = now
		events = append(events, e)
	}

	filter := Filter{Period: batch.Period, Scheme: settings.Scheme, SelfPayPatterns: settings.SelfPayPatterns}
	filtered := filter.Run(events, rows)

	classified, extraExcluded, warnings, err := en.classify(ctx, batch, settings, filtered.Admitted, rows)
	if err != nil {
		return nil, err
	}

	// Merge the resolver output (physician match, training-hour flag) and the
	// resolver-driven exclusions (RosterExclude policy) back into the
	// persisted event set. classify works on copies, so without this the
	// stored events would keep their pre-resolution fields.
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
	allExcluded := append(filtered.Excluded, extraExcluded...)

	lines, aggWarnings, err := en.aggregate(ctx, batch, settings, classified)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, aggWarnings...)

	batch.Totals = computeTotals(classified, lines, len(allExcluded))

	if err := en.Store.SaveEvents(ctx, filtered.Events); err != nil {
		return nil, fmt.Errorf("persist events: %w", err)
	}
	if err := en.Store.ReplaceExclusions(ctx, batch.ID, allExcluded); err != nil {
		return nil, fmt.Errorf("persist exclusions: %w", err)
	}
	if err := en.Store.ReplaceLines(ctx, batch.ID, lines); err != nil {
		return nil, fmt.Errorf("persist lines: %w", err)
	}

	for _, w := range warnings {
		en.Log.Warn().
			Str("batch", string(batch.ID)).
			Int("row", w.RowNumber).
			Str("payer", string(w.Payer)).
			Str("missing", w.Missing).
			Msg("configuration missing, value resolved to zero")
	}

	return &ProcessResult{Lines: lines, Excluded: allExcluded, Warnings: warnings}, nil
}

// classify resolves every admitted event. Events rejected by the roster
// policy come back as extra exclusions.
func (en *Engine) classify(ctx context.Context, batch *LiquidationBatch, settings SchemeSettings, admitted []BillableEvent, rows []RawRow) ([]ClassifiedEvent, []ExcludedRow, []ConfigWarning, error) {
	holidays, err := en.Store.ListHolidays(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	resolver := Resolver{
		Config:   en.Store,
		Roster:   en.Roster,
		Policy:   settings.RosterPolicy,
		Calendar: CalendarFromHolidays(holidays),
		Kind:     settings.ConsultationKind,
	}

	var (
		classified []ClassifiedEvent
		excluded   []ExcludedRow
		warnings   []ConfigWarning
	)
	for i := range admitted {
		e := admitted[i]
		class, err := resolver.Resolve(ctx, &e, settings.Scheme, batch.Period)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("resolve row %d: %w", e.RowNumber, err)
		}
		if class.ExcludePhysician {
			var payload map[string]string
			if idx := e.RowNumber - 1; idx >= 0 && idx < len(rows) {
				payload = rows[idx]
			}
			excluded = append(excluded, ExcludedRow{
				BatchID:   batch.ID,
				RowNumber: e.RowNumber,
				Reason:    ReasonUnknownPhysician,
				EventID:   e.ID,
				Payload:   payload,
			})
			continue
		}
		if class.Warning != nil {
			warnings = append(warnings, *class.Warning)
		}
		classified = append(classified, ClassifiedEvent{Event: e, Class: class})
	}
	return classified, excluded, warnings, nil
}

// mergeClassified copies resolved events over their pre-resolution copies,
// indexed by event ID, so PhysicianID/Matched/TrainingHour survive into the
// store and the review screen.
func mergeClassified(events []BillableEvent, classified []ClassifiedEvent) {
	resolved := make(map[EventID]BillableEvent, len(classified))
	for _, ce := range classified {
		resolved[ce.Event.ID] = ce.Event
	}
	for i := range events {
		if e, ok := resolved[events[i].ID]; ok {
			events[i] = e
		}
	}
}

// aggregate dispatches to the scheme aggregator with the period's
// configuration tables.
func (en *Engine) aggregate(ctx context.Context, batch *LiquidationBatch, settings SchemeSettings, classified []ClassifiedEvent) ([]LiquidationLine, []ConfigWarning, error) {
	var warnings []ConfigWarning

	switch settings.Scheme {
	case SchemeHourly:
		card, err := en.Store.GetRateCard(ctx, batch.Specialty, batch.Period)
		if err != nil {
			return nil, nil, err
		}
		if card == nil {
			warnings = append(warnings, ConfigWarning{
				Specialty: batch.Specialty,
				Period:    batch.Period,
				Missing:   "rate_card",
			})
		}
		assignments, err := en.Store.ListGroupAssignments(ctx, batch.Period)
		if err != nil {
			return nil, nil, err
		}
		groups := make(map[PhysicianID]GroupAssignment, len(assignments))
		for _, g := range assignments {
			groups[g.PhysicianID] = g
		}
		agg := HourlyAggregator{}
		return agg.Aggregate(batch.ID, classified, card, groups), warnings, nil

	case SchemeAdmission:
		additionals, err := en.additionals(ctx, batch)
		if err != nil {
			return nil, nil, err
		}
		agg := AdmissionAggregator{Fee: settings.AdmissionFee}
		return agg.Aggregate(batch.ID, classified, additionals), warnings, nil

	default:
		additionals, err := en.additionals(ctx, batch)
		if err != nil {
			return nil, nil, err
		}
		agg := ProductionAggregator{RetentionPct: settings.RetentionPct}
		return agg.Aggregate(batch.ID, classified, additionals), warnings, nil
	}
}

func (en *Engine) additionals(ctx context.Context, batch *LiquidationBatch) (map[PayerKey]Additional, error) {
	all, err := en.Store.ListAdditionals(ctx, batch.Period)
	if err != nil {
		return nil, err
	}
	specialty := normalizeLabel(batch.Specialty)
	byPayer := make(map[PayerKey]Additional)
	for _, a := range all {
		if normalizeLabel(a.Specialty) == specialty {
			byPayer[a.Payer] = a
		}
	}
	return byPayer, nil
}

// computeTotals derives the denormalized batch totals from the line set.
func computeTotals(classified []ClassifiedEvent, lines []LiquidationLine, excludedCount int) BatchTotals {
	t := BatchTotals{
		RowCount:      len(classified),
		ExcludedCount: excludedCount,
	}
	for _, l := range lines {
		t.Gross = t.Gross.Add(l.Gross)
		t.Net = t.Net.Add(l.Net)
	}
	return t
}
