/*
handlers.go - HTTP API handlers for the liquidation engine

PURPOSE:
  Exposes the liquidation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Batches:
    GET    /api/batches                  List all batches
    POST   /api/batches                  Create batch from raw rows and process
    GET    /api/batches/{id}             Get batch details
    GET    /api/batches/{id}/lines       Computed liquidation lines
    GET    /api/batches/{id}/exclusions  Excluded rows with reasons
    GET    /api/batches/{id}/events      All events for the review screen
    POST   /api/batches/{id}/transition  Advance the review lifecycle
    POST   /api/batches/{id}/recompute   Force a full recompute

  Events:
    PATCH  /api/events/{id}              Buffer a reviewer edit (debounced)
    GET    /api/events/{id}/state        Save state (saved/pending/retrying)
    DELETE /api/events/{id}              Soft-delete and recompute
    POST   /api/events/flush             Flush all pending edits now

  Configuration:
    GET/POST /api/config/tariffs         Tariffs for a period
    GET/POST /api/config/rate-cards      Hourly band rates per specialty
    GET/POST /api/config/additionals     Per-payer additionals
    GET/POST /api/config/groups          Group share assignments
    POST     /api/config/copy            Copy a period's config forward
    GET/POST /api/holidays               Holiday calendar
    DELETE   /api/holidays/{id}

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (engine, coordinator, edit buffer)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Batch or event not found
  - 409: Lifecycle conflicts (finalized batch, invalid transition)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - liquidation/engine.go: The pipeline behind these handlers
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/andes/liquidation-engine/liquidation"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       liquidation.Store
	Engine      *liquidation.Engine
	Coordinator *liquidation.Coordinator
	Buffer      *liquidation.EditBuffer
}

// NewHandler wires the handler around a configured engine. The edit buffer
// is created here but started by the caller (cmd/server owns its lifecycle).
func NewHandler(engine *liquidation.Engine) *Handler {
	coord := &liquidation.Coordinator{Engine: engine}
	return &Handler{
		Store:       engine.Store,
		Engine:      engine,
		Coordinator: coord,
		Buffer:      liquidation.NewEditBuffer(coord, engine.Log),
	}
}

// =============================================================================
// BATCH HANDLERS
// =============================================================================

// ListBatches returns all batches, newest period first.
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.Store.ListBatches(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list batches", err)
		return
	}

	dtos := make([]BatchDTO, len(batches))
	for i, b := range batches {
		dtos[i] = toBatchDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBatch returns a single batch.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := h.Store.GetBatch(r.Context(), liquidation.BatchID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get batch", err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchDTO(*batch))
}

// CreateBatch creates a batch from raw spreadsheet rows and runs the full
// pipeline synchronously. The response carries the processed batch with its
// computed totals.
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Specialty == "" {
		writeError(w, http.StatusBadRequest, "specialty is required", nil)
		return
	}
	period, err := liquidation.ParsePeriod(req.Period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period format (use YYYY-MM)", err)
		return
	}

	settings := h.Engine.SettingsFor(req.Specialty)
	now := time.Now().UTC()
	batch := liquidation.LiquidationBatch{
		ID:          liquidation.BatchID(uuid.NewString()),
		Specialty:   req.Specialty,
		Period:      period,
		Scheme:      settings.Scheme,
		State:       liquidation.StateDraft,
		SourceFiles: req.SourceFiles,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.Store.SaveBatch(r.Context(), batch); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create batch", err)
		return
	}

	rows := make([]liquidation.RawRow, len(req.Rows))
	for i, row := range req.Rows {
		rows[i] = liquidation.RawRow(row)
	}

	result, err := h.Engine.ProcessRows(r.Context(), &batch, rows)
	if err != nil {
		writeDomainError(w, "Failed to process batch", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBatchDTO(result.Batch))
}

// GetLines returns the computed liquidation lines of a batch.
func (h *Handler) GetLines(w http.ResponseWriter, r *http.Request) {
	lines, err := h.Store.ListLines(r.Context(), liquidation.BatchID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list lines", err)
		return
	}

	dtos := make([]LineDTO, len(lines))
	for i, l := range lines {
		dtos[i] = toLineDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetExclusions returns the excluded rows of a batch with reasons and
// original payloads.
func (h *Handler) GetExclusions(w http.ResponseWriter, r *http.Request) {
	excluded, err := h.Store.ListExclusions(r.Context(), liquidation.BatchID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list exclusions", err)
		return
	}

	dtos := make([]ExclusionDTO, len(excluded))
	for i, ex := range excluded {
		dtos[i] = toExclusionDTO(ex)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEvents returns all events of a batch, including excluded and deleted
// ones, each annotated with its edit-buffer save state.
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Store.ListEvents(r.Context(), liquidation.BatchID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events", err)
		return
	}

	dtos := make([]EventDTO, len(events))
	for i, e := range events {
		dtos[i] = toEventDTO(e, h.Buffer.State(e.ID))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// TransitionBatch advances the review lifecycle by one explicit step.
func (h *Handler) TransitionBatch(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	batch, err := h.Store.GetBatch(ctx, liquidation.BatchID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get batch", err)
		return
	}

	// Pending edits must land before the batch leaves an editable state.
	if batch.State.Editable() {
		h.Buffer.Flush(ctx)
		if batch, err = h.Store.GetBatch(ctx, batch.ID); err != nil {
			writeDomainError(w, "Failed to reload batch", err)
			return
		}
	}

	if err := batch.Transition(liquidation.BatchState(req.To)); err != nil {
		writeDomainError(w, "Transition rejected", err)
		return
	}
	if err := h.Store.SaveBatch(ctx, *batch); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save batch", err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchDTO(*batch))
}

// RecomputeBatch re-runs the full pipeline over the batch's current events.
func (h *Handler) RecomputeBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := h.Coordinator.RecomputeBatch(r.Context(), liquidation.BatchID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to recompute batch", err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchDTO(*batch))
}

// =============================================================================
// EVENT HANDLERS
// =============================================================================

// EditEvent buffers a reviewer correction. The edit is applied to the
// stored row after the debounce window; the response reports the buffer
// state so the UI can show saving/saved.
func (h *Handler) EditEvent(w http.ResponseWriter, r *http.Request) {
	var req EditEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	id := liquidation.EventID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetEvent(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to get event", err)
		return
	}

	edit := liquidation.EventEdit{
		PhysicianName: req.PhysicianName,
		Payer:         req.Payer,
		PatientID:     req.PatientID,
	}
	if req.InvoicedAmount != nil {
		amount, err := decimal.NewFromString(*req.InvoicedAmount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid invoiced_amount", err)
			return
		}
		edit.InvoicedAmount = &amount
	}

	h.Buffer.Enqueue(id, edit)
	writeJSON(w, http.StatusAccepted, SaveStateDTO{
		EventID:   string(id),
		SaveState: string(h.Buffer.State(id)),
	})
}

// GetEventState reports the edit buffer state of one event.
func (h *Handler) GetEventState(w http.ResponseWriter, r *http.Request) {
	id := liquidation.EventID(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, SaveStateDTO{
		EventID:   string(id),
		SaveState: string(h.Buffer.State(id)),
	})
}

// DeleteEvent soft-deletes one event and recomputes its batch immediately.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	batch, err := h.Coordinator.DeleteEvent(r.Context(), liquidation.EventID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to delete event", err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchDTO(*batch))
}

// FlushEdits persists every pending edit immediately. Wired to the review
// screen's explicit save action and unload hook.
func (h *Handler) FlushEdits(w http.ResponseWriter, r *http.Request) {
	h.Buffer.Flush(r.Context())
	writeJSON(w, http.StatusOK, map[string]int{"pending": h.Buffer.PendingCount()})
}

// =============================================================================
// CONFIGURATION HANDLERS
// =============================================================================

// ListTariffs returns the tariffs of a period (?period=YYYY-MM).
func (h *Handler) ListTariffs(w http.ResponseWriter, r *http.Request) {
	period, ok := queryPeriod(w, r)
	if !ok {
		return
	}
	tariffs, err := h.Store.ListTariffs(r.Context(), period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tariffs", err)
		return
	}

	dtos := make([]TariffDTO, len(tariffs))
	for i, t := range tariffs {
		dtos[i] = TariffDTO{
			Payer:     string(t.Payer),
			Kind:      t.Kind,
			Period:    t.Period.String(),
			UnitValue: t.UnitValue.String(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveTariff upserts one tariff.
func (h *Handler) SaveTariff(w http.ResponseWriter, r *http.Request) {
	var req TariffDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	period, err := liquidation.ParsePeriod(req.Period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period format (use YYYY-MM)", err)
		return
	}
	value, err := decimal.NewFromString(req.UnitValue)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid unit_value", err)
		return
	}

	t := liquidation.Tariff{
		Payer:     liquidation.NormalizePayer(req.Payer),
		Kind:      req.Kind,
		Period:    period,
		UnitValue: value,
	}
	if err := h.Store.SaveTariff(r.Context(), t); err != nil {
		writeDomainError(w, "Failed to save tariff", err)
		return
	}
	writeJSON(w, http.StatusCreated, TariffDTO{
		Payer:     string(t.Payer),
		Kind:      t.Kind,
		Period:    t.Period.String(),
		UnitValue: t.UnitValue.String(),
	})
}

// ListRateCards returns the rate cards of a period.
func (h *Handler) ListRateCards(w http.ResponseWriter, r *http.Request) {
	period, ok := queryPeriod(w, r)
	if !ok {
		return
	}
	cards, err := h.Store.ListRateCards(r.Context(), period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rate cards", err)
		return
	}

	dtos := make([]RateCardDTO, len(cards))
	for i, rc := range cards {
		rates := make(map[string]string, len(rc.Rates))
		for band, rate := range rc.Rates {
			rates[string(band)] = rate.String()
		}
		dtos[i] = RateCardDTO{
			Specialty:         rc.Specialty,
			Period:            rc.Period.String(),
			Rates:             rates,
			GuaranteedMinimum: rc.GuaranteedMinimum.String(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveRateCard upserts one rate card.
func (h *Handler) SaveRateCard(w http.ResponseWriter, r *http.Request) {
	var req RateCardDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	period, err := liquidation.ParsePeriod(req.Period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period format (use YYYY-MM)", err)
		return
	}

	rc := liquidation.RateCard{
		Specialty: req.Specialty,
		Period:    period,
		Rates:     make(map[liquidation.Band]decimal.Decimal, len(req.Rates)),
	}
	for band, rate := range req.Rates {
		d, err := decimal.NewFromString(rate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid band rate", err)
			return
		}
		rc.Rates[liquidation.Band(band)] = d
	}
	if rc.GuaranteedMinimum, err = decimal.NewFromString(req.GuaranteedMinimum); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid guaranteed_minimum", err)
		return
	}

	if err := h.Store.SaveRateCard(r.Context(), rc); err != nil {
		writeDomainError(w, "Failed to save rate card", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// ListAdditionals returns the additionals of a period.
func (h *Handler) ListAdditionals(w http.ResponseWriter, r *http.Request) {
	period, ok := queryPeriod(w, r)
	if !ok {
		return
	}
	additionals, err := h.Store.ListAdditionals(r.Context(), period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list additionals", err)
		return
	}

	dtos := make([]AdditionalDTO, len(additionals))
	for i, a := range additionals {
		dtos[i] = AdditionalDTO{
			Payer:      string(a.Payer),
			Specialty:  a.Specialty,
			Period:     a.Period.String(),
			Base:       a.Base.String(),
			Percentage: a.Percentage.String(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveAdditional upserts one additional.
func (h *Handler) SaveAdditional(w http.ResponseWriter, r *http.Request) {
	var req AdditionalDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	period, err := liquidation.ParsePeriod(req.Period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period format (use YYYY-MM)", err)
		return
	}

	a := liquidation.Additional{
		Payer:     liquidation.NormalizePayer(req.Payer),
		Specialty: req.Specialty,
		Period:    period,
	}
	if a.Base, err = decimal.NewFromString(req.Base); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid base", err)
		return
	}
	if a.Percentage, err = decimal.NewFromString(req.Percentage); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid percentage", err)
		return
	}

	if err := h.Store.SaveAdditional(r.Context(), a); err != nil {
		writeDomainError(w, "Failed to save additional", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// ListGroupAssignments returns the group assignments of a period.
func (h *Handler) ListGroupAssignments(w http.ResponseWriter, r *http.Request) {
	period, ok := queryPeriod(w, r)
	if !ok {
		return
	}
	groups, err := h.Store.ListGroupAssignments(r.Context(), period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list group assignments", err)
		return
	}

	dtos := make([]GroupAssignmentDTO, len(groups))
	for i, g := range groups {
		dtos[i] = GroupAssignmentDTO{
			PhysicianID:  string(g.PhysicianID),
			Period:       g.Period.String(),
			SharePercent: g.SharePercent.String(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveGroupAssignment upserts one assignment, replacing any existing one
// for the same (physician, period).
func (h *Handler) SaveGroupAssignment(w http.ResponseWriter, r *http.Request) {
	var req GroupAssignmentDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	period, err := liquidation.ParsePeriod(req.Period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period format (use YYYY-MM)", err)
		return
	}
	share, err := decimal.NewFromString(req.SharePercent)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid share_percent", err)
		return
	}

	g := liquidation.GroupAssignment{
		PhysicianID:  liquidation.PhysicianID(req.PhysicianID),
		Period:       period,
		SharePercent: share,
	}
	if err := h.Store.SaveGroupAssignment(r.Context(), g); err != nil {
		writeDomainError(w, "Failed to save group assignment", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// CopyConfig clones one period's configuration into another, optionally
// scaling monetary values.
func (h *Handler) CopyConfig(w http.ResponseWriter, r *http.Request) {
	var req CopyConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	from, err := liquidation.ParsePeriod(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from period", err)
		return
	}
	to, err := liquidation.ParsePeriod(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to period", err)
		return
	}
	scale := decimal.Zero
	if req.ScalePct != "" {
		if scale, err = decimal.NewFromString(req.ScalePct); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid scale_pct", err)
			return
		}
	}

	copied, err := liquidation.CopyConfigToPeriod(r.Context(), h.Store, from, to, scale)
	if err != nil {
		writeDomainError(w, "Failed to copy configuration", err)
		return
	}
	writeJSON(w, http.StatusOK, CopyConfigResponse{Copied: copied})
}

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

// ListHolidays returns all holidays.
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	holidays, err := h.Store.ListHolidays(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list holidays", err)
		return
	}

	dtos := make([]HolidayDTO, len(holidays))
	for i, hd := range holidays {
		dtos[i] = HolidayDTO{
			ID:        hd.ID,
			Date:      hd.Date.Format("2006-01-02"),
			Name:      hd.Name,
			Recurring: hd.Recurring,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHoliday upserts one holiday.
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req HolidayDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	holiday := liquidation.Holiday{
		ID:        req.ID,
		Date:      date,
		Name:      req.Name,
		Recurring: req.Recurring,
	}
	if err := h.Store.SaveHoliday(r.Context(), holiday); err != nil {
		writeDomainError(w, "Failed to save holiday", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// DeleteHoliday removes one holiday.
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteHoliday(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete holiday", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

func queryPeriod(w http.ResponseWriter, r *http.Request) (liquidation.Period, bool) {
	period, err := liquidation.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing period query parameter (use YYYY-MM)", err)
		return liquidation.Period{}, false
	}
	return period, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case liquidation.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case liquidation.IsClientError(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
