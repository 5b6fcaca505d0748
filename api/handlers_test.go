package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/andes/liquidation-engine/liquidation"
	memstore "github.com/andes/liquidation-engine/liquidation/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestAPI(t *testing.T) (*Handler, *memstore.Memory, http.Handler) {
	t.Helper()
	store := memstore.NewMemory()
	engine := &liquidation.Engine{
		Store: store,
		Roster: liquidation.NewStaticRoster(
			liquidation.Physician{ID: "p-gomez", Name: "GOMEZ, ANA", Active: true},
		),
		Log: zerolog.Nop(),
		Settings: map[string]liquidation.SchemeSettings{
			liquidation.SettingsKey("Pediatría"): {
				Specialty: "Pediatría",
				Scheme:    liquidation.SchemeProduction,
			},
		},
	}
	h := NewHandler(engine)
	return h, store, NewRouter(h)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

// createProcessedBatch posts one OSEP-tariffed batch and returns its DTO.
func createProcessedBatch(t *testing.T, store *memstore.Memory, router http.Handler) BatchDTO {
	t.Helper()
	err := store.SaveTariff(context.Background(), liquidation.Tariff{
		Payer: "OSEP", Kind: "CONSULTA", Period: liquidation.NewPeriod(6, 2025), UnitValue: liquidation.MustDecimal("800"),
	})
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/api/batches", CreateBatchRequest{
		Specialty:   "Pediatría",
		Period:      "2025-06",
		SourceFiles: []string{"guardia-junio.xlsx"},
		Rows: []map[string]string{
			{"PROFESIONAL": "GOMEZ, ANA", "OBRA SOCIAL": "O.S.E.P.", "FECHA": "10/06/2025", "PACIENTE": "1"},
			{"PROFESIONAL": "GOMEZ, ANA", "OBRA SOCIAL": "PARTICULAR", "FECHA": "11/06/2025", "PACIENTE": "2"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[BatchDTO](t, rec)
}

// =============================================================================
// BATCH ENDPOINT TESTS
// =============================================================================

func TestCreateBatch_ProcessesRowsEndToEnd(t *testing.T) {
	_, store, router := newTestAPI(t)

	batch := createProcessedBatch(t, store, router)
	require.Equal(t, "pendiente_revision", batch.State)
	require.Equal(t, "production", batch.Scheme)
	require.Equal(t, 1, batch.RowCount)
	require.Equal(t, 1, batch.ExcludedCount)
	require.Equal(t, "800", batch.Gross)

	rec := doJSON(t, router, http.MethodGet, "/api/batches/"+batch.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/batches", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]BatchDTO](t, rec), 1)
}

func TestCreateBatch_Validation(t *testing.T) {
	_, _, router := newTestAPI(t)

	rec := doJSON(t, router, http.MethodPost, "/api/batches", CreateBatchRequest{Period: "2025-06"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/batches", CreateBatchRequest{
		Specialty: "Pediatría", Period: "junio",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBatch_NotFound(t *testing.T) {
	_, _, router := newTestAPI(t)
	rec := doJSON(t, router, http.MethodGet, "/api/batches/no-such-batch", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetLinesAndExclusions(t *testing.T) {
	_, store, router := newTestAPI(t)
	batch := createProcessedBatch(t, store, router)

	rec := doJSON(t, router, http.MethodGet, "/api/batches/"+batch.ID+"/lines", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lines := decode[[]LineDTO](t, rec)
	require.Len(t, lines, 1)
	require.Equal(t, "p-gomez", lines[0].PhysicianID)
	require.Equal(t, "OSEP", lines[0].PayerKey)
	require.Equal(t, "560", lines[0].Net) // 800 - 30% retention

	rec = doJSON(t, router, http.MethodGet, "/api/batches/"+batch.ID+"/exclusions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	exclusions := decode[[]ExclusionDTO](t, rec)
	require.Len(t, exclusions, 1)
	require.Equal(t, "particular", exclusions[0].Reason)
}

func TestTransitionBatch(t *testing.T) {
	_, store, router := newTestAPI(t)
	batch := createProcessedBatch(t, store, router)

	rec := doJSON(t, router, http.MethodPost, "/api/batches/"+batch.ID+"/transition",
		TransitionRequest{To: "revisado"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "revisado", decode[BatchDTO](t, rec).State)

	// Skipping states is a lifecycle conflict.
	rec = doJSON(t, router, http.MethodPost, "/api/batches/"+batch.ID+"/transition",
		TransitionRequest{To: "finalizada"})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRecomputeBatch_Endpoint(t *testing.T) {
	_, store, router := newTestAPI(t)
	batch := createProcessedBatch(t, store, router)

	rec := doJSON(t, router, http.MethodPost, "/api/batches/"+batch.ID+"/recompute", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, batch.Gross, decode[BatchDTO](t, rec).Gross)
}

// =============================================================================
// EVENT ENDPOINT TESTS
// =============================================================================

func TestEditEvent_BuffersAndFlushes(t *testing.T) {
	h, store, router := newTestAPI(t)
	batch := createProcessedBatch(t, store, router)

	rec := doJSON(t, router, http.MethodGet, "/api/batches/"+batch.ID+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decode[[]EventDTO](t, rec)
	require.Len(t, events, 2)
	require.Equal(t, "saved", events[0].SaveState)

	patient := "40555666"
	rec = doJSON(t, router, http.MethodPatch, "/api/events/"+events[0].ID,
		EditEventRequest{PatientID: &patient})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "pending", decode[SaveStateDTO](t, rec).SaveState)

	rec = doJSON(t, router, http.MethodPost, "/api/events/flush", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, h.Buffer.PendingCount())

	rec = doJSON(t, router, http.MethodGet, "/api/events/"+events[0].ID+"/state", nil)
	require.Equal(t, "saved", decode[SaveStateDTO](t, rec).SaveState)

	edited, err := store.GetEvent(context.Background(), liquidation.EventID(events[0].ID))
	require.NoError(t, err)
	require.Equal(t, liquidation.PatientID("40555666"), edited.PatientID)
}

func TestEditEvent_UnknownEvent(t *testing.T) {
	_, _, router := newTestAPI(t)
	payer := "OSEP"
	rec := doJSON(t, router, http.MethodPatch, "/api/events/no-such-event",
		EditEventRequest{Payer: &payer})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteEvent_Endpoint(t *testing.T) {
	_, store, router := newTestAPI(t)
	batch := createProcessedBatch(t, store, router)

	rec := doJSON(t, router, http.MethodGet, "/api/batches/"+batch.ID+"/events", nil)
	events := decode[[]EventDTO](t, rec)

	var admitted string
	for _, e := range events {
		if !e.Excluded {
			admitted = e.ID
		}
	}
	require.NotEmpty(t, admitted)

	rec = doJSON(t, router, http.MethodDelete, "/api/events/"+admitted, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[BatchDTO](t, rec)
	require.Zero(t, updated.RowCount)
	require.Equal(t, "0", updated.Gross)
}

// =============================================================================
// CONFIGURATION ENDPOINT TESTS
// =============================================================================

func TestTariffEndpoints_NormalizePayerOnSave(t *testing.T) {
	_, _, router := newTestAPI(t)

	rec := doJSON(t, router, http.MethodPost, "/api/config/tariffs", TariffDTO{
		Payer: "DAMSU", Kind: "CONSULTA", Period: "2025-06", UnitValue: "1000",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "004 - DAMSU", decode[TariffDTO](t, rec).Payer)

	rec = doJSON(t, router, http.MethodGet, "/api/config/tariffs?period=2025-06", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]TariffDTO](t, rec), 1)

	// period query is mandatory on config listings.
	rec = doJSON(t, router, http.MethodGet, "/api/config/tariffs", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCopyConfigEndpoint(t *testing.T) {
	_, _, router := newTestAPI(t)

	rec := doJSON(t, router, http.MethodPost, "/api/config/tariffs", TariffDTO{
		Payer: "OSEP", Kind: "CONSULTA", Period: "2025-06", UnitValue: "800",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/config/copy", CopyConfigRequest{
		From: "2025-06", To: "2025-07", ScalePct: "10",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, decode[CopyConfigResponse](t, rec).Copied)

	rec = doJSON(t, router, http.MethodGet, "/api/config/tariffs?period=2025-07", nil)
	tariffs := decode[[]TariffDTO](t, rec)
	require.Len(t, tariffs, 1)
	require.Equal(t, "880", tariffs[0].UnitValue)

	// Copying a period onto itself is a client error.
	rec = doJSON(t, router, http.MethodPost, "/api/config/copy", CopyConfigRequest{
		From: "2025-06", To: "2025-06",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHolidayEndpoints(t *testing.T) {
	_, _, router := newTestAPI(t)

	rec := doJSON(t, router, http.MethodPost, "/api/holidays", HolidayDTO{
		Date: "2025-07-09", Name: "independencia", Recurring: true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[HolidayDTO](t, rec)
	require.NotEmpty(t, created.ID)

	rec = doJSON(t, router, http.MethodGet, "/api/holidays", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]HolidayDTO](t, rec), 1)

	rec = doJSON(t, router, http.MethodDelete, "/api/holidays/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/holidays", nil)
	require.Empty(t, decode[[]HolidayDTO](t, rec))
}
