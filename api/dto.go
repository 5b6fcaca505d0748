/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Batch:
    BatchDTO, CreateBatchRequest, TransitionRequest

  Rows:
    LineDTO, ExclusionDTO, EventDTO, EditEventRequest

  Configuration:
    TariffDTO, RateCardDTO, AdditionalDTO, GroupAssignmentDTO,
    HolidayDTO, CopyConfigRequest

MONEY:
  Monetary values travel as strings ("1234.56"), never as JSON floats.
  Parsing happens in handlers with shopspring/decimal.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - liquidation/types.go: Domain model
*/
package api

import (
	"time"

	"github.com/andes/liquidation-engine/liquidation"
)

// =============================================================================
// BATCH TYPES
// =============================================================================

// BatchDTO represents a liquidation batch in API responses.
type BatchDTO struct {
	ID            string   `json:"id"`
	Specialty     string   `json:"specialty"`
	Period        string   `json:"period"`
	Scheme        string   `json:"scheme"`
	State         string   `json:"state"`
	SourceFiles   []string `json:"source_files,omitempty"`
	RowCount      int      `json:"row_count"`
	ExcludedCount int      `json:"excluded_count"`
	Gross         string   `json:"gross"`
	Net           string   `json:"net"`
	LastError     string   `json:"last_error,omitempty"`
	CreatedAt     string   `json:"created_at,omitempty"`
	UpdatedAt     string   `json:"updated_at,omitempty"`
}

// CreateBatchRequest creates and processes a batch from raw rows.
// Each row is a column-label to raw-value map exactly as read from the
// source spreadsheet; header synonyms are normalized server-side.
type CreateBatchRequest struct {
	Specialty   string              `json:"specialty"`
	Period      string              `json:"period"` // "YYYY-MM"
	SourceFiles []string            `json:"source_files,omitempty"`
	Rows        []map[string]string `json:"rows"`
}

// TransitionRequest moves a batch through its review lifecycle.
type TransitionRequest struct {
	To string `json:"to"`
}

// =============================================================================
// LINE / EXCLUSION / EVENT TYPES
// =============================================================================

// LineDTO represents one computed liquidation line.
type LineDTO struct {
	PhysicianID   string `json:"physician_id"`
	PhysicianName string `json:"physician_name"`
	PayerKey      string `json:"payer_key"`
	Scheme        string `json:"scheme"`
	Quantity      string `json:"quantity"`
	UnitValue     string `json:"unit_value"`
	Gross         string `json:"gross"`
	Retention     string `json:"retention"`
	Additional    string `json:"additional"`
	Net           string `json:"net"`
}

// ExclusionDTO represents one rejected row with its reason and payload.
type ExclusionDTO struct {
	RowNumber int               `json:"row_number"`
	Reason    string            `json:"reason"`
	EventID   string            `json:"event_id,omitempty"`
	Payload   map[string]string `json:"payload,omitempty"`
}

// EventDTO represents one billable event for the review screen.
type EventDTO struct {
	ID              string `json:"id"`
	RowNumber       int    `json:"row_number"`
	PhysicianID     string `json:"physician_id"`
	PhysicianName   string `json:"physician_name"`
	Matched         bool   `json:"matched"`
	Payer           string `json:"payer"`
	PayerKey        string `json:"payer_key"`
	Date            string `json:"date,omitempty"`
	Start           string `json:"start,omitempty"`
	End             string `json:"end,omitempty"`
	PatientID       string `json:"patient_id,omitempty"`
	InvoicedAmount  string `json:"invoiced_amount,omitempty"`
	TrainingHour    bool   `json:"training_hour"`
	Excluded        bool   `json:"excluded"`
	ExclusionReason string `json:"exclusion_reason,omitempty"`
	Deleted         bool   `json:"deleted"`
	SaveState       string `json:"save_state"`
}

// EditEventRequest carries reviewer corrections to one event. Absent fields
// are left untouched, so partial edits coalesce in the buffer.
type EditEventRequest struct {
	PhysicianName  *string `json:"physician_name,omitempty"`
	Payer          *string `json:"payer,omitempty"`
	PatientID      *string `json:"patient_id,omitempty"`
	InvoicedAmount *string `json:"invoiced_amount,omitempty"`
}

// SaveStateDTO reports the persistence state of one event's edits.
type SaveStateDTO struct {
	EventID   string `json:"event_id"`
	SaveState string `json:"save_state"`
}

// =============================================================================
// CONFIGURATION TYPES
// =============================================================================

// TariffDTO represents a (payer, kind, period) unit value.
type TariffDTO struct {
	Payer     string `json:"payer"`
	Kind      string `json:"kind"`
	Period    string `json:"period"`
	UnitValue string `json:"unit_value"`
}

// RateCardDTO represents a specialty's hourly band rates for a period.
type RateCardDTO struct {
	Specialty         string            `json:"specialty"`
	Period            string            `json:"period"`
	Rates             map[string]string `json:"rates"`
	GuaranteedMinimum string            `json:"guaranteed_minimum"`
}

// AdditionalDTO represents a (payer, specialty, period) additional.
type AdditionalDTO struct {
	Payer      string `json:"payer"`
	Specialty  string `json:"specialty"`
	Period     string `json:"period"`
	Base       string `json:"base"`
	Percentage string `json:"percentage"`
}

// GroupAssignmentDTO represents a physician's fixed gross share for a period.
type GroupAssignmentDTO struct {
	PhysicianID  string `json:"physician_id"`
	Period       string `json:"period"`
	SharePercent string `json:"share_percent"`
}

// HolidayDTO represents a calendar holiday.
type HolidayDTO struct {
	ID        string `json:"id"`
	Date      string `json:"date"` // "YYYY-MM-DD"
	Name      string `json:"name,omitempty"`
	Recurring bool   `json:"recurring"`
}

// CopyConfigRequest opens a new period from a prior one, optionally scaling
// monetary values by a percentage.
type CopyConfigRequest struct {
	From     string `json:"from"` // "YYYY-MM"
	To       string `json:"to"`
	ScalePct string `json:"scale_pct,omitempty"` // "0" copies unchanged
}

// CopyConfigResponse reports how many records were copied.
type CopyConfigResponse struct {
	Copied int `json:"copied"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toBatchDTO(b liquidation.LiquidationBatch) BatchDTO {
	return BatchDTO{
		ID:            string(b.ID),
		Specialty:     b.Specialty,
		Period:        b.Period.String(),
		Scheme:        string(b.Scheme),
		State:         string(b.State),
		SourceFiles:   b.SourceFiles,
		RowCount:      b.Totals.RowCount,
		ExcludedCount: b.Totals.ExcludedCount,
		Gross:         b.Totals.Gross.String(),
		Net:           b.Totals.Net.String(),
		LastError:     b.LastError,
		CreatedAt:     formatTime(b.CreatedAt),
		UpdatedAt:     formatTime(b.UpdatedAt),
	}
}

func toLineDTO(l liquidation.LiquidationLine) LineDTO {
	return LineDTO{
		PhysicianID:   string(l.PhysicianID),
		PhysicianName: l.PhysicianName,
		PayerKey:      string(l.PayerKey),
		Scheme:        string(l.Scheme),
		Quantity:      l.Quantity.String(),
		UnitValue:     l.UnitValue.String(),
		Gross:         l.Gross.String(),
		Retention:     l.Retention.String(),
		Additional:    l.Additional.String(),
		Net:           l.Net.String(),
	}
}

func toExclusionDTO(ex liquidation.ExcludedRow) ExclusionDTO {
	return ExclusionDTO{
		RowNumber: ex.RowNumber,
		Reason:    string(ex.Reason),
		EventID:   string(ex.EventID),
		Payload:   ex.Payload,
	}
}

func toEventDTO(e liquidation.BillableEvent, state liquidation.SaveState) EventDTO {
	dto := EventDTO{
		ID:              string(e.ID),
		RowNumber:       e.RowNumber,
		PhysicianID:     string(e.PhysicianID),
		PhysicianName:   e.PhysicianName,
		Matched:         e.Matched,
		Payer:           e.Payer,
		PayerKey:        string(e.PayerKey),
		PatientID:       string(e.PatientID),
		TrainingHour:    e.TrainingHour,
		Excluded:        e.Excluded,
		ExclusionReason: string(e.ExclusionReason),
		Deleted:         e.Deleted,
		SaveState:       string(state),
	}
	if !e.Date.IsZero() {
		dto.Date = e.Date.Format("2006-01-02")
	}
	if e.Start != nil {
		dto.Start = e.Start.Format(time.RFC3339)
	}
	if e.End != nil {
		dto.End = e.End.Format(time.RFC3339)
	}
	if e.InvoicedAmount != nil {
		dto.InvoicedAmount = e.InvoicedAmount.String()
	}
	return dto
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
