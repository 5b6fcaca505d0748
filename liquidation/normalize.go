/*
normalize.go - Label and payer-name normalization

PURPOSE:
  Source spreadsheets arrive with loosely-typed rows: arbitrary column
  labels, inconsistent casing, and payer names that drift between files
  ("CONSULTA DE GUARDIA CLÍNICA" vs "CONSULTA DE GUARDIA CLINIC"). All
  "unknown label" handling is isolated here so the rest of the engine only
  ever sees canonical keys and typed fields.

NORMALIZATION RULES:
  1. Trim and uppercase the raw label
  2. Strip diacritics (CLÍNICA == CLINICA)
  3. Collapse known variants through a fixed synonym table
  4. Unmatched labels fall back to the uppercased, trimmed copy - the
     engine never fails on an unknown payer, it stays visible for audit

SEE ALSO:
  - resolver.go: Consumes PayerKey for tariff lookup
  - filter.go: Uses the self-pay patterns against normalized payers
*/
package liquidation

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PAYER NORMALIZATION
// =============================================================================

// payerSynonyms collapses known label variants to one canonical key.
// Keys and values are in normalized (trimmed, uppercased, ASCII) form.
var payerSynonyms = map[string]string{
	"CONSULTA DE GUARDIA CLINIC":      "CONSULTA DE GUARDIA CLINICA",
	"CONSULTA GUARDIA CLINICA":        "CONSULTA DE GUARDIA CLINICA",
	"CONSULTA DE GUARDIA PEDIATRIC":   "CONSULTA DE GUARDIA PEDIATRICA",
	"CONSULTA GUARDIA PEDIATRICA":     "CONSULTA DE GUARDIA PEDIATRICA",
	"OBRA SOCIAL UNIV. NAC. DE CUYO":  "004 - DAMSU",
	"DAMSU":                           "004 - DAMSU",
	"O.S.E.P.":                        "OSEP",
	"PARTICULARES":                    "PARTICULAR",
	"SIN OBRA SOCIAL":                 "PARTICULAR",
	"SIN COBERTURA":                   "PARTICULAR",
}

// NormalizePayer returns the canonical key for a raw payer label.
// Matching is case-insensitive and trimmed; accented characters are folded
// so files exported with different encodings collapse to the same key.
// Unknown labels return their normalized form rather than an error.
func NormalizePayer(raw string) PayerKey {
	n := normalizeLabel(raw)
	if canonical, ok := payerSynonyms[n]; ok {
		return PayerKey(canonical)
	}
	return PayerKey(n)
}

func normalizeLabel(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = foldDiacritics(s)
	return strings.Join(strings.Fields(s), " ")
}

var diacriticFold = strings.NewReplacer(
	"Á", "A", "É", "E", "Í", "I", "Ó", "O", "Ú", "U", "Ü", "U", "Ñ", "N",
)

func foldDiacritics(s string) string {
	return diacriticFold.Replace(s)
}

// =============================================================================
// COLUMN LABEL MAPPING - raw row -> typed BillableEvent
// =============================================================================

// Column identifies a logical field of a source row.
type Column string

const (
	ColPhysician Column = "physician"
	ColPayer     Column = "payer"
	ColDate      Column = "date"
	ColStart     Column = "start"
	ColEnd       Column = "end"
	ColPatient   Column = "patient"
	ColAmount    Column = "amount"
)

// columnSynonyms maps normalized header labels to logical columns. Headers
// vary per clinic and per export tool; new variants are added here only.
var columnSynonyms = map[string]Column{
	"PROFESIONAL":      ColPhysician,
	"MEDICO":           ColPhysician,
	"DR":               ColPhysician,
	"OBRA SOCIAL":      ColPayer,
	"O.SOCIAL":         ColPayer,
	"FINANCIADOR":      ColPayer,
	"CONVENIO":         ColPayer,
	"FECHA":            ColDate,
	"FECHA ATENCION":   ColDate,
	"DIA":              ColDate,
	"HORA":             ColStart,
	"HORA INGRESO":     ColStart,
	"HORA DESDE":       ColStart,
	"HORA EGRESO":      ColEnd,
	"HORA HASTA":       ColEnd,
	"PACIENTE":         ColPatient,
	"DNI":              ColPatient,
	"DOCUMENTO":        ColPatient,
	"AFILIADO":         ColPatient,
	"IMPORTE":          ColAmount,
	"MONTO":            ColAmount,
	"FACTURADO":        ColAmount,
	"VALOR":            ColAmount,
}

// NormalizeColumn resolves a raw header label to its logical column.
// ok is false for labels the mapper does not recognize; such columns are
// carried in the exclusion payload but never interpreted.
func NormalizeColumn(raw string) (Column, bool) {
	c, ok := columnSynonyms[normalizeLabel(raw)]
	return c, ok
}

// =============================================================================
// ROW MAPPER
// =============================================================================

// RawRow is one ingested spreadsheet row: column-label -> raw cell value.
// The ingestion collaborator parses files; the engine only maps labels.
type RawRow map[string]string

// dateLayouts are tried in order when parsing row dates.
var dateLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"2006-01-02",
	"02-01-2006",
}

var clockLayouts = []string{
	"15:04",
	"15:04:05",
	"15.04",
}

// MapRow converts a raw row into a BillableEvent. Parse failures surface as
// zero fields (nil Start, zero Date), never as errors: the exclusion filter
// owns the decision to reject, so every row stays attributable.
func MapRow(row RawRow, batchID BatchID, rowNumber int, specialty string) BillableEvent {
	e := BillableEvent{
		BatchID:   batchID,
		RowNumber: rowNumber,
		Specialty: specialty,
	}

	for label, value := range row {
		col, ok := NormalizeColumn(label)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		switch col {
		case ColPhysician:
			e.PhysicianName = value
		case ColPayer:
			e.Payer = value
			e.PayerKey = NormalizePayer(value)
		case ColPatient:
			e.PatientID = PatientID(normalizeLabel(value))
		case ColDate:
			if d, ok := parseDate(value); ok {
				e.Date = d
			}
		case ColStart:
			if t, ok := parseClock(value); ok {
				e.Start = &t
			}
		case ColEnd:
			if t, ok := parseClock(value); ok {
				e.End = &t
			}
		case ColAmount:
			if d, ok := parseAmount(value); ok {
				e.InvoicedAmount = &d
			}
		}
	}

	// Anchor clock times onto the row date once both are known.
	if !e.Date.IsZero() {
		if e.Start != nil {
			t := onDate(e.Date, *e.Start)
			e.Start = &t
		}
		if e.End != nil {
			t := onDate(e.Date, *e.End)
			e.End = &t
		}
	}

	return e
}

func parseDate(value string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func parseClock(value string) (time.Time, bool) {
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseAmount accepts both "1.234,56" (local) and "1234.56" forms.
func parseAmount(value string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(strings.TrimPrefix(value, "$"))
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func onDate(date, clock time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), 0, time.UTC)
}
