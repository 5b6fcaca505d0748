/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements the full liquidation.Store bundle using SQLite. In production
  the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

KEY TABLES:
  events:             Billable events, soft-flagged (excluded/deleted)
  batches:            Liquidation batches with denormalized totals
  lines:              Derived liquidation lines, replaced wholesale
  exclusions:         Derived exclusion records, replaced wholesale
  tariffs:            (payer, kind, period) -> unit value
  rate_cards:         (specialty, period) -> band rates + minimum
  additionals:        (payer, specialty, period) -> base + percentage
  group_assignments:  (physician, period) -> share percent
  holidays:           Calendar feeding the band partitioner

VERSIONING ENFORCEMENT:
  Configuration tables carry UNIQUE constraints on their (key, period)
  tuples: exactly one active value per tuple. Upserts replace in place for
  the same period; past periods are only ever touched by the explicit
  period-copy operation, which inserts new rows.

MONEY AND DATES:
  Decimal values are stored as TEXT and parsed with shopspring/decimal;
  dates as RFC 3339 TEXT; periods as "YYYY-MM" TEXT.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/liquidation.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - liquidation/store.go: Interface definitions
  - liquidation/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/andes/liquidation-engine/liquidation"
)

// Store implements liquidation.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL,
		row_number INTEGER NOT NULL,
		physician_id TEXT,
		physician_name TEXT,
		matched INTEGER NOT NULL DEFAULT 0,
		payer TEXT,
		payer_key TEXT,
		specialty TEXT,
		date TEXT,
		start_at TEXT,
		end_at TEXT,
		patient_id TEXT,
		invoiced_amount TEXT,
		training_hour INTEGER NOT NULL DEFAULT 0,
		excluded INTEGER NOT NULL DEFAULT 0,
		exclusion_reason TEXT,
		deleted INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_batch ON events(batch_id, row_number);

	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		specialty TEXT NOT NULL,
		period TEXT NOT NULL,
		scheme TEXT NOT NULL,
		state TEXT NOT NULL,
		source_files TEXT,
		row_count INTEGER NOT NULL DEFAULT 0,
		excluded_count INTEGER NOT NULL DEFAULT 0,
		gross TEXT NOT NULL DEFAULT '0',
		net TEXT NOT NULL DEFAULT '0',
		last_error TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_batches_specialty_period ON batches(specialty, period);

	CREATE TABLE IF NOT EXISTS lines (
		batch_id TEXT NOT NULL,
		physician_id TEXT NOT NULL,
		physician_name TEXT,
		payer_key TEXT NOT NULL,
		scheme TEXT NOT NULL,
		quantity TEXT NOT NULL,
		unit_value TEXT NOT NULL,
		gross TEXT NOT NULL,
		retention TEXT NOT NULL,
		additional TEXT NOT NULL,
		net TEXT NOT NULL,
		PRIMARY KEY (batch_id, physician_id, payer_key)
	);

	CREATE TABLE IF NOT EXISTS exclusions (
		batch_id TEXT NOT NULL,
		row_number INTEGER NOT NULL,
		reason TEXT NOT NULL,
		event_id TEXT,
		payload TEXT,
		PRIMARY KEY (batch_id, row_number)
	);

	CREATE TABLE IF NOT EXISTS tariffs (
		payer TEXT NOT NULL,
		kind TEXT NOT NULL,
		period TEXT NOT NULL,
		unit_value TEXT NOT NULL,
		PRIMARY KEY (payer, kind, period)
	);

	CREATE TABLE IF NOT EXISTS rate_cards (
		specialty TEXT NOT NULL,
		period TEXT NOT NULL,
		rates TEXT NOT NULL,
		guaranteed_minimum TEXT NOT NULL,
		PRIMARY KEY (specialty, period)
	);

	CREATE TABLE IF NOT EXISTS additionals (
		payer TEXT NOT NULL,
		specialty TEXT NOT NULL,
		period TEXT NOT NULL,
		base TEXT NOT NULL,
		percentage TEXT NOT NULL,
		PRIMARY KEY (payer, specialty, period)
	);

	CREATE TABLE IF NOT EXISTS group_assignments (
		physician_id TEXT NOT NULL,
		period TEXT NOT NULL,
		share_percent TEXT NOT NULL,
		PRIMARY KEY (physician_id, period)
	);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		name TEXT,
		recurring INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// EVENT STORE
// =============================================================================

const eventColumns = `id, batch_id, row_number, physician_id, physician_name, matched,
	payer, payer_key, specialty, date, start_at, end_at, patient_id,
	invoiced_amount, training_hour, excluded, exclusion_reason, deleted,
	created_at, updated_at`

func (s *Store) SaveEvent(ctx context.Context, e liquidation.BillableEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveEvent(ctx, s.db, e)
}

func (s *Store) SaveEvents(ctx context.Context, events []liquidation.BillableEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", liquidation.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	for _, e := range events {
		if err := s.saveEvent(ctx, tx, e); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) saveEvent(ctx context.Context, ex execer, e liquidation.BillableEvent) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			physician_id=excluded.physician_id,
			physician_name=excluded.physician_name,
			matched=excluded.matched,
			payer=excluded.payer,
			payer_key=excluded.payer_key,
			date=excluded.date,
			start_at=excluded.start_at,
			end_at=excluded.end_at,
			patient_id=excluded.patient_id,
			invoiced_amount=excluded.invoiced_amount,
			training_hour=excluded.training_hour,
			excluded=excluded.excluded,
			exclusion_reason=excluded.exclusion_reason,
			deleted=excluded.deleted,
			updated_at=excluded.updated_at`,
		string(e.ID), string(e.BatchID), e.RowNumber, string(e.PhysicianID),
		e.PhysicianName, boolInt(e.Matched), e.Payer, string(e.PayerKey),
		e.Specialty, timeText(e.Date), timePtrText(e.Start), timePtrText(e.End),
		string(e.PatientID), decimalPtrText(e.InvoicedAmount),
		boolInt(e.TrainingHour), boolInt(e.Excluded), string(e.ExclusionReason),
		boolInt(e.Deleted), timeText(e.CreatedAt), timeText(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("%w: save event: %v", liquidation.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id liquidation.EventID) (*liquidation.BillableEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, string(id))
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, liquidation.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) ListEvents(ctx context.Context, batchID liquidation.BatchID) ([]liquidation.BillableEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE batch_id = ? ORDER BY row_number`, string(batchID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []liquidation.BillableEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*liquidation.BillableEvent, error) {
	var (
		e                                liquidation.BillableEvent
		id, batchID, physID, patientID   string
		payerKey, reason                 string
		matched, training, excl, deleted int
		date, createdAt, updatedAt       string
		startAt, endAt, invoiced         sql.NullString
	)
	err := row.Scan(&id, &batchID, &e.RowNumber, &physID, &e.PhysicianName,
		&matched, &e.Payer, &payerKey, &e.Specialty, &date, &startAt, &endAt,
		&patientID, &invoiced, &training, &excl, &reason, &deleted,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	e.ID = liquidation.EventID(id)
	e.BatchID = liquidation.BatchID(batchID)
	e.PhysicianID = liquidation.PhysicianID(physID)
	e.PatientID = liquidation.PatientID(patientID)
	e.PayerKey = liquidation.PayerKey(payerKey)
	e.ExclusionReason = liquidation.ReasonCode(reason)
	e.Matched = matched != 0
	e.TrainingHour = training != 0
	e.Excluded = excl != 0
	e.Deleted = deleted != 0
	e.Date = parseTimeText(date)
	e.Start = parseTimePtr(startAt)
	e.End = parseTimePtr(endAt)
	e.CreatedAt = parseTimeText(createdAt)
	e.UpdatedAt = parseTimeText(updatedAt)
	if invoiced.Valid && invoiced.String != "" {
		d, err := decimal.NewFromString(invoiced.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt invoiced amount %q: %w", invoiced.String, err)
		}
		e.InvoicedAmount = &d
	}
	return &e, nil
}

// =============================================================================
// BATCH STORE
// =============================================================================

const batchColumns = `id, specialty, period, scheme, state, source_files,
	row_count, excluded_count, gross, net, last_error, created_at, updated_at`

func (s *Store) SaveBatch(ctx context.Context, b liquidation.LiquidationBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := json.Marshal(b.SourceFiles)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO batches (`+batchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state=excluded.state,
			source_files=excluded.source_files,
			row_count=excluded.row_count,
			excluded_count=excluded.excluded_count,
			gross=excluded.gross,
			net=excluded.net,
			last_error=excluded.last_error,
			updated_at=excluded.updated_at`,
		string(b.ID), b.Specialty, b.Period.String(), string(b.Scheme),
		string(b.State), string(files), b.Totals.RowCount, b.Totals.ExcludedCount,
		b.Totals.Gross.String(), b.Totals.Net.String(), b.LastError,
		timeText(b.CreatedAt), timeText(b.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("%w: save batch: %v", liquidation.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) GetBatch(ctx context.Context, id liquidation.BatchID) (*liquidation.LiquidationBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = ?`, string(id))
	b, err := scanBatch(row)
	if err == sql.ErrNoRows {
		return nil, liquidation.ErrBatchNotFound
	}
	return b, err
}

func (s *Store) FindBatch(ctx context.Context, specialty string, period liquidation.Period) (*liquidation.LiquidationBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM batches WHERE specialty = ? AND period = ? ORDER BY created_at DESC LIMIT 1`,
		specialty, period.String())
	b, err := scanBatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

func (s *Store) ListBatches(ctx context.Context) ([]liquidation.LiquidationBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+batchColumns+` FROM batches ORDER BY period DESC, specialty`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []liquidation.LiquidationBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}

func scanBatch(row scanner) (*liquidation.LiquidationBatch, error) {
	var (
		b                    liquidation.LiquidationBatch
		id, period, scheme   string
		state, gross, net    string
		files, lastErr       sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&id, &b.Specialty, &period, &scheme, &state, &files,
		&b.Totals.RowCount, &b.Totals.ExcludedCount, &gross, &net, &lastErr,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	b.ID = liquidation.BatchID(id)
	b.Scheme = liquidation.Scheme(scheme)
	b.State = liquidation.BatchState(state)
	b.LastError = lastErr.String
	b.CreatedAt = parseTimeText(createdAt)
	b.UpdatedAt = parseTimeText(updatedAt)

	if b.Period, err = liquidation.ParsePeriod(period); err != nil {
		return nil, err
	}
	if b.Totals.Gross, err = decimal.NewFromString(gross); err != nil {
		return nil, fmt.Errorf("corrupt batch gross %q: %w", gross, err)
	}
	if b.Totals.Net, err = decimal.NewFromString(net); err != nil {
		return nil, fmt.Errorf("corrupt batch net %q: %w", net, err)
	}
	if files.Valid && files.String != "" {
		if err := json.Unmarshal([]byte(files.String), &b.SourceFiles); err != nil {
			return nil, err
		}
	}
	return &b, nil
}

// =============================================================================
// LINE / EXCLUSION STORES - replaced wholesale per batch
// =============================================================================

func (s *Store) ReplaceLines(ctx context.Context, batchID liquidation.BatchID, lines []liquidation.LiquidationLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", liquidation.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM lines WHERE batch_id = ?`, string(batchID)); err != nil {
		return err
	}
	for _, l := range lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO lines (batch_id, physician_id, physician_name, payer_key,
				scheme, quantity, unit_value, gross, retention, additional, net)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(l.BatchID), string(l.PhysicianID), l.PhysicianName,
			string(l.PayerKey), string(l.Scheme), l.Quantity.String(),
			l.UnitValue.String(), l.Gross.String(), l.Retention.String(),
			l.Additional.String(), l.Net.String(),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListLines(ctx context.Context, batchID liquidation.BatchID) ([]liquidation.LiquidationLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT batch_id, physician_id, physician_name, payer_key, scheme,
			quantity, unit_value, gross, retention, additional, net
		FROM lines WHERE batch_id = ?
		ORDER BY physician_id, payer_key`, string(batchID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []liquidation.LiquidationLine
	for rows.Next() {
		var (
			l                               liquidation.LiquidationLine
			bID, physID, payer, scheme      string
			qty, unit, gross, ret, add, net string
		)
		if err := rows.Scan(&bID, &physID, &l.PhysicianName, &payer, &scheme,
			&qty, &unit, &gross, &ret, &add, &net); err != nil {
			return nil, err
		}
		l.BatchID = liquidation.BatchID(bID)
		l.PhysicianID = liquidation.PhysicianID(physID)
		l.PayerKey = liquidation.PayerKey(payer)
		l.Scheme = liquidation.Scheme(scheme)
		for _, pair := range []struct {
			dst *decimal.Decimal
			src string
		}{
			{&l.Quantity, qty}, {&l.UnitValue, unit}, {&l.Gross, gross},
			{&l.Retention, ret}, {&l.Additional, add}, {&l.Net, net},
		} {
			if *pair.dst, err = decimal.NewFromString(pair.src); err != nil {
				return nil, fmt.Errorf("corrupt line value %q: %w", pair.src, err)
			}
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *Store) ReplaceExclusions(ctx context.Context, batchID liquidation.BatchID, excluded []liquidation.ExcludedRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", liquidation.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM exclusions WHERE batch_id = ?`, string(batchID)); err != nil {
		return err
	}
	for _, ex := range excluded {
		payload, err := json.Marshal(ex.Payload)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO exclusions (batch_id, row_number, reason, event_id, payload)
			VALUES (?, ?, ?, ?, ?)`,
			string(ex.BatchID), ex.RowNumber, string(ex.Reason),
			string(ex.EventID), string(payload),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListExclusions(ctx context.Context, batchID liquidation.BatchID) ([]liquidation.ExcludedRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT batch_id, row_number, reason, event_id, payload
		FROM exclusions WHERE batch_id = ? ORDER BY row_number`, string(batchID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var excluded []liquidation.ExcludedRow
	for rows.Next() {
		var (
			ex                liquidation.ExcludedRow
			bID, reason, evID string
			payload           sql.NullString
		)
		if err := rows.Scan(&bID, &ex.RowNumber, &reason, &evID, &payload); err != nil {
			return nil, err
		}
		ex.BatchID = liquidation.BatchID(bID)
		ex.Reason = liquidation.ReasonCode(reason)
		ex.EventID = liquidation.EventID(evID)
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &ex.Payload); err != nil {
				return nil, err
			}
		}
		excluded = append(excluded, ex)
	}
	return excluded, rows.Err()
}

// =============================================================================
// CONFIG STORE - tariffs
// =============================================================================

func (s *Store) GetTariff(ctx context.Context, payer liquidation.PayerKey, kind string, period liquidation.Period) (*liquidation.Tariff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT unit_value FROM tariffs WHERE payer = ? AND kind = ? AND period = ?`,
		string(payer), kind, period.String()).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("corrupt tariff value %q: %w", value, err)
	}
	return &liquidation.Tariff{Payer: payer, Kind: kind, Period: period, UnitValue: d}, nil
}

func (s *Store) SaveTariff(ctx context.Context, t liquidation.Tariff) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tariffs (payer, kind, period, unit_value) VALUES (?, ?, ?, ?)
		ON CONFLICT(payer, kind, period) DO UPDATE SET unit_value=excluded.unit_value`,
		string(t.Payer), t.Kind, t.Period.String(), t.UnitValue.String())
	if err != nil {
		return fmt.Errorf("%w: save tariff: %v", liquidation.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) ListTariffs(ctx context.Context, period liquidation.Period) ([]liquidation.Tariff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT payer, kind, unit_value FROM tariffs WHERE period = ? ORDER BY payer, kind`,
		period.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tariffs []liquidation.Tariff
	for rows.Next() {
		var payer, kind, value string
		if err := rows.Scan(&payer, &kind, &value); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("corrupt tariff value %q: %w", value, err)
		}
		tariffs = append(tariffs, liquidation.Tariff{
			Payer: liquidation.PayerKey(payer), Kind: kind, Period: period, UnitValue: d,
		})
	}
	return tariffs, rows.Err()
}

// =============================================================================
// CONFIG STORE - rate cards
// =============================================================================

func (s *Store) GetRateCard(ctx context.Context, specialty string, period liquidation.Period) (*liquidation.RateCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ratesJSON, minimum string
	err := s.db.QueryRowContext(ctx,
		`SELECT rates, guaranteed_minimum FROM rate_cards WHERE specialty = ? AND period = ?`,
		specialty, period.String()).Scan(&ratesJSON, &minimum)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return unmarshalRateCard(specialty, period, ratesJSON, minimum)
}

func (s *Store) SaveRateCard(ctx context.Context, rc liquidation.RateCard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rates := make(map[string]string, len(rc.Rates))
	for band, rate := range rc.Rates {
		rates[string(band)] = rate.String()
	}
	ratesJSON, err := json.Marshal(rates)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rate_cards (specialty, period, rates, guaranteed_minimum)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(specialty, period) DO UPDATE SET
			rates=excluded.rates,
			guaranteed_minimum=excluded.guaranteed_minimum`,
		rc.Specialty, rc.Period.String(), string(ratesJSON), rc.GuaranteedMinimum.String())
	if err != nil {
		return fmt.Errorf("%w: save rate card: %v", liquidation.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) ListRateCards(ctx context.Context, period liquidation.Period) ([]liquidation.RateCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT specialty, rates, guaranteed_minimum FROM rate_cards WHERE period = ? ORDER BY specialty`,
		period.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []liquidation.RateCard
	for rows.Next() {
		var specialty, ratesJSON, minimum string
		if err := rows.Scan(&specialty, &ratesJSON, &minimum); err != nil {
			return nil, err
		}
		rc, err := unmarshalRateCard(specialty, period, ratesJSON, minimum)
		if err != nil {
			return nil, err
		}
		cards = append(cards, *rc)
	}
	return cards, rows.Err()
}

func unmarshalRateCard(specialty string, period liquidation.Period, ratesJSON, minimum string) (*liquidation.RateCard, error) {
	var raw map[string]string
	if err := json.Unmarshal([]byte(ratesJSON), &raw); err != nil {
		return nil, err
	}
	rc := liquidation.RateCard{
		Specialty: specialty,
		Period:    period,
		Rates:     make(map[liquidation.Band]decimal.Decimal, len(raw)),
	}
	for band, rate := range raw {
		d, err := decimal.NewFromString(rate)
		if err != nil {
			return nil, fmt.Errorf("corrupt band rate %q: %w", rate, err)
		}
		rc.Rates[liquidation.Band(band)] = d
	}
	var err error
	if rc.GuaranteedMinimum, err = decimal.NewFromString(minimum); err != nil {
		return nil, fmt.Errorf("corrupt guaranteed minimum %q: %w", minimum, err)
	}
	return &rc, nil
}

// =============================================================================
// CONFIG STORE - additionals
// =============================================================================

func (s *Store) GetAdditional(ctx context.Context, payer liquidation.PayerKey, specialty string, period liquidation.Period) (*liquidation.Additional, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var base, pct string
	err := s.db.QueryRowContext(ctx,
		`SELECT base, percentage FROM additionals WHERE payer = ? AND specialty = ? AND period = ?`,
		string(payer), specialty, period.String()).Scan(&base, &pct)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a := liquidation.Additional{Payer: payer, Specialty: specialty, Period: period}
	if a.Base, err = decimal.NewFromString(base); err != nil {
		return nil, fmt.Errorf("corrupt additional base %q: %w", base, err)
	}
	if a.Percentage, err = decimal.NewFromString(pct); err != nil {
		return nil, fmt.Errorf("corrupt additional percentage %q: %w", pct, err)
	}
	return &a, nil
}

func (s *Store) SaveAdditional(ctx context.Context, a liquidation.Additional) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO additionals (payer, specialty, period, base, percentage)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(payer, specialty, period) DO UPDATE SET
			base=excluded.base,
			percentage=excluded.percentage`,
		string(a.Payer), a.Specialty, a.Period.String(), a.Base.String(), a.Percentage.String())
	if err != nil {
		return fmt.Errorf("%w: save additional: %v", liquidation.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) ListAdditionals(ctx context.Context, period liquidation.Period) ([]liquidation.Additional, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT payer, specialty, base, percentage FROM additionals WHERE period = ? ORDER BY payer, specialty`,
		period.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var additionals []liquidation.Additional
	for rows.Next() {
		var payer, specialty, base, pct string
		if err := rows.Scan(&payer, &specialty, &base, &pct); err != nil {
			return nil, err
		}
		a := liquidation.Additional{
			Payer: liquidation.PayerKey(payer), Specialty: specialty, Period: period,
		}
		if a.Base, err = decimal.NewFromString(base); err != nil {
			return nil, fmt.Errorf("corrupt additional base %q: %w", base, err)
		}
		if a.Percentage, err = decimal.NewFromString(pct); err != nil {
			return nil, fmt.Errorf("corrupt additional percentage %q: %w", pct, err)
		}
		additionals = append(additionals, a)
	}
	return additionals, rows.Err()
}

// =============================================================================
// CONFIG STORE - group assignments
// =============================================================================

func (s *Store) GetGroupAssignment(ctx context.Context, physician liquidation.PhysicianID, period liquidation.Period) (*liquidation.GroupAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var share string
	err := s.db.QueryRowContext(ctx,
		`SELECT share_percent FROM group_assignments WHERE physician_id = ? AND period = ?`,
		string(physician), period.String()).Scan(&share)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(share)
	if err != nil {
		return nil, fmt.Errorf("corrupt share percent %q: %w", share, err)
	}
	return &liquidation.GroupAssignment{PhysicianID: physician, Period: period, SharePercent: d}, nil
}

func (s *Store) SaveGroupAssignment(ctx context.Context, g liquidation.GroupAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The primary key enforces at most one group share per physician per period.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_assignments (physician_id, period, share_percent)
		VALUES (?, ?, ?)
		ON CONFLICT(physician_id, period) DO UPDATE SET share_percent=excluded.share_percent`,
		string(g.PhysicianID), g.Period.String(), g.SharePercent.String())
	if err != nil {
		return fmt.Errorf("%w: save group assignment: %v", liquidation.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) ListGroupAssignments(ctx context.Context, period liquidation.Period) ([]liquidation.GroupAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT physician_id, share_percent FROM group_assignments WHERE period = ? ORDER BY physician_id`,
		period.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []liquidation.GroupAssignment
	for rows.Next() {
		var physician, share string
		if err := rows.Scan(&physician, &share); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(share)
		if err != nil {
			return nil, fmt.Errorf("corrupt share percent %q: %w", share, err)
		}
		groups = append(groups, liquidation.GroupAssignment{
			PhysicianID: liquidation.PhysicianID(physician), Period: period, SharePercent: d,
		})
	}
	return groups, rows.Err()
}

// =============================================================================
// CONFIG STORE - holidays
// =============================================================================

func (s *Store) ListHolidays(ctx context.Context) ([]liquidation.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, date, name, recurring FROM holidays ORDER BY date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holidays []liquidation.Holiday
	for rows.Next() {
		var h liquidation.Holiday
		var date string
		var recurring int
		if err := rows.Scan(&h.ID, &date, &h.Name, &recurring); err != nil {
			return nil, err
		}
		h.Date = parseTimeText(date)
		h.Recurring = recurring != 0
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

func (s *Store) SaveHoliday(ctx context.Context, h liquidation.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO holidays (id, date, name, recurring) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET date=excluded.date, name=excluded.name, recurring=excluded.recurring`,
		h.ID, timeText(h.Date), h.Name, boolInt(h.Recurring))
	if err != nil {
		return fmt.Errorf("%w: save holiday: %v", liquidation.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM holidays WHERE id = ?`, id)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timeText(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func timePtrText(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeText(*t)
}

func decimalPtrText(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseTimeText(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTimeText(s.String)
	return &t
}

// Compile-time check that Store implements the full store bundle.
var _ liquidation.Store = (*Store)(nil)
