// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/andes/liquidation-engine/liquidation"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements the full liquidation.Store bundle in process memory.
// Safe for concurrent use. An optional FailWrites hook simulates a store
// outage so edit-buffer retry behavior can be exercised in tests.
type Memory struct {
	mu sync.RWMutex

	events     map[liquidation.EventID]liquidation.BillableEvent
	eventOrder map[liquidation.BatchID][]liquidation.EventID
	batches    map[liquidation.BatchID]liquidation.LiquidationBatch
	lines      map[liquidation.BatchID][]liquidation.LiquidationLine
	exclusions map[liquidation.BatchID][]liquidation.ExcludedRow

	tariffs     map[string]liquidation.Tariff
	rateCards   map[string]liquidation.RateCard
	additionals map[string]liquidation.Additional
	groups      map[string]liquidation.GroupAssignment
	holidays    map[string]liquidation.Holiday

	// FailWrites makes every write return ErrStoreUnavailable while set.
	FailWrites bool
}

func NewMemory() *Memory {
	return &Memory{
		events:      make(map[liquidation.EventID]liquidation.BillableEvent),
		eventOrder:  make(map[liquidation.BatchID][]liquidation.EventID),
		batches:     make(map[liquidation.BatchID]liquidation.LiquidationBatch),
		lines:       make(map[liquidation.BatchID][]liquidation.LiquidationLine),
		exclusions:  make(map[liquidation.BatchID][]liquidation.ExcludedRow),
		tariffs:     make(map[string]liquidation.Tariff),
		rateCards:   make(map[string]liquidation.RateCard),
		additionals: make(map[string]liquidation.Additional),
		groups:      make(map[string]liquidation.GroupAssignment),
		holidays:    make(map[string]liquidation.Holiday),
	}
}

func (m *Memory) writeErr() error {
	if m.FailWrites {
		return liquidation.ErrStoreUnavailable
	}
	return nil
}

// -----------------------------------------------------------------------------
// EventStore
// -----------------------------------------------------------------------------

func (m *Memory) SaveEvent(_ context.Context, e liquidation.BillableEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	m.saveEventLocked(e)
	return nil
}

func (m *Memory) SaveEvents(_ context.Context, events []liquidation.BillableEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	for _, e := range events {
		m.saveEventLocked(e)
	}
	return nil
}

func (m *Memory) saveEventLocked(e liquidation.BillableEvent) {
	if _, exists := m.events[e.ID]; !exists {
		m.eventOrder[e.BatchID] = append(m.eventOrder[e.BatchID], e.ID)
	}
	m.events[e.ID] = e
}

func (m *Memory) GetEvent(_ context.Context, id liquidation.EventID) (*liquidation.BillableEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[id]
	if !ok {
		return nil, liquidation.ErrEventNotFound
	}
	return &e, nil
}

func (m *Memory) ListEvents(_ context.Context, batchID liquidation.BatchID) ([]liquidation.BillableEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.eventOrder[batchID]
	result := make([]liquidation.BillableEvent, 0, len(ids))
	for _, id := range ids {
		result = append(result, m.events[id])
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].RowNumber < result[j].RowNumber
	})
	return result, nil
}

// -----------------------------------------------------------------------------
// BatchStore
// -----------------------------------------------------------------------------

func (m *Memory) SaveBatch(_ context.Context, b liquidation.LiquidationBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	m.batches[b.ID] = b
	return nil
}

func (m *Memory) GetBatch(_ context.Context, id liquidation.BatchID) (*liquidation.LiquidationBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, liquidation.ErrBatchNotFound
	}
	return &b, nil
}

// FindBatch returns the newest matching batch, mirroring the SQLite store's
// created_at DESC ordering, so retried batches shadow their failed ancestors.
func (m *Memory) FindBatch(_ context.Context, specialty string, period liquidation.Period) (*liquidation.LiquidationBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var newest *liquidation.LiquidationBatch
	for _, b := range m.batches {
		if b.Specialty != specialty || !b.Period.Equal(period) {
			continue
		}
		if newest == nil || b.CreatedAt.After(newest.CreatedAt) {
			b := b
			newest = &b
		}
	}
	return newest, nil
}

func (m *Memory) ListBatches(_ context.Context) ([]liquidation.LiquidationBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]liquidation.LiquidationBatch, 0, len(m.batches))
	for _, b := range m.batches {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// -----------------------------------------------------------------------------
// LineStore / ExclusionStore
// -----------------------------------------------------------------------------

func (m *Memory) ReplaceLines(_ context.Context, batchID liquidation.BatchID, lines []liquidation.LiquidationLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	m.lines[batchID] = append([]liquidation.LiquidationLine(nil), lines...)
	return nil
}

func (m *Memory) ListLines(_ context.Context, batchID liquidation.BatchID) ([]liquidation.LiquidationLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]liquidation.LiquidationLine(nil), m.lines[batchID]...), nil
}

func (m *Memory) ReplaceExclusions(_ context.Context, batchID liquidation.BatchID, rows []liquidation.ExcludedRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	m.exclusions[batchID] = append([]liquidation.ExcludedRow(nil), rows...)
	return nil
}

func (m *Memory) ListExclusions(_ context.Context, batchID liquidation.BatchID) ([]liquidation.ExcludedRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]liquidation.ExcludedRow(nil), m.exclusions[batchID]...), nil
}

// -----------------------------------------------------------------------------
// ConfigStore
// -----------------------------------------------------------------------------

func tariffKey(payer liquidation.PayerKey, kind string, period liquidation.Period) string {
	return string(payer) + "|" + kind + "|" + period.String()
}

func (m *Memory) GetTariff(_ context.Context, payer liquidation.PayerKey, kind string, period liquidation.Period) (*liquidation.Tariff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tariffs[tariffKey(payer, kind, period)]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *Memory) SaveTariff(_ context.Context, t liquidation.Tariff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	m.tariffs[tariffKey(t.Payer, t.Kind, t.Period)] = t
	return nil
}

func (m *Memory) ListTariffs(_ context.Context, period liquidation.Period) ([]liquidation.Tariff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []liquidation.Tariff
	for _, t := range m.tariffs {
		if t.Period.Equal(period) {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Payer != result[j].Payer {
			return result[i].Payer < result[j].Payer
		}
		return result[i].Kind < result[j].Kind
	})
	return result, nil
}

func (m *Memory) GetRateCard(_ context.Context, specialty string, period liquidation.Period) (*liquidation.RateCard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rc, ok := m.rateCards[specialty+"|"+period.String()]
	if !ok {
		return nil, nil
	}
	return &rc, nil
}

func (m *Memory) SaveRateCard(_ context.Context, rc liquidation.RateCard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	m.rateCards[rc.Specialty+"|"+rc.Period.String()] = rc
	return nil
}

func (m *Memory) ListRateCards(_ context.Context, period liquidation.Period) ([]liquidation.RateCard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []liquidation.RateCard
	for _, rc := range m.rateCards {
		if rc.Period.Equal(period) {
			result = append(result, rc)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Specialty < result[j].Specialty })
	return result, nil
}

func (m *Memory) GetAdditional(_ context.Context, payer liquidation.PayerKey, specialty string, period liquidation.Period) (*liquidation.Additional, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.additionals[string(payer)+"|"+specialty+"|"+period.String()]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Memory) SaveAdditional(_ context.Context, a liquidation.Additional) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	m.additionals[string(a.Payer)+"|"+a.Specialty+"|"+a.Period.String()] = a
	return nil
}

func (m *Memory) ListAdditionals(_ context.Context, period liquidation.Period) ([]liquidation.Additional, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []liquidation.Additional
	for _, a := range m.additionals {
		if a.Period.Equal(period) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Payer != result[j].Payer {
			return result[i].Payer < result[j].Payer
		}
		return result[i].Specialty < result[j].Specialty
	})
	return result, nil
}

func (m *Memory) GetGroupAssignment(_ context.Context, physician liquidation.PhysicianID, period liquidation.Period) (*liquidation.GroupAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[string(physician)+"|"+period.String()]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

// SaveGroupAssignment replaces any existing assignment for the
// (physician, period) tuple; a physician is never in two groups at once.
func (m *Memory) SaveGroupAssignment(_ context.Context, g liquidation.GroupAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	m.groups[string(g.PhysicianID)+"|"+g.Period.String()] = g
	return nil
}

func (m *Memory) ListGroupAssignments(_ context.Context, period liquidation.Period) ([]liquidation.GroupAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []liquidation.GroupAssignment
	for _, g := range m.groups {
		if g.Period.Equal(period) {
			result = append(result, g)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PhysicianID < result[j].PhysicianID })
	return result, nil
}

func (m *Memory) ListHolidays(_ context.Context) ([]liquidation.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]liquidation.Holiday, 0, len(m.holidays))
	for _, h := range m.holidays {
		result = append(result, h)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (m *Memory) SaveHoliday(_ context.Context, h liquidation.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	m.holidays[h.ID] = h
	return nil
}

func (m *Memory) DeleteHoliday(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	delete(m.holidays, id)
	return nil
}

// Compile-time check that Memory implements the full store bundle.
var _ liquidation.Store = (*Memory)(nil)
