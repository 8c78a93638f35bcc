// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/points-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (default backend)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	lots     []generic.Lot // FIFO order
	balances map[generic.PayerID]generic.Points
	seq      uint64
}

func NewMemory() *Memory {
	return &Memory{
		balances: make(map[generic.PayerID]generic.Points),
	}
}

// AddLot inserts a lot at its FIFO position.
func (m *Memory) AddLot(_ context.Context, lot generic.Lot) (generic.Lot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLotLocked(lot), nil
}

func (m *Memory) addLotLocked(lot generic.Lot) generic.Lot {
	m.seq++
	lot.Seq = m.seq
	lot.EarnedAt = generic.Normalize(lot.EarnedAt)

	// Binary search for the first lot strictly younger: equal timestamps stay
	// in insertion order.
	i := sort.Search(len(m.lots), func(i int) bool {
		return m.lots[i].EarnedAt.After(lot.EarnedAt)
	})

	m.lots = append(m.lots, generic.Lot{})
	copy(m.lots[i+1:], m.lots[i:])
	m.lots[i] = lot
	return lot
}

func (m *Memory) Lots(_ context.Context) ([]generic.Lot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lotsLocked(), nil
}

func (m *Memory) lotsLocked() []generic.Lot {
	result := make([]generic.Lot, 0, len(m.lots))
	for _, lot := range m.lots {
		if !lot.Exhausted() {
			result = append(result, lot)
		}
	}
	return result
}

// Consume applies draws. Either every draw is applied or none is.
func (m *Memory) Consume(_ context.Context, draws []generic.Draw) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consumeLocked(draws)
}

func (m *Memory) consumeLocked(draws []generic.Draw) error {
	index := make(map[generic.LotID]int, len(m.lots))
	for i, lot := range m.lots {
		index[lot.ID] = i
	}

	// Validate the whole batch first (a lot may appear in several draws).
	pending := make(map[int]generic.Points, len(draws))
	for _, d := range draws {
		i, ok := index[d.LotID]
		if !ok {
			return generic.ErrLotNotFound
		}
		pending[i] += d.Amount
		if d.Amount < 0 || pending[i] > m.lots[i].Remaining {
			return generic.ErrNegativeRemaining
		}
	}

	for i, amount := range pending {
		m.lots[i].Remaining -= amount
	}
	return nil
}

func (m *Memory) Purge(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.purgeLocked(), nil
}

// purgeLocked compacts the slice in place, keeping FIFO order.
func (m *Memory) purgeLocked() int {
	kept := m.lots[:0]
	for _, lot := range m.lots {
		if !lot.Exhausted() {
			kept = append(kept, lot)
		}
	}
	removed := len(m.lots) - len(kept)
	clear(m.lots[len(kept):])
	m.lots = kept
	return removed
}

func (m *Memory) Balances(_ context.Context) (map[generic.PayerID]generic.Points, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balancesLocked(), nil
}

func (m *Memory) balancesLocked() map[generic.PayerID]generic.Points {
	result := make(map[generic.PayerID]generic.Points, len(m.balances))
	for k, v := range m.balances {
		result[k] = v
	}
	return result
}

func (m *Memory) AdjustBalance(_ context.Context, payer generic.PayerID, delta generic.Points) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[payer] += delta
	return nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	return nil
}

func (m *Memory) resetLocked() {
	m.lots = nil
	m.balances = make(map[generic.PayerID]generic.Points)
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(generic.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()

	if err := fn(&txMemoryView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}

	// Commit (already done via direct writes)
	return nil
}

var _ generic.TxStore = (*Memory)(nil)

// =============================================================================
// SNAPSHOT / ROLLBACK
// =============================================================================

type memorySnapshot struct {
	lots     []generic.Lot
	balances map[generic.PayerID]generic.Points
	seq      uint64
}

func (m *Memory) snapshot() memorySnapshot {
	return memorySnapshot{
		lots:     append([]generic.Lot(nil), m.lots...),
		balances: m.balancesLocked(),
		seq:      m.seq,
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.lots = s.lots
	m.balances = s.balances
	m.seq = s.seq
}

// =============================================================================
// TRANSACTIONAL VIEW - Lock already held by WithTx
// =============================================================================

type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) AddLot(_ context.Context, lot generic.Lot) (generic.Lot, error) {
	return tv.parent.addLotLocked(lot), nil
}

func (tv *txMemoryView) Lots(_ context.Context) ([]generic.Lot, error) {
	return tv.parent.lotsLocked(), nil
}

func (tv *txMemoryView) Consume(_ context.Context, draws []generic.Draw) error {
	return tv.parent.consumeLocked(draws)
}

func (tv *txMemoryView) Purge(_ context.Context) (int, error) {
	return tv.parent.purgeLocked(), nil
}

func (tv *txMemoryView) Balances(_ context.Context) (map[generic.PayerID]generic.Points, error) {
	return tv.parent.balancesLocked(), nil
}

func (tv *txMemoryView) AdjustBalance(_ context.Context, payer generic.PayerID, delta generic.Points) error {
	tv.parent.balances[payer] += delta
	return nil
}

func (tv *txMemoryView) Reset(_ context.Context) error {
	tv.parent.resetLocked()
	return nil
}
