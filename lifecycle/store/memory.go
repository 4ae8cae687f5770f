// Package store provides TxStore implementations.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/warp/deal-engine/lifecycle"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu     sync.RWMutex
	states map[lifecycle.AggregateID]lifecycle.DealState
	events map[lifecycle.AggregateID][]lifecycle.LedgerEvent
	audits map[lifecycle.AggregateID][]lifecycle.AuditOverrideRecord
}

func NewMemory() *Memory {
	return &Memory{
		states: make(map[lifecycle.AggregateID]lifecycle.DealState),
		events: make(map[lifecycle.AggregateID][]lifecycle.LedgerEvent),
		audits: make(map[lifecycle.AggregateID][]lifecycle.AuditOverrideRecord),
	}
}

func (m *Memory) GetState(_ context.Context, id lifecycle.AggregateID) (*lifecycle.DealState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getStateLocked(id)
}

func (m *Memory) getStateLocked(id lifecycle.AggregateID) (*lifecycle.DealState, error) {
	state, ok := m.states[id]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (m *Memory) PutState(_ context.Context, state lifecycle.DealState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putStateLocked(state)
}

func (m *Memory) putStateLocked(state lifecycle.DealState) error {
	m.states[state.AggregateID] = state
	return nil
}

// AppendEvent adds a ledger event. Append-only.
func (m *Memory) AppendEvent(_ context.Context, ev lifecycle.LedgerEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendEventLocked(ev)
}

func (m *Memory) appendEventLocked(ev lifecycle.LedgerEvent) error {
	events := m.events[ev.AggregateID]
	for _, existing := range events {
		if existing.SequenceNumber == ev.SequenceNumber {
			return fmt.Errorf("duplicate sequence %d for aggregate %s", ev.SequenceNumber, ev.AggregateID)
		}
	}
	m.events[ev.AggregateID] = append(events, ev)
	return nil
}

func (m *Memory) LastEvent(_ context.Context, id lifecycle.AggregateID) (*lifecycle.LedgerEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastEventLocked(id)
}

func (m *Memory) lastEventLocked(id lifecycle.AggregateID) (*lifecycle.LedgerEvent, error) {
	events := m.events[id]
	if len(events) == 0 {
		return nil, nil
	}
	ev := events[len(events)-1]
	return &ev, nil
}

func (m *Memory) LoadEvents(_ context.Context, id lifecycle.AggregateID, q lifecycle.HistoryQuery) ([]lifecycle.LedgerEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadEventsLocked(id, q)
}

func (m *Memory) loadEventsLocked(id lifecycle.AggregateID, q lifecycle.HistoryQuery) ([]lifecycle.LedgerEvent, error) {
	var selected []lifecycle.LedgerEvent
	for _, ev := range m.events[id] {
		if q.EventType != "" && ev.Type != q.EventType {
			continue
		}
		selected = append(selected, ev)
	}

	// Events are stored in append order, which is sequence order.
	if !q.Oldest {
		for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
			selected[i], selected[j] = selected[j], selected[i]
		}
	}

	if q.Offset > 0 {
		if q.Offset >= len(selected) {
			return nil, nil
		}
		selected = selected[q.Offset:]
	}
	if q.Limit > 0 && len(selected) > q.Limit {
		selected = selected[:q.Limit]
	}

	result := make([]lifecycle.LedgerEvent, len(selected))
	copy(result, selected)
	return result, nil
}

// AppendAudit adds an override record. Append-only.
func (m *Memory) AppendAudit(_ context.Context, rec lifecycle.AuditOverrideRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendAuditLocked(rec)
}

func (m *Memory) appendAuditLocked(rec lifecycle.AuditOverrideRecord) error {
	m.audits[rec.AggregateID] = append(m.audits[rec.AggregateID], rec)
	return nil
}

func (m *Memory) AuditRecords(_ context.Context, id lifecycle.AggregateID) ([]lifecycle.AuditOverrideRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.auditRecordsLocked(id)
}

func (m *Memory) auditRecordsLocked(id lifecycle.AggregateID) ([]lifecycle.AuditOverrideRecord, error) {
	result := make([]lifecycle.AuditOverrideRecord, len(m.audits[id]))
	copy(result, m.audits[id])
	return result, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For the memory store, this is simulated with a snapshot + rollback on
// error. The store mutex is held for the whole transaction, so memory
// transactions serialize globally; acceptable for tests and dev.
func (tm *TxMemory) WithTx(_ context.Context, fn func(lifecycle.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	view := &txMemoryView{parent: tm}

	if err := fn(view); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	states := make(map[lifecycle.AggregateID]lifecycle.DealState, len(tm.states))
	for k, v := range tm.states {
		states[k] = v
	}
	events := make(map[lifecycle.AggregateID][]lifecycle.LedgerEvent, len(tm.events))
	for k, v := range tm.events {
		events[k] = append([]lifecycle.LedgerEvent{}, v...)
	}
	audits := make(map[lifecycle.AggregateID][]lifecycle.AuditOverrideRecord, len(tm.audits))
	for k, v := range tm.audits {
		audits[k] = append([]lifecycle.AuditOverrideRecord{}, v...)
	}
	return memorySnapshot{states: states, events: events, audits: audits}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.states = s.states
	tm.events = s.events
	tm.audits = s.audits
}

type memorySnapshot struct {
	states map[lifecycle.AggregateID]lifecycle.DealState
	events map[lifecycle.AggregateID][]lifecycle.LedgerEvent
	audits map[lifecycle.AggregateID][]lifecycle.AuditOverrideRecord
}

// txMemoryView routes Store calls to the parent's locked helpers while the
// parent mutex is held by WithTx.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) GetState(_ context.Context, id lifecycle.AggregateID) (*lifecycle.DealState, error) {
	return tv.parent.getStateLocked(id)
}

func (tv *txMemoryView) PutState(_ context.Context, state lifecycle.DealState) error {
	return tv.parent.putStateLocked(state)
}

func (tv *txMemoryView) AppendEvent(_ context.Context, ev lifecycle.LedgerEvent) error {
	return tv.parent.appendEventLocked(ev)
}

func (tv *txMemoryView) LastEvent(_ context.Context, id lifecycle.AggregateID) (*lifecycle.LedgerEvent, error) {
	return tv.parent.lastEventLocked(id)
}

func (tv *txMemoryView) LoadEvents(_ context.Context, id lifecycle.AggregateID, q lifecycle.HistoryQuery) ([]lifecycle.LedgerEvent, error) {
	return tv.parent.loadEventsLocked(id, q)
}

func (tv *txMemoryView) AppendAudit(_ context.Context, rec lifecycle.AuditOverrideRecord) error {
	return tv.parent.appendAuditLocked(rec)
}

func (tv *txMemoryView) AuditRecords(_ context.Context, id lifecycle.AggregateID) ([]lifecycle.AuditOverrideRecord, error) {
	return tv.parent.auditRecordsLocked(id)
}
