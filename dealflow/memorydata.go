package dealflow

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/deal-engine/lifecycle"
)

// =============================================================================
// MEMORY DEAL DATA - In-memory DealData (for testing/dev)
// =============================================================================

// MemoryDealData implements DealData with in-process state. The demo
// server and tests mutate it directly; production wires real domain
// services instead.
type MemoryDealData struct {
	mu    sync.RWMutex
	deals map[lifecycle.AggregateID]*dealFacts
}

type dealFacts struct {
	documents      []string
	openConflicts  int
	checklistDone  int
	checklistTotal int
	agreed         decimal.Decimal
	funded         decimal.Decimal
}

func NewMemoryDealData() *MemoryDealData {
	return &MemoryDealData{deals: make(map[lifecycle.AggregateID]*dealFacts)}
}

func (m *MemoryDealData) factsLocked(id lifecycle.AggregateID) *dealFacts {
	f, ok := m.deals[id]
	if !ok {
		f = &dealFacts{}
		m.deals[id] = f
	}
	return f
}

// RegisterDocument adds a source document to the deal's data room.
func (m *MemoryDealData) RegisterDocument(id lifecycle.AggregateID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.factsLocked(id)
	f.documents = append(f.documents, name)
}

// OpenConflict records a new conflict-of-interest finding.
func (m *MemoryDealData) OpenConflict(id lifecycle.AggregateID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factsLocked(id).openConflicts++
}

// ResolveConflict closes one open conflict finding.
func (m *MemoryDealData) ResolveConflict(id lifecycle.AggregateID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.factsLocked(id)
	if f.openConflicts > 0 {
		f.openConflicts--
	}
}

// SetChecklist sets the closing checklist progress.
func (m *MemoryDealData) SetChecklist(id lifecycle.AggregateID, done, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.factsLocked(id)
	f.checklistDone, f.checklistTotal = done, total
}

// SetConsideration sets the agreed deal consideration.
func (m *MemoryDealData) SetConsideration(id lifecycle.AggregateID, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factsLocked(id).agreed = amount
}

// ReceiveFunds adds to the escrowed amount.
func (m *MemoryDealData) ReceiveFunds(id lifecycle.AggregateID, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.factsLocked(id)
	f.funded = f.funded.Add(amount)
}

// =============================================================================
// DealData implementation
// =============================================================================

func (m *MemoryDealData) SourceDocumentCount(_ context.Context, id lifecycle.AggregateID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if f, ok := m.deals[id]; ok {
		return len(f.documents), nil
	}
	return 0, nil
}

func (m *MemoryDealData) UnresolvedConflictCount(_ context.Context, id lifecycle.AggregateID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if f, ok := m.deals[id]; ok {
		return f.openConflicts, nil
	}
	return 0, nil
}

func (m *MemoryDealData) ChecklistProgress(_ context.Context, id lifecycle.AggregateID) (int, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if f, ok := m.deals[id]; ok {
		return f.checklistDone, f.checklistTotal, nil
	}
	return 0, 0, nil
}

func (m *MemoryDealData) AgreedConsideration(_ context.Context, id lifecycle.AggregateID) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if f, ok := m.deals[id]; ok {
		return f.agreed, nil
	}
	return decimal.Zero, nil
}

func (m *MemoryDealData) FundedAmount(_ context.Context, id lifecycle.AggregateID) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if f, ok := m.deals[id]; ok {
		return f.funded, nil
	}
	return decimal.Zero, nil
}

// Compile-time check that MemoryDealData implements DealData.
var _ DealData = (*MemoryDealData)(nil)
