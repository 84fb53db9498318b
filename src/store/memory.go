package store

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// Memory is the in-process store used when no database is configured. It
// keeps the journal in slices so tests can inspect what was recorded.
type Memory struct {
	mu       sync.Mutex
	accounts map[string]decimal.Decimal
	grants   []grantEntry
	orders   map[int64]OrderRecord
	fills    []FillRecord
	cancels  []CancelRecord
}

type grantEntry struct {
	Sym       string
	AccountID string
	Amount    decimal.Decimal
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]decimal.Decimal),
		orders:   make(map[int64]OrderRecord),
	}
}

func (m *Memory) SaveAccount(_ context.Context, id string, balance decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[id] = balance
	return nil
}

func (m *Memory) SaveSymbolGrant(_ context.Context, sym, accountID string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants = append(m.grants, grantEntry{Sym: sym, AccountID: accountID, Amount: amount})
	return nil
}

func (m *Memory) SaveOrder(_ context.Context, rec OrderRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[rec.ID] = rec
	return nil
}

func (m *Memory) SaveFill(_ context.Context, rec FillRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fills = append(m.fills, rec)
	return nil
}

func (m *Memory) SaveCancel(_ context.Context, rec CancelRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels = append(m.cancels, rec)
	return nil
}

func (m *Memory) Close() {}

// Orders returns the recorded order descriptors.
func (m *Memory) Orders() []OrderRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OrderRecord, 0, len(m.orders))
	for _, rec := range m.orders {
		out = append(out, rec)
	}
	return out
}

// Fills returns the recorded fills in journal order.
func (m *Memory) Fills() []FillRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]FillRecord, len(m.fills))
	copy(out, m.fills)
	return out
}

// Cancels returns the recorded cancellations in journal order.
func (m *Memory) Cancels() []CancelRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CancelRecord, len(m.cancels))
	copy(out, m.cancels)
	return out
}
