package storage

import (
	"context"
	"sync"
	"time"

	"github.com/algariis/polymarket-trading-bot/models"
)

// MockStore wraps a MemoryStore with call tracking and error injection for
// testing the dispatcher's persistence behavior.
type MockStore struct {
	*MemoryStore

	mu sync.Mutex

	// Call tracking
	Calls map[string]int

	// Error injection
	ErrorOnNext map[string]error
}

// Ensure MockStore implements the interface
var _ Store = (*MockStore)(nil)

// NewMockStore creates a new mock store
func NewMockStore() *MockStore {
	return &MockStore{
		MemoryStore: NewMemory(),
		Calls:       make(map[string]int),
		ErrorOnNext: make(map[string]error),
	}
}

func (m *MockStore) trackCall(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls[name]++
	if err, ok := m.ErrorOnNext[name]; ok {
		delete(m.ErrorOnNext, name)
		return err
	}
	return nil
}

func (m *MockStore) SaveObservedTrade(ctx context.Context, trade models.ObservedTrade) error {
	if err := m.trackCall("SaveObservedTrade"); err != nil {
		return err
	}
	return m.MemoryStore.SaveObservedTrade(ctx, trade)
}

func (m *MockStore) MarkTradeProcessed(ctx context.Context, transactionHash string, retryCount int) error {
	if err := m.trackCall("MarkTradeProcessed"); err != nil {
		return err
	}
	return m.MemoryStore.MarkTradeProcessed(ctx, transactionHash, retryCount)
}

func (m *MockStore) ListProcessedHashes(ctx context.Context, since time.Time) ([]string, error) {
	if err := m.trackCall("ListProcessedHashes"); err != nil {
		return nil, err
	}
	return m.MemoryStore.ListProcessedHashes(ctx, since)
}

func (m *MockStore) PruneObservedTrades(ctx context.Context, olderThan time.Time) (int64, error) {
	if err := m.trackCall("PruneObservedTrades"); err != nil {
		return 0, err
	}
	return m.MemoryStore.PruneObservedTrades(ctx, olderThan)
}

func (m *MockStore) SaveExecution(ctx context.Context, exec models.Execution) error {
	if err := m.trackCall("SaveExecution"); err != nil {
		return err
	}
	return m.MemoryStore.SaveExecution(ctx, exec)
}

func (m *MockStore) ListExecutions(ctx context.Context, limit int) ([]models.Execution, error) {
	if err := m.trackCall("ListExecutions"); err != nil {
		return nil, err
	}
	return m.MemoryStore.ListExecutions(ctx, limit)
}

// GetObservedTrade returns a stored trade for assertions.
func (m *MockStore) GetObservedTrade(hash string) (models.ObservedTrade, bool) {
	m.MemoryStore.mu.RLock()
	defer m.MemoryStore.mu.RUnlock()
	trade, ok := m.MemoryStore.trades[hash]
	return trade, ok
}
