package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/algariis/polymarket-trading-bot/models"
)

// MemoryStore is an in-memory Store. It backs the daemon when no Postgres is
// configured; the audit trail then lives only for the process lifetime.
type MemoryStore struct {
	mu         sync.RWMutex
	trades     map[string]models.ObservedTrade
	executions []models.Execution
	nextID     int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		trades: make(map[string]models.ObservedTrade),
		nextID: 1,
	}
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) SaveObservedTrade(ctx context.Context, trade models.ObservedTrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.trades[trade.TransactionHash]; ok {
		// Processed state is sticky, retry count only grows.
		trade.Processed = trade.Processed || existing.Processed
		if existing.RetryCount > trade.RetryCount {
			trade.RetryCount = existing.RetryCount
		}
	}
	s.trades[trade.TransactionHash] = trade
	return nil
}

func (s *MemoryStore) MarkTradeProcessed(ctx context.Context, transactionHash string, retryCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	trade, ok := s.trades[transactionHash]
	if !ok {
		return nil
	}
	trade.Processed = true
	trade.RetryCount = retryCount
	s.trades[transactionHash] = trade
	return nil
}

func (s *MemoryStore) ListProcessedHashes(ctx context.Context, since time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hashes []string
	for hash, trade := range s.trades {
		if trade.Processed && !trade.Timestamp.Before(since) {
			hashes = append(hashes, hash)
		}
	}
	sort.Strings(hashes)
	return hashes, nil
}

func (s *MemoryStore) PruneObservedTrades(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned int64
	for hash, trade := range s.trades {
		if trade.Timestamp.Before(olderThan) {
			delete(s.trades, hash)
			pruned++
		}
	}
	return pruned, nil
}

func (s *MemoryStore) SaveExecution(ctx context.Context, exec models.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec.ID = s.nextID
	s.nextID++
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = time.Now()
	}
	s.executions = append(s.executions, exec)
	return nil
}

func (s *MemoryStore) ListExecutions(ctx context.Context, limit int) ([]models.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.executions) {
		limit = len(s.executions)
	}

	// Newest first.
	out := make([]models.Execution, 0, limit)
	for i := len(s.executions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.executions[i])
	}
	return out, nil
}
