package storage

import (
	"context"
	"time"

	"github.com/algariis/polymarket-trading-bot/models"
)

// Store defines the persistence backend for the copy-trading daemon.
// It records every observed trade and every replication attempt so the
// daemon can survive restarts without re-executing old trades.
type Store interface {
	Close() error

	// Observed trade audit trail
	SaveObservedTrade(ctx context.Context, trade models.ObservedTrade) error
	MarkTradeProcessed(ctx context.Context, transactionHash string, retryCount int) error
	ListProcessedHashes(ctx context.Context, since time.Time) ([]string, error)
	PruneObservedTrades(ctx context.Context, olderThan time.Time) (int64, error)

	// Execution audit trail
	SaveExecution(ctx context.Context, exec models.Execution) error
	ListExecutions(ctx context.Context, limit int) ([]models.Execution, error)
}

// Ensure both implementations satisfy the interface
var _ Store = (*PostgresStore)(nil)
var _ Store = (*MemoryStore)(nil)
