package storage

import (
	"context"
	"testing"
	"time"

	"github.com/algariis/polymarket-trading-bot/models"
)

func observedTrade(hash string, age time.Duration) models.ObservedTrade {
	return models.ObservedTrade{
		TransactionHash: hash,
		Asset:           "token-1",
		Type:            "TRADE",
		Side:            "BUY",
		Size:            100,
		UsdcSize:        50,
		Price:           0.50,
		Timestamp:       time.Now().Add(-age),
	}
}

func TestMemoryStoreProcessedIsSticky(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	trade := observedTrade("0x1", time.Minute)
	if err := store.SaveObservedTrade(ctx, trade); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkTradeProcessed(ctx, "0x1", 2); err != nil {
		t.Fatal(err)
	}

	// Re-saving the raw trade (e.g. the poller seeing it again) must not
	// clear the processed flag or shrink the retry count.
	if err := store.SaveObservedTrade(ctx, trade); err != nil {
		t.Fatal(err)
	}

	hashes, err := store.ListProcessedHashes(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(hashes) != 1 || hashes[0] != "0x1" {
		t.Errorf("processed hashes = %v, want [0x1]", hashes)
	}

	store.mu.RLock()
	saved := store.trades["0x1"]
	store.mu.RUnlock()
	if saved.RetryCount != 2 {
		t.Errorf("retryCount = %d, want 2", saved.RetryCount)
	}
}

func TestMemoryStorePrune(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	store.SaveObservedTrade(ctx, observedTrade("0xold", 2*time.Hour))
	store.SaveObservedTrade(ctx, observedTrade("0xnew", time.Minute))

	pruned, err := store.PruneObservedTrades(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}

	store.mu.RLock()
	_, oldExists := store.trades["0xold"]
	_, newExists := store.trades["0xnew"]
	store.mu.RUnlock()
	if oldExists {
		t.Error("old trade survived prune")
	}
	if !newExists {
		t.Error("fresh trade removed by prune")
	}
}

func TestMemoryStoreExecutionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	for _, hash := range []string{"0x1", "0x2", "0x3"} {
		if err := store.SaveExecution(ctx, models.Execution{
			TransactionHash: hash,
			Outcome:         "filled",
		}); err != nil {
			t.Fatal(err)
		}
	}

	executions, err := store.ListExecutions(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(executions) != 2 {
		t.Fatalf("len = %d, want 2", len(executions))
	}
	if executions[0].TransactionHash != "0x3" || executions[1].TransactionHash != "0x2" {
		t.Errorf("order = [%s %s], want [0x3 0x2]", executions[0].TransactionHash, executions[1].TransactionHash)
	}
	if executions[0].ID <= executions[1].ID {
		t.Errorf("IDs not monotonic: %d then %d", executions[0].ID, executions[1].ID)
	}
}

func TestMockStoreErrorInjection(t *testing.T) {
	ctx := context.Background()
	store := NewMockStore()

	store.ErrorOnNext["SaveExecution"] = context.DeadlineExceeded
	if err := store.SaveExecution(ctx, models.Execution{}); err == nil {
		t.Error("expected injected error")
	}
	// Injected errors fire once.
	if err := store.SaveExecution(ctx, models.Execution{}); err != nil {
		t.Errorf("second call failed: %v", err)
	}
	if store.Calls["SaveExecution"] != 2 {
		t.Errorf("calls = %d, want 2", store.Calls["SaveExecution"])
	}
}
