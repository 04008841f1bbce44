package syncer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/algariis/polymarket-trading-bot/models"
)

func TestPendingQueueFIFO(t *testing.T) {
	q := NewPendingQueue(4)

	for i := 0; i < 3; i++ {
		ok := q.Enqueue(models.ObservedTrade{TransactionHash: fmt.Sprintf("0x%d", i)})
		if !ok {
			t.Fatalf("enqueue %d failed", i)
		}
	}
	if q.Len() != 3 {
		t.Errorf("len = %d, want 3", q.Len())
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		trade, ok := q.Dequeue(ctx)
		if !ok {
			t.Fatalf("dequeue %d failed", i)
		}
		if want := fmt.Sprintf("0x%d", i); trade.TransactionHash != want {
			t.Errorf("dequeue %d = %s, want %s", i, trade.TransactionHash, want)
		}
	}
}

func TestPendingQueueDropsWhenFull(t *testing.T) {
	q := NewPendingQueue(2)

	if !q.Enqueue(models.ObservedTrade{TransactionHash: "0x1"}) {
		t.Fatal("first enqueue failed")
	}
	if !q.Enqueue(models.ObservedTrade{TransactionHash: "0x2"}) {
		t.Fatal("second enqueue failed")
	}
	if q.Enqueue(models.ObservedTrade{TransactionHash: "0x3"}) {
		t.Error("enqueue into full queue should report drop")
	}
	if q.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", q.Dropped())
	}
	if q.Len() != 2 {
		t.Errorf("len = %d, want 2", q.Len())
	}
}

func TestPendingQueueDequeueCancellation(t *testing.T) {
	q := NewPendingQueue(2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool)
	go func() {
		_, ok := q.Dequeue(ctx)
		done <- ok
	}()

	cancel()
	select {
	case ok := <-done:
		if ok {
			t.Error("dequeue on cancelled context reported a trade")
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return after cancellation")
	}
}

func TestPendingQueueCloseDrains(t *testing.T) {
	q := NewPendingQueue(2)
	q.Enqueue(models.ObservedTrade{TransactionHash: "0x1"})
	q.Close()

	if q.Enqueue(models.ObservedTrade{TransactionHash: "0x2"}) {
		t.Error("enqueue after close succeeded")
	}

	ctx := context.Background()
	if trade, ok := q.Dequeue(ctx); !ok || trade.TransactionHash != "0x1" {
		t.Errorf("pending entry not drainable after close: %v %v", trade.TransactionHash, ok)
	}
	if _, ok := q.Dequeue(ctx); ok {
		t.Error("dequeue from closed empty queue reported a trade")
	}
}

func TestProcessedSetDedup(t *testing.T) {
	s := NewProcessedSet()
	now := time.Now()

	if !s.MarkIfNew("0xabc", now) {
		t.Error("first mark reported seen")
	}
	if s.MarkIfNew("0xabc", now) {
		t.Error("second mark reported new")
	}
	if !s.Contains("0xabc") {
		t.Error("contains = false after mark")
	}
	if s.Len() != 1 {
		t.Errorf("len = %d, want 1", s.Len())
	}
}

func TestProcessedSetPrune(t *testing.T) {
	s := NewProcessedSet()
	now := time.Now()

	s.MarkIfNew("0xold", now.Add(-2*time.Hour))
	s.MarkIfNew("0xnew", now)

	if pruned := s.Prune(now.Add(-time.Hour)); pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}
	if s.Contains("0xold") {
		t.Error("old entry survived prune")
	}
	if !s.Contains("0xnew") {
		t.Error("fresh entry removed by prune")
	}
}

func TestProcessedSetWarm(t *testing.T) {
	s := NewProcessedSet()
	s.Warm([]string{"0x1", "0x2"}, time.Now())

	if s.MarkIfNew("0x1", time.Now()) {
		t.Error("warmed hash reported new")
	}
	if s.Len() != 2 {
		t.Errorf("len = %d, want 2", s.Len())
	}
}
