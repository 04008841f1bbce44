// Package syncer contains the copy-trading pipeline: the trade monitor that
// discovers the target's trades, the pending queue that carries them, and the
// dispatcher plus replication engine that execute them.
package syncer

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/algariis/polymarket-trading-bot/models"
)

// PendingQueue is a bounded FIFO of observed trades awaiting execution.
// One producer (the monitor) appends at the tail, one consumer (the
// dispatcher) drains from the head.
type PendingQueue struct {
	ch chan models.ObservedTrade

	mu      sync.Mutex
	closed  bool
	dropped int64
}

// NewPendingQueue creates a queue with the given capacity.
func NewPendingQueue(capacity int) *PendingQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &PendingQueue{
		ch: make(chan models.ObservedTrade, capacity),
	}
}

// Enqueue appends a trade without blocking. When the queue is full the trade
// is dropped and logged; the monitor will not see it again, so a full queue
// means lost replications, which is preferable to backpressuring detection.
func (q *PendingQueue) Enqueue(trade models.ObservedTrade) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.mu.Unlock()

	select {
	case q.ch <- trade:
		return true
	default:
		q.mu.Lock()
		q.dropped++
		q.mu.Unlock()
		log.Printf("[Queue] Full, dropping trade %s", trade.TransactionHash)
		return false
	}
}

// Dequeue blocks until a trade is available or the context is cancelled.
func (q *PendingQueue) Dequeue(ctx context.Context) (models.ObservedTrade, bool) {
	select {
	case trade, ok := <-q.ch:
		return trade, ok
	case <-ctx.Done():
		return models.ObservedTrade{}, false
	}
}

// Len returns the number of trades currently waiting.
func (q *PendingQueue) Len() int {
	return len(q.ch)
}

// Dropped returns the number of trades lost to a full queue.
func (q *PendingQueue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close stops accepting trades. Pending entries remain drainable.
func (q *PendingQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// ProcessedSet tracks transaction hashes that have already been enqueued, so
// a trade is handed to the engine at most once. Entries carry the trade's
// event time so old ones can be pruned alongside the recency cutoff.
type ProcessedSet struct {
	mu     sync.RWMutex
	hashes map[string]time.Time
}

// NewProcessedSet creates an empty set.
func NewProcessedSet() *ProcessedSet {
	return &ProcessedSet{
		hashes: make(map[string]time.Time),
	}
}

// MarkIfNew records the hash and reports whether it was previously unseen.
func (s *ProcessedSet) MarkIfNew(hash string, eventTime time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.hashes[hash]; seen {
		return false
	}
	s.hashes[hash] = eventTime
	return true
}

// Contains reports whether the hash has been seen.
func (s *ProcessedSet) Contains(hash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, seen := s.hashes[hash]
	return seen
}

// Warm preloads hashes, e.g. from the persisted audit trail at startup.
func (s *ProcessedSet) Warm(hashes []string, eventTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, hash := range hashes {
		s.hashes[hash] = eventTime
	}
}

// Prune drops entries older than the cutoff and returns how many were removed.
// Anything older is also filtered out by the monitor's recency check, so the
// set stays bounded.
func (s *ProcessedSet) Prune(olderThan time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for hash, ts := range s.hashes {
		if ts.Before(olderThan) {
			delete(s.hashes, hash)
			pruned++
		}
	}
	return pruned
}

// Len returns the number of tracked hashes.
func (s *ProcessedSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hashes)
}
