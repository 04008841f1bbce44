package syncer

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/algariis/polymarket-trading-bot/api"
	"github.com/algariis/polymarket-trading-bot/storage"
)

// TradeMonitor discovers the target trader's activity and feeds the pending
// queue. The interval poll against the data API is the source of truth; the
// live-data websocket, when enabled, is a faster path into the same dedup and
// queue, so a trade arriving on both is still enqueued once.
type TradeMonitor struct {
	data      api.DataGateway
	queue     *PendingQueue
	processed *ProcessedSet
	store     storage.Store
	metrics   *Metrics
	ws        *api.LiveDataWSClient

	targetUser string
	interval   time.Duration
	cutoff     time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewTradeMonitor builds a monitor for one target wallet.
func NewTradeMonitor(data api.DataGateway, queue *PendingQueue, processed *ProcessedSet,
	store storage.Store, metrics *Metrics, targetUser string, interval, cutoff time.Duration) *TradeMonitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if cutoff <= 0 {
		cutoff = time.Hour
	}
	return &TradeMonitor{
		data:       data,
		queue:      queue,
		processed:  processed,
		store:      store,
		metrics:    metrics,
		targetUser: strings.ToLower(strings.TrimSpace(targetUser)),
		interval:   interval,
		cutoff:     cutoff,
		stop:       make(chan struct{}),
	}
}

// EnableLiveFeed attaches a live-data websocket as a fast detection path.
// Must be called before Start.
func (m *TradeMonitor) EnableLiveFeed() {
	m.ws = api.NewLiveDataWSClient(m.targetUser, func(event api.LiveTradeEvent) {
		m.ingest(event.ToObservedTrade())
	})
}

// Start warms the dedup set from storage and launches the poll loop.
func (m *TradeMonitor) Start(ctx context.Context) error {
	if m.store != nil {
		warmCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		hashes, err := m.store.ListProcessedHashes(warmCtx, time.Now().Add(-m.cutoff))
		cancel()
		if err != nil {
			log.Printf("[Monitor] Warm-start load failed: %v", err)
		} else if len(hashes) > 0 {
			m.processed.Warm(hashes, time.Now())
			log.Printf("[Monitor] Warmed dedup set with %d processed trades", len(hashes))
		}
	}

	if m.ws != nil {
		if err := m.ws.Start(); err != nil {
			log.Printf("[Monitor] Live feed failed to start: %v (polling continues)", err)
		}
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		// Run immediately at startup
		m.poll(ctx)

		pruneEvery := 50
		ticks := 0
		for {
			select {
			case <-m.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.poll(ctx)
				ticks++
				if ticks%pruneEvery == 0 {
					m.prune(ctx)
				}
			}
		}
	}()

	log.Printf("[Monitor] Watching %s every %s (cutoff %s)", m.targetUser, m.interval, m.cutoff)
	return nil
}

// Stop terminates the poll loop and the live feed.
func (m *TradeMonitor) Stop() {
	close(m.stop)
	if m.ws != nil {
		m.ws.Stop()
	}
	m.wg.Wait()
	log.Printf("[Monitor] Stopped")
}

// poll fetches recent activity and ingests each record. Individual poll
// failures are logged and retried on the next tick.
func (m *TradeMonitor) poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, m.interval*2)
	defer cancel()

	activities, err := m.data.GetUserActivities(pollCtx, m.targetUser, 100)
	if err != nil {
		log.Printf("[Monitor] Activity fetch failed: %v", err)
		return
	}

	for _, activity := range activities {
		m.ingest(activity)
	}
}

// ingest applies the type filter, recency cutoff, and dedup, then enqueues.
func (m *TradeMonitor) ingest(activity api.Activity) {
	if !strings.EqualFold(activity.Type, "TRADE") {
		return
	}

	trade := activity.ToObservedTrade()
	if trade.TransactionHash == "" {
		return
	}
	if time.Since(trade.Timestamp) > m.cutoff {
		return
	}

	// Mark before enqueueing so the same hash is queued at most once even
	// when the websocket and the poll race on it.
	if !m.processed.MarkIfNew(trade.TransactionHash, trade.Timestamp) {
		return
	}

	if m.store != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.store.SaveObservedTrade(saveCtx, trade); err != nil {
			log.Printf("[Monitor] Failed to record trade %s: %v", trade.TransactionHash, err)
		}
		cancel()
	}

	log.Printf("[Monitor] New trade %s: %s %.4f %s @ %.4f",
		trade.TransactionHash, trade.Side, trade.Size, trade.Asset, trade.Price)

	if m.metrics != nil {
		m.metrics.RecordObserved()
	}
	m.queue.Enqueue(trade)
}

// prune bounds the dedup set and the audit table to the recency window.
func (m *TradeMonitor) prune(ctx context.Context) {
	cutoff := time.Now().Add(-m.cutoff)
	if n := m.processed.Prune(cutoff); n > 0 {
		log.Printf("[Monitor] Pruned %d old dedup entries", n)
	}
	if m.store != nil {
		pruneCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		if _, err := m.store.PruneObservedTrades(pruneCtx, cutoff); err != nil {
			log.Printf("[Monitor] Storage prune failed: %v", err)
		}
	}
}
