package syncer

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/algariis/polymarket-trading-bot/models"
)

const metricsKey = "copytrader:metrics"

// CopyTraderMetrics summarizes replication activity for operator dashboards.
type CopyTraderMetrics struct {
	TradesObserved  int64         `json:"trades_observed"`
	TradesFilled    int64         `json:"trades_filled"`
	TradesExhausted int64         `json:"trades_exhausted"`
	TradesRejected  int64         `json:"trades_rejected"`
	TradesNoop      int64         `json:"trades_noop"`
	TradesSkipped   int64         `json:"trades_skipped"` // dispatch cycles lost to upstream errors
	OrdersSubmitted int64         `json:"orders_submitted"`
	USDCSpent       float64       `json:"usdc_spent"`
	TokensSold      float64       `json:"tokens_sold"`
	AvgCopyLatency  time.Duration `json:"avg_copy_latency_ms"`
	FastestCopy     time.Duration `json:"fastest_copy_ms"`
	SlowestCopy     time.Duration `json:"slowest_copy_ms"`
	LastCopyTime    time.Time     `json:"last_copy_time"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Metrics is the in-process collector. The dispatcher and monitor feed it;
// a MetricsStore periodically publishes a snapshot to Redis.
type Metrics struct {
	mu           sync.Mutex
	m            CopyTraderMetrics
	totalLatency time.Duration
	copies       int64
}

// NewMetrics creates an empty collector.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordObserved counts a trade that passed dedup and entered the queue.
func (c *Metrics) RecordObserved() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m.TradesObserved++
}

// RecordSkip counts a dispatch cycle abandoned on an upstream error.
func (c *Metrics) RecordSkip() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m.TradesSkipped++
}

// RecordExecution folds one engine result into the counters.
func (c *Metrics) RecordExecution(result ExecutionResult, trade models.ObservedTrade, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch result.Outcome {
	case OutcomeFilled:
		c.m.TradesFilled++
	case OutcomeExhausted:
		c.m.TradesExhausted++
	case OutcomeRejected:
		c.m.TradesRejected++
	case OutcomeNoop:
		c.m.TradesNoop++
	}

	c.m.OrdersSubmitted += int64(result.Orders)
	if result.Strategy == StrategyOpen {
		c.m.USDCSpent += result.Filled
	} else {
		c.m.TokensSold += result.Filled
	}

	c.copies++
	c.totalLatency += latency
	c.m.AvgCopyLatency = c.totalLatency / time.Duration(c.copies)
	if c.m.FastestCopy == 0 || latency < c.m.FastestCopy {
		c.m.FastestCopy = latency
	}
	if latency > c.m.SlowestCopy {
		c.m.SlowestCopy = latency
	}
	c.m.LastCopyTime = time.Now()
}

// Snapshot returns a copy of the current counters.
func (c *Metrics) Snapshot() CopyTraderMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.m
	snap.UpdatedAt = time.Now()
	return snap
}

// MetricsStore publishes metrics snapshots to Redis so the status API can
// serve them without touching the pipeline.
type MetricsStore struct {
	redis *redis.Client
}

// NewMetricsStore creates a metrics store.
func NewMetricsStore(redisClient *redis.Client) *MetricsStore {
	return &MetricsStore{redis: redisClient}
}

// Save writes the snapshot with a 24h TTL.
func (m *MetricsStore) Save(ctx context.Context, metrics CopyTraderMetrics) error {
	data, err := json.Marshal(metrics)
	if err != nil {
		return err
	}
	return m.redis.Set(ctx, metricsKey, data, 24*time.Hour).Err()
}

// Get retrieves the last published snapshot, or zero metrics when none exist.
func (m *MetricsStore) Get(ctx context.Context) (*CopyTraderMetrics, error) {
	data, err := m.redis.Get(ctx, metricsKey).Result()
	if err != nil {
		if err == redis.Nil {
			return &CopyTraderMetrics{}, nil
		}
		return nil, err
	}

	var metrics CopyTraderMetrics
	if err := json.Unmarshal([]byte(data), &metrics); err != nil {
		return nil, err
	}
	return &metrics, nil
}

// StartPublisher periodically publishes snapshots until the context ends.
func (m *MetricsStore) StartPublisher(ctx context.Context, collector *Metrics, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.Save(ctx, collector.Snapshot()); err != nil {
					log.Printf("[Metrics] Publish failed: %v", err)
				}
			}
		}
	}()
}
