// Package models holds the domain types shared across the daemon.
package models

import "time"

// ObservedTrade is one trade pulled from the target account's activity feed.
// TransactionHash is the dedup key: the engine executes a given hash at most
// once, and the monitor never re-enqueues a hash it has already queued.
type ObservedTrade struct {
	TransactionHash string    `json:"transaction_hash"`
	Asset           string    `json:"asset"` // outcome token ID
	ConditionID     string    `json:"condition_id"`
	Type            string    `json:"type"` // TRADE, REDEEM, SPLIT, MERGE
	Side            string    `json:"side"` // BUY or SELL
	Outcome         string    `json:"outcome"`
	Title           string    `json:"title"`
	Size            float64   `json:"size"`      // token units
	UsdcSize        float64   `json:"usdc_size"` // notional value
	Price           float64   `json:"price"`
	Timestamp       time.Time `json:"timestamp"` // event time, not fetch time

	// Audit state, owned by the dispatcher.
	Processed  bool `json:"processed"`
	RetryCount int  `json:"retry_count"`
}

// Position is a point-in-time snapshot of an account's holding in one asset.
// Snapshots are fetched fresh before sizing and never cached across trades.
type Position struct {
	Asset string  `json:"asset"`
	Size  float64 `json:"size"`
}

// Execution records the outcome of one replication attempt, for audit.
type Execution struct {
	ID              int        `json:"id"`
	TransactionHash string     `json:"transaction_hash"`
	TargetUser      string     `json:"target_user"`
	Asset           string     `json:"asset"`
	Title           string     `json:"title"`
	Side            string     `json:"side"`
	Strategy        string     `json:"strategy"`
	Outcome         string     `json:"outcome"` // filled, exhausted, rejected, noop
	Reason          string     `json:"reason,omitempty"`
	Requested       float64    `json:"requested"`
	Filled          float64    `json:"filled"`
	RetryCount      int        `json:"retry_count"`
	Orders          int        `json:"orders"` // successful order submissions
	CreatedAt       time.Time  `json:"created_at"`
	ExecutedAt      *time.Time `json:"executed_at,omitempty"`
}
