package syncer

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/algariis/polymarket-trading-bot/api"
	"github.com/algariis/polymarket-trading-bot/models"
)

// Strategy selects how an observed trade is replicated.
type Strategy int

const (
	// StrategyClose liquidates our whole position in the traded asset.
	StrategyClose Strategy = iota
	// StrategyOpen enters a position sized by our share of combined capital.
	StrategyOpen
	// StrategyReduce sells a fraction of our position proportional to the
	// fraction the target just sold.
	StrategyReduce
)

func (s Strategy) String() string {
	switch s {
	case StrategyClose:
		return "close"
	case StrategyOpen:
		return "open"
	case StrategyReduce:
		return "reduce"
	default:
		return "unknown"
	}
}

// Outcome classifies how an execution attempt sequence ended.
type Outcome string

const (
	OutcomeFilled    Outcome = "filled"    // remaining reached zero
	OutcomeExhausted Outcome = "exhausted" // retry limit hit
	OutcomeRejected  Outcome = "rejected"  // slippage, empty book, bad sizing
	OutcomeNoop      Outcome = "noop"      // nothing to do (e.g. no position)
	OutcomeAborted   Outcome = "aborted"   // shutdown mid-walk
)

// ExecutionResult reports what the engine did with one trade. The dispatcher
// owns persisting it; the engine never mutates the trade record.
type ExecutionResult struct {
	Strategy   Strategy
	Outcome    Outcome
	Reason     string
	Requested  float64 // target size (USDC for open, tokens otherwise)
	Filled     float64 // portion of Requested that executed
	RetryCount int     // consecutive failures at exit
	Orders     int     // successful order submissions
}

// Engine is the replication engine: it turns one observed trade into zero or
// more fill-or-kill orders, walking the book with bounded retries.
type Engine struct {
	clob api.ClobGateway

	retryLimit        int
	slippageTolerance float64
	settleDelay       time.Duration
	retryDelay        time.Duration
}

// NewEngine creates a replication engine.
func NewEngine(clob api.ClobGateway, retryLimit int, slippageTolerance float64, settleDelay, retryDelay time.Duration) *Engine {
	if retryLimit <= 0 {
		retryLimit = 3
	}
	return &Engine{
		clob:              clob,
		retryLimit:        retryLimit,
		slippageTolerance: slippageTolerance,
		settleDelay:       settleDelay,
		retryDelay:        retryDelay,
	}
}

// Execute replicates one observed trade. ownPosition and counterpartyPosition
// may be nil when the respective account holds none of the asset. Balances
// and positions must be fresh snapshots; the engine re-fetches only the book.
func (e *Engine) Execute(ctx context.Context, strategy Strategy, trade models.ObservedTrade,
	ownPosition, counterpartyPosition *models.Position, ownBalance, counterpartyBalance float64) ExecutionResult {

	switch strategy {
	case StrategyClose:
		return e.executeClose(ctx, trade, ownPosition)
	case StrategyOpen:
		return e.executeOpen(ctx, trade, ownBalance, counterpartyBalance)
	case StrategyReduce:
		return e.executeReduce(ctx, trade, ownPosition, counterpartyPosition)
	default:
		log.Printf("[Engine] Unknown strategy %d for trade %s", strategy, trade.TransactionHash)
		return ExecutionResult{Strategy: strategy, Outcome: OutcomeRejected, Reason: "unknown strategy"}
	}
}

// executeClose liquidates our entire position, walking the bids.
func (e *Engine) executeClose(ctx context.Context, trade models.ObservedTrade, ownPosition *models.Position) ExecutionResult {
	result := ExecutionResult{Strategy: StrategyClose}

	if ownPosition == nil || ownPosition.Size <= 0 {
		log.Printf("[Engine] Close %s: no position held, nothing to do", trade.Asset)
		result.Outcome = OutcomeNoop
		result.Reason = "no position to close"
		return result
	}

	result.Requested = ownPosition.Size
	log.Printf("[Engine] Close %s: selling %.4f tokens", trade.Asset, ownPosition.Size)

	e.walk(ctx, walkParams{
		trade:     trade,
		side:      api.SideSell,
		remaining: ownPosition.Size,
	}, &result)
	return result
}

// executeOpen buys proportionally to our share of combined capital, walking
// the asks. remaining is tracked in USDC.
func (e *Engine) executeOpen(ctx context.Context, trade models.ObservedTrade, ownBalance, counterpartyBalance float64) ExecutionResult {
	result := ExecutionResult{Strategy: StrategyOpen}

	denominator := counterpartyBalance + trade.UsdcSize
	if denominator <= 0 || ownBalance <= 0 {
		log.Printf("[Engine] Open %s: cannot size order (ownBalance=%.2f, denominator=%.2f)",
			trade.Asset, ownBalance, denominator)
		result.Outcome = OutcomeRejected
		result.Reason = "non-positive sizing inputs"
		return result
	}

	ratio := ownBalance / denominator
	target := trade.UsdcSize * ratio
	if target > ownBalance {
		target = ownBalance
	}

	result.Requested = target
	log.Printf("[Engine] Open %s: ratio=%.4f target=%.2f USDC (own=%.2f target-trader=%.2f notional=%.2f)",
		trade.Asset, ratio, target, ownBalance, counterpartyBalance, trade.UsdcSize)

	e.walk(ctx, walkParams{
		trade:     trade,
		side:      api.SideBuy,
		remaining: target,
		// Refuse to chase a price that moved above what the target paid.
		checkSlippage: true,
	}, &result)
	return result
}

// executeReduce sells the same fraction of our position that the target just
// sold of theirs, walking the bids. remaining is tracked in tokens.
func (e *Engine) executeReduce(ctx context.Context, trade models.ObservedTrade, ownPosition, counterpartyPosition *models.Position) ExecutionResult {
	result := ExecutionResult{Strategy: StrategyReduce}

	if ownPosition == nil || ownPosition.Size <= 0 {
		log.Printf("[Engine] Reduce %s: no position held, nothing to do", trade.Asset)
		result.Outcome = OutcomeNoop
		result.Reason = "no position to reduce"
		return result
	}

	var target float64
	if counterpartyPosition == nil || counterpartyPosition.Size <= 0 {
		// Target trader is fully out; follow them out.
		target = ownPosition.Size
		log.Printf("[Engine] Reduce %s: target trader exited, selling full %.4f tokens", trade.Asset, target)
	} else {
		ratio := trade.Size / (counterpartyPosition.Size + trade.Size)
		target = ownPosition.Size * ratio
		log.Printf("[Engine] Reduce %s: ratio=%.4f, selling %.4f of %.4f tokens",
			trade.Asset, ratio, target, ownPosition.Size)
	}

	result.Requested = target
	e.walk(ctx, walkParams{
		trade:         trade,
		side:          api.SideSell,
		remaining:     target,
		checkSlippage: true,
	}, &result)
	return result
}

type walkParams struct {
	trade         models.ObservedTrade
	side          api.Side
	remaining     float64
	checkSlippage bool
}

// walk is the shared book-walking loop. For buys remaining is USDC and a
// level's capacity is size*price; for sells remaining is tokens and capacity
// is size. Each iteration fetches a fresh book because it moves between
// attempts.
func (e *Engine) walk(ctx context.Context, p walkParams, result *ExecutionResult) {
	remaining := p.remaining
	retryCount := 0

	fail := func(reason string, err error) bool {
		retryCount++
		log.Printf("[Engine] %s %s attempt failed (%s, retry %d/%d): %v",
			p.side, p.trade.Asset, reason, retryCount, e.retryLimit, err)
		return e.pause(ctx, e.retryDelay)
	}

	for remaining > 1e-9 && retryCount < e.retryLimit {
		book, err := e.clob.GetOrderBook(ctx, p.trade.Asset)
		if err != nil {
			if !fail("book fetch", err) {
				result.Outcome = OutcomeAborted
				result.Reason = "shutdown"
				break
			}
			continue
		}

		levels := book.Asks
		if p.side == api.SideSell {
			levels = book.Bids
		}
		if len(levels) == 0 {
			log.Printf("[Engine] %s %s: book side empty, stopping", p.side, p.trade.Asset)
			result.Outcome = OutcomeRejected
			result.Reason = "empty book"
			break
		}

		price, size, ok := bestLevel(levels, p.side)
		if !ok {
			result.Outcome = OutcomeRejected
			result.Reason = "unparseable book"
			break
		}

		if p.checkSlippage && e.slippageExceeded(p.side, price, p.trade.Price) {
			log.Printf("[Engine] %s %s: price %.4f moved beyond %.4f±%.2f, rejecting remaining %.4f",
				p.side, p.trade.Asset, price, p.trade.Price, e.slippageTolerance, remaining)
			result.Outcome = OutcomeRejected
			result.Reason = "slippage tolerance exceeded"
			break
		}

		capacity := size
		if p.side == api.SideBuy {
			capacity = size * price
		}
		amount := remaining
		if capacity < amount {
			amount = capacity
		}
		if amount <= 0 {
			result.Outcome = OutcomeRejected
			result.Reason = "non-positive order amount"
			break
		}

		order, err := e.clob.CreateMarketOrder(p.trade.Asset, p.side, amount, price, false)
		if err != nil {
			if !fail("create order", err) {
				result.Outcome = OutcomeAborted
				result.Reason = "shutdown"
				break
			}
			continue
		}

		resp, err := e.clob.PostOrder(ctx, order, api.OrderTypeFOK)
		if err != nil || resp == nil || !resp.Success {
			reason := "submission rejected"
			if err == nil && resp != nil && resp.ErrorMsg != "" {
				reason = resp.ErrorMsg
			}
			if !fail(reason, err) {
				result.Outcome = OutcomeAborted
				result.Reason = "shutdown"
				break
			}
			continue
		}

		// Filled in full (FOK): count it and let the book settle.
		retryCount = 0
		remaining -= amount
		result.Filled += amount
		result.Orders++
		log.Printf("[Engine] %s %s: filled %.4f @ %.4f, remaining %.4f",
			p.side, p.trade.Asset, amount, price, remaining)

		if !e.pause(ctx, e.settleDelay) {
			result.Outcome = OutcomeAborted
			result.Reason = "shutdown"
			break
		}
	}

	result.RetryCount = retryCount
	if result.Outcome == "" {
		if remaining <= 1e-9 {
			result.Outcome = OutcomeFilled
		} else {
			result.Outcome = OutcomeExhausted
			result.Reason = "retry limit reached"
			log.Printf("[Engine] %s %s: giving up after %d consecutive failures, %.4f unfilled",
				p.side, p.trade.Asset, retryCount, remaining)
		}
	}
}

// bestLevel picks the maximum-price bid or minimum-price ask, keeping the
// first level seen at the extreme.
func bestLevel(levels []api.OrderBookLevel, side api.Side) (price, size float64, ok bool) {
	found := false
	for _, level := range levels {
		p, errP := strconv.ParseFloat(level.Price, 64)
		s, errS := strconv.ParseFloat(level.Size, 64)
		if errP != nil || errS != nil {
			continue
		}
		better := !found ||
			(side == api.SideSell && p > price) ||
			(side == api.SideBuy && p < price)
		if better {
			price, size = p, s
			found = true
		}
	}
	return price, size, found
}

// slippageExceeded reports whether the best level has drifted past the
// tolerance relative to the observed trade price.
func (e *Engine) slippageExceeded(side api.Side, levelPrice, tradePrice float64) bool {
	if side == api.SideBuy {
		return levelPrice > tradePrice+e.slippageTolerance
	}
	return levelPrice < tradePrice-e.slippageTolerance
}

// pause sleeps unless the context is cancelled first. Returns false on
// cancellation so the walk can stop between iterations.
func (e *Engine) pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
