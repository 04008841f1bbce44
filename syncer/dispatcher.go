package syncer

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/algariis/polymarket-trading-bot/api"
	"github.com/algariis/polymarket-trading-bot/models"
	"github.com/algariis/polymarket-trading-bot/storage"
)

// BalanceFunc reads a wallet's USDC balance. Injectable for tests; production
// uses the on-chain query since it needs no authentication.
type BalanceFunc func(ctx context.Context, wallet string) (float64, error)

// Dispatcher drains the pending queue and runs each trade through the
// replication engine, one trade at a time so concurrent walks never
// double-spend the same balance.
type Dispatcher struct {
	queue   *PendingQueue
	engine  *Engine
	clob    api.ClobGateway
	data    api.DataGateway
	store   storage.Store
	metrics *Metrics

	targetUser   string
	proxyWallet  string
	chainBalance BalanceFunc

	stopOnce sync.Once
	cancel   context.CancelFunc
	doneCh   chan struct{}
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(queue *PendingQueue, engine *Engine, clob api.ClobGateway, data api.DataGateway,
	store storage.Store, metrics *Metrics, targetUser, proxyWallet string) *Dispatcher {
	return &Dispatcher{
		queue:        queue,
		engine:       engine,
		clob:         clob,
		data:         data,
		store:        store,
		metrics:      metrics,
		targetUser:   strings.ToLower(targetUser),
		proxyWallet:  proxyWallet,
		chainBalance: api.GetOnChainUSDCBalance,
		doneCh:       make(chan struct{}),
	}
}

// SetBalanceFunc overrides how the target trader's balance is read.
func (d *Dispatcher) SetBalanceFunc(fn BalanceFunc) {
	d.chainBalance = fn
}

// Start launches the consumer loop.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)

	go func() {
		defer close(d.doneCh)
		log.Printf("[Dispatcher] Started, watching queue")

		for {
			trade, ok := d.queue.Dequeue(ctx)
			if !ok {
				return
			}
			d.dispatch(ctx, trade)
		}
	}()
}

// Stop cancels the loop and waits for the in-flight trade to finish or abort
// at its next pause point.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		if d.cancel == nil {
			return
		}
		d.cancel()
		<-d.doneCh
		log.Printf("[Dispatcher] Stopped")
	})
}

// dispatch resolves fresh market state for one trade, classifies the
// strategy, runs the engine, and persists the result. Errors skip the cycle
// rather than crash the loop.
func (d *Dispatcher) dispatch(ctx context.Context, trade models.ObservedTrade) {
	started := time.Now()
	log.Printf("[Dispatcher] %s %s %.4f @ %.4f (%s)",
		trade.Side, trade.Asset, trade.Size, trade.Price, trade.TransactionHash)

	state, err := d.resolveState(ctx, trade)
	if err != nil {
		log.Printf("[Dispatcher] Skipping %s: %v", trade.TransactionHash, err)
		if d.metrics != nil {
			d.metrics.RecordSkip()
		}
		return
	}

	strategy := classifyStrategy(trade, state.counterpartyPosition)
	result := d.engine.Execute(ctx, strategy, trade,
		state.ownPosition, state.counterpartyPosition, state.ownBalance, state.counterpartyBalance)

	if result.Outcome == OutcomeAborted {
		// Shutdown hit mid-walk. Leave the trade unprocessed so a restart
		// that warms the dedup set from storage will not see it as done.
		log.Printf("[Dispatcher] %s aborted mid-execution", trade.TransactionHash)
		return
	}

	d.persist(trade, result)
	if d.metrics != nil {
		d.metrics.RecordExecution(result, trade, time.Since(started))
	}

	log.Printf("[Dispatcher] %s done: strategy=%s outcome=%s filled=%.4f/%.4f retries=%d orders=%d",
		trade.TransactionHash, result.Strategy, result.Outcome,
		result.Filled, result.Requested, result.RetryCount, result.Orders)
}

type marketState struct {
	ownBalance           float64
	counterpartyBalance  float64
	ownPosition          *models.Position
	counterpartyPosition *models.Position
}

// resolveState fetches fresh balances and positions for both accounts.
// Nothing here is cached: every trade sees the market as it is now.
func (d *Dispatcher) resolveState(ctx context.Context, trade models.ObservedTrade) (*marketState, error) {
	state := &marketState{}

	ownBalance, err := d.clob.GetUSDCBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("own balance: %w", err)
	}
	state.ownBalance = ownBalance

	counterpartyBalance, err := d.chainBalance(ctx, d.targetUser)
	if err != nil {
		return nil, fmt.Errorf("target balance: %w", err)
	}
	state.counterpartyBalance = counterpartyBalance

	ownPos, err := d.data.GetPosition(ctx, d.proxyWallet, trade.Asset)
	if err != nil {
		return nil, fmt.Errorf("own position: %w", err)
	}
	if ownPos != nil {
		state.ownPosition = &models.Position{Asset: ownPos.Asset, Size: ownPos.Size.Float64()}
	}

	targetPos, err := d.data.GetPosition(ctx, d.targetUser, trade.Asset)
	if err != nil {
		return nil, fmt.Errorf("target position: %w", err)
	}
	if targetPos != nil {
		state.counterpartyPosition = &models.Position{Asset: targetPos.Asset, Size: targetPos.Size.Float64()}
	}

	return state, nil
}

// classifyStrategy maps an observed trade onto a replication strategy. A buy
// opens, a sell reduces, and a sell that leaves the target with no residual
// position closes.
func classifyStrategy(trade models.ObservedTrade, counterpartyPosition *models.Position) Strategy {
	if strings.EqualFold(trade.Side, "BUY") {
		return StrategyOpen
	}
	if counterpartyPosition == nil || counterpartyPosition.Size <= 0 {
		return StrategyClose
	}
	return StrategyReduce
}

// persist records the outcome in the audit trail. Storage failures are logged
// only: losing audit rows must not stop replication.
func (d *Dispatcher) persist(trade models.ObservedTrade, result ExecutionResult) {
	// Persistence must finish even when the daemon is shutting down.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.store.MarkTradeProcessed(ctx, trade.TransactionHash, result.RetryCount); err != nil {
		log.Printf("[Dispatcher] Failed to mark %s processed: %v", trade.TransactionHash, err)
	}

	now := time.Now()
	exec := models.Execution{
		TransactionHash: trade.TransactionHash,
		TargetUser:      d.targetUser,
		Asset:           trade.Asset,
		Title:           trade.Title,
		Side:            trade.Side,
		Strategy:        result.Strategy.String(),
		Outcome:         string(result.Outcome),
		Reason:          result.Reason,
		Requested:       result.Requested,
		Filled:          result.Filled,
		RetryCount:      result.RetryCount,
		Orders:          result.Orders,
		ExecutedAt:      &now,
	}
	if err := d.store.SaveExecution(ctx, exec); err != nil {
		log.Printf("[Dispatcher] Failed to save execution for %s: %v", trade.TransactionHash, err)
	}
}
