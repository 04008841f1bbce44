package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/algariis/polymarket-trading-bot/api"
	"github.com/algariis/polymarket-trading-bot/models"
)

func newTestEngine(clob api.ClobGateway) *Engine {
	// Zero delays keep the walk loop instant in tests.
	return NewEngine(clob, 3, 0.05, 0, 0)
}

func buyTrade(usdcSize, price float64) models.ObservedTrade {
	return models.ObservedTrade{
		TransactionHash: "0xbuy",
		Asset:           "token-1",
		Type:            "TRADE",
		Side:            "BUY",
		Size:            usdcSize / price,
		UsdcSize:        usdcSize,
		Price:           price,
		Timestamp:       time.Now(),
	}
}

func sellTrade(size, price float64) models.ObservedTrade {
	return models.ObservedTrade{
		TransactionHash: "0xsell",
		Asset:           "token-1",
		Type:            "TRADE",
		Side:            "SELL",
		Size:            size,
		UsdcSize:        size * price,
		Price:           price,
		Timestamp:       time.Now(),
	}
}

func TestExecuteOpen_Sizing(t *testing.T) {
	tests := []struct {
		name                string
		ownBalance          float64
		counterpartyBalance float64
		tradeNotional       float64
		wantRequested       float64
		wantOutcome         Outcome
	}{
		{
			// ratio = 100/50 = 2, target = 50*2 = 100, capped at own balance
			name:                "target capped at own balance",
			ownBalance:          100,
			counterpartyBalance: 0,
			tradeNotional:       50,
			wantRequested:       100,
			wantOutcome:         OutcomeFilled,
		},
		{
			// ratio = 100/(900+100) = 0.1, target = 100*0.1 = 10
			name:                "proportional sizing",
			ownBalance:          100,
			counterpartyBalance: 900,
			tradeNotional:       100,
			wantRequested:       10,
			wantOutcome:         OutcomeFilled,
		},
		{
			name:                "zero own balance rejected",
			ownBalance:          0,
			counterpartyBalance: 500,
			tradeNotional:       50,
			wantRequested:       0,
			wantOutcome:         OutcomeRejected,
		},
		{
			name:                "non-positive denominator rejected",
			ownBalance:          100,
			counterpartyBalance: -50,
			tradeNotional:       50,
			wantRequested:       0,
			wantOutcome:         OutcomeRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clob := api.NewMockClobClient()
			clob.OrderBook = &api.OrderBook{
				Asks: []api.OrderBookLevel{{Price: "0.50", Size: "1000"}},
			}
			engine := newTestEngine(clob)

			trade := buyTrade(tt.tradeNotional, 0.50)
			result := engine.Execute(context.Background(), StrategyOpen, trade,
				nil, nil, tt.ownBalance, tt.counterpartyBalance)

			if result.Outcome != tt.wantOutcome {
				t.Errorf("outcome = %s, want %s", result.Outcome, tt.wantOutcome)
			}
			if result.Requested != tt.wantRequested {
				t.Errorf("requested = %.4f, want %.4f", result.Requested, tt.wantRequested)
			}
			if tt.wantOutcome == OutcomeRejected && len(clob.PostOrderCalls) != 0 {
				t.Errorf("rejected trade submitted %d orders", len(clob.PostOrderCalls))
			}
			if tt.wantOutcome == OutcomeFilled && result.Filled != tt.wantRequested {
				t.Errorf("filled = %.4f, want %.4f", result.Filled, tt.wantRequested)
			}
		})
	}
}

func TestExecuteOpen_SlippageCutoff(t *testing.T) {
	tests := []struct {
		name        string
		askPrice    string
		wantOutcome Outcome
	}{
		{"ask at trade price executes", "0.50", OutcomeFilled},
		{"ask at tolerance boundary executes", "0.55", OutcomeFilled},
		{"ask beyond tolerance rejected", "0.56", OutcomeRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clob := api.NewMockClobClient()
			clob.OrderBook = &api.OrderBook{
				Asks: []api.OrderBookLevel{{Price: tt.askPrice, Size: "1000"}},
			}
			engine := newTestEngine(clob)

			result := engine.Execute(context.Background(), StrategyOpen, buyTrade(50, 0.50),
				nil, nil, 100, 100)

			if result.Outcome != tt.wantOutcome {
				t.Errorf("outcome = %s, want %s", result.Outcome, tt.wantOutcome)
			}
			if tt.wantOutcome == OutcomeRejected {
				if len(clob.PostOrderCalls) != 0 {
					t.Errorf("slippage-rejected trade submitted %d orders", len(clob.PostOrderCalls))
				}
				if result.Reason != "slippage tolerance exceeded" {
					t.Errorf("reason = %q", result.Reason)
				}
			}
		})
	}
}

func TestExecuteOpen_WalksMultipleLevels(t *testing.T) {
	clob := api.NewMockClobClient()
	// Fresh snapshot per iteration: the first fill consumes the 0.50 level.
	clob.Books = []*api.OrderBook{
		{Asks: []api.OrderBookLevel{
			{Price: "0.52", Size: "200"},
			{Price: "0.50", Size: "100"}, // best ask, capacity $50
		}},
		{Asks: []api.OrderBookLevel{
			{Price: "0.52", Size: "200"}, // capacity $104
		}},
	}
	engine := newTestEngine(clob)

	// own=80, counterparty=0, notional=40: ratio=2, target=80 capped at 80
	result := engine.Execute(context.Background(), StrategyOpen, buyTrade(40, 0.50),
		nil, nil, 80, 0)

	if result.Outcome != OutcomeFilled {
		t.Fatalf("outcome = %s, want %s (reason %q)", result.Outcome, OutcomeFilled, result.Reason)
	}
	if len(clob.CreateOrderCalls) != 2 {
		t.Fatalf("orders created = %d, want 2", len(clob.CreateOrderCalls))
	}
	first, second := clob.CreateOrderCalls[0], clob.CreateOrderCalls[1]
	if first.Price != 0.50 || first.Amount != 50 {
		t.Errorf("first order = %.2f @ %.2f, want 50.00 @ 0.50", first.Amount, first.Price)
	}
	if second.Price != 0.52 || second.Amount != 30 {
		t.Errorf("second order = %.2f @ %.2f, want 30.00 @ 0.52", second.Amount, second.Price)
	}
	if result.Filled != 80 {
		t.Errorf("filled = %.2f, want 80.00", result.Filled)
	}
}

func TestExecuteClose(t *testing.T) {
	t.Run("no position is a noop", func(t *testing.T) {
		clob := api.NewMockClobClient()
		engine := newTestEngine(clob)

		result := engine.Execute(context.Background(), StrategyClose, sellTrade(10, 0.60),
			nil, nil, 0, 0)

		if result.Outcome != OutcomeNoop {
			t.Errorf("outcome = %s, want %s", result.Outcome, OutcomeNoop)
		}
		if len(clob.PostOrderCalls) != 0 {
			t.Errorf("noop submitted %d orders", len(clob.PostOrderCalls))
		}
		if clob.Calls["GetOrderBook"] != 0 {
			t.Errorf("noop fetched the book %d times", clob.Calls["GetOrderBook"])
		}
	})

	t.Run("sells full position at best bid", func(t *testing.T) {
		clob := api.NewMockClobClient()
		clob.OrderBook = &api.OrderBook{
			Bids: []api.OrderBookLevel{
				{Price: "0.55", Size: "100"},
				{Price: "0.60", Size: "50"}, // best bid despite ordering
			},
		}
		engine := newTestEngine(clob)

		own := &models.Position{Asset: "token-1", Size: 40}
		result := engine.Execute(context.Background(), StrategyClose, sellTrade(10, 0.60),
			own, nil, 0, 0)

		if result.Outcome != OutcomeFilled {
			t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeFilled)
		}
		if len(clob.CreateOrderCalls) != 1 {
			t.Fatalf("orders created = %d, want 1", len(clob.CreateOrderCalls))
		}
		call := clob.CreateOrderCalls[0]
		if call.Side != api.SideSell || call.Amount != 40 || call.Price != 0.60 {
			t.Errorf("order = %s %.2f @ %.2f, want SELL 40.00 @ 0.60", call.Side, call.Amount, call.Price)
		}
	})

	t.Run("empty bid side stops immediately", func(t *testing.T) {
		clob := api.NewMockClobClient()
		clob.OrderBook = &api.OrderBook{
			Asks: []api.OrderBookLevel{{Price: "0.50", Size: "100"}},
		}
		engine := newTestEngine(clob)

		own := &models.Position{Asset: "token-1", Size: 40}
		result := engine.Execute(context.Background(), StrategyClose, sellTrade(10, 0.60),
			own, nil, 0, 0)

		if result.Outcome != OutcomeRejected || result.Reason != "empty book" {
			t.Errorf("outcome = %s (%q), want rejected (empty book)", result.Outcome, result.Reason)
		}
	})
}

func TestExecuteReduce(t *testing.T) {
	tests := []struct {
		name          string
		ownSize       float64
		targetResid   *models.Position
		tradeSize     float64
		wantRequested float64
		wantOutcome   Outcome
	}{
		{
			// Target trader fully exited: follow them out in full.
			name:          "full liquidation when target exited",
			ownSize:       40,
			targetResid:   nil,
			tradeSize:     100,
			wantRequested: 40,
			wantOutcome:   OutcomeFilled,
		},
		{
			name:          "zero residual treated as full exit",
			ownSize:       40,
			targetResid:   &models.Position{Asset: "token-1", Size: 0},
			tradeSize:     100,
			wantRequested: 40,
			wantOutcome:   OutcomeFilled,
		},
		{
			// ratio = 40/(60+40) = 0.4, target = 100*0.4 = 40
			name:          "proportional reduction",
			ownSize:       100,
			targetResid:   &models.Position{Asset: "token-1", Size: 60},
			tradeSize:     40,
			wantRequested: 40,
			wantOutcome:   OutcomeFilled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clob := api.NewMockClobClient()
			clob.OrderBook = &api.OrderBook{
				Bids: []api.OrderBookLevel{{Price: "0.50", Size: "1000"}},
			}
			engine := newTestEngine(clob)

			own := &models.Position{Asset: "token-1", Size: tt.ownSize}
			result := engine.Execute(context.Background(), StrategyReduce, sellTrade(tt.tradeSize, 0.50),
				own, tt.targetResid, 0, 0)

			if result.Outcome != tt.wantOutcome {
				t.Errorf("outcome = %s, want %s", result.Outcome, tt.wantOutcome)
			}
			if result.Requested != tt.wantRequested {
				t.Errorf("requested = %.4f, want %.4f", result.Requested, tt.wantRequested)
			}
		})
	}

	t.Run("no own position is a noop", func(t *testing.T) {
		clob := api.NewMockClobClient()
		engine := newTestEngine(clob)

		result := engine.Execute(context.Background(), StrategyReduce, sellTrade(10, 0.50),
			nil, &models.Position{Asset: "token-1", Size: 60}, 0, 0)

		if result.Outcome != OutcomeNoop {
			t.Errorf("outcome = %s, want %s", result.Outcome, OutcomeNoop)
		}
		if len(clob.PostOrderCalls) != 0 {
			t.Errorf("noop submitted %d orders", len(clob.PostOrderCalls))
		}
	})

	t.Run("bid below tolerance rejected", func(t *testing.T) {
		clob := api.NewMockClobClient()
		clob.OrderBook = &api.OrderBook{
			Bids: []api.OrderBookLevel{{Price: "0.44", Size: "1000"}},
		}
		engine := newTestEngine(clob)

		own := &models.Position{Asset: "token-1", Size: 40}
		result := engine.Execute(context.Background(), StrategyReduce, sellTrade(10, 0.50),
			own, &models.Position{Asset: "token-1", Size: 60}, 0, 0)

		if result.Outcome != OutcomeRejected || result.Reason != "slippage tolerance exceeded" {
			t.Errorf("outcome = %s (%q), want rejected (slippage)", result.Outcome, result.Reason)
		}
	})

	t.Run("bid at tolerance boundary executes", func(t *testing.T) {
		clob := api.NewMockClobClient()
		clob.OrderBook = &api.OrderBook{
			Bids: []api.OrderBookLevel{{Price: "0.45", Size: "1000"}},
		}
		engine := newTestEngine(clob)

		own := &models.Position{Asset: "token-1", Size: 40}
		result := engine.Execute(context.Background(), StrategyReduce, sellTrade(10, 0.50),
			own, &models.Position{Asset: "token-1", Size: 60}, 0, 0)

		if result.Outcome != OutcomeFilled {
			t.Errorf("outcome = %s, want %s", result.Outcome, OutcomeFilled)
		}
	})
}

func TestRetryBound(t *testing.T) {
	clob := api.NewMockClobClient()
	clob.OrderBook = &api.OrderBook{
		Bids: []api.OrderBookLevel{{Price: "0.50", Size: "1000"}},
	}
	clob.OrderResponse = &api.OrderResponse{Success: false, ErrorMsg: "not enough liquidity"}
	engine := newTestEngine(clob)

	own := &models.Position{Asset: "token-1", Size: 40}
	result := engine.Execute(context.Background(), StrategyClose, sellTrade(10, 0.50),
		own, nil, 0, 0)

	if result.Outcome != OutcomeExhausted {
		t.Errorf("outcome = %s, want %s", result.Outcome, OutcomeExhausted)
	}
	if result.RetryCount != 3 {
		t.Errorf("retryCount = %d, want 3", result.RetryCount)
	}
	if result.Filled != 0 {
		t.Errorf("filled = %.4f, want 0", result.Filled)
	}
	if got := len(clob.PostOrderCalls); got != 3 {
		t.Errorf("order submissions = %d, want 3", got)
	}
}

func TestRetryResetsOnSuccess(t *testing.T) {
	clob := api.NewMockClobClient()
	clob.OrderBook = &api.OrderBook{
		Bids: []api.OrderBookLevel{{Price: "0.50", Size: "50"}},
	}
	// fail, fail, success, fail, fail, success: never three in a row.
	clob.PostResponses = []*api.OrderResponse{
		{Success: false}, {Success: false}, {Success: true},
		{Success: false}, {Success: false}, {Success: true},
	}
	engine := newTestEngine(clob)

	own := &models.Position{Asset: "token-1", Size: 100}
	result := engine.Execute(context.Background(), StrategyClose, sellTrade(10, 0.50),
		own, nil, 0, 0)

	if result.Outcome != OutcomeFilled {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeFilled)
	}
	if result.Filled != 100 {
		t.Errorf("filled = %.4f, want 100", result.Filled)
	}
	if result.Orders != 2 {
		t.Errorf("orders = %d, want 2", result.Orders)
	}
	if result.RetryCount != 0 {
		t.Errorf("retryCount at exit = %d, want 0", result.RetryCount)
	}
}

func TestMonotonicRemaining(t *testing.T) {
	clob := api.NewMockClobClient()
	clob.OrderBook = &api.OrderBook{
		Bids: []api.OrderBookLevel{{Price: "0.50", Size: "30"}},
	}
	engine := newTestEngine(clob)

	own := &models.Position{Asset: "token-1", Size: 75}
	result := engine.Execute(context.Background(), StrategyClose, sellTrade(10, 0.50),
		own, nil, 0, 0)

	if result.Outcome != OutcomeFilled {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeFilled)
	}
	// 30 + 30 + 15: each decrement equals the submitted amount.
	wantAmounts := []float64{30, 30, 15}
	if len(clob.CreateOrderCalls) != len(wantAmounts) {
		t.Fatalf("orders = %d, want %d", len(clob.CreateOrderCalls), len(wantAmounts))
	}
	var total float64
	for i, call := range clob.CreateOrderCalls {
		if call.Amount != wantAmounts[i] {
			t.Errorf("order %d amount = %.2f, want %.2f", i, call.Amount, wantAmounts[i])
		}
		total += call.Amount
	}
	if total != result.Filled {
		t.Errorf("sum of submissions %.2f != filled %.2f", total, result.Filled)
	}
}

func TestShutdownAbortsWalk(t *testing.T) {
	clob := api.NewMockClobClient()
	clob.OrderBook = &api.OrderBook{
		Bids: []api.OrderBookLevel{{Price: "0.50", Size: "30"}},
	}
	// Non-zero settle delay so cancellation lands in the pause.
	engine := NewEngine(clob, 3, 0.05, 50*time.Millisecond, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	own := &models.Position{Asset: "token-1", Size: 75}
	result := engine.Execute(ctx, StrategyClose, sellTrade(10, 0.50), own, nil, 0, 0)

	if result.Outcome != OutcomeAborted {
		t.Errorf("outcome = %s, want %s", result.Outcome, OutcomeAborted)
	}
}
