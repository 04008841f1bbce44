package api

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNumericUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		json string
		want float64
	}{
		{"plain number", `12.5`, 12.5},
		{"quoted number", `"12.5"`, 12.5},
		{"integer", `100`, 100},
		{"quoted integer", `"100"`, 100},
		{"null", `null`, 0},
		{"empty string", `""`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n Numeric
			if err := json.Unmarshal([]byte(tt.json), &n); err != nil {
				t.Fatalf("unmarshal %s: %v", tt.json, err)
			}
			if n.Float64() != tt.want {
				t.Errorf("got %f, want %f", n.Float64(), tt.want)
			}
		})
	}

	var n Numeric
	if err := json.Unmarshal([]byte(`"not-a-number"`), &n); err == nil {
		t.Error("expected error for non-numeric string")
	}
}

func TestActivityDecode(t *testing.T) {
	// Shape as returned by the data API, sizes as numbers and price quoted.
	payload := []byte(`{
		"proxyWallet": "0x1234",
		"type": "TRADE",
		"side": "BUY",
		"asset": "123456789",
		"conditionId": "0xabc",
		"size": 100.5,
		"usdcSize": "55.27",
		"price": "0.55",
		"timestamp": 1733571600,
		"title": "Test Market",
		"outcome": "Yes",
		"transactionHash": "0xtx123"
	}`)

	var activity Activity
	if err := json.Unmarshal(payload, &activity); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if activity.Size.Float64() != 100.5 {
		t.Errorf("size = %f, want 100.5", activity.Size.Float64())
	}
	if activity.UsdcSize.Float64() != 55.27 {
		t.Errorf("usdcSize = %f, want 55.27", activity.UsdcSize.Float64())
	}

	trade := activity.ToObservedTrade()
	if trade.TransactionHash != "0xtx123" {
		t.Errorf("hash = %s", trade.TransactionHash)
	}
	if trade.Side != "BUY" || trade.Asset != "123456789" {
		t.Errorf("trade = %+v", trade)
	}
	if want := time.Unix(1733571600, 0); !trade.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", trade.Timestamp, want)
	}
	if trade.Processed {
		t.Error("fresh trade marked processed")
	}
}

func TestLiveDataWSClient_HandleMessage(t *testing.T) {
	var received []LiveTradeEvent
	client := NewLiveDataWSClient("0x1234", func(event LiveTradeEvent) {
		received = append(received, event)
	})

	valid := []byte(`{
		"topic": "activity",
		"type": "orders_matched",
		"payload": {
			"proxyWallet": "0x1234",
			"side": "BUY",
			"asset": "123456789",
			"size": 100.0,
			"price": 0.55,
			"outcome": "Yes",
			"transactionHash": "0xtx123",
			"timestamp": 1733571600
		}
	}`)

	client.handleMessage(valid)

	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	event := received[0]
	if event.Side != "BUY" || event.Size != 100.0 || event.Price != 0.55 {
		t.Errorf("event = %+v", event)
	}

	trade := event.ToObservedTrade()
	if trade.Type != "TRADE" {
		t.Errorf("converted type = %s, want TRADE", trade.Type)
	}
	if diff := trade.UsdcSize.Float64() - 55.0; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("usdcSize = %f, want 55.0", trade.UsdcSize.Float64())
	}
}

func TestLiveDataWSClient_HandleMessage_Ignores(t *testing.T) {
	var received []LiveTradeEvent
	client := NewLiveDataWSClient("0x1234", func(event LiveTradeEvent) {
		received = append(received, event)
	})

	messages := [][]byte{
		[]byte(`{"type": "connection_established"}`),
		[]byte(`not json`),
		[]byte(``),
		[]byte(`{"type": "price_update", "payload": {}}`),
		// Wrong wallet gets filtered even if the server sends it.
		[]byte(`{"type": "orders_matched", "payload": {"proxyWallet": "0x9999", "side": "BUY"}}`),
	}

	for _, msg := range messages {
		client.handleMessage(msg)
	}

	if len(received) != 0 {
		t.Errorf("expected no events, got %d", len(received))
	}
}

func TestLiveDataWSClient_HandleMessage_NilHandler(t *testing.T) {
	client := NewLiveDataWSClient("0x1234", nil)

	// Should not panic
	client.handleMessage([]byte(`{"type": "orders_matched", "payload": {"proxyWallet": "0x1234", "side": "BUY"}}`))
}
