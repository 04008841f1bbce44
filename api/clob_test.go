package api

import (
	"strings"
	"testing"
)

// Throwaway key for signing tests, never funded.
const testPrivateKey = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

func newTestClobClient(t *testing.T) *ClobClient {
	t.Helper()
	auth, err := NewAuth(testPrivateKey)
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	client, err := NewClobClient("", auth)
	if err != nil {
		t.Fatalf("NewClobClient: %v", err)
	}
	return client
}

func TestNewAuth(t *testing.T) {
	auth, err := NewAuth("0x" + testPrivateKey)
	if err != nil {
		t.Fatalf("NewAuth with 0x prefix: %v", err)
	}
	if auth.GetAddress().Hex() == "" {
		t.Error("empty address")
	}

	if _, err := NewAuth(""); err == nil {
		t.Error("expected error for empty key")
	}
	if _, err := NewAuth("zznothex"); err == nil {
		t.Error("expected error for invalid key")
	}
}

func TestSignRequestHeaders(t *testing.T) {
	auth, err := NewAuth(testPrivateKey)
	if err != nil {
		t.Fatal(err)
	}

	headers, err := auth.SignRequest()
	if err != nil {
		t.Fatalf("SignRequest: %v", err)
	}

	for _, key := range []string{"POLY_ADDRESS", "POLY_SIGNATURE", "POLY_TIMESTAMP", "POLY_NONCE"} {
		if headers[key] == "" {
			t.Errorf("missing header %s", key)
		}
	}
	if !strings.HasPrefix(headers["POLY_SIGNATURE"], "0x") {
		t.Errorf("signature not hex-prefixed: %s", headers["POLY_SIGNATURE"])
	}
	if headers["POLY_ADDRESS"] != auth.GetAddress().Hex() {
		t.Errorf("address header = %s, want %s", headers["POLY_ADDRESS"], auth.GetAddress().Hex())
	}
}

func TestCreateMarketOrderAmounts(t *testing.T) {
	tests := []struct {
		name            string
		side            Side
		amount          float64
		price           float64
		wantMakerAmount string
		wantTakerAmount string
	}{
		{
			// Buying $10 at 0.50: give 10 USDC, get 20 tokens.
			name:            "buy",
			side:            SideBuy,
			amount:          10,
			price:           0.50,
			wantMakerAmount: "10000000",
			wantTakerAmount: "20000000",
		},
		{
			// Selling 20 tokens at 0.50: give 20 tokens, get 10 USDC.
			name:            "sell",
			side:            SideSell,
			amount:          20,
			price:           0.50,
			wantMakerAmount: "20000000",
			wantTakerAmount: "10000000",
		},
		{
			// Price rounds to the 0.01 tick before sizing.
			name:            "price rounded to tick",
			side:            SideSell,
			amount:          10,
			price:           0.503,
			wantMakerAmount: "10000000",
			wantTakerAmount: "5000000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClobClient(t)

			order, err := client.CreateMarketOrder("123456789", tt.side, tt.amount, tt.price, false)
			if err != nil {
				t.Fatalf("CreateMarketOrder: %v", err)
			}

			if order.MakerAmount != tt.wantMakerAmount {
				t.Errorf("makerAmount = %s, want %s", order.MakerAmount, tt.wantMakerAmount)
			}
			if order.TakerAmount != tt.wantTakerAmount {
				t.Errorf("takerAmount = %s, want %s", order.TakerAmount, tt.wantTakerAmount)
			}
			if order.Side != string(tt.side) {
				t.Errorf("side = %s, want %s", order.Side, tt.side)
			}
			if !strings.HasPrefix(order.Signature, "0x") || len(order.Signature) != 132 {
				t.Errorf("malformed signature %q", order.Signature)
			}
		})
	}
}

func TestCreateMarketOrderRejectsBadInputs(t *testing.T) {
	client := newTestClobClient(t)

	if _, err := client.CreateMarketOrder("123", SideBuy, 10, 0, false); err == nil {
		t.Error("expected error for zero price")
	}
	if _, err := client.CreateMarketOrder("123", SideBuy, 0, 0.5, false); err == nil {
		t.Error("expected error for zero amount")
	}
	if _, err := client.CreateMarketOrder("123", SideBuy, -5, 0.5, false); err == nil {
		t.Error("expected error for negative amount")
	}
}

func TestSignOrderNegRiskSwitchesContract(t *testing.T) {
	client := newTestClobClient(t)

	normal, err := client.CreateMarketOrder("123456789", SideBuy, 10, 0.50, false)
	if err != nil {
		t.Fatal(err)
	}
	negRisk, err := client.CreateMarketOrder("123456789", SideBuy, 10, 0.50, true)
	if err != nil {
		t.Fatal(err)
	}

	// Different verifying contract must produce a different signature for
	// otherwise identical orders (salts aside, the domains differ).
	if normal.Signature == negRisk.Signature && normal.Salt == negRisk.Salt {
		t.Error("neg-risk signature identical to standard-exchange signature")
	}
}
