package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"
)

// USDCContractPolygon is the bridged USDC token contract on Polygon, the
// collateral token for Polymarket markets.
const USDCContractPolygon = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"

// PolygonRPCURL is the public Polygon JSON-RPC endpoint.
const PolygonRPCURL = "https://polygon-rpc.com"

// GetOnChainUSDCBalance queries the USDC balance of any wallet directly from
// the Polygon chain. No authentication is needed, which makes this the way to
// read the target trader's bankroll.
func GetOnChainUSDCBalance(ctx context.Context, walletAddress string) (float64, error) {
	walletAddress = strings.ToLower(strings.TrimSpace(walletAddress))
	if !strings.HasPrefix(walletAddress, "0x") {
		walletAddress = "0x" + walletAddress
	}

	// balanceOf(address) selector 0x70a08231, address left-padded to 32 bytes.
	paddedAddr := fmt.Sprintf("%064s", strings.TrimPrefix(walletAddress, "0x"))
	data := "0x70a08231" + paddedAddr

	reqBody := fmt.Sprintf(`{"jsonrpc":"2.0","method":"eth_call","params":[{"to":"%s","data":"%s"},"latest"],"id":1}`,
		USDCContractPolygon, data)

	req, err := http.NewRequestWithContext(ctx, "POST", PolygonRPCURL, strings.NewReader(reqBody))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rpc request: %w", err)
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result string `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return 0, fmt.Errorf("rpc error: %s", rpcResp.Error.Message)
	}

	result := strings.TrimPrefix(rpcResp.Result, "0x")
	if result == "" || result == "0" {
		return 0, nil
	}

	balance := new(big.Int)
	if _, ok := balance.SetString(result, 16); !ok {
		return 0, fmt.Errorf("parse balance hex %q", rpcResp.Result)
	}

	// USDC has 6 decimals.
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(balance), big.NewFloat(1e6)).Float64()
	return f, nil
}
