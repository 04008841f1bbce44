// checkbalance verifies wallet configuration before running the daemon:
// it derives API credentials, then prints USDC balances and open positions
// for both the operator and the target trader.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/algariis/polymarket-trading-bot/api"
	"github.com/algariis/polymarket-trading-bot/config"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: no .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	auth, err := api.NewAuth(cfg.PrivateKey)
	if err != nil {
		log.Fatalf("Failed to create auth: %v", err)
	}
	log.Printf("Signer address: %s", auth.GetAddress().Hex())

	clob, err := api.NewClobClient(cfg.ClobURL, auth)
	if err != nil {
		log.Fatalf("Failed to create CLOB client: %v", err)
	}
	clob.SetFunder(cfg.ProxyWallet)
	if cfg.ProxyWallet != auth.GetAddress().Hex() {
		clob.SetSignatureType(1) // Magic/Email wallet
		log.Printf("Configured for proxy wallet: funder=%s", cfg.ProxyWallet)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	creds, err := clob.DeriveAPICreds(ctx)
	if err != nil {
		log.Fatalf("Failed to derive API creds: %v", err)
	}
	log.Printf("API credentials OK (key %s...)", creds.APIKey[:8])

	ownBalance, err := clob.GetUSDCBalance(ctx)
	if err != nil {
		log.Fatalf("Failed to read own balance: %v", err)
	}
	fmt.Printf("\nOwn CLOB balance:      %.2f USDC\n", ownBalance)

	targetBalance, err := api.GetOnChainUSDCBalance(ctx, cfg.TargetUser)
	if err != nil {
		log.Fatalf("Failed to read target balance: %v", err)
	}
	fmt.Printf("Target wallet balance: %.2f USDC (%s)\n", targetBalance, cfg.TargetUser)

	data := api.NewDataClient(cfg.DataURL)
	for _, wallet := range []struct {
		label   string
		address string
	}{
		{"own", cfg.ProxyWallet},
		{"target", cfg.TargetUser},
	} {
		positions, err := data.GetOpenPositions(ctx, wallet.address)
		if err != nil {
			log.Printf("Failed to read %s positions: %v", wallet.label, err)
			continue
		}
		fmt.Printf("\n%s positions (%d):\n", wallet.label, len(positions))
		for _, p := range positions {
			fmt.Printf("  %-50s %s  %.4f @ %.4f\n", truncate(p.Title, 50), p.Outcome, p.Size.Float64(), p.AvgPrice.Float64())
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
