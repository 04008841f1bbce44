// Package api provides the Polymarket gateway clients: the CLOB trading
// client, the data API client, and on-chain balance queries.
package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ClobClient handles CLOB API interactions for trading.
type ClobClient struct {
	baseURL       string
	httpClient    *http.Client
	auth          *Auth
	apiCreds      *APICreds
	chainID       int64
	funder        common.Address
	signatureType int // 0=EOA, 1=Magic/Email, 2=Browser proxy
}

// APICreds holds API credentials for CLOB L2 authentication.
type APICreds struct {
	APIKey        string `json:"apiKey"`
	APISecret     string `json:"secret"`
	APIPassphrase string `json:"passphrase"`
}

// OrderBook represents the order book for a token.
type OrderBook struct {
	Market    string           `json:"market"`
	AssetID   string           `json:"asset_id"`
	Hash      string           `json:"hash"`
	Timestamp string           `json:"timestamp"`
	Bids      []OrderBookLevel `json:"bids"`
	Asks      []OrderBookLevel `json:"asks"`
}

// OrderBookLevel represents a single price level.
type OrderBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// OrderType represents the time-in-force of an order.
type OrderType string

const (
	OrderTypeFOK OrderType = "FOK" // Fill-Or-Kill (market order)
	OrderTypeGTC OrderType = "GTC" // Good-Til-Cancelled (limit order)
)

// Side represents buy or sell.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Order represents a signed order.
type Order struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
	SideInt       int    `json:"-"` // internal, for EIP-712 signing
}

// OrderRequest is the payload for placing an order.
type OrderRequest struct {
	Order     Order     `json:"order"`
	Owner     string    `json:"owner"`
	OrderType OrderType `json:"orderType"`
}

// OrderResponse is the response from placing an order.
type OrderResponse struct {
	Success     bool     `json:"success"`
	ErrorMsg    string   `json:"errorMsg"`
	OrderID     string   `json:"orderId"`
	OrderHashes []string `json:"orderHashes"`
	Status      string   `json:"status"` // matched, live, delayed, unmatched
}

// BalanceAllowance represents the balance and allowance for an account.
type BalanceAllowance struct {
	Balance   string `json:"balance"`
	Allowance string `json:"allowance"`
}

// AssetType selects which balance to query.
type AssetType string

const (
	AssetTypeCollateral  AssetType = "COLLATERAL"  // USDC
	AssetTypeConditional AssetType = "CONDITIONAL" // outcome tokens
)

// NewClobClient creates a new CLOB API client.
func NewClobClient(baseURL string, auth *Auth) (*ClobClient, error) {
	if baseURL == "" {
		baseURL = "https://clob.polymarket.com"
	}

	return &ClobClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		auth:          auth,
		chainID:       137, // Polygon mainnet
		funder:        auth.GetAddress(),
		signatureType: 0, // default to EOA
	}, nil
}

// SetFunder sets the funder address for Magic/Email wallets.
// The funder is the Polymarket profile address where USDC is held.
func (c *ClobClient) SetFunder(funderAddress string) {
	c.funder = common.HexToAddress(funderAddress)
}

// SetSignatureType sets the signature type (0=EOA, 1=Magic/Email, 2=Browser proxy).
func (c *ClobClient) SetSignatureType(sigType int) {
	c.signatureType = sigType
}

// DeriveAPICreds derives or creates API credentials for L2 authentication.
func (c *ClobClient) DeriveAPICreds(ctx context.Context) (*APICreds, error) {
	creds, err := c.createAPICreds(ctx)
	if err == nil && creds != nil {
		c.apiCreds = creds
		log.Printf("[CLOB] Created new API credentials")
		return creds, nil
	}

	log.Printf("[CLOB] Creating creds failed (%v), trying to derive existing", err)
	creds, err = c.deriveAPICreds(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to derive API creds: %w", err)
	}

	c.apiCreds = creds
	return creds, nil
}

func (c *ClobClient) deriveAPICreds(ctx context.Context) (*APICreds, error) {
	headers, err := c.auth.SignRequest()
	if err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return nil, err
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("derive API creds failed: %d %s", resp.StatusCode, string(respBody))
	}

	var creds APICreds
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return nil, fmt.Errorf("failed to decode API creds: %w", err)
	}
	return &creds, nil
}

func (c *ClobClient) createAPICreds(ctx context.Context) (*APICreds, error) {
	headers, err := c.auth.SignRequest()
	if err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}

	nonce := time.Now().UnixNano()
	body := fmt.Sprintf(`{"nonce":%d}`, nonce)

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/auth/api-key", bytes.NewBufferString(body))
	if err != nil {
		return nil, err
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("create API creds failed: %d %s", resp.StatusCode, string(respBody))
	}

	var creds APICreds
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return nil, fmt.Errorf("failed to decode API creds: %w", err)
	}
	return &creds, nil
}

// GetOrderBook fetches a fresh order book snapshot for a token.
func (c *ClobClient) GetOrderBook(ctx context.Context, tokenID string) (*OrderBook, error) {
	values := url.Values{}
	values.Set("token_id", tokenID)

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/book?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get order book failed: %d %s", resp.StatusCode, string(body))
	}

	var book OrderBook
	if err := json.NewDecoder(resp.Body).Decode(&book); err != nil {
		return nil, fmt.Errorf("failed to decode order book: %w", err)
	}
	return &book, nil
}

// GetBalanceAllowance fetches the balance and allowance for the authenticated user.
// tokenID is required for the CONDITIONAL asset type.
func (c *ClobClient) GetBalanceAllowance(ctx context.Context, assetType AssetType, tokenID string) (*BalanceAllowance, error) {
	params := url.Values{}
	params.Set("asset_type", string(assetType))
	if tokenID != "" {
		params.Set("token_id", tokenID)
	}
	params.Set("signature_type", strconv.Itoa(c.signatureType))

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/balance-allowance?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	c.addL2Headers(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get balance allowance failed: %d %s", resp.StatusCode, string(body))
	}

	var result BalanceAllowance
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode balance allowance: %w", err)
	}
	return &result, nil
}

// GetUSDCBalance returns the authenticated account's USDC balance in
// human-readable units.
func (c *ClobClient) GetUSDCBalance(ctx context.Context) (float64, error) {
	ba, err := c.GetBalanceAllowance(ctx, AssetTypeCollateral, "")
	if err != nil {
		return 0, err
	}

	// Balance arrives in 6-decimal USDC base units.
	balanceInt, err := strconv.ParseInt(ba.Balance, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse balance: %w", err)
	}
	return float64(balanceInt) / 1e6, nil
}

// CreateMarketOrder builds and signs a marketable order at an explicit price.
// For BUY orders amount is the USDC notional to spend; for SELL orders amount
// is the number of tokens to sell. The order is not submitted.
func (c *ClobClient) CreateMarketOrder(tokenID string, side Side, amount, price float64, negRisk bool) (*Order, error) {
	if price <= 0 {
		return nil, fmt.Errorf("invalid order price %f", price)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("invalid order amount %f", amount)
	}

	// Round price to the 0.01 tick used by most markets, amounts to 2 dp.
	price = float64(int(price/0.01+0.5)) * 0.01
	amount = float64(int(amount*100+0.5)) / 100

	var size, usdc float64
	if side == SideBuy {
		usdc = amount
		size = amount / price
	} else {
		size = amount
		usdc = amount * price
	}

	// USDC and outcome tokens both use 6 decimals on Polymarket.
	sizeInt := new(big.Int)
	new(big.Float).Mul(big.NewFloat(size), big.NewFloat(1e6)).Int(sizeInt)
	usdcInt := new(big.Int)
	new(big.Float).Mul(big.NewFloat(usdc), big.NewFloat(1e6)).Int(usdcInt)

	var makerAmount, takerAmount *big.Int
	sideInt := 0
	if side == SideBuy {
		makerAmount = usdcInt // we give USDC
		takerAmount = sizeInt // we get tokens
	} else {
		makerAmount = sizeInt // we give tokens
		takerAmount = usdcInt // we get USDC
		sideInt = 1
	}

	order := &Order{
		Salt:          generateSalt(),
		Maker:         c.funder.Hex(),
		Signer:        c.auth.GetAddress().Hex(),
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       tokenID,
		MakerAmount:   makerAmount.String(),
		TakerAmount:   takerAmount.String(),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          string(side),
		SignatureType: c.signatureType,
		SideInt:       sideInt,
	}

	signature, err := c.signOrder(order, negRisk)
	if err != nil {
		return nil, fmt.Errorf("failed to sign order: %w", err)
	}
	order.Signature = signature

	return order, nil
}

func (c *ClobClient) signOrder(order *Order, negRisk bool) (string, error) {
	// Neg-risk markets settle through a different exchange contract.
	verifyingContract := "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E" // CTFExchange
	if negRisk {
		verifyingContract = "0xC5d563A36AE78145C45a50134d48A1215220f80a" // NegRiskCTFExchange
	}

	domain := apitypes.TypedDataDomain{
		Name:              "Polymarket CTF Exchange",
		Version:           "1",
		ChainId:           math.NewHexOrDecimal256(c.chainID),
		VerifyingContract: verifyingContract,
	}

	salt := big.NewInt(order.Salt)
	tokenID := new(big.Int)
	tokenID.SetString(order.TokenID, 10)
	makerAmount := new(big.Int)
	makerAmount.SetString(order.MakerAmount, 10)
	takerAmount := new(big.Int)
	takerAmount.SetString(order.TakerAmount, 10)

	message := map[string]interface{}{
		"salt":          salt,
		"maker":         order.Maker,
		"signer":        order.Signer,
		"taker":         order.Taker,
		"tokenId":       tokenID,
		"makerAmount":   makerAmount,
		"takerAmount":   takerAmount,
		"expiration":    big.NewInt(0),
		"nonce":         big.NewInt(0),
		"feeRateBps":    big.NewInt(0),
		"side":          big.NewInt(int64(order.SideInt)),
		"signatureType": big.NewInt(int64(order.SignatureType)),
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": []apitypes.Type{
				{Name: "salt", Type: "uint256"},
				{Name: "maker", Type: "address"},
				{Name: "signer", Type: "address"},
				{Name: "taker", Type: "address"},
				{Name: "tokenId", Type: "uint256"},
				{Name: "makerAmount", Type: "uint256"},
				{Name: "takerAmount", Type: "uint256"},
				{Name: "expiration", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "feeRateBps", Type: "uint256"},
				{Name: "side", Type: "uint8"},
				{Name: "signatureType", Type: "uint8"},
			},
		},
		PrimaryType: "Order",
		Domain:      domain,
		Message:     message,
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", fmt.Errorf("failed to hash typed data: %w", err)
	}

	signature, err := crypto.Sign(hash, c.auth.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign: %w", err)
	}
	signature[64] += 27

	return "0x" + hex.EncodeToString(signature), nil
}

// PostOrder submits a signed order with the given time-in-force.
func (c *ClobClient) PostOrder(ctx context.Context, order *Order, orderType OrderType) (*OrderResponse, error) {
	if c.apiCreds == nil {
		if _, err := c.DeriveAPICreds(ctx); err != nil {
			return nil, fmt.Errorf("failed to get API creds: %w", err)
		}
	}

	payload := OrderRequest{
		Order:     *order,
		Owner:     c.apiCreds.APIKey,
		OrderType: orderType,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/order", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.addL2Headers(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("post order failed: %d %s", resp.StatusCode, string(respBody))
	}

	var orderResp OrderResponse
	if err := json.Unmarshal(respBody, &orderResp); err != nil {
		return nil, fmt.Errorf("failed to decode order response: %w", err)
	}
	return &orderResp, nil
}

func (c *ClobClient) addL2Headers(req *http.Request) {
	if c.apiCreds == nil {
		return
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	// Signature covers timestamp + method + path + body.
	message := timestamp + req.Method + req.URL.Path
	if req.Body != nil {
		bodyBytes, _ := io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		message += string(bodyBytes)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("POLY_ADDRESS", c.auth.GetAddress().Hex())
	req.Header.Set("POLY_API_KEY", c.apiCreds.APIKey)
	req.Header.Set("POLY_PASSPHRASE", c.apiCreds.APIPassphrase)
	req.Header.Set("POLY_TIMESTAMP", timestamp)
	req.Header.Set("POLY_SIGNATURE", c.hmacSign(message, c.apiCreds.APISecret))
}

func (c *ClobClient) hmacSign(message, secret string) string {
	key, err := base64.URLEncoding.DecodeString(secret)
	if err != nil {
		key, err = base64.StdEncoding.DecodeString(secret)
		if err != nil {
			key = []byte(secret)
		}
	}

	h := hmac.New(sha256.New, key)
	h.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

func generateSalt() int64 {
	// Small salt like the Python SDK uses, derived from the clock.
	return time.Now().UnixNano() % 1000000000
}
