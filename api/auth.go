package api

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Auth holds the signing wallet for CLOB authentication.
type Auth struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int64
}

// NewAuth creates an Auth from a hex-encoded private key.
func NewAuth(privateKeyHex string) (*Auth, error) {
	privateKeyHex = strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if privateKeyHex == "" {
		return nil, fmt.Errorf("auth: private key is empty")
	}

	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("auth: parse private key: %w", err)
	}

	return &Auth{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
		chainID:    137, // Polygon mainnet
	}, nil
}

// GetAddress returns the signer wallet address.
func (a *Auth) GetAddress() common.Address {
	return a.address
}

// GetPrivateKey returns the private key (needed for order signing).
func (a *Auth) GetPrivateKey() *ecdsa.PrivateKey {
	return a.privateKey
}

// SignRequest produces the L1 authentication headers for the CLOB API.
// The signature is an EIP-712 attestation that we control the wallet.
func (a *Auth) SignRequest() (map[string]string, error) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	nonce := int64(0)

	domain := apitypes.TypedDataDomain{
		Name:    "ClobAuthDomain",
		Version: "1",
		ChainId: math.NewHexOrDecimal256(a.chainID),
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"ClobAuth": []apitypes.Type{
				{Name: "address", Type: "address"},
				{Name: "timestamp", Type: "string"},
				{Name: "nonce", Type: "uint256"},
				{Name: "message", Type: "string"},
			},
		},
		PrimaryType: "ClobAuth",
		Domain:      domain,
		Message: map[string]interface{}{
			"address":   a.address.Hex(),
			"timestamp": timestamp,
			"nonce":     big.NewInt(nonce),
			"message":   "This message attests that I control the given wallet",
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("auth: hash typed data: %w", err)
	}

	signature, err := crypto.Sign(hash, a.privateKey)
	if err != nil {
		return nil, fmt.Errorf("auth: sign: %w", err)
	}
	signature[64] += 27

	return map[string]string{
		"POLY_ADDRESS":   a.address.Hex(),
		"POLY_SIGNATURE": "0x" + hex.EncodeToString(signature),
		"POLY_TIMESTAMP": timestamp,
		"POLY_NONCE":     strconv.FormatInt(nonce, 10),
	}, nil
}
