package api

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/algariis/polymarket-trading-bot/models"
)

// Numeric handles Polymarket numbers that may arrive as strings or numbers.
type Numeric float64

func (n *Numeric) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || strings.EqualFold(string(data), "null") {
		*n = 0
		return nil
	}

	// Handle quoted numbers.
	if data[0] == '"' && data[len(data)-1] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*n = Numeric(f)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = Numeric(f)
	return nil
}

func (n Numeric) Float64() float64 {
	return float64(n)
}

// Activity represents one entry from the data API activity feed.
type Activity struct {
	ProxyWallet     string  `json:"proxyWallet"`
	Type            string  `json:"type"` // TRADE, REDEEM, SPLIT, MERGE, etc.
	Side            string  `json:"side"`
	Asset           string  `json:"asset"`
	ConditionID     string  `json:"conditionId"`
	Size            Numeric `json:"size"`
	UsdcSize        Numeric `json:"usdcSize"`
	Price           Numeric `json:"price"`
	Timestamp       int64   `json:"timestamp"` // epoch seconds
	Title           string  `json:"title"`
	Slug            string  `json:"slug"`
	EventSlug       string  `json:"eventSlug"`
	Outcome         string  `json:"outcome"`
	OutcomeIndex    int     `json:"outcomeIndex"`
	TransactionHash string  `json:"transactionHash"`
}

// ToObservedTrade converts an activity record into the domain trade type.
func (a Activity) ToObservedTrade() models.ObservedTrade {
	return models.ObservedTrade{
		TransactionHash: a.TransactionHash,
		Asset:           a.Asset,
		ConditionID:     a.ConditionID,
		Type:            a.Type,
		Side:            a.Side,
		Outcome:         a.Outcome,
		Title:           a.Title,
		Size:            a.Size.Float64(),
		UsdcSize:        a.UsdcSize.Float64(),
		Price:           a.Price.Float64(),
		Timestamp:       time.Unix(a.Timestamp, 0),
	}
}

// OpenPosition represents an open position (current holdings) for a user.
type OpenPosition struct {
	Asset        string  `json:"asset"` // token ID
	ConditionID  string  `json:"conditionId"`
	Size         Numeric `json:"size"`
	AvgPrice     Numeric `json:"avgPrice"`
	CurPrice     Numeric `json:"curPrice"`
	Title        string  `json:"title"`
	Outcome      string  `json:"outcome"`
	OutcomeIndex int     `json:"outcomeIndex"`
	ProxyWallet  string  `json:"proxyWallet"`
}
