package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DataClient talks to the public Polymarket data API. No authentication is
// required; all endpoints are keyed by wallet address.
type DataClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDataClient creates a new data API client.
func NewDataClient(baseURL string) *DataClient {
	if baseURL == "" {
		baseURL = "https://data-api.polymarket.com"
	}
	return &DataClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// GetUserActivities fetches the most recent activity records for a user,
// newest first.
func (c *DataClient) GetUserActivities(ctx context.Context, user string, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = 100
	}

	params := url.Values{}
	params.Set("user", strings.ToLower(user))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("sortBy", "TIMESTAMP")
	params.Set("sortDirection", "DESC")

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/activity?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get activities failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get activities failed: %d %s", resp.StatusCode, string(body))
	}

	var activities []Activity
	if err := json.NewDecoder(resp.Body).Decode(&activities); err != nil {
		return nil, fmt.Errorf("failed to decode activities: %w", err)
	}
	return activities, nil
}

// GetOpenPositions fetches all open positions for a user.
func (c *DataClient) GetOpenPositions(ctx context.Context, user string) ([]OpenPosition, error) {
	params := url.Values{}
	params.Set("user", strings.ToLower(user))
	params.Set("sizeThreshold", "0.1")
	params.Set("limit", "500")

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/positions?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get positions failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get positions failed: %d %s", resp.StatusCode, string(body))
	}

	var positions []OpenPosition
	if err := json.NewDecoder(resp.Body).Decode(&positions); err != nil {
		return nil, fmt.Errorf("failed to decode positions: %w", err)
	}
	return positions, nil
}

// GetPosition returns the user's position in a single asset, or nil if the
// user holds none.
func (c *DataClient) GetPosition(ctx context.Context, user, asset string) (*OpenPosition, error) {
	positions, err := c.GetOpenPositions(ctx, user)
	if err != nil {
		return nil, err
	}
	for i := range positions {
		if positions[i].Asset == asset {
			return &positions[i], nil
		}
	}
	return nil, nil
}
