package api

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// LiveDataWSURL is the Polymarket live-data websocket endpoint.
const LiveDataWSURL = "wss://ws-live-data.polymarket.com"

// LiveTradeEvent is one matched trade pushed over the live-data feed.
// It carries the same fields as a data API activity record, so the monitor
// can treat both sources identically.
type LiveTradeEvent struct {
	Name            string  `json:"name"`
	ProxyWallet     string  `json:"proxyWallet"`
	Pseudonym       string  `json:"pseudonym"`
	Side            string  `json:"side"`
	Asset           string  `json:"asset"`
	ConditionID     string  `json:"conditionId"`
	Size            float64 `json:"size"`
	Price           float64 `json:"price"`
	Outcome         string  `json:"outcome"`
	OutcomeIndex    int     `json:"outcomeIndex"`
	Title           string  `json:"title"`
	Slug            string  `json:"slug"`
	EventSlug       string  `json:"eventSlug"`
	TransactionHash string  `json:"transactionHash"`
	Timestamp       int64   `json:"timestamp"`
}

// LiveTradeHandler receives trade events as they arrive.
type LiveTradeHandler func(event LiveTradeEvent)

// LiveDataWSClient maintains a websocket subscription to the Polymarket
// live-data activity feed, filtered to a single wallet. It reconnects
// automatically and forwards matched trades to the handler.
type LiveDataWSClient struct {
	handler LiveTradeHandler

	conn   *websocket.Conn
	connMu sync.Mutex

	user   string
	userMu sync.RWMutex

	running   bool
	runningMu sync.Mutex
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewLiveDataWSClient creates a live-data client that watches the given
// wallet's activity.
func NewLiveDataWSClient(user string, handler LiveTradeHandler) *LiveDataWSClient {
	return &LiveDataWSClient{
		handler: handler,
		user:    strings.ToLower(strings.TrimSpace(user)),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start connects and begins the read loop. It returns once the first
// connection attempt completes; reconnection is handled internally.
func (c *LiveDataWSClient) Start() error {
	c.runningMu.Lock()
	if c.running {
		c.runningMu.Unlock()
		return fmt.Errorf("live-data client already running")
	}
	c.running = true
	c.runningMu.Unlock()

	if err := c.connect(); err != nil {
		log.Printf("[LiveWS] Initial connection failed: %v (will retry)", err)
	}

	go c.readLoop()
	return nil
}

// Stop closes the connection and terminates the read loop.
func (c *LiveDataWSClient) Stop() {
	c.runningMu.Lock()
	if !c.running {
		c.runningMu.Unlock()
		return
	}
	c.running = false
	c.runningMu.Unlock()

	close(c.stopCh)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.connMu.Unlock()

	<-c.doneCh
	log.Printf("[LiveWS] Stopped")
}

func (c *LiveDataWSClient) connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(LiveDataWSURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", LiveDataWSURL, err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	if err := c.subscribe(); err != nil {
		conn.Close()
		return err
	}

	log.Printf("[LiveWS] Connected, watching %s", c.user)
	return nil
}

func (c *LiveDataWSClient) subscribe() error {
	c.userMu.RLock()
	user := c.user
	c.userMu.RUnlock()

	sub := map[string]interface{}{
		"action": "subscribe",
		"subscriptions": []map[string]string{
			{
				"topic":   "activity",
				"type":    "orders_matched",
				"filters": fmt.Sprintf(`{"proxyWallet":"%s"}`, user),
			},
		},
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteJSON(sub)
}

func (c *LiveDataWSClient) readLoop() {
	defer close(c.doneCh)

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			if !c.reconnectWait() {
				return
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stopCh:
				return
			default:
			}
			log.Printf("[LiveWS] Read error: %v, reconnecting", err)
			c.connMu.Lock()
			c.conn = nil
			c.connMu.Unlock()
			conn.Close()
			continue
		}

		c.handleMessage(message)
	}
}

// reconnectWait sleeps before a reconnect attempt. Returns false when the
// client is stopping.
func (c *LiveDataWSClient) reconnectWait() bool {
	select {
	case <-c.stopCh:
		return false
	case <-time.After(5 * time.Second):
	}
	if err := c.connect(); err != nil {
		log.Printf("[LiveWS] Reconnect failed: %v", err)
	}
	return true
}

func (c *LiveDataWSClient) handleMessage(message []byte) {
	if len(message) == 0 {
		return
	}

	var envelope struct {
		Topic   string          `json:"topic"`
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(message, &envelope); err != nil {
		return
	}
	if envelope.Type != "orders_matched" {
		return
	}

	var event LiveTradeEvent
	if err := json.Unmarshal(envelope.Payload, &event); err != nil {
		log.Printf("[LiveWS] Failed to parse trade payload: %v", err)
		return
	}

	// Server-side filtering is best-effort, so filter again here.
	c.userMu.RLock()
	user := c.user
	c.userMu.RUnlock()
	if user != "" && !strings.EqualFold(event.ProxyWallet, user) {
		return
	}

	if c.handler != nil {
		c.handler(event)
	}
}

// ToObservedTrade converts a live event into the domain trade type. Live
// events are always trades, so Type is fixed.
func (e LiveTradeEvent) ToObservedTrade() Activity {
	return Activity{
		ProxyWallet:     e.ProxyWallet,
		Type:            "TRADE",
		Side:            e.Side,
		Asset:           e.Asset,
		ConditionID:     e.ConditionID,
		Size:            Numeric(e.Size),
		UsdcSize:        Numeric(e.Size * e.Price),
		Price:           Numeric(e.Price),
		Timestamp:       e.Timestamp,
		Title:           e.Title,
		Slug:            e.Slug,
		EventSlug:       e.EventSlug,
		Outcome:         e.Outcome,
		OutcomeIndex:    e.OutcomeIndex,
		TransactionHash: e.TransactionHash,
	}
}
