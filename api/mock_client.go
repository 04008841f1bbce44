package api

import (
	"context"
	"sync"
)

// ClobGateway defines the CLOB operations the execution engine needs.
// This interface enables dependency injection for testing.
type ClobGateway interface {
	// Configuration
	SetFunder(address string)
	SetSignatureType(sigType int)
	DeriveAPICreds(ctx context.Context) (*APICreds, error)

	// Market data
	GetOrderBook(ctx context.Context, tokenID string) (*OrderBook, error)

	// Balances
	GetBalanceAllowance(ctx context.Context, assetType AssetType, tokenID string) (*BalanceAllowance, error)
	GetUSDCBalance(ctx context.Context) (float64, error)

	// Orders
	CreateMarketOrder(tokenID string, side Side, amount, price float64, negRisk bool) (*Order, error)
	PostOrder(ctx context.Context, order *Order, orderType OrderType) (*OrderResponse, error)
}

// DataGateway defines the data API operations the monitor and dispatcher need.
type DataGateway interface {
	GetUserActivities(ctx context.Context, user string, limit int) ([]Activity, error)
	GetOpenPositions(ctx context.Context, user string) ([]OpenPosition, error)
	GetPosition(ctx context.Context, user, asset string) (*OpenPosition, error)
}

// Ensure the real clients implement the gateways
var _ ClobGateway = (*ClobClient)(nil)
var _ DataGateway = (*DataClient)(nil)

// Ensure the mocks implement the gateways
var _ ClobGateway = (*MockClobClient)(nil)
var _ DataGateway = (*MockDataClient)(nil)

// MockClobClient is a mock CLOB client for testing
type MockClobClient struct {
	mu sync.RWMutex

	// Response data. Books is a FIFO of snapshots returned by successive
	// GetOrderBook calls; when drained, OrderBook is returned instead.
	Books         []*OrderBook
	OrderBook     *OrderBook
	Balance       *BalanceAllowance
	USDCBalance   float64
	APICreds      *APICreds
	OrderResponse *OrderResponse

	// PostResponses is a FIFO of responses for successive PostOrder calls;
	// when drained, OrderResponse is returned instead.
	PostResponses []*OrderResponse

	// Call tracking
	Calls map[string]int

	// Error injection
	ErrorOnNext map[string]error

	// Detailed call tracking for verification
	CreateOrderCalls []CreateOrderCall
	PostOrderCalls   []PostOrderCall
}

// CreateOrderCall records a call to CreateMarketOrder
type CreateOrderCall struct {
	TokenID string
	Side    Side
	Amount  float64
	Price   float64
	NegRisk bool
}

// PostOrderCall records a call to PostOrder
type PostOrderCall struct {
	Order     *Order
	OrderType OrderType
}

// NewMockClobClient creates a new mock CLOB client
func NewMockClobClient() *MockClobClient {
	return &MockClobClient{
		Calls:            make(map[string]int),
		ErrorOnNext:      make(map[string]error),
		CreateOrderCalls: []CreateOrderCall{},
		PostOrderCalls:   []PostOrderCall{},
		APICreds: &APICreds{
			APIKey:        "test-api-key",
			APISecret:     "test-api-secret",
			APIPassphrase: "test-passphrase",
		},
	}
}

func (m *MockClobClient) trackCall(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls[name]++
	if err, ok := m.ErrorOnNext[name]; ok {
		delete(m.ErrorOnNext, name)
		return err
	}
	return nil
}

func (m *MockClobClient) SetFunder(address string) {
	m.trackCall("SetFunder")
}

func (m *MockClobClient) SetSignatureType(sigType int) {
	m.trackCall("SetSignatureType")
}

func (m *MockClobClient) DeriveAPICreds(ctx context.Context) (*APICreds, error) {
	if err := m.trackCall("DeriveAPICreds"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.APICreds, nil
}

func (m *MockClobClient) GetOrderBook(ctx context.Context, tokenID string) (*OrderBook, error) {
	if err := m.trackCall("GetOrderBook"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Books) > 0 {
		book := m.Books[0]
		m.Books = m.Books[1:]
		return book, nil
	}
	if m.OrderBook != nil {
		return m.OrderBook, nil
	}
	return &OrderBook{
		AssetID: tokenID,
		Asks: []OrderBookLevel{
			{Price: "0.50", Size: "100"},
		},
		Bids: []OrderBookLevel{
			{Price: "0.49", Size: "100"},
		},
	}, nil
}

func (m *MockClobClient) GetBalanceAllowance(ctx context.Context, assetType AssetType, tokenID string) (*BalanceAllowance, error) {
	if err := m.trackCall("GetBalanceAllowance"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Balance != nil {
		return m.Balance, nil
	}
	return &BalanceAllowance{Balance: "0", Allowance: "0"}, nil
}

func (m *MockClobClient) GetUSDCBalance(ctx context.Context) (float64, error) {
	if err := m.trackCall("GetUSDCBalance"); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.USDCBalance, nil
}

func (m *MockClobClient) CreateMarketOrder(tokenID string, side Side, amount, price float64, negRisk bool) (*Order, error) {
	if err := m.trackCall("CreateMarketOrder"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.CreateOrderCalls = append(m.CreateOrderCalls, CreateOrderCall{
		TokenID: tokenID,
		Side:    side,
		Amount:  amount,
		Price:   price,
		NegRisk: negRisk,
	})
	m.mu.Unlock()

	return &Order{
		TokenID: tokenID,
		Side:    string(side),
	}, nil
}

func (m *MockClobClient) PostOrder(ctx context.Context, order *Order, orderType OrderType) (*OrderResponse, error) {
	if err := m.trackCall("PostOrder"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.PostOrderCalls = append(m.PostOrderCalls, PostOrderCall{
		Order:     order,
		OrderType: orderType,
	})
	if len(m.PostResponses) > 0 {
		resp := m.PostResponses[0]
		m.PostResponses = m.PostResponses[1:]
		m.mu.Unlock()
		return resp, nil
	}
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.OrderResponse != nil {
		return m.OrderResponse, nil
	}
	return &OrderResponse{
		Success: true,
		OrderID: "mock-order-id",
		Status:  "matched",
	}, nil
}

// MockDataClient is a mock data API client for testing
type MockDataClient struct {
	mu sync.RWMutex

	// Response data
	Activities []Activity
	Positions  []OpenPosition

	// Call tracking
	Calls map[string]int

	// Error injection
	ErrorOnNext map[string]error
}

// NewMockDataClient creates a new mock data API client
func NewMockDataClient() *MockDataClient {
	return &MockDataClient{
		Calls:       make(map[string]int),
		ErrorOnNext: make(map[string]error),
	}
}

func (m *MockDataClient) trackCall(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls[name]++
	if err, ok := m.ErrorOnNext[name]; ok {
		delete(m.ErrorOnNext, name)
		return err
	}
	return nil
}

func (m *MockDataClient) GetUserActivities(ctx context.Context, user string, limit int) ([]Activity, error) {
	if err := m.trackCall("GetUserActivities"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Activity, len(m.Activities))
	copy(out, m.Activities)
	return out, nil
}

func (m *MockDataClient) GetOpenPositions(ctx context.Context, user string) ([]OpenPosition, error) {
	if err := m.trackCall("GetOpenPositions"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]OpenPosition, len(m.Positions))
	copy(out, m.Positions)
	return out, nil
}

func (m *MockDataClient) GetPosition(ctx context.Context, user, asset string) (*OpenPosition, error) {
	if err := m.trackCall("GetPosition"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.Positions {
		if m.Positions[i].Asset == asset {
			p := m.Positions[i]
			return &p, nil
		}
	}
	return nil, nil
}

// SetActivities replaces the activity feed returned by the mock.
func (m *MockDataClient) SetActivities(activities []Activity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Activities = activities
}

// SetPositions replaces the positions returned by the mock.
func (m *MockDataClient) SetPositions(positions []OpenPosition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Positions = positions
}
