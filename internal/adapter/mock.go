package adapter

import (
	"context"
	"sync"

	"storefront-checkout/internal/model"
)

// Calls counts invocations per method name. Mocks share it so tests can
// assert that a code path made zero downstream calls.
type Calls struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *Calls) record(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[method]++
}

// Count returns how many times method was called.
func (c *Calls) Count(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[method]
}

// Total returns the number of calls across all methods.
func (c *Calls) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.counts {
		n += v
	}
	return n
}

// MockCommerce implements CommerceBackend for testing.
// Each method can be configured via function fields.
type MockCommerce struct {
	Calls

	CreateOrderFunc func(ctx context.Context, order *model.Order) (*model.Order, error)
	GetOrderFunc    func(ctx context.Context, id int) (*model.Order, error)
	ListOrdersFunc  func(ctx context.Context, email string) ([]*model.Order, error)
	UpdateOrderFunc func(ctx context.Context, id int, update *model.OrderUpdate) (*model.Order, error)
	GetProductFunc  func(ctx context.Context, id int) (*model.Product, error)
}

// CreateOrder calls the configured CreateOrderFunc or returns an error.
func (m *MockCommerce) CreateOrder(ctx context.Context, order *model.Order) (*model.Order, error) {
	m.record("CreateOrder")
	if m.CreateOrderFunc != nil {
		return m.CreateOrderFunc(ctx, order)
	}
	return nil, model.NewInternalError(nil)
}

// GetOrder calls the configured GetOrderFunc or returns not found.
func (m *MockCommerce) GetOrder(ctx context.Context, id int) (*model.Order, error) {
	m.record("GetOrder")
	if m.GetOrderFunc != nil {
		return m.GetOrderFunc(ctx, id)
	}
	return nil, model.NewNotFoundError("order")
}

// ListOrders calls the configured ListOrdersFunc or returns no orders.
func (m *MockCommerce) ListOrders(ctx context.Context, email string) ([]*model.Order, error) {
	m.record("ListOrders")
	if m.ListOrdersFunc != nil {
		return m.ListOrdersFunc(ctx, email)
	}
	return []*model.Order{}, nil
}

// UpdateOrder calls the configured UpdateOrderFunc or returns not found.
func (m *MockCommerce) UpdateOrder(ctx context.Context, id int, update *model.OrderUpdate) (*model.Order, error) {
	m.record("UpdateOrder")
	if m.UpdateOrderFunc != nil {
		return m.UpdateOrderFunc(ctx, id, update)
	}
	return nil, model.NewNotFoundError("order")
}

// GetProduct calls the configured GetProductFunc or returns not found.
func (m *MockCommerce) GetProduct(ctx context.Context, id int) (*model.Product, error) {
	m.record("GetProduct")
	if m.GetProductFunc != nil {
		return m.GetProductFunc(ctx, id)
	}
	return nil, model.NewNotFoundError("product")
}

// MockGateway implements PaymentGateway for testing.
type MockGateway struct {
	Calls

	CreatePaymentIntentFunc func(ctx context.Context, req *model.PaymentIntentRequest) (*model.PaymentIntent, error)
}

// CreatePaymentIntent calls the configured func or echoes the request back
// as an intent with ID "order_mock".
func (m *MockGateway) CreatePaymentIntent(ctx context.Context, req *model.PaymentIntentRequest) (*model.PaymentIntent, error) {
	m.record("CreatePaymentIntent")
	if m.CreatePaymentIntentFunc != nil {
		return m.CreatePaymentIntentFunc(ctx, req)
	}
	return &model.PaymentIntent{
		ID:       "order_mock",
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
		Notes:    req.Notes,
	}, nil
}

// MockLogistics implements LogisticsProvider for testing.
type MockLogistics struct {
	Calls

	LoginFunc          func(ctx context.Context) (string, error)
	ServiceabilityFunc func(ctx context.Context, token string, query *model.RateQuery) ([]model.ShippingQuote, error)
	CreateShipmentFunc func(ctx context.Context, token string, req *model.ShipmentRequest) (*model.ShipmentResult, error)
}

// Login calls the configured LoginFunc or returns a fixed token.
func (m *MockLogistics) Login(ctx context.Context) (string, error) {
	m.record("Login")
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx)
	}
	return "mock-token", nil
}

// Serviceability calls the configured func or returns no quotes.
func (m *MockLogistics) Serviceability(ctx context.Context, token string, query *model.RateQuery) ([]model.ShippingQuote, error) {
	m.record("Serviceability")
	if m.ServiceabilityFunc != nil {
		return m.ServiceabilityFunc(ctx, token, query)
	}
	return nil, nil
}

// CreateShipment calls the configured func or returns a fixed shipment.
func (m *MockLogistics) CreateShipment(ctx context.Context, token string, req *model.ShipmentRequest) (*model.ShipmentResult, error) {
	m.record("CreateShipment")
	if m.CreateShipmentFunc != nil {
		return m.CreateShipmentFunc(ctx, token, req)
	}
	return &model.ShipmentResult{ShipmentID: 1, ProviderOrderID: 1, Status: "NEW"}, nil
}

// Verify mocks implement their interfaces at compile time.
var (
	_ CommerceBackend   = (*MockCommerce)(nil)
	_ PaymentGateway    = (*MockGateway)(nil)
	_ LogisticsProvider = (*MockLogistics)(nil)
)
