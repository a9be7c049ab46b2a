package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-checkout/internal/adapter"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/razorpay"
)

const testSecret = "whsec_test"

func capturedBody(notes string) []byte {
	return []byte(fmt.Sprintf(`{"entity":"event","event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_123","amount":23000,"currency":"INR","status":"captured","order_id":"order_Rzp","notes":%s}}}}`, notes))
}

func signed(body []byte) string { return razorpay.Sign(body, testSecret) }

func kg(w float64) *float64 { return &w }

// orderStore is a small in-memory commerce backend for reconciliation tests.
type orderStore struct {
	mu      sync.Mutex
	orders  map[int]*model.Order
	updates []model.OrderUpdate
}

func (s *orderStore) mock() *adapter.MockCommerce {
	return &adapter.MockCommerce{
		GetOrderFunc: func(_ context.Context, id int) (*model.Order, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			o, ok := s.orders[id]
			if !ok {
				return nil, model.NewNotFoundError("order")
			}
			cp := *o
			cp.Meta = make(map[string]string, len(o.Meta))
			for k, v := range o.Meta {
				cp.Meta[k] = v
			}
			return &cp, nil
		},
		UpdateOrderFunc: func(_ context.Context, id int, u *model.OrderUpdate) (*model.Order, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			o, ok := s.orders[id]
			if !ok {
				return nil, model.NewNotFoundError("order")
			}
			s.updates = append(s.updates, *u)
			if u.Status != "" {
				o.Status = u.Status
			}
			if u.TransactionID != "" {
				o.TransactionID = u.TransactionID
			}
			for k, v := range u.Meta {
				if o.Meta == nil {
					o.Meta = map[string]string{}
				}
				o.Meta[k] = v
			}
			return o, nil
		},
	}
}

func order42() *model.Order {
	return &model.Order{
		ID:          42,
		Status:      model.OrderStatusPending,
		DateCreated: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Billing: model.Address{
			FirstName: "Asha", LastName: "Rao", Address1: "12 MG Road", City: "Bengaluru",
			State: "KA", Postcode: "560001", Country: "IN", Email: "asha@example.com", Phone: "9876543210",
		},
		LineItems: []model.OrderLine{
			{ProductID: 1, Name: "Notebook", Quantity: 2, Price: decimal.NewFromInt(100), Total: decimal.NewFromInt(200)},
			{ProductID: 2, Name: "Atlas", SKU: "ATL-1", Quantity: 1, Price: decimal.NewFromInt(450), Total: decimal.NewFromInt(400), Weight: kg(1.2)},
		},
		ShippingTotal: decimal.NewFromInt(30),
		DiscountTotal: decimal.NewFromInt(50),
	}
}

func newReconciler(commerce *adapter.MockCommerce, logistics *adapter.MockLogistics, guard Guard) *Reconciler {
	return NewReconciler(commerce, logistics, guard, Config{
		WebhookSecret:  testSecret,
		PickupLocation: "Primary",
		ChannelID:      "12345",
	}, nil)
}

func TestHandleWebhook_CapturedPaymentFulfillsOrder(t *testing.T) {
	store := &orderStore{orders: map[int]*model.Order{42: order42()}}
	commerce := store.mock()
	var req *model.ShipmentRequest
	logistics := &adapter.MockLogistics{
		CreateShipmentFunc: func(_ context.Context, token string, r *model.ShipmentRequest) (*model.ShipmentResult, error) {
			assert.Equal(t, "mock-token", token)
			req = r
			return &model.ShipmentResult{ShipmentID: 9001, ProviderOrderID: 555, Status: "NEW"}, nil
		},
	}
	r := newReconciler(commerce, logistics, nil)

	body := capturedBody(`{"commerce_order_id":"42"}`)
	outcome := r.HandleWebhook(context.Background(), body, signed(body))

	assert.Equal(t, OutcomeFulfilled, outcome)
	assert.True(t, outcome.Acknowledged())

	got := store.orders[42]
	assert.Equal(t, model.OrderStatusProcessing, got.Status)
	assert.Equal(t, "pay_123", got.TransactionID)
	assert.Equal(t, "9001", got.Meta[model.ShipmentReferenceMeta])

	require.NotNil(t, req)
	assert.InDelta(t, 2*0.5+1*1.2, req.WeightKg, 1e-9)
	assert.Equal(t, "42", req.OrderID)
	assert.Equal(t, "2026-03-14", req.OrderDate)
	assert.Equal(t, "Primary", req.PickupLocation)
	assert.Equal(t, "12345", req.ChannelID)
	assert.Equal(t, "Prepaid", req.PaymentMethod)
	assert.Equal(t, "Asha Rao", req.Billing.FullName())
	assert.True(t, req.SubTotal.Equal(decimal.NewFromInt(600)), "sum of line totals")
	assert.True(t, req.ShippingCharge.Equal(decimal.NewFromInt(30)))
	assert.True(t, req.Discount.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, float64(10), req.LengthCm)
	require.Len(t, req.Items, 2)
	assert.Equal(t, model.ShipmentItem{Name: "Notebook", SKU: "prod-1", Units: 2, SellingPrice: decimal.NewFromInt(100), HSN: 49011010}, req.Items[0])
	assert.Equal(t, "ATL-1", req.Items[1].SKU)
}

func TestHandleWebhook_InvalidSignatureMakesNoCalls(t *testing.T) {
	body := capturedBody(`{"commerce_order_id":"42"}`)

	tests := []struct {
		name string
		sig  string
	}{
		{"missing", ""},
		{"wrong secret", razorpay.Sign(body, "other")},
		{"other body", razorpay.Sign([]byte(`{}`), testSecret)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			commerce := &adapter.MockCommerce{}
			logistics := &adapter.MockLogistics{}
			r := newReconciler(commerce, logistics, nil)

			outcome := r.HandleWebhook(context.Background(), body, tt.sig)
			assert.Equal(t, OutcomeInvalidSignature, outcome)
			assert.False(t, outcome.Acknowledged())
			assert.Zero(t, commerce.Total())
			assert.Zero(t, logistics.Total())
		})
	}
}

func TestHandleWebhook_AcknowledgedWithoutCalls(t *testing.T) {
	tests := []struct {
		name string
		body []byte
		want Outcome
	}{
		{"other event", []byte(`{"event":"payment.authorized","payload":{"payment":{"entity":{"id":"pay_1","notes":{"commerce_order_id":"42"}}}}}`), OutcomeIgnored},
		{"order paid event", []byte(`{"event":"order.paid","payload":{}}`), OutcomeIgnored},
		{"no notes", capturedBody(`[]`), OutcomeNoOrder},
		{"unrelated notes", capturedBody(`{"campaign":"diwali"}`), OutcomeNoOrder},
		{"non-numeric order id", capturedBody(`{"commerce_order_id":"abc"}`), OutcomeNoOrder},
		{"no payment entity", []byte(`{"event":"payment.captured","payload":{}}`), OutcomeNoOrder},
		{"malformed JSON", []byte(`{"event":`), OutcomeMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			commerce := &adapter.MockCommerce{}
			logistics := &adapter.MockLogistics{}
			r := newReconciler(commerce, logistics, nil)

			outcome := r.HandleWebhook(context.Background(), tt.body, signed(tt.body))
			assert.Equal(t, tt.want, outcome)
			assert.True(t, outcome.Acknowledged())
			assert.Zero(t, commerce.Total())
			assert.Zero(t, logistics.Total())
		})
	}
}

func TestHandleWebhook_NumericAndLegacyOrderNotes(t *testing.T) {
	for _, notes := range []string{`{"commerce_order_id":42}`, `{"woocommerce_order_id":"42"}`} {
		t.Run(notes, func(t *testing.T) {
			store := &orderStore{orders: map[int]*model.Order{42: order42()}}
			logistics := &adapter.MockLogistics{}
			r := newReconciler(store.mock(), logistics, nil)

			body := capturedBody(notes)
			assert.Equal(t, OutcomeFulfilled, r.HandleWebhook(context.Background(), body, signed(body)))
			assert.Equal(t, 1, logistics.Count("CreateShipment"))
		})
	}
}

func TestHandleWebhook_RedeliveryDoesNotShipTwice(t *testing.T) {
	store := &orderStore{orders: map[int]*model.Order{42: order42()}}
	logistics := &adapter.MockLogistics{}
	r := newReconciler(store.mock(), logistics, nil)

	body := capturedBody(`{"commerce_order_id":"42"}`)
	assert.Equal(t, OutcomeFulfilled, r.HandleWebhook(context.Background(), body, signed(body)))
	assert.Equal(t, OutcomeDuplicate, r.HandleWebhook(context.Background(), body, signed(body)))

	assert.Equal(t, 1, logistics.Count("CreateShipment"))
	assert.Equal(t, model.OrderStatusProcessing, store.orders[42].Status, "status update is repeated harmlessly")
}

func TestHandleWebhook_ConcurrentDeliveriesShipOnce(t *testing.T) {
	store := &orderStore{orders: map[int]*model.Order{42: order42()}}
	release := make(chan struct{})
	logistics := &adapter.MockLogistics{
		CreateShipmentFunc: func(context.Context, string, *model.ShipmentRequest) (*model.ShipmentResult, error) {
			<-release
			return &model.ShipmentResult{ShipmentID: 1}, nil
		},
	}
	r := newReconciler(store.mock(), logistics, NewMemoryGuard(time.Minute))
	body := capturedBody(`{"commerce_order_id":"42"}`)

	outcomes := make(chan Outcome, 3)
	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes <- r.HandleWebhook(context.Background(), body, signed(body))
		}()
	}
	assert.Eventually(t, func() bool { return logistics.Count("CreateShipment") == 1 }, time.Second, 5*time.Millisecond)
	// The two losers return without waiting on the winner.
	assert.Eventually(t, func() bool { return len(outcomes) == 2 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()
	close(outcomes)

	counts := map[Outcome]int{}
	for o := range outcomes {
		counts[o]++
	}
	assert.Equal(t, map[Outcome]int{OutcomeFulfilled: 1, OutcomeDuplicate: 2}, counts)
	assert.Equal(t, 1, logistics.Count("CreateShipment"))
}

func TestHandleWebhook_ShipmentFailureIsAcknowledgedAndRetryable(t *testing.T) {
	store := &orderStore{orders: map[int]*model.Order{42: order42()}}
	fail := true
	logistics := &adapter.MockLogistics{
		CreateShipmentFunc: func(context.Context, string, *model.ShipmentRequest) (*model.ShipmentResult, error) {
			if fail {
				return nil, model.NewBackendError("Shiprocket", 422, "Pickup location not found")
			}
			return &model.ShipmentResult{ShipmentID: 77}, nil
		},
	}
	r := newReconciler(store.mock(), logistics, nil)
	body := capturedBody(`{"commerce_order_id":"42"}`)

	outcome := r.HandleWebhook(context.Background(), body, signed(body))
	assert.Equal(t, OutcomeFailed, outcome)
	assert.True(t, outcome.Acknowledged())
	assert.Equal(t, model.OrderStatusProcessing, store.orders[42].Status)
	assert.Empty(t, store.orders[42].Meta[model.ShipmentReferenceMeta])

	fail = false
	assert.Equal(t, OutcomeFulfilled, r.HandleWebhook(context.Background(), body, signed(body)), "lock was released")
	assert.Equal(t, "77", store.orders[42].Meta[model.ShipmentReferenceMeta])
}

func TestHandleWebhook_UpstreamFailuresAreAcknowledged(t *testing.T) {
	body := capturedBody(`{"commerce_order_id":"42"}`)

	t.Run("order update fails", func(t *testing.T) {
		logistics := &adapter.MockLogistics{}
		r := newReconciler(&adapter.MockCommerce{}, logistics, nil)
		assert.Equal(t, OutcomeFailed, r.HandleWebhook(context.Background(), body, signed(body)))
		assert.Zero(t, logistics.Total())
	})

	t.Run("logistics login fails", func(t *testing.T) {
		store := &orderStore{orders: map[int]*model.Order{42: order42()}}
		logistics := &adapter.MockLogistics{
			LoginFunc: func(context.Context) (string, error) { return "", errors.New("invalid credentials") },
		}
		r := newReconciler(store.mock(), logistics, nil)
		assert.Equal(t, OutcomeFailed, r.HandleWebhook(context.Background(), body, signed(body)))
		assert.Zero(t, logistics.Count("CreateShipment"))
	})
}

func TestHandleWebhook_CancelledRequestStillShips(t *testing.T) {
	store := &orderStore{orders: map[int]*model.Order{42: order42()}}
	logistics := &adapter.MockLogistics{}
	r := newReconciler(store.mock(), logistics, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	body := capturedBody(`{"commerce_order_id":"42"}`)
	logistics.LoginFunc = func(ctx context.Context) (string, error) {
		return "tok", ctx.Err()
	}
	assert.Equal(t, OutcomeFulfilled, r.HandleWebhook(ctx, body, signed(body)))
}

func TestOrderWeight(t *testing.T) {
	lines := []model.OrderLine{
		{Quantity: 3},
		{Quantity: 2, Weight: kg(0.25)},
		{Quantity: 1, Weight: kg(0)},
	}
	assert.InDelta(t, 1.5+0.5+0.5, OrderWeight(lines), 1e-9)
}
