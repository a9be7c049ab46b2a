package woocommerce

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"storefront-checkout/internal/model"
)

// newTestClient points a client at an httptest server.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		StoreURL:       srv.URL + "/",
		ConsumerKey:    "ck_test",
		ConsumerSecret: "cs_test",
		HTTPClient:     srv.Client(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing store URL", Config{ConsumerKey: "k", ConsumerSecret: "s"}},
		{"missing key", Config{StoreURL: "https://shop.example", ConsumerSecret: "s"}},
		{"missing secret", Config{StoreURL: "https://shop.example", ConsumerKey: "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestCreateOrder(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/wp-json/wc/v3/orders" {
			t.Errorf("request = %s %s, want POST /wp-json/wc/v3/orders", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "ck_test" || pass != "cs_test" {
			t.Errorf("basic auth = %q/%q, want ck_test/cs_test", user, pass)
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)

		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{
			"id": 42, "status": "pending", "currency": "INR",
			"total": "1050.00", "shipping_total": "50.00",
			"line_items": [{"id": 7, "product_id": 5, "name": "Book", "quantity": 2, "price": 500, "total": "1000.00"}],
			"shipping_lines": [{"method_id": "shiprocket", "method_title": "Delhivery", "total": "50.00"}],
			"date_created": "2026-03-01T10:00:00"
		}`)
	})

	order := &model.Order{
		Status:             model.OrderStatusPending,
		PaymentMethod:      "razorpay",
		PaymentMethodTitle: "Razorpay",
		Billing:            model.Address{FirstName: "Asha", Email: "asha@example.com", Postcode: "560001"},
		Shipping:           model.Address{FirstName: "Asha", Email: "asha@example.com", Postcode: "560001"},
		LineItems:          []model.OrderLine{{ProductID: 5, Quantity: 2, Price: decimal.NewFromInt(500)}},
		ShippingLines:      []model.ShippingLine{{MethodID: "shiprocket", MethodTitle: "Delhivery", Total: decimal.NewFromInt(50)}},
	}

	created, err := c.CreateOrder(context.Background(), order)
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}

	if created.ID != 42 {
		t.Errorf("ID = %d, want 42", created.ID)
	}
	if !created.Total.Equal(decimal.RequireFromString("1050")) {
		t.Errorf("Total = %s, want 1050", created.Total)
	}
	if len(created.LineItems) != 1 || !created.LineItems[0].Price.Equal(decimal.NewFromInt(500)) {
		t.Errorf("LineItems = %+v, want one line priced 500", created.LineItems)
	}
	if created.DateCreated.IsZero() {
		t.Error("DateCreated not parsed")
	}

	if got["set_paid"] != false {
		t.Errorf("set_paid = %v, want false", got["set_paid"])
	}
	if got["payment_method"] != "razorpay" {
		t.Errorf("payment_method = %v, want razorpay", got["payment_method"])
	}
	shipping := got["shipping"].(map[string]any)
	if _, ok := shipping["email"]; ok {
		t.Error("shipping address should not carry email")
	}
	lines := got["shipping_lines"].([]any)
	if lines[0].(map[string]any)["total"] != "50.00" {
		t.Errorf("shipping_lines[0].total = %v, want 50.00", lines[0].(map[string]any)["total"])
	}
}

func TestGetOrder_MetaAndWeights(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wp-json/wc/v3/orders/42" {
			t.Errorf("path = %s, want /wp-json/wc/v3/orders/42", r.URL.Path)
		}
		io.WriteString(w, `{
			"id": 42, "status": "processing", "transaction_id": "pay_1",
			"meta_data": [
				{"id": 1, "key": "_shipment_reference", "value": "9911"},
				{"id": 2, "key": "_numeric", "value": 12},
				{"id": 3, "key": "_object", "value": {"a": 1}}
			],
			"line_items": [
				{"product_id": 1, "quantity": 2, "price": "100.00", "meta_data": [{"key": "_weight", "value": "1.2"}]},
				{"product_id": 2, "quantity": 1, "price": 50}
			]
		}`)
	})

	order, err := c.GetOrder(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetOrder() error = %v", err)
	}

	if order.Meta[model.ShipmentReferenceMeta] != "9911" {
		t.Errorf("shipment reference = %q, want 9911", order.Meta[model.ShipmentReferenceMeta])
	}
	if order.Meta["_numeric"] != "12" {
		t.Errorf("_numeric = %q, want 12", order.Meta["_numeric"])
	}
	if _, ok := order.Meta["_object"]; ok {
		t.Error("object meta should be skipped")
	}
	if w := order.LineItems[0].Weight; w == nil || *w != 1.2 {
		t.Errorf("line 0 weight = %v, want 1.2", w)
	}
	if order.LineItems[1].Weight != nil {
		t.Errorf("line 1 weight = %v, want nil", *order.LineItems[1].Weight)
	}
}

func TestListOrders_ExactBillingEmail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wp-json/wc/v3/orders" {
			t.Errorf("path = %s, want /wp-json/wc/v3/orders", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("search") != "asha@example.com" || q.Get("order") != "desc" || q.Get("per_page") == "" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		io.WriteString(w, `[
			{"id": 12, "status": "processing", "total": "230.00", "billing": {"email": "Asha@Example.com"},
			 "date_created": "2024-05-02T10:00:00", "line_items": [{"product_id": 1, "name": "Notebook", "quantity": 2, "total": "200.00"}]},
			{"id": 11, "status": "completed", "billing": {"email": "asha@example.com.evil"}},
			{"id": 10, "status": "completed", "billing": {"email": "other@example.com", "address_1": "asha@example.com"}},
			{"id": 9, "status": "completed", "billing": {"email": "asha@example.com"}}
		]`)
	})

	orders, err := c.ListOrders(context.Background(), " asha@example.com ")
	if err != nil {
		t.Fatalf("ListOrders() error = %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("got %d orders, want 2", len(orders))
	}
	if orders[0].ID != 12 || orders[1].ID != 9 {
		t.Errorf("ids = %d, %d; want 12, 9", orders[0].ID, orders[1].ID)
	}
	if !orders[0].Total.Equal(decimal.NewFromInt(230)) || orders[0].LineItems[0].Name != "Notebook" {
		t.Errorf("order 12 = %+v", orders[0])
	}
}

func TestListOrders_EmptyEmailSkipsRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL)
	})

	orders, err := c.ListOrders(context.Background(), "")
	if err != nil || len(orders) != 0 {
		t.Errorf("ListOrders(\"\") = %v, %v", orders, err)
	}
}

func TestUpdateOrder(t *testing.T) {
	var got wooOrderUpdate
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"id": 42, "status": "processing"}`)
	})

	_, err := c.UpdateOrder(context.Background(), 42, &model.OrderUpdate{
		Status:        model.OrderStatusProcessing,
		TransactionID: "pay_29QQoUBi66xm2f",
		Meta:          map[string]string{model.ShipmentReferenceMeta: "12345"},
	})
	if err != nil {
		t.Fatalf("UpdateOrder() error = %v", err)
	}

	if got.Status != "processing" || got.TransactionID != "pay_29QQoUBi66xm2f" {
		t.Errorf("body = %+v", got)
	}
	if len(got.MetaData) != 1 || got.MetaData[0].stringValue() != "12345" {
		t.Errorf("meta_data = %+v, want one _shipment_reference entry", got.MetaData)
	}
}

func TestGetProduct(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id": 5, "name": "Book", "price": "299.00", "weight": "0.8",
			"images": [{"src": "https://cdn.example/book.jpg"}]}`)
	})

	p, err := c.GetProduct(context.Background(), 5)
	if err != nil {
		t.Fatalf("GetProduct() error = %v", err)
	}
	if p.Price != "299.00" || p.Name != "Book" {
		t.Errorf("product = %+v", p)
	}
	if p.Weight == nil || *p.Weight != 0.8 {
		t.Errorf("Weight = %v, want 0.8", p.Weight)
	}
	if len(p.Images) != 1 {
		t.Errorf("Images = %v, want 1", p.Images)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		wantCode string
		wantMsg  string
	}{
		{"not found", 404, `{"code":"woocommerce_rest_shop_order_invalid_id","message":"Invalid ID."}`, model.ErrNotFound, "NOT_FOUND", "order not found"},
		{"auth", 401, `{"code":"woocommerce_rest_cannot_view"}`, model.ErrUnauthorized, "UNAUTHORIZED", ""},
		{"rate limited", 429, ``, model.ErrRateLimited, "RATE_LIMITED", ""},
		{"bad request keeps message", 400, `{"code":"rest_invalid_param","message":"Invalid parameter(s): line_items"}`, model.ErrUpstreamError, "BACKEND_ERROR", "Invalid parameter(s): line_items"},
		{"server error", 500, `oops`, model.ErrUpstreamError, "BACKEND_ERROR", "WooCommerce returned status 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			_, err := c.GetOrder(context.Background(), 1)
			if !errors.Is(err, tt.sentinel) {
				t.Fatalf("error = %v, want %v", err, tt.sentinel)
			}
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error type = %T, want *model.APIError", err)
			}
			if apiErr.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", apiErr.Code, tt.wantCode)
			}
			if tt.wantMsg != "" && apiErr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMsg)
			}
		})
	}
}

func TestWooNumber(t *testing.T) {
	tests := []struct {
		in   string
		want wooNumber
	}{
		{`"12.50"`, "12.50"},
		{`12.5`, "12.5"},
		{`null`, ""},
	}
	for _, tt := range tests {
		var n wooNumber
		if err := json.Unmarshal([]byte(tt.in), &n); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", tt.in, err)
		}
		if n != tt.want {
			t.Errorf("Unmarshal(%s) = %q, want %q", tt.in, n, tt.want)
		}
	}
}
