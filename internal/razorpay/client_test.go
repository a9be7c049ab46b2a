package razorpay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-checkout/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		KeyID:      "rzp_test_key",
		KeySecret:  "rzp_test_secret",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(Config{KeyID: "only-id"})
	assert.Error(t, err)
}

func TestCreatePaymentIntent(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "rzp_test_secret", pass)

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"id":"order_IluGWxBm9U8zJ8","entity":"order","amount":23000,
			"currency":"INR","receipt":"wc_order_42","status":"created",
			"notes":{"commerce_order_id":"42"}}`))
	})

	intent, err := c.CreatePaymentIntent(context.Background(), &model.PaymentIntentRequest{
		Amount:   23000,
		Currency: "INR",
		Receipt:  "wc_order_42",
		Capture:  true,
		Notes:    map[string]string{model.CommerceOrderNote: "42"},
	})
	require.NoError(t, err)

	assert.Equal(t, "order_IluGWxBm9U8zJ8", intent.ID)
	assert.Equal(t, int64(23000), intent.Amount)
	assert.Equal(t, "42", intent.Notes[model.CommerceOrderNote])

	assert.Equal(t, float64(23000), got["amount"])
	assert.Equal(t, float64(1), got["payment_capture"])
	assert.Equal(t, "wc_order_42", got["receipt"])
	assert.Equal(t, map[string]any{"commerce_order_id": "42"}, got["notes"])
}

func TestCreatePaymentIntent_EmptyNotesArray(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"order_1","amount":100,"currency":"INR","notes":[]}`))
	})

	intent, err := c.CreatePaymentIntent(context.Background(), &model.PaymentIntentRequest{Amount: 100, Currency: "INR"})
	require.NoError(t, err)
	assert.Empty(t, intent.Notes[model.CommerceOrderNote])
}

func TestCreatePaymentIntent_ErrorKeepsDescription(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"The amount must be atleast INR 1.00"}}`))
	})

	_, err := c.CreatePaymentIntent(context.Background(), &model.PaymentIntentRequest{Amount: 10, Currency: "INR"})
	require.Error(t, err)

	var apiErr *model.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "BACKEND_ERROR", apiErr.Code)
	assert.Equal(t, "The amount must be atleast INR 1.00", apiErr.Message)
	assert.ErrorIs(t, err, model.ErrUpstreamError)
}

func TestCreatePaymentIntent_Unauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.CreatePaymentIntent(context.Background(), &model.PaymentIntentRequest{Amount: 100, Currency: "INR"})
	assert.ErrorIs(t, err, model.ErrUnauthorized)
}

func TestNotesUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Notes
	}{
		{"object of strings", `{"commerce_order_id":"42"}`, Notes{"commerce_order_id": "42"}},
		{"numeric value", `{"commerce_order_id":42}`, Notes{"commerce_order_id": "42"}},
		{"empty array", `[]`, Notes{}},
		{"null", `null`, Notes{}},
		{"nested object dropped", `{"a":{"b":1},"c":"d"}`, Notes{"c": "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n Notes
			require.NoError(t, json.Unmarshal([]byte(tt.in), &n))
			assert.Equal(t, tt.want, n)
		})
	}
}
