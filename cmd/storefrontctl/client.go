package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"time"

	"storefront-checkout/internal/razorpay"
)

// apiClient talks to a running storefront service. The cookie jar carries
// the cart between calls the way a browser would.
type apiClient struct {
	base  string
	http  *http.Client
	token string
}

func newAPIClient(base string, timeout time.Duration, token string) (*apiClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &apiClient{
		base:  strings.TrimSuffix(base, "/"),
		http:  &http.Client{Timeout: timeout, Jar: jar},
		token: token,
	}, nil
}

// apiError is a non-2xx reply from the service.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, strings.TrimSpace(e.Body))
}

func (c *apiClient) do(ctx context.Context, method, path string, body any, header http.Header, out any) error {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return &apiError{Status: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// cartItem is a product and quantity given on the command line as ID or ID:QTY.
type cartItem struct {
	ProductID int `json:"product_id"`
	Quantity  int `json:"quantity"`
}

func parseItems(specs []string) ([]cartItem, error) {
	items := make([]cartItem, 0, len(specs))
	for _, spec := range specs {
		idPart, qtyPart, hasQty := strings.Cut(strings.TrimSpace(spec), ":")
		id, err := strconv.Atoi(idPart)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid item %q: product id must be a positive integer", spec)
		}
		qty := 1
		if hasQty {
			qty, err = strconv.Atoi(qtyPart)
			if err != nil || qty <= 0 {
				return nil, fmt.Errorf("invalid item %q: quantity must be a positive integer", spec)
			}
		}
		items = append(items, cartItem{ProductID: id, Quantity: qty})
	}
	return items, nil
}

func (c *apiClient) fillCart(ctx context.Context, items []cartItem) error {
	for _, it := range items {
		if err := c.do(ctx, http.MethodPost, "/cart/items", it, nil, nil); err != nil {
			return fmt.Errorf("adding product %d: %w", it.ProductID, err)
		}
	}
	return nil
}

type shippingQuote struct {
	CourierID         int             `json:"courier_id"`
	CourierName       string          `json:"courier_name"`
	Rate              json.RawMessage `json:"rate"`
	EstimatedDelivery string          `json:"estimated_delivery,omitempty"`
}

type ratesReply struct {
	Quotes  []shippingQuote `json:"quotes"`
	Default *int            `json:"default"`
}

func (c *apiClient) rates(ctx context.Context, postcode string) (*ratesReply, error) {
	var out ratesReply
	err := c.do(ctx, http.MethodPost, "/shipping/rates", map[string]string{"postcode": postcode}, nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// webhookBody builds a payment webhook body as the gateway sends it.
func webhookBody(event string, orderID int, paymentID string, amount int64) ([]byte, error) {
	body := map[string]any{
		"entity":   "event",
		"event":    event,
		"contains": []string{"payment"},
		"payload": map[string]any{
			"payment": map[string]any{
				"entity": map[string]any{
					"id":       paymentID,
					"entity":   "payment",
					"amount":   amount,
					"currency": "INR",
					"status":   "captured",
					"notes": map[string]string{
						"commerce_order_id": strconv.Itoa(orderID),
					},
				},
			},
		},
		"created_at": time.Now().Unix(),
	}
	return json.Marshal(body)
}

func (c *apiClient) sendWebhook(ctx context.Context, body []byte, secret string) (map[string]any, error) {
	header := http.Header{}
	header.Set(razorpay.SignatureHeader, razorpay.Sign(body, secret))

	var out map[string]any
	if err := c.do(ctx, http.MethodPost, "/webhooks/razorpay", body, header, &out); err != nil {
		return nil, err
	}
	return out, nil
}
