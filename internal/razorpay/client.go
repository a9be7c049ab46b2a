// Package razorpay implements adapter.PaymentGateway on the Razorpay Orders
// API and verifies the HMAC signatures Razorpay attaches to checkout callbacks
// and webhooks.
package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storefront-checkout/internal/adapter"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/transport"
)

// DefaultBaseURL is the Razorpay API host.
const DefaultBaseURL = "https://api.razorpay.com"

const serviceName = "Razorpay"

// Config holds Razorpay client configuration.
type Config struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	Timeout   time.Duration

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// Client creates Razorpay orders. Authentication is HTTP Basic with the key
// id and key secret.
type Client struct {
	httpClient *http.Client
	baseURL    string
	keyID      string
	keySecret  string
}

// New creates a Razorpay client.
func New(cfg Config) (*Client, error) {
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		return nil, fmt.Errorf("razorpay key id and secret are required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = transport.NewHTTPClient(cfg.Timeout)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		keyID:      cfg.KeyID,
		keySecret:  cfg.KeySecret,
	}, nil
}

// KeyID is the public key the browser checkout widget is opened with.
func (c *Client) KeyID() string {
	return c.keyID
}

// CreatePaymentIntent creates a Razorpay order for the given amount in paise.
func (c *Client) CreatePaymentIntent(ctx context.Context, req *model.PaymentIntentRequest) (*model.PaymentIntent, error) {
	body := orderRequest{
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    Notes(req.Notes),
	}
	if req.Capture {
		body.PaymentCapture = 1
	}

	var order Order
	if err := c.do(ctx, http.MethodPost, "/v1/orders", body, &order); err != nil {
		return nil, err
	}

	return &model.PaymentIntent{
		ID:       order.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
		Receipt:  order.Receipt,
		Status:   order.Status,
		Notes:    map[string]string(order.Notes),
	}, nil
}

// FetchOrder returns a Razorpay order by id.
func (c *Client) FetchOrder(ctx context.Context, id string) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodGet, "/v1/orders/"+id, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", transport.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewUpstreamError(serviceName, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.NewUpstreamError(serviceName, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode >= 400 {
		return parseError(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return model.NewUpstreamError(serviceName, fmt.Errorf("parsing response: %w", err))
	}
	return nil
}

func parseError(statusCode int, body []byte) error {
	var rzErr errorResponse
	json.Unmarshal(body, &rzErr) // Best effort parse

	switch statusCode {
	case http.StatusUnauthorized:
		return model.NewUnauthorizedError("Razorpay authentication failed")
	case http.StatusNotFound:
		return model.NewNotFoundError("payment order")
	case http.StatusTooManyRequests:
		return model.NewRateLimitError(serviceName)
	default:
		return model.NewBackendError(serviceName, statusCode, rzErr.Error.Description)
	}
}

var _ adapter.PaymentGateway = (*Client)(nil)
