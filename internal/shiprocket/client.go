// Package shiprocket implements adapter.LogisticsProvider against the
// Shiprocket external API: email/password login for a bearer token,
// courier serviceability quotes and adhoc shipment creation.
package shiprocket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"storefront-checkout/internal/adapter"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/transport"
)

// DefaultBaseURL is the Shiprocket API host.
const DefaultBaseURL = "https://apiv2.shiprocket.in"

const (
	apiPath     = "/v1/external"
	serviceName = "Shiprocket"
)

// Config holds Shiprocket client configuration.
type Config struct {
	Email    string
	Password string
	BaseURL  string
	Timeout  time.Duration

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// Client is a Shiprocket API client. It holds no token; callers log in
// for each operation and pass the token through.
type Client struct {
	httpClient *http.Client
	baseURL    string
	email      string
	password   string
}

// New creates a Shiprocket client.
func New(cfg Config) (*Client, error) {
	if cfg.Email == "" || cfg.Password == "" {
		return nil, fmt.Errorf("shiprocket email and password are required")
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
		email:      cfg.Email,
		password:   cfg.Password,
	}, nil
}

// Login exchanges the account credentials for a bearer token.
func (c *Client) Login(ctx context.Context) (string, error) {
	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", loginRequest{Email: c.email, Password: c.password}, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", model.NewUnauthorizedError("Shiprocket login returned no token")
	}
	return resp.Token, nil
}

// Serviceability returns courier quotes for a parcel in provider order.
// A response whose body status is not 200 means the route is not
// serviceable and yields no quotes without an error.
func (c *Client) Serviceability(ctx context.Context, token string, q *model.RateQuery) ([]model.ShippingQuote, error) {
	cod := "0"
	if q.COD {
		cod = "1"
	}
	params := url.Values{}
	params.Set("pickup_postcode", q.PickupPostcode)
	params.Set("delivery_postcode", q.DeliveryPostcode)
	params.Set("weight", strconv.FormatFloat(q.WeightKg, 'f', -1, 64))
	params.Set("cod", cod)
	params.Set("declared_value", q.DeclaredValue.String())

	var resp serviceabilityResponse
	if err := c.do(ctx, http.MethodGet, "/courier/serviceability/?"+params.Encode(), token, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != http.StatusOK {
		return nil, nil
	}

	quotes := make([]model.ShippingQuote, 0, len(resp.Data.AvailableCourierCompanies))
	for _, cc := range resp.Data.AvailableCourierCompanies {
		quotes = append(quotes, model.ShippingQuote{
			CourierID:         cc.CourierCompanyID,
			CourierName:       cc.CourierName,
			Rate:              cc.Rate,
			EstimatedDelivery: cc.ETD,
		})
	}
	return quotes, nil
}

// CreateShipment books an adhoc (channel-less) prepaid shipment.
func (c *Client) CreateShipment(ctx context.Context, token string, req *model.ShipmentRequest) (*model.ShipmentResult, error) {
	body := adhocOrder{
		OrderID:             req.OrderID,
		OrderDate:           req.OrderDate,
		PickupLocation:      req.PickupLocation,
		ChannelID:           req.ChannelID,
		BillingCustomerName: req.Billing.FullName(),
		BillingLastName:     req.Billing.LastName,
		BillingAddress:      req.Billing.Address1,
		BillingAddress2:     req.Billing.Address2,
		BillingCity:         req.Billing.City,
		BillingPincode:      req.Billing.Postcode,
		BillingState:        req.Billing.State,
		BillingCountry:      req.Billing.Country,
		BillingEmail:        req.Billing.Email,
		BillingPhone:        req.Billing.Phone,
		ShippingIsBilling:   true,
		OrderItems:          make([]adhocItem, 0, len(req.Items)),
		PaymentMethod:       req.PaymentMethod,
		ShippingCharges:     req.ShippingCharge.InexactFloat64(),
		TotalDiscount:       req.Discount.InexactFloat64(),
		SubTotal:            req.SubTotal.InexactFloat64(),
		Length:              req.LengthCm,
		Breadth:             req.BreadthCm,
		Height:              req.HeightCm,
		Weight:              req.WeightKg,
	}
	for _, it := range req.Items {
		body.OrderItems = append(body.OrderItems, adhocItem{
			Name:         it.Name,
			SKU:          it.SKU,
			Units:        it.Units,
			SellingPrice: it.SellingPrice.InexactFloat64(),
			HSN:          it.HSN,
		})
	}

	var resp adhocResponse
	if err := c.do(ctx, http.MethodPost, "/orders/create/adhoc", token, body, &resp); err != nil {
		return nil, err
	}
	if resp.ShipmentID == 0 {
		return nil, model.NewBackendError(serviceName, http.StatusOK, "shipment created without a shipment id")
	}

	return &model.ShipmentResult{
		ShipmentID:      resp.ShipmentID,
		ProviderOrderID: resp.OrderID,
		Status:          resp.Status,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPath+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", transport.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
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

// parseError maps a Shiprocket failure to an APIError. Field errors from a
// 422 are folded into the message so logs show what was rejected.
func parseError(statusCode int, body []byte) error {
	var srErr errorResponse
	json.Unmarshal(body, &srErr) // Best effort parse

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.NewUnauthorizedError("Shiprocket authentication failed")
	case http.StatusTooManyRequests:
		return model.NewRateLimitError(serviceName)
	}

	msg := srErr.Message
	if len(srErr.Errors) > 0 {
		fields := make([]string, 0, len(srErr.Errors))
		for f := range srErr.Errors {
			fields = append(fields, f)
		}
		slices.Sort(fields)
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			parts = append(parts, f+": "+strings.Join(srErr.Errors[f], ", "))
		}
		if msg != "" {
			msg += " "
		}
		msg += "(" + strings.Join(parts, "; ") + ")"
	}
	return model.NewBackendError(serviceName, statusCode, msg)
}

var _ adapter.LogisticsProvider = (*Client)(nil)
