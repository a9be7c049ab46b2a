// Package woocommerce implements adapter.CommerceBackend against the
// WooCommerce REST API v3 (/wp-json/wc/v3).
//
// The REST API authenticates with a consumer key and secret sent as HTTP Basic
// auth. Orders are created unpaid with set_paid=false; the payment webhook
// later moves them to processing.
package woocommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"storefront-checkout/internal/adapter"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/transport"
)

// restAPIPath is the base path for REST API v3 endpoints.
const restAPIPath = "/wp-json/wc/v3"

// serviceName labels errors raised by this client.
const serviceName = "WooCommerce"

// Config holds WooCommerce client configuration.
type Config struct {
	StoreURL       string
	ConsumerKey    string
	ConsumerSecret string
	Timeout        time.Duration

	// HTTPClient overrides the default fingerprinting client. Tests use it
	// to talk to httptest servers.
	HTTPClient *http.Client
}

// Client talks to one WooCommerce store.
type Client struct {
	httpClient *http.Client
	storeURL   string
	key        string
	secret     string
}

// New creates a WooCommerce client with the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.StoreURL == "" {
		return nil, fmt.Errorf("store URL is required")
	}
	if cfg.ConsumerKey == "" || cfg.ConsumerSecret == "" {
		return nil, fmt.Errorf("API credentials are required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = transport.NewHTTPClient(cfg.Timeout)
	}

	return &Client{
		httpClient: httpClient,
		storeURL:   strings.TrimSuffix(cfg.StoreURL, "/"),
		key:        cfg.ConsumerKey,
		secret:     cfg.ConsumerSecret,
	}, nil
}

// CreateOrder posts a provisional order. The returned order carries the
// store-assigned ID and totals.
func (c *Client) CreateOrder(ctx context.Context, order *model.Order) (*model.Order, error) {
	var created wooOrder
	if err := c.do(ctx, http.MethodPost, "/orders", toWooOrder(order), &created); err != nil {
		return nil, err
	}
	return fromWooOrder(&created), nil
}

// GetOrder fetches the full order record.
func (c *Client) GetOrder(ctx context.Context, id int) (*model.Order, error) {
	var order wooOrder
	if err := c.do(ctx, http.MethodGet, "/orders/"+strconv.Itoa(id), nil, &order); err != nil {
		return nil, err
	}
	return fromWooOrder(&order), nil
}

// orderListPageSize is the most orders one history request returns.
const orderListPageSize = 50

// ListOrders returns the orders billed to email, newest first. The REST
// search also matches names and addresses, so results are narrowed to an
// exact (case-insensitive) billing email match.
func (c *Client) ListOrders(ctx context.Context, email string) ([]*model.Order, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return []*model.Order{}, nil
	}

	q := url.Values{}
	q.Set("search", email)
	q.Set("per_page", strconv.Itoa(orderListPageSize))
	q.Set("orderby", "date")
	q.Set("order", "desc")

	var found []wooOrder
	if err := c.do(ctx, http.MethodGet, "/orders?"+q.Encode(), nil, &found); err != nil {
		return nil, err
	}

	orders := make([]*model.Order, 0, len(found))
	for i := range found {
		if !strings.EqualFold(strings.TrimSpace(found[i].Billing.Email), email) {
			continue
		}
		orders = append(orders, fromWooOrder(&found[i]))
	}
	return orders, nil
}

// UpdateOrder applies a partial update with PUT. Meta keys are upserted by
// WooCommerce; keys not named are left alone.
func (c *Client) UpdateOrder(ctx context.Context, id int, update *model.OrderUpdate) (*model.Order, error) {
	body := wooOrderUpdate{
		Status:        string(update.Status),
		TransactionID: update.TransactionID,
	}
	for _, k := range sortedKeys(update.Meta) {
		raw, _ := json.Marshal(update.Meta[k])
		body.MetaData = append(body.MetaData, wooMeta{Key: k, Value: raw})
	}

	var order wooOrder
	if err := c.do(ctx, http.MethodPut, "/orders/"+strconv.Itoa(id), body, &order); err != nil {
		return nil, err
	}
	return fromWooOrder(&order), nil
}

// GetProduct fetches catalog data for a cart line snapshot.
func (c *Client) GetProduct(ctx context.Context, id int) (*model.Product, error) {
	var p wooProduct
	if err := c.do(ctx, http.MethodGet, "/products/"+strconv.Itoa(id), nil, &p); err != nil {
		return nil, err
	}

	product := &model.Product{ID: p.ID, Name: p.Name, Price: p.Price}
	for _, img := range p.Images {
		product.Images = append(product.Images, img.Src)
	}
	if w, err := strconv.ParseFloat(strings.TrimSpace(p.Weight), 64); err == nil && w > 0 {
		product.Weight = &w
	}
	return product, nil
}

// do executes a REST request and decodes a 2xx JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.storeURL+restAPIPath+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth(c.key, c.secret)
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
		return parseErrorResponse(resp.StatusCode, respBody, path)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return model.NewUpstreamError(serviceName, fmt.Errorf("parsing response: %w", err))
	}
	return nil
}

// parseErrorResponse converts a WooCommerce error to APIError. The store's
// own message is preserved because checkout shows it to the shopper.
func parseErrorResponse(statusCode int, body []byte, path string) error {
	var wcErr wooErrorResponse
	json.Unmarshal(body, &wcErr) // Best effort parse

	switch statusCode {
	case http.StatusNotFound:
		resource := "order"
		if strings.HasPrefix(path, "/products") {
			resource = "product"
		}
		return model.NewNotFoundError(resource)
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.NewUnauthorizedError("WooCommerce authentication failed")
	case http.StatusTooManyRequests:
		return model.NewRateLimitError(serviceName)
	default:
		return model.NewBackendError(serviceName, statusCode, wcErr.Message)
	}
}

// toWooOrder maps a provisional order to the create payload.
func toWooOrder(o *model.Order) *wooOrder {
	w := &wooOrder{
		Status:             string(o.Status),
		Currency:           o.Currency,
		PaymentMethod:      o.PaymentMethod,
		PaymentMethodTitle: o.PaymentMethodTitle,
		SetPaid:            o.SetPaid,
		Billing:            toWooAddress(o.Billing),
		Shipping:           toWooAddress(o.Shipping),
		LineItems:          make([]wooLineItem, 0, len(o.LineItems)),
		ShippingLines:      make([]wooShippingLine, 0, len(o.ShippingLines)),
	}
	// Shipping addresses carry no email.
	w.Shipping.Email = ""

	for _, li := range o.LineItems {
		w.LineItems = append(w.LineItems, wooLineItem{
			ProductID: li.ProductID,
			Quantity:  li.Quantity,
			Price:     wooNumber(model.FormatAmount(li.Price)),
		})
	}
	for _, sl := range o.ShippingLines {
		w.ShippingLines = append(w.ShippingLines, wooShippingLine{
			MethodID:    sl.MethodID,
			MethodTitle: sl.MethodTitle,
			Total:       model.FormatAmount(sl.Total),
		})
	}
	for _, k := range sortedKeys(o.Meta) {
		raw, _ := json.Marshal(o.Meta[k])
		w.MetaData = append(w.MetaData, wooMeta{Key: k, Value: raw})
	}
	return w
}

func toWooAddress(a model.Address) wooAddress {
	return wooAddress{
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Address1:  a.Address1,
		Address2:  a.Address2,
		City:      a.City,
		State:     a.State,
		Postcode:  a.Postcode,
		Country:   a.Country,
		Email:     a.Email,
		Phone:     a.Phone,
	}
}

func fromWooAddress(a wooAddress) model.Address {
	return model.Address{
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Address1:  a.Address1,
		Address2:  a.Address2,
		City:      a.City,
		State:     a.State,
		Postcode:  a.Postcode,
		Country:   a.Country,
		Email:     a.Email,
		Phone:     a.Phone,
	}
}

// weightMetaKey is the line item meta key some shipping plugins use to
// record the unit weight at order time.
const weightMetaKey = "_weight"

// fromWooOrder maps a REST order to the domain order. Scalar order meta is
// flattened into Meta; keys repeated in meta_data resolve to the last entry.
func fromWooOrder(w *wooOrder) *model.Order {
	o := &model.Order{
		ID:                 w.ID,
		Status:             model.OrderStatus(w.Status),
		Currency:           w.Currency,
		PaymentMethod:      w.PaymentMethod,
		PaymentMethodTitle: w.PaymentMethodTitle,
		SetPaid:            w.SetPaid,
		Billing:            fromWooAddress(w.Billing),
		Shipping:           fromWooAddress(w.Shipping),
		Total:              model.ParseAmount(w.Total),
		ShippingTotal:      model.ParseAmount(w.ShippingTotal),
		DiscountTotal:      model.ParseAmount(w.DiscountTotal),
		TransactionID:      w.TransactionID,
		DateCreated:        parseWooDate(w.DateCreated),
		LineItems:          make([]model.OrderLine, 0, len(w.LineItems)),
		ShippingLines:      make([]model.ShippingLine, 0, len(w.ShippingLines)),
	}

	for _, li := range w.LineItems {
		line := model.OrderLine{
			ID:        li.ID,
			ProductID: li.ProductID,
			Name:      li.Name,
			SKU:       li.SKU,
			Quantity:  li.Quantity,
			Price:     model.ParseAmount(string(li.Price)),
			Total:     model.ParseAmount(li.Total),
		}
		if line.Price.IsZero() && li.Quantity > 0 && !line.Total.IsZero() {
			line.Price = line.Total.Div(decimal.NewFromInt(int64(li.Quantity)))
		}
		for _, m := range li.MetaData {
			if m.Key != weightMetaKey {
				continue
			}
			if wt, err := strconv.ParseFloat(m.stringValue(), 64); err == nil && wt > 0 {
				line.Weight = &wt
			}
		}
		o.LineItems = append(o.LineItems, line)
	}

	for _, sl := range w.ShippingLines {
		o.ShippingLines = append(o.ShippingLines, model.ShippingLine{
			MethodID:    sl.MethodID,
			MethodTitle: sl.MethodTitle,
			Total:       model.ParseAmount(sl.Total),
		})
	}

	for _, m := range w.MetaData {
		v := m.stringValue()
		if v == "" {
			continue
		}
		if o.Meta == nil {
			o.Meta = make(map[string]string)
		}
		o.Meta[m.Key] = v
	}

	return o
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}

// Verify Client implements CommerceBackend at compile time.
var _ adapter.CommerceBackend = (*Client)(nil)
