// MCP transport handler using the official MCP Go SDK.
// Exposes read-only storefront operations (cart pricing, shipping quotes,
// order lookup) as MCP tools for assistant integrations.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"storefront-checkout/internal/cart"
	"storefront-checkout/internal/checkout"
	"storefront-checkout/internal/middleware"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/shipping"
)

// === MCP Tool Input/Output Types ===
// Money is carried as decimal strings in major units so schemas stay plain.

// CartLineInput is one cart line as the client holds it.
type CartLineInput struct {
	ID       int      `json:"id" jsonschema:"product ID"`
	Name     string   `json:"name,omitempty" jsonschema:"product name"`
	Price    string   `json:"price" jsonschema:"unit price as a decimal string"`
	Quantity int      `json:"quantity" jsonschema:"units in the cart"`
	Weight   *float64 `json:"weight,omitempty" jsonschema:"unit weight in kg"`
}

// CartQuoteInput is the input schema for the get_cart_quote tool.
type CartQuoteInput struct {
	Lines        []CartLineInput `json:"lines" jsonschema:"cart lines"`
	ShippingRate string          `json:"shipping_rate,omitempty" jsonschema:"selected courier rate as a decimal string"`
}

// CartQuote is the priced cart.
type CartQuote struct {
	ItemCount   int    `json:"item_count"`
	Subtotal    string `json:"subtotal"`
	Shipping    string `json:"shipping"`
	Total       string `json:"total"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

// ShippingRatesInput is the input schema for the get_shipping_rates tool.
type ShippingRatesInput struct {
	Postcode string          `json:"postcode" jsonschema:"6-digit delivery PIN code"`
	Lines    []CartLineInput `json:"lines" jsonschema:"cart lines to ship"`
}

// ShippingRates lists courier options, first one preselected.
type ShippingRates struct {
	Quotes []QuoteView `json:"quotes"`
}

// QuoteView is a courier option with its rate as a string.
type QuoteView struct {
	CourierID         int    `json:"courier_id"`
	CourierName       string `json:"courier_name"`
	Rate              string `json:"rate"`
	EstimatedDelivery string `json:"estimated_delivery,omitempty"`
	Default           bool   `json:"default,omitempty"`
}

// GetOrderInput is the input schema for the get_order tool.
type GetOrderInput struct {
	ID int `json:"id" jsonschema:"commerce order ID"`
}

// NewMCPServer creates an MCP server with storefront tools registered.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "storefront-checkout",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Storefront checkout. Use these tools to price a cart, " +
				"quote shipping to a PIN code and look up an order.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_cart_quote",
		Description: "Price a cart: item count, subtotal, shipping and the amount charged in minor units.",
	}, h.mcpCartQuote)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_shipping_rates",
		Description: "Quote courier options for delivering the given cart lines to a PIN code.",
	}, h.mcpShippingRates)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_order",
		Description: "Get the status, items and totals of an order. Signed-in callers also see the shipping address of their own orders.",
	}, h.mcpGetOrder)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpCartQuote(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input CartQuoteInput,
) (*mcp.CallToolResult, *CartQuote, error) {
	lines := toCartLines(input.Lines)

	var quote *model.ShippingQuote
	if input.ShippingRate != "" {
		quote = &model.ShippingQuote{Rate: model.ParseAmount(input.ShippingRate)}
	}
	total := checkout.ChargeTotal(lines, quote)

	shippingCost := "0.00"
	if quote != nil {
		shippingCost = model.FormatAmount(quote.Rate)
	}

	return nil, &CartQuote{
		ItemCount:   cart.ItemCount(lines),
		Subtotal:    model.FormatAmount(cart.Total(lines)),
		Shipping:    shippingCost,
		Total:       model.FormatAmount(total),
		AmountMinor: model.ToMinorUnits(total),
		Currency:    h.deps.Currency,
	}, nil
}

func (h *Handler) mcpShippingRates(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ShippingRatesInput,
) (*mcp.CallToolResult, *ShippingRates, error) {
	quotes, err := h.deps.Resolver.GetRates(ctx, input.Postcode, toCartLines(input.Lines))
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	out := &ShippingRates{Quotes: make([]QuoteView, 0, len(quotes))}
	preselected, hasDefault := shipping.DefaultQuote(quotes)
	for _, q := range quotes {
		out.Quotes = append(out.Quotes, QuoteView{
			CourierID:         q.CourierID,
			CourierName:       q.CourierName,
			Rate:              model.FormatAmount(q.Rate),
			EstimatedDelivery: q.EstimatedDelivery,
			Default:           hasDefault && q.CourierID == preselected.CourierID,
		})
	}
	return nil, out, nil
}

func (h *Handler) mcpGetOrder(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetOrderInput,
) (*mcp.CallToolResult, *orderSummary, error) {
	if input.ID <= 0 {
		return nil, nil, fmt.Errorf("id is required")
	}

	order, err := h.deps.Commerce.GetOrder(ctx, input.ID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	customer, signedIn := mcpCustomer(req)
	if signedIn && !ownsOrder(customer, order) {
		return nil, nil, h.mcpError(model.NewNotFoundError("order"))
	}

	summary := summarizeOrder(order)
	if !signedIn {
		// Anonymous callers see status and totals, never the address.
		summary.Shipping = model.Address{}
	}
	return nil, &summary, nil
}

// mcpCustomer returns the customer whose token MCPAuth accepted.
func mcpCustomer(req *mcp.CallToolRequest) (middleware.Customer, bool) {
	if req == nil || req.Extra == nil {
		return middleware.Customer{}, false
	}
	return middleware.CustomerFromToken(req.Extra.TokenInfo)
}

func toCartLines(in []CartLineInput) []cart.Line {
	lines := make([]cart.Line, 0, len(in))
	for _, l := range in {
		lines = append(lines, cart.Line{
			ID:       l.ID,
			Name:     l.Name,
			Price:    l.Price,
			Quantity: l.Quantity,
			Weight:   l.Weight,
		})
	}
	return lines
}

// mcpError converts domain errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
