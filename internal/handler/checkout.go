package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"storefront-checkout/internal/checkout"
	"storefront-checkout/internal/middleware"
	"storefront-checkout/internal/model"
)

type shippingRatesRequest struct {
	Postcode string `json:"postcode"`
}

type shippingRatesResponse struct {
	Quotes  []model.ShippingQuote `json:"quotes"`
	Default *int                  `json:"default"` // index of the preselected quote
}

type submitOrderRequest struct {
	Form          checkout.Form        `json:"form"`
	ShippingQuote *model.ShippingQuote `json:"shipping_quote"`
}

type confirmResponse struct {
	RedirectURL string `json:"redirect_url"`
}

// orderSummary is the shopper-facing view of a commerce order.
type orderSummary struct {
	ID            int               `json:"id"`
	Status        model.OrderStatus `json:"status"`
	Currency      string            `json:"currency"`
	Total         string            `json:"total"`
	ShippingTotal string            `json:"shipping_total"`
	Items         []orderItem       `json:"items"`
	Shipping      model.Address     `json:"shipping"`
	Shipped       bool              `json:"shipped"`
	DateCreated   string            `json:"date_created,omitempty"`
}

type orderListResponse struct {
	Orders []orderSummary `json:"orders"`
}

type orderItem struct {
	ProductID int    `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Total     string `json:"total"`
}

// handleShippingRates quotes couriers for the cart in the cookie.
// POST /shipping/rates
func (h *Handler) handleShippingRates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req shippingRatesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	lines := h.cartFor(w, r).Get()
	quotes, err := h.deps.Resolver.GetRates(ctx, req.Postcode, lines)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := shippingRatesResponse{Quotes: quotes}
	if len(quotes) > 0 {
		first := 0
		resp.Default = &first
	}

	h.logger.InfoContext(ctx, "shipping rates quoted",
		slog.String("postcode", strings.TrimSpace(req.Postcode)),
		slog.Int("quotes", len(quotes)),
	)
	h.writeJSON(w, http.StatusOK, resp)
}

// handleSubmitOrder creates the order and payment intent for the cookie cart.
// POST /checkout
func (h *Handler) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req submitOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	lines := h.cartFor(w, r).Get()

	attrs := []any{
		slog.Int("lines", len(lines)),
		slog.String("request_id", middleware.RequestIDFrom(ctx)),
	}
	if customer, ok := middleware.CustomerFrom(ctx); ok {
		attrs = append(attrs, slog.String("customer_id", customer.ID))
	}
	h.logger.InfoContext(ctx, "submitting order", attrs...)

	result, err := h.deps.Coordinator.SubmitOrder(ctx, req.Form, lines, req.ShippingQuote)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

// handleConfirmPayment verifies the widget callback and clears the cart.
// POST /checkout/confirm
func (h *Handler) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req checkout.Confirmation
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	redirect, err := h.deps.Coordinator.ConfirmPayment(ctx, req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	// The order is paid; the cart is spent even if clearing the cookie fails.
	if _, err := h.cartFor(w, r).Clear(); err != nil {
		h.logger.WarnContext(ctx, "failed to clear cart after payment",
			slog.Int("order_id", req.OrderID),
			slog.String("error", err.Error()),
		)
	}

	h.writeJSON(w, http.StatusOK, confirmResponse{RedirectURL: redirect})
}

// handleGetOrder returns an order summary to its buyer.
// GET /orders/{id}
func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	order, err := h.deps.Commerce.GetOrder(ctx, id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	// Report a foreign order as missing so ids cannot be probed.
	if customer, ok := middleware.CustomerFrom(ctx); ok && !ownsOrder(customer, order) {
		h.writeError(w, model.NewNotFoundError("order"))
		return
	}

	h.writeJSON(w, http.StatusOK, summarizeOrder(order))
}

// handleListOrders returns the signed-in shopper's order history.
// GET /orders
func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	customer, ok := middleware.CustomerFrom(ctx)
	if !ok || customer.Email == "" {
		h.writeError(w, model.NewUnauthorizedError("sign in to view your orders"))
		return
	}

	orders, err := h.deps.Commerce.ListOrders(ctx, customer.Email)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := orderListResponse{Orders: make([]orderSummary, 0, len(orders))}
	for _, o := range orders {
		if ownsOrder(customer, o) {
			resp.Orders = append(resp.Orders, summarizeOrder(o))
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ownsOrder reports whether the order was billed to the customer. Tokens
// without an email only identify the customer, so any order passes.
func ownsOrder(customer middleware.Customer, order *model.Order) bool {
	return customer.Email == "" || strings.EqualFold(customer.Email, strings.TrimSpace(order.Billing.Email))
}

func summarizeOrder(order *model.Order) orderSummary {
	items := make([]orderItem, 0, len(order.LineItems))
	for _, li := range order.LineItems {
		items = append(items, orderItem{
			ProductID: li.ProductID,
			Name:      li.Name,
			Quantity:  li.Quantity,
			Total:     model.FormatAmount(li.Total),
		})
	}
	summary := orderSummary{
		ID:            order.ID,
		Status:        order.Status,
		Currency:      order.Currency,
		Total:         model.FormatAmount(order.Total),
		ShippingTotal: model.FormatAmount(order.ShippingTotal),
		Items:         items,
		Shipping:      order.Shipping,
		Shipped:       order.Meta[model.ShipmentReferenceMeta] != "",
	}
	if !order.DateCreated.IsZero() {
		summary.DateCreated = order.DateCreated.Format(time.RFC3339)
	}
	return summary
}
