// Package handler provides HTTP handlers for the storefront checkout API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/securecookie"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storefront-checkout/internal/adapter"
	"storefront-checkout/internal/cart"
	"storefront-checkout/internal/checkout"
	"storefront-checkout/internal/fulfillment"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/shipping"
)

// Deps are the components the handlers drive.
type Deps struct {
	Commerce    adapter.CommerceBackend
	Resolver    *shipping.Resolver
	Coordinator *checkout.Coordinator
	Reconciler  *fulfillment.Reconciler

	// Cart cookie settings. Notifier may be nil.
	CartCodec     *securecookie.SecureCookie
	CartNotifier  *cart.Notifier
	SecureCookies bool

	// RequireCustomer guards checkout and order lookup; nil leaves them open.
	RequireCustomer func(http.Handler) http.Handler
	// MCPAuth guards /mcp. It must leave the customer in the request's
	// auth.TokenInfo so tools can see it; nil leaves the endpoint open.
	MCPAuth func(http.Handler) http.Handler

	Currency string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	deps   Deps
	logger *slog.Logger
}

// New creates a new Handler. A nil logger discards output.
func New(deps Deps, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Currency == "" {
		deps.Currency = model.DefaultCurrency
	}
	return &Handler{deps: deps, logger: logger}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	open := func(next http.Handler) http.Handler { return next }
	auth := h.deps.RequireCustomer
	if auth == nil {
		auth = open
	}
	mcpAuth := h.deps.MCPAuth
	if mcpAuth == nil {
		mcpAuth = open
	}

	// Cart, held in a signed cookie
	mux.HandleFunc("GET /cart", h.handleGetCart)
	mux.HandleFunc("POST /cart/items", h.handleAddToCart)
	mux.HandleFunc("PUT /cart/items/{id}", h.handleUpdateCartItem)
	mux.HandleFunc("DELETE /cart/items/{id}", h.handleRemoveCartItem)
	mux.HandleFunc("DELETE /cart", h.handleClearCart)

	// Shipping and checkout
	mux.HandleFunc("POST /shipping/rates", h.handleShippingRates)
	mux.Handle("POST /checkout", auth(http.HandlerFunc(h.handleSubmitOrder)))
	mux.HandleFunc("POST /checkout/confirm", h.handleConfirmPayment)
	mux.Handle("GET /orders", auth(http.HandlerFunc(h.handleListOrders)))
	mux.Handle("GET /orders/{id}", auth(http.HandlerFunc(h.handleGetOrder)))

	// Payment gateway callbacks
	mux.HandleFunc("POST /webhooks/razorpay", h.handleRazorpayWebhook)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", mcpAuth(h.NewMCPHandler()))

	// Operations
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Form validation errors also carry the per-field messages.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var fields model.FieldErrors
	if errors.As(err, &fields) {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: errorBody{
				Code:    "VALIDATION_ERROR",
				Message: "please correct the highlighted fields",
			},
			Fields: fields,
		})
		return
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		// Wrap unexpected errors
		apiErr = model.NewInternalError(err)
		h.logger.Error("internal error", slog.String("error", err.Error()))
	}

	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error  errorBody         `json:"error"`
	Fields model.FieldErrors `json:"fields,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MaxRequestBodySize limits request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
