package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"storefront-checkout/internal/cart"
	"storefront-checkout/internal/model"
)

type cartResponse struct {
	Lines     []cart.Line `json:"lines"`
	ItemCount int         `json:"item_count"`
	Total     string      `json:"total"`
	Currency  string      `json:"currency"`
}

type addToCartRequest struct {
	ProductID int  `json:"product_id"`
	Quantity  *int `json:"quantity,omitempty"` // defaults to 1
}

type updateCartRequest struct {
	Quantity int `json:"quantity"`
}

// cartFor returns a cart store bound to this request's cookie.
func (h *Handler) cartFor(w http.ResponseWriter, r *http.Request) *cart.Store {
	storage := cart.NewCookieStorage(h.deps.CartCodec, w, r, h.deps.SecureCookies)
	return cart.NewStore(storage, h.deps.CartNotifier, h.logger)
}

func (h *Handler) writeCart(w http.ResponseWriter, lines []cart.Line) {
	h.writeJSON(w, http.StatusOK, cartResponse{
		Lines:     lines,
		ItemCount: cart.ItemCount(lines),
		Total:     model.FormatAmount(cart.Total(lines)),
		Currency:  h.deps.Currency,
	})
}

// handleGetCart returns the cart lines with count and total.
// GET /cart
func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	h.writeCart(w, h.cartFor(w, r).Get())
}

// handleAddToCart snapshots a catalog product into the cart.
// POST /cart/items
func (h *Handler) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req addToCartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.ProductID <= 0 {
		h.writeError(w, model.NewValidationError("product_id", "required"))
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	product, err := h.deps.Commerce.GetProduct(ctx, req.ProductID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	lines, err := h.cartFor(w, r).Add(product, qty)
	if err != nil {
		h.writeError(w, cartError(err))
		return
	}

	h.logger.InfoContext(ctx, "cart item added",
		slog.Int("product_id", product.ID),
		slog.Int("quantity", qty),
	)
	h.writeCart(w, lines)
}

// handleUpdateCartItem sets a line's quantity; zero or less removes it.
// PUT /cart/items/{id}
func (h *Handler) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req updateCartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	lines, err := h.cartFor(w, r).UpdateQuantity(id, req.Quantity)
	if err != nil {
		h.writeError(w, cartError(err))
		return
	}
	h.writeCart(w, lines)
}

// handleRemoveCartItem drops a line.
// DELETE /cart/items/{id}
func (h *Handler) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	lines, err := h.cartFor(w, r).Remove(id)
	if err != nil {
		h.writeError(w, cartError(err))
		return
	}
	h.writeCart(w, lines)
}

// handleClearCart empties the cart.
// DELETE /cart
func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	lines, err := h.cartFor(w, r).Clear()
	if err != nil {
		h.writeError(w, cartError(err))
		return
	}
	h.writeCart(w, lines)
}

func cartError(err error) error {
	if errors.Is(err, cart.ErrInvalidQuantity) {
		return model.NewValidationError("quantity", err.Error())
	}
	return model.NewInternalError(err)
}

func pathID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		return 0, model.NewValidationError("id", "must be a positive integer")
	}
	return id, nil
}
