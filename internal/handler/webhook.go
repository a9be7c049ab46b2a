package handler

import (
	"io"
	"log/slog"
	"net/http"

	"storefront-checkout/internal/middleware"
	"storefront-checkout/internal/razorpay"
)

type webhookAck struct {
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// handleRazorpayWebhook passes the raw body to the reconciler. Only a bad
// signature is rejected; every other outcome is acknowledged so the gateway
// stops redelivering.
// POST /webhooks/razorpay
func (h *Handler) handleRazorpayWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// The signature covers the exact bytes, so read before any decoding.
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBodySize))
	if err != nil {
		h.writeJSON(w, http.StatusRequestEntityTooLarge, webhookAck{Error: "body too large"})
		return
	}

	signature := r.Header.Get(razorpay.SignatureHeader)
	if signature == "" {
		signature = r.Header.Get("signature")
	}

	outcome := h.deps.Reconciler.HandleWebhook(ctx, raw, signature)
	h.logger.InfoContext(ctx, "webhook handled",
		slog.String("outcome", string(outcome)),
		slog.String("request_id", middleware.RequestIDFrom(ctx)),
	)

	if !outcome.Acknowledged() {
		h.writeJSON(w, http.StatusBadRequest, webhookAck{Error: "Invalid signature"})
		return
	}
	h.writeJSON(w, http.StatusOK, webhookAck{Status: "ok"})
}
