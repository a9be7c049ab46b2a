// Package checkout turns a validated checkout form and cart into a provisional
// commerce order plus a payment intent the shopper can pay against.
package checkout

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"storefront-checkout/internal/adapter"
	"storefront-checkout/internal/cart"
	"storefront-checkout/internal/metrics"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/razorpay"
)

const (
	paymentMethod      = "razorpay"
	paymentMethodTitle = "Razorpay"
	shippingMethodID   = "shiprocket"
	orderSuccessPath   = "/order-success"
)

// Config holds coordinator settings.
type Config struct {
	Currency  string // defaults to model.DefaultCurrency
	KeyID     string // public gateway key handed to the payment widget
	KeySecret string // verifies the checkout signature on confirmation
	SiteURL   string // storefront origin for the post-payment redirect
}

// Prefill seeds the payment widget with the shopper's details.
type Prefill struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact,omitempty"`
}

// Result is returned once the order and its payment intent exist.
type Result struct {
	CommerceOrderID int     `json:"commerce_order_id"`
	PaymentIntentID string  `json:"payment_intent_id"`
	AmountCharged   int64   `json:"amount_charged"` // minor units
	Currency        string  `json:"currency"`
	KeyID           string  `json:"key_id"`
	Description     string  `json:"description"`
	Prefill         Prefill `json:"prefill"`
}

// Confirmation is what the payment widget hands back after a successful payment.
type Confirmation struct {
	OrderID         int    `json:"order_id"`
	PaymentIntentID string `json:"razorpay_order_id"`
	PaymentID       string `json:"razorpay_payment_id"`
	Signature       string `json:"razorpay_signature"`
}

// Coordinator sequences order creation and payment intent creation.
// It holds no per-request state and is safe for concurrent use.
type Coordinator struct {
	commerce adapter.CommerceBackend
	gateway  adapter.PaymentGateway
	cfg      Config
	logger   *slog.Logger
}

// NewCoordinator creates a Coordinator. A nil logger discards output.
func NewCoordinator(commerce adapter.CommerceBackend, gateway adapter.PaymentGateway, cfg Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Currency == "" {
		cfg.Currency = model.DefaultCurrency
	}
	cfg.SiteURL = strings.TrimSuffix(cfg.SiteURL, "/")
	return &Coordinator{commerce: commerce, gateway: gateway, cfg: cfg, logger: logger}
}

// SubmitOrder validates the form, creates an unpaid order and then a payment
// intent for the cart total plus the shipping rate. Validation failures are
// returned as model.FieldErrors before any upstream call. A payment failure
// after the order exists leaves the order pending.
func (c *Coordinator) SubmitOrder(ctx context.Context, form Form, lines []cart.Line, quote *model.ShippingQuote) (*Result, error) {
	form.Normalize()
	if errs := Validate(&form, quote); errs != nil || len(lines) == 0 {
		if errs == nil {
			errs = model.FieldErrors{}
		}
		if len(lines) == 0 {
			errs["cart"] = fieldMessages["cart"]
		}
		metrics.RecordCheckout("invalid")
		return nil, errs
	}

	created, err := c.commerce.CreateOrder(ctx, buildOrder(&form, lines, quote))
	if err != nil {
		c.logger.Error("order creation failed", "email", form.Email, "error", err)
		metrics.RecordCheckout(metrics.ResultError)
		return nil, err
	}
	orderID := strconv.Itoa(created.ID)

	amount := model.ToMinorUnits(ChargeTotal(lines, quote))
	intent, err := c.gateway.CreatePaymentIntent(ctx, &model.PaymentIntentRequest{
		Amount:   amount,
		Currency: c.cfg.Currency,
		Receipt:  "wc_order_" + orderID,
		Capture:  true,
		Notes:    map[string]string{model.CommerceOrderNote: orderID},
	})
	if err != nil {
		c.logger.Error("payment intent failed, order left pending",
			"order_id", created.ID,
			"amount", amount,
			"error", err,
		)
		metrics.RecordCheckout(metrics.ResultError)
		return nil, err
	}
	if intent.Notes[model.CommerceOrderNote] != orderID {
		c.logger.Error("payment intent lost order reference",
			"order_id", created.ID,
			"intent_id", intent.ID,
		)
		metrics.RecordCheckout(metrics.ResultError)
		return nil, model.NewPaymentLinkError(created.ID)
	}

	c.logger.Info("checkout submitted",
		"order_id", created.ID,
		"intent_id", intent.ID,
		"amount", amount,
		"currency", c.cfg.Currency,
	)
	metrics.RecordCheckout(metrics.ResultSuccess)

	addr := form.Address()
	return &Result{
		CommerceOrderID: created.ID,
		PaymentIntentID: intent.ID,
		AmountCharged:   amount,
		Currency:        c.cfg.Currency,
		KeyID:           c.cfg.KeyID,
		Description:     fmt.Sprintf("Order #%d", created.ID),
		Prefill: Prefill{
			Name:    addr.FullName(),
			Email:   form.Email,
			Contact: form.Phone,
		},
	}, nil
}

// ConfirmPayment checks the signature the payment widget returned and yields
// the order success URL. Order status is left to the webhook.
func (c *Coordinator) ConfirmPayment(ctx context.Context, conf Confirmation) (string, error) {
	if conf.OrderID <= 0 {
		return "", model.NewValidationError("order_id", "required")
	}
	if conf.PaymentIntentID == "" || conf.PaymentID == "" {
		return "", model.NewValidationError("payment", "payment identifiers are required")
	}
	if !razorpay.VerifyPaymentSignature(conf.PaymentIntentID, conf.PaymentID, conf.Signature, c.cfg.KeySecret) {
		c.logger.Warn("payment confirmation signature mismatch",
			"order_id", conf.OrderID,
			"payment_id", conf.PaymentID,
		)
		return "", model.NewPaymentError("payment verification failed")
	}

	c.logger.Info("payment confirmed", "order_id", conf.OrderID, "payment_id", conf.PaymentID)

	q := url.Values{}
	q.Set("order", strconv.Itoa(conf.OrderID))
	q.Set("payment_id", conf.PaymentID)
	return c.cfg.SiteURL + orderSuccessPath + "?" + q.Encode(), nil
}

// ChargeTotal is the cart subtotal plus the selected shipping rate, in major
// units. Tax is not added.
func ChargeTotal(lines []cart.Line, quote *model.ShippingQuote) decimal.Decimal {
	total := cart.Total(lines)
	if quote != nil {
		total = total.Add(quote.Rate)
	}
	return total
}

// buildOrder maps the form and cart onto an unpaid order. The form address
// is used for both billing and shipping.
func buildOrder(form *Form, lines []cart.Line, quote *model.ShippingQuote) *model.Order {
	addr := form.Address()

	items := make([]model.OrderLine, 0, len(lines))
	for _, l := range lines {
		price := model.ParseAmount(l.Price)
		items = append(items, model.OrderLine{
			ProductID: l.ID,
			Quantity:  l.Quantity,
			Price:     price,
			Total:     price.Mul(decimal.NewFromInt(int64(l.Quantity))),
		})
	}

	return &model.Order{
		PaymentMethod:      paymentMethod,
		PaymentMethodTitle: paymentMethodTitle,
		SetPaid:            false,
		Billing:            addr,
		Shipping:           addr,
		LineItems:          items,
		ShippingLines: []model.ShippingLine{{
			MethodID:    shippingMethodID,
			MethodTitle: quote.CourierName,
			Total:       quote.Rate,
		}},
	}
}
