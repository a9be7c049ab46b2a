// Package fulfillment reconciles captured payments with commerce orders and
// books the shipment for each paid order.
package fulfillment

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"storefront-checkout/internal/adapter"
	"storefront-checkout/internal/metrics"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/razorpay"
	"storefront-checkout/internal/shipping"
)

// legacyOrderNote is the notes key used by payments created before the
// commerce_order_id key was introduced.
const legacyOrderNote = "woocommerce_order_id"

// Shipment constants sent with every adhoc shipment.
const (
	shipmentPaymentMethod = "Prepaid"
	defaultHSN            = 49011010
	parcelSideCm          = 10
	orderDateLayout       = "2006-01-02"
)

// Outcome describes how a webhook delivery was handled. Every outcome except
// OutcomeInvalidSignature is acknowledged to the gateway.
type Outcome string

const (
	OutcomeInvalidSignature Outcome = "invalid_signature"
	OutcomeMalformed        Outcome = "malformed"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeNoOrder          Outcome = "no_order"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeFailed           Outcome = "failed"
	OutcomeFulfilled        Outcome = "fulfilled"
)

// Acknowledged reports whether the delivery should get a 200.
func (o Outcome) Acknowledged() bool {
	return o != OutcomeInvalidSignature
}

// Config holds reconciler settings.
type Config struct {
	WebhookSecret  string
	PickupLocation string
	ChannelID      string
	Timeout        time.Duration // bounds the whole reconciliation; zero means none
}

// Reconciler handles payment gateway webhooks.
type Reconciler struct {
	commerce  adapter.CommerceBackend
	logistics adapter.LogisticsProvider
	guard     Guard
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewReconciler creates a Reconciler. A nil guard uses an in-memory guard and
// a nil logger discards output.
func NewReconciler(commerce adapter.CommerceBackend, logistics adapter.LogisticsProvider, guard Guard, cfg Config, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if guard == nil {
		guard = NewMemoryGuard(DefaultLockTTL)
	}
	return &Reconciler{
		commerce:  commerce,
		logistics: logistics,
		guard:     guard,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// HandleWebhook verifies and processes one delivery. raw must be the exact
// request body. Failures after the signature check are logged, never returned:
// the payment is already captured and a non-2xx reply only makes the gateway
// redeliver.
func (r *Reconciler) HandleWebhook(ctx context.Context, raw []byte, signature string) Outcome {
	if !razorpay.VerifyWebhookSignature(raw, signature, r.cfg.WebhookSecret) {
		r.logger.Warn("webhook signature mismatch", "body_bytes", len(raw))
		metrics.RecordWebhook("", string(OutcomeInvalidSignature))
		return OutcomeInvalidSignature
	}

	var event razorpay.WebhookEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		r.logger.Error("signed webhook body is not valid JSON", "error", err)
		metrics.RecordWebhook("", string(OutcomeMalformed))
		return OutcomeMalformed
	}

	outcome := r.process(ctx, &event)
	metrics.RecordWebhook(event.Event, string(outcome))
	return outcome
}

func (r *Reconciler) process(ctx context.Context, event *razorpay.WebhookEvent) Outcome {
	if event.Event != razorpay.EventPaymentCaptured {
		r.logger.Debug("webhook event ignored", "event", event.Event)
		return OutcomeIgnored
	}

	payment := event.PaymentEntity()
	if payment == nil {
		r.logger.Warn("payment.captured without payment entity")
		return OutcomeNoOrder
	}
	orderID, ok := orderIDFromNotes(payment.Notes)
	if !ok {
		r.logger.Warn("captured payment has no commerce order reference",
			"payment_id", payment.ID,
			"notes", payment.Notes,
		)
		return OutcomeNoOrder
	}

	// The gateway may hang up before we finish; the order still needs shipping.
	ctx = context.WithoutCancel(ctx)
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	log := r.logger.With("order_id", orderID, "payment_id", payment.ID)

	if _, err := r.commerce.UpdateOrder(ctx, orderID, &model.OrderUpdate{
		Status:        model.OrderStatusProcessing,
		TransactionID: payment.ID,
	}); err != nil {
		log.Error("marking order processing failed", "error", err)
		return OutcomeFailed
	}
	log.Info("order marked processing")

	order, err := r.commerce.GetOrder(ctx, orderID)
	if err != nil {
		log.Error("fetching paid order failed", "error", err)
		return OutcomeFailed
	}

	if ref := order.Meta[model.ShipmentReferenceMeta]; ref != "" {
		log.Info("shipment already requested, skipping", "shipment_id", ref)
		return OutcomeDuplicate
	}
	acquired, err := r.guard.Acquire(ctx, orderID)
	if err != nil {
		log.Error("shipment lock unavailable", "error", err)
		return OutcomeFailed
	}
	if !acquired {
		log.Info("shipment in progress for order, skipping duplicate delivery")
		return OutcomeDuplicate
	}

	result, err := r.ship(ctx, order)
	if err != nil {
		metrics.RecordShipment(false)
		log.Error("shipment creation failed, needs manual follow-up", "error", err)
		// Let a manual redelivery retry.
		if rerr := r.guard.Release(ctx, orderID); rerr != nil {
			log.Error("releasing shipment lock failed", "error", rerr)
		}
		return OutcomeFailed
	}
	metrics.RecordShipment(true)
	log.Info("shipment created",
		"shipment_id", result.ShipmentID,
		"provider_order_id", result.ProviderOrderID,
	)

	shipmentRef := strconv.FormatInt(result.ShipmentID, 10)
	if _, err := r.commerce.UpdateOrder(ctx, orderID, &model.OrderUpdate{
		Meta: map[string]string{model.ShipmentReferenceMeta: shipmentRef},
	}); err != nil {
		// The lock is kept until it expires so a quick redelivery does not
		// book a second shipment.
		log.Error("recording shipment reference failed", "shipment_id", shipmentRef, "error", err)
	}
	return OutcomeFulfilled
}

func (r *Reconciler) ship(ctx context.Context, order *model.Order) (*model.ShipmentResult, error) {
	token, err := r.logistics.Login(ctx)
	if err != nil {
		return nil, err
	}
	return r.logistics.CreateShipment(ctx, token, r.shipmentRequest(order))
}

// shipmentRequest maps a paid order to an adhoc shipment. The billing
// address doubles as the delivery address.
func (r *Reconciler) shipmentRequest(order *model.Order) *model.ShipmentRequest {
	created := order.DateCreated
	if created.IsZero() {
		created = r.now()
	}

	items := make([]model.ShipmentItem, 0, len(order.LineItems))
	subTotal := decimal.Zero
	for _, l := range order.LineItems {
		sku := l.SKU
		if sku == "" {
			sku = "prod-" + strconv.Itoa(l.ProductID)
		}
		items = append(items, model.ShipmentItem{
			Name:         l.Name,
			SKU:          sku,
			Units:        l.Quantity,
			SellingPrice: l.Price,
			HSN:          defaultHSN,
		})
		subTotal = subTotal.Add(l.Total)
	}

	return &model.ShipmentRequest{
		OrderID:        strconv.Itoa(order.ID),
		OrderDate:      created.Format(orderDateLayout),
		PickupLocation: r.cfg.PickupLocation,
		ChannelID:      r.cfg.ChannelID,
		Billing:        order.Billing,
		Items:          items,
		PaymentMethod:  shipmentPaymentMethod,
		ShippingCharge: order.ShippingTotal,
		Discount:       order.DiscountTotal,
		SubTotal:       subTotal,
		LengthCm:       parcelSideCm,
		BreadthCm:      parcelSideCm,
		HeightCm:       parcelSideCm,
		WeightKg:       OrderWeight(order.LineItems),
	}
}

// OrderWeight is Σ unit weight × quantity over the order lines, in kg.
func OrderWeight(lines []model.OrderLine) float64 {
	total := decimal.Zero
	for _, l := range lines {
		w := decimal.NewFromFloat(shipping.LineWeight(l.Weight))
		total = total.Add(w.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total.InexactFloat64()
}

func orderIDFromNotes(notes razorpay.Notes) (int, bool) {
	for _, key := range []string{model.CommerceOrderNote, legacyOrderNote} {
		v := strings.TrimSpace(notes[key])
		if v == "" {
			continue
		}
		id, err := strconv.Atoi(v)
		if err != nil || id <= 0 {
			return 0, false
		}
		return id, true
	}
	return 0, false
}
