// Package adapter defines the contracts for the three external platforms the
// checkout flow coordinates: the commerce backend, the payment gateway and the
// logistics provider. Each platform package provides one implementation.
package adapter

import (
	"context"

	"storefront-checkout/internal/model"
)

// CommerceBackend is the order and catalog system of record (WooCommerce).
type CommerceBackend interface {
	// CreateOrder creates a provisional, unpaid order and returns it with its ID.
	CreateOrder(ctx context.Context, order *model.Order) (*model.Order, error)

	// GetOrder fetches the full order record including line items and addresses.
	GetOrder(ctx context.Context, id int) (*model.Order, error)

	// ListOrders returns the orders billed to email, newest first.
	ListOrders(ctx context.Context, email string) ([]*model.Order, error)

	// UpdateOrder applies a partial update (status, transaction id, meta).
	UpdateOrder(ctx context.Context, id int, update *model.OrderUpdate) (*model.Order, error)

	// GetProduct returns the catalog data used to snapshot a cart line.
	GetProduct(ctx context.Context, id int) (*model.Product, error)
}

// PaymentGateway creates payment intents (Razorpay orders).
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, req *model.PaymentIntentRequest) (*model.PaymentIntent, error)
}

// LogisticsProvider quotes and books shipments (Shiprocket).
// Login returns a short-lived bearer token; callers log in per operation.
type LogisticsProvider interface {
	Login(ctx context.Context) (string, error)
	Serviceability(ctx context.Context, token string, query *model.RateQuery) ([]model.ShippingQuote, error)
	CreateShipment(ctx context.Context, token string, req *model.ShipmentRequest) (*model.ShipmentResult, error)
}
