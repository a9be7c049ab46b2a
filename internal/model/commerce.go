// Package model defines the domain types shared by the storefront checkout
// components and the platform clients (WooCommerce, Razorpay, Shiprocket).
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommerceOrderNote is the payment-intent notes key that links a captured
// payment back to the commerce order. Reconciliation is impossible without it.
const CommerceOrderNote = "commerce_order_id"

// ShipmentReferenceMeta is the order meta key recording that a shipment was
// requested for the order. Its presence suppresses duplicate shipments.
const ShipmentReferenceMeta = "_shipment_reference"

// DefaultLineWeight is the per-unit weight in kilograms assumed for products
// that do not carry one.
const DefaultLineWeight = 0.5

// OrderStatus mirrors WooCommerce order statuses.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusOnHold     OrderStatus = "on-hold"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusFailed     OrderStatus = "failed"
)

// Address is a billing or shipping address. Checkout uses one address for both.
type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2,omitempty"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// FullName joins first and last name, trimming the gap when one is missing.
func (a Address) FullName() string {
	switch {
	case a.FirstName == "":
		return a.LastName
	case a.LastName == "":
		return a.FirstName
	default:
		return a.FirstName + " " + a.LastName
	}
}

// Product is the catalog view needed to snapshot a cart line.
type Product struct {
	ID     int      `json:"id"`
	Name   string   `json:"name"`
	Price  string   `json:"price"` // decimal string, major units
	Images []string `json:"images,omitempty"`
	Weight *float64 `json:"weight,omitempty"` // kg, nil when the catalog has none
}

// ShippingQuote is one courier option for a destination.
type ShippingQuote struct {
	CourierID         int             `json:"courier_id"`
	CourierName       string          `json:"courier_name"`
	Rate              decimal.Decimal `json:"rate"`
	EstimatedDelivery string          `json:"estimated_delivery,omitempty"`
}

// OrderLine is a line item on a commerce order.
type OrderLine struct {
	ID        int             `json:"id,omitempty"`
	ProductID int             `json:"product_id"`
	Name      string          `json:"name,omitempty"`
	SKU       string          `json:"sku,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`           // unit price
	Total     decimal.Decimal `json:"total,omitempty"` // line total after discounts
	Weight    *float64        `json:"weight,omitempty"`
}

// ShippingLine is the selected courier attached to an order.
type ShippingLine struct {
	MethodID    string          `json:"method_id"`
	MethodTitle string          `json:"method_title"`
	Total       decimal.Decimal `json:"total"`
}

// Order is the commerce backend's order, referenced rather than owned.
type Order struct {
	ID                 int               `json:"id"`
	Status             OrderStatus       `json:"status"`
	Currency           string            `json:"currency,omitempty"`
	PaymentMethod      string            `json:"payment_method,omitempty"`
	PaymentMethodTitle string            `json:"payment_method_title,omitempty"`
	SetPaid            bool              `json:"set_paid"`
	Billing            Address           `json:"billing"`
	Shipping           Address           `json:"shipping"`
	LineItems          []OrderLine       `json:"line_items"`
	ShippingLines      []ShippingLine    `json:"shipping_lines"`
	Total              decimal.Decimal   `json:"total"`
	ShippingTotal      decimal.Decimal   `json:"shipping_total"`
	DiscountTotal      decimal.Decimal   `json:"discount_total"`
	TransactionID      string            `json:"transaction_id,omitempty"`
	DateCreated        time.Time         `json:"date_created"`
	Meta               map[string]string `json:"meta,omitempty"`
}

// OrderUpdate is a partial order update. Empty fields are left untouched.
type OrderUpdate struct {
	Status        OrderStatus
	TransactionID string
	Meta          map[string]string
}

// PaymentIntentRequest asks the gateway for a payment order.
type PaymentIntentRequest struct {
	Amount   int64 // minor units
	Currency string
	Receipt  string
	Capture  bool
	Notes    map[string]string
}

// PaymentIntent is the gateway's payment order.
type PaymentIntent struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Status   string            `json:"status"`
	Notes    map[string]string `json:"notes"`
}

// RateQuery is a serviceability lookup.
type RateQuery struct {
	PickupPostcode   string
	DeliveryPostcode string
	WeightKg         float64
	DeclaredValue    decimal.Decimal
	COD              bool
}

// ShipmentItem is a line on a shipment request.
type ShipmentItem struct {
	Name         string
	SKU          string
	Units        int
	SellingPrice decimal.Decimal
	HSN          int
}

// ShipmentRequest is derived from an order at shipment-creation time.
type ShipmentRequest struct {
	OrderID        string
	OrderDate      string // YYYY-MM-DD
	PickupLocation string
	ChannelID      string
	Billing        Address
	Items          []ShipmentItem
	PaymentMethod  string
	ShippingCharge decimal.Decimal
	Discount       decimal.Decimal
	SubTotal       decimal.Decimal
	LengthCm       float64
	BreadthCm      float64
	HeightCm       float64
	WeightKg       float64
}

// ShipmentResult is what the logistics provider returns for a created shipment.
type ShipmentResult struct {
	ShipmentID      int64  `json:"shipment_id"`
	ProviderOrderID int64  `json:"order_id"`
	Status          string `json:"status"`
}
