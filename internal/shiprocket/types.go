package shiprocket

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// === Shiprocket API Types ===

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	CompanyID int    `json:"company_id"`
	Email     string `json:"email"`
}

// serviceabilityResponse is the body of GET /courier/serviceability/.
// Status mirrors the HTTP status and is the field that signals success.
type serviceabilityResponse struct {
	Status int `json:"status"`
	Data   struct {
		AvailableCourierCompanies []courierCompany `json:"available_courier_companies"`
	} `json:"data"`
	Message string `json:"message"`
}

type courierCompany struct {
	CourierCompanyID      int             `json:"courier_company_id"`
	CourierName           string          `json:"courier_name"`
	Rate                  decimal.Decimal `json:"rate"`
	ETD                   string          `json:"etd"`
	EstimatedDeliveryDays json.RawMessage `json:"estimated_delivery_days"`
}

// adhocOrder is the body of POST /orders/create/adhoc.
type adhocOrder struct {
	OrderID             string      `json:"order_id"`
	OrderDate           string      `json:"order_date"`
	PickupLocation      string      `json:"pickup_location"`
	ChannelID           string      `json:"channel_id,omitempty"`
	BillingCustomerName string      `json:"billing_customer_name"`
	BillingLastName     string      `json:"billing_last_name"`
	BillingAddress      string      `json:"billing_address"`
	BillingAddress2     string      `json:"billing_address_2"`
	BillingCity         string      `json:"billing_city"`
	BillingPincode      string      `json:"billing_pincode"`
	BillingState        string      `json:"billing_state"`
	BillingCountry      string      `json:"billing_country"`
	BillingEmail        string      `json:"billing_email"`
	BillingPhone        string      `json:"billing_phone"`
	ShippingIsBilling   bool        `json:"shipping_is_billing"`
	OrderItems          []adhocItem `json:"order_items"`
	PaymentMethod       string      `json:"payment_method"`
	ShippingCharges     float64     `json:"shipping_charges"`
	TotalDiscount       float64     `json:"total_discount"`
	SubTotal            float64     `json:"sub_total"`
	Length              float64     `json:"length"`
	Breadth             float64     `json:"breadth"`
	Height              float64     `json:"height"`
	Weight              float64     `json:"weight"`
}

type adhocItem struct {
	Name         string  `json:"name"`
	SKU          string  `json:"sku"`
	Units        int     `json:"units"`
	SellingPrice float64 `json:"selling_price"`
	HSN          int     `json:"hsn,omitempty"`
}

type adhocResponse struct {
	OrderID    int64  `json:"order_id"`
	ShipmentID int64  `json:"shipment_id"`
	Status     string `json:"status"`
	StatusCode int    `json:"status_code"`
}

// errorResponse covers both validation (422, with per-field errors) and
// generic failures.
type errorResponse struct {
	Message    string              `json:"message"`
	StatusCode int                 `json:"status_code"`
	Errors     map[string][]string `json:"errors"`
}
