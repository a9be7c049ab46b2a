package woocommerce

import (
	"encoding/json"
	"strconv"
	"time"
)

// === WooCommerce REST API v3 Types ===
// Money fields arrive as decimal strings in major units ("1050.00"),
// except line item price which WooCommerce emits as a JSON number.

// wooOrder is the order resource at /wc/v3/orders/{id}.
type wooOrder struct {
	ID                 int               `json:"id,omitempty"`
	Status             string            `json:"status,omitempty"`
	Currency           string            `json:"currency,omitempty"`
	PaymentMethod      string            `json:"payment_method,omitempty"`
	PaymentMethodTitle string            `json:"payment_method_title,omitempty"`
	SetPaid            bool              `json:"set_paid"`
	TransactionID      string            `json:"transaction_id,omitempty"`
	Billing            wooAddress        `json:"billing"`
	Shipping           wooAddress        `json:"shipping"`
	LineItems          []wooLineItem     `json:"line_items"`
	ShippingLines      []wooShippingLine `json:"shipping_lines"`
	MetaData           []wooMeta         `json:"meta_data,omitempty"`
	Total              string            `json:"total,omitempty"`
	ShippingTotal      string            `json:"shipping_total,omitempty"`
	DiscountTotal      string            `json:"discount_total,omitempty"`
	DateCreated        string            `json:"date_created,omitempty"`
}

// wooAddress is shared by billing and shipping.
// WooCommerce rejects email on shipping addresses, hence omitempty.
type wooAddress struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type wooLineItem struct {
	ID        int       `json:"id,omitempty"`
	ProductID int       `json:"product_id"`
	Name      string    `json:"name,omitempty"`
	SKU       string    `json:"sku,omitempty"`
	Quantity  int       `json:"quantity"`
	Price     wooNumber `json:"price,omitempty"`
	Total     string    `json:"total,omitempty"`
	MetaData  []wooMeta `json:"meta_data,omitempty"`
}

type wooShippingLine struct {
	MethodID    string `json:"method_id"`
	MethodTitle string `json:"method_title"`
	Total       string `json:"total"`
}

// wooMeta is a meta_data entry. Values are arbitrary JSON; only scalar
// values are surfaced to callers.
type wooMeta struct {
	ID    int             `json:"id,omitempty"`
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// stringValue renders scalar meta values as strings. Objects and arrays yield "".
func (m wooMeta) stringValue() string {
	if len(m.Value) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Value, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(m.Value, &n); err == nil {
		return n.String()
	}
	var b bool
	if err := json.Unmarshal(m.Value, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return ""
}

// wooNumber accepts both JSON numbers and numeric strings.
type wooNumber string

func (n *wooNumber) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*n = wooNumber(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*n = wooNumber(num.String())
	return nil
}

func (n wooNumber) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(n))
}

// wooOrderUpdate is the PUT body for partial order updates.
type wooOrderUpdate struct {
	Status        string    `json:"status,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	MetaData      []wooMeta `json:"meta_data,omitempty"`
}

// wooProduct is the product resource at /wc/v3/products/{id}.
type wooProduct struct {
	ID     int        `json:"id"`
	Name   string     `json:"name"`
	SKU    string     `json:"sku"`
	Price  string     `json:"price"`
	Weight string     `json:"weight"` // kg as string, empty when unset
	Images []wooImage `json:"images"`
}

type wooImage struct {
	ID  int    `json:"id"`
	Src string `json:"src"`
	Alt string `json:"alt"`
}

// wooErrorResponse is the WP REST error envelope.
type wooErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status int `json:"status"`
	} `json:"data"`
}

// wooDateLayout is the format of date_created (site-local, no zone).
const wooDateLayout = "2006-01-02T15:04:05"

func parseWooDate(s string) time.Time {
	t, err := time.Parse(wooDateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
