package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is charged when configuration does not name one.
const DefaultCurrency = "INR"

// ParseAmount converts a decimal string in major units ("199.50") to a Decimal.
// Empty or malformed input yields zero; cart prices come from client storage
// and a bad value must not abort a total.
func ParseAmount(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ToMinorUnits converts a major-unit amount to integer minor units (rupees → paise).
// Sub-paise residue is rounded half away from zero.
// Examples: 1050.00 → 105000, 10.005 → 1001, 0 → 0
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts integer minor units back to a major-unit Decimal.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// FormatAmount renders a major-unit amount with two decimals, the format
// WooCommerce expects for price and total fields.
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// ParseCents converts decimal string amounts (major units) to minor units.
// Examples: "99.00" → 9900, "1234.56" → 123456, "" → 0
func ParseCents(s string) int64 {
	return ToMinorUnits(ParseAmount(s))
}
