package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseCents(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int64
	}{
		{"whole number", "99.00", 9900},
		{"with paise", "123.45", 12345},
		{"zero", "0.00", 0},
		{"empty string", "", 0},
		{"large value", "1234567.89", 123456789},
		{"no decimals", "100", 10000},
		{"one decimal", "99.9", 9990},
		{"small value", "0.01", 1},
		{"invalid string", "abc", 0},
		{"sub-paise rounds up", "10.005", 1001},
		{"sub-paise rounds down", "10.004", 1000},
		{"surrounding space", " 12.50 ", 1250},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCents(tt.input)
			if got != tt.want {
				t.Errorf("ParseCents(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		name  string
		input decimal.Decimal
		want  int64
	}{
		{"cart plus shipping", decimal.RequireFromString("1050.00"), 105000},
		{"two hundred thirty", decimal.NewFromInt(230), 23000},
		{"half paise", decimal.RequireFromString("0.005"), 1},
		{"zero", decimal.Zero, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToMinorUnits(tt.input); got != tt.want {
				t.Errorf("ToMinorUnits(%s) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFromMinorUnitsRoundTrip(t *testing.T) {
	amount := FromMinorUnits(105000)
	if FormatAmount(amount) != "1050.00" {
		t.Errorf("FormatAmount(FromMinorUnits(105000)) = %s, want 1050.00", FormatAmount(amount))
	}
	if ToMinorUnits(amount) != 105000 {
		t.Errorf("ToMinorUnits round trip = %d, want 105000", ToMinorUnits(amount))
	}
}
