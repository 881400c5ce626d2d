package billing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 code. Amounts are never converted between currencies.
type Currency string

const (
	CurrencyVND Currency = "VND"
	CurrencyUSD Currency = "USD"
)

var zeroDecimalCurrencies = map[Currency]struct{}{
	"VND": {},
	"JPY": {},
	"KRW": {},
	"CLP": {},
	"IDR": {},
}

// NormalizeCurrency upper-cases the code and defaults to VND.
func NormalizeCurrency(value string) Currency {
	value = strings.ToUpper(strings.TrimSpace(value))
	if value == "" {
		return CurrencyVND
	}
	return Currency(value)
}

// Precision returns the number of minor-unit decimal places.
func (c Currency) Precision() int32 {
	if _, ok := zeroDecimalCurrencies[Currency(strings.ToUpper(string(c)))]; ok {
		return 0
	}
	return 2
}

// RoundMinor rounds half-up to the currency minor unit.
// Amounts reaching this function are non-negative, where half-away-from-zero equals half-up.
func (c Currency) RoundMinor(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(c.Precision())
}

// Format renders an amount with the currency precision.
func (c Currency) Format(amount decimal.Decimal) string {
	return amount.StringFixed(c.Precision())
}
