package domain

import (
	"github.com/shopspring/decimal"
)

// decimal places per supported gateway currency
var currencyExponents = map[string]int32{
	"CHF": 2,
	"EUR": 2,
}

// ToMinorUnits converts a decimal amount into the gateway's integer minor
// units. Unsupported currencies are rejected rather than guessed at.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	exp, ok := currencyExponents[currency]
	if !ok {
		return 0, NewUnsupportedCurrencyError(currency)
	}
	return amount.Shift(exp).Round(0).IntPart(), nil
}

// FromMinorUnits converts gateway minor units back into a decimal amount.
func FromMinorUnits(minor int64, currency string) (decimal.Decimal, error) {
	exp, ok := currencyExponents[currency]
	if !ok {
		return decimal.Zero, NewUnsupportedCurrencyError(currency)
	}
	return decimal.NewFromInt(minor).Shift(-exp), nil
}

// SupportedCurrency reports whether the gateway can settle in the currency.
func SupportedCurrency(currency string) bool {
	_, ok := currencyExponents[currency]
	return ok
}
