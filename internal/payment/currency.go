package payment

import (
	"math"
	"strings"
)

// Currencies Stripe charges in whole units.
var zeroDecimalCurrencies = map[string]struct{}{
	"bif": {}, "clp": {}, "djf": {}, "gnf": {}, "jpy": {}, "kmf": {}, "krw": {}, "mga": {},
	"pyg": {}, "rwf": {}, "ugx": {}, "vnd": {}, "vuv": {}, "xaf": {}, "xof": {}, "xpf": {},
}

// Currencies with three minor digits. Stripe wants the last digit to be 0.
var threeDecimalCurrencies = map[string]struct{}{
	"bhd": {}, "jod": {}, "kwd": {}, "omr": {}, "tnd": {},
}

func normalizeCurrency(currency string) string {
	return strings.ToLower(strings.TrimSpace(currency))
}

// IsZeroDecimal reports whether amounts in currency have no fractional part.
func IsZeroDecimal(currency string) bool {
	_, ok := zeroDecimalCurrencies[normalizeCurrency(currency)]
	return ok
}

// ToMinorUnits converts a decimal amount in currency to the integer unit
// amount Stripe expects.
func ToMinorUnits(amount float64, currency string) int64 {
	cur := normalizeCurrency(currency)
	if _, ok := zeroDecimalCurrencies[cur]; ok {
		return int64(math.Round(amount))
	}
	if _, ok := threeDecimalCurrencies[cur]; ok {
		return int64(math.Round(amount*100)) * 10
	}
	return int64(math.Round(amount * 100))
}
