package types

import "strings"

// CurrencyConfig holds the ISO currency metadata needed to round a Decimal
// amount to its minor unit (spec.md §4.2: "final conversion to minor units
// uses half-even rounding with exponent taken from ISO currency data").
type CurrencyConfig struct {
	Symbol    string
	Precision int32
}

// currencyTable covers the currencies exercised by the engine's tests and
// examples; it is deliberately not exhaustive (tax-rate/ISO maintenance is
// a Non-goal per spec.md §1).
var currencyTable = map[string]CurrencyConfig{
	"usd": {Symbol: "$", Precision: 2},
	"eur": {Symbol: "€", Precision: 2},
	"gbp": {Symbol: "£", Precision: 2},
	"inr": {Symbol: "₹", Precision: 2},
	"jpy": {Symbol: "¥", Precision: 0},
	"bhd": {Symbol: "BD", Precision: 3},
}

func normalizeCurrency(currency string) string {
	return strings.ToLower(strings.TrimSpace(currency))
}

func GetCurrencyConfig(currency string) CurrencyConfig {
	if cfg, ok := currencyTable[normalizeCurrency(currency)]; ok {
		return cfg
	}
	return CurrencyConfig{Symbol: strings.ToUpper(currency), Precision: 2}
}

func GetCurrencyPrecision(currency string) int32 {
	return GetCurrencyConfig(currency).Precision
}

func GetCurrencySymbol(currency string) string {
	return GetCurrencyConfig(currency).Symbol
}

// IsMatchingCurrency compares two ISO currency codes case-insensitively.
func IsMatchingCurrency(a, b string) bool {
	return normalizeCurrency(a) == normalizeCurrency(b)
}
