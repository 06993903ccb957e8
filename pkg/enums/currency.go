package enums

import "fmt"

// Currency represents the ISO currency of cart lines and orders.
type Currency string

const (
	CurrencyNGN Currency = "NGN"
	CurrencyGHS Currency = "GHS"
	CurrencyKES Currency = "KES"
	CurrencyZAR Currency = "ZAR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
	CurrencyEUR Currency = "EUR"
)

var validCurrencies = []Currency{
	CurrencyNGN,
	CurrencyGHS,
	CurrencyKES,
	CurrencyZAR,
	CurrencyUSD,
	CurrencyGBP,
	CurrencyEUR,
}

// String implements fmt.Stringer.
func (v Currency) String() string {
	return string(v)
}

// IsValid reports whether the value is a known Currency.
func (v Currency) IsValid() bool {
	for _, candidate := range validCurrencies {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseCurrency converts raw input into a Currency.
func ParseCurrency(value string) (Currency, error) {
	for _, candidate := range validCurrencies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid currency %q", value)
}
