package enums

import "fmt"

// PaymentProvider identifies the hosted payment gateway.
type PaymentProvider string

const (
	PaymentProviderPaystack PaymentProvider = "paystack"
	PaymentProviderStripe   PaymentProvider = "stripe"
)

var validPaymentProviders = []PaymentProvider{
	PaymentProviderPaystack,
	PaymentProviderStripe,
}

// String implements fmt.Stringer.
func (v PaymentProvider) String() string {
	return string(v)
}

// IsValid reports whether the value is a known PaymentProvider.
func (v PaymentProvider) IsValid() bool {
	for _, candidate := range validPaymentProviders {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParsePaymentProvider converts raw input into a PaymentProvider.
func ParsePaymentProvider(value string) (PaymentProvider, error) {
	for _, candidate := range validPaymentProviders {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment provider %q", value)
}
