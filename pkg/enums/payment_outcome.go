package enums

import "fmt"

// PaymentOutcome is the terminal result reported for a payment session.
type PaymentOutcome string

const (
	PaymentOutcomeSuccess   PaymentOutcome = "success"
	PaymentOutcomeCancelled PaymentOutcome = "cancelled"
	PaymentOutcomeFailed    PaymentOutcome = "failed"
	PaymentOutcomePending   PaymentOutcome = "pending"
)

var validPaymentOutcomes = []PaymentOutcome{
	PaymentOutcomeSuccess,
	PaymentOutcomeCancelled,
	PaymentOutcomeFailed,
	PaymentOutcomePending,
}

// String implements fmt.Stringer.
func (v PaymentOutcome) String() string {
	return string(v)
}

// IsValid reports whether the value is a known PaymentOutcome.
func (v PaymentOutcome) IsValid() bool {
	for _, candidate := range validPaymentOutcomes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParsePaymentOutcome converts raw input into a PaymentOutcome.
func ParsePaymentOutcome(value string) (PaymentOutcome, error) {
	for _, candidate := range validPaymentOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment outcome %q", value)
}
