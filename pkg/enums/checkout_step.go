package enums

import "fmt"

// CheckoutStep is a position in the linear checkout flow.
type CheckoutStep string

const (
	CheckoutStepTickets CheckoutStep = "tickets"
	CheckoutStepMerch   CheckoutStep = "merch"
	CheckoutStepContact CheckoutStep = "contact"
	CheckoutStepPay     CheckoutStep = "pay"
	CheckoutStepSuccess CheckoutStep = "success"
)

var validCheckoutSteps = []CheckoutStep{
	CheckoutStepTickets,
	CheckoutStepMerch,
	CheckoutStepContact,
	CheckoutStepPay,
	CheckoutStepSuccess,
}

// String implements fmt.Stringer.
func (v CheckoutStep) String() string {
	return string(v)
}

// IsValid reports whether the value is a known CheckoutStep.
func (v CheckoutStep) IsValid() bool {
	for _, candidate := range validCheckoutSteps {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseCheckoutStep converts raw input into a CheckoutStep.
func ParseCheckoutStep(value string) (CheckoutStep, error) {
	for _, candidate := range validCheckoutSteps {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout step %q", value)
}

// Index returns the position of the step in the flow, or -1 when unknown.
func (v CheckoutStep) Index() int {
	for i, candidate := range validCheckoutSteps {
		if candidate == v {
			return i
		}
	}
	return -1
}

// OrderedCheckoutSteps returns the steps in navigation order.
func OrderedCheckoutSteps() []CheckoutStep {
	out := make([]CheckoutStep, len(validCheckoutSteps))
	copy(out, validCheckoutSteps)
	return out
}
