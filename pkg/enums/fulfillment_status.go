package enums

import "fmt"

// FulfillmentStatus tracks a vendor-owned order line after payment.
type FulfillmentStatus string

const (
	FulfillmentStatusUnfulfilled FulfillmentStatus = "unfulfilled"
	FulfillmentStatusShipped     FulfillmentStatus = "shipped"
	FulfillmentStatusDelivered   FulfillmentStatus = "delivered"
	FulfillmentStatusCancelled   FulfillmentStatus = "cancelled"
)

var validFulfillmentStatuses = []FulfillmentStatus{
	FulfillmentStatusUnfulfilled,
	FulfillmentStatusShipped,
	FulfillmentStatusDelivered,
	FulfillmentStatusCancelled,
}

// String implements fmt.Stringer.
func (v FulfillmentStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known FulfillmentStatus.
func (v FulfillmentStatus) IsValid() bool {
	for _, candidate := range validFulfillmentStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseFulfillmentStatus converts raw input into a FulfillmentStatus.
func ParseFulfillmentStatus(value string) (FulfillmentStatus, error) {
	for _, candidate := range validFulfillmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fulfillment status %q", value)
}

var fulfillmentTransitions = map[FulfillmentStatus][]FulfillmentStatus{
	FulfillmentStatusUnfulfilled: {FulfillmentStatusShipped, FulfillmentStatusCancelled},
	FulfillmentStatusShipped:     {FulfillmentStatusDelivered, FulfillmentStatusCancelled},
}

// CanTransitionTo reports whether fulfillment tooling may move a line from v to next.
func (v FulfillmentStatus) CanTransitionTo(next FulfillmentStatus) bool {
	for _, candidate := range fulfillmentTransitions[v] {
		if candidate == next {
			return true
		}
	}
	return false
}
