package enums

import "fmt"

// CartItemType discriminates ticket lines from merchandise lines.
type CartItemType string

const (
	CartItemTypeTicket CartItemType = "ticket"
	CartItemTypeMerch  CartItemType = "merch"
)

var validCartItemTypes = []CartItemType{
	CartItemTypeTicket,
	CartItemTypeMerch,
}

// String implements fmt.Stringer.
func (v CartItemType) String() string {
	return string(v)
}

// IsValid reports whether the value is a known CartItemType.
func (v CartItemType) IsValid() bool {
	for _, candidate := range validCartItemTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseCartItemType converts raw input into a CartItemType.
func ParseCartItemType(value string) (CartItemType, error) {
	for _, candidate := range validCartItemTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cart item type %q", value)
}
