package cart

import (
	"strings"

	"github.com/angelmondragon/eventpass-backend/pkg/enums"
)

// ContactInfo is who receives the tickets and order notifications.
type ContactInfo struct {
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Complete reports whether email and phone are present.
func (c ContactInfo) Complete() bool {
	return strings.TrimSpace(c.Email) != "" && strings.TrimSpace(c.Phone) != ""
}

func (c ContactInfo) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

// NormalizedEmail is the lower-cased, trimmed email.
func (c ContactInfo) NormalizedEmail() string {
	return strings.ToLower(strings.TrimSpace(c.Email))
}

type Address struct {
	State      string `json:"state"`
	City       string `json:"city,omitempty"`
	Name       string `json:"name,omitempty"`
	Phone      string `json:"phone,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
}

// ShippingSelection is how merch lines reach the buyer.
type ShippingSelection struct {
	Method  enums.ShippingMethod `json:"method,omitempty"`
	Address *Address             `json:"address,omitempty"`
}

// Chosen reports whether a shipping method was picked.
func (s ShippingSelection) Chosen() bool {
	return s.Method.IsValid()
}

// DestinationState returns the delivery state, empty for pickup or when unset.
func (s ShippingSelection) DestinationState() string {
	if s.Method != enums.ShippingMethodDelivery || s.Address == nil {
		return ""
	}
	return strings.TrimSpace(s.Address.State)
}

// DestinationCity returns the delivery city, empty for pickup or when unset.
func (s ShippingSelection) DestinationCity() string {
	if s.Method != enums.ShippingMethodDelivery || s.Address == nil {
		return ""
	}
	return strings.TrimSpace(s.Address.City)
}

// Complete reports whether shipping is fully specified: pickup, or delivery
// with both state and city.
func (s ShippingSelection) Complete() bool {
	switch s.Method {
	case enums.ShippingMethodPickup:
		return true
	case enums.ShippingMethodDelivery:
		return s.DestinationState() != "" && s.DestinationCity() != ""
	default:
		return false
	}
}
