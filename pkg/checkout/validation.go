package checkout

import (
	"fmt"
	"strings"

	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
)

// Readiness describes the buyer input the contact and pay steps depend on.
type Readiness struct {
	Email          string
	Phone          string
	TermsAccepted  bool
	HasMerch       bool
	ShippingMethod string
	State          string
	City           string
}

// MissingField names one input that still blocks the checkout.
type MissingField struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

const (
	shippingPickup   = "pickup"
	shippingDelivery = "delivery"
)

// MissingContactFields lists what keeps the contact step incomplete: email and
// phone always, plus a shipping choice and a full delivery address when the
// cart carries merchandise.
func MissingContactFields(in Readiness) []MissingField {
	var missing []MissingField
	if strings.TrimSpace(in.Email) == "" {
		missing = append(missing, MissingField{Field: "email", Reason: "required"})
	}
	if strings.TrimSpace(in.Phone) == "" {
		missing = append(missing, MissingField{Field: "phone", Reason: "required"})
	}
	if !in.HasMerch {
		return missing
	}
	switch in.ShippingMethod {
	case shippingPickup:
	case shippingDelivery:
		if strings.TrimSpace(in.State) == "" {
			missing = append(missing, MissingField{Field: "shipping.address.state", Reason: "required for delivery"})
		}
		if strings.TrimSpace(in.City) == "" {
			missing = append(missing, MissingField{Field: "shipping.address.city", Reason: "required for delivery"})
		}
	default:
		missing = append(missing, MissingField{Field: "shipping.method", Reason: "choose pickup or delivery"})
	}
	return missing
}

// MissingPayFields is MissingContactFields plus the terms acceptance.
func MissingPayFields(in Readiness) []MissingField {
	missing := MissingContactFields(in)
	if !in.TermsAccepted {
		missing = append(missing, MissingField{Field: "termsAccepted", Reason: "terms must be accepted"})
	}
	return missing
}

// ValidatePayReadiness returns a validation error listing every missing input.
func ValidatePayReadiness(in Readiness) error {
	missing := MissingPayFields(in)
	if len(missing) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("checkout is missing %d required field(s)", len(missing))).WithDetails(map[string]any{
		"missing": missing,
	})
}
