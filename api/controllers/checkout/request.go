package checkout

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/eventpass-backend/api/validators"
	"github.com/angelmondragon/eventpass-backend/internal/cart"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
)

const maxTextLen = 120

type createSessionRequest struct {
	EventID uuid.UUID `json:"eventId" validate:"required"`
}

type itemRequest struct {
	Type           string `json:"_type" validate:"required,oneof=ticket merch"`
	Qty            int    `json:"qty" validate:"required,min=1,max=10000"`
	UnitPriceMinor int64  `json:"unitPriceMinor" validate:"min=0,max=100000000000"`
	Currency       string `json:"currency" validate:"required,len=3"`

	TicketTypeID        string `json:"ticketTypeId,omitempty" validate:"required_if=Type ticket"`
	GroupSize           *int   `json:"groupSize,omitempty" validate:"omitempty,min=1"`
	AdmitType           string `json:"admitType,omitempty"`
	TransferFeesToGuest bool   `json:"transferFeesToGuest,omitempty"`

	MerchItemID string `json:"merchItemId,omitempty" validate:"required_if=Type merch"`
	Size        string `json:"size,omitempty"`
	Color       string `json:"color,omitempty"`
	BrandID     string `json:"brandId,omitempty"`
	Name        string `json:"name,omitempty"`
}

func (p itemRequest) toItem() cart.Item {
	return cart.Item{
		Type:                enums.CartItemType(p.Type),
		Qty:                 p.Qty,
		UnitPriceMinor:      p.UnitPriceMinor,
		Currency:            enums.Currency(p.Currency),
		TicketTypeID:        validators.SanitizeString(p.TicketTypeID, maxTextLen),
		GroupSize:           p.GroupSize,
		AdmitType:           validators.SanitizeString(p.AdmitType, maxTextLen),
		TransferFeesToGuest: p.TransferFeesToGuest,
		MerchItemID:         validators.SanitizeString(p.MerchItemID, maxTextLen),
		Size:                validators.SanitizeString(p.Size, maxTextLen),
		Color:               validators.SanitizeString(p.Color, maxTextLen),
		BrandID:             validators.SanitizeString(p.BrandID, maxTextLen),
		Name:                validators.SanitizeString(p.Name, maxTextLen),
	}
}

type updateItemRequest struct {
	Qty int `json:"qty" validate:"min=0,max=10000"`
}

type contactRequest struct {
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"omitempty,max=32"`
	FirstName string `json:"firstName" validate:"max=120"`
	LastName  string `json:"lastName" validate:"max=120"`
}

func (p contactRequest) toContact() cart.ContactInfo {
	return cart.ContactInfo{
		Email:     validators.SanitizeString(p.Email, 254),
		Phone:     validators.SanitizeString(p.Phone, 32),
		FirstName: validators.SanitizeString(p.FirstName, maxTextLen),
		LastName:  validators.SanitizeString(p.LastName, maxTextLen),
	}
}

type addressRequest struct {
	State      string `json:"state"`
	City       string `json:"city,omitempty"`
	Name       string `json:"name,omitempty"`
	Phone      string `json:"phone,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
}

type shippingRequest struct {
	Method  string          `json:"method" validate:"required,oneof=pickup delivery"`
	Address *addressRequest `json:"address,omitempty"`
}

func (p shippingRequest) toSelection() cart.ShippingSelection {
	sel := cart.ShippingSelection{Method: enums.ShippingMethod(p.Method)}
	if p.Address != nil {
		sel.Address = &cart.Address{
			State:      validators.SanitizeString(p.Address.State, maxTextLen),
			City:       validators.SanitizeString(p.Address.City, maxTextLen),
			Name:       validators.SanitizeString(p.Address.Name, maxTextLen),
			Phone:      validators.SanitizeString(p.Address.Phone, 32),
			PostalCode: validators.SanitizeString(p.Address.PostalCode, 16),
		}
	}
	return sel
}

type termsRequest struct {
	Accepted *bool `json:"accepted" validate:"required"`
}

type navigateRequest struct {
	Path string `json:"path" validate:"required,max=512"`
}

type payRequest struct {
	Provider string `json:"provider,omitempty" validate:"omitempty,oneof=paystack stripe"`
}

type paymentResultRequest struct {
	Outcome   string `json:"outcome" validate:"required,oneof=success cancelled failed pending"`
	Reference string `json:"reference" validate:"required,max=128"`
	Message   string `json:"message,omitempty" validate:"max=500"`
}
