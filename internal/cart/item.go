package cart

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
)

// Per-line bounds. Together with the line limit they keep every cart total far
// inside int64.
const (
	MaxQty            = 10000
	MaxUnitPriceMinor = int64(100_000_000_000)
)

// Item is a single cart line. Type discriminates the ticket and merch variants;
// fields that do not belong to the variant are ignored.
type Item struct {
	Type           enums.CartItemType `json:"_type"`
	Qty            int                `json:"qty"`
	UnitPriceMinor int64              `json:"unitPriceMinor"`
	Currency       enums.Currency     `json:"currency"`

	// ticket variant
	TicketTypeID        string `json:"ticketTypeId,omitempty"`
	GroupSize           *int   `json:"groupSize,omitempty"`
	AdmitType           string `json:"admitType,omitempty"`
	TransferFeesToGuest bool   `json:"transferFeesToGuest,omitempty"`

	// merch variant
	MerchItemID string `json:"merchItemId,omitempty"`
	Size        string `json:"size,omitempty"`
	Color       string `json:"color,omitempty"`
	BrandID     string `json:"brandId,omitempty"`
	Name        string `json:"name,omitempty"`
}

func (i Item) IsTicket() bool { return i.Type == enums.CartItemTypeTicket }
func (i Item) IsMerch() bool  { return i.Type == enums.CartItemTypeMerch }

// Key identifies the line inside a cart: ticket:<ticketTypeId> or
// merch:<merchItemId>, with size and color appended for merch variants.
func (i Item) Key() string {
	if i.IsTicket() {
		return "ticket:" + i.TicketTypeID
	}
	key := "merch:" + i.MerchItemID
	if i.Size != "" || i.Color != "" {
		key += ":" + i.Size + ":" + i.Color
	}
	return key
}

// SubtotalMinor is unit price times quantity.
func (i Item) SubtotalMinor() int64 {
	return i.UnitPriceMinor * int64(i.Qty)
}

// Normalize trims identifiers and upper-cases the currency.
func (i Item) Normalize() Item {
	i.TicketTypeID = strings.TrimSpace(i.TicketTypeID)
	i.MerchItemID = strings.TrimSpace(i.MerchItemID)
	i.BrandID = strings.TrimSpace(i.BrandID)
	i.Size = strings.TrimSpace(i.Size)
	i.Color = strings.TrimSpace(i.Color)
	i.Currency = enums.Currency(strings.ToUpper(strings.TrimSpace(string(i.Currency))))
	if i.IsTicket() {
		i.MerchItemID, i.Size, i.Color, i.BrandID, i.Name = "", "", "", "", ""
	} else {
		i.TicketTypeID, i.GroupSize, i.AdmitType, i.TransferFeesToGuest = "", nil, "", false
	}
	return i
}

// Validate checks the invariants of a single line.
func (i Item) Validate() error {
	if !i.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "item type must be ticket or merch").
			WithDetails(map[string]any{"field": "_type", "value": i.Type})
	}
	switch i.Type {
	case enums.CartItemTypeTicket:
		if i.TicketTypeID == "" {
			return fieldError("ticketTypeId", "ticketTypeId is required")
		}
		if i.GroupSize != nil && *i.GroupSize <= 0 {
			return fieldError("groupSize", "groupSize must be positive")
		}
	case enums.CartItemTypeMerch:
		if i.MerchItemID == "" {
			return fieldError("merchItemId", "merchItemId is required")
		}
	}
	if i.Qty <= 0 {
		return fieldError("qty", "qty must be a positive integer")
	}
	if i.Qty > MaxQty {
		return fieldError("qty", fmt.Sprintf("qty must not exceed %d", MaxQty))
	}
	if i.UnitPriceMinor < 0 {
		return fieldError("unitPriceMinor", "unitPriceMinor must not be negative")
	}
	if i.UnitPriceMinor > MaxUnitPriceMinor {
		return fieldError("unitPriceMinor", fmt.Sprintf("unitPriceMinor must not exceed %d", MaxUnitPriceMinor))
	}
	if !i.Currency.IsValid() {
		return fieldError("currency", "currency is not supported")
	}
	return nil
}

func fieldError(field, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]any{"field": field})
}
