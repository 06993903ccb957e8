package cart

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
)

// DefaultMaxLines bounds the number of distinct lines in a cart.
const DefaultMaxLines = 50

// Cart holds the buyer's selections for one checkout. It is owned by the
// checkout session and mutated only through its methods.
type Cart struct {
	Items         []Item            `json:"items"`
	Contact       ContactInfo       `json:"contact"`
	Shipping      ShippingSelection `json:"shipping"`
	TermsAccepted bool              `json:"termsAccepted"`
}

// Currency returns the currency shared by the cart lines.
func (c *Cart) Currency() (enums.Currency, bool) {
	if c == nil || len(c.Items) == 0 {
		return "", false
	}
	return c.Items[0].Currency, true
}

// Add validates item and appends it, merging quantities when a line with the
// same key and unit price already exists. Lines in a different currency, or
// at a different price than the existing line, are rejected.
func (c *Cart) Add(item Item, maxLines int) error {
	item = item.Normalize()
	if err := item.Validate(); err != nil {
		return err
	}
	if cur, ok := c.Currency(); ok && cur != item.Currency {
		return pkgerrors.New(pkgerrors.CodeCurrencyMismatch, fmt.Sprintf("cart is priced in %s, cannot add %s", cur, item.Currency)).
			WithDetails(map[string]any{"cartCurrency": cur, "itemCurrency": item.Currency})
	}
	if idx := c.indexOf(item.Key()); idx >= 0 {
		merged := c.Items[idx]
		if merged.UnitPriceMinor != item.UnitPriceMinor {
			return pkgerrors.New(pkgerrors.CodeValidation, "unit price differs from the line already in the cart").
				WithDetails(map[string]any{"field": "unitPriceMinor", "lineKey": merged.Key(), "cartUnitPriceMinor": merged.UnitPriceMinor})
		}
		merged.Qty += item.Qty
		if merged.Qty > MaxQty {
			return fieldError("qty", fmt.Sprintf("qty must not exceed %d", MaxQty))
		}
		c.Items[idx] = merged
		return nil
	}
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	if len(c.Items) >= maxLines {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("cart cannot hold more than %d lines", maxLines))
	}
	c.Items = append(c.Items, item)
	return nil
}

// UpdateQty sets the quantity of the line with key. A zero quantity removes it.
func (c *Cart) UpdateQty(key string, qty int) error {
	if qty < 0 {
		return fieldError("qty", "qty must not be negative")
	}
	if qty > MaxQty {
		return fieldError("qty", fmt.Sprintf("qty must not exceed %d", MaxQty))
	}
	idx := c.indexOf(key)
	if idx < 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found").WithDetails(map[string]any{"lineKey": key})
	}
	if qty == 0 {
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
		return nil
	}
	c.Items[idx].Qty = qty
	return nil
}

// Remove drops the line with key.
func (c *Cart) Remove(key string) error {
	return c.UpdateQty(key, 0)
}

// Clear empties the cart, keeping nothing from the previous checkout.
func (c *Cart) Clear() {
	*c = Cart{}
}

func (c *Cart) indexOf(key string) int {
	for i, it := range c.Items {
		if it.Key() == key {
			return i
		}
	}
	return -1
}

// HasTickets reports whether at least one ticket line has a positive quantity.
func (c *Cart) HasTickets() bool {
	for _, it := range c.Items {
		if it.IsTicket() && it.Qty > 0 {
			return true
		}
	}
	return false
}

func (c *Cart) HasMerch() bool {
	for _, it := range c.Items {
		if it.IsMerch() {
			return true
		}
	}
	return false
}

// MerchItems returns the vendor-owned lines.
func (c *Cart) MerchItems() []Item {
	out := make([]Item, 0, len(c.Items))
	for _, it := range c.Items {
		if it.IsMerch() {
			out = append(out, it)
		}
	}
	return out
}

// FinalizeLine is a cart line reduced to identity and quantity, without
// display or price fields.
type FinalizeLine struct {
	Type         enums.CartItemType `json:"_type"`
	TicketTypeID string             `json:"ticketTypeId,omitempty"`
	MerchItemID  string             `json:"merchItemId,omitempty"`
	Qty          int                `json:"qty"`
	Size         string             `json:"size,omitempty"`
	Color        string             `json:"color,omitempty"`
}

// Serialize renders the line in a stable, order-independent textual form.
func (l FinalizeLine) Serialize() string {
	id := l.TicketTypeID
	if l.Type == enums.CartItemTypeMerch {
		id = l.MerchItemID
	}
	return strings.Join([]string{string(l.Type), id, strconv.Itoa(l.Qty), l.Size, l.Color}, "|")
}

// FinalizeLines normalizes every cart line for order finalization.
func (c *Cart) FinalizeLines() []FinalizeLine {
	out := make([]FinalizeLine, 0, len(c.Items))
	for _, it := range c.Items {
		out = append(out, LineFromItem(it))
	}
	return out
}

func LineFromItem(it Item) FinalizeLine {
	line := FinalizeLine{Type: it.Type, Qty: it.Qty}
	if it.IsTicket() {
		line.TicketTypeID = it.TicketTypeID
		return line
	}
	line.MerchItemID = it.MerchItemID
	line.Size = it.Size
	line.Color = it.Color
	return line
}

// SameLines reports whether two normalized line sets describe the same
// purchase regardless of order.
func SameLines(a, b []FinalizeLine) bool {
	if len(a) != len(b) {
		return false
	}
	as := serializeAll(a)
	bs := serializeAll(b)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func serializeAll(lines []FinalizeLine) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.Serialize())
	}
	sort.Strings(out)
	return out
}
