package shipping

import (
	"strings"

	"github.com/angelmondragon/eventpass-backend/internal/cart"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
)

// UnassignedVendorID groups merch lines that carry no brand.
const UnassignedVendorID = "unassigned"

// VendorGrouping is the merch owned by one vendor.
type VendorGrouping struct {
	VendorID string      `json:"vendorId"`
	Items    []cart.Item `json:"items"`
}

// Quote is the shipping fee for one vendor. FeeMinor is nil while the fee is
// still being calculated.
type Quote struct {
	FeeMinor *int64            `json:"feeMinor"`
	Status   enums.QuoteStatus `json:"status"`
	Warning  string            `json:"warning,omitempty"`
}

// Pending reports whether the fee is not known yet.
func (q Quote) Pending() bool {
	return q.FeeMinor == nil
}

// VendorShippingInfo is a vendor grouping together with its quote.
type VendorShippingInfo struct {
	VendorID string      `json:"vendorId"`
	Items    []cart.Item `json:"items"`
	Quote    Quote       `json:"quote"`
}

// GetVendorsFromCart partitions the merch lines by brand, in the order each
// brand first appears. Ticket lines never take part in shipping.
func GetVendorsFromCart(items []cart.Item) []VendorGrouping {
	index := make(map[string]int)
	groups := make([]VendorGrouping, 0)
	for _, it := range items {
		if !it.IsMerch() {
			continue
		}
		vendorID := strings.TrimSpace(it.BrandID)
		if vendorID == "" {
			vendorID = UnassignedVendorID
		}
		idx, ok := index[vendorID]
		if !ok {
			idx = len(groups)
			index[vendorID] = idx
			groups = append(groups, VendorGrouping{VendorID: vendorID})
		}
		groups[idx].Items = append(groups[idx].Items, it)
	}
	return groups
}

// CalculateTotalShippingFee sums the vendor fees. ok is false while any vendor
// is still pending, in which case the sum only covers the settled vendors.
func CalculateTotalShippingFee(vendors []VendorShippingInfo) (int64, bool) {
	var total int64
	ok := true
	for _, v := range vendors {
		if v.Quote.Pending() {
			ok = false
			continue
		}
		total += *v.Quote.FeeMinor
	}
	return total, ok
}

// Warnings lists the per-vendor warnings to surface alongside the totals.
func Warnings(vendors []VendorShippingInfo) []string {
	out := make([]string, 0)
	for _, v := range vendors {
		if v.Quote.Warning != "" {
			out = append(out, v.Quote.Warning)
		}
	}
	return out
}

func feePtr(v int64) *int64 {
	return &v
}
