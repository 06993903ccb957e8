package pricing

import (
	"fmt"

	"github.com/angelmondragon/eventpass-backend/internal/cart"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
)

// Line is the per-line audit breakdown.
type Line struct {
	Key            string             `json:"key"`
	Type           enums.CartItemType `json:"_type"`
	Qty            int                `json:"qty"`
	UnitPriceMinor int64              `json:"unitPriceMinor"`
	SubtotalMinor  int64              `json:"lineSubtotalMinor"`
	FeeMinor       int64              `json:"feeMinor"`
	FeeBorneBy     enums.FeeBearer    `json:"feeBorneBy"`
}

// MaxTotalMinor bounds every line subtotal, fee and running sum.
const MaxTotalMinor = int64(1) << 50

// Totals is the priced cart. TotalDueMinor always equals
// ItemsSubtotalMinor + BuyerFeesMinor + ShippingFeeMinor.
type Totals struct {
	Currency           enums.Currency `json:"currency"`
	ItemsSubtotalMinor int64          `json:"itemsSubtotalMinor"`
	BuyerFeesMinor     int64          `json:"buyerFeesMinor"`
	AbsorbedFeesMinor  int64          `json:"absorbedFeesMinor"`
	ShippingFeeMinor   int64          `json:"shippingFeeMinor"`
	TotalDueMinor      int64          `json:"totalDueMinor"`
	Lines              []Line         `json:"lines"`
}

// WithShipping returns a copy of t carrying the shipping fee.
func (t Totals) WithShipping(shippingMinor int64) Totals {
	t.ShippingFeeMinor = shippingMinor
	t.TotalDueMinor = t.ItemsSubtotalMinor + t.BuyerFeesMinor + shippingMinor
	return t
}

// Calculator prices carts with a fixed fee policy.
type Calculator struct {
	policy          FeePolicy
	defaultCurrency enums.Currency
}

func NewCalculator(policy FeePolicy, defaultCurrency enums.Currency) (*Calculator, error) {
	if policy == nil {
		return nil, fmt.Errorf("fee policy required")
	}
	if !defaultCurrency.IsValid() {
		return nil, fmt.Errorf("invalid default currency %q", defaultCurrency)
	}
	return &Calculator{policy: policy, defaultCurrency: defaultCurrency}, nil
}

// CalculateFees prices items without shipping. It has no side effects.
func (c *Calculator) CalculateFees(items []cart.Item) (Totals, error) {
	totals := Totals{Currency: c.defaultCurrency, Lines: []Line{}}
	if len(items) == 0 {
		return totals, nil
	}

	totals.Currency = items[0].Currency
	for _, it := range items {
		if it.Currency != totals.Currency {
			return Totals{}, pkgerrors.New(pkgerrors.CodeCurrencyMismatch, "cart items must share one currency").
				WithDetails(map[string]any{"expected": totals.Currency, "found": it.Currency, "lineKey": it.Key()})
		}

		subtotal, ok := lineSubtotal(it)
		if !ok {
			return Totals{}, amountError(it.Key())
		}
		line := Line{
			Key:            it.Key(),
			Type:           it.Type,
			Qty:            it.Qty,
			UnitPriceMinor: it.UnitPriceMinor,
			SubtotalMinor:  subtotal,
			FeeBorneBy:     enums.FeeBearerNone,
		}
		if it.IsTicket() {
			line.FeeMinor = c.policy.LineFee(line.SubtotalMinor, it.Qty)
			if line.FeeMinor < 0 || line.FeeMinor > MaxTotalMinor {
				return Totals{}, amountError(it.Key())
			}
			if it.TransferFeesToGuest {
				line.FeeBorneBy = enums.FeeBearerBuyer
				totals.BuyerFeesMinor += line.FeeMinor
			} else {
				line.FeeBorneBy = enums.FeeBearerVendor
				totals.AbsorbedFeesMinor += line.FeeMinor
			}
		}

		totals.ItemsSubtotalMinor += line.SubtotalMinor
		if totals.ItemsSubtotalMinor+totals.BuyerFeesMinor > MaxTotalMinor || totals.AbsorbedFeesMinor > MaxTotalMinor {
			return Totals{}, amountError(it.Key())
		}
		totals.Lines = append(totals.Lines, line)
	}

	return totals.WithShipping(0), nil
}

// lineSubtotal multiplies price by quantity, failing instead of wrapping.
func lineSubtotal(it cart.Item) (int64, bool) {
	if it.Qty < 0 || it.UnitPriceMinor < 0 {
		return 0, false
	}
	if it.Qty == 0 {
		return 0, true
	}
	if it.UnitPriceMinor > MaxTotalMinor/int64(it.Qty) {
		return 0, false
	}
	return it.UnitPriceMinor * int64(it.Qty), true
}

func amountError(lineKey string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "cart total exceeds the supported amount").
		WithDetails(map[string]any{"lineKey": lineKey, "maxTotalMinor": MaxTotalMinor})
}
