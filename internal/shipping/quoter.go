package shipping

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/eventpass-backend/internal/cart"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
	"github.com/angelmondragon/eventpass-backend/pkg/metrics"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// DefaultQuoteTimeout bounds a single vendor quote when none is configured.
const DefaultQuoteTimeout = 5 * time.Second

// Quoter fans shipping quotes out to the provider, one call per vendor.
type Quoter struct {
	provider Provider
	timeout  time.Duration
	logg     *logger.Logger
	metrics  *metrics.CheckoutMetrics
}

func NewQuoter(provider Provider, timeout time.Duration, logg *logger.Logger, m *metrics.CheckoutMetrics) (*Quoter, error) {
	if provider == nil {
		return nil, fmt.Errorf("shipping provider required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if timeout <= 0 {
		timeout = DefaultQuoteTimeout
	}
	return &Quoter{provider: provider, timeout: timeout, logg: logg, metrics: m}, nil
}

// QuoteShippingForAllVendors quotes every vendor for the selection.
//
// Pickup short-circuits to a zero fee without calling the provider. Delivery
// without a destination state leaves every fee pending. Otherwise vendors are
// quoted concurrently; a vendor whose quote fails or times out falls back to a
// zero fee with a warning and never affects the others. The only error
// returned is the parent context's.
func (q *Quoter) QuoteShippingForAllVendors(ctx context.Context, vendors []VendorGrouping, selection cart.ShippingSelection) ([]VendorShippingInfo, error) {
	infos := make([]VendorShippingInfo, len(vendors))
	for i, v := range vendors {
		infos[i] = VendorShippingInfo{VendorID: v.VendorID, Items: v.Items}
	}
	if len(vendors) == 0 {
		return infos, nil
	}

	if selection.Method == enums.ShippingMethodPickup {
		for i := range infos {
			infos[i].Quote = Quote{FeeMinor: feePtr(0), Status: enums.QuoteStatusSkipped}
		}
		return infos, nil
	}

	state := selection.DestinationState()
	if state == "" {
		for i := range infos {
			infos[i].Quote = Quote{Status: enums.QuoteStatusPending}
		}
		return infos, nil
	}
	city := selection.DestinationCity()

	failures := make([]error, len(vendors))
	var g errgroup.Group
	for i := range vendors {
		g.Go(func() error {
			infos[i].Quote, failures[i] = q.quoteVendor(ctx, vendors[i], state, city)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := multierr.Combine(failures...); err != nil {
		logCtx := q.logg.WithFields(ctx, map[string]any{
			"failed_vendors": len(multierr.Errors(err)),
			"vendors":        len(vendors),
			"error":          err.Error(),
		})
		q.logg.Warn(logCtx, "shipping quotes degraded to fallback")
	}
	return infos, nil
}

func (q *Quoter) quoteVendor(ctx context.Context, vendor VendorGrouping, state, city string) (Quote, error) {
	quoteCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	start := time.Now()
	resp, err := q.provider.Quote(quoteCtx, QuoteRequest{
		VendorID:  vendor.VendorID,
		Items:     quoteItems(vendor.Items),
		DestState: state,
		DestCity:  city,
	})
	if err == nil && resp.FeeMinor < 0 {
		err = fmt.Errorf("negative fee %d", resp.FeeMinor)
	}
	if err != nil {
		q.metrics.ObserveQuote(string(enums.QuoteStatusFallback), time.Since(start))
		fallback := Quote{
			FeeMinor: feePtr(0),
			Status:   enums.QuoteStatusFallback,
			Warning:  fmt.Sprintf("shipping for vendor %s could not be quoted and is not included in the total", vendor.VendorID),
		}
		return fallback, pkgerrors.Wrap(pkgerrors.CodeShippingQuote, err, fmt.Sprintf("quote vendor %s", vendor.VendorID))
	}
	q.metrics.ObserveQuote(string(enums.QuoteStatusQuoted), time.Since(start))
	return Quote{FeeMinor: feePtr(resp.FeeMinor), Status: enums.QuoteStatusQuoted}, nil
}

func quoteItems(items []cart.Item) []QuoteItem {
	out := make([]QuoteItem, 0, len(items))
	for _, it := range items {
		out = append(out, QuoteItem{
			MerchItemID: it.MerchItemID,
			Qty:         it.Qty,
			Size:        it.Size,
			Color:       it.Color,
		})
	}
	return out
}
