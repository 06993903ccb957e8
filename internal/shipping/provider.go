package shipping

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/eventpass-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
)

const (
	ProviderKindTable = "table"
	ProviderKindHTTP  = "http"

	fallbackState = "*"
)

// QuoteItem is a merch line as sent to a rates provider.
type QuoteItem struct {
	MerchItemID string `json:"merchItemId"`
	Qty         int    `json:"qty"`
	Size        string `json:"size,omitempty"`
	Color       string `json:"color,omitempty"`
}

// QuoteRequest asks for the fee of shipping one vendor's items.
type QuoteRequest struct {
	VendorID  string      `json:"vendorId"`
	Items     []QuoteItem `json:"items"`
	DestState string      `json:"destState"`
	DestCity  string      `json:"destCity,omitempty"`
}

type QuoteResponse struct {
	VendorID string `json:"vendorId"`
	FeeMinor int64  `json:"feeMinor"`
}

// Provider quotes shipping for a single vendor.
type Provider interface {
	Quote(ctx context.Context, req QuoteRequest) (QuoteResponse, error)
}

// NewProvider builds the provider selected by cfg.
func NewProvider(cfg config.ShippingConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderKindTable:
		return NewTableProvider(cfg.FlatTable)
	case ProviderKindHTTP:
		return NewHTTPProvider(cfg.RatesURL, cfg.APIKey)
	default:
		return nil, fmt.Errorf("unknown shipping provider %q", cfg.Provider)
	}
}

// TableProvider charges a flat per-vendor fee looked up by destination state.
type TableProvider struct {
	rates map[string]int64
}

func NewTableProvider(rates map[string]int64) (*TableProvider, error) {
	if len(rates) == 0 {
		return nil, fmt.Errorf("shipping flat table required")
	}
	normalized := make(map[string]int64, len(rates))
	for state, fee := range rates {
		if fee < 0 {
			return nil, fmt.Errorf("shipping rate for %q must not be negative", state)
		}
		normalized[normalizeState(state)] = fee
	}
	return &TableProvider{rates: normalized}, nil
}

func (p *TableProvider) Quote(ctx context.Context, req QuoteRequest) (QuoteResponse, error) {
	if err := ctx.Err(); err != nil {
		return QuoteResponse{}, err
	}
	if fee, ok := p.rates[normalizeState(req.DestState)]; ok {
		return QuoteResponse{VendorID: req.VendorID, FeeMinor: fee}, nil
	}
	if fee, ok := p.rates[fallbackState]; ok {
		return QuoteResponse{VendorID: req.VendorID, FeeMinor: fee}, nil
	}
	return QuoteResponse{}, pkgerrors.New(pkgerrors.CodeShippingQuote, fmt.Sprintf("no shipping rate for state %q", req.DestState))
}

func normalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}
