package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
)

const responseBodyReadLimit int64 = 1024

var errRatesURLRequired = errors.New("shipping rates url is required")

// HTTPProvider quotes against a JSON rates API.
type HTTPProvider struct {
	httpClient *http.Client
	url        string
	apiKey     string
}

// HTTPOption configures optional provider behavior.
type HTTPOption func(*HTTPProvider)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(p *HTTPProvider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

func NewHTTPProvider(ratesURL, apiKey string, opts ...HTTPOption) (*HTTPProvider, error) {
	trimmed := strings.TrimSpace(ratesURL)
	if trimmed == "" {
		return nil, errRatesURLRequired
	}
	p := &HTTPProvider{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		url:        trimmed,
		apiKey:     strings.TrimSpace(apiKey),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

func (p *HTTPProvider) Quote(ctx context.Context, req QuoteRequest) (QuoteResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return QuoteResponse{}, pkgerrors.Wrap(pkgerrors.CodeShippingQuote, err, "marshal shipping quote request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return QuoteResponse{}, pkgerrors.Wrap(pkgerrors.CodeShippingQuote, err, "build shipping quote request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return QuoteResponse{}, pkgerrors.Wrap(pkgerrors.CodeShippingQuote, err, "execute shipping quote request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return QuoteResponse{}, pkgerrors.Wrap(pkgerrors.CodeShippingQuote, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "shipping quote request failed")
	}

	var out QuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return QuoteResponse{}, pkgerrors.Wrap(pkgerrors.CodeShippingQuote, err, "decode shipping quote response")
	}
	if out.VendorID != "" && out.VendorID != req.VendorID {
		return QuoteResponse{}, pkgerrors.New(pkgerrors.CodeShippingQuote, fmt.Sprintf("quote returned for vendor %q, requested %q", out.VendorID, req.VendorID))
	}
	if out.FeeMinor < 0 {
		return QuoteResponse{}, pkgerrors.New(pkgerrors.CodeShippingQuote, "shipping quote fee must not be negative")
	}
	out.VendorID = req.VendorID
	return out, nil
}
