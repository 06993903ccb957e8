package shipping

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/eventpass-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
)

func TestTableProviderLooksUpStateWithFallback(t *testing.T) {
	p, err := NewTableProvider(map[string]int64{"lagos": 120000, "*": 200000})
	if err != nil {
		t.Fatalf("new table provider: %v", err)
	}

	resp, err := p.Quote(context.Background(), QuoteRequest{VendorID: "v1", DestState: " Lagos "})
	if err != nil || resp.FeeMinor != 120000 || resp.VendorID != "v1" {
		t.Fatalf("unexpected lagos quote %+v err=%v", resp, err)
	}
	resp, err = p.Quote(context.Background(), QuoteRequest{VendorID: "v1", DestState: "Kano"})
	if err != nil || resp.FeeMinor != 200000 {
		t.Fatalf("unexpected fallback quote %+v err=%v", resp, err)
	}
}

func TestTableProviderWithoutFallbackFails(t *testing.T) {
	p, err := NewTableProvider(map[string]int64{"LAGOS": 120000})
	if err != nil {
		t.Fatalf("new table provider: %v", err)
	}
	_, err = p.Quote(context.Background(), QuoteRequest{VendorID: "v1", DestState: "Kano"})
	if pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeShippingQuote {
		t.Fatalf("expected shipping quote error, got %v", err)
	}
}

func TestNewTableProviderRejectsNegativeRates(t *testing.T) {
	if _, err := NewTableProvider(map[string]int64{"*": -1}); err == nil {
		t.Fatal("expected negative rate error")
	}
}

func TestHTTPProviderQuote(t *testing.T) {
	var got QuoteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(QuoteResponse{VendorID: got.VendorID, FeeMinor: 99000})
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(srv.URL, "key", WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new http provider: %v", err)
	}
	resp, err := p.Quote(context.Background(), QuoteRequest{
		VendorID:  "v1",
		Items:     []QuoteItem{{MerchItemID: "hoodie", Qty: 2, Size: "L"}},
		DestState: "Lagos",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.FeeMinor != 99000 || resp.VendorID != "v1" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if got.DestState != "Lagos" || len(got.Items) != 1 || got.Items[0].Size != "L" {
		t.Fatalf("unexpected request payload %+v", got)
	}
}

func TestHTTPProviderMapsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(srv.URL, "")
	if err != nil {
		t.Fatalf("new http provider: %v", err)
	}
	_, err = p.Quote(context.Background(), QuoteRequest{VendorID: "v1", DestState: "Lagos"})
	if pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeShippingQuote {
		t.Fatalf("expected shipping quote error, got %v", err)
	}
}

func TestNewProviderSelectsKind(t *testing.T) {
	p, err := NewProvider(config.ShippingConfig{Provider: "table", FlatTable: map[string]int64{"*": 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(*TableProvider); !ok {
		t.Fatalf("expected table provider, got %T", p)
	}
	if _, err := NewProvider(config.ShippingConfig{Provider: "http"}); err == nil {
		t.Fatal("expected missing rates url error")
	}
	if _, err := NewProvider(config.ShippingConfig{Provider: "pigeon"}); err == nil {
		t.Fatal("expected unknown provider error")
	}
}
