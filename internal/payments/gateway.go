package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	"github.com/google/uuid"
)

// Metadata travels with the payment so webhooks can be tied back to the
// checkout session.
type Metadata struct {
	EventID      string `json:"eventId"`
	CustomerName string `json:"customerName"`
	Phone        string `json:"phone"`
	OrderType    string `json:"orderType"`
	SessionID    string `json:"sessionId"`
}

func (m Metadata) toMap() map[string]string {
	return map[string]string{
		"eventId":      m.EventID,
		"customerName": m.CustomerName,
		"phone":        m.Phone,
		"orderType":    m.OrderType,
		"sessionId":    m.SessionID,
	}
}

// InitializeRequest opens a hosted payment session for an already reconciled
// total.
type InitializeRequest struct {
	AmountMinor int64
	Currency    enums.Currency
	Email       string
	Reference   string
	Metadata    Metadata
}

func (r InitializeRequest) validate() error {
	if r.AmountMinor <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	if !r.Currency.IsValid() {
		return fmt.Errorf("invalid currency %q", r.Currency)
	}
	if strings.TrimSpace(r.Email) == "" {
		return fmt.Errorf("email required")
	}
	if strings.TrimSpace(r.Reference) == "" {
		return fmt.Errorf("reference required")
	}
	return nil
}

// Session is what the client needs to complete payment on the provider.
type Session struct {
	Provider         enums.PaymentProvider `json:"provider"`
	Reference        string                `json:"reference"`
	AuthorizationURL string                `json:"authorizationUrl,omitempty"`
	AccessCode       string                `json:"accessCode,omitempty"`
	ClientSecret     string                `json:"clientSecret,omitempty"`
}

// Gateway proves that a payment happened. It never creates orders.
type Gateway interface {
	Provider() enums.PaymentProvider
	Initialize(ctx context.Context, req InitializeRequest) (Session, error)
	Verify(ctx context.Context, reference string) (Outcome, error)
}

// NewReference returns a fresh merchant reference for a payment session.
func NewReference() string {
	return "evp_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Registry resolves a gateway by provider.
type Registry struct {
	gateways map[enums.PaymentProvider]Gateway
	fallback enums.PaymentProvider
}

func NewRegistry(defaultProvider enums.PaymentProvider, gateways ...Gateway) (*Registry, error) {
	r := &Registry{gateways: make(map[enums.PaymentProvider]Gateway, len(gateways)), fallback: defaultProvider}
	for _, gw := range gateways {
		if gw == nil {
			continue
		}
		r.gateways[gw.Provider()] = gw
	}
	if len(r.gateways) == 0 {
		return nil, fmt.Errorf("at least one payment gateway required")
	}
	if _, ok := r.gateways[defaultProvider]; !ok {
		return nil, fmt.Errorf("default payment provider %q not configured", defaultProvider)
	}
	return r, nil
}

// Get returns the gateway for provider, or the default when provider is empty.
func (r *Registry) Get(provider enums.PaymentProvider) (Gateway, error) {
	if provider == "" {
		provider = r.fallback
	}
	gw, ok := r.gateways[provider]
	if !ok {
		return nil, fmt.Errorf("payment provider %q not configured", provider)
	}
	return gw, nil
}

func (r *Registry) Default() enums.PaymentProvider {
	return r.fallback
}
