package checkout

import (
	"time"

	"github.com/angelmondragon/eventpass-backend/internal/cart"
	"github.com/angelmondragon/eventpass-backend/internal/payments"
	"github.com/angelmondragon/eventpass-backend/internal/pricing"
	"github.com/angelmondragon/eventpass-backend/internal/shipping"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	"github.com/google/uuid"
)

// View is the client-facing rendering of a session.
type View struct {
	ID              string                        `json:"id"`
	EventID         uuid.UUID                     `json:"eventId"`
	Revision        int64                         `json:"revision"`
	Step            enums.CheckoutStep            `json:"step"`
	Cart            cart.Cart                     `json:"cart"`
	Totals          pricing.Totals                `json:"totals"`
	Shipping        []shipping.VendorShippingInfo `json:"shipping"`
	ShippingPending bool                          `json:"shippingPending"`
	Warnings        []string                      `json:"warnings"`
	Steps           Evaluation                    `json:"steps"`
	Payment         *PaymentView                  `json:"payment,omitempty"`
	Finalize        FinalizeInfo                  `json:"finalize"`
	UpdatedAt       time.Time                     `json:"updatedAt"`
}

// PaymentView is what the client needs to complete or resume the payment.
type PaymentView struct {
	Provider         enums.PaymentProvider `json:"provider"`
	Reference        string                `json:"reference"`
	AuthorizationURL string                `json:"authorizationUrl,omitempty"`
	AccessCode       string                `json:"accessCode,omitempty"`
	ClientSecret     string                `json:"clientSecret,omitempty"`
	AmountMinor      int64                 `json:"amountMinor"`
	Currency         enums.Currency        `json:"currency"`
	Outcome          *payments.Outcome     `json:"outcome,omitempty"`
}

func (s *Service) view(session *Session) *View {
	_, settled := shipping.CalculateTotalShippingFee(session.Shipping)
	v := &View{
		ID:              session.ID,
		EventID:         session.EventID,
		Revision:        session.Revision,
		Step:            session.Step,
		Cart:            session.Cart,
		Totals:          session.Totals,
		Shipping:        session.Shipping,
		ShippingPending: !settled,
		Warnings:        shipping.Warnings(session.Shipping),
		Steps:           s.steps.Evaluate(session),
		Finalize:        session.Finalize,
		UpdatedAt:       session.UpdatedAt,
	}
	if v.Cart.Items == nil {
		v.Cart.Items = []cart.Item{}
	}
	if v.Shipping == nil {
		v.Shipping = []shipping.VendorShippingInfo{}
	}
	if p := session.Payment; p != nil {
		v.Payment = &PaymentView{
			Provider:         p.Provider,
			Reference:        p.InitRef,
			AuthorizationURL: p.AuthorizationURL,
			AccessCode:       p.AccessCode,
			ClientSecret:     p.ClientSecret,
			AmountMinor:      p.AmountMinor,
			Currency:         p.Currency,
			Outcome:          p.Outcome,
		}
	}
	return v
}
