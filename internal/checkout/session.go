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

// Session is the server-held state of one checkout. It is passed explicitly
// through the services; nothing about a checkout lives in process memory.
type Session struct {
	ID          string                        `json:"id"`
	EventID     uuid.UUID                     `json:"eventId"`
	BuyerUserID *uuid.UUID                    `json:"buyerUserId,omitempty"`
	Revision    int64                         `json:"revision"`
	Step        enums.CheckoutStep            `json:"step"`
	Cart        cart.Cart                     `json:"cart"`
	Totals      pricing.Totals                `json:"totals"`
	Shipping    []shipping.VendorShippingInfo `json:"shipping"`
	Payment     *PaymentState                 `json:"payment,omitempty"`
	Finalize    FinalizeInfo                  `json:"finalize"`
	CreatedAt   time.Time                     `json:"createdAt"`
	UpdatedAt   time.Time                     `json:"updatedAt"`
}

// PaymentState is frozen when the pay step opens a gateway session. Amount and
// totals are never recomputed afterwards.
type PaymentState struct {
	Provider         enums.PaymentProvider `json:"provider"`
	InitRef          string                `json:"initRef"`
	VerifyRef        string                `json:"verifyRef"`
	AuthorizationURL string                `json:"authorizationUrl,omitempty"`
	AccessCode       string                `json:"accessCode,omitempty"`
	ClientSecret     string                `json:"clientSecret,omitempty"`
	AmountMinor      int64                 `json:"amountMinor"`
	Currency         enums.Currency        `json:"currency"`
	Totals           pricing.Totals        `json:"totals"`
	KeyTime          time.Time             `json:"keyTime"`
	IdempotencyKey   string                `json:"idempotencyKey"`
	Outcome          *payments.Outcome     `json:"outcome,omitempty"`
	OpenedAt         time.Time             `json:"openedAt"`
}

// Open reports whether a gateway session exists without a terminal outcome.
func (p *PaymentState) Open() bool {
	return p != nil && (p.Outcome == nil || !p.Outcome.Terminal())
}

// Succeeded reports whether the gateway captured this payment.
func (p *PaymentState) Succeeded() bool {
	return p != nil && p.Outcome != nil && p.Outcome.Kind == enums.PaymentOutcomeSuccess
}

// Matches reports whether reference names this payment session.
func (p *PaymentState) Matches(reference string) bool {
	if p == nil || reference == "" {
		return false
	}
	return reference == p.InitRef || reference == p.VerifyRef
}

// FinalizeInfo is the finalize state machine: idle → finalizing → done|failed.
type FinalizeInfo struct {
	State            enums.FinalizeState `json:"state"`
	OrderID          *uuid.UUID          `json:"orderId,omitempty"`
	PaymentReference string              `json:"paymentReference,omitempty"`
	Error            string              `json:"error,omitempty"`
	StartedAt        *time.Time          `json:"startedAt,omitempty"`
}

// NewSession starts an empty checkout for eventID on the tickets step.
func NewSession(eventID uuid.UUID, buyerUserID *uuid.UUID, currency enums.Currency, now time.Time) *Session {
	return &Session{
		ID:          uuid.NewString(),
		EventID:     eventID,
		BuyerUserID: buyerUserID,
		Step:        enums.CheckoutStepTickets,
		Totals:      pricing.Totals{Currency: currency, Lines: []pricing.Line{}},
		Shipping:    []shipping.VendorShippingInfo{},
		Finalize:    FinalizeInfo{State: enums.FinalizeStateIdle},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Completed reports whether the checkout produced an order.
func (s *Session) Completed() bool {
	return s.Finalize.State == enums.FinalizeStateDone && s.Finalize.OrderID != nil
}

// complete collapses the session to the produced order. The cart and every
// payment detail are dropped; only the order id survives.
func (s *Session) complete(orderID uuid.UUID, now time.Time) {
	s.Cart.Clear()
	s.Totals = pricing.Totals{Currency: s.Totals.Currency, Lines: []pricing.Line{}}
	s.Shipping = []shipping.VendorShippingInfo{}
	s.Payment = nil
	s.Step = enums.CheckoutStepSuccess
	id := orderID
	s.Finalize = FinalizeInfo{State: enums.FinalizeStateDone, OrderID: &id, PaymentReference: s.Finalize.PaymentReference}
	s.UpdatedAt = now
}
