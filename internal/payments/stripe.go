package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
	pkgstripe "github.com/angelmondragon/eventpass-backend/pkg/stripe"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
)

// StripeIntentClient exposes the PaymentIntent calls the gateway needs.
type StripeIntentClient interface {
	Create(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeIntentWrapper struct{}

// NewStripeIntentClient wraps the configured Stripe client so the gateway can be tested.
func NewStripeIntentClient(api *pkgstripe.Client) StripeIntentClient {
	if api == nil {
		return nil
	}
	return &stripeIntentWrapper{}
}

func (w *stripeIntentWrapper) Create(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.New(params)
}

func (w *stripeIntentWrapper) Get(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.Get(id, params)
}

// StripeGateway settles card payments through PaymentIntents. The intent id is
// the verify reference; the merchant reference rides in metadata.
type StripeGateway struct {
	intents StripeIntentClient
}

func NewStripeGateway(intents StripeIntentClient) (*StripeGateway, error) {
	if intents == nil {
		return nil, fmt.Errorf("stripe intent client required")
	}
	return &StripeGateway{intents: intents}, nil
}

func (g *StripeGateway) Provider() enums.PaymentProvider {
	return enums.PaymentProviderStripe
}

func (g *StripeGateway) Initialize(ctx context.Context, req InitializeRequest) (Session, error) {
	if err := req.validate(); err != nil {
		return Session{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment request")
	}
	params := &stripe.PaymentIntentParams{
		Amount:       stripe.Int64(req.AmountMinor),
		Currency:     stripe.String(strings.ToLower(req.Currency.String())),
		ReceiptEmail: stripe.String(strings.TrimSpace(req.Email)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for k, v := range req.Metadata.toMap() {
		params.AddMetadata(k, v)
	}
	params.AddMetadata("reference", req.Reference)
	params.SetIdempotencyKey(req.Reference)

	intent, err := g.intents.Create(ctx, params)
	if err != nil {
		return Session{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}
	return Session{
		Provider:     enums.PaymentProviderStripe,
		Reference:    intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

func (g *StripeGateway) Verify(ctx context.Context, reference string) (Outcome, error) {
	if strings.TrimSpace(reference) == "" {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	intent, err := g.intents.Get(ctx, reference, &stripe.PaymentIntentParams{})
	if err != nil {
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch payment intent")
	}
	return OutcomeFromStripeIntent(intent), nil
}

// OutcomeFromStripeIntent maps an intent status to an outcome.
func OutcomeFromStripeIntent(intent *stripe.PaymentIntent) Outcome {
	if intent == nil {
		return Outcome{Kind: enums.PaymentOutcomePending, Provider: enums.PaymentProviderStripe}
	}
	var out Outcome
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		amount := intent.AmountReceived
		if amount == 0 {
			amount = intent.Amount
		}
		out = Success(enums.PaymentProviderStripe, intent.ID, amount, enums.Currency(strings.ToUpper(string(intent.Currency))))
	case stripe.PaymentIntentStatusCanceled:
		out = Cancelled(enums.PaymentProviderStripe, intent.ID)
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if intent.LastPaymentError != nil {
			out = Failed(enums.PaymentProviderStripe, intent.ID, intent.LastPaymentError.Msg)
		} else {
			out = Pending(enums.PaymentProviderStripe, intent.ID)
		}
	default:
		out = Pending(enums.PaymentProviderStripe, intent.ID)
	}
	out.SessionID = intent.Metadata["sessionId"]
	return out
}

// OutcomeFromStripeEvent extracts the outcome of a payment_intent webhook. ok
// is false for events the checkout does not act on.
func OutcomeFromStripeEvent(event *stripe.Event) (Outcome, bool, error) {
	if event == nil || event.Data == nil {
		return Outcome{}, false, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded,
		stripe.EventTypePaymentIntentPaymentFailed,
		stripe.EventTypePaymentIntentCanceled:
	default:
		return Outcome{}, false, nil
	}
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return Outcome{}, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
	}
	out := OutcomeFromStripeIntent(&intent)
	if event.Type == stripe.EventTypePaymentIntentPaymentFailed && out.Kind != enums.PaymentOutcomeFailed {
		msg := "payment failed"
		if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
			msg = intent.LastPaymentError.Msg
		}
		out = Failed(enums.PaymentProviderStripe, intent.ID, msg)
		out.SessionID = intent.Metadata["sessionId"]
	}
	return out, true, nil
}
