package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
	"github.com/angelmondragon/eventpass-backend/pkg/paystack"
)

type paystackAPI interface {
	InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeResponse, error)
	VerifyTransaction(ctx context.Context, reference string) (*paystack.Transaction, error)
}

// PaystackGateway opens Paystack hosted checkouts and verifies their result.
type PaystackGateway struct {
	api paystackAPI
}

func NewPaystackGateway(api paystackAPI) (*PaystackGateway, error) {
	if api == nil {
		return nil, fmt.Errorf("paystack client required")
	}
	return &PaystackGateway{api: api}, nil
}

func (g *PaystackGateway) Provider() enums.PaymentProvider {
	return enums.PaymentProviderPaystack
}

func (g *PaystackGateway) Initialize(ctx context.Context, req InitializeRequest) (Session, error) {
	if err := req.validate(); err != nil {
		return Session{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment request")
	}
	resp, err := g.api.InitializeTransaction(ctx, paystack.InitializeRequest{
		Email:     strings.TrimSpace(req.Email),
		Amount:    req.AmountMinor,
		Currency:  req.Currency.String(),
		Reference: req.Reference,
		Metadata:  req.Metadata.toMap(),
	})
	if err != nil {
		return Session{}, err
	}
	reference := resp.Reference
	if reference == "" {
		reference = req.Reference
	}
	return Session{
		Provider:         enums.PaymentProviderPaystack,
		Reference:        reference,
		AuthorizationURL: resp.AuthorizationURL,
		AccessCode:       resp.AccessCode,
	}, nil
}

func (g *PaystackGateway) Verify(ctx context.Context, reference string) (Outcome, error) {
	tx, err := g.api.VerifyTransaction(ctx, reference)
	if err != nil {
		return Outcome{}, err
	}
	return OutcomeFromPaystackTransaction(*tx), nil
}

// OutcomeFromPaystackTransaction maps a transaction status to an outcome.
func OutcomeFromPaystackTransaction(tx paystack.Transaction) Outcome {
	var out Outcome
	switch strings.ToLower(tx.Status) {
	case paystack.StatusSuccess:
		out = Success(enums.PaymentProviderPaystack, tx.Reference, tx.Amount, enums.Currency(strings.ToUpper(tx.Currency)))
	case paystack.StatusAbandoned:
		out = Cancelled(enums.PaymentProviderPaystack, tx.Reference)
	case paystack.StatusFailed, paystack.StatusReversed:
		out = Failed(enums.PaymentProviderPaystack, tx.Reference, tx.GatewayResponse)
	default:
		out = Pending(enums.PaymentProviderPaystack, tx.Reference)
	}
	out.SessionID = tx.Metadata["sessionId"]
	return out
}

// OutcomeFromPaystackEvent extracts the outcome of a webhook delivery. ok is
// false for events the checkout does not act on.
func OutcomeFromPaystackEvent(evt *paystack.Event) (Outcome, bool) {
	if evt == nil || evt.Event != paystack.EventChargeSuccess {
		return Outcome{}, false
	}
	return OutcomeFromPaystackTransaction(evt.Data), true
}
