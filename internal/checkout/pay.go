package checkout

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/eventpass-backend/internal/checkout/idempotency"
	"github.com/angelmondragon/eventpass-backend/internal/orders"
	"github.com/angelmondragon/eventpass-backend/internal/payments"
	"github.com/angelmondragon/eventpass-backend/internal/shipping"
	"github.com/angelmondragon/eventpass-backend/pkg/checkout"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
)

const orderTypeEventCheckout = "event_checkout"

var errPaymentNotFinal = errors.New("payment not final")

// PaymentResult is the client's report after returning from the gateway.
// Only a cancellation is taken at face value; anything else is verified with
// the provider.
type PaymentResult struct {
	Outcome   enums.PaymentOutcome
	Reference string
	Message   string
}

// Pay enters the pay step: it freezes the reconciled totals and the key time,
// then opens a gateway session for exactly that amount. Calling Pay while a
// payment is already open returns that payment.
func (s *Service) Pay(ctx context.Context, id string, provider enums.PaymentProvider) (*View, error) {
	session, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithSessionID(ctx, session.ID)

	switch {
	case session.Completed():
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout already completed")
	case session.Finalize.State != enums.FinalizeStateIdle:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout is being finalized")
	case session.Payment.Open():
		if provider == "" || provider == session.Payment.Provider {
			return s.view(session), nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "a payment with another provider is in progress")
	case session.Payment.Succeeded():
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout is already paid")
	}

	if session.Step != enums.CheckoutStepPay {
		if err := s.steps.CanMoveTo(session, enums.CheckoutStepPay); err != nil {
			return nil, err
		}
	}
	if !session.Cart.HasTickets() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "complete the tickets step first")
	}
	if err := checkout.ValidatePayReadiness(readiness(&session.Cart)); err != nil {
		return nil, err
	}

	totals, err := s.calc.CalculateFees(session.Cart.Items)
	if err != nil {
		return nil, err
	}
	if shippingQuoting(session) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "shipping is still being calculated")
	}
	shippingFee, _ := shipping.CalculateTotalShippingFee(session.Shipping)
	totals = totals.WithShipping(shippingFee)
	if totals.TotalDueMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to pay")
	}

	gateway, err := s.gateways.Get(provider)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported payment provider")
	}

	keyTime := s.now()
	lines := session.Cart.FinalizeLines()
	key := idempotency.BuildKey(session.EventID.String(), session.Cart.Contact.Email, lines, keyTime)
	reference := payments.NewReference()

	opened, err := gateway.Initialize(ctx, payments.InitializeRequest{
		AmountMinor: totals.TotalDueMinor,
		Currency:    totals.Currency,
		Email:       session.Cart.Contact.NormalizedEmail(),
		Reference:   reference,
		Metadata: payments.Metadata{
			EventID:      session.EventID.String(),
			CustomerName: session.Cart.Contact.FullName(),
			Phone:        strings.TrimSpace(session.Cart.Contact.Phone),
			OrderType:    orderTypeEventCheckout,
			SessionID:    session.ID,
		},
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open payment session")
	}

	loaded := session.Revision
	session.Step = enums.CheckoutStepPay
	session.Totals = totals
	session.Payment = &PaymentState{
		Provider:         gateway.Provider(),
		InitRef:          reference,
		VerifyRef:        opened.Reference,
		AuthorizationURL: opened.AuthorizationURL,
		AccessCode:       opened.AccessCode,
		ClientSecret:     opened.ClientSecret,
		AmountMinor:      totals.TotalDueMinor,
		Currency:         totals.Currency,
		Totals:           totals,
		KeyTime:          keyTime,
		IdempotencyKey:   key,
		OpenedAt:         keyTime,
	}
	session.UpdatedAt = keyTime
	ok, err := s.store.Save(ctx, session, loaded)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The gateway session is left to expire unpaid.
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "checkout changed while opening the payment; retry")
	}

	s.logg.Info(s.logg.WithPaymentReference(ctx, string(gateway.Provider()), reference), "payment session opened")
	return s.view(session), nil
}

// HandlePaymentResult records the outcome the client reports for the open
// payment. A success finalizes the order before returning.
func (s *Service) HandlePaymentResult(ctx context.Context, id string, result PaymentResult) (*View, error) {
	session, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Completed() {
		return s.view(session), nil
	}
	p := session.Payment
	if p == nil || !p.Matches(result.Reference) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment reference does not match the checkout").
			WithDetails(map[string]any{"reference": result.Reference})
	}
	ctx = s.logg.WithPaymentReference(s.logg.WithSessionID(ctx, session.ID), string(p.Provider), p.InitRef)

	var outcome payments.Outcome
	switch {
	case p.Outcome != nil && p.Outcome.Terminal() && p.Outcome.Kind != enums.PaymentOutcomeCancelled:
		outcome = *p.Outcome
	case result.Outcome == enums.PaymentOutcomeCancelled:
		outcome = payments.Cancelled(p.Provider, p.VerifyRef)
	default:
		gateway, err := s.gateways.Get(p.Provider)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "payment provider unavailable")
		}
		outcome, err = gateway.Verify(ctx, p.VerifyRef)
		if err != nil {
			if typed := pkgerrors.As(err); typed != nil {
				return nil, typed
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify payment")
		}
	}

	updated, err := s.applyOutcome(ctx, id, outcome, true)
	if err != nil {
		return nil, err
	}
	return s.view(updated), nil
}

// HandleWebhookOutcome applies a provider-signed outcome. A captured payment
// that no live checkout can finalize goes to the finalize failure ledger;
// other unmatched outcomes are logged and dropped.
func (s *Service) HandleWebhookOutcome(ctx context.Context, outcome payments.Outcome) error {
	ctx = s.logg.WithPaymentReference(ctx, string(outcome.Provider), outcome.Reference)
	if outcome.SessionID == "" {
		s.logg.Warn(ctx, "webhook outcome without checkout session")
		return nil
	}
	ctx = s.logg.WithSessionID(ctx, outcome.SessionID)

	session, err := s.store.Get(ctx, outcome.SessionID)
	if err != nil {
		if pkgerrors.As(err).Code() == pkgerrors.CodeNotFound {
			return s.recordUnmatched(ctx, nil, outcome, "checkout session expired before the payment was finalized")
		}
		return err
	}
	if session.Completed() {
		// the finalized payment is kept under its verify reference, which is
		// what provider webhooks carry
		if session.Finalize.PaymentReference != "" && session.Finalize.PaymentReference != outcome.Reference {
			return s.recordUnmatched(ctx, session, outcome, "checkout already completed with payment "+session.Finalize.PaymentReference)
		}
		return nil
	}
	if !session.Payment.Matches(outcome.Reference) {
		return s.recordUnmatched(ctx, session, outcome, "payment reference does not match the open payment")
	}

	_, err = s.applyOutcome(ctx, session.ID, outcome, s.webhookFinalize)
	if err != nil && pkgerrors.As(err).Code() == pkgerrors.CodePaymentFailed {
		return nil
	}
	return err
}

// recordUnmatched hands a captured payment this checkout will not finalize to
// the failure ledger. Any other outcome is only logged.
func (s *Service) recordUnmatched(ctx context.Context, session *Session, outcome payments.Outcome, reason string) error {
	if outcome.Kind != enums.PaymentOutcomeSuccess {
		s.logg.Warn(ctx, reason)
		return nil
	}
	unmatched := orders.UnmatchedPayment{SessionID: outcome.SessionID, Payment: outcome, Reason: reason}
	if session != nil {
		unmatched.SessionID = session.ID
		unmatched.EventID = session.EventID
		unmatched.BuyerEmail = session.Cart.Contact.Email
		if session.Payment.Matches(outcome.Reference) {
			unmatched.IdempotencyKey = session.Payment.IdempotencyKey
		}
	}
	return s.finalizer.RecordUnmatchedPayment(ctx, unmatched)
}

// applyOutcome records the first terminal outcome of the open payment and
// runs its handler. A capture replaces a cancel the client reported, since
// the gateway never confirmed that cancel. Any other later outcome changes
// nothing.
func (s *Service) applyOutcome(ctx context.Context, id string, outcome payments.Outcome, finalize bool) (*Session, error) {
	recorded := false
	var settledAs enums.PaymentOutcome
	session, err := s.mutate(ctx, id, func(session *Session) error {
		recorded, settledAs = false, ""
		if session.Completed() {
			return errUnchanged
		}
		p := session.Payment
		if p == nil || !p.Matches(outcome.Reference) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment reference does not match the checkout")
		}
		if p.Outcome != nil && p.Outcome.Terminal() {
			capturedAfterCancel := p.Outcome.Kind == enums.PaymentOutcomeCancelled && outcome.Kind == enums.PaymentOutcomeSuccess
			if !capturedAfterCancel {
				settledAs = p.Outcome.Kind
				return errUnchanged
			}
		}
		if !outcome.Terminal() {
			return errPaymentNotFinal
		}
		o := outcome
		p.Outcome = &o
		recorded = true
		return nil
	})
	if errors.Is(err, errPaymentNotFinal) {
		return s.store.Get(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	if session.Completed() {
		return session, nil
	}
	if settledAs != "" && settledAs != outcome.Kind {
		if err := s.recordUnmatched(ctx, session, outcome, "payment already settled as "+string(settledAs)); err != nil {
			return nil, err
		}
		if outcome.Kind == enums.PaymentOutcomeSuccess {
			return session, nil
		}
	}
	settled := *session.Payment.Outcome
	if recorded {
		s.metrics.IncPaymentOutcome(string(settled.Provider), string(settled.Kind))
		s.logg.Info(ctx, "payment outcome recorded: "+string(settled.Kind))
	}

	var result *Session
	err = settled.Dispatch(payments.OutcomeHandler{
		OnSuccess: func(o payments.Outcome) error {
			if !finalize {
				result = session
				return nil
			}
			var ferr error
			result, ferr = s.finalize(ctx, id, o)
			return ferr
		},
		OnCancelled: func(payments.Outcome) error {
			result = session
			return nil
		},
		OnFailed: func(o payments.Outcome) error {
			result = session
			return pkgerrors.New(pkgerrors.CodePaymentFailed, o.Message).
				WithDetails(map[string]any{"reference": o.Reference, "provider": o.Provider})
		},
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// finalize drives the session's finalize state machine around the order
// finalizer. A concurrent caller sees the in-flight state instead of running
// finalize a second time.
func (s *Service) finalize(ctx context.Context, id string, outcome payments.Outcome) (*Session, error) {
	var storedErr error
	started := false
	session, err := s.mutate(ctx, id, func(session *Session) error {
		started, storedErr = false, nil
		now := s.now()
		switch session.Finalize.State {
		case enums.FinalizeStateDone:
			return errUnchanged
		case enums.FinalizeStateFailed:
			storedErr = finalizeFailedError(session)
			return errUnchanged
		case enums.FinalizeStateFinalizing:
			if session.Finalize.StartedAt != nil && now.Sub(*session.Finalize.StartedAt) < s.lockTTL {
				return errUnchanged
			}
		}
		reference := outcome.Reference
		if session.Payment != nil && session.Payment.VerifyRef != "" {
			reference = session.Payment.VerifyRef
		}
		session.Finalize = FinalizeInfo{
			State:            enums.FinalizeStateFinalizing,
			PaymentReference: reference,
			StartedAt:        &now,
		}
		started = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if storedErr != nil {
		return session, storedErr
	}
	if !started {
		return session, nil
	}

	p := session.Payment
	result, ferr := s.finalizer.Finalize(ctx, orders.FinalizeInput{
		SessionID:      session.ID,
		IdempotencyKey: p.IdempotencyKey,
		EventID:        session.EventID,
		BuyerUserID:    session.BuyerUserID,
		Contact:        session.Cart.Contact,
		Provider:       p.Provider,
		ProviderRef:    orders.ProviderRef{InitRef: p.InitRef, VerifyRef: p.VerifyRef},
		LineItems:      session.Cart.FinalizeLines(),
		ClientTotals:   p.Totals,
		Items:          session.Cart.Items,
		Shipping:       session.Cart.Shipping,
		ShippingInfos:  session.Shipping,
		Payment:        outcome,
	})
	if errors.Is(ferr, orders.ErrFinalizeInProgress) {
		return session, nil
	}
	if ferr != nil {
		message := ferr.Error()
		if typed := pkgerrors.As(ferr); typed != nil {
			message = typed.Message()
		}
		if _, err := s.mutate(ctx, id, func(session *Session) error {
			session.Finalize.State = enums.FinalizeStateFailed
			session.Finalize.Error = message
			return nil
		}); err != nil {
			s.logg.Error(ctx, "failed to store finalize failure on session", err)
		}
		return nil, ferr
	}

	return s.mutate(ctx, id, func(session *Session) error {
		session.complete(result.OrderID, s.now())
		return nil
	})
}

func finalizeFailedError(session *Session) error {
	return pkgerrors.New(pkgerrors.CodeFinalize, "order could not be completed after payment").
		WithDetails(map[string]any{
			"paymentReference": session.Finalize.PaymentReference,
			"error":            session.Finalize.Error,
		})
}
