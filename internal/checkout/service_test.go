package checkout

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/angelmondragon/eventpass-backend/internal/cart"
	"github.com/angelmondragon/eventpass-backend/internal/checkout/idempotency"
	"github.com/angelmondragon/eventpass-backend/internal/events"
	"github.com/angelmondragon/eventpass-backend/internal/orders"
	"github.com/angelmondragon/eventpass-backend/internal/payments"
	"github.com/angelmondragon/eventpass-backend/internal/pricing"
	"github.com/angelmondragon/eventpass-backend/internal/shipping"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
	"github.com/google/uuid"
)

type fakeGateway struct {
	mu          sync.Mutex
	initialized []payments.InitializeRequest
	verify      payments.Outcome
	verifyCalls int
	verifyErr   error
}

func (g *fakeGateway) Provider() enums.PaymentProvider { return enums.PaymentProviderPaystack }

func (g *fakeGateway) Initialize(_ context.Context, req payments.InitializeRequest) (payments.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initialized = append(g.initialized, req)
	return payments.Session{
		Provider:         enums.PaymentProviderPaystack,
		Reference:        req.Reference,
		AuthorizationURL: "https://checkout.paystack.com/" + req.Reference,
		AccessCode:       "ac_" + req.Reference,
	}, nil
}

func (g *fakeGateway) Verify(_ context.Context, reference string) (payments.Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCalls++
	if g.verifyErr != nil {
		return payments.Outcome{}, g.verifyErr
	}
	out := g.verify
	out.Reference = reference
	return out, nil
}

type fakeFinalizer struct {
	mu        sync.Mutex
	inputs    []orders.FinalizeInput
	unmatched []orders.UnmatchedPayment
	err       error
	id        uuid.UUID
}

func (f *fakeFinalizer) Finalize(_ context.Context, in orders.FinalizeInput) (orders.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return orders.Result{}, f.err
	}
	return orders.Result{OrderID: f.id, Created: len(f.inputs) == 1}, nil
}

func (f *fakeFinalizer) RecordUnmatchedPayment(_ context.Context, p orders.UnmatchedPayment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unmatched = append(f.unmatched, p)
	return nil
}

func (f *fakeFinalizer) unmatchedPayments() []orders.UnmatchedPayment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]orders.UnmatchedPayment(nil), f.unmatched...)
}

func (f *fakeFinalizer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

type fakeEvents struct {
	known uuid.UUID
}

func (e fakeEvents) FetchEventByID(_ context.Context, id uuid.UUID) (*events.Event, error) {
	if id != e.known {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
	}
	return &events.Event{ID: id, Title: "Afrobeats Live", Currency: enums.CurrencyNGN}, nil
}

type hookQuoter struct {
	inner  shippingQuoter
	mu     sync.Mutex
	before func()
}

func (q *hookQuoter) QuoteShippingForAllVendors(ctx context.Context, vendors []shipping.VendorGrouping, selection cart.ShippingSelection) ([]shipping.VendorShippingInfo, error) {
	q.mu.Lock()
	hook := q.before
	q.before = nil
	q.mu.Unlock()
	if hook != nil {
		hook()
	}
	return q.inner.QuoteShippingForAllVendors(ctx, vendors, selection)
}

type serviceFixture struct {
	svc       *Service
	gateway   *fakeGateway
	finalizer *fakeFinalizer
	quoter    *hookQuoter
	eventID   uuid.UUID
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	store, err := NewRedisStore(newFakeBackend(), 0)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	calc, err := pricing.NewCalculator(pricing.FlatPlusPercent{FlatMinor: 10000, PercentBps: 150}, enums.CurrencyNGN)
	if err != nil {
		t.Fatalf("calculator: %v", err)
	}
	provider, err := shipping.NewTableProvider(map[string]int64{"lagos": 150000})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	inner, err := shipping.NewQuoter(provider, 0, logg, nil)
	if err != nil {
		t.Fatalf("quoter: %v", err)
	}
	quoter := &hookQuoter{inner: inner}
	gateway := &fakeGateway{}
	registry, err := payments.NewRegistry(enums.PaymentProviderPaystack, gateway)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	finalizer := &fakeFinalizer{id: uuid.New()}
	eventID := uuid.New()

	svc, err := NewService(ServiceParams{
		Store:           store,
		Calculator:      calc,
		Quoter:          quoter,
		Gateways:        registry,
		Finalizer:       finalizer,
		Events:          fakeEvents{known: eventID},
		Logger:          logg,
		WebhookFinalize: true,
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return serviceFixture{svc: svc, gateway: gateway, finalizer: finalizer, quoter: quoter, eventID: eventID}
}

// mustView fails the test on error and returns the view, so calls read
// mustView(t)(fx.svc.AddItem(...)).
func mustView(t *testing.T) func(*View, error) *View {
	return func(v *View, err error) *View {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return v
	}
}

func (fx serviceFixture) path(step string) string {
	return fmt.Sprintf("/checkout/%s/%s", fx.eventID, step)
}

// readyToPay builds the example cart up to the pay step.
func (fx serviceFixture) readyToPay(t *testing.T) *View {
	t.Helper()
	ctx := context.Background()
	v := mustView(t)(fx.svc.CreateSession(ctx, fx.eventID, nil))
	id := v.ID
	mustView(t)(fx.svc.AddItem(ctx, id, testTicket))
	mustView(t)(fx.svc.Navigate(ctx, id, fx.path("merch")))
	mustView(t)(fx.svc.AddItem(ctx, id, testHoodie))
	mustView(t)(fx.svc.Navigate(ctx, id, fx.path("contact")))
	mustView(t)(fx.svc.UpdateContact(ctx, id, cart.ContactInfo{Email: "Ada@Example.com", Phone: "+2348000000000", FirstName: "Ada", LastName: "Obi"}))
	mustView(t)(fx.svc.UpdateShipping(ctx, id, cart.ShippingSelection{Method: enums.ShippingMethodDelivery, Address: &cart.Address{State: "Lagos", City: "Ikeja"}}))
	return mustView(t)(fx.svc.SetTerms(ctx, id, true))
}

func TestCheckoutExampleTotals(t *testing.T) {
	fx := newServiceFixture(t)
	v := fx.readyToPay(t)

	if v.ShippingPending {
		t.Fatal("expected shipping quoted")
	}
	if v.Totals.ItemsSubtotalMinor != 3000000 || v.Totals.BuyerFeesMinor != 25000 ||
		v.Totals.ShippingFeeMinor != 150000 || v.Totals.TotalDueMinor != 3175000 {
		t.Fatalf("unexpected totals %+v", v.Totals)
	}
	if len(v.Shipping) != 1 || v.Shipping[0].VendorID != "v1" || v.Shipping[0].Quote.Status != enums.QuoteStatusQuoted {
		t.Fatalf("unexpected shipping %+v", v.Shipping)
	}
	if !v.Steps.PayCTAEnabled {
		t.Fatalf("expected pay enabled, missing %+v", v.Steps.Missing)
	}
}

func TestCheckoutPayAndFinalize(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	ready := fx.readyToPay(t)

	paying := mustView(t)(fx.svc.Pay(ctx, ready.ID, ""))
	if paying.Step != enums.CheckoutStepPay || paying.Payment == nil {
		t.Fatalf("expected open payment on pay step, got %+v", paying)
	}
	if paying.Payment.AmountMinor != 3175000 {
		t.Fatalf("expected frozen amount 3175000, got %d", paying.Payment.AmountMinor)
	}
	req := fx.gateway.initialized[0]
	if req.Email != "ada@example.com" || req.Metadata.SessionID != ready.ID || req.Metadata.EventID != fx.eventID.String() {
		t.Fatalf("unexpected initialize request %+v", req)
	}

	again := mustView(t)(fx.svc.Pay(ctx, ready.ID, ""))
	if again.Payment.Reference != paying.Payment.Reference || len(fx.gateway.initialized) != 1 {
		t.Fatal("re-entering pay must reuse the open payment")
	}

	fx.gateway.verify = payments.Success(enums.PaymentProviderPaystack, "", 3175000, enums.CurrencyNGN)
	done := mustView(t)(fx.svc.HandlePaymentResult(ctx, ready.ID, PaymentResult{
		Outcome:   enums.PaymentOutcomeSuccess,
		Reference: paying.Payment.Reference,
	}))

	if done.Step != enums.CheckoutStepSuccess || done.Finalize.State != enums.FinalizeStateDone {
		t.Fatalf("expected success step, got step=%s finalize=%+v", done.Step, done.Finalize)
	}
	if done.Finalize.OrderID == nil || *done.Finalize.OrderID != fx.finalizer.id {
		t.Fatalf("expected order id on session, got %+v", done.Finalize)
	}
	if len(done.Cart.Items) != 0 || done.Payment != nil {
		t.Fatal("completed session must keep only the order id")
	}

	in := fx.finalizer.inputs[0]
	if !idempotency.Valid(in.IdempotencyKey) || in.ClientTotals.TotalDueMinor != 3175000 || in.Payment.AmountMinor != 3175000 {
		t.Fatalf("unexpected finalize input %+v", in)
	}
	if len(in.LineItems) != 2 || len(in.ShippingInfos) != 1 {
		t.Fatalf("expected cart snapshot in finalize input, got %+v", in)
	}
}

func TestCheckoutDuplicateSuccessFinalizesOnce(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	ready := fx.readyToPay(t)
	paying := mustView(t)(fx.svc.Pay(ctx, ready.ID, ""))
	fx.gateway.verify = payments.Success(enums.PaymentProviderPaystack, "", 3175000, enums.CurrencyNGN)

	webhook := payments.Success(enums.PaymentProviderPaystack, paying.Payment.Reference, 3175000, enums.CurrencyNGN)
	webhook.SessionID = ready.ID

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = fx.svc.HandlePaymentResult(ctx, ready.ID, PaymentResult{Outcome: enums.PaymentOutcomeSuccess, Reference: paying.Payment.Reference})
		}()
		go func() {
			defer wg.Done()
			_ = fx.svc.HandleWebhookOutcome(ctx, webhook)
		}()
	}
	wg.Wait()

	if got := fx.finalizer.calls(); got != 1 {
		t.Fatalf("expected exactly one finalize call, got %d", got)
	}
	final := mustView(t)(fx.svc.GetSession(ctx, ready.ID))
	if final.Finalize.State != enums.FinalizeStateDone {
		t.Fatalf("expected finalize done, got %+v", final.Finalize)
	}
}

func TestCheckoutCancelledRearmsPay(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	ready := fx.readyToPay(t)
	paying := mustView(t)(fx.svc.Pay(ctx, ready.ID, ""))

	cancelled := mustView(t)(fx.svc.HandlePaymentResult(ctx, ready.ID, PaymentResult{
		Outcome:   enums.PaymentOutcomeCancelled,
		Reference: paying.Payment.Reference,
	}))
	if cancelled.Payment == nil || cancelled.Payment.Outcome == nil || cancelled.Payment.Outcome.Kind != enums.PaymentOutcomeCancelled {
		t.Fatalf("expected cancelled outcome, got %+v", cancelled.Payment)
	}
	if fx.gateway.verifyCalls != 0 || fx.finalizer.calls() != 0 {
		t.Fatal("cancellation must not verify or finalize")
	}

	rearmed := mustView(t)(fx.svc.Pay(ctx, ready.ID, ""))
	if rearmed.Payment.Reference == paying.Payment.Reference || len(fx.gateway.initialized) != 2 {
		t.Fatal("expected a fresh payment session after cancellation")
	}
}

func TestCheckoutCaptureAfterClientCancelFinalizes(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	ready := fx.readyToPay(t)
	paying := mustView(t)(fx.svc.Pay(ctx, ready.ID, ""))
	mustView(t)(fx.svc.HandlePaymentResult(ctx, ready.ID, PaymentResult{
		Outcome:   enums.PaymentOutcomeCancelled,
		Reference: paying.Payment.Reference,
	}))

	captured := payments.Success(enums.PaymentProviderPaystack, paying.Payment.Reference, 3175000, enums.CurrencyNGN)
	captured.SessionID = ready.ID
	if err := fx.svc.HandleWebhookOutcome(ctx, captured); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fx.finalizer.calls() != 1 {
		t.Fatalf("expected the capture to finalize, got %d calls", fx.finalizer.calls())
	}
	done := mustView(t)(fx.svc.GetSession(ctx, ready.ID))
	if done.Step != enums.CheckoutStepSuccess || done.Finalize.State != enums.FinalizeStateDone {
		t.Fatalf("expected completed checkout, got step=%s finalize=%+v", done.Step, done.Finalize)
	}
	if _, err := fx.svc.Pay(ctx, ready.ID, ""); pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected no second charge, got %v", err)
	}
	if len(fx.gateway.initialized) != 1 {
		t.Fatalf("expected one gateway session, got %d", len(fx.gateway.initialized))
	}
}

func TestCheckoutCaptureOfReplacedPaymentIsRecorded(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	ready := fx.readyToPay(t)
	first := mustView(t)(fx.svc.Pay(ctx, ready.ID, ""))
	mustView(t)(fx.svc.HandlePaymentResult(ctx, ready.ID, PaymentResult{
		Outcome:   enums.PaymentOutcomeCancelled,
		Reference: first.Payment.Reference,
	}))
	mustView(t)(fx.svc.Pay(ctx, ready.ID, ""))

	captured := payments.Success(enums.PaymentProviderPaystack, first.Payment.Reference, 3175000, enums.CurrencyNGN)
	captured.SessionID = ready.ID
	if err := fx.svc.HandleWebhookOutcome(ctx, captured); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fx.finalizer.calls() != 0 {
		t.Fatal("a replaced payment must not finalize the new one")
	}
	unmatched := fx.finalizer.unmatchedPayments()
	if len(unmatched) != 1 {
		t.Fatalf("expected the capture recorded for reconciliation, got %d", len(unmatched))
	}
	got := unmatched[0]
	if got.SessionID != ready.ID || got.EventID != fx.eventID || got.Payment.Reference != first.Payment.Reference || got.Payment.AmountMinor != 3175000 {
		t.Fatalf("unexpected unmatched payment %+v", got)
	}
}

func TestCheckoutCapturedPaymentBlocksSecondCharge(t *testing.T) {
	fx := newServiceFixture(t)
	fx.svc.webhookFinalize = false
	ctx := context.Background()
	ready := fx.readyToPay(t)
	paying := mustView(t)(fx.svc.Pay(ctx, ready.ID, ""))

	captured := payments.Success(enums.PaymentProviderPaystack, paying.Payment.Reference, 3175000, enums.CurrencyNGN)
	captured.SessionID = ready.ID
	if err := fx.svc.HandleWebhookOutcome(ctx, captured); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fx.finalizer.calls() != 0 {
		t.Fatal("webhook finalize is off")
	}

	_, err := fx.svc.Pay(ctx, ready.ID, "")
	if pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict || len(fx.gateway.initialized) != 1 {
		t.Fatalf("expected paid checkout to refuse a new charge, got %v", err)
	}

	done := mustView(t)(fx.svc.HandlePaymentResult(ctx, ready.ID, PaymentResult{Outcome: enums.PaymentOutcomeSuccess, Reference: paying.Payment.Reference}))
	if done.Finalize.State != enums.FinalizeStateDone || fx.gateway.verifyCalls != 0 {
		t.Fatalf("expected the recorded capture to finalize without verifying, got %+v verify=%d", done.Finalize, fx.gateway.verifyCalls)
	}
}

func TestCheckoutFailedPayment(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	ready := fx.readyToPay(t)
	paying := mustView(t)(fx.svc.Pay(ctx, ready.ID, ""))
	fx.gateway.verify = payments.Failed(enums.PaymentProviderPaystack, "", "Declined by issuer")

	_, err := fx.svc.HandlePaymentResult(ctx, ready.ID, PaymentResult{Outcome: enums.PaymentOutcomeFailed, Reference: paying.Payment.Reference})
	typed := pkgerrors.As(err)
	if typed.Code() != pkgerrors.CodePaymentFailed || typed.Message() != "Declined by issuer" {
		t.Fatalf("expected payment failed with gateway message, got %v", err)
	}
	if fx.finalizer.calls() != 0 {
		t.Fatal("failed payment must not finalize")
	}
}

func TestCheckoutPendingVerificationKeepsPaymentOpen(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	ready := fx.readyToPay(t)
	paying := mustView(t)(fx.svc.Pay(ctx, ready.ID, ""))
	fx.gateway.verify = payments.Pending(enums.PaymentProviderPaystack, "")

	v := mustView(t)(fx.svc.HandlePaymentResult(ctx, ready.ID, PaymentResult{Outcome: enums.PaymentOutcomeSuccess, Reference: paying.Payment.Reference}))
	if v.Payment == nil || v.Payment.Outcome != nil {
		t.Fatalf("expected payment still open, got %+v", v.Payment)
	}
}

func TestCheckoutMutationsBlockedWhilePaymentOpen(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	ready := fx.readyToPay(t)
	mustView(t)(fx.svc.Pay(ctx, ready.ID, ""))

	_, err := fx.svc.AddItem(ctx, ready.ID, testTicket)
	if pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
	v := mustView(t)(fx.svc.Navigate(ctx, ready.ID, fx.path("contact")))
	if v.Step != enums.CheckoutStepContact {
		t.Fatalf("backward navigation must stay allowed, got %s", v.Step)
	}
}

func TestCheckoutFinalizeFailureIsSticky(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	ready := fx.readyToPay(t)
	paying := mustView(t)(fx.svc.Pay(ctx, ready.ID, ""))
	fx.gateway.verify = payments.Success(enums.PaymentProviderPaystack, "", 3175000, enums.CurrencyNGN)
	fx.finalizer.err = pkgerrors.New(pkgerrors.CodeFinalize, "order could not be completed after payment").
		WithDetails(map[string]any{"paymentReference": paying.Payment.Reference})

	result := PaymentResult{Outcome: enums.PaymentOutcomeSuccess, Reference: paying.Payment.Reference}
	_, err := fx.svc.HandlePaymentResult(ctx, ready.ID, result)
	if pkgerrors.As(err).Code() != pkgerrors.CodeFinalize {
		t.Fatalf("expected finalize failure, got %v", err)
	}

	_, err = fx.svc.HandlePaymentResult(ctx, ready.ID, result)
	typed := pkgerrors.As(err)
	if typed.Code() != pkgerrors.CodeFinalize {
		t.Fatalf("expected stored finalize failure, got %v", err)
	}
	details, _ := typed.Details().(map[string]any)
	if details["paymentReference"] != paying.Payment.Reference {
		t.Fatalf("expected payment reference in details, got %#v", typed.Details())
	}
	if fx.finalizer.calls() != 1 {
		t.Fatalf("finalize must not be retried automatically, got %d calls", fx.finalizer.calls())
	}
}

func TestCheckoutPayPreconditions(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	ready := fx.readyToPay(t)

	mustView(t)(fx.svc.SetTerms(ctx, ready.ID, false))
	_, err := fx.svc.Pay(ctx, ready.ID, "")
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error without terms, got %v", err)
	}

	mustView(t)(fx.svc.SetTerms(ctx, ready.ID, true))
	_, err = fx.svc.Pay(ctx, ready.ID, enums.PaymentProviderStripe)
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected unconfigured provider rejected, got %v", err)
	}

	fresh := mustView(t)(fx.svc.CreateSession(ctx, fx.eventID, nil))
	mustView(t)(fx.svc.AddItem(ctx, fresh.ID, testTicket))
	_, err = fx.svc.Pay(ctx, fresh.ID, "")
	if pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected skip-ahead to pay rejected, got %v", err)
	}
}

func TestCheckoutShippingRequotedAfterConcurrentWrite(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	v := mustView(t)(fx.svc.CreateSession(ctx, fx.eventID, nil))
	mustView(t)(fx.svc.AddItem(ctx, v.ID, testTicket))
	mustView(t)(fx.svc.Navigate(ctx, v.ID, fx.path("merch")))
	mustView(t)(fx.svc.AddItem(ctx, v.ID, testHoodie))
	mustView(t)(fx.svc.Navigate(ctx, v.ID, fx.path("contact")))
	mustView(t)(fx.svc.UpdateContact(ctx, v.ID, cart.ContactInfo{Email: "ada@example.com", Phone: "+2348000000000"}))

	fx.quoter.before = func() {
		if _, err := fx.svc.SetTerms(ctx, v.ID, true); err != nil {
			t.Errorf("concurrent mutation: %v", err)
		}
	}
	got := mustView(t)(fx.svc.UpdateShipping(ctx, v.ID, cart.ShippingSelection{Method: enums.ShippingMethodDelivery, Address: &cart.Address{State: "Lagos", City: "Ikeja"}}))

	if got.ShippingPending || got.Totals.ShippingFeeMinor != 150000 {
		t.Fatalf("expected quote to land on the newer revision, got pending=%v totals=%+v", got.ShippingPending, got.Totals)
	}
	if !got.Cart.TermsAccepted {
		t.Fatal("expected the newer mutation to be kept")
	}
	if !got.Steps.PayCTAEnabled {
		t.Fatalf("expected pay enabled, missing %+v", got.Steps.Missing)
	}

	stored := mustView(t)(fx.svc.GetSession(ctx, v.ID))
	if stored.ShippingPending || stored.Revision != got.Revision {
		t.Fatalf("expected stored session quoted, got pending=%v revision=%d", stored.ShippingPending, stored.Revision)
	}
	mustView(t)(fx.svc.Navigate(ctx, v.ID, fx.path("pay")))
	mustView(t)(fx.svc.Pay(ctx, v.ID, ""))
}

func TestCheckoutPickupHasNoShippingFee(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	v := mustView(t)(fx.svc.CreateSession(ctx, fx.eventID, nil))
	mustView(t)(fx.svc.AddItem(ctx, v.ID, testHoodie))
	got := mustView(t)(fx.svc.UpdateShipping(ctx, v.ID, cart.ShippingSelection{Method: enums.ShippingMethodPickup, Address: &cart.Address{State: "Lagos"}}))

	if got.ShippingPending || got.Totals.ShippingFeeMinor != 0 || got.Cart.Shipping.Address != nil {
		t.Fatalf("expected free pickup without address, got %+v", got)
	}
}

func TestCheckoutSessionErrors(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	_, err := fx.svc.CreateSession(ctx, uuid.New(), nil)
	if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected unknown event rejected, got %v", err)
	}
	_, err = fx.svc.GetSession(ctx, "missing")
	if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	v := mustView(t)(fx.svc.CreateSession(ctx, fx.eventID, nil))
	_, err = fx.svc.Navigate(ctx, v.ID, fmt.Sprintf("/checkout/%s/tickets", uuid.New()))
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected foreign event path rejected, got %v", err)
	}
	mustView(t)(fx.svc.AddItem(ctx, v.ID, testTicket))
	_, err = fx.svc.AddItem(ctx, v.ID, cart.Item{Type: enums.CartItemTypeTicket, TicketTypeID: "vip", Qty: 1, UnitPriceMinor: 100, Currency: enums.CurrencyUSD})
	if pkgerrors.As(err).Code() != pkgerrors.CodeCurrencyMismatch {
		t.Fatalf("expected currency mismatch, got %v", err)
	}
}

func TestWebhookWithoutSessionIsIgnored(t *testing.T) {
	fx := newServiceFixture(t)
	out := payments.Success(enums.PaymentProviderPaystack, "evp_unknown", 100, enums.CurrencyNGN)
	if err := fx.svc.HandleWebhookOutcome(context.Background(), out); err != nil {
		t.Fatalf("expected ignore, got %v", err)
	}
	if len(fx.finalizer.unmatchedPayments()) != 0 {
		t.Fatal("an outcome without checkout metadata is not ours to record")
	}
}

func TestWebhookCaptureForExpiredSessionIsRecorded(t *testing.T) {
	fx := newServiceFixture(t)
	out := payments.Success(enums.PaymentProviderPaystack, "evp_late", 100, enums.CurrencyNGN)
	out.SessionID = "expired"
	if err := fx.svc.HandleWebhookOutcome(context.Background(), out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	unmatched := fx.finalizer.unmatchedPayments()
	if len(unmatched) != 1 || unmatched[0].SessionID != "expired" || unmatched[0].Payment.Reference != "evp_late" {
		t.Fatalf("expected the capture recorded, got %+v", unmatched)
	}

	cancelled := payments.Cancelled(enums.PaymentProviderPaystack, "evp_gone")
	cancelled.SessionID = "expired"
	if err := fx.svc.HandleWebhookOutcome(context.Background(), cancelled); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fx.finalizer.unmatchedPayments()) != 1 {
		t.Fatal("only captured payments are recorded")
	}
}
