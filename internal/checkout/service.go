package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/eventpass-backend/internal/cart"
	"github.com/angelmondragon/eventpass-backend/internal/events"
	"github.com/angelmondragon/eventpass-backend/internal/orders"
	"github.com/angelmondragon/eventpass-backend/internal/payments"
	"github.com/angelmondragon/eventpass-backend/internal/pricing"
	"github.com/angelmondragon/eventpass-backend/internal/shipping"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
	"github.com/angelmondragon/eventpass-backend/pkg/metrics"
	"github.com/google/uuid"
)

const (
	maxSaveAttempts        = 3
	defaultFinalizeLockTTL = 2 * time.Minute
)

// errUnchanged lets a mutate callback return the loaded session without
// writing it back.
var errUnchanged = errors.New("session unchanged")

type shippingQuoter interface {
	QuoteShippingForAllVendors(ctx context.Context, vendors []shipping.VendorGrouping, selection cart.ShippingSelection) ([]shipping.VendorShippingInfo, error)
}

type gatewayResolver interface {
	Get(provider enums.PaymentProvider) (payments.Gateway, error)
	Default() enums.PaymentProvider
}

type orderFinalizer interface {
	Finalize(ctx context.Context, in orders.FinalizeInput) (orders.Result, error)
	RecordUnmatchedPayment(ctx context.Context, p orders.UnmatchedPayment) error
}

type eventLookup interface {
	FetchEventByID(ctx context.Context, id uuid.UUID) (*events.Event, error)
}

type ServiceParams struct {
	Store           Store
	Calculator      *pricing.Calculator
	Quoter          shippingQuoter
	Gateways        gatewayResolver
	Finalizer       orderFinalizer
	Events          eventLookup
	Logger          *logger.Logger
	Metrics         *metrics.CheckoutMetrics
	DefaultCurrency enums.Currency
	MaxLines        int
	FinalizeLockTTL time.Duration
	WebhookFinalize bool
	Clock           func() time.Time
}

// Service runs every checkout mutation against a session loaded from the
// store and written back with compare-and-set on its revision.
type Service struct {
	store           Store
	calc            *pricing.Calculator
	quoter          shippingQuoter
	gateways        gatewayResolver
	finalizer       orderFinalizer
	events          eventLookup
	logg            *logger.Logger
	metrics         *metrics.CheckoutMetrics
	steps           StepController
	defaultCurrency enums.Currency
	maxLines        int
	lockTTL         time.Duration
	webhookFinalize bool
	now             func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("session store required")
	}
	if params.Calculator == nil {
		return nil, fmt.Errorf("fee calculator required")
	}
	if params.Quoter == nil {
		return nil, fmt.Errorf("shipping quoter required")
	}
	if params.Gateways == nil {
		return nil, fmt.Errorf("payment gateways required")
	}
	if params.Finalizer == nil {
		return nil, fmt.Errorf("order finalizer required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("event lookup required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	currency := params.DefaultCurrency
	if currency == "" {
		currency = enums.CurrencyNGN
	}
	lockTTL := params.FinalizeLockTTL
	if lockTTL <= 0 {
		lockTTL = defaultFinalizeLockTTL
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		store:           params.Store,
		calc:            params.Calculator,
		quoter:          params.Quoter,
		gateways:        params.Gateways,
		finalizer:       params.Finalizer,
		events:          params.Events,
		logg:            params.Logger,
		metrics:         params.Metrics,
		defaultCurrency: currency,
		maxLines:        params.MaxLines,
		lockTTL:         lockTTL,
		webhookFinalize: params.WebhookFinalize,
		now:             func() time.Time { return clock().UTC() },
	}, nil
}

// CreateSession starts a checkout for an existing event.
func (s *Service) CreateSession(ctx context.Context, eventID uuid.UUID, buyerUserID *uuid.UUID) (*View, error) {
	event, err := s.events.FetchEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	currency := event.Currency
	if !currency.IsValid() {
		currency = s.defaultCurrency
	}
	session := NewSession(eventID, buyerUserID, currency, s.now())
	ok, err := s.store.Save(ctx, session, 0)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "checkout session already exists")
	}
	s.logg.Info(s.logg.WithSessionID(ctx, session.ID), "checkout session created")
	return s.view(session), nil
}

func (s *Service) GetSession(ctx context.Context, id string) (*View, error) {
	session, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(session), nil
}

func (s *Service) AddItem(ctx context.Context, id string, item cart.Item) (*View, error) {
	return s.mutateCart(ctx, id, true, func(session *Session) error {
		return session.Cart.Add(item, s.maxLines)
	})
}

func (s *Service) UpdateItem(ctx context.Context, id, lineKey string, qty int) (*View, error) {
	return s.mutateCart(ctx, id, true, func(session *Session) error {
		return session.Cart.UpdateQty(lineKey, qty)
	})
}

func (s *Service) RemoveItem(ctx context.Context, id, lineKey string) (*View, error) {
	return s.mutateCart(ctx, id, true, func(session *Session) error {
		return session.Cart.Remove(lineKey)
	})
}

func (s *Service) UpdateContact(ctx context.Context, id string, contact cart.ContactInfo) (*View, error) {
	return s.mutateCart(ctx, id, false, func(session *Session) error {
		session.Cart.Contact = contact
		return nil
	})
}

func (s *Service) UpdateShipping(ctx context.Context, id string, selection cart.ShippingSelection) (*View, error) {
	if !selection.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping method must be pickup or delivery").
			WithDetails(map[string]any{"field": "method"})
	}
	if selection.Method == enums.ShippingMethodPickup {
		selection.Address = nil
	}
	return s.mutateCart(ctx, id, true, func(session *Session) error {
		session.Cart.Shipping = selection
		return nil
	})
}

func (s *Service) SetTerms(ctx context.Context, id string, accepted bool) (*View, error) {
	return s.mutateCart(ctx, id, false, func(session *Session) error {
		session.Cart.TermsAccepted = accepted
		return nil
	})
}

// Navigate moves the session to the step named by a checkout URL.
func (s *Service) Navigate(ctx context.Context, id, path string) (*View, error) {
	eventID, target, err := StepFromPath(path)
	if err != nil {
		return nil, err
	}
	session, err := s.mutate(ctx, id, func(session *Session) error {
		if session.EventID != eventID {
			return pkgerrors.New(pkgerrors.CodeValidation, "path belongs to a different event")
		}
		if err := s.steps.CanMoveTo(session, target); err != nil {
			return err
		}
		session.Step = target
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(session), nil
}

// mutateCart applies fn, reprices, and when requote is set refreshes the
// shipping quotes against the revision the mutation produced.
func (s *Service) mutateCart(ctx context.Context, id string, requote bool, fn func(*Session) error) (*View, error) {
	session, err := s.mutate(ctx, id, func(session *Session) error {
		if err := ensureEditable(session); err != nil {
			return err
		}
		if err := fn(session); err != nil {
			return err
		}
		// a cancelled or failed payment is dropped; the next pay opens a new one
		session.Payment = nil
		if requote {
			session.Shipping = placeholderShipping(session.Cart.Items, session.Cart.Shipping)
		}
		return s.reprice(session)
	})
	if err != nil {
		return nil, err
	}
	if requote && needsQuote(session) {
		session = s.refreshShipping(ctx, session)
	}
	return s.view(session), nil
}

// refreshShipping quotes every vendor and stores the result only if the
// session is still at the revision the quotes were computed from. A newer
// write that still has quotes outstanding is quoted again at its revision.
func (s *Service) refreshShipping(ctx context.Context, session *Session) *Session {
	ctx = s.logg.WithSessionID(ctx, session.ID)
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		computedFrom := session.Revision
		infos, err := s.quoter.QuoteShippingForAllVendors(ctx, shipping.GetVendorsFromCart(session.Cart.Items), session.Cart.Shipping)
		if err != nil {
			s.logg.Warn(ctx, "shipping quotes abandoned: "+err.Error())
			return session
		}

		updated := *session
		updated.Shipping = infos
		if err := s.reprice(&updated); err != nil {
			s.logg.Error(ctx, "reprice after shipping quote failed", err)
			return session
		}
		updated.UpdatedAt = s.now()
		ok, err := s.store.Save(ctx, &updated, computedFrom)
		if err != nil {
			s.logg.Error(ctx, "failed to store shipping quotes", err)
			return session
		}
		if ok {
			return &updated
		}

		latest, err := s.store.Get(ctx, session.ID)
		if err != nil {
			return session
		}
		if !needsQuote(latest) || !shippingQuoting(latest) || ensureEditable(latest) != nil {
			return latest
		}
		session = latest
	}
	s.logg.Warn(ctx, "shipping quotes kept losing to newer writes")
	return session
}

// mutate loads the session, applies fn and saves it, retrying when another
// writer bumped the revision in between.
func (s *Service) mutate(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		session, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		loaded := session.Revision
		if err := fn(session); err != nil {
			if errors.Is(err, errUnchanged) {
				return session, nil
			}
			return nil, err
		}
		session.UpdatedAt = s.now()
		ok, err := s.store.Save(ctx, session, loaded)
		if err != nil {
			return nil, err
		}
		if ok {
			return session, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "checkout session is being modified concurrently")
}

func (s *Service) reprice(session *Session) error {
	totals, err := s.calc.CalculateFees(session.Cart.Items)
	if err != nil {
		return err
	}
	if len(session.Cart.Items) == 0 {
		totals.Currency = session.Totals.Currency
		if totals.Currency == "" {
			totals.Currency = s.defaultCurrency
		}
	}
	fee, _ := shipping.CalculateTotalShippingFee(session.Shipping)
	session.Totals = totals.WithShipping(fee)
	return nil
}

func ensureEditable(session *Session) error {
	switch {
	case session.Completed():
		return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout already completed")
	case session.Finalize.State != enums.FinalizeStateIdle:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout is being finalized")
	case session.Payment.Open():
		return pkgerrors.New(pkgerrors.CodeStateConflict, "a payment is in progress; cancel it before changing the checkout")
	case session.Payment.Succeeded():
		return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout is already paid")
	}
	return nil
}

// placeholderShipping groups merch by vendor with quotes that need no
// provider call: zero for pickup, pending otherwise.
func placeholderShipping(items []cart.Item, selection cart.ShippingSelection) []shipping.VendorShippingInfo {
	groups := shipping.GetVendorsFromCart(items)
	infos := make([]shipping.VendorShippingInfo, 0, len(groups))
	for _, g := range groups {
		info := shipping.VendorShippingInfo{VendorID: g.VendorID, Items: g.Items}
		if selection.Method == enums.ShippingMethodPickup {
			zero := int64(0)
			info.Quote = shipping.Quote{FeeMinor: &zero, Status: enums.QuoteStatusSkipped}
		} else {
			info.Quote = shipping.Quote{Status: enums.QuoteStatusPending}
		}
		infos = append(infos, info)
	}
	return infos
}

func needsQuote(session *Session) bool {
	return session.Cart.HasMerch() &&
		session.Cart.Shipping.Method == enums.ShippingMethodDelivery &&
		session.Cart.Shipping.DestinationState() != ""
}
