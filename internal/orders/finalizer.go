package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/eventpass-backend/internal/cart"
	"github.com/angelmondragon/eventpass-backend/internal/checkout/idempotency"
	"github.com/angelmondragon/eventpass-backend/internal/payments"
	"github.com/angelmondragon/eventpass-backend/internal/pricing"
	"github.com/angelmondragon/eventpass-backend/internal/shipping"
	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
	"github.com/angelmondragon/eventpass-backend/pkg/metrics"
	"github.com/angelmondragon/eventpass-backend/pkg/outbox"
	"github.com/angelmondragon/eventpass-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	finalizeLockScope      = "finalize"
	defaultFinalizeLockTTL = 2 * time.Minute

	resultCreated  = "created"
	resultExisting = "existing"
	resultFailed   = "failed"
)

// ErrFinalizeInProgress is returned to a concurrent caller while another
// finalize for the same idempotency key holds the lock.
var ErrFinalizeInProgress = errors.New("finalize already in progress")

// ProviderRef holds the references used to open and to verify the payment.
type ProviderRef struct {
	InitRef   string `json:"initRef"`
	VerifyRef string `json:"verifyRef"`
}

// FinalizeInput is everything finalize needs, taken from the checkout session
// once the gateway has reported success.
type FinalizeInput struct {
	SessionID      string
	IdempotencyKey string
	EventID        uuid.UUID
	BuyerUserID    *uuid.UUID
	Contact        cart.ContactInfo
	Provider       enums.PaymentProvider
	ProviderRef    ProviderRef
	LineItems      []cart.FinalizeLine
	ClientTotals   pricing.Totals
	Items          []cart.Item
	Shipping       cart.ShippingSelection
	ShippingInfos  []shipping.VendorShippingInfo
	Payment        payments.Outcome
}

func (in FinalizeInput) validate() error {
	switch {
	case !idempotency.Valid(in.IdempotencyKey):
		return pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is invalid")
	case in.EventID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	case strings.TrimSpace(in.SessionID) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session id is required")
	case len(in.Items) == 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	case in.Payment.Kind != enums.PaymentOutcomeSuccess:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "finalize requires a successful payment")
	}
	return nil
}

// Result identifies the order finalize produced or found.
type Result struct {
	OrderID               uuid.UUID `json:"orderId"`
	Created               bool      `json:"created"`
	FulfillmentLinesAdded int       `json:"fulfillmentLinesAdded"`
}

// DriftError lists the totals that disagree between what the client declared,
// what the server recomputed and what the gateway captured.
type DriftError struct {
	Fields map[string]any
}

func (e *DriftError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("checkout totals drifted: %s", strings.Join(names, ", "))
}

type FinalizerParams struct {
	Repo         Repository
	TxRunner     txRunner
	Outbox       outboxEmitter
	Locks        lockStore
	Calculator   *pricing.Calculator
	Logger       *logger.Logger
	Metrics      *metrics.CheckoutMetrics
	LockTTL      time.Duration
	SupportEmail string
}

// Finalizer turns a verified payment into exactly one order.
type Finalizer struct {
	repo         Repository
	tx           txRunner
	outbox       outboxEmitter
	locks        lockStore
	calc         *pricing.Calculator
	logg         *logger.Logger
	metrics      *metrics.CheckoutMetrics
	lockTTL      time.Duration
	supportEmail string
}

func NewFinalizer(params FinalizerParams) (*Finalizer, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("lock store required")
	}
	if params.Calculator == nil {
		return nil, fmt.Errorf("fee calculator required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	ttl := params.LockTTL
	if ttl <= 0 {
		ttl = defaultFinalizeLockTTL
	}
	return &Finalizer{
		repo:         params.Repo,
		tx:           params.TxRunner,
		outbox:       params.Outbox,
		locks:        params.Locks,
		calc:         params.Calculator,
		logg:         params.Logger,
		metrics:      params.Metrics,
		lockTTL:      ttl,
		supportEmail: params.SupportEmail,
	}, nil
}

// Finalize reconciles the totals and writes the order, its fulfillment lines
// and the order_created event in one transaction. Calls sharing an
// idempotency key never produce a second order: a concurrent call gets
// ErrFinalizeInProgress and a later one gets the stored order back.
//
// Any failure after the payment succeeded is recorded for manual
// reconciliation and returned as a non-retryable FINALIZE_FAILED error
// carrying the payment reference.
func (f *Finalizer) Finalize(ctx context.Context, in FinalizeInput) (Result, error) {
	if err := in.validate(); err != nil {
		return Result{}, err
	}
	ctx = f.logg.WithSessionID(ctx, in.SessionID)
	ctx = f.logg.WithPaymentReference(ctx, string(in.Provider), in.Payment.Reference)

	lockKey := f.locks.LockKey(finalizeLockScope, in.IdempotencyKey)
	// the token is unique per call so a holder that outlived the TTL never
	// releases the lock of the caller that took over
	token := in.SessionID + ":" + uuid.NewString()
	acquired, err := f.locks.SetNX(ctx, lockKey, token, f.lockTTL)
	if err != nil {
		return Result{}, f.fail(ctx, in, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire finalize lock"), time.Now())
	}
	if !acquired {
		return Result{}, ErrFinalizeInProgress
	}
	defer func() {
		released, err := f.locks.CompareAndDelete(context.WithoutCancel(ctx), lockKey, token)
		if err != nil {
			f.logg.Error(ctx, "failed to release finalize lock", err)
			return
		}
		if !released {
			f.logg.Warn(ctx, "finalize lock expired before release")
		}
	}()

	start := time.Now()
	result, err := f.finalize(ctx, in)
	if err != nil {
		return Result{}, f.fail(ctx, in, err, start)
	}

	label := resultExisting
	if result.Created {
		label = resultCreated
	}
	f.metrics.ObserveFinalize(label, time.Since(start))
	f.logg.Info(f.logg.WithField(ctx, "order_id", result.OrderID.String()), fmt.Sprintf("checkout finalized (%s)", label))
	return result, nil
}

func (f *Finalizer) finalize(ctx context.Context, in FinalizeInput) (Result, error) {
	totals, err := f.reconcile(in)
	if err != nil {
		return Result{}, err
	}

	order := buildOrder(in, totals)
	lines := buildFulfillmentLines(in.Items)

	var result Result
	err = f.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := f.repo.WithTx(tx)
		stored, created, err := repo.CreateOrder(ctx, order)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if !created && stored.ProviderVerifyRef != order.ProviderVerifyRef {
			return fmt.Errorf("order %s already paid with reference %s", stored.ID, stored.ProviderVerifyRef)
		}

		added, err := repo.EnsureFulfillmentLines(ctx, stored.ID, lines)
		if err != nil {
			return fmt.Errorf("create fulfillment lines: %w", err)
		}
		result = Result{OrderID: stored.ID, Created: created, FulfillmentLinesAdded: added}
		if !created {
			return nil
		}

		return f.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   stored.ID,
			Actor:         &outbox.ActorRef{BuyerUserID: in.BuyerUserID, CheckoutSessionID: in.SessionID},
			Version:       1,
			Data: payloads.OrderCreatedEvent{
				OrderID:          stored.ID,
				CheckoutSession:  in.SessionID,
				EventID:          in.EventID,
				BuyerUserID:      in.BuyerUserID,
				DeliverToEmail:   stored.DeliverToEmail,
				Provider:         in.Provider,
				PaymentReference: stored.ProviderVerifyRef,
				Currency:         stored.Currency,
				TotalDueMinor:    stored.TotalDueMinor,
				VendorIDs:        vendorIDs(lines),
				FulfillmentLines: len(lines),
			},
		})
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// reconcile recomputes the totals from the cart and compares them with the
// client's declaration and the captured amount. Nothing is corrected.
func (f *Finalizer) reconcile(in FinalizeInput) (pricing.Totals, error) {
	expectedLines := make([]cart.FinalizeLine, 0, len(in.Items))
	for _, it := range in.Items {
		expectedLines = append(expectedLines, cart.LineFromItem(it))
	}
	if !cart.SameLines(in.LineItems, expectedLines) {
		return pricing.Totals{}, &DriftError{Fields: map[string]any{"lineItems": "line items do not match the cart"}}
	}

	totals, err := f.calc.CalculateFees(in.Items)
	if err != nil {
		return pricing.Totals{}, err
	}
	shippingFee, settled := shipping.CalculateTotalShippingFee(in.ShippingInfos)
	if !settled {
		return pricing.Totals{}, &DriftError{Fields: map[string]any{"shippingFeeMinor": "shipping quotes not settled"}}
	}
	totals = totals.WithShipping(shippingFee)

	drift := make(map[string]any)
	compare := func(name string, client, server int64) {
		if client != server {
			drift[name] = map[string]int64{"client": client, "server": server}
		}
	}
	if in.ClientTotals.Currency != totals.Currency {
		drift["currency"] = map[string]enums.Currency{"client": in.ClientTotals.Currency, "server": totals.Currency}
	}
	compare("itemsSubtotalMinor", in.ClientTotals.ItemsSubtotalMinor, totals.ItemsSubtotalMinor)
	compare("buyerFeesMinor", in.ClientTotals.BuyerFeesMinor, totals.BuyerFeesMinor)
	compare("shippingFeeMinor", in.ClientTotals.ShippingFeeMinor, totals.ShippingFeeMinor)
	compare("totalDueMinor", in.ClientTotals.TotalDueMinor, totals.TotalDueMinor)
	if in.Payment.AmountMinor != totals.TotalDueMinor {
		drift["paidAmountMinor"] = map[string]int64{"paid": in.Payment.AmountMinor, "server": totals.TotalDueMinor}
	}
	if in.Payment.Currency != "" && in.Payment.Currency != totals.Currency {
		drift["paidCurrency"] = map[string]enums.Currency{"paid": in.Payment.Currency, "server": totals.Currency}
	}
	if len(drift) > 0 {
		return pricing.Totals{}, &DriftError{Fields: drift}
	}
	return totals, nil
}

func (f *Finalizer) fail(ctx context.Context, in FinalizeInput, cause error, start time.Time) error {
	f.metrics.ObserveFinalize(resultFailed, time.Since(start))
	f.logg.Error(ctx, "checkout finalize failed after payment", cause)

	f.record(ctx, &models.FinalizeFailure{
		CheckoutSessionID: in.SessionID,
		IdempotencyKey:    in.IdempotencyKey,
		EventID:           in.EventID,
		BuyerEmail:        in.Contact.NormalizedEmail(),
		Provider:          in.Provider,
		PaymentReference:  in.Payment.Reference,
		AmountMinor:       in.Payment.AmountMinor,
		Currency:          in.Payment.Currency,
		ErrorMessage:      cause.Error(),
	})

	details := map[string]any{
		"paymentReference": in.Payment.Reference,
		"provider":         in.Provider,
	}
	if f.supportEmail != "" {
		details["supportEmail"] = f.supportEmail
	}
	var drift *DriftError
	if errors.As(cause, &drift) {
		details["drift"] = drift.Fields
	}
	return pkgerrors.Wrap(pkgerrors.CodeFinalize, cause, "order could not be completed after payment").WithDetails(details)
}

// UnmatchedPayment is a captured payment that no checkout can finalize: its
// session expired, moved on to another payment, or had already settled it
// differently.
type UnmatchedPayment struct {
	SessionID      string
	IdempotencyKey string
	EventID        uuid.UUID
	BuyerEmail     string
	Payment        payments.Outcome
	Reason         string
}

// RecordUnmatchedPayment stores a captured payment without an order in the
// finalize failure ledger and emits finalize_failed for ops.
func (f *Finalizer) RecordUnmatchedPayment(ctx context.Context, p UnmatchedPayment) error {
	if p.Payment.Kind != enums.PaymentOutcomeSuccess {
		return pkgerrors.New(pkgerrors.CodeValidation, "only captured payments are recorded")
	}
	if strings.TrimSpace(p.Payment.Reference) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	ctx = f.logg.WithPaymentReference(ctx, string(p.Payment.Provider), p.Payment.Reference)
	cause := errors.New(p.Reason)
	if p.Reason == "" {
		cause = errors.New("captured payment has no checkout to finalize")
	}
	f.logg.Error(ctx, "captured payment not finalized", cause)

	return f.record(ctx, &models.FinalizeFailure{
		CheckoutSessionID: p.SessionID,
		IdempotencyKey:    p.IdempotencyKey,
		EventID:           p.EventID,
		BuyerEmail:        cart.ContactInfo{Email: p.BuyerEmail}.NormalizedEmail(),
		Provider:          p.Payment.Provider,
		PaymentReference:  p.Payment.Reference,
		AmountMinor:       p.Payment.AmountMinor,
		Currency:          p.Payment.Currency,
		ErrorMessage:      cause.Error(),
	})
}

// record writes the failure row and its finalize_failed event in one
// transaction. It outlives the caller's context.
func (f *Finalizer) record(ctx context.Context, failure *models.FinalizeFailure) error {
	recordCtx := context.WithoutCancel(ctx)
	err := f.tx.WithTx(recordCtx, func(tx *gorm.DB) error {
		if err := f.repo.WithTx(tx).RecordFinalizeFailure(recordCtx, failure); err != nil {
			return err
		}
		return f.outbox.Emit(recordCtx, tx, outbox.DomainEvent{
			EventType:     enums.EventFinalizeFailed,
			AggregateType: enums.AggregateCheckoutSession,
			AggregateID:   failure.ID,
			Version:       1,
			Data: payloads.FinalizeFailedEvent{
				FailureID:        failure.ID,
				CheckoutSession:  failure.CheckoutSessionID,
				Provider:         failure.Provider,
				PaymentReference: failure.PaymentReference,
				AmountMinor:      failure.AmountMinor,
				Currency:         failure.Currency,
				Error:            failure.ErrorMessage,
			},
		})
	})
	if err != nil {
		f.logg.Error(ctx, "failed to record finalize failure", err)
		return fmt.Errorf("record finalize failure: %w", err)
	}
	return nil
}

func buildOrder(in FinalizeInput, totals pricing.Totals) *models.Order {
	ref := in.ProviderRef
	if ref.VerifyRef == "" {
		ref.VerifyRef = in.Payment.Reference
	}
	if ref.InitRef == "" {
		ref.InitRef = ref.VerifyRef
	}

	lines := make([]models.OrderLine, 0, len(in.LineItems))
	for _, l := range in.LineItems {
		lines = append(lines, models.OrderLine{
			Type:         l.Type,
			TicketTypeID: l.TicketTypeID,
			MerchItemID:  l.MerchItemID,
			Qty:          l.Qty,
			Size:         l.Size,
			Color:        l.Color,
		})
	}

	order := &models.Order{
		IdempotencyKey:    in.IdempotencyKey,
		CheckoutSessionID: in.SessionID,
		EventID:           in.EventID,
		BuyerUserID:       in.BuyerUserID,
		DeliverToEmail:    in.Contact.NormalizedEmail(),
		DeliverToPhone:    strings.TrimSpace(in.Contact.Phone),
		DeliverToName:     in.Contact.FullName(),
		Provider:          in.Provider,
		ProviderInitRef:   ref.InitRef,
		ProviderVerifyRef: ref.VerifyRef,
		Currency:          totals.Currency,
		LineItems:         lines,
		ClientTotals: models.OrderTotals{
			Currency:           in.ClientTotals.Currency,
			ItemsSubtotalMinor: in.ClientTotals.ItemsSubtotalMinor,
			BuyerFeesMinor:     in.ClientTotals.BuyerFeesMinor,
			AbsorbedFeesMinor:  in.ClientTotals.AbsorbedFeesMinor,
			ShippingFeeMinor:   in.ClientTotals.ShippingFeeMinor,
			TotalDueMinor:      in.ClientTotals.TotalDueMinor,
		},
		SubtotalMinor:    totals.ItemsSubtotalMinor,
		BuyerFeesMinor:   totals.BuyerFeesMinor,
		ShippingFeeMinor: totals.ShippingFeeMinor,
		TotalDueMinor:    totals.TotalDueMinor,
		Status:           enums.OrderStatusPaid,
	}

	hasMerch := false
	for _, it := range in.Items {
		if it.IsMerch() {
			hasMerch = true
			break
		}
	}
	if hasMerch && in.Shipping.Chosen() {
		method := in.Shipping.Method
		order.ShippingMethod = &method
		if method == enums.ShippingMethodDelivery && in.Shipping.Address != nil {
			addr := in.Shipping.Address
			order.ShippingAddress = &models.ShippingAddress{
				State:      addr.State,
				City:       addr.City,
				Name:       addr.Name,
				Phone:      addr.Phone,
				PostalCode: addr.PostalCode,
			}
		}
	}
	return order
}

// buildFulfillmentLines creates one line per merch item. Ticket lines belong
// to the organizer and are not fulfillment tracked.
func buildFulfillmentLines(items []cart.Item) []models.FulfillmentLine {
	lines := make([]models.FulfillmentLine, 0, len(items))
	for _, group := range shipping.GetVendorsFromCart(items) {
		for _, it := range group.Items {
			lines = append(lines, models.FulfillmentLine{
				LineKey:     it.Key(),
				VendorID:    group.VendorID,
				MerchItemID: it.MerchItemID,
				Qty:         it.Qty,
				Status:      enums.FulfillmentStatusUnfulfilled,
			})
		}
	}
	return lines
}

func vendorIDs(lines []models.FulfillmentLine) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.VendorID]; ok {
			continue
		}
		seen[l.VendorID] = struct{}{}
		out = append(out, l.VendorID)
	}
	return out
}
