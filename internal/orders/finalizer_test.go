package orders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
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
	"github.com/angelmondragon/eventpass-backend/pkg/outbox"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type memoryRepo struct {
	mu       sync.Mutex
	orders   map[string]*models.Order
	lines    map[uuid.UUID][]models.FulfillmentLine
	failures []*models.FinalizeFailure
	createErr error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		orders: make(map[string]*models.Order),
		lines:  make(map[uuid.UUID][]models.FulfillmentLine),
	}
}

func (r *memoryRepo) WithTx(*gorm.DB) Repository { return r }

func (r *memoryRepo) CreateOrder(_ context.Context, order *models.Order) (*models.Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, false, r.createErr
	}
	if existing, ok := r.orders[order.IdempotencyKey]; ok {
		return existing, false, nil
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	r.orders[order.IdempotencyKey] = order
	return order, true, nil
}

func (r *memoryRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.ID == id {
			copied := *o
			copied.FulfillmentLines = append([]models.FulfillmentLine(nil), r.lines[id]...)
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryRepo) FindByIdempotencyKey(_ context.Context, key string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[key]; ok {
		return o, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryRepo) EnsureFulfillmentLines(_ context.Context, orderID uuid.UUID, lines []models.FulfillmentLine) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	added := 0
	for _, line := range lines {
		exists := false
		for _, stored := range r.lines[orderID] {
			if stored.LineKey == line.LineKey {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		line.ID = uuid.New()
		line.OrderID = orderID
		r.lines[orderID] = append(r.lines[orderID], line)
		added++
	}
	return added, nil
}

func (r *memoryRepo) FindFulfillmentLine(_ context.Context, orderID, lineID uuid.UUID) (*models.FulfillmentLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range r.lines[orderID] {
		if line.ID == lineID {
			copied := line
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryRepo) UpdateFulfillmentStatus(_ context.Context, lineID uuid.UUID, from, to enums.FulfillmentStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for orderID, lines := range r.lines {
		for i := range lines {
			if lines[i].ID == lineID && lines[i].Status == from {
				r.lines[orderID][i].Status = to
				return true, nil
			}
		}
	}
	return false, nil
}

func (r *memoryRepo) RecordFinalizeFailure(_ context.Context, failure *models.FinalizeFailure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if failure.ID == uuid.Nil {
		failure.ID = uuid.New()
	}
	r.failures = append(r.failures, failure)
	return nil
}

func (r *memoryRepo) orderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type recordingOutbox struct {
	mu     sync.Mutex
	events []outbox.DomainEvent
}

func (o *recordingOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
	return nil
}

func (o *recordingOutbox) count(eventType enums.OutboxEventType) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, e := range o.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

type memoryLocks struct {
	mu    sync.Mutex
	held  map[string]string
	err   error
	delay time.Duration
	// takeover replaces the holder right after acquisition, as if the lock
	// expired and another caller took it.
	takeover string
}

func newMemoryLocks() *memoryLocks {
	return &memoryLocks{held: make(map[string]string)}
}

func (l *memoryLocks) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if _, ok := l.held[key]; ok {
		return false, nil
	}
	l.held[key] = fmt.Sprint(value)
	if l.takeover != "" {
		l.held[key] = l.takeover
	}
	return true, nil
}

func (l *memoryLocks) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != value {
		return false, nil
	}
	delete(l.held, key)
	return true, nil
}

func (l *memoryLocks) LockKey(scope, id string) string {
	return fmt.Sprintf("lock:%s:%s", scope, id)
}

type finalizerFixture struct {
	finalizer *Finalizer
	repo      *memoryRepo
	outbox    *recordingOutbox
	locks     *memoryLocks
}

func newFinalizerFixture(t *testing.T) finalizerFixture {
	t.Helper()
	calc, err := pricing.NewCalculator(pricing.FlatPlusPercent{FlatMinor: 10000, PercentBps: 150}, enums.CurrencyNGN)
	if err != nil {
		t.Fatalf("new calculator: %v", err)
	}
	repo := newMemoryRepo()
	out := &recordingOutbox{}
	locks := newMemoryLocks()
	f, err := NewFinalizer(FinalizerParams{
		Repo:         repo,
		TxRunner:     passthroughTx{},
		Outbox:       out,
		Locks:        locks,
		Calculator:   calc,
		Logger:       logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		SupportEmail: "support@eventpass.ng",
	})
	if err != nil {
		t.Fatalf("new finalizer: %v", err)
	}
	return finalizerFixture{finalizer: f, repo: repo, outbox: out, locks: locks}
}

// exampleInput is two 5,000 tickets with fees passed on plus one 20,000
// hoodie delivered to Lagos for 1,500.
func exampleInput() FinalizeInput {
	items := []cart.Item{
		{Type: enums.CartItemTypeTicket, TicketTypeID: "ga", Qty: 2, UnitPriceMinor: 500000, Currency: enums.CurrencyNGN, TransferFeesToGuest: true},
		{Type: enums.CartItemTypeMerch, MerchItemID: "hoodie", BrandID: "v1", Size: "L", Qty: 1, UnitPriceMinor: 2000000, Currency: enums.CurrencyNGN},
	}
	lines := []cart.FinalizeLine{cart.LineFromItem(items[1]), cart.LineFromItem(items[0])}
	fee := int64(150000)
	contact := cart.ContactInfo{Email: "Ada@Example.com", Phone: "+2348000000000", FirstName: "Ada", LastName: "Obi"}
	eventID := uuid.MustParse("6f1d3c1e-1a7b-4f8e-9c55-2b3b8f4c9d10")
	keyTime := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	return FinalizeInput{
		SessionID:      "sess-123",
		IdempotencyKey: idempotency.BuildKey(eventID.String(), contact.Email, lines, keyTime),
		EventID:        eventID,
		Contact:        contact,
		Provider:       enums.PaymentProviderPaystack,
		ProviderRef:    ProviderRef{InitRef: "evp_abc", VerifyRef: "evp_abc"},
		LineItems:      lines,
		ClientTotals: pricing.Totals{
			Currency:           enums.CurrencyNGN,
			ItemsSubtotalMinor: 3000000,
			BuyerFeesMinor:     25000,
			ShippingFeeMinor:   150000,
			TotalDueMinor:      3175000,
		},
		Items: items,
		Shipping: cart.ShippingSelection{
			Method:  enums.ShippingMethodDelivery,
			Address: &cart.Address{State: "Lagos", City: "Ikeja"},
		},
		ShippingInfos: []shipping.VendorShippingInfo{
			{VendorID: "v1", Items: items[1:], Quote: shipping.Quote{FeeMinor: &fee, Status: enums.QuoteStatusQuoted}},
		},
		Payment: payments.Success(enums.PaymentProviderPaystack, "evp_abc", 3175000, enums.CurrencyNGN),
	}
}

func TestFinalizeCreatesOrderForExampleCart(t *testing.T) {
	fx := newFinalizerFixture(t)

	res, err := fx.finalizer.Finalize(context.Background(), exampleInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Created || res.FulfillmentLinesAdded != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	order, err := fx.repo.FindByID(context.Background(), res.OrderID)
	if err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.TotalDueMinor != 3175000 || order.BuyerFeesMinor != 25000 || order.ShippingFeeMinor != 150000 {
		t.Fatalf("unexpected order totals %+v", order)
	}
	if order.DeliverToEmail != "ada@example.com" || order.DeliverToName != "Ada Obi" {
		t.Fatalf("unexpected deliver-to %q %q", order.DeliverToEmail, order.DeliverToName)
	}
	if order.ShippingAddress == nil || order.ShippingAddress.State != "Lagos" {
		t.Fatalf("expected delivery address on order, got %+v", order.ShippingAddress)
	}
	if len(order.FulfillmentLines) != 1 || order.FulfillmentLines[0].VendorID != "v1" || order.FulfillmentLines[0].LineKey != "merch:hoodie:L:" {
		t.Fatalf("unexpected fulfillment lines %+v", order.FulfillmentLines)
	}
	if got := fx.outbox.count(enums.EventOrderCreated); got != 1 {
		t.Fatalf("expected one order_created event, got %d", got)
	}
	if len(fx.locks.held) != 0 {
		t.Fatalf("expected finalize lock released")
	}
}

func TestFinalizeRepeatedCallsProduceOneOrder(t *testing.T) {
	fx := newFinalizerFixture(t)
	in := exampleInput()

	first, err := fx.finalizer.Finalize(context.Background(), in)
	if err != nil {
		t.Fatalf("first finalize: %v", err)
	}
	second, err := fx.finalizer.Finalize(context.Background(), in)
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if second.Created || second.OrderID != first.OrderID || second.FulfillmentLinesAdded != 0 {
		t.Fatalf("expected existing order on replay, got %+v", second)
	}
	if fx.repo.orderCount() != 1 {
		t.Fatalf("expected exactly one order, got %d", fx.repo.orderCount())
	}
	if got := fx.outbox.count(enums.EventOrderCreated); got != 1 {
		t.Fatalf("expected one order_created event, got %d", got)
	}
}

func TestFinalizeConcurrentSuccessSignals(t *testing.T) {
	fx := newFinalizerFixture(t)
	fx.locks.delay = 5 * time.Millisecond
	in := exampleInput()

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		busy     int
		orderIDs = make(map[uuid.UUID]struct{})
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := fx.finalizer.Finalize(context.Background(), in)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrFinalizeInProgress):
				busy++
			case err != nil:
				t.Errorf("unexpected error: %v", err)
			default:
				orderIDs[res.OrderID] = struct{}{}
				if res.Created {
					created++
				}
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Fatalf("expected exactly one caller to create the order, got %d (busy=%d)", created, busy)
	}
	if len(orderIDs) != 1 {
		t.Fatalf("expected all successful callers to see one order, got %d", len(orderIDs))
	}
	if fx.repo.orderCount() != 1 {
		t.Fatalf("expected exactly one stored order, got %d", fx.repo.orderCount())
	}
}

func TestFinalizeDriftIsRecordedAndSurfaced(t *testing.T) {
	fx := newFinalizerFixture(t)
	in := exampleInput()
	in.ClientTotals.TotalDueMinor = 3000000
	in.Payment.AmountMinor = 3000000

	_, err := fx.finalizer.Finalize(context.Background(), in)
	if err == nil {
		t.Fatal("expected drift to fail finalize")
	}
	typed := pkgerrors.As(err)
	if typed.Code() != pkgerrors.CodeFinalize {
		t.Fatalf("expected %s, got %s", pkgerrors.CodeFinalize, typed.Code())
	}
	details, ok := typed.Details().(map[string]any)
	if !ok || details["paymentReference"] != "evp_abc" {
		t.Fatalf("expected payment reference in details, got %#v", typed.Details())
	}
	drift, ok := details["drift"].(map[string]any)
	if !ok {
		t.Fatalf("expected drift details, got %#v", details["drift"])
	}
	if _, ok := drift["totalDueMinor"]; !ok {
		t.Fatalf("expected totalDueMinor drift, got %#v", drift)
	}
	if _, ok := drift["paidAmountMinor"]; !ok {
		t.Fatalf("expected paidAmountMinor drift, got %#v", drift)
	}

	if fx.repo.orderCount() != 0 {
		t.Fatalf("expected no order on drift")
	}
	if len(fx.repo.failures) != 1 || fx.repo.failures[0].PaymentReference != "evp_abc" {
		t.Fatalf("expected recorded failure, got %+v", fx.repo.failures)
	}
	if got := fx.outbox.count(enums.EventFinalizeFailed); got != 1 {
		t.Fatalf("expected finalize_failed event, got %d", got)
	}
}

func TestFinalizeRejectsChangedLineItems(t *testing.T) {
	fx := newFinalizerFixture(t)
	in := exampleInput()
	in.LineItems[0].Qty = 3

	_, err := fx.finalizer.Finalize(context.Background(), in)
	if pkgerrors.As(err).Code() != pkgerrors.CodeFinalize {
		t.Fatalf("expected finalize failure, got %v", err)
	}
	var drift *DriftError
	if !errors.As(err, &drift) {
		t.Fatalf("expected drift cause, got %v", err)
	}
}

func TestFinalizeRejectsPendingShipping(t *testing.T) {
	fx := newFinalizerFixture(t)
	in := exampleInput()
	in.ShippingInfos[0].Quote = shipping.Quote{Status: enums.QuoteStatusPending}

	_, err := fx.finalizer.Finalize(context.Background(), in)
	if pkgerrors.As(err).Code() != pkgerrors.CodeFinalize {
		t.Fatalf("expected finalize failure, got %v", err)
	}
}

func TestFinalizeRequiresSuccessfulPayment(t *testing.T) {
	fx := newFinalizerFixture(t)
	in := exampleInput()
	in.Payment = payments.Cancelled(enums.PaymentProviderPaystack, "evp_abc")

	_, err := fx.finalizer.Finalize(context.Background(), in)
	if pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if len(fx.repo.failures) != 0 {
		t.Fatalf("no failure should be recorded before payment success")
	}
}

func TestFinalizeRejectsInvalidKey(t *testing.T) {
	fx := newFinalizerFixture(t)
	in := exampleInput()
	in.IdempotencyKey = "not-a-key"

	_, err := fx.finalizer.Finalize(context.Background(), in)
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFinalizeStorageFailureIsRecorded(t *testing.T) {
	fx := newFinalizerFixture(t)
	fx.repo.createErr = errors.New("connection reset")

	_, err := fx.finalizer.Finalize(context.Background(), exampleInput())
	if pkgerrors.As(err).Code() != pkgerrors.CodeFinalize {
		t.Fatalf("expected finalize failure, got %v", err)
	}
	if len(fx.repo.failures) != 1 {
		t.Fatalf("expected failure recorded, got %d", len(fx.repo.failures))
	}
}

func TestFinalizeLockErrorIsRecorded(t *testing.T) {
	fx := newFinalizerFixture(t)
	fx.locks.err = errors.New("redis down")

	_, err := fx.finalizer.Finalize(context.Background(), exampleInput())
	if pkgerrors.As(err).Code() != pkgerrors.CodeFinalize {
		t.Fatalf("expected finalize failure, got %v", err)
	}
}

func TestFinalizeHeldLockReturnsInProgress(t *testing.T) {
	fx := newFinalizerFixture(t)
	in := exampleInput()
	fx.locks.held[fx.locks.LockKey(finalizeLockScope, in.IdempotencyKey)] = "other-holder"

	_, err := fx.finalizer.Finalize(context.Background(), in)
	if !errors.Is(err, ErrFinalizeInProgress) {
		t.Fatalf("expected ErrFinalizeInProgress, got %v", err)
	}
	if fx.repo.orderCount() != 0 {
		t.Fatalf("expected no order while the lock is held")
	}
}

func TestFinalizeKeepsLockTakenOverByAnotherCaller(t *testing.T) {
	fx := newFinalizerFixture(t)
	fx.locks.takeover = "sess-456:later-holder"
	in := exampleInput()

	if _, err := fx.finalizer.Finalize(context.Background(), in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	key := fx.locks.LockKey(finalizeLockScope, in.IdempotencyKey)
	if got := fx.locks.held[key]; got != "sess-456:later-holder" {
		t.Fatalf("expected the later holder's lock to survive, got %q", got)
	}
}

func TestFinalizeTicketOnlyHasNoFulfillmentLines(t *testing.T) {
	fx := newFinalizerFixture(t)
	in := exampleInput()
	in.Items = in.Items[:1]
	in.LineItems = []cart.FinalizeLine{cart.LineFromItem(in.Items[0])}
	in.ShippingInfos = nil
	in.Shipping = cart.ShippingSelection{}
	in.ClientTotals = pricing.Totals{Currency: enums.CurrencyNGN, ItemsSubtotalMinor: 1000000, BuyerFeesMinor: 25000, TotalDueMinor: 1025000}
	in.Payment.AmountMinor = 1025000

	res, err := fx.finalizer.Finalize(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.FulfillmentLinesAdded != 0 {
		t.Fatalf("expected no fulfillment lines, got %d", res.FulfillmentLinesAdded)
	}
	order, _ := fx.repo.FindByID(context.Background(), res.OrderID)
	if order.ShippingMethod != nil || order.ShippingAddress != nil {
		t.Fatalf("ticket-only order must not carry shipping")
	}
}

func TestRecordUnmatchedPaymentWritesFailureAndEvent(t *testing.T) {
	fx := newFinalizerFixture(t)
	eventID := uuid.New()

	err := fx.finalizer.RecordUnmatchedPayment(context.Background(), UnmatchedPayment{
		SessionID:  "sess-123",
		EventID:    eventID,
		BuyerEmail: " Ada@Example.com ",
		Payment:    payments.Success(enums.PaymentProviderPaystack, "evp_old", 3175000, enums.CurrencyNGN),
		Reason:     "payment reference does not match the open payment",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fx.repo.failures) != 1 {
		t.Fatalf("expected one failure row, got %d", len(fx.repo.failures))
	}
	got := fx.repo.failures[0]
	if got.PaymentReference != "evp_old" || got.AmountMinor != 3175000 || got.EventID != eventID ||
		got.BuyerEmail != "ada@example.com" || got.ErrorMessage != "payment reference does not match the open payment" {
		t.Fatalf("unexpected failure row %+v", got)
	}
	if n := fx.outbox.count(enums.EventFinalizeFailed); n != 1 {
		t.Fatalf("expected finalize_failed event, got %d", n)
	}
	if fx.repo.orderCount() != 0 {
		t.Fatal("an unmatched payment creates no order")
	}
}

func TestRecordUnmatchedPaymentRequiresCapture(t *testing.T) {
	fx := newFinalizerFixture(t)

	err := fx.finalizer.RecordUnmatchedPayment(context.Background(), UnmatchedPayment{
		SessionID: "sess-123",
		Payment:   payments.Cancelled(enums.PaymentProviderPaystack, "evp_old"),
	})
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(fx.repo.failures) != 0 {
		t.Fatal("nothing should be recorded")
	}
}
