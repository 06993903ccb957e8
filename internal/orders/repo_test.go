package orders

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)

	orders := `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  idempotency_key TEXT NOT NULL UNIQUE,
  checkout_session_id TEXT NOT NULL,
  event_id TEXT NOT NULL,
  buyer_user_id TEXT,
  deliver_to_email TEXT NOT NULL,
  deliver_to_phone TEXT NOT NULL,
  deliver_to_name TEXT,
  provider TEXT NOT NULL,
  provider_init_ref TEXT NOT NULL,
  provider_verify_ref TEXT NOT NULL,
  currency TEXT NOT NULL,
  line_items TEXT NOT NULL,
  client_totals TEXT NOT NULL,
  shipping_method TEXT,
  shipping_address TEXT,
  subtotal_minor INTEGER NOT NULL,
  buyer_fees_minor INTEGER NOT NULL DEFAULT 0,
  shipping_fee_minor INTEGER NOT NULL DEFAULT 0,
  total_due_minor INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'paid',
  created_at DATETIME,
  updated_at DATETIME
);`
	lines := `
CREATE TABLE IF NOT EXISTS fulfillment_lines (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  line_key TEXT NOT NULL,
  vendor_id TEXT NOT NULL,
  merch_item_id TEXT NOT NULL,
  qty INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'unfulfilled',
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (order_id, line_key)
);`
	failures := `
CREATE TABLE IF NOT EXISTS finalize_failures (
  id TEXT PRIMARY KEY,
  checkout_session_id TEXT NOT NULL,
  idempotency_key TEXT NOT NULL,
  event_id TEXT NOT NULL,
  buyer_email TEXT NOT NULL,
  provider TEXT NOT NULL,
  payment_reference TEXT NOT NULL,
  amount_minor INTEGER NOT NULL,
  currency TEXT NOT NULL,
  error_message TEXT NOT NULL,
  resolved_at DATETIME,
  created_at DATETIME
);`
	for _, stmt := range []string{orders, lines, failures} {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func sampleOrder(key string) *models.Order {
	return &models.Order{
		IdempotencyKey:    key,
		CheckoutSessionID: "sess-1",
		EventID:           uuid.New(),
		DeliverToEmail:    "ada@example.com",
		DeliverToPhone:    "+2348000000000",
		DeliverToName:     "Ada Obi",
		Provider:          enums.PaymentProviderPaystack,
		ProviderInitRef:   "evp_ref",
		ProviderVerifyRef: "evp_ref",
		Currency:          enums.CurrencyNGN,
		LineItems: []models.OrderLine{
			{Type: enums.CartItemTypeTicket, TicketTypeID: "tt-general", Qty: 2},
		},
		ClientTotals: models.OrderTotals{
			Currency:           enums.CurrencyNGN,
			ItemsSubtotalMinor: 1000000,
			TotalDueMinor:      1025000,
		},
		SubtotalMinor:  1000000,
		BuyerFeesMinor: 25000,
		TotalDueMinor:  1025000,
		Status:         enums.OrderStatusPaid,
	}
}

func TestRepositoryCreateOrderIsIdempotent(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	first, created, err := repo.CreateOrder(ctx, sampleOrder("chk_same"))
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := repo.CreateOrder(ctx, sampleOrder("chk_same"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&models.Order{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	loaded, err := repo.FindByIdempotencyKey(ctx, "chk_same")
	require.NoError(t, err)
	assert.Equal(t, int64(1025000), loaded.TotalDueMinor)
	assert.Len(t, loaded.LineItems, 1)
}

func TestRepositoryEnsureFulfillmentLinesSkipsExisting(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order, _, err := repo.CreateOrder(ctx, sampleOrder("chk_lines"))
	require.NoError(t, err)

	lines := []models.FulfillmentLine{
		{LineKey: "merch:cap:L:black", VendorID: "vendor-a", MerchItemID: "cap", Qty: 1},
		{LineKey: "merch:tee", VendorID: "vendor-b", MerchItemID: "tee", Qty: 2},
	}
	added, err := repo.EnsureFulfillmentLines(ctx, order.ID, lines)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = repo.EnsureFulfillmentLines(ctx, order.ID, lines)
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	loaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, loaded.FulfillmentLines, 2)
	for _, line := range loaded.FulfillmentLines {
		assert.Equal(t, enums.FulfillmentStatusUnfulfilled, line.Status)
	}
}

func TestRepositoryUpdateFulfillmentStatusIsConditional(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order, _, err := repo.CreateOrder(ctx, sampleOrder("chk_status"))
	require.NoError(t, err)
	_, err = repo.EnsureFulfillmentLines(ctx, order.ID, []models.FulfillmentLine{
		{LineKey: "merch:tee", VendorID: "vendor-a", MerchItemID: "tee", Qty: 1},
	})
	require.NoError(t, err)

	loaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	lineID := loaded.FulfillmentLines[0].ID

	ok, err := repo.UpdateFulfillmentStatus(ctx, lineID, enums.FulfillmentStatusUnfulfilled, enums.FulfillmentStatusShipped)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.UpdateFulfillmentStatus(ctx, lineID, enums.FulfillmentStatusUnfulfilled, enums.FulfillmentStatusCancelled)
	require.NoError(t, err)
	assert.False(t, ok)

	line, err := repo.FindFulfillmentLine(ctx, order.ID, lineID)
	require.NoError(t, err)
	assert.Equal(t, enums.FulfillmentStatusShipped, line.Status)
}

func TestRepositoryRecordFinalizeFailure(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	failure := &models.FinalizeFailure{
		CheckoutSessionID: "sess-1",
		IdempotencyKey:    "chk_fail",
		EventID:           uuid.New(),
		BuyerEmail:        "ada@example.com",
		Provider:          enums.PaymentProviderStripe,
		PaymentReference:  "pi_123",
		AmountMinor:       3175000,
		Currency:          enums.CurrencyNGN,
		ErrorMessage:      "totals drifted",
	}
	require.NoError(t, repo.RecordFinalizeFailure(context.Background(), failure))
	assert.NotEqual(t, uuid.Nil, failure.ID)

	var stored models.FinalizeFailure
	require.NoError(t, db.First(&stored, "payment_reference = ?", "pi_123").Error)
	assert.Equal(t, "chk_fail", stored.IdempotencyKey)
	assert.Nil(t, stored.ResolvedAt)

	assert.Error(t, repo.RecordFinalizeFailure(context.Background(), nil))
}
