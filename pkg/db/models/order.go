package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventpass-backend/pkg/enums"
)

// Order is created exactly once per successful checkout finalize.
type Order struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	IdempotencyKey    string                `gorm:"column:idempotency_key;not null;uniqueIndex:ux_orders_idempotency_key"`
	CheckoutSessionID string                `gorm:"column:checkout_session_id;not null"`
	EventID           uuid.UUID             `gorm:"column:event_id;type:uuid;not null"`
	BuyerUserID       *uuid.UUID            `gorm:"column:buyer_user_id;type:uuid"`
	DeliverToEmail    string                `gorm:"column:deliver_to_email;not null"`
	DeliverToPhone    string                `gorm:"column:deliver_to_phone;not null"`
	DeliverToName     string                `gorm:"column:deliver_to_name"`
	Provider          enums.PaymentProvider `gorm:"column:provider;type:text;not null"`
	ProviderInitRef   string                `gorm:"column:provider_init_ref;not null"`
	ProviderVerifyRef string                `gorm:"column:provider_verify_ref;not null"`
	Currency          enums.Currency        `gorm:"column:currency;type:text;not null"`
	LineItems         []OrderLine           `gorm:"column:line_items;type:jsonb;serializer:json;not null"`
	ClientTotals      OrderTotals           `gorm:"column:client_totals;type:jsonb;serializer:json;not null"`
	ShippingMethod    *enums.ShippingMethod `gorm:"column:shipping_method;type:text"`
	ShippingAddress   *ShippingAddress      `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	SubtotalMinor     int64                 `gorm:"column:subtotal_minor;not null"`
	BuyerFeesMinor    int64                 `gorm:"column:buyer_fees_minor;not null;default:0"`
	ShippingFeeMinor  int64                 `gorm:"column:shipping_fee_minor;not null;default:0"`
	TotalDueMinor     int64                 `gorm:"column:total_due_minor;not null"`
	Status            enums.OrderStatus     `gorm:"column:status;type:text;not null;default:'paid'"`
	FulfillmentLines  []FulfillmentLine     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderLine is a line item reduced to its identity, stripped of display fields.
type OrderLine struct {
	Type         enums.CartItemType `json:"_type"`
	TicketTypeID string             `json:"ticketTypeId,omitempty"`
	MerchItemID  string             `json:"merchItemId,omitempty"`
	Qty          int                `json:"qty"`
	Size         string             `json:"size,omitempty"`
	Color        string             `json:"color,omitempty"`
}

// OrderTotals are the totals the client declared when opening the payment.
type OrderTotals struct {
	Currency           enums.Currency `json:"currency"`
	ItemsSubtotalMinor int64          `json:"itemsSubtotalMinor"`
	BuyerFeesMinor     int64          `json:"buyerFeesMinor"`
	AbsorbedFeesMinor  int64          `json:"absorbedFeesMinor"`
	ShippingFeeMinor   int64          `json:"shippingFeeMinor"`
	TotalDueMinor      int64          `json:"totalDueMinor"`
}

type ShippingAddress struct {
	State      string `json:"state"`
	City       string `json:"city,omitempty"`
	Name       string `json:"name,omitempty"`
	Phone      string `json:"phone,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
}

func (Order) TableName() string { return "orders" }
