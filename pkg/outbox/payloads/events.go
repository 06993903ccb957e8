package payloads

import (
	"time"

	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	"github.com/google/uuid"
)

// OrderCreatedEvent is emitted once when checkout finalize writes an order.
type OrderCreatedEvent struct {
	OrderID          uuid.UUID             `json:"order_id"`
	CheckoutSession  string                `json:"checkout_session_id"`
	EventID          uuid.UUID             `json:"event_id"`
	BuyerUserID      *uuid.UUID            `json:"buyer_user_id,omitempty"`
	DeliverToEmail   string                `json:"deliver_to_email"`
	Provider         enums.PaymentProvider `json:"provider"`
	PaymentReference string                `json:"payment_reference"`
	Currency         enums.Currency        `json:"currency"`
	TotalDueMinor    int64                 `json:"total_due_minor"`
	VendorIDs        []string              `json:"vendor_ids"`
	FulfillmentLines int                   `json:"fulfillment_lines"`
}

// FulfillmentStatusChangedEvent tracks fulfillment tooling updates.
type FulfillmentStatusChangedEvent struct {
	OrderID           uuid.UUID               `json:"order_id"`
	FulfillmentLineID uuid.UUID               `json:"fulfillment_line_id"`
	VendorID          string                  `json:"vendor_id"`
	From              enums.FulfillmentStatus `json:"from"`
	To                enums.FulfillmentStatus `json:"to"`
	ChangedAt         time.Time               `json:"changed_at"`
}

// FinalizeFailedEvent alerts ops that a captured payment has no order.
type FinalizeFailedEvent struct {
	FailureID        uuid.UUID             `json:"failure_id"`
	CheckoutSession  string                `json:"checkout_session_id"`
	Provider         enums.PaymentProvider `json:"provider"`
	PaymentReference string                `json:"payment_reference"`
	AmountMinor      int64                 `json:"amount_minor"`
	Currency         enums.Currency        `json:"currency"`
	Error            string                `json:"error"`
}
