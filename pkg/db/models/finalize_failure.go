package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventpass-backend/pkg/enums"
)

// FinalizeFailure records a captured payment whose order could not be written.
type FinalizeFailure struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CheckoutSessionID string                `gorm:"column:checkout_session_id;not null"`
	IdempotencyKey    string                `gorm:"column:idempotency_key;not null"`
	EventID           uuid.UUID             `gorm:"column:event_id;type:uuid;not null"`
	BuyerEmail        string                `gorm:"column:buyer_email;not null"`
	Provider          enums.PaymentProvider `gorm:"column:provider;type:text;not null"`
	PaymentReference  string                `gorm:"column:payment_reference;not null"`
	AmountMinor       int64                 `gorm:"column:amount_minor;not null"`
	Currency          enums.Currency        `gorm:"column:currency;type:text;not null"`
	ErrorMessage      string                `gorm:"column:error_message;not null"`
	ResolvedAt        *time.Time            `gorm:"column:resolved_at"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (FinalizeFailure) TableName() string { return "finalize_failures" }
