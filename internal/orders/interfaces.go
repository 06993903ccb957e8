package orders

import (
	"context"
	"time"

	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	"github.com/angelmondragon/eventpass-backend/pkg/outbox"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists orders and their fulfillment lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// CreateOrder inserts order unless its idempotency key already exists, in
	// which case the stored order is returned with created=false.
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	// EnsureFulfillmentLines inserts the lines missing for the order and
	// returns how many were added.
	EnsureFulfillmentLines(ctx context.Context, orderID uuid.UUID, lines []models.FulfillmentLine) (int, error)
	FindFulfillmentLine(ctx context.Context, orderID, lineID uuid.UUID) (*models.FulfillmentLine, error)
	UpdateFulfillmentStatus(ctx context.Context, lineID uuid.UUID, from, to enums.FulfillmentStatus) (bool, error)
	RecordFinalizeFailure(ctx context.Context, failure *models.FinalizeFailure) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
	LockKey(scope, id string) string
}
