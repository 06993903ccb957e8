package webhooks

import (
	"context"

	"github.com/angelmondragon/eventpass-backend/internal/payments"
)

type outcomeHandler interface {
	HandleWebhookOutcome(ctx context.Context, outcome payments.Outcome) error
}

type deliveryGuard interface {
	CheckAndMark(ctx context.Context, deliveryID string) (bool, error)
	Release(ctx context.Context, deliveryID string) error
}
