package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/eventpass-backend/pkg/redis"
)

// Guard remembers processed gateway deliveries so retries are acknowledged
// without being applied twice.
type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &Guard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// CheckAndMark reports whether deliveryID was already seen, marking it when
// it was not.
func (g *Guard) CheckAndMark(ctx context.Context, deliveryID string) (bool, error) {
	if deliveryID == "" {
		return false, errors.New("delivery id is required")
	}
	key := g.store.IdempotencyKey(g.scope, deliveryID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set webhook guard key: %w", err)
	}
	return !set, nil
}

// Release forgets a delivery so the gateway's retry is processed again.
func (g *Guard) Release(ctx context.Context, deliveryID string) error {
	if deliveryID == "" {
		return errors.New("delivery id is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, deliveryID))
}
