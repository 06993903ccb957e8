package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/eventpass-backend/pkg/db"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
	"github.com/angelmondragon/eventpass-backend/pkg/outbox"
	"github.com/angelmondragon/eventpass-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service exposes orders to buyers and fulfillment tooling.
type Service interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*OrderDTO, error)
	UpdateFulfillmentStatus(ctx context.Context, orderID, lineID uuid.UUID, next enums.FulfillmentStatus) (*FulfillmentLineDTO, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxEmitter
}

func NewService(repo Repository, tx txRunner, emitter outboxEmitter) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{repo: repo, tx: tx, outbox: emitter}, nil
}

func (s *service) GetOrder(ctx context.Context, id uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	dto := mapOrder(order)
	return &dto, nil
}

// UpdateFulfillmentStatus applies a fulfillment transition. Moves out of a
// terminal status, or skipping shipped, are rejected.
func (s *service) UpdateFulfillmentStatus(ctx context.Context, orderID, lineID uuid.UUID, next enums.FulfillmentStatus) (*FulfillmentLineDTO, error) {
	if !next.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid fulfillment status %q", next))
	}

	var updated *FulfillmentLineDTO
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		line, err := repo.FindFulfillmentLine(ctx, orderID, lineID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "fulfillment line not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load fulfillment line")
		}
		if line.Status == next {
			dto := mapFulfillmentLine(*line)
			updated = &dto
			return nil
		}
		if !line.Status.CanTransitionTo(next) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "fulfillment transition not allowed").
				WithDetails(map[string]any{"from": line.Status, "to": next})
		}

		ok, err := repo.UpdateFulfillmentStatus(ctx, line.ID, line.Status, next)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update fulfillment line")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "fulfillment line changed concurrently")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventFulfillmentStatusChanged,
			AggregateType: enums.AggregateFulfillmentLine,
			AggregateID:   line.ID,
			Version:       1,
			Data: payloads.FulfillmentStatusChangedEvent{
				OrderID:           line.OrderID,
				FulfillmentLineID: line.ID,
				VendorID:          line.VendorID,
				From:              line.Status,
				To:                next,
				ChangedAt:         time.Now().UTC(),
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit fulfillment event")
		}

		line.Status = next
		dto := mapFulfillmentLine(*line)
		updated = &dto
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
