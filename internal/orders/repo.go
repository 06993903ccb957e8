package orders

import (
	"context"
	"errors"

	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, bool, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	res := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(order)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return order, true, nil
	}

	existing, err := r.FindByIdempotencyKey(ctx, order.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("FulfillmentLines", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("line_key ASC")
		}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) EnsureFulfillmentLines(ctx context.Context, orderID uuid.UUID, lines []models.FulfillmentLine) (int, error) {
	if len(lines) == 0 {
		return 0, nil
	}
	rows := make([]models.FulfillmentLine, 0, len(lines))
	for _, line := range lines {
		line.OrderID = orderID
		if line.ID == uuid.Nil {
			line.ID = uuid.New()
		}
		if line.Status == "" {
			line.Status = enums.FulfillmentStatusUnfulfilled
		}
		rows = append(rows, line)
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "line_key"}},
			DoNothing: true,
		}).
		Create(&rows)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (r *repository) FindFulfillmentLine(ctx context.Context, orderID, lineID uuid.UUID) (*models.FulfillmentLine, error) {
	var line models.FulfillmentLine
	err := r.db.WithContext(ctx).
		Where("id = ? AND order_id = ?", lineID, orderID).
		First(&line).Error
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// UpdateFulfillmentStatus moves a line from one status to another. It reports
// false when the line is no longer in the expected status.
func (r *repository) UpdateFulfillmentStatus(ctx context.Context, lineID uuid.UUID, from, to enums.FulfillmentStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.FulfillmentLine{}).
		Where("id = ? AND status = ?", lineID, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) RecordFinalizeFailure(ctx context.Context, failure *models.FinalizeFailure) error {
	if failure == nil {
		return errors.New("finalize failure required")
	}
	if failure.ID == uuid.Nil {
		failure.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(failure).Error
}
