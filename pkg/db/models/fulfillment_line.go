package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventpass-backend/pkg/enums"
)

// FulfillmentLine tracks one vendor-owned line of an order.
type FulfillmentLine struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID     uuid.UUID               `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_fulfillment_lines_order_line"`
	LineKey     string                  `gorm:"column:line_key;not null;uniqueIndex:ux_fulfillment_lines_order_line"`
	VendorID    string                  `gorm:"column:vendor_id;not null"`
	MerchItemID string                  `gorm:"column:merch_item_id;not null"`
	Qty         int                     `gorm:"column:qty;not null"`
	Status      enums.FulfillmentStatus `gorm:"column:status;type:text;not null;default:'unfulfilled'"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (FulfillmentLine) TableName() string { return "fulfillment_lines" }
