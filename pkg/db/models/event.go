package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventpass-backend/pkg/enums"
)

// Event is the read-only event record shown on the checkout summary.
type Event struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizerID uuid.UUID      `gorm:"column:organizer_id;type:uuid;not null"`
	Title       string         `gorm:"column:title;not null"`
	Slug        string         `gorm:"column:slug;not null;uniqueIndex"`
	Venue       *string        `gorm:"column:venue"`
	City        *string        `gorm:"column:city"`
	Currency    enums.Currency `gorm:"column:currency;type:text;not null;default:'NGN'"`
	StartsAt    time.Time      `gorm:"column:starts_at;not null"`
	EndsAt      *time.Time     `gorm:"column:ends_at"`
	CoverURL    *string        `gorm:"column:cover_url"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Event) TableName() string { return "events" }
