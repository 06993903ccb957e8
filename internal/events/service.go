package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/angelmondragon/eventpass-backend/pkg/db"
	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
	"github.com/angelmondragon/eventpass-backend/pkg/redis"
	"github.com/google/uuid"
)

const (
	cacheScope      = "event"
	defaultCacheTTL = 5 * time.Minute
)

// Event is the summary shown next to the checkout. It is display data only;
// prices always come from the cart lines.
type Event struct {
	ID       uuid.UUID      `json:"id"`
	Title    string         `json:"title"`
	Slug     string         `json:"slug"`
	Venue    *string        `json:"venue,omitempty"`
	City     *string        `json:"city,omitempty"`
	Currency enums.Currency `json:"currency"`
	StartsAt time.Time      `json:"startsAt"`
	EndsAt   *time.Time     `json:"endsAt,omitempty"`
	CoverURL *string        `json:"coverUrl,omitempty"`
}

type Service interface {
	FetchEventByID(ctx context.Context, id uuid.UUID) (*Event, error)
}

type cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CacheKey(scope, id string) string
}

type service struct {
	repo  Repository
	cache cache
	ttl   time.Duration
	logg  *logger.Logger
}

// NewService builds the event lookup. cache may be nil.
func NewService(repo Repository, c cache, ttl time.Duration, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("events repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &service{repo: repo, cache: c, ttl: ttl, logg: logg}, nil
}

// FetchEventByID reads through the cache. Cache failures only cost a DB read.
func (s *service) FetchEventByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}

	var key string
	if s.cache != nil {
		key = s.cache.CacheKey(cacheScope, id.String())
		raw, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			var cached Event
			if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
				return &cached, nil
			}
		case !redis.IsNil(err):
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "event cache read failed")
		}
	}

	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load event")
	}
	event := fromModel(record)

	if s.cache != nil {
		if payload, err := json.Marshal(event); err == nil {
			if err := s.cache.Set(ctx, key, string(payload), s.ttl); err != nil {
				s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "event cache write failed")
			}
		}
	}
	return &event, nil
}

func fromModel(m *models.Event) Event {
	return Event{
		ID:       m.ID,
		Title:    m.Title,
		Slug:     m.Slug,
		Venue:    m.Venue,
		City:     m.City,
		Currency: m.Currency,
		StartsAt: m.StartsAt,
		EndsAt:   m.EndsAt,
		CoverURL: m.CoverURL,
	}
}
