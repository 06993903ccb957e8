package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
	"github.com/angelmondragon/eventpass-backend/pkg/redis"
)

const defaultSessionTTL = 24 * time.Hour

// Store persists checkout sessions. Save is a compare-and-set on the revision
// the caller loaded: it reports false when someone else wrote first.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, session *Session, expectedRevision int64) (bool, error)
}

type sessionBackend interface {
	Get(ctx context.Context, key string) (string, error)
	CompareAndSet(ctx context.Context, key string, expected, next int64, value string, ttl time.Duration) (bool, error)
	CheckoutSessionKey(sessionID string) string
}

// RedisStore keeps sessions as JSON next to a revision counter.
type RedisStore struct {
	backend sessionBackend
	ttl     time.Duration
}

func NewRedisStore(backend sessionBackend, ttl time.Duration) (*RedisStore, error) {
	if backend == nil {
		return nil, fmt.Errorf("redis backend required")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisStore{backend: backend, ttl: ttl}, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := s.backend.Get(ctx, s.backend.CheckoutSessionKey(id))
	if err != nil {
		if redis.IsNil(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
	}
	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode checkout session")
	}
	return &session, nil
}

// Save writes session with revision expectedRevision+1. Creating a session is
// a Save against revision 0.
func (s *RedisStore) Save(ctx context.Context, session *Session, expectedRevision int64) (bool, error) {
	session.Revision = expectedRevision + 1
	payload, err := json.Marshal(session)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode checkout session")
	}
	ok, err := s.backend.CompareAndSet(ctx, s.backend.CheckoutSessionKey(session.ID), expectedRevision, session.Revision, string(payload), s.ttl)
	if err != nil {
		session.Revision = expectedRevision
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save checkout session")
	}
	if !ok {
		session.Revision = expectedRevision
	}
	return ok, nil
}
