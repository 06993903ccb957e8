package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
	"github.com/angelmondragon/eventpass-backend/pkg/redis"
	"github.com/google/uuid"
)

type fakeBackend struct {
	mu        sync.Mutex
	values    map[string]string
	revisions map[string]int64
	err       error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{values: map[string]string{}, revisions: map[string]int64{}}
}

func (b *fakeBackend) Get(_ context.Context, key string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return "", b.err
	}
	v, ok := b.values[key]
	if !ok {
		return "", redis.ErrNil
	}
	return v, nil
}

func (b *fakeBackend) CompareAndSet(_ context.Context, key string, expected, next int64, value string, _ time.Duration) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return false, b.err
	}
	if b.revisions[key] != expected {
		return false, nil
	}
	b.values[key] = value
	b.revisions[key] = next
	return true, nil
}

func (b *fakeBackend) CheckoutSessionKey(id string) string { return "checkout:session:{" + id + "}" }

func TestRedisStoreSaveIsCompareAndSet(t *testing.T) {
	store, err := NewRedisStore(newFakeBackend(), time.Hour)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	session := NewSession(uuid.New(), nil, enums.CurrencyNGN, time.Now())

	ok, err := store.Save(ctx, session, 0)
	if err != nil || !ok {
		t.Fatalf("create: ok=%v err=%v", ok, err)
	}
	if session.Revision != 1 {
		t.Fatalf("expected revision 1, got %d", session.Revision)
	}

	first, _ := store.Get(ctx, session.ID)
	second, _ := store.Get(ctx, session.ID)

	first.Cart.TermsAccepted = true
	if ok, err := store.Save(ctx, first, first.Revision); err != nil || !ok {
		t.Fatalf("first writer: ok=%v err=%v", ok, err)
	}

	second.Cart.Contact.Email = "late@example.com"
	ok, err = store.Save(ctx, second, second.Revision)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("stale writer must be rejected")
	}
	if second.Revision != 1 {
		t.Fatalf("rejected save must keep the loaded revision, got %d", second.Revision)
	}

	stored, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !stored.Cart.TermsAccepted || stored.Cart.Contact.Email != "" || stored.Revision != 2 {
		t.Fatalf("unexpected stored session %+v", stored)
	}
}

func TestRedisStoreErrors(t *testing.T) {
	backend := newFakeBackend()
	store, _ := NewRedisStore(backend, 0)

	_, err := store.Get(context.Background(), "missing")
	if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	backend.err = errors.New("connection refused")
	_, err = store.Get(context.Background(), "any")
	if pkgerrors.As(err).Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}

	if _, err := NewRedisStore(nil, time.Hour); err == nil {
		t.Fatal("expected nil backend to be rejected")
	}
}
