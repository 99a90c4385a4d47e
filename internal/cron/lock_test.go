package cron

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeRedisStore struct {
	data map[string]string
}

func newFakeRedisStore() *fakeRedisStore {
	return &fakeRedisStore{data: make(map[string]string)}
}

func (f *fakeRedisStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeRedisStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeRedisStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func TestRedisLockAcquireAndRelease(t *testing.T) {
	store := newFakeRedisStore()
	lock, err := NewRedisLock(store, "test", 0)
	if err != nil {
		t.Fatalf("construct lock: %v", err)
	}

	ok, err := lock.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !ok {
		t.Fatal("expected lock acquired")
	}
	if len(store.data) != 1 {
		t.Fatalf("expected 1 key, got %d", len(store.data))
	}

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(store.data) != 0 {
		t.Fatalf("expected lock key removed, got %d keys", len(store.data))
	}
}

func TestRedisLockSecondAcquireBlocked(t *testing.T) {
	store := newFakeRedisStore()
	first, err := NewRedisLock(store, "test", 0)
	if err != nil {
		t.Fatalf("construct lock: %v", err)
	}
	second, err := NewRedisLock(store, "test", 0)
	if err != nil {
		t.Fatalf("construct lock: %v", err)
	}

	if ok, err := first.Acquire(context.Background()); err != nil || !ok {
		t.Fatalf("first acquire ok=%v err=%v", ok, err)
	}
	if ok, err := second.Acquire(context.Background()); err != nil || ok {
		t.Fatalf("second acquire should be blocked, ok=%v err=%v", ok, err)
	}
}

func TestRedisLockReleaseKeepsForeignOwner(t *testing.T) {
	store := newFakeRedisStore()
	lock, err := NewRedisLock(store, "test", 0)
	if err != nil {
		t.Fatalf("construct lock: %v", err)
	}
	if ok, _ := lock.Acquire(context.Background()); !ok {
		t.Fatal("expected lock acquired")
	}

	// Simulate the TTL expiring and another replica taking the lock.
	for key := range store.data {
		store.data[key] = "someone-else"
	}
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(store.data) != 1 {
		t.Fatal("expected foreign lock to survive release")
	}
}
