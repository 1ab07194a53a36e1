package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	rec := Record{ID: "abc", User: "admin", CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)}
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ttl := mr.TTL("sess:abc"); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	got, err := store.Lookup(ctx, "abc")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.User != "admin" || got.ID != "abc" {
		t.Fatalf("unexpected record %+v", got)
	}

	if err := store.Destroy(ctx, "abc"); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if _, err := store.Lookup(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStoreExpires(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	rec := Record{ID: "x", User: "admin", ExpiresAt: time.Now().Add(time.Minute)}
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := store.Lookup(ctx, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestRedisStoreRejectsExpiredRecord(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisStore(client)
	rec := Record{ID: "old", User: "admin", ExpiresAt: time.Now().Add(-time.Second)}
	if err := store.Save(context.Background(), rec); err == nil {
		t.Fatal("expected error for expired record")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_ = store.Save(ctx, Record{ID: "s1", User: "admin", ExpiresAt: now.Add(time.Minute)})
	if _, err := store.Lookup(ctx, "s1"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	now = now.Add(time.Minute)
	if _, err := store.Lookup(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreSweepsExpiredOnSave(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	for _, id := range []string{"s1", "s2", "s3"} {
		_ = store.Save(ctx, Record{ID: id, User: "admin", ExpiresAt: now.Add(time.Minute)})
	}
	_ = store.Save(ctx, Record{ID: "long", User: "admin", ExpiresAt: now.Add(time.Hour)})
	now = now.Add(2 * time.Minute)
	_ = store.Save(ctx, Record{ID: "s4", User: "admin", ExpiresAt: now.Add(time.Minute)})

	store.mu.Lock()
	n := len(store.records)
	_, kept := store.records["long"]
	store.mu.Unlock()
	if n != 2 || !kept {
		t.Fatalf("expected only live records to remain, got %d (long kept: %v)", n, kept)
	}
}

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(NewMemoryStore(), "secret", time.Hour)
	ctx := context.Background()

	token, rec, err := m.Start(ctx, "admin")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if token == "" || rec.User != "admin" {
		t.Fatalf("unexpected start result %q %+v", token, rec)
	}

	got, err := m.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != rec.ID {
		t.Fatalf("expected session %s, got %s", rec.ID, got.ID)
	}

	if err := m.End(ctx, token); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := m.Resolve(ctx, token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid after end, got %v", err)
	}
}

func TestManagerRejectsForeignTokens(t *testing.T) {
	store := NewMemoryStore()
	issuer := NewManager(store, "other-secret", time.Hour)
	m := NewManager(store, "secret", time.Hour)
	ctx := context.Background()

	token, _, err := issuer.Start(ctx, "admin")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	cases := []string{"", "garbage", token}
	for _, tc := range cases {
		if _, err := m.Resolve(ctx, tc); !errors.Is(err, ErrInvalid) {
			t.Fatalf("token %q: expected ErrInvalid, got %v", tc, err)
		}
	}
	if err := m.End(ctx, "garbage"); err != nil {
		t.Fatalf("end with garbage token should be ignored: %v", err)
	}
}

func TestManagerRejectsExpiredToken(t *testing.T) {
	m := NewManager(NewMemoryStore(), "secret", time.Minute)
	base := time.Now()
	m.now = func() time.Time { return base.Add(-2 * time.Minute) }
	m.store.(*MemoryStore).now = func() time.Time { return base.Add(-2 * time.Minute) }

	token, _, err := m.Start(context.Background(), "admin")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := m.Resolve(context.Background(), token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for expired token, got %v", err)
	}
}

func TestManagerWithRedis(t *testing.T) {
	_, client := newTestRedis(t)
	m := NewManager(NewRedisStore(client), "secret", time.Hour)
	ctx := context.Background()

	token, _, err := m.Start(ctx, "admin")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := m.Resolve(ctx, token); err != nil {
		t.Fatalf("resolve: %v", err)
	}
}
