package storage

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/123123eeqweq/omocrm/domain"
)

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := OpenSQL(context.Background(), BackendSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLStoreGetMissingReturnsEmpty(t *testing.T) {
	store := newTestSQLStore(t)

	doc, err := store.Get(context.Background(), "never-written")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(doc.Cards) != "[]" || string(doc.Steps) != "[]" {
		t.Fatalf("expected empty collections, got cards=%s steps=%s", doc.Cards, doc.Steps)
	}
}

func TestSQLStoreRoundTripPreservesArbitraryJSON(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()

	in := domain.Document{
		Cards: json.RawMessage(`[{"id":"c1","columnId":"plans","title":"X","meta":{"color":"red","tags":[1,2]}}]`),
		Steps: json.RawMessage(`[{"id":"s1","title":"Один","completed":true},{"id":"s2","title":"two"}]`),
	}
	if _, err := store.Upsert(ctx, "p1", in); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	out, err := store.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	assertSameJSON(t, in.Cards, out.Cards)
	assertSameJSON(t, in.Steps, out.Steps)
}

func TestSQLStoreUpsertReplacesAndIsIdempotent(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()

	first := domain.Document{Cards: json.RawMessage(`[{"id":"a"}]`), Steps: json.RawMessage(`[{"id":"s"}]`)}
	second := domain.Document{Cards: json.RawMessage(`[{"id":"b"}]`), Steps: json.RawMessage(`[]`)}

	if _, err := store.Upsert(ctx, "p1", first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	stored, err := store.Upsert(ctx, "p1", second)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	assertSameJSON(t, second.Cards, stored.Cards)
	assertSameJSON(t, second.Steps, stored.Steps)

	again, err := store.Upsert(ctx, "p1", second)
	if err != nil {
		t.Fatalf("repeat upsert: %v", err)
	}
	assertSameJSON(t, stored.Cards, again.Cards)
	assertSameJSON(t, stored.Steps, again.Steps)
}

func TestSQLStoreUpsertAdvancesUpdatedAt(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	first, err := store.Upsert(ctx, "p1", domain.EmptyDocument())
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	store.now = func() time.Time { return base.Add(time.Minute) }
	second, err := store.Upsert(ctx, "p1", domain.EmptyDocument())
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Fatalf("updatedAt did not advance: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}
}

func TestSQLStoreNullCollectionsReadBackEmpty(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()

	if _, err := store.Upsert(ctx, "p1", domain.Document{Cards: json.RawMessage("null")}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	doc, err := store.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(doc.Cards) != "[]" || string(doc.Steps) != "[]" {
		t.Fatalf("expected empty collections, got cards=%s steps=%s", doc.Cards, doc.Steps)
	}
}

func TestSQLStoreMigrationsAreReentrant(t *testing.T) {
	store := newTestSQLStore(t)
	if err := applyMigrations(context.Background(), store.db, store.dialect); err != nil {
		t.Fatalf("second migration run: %v", err)
	}
	var count int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 recorded migration, got %d", count)
	}
}

func TestSQLStoreFaultsWrapOperationFailed(t *testing.T) {
	store := newTestSQLStore(t)
	_ = store.db.Close()

	_, err := store.Get(context.Background(), "p1")
	if !errors.Is(err, ErrOperationFailed) {
		t.Fatalf("expected ErrOperationFailed, got %v", err)
	}
	_, err = store.Upsert(context.Background(), "p1", domain.EmptyDocument())
	if !errors.Is(err, ErrOperationFailed) {
		t.Fatalf("expected ErrOperationFailed, got %v", err)
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), Options{Backend: "mongo"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func assertSameJSON(t *testing.T, want, got json.RawMessage) {
	t.Helper()
	var w, g any
	if err := json.Unmarshal(want, &w); err != nil {
		t.Fatalf("decode want: %v", err)
	}
	if err := json.Unmarshal(got, &g); err != nil {
		t.Fatalf("decode got %s: %v", got, err)
	}
	if !reflect.DeepEqual(w, g) {
		t.Fatalf("json mismatch:\nwant %s\ngot  %s", want, got)
	}
}
