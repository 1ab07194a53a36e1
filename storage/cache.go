package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/123123eeqweq/omocrm/domain"
)

// Cache wraps a Repository with a Redis read-through cache. Upserts evict the
// cached entry so the next read observes the stored state.
type Cache struct {
	base  Repository
	redis *redis.Client
	ttl   time.Duration
}

type cachedBoard struct {
	Cards     json.RawMessage `json:"cards"`
	Steps     json.RawMessage `json:"steps"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// NewCache creates a caching Repository using the provided Redis client and TTL.
// A zero TTL disables storing entries.
func NewCache(base Repository, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base repository is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) Get(ctx context.Context, projectID string) (domain.Document, error) {
	if doc, ok := c.load(ctx, projectID); ok {
		return doc, nil
	}

	doc, err := c.base.Get(ctx, projectID)
	if err != nil {
		return domain.Document{}, err
	}

	c.store(ctx, projectID, doc)
	return doc, nil
}

func (c *Cache) Upsert(ctx context.Context, projectID string, doc domain.Document) (domain.Document, error) {
	stored, err := c.base.Upsert(ctx, projectID, doc)
	if err != nil {
		return domain.Document{}, err
	}

	c.evict(ctx, projectID)
	return stored, nil
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.base.Ping(ctx)
}

func (c *Cache) Close() error {
	return c.base.Close()
}

func (c *Cache) load(ctx context.Context, projectID string) (domain.Document, bool) {
	if c.redis == nil {
		return domain.Document{}, false
	}
	data, err := c.redis.Get(ctx, boardCacheKey(projectID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing repository without failing.
			_ = c.redis.Del(ctx, boardCacheKey(projectID)).Err()
		}
		return domain.Document{}, false
	}
	var cached cachedBoard
	if err := sonic.Unmarshal(data, &cached); err != nil {
		_ = c.redis.Del(ctx, boardCacheKey(projectID)).Err()
		return domain.Document{}, false
	}
	return domain.Document{Cards: cached.Cards, Steps: cached.Steps, UpdatedAt: cached.UpdatedAt}.Normalize(), true
}

func (c *Cache) store(ctx context.Context, projectID string, doc domain.Document) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(cachedBoard{Cards: doc.Cards, Steps: doc.Steps, UpdatedAt: doc.UpdatedAt})
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, boardCacheKey(projectID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, projectID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, boardCacheKey(projectID)).Result()
}

func boardCacheKey(projectID string) string {
	return "board:" + projectID
}
