// Package readmodel caches read-side projections in Redis. A cache miss or
// failure is never fatal; readers fall back to the record store.
package readmodel

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noa1020/Finance-master/internal/models"
)

// Cache is a JSON-backed Redis cache bound to one view type. A zero TTL
// means keys never expire.
type Cache[T any] struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache[T any](client *redis.Client, ttl time.Duration) *Cache[T] {
	return &Cache[T]{client: client, ttl: ttl}
}

// Get returns (nil, false) on any miss or deserialisation error.
func (c *Cache[T]) Get(ctx context.Context, key string) (*T, bool) {
	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return nil, false
	}
	var v T
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, false
	}
	return &v, true
}

// Set stores value under key. Failures are logged, not returned.
func (c *Cache[T]) Set(ctx context.Context, key string, value *T) {
	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("readmodel: marshal %s: %v", key, err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Printf("readmodel: write %s: %v", key, err)
	}
}

// Delete removes a key.
func (c *Cache[T]) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		log.Printf("readmodel: delete %s: %v", key, err)
	}
}

const userViewKeyPrefix = "user:view:"

// UserViews caches user projections. The ledger refreshes an entry after
// every balance write; the cascade coordinator invalidates it.
type UserViews struct {
	cache *Cache[models.UserView]
}

func NewUserViews(client *redis.Client) *UserViews {
	return &UserViews{cache: NewCache[models.UserView](client, 0)}
}

func userViewKey(id int64) string {
	return fmt.Sprintf("%s%d", userViewKeyPrefix, id)
}

func (uv *UserViews) Get(ctx context.Context, id int64) (*models.UserView, bool) {
	if uv == nil {
		return nil, false
	}
	return uv.cache.Get(ctx, userViewKey(id))
}

func (uv *UserViews) Put(ctx context.Context, view models.UserView) {
	if uv == nil {
		return
	}
	uv.cache.Set(ctx, userViewKey(view.ID), &view)
}

func (uv *UserViews) Invalidate(ctx context.Context, id int64) {
	if uv == nil {
		return
	}
	uv.cache.Delete(ctx, userViewKey(id))
}
