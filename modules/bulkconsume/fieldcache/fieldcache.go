// Package fieldcache memoizes fieldName -> fieldType lookups for the
// field-filter resolver, so repeated qp parses on the same session do not
// re-resolve types against the index's metadata.
package fieldcache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache looks up and stores a field's resolved type by name.
type Cache interface {
	Get(ctx context.Context, field string) (fieldType string, ok bool, err error)
	Put(ctx context.Context, field, fieldType string) error
}

// LRU is an in-process field-types cache, the default for a single
// coordinator instance.
type LRU struct {
	cache *lru.Cache[string, string]
}

// NewLRU builds an in-process cache holding up to size entries.
func NewLRU(size int) (*LRU, error) {
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &LRU{cache: c}, nil
}

// Get implements Cache.
func (l *LRU) Get(_ context.Context, field string) (string, bool, error) {
	v, ok := l.cache.Get(field)
	return v, ok, nil
}

// Put implements Cache.
func (l *LRU) Put(_ context.Context, field, fieldType string) error {
	l.cache.Add(field, fieldType)
	return nil
}

// Redis is a shared field-types cache, used when several coordinator
// replicas sit behind a load balancer and should not each independently
// relearn the same field's type.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis builds a Redis-backed cache. keyPrefix namespaces entries (e.g.
// per-tenant); ttl of zero means entries never expire.
func NewRedis(client *redis.Client, keyPrefix string, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: keyPrefix, ttl: ttl}
}

func (r *Redis) key(field string) string {
	return r.prefix + ":fieldtype:" + field
}

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, field string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.key(field)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Put implements Cache.
func (r *Redis) Put(ctx context.Context, field, fieldType string) error {
	return r.client.Set(ctx, r.key(field), fieldType, r.ttl).Err()
}
