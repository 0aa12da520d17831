// Package cache wraps Redis behind the small key-value contract the
// services need: get, set with TTL, delete, and remaining TTL.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = errors.New("cache miss")

// Cache is the key-value store contract consumed by the services. The
// Redis client implements it in production; tests may substitute fakes.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	GetDel(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// Redis adapts a go-redis client to the Cache contract.
type Redis struct{ client *redis.Client }

func NewRedis(client *redis.Client) *Redis { return &Redis{client: client} }

// Get returns the string value for key or ErrMiss.
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrMiss
	}
	return v, err
}

// GetDel atomically reads and removes key. Concurrent callers see at
// most one value; the rest get ErrMiss.
func (r *Redis) GetDel(ctx context.Context, key string) (string, error) {
	v, err := r.client.GetDel(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrMiss
	}
	return v, err
}

// Set stores value under key. A zero ttl stores without expiry.
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Del removes key. Deleting an absent key is not an error.
func (r *Redis) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// TTL returns the remaining lifetime of key. Absent keys report a
// negative duration, mirroring the Redis TTL command.
func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	return r.client.TTL(ctx, key).Result()
}

// Null is a cache that stores nothing. Wiring it in place of Redis
// turns every read into a miss, so cache-aside consumers hit their
// backing store on each call.
type Null struct{}

func (Null) Get(ctx context.Context, key string) (string, error) { return "", ErrMiss }

func (Null) GetDel(ctx context.Context, key string) (string, error) { return "", ErrMiss }

func (Null) Set(ctx context.Context, key, value string, ttl time.Duration) error { return nil }

func (Null) Del(ctx context.Context, key string) error { return nil }

func (Null) TTL(ctx context.Context, key string) (time.Duration, error) {
	return -2 * time.Second, nil
}
