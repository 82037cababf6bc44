package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	pipeerr "github.com/hepviz/go-forecast-dashboard/internal/errors"
)

// RedisCache is a cache backend shared between dashboard replicas.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOptions configures the redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisCache creates a redis-backed cache and verifies connectivity.
func NewRedisCache(ctx context.Context, opts RedisOptions) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, pipeerr.NewCache("redis ping "+opts.Addr, err)
	}

	return &RedisCache{client: client, ttl: opts.TTL}, nil
}

// Get implements Cache.
func (r *RedisCache) Get(ctx context.Context, key Key) (*Entry, bool, error) {
	data, err := r.client.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, pipeerr.NewCache("redis get", err)
	}

	entry, err := DecodeEntry(data)
	if err != nil {
		return nil, false, pipeerr.NewCache("redis decode", err)
	}
	return entry, true, nil
}

// Set implements Cache.
func (r *RedisCache) Set(ctx context.Context, key Key, entry *Entry) error {
	data, err := entry.Encode()
	if err != nil {
		return pipeerr.NewCache("redis encode", err)
	}
	if err := r.client.Set(ctx, key.String(), data, r.ttl).Err(); err != nil {
		return pipeerr.NewCache("redis set", err)
	}
	return nil
}

// Delete implements Cache.
func (r *RedisCache) Delete(ctx context.Context, key Key) error {
	if err := r.client.Del(ctx, key.String()).Err(); err != nil {
		return pipeerr.NewCache("redis del", err)
	}
	return nil
}

// Close implements Cache.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
