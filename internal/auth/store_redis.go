package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares one credential between machines of the same user.
type RedisStore struct {
	rdb *redis.Client
	key string
}

func credentialKey(profile string) string {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		profile = "default"
	}
	return "chessclient:credential:" + profile
}

func NewRedisStore(rdb *redis.Client, profile string) *RedisStore {
	return &RedisStore{rdb: rdb, key: credentialKey(profile)}
}

// NewRedisStoreFromURL dials redis[s]://[:password@]host[:port][/db] and pings it.
func NewRedisStoreFromURL(ctx context.Context, redisURL, profile string) (*RedisStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for redis credential backend")
	}
	opts, err := redisOptions(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStore(rdb, profile), nil
}

func (r *RedisStore) Load(ctx context.Context) (string, error) {
	v, err := r.rdb.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get credential: %w", err)
	}
	return strings.TrimSpace(v), nil
}

func (r *RedisStore) Save(ctx context.Context, token string) error {
	if err := r.rdb.Set(ctx, r.key, token, 0).Err(); err != nil {
		return fmt.Errorf("redis set credential: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis del credential: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}

// redisOptions accepts redis:// and rediss:// URLs. rediss enables TLS.
func redisOptions(raw string) (*redis.Options, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return opts, nil
}
