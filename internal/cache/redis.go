package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisConfig selects and tunes the shared Redis deployment backing the cache.
type RedisConfig struct {
	Address  string `yaml:"address" json:"address"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"poolSize" json:"poolSize"`
}

// RedisBackend stores entries under docpipe:<namespace>:<key> and delegates
// expiry to Redis TTLs, so entries vanish server-side with no purge pass.
type RedisBackend struct {
	rdb *redis.Client
}

// NewRedisBackend connects and verifies reachability with a short ping.
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	if cfg.Address == "" {
		cfg.Address = "localhost:6379"
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 10
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisBackend{rdb: rdb}, nil
}

func (r *RedisBackend) Close() error { return r.rdb.Close() }

func redisKey(namespace, key string) string {
	return fmt.Sprintf("docpipe:%s:%s", namespace, key)
}

func (r *RedisBackend) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	b, err := r.rdb.Get(ctx, redisKey(namespace, key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, redisKey(namespace, key), value, ttl).Err()
}

func (r *RedisBackend) Delete(ctx context.Context, namespace, key string) error {
	return r.rdb.Del(ctx, redisKey(namespace, key)).Err()
}
