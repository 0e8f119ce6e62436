package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stays-service/models"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// RedisWeatherStore keeps one JSON snapshot per city under "weather:<city>";
// the key expires after the retention window.
type RedisWeatherStore struct {
	rdb       *redis.Client
	retention time.Duration
}

// NewRedisWeatherStore wraps an existing client
func NewRedisWeatherStore(rdb *redis.Client, retention time.Duration) *RedisWeatherStore {
	return &RedisWeatherStore{rdb: rdb, retention: retention}
}

func weatherKey(city string) string {
	return "weather:" + CityKey(city)
}

func (s *RedisWeatherStore) Get(ctx context.Context, city string) (*models.WeatherSnapshot, error) {
	raw, err := s.rdb.Get(ctx, weatherKey(city)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", weatherKey(city), err)
	}
	var snap models.WeatherSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode weather snapshot: %w", err)
	}
	return &snap, nil
}

// Put overwrites the snapshot and resets its expiry
func (s *RedisWeatherStore) Put(ctx context.Context, snap *models.WeatherSnapshot) error {
	cp := *snap
	cp.City = CityKey(snap.City)
	raw, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("encode weather snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, weatherKey(cp.City), raw, s.retention).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", weatherKey(cp.City), err)
	}
	return nil
}

func (s *RedisWeatherStore) Close() error {
	return s.rdb.Close()
}

// RedisRefreshGuard marks a refresh key as in flight across processes with
// SET NX. The lock expires on its own if the holder dies.
type RedisRefreshGuard struct {
	rdb     *redis.Client
	lockTTL time.Duration
}

// NewRedisRefreshGuard creates a guard whose locks live at most lockTTL
func NewRedisRefreshGuard(rdb *redis.Client, lockTTL time.Duration) *RedisRefreshGuard {
	return &RedisRefreshGuard{rdb: rdb, lockTTL: lockTTL}
}

func refreshLockKey(key string) string {
	return "refresh:inflight:" + key
}

// Acquire returns true if the caller now owns the key
func (g *RedisRefreshGuard) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, refreshLockKey(key), time.Now().UTC().Format(time.RFC3339), g.lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", refreshLockKey(key), err)
	}
	return ok, nil
}

// Release frees the key
func (g *RedisRefreshGuard) Release(ctx context.Context, key string) error {
	if err := g.rdb.Del(ctx, refreshLockKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", refreshLockKey(key), err)
	}
	return nil
}
