package state

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"auditwatch/internal/logger"
)

// DefaultKey is the hash holding rule id -> last fired timestamp
const DefaultKey = "auditwatch:rule_last_fired"

// RedisConfig configures the Redis-backed store
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// RedisStore keeps cooldown timestamps in a single Redis hash
type RedisStore struct {
	rdb *redis.Client
	key string
}

// NewRedisStore connects to Redis and verifies the connection with PING
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	return NewRedisStoreFromClient(rdb, cfg.Key), nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(rdb *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultKey
	}
	return &RedisStore{rdb: rdb, key: key}
}

func (s *RedisStore) SaveLastFired(ctx context.Context, ruleID string, at time.Time) error {
	return s.rdb.HSet(ctx, s.key, ruleID, at.UTC().Format(time.RFC3339Nano)).Err()
}

// LoadLastFired returns every stored timestamp. Unparseable entries are
// logged and skipped.
func (s *RedisStore) LoadLastFired(ctx context.Context) (map[string]time.Time, error) {
	raw, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", s.key, err)
	}

	out := make(map[string]time.Time, len(raw))
	for ruleID, value := range raw {
		at, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			log := logger.WithRule("cooldown_state", ruleID)
			log.Warn().
				Err(err).
				Str("value", value).
				Msg("skipping malformed cooldown entry")
			continue
		}
		out[ruleID] = at
	}
	return out, nil
}

// Forget drops a rule's stored timestamp
func (s *RedisStore) Forget(ctx context.Context, ruleID string) error {
	return s.rdb.HDel(ctx, s.key, ruleID).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// HealthCheck pings the Redis server
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
