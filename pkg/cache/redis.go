package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis client.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient creates a Redis client and pings the server to ensure
// connectivity before returning.
func NewRedisClient(ctx context.Context, cfg *RedisConfig, logger zerolog.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis.")
	return rdb, nil
}

// RedisStoreConfig places one table inside a shared Redis database.
type RedisStoreConfig struct {
	// KeyPrefix namespaces every key as <prefix>:<table>:<key>.
	KeyPrefix string
	Table     string
	// Expiration lets Redis drop aged records. Zero keeps them forever; the
	// tier's freshness check applies either way.
	Expiration time.Duration
}

// RedisStore is a generic Store backed by Redis. Each record is a JSON
// envelope holding the payload and its fetch time.
type RedisStore[K comparable, V any] struct {
	redisClient *redis.Client
	prefix      string
	expiration  time.Duration
	logger      zerolog.Logger
}

// NewRedisStore creates a store over an existing client. The client's
// lifecycle is managed by the caller.
func NewRedisStore[K comparable, V any](
	cfg RedisStoreConfig,
	client *redis.Client,
	logger zerolog.Logger,
) (*RedisStore[K, V], error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if cfg.Table == "" {
		return nil, fmt.Errorf("table cannot be empty")
	}
	prefix := cfg.Table
	if cfg.KeyPrefix != "" {
		prefix = cfg.KeyPrefix + ":" + cfg.Table
	}
	return &RedisStore[K, V]{
		redisClient: client,
		prefix:      prefix,
		expiration:  cfg.Expiration,
		logger:      logger.With().Str("component", "RedisStore").Str("table", cfg.Table).Logger(),
	}, nil
}

func (s *RedisStore[K, V]) key(key K) string {
	return fmt.Sprintf("%s:%v", s.prefix, key)
}

// Get retrieves and unmarshals the record for key.
func (s *RedisStore[K, V]) Get(ctx context.Context, key K) (Record[V], error) {
	stringKey := s.key(key)
	cachedData, err := s.redisClient.Get(ctx, stringKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record[V]{}, fmt.Errorf("key '%s': %w", stringKey, ErrNotFound)
		}
		return Record[V]{}, fmt.Errorf("redis get failed for key %s: %w", stringKey, err)
	}

	var rec Record[V]
	if err := json.Unmarshal(cachedData, &rec); err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to unmarshal cached data.")
		return Record[V]{}, fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return rec, nil
}

// Put marshals the record and stores it with the configured expiration.
func (s *RedisStore[K, V]) Put(ctx context.Context, key K, value V, fetchedAt time.Time) error {
	stringKey := s.key(key)
	jsonData, err := json.Marshal(Record[V]{Payload: value, FetchedAt: fetchedAt})
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if err := s.redisClient.Set(ctx, stringKey, jsonData, s.expiration).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}

	s.logger.Debug().Str("key", stringKey).Msg("Successfully stored data in Redis.")
	return nil
}

// Close is a no-op; the shared client is closed by its owner.
func (s *RedisStore[K, V]) Close() error {
	return nil
}
