package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"suitfeed/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNotFound is returned when the key does not exist.
var ErrNotFound = errors.New("redis key not found")

// commands is the subset of redis.Cmdable the store uses.
type commands interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Store keeps JSON documents under "<prefix>:<name>" keys.
type Store struct {
	logger *zap.Logger
	client commands
	closer func() error
	prefix string
}

// New connects to the Redis server described by cfg.Redis.
func New(logger *zap.Logger, cfg *config.Config) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	logger.Info("redis store initialized",
		zap.String("addr", cfg.Redis.Addr),
		zap.Int("db", cfg.Redis.DB),
		zap.String("prefix", cfg.Redis.KeyPrefix),
	)

	return &Store{
		logger: logger,
		client: rdb,
		closer: rdb.Close,
		prefix: cfg.Redis.KeyPrefix,
	}
}

func (s *Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + ":" + name
}

// IsEnabled reports whether the store has a client.
func (s *Store) IsEnabled() bool {
	return s != nil && s.client != nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// LoadJSON decodes the document stored under name into dest.
func (s *Store) LoadJSON(ctx context.Context, name string, dest any) error {
	key := s.key(name)
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return fmt.Errorf("unmarshal json: %w", err)
	}

	s.logger.Debug("loaded from redis", zap.String("key", key), zap.Int("bytes", len(b)))
	return nil
}

// SaveJSON stores data under name without expiry.
func (s *Store) SaveJSON(ctx context.Context, name string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	key := s.key(name)
	if err := s.client.Set(ctx, key, b, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	s.logger.Debug("saved to redis", zap.String("key", key), zap.Int("bytes", len(b)))
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
