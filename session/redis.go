package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/parleylabs/parley/types"
)

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	Addr     string        `yaml:"addr" json:"addr" env:"ADDR"`
	Password string        `yaml:"password" json:"password" env:"PASSWORD"`
	DB       int           `yaml:"db" json:"db" env:"DB"`
	PoolSize int           `yaml:"pool_size" json:"pool_size" env:"POOL_SIZE"`
	KeyPrefix string       `yaml:"key_prefix" json:"key_prefix" env:"KEY_PREFIX"`
	TTL      time.Duration `yaml:"ttl" json:"ttl" env:"TTL"`
}

// RedisStore keeps each transcript in a Redis list, one JSON entry per
// message, plus a set of known session ids so that unknown-session lookups
// can be distinguished from empty sessions.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisStore(client, cfg.KeyPrefix, cfg.TTL, logger), nil
}

// NewRedisStoreFromClient wraps an existing client. Used by tests.
func NewRedisStoreFromClient(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisStore {
	return newRedisStore(client, keyPrefix, 0, logger)
}

func newRedisStore(client *redis.Client, keyPrefix string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "parley:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger.With(zap.String("component", "redis_store")),
	}
}

// sessionKey returns the Redis key for a session's message list.
func (s *RedisStore) sessionKey(sessionID string) string {
	return s.keyPrefix + "session:" + sessionID
}

// indexKey returns the Redis key of the known-session set.
func (s *RedisStore) indexKey() string {
	return s.keyPrefix + "sessions"
}

func (s *RedisStore) Create(ctx context.Context) (string, error) {
	id := uuid.New().String()
	if err := s.client.SAdd(ctx, s.indexKey(), id).Err(); err != nil {
		return "", types.NewError(types.ErrStoreFailure, "failed to create session").WithCause(err).WithRetryable(true)
	}
	s.logger.Debug("session created", zap.String("session_id", id))
	return id, nil
}

func (s *RedisStore) Append(ctx context.Context, sessionID string, msg types.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return types.NewError(types.ErrStoreFailure, "failed to marshal message").WithCause(err)
	}

	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, s.indexKey(), sessionID)
	pipe.RPush(ctx, s.sessionKey(sessionID), data)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.sessionKey(sessionID), s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return types.NewError(types.ErrStoreFailure, "failed to append message").WithCause(err).WithRetryable(true)
	}
	return nil
}

func (s *RedisStore) Messages(ctx context.Context, sessionID string) ([]types.Message, error) {
	known, err := s.client.SIsMember(ctx, s.indexKey(), sessionID).Result()
	if err != nil {
		return nil, types.NewError(types.ErrStoreFailure, "failed to look up session").WithCause(err).WithRetryable(true)
	}
	if !known {
		return nil, types.NewError(types.ErrSessionNotFound, "session "+sessionID+" does not exist")
	}

	entries, err := s.client.LRange(ctx, s.sessionKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, types.NewError(types.ErrStoreFailure, "failed to read transcript").WithCause(err).WithRetryable(true)
	}

	msgs := make([]types.Message, 0, len(entries))
	for _, entry := range entries {
		var msg types.Message
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			return nil, types.NewError(types.ErrStoreFailure, "failed to unmarshal message").WithCause(err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks backend health. Used by the readiness probe.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
