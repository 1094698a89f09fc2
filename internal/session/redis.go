package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/npc-engine/pkg/chat"
)

const redisKeyPrefix = "npc-session:"

// RedisStore keeps history in a Redis list per session so several API
// replicas can serve the same conversation.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var (
	_ Store  = (*RedisStore)(nil)
	_ Pinger = (*RedisStore)(nil)
)

// NewRedisStore connects to redisURL (host:port). A zero ttl keeps
// sessions until they are reset.
func NewRedisStore(redisURL string, ttl time.Duration, logger *slog.Logger) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisURL,
	})
	return NewRedisStoreWithClient(rdb, ttl, logger)
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]chat.Turn, error) {
	vals, err := r.client.LRange(ctx, redisKeyPrefix+key, 0, -1).Result()
	if err != nil {
		r.logger.Error("Redis LRANGE failed", "key", key, "error", err)
		return nil, fmt.Errorf("redis get session failed: %w", err)
	}

	turns := make([]chat.Turn, 0, len(vals))
	for _, v := range vals {
		var t chat.Turn
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			return nil, fmt.Errorf("decode stored turn for %s: %w", key, err)
		}
		turns = append(turns, t)
	}

	r.logger.Debug("Redis session loaded", "key", key, "turns", len(turns))
	return turns, nil
}

// Append pushes and trims inside one MULTI/EXEC so concurrent appends on the
// same key cannot interleave with the trim.
func (r *RedisStore) Append(ctx context.Context, key string, turns ...chat.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	vals := make([]any, 0, len(turns))
	for _, t := range turns {
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode turn: %w", err)
		}
		vals = append(vals, string(b))
	}

	rkey := redisKeyPrefix + key
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, rkey, vals...)
		pipe.LTrim(ctx, rkey, -MaxTurns, -1)
		if r.ttl > 0 {
			pipe.Expire(ctx, rkey, r.ttl)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Redis append failed", "key", key, "error", err)
		return fmt.Errorf("redis append session failed: %w", err)
	}

	r.logger.Debug("Redis session appended", "key", key, "added", len(turns))
	return nil
}

func (r *RedisStore) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		r.logger.Error("Redis DEL failed", "key", key, "error", err)
		return fmt.Errorf("redis reset session failed: %w", err)
	}
	r.logger.Debug("Redis session reset", "key", key)
	return nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	cmd := r.client.Ping(ctx)
	if err := cmd.Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	r.logger.Debug("Redis ping successful", "result", cmd.Val())
	return nil
}

func (r *RedisStore) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}

	r.logger.Info("Redis connection closed")
	return nil
}

// Client exposes the underlying connection for the locker and broadcaster.
func (r *RedisStore) Client() *redis.Client {
	return r.client
}

func (r *RedisStore) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}
