package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares throttle state between ingest processes through Redis.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{redis: redisClient}
}

// Get implements Store. Missing keys yield DefaultState.
func (s *RedisStore) Get(ctx context.Context, provider string) (*State, error) {
	state := DefaultState()

	remaining, err := s.redis.Get(ctx, fmt.Sprintf(RedisKeyRemaining, provider)).Int()
	switch {
	case err == nil:
		state.Remaining = remaining
	case !errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("get remaining: %w", err)
	}

	blockedUntil, err := s.redis.Get(ctx, fmt.Sprintf(RedisKeyBlockedUntil, provider)).Int64()
	switch {
	case err == nil:
		state.BlockedUntil = time.UnixMilli(blockedUntil).UTC()
	case !errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("get blocked until: %w", err)
	}

	lastUpdate, err := s.redis.Get(ctx, fmt.Sprintf(RedisKeyLastUpdate, provider)).Bytes()
	switch {
	case err == nil:
		if err := json.Unmarshal(lastUpdate, &state.LastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	case !errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("get last update: %w", err)
	}

	return state, nil
}

// Set implements Store. All keys are written in one pipeline.
func (s *RedisStore) Set(ctx context.Context, provider string, state *State) error {
	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	pipe := s.redis.Pipeline()
	pipe.Set(ctx, fmt.Sprintf(RedisKeyRemaining, provider), state.Remaining, 0)
	if state.BlockedUntil.IsZero() {
		pipe.Del(ctx, fmt.Sprintf(RedisKeyBlockedUntil, provider))
	} else {
		pipe.Set(ctx, fmt.Sprintf(RedisKeyBlockedUntil, provider), state.BlockedUntil.UnixMilli(), 0)
	}
	pipe.Set(ctx, fmt.Sprintf(RedisKeyLastUpdate, provider), lastUpdateJSON, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}
