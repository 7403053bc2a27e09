package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultKey = "cofi:sessions"

// RedisStore keeps sessions in one sorted set scored by last heartbeat in ms
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultKey
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Touch(ctx context.Context, sessionID string, at time.Time) error {
	err := s.client.ZAdd(ctx, s.key, redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: sessionID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to record session heartbeat: %w", err)
	}
	return nil
}

func (s *RedisStore) CountSince(ctx context.Context, since time.Time) (int64, error) {
	bound := strconv.FormatInt(since.UnixMilli(), 10)

	var count *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, s.key, "-inf", bound)
		count = pipe.ZCount(ctx, s.key, "("+bound, "+inf")
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	return count.Val(), nil
}
