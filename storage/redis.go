package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "resumestudio:"

// RedisStore keeps thread checkpoints in Redis. A non-zero ttl expires
// threads that have not been touched for that long.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to the Redis instance at url (redis://...) and pings it.
func NewRedisStore(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) threadKey(id string) string {
	return redisKeyPrefix + "thread:" + id
}

func (s *RedisStore) indexKey() string {
	return redisKeyPrefix + "threads"
}

func (s *RedisStore) Save(ctx context.Context, cp Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.threadKey(cp.ThreadID), data, s.ttl)
		pipe.SAdd(ctx, s.indexKey(), cp.ThreadID)
		return nil
	})
	return err
}

func (s *RedisStore) Load(ctx context.Context, threadID string) (Checkpoint, error) {
	data, err := s.client.Get(ctx, s.threadKey(threadID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Checkpoint{}, ErrCheckpointNotFound
		}
		return Checkpoint{}, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

func (s *RedisStore) listThreadIDs(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, s.indexKey()).Result()
}

func (s *RedisStore) List(ctx context.Context) ([]Checkpoint, error) {
	return listCheckpoints(ctx, s)
}

func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	n, err := s.client.Del(ctx, s.threadKey(threadID)).Result()
	if err != nil {
		return err
	}
	if err := s.client.SRem(ctx, s.indexKey(), threadID).Err(); err != nil {
		return err
	}
	if n == 0 {
		return ErrCheckpointNotFound
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
