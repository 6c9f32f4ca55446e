package localstate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"intellib/pkg/platform/sentinel"
)

const (
	redisKeyPrefix = "localstate:"
	scanBatch      = 100
)

// RedisStore keeps profile state in Redis under "localstate:<profile>:".
// The client lifecycle is managed by the caller.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedis scopes a store to profile.
func NewRedis(client *redis.Client, profile string) *RedisStore {
	return &RedisStore{client: client, prefix: redisKeyPrefix + profile + ":"}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %q: %w", key, err)
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.scan(ctx, func(batch []string) error {
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, s.prefix))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear unlinks the profile's keys one scan batch at a time.
func (s *RedisStore) Clear(ctx context.Context) error {
	return s.scan(ctx, func(batch []string) error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.client.Unlink(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("clear profile keys: %w", err)
		}
		return nil
	})
}

func (s *RedisStore) scan(ctx context.Context, fn func(batch []string) error) error {
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("scan profile keys: %w", err)
		}
		if err := fn(batch); err != nil {
			return err
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
