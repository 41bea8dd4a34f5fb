package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one capped list per category, newest entry at the head.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	ttl        time.Duration
	maxEntries int
	logger     Logger
	now        func() time.Time
}

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration, maxEntries int, log Logger) *RedisStore {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &RedisStore{
		client:     client,
		prefix:     prefix,
		ttl:        ttl,
		maxEntries: maxEntries,
		logger:     log,
		now:        time.Now,
	}
}

func (s *RedisStore) key(category string) string {
	return s.prefix + ":" + category
}

func (s *RedisStore) Append(ctx context.Context, category string, item interface{}, metadata map[string]interface{}) error {
	entry, err := newEntry(category, item, metadata, s.now())
	if err != nil {
		return err
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveWriteFailed, err)
	}

	key := s.key(category)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, payload)
		pipe.LTrim(ctx, key, 0, int64(s.maxEntries-1))
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveWriteFailed, err)
	}
	return nil
}

func (s *RedisStore) Recent(ctx context.Context, category string, n int, filter Filter) ([]Entry, error) {
	raw, err := s.client.LRange(ctx, s.key(category), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchiveReadFailed, err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, r := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			s.logger.Warn("skipping undecodable archive entry", map[string]interface{}{
				"category": category,
				"error":    err.Error(),
			})
			continue
		}
		entries = append(entries, e)
	}
	return selectRecent(entries, s.now(), s.ttl, n, filter), nil
}

func (s *RedisStore) Clear(ctx context.Context, category string) error {
	if category != "" {
		if err := s.client.Del(ctx, s.key(category)).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrArchiveWriteFailed, err)
		}
		return nil
	}

	iter := s.client.Scan(ctx, 0, s.prefix+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveWriteFailed, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveWriteFailed, err)
	}
	return nil
}
