package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "crewkit:memory:"

// RedisStorage implements Storage over Redis. Records live as JSON values
// under a shared key prefix with an optional TTL, which makes it a natural
// backend for the session-keyed short tier.
type RedisStorage struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStorage connects to Redis and returns a ready storage. A zero
// ttl stores records without expiry.
func NewRedisStorage(redisURL string, ttl time.Duration) (*RedisStorage, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStorage{rdb: rdb, ttl: ttl}, nil
}

// Save implements Storage.Save. A record is written with a single SET, so
// readers never observe a partial value.
func (s *RedisStorage) Save(ctx context.Context, record *Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := s.rdb.Set(ctx, redisKeyPrefix+record.ID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Search implements Storage.Search with case-insensitive substring
// matching over scanned records, newest first
func (s *RedisStorage) Search(ctx context.Context, query string, filter Filter, tiers []Tier, limit int) ([]SearchResult, error) {
	records, err := s.scanAll(ctx)
	if err != nil {
		return nil, err
	}

	tierSet := make(map[Tier]struct{}, len(tiers))
	for _, tier := range tiers {
		tierSet[tier] = struct{}{}
	}

	needle := strings.ToLower(query)
	var results []SearchResult
	for _, record := range records {
		if len(tierSet) > 0 {
			if _, ok := tierSet[record.Tier]; !ok {
				continue
			}
		}
		if !filter.Matches(record.Scope) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(record.Value), needle) {
			continue
		}
		results = append(results, SearchResult{Record: record, Score: 1.0})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Record.Timestamp.After(results[j].Record.Timestamp)
	})
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

// Get implements Storage.Get
func (s *RedisStorage) Get(ctx context.Context, id string) (*Record, error) {
	data, err := s.rdb.Get(ctx, redisKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &record, nil
}

// Update implements Storage.Update
func (s *RedisStorage) Update(ctx context.Context, id string, value string) error {
	record, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	record.Value = value
	return s.Save(ctx, record)
}

// Delete implements Storage.Delete
func (s *RedisStorage) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// DeleteAll implements Storage.DeleteAll
func (s *RedisStorage) DeleteAll(ctx context.Context, filter Filter) error {
	records, err := s.scanAll(ctx)
	if err != nil {
		return err
	}
	for _, record := range records {
		if filter.Matches(record.Scope) {
			if err := s.Delete(ctx, record.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// Clear implements Storage.Clear
func (s *RedisStorage) Clear(ctx context.Context, tier Tier) error {
	records, err := s.scanAll(ctx)
	if err != nil {
		return err
	}
	for _, record := range records {
		if record.Tier == tier {
			if err := s.Delete(ctx, record.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStorage) Close() error {
	return s.rdb.Close()
}

// scanAll walks the key prefix and decodes every record
func (s *RedisStorage) scanAll(ctx context.Context) ([]*Record, error) {
	var records []*Record
	var cursor uint64

	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, redisKeyPrefix+"*", 200).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}

		for _, key := range keys {
			data, err := s.rdb.Get(ctx, key).Bytes()
			if err == redis.Nil {
				continue // expired between scan and get
			}
			if err != nil {
				return nil, fmt.Errorf("redis get %s: %w", key, err)
			}
			var record Record
			if err := json.Unmarshal(data, &record); err != nil {
				return nil, fmt.Errorf("unmarshal record %s: %w", key, err)
			}
			records = append(records, &record)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}
	return records, nil
}
