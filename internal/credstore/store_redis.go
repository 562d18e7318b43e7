package credstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the pair as two plain string keys. Put and Clear run in a
// MULTI/EXEC so readers never see one key without the other.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to rawURL (redis://[user:pass@]host:port/db) and
// checks the server is reachable.
func NewRedisStore(ctx context.Context, rawURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Put(ctx context.Context, e Entry) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, KeyCredential, e.Credential, 0)
		pipe.Set(ctx, KeyProfile, e.Profile, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write credential keys: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context) (Entry, error) {
	vals, err := s.client.MGet(ctx, KeyCredential, KeyProfile).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("read credential keys: %w", err)
	}
	values := make(map[string]string, 2)
	for i, key := range []string{KeyCredential, KeyProfile} {
		if v, ok := vals[i].(string); ok {
			values[key] = v
		}
	}
	return entryFrom(values)
}

func (s *RedisStore) Clear(ctx context.Context) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, KeyCredential, KeyProfile)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete credential keys: %w", err)
	}
	return nil
}

func (s *RedisStore) PurgeLegacy(ctx context.Context) error {
	if err := s.client.Del(ctx, LegacyKeys...).Err(); err != nil {
		return fmt.Errorf("delete legacy credential keys: %w", err)
	}
	return nil
}
