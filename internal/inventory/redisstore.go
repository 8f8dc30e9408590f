package inventory

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces the store's keys.
const DefaultKeyPrefix = "coreitems"

// RedisStore keeps one hash of item counts per user plus a set of users.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore creates a Redis-backed store. An empty prefix selects
// DefaultKeyPrefix.
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) usersKey() string { return s.prefix + ":users" }

func (s *RedisStore) userKey(user string) string { return s.prefix + ":user:" + user }

// Load reads every user's hash.
func (s *RedisStore) Load(ctx context.Context) (map[string]map[string]int, error) {
	users, err := s.client.SMembers(ctx, s.usersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %q: %w", s.usersKey(), err)
	}

	out := make(map[string]map[string]int, len(users))
	for _, user := range users {
		fields, err := s.client.HGetAll(ctx, s.userKey(user)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis hgetall %q: %w", s.userKey(user), err)
		}
		items := make(map[string]int, len(fields))
		for item, raw := range fields {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				continue
			}
			items[item] = n
		}
		if len(items) > 0 {
			out[user] = items
		}
	}
	return out, nil
}

// Save replaces every stored hash inside one MULTI/EXEC block.
func (s *RedisStore) Save(ctx context.Context, all map[string]map[string]int) error {
	previous, err := s.client.SMembers(ctx, s.usersKey()).Result()
	if err != nil {
		return fmt.Errorf("redis smembers %q: %w", s.usersKey(), err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, user := range previous {
			pipe.Del(ctx, s.userKey(user))
		}
		pipe.Del(ctx, s.usersKey())
		for user, items := range all {
			p := positive(items)
			if len(p) == 0 {
				continue
			}
			values := make(map[string]any, len(p))
			for item, n := range p {
				values[item] = n
			}
			pipe.HSet(ctx, s.userKey(user), values)
			pipe.SAdd(ctx, s.usersKey(), user)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save inventory: %w", err)
	}
	return nil
}

// HealthCheck pings the server.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client when it owns one.
func (s *RedisStore) Close() error {
	if c, ok := s.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
