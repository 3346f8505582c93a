package matchstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	matchKeyPrefix   = "match:"
	activeMatchesKey = "active_matches"
)

type redisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...any) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

var _ Store = (*Redis)(nil)

// NewRedisClient 连接 Redis，支持 redis:// URL 或 host:port
func NewRedisClient(addr string) (*redis.Client, error) {
	var options *redis.Options
	if strings.HasPrefix(addr, "redis://") {
		opt, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("could not parse Redis URL: %w", err)
		}
		options = opt
	} else {
		options = &redis.Options{Addr: addr}
	}

	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("could not connect to Redis: %w", err)
	}
	return client, nil
}

// Redis 对局记录存 Redis，记录带 TTL，进行中的对局另记在集合里
type Redis struct {
	client redisClient
	ttl    time.Duration
}

func NewRedis(client redisClient, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Save(ctx context.Context, m *Match) error {
	key := matchKeyPrefix + m.ID

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("could not marshal match: %w", err)
	}

	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("could not store match in Redis: %w", err)
	}

	if m.Active() {
		if err := r.client.SAdd(ctx, activeMatchesKey, key).Err(); err != nil {
			return fmt.Errorf("could not add match to active set: %w", err)
		}
		return nil
	}
	if err := r.client.SRem(ctx, activeMatchesKey, key).Err(); err != nil {
		return fmt.Errorf("could not remove match from active set: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, id string) (*Match, error) {
	return r.load(ctx, matchKeyPrefix+id)
}

// Active 返回进行中的对局，顺便清理已过期的集合成员
func (r *Redis) Active(ctx context.Context) ([]*Match, error) {
	keys, err := r.client.SMembers(ctx, activeMatchesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("could not get active match keys: %w", err)
	}

	matches := make([]*Match, 0, len(keys))
	for _, key := range keys {
		m, err := r.load(ctx, key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				r.client.SRem(ctx, activeMatchesKey, key)
				continue
			}
			return nil, err
		}
		matches = append(matches, m)
	}
	sortByCreated(matches)
	return matches, nil
}

func (r *Redis) load(ctx context.Context, key string) (*Match, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, strings.TrimPrefix(key, matchKeyPrefix))
		}
		return nil, fmt.Errorf("could not get match from Redis: %w", err)
	}

	var m Match
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("could not unmarshal match: %w", err)
	}
	return &m, nil
}
