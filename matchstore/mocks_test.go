package matchstore

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

var _ redisClient = &redisMock{}

type redisMock struct {
	mu           sync.Mutex
	data         map[string]string
	ttls         map[string]time.Duration
	sets         map[string]map[string]struct{}
	setFunc      func(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	getFunc      func(ctx context.Context, key string) *redis.StringCmd
	sAddFunc     func(ctx context.Context, key string, members ...any) *redis.IntCmd
	sMembersFunc func(ctx context.Context, key string) *redis.StringSliceCmd
}

func newRedisMock() *redisMock {
	return &redisMock{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
		sets: make(map[string]map[string]struct{}),
	}
}

func (m *redisMock) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if m.setFunc != nil {
		return m.setFunc(ctx, key, value, expiration)
	}

	strValue, ok := value.(string)
	if !ok {
		if byteValue, ok := value.([]byte); ok {
			strValue = string(byteValue)
		}
	}

	m.mu.Lock()
	m.data[key] = strValue
	m.ttls[key] = expiration
	m.mu.Unlock()
	return redis.NewStatusCmd(ctx)
}

func (m *redisMock) Get(ctx context.Context, key string) *redis.StringCmd {
	if m.getFunc != nil {
		return m.getFunc(ctx, key)
	}

	cmd := redis.NewStringCmd(ctx)
	m.mu.Lock()
	val, exists := m.data[key]
	m.mu.Unlock()

	if !exists {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(val)
	return cmd
}

func (m *redisMock) SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd {
	if m.sAddFunc != nil {
		return m.sAddFunc(ctx, key, members...)
	}

	m.mu.Lock()
	if _, exists := m.sets[key]; !exists {
		m.sets[key] = make(map[string]struct{})
	}
	added := int64(0)
	for _, member := range members {
		s := member.(string)
		if _, exists := m.sets[key][s]; !exists {
			m.sets[key][s] = struct{}{}
			added++
		}
	}
	m.mu.Unlock()

	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(added)
	return cmd
}

func (m *redisMock) SRem(ctx context.Context, key string, members ...any) *redis.IntCmd {
	m.mu.Lock()
	removed := int64(0)
	if set, exists := m.sets[key]; exists {
		for _, member := range members {
			s := member.(string)
			if _, exists := set[s]; exists {
				delete(set, s)
				removed++
			}
		}
	}
	m.mu.Unlock()

	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(removed)
	return cmd
}

func (m *redisMock) SMembers(ctx context.Context, key string) *redis.StringSliceCmd {
	if m.sMembersFunc != nil {
		return m.sMembersFunc(ctx, key)
	}

	cmd := redis.NewStringSliceCmd(ctx)
	m.mu.Lock()
	members := []string{}
	for member := range m.sets[key] {
		members = append(members, member)
	}
	m.mu.Unlock()
	cmd.SetVal(members)
	return cmd
}

func (m *redisMock) stored(key string) (string, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], m.ttls[key]
}

func (m *redisMock) members(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for member := range m.sets[key] {
		out = append(out, member)
	}
	return out
}

// expire drops a key as if its TTL had run out.
func (m *redisMock) expire(key string) {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
}
