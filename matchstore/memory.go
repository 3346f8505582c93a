package matchstore

import (
	"context"
	"sort"
	"sync"
)

var _ Store = (*Memory)(nil)

// Memory 进程内存储，未配置 REDIS_ADDR 时使用
type Memory struct {
	mu      sync.RWMutex
	matches map[string]Match
}

func NewMemory() *Memory {
	return &Memory{matches: make(map[string]Match)}
}

func (s *Memory) Save(_ context.Context, m *Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[m.ID] = clone(m)
	return nil
}

func (s *Memory) Get(_ context.Context, id string) (*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := clone(&m)
	return &c, nil
}

func (s *Memory) Active(_ context.Context) ([]*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Match, 0, len(s.matches))
	for _, m := range s.matches {
		if m.Active() {
			c := clone(&m)
			out = append(out, &c)
		}
	}
	sortByCreated(out)
	return out, nil
}

func clone(m *Match) Match {
	c := *m
	c.Players = append([]string(nil), m.Players...)
	c.Names = append([]string(nil), m.Names...)
	if m.FinishedAt != nil {
		t := *m.FinishedAt
		c.FinishedAt = &t
	}
	return c
}

func sortByCreated(ms []*Match) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].ID < ms[j].ID
		}
		return ms[i].CreatedAt.Before(ms[j].CreatedAt)
	})
}
