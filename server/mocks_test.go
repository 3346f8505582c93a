package server

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"planebattle/events"
	"planebattle/matchstore"
	"planebattle/protocol"
)

var (
	_ Conn             = &connMock{}
	_ matchstore.Store = &storeMock{}
	_ Publisher        = &publisherMock{}
)

type connMock struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	refuse bool
}

func (m *connMock) Enqueue(b []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.refuse {
		return false
	}
	m.frames = append(m.frames, b)
	return true
}

func (m *connMock) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

func (m *connMock) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *connMock) envelopes(t *testing.T) []protocol.Envelope {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]protocol.Envelope, 0, len(m.frames))
	for _, f := range m.frames {
		env, err := protocol.Decode(f)
		require.NoError(t, err)
		out = append(out, env)
	}
	return out
}

// ofType returns the envelopes of one message type, in arrival order.
func (m *connMock) ofType(t *testing.T, typ string) []protocol.Envelope {
	t.Helper()

	var out []protocol.Envelope
	for _, env := range m.envelopes(t) {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

func (m *connMock) reset() {
	m.mu.Lock()
	m.frames = nil
	m.mu.Unlock()
}

type storeMock struct {
	mu       sync.Mutex
	saved    []matchstore.Match
	saveFunc func(ctx context.Context, m *matchstore.Match) error
}

func (s *storeMock) Save(ctx context.Context, m *matchstore.Match) error {
	if s.saveFunc != nil {
		if err := s.saveFunc(ctx, m); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.saved = append(s.saved, *m)
	s.mu.Unlock()
	return nil
}

func (s *storeMock) Get(_ context.Context, id string) (*matchstore.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.saved) - 1; i >= 0; i-- {
		if s.saved[i].ID == id {
			m := s.saved[i]
			return &m, nil
		}
	}
	return nil, matchstore.ErrNotFound
}

func (s *storeMock) Active(context.Context) ([]*matchstore.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := make(map[string]matchstore.Match)
	var order []string
	for _, m := range s.saved {
		if _, ok := latest[m.ID]; !ok {
			order = append(order, m.ID)
		}
		latest[m.ID] = m
	}
	var out []*matchstore.Match
	for _, id := range order {
		if m := latest[id]; m.Active() {
			out = append(out, &m)
		}
	}
	return out, nil
}

func (s *storeMock) records() []matchstore.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]matchstore.Match(nil), s.saved...)
}

type publisherMock struct {
	mu       sync.Mutex
	paired   []events.BattlePairedEvent
	finished []events.BattleFinishedEvent
}

func (p *publisherMock) PublishBattlePaired(_ context.Context, e events.BattlePairedEvent) error {
	p.mu.Lock()
	p.paired = append(p.paired, e)
	p.mu.Unlock()
	return nil
}

func (p *publisherMock) PublishBattleFinished(_ context.Context, e events.BattleFinishedEvent) error {
	p.mu.Lock()
	p.finished = append(p.finished, e)
	p.mu.Unlock()
	return nil
}

func (p *publisherMock) finishedEvents() []events.BattleFinishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.BattleFinishedEvent(nil), p.finished...)
}

func (p *publisherMock) pairedEvents() []events.BattlePairedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.BattlePairedEvent(nil), p.paired...)
}

func newPlayer(id, name string) (*Player, *connMock) {
	c := &connMock{}
	return &Player{ID: PlayerID(id), Name: name, Conn: c}, c
}

func frame(t *testing.T, typ string, v any) []byte {
	t.Helper()

	b, err := protocol.Encode(typ, v)
	require.NoError(t, err)
	return b
}

func payload[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}
