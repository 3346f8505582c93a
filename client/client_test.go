package client

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"planebattle/battle"
	"planebattle/server"
)

var (
	alice = battle.Player{ID: "alice", Name: "Alice"}
	bob   = battle.Player{ID: "bob", Name: "Bob"}
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

func startRelay(t *testing.T) (*server.Hub, string) {
	t.Helper()

	h := server.NewHub(server.Options{})
	mux := http.NewServeMux()
	h.Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return h, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

// fleet places planes with heads at (2,0) up, (7,3) down and (3,6) left.
func fleet(t *testing.T) *battle.Arena {
	t.Helper()

	a := battle.NewArena(10, 10, 3)
	for _, head := range []struct {
		x, y int
		dir  battle.Direction
	}{
		{2, 0, battle.DirUp},
		{7, 3, battle.DirDown},
		{3, 6, battle.DirLeft},
	} {
		p, err := battle.NewPlane(head.x, head.y, head.dir, 3, "")
		require.NoError(t, err)
		require.True(t, a.Place(p))
	}
	return a
}

type player struct {
	client *Client
	done   chan error
}

func join(t *testing.T, ctx context.Context, url string, self battle.Player, opts Options) *player {
	t.Helper()

	c, err := Dial(ctx, url, self, opts)
	require.NoError(t, err)

	s := battle.NewSession(self, fleet(t), c, zap.NewNop().Sugar())
	p := &player{client: c, done: make(chan error, 1)}
	go func() { p.done <- c.Run(ctx, s) }()
	t.Cleanup(func() { _ = c.Close() })
	return p
}

type view struct {
	state   battle.State
	outcome battle.Outcome
	myTurn  bool
	enemy   [][]battle.Kind
}

func (p *player) view() (view, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var v view
	err := p.client.Do(ctx, func(s *battle.Session) error {
		v = view{state: s.State(), outcome: s.Outcome(), myTurn: s.MyTurn(), enemy: s.EnemyView()}
		return nil
	})
	return v, err
}

func (p *player) do(t *testing.T, fn func(*battle.Session) error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.client.Do(ctx, fn))
}

func (p *player) fire(t *testing.T, x, y int) {
	t.Helper()

	require.Eventually(t, func() bool {
		v, err := p.view()
		return err == nil && v.myTurn
	}, waitFor, tick, "waiting for turn")
	p.do(t, func(s *battle.Session) error { return s.Fire(x, y) })
}

func (p *player) waitTerminated(t *testing.T) view {
	t.Helper()

	var last view
	require.Eventually(t, func() bool {
		v, err := p.view()
		last = v
		return err == nil && v.state == battle.StateTerminated
	}, waitFor, tick, "waiting for the battle to end")
	return last
}

// pair queues a then b so that a moves first.
func pair(t *testing.T, h *server.Hub, a, b *player) {
	t.Helper()

	a.do(t, (*battle.Session).FindOpponent)
	require.Eventually(t, func() bool { return len(h.Queue().Snapshot()) == 1 }, waitFor, tick)
	b.do(t, (*battle.Session).FindOpponent)

	for _, p := range []*player{a, b} {
		require.Eventually(t, func() bool {
			v, err := p.view()
			return err == nil && v.state == battle.StateInProgress
		}, waitFor, tick)
	}
}

func TestClient_fullBattle(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, url := startRelay(t)
	a := join(t, ctx, url, alice, Options{})
	b := join(t, ctx, url, bob, Options{})
	pair(t, h, a, b)

	a.fire(t, 2, 0)
	b.fire(t, 9, 9)
	a.fire(t, 7, 3)
	b.fire(t, 9, 8)
	a.fire(t, 3, 6)

	av := a.waitTerminated(t)
	assert.Equal(t, battle.OutcomeWin, av.outcome)
	assert.Equal(t, battle.KindFiredDestroyed, av.enemy[0][2])
	assert.Equal(t, battle.KindFiredDestroyed, av.enemy[6][3])

	bv := b.waitTerminated(t)
	assert.Equal(t, battle.OutcomeLoss, bv.outcome)
	assert.Equal(t, battle.KindFiredEmpty, bv.enemy[9][9])

	require.Eventually(t, func() bool {
		active, err := h.Store().Active(context.Background())
		return err == nil && len(active) == 0
	}, waitFor, tick)
	assert.Equal(t, int64(1), h.Metrics().Snapshot()["battles_finished"])
}

func TestClient_rematchAfterReset(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, url := startRelay(t)
	a := join(t, ctx, url, alice, Options{})
	b := join(t, ctx, url, bob, Options{})
	pair(t, h, a, b)

	a.do(t, func(s *battle.Session) error { return s.AcceptPairing(false) })
	assert.Equal(t, battle.OutcomeDeclined, a.waitTerminated(t).outcome)

	bv := b.waitTerminated(t)
	assert.Equal(t, battle.OutcomeDeclined, bv.outcome)

	r := rand.New(rand.NewSource(7))
	for _, p := range []*player{a, b} {
		p.do(t, func(s *battle.Session) error {
			s.Reset()
			return battle.PlaceRandomFleet(s.Arena(), r, 3, 1000)
		})
	}
	pair(t, h, b, a)

	v, err := b.view()
	require.NoError(t, err)
	assert.True(t, v.myTurn)
}

func TestClient_turnTimeoutAbandons(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, url := startRelay(t)
	a := join(t, ctx, url, alice, Options{TurnTimeout: 200 * time.Millisecond})
	b := join(t, ctx, url, bob, Options{})
	pair(t, h, a, b)

	// bob never answers the first shot
	a.fire(t, 0, 9)

	assert.Equal(t, battle.OutcomeAbandoned, a.waitTerminated(t).outcome)
	// bob learns about it and the relay closes the match record
	assert.Equal(t, battle.OutcomeAbandoned, b.waitTerminated(t).outcome)
	require.Eventually(t, func() bool {
		active, err := h.Store().Active(context.Background())
		return err == nil && len(active) == 0
	}, waitFor, tick)
}

func TestClient_matchExpiryReturnsToIdle(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, url := startRelay(t)
	h.Queue().SetTTL(50 * time.Millisecond)
	a := join(t, ctx, url, alice, Options{})

	a.do(t, (*battle.Session).FindOpponent)
	require.Eventually(t, func() bool { return len(h.Queue().Snapshot()) == 1 }, waitFor, tick)

	time.Sleep(100 * time.Millisecond)
	require.True(t, h.Sweep())

	require.Eventually(t, func() bool {
		v, err := a.view()
		return err == nil && v.state == battle.StateIdle
	}, waitFor, tick)

	// queueing again works after the expiry
	a.do(t, (*battle.Session).FindOpponent)
	require.Eventually(t, func() bool { return len(h.Queue().Snapshot()) == 1 }, waitFor, tick)
}

func TestClient_opponentOfflineAbandons(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, url := startRelay(t)
	a := join(t, ctx, url, alice, Options{})
	b := join(t, ctx, url, bob, Options{})
	pair(t, h, a, b)

	require.NoError(t, b.client.Leave())

	assert.Equal(t, battle.OutcomeAbandoned, a.waitTerminated(t).outcome)
	require.Eventually(t, func() bool {
		online := a.client.Online()
		return len(online) == 1 && online[0] == alice.ID
	}, waitFor, tick)
}

func TestClient_closedClient(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, url := startRelay(t)
	a := join(t, ctx, url, alice, Options{})

	require.NoError(t, a.client.Close())
	select {
	case err := <-a.done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(waitFor):
		t.Fatal("Run did not return")
	}

	err := a.client.Do(context.Background(), func(*battle.Session) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, a.client.Send("fire", nil), ErrClosed)
	assert.NoError(t, a.client.Close())
}

func TestClient_cancelStopsRun(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	h, url := startRelay(t)
	a := join(t, ctx, url, alice, Options{})
	a.do(t, (*battle.Session).FindOpponent)
	require.Eventually(t, func() bool { return len(h.Queue().Snapshot()) == 1 }, waitFor, tick)

	cancel()
	select {
	case err := <-a.done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(waitFor):
		t.Fatal("Run did not return")
	}

	// the relay drops the pending request once the connection is gone
	require.Eventually(t, func() bool { return len(h.Queue().Snapshot()) == 0 }, waitFor, tick)
}

func TestDial_rejectedWithoutPlayer(t *testing.T) {
	t.Parallel()

	_, url := startRelay(t)
	_, err := Dial(context.Background(), url, battle.Player{}, Options{})
	assert.Error(t, err)
}
