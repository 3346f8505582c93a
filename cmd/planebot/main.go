package main

import (
	"context"
	"errors"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"

	"planebattle/battle"
	"planebattle/client"
	"planebattle/config"
	"planebattle/server"
)

var errDone = errors.New("all games played")

// planebot：自动摆放机队、排队匹配并随机开火的对战机器人
func main() {
	var (
		url   string
		id    string
		name  string
		games int
		seed  int64
	)
	flag.StringVar(&url, "url", "ws://localhost:8080/ws", "relay websocket url")
	flag.StringVar(&id, "player", "", "player id, random when empty")
	flag.StringVar(&name, "name", "bot", "display name")
	flag.IntVar(&games, "games", 1, "number of battles to play, 0 plays forever")
	flag.Int64Var(&seed, "seed", time.Now().UnixNano(), "random seed")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	// 机器人日志直接输出到 stderr
	if err := server.InitLogger("", cfg.LogLevel); err != nil {
		panic(err)
	}
	defer server.SyncLogger()

	if id == "" {
		id = ulid.Make().String()
	}
	self := battle.Player{ID: id, Name: name}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, url, self, client.Options{TurnTimeout: cfg.TurnTimeout, Logger: server.Log})
	if err != nil {
		server.Log.Errorw("dial failed", "url", url, "error", err)
		os.Exit(1)
	}

	s := battle.NewSession(self, battle.NewArena(cfg.ArenaWidth, cfg.ArenaHeight, cfg.MaxPlanes), c, server.Log)
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx, s) }()

	b := &bot{r: rand.New(rand.NewSource(seed)), life: cfg.PlaneLife, games: games}
	server.Log.Infow("bot started", "player", id, "name", name, "games", games)

	err = b.play(ctx, c, runErr)
	switch {
	case errors.Is(err, errDone):
		server.Log.Infow("bot finished", "wins", b.wins, "played", b.played)
		_ = c.Leave()
	case errors.Is(err, context.Canceled):
		server.Log.Info("bot interrupted")
	default:
		server.Log.Errorw("bot stopped", "error", err)
		os.Exit(1)
	}
}

type bot struct {
	r      *rand.Rand
	life   int
	games  int
	played int
	wins   int
}

// play 每收到一个会话事件就推进一步，直到打满局数或连接结束
func (b *bot) play(ctx context.Context, c *client.Client, runErr <-chan error) error {
	if err := c.Do(ctx, b.step); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-runErr:
			return err
		case <-c.Events():
			if err := c.Do(ctx, b.step); err != nil {
				return err
			}
		}
	}
}

func (b *bot) step(s *battle.Session) error {
	switch s.State() {
	case battle.StateTerminated:
		b.played++
		if s.Outcome() == battle.OutcomeWin {
			b.wins++
		}
		server.Log.Infow("battle over", "opponent", s.Opponent().ID, "outcome", s.Outcome().String(), "played", b.played)
		if b.games > 0 && b.played >= b.games {
			return errDone
		}
		s.Reset()
		return b.queue(s)
	case battle.StateIdle:
		return b.queue(s)
	case battle.StateInProgress:
		if !s.MyTurn() {
			return nil
		}
		x, y, ok := battle.RandomTarget(s.EnemyView(), b.r)
		if !ok {
			return nil
		}
		return s.Fire(x, y)
	}
	return nil
}

func (b *bot) queue(s *battle.Session) error {
	if !s.Arena().IsReady() {
		if err := battle.PlaceRandomFleet(s.Arena(), b.r, b.life, 1000); err != nil {
			return err
		}
	}
	return s.FindOpponent()
}
