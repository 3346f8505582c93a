package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	neturl "net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"planebattle/battle"
	"planebattle/protocol"
)

var ErrClosed = errors.New("client closed")

const writeWait = 5 * time.Second

// Options 客户端可选项
type Options struct {
	// TurnTimeout 对手超过该时长没有动作则放弃对局，0 表示不限时
	TurnTimeout time.Duration
	Logger      *zap.SugaredLogger
}

type command struct {
	fn  func(*battle.Session) error
	err chan error
}

// Client 连接中继并驱动一个 battle.Session
// Session 只在 Run 所在的协程里被访问，外部操作通过 Do 串行化
type Client struct {
	self        battle.Player
	conn        *websocket.Conn
	logger      *zap.SugaredLogger
	turnTimeout time.Duration

	writeMu sync.Mutex
	inCh    chan protocol.Envelope
	cmdCh   chan command
	events  chan battle.Event
	done    chan struct{}
	once    sync.Once

	mu     sync.Mutex
	online []string
}

var _ battle.Transport = (*Client)(nil)

// Dial 连接 wsURL（如 ws://localhost:8080/ws），身份通过查询参数携带
func Dial(ctx context.Context, wsURL string, self battle.Player, opts Options) (*Client, error) {
	u, err := neturl.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("could not parse relay url: %w", err)
	}
	q := u.Query()
	q.Set("player", self.ID)
	if self.Name != "" {
		q.Set("name", self.Name)
	}
	u.RawQuery = q.Encode()

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger = logger.Named("client").With("player", self.ID)

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			return nil, fmt.Errorf("could not connect to relay: %s %s: %w", resp.Status, body, err)
		}
		return nil, fmt.Errorf("could not connect to relay: %w", err)
	}

	c := &Client{
		self:        self,
		conn:        conn,
		logger:      logger,
		turnTimeout: opts.TurnTimeout,
		inCh:        make(chan protocol.Envelope, 128),
		cmdCh:       make(chan command),
		events:      make(chan battle.Event, 128),
		done:        make(chan struct{}),
	}
	go c.reader()
	return c, nil
}

func (c *Client) Self() battle.Player { return c.self }

// Events 会话事件；消费过慢时新事件会被丢弃
func (c *Client) Events() <-chan battle.Event { return c.events }

// Online 最近一次收到的在线列表
func (c *Client) Online() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.online...)
}

func (c *Client) reader() {
	defer close(c.inCh)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Infow("connection closed", "error", err)
			}
			return
		}
		env, err := protocol.Decode(data)
		if err != nil {
			c.logger.Debugw("invalid frame", "error", err)
			continue
		}
		select {
		case c.inCh <- env:
		case <-c.done:
			return
		}
	}
}

// Send 实现 battle.Transport
func (c *Client) Send(typ string, v any) error {
	b, err := protocol.Encode(typ, v)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("could not write %s: %w", typ, err)
	}
	return nil
}

// Leave 通知中继下线后关闭连接
func (c *Client) Leave() error {
	if err := c.Send(protocol.TypeLeave, nil); err != nil {
		_ = c.Close()
		return err
	}
	return c.Close()
}

// Close 关闭连接，可重复调用
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		c.writeMu.Lock()
		close(c.done)
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// Do 在 Run 的协程里执行 fn 并返回其错误
func (c *Client) Do(ctx context.Context, fn func(*battle.Session) error) error {
	cmd := command{fn: fn, err: make(chan error, 1)}
	select {
	case c.cmdCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
	select {
	case err := <-cmd.err:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run 驱动会话直到 ctx 结束或连接断开，返回时连接已关闭
// ctx 结束时正在等待或进行中的对局按放弃处理
func (c *Client) Run(ctx context.Context, s *battle.Session) error {
	defer c.Close()
	s.OnEvent(c.publish)

	var (
		timer    *time.Timer
		deadline <-chan time.Time
		waiting  bool
	)
	stop := func() {
		if timer != nil {
			timer.Stop()
			timer, deadline = nil, nil
		}
	}
	arm := func() {
		stop()
		if c.turnTimeout > 0 {
			timer = time.NewTimer(c.turnTimeout)
			deadline = timer.C
		}
	}
	defer stop()

	for {
		progressed := false

		select {
		case <-ctx.Done():
			if s.State() == battle.StateAwaitingOpponent || s.Active() {
				s.Abandon()
			}
			return ctx.Err()
		case env, ok := <-c.inCh:
			if !ok {
				if s.Active() {
					s.Abandon()
				}
				return ErrClosed
			}
			progressed = c.handle(s, env)
		case cmd := <-c.cmdCh:
			cmd.err <- cmd.fn(s)
		case <-deadline:
			timer, deadline = nil, nil
			if s.Active() && !s.MyTurn() {
				c.logger.Infow("opponent timed out", "opponent", s.Opponent().ID, "timeout", c.turnTimeout.String())
				s.Abandon()
			}
		}

		nowWaiting := s.Active() && !s.MyTurn()
		switch {
		case !nowWaiting:
			stop()
		case !waiting || progressed:
			arm()
		}
		waiting = nowWaiting
	}
}

// handle 返回对手消息是否被接受，用于重置等待计时
func (c *Client) handle(s *battle.Session, env protocol.Envelope) bool {
	if env.Type == protocol.TypePresenceChanged {
		var msg protocol.PresenceChanged
		if err := env.Payload(&msg); err != nil {
			c.logger.Debugw("invalid presence", "error", err)
			return false
		}
		c.mu.Lock()
		c.online = msg.OnlineIDs
		c.mu.Unlock()

		if s.Active() && !contains(msg.OnlineIDs, s.Opponent().ID) {
			c.logger.Infow("opponent went offline", "opponent", s.Opponent().ID)
			s.Abandon()
		}
		return false
	}

	if err := s.Handle(env); err != nil {
		// 校验失败的消息静默丢弃
		c.logger.Debugw("message dropped", "type", env.Type, "from", env.From, "error", err)
		return false
	}
	return env.From != "" && env.From == s.Opponent().ID
}

func (c *Client) publish(ev battle.Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warnw("event dropped, consumer too slow", "kind", ev.Kind)
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
