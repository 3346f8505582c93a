package battle

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"planebattle/protocol"
)

var (
	ErrFleetNotReady     = errors.New("fleet is not fully placed")
	ErrAlreadyInSession  = errors.New("already searching or in a battle")
	ErrNotInProgress     = errors.New("no battle in progress")
	ErrNotYourTurn       = errors.New("not this player's turn")
	ErrUnexpectedSender  = errors.New("message not from the current opponent")
	ErrUnexpectedMessage = errors.New("message not expected in this state")
)

// State 对局生命周期
type State int

const (
	StateIdle State = iota
	StateAwaitingOpponent
	StateInProgress
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingOpponent:
		return "awaiting_opponent"
	case StateInProgress:
		return "in_progress"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Outcome 会话结束时的结果
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeWin
	OutcomeLoss
	OutcomeDeclined
	OutcomeAbandoned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWin:
		return "win"
	case OutcomeLoss:
		return "loss"
	case OutcomeDeclined:
		return "declined"
	case OutcomeAbandoned:
		return "abandoned"
	}
	return "none"
}

type Player struct {
	ID   string
	Name string
}

// Transport 向中继发送带类型的消息
type Transport interface {
	Send(typ string, v any) error
}

type EventKind int

const (
	EventStateChanged EventKind = iota
	EventFleetChanged
	EventShotResult
	EventPairingAnswer
	EventPeerUnreachable
	EventMatchExpired
)

// Event 每次状态变化后通知监听者
type Event struct {
	Kind     EventKind
	State    State
	Outcome  Outcome
	Opponent Player

	// EventFleetChanged：己方棋盘刚结算的射击
	Incoming ShotResult

	// EventShotResult：己方射击 (X, Y) 的结果
	X, Y   int
	Result Kind

	// EventPairingAnswer
	Accepted bool

	// EventPeerUnreachable
	DestName string
}

// Session 客户端回合状态机，持有自己的棋盘
// 非并发安全：调用方需串行化 Handle 与本地操作
type Session struct {
	self     Player
	opponent Player
	arena    *Arena
	tr       Transport
	logger   *zap.SugaredLogger
	listener func(Event)

	state   State
	myTurn  bool
	outcome Outcome
	enemy   [][]Kind
}

func NewSession(self Player, arena *Arena, tr Transport, logger *zap.SugaredLogger) *Session {
	s := &Session{
		self:   self,
		arena:  arena,
		tr:     tr,
		logger: logger.Named("session").With("player", self.ID),
	}
	s.resetEnemy()
	return s
}

// OnEvent 注册事件监听
func (s *Session) OnEvent(fn func(Event)) { s.listener = fn }

func (s *Session) Self() Player { return s.self }
func (s *Session) Opponent() Player { return s.opponent }
func (s *Session) State() State { return s.state }
func (s *Session) Outcome() Outcome { return s.outcome }
func (s *Session) Arena() *Arena { return s.arena }
func (s *Session) Active() bool { return s.state == StateInProgress }
func (s *Session) MyTurn() bool { return s.state == StateInProgress && s.myTurn }
func (s *Session) EnemyView() [][]Kind {
	out := make([][]Kind, len(s.enemy))
	for y := range s.enemy {
		out[y] = append([]Kind(nil), s.enemy[y]...)
	}
	return out
}

// FindOpponent 请求匹配
func (s *Session) FindOpponent() error {
	if s.state != StateIdle {
		return ErrAlreadyInSession
	}
	if !s.arena.IsReady() {
		return ErrFleetNotReady
	}
	if err := s.tr.Send(protocol.TypeFindOpponent, protocol.FindOpponent{
		SenderID:   s.self.ID,
		SenderName: s.self.Name,
	}); err != nil {
		return fmt.Errorf("could not send match request: %w", err)
	}
	s.setState(StateAwaitingOpponent)
	return nil
}

// AcceptPairing 回复配对，拒绝则对局直接结束
func (s *Session) AcceptPairing(accepted bool) error {
	if s.state != StateInProgress {
		return ErrNotInProgress
	}
	if err := s.tr.Send(protocol.TypeAcceptPairing, protocol.AcceptPairing{
		Route:    s.route(),
		Accepted: accepted,
	}); err != nil {
		return fmt.Errorf("could not send pairing answer: %w", err)
	}
	if !accepted {
		s.terminate(OutcomeDeclined)
	}
	return nil
}

// Fire 向对手棋盘 (x, y) 开火，发出即交出回合
func (s *Session) Fire(x, y int) error {
	if s.state != StateInProgress {
		return ErrNotInProgress
	}
	if !s.myTurn {
		return ErrNotYourTurn
	}
	if !s.arena.InBounds(x, y) {
		return fmt.Errorf("%w: (%d,%d)", ErrOutOfRange, x, y)
	}
	if err := s.tr.Send(protocol.TypeFire, protocol.Fire{Route: s.route(), X: x, Y: y}); err != nil {
		return fmt.Errorf("could not send shot: %w", err)
	}
	s.myTurn = false
	s.publish(Event{Kind: EventStateChanged})
	return nil
}

// Abandon 放弃：等待匹配时回到空闲，对局中则通知对手并以放弃结束
func (s *Session) Abandon() {
	switch s.state {
	case StateAwaitingOpponent:
		s.setState(StateIdle)
	case StateInProgress:
		s.abandon("")
	}
}

// abandon 通知发送失败时本地照常结束
func (s *Session) abandon(reason string) {
	if err := s.tr.Send(protocol.TypeAbandon, protocol.Abandon{Route: s.route(), Reason: reason}); err != nil {
		s.logger.Warnw("could not send abandon notice", "error", err)
	}
	s.terminate(OutcomeAbandoned)
}

// Reset 结束后的会话准备再战：棋盘清空，需重新摆放机队
func (s *Session) Reset() {
	if s.state != StateTerminated {
		return
	}
	s.arena.Restart()
	s.opponent = Player{}
	s.outcome = OutcomeNone
	s.myTurn = false
	s.resetEnemy()
	s.setState(StateIdle)
}

// Handle 处理一条入站消息
// 返回错误表示消息被丢弃，此时会话状态不变
func (s *Session) Handle(env protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeOpponentFound:
		var msg protocol.OpponentFound
		if err := env.Payload(&msg); err != nil {
			return err
		}
		return s.handleOpponentFound(msg)
	case protocol.TypeAcceptPairing:
		var msg protocol.AcceptPairing
		if err := env.Payload(&msg); err != nil {
			return err
		}
		return s.handleAcceptPairing(env.From, msg)
	case protocol.TypeFire:
		var msg protocol.Fire
		if err := env.Payload(&msg); err != nil {
			return err
		}
		return s.handleFire(env.From, msg)
	case protocol.TypeFireResult:
		var msg protocol.FireResult
		if err := env.Payload(&msg); err != nil {
			return err
		}
		return s.handleFireResult(env.From, msg)
	case protocol.TypeLost:
		return s.handleLost(env.From)
	case protocol.TypeAbandon:
		var msg protocol.Abandon
		if err := env.Payload(&msg); err != nil {
			return err
		}
		return s.handleAbandon(env.From, msg)
	case protocol.TypeMatchExpired:
		if s.state != StateAwaitingOpponent {
			return fmt.Errorf("%w: match expired while %s", ErrUnexpectedMessage, s.state)
		}
		s.logger.Infow("match request expired")
		s.setState(StateIdle)
		s.publish(Event{Kind: EventMatchExpired})
		return nil
	case protocol.TypePeerUnreachable:
		var msg protocol.PeerUnreachable
		if err := env.Payload(&msg); err != nil {
			return err
		}
		s.logger.Infow("peer unreachable", "dest", msg.DestID, "type", msg.Type)
		s.publish(Event{Kind: EventPeerUnreachable, DestName: msg.DestName})
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnexpectedMessage, env.Type)
}

func (s *Session) handleOpponentFound(msg protocol.OpponentFound) error {
	if s.state != StateAwaitingOpponent {
		return fmt.Errorf("%w: opponent found while %s", ErrUnexpectedMessage, s.state)
	}
	if msg.OpponentID == "" || msg.OpponentID == s.self.ID {
		return fmt.Errorf("%w: invalid opponent %q", ErrUnexpectedSender, msg.OpponentID)
	}

	switch msg.PlayerOrder {
	case 1:
		s.myTurn = true
	case 2:
		s.myTurn = false
	default:
		return fmt.Errorf("%w: player order %d", ErrUnexpectedMessage, msg.PlayerOrder)
	}

	s.opponent = Player{ID: msg.OpponentID, Name: msg.OpponentName}
	s.outcome = OutcomeNone
	s.resetEnemy()
	s.logger.Infow("opponent found", "opponent", msg.OpponentID, "order", msg.PlayerOrder)
	s.setState(StateInProgress)
	return nil
}

func (s *Session) handleAcceptPairing(from string, msg protocol.AcceptPairing) error {
	if err := s.checkOpponent(from); err != nil {
		return err
	}
	s.publish(Event{Kind: EventPairingAnswer, Accepted: msg.Accepted})
	if !msg.Accepted {
		s.terminate(OutcomeDeclined)
	}
	return nil
}

func (s *Session) handleFire(from string, msg protocol.Fire) error {
	if err := s.checkOpponent(from); err != nil {
		return err
	}
	if s.myTurn {
		return fmt.Errorf("%w: opponent fired out of turn", ErrNotYourTurn)
	}

	res, err := s.arena.ResolveShot(msg.X, msg.Y)
	if errors.Is(err, ErrOutOfRange) {
		// 双方棋盘尺寸不一致，对局无法继续
		s.logger.Warnw("incoming shot outside the arena", "x", msg.X, "y", msg.Y)
		s.abandon("shot outside the arena")
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.tr.Send(protocol.TypeFireResult, protocol.FireResult{
		Route:      s.route(),
		X:          res.X,
		Y:          res.Y,
		ResultKind: res.Kind.String(),
	}); err != nil {
		s.logger.Warnw("could not report shot result", "error", err)
	}
	s.publish(Event{Kind: EventFleetChanged, Incoming: res})

	if res.FleetDestroyed {
		if err := s.tr.Send(protocol.TypeLost, protocol.Lost{Route: s.route()}); err != nil {
			s.logger.Warnw("could not send lost notice", "error", err)
		}
		s.terminate(OutcomeLoss)
		return nil
	}

	s.myTurn = true
	s.publish(Event{Kind: EventStateChanged})
	return nil
}

func (s *Session) handleFireResult(from string, msg protocol.FireResult) error {
	if err := s.checkOpponent(from); err != nil {
		return err
	}
	kind, ok := ParseKind(msg.ResultKind)
	if !ok || !kind.Fired() {
		return fmt.Errorf("%w: result kind %q", ErrUnexpectedMessage, msg.ResultKind)
	}
	if msg.Y < 0 || msg.Y >= len(s.enemy) || msg.X < 0 || msg.X >= len(s.enemy[msg.Y]) {
		return fmt.Errorf("%w: (%d,%d)", ErrOutOfRange, msg.X, msg.Y)
	}
	s.enemy[msg.Y][msg.X] = kind
	s.publish(Event{Kind: EventShotResult, X: msg.X, Y: msg.Y, Result: kind})
	return nil
}

func (s *Session) handleLost(from string) error {
	if err := s.checkOpponent(from); err != nil {
		return err
	}
	s.terminate(OutcomeWin)
	return nil
}

func (s *Session) handleAbandon(from string, msg protocol.Abandon) error {
	if err := s.checkOpponent(from); err != nil {
		return err
	}
	s.logger.Infow("opponent abandoned", "opponent", from, "reason", msg.Reason)
	s.terminate(OutcomeAbandoned)
	return nil
}

// checkOpponent 对端消息必须在对局中到达，且来自配对时记录的对手
func (s *Session) checkOpponent(from string) error {
	if s.state != StateInProgress {
		return ErrNotInProgress
	}
	if from == "" || from != s.opponent.ID {
		return fmt.Errorf("%w: got %q want %q", ErrUnexpectedSender, from, s.opponent.ID)
	}
	return nil
}

func (s *Session) terminate(o Outcome) {
	s.outcome = o
	s.myTurn = false
	s.logger.Infow("battle over", "opponent", s.opponent.ID, "outcome", o.String())
	s.setState(StateTerminated)
}

func (s *Session) setState(st State) {
	s.state = st
	s.publish(Event{Kind: EventStateChanged})
}

func (s *Session) publish(ev Event) {
	if s.listener == nil {
		return
	}
	ev.State = s.state
	ev.Outcome = s.outcome
	ev.Opponent = s.opponent
	s.listener(ev)
}

func (s *Session) route() protocol.Route {
	return protocol.Route{DestID: s.opponent.ID, DestName: s.opponent.Name}
}

func (s *Session) resetEnemy() {
	s.enemy = make([][]Kind, s.arena.Height())
	for y := range s.enemy {
		s.enemy[y] = make([]Kind, s.arena.Width())
	}
}
