package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"planebattle/events"
	"planebattle/matchstore"
	"planebattle/protocol"
)

const storeTimeout = 3 * time.Second

// Publisher 对局事件的发布端（RabbitMQ 或 Noop）
type Publisher interface {
	PublishBattlePaired(ctx context.Context, event events.BattlePairedEvent) error
	PublishBattleFinished(ctx context.Context, event events.BattleFinishedEvent) error
}

// Options Hub 的可选项，零值表示使用默认
type Options struct {
	PendingTTL    time.Duration
	SweepInterval time.Duration
	PongWait      time.Duration
	Store         matchstore.Store
	Publisher     Publisher
}

// Hub 中继核心：在线目录 + 匹配队列 + 对局记录
// 读协程直接调用 Dispatch，共享状态各自持锁
type Hub struct {
	dir       *Directory
	queue     *MatchQueue
	metrics   *RelayMetrics
	store     matchstore.Store
	publisher Publisher

	pongWait      time.Duration
	sweepInterval time.Duration

	mu             sync.Mutex
	matches        map[PlayerID]*matchstore.Match
	sweeperStarted bool
	now            func() time.Time
}

func NewHub(opts Options) *Hub {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Second
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.Store == nil {
		opts.Store = matchstore.NewMemory()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Noop{}
	}

	metrics := &RelayMetrics{}
	return &Hub{
		dir:           NewDirectory(metrics),
		queue:         NewMatchQueue(opts.PendingTTL),
		metrics:       metrics,
		store:         opts.Store,
		publisher:     opts.Publisher,
		pongWait:      opts.PongWait,
		sweepInterval: opts.SweepInterval,
		matches:       make(map[PlayerID]*matchstore.Match),
		now:           time.Now,
	}
}

func (h *Hub) Directory() *Directory { return h.dir }
func (h *Hub) Queue() *MatchQueue { return h.queue }
func (h *Hub) Metrics() *RelayMetrics { return h.metrics }
func (h *Hub) Store() matchstore.Store { return h.store }

// Join 玩家上线：登记目录（同 ID 顶掉旧连接）并广播在线列表
func (h *Hub) Join(p *Player) {
	if prev := h.dir.Register(p); prev != nil {
		Log.Infow("player reconnected, closing previous connection", "player", p.ID)
		if prev.Conn != nil {
			prev.Conn.Close()
		}
	}
	h.metrics.IncConnections()
	Log.Infow("player joined", "player", p.ID, "name", p.Name)
	h.dir.BroadcastPresence()
}

// Leave 玩家下线：注销、撤回匹配请求、放弃进行中的对局并广播在线列表
// 对同一个玩家对象重复调用是安全的
func (h *Hub) Leave(p *Player) {
	if !h.dir.Unregister(p) {
		return
	}
	h.metrics.IncDisconnections()
	if h.queue.Withdraw(p.ID) {
		Log.Infow("pending match request withdrawn", "player", p.ID)
	}
	h.finishMatch(p.ID, matchstore.StateAbandoned)
	Log.Infow("player left", "player", p.ID)
	h.dir.BroadcastPresence()
}

// Dispatch 处理玩家发来的一帧
// 发送方身份由连接决定，客户端填写的 from 一律覆盖
func (h *Hub) Dispatch(p *Player, raw []byte) {
	env, err := protocol.Decode(raw)
	if err != nil {
		h.metrics.IncInvalidFrames()
		Log.Debugw("invalid frame", "player", p.ID, "error", err)
		return
	}
	env.From = string(p.ID)
	env.FromName = p.DisplayName()

	switch {
	case env.Type == protocol.TypeFindOpponent:
		h.findOpponent(p)
	case env.Type == protocol.TypeLeave:
		h.Leave(p)
		if p.Conn != nil {
			p.Conn.Close()
		}
	case protocol.IsRouted(env.Type):
		h.route(p, env)
	default:
		h.metrics.IncInvalidFrames()
		Log.Debugw("unknown message type", "player", p.ID, "type", env.Type)
	}
}

func (h *Hub) findOpponent(p *Player) {
	pairing, res := h.queue.Submit(MatchRequest{SenderID: p.ID, SenderName: p.DisplayName()})
	switch res {
	case SubmitQueued:
		h.metrics.IncRequestsQueued()
		Log.Infow("match request queued", "player", p.ID)
	case SubmitSelfPair:
		h.metrics.IncSelfPairRejected()
		Log.Debugw("duplicate match request ignored", "player", p.ID)
	case SubmitDropped:
		h.metrics.IncRequestsDropped()
		Log.Debugw("match slots busy, request dropped", "player", p.ID)
	case SubmitPaired:
		h.metrics.IncRequestsQueued()
		h.pair(pairing)
	}
}

// pair 交叉投递：每一方收到的是对方的请求与自己的先后手
func (h *Hub) pair(pairing Pairing) {
	h.metrics.IncPairings()
	first, second := pairing.First, pairing.Second

	h.sendOpponentFound(first.SenderID, second, first.PlayerOrder)
	h.sendOpponentFound(second.SenderID, first, second.PlayerOrder)

	m := matchstore.NewMatch(string(first.SenderID), first.SenderName, string(second.SenderID), second.SenderName, h.now())

	h.mu.Lock()
	var stale []matchstore.Match
	for _, id := range []PlayerID{first.SenderID, second.SenderID} {
		if old, ok := h.matches[id]; ok {
			if rec, done := h.closeLocked(old, matchstore.StateAbandoned, ""); done {
				stale = append(stale, rec)
			}
		}
	}
	h.matches[first.SenderID] = m
	h.matches[second.SenderID] = m
	rec := *m
	h.mu.Unlock()

	for i := range stale {
		h.recordFinished(&stale[i])
	}

	Log.Infow("players paired", "match", rec.ID, "first", first.SenderID, "second", second.SenderID)

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.store.Save(ctx, &rec); err != nil {
		Log.Warnw("could not save match", "match", rec.ID, "error", err)
	}
	if err := h.publisher.PublishBattlePaired(ctx, events.BattlePairedEvent{
		MatchID:   rec.ID,
		Players:   rec.Players,
		Names:     rec.Names,
		CreatedAt: rec.CreatedAt,
	}); err != nil {
		Log.Warnw("could not publish paired event", "match", rec.ID, "error", err)
	}
}

func (h *Hub) sendOpponentFound(to PlayerID, opponent MatchRequest, order int) {
	b, err := protocol.Encode(protocol.TypeOpponentFound, protocol.OpponentFound{
		OpponentID:   string(opponent.SenderID),
		OpponentName: opponent.SenderName,
		PlayerOrder:  order,
	})
	if err != nil {
		Log.Errorw("encode opponent_found", "error", err)
		return
	}
	if !h.dir.Send(to, b) {
		Log.Infow("paired player not reachable", "player", to)
	}
}

// route 转发点对点消息，并根据 lost / abandon / 拒绝配对 更新对局记录
func (h *Hub) route(p *Player, env protocol.Envelope) {
	var r protocol.Route
	if err := env.Payload(&r); err != nil || r.DestID == "" {
		h.metrics.IncInvalidFrames()
		Log.Debugw("routed message without destination", "player", p.ID, "type", env.Type)
		return
	}

	frame, err := json.Marshal(env)
	if err != nil {
		Log.Errorw("encode routed frame", "type", env.Type, "error", err)
		return
	}
	h.dir.Route(p, r, env.Type, frame)

	switch env.Type {
	case protocol.TypeLost:
		h.finishMatch(p.ID, matchstore.StateFinished)
	case protocol.TypeAbandon:
		h.finishMatch(p.ID, matchstore.StateAbandoned)
	case protocol.TypeAcceptPairing:
		var ap protocol.AcceptPairing
		if err := env.Payload(&ap); err == nil && !ap.Accepted {
			h.finishMatch(p.ID, matchstore.StateDeclined)
		}
	}
}

// finishMatch 结束 id 所在的对局；StateFinished 时 id 为输家
func (h *Hub) finishMatch(id PlayerID, state matchstore.State) {
	h.mu.Lock()
	m, ok := h.matches[id]
	if !ok {
		h.mu.Unlock()
		return
	}
	winner := ""
	if state == matchstore.StateFinished {
		winner = m.Opponent(string(id))
	}
	rec, done := h.closeLocked(m, state, winner)
	h.mu.Unlock()

	if done {
		h.recordFinished(&rec)
	}
}

// closeLocked 需持有 h.mu
func (h *Hub) closeLocked(m *matchstore.Match, state matchstore.State, winner string) (matchstore.Match, bool) {
	for _, pid := range m.Players {
		if h.matches[PlayerID(pid)] == m {
			delete(h.matches, PlayerID(pid))
		}
	}
	if !m.Finish(state, winner, h.now()) {
		return matchstore.Match{}, false
	}
	return *m, true
}

func (h *Hub) recordFinished(rec *matchstore.Match) {
	h.metrics.IncBattlesFinished()
	Log.Infow("battle finished", "match", rec.ID, "state", rec.State, "winner", rec.Winner)

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.store.Save(ctx, rec); err != nil {
		Log.Warnw("could not save match", "match", rec.ID, "error", err)
	}
	finishedAt := h.now()
	if rec.FinishedAt != nil {
		finishedAt = *rec.FinishedAt
	}
	if err := h.publisher.PublishBattleFinished(ctx, events.BattleFinishedEvent{
		MatchID:    rec.ID,
		Players:    rec.Players,
		State:      string(rec.State),
		Winner:     rec.Winner,
		FinishedAt: finishedAt,
	}); err != nil {
		Log.Warnw("could not publish finished event", "match", rec.ID, "error", err)
	}
}
