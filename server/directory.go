package server

import (
	"sort"
	"sync"

	"planebattle/protocol"
)

// Directory 全局在线目录：玩家 ID -> 当前连接
// 所有读写都在同一把锁内完成，路由查找与注册/注销互斥
type Directory struct {
	mu      sync.RWMutex
	players map[PlayerID]*Player
	metrics *RelayMetrics
}

func NewDirectory(metrics *RelayMetrics) *Directory {
	if metrics == nil {
		metrics = &RelayMetrics{}
	}
	return &Directory{
		players: make(map[PlayerID]*Player),
		metrics: metrics,
	}
}

// Register 登记玩家连接，同 ID 覆盖旧连接并返回被顶替的旧玩家
func (d *Directory) Register(p *Player) *Player {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev := d.players[p.ID]
	d.players[p.ID] = p
	if prev == p {
		return nil
	}
	return prev
}

// Unregister 仅当目录中仍是这个玩家对象时才移除，避免旧连接的读协程把新连接注销
func (d *Directory) Unregister(p *Player) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.players[p.ID]
	if !ok || cur != p {
		return false
	}
	delete(d.players, p.ID)
	return true
}

// Lookup 按 ID 查找在线玩家
func (d *Directory) Lookup(id PlayerID) (*Player, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.players[id]
	return p, ok
}

// Send 直接投递给某个在线玩家
func (d *Directory) Send(id PlayerID, b []byte) bool {
	p, ok := d.Lookup(id)
	if !ok {
		return false
	}
	return d.enqueue(p, b)
}

// Route 转发点对点消息；目标不在线时给发送方回一条 peer_unreachable
func (d *Directory) Route(from *Player, r protocol.Route, typ string, frame []byte) bool {
	if dest, ok := d.Lookup(PlayerID(r.DestID)); ok && d.enqueue(dest, frame) {
		d.metrics.IncMessagesRouted()
		return true
	}

	d.metrics.IncPeersUnreachable()
	name := r.DestName
	if name == "" {
		name = r.DestID
	}
	b, err := protocol.Encode(protocol.TypePeerUnreachable, protocol.PeerUnreachable{
		DestID:   r.DestID,
		DestName: name,
		Type:     typ,
	})
	if err != nil {
		Log.Errorw("encode peer_unreachable", "error", err)
		return false
	}
	Log.Infow("peer unreachable", "from", from.ID, "dest", r.DestID, "type", typ)
	d.enqueue(from, b)
	return false
}

// Online 返回当前在线 ID（排序后）
func (d *Directory) Online() []string {
	d.mu.RLock()
	ids := make([]string, 0, len(d.players))
	for id := range d.players {
		ids = append(ids, string(id))
	}
	d.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// BroadcastPresence 将在线列表广播给所有玩家
func (d *Directory) BroadcastPresence() {
	b, err := protocol.Encode(protocol.TypePresenceChanged, protocol.PresenceChanged{OnlineIDs: d.Online()})
	if err != nil {
		Log.Errorw("encode presence", "error", err)
		return
	}

	d.mu.RLock()
	targets := make([]*Player, 0, len(d.players))
	for _, p := range d.players {
		targets = append(targets, p)
	}
	d.mu.RUnlock()

	for _, p := range targets {
		d.enqueue(p, b)
	}
}

func (d *Directory) enqueue(p *Player, b []byte) bool {
	if p.Conn == nil {
		return false
	}
	if !p.Conn.Enqueue(b) {
		d.metrics.IncSendQueueFull()
		Log.Warnw("send queue full or closed", "player", p.ID)
		return false
	}
	return true
}
