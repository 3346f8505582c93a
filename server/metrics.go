package server

import (
	"sync/atomic"
)

// RelayMetrics 记录中继运行期的关键指标（用于监控与调试）
type RelayMetrics struct {
	Connections      int64 // 建立的连接数
	Disconnections   int64 // 断开的连接数
	InvalidFrames    int64 // 无法解析或类型未知的消息数
	MessagesRouted   int64 // 成功转发给对手的消息数
	PeersUnreachable int64 // 目标离线而回送 peer_unreachable 的次数
	SendQueueFull    int64 // 因发送队列满被丢弃的消息数
	RequestsQueued   int64 // 进入匹配槽位的请求数
	RequestsDropped  int64 // 槽位已满被丢弃的请求数
	SelfPairRejected int64 // 同一玩家重复请求被拒绝的次数
	Pairings         int64 // 成功配对次数
	PendingExpired   int64 // 等待超时被清理的请求数
	BattlesFinished  int64 // 结束的对局数
}

func (m *RelayMetrics) IncConnections() { atomic.AddInt64(&m.Connections, 1) }
func (m *RelayMetrics) IncDisconnections() { atomic.AddInt64(&m.Disconnections, 1) }
func (m *RelayMetrics) IncInvalidFrames() { atomic.AddInt64(&m.InvalidFrames, 1) }
func (m *RelayMetrics) IncMessagesRouted() { atomic.AddInt64(&m.MessagesRouted, 1) }
func (m *RelayMetrics) IncPeersUnreachable() { atomic.AddInt64(&m.PeersUnreachable, 1) }
func (m *RelayMetrics) IncSendQueueFull() { atomic.AddInt64(&m.SendQueueFull, 1) }
func (m *RelayMetrics) IncRequestsQueued() { atomic.AddInt64(&m.RequestsQueued, 1) }
func (m *RelayMetrics) IncRequestsDropped() { atomic.AddInt64(&m.RequestsDropped, 1) }
func (m *RelayMetrics) IncSelfPairRejected() { atomic.AddInt64(&m.SelfPairRejected, 1) }
func (m *RelayMetrics) IncPairings() { atomic.AddInt64(&m.Pairings, 1) }
func (m *RelayMetrics) IncPendingExpired() { atomic.AddInt64(&m.PendingExpired, 1) }
func (m *RelayMetrics) IncBattlesFinished() { atomic.AddInt64(&m.BattlesFinished, 1) }

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *RelayMetrics) Snapshot() map[string]any {
	return map[string]any{
		"connections":        atomic.LoadInt64(&m.Connections),
		"disconnections":     atomic.LoadInt64(&m.Disconnections),
		"invalid_frames":     atomic.LoadInt64(&m.InvalidFrames),
		"messages_routed":    atomic.LoadInt64(&m.MessagesRouted),
		"peers_unreachable":  atomic.LoadInt64(&m.PeersUnreachable),
		"send_queue_full":    atomic.LoadInt64(&m.SendQueueFull),
		"requests_queued":    atomic.LoadInt64(&m.RequestsQueued),
		"requests_dropped":   atomic.LoadInt64(&m.RequestsDropped),
		"self_pair_rejected": atomic.LoadInt64(&m.SelfPairRejected),
		"pairings":           atomic.LoadInt64(&m.Pairings),
		"pending_expired":    atomic.LoadInt64(&m.PendingExpired),
		"battles_finished":   atomic.LoadInt64(&m.BattlesFinished),
	}
}
