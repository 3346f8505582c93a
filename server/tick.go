package server

import (
	"context"
	"time"

	"planebattle/protocol"
)

// StartSweeper 启动等待请求的过期清理循环，ctx 结束时退出
// PendingTTL 为 0 时每次 Sweep 都是空操作，循环照常运行以便热更新生效
func (h *Hub) StartSweeper(ctx context.Context) {
	h.mu.Lock()
	if h.sweeperStarted {
		h.mu.Unlock()
		return
	}
	h.sweeperStarted = true
	h.mu.Unlock()

	go func() {
		ticker := time.NewTicker(h.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.Sweep()
			}
		}
	}()
}

// Sweep 清理一次超时的匹配请求，返回是否有请求被清理
func (h *Hub) Sweep() bool {
	req, ok := h.queue.ExpirePending()
	if !ok {
		return false
	}
	h.metrics.IncPendingExpired()
	waited := h.now().Sub(req.QueuedAt)
	Log.Infow("pending match request expired", "player", req.SenderID, "waited", waited.String())

	// 通知请求方回到空闲，否则客户端会一直等待
	b, err := protocol.Encode(protocol.TypeMatchExpired, protocol.MatchExpired{Waited: waited.String()})
	if err != nil {
		Log.Errorw("encode match_expired", "error", err)
		return true
	}
	if !h.dir.Send(req.SenderID, b) {
		Log.Infow("expired requester not reachable", "player", req.SenderID)
	}
	return true
}
