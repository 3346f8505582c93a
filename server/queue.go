package server

import (
	"sync"
	"time"
)

// MatchRequest 一次“寻找对手”请求，只存在于匹配槽位中
type MatchRequest struct {
	SenderID    PlayerID  `json:"sender_id"`
	SenderName  string    `json:"sender_name"`
	PlayerOrder int       `json:"player_order,omitempty"`
	QueuedAt    time.Time `json:"queued_at"`
}

// Pairing 配对结果：First 先手（order=1），Second 后手（order=2）
type Pairing struct {
	First  MatchRequest
	Second MatchRequest
}

// SubmitResult 描述一次 Submit 的去向
type SubmitResult int

const (
	SubmitQueued SubmitResult = iota
	SubmitPaired
	SubmitSelfPair
	SubmitDropped
)

func (r SubmitResult) String() string {
	switch r {
	case SubmitQueued:
		return "queued"
	case SubmitPaired:
		return "paired"
	case SubmitSelfPair:
		return "self_pair"
	case SubmitDropped:
		return "dropped"
	}
	return "unknown"
}

// MatchQueue 两个槽位的匹配缓冲
// 检查、存入、配对、清空在同一把锁内完成
type MatchQueue struct {
	mu    sync.Mutex
	slots [2]*MatchRequest
	ttl   time.Duration
	now   func() time.Time
}

// NewMatchQueue ttl<=0 表示等待中的请求永不过期
func NewMatchQueue(ttl time.Duration) *MatchQueue {
	return &MatchQueue{ttl: ttl, now: time.Now}
}

// Submit 提交请求：槽位1空则存入槽位1；否则槽位2空且发送者不同则存入槽位2；
// 其余情况丢弃。两个槽位都满时立即配对并清空
func (q *MatchQueue) Submit(req MatchRequest) (Pairing, SubmitResult) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if req.QueuedAt.IsZero() {
		req.QueuedAt = q.now()
	}

	switch {
	case q.slots[0] == nil:
		q.slots[0] = &req
		return Pairing{}, SubmitQueued
	case q.slots[0].SenderID == req.SenderID:
		return Pairing{}, SubmitSelfPair
	case q.slots[1] != nil:
		return Pairing{}, SubmitDropped
	}

	q.slots[1] = &req
	p := Pairing{First: *q.slots[0], Second: *q.slots[1]}
	p.First.PlayerOrder = 1
	p.Second.PlayerOrder = 2
	q.slots = [2]*MatchRequest{}
	return p, SubmitPaired
}

// Withdraw 撤回某玩家仍在等待的请求（断线或主动离开）
func (q *MatchQueue) Withdraw(id PlayerID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := false
	for i, r := range q.slots {
		if r != nil && r.SenderID == id {
			q.slots[i] = nil
			removed = true
		}
	}
	return removed
}

// ExpirePending 清理等待超过 ttl 的请求
func (q *MatchQueue) ExpirePending() (MatchRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ttl <= 0 || q.slots[0] == nil {
		return MatchRequest{}, false
	}
	if q.now().Sub(q.slots[0].QueuedAt) < q.ttl {
		return MatchRequest{}, false
	}
	expired := *q.slots[0]
	q.slots[0] = nil
	return expired, true
}

func (q *MatchQueue) TTL() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ttl
}

// SetTTL 热更新等待超时
func (q *MatchQueue) SetTTL(ttl time.Duration) {
	q.mu.Lock()
	q.ttl = ttl
	q.mu.Unlock()
}

// Snapshot 返回当前等待中的请求副本
func (q *MatchQueue) Snapshot() []MatchRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]MatchRequest, 0, 2)
	for _, r := range q.slots {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}
