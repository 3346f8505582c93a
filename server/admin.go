package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// HandleAdminConfig 提供匹配配置的读取与更新（热更新）
// GET /admin/config  返回当前配置
// POST /admin/config 以 JSON 载荷更新部分字段，如 {"pendingTTL":"30s"}
func (h *Hub) HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	type cfg struct {
		PendingTTL    *string `json:"pendingTTL,omitempty"`
		SweepInterval *string `json:"sweepInterval,omitempty"`
		PongWait      *string `json:"pongWait,omitempty"`
	}

	switch r.Method {
	case http.MethodGet:
		ttl := h.queue.TTL().String()
		sweep := h.sweepInterval.String()
		pong := h.pongWait.String()
		writeJSON(w, cfg{PendingTTL: &ttl, SweepInterval: &sweep, PongWait: &pong})
		return
	case http.MethodPost:
		var body cfg
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if body.SweepInterval != nil || body.PongWait != nil {
			http.Error(w, "only pendingTTL can be changed at runtime", http.StatusBadRequest)
			return
		}
		if body.PendingTTL != nil {
			ttl, err := time.ParseDuration(*body.PendingTTL)
			if err != nil || ttl < 0 {
				http.Error(w, "invalid pendingTTL", http.StatusBadRequest)
				return
			}
			h.queue.SetTTL(ttl)
		}
		writeJSON(w, map[string]any{"ok": true})
		Log.Infof("config updated: pendingTTL=%s", h.queue.TTL())
		return
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
}

// HandleMetrics 输出中继运行指标
// GET /metrics
func (h *Hub) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"online":  len(h.dir.Online()),
		"pending": len(h.queue.Snapshot()),
		"metrics": h.metrics.Snapshot(),
	})
}

// HandleQueue 输出匹配槽位中等待的请求
// GET /admin/queue
func (h *Hub) HandleQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"pending": h.queue.Snapshot()})
}

// HandleOnline 输出在线玩家 ID
// GET /admin/online
func (h *Hub) HandleOnline(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"online_ids": h.dir.Online()})
}

// HandleMatches 输出进行中的对局记录
// GET /admin/matches
func (h *Hub) HandleMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.store.Active(r.Context())
	if err != nil {
		Log.Warnw("could not list active matches", "error", err)
		http.Error(w, "could not list matches", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]any{"matches": matches})
}

// Routes 注册 WebSocket 与管理接口
func (h *Hub) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleWS)
	mux.HandleFunc("/admin/config", h.HandleAdminConfig)
	mux.HandleFunc("/admin/queue", h.HandleQueue)
	mux.HandleFunc("/admin/online", h.HandleOnline)
	mux.HandleFunc("/admin/matches", h.HandleMatches)
	mux.HandleFunc("/metrics", h.HandleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
