package protocol

import (
	"encoding/json"
	"fmt"
)

// 经中继交换的消息类型
const (
	TypeFindOpponent    = "find_opponent"
	TypeOpponentFound   = "opponent_found"
	TypeAcceptPairing   = "accept_pairing"
	TypeFire            = "fire"
	TypeFireResult      = "fire_result"
	TypeLost            = "lost"
	TypeAbandon         = "abandon"
	TypePeerUnreachable = "peer_unreachable"
	TypePresenceChanged = "presence_changed"
	TypeLeave           = "leave"
	TypeMatchExpired    = "match_expired"
)

// Envelope 所有帧的外层结构
// From/FromName 由中继按连接身份填写，客户端自带的值会被覆盖
type Envelope struct {
	Type     string          `json:"type"`
	From     string          `json:"from,omitempty"`
	FromName string          `json:"from_name,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Route 点对点消息共用的寻址头
type Route struct {
	DestID   string `json:"dest_id"`
	DestName string `json:"dest_name,omitempty"`
}

// ================= 客户端 -> 中继 =================

type FindOpponent struct {
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
}

type Leave struct{}

// ================= 中继 -> 客户端 =================

type OpponentFound struct {
	OpponentID   string `json:"opponent_id"`
	OpponentName string `json:"opponent_name"`
	PlayerOrder  int    `json:"player_order"`
}

type PeerUnreachable struct {
	DestID   string `json:"dest_id"`
	DestName string `json:"dest_name"`
	Type     string `json:"type"` // 未能送达的消息类型
}

type PresenceChanged struct {
	OnlineIDs []string `json:"online_ids"`
}

// MatchExpired 等待超时，匹配请求已被中继清除
type MatchExpired struct {
	Waited string `json:"waited"`
}

// ================= 客户端 -> 客户端（中继转发） =================

type AcceptPairing struct {
	Route
	Accepted bool `json:"accepted"`
}

type Fire struct {
	Route
	X int `json:"x"`
	Y int `json:"y"`
}

type FireResult struct {
	Route
	X          int    `json:"x"`
	Y          int    `json:"y"`
	ResultKind string `json:"result_kind"`
}

type Lost struct {
	Route
}

type Abandon struct {
	Route
	Reason string `json:"reason,omitempty"`
}

// Encode 将 v 编码为指定类型的帧
func Encode(typ string, v any) ([]byte, error) {
	var data json.RawMessage
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("could not marshal %s payload: %w", typ, err)
		}
		data = b
	}
	out, err := json.Marshal(Envelope{Type: typ, Data: data})
	if err != nil {
		return nil, fmt.Errorf("could not marshal %s envelope: %w", typ, err)
	}
	return out, nil
}

func Decode(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("could not unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("envelope has no type")
	}
	return env, nil
}

func (e Envelope) Payload(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s envelope has no data", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("could not unmarshal %s payload: %w", e.Type, err)
	}
	return nil
}

// IsRouted 该类型是否由中继转发给对端
func IsRouted(typ string) bool {
	switch typ {
	case TypeAcceptPairing, TypeFire, TypeFireResult, TypeLost, TypeAbandon:
		return true
	}
	return false
}
