package matchstore

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// State 对局记录状态
type State string

const (
	StateInProgress State = "in_progress"
	StateFinished   State = "finished"
	StateDeclined   State = "declined"
	StateAbandoned  State = "abandoned"
)

var ErrNotFound = errors.New("match not found")

// Store 对局记录存储
type Store interface {
	Save(ctx context.Context, m *Match) error
	Get(ctx context.Context, id string) (*Match, error)
	Active(ctx context.Context) ([]*Match, error)
}

// Match 一场对局的记录；Players[0] 是先手
type Match struct {
	ID         string     `json:"match_id"`
	Players    []string   `json:"players"`
	Names      []string   `json:"names"`
	State      State      `json:"state"`
	Winner     string     `json:"winner,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewMatch 在配对时创建记录
func NewMatch(firstID, firstName, secondID, secondName string, at time.Time) *Match {
	return &Match{
		ID:        ulid.Make().String(),
		Players:   []string{firstID, secondID},
		Names:     []string{firstName, secondName},
		State:     StateInProgress,
		CreatedAt: at,
	}
}

func (m *Match) Active() bool { return m.State == StateInProgress }

// Opponent 返回 id 的对手，id 不在对局中时返回空串
func (m *Match) Opponent(id string) string {
	switch id {
	case m.Players[0]:
		return m.Players[1]
	case m.Players[1]:
		return m.Players[0]
	}
	return ""
}

// Finish 结束对局；已结束的记录不再改变
func (m *Match) Finish(state State, winner string, at time.Time) bool {
	if !m.Active() {
		return false
	}
	m.State = state
	m.Winner = winner
	m.FinishedAt = &at
	return true
}
