package server

// PlayerID 表示玩家唯一标识（连接时的 ?player= 参数）
type PlayerID string

// Conn 玩家连接的发送端，由写协程负责真正写出
type Conn interface {
	// Enqueue 非阻塞入队，连接已关闭或队列已满时返回 false
	Enqueue(b []byte) bool
	Close()
}

// Player 目录中的在线玩家
type Player struct {
	ID   PlayerID
	Name string
	Conn Conn
}

// DisplayName 优先返回昵称，没有昵称时退回 ID
func (p *Player) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return string(p.ID)
}
