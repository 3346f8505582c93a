package battle

import (
	"encoding/json"
	"sync"
)

var _ Transport = &transportMock{}

type sentMessage struct {
	typ  string
	data []byte
}

type transportMock struct {
	mu       sync.Mutex
	sent     []sentMessage
	sendFunc func(typ string, v any) error
}

func (m *transportMock) Send(typ string, v any) error {
	if m.sendFunc != nil {
		if err := m.sendFunc(typ, v); err != nil {
			return err
		}
	}

	b, _ := json.Marshal(v)
	m.mu.Lock()
	m.sent = append(m.sent, sentMessage{typ: typ, data: b})
	m.mu.Unlock()
	return nil
}

func (m *transportMock) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

func (m *transportMock) types() []string {
	var out []string
	for _, s := range m.messages() {
		out = append(out, s.typ)
	}
	return out
}

func (m *transportMock) reset() {
	m.mu.Lock()
	m.sent = nil
	m.mu.Unlock()
}
