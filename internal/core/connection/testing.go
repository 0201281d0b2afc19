package connection

import (
	"bytes"
	"sync"
)

// MockConnection 测试用连接
//
// 默认把发出的消息记录在 Sent 中；设置 SendFunc 可改写发送行为。
type MockConnection struct {
	base

	SendFunc func(msg []byte) error

	sentMu sync.Mutex
	sent   [][]byte
}

var _ Connection = (*MockConnection)(nil)

// NewMockConnection 创建存活的测试连接
func NewMockConnection(dir Direction) *MockConnection {
	return &MockConnection{base: newBase(KindMock, dir, "mock")}
}

func (m *MockConnection) Start() {}

func (m *MockConnection) Send(msg []byte) error {
	if !m.IsAlive() {
		return ErrConnectionClosed
	}
	if m.SendFunc != nil {
		return m.SendFunc(msg)
	}
	m.sentMu.Lock()
	m.sent = append(m.sent, bytes.Clone(msg))
	m.sentMu.Unlock()
	return nil
}

func (m *MockConnection) Close() error {
	if m.markClosed() {
		m.notifyClosed()
	}
	return nil
}

// Sent 返回已发送消息的拷贝
func (m *MockConnection) Sent() [][]byte {
	m.sentMu.Lock()
	defer m.sentMu.Unlock()
	return append([][]byte(nil), m.sent...)
}

// Deliver 模拟收到一条消息
func (m *MockConnection) Deliver(msg []byte) {
	m.deliver(msg)
}
