package connection

import (
	"bytes"
	"sync"
)

// loopbackConn 进程内连接，消息直接投递到对端的收件队列
type loopbackConn struct {
	base

	peer   *loopbackConn
	inbox  chan []byte
	closed chan struct{}

	startOnce sync.Once
}

// NewLoopbackPair 创建一对互联的回环连接
func NewLoopbackPair(queueSize int) (Connection, Connection) {
	if queueSize <= 0 {
		queueSize = DefaultOptions().SendQueueSize
	}
	a := &loopbackConn{
		base:   newBase(KindLoopback, Outbound, "loopback"),
		inbox:  make(chan []byte, queueSize),
		closed: make(chan struct{}),
	}
	b := &loopbackConn{
		base:   newBase(KindLoopback, Inbound, "loopback"),
		inbox:  make(chan []byte, queueSize),
		closed: make(chan struct{}),
	}
	a.peer, b.peer = b, a
	return a, b
}

func (c *loopbackConn) Start() {
	c.startOnce.Do(func() {
		go c.deliverLoop()
	})
}

// Send 拷贝后投递，对端队列满时阻塞直到有空位或连接关闭
func (c *loopbackConn) Send(msg []byte) error {
	if !c.IsAlive() {
		return ErrConnectionClosed
	}
	select {
	case c.peer.inbox <- bytes.Clone(msg):
		return nil
	case <-c.closed:
		return ErrConnectionClosed
	}
}

// Close 关闭两端
func (c *loopbackConn) Close() error {
	c.shutdown()
	c.peer.shutdown()
	return nil
}

func (c *loopbackConn) shutdown() {
	if !c.markClosed() {
		return
	}
	close(c.closed)
	c.notifyClosed()
}

func (c *loopbackConn) deliverLoop() {
	for {
		select {
		case msg := <-c.inbox:
			c.deliver(msg)
		case <-c.closed:
			return
		}
	}
}
