package connection

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
)

// streamConn 基于字节流的连接（TCP 与 QUIC 共用）
//
// 读协程按帧解析并回调；写协程从发送队列取消息，保证发送顺序。
type streamConn struct {
	base

	rwc      io.ReadWriteCloser
	maxFrame uint64
	sendCh   chan []byte
	closed   chan struct{}

	startOnce sync.Once
}

func newStreamConn(kind Kind, dir Direction, remote string, rwc io.ReadWriteCloser, opts Options) *streamConn {
	if opts.MaxFrameSize == 0 || opts.SendQueueSize <= 0 {
		def := DefaultOptions()
		if opts.MaxFrameSize == 0 {
			opts.MaxFrameSize = def.MaxFrameSize
		}
		if opts.SendQueueSize <= 0 {
			opts.SendQueueSize = def.SendQueueSize
		}
	}
	return &streamConn{
		base:     newBase(kind, dir, remote),
		rwc:      rwc,
		maxFrame: opts.MaxFrameSize,
		sendCh:   make(chan []byte, opts.SendQueueSize),
		closed:   make(chan struct{}),
	}
}

func (c *streamConn) Start() {
	c.startOnce.Do(func() {
		go c.readLoop()
		go c.writeLoop()
	})
}

// Send 入队；队列满时返回 ErrSendQueueFull
func (c *streamConn) Send(msg []byte) error {
	if !c.IsAlive() {
		return ErrConnectionClosed
	}
	select {
	case c.sendCh <- msg:
		return nil
	case <-c.closed:
		return ErrConnectionClosed
	default:
		return ErrSendQueueFull
	}
}

func (c *streamConn) Close() error {
	if !c.markClosed() {
		return nil
	}
	close(c.closed)
	err := c.rwc.Close()
	c.notifyClosed()
	return err
}

func (c *streamConn) readLoop() {
	r := bufio.NewReader(c.rwc)
	for {
		msg, err := ReadFrame(r, c.maxFrame)
		if err != nil {
			c.logReadError(err)
			_ = c.Close()
			return
		}
		c.deliver(msg)
	}
}

func (c *streamConn) writeLoop() {
	w := bufio.NewWriter(c.rwc)
	for {
		select {
		case msg := <-c.sendCh:
			if err := WriteFrame(w, msg); err != nil {
				log.Debug("写入失败", "handle", c.handle, "err", err)
				_ = c.Close()
				return
			}
			// 队列空时再刷新，连续消息合并写出
			if len(c.sendCh) == 0 {
				if err := w.Flush(); err != nil {
					log.Debug("刷新失败", "handle", c.handle, "err", err)
					_ = c.Close()
					return
				}
			}
		case <-c.closed:
			return
		}
	}
}

func (c *streamConn) logReadError(err error) {
	switch {
	case !c.IsAlive(), errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		log.Debug("连接已断开", "handle", c.handle, "remote", c.remote)
	case errors.Is(err, ErrBadMagic), errors.Is(err, ErrFrameTooLarge):
		log.Warn("分帧错误，关闭连接", "handle", c.handle, "remote", c.remote, "err", err)
	default:
		log.Debug("读取失败", "handle", c.handle, "remote", c.remote, "err", err)
	}
}
