package connection

import "errors"

var (
	// ErrConnectionClosed 连接已关闭
	ErrConnectionClosed = errors.New("connection closed")

	// ErrBadMagic 帧头魔数不匹配，流已失步
	ErrBadMagic = errors.New("bad frame magic")

	// ErrFrameTooLarge 帧长度超过上限
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrSendQueueFull 发送队列已满
	ErrSendQueueFull = errors.New("send queue full")

	// ErrNoTransport 没有支持该 scheme 的传输
	ErrNoTransport = errors.New("no transport for scheme")

	// ErrListenerNotFound 回环地址上没有监听者
	ErrListenerNotFound = errors.New("no loopback listener")

	// ErrAddressInUse 回环地址已被监听
	ErrAddressInUse = errors.New("loopback address in use")
)
