// Package connection 实现 Muddle 的连接层
//
// 连接是有序的双向消息通道，按句柄（types.Handle）标识。
// 具体种类:
//   - KindTCP      - TCP 字节流，魔数 + 长度分帧
//   - KindQUIC     - 单条 QUIC 双向流，同样分帧
//   - KindLoopback - 进程内直连，不分帧
//
// Register 以句柄索引存活连接；上层只持有句柄，不持有连接本身。
package connection

import (
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-muddle/internal/util/logger"
	"github.com/dep2p/go-muddle/pkg/types"
)

var log = logger.Logger("muddle.connection")

// Kind 连接种类
type Kind int

const (
	KindTCP Kind = iota
	KindQUIC
	KindLoopback
	KindMock
)

func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindQUIC:
		return "quic"
	case KindLoopback:
		return "loopback"
	case KindMock:
		return "mock"
	default:
		return "unknown"
	}
}

// Direction 连接方向
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "outbound"
	}
	return "inbound"
}

// MessageHandler 收到一条完整消息时调用，在该连接的读协程中执行
type MessageHandler func(msg []byte)

// CloseHandler 连接关闭时调用一次
type CloseHandler func(h types.Handle)

// Connection 连接
type Connection interface {
	// Handle 进程内唯一句柄
	Handle() types.Handle

	// Kind 连接种类
	Kind() Kind

	// Direction 连接方向
	Direction() Direction

	// RemoteAddress 对端网络地址（如 "10.0.0.1:8100"）
	RemoteAddress() string

	// Send 按序发送一条消息
	Send(msg []byte) error

	// Close 关闭连接，可重复调用
	Close() error

	// IsAlive 是否仍可收发
	IsAlive() bool

	// OnMessage 设置消息回调，须在 Start 前调用
	OnMessage(h MessageHandler)

	// OnClose 追加关闭回调
	OnClose(h CloseHandler)

	// Start 开始收发
	Start()
}

// Options 连接参数
type Options struct {
	// MaxFrameSize 单帧上限
	MaxFrameSize uint64

	// SendQueueSize 发送队列长度
	SendQueueSize int
}

// DefaultOptions 默认连接参数
func DefaultOptions() Options {
	return Options{
		MaxFrameSize:  16 << 20,
		SendQueueSize: 256,
	}
}

// base 各种连接共享的句柄、存活标志与回调
type base struct {
	handle    types.Handle
	kind      Kind
	direction Direction
	remote    string

	alive atomic.Bool

	mu        sync.Mutex
	onMessage MessageHandler
	onClose   []CloseHandler
}

func newBase(kind Kind, dir Direction, remote string) base {
	b := base{
		handle:    types.NextHandle(),
		kind:      kind,
		direction: dir,
		remote:    remote,
	}
	b.alive.Store(true)
	return b
}

func (b *base) Handle() types.Handle  { return b.handle }
func (b *base) Kind() Kind            { return b.kind }
func (b *base) Direction() Direction  { return b.direction }
func (b *base) RemoteAddress() string { return b.remote }
func (b *base) IsAlive() bool         { return b.alive.Load() }

func (b *base) OnMessage(h MessageHandler) {
	b.mu.Lock()
	b.onMessage = h
	b.mu.Unlock()
}

func (b *base) OnClose(h CloseHandler) {
	b.mu.Lock()
	b.onClose = append(b.onClose, h)
	b.mu.Unlock()
}

func (b *base) deliver(msg []byte) {
	b.mu.Lock()
	h := b.onMessage
	b.mu.Unlock()
	if h != nil {
		h(msg)
	}
}

// markClosed 只有第一次调用返回 true
func (b *base) markClosed() bool {
	return b.alive.CompareAndSwap(true, false)
}

func (b *base) notifyClosed() {
	b.mu.Lock()
	handlers := b.onClose
	b.onClose = nil
	b.mu.Unlock()
	for _, h := range handlers {
		h(b.handle)
	}
}
