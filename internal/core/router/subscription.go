package router

import (
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-muddle/internal/core/packet"
	"github.com/dep2p/go-muddle/pkg/types"
)

// MessageHandler 处理投递到本节点的数据包
//
// 在连接读协程上同步调用，不应长时间阻塞。来自不同连接的数据包
// 可能并发调用同一个处理函数。
type MessageHandler func(p *packet.Packet)

type channelKey struct {
	service uint16
	channel uint16
}

type addressKey struct {
	address types.Address
	channelKey
}

// Subscription 一个 (service, channel) 或 (address, service, channel) 上的订阅
//
// 每次投递只读取一次处理函数，替换与投递互不穿插: 一次投递要么完整地
// 使用旧函数，要么完整地使用新函数。处理函数在不持锁的情况下调用，
// 可以在其中替换自身或 Close。
type Subscription struct {
	registrar *registrar
	key       channelKey
	address   *types.Address

	handler atomic.Pointer[MessageHandler]
	closed  atomic.Bool
}

// SetMessageHandler 设置或替换处理函数
//
// 返回后开始的投递都使用新函数，已在执行中的投递继续使用旧函数。
// Close 之后的调用无效。
func (s *Subscription) SetMessageHandler(h MessageHandler) {
	if s.closed.Load() {
		return
	}
	if h == nil {
		s.handler.Store(nil)
		return
	}
	s.handler.Store(&h)
}

// Close 取消订阅
func (s *Subscription) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.handler.Store(nil)
	s.registrar.remove(s)
}

func (s *Subscription) dispatch(p *packet.Packet) bool {
	h := s.handler.Load()
	if h == nil {
		return false
	}
	(*h)(p)
	return true
}

// registrar 订阅表
type registrar struct {
	mu        sync.RWMutex
	byChannel map[channelKey][]*Subscription
	byAddress map[addressKey][]*Subscription
}

func newRegistrar() *registrar {
	return &registrar{
		byChannel: make(map[channelKey][]*Subscription),
		byAddress: make(map[addressKey][]*Subscription),
	}
}

func (r *registrar) subscribe(service, channel uint16) *Subscription {
	s := &Subscription{registrar: r, key: channelKey{service, channel}}
	r.mu.Lock()
	r.byChannel[s.key] = append(r.byChannel[s.key], s)
	r.mu.Unlock()
	return s
}

func (r *registrar) subscribeAddress(addr types.Address, service, channel uint16) *Subscription {
	a := addr
	s := &Subscription{registrar: r, key: channelKey{service, channel}, address: &a}
	k := addressKey{address: addr, channelKey: s.key}
	r.mu.Lock()
	r.byAddress[k] = append(r.byAddress[k], s)
	r.mu.Unlock()
	return s
}

func (r *registrar) remove(s *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.address != nil {
		k := addressKey{address: *s.address, channelKey: s.key}
		r.byAddress[k] = without(r.byAddress[k], s)
		if len(r.byAddress[k]) == 0 {
			delete(r.byAddress, k)
		}
		return
	}
	r.byChannel[s.key] = without(r.byChannel[s.key], s)
	if len(r.byChannel[s.key]) == 0 {
		delete(r.byChannel, s.key)
	}
}

// dispatch 先投递给发送方专属订阅，再投递给通道订阅
func (r *registrar) dispatch(p *packet.Packet) bool {
	ck := channelKey{p.Service, p.Channel}

	r.mu.RLock()
	subs := append([]*Subscription(nil), r.byAddress[addressKey{address: p.Sender, channelKey: ck}]...)
	subs = append(subs, r.byChannel[ck]...)
	r.mu.RUnlock()

	handled := false
	for _, s := range subs {
		if s.dispatch(p) {
			handled = true
		}
	}
	return handled
}

func (r *registrar) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, subs := range r.byChannel {
		n += len(subs)
	}
	for _, subs := range r.byAddress {
		n += len(subs)
	}
	return n
}

func without(subs []*Subscription, s *Subscription) []*Subscription {
	out := subs[:0]
	for _, x := range subs {
		if x != s {
			out = append(out, x)
		}
	}
	return out
}
