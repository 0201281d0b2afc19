// Package dispatcher 将请求与回复关联起来
//
// 每个发出的请求（交换）以 (service, channel, counter, address) 为键登记一个 Promise。
// 回复到达、承载连接断开或超时清理，三者之一会解决这个 Promise 并移除登记。
package dispatcher

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-muddle/internal/core/packet"
	"github.com/dep2p/go-muddle/internal/util/logger"
	"github.com/dep2p/go-muddle/pkg/lib/promise"
	"github.com/dep2p/go-muddle/pkg/types"
)

var log = logger.Logger("muddle.dispatcher")

// DefaultTimeout 交换的默认超时
const DefaultTimeout = 30 * time.Second

// Key 交换键
type Key struct {
	Service uint16
	Channel uint16
	Counter uint16
	Address types.Address
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d:%d@%s", k.Service, k.Channel, k.Counter, k.Address.ShortString())
}

// KeyOf 回复包对应的交换键，回复的发送方即请求的目标
func KeyOf(p *packet.Packet) Key {
	return Key{Service: p.Service, Channel: p.Channel, Counter: p.Counter, Address: p.Sender}
}

type pending struct {
	promise   *promise.Promise
	handle    types.Handle
	createdAt time.Time
}

// Stats 交换结果计数
type Stats struct {
	Fulfilled uint64
	Failed    uint64
	TimedOut  uint64
	Unmatched uint64
}

// Dispatcher 交换表
type Dispatcher struct {
	timeout time.Duration
	clock   clock.Clock

	counter atomic.Uint32

	mu      sync.Mutex
	pending map[Key]*pending
	closed  bool

	fulfilled atomic.Uint64
	failed    atomic.Uint64
	timedOut  atomic.Uint64
	unmatched atomic.Uint64
}

// New 创建分发器；timeout <= 0 使用默认值，clk 为 nil 使用系统时钟
func New(timeout time.Duration, clk clock.Clock) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Dispatcher{
		timeout: timeout,
		clock:   clk,
		pending: make(map[Key]*pending),
	}
}

// Timeout 返回交换超时
func (d *Dispatcher) Timeout() time.Duration {
	return d.timeout
}

// NextCounter 分配消息计数器，溢出后回绕
func (d *Dispatcher) NextCounter() uint16 {
	return uint16(d.counter.Add(1))
}

// RegisterExchange 登记交换并返回其 Promise
//
// 必须在请求发出之前调用，这样与返回路径竞争的回复也不会丢失。
func (d *Dispatcher) RegisterExchange(service, channel, counter uint16, addr types.Address) (*promise.Promise, error) {
	key := Key{Service: service, Channel: channel, Counter: counter, Address: addr}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}
	if _, exists := d.pending[key]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateExchange, key)
	}

	p := promise.New()
	d.pending[key] = &pending{
		promise:   p,
		createdAt: d.clock.Now(),
	}
	return p, nil
}

// NotifyMessage 记录交换请求实际经由的连接
func (d *Dispatcher) NotifyMessage(h types.Handle, service, channel, counter uint16, addr types.Address) {
	key := Key{Service: service, Channel: channel, Counter: counter, Address: addr}

	d.mu.Lock()
	if e, ok := d.pending[key]; ok {
		e.handle = h
	}
	d.mu.Unlock()
}

// Dispatch 用回复包解决对应的交换
//
// 找不到交换时返回 false：回复可能晚于超时或重复到达，只记录不报错。
func (d *Dispatcher) Dispatch(p *packet.Packet) bool {
	key := KeyOf(p)

	d.mu.Lock()
	e, ok := d.pending[key]
	if ok {
		delete(d.pending, key)
	}
	d.mu.Unlock()

	if !ok {
		d.unmatched.Add(1)
		log.Debug("未匹配的回复", "key", key)
		return false
	}

	if e.promise.Fulfill(p.Payload) {
		d.fulfilled.Add(1)
	}
	return true
}

// Abort 以 err 失败并移除交换，交换不存在时返回 false
func (d *Dispatcher) Abort(key Key, err error) bool {
	d.mu.Lock()
	e, ok := d.pending[key]
	if ok {
		delete(d.pending, key)
	}
	d.mu.Unlock()

	if !ok {
		return false
	}
	if e.promise.Fail(err) {
		d.failed.Add(1)
	}
	return true
}

// NotifyConnectionFailure 失败所有经由 h 发出的交换
func (d *Dispatcher) NotifyConnectionFailure(h types.Handle) int {
	if !h.IsValid() {
		return 0
	}

	var victims []*pending
	d.mu.Lock()
	for key, e := range d.pending {
		if e.handle == h {
			victims = append(victims, e)
			delete(d.pending, key)
		}
	}
	d.mu.Unlock()

	for _, e := range victims {
		if e.promise.Fail(types.NewException(types.CodeConnectionFailed, "connection %s lost", h)) {
			d.failed.Add(1)
		}
	}
	if len(victims) > 0 {
		log.Debug("连接断开，交换失败", "handle", h, "count", len(victims))
	}
	return len(victims)
}

// Cleanup 将超过超时时间的交换标记为超时并移除
func (d *Dispatcher) Cleanup(now time.Time) int {
	var expired []*pending
	d.mu.Lock()
	for key, e := range d.pending {
		if now.Sub(e.createdAt) >= d.timeout {
			expired = append(expired, e)
			delete(d.pending, key)
		}
	}
	d.mu.Unlock()

	for _, e := range expired {
		if e.promise.Timeout() {
			d.timedOut.Add(1)
		}
	}
	if len(expired) > 0 {
		log.Debug("交换超时", "count", len(expired))
	}
	return len(expired)
}

// FailAll 关闭分发器并以 err 失败所有交换
func (d *Dispatcher) FailAll(err error) int {
	d.mu.Lock()
	d.closed = true
	all := d.pending
	d.pending = make(map[Key]*pending)
	d.mu.Unlock()

	for _, e := range all {
		if e.promise.Fail(err) {
			d.failed.Add(1)
		}
	}
	return len(all)
}

// Pending 等待中的交换数
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stats 返回累计计数
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Fulfilled: d.fulfilled.Load(),
		Failed:    d.failed.Load(),
		TimedOut:  d.timedOut.Load(),
		Unmatched: d.unmatched.Load(),
	}
}
