// Package promise 提供单次赋值的异步结果
//
// Promise 从 Waiting 开始，只能被 Fulfill、Fail 或 Timeout 之一解决一次；
// 之后的解决调用返回 false 且不改变任何状态。
//
// 等待使用 channel 实现，回调在锁外执行：
//
//	p.WithHandlers().
//		Then(func(v []byte) { ... }).
//		Catch(func(err error) { ... }).
//		Finally(func() { ... })
package promise

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dep2p/go-muddle/pkg/types"
)

// State Promise 状态
type State int32

const (
	// Waiting 尚未解决
	Waiting State = iota
	// Success 已成功
	Success
	// Failed 已失败
	Failed
	// TimedOut 已超时，只由超时清理产生
	TimedOut
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Success:
		return "success"
	case Failed:
		return "failed"
	case TimedOut:
		return "timedout"
	default:
		return "unknown"
	}
}

// idCounter 全局 Promise ID 分配器，进程启动时从 0 开始
var idCounter atomic.Uint64

// Promise 单次赋值的异步结果
type Promise struct {
	id        uint64
	createdAt time.Time

	mu        sync.Mutex
	state     State
	value     []byte
	err       error
	callbacks []callback
	done      chan struct{}
}

// New 创建处于 Waiting 状态的 Promise
func New() *Promise {
	return &Promise{
		id:        idCounter.Add(1),
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// ID 返回全局唯一 ID
func (p *Promise) ID() uint64 {
	return p.id
}

// CreatedAt 返回创建时间
func (p *Promise) CreatedAt() time.Time {
	return p.createdAt
}

// State 返回当前状态
func (p *Promise) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsResolved 是否已离开 Waiting
func (p *Promise) IsResolved() bool {
	return p.State() != Waiting
}

// Value 返回成功值，未成功时为 nil
func (p *Promise) Value() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Err 返回失败原因，成功或等待中时为 nil
func (p *Promise) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Done 返回在解决时关闭的 channel
func (p *Promise) Done() <-chan struct{} {
	return p.done
}

// Fulfill 以成功值解决
func (p *Promise) Fulfill(value []byte) bool {
	return p.resolve(Success, value, nil)
}

// Fail 以错误解决，err 为 nil 时记录为 CodeUnknown
func (p *Promise) Fail(err error) bool {
	if err == nil {
		err = &types.Exception{Code: types.CodeUnknown}
	}
	return p.resolve(Failed, nil, err)
}

// Timeout 标记为超时
func (p *Promise) Timeout() bool {
	return p.resolve(TimedOut, nil, types.NewException(types.CodeTimeout, "promise %d", p.id))
}

func (p *Promise) resolve(state State, value []byte, err error) bool {
	p.mu.Lock()
	if p.state != Waiting {
		p.mu.Unlock()
		return false
	}
	p.state = state
	p.value = value
	p.err = err
	pending := p.callbacks
	p.callbacks = nil
	close(p.done)
	p.mu.Unlock()

	for _, cb := range pending {
		cb.invoke(state, value, err)
	}
	return true
}

// Wait 等待解决，返回是否成功
//
// timeout 为 0 时只检查当前状态；为负数时无限等待。
// 失败原因通过 Err 获取。
func (p *Promise) Wait(timeout time.Duration) bool {
	switch {
	case timeout == 0:
	case timeout < 0:
		<-p.done
	default:
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-p.done:
		case <-timer.C:
		}
	}
	return p.State() == Success
}

// Await 等待解决或 ctx 结束
func (p *Promise) Await(ctx context.Context) ([]byte, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.err
}

// ============================================================================
//                              回调
// ============================================================================

type callbackKind int

const (
	kindThen callbackKind = iota
	kindCatch
	kindFinally
)

type callback struct {
	kind      callbackKind
	onValue   func([]byte)
	onError   func(error)
	onResolve func()
}

func (cb callback) invoke(state State, value []byte, err error) {
	switch cb.kind {
	case kindThen:
		if state == Success {
			cb.onValue(value)
		}
	case kindCatch:
		if state == Failed || state == TimedOut {
			cb.onError(err)
		}
	case kindFinally:
		cb.onResolve()
	}
}

// register 已解决时立即在锁外执行，否则入队等待解决
func (p *Promise) register(cb callback) {
	p.mu.Lock()
	if p.state == Waiting {
		p.callbacks = append(p.callbacks, cb)
		p.mu.Unlock()
		return
	}
	state, value, err := p.state, p.value, p.err
	p.mu.Unlock()

	cb.invoke(state, value, err)
}

// Handlers 链式注册回调
type Handlers struct {
	p *Promise
}

// WithHandlers 开始注册回调
func (p *Promise) WithHandlers() *Handlers {
	return &Handlers{p: p}
}

// Then 成功时调用
func (h *Handlers) Then(fn func(value []byte)) *Handlers {
	h.p.register(callback{kind: kindThen, onValue: fn})
	return h
}

// Catch 失败或超时时调用
func (h *Handlers) Catch(fn func(err error)) *Handlers {
	h.p.register(callback{kind: kindCatch, onError: fn})
	return h
}

// Finally 解决后总会调用
func (h *Handlers) Finally(fn func()) *Handlers {
	h.p.register(callback{kind: kindFinally, onResolve: fn})
	return h
}

// All 等待全部 Promise 解决，返回第一个失败原因
func All(ctx context.Context, promises ...*Promise) error {
	var firstErr error
	for _, p := range promises {
		if _, err := p.Await(ctx); err != nil && firstErr == nil {
			firstErr = err
			if ctx.Err() != nil {
				return firstErr
			}
		}
	}
	return firstErr
}
