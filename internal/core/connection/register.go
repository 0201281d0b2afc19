package connection

import (
	"sync"

	"go.uber.org/multierr"

	"github.com/dep2p/go-muddle/pkg/types"
)

// LeaveHandler 连接离开注册表时调用
type LeaveHandler func(h types.Handle, addr types.Address)

// Register 存活连接表，按句柄索引
//
// Enter/Leave 对同一句柄重复调用是幂等的；
// Broadcast 基于快照发送，跳过快照后已失效的连接。
type Register struct {
	mu      sync.RWMutex
	entries map[types.Handle]*registerEntry

	leaveMu sync.RWMutex
	onLeave []LeaveHandler
}

type registerEntry struct {
	conn    Connection
	address types.Address
}

// NewRegister 创建注册表
func NewRegister() *Register {
	return &Register{entries: make(map[types.Handle]*registerEntry)}
}

// OnLeave 追加离开回调
func (r *Register) OnLeave(h LeaveHandler) {
	r.leaveMu.Lock()
	r.onLeave = append(r.onLeave, h)
	r.leaveMu.Unlock()
}

// Enter 登记连接，返回是否为新登记
func (r *Register) Enter(c Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[c.Handle()]; ok {
		return false
	}
	r.entries[c.Handle()] = &registerEntry{conn: c}
	log.Debug("连接登记", "handle", c.Handle(), "kind", c.Kind(), "remote", c.RemoteAddress())
	return true
}

// Leave 移除连接，返回是否确实移除；只有实际移除时触发离开回调
func (r *Register) Leave(h types.Handle) bool {
	r.mu.Lock()
	e, ok := r.entries[h]
	if ok {
		delete(r.entries, h)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}

	log.Debug("连接离开", "handle", h, "address", e.address.ShortString())

	r.leaveMu.RLock()
	handlers := r.onLeave
	r.leaveMu.RUnlock()
	for _, fn := range handlers {
		fn(h, e.address)
	}
	return true
}

// Lookup 按句柄查找存活连接
func (r *Register) Lookup(h types.Handle) (Connection, bool) {
	r.mu.RLock()
	e, ok := r.entries[h]
	r.mu.RUnlock()
	if !ok || !e.conn.IsAlive() {
		return nil, false
	}
	return e.conn, true
}

// UpdateAddress 记录连接对端的节点地址
func (r *Register) UpdateAddress(h types.Handle, addr types.Address) {
	r.mu.Lock()
	if e, ok := r.entries[h]; ok {
		e.address = addr
	}
	r.mu.Unlock()
}

// Address 返回连接对端的节点地址
func (r *Register) Address(h types.Handle) (types.Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[h]
	if !ok || e.address.IsZero() {
		return types.ZeroAddress, false
	}
	return e.address, true
}

// Broadcast 向快照中所有存活连接发送，返回成功发送数
func (r *Register) Broadcast(msg []byte) int {
	sent := 0
	for _, c := range r.snapshot() {
		if !c.IsAlive() {
			continue
		}
		if err := c.Send(msg); err != nil {
			log.Debug("广播发送失败", "handle", c.Handle(), "err", err)
			continue
		}
		sent++
	}
	return sent
}

// Handles 返回所有已登记句柄
func (r *Register) Handles() []types.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Handle, 0, len(r.entries))
	for h := range r.entries {
		out = append(out, h)
	}
	return out
}

// Len 已登记连接数
func (r *Register) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// CloseAll 关闭全部连接并汇总错误
func (r *Register) CloseAll() error {
	var err error
	for _, c := range r.snapshot() {
		err = multierr.Append(err, c.Close())
		r.Leave(c.Handle())
	}
	return err
}

func (r *Register) snapshot() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Connection, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.conn)
	}
	return out
}
