// Package peerlist 管理按 URI 拨出的对端连接状态
//
// 状态机:
//
//	UNKNOWN --AddConnection--> TRYING --OnConnectionEstablished--> CONNECTED
//	   ^                         |                                     |
//	   |                         +--------RemoveConnection-------------+
//	   |                                        v
//	   +---------Disconnect (任意状态)------ BACKOFF --到期后 AddConnection--> TRYING
//
// 连续失败使退避窗口单调增长，连接成功后清零。
// 退避只是重试节流，只有 Disconnect 会让对端不再被重连。
package peerlist

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-muddle/internal/util/logger"
	"github.com/dep2p/go-muddle/pkg/types"
)

var log = logger.Logger("muddle.peerlist")

// State 对端连接状态
type State int

const (
	StateUnknown State = iota
	StateTrying
	StateConnected
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateTrying:
		return "trying"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	default:
		return "invalid"
	}
}

// Config 退避参数
type Config struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultConfig 1s 起步、翻倍、上限 2048s
func DefaultConfig() Config {
	return Config{
		InitialBackoff: time.Second,
		MaxBackoff:     2048 * time.Second,
		Multiplier:     2.0,
	}
}

// Validate 修正无效值
func (c *Config) Validate() {
	def := DefaultConfig()
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.Multiplier < 1 {
		c.Multiplier = def.Multiplier
	}
}

// Backoff 第 failures 次连续失败后的退避窗口
func (c Config) Backoff(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	d := float64(c.InitialBackoff) * math.Pow(c.Multiplier, float64(failures-1))
	if d >= float64(c.MaxBackoff) || math.IsInf(d, 0) {
		return c.MaxBackoff
	}
	return time.Duration(d)
}

// Peer 对端状态快照
type Peer struct {
	URI          types.URI
	State        State
	Handle       types.Handle
	Persistent   bool
	Failures     int
	Backoff      time.Duration
	BackoffUntil time.Time
	LastAttempt  time.Time
}

type peerEntry struct {
	state        State
	handle       types.Handle
	persistent   bool
	failures     int
	backoff      time.Duration
	backoffUntil time.Time
	lastAttempt  time.Time
}

// StateChangeFunc 状态变化回调，在锁外调用
type StateChangeFunc func(uri types.URI, from, to State)

type transition struct {
	uri      types.URI
	from, to State
}

// List 对端连接表
type List struct {
	cfg   Config
	clock clock.Clock

	mu    sync.Mutex
	peers map[types.URI]*peerEntry

	cbMu     sync.RWMutex
	onChange []StateChangeFunc
}

// New 创建对端连接表，clk 为 nil 时使用系统时钟
func New(cfg Config, clk clock.Clock) *List {
	cfg.Validate()
	if clk == nil {
		clk = clock.New()
	}
	return &List{
		cfg:   cfg,
		clock: clk,
		peers: make(map[types.URI]*peerEntry),
	}
}

// OnStateChange 追加状态变化回调
func (l *List) OnStateChange(fn StateChangeFunc) {
	l.cbMu.Lock()
	l.onChange = append(l.onChange, fn)
	l.cbMu.Unlock()
}

// AddPersistentPeer 标记为持久对端，断开后会被重连
func (l *List) AddPersistentPeer(uri types.URI) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.peers[uri]
	if !ok {
		e = &peerEntry{}
		l.peers[uri] = e
	}
	e.persistent = true
}

// RemovePersistentPeer 取消持久标记；未连接的对端直接忘记
func (l *List) RemovePersistentPeer(uri types.URI) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.peers[uri]
	if !ok {
		return
	}
	e.persistent = false
	if e.state == StateUnknown || e.state == StateBackoff {
		delete(l.peers, uri)
	}
}

// AddConnection 登记一次连接尝试: UNKNOWN/BACKOFF -> TRYING
//
// 已处于 TRYING 或 CONNECTED 时返回 false。
func (l *List) AddConnection(uri types.URI, h types.Handle) bool {
	l.mu.Lock()
	e, ok := l.peers[uri]
	if !ok {
		e = &peerEntry{}
		l.peers[uri] = e
	}
	if e.state == StateTrying || e.state == StateConnected {
		l.mu.Unlock()
		return false
	}
	t := l.setState(uri, e, StateTrying)
	e.handle = h
	e.lastAttempt = l.clock.Now()
	l.mu.Unlock()

	l.fire(t)
	return true
}

// SetHandle 连接建立后更新句柄
func (l *List) SetHandle(uri types.URI, h types.Handle) {
	l.mu.Lock()
	if e, ok := l.peers[uri]; ok {
		e.handle = h
	}
	l.mu.Unlock()
}

// BindDialed 把拨号得到的连接绑定到仍在 TRYING 且尚无句柄的对端
//
// 拨号期间对端被 Disconnect 或已被连入的连接认领时返回 false，
// 调用方应关闭该连接。
func (l *List) BindDialed(uri types.URI, h types.Handle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.peers[uri]
	if !ok || e.state != StateTrying || e.handle.IsValid() {
		return false
	}
	e.handle = h
	return true
}

// OnConnectionEstablished TRYING/BACKOFF -> CONNECTED，清零失败次数
func (l *List) OnConnectionEstablished(uri types.URI) {
	l.mu.Lock()
	e, ok := l.peers[uri]
	if !ok || e.state == StateConnected || e.state == StateUnknown {
		l.mu.Unlock()
		return
	}
	t := l.setState(uri, e, StateConnected)
	e.failures = 0
	e.backoff = 0
	e.backoffUntil = time.Time{}
	l.mu.Unlock()

	l.fire(t)
}

// RemoveConnection 连接失败或断开: TRYING/CONNECTED -> BACKOFF
//
// 连续失败次数加一，退避窗口随之增长；非持久对端直接忘记。
// 已处于 BACKOFF 的重复通知不会再次升级。
func (l *List) RemoveConnection(uri types.URI) {
	l.mu.Lock()
	e, ok := l.peers[uri]
	if !ok || (e.state != StateTrying && e.state != StateConnected) {
		l.mu.Unlock()
		return
	}

	var t transition
	if !e.persistent {
		t = l.setState(uri, e, StateUnknown)
		delete(l.peers, uri)
	} else {
		t = l.setState(uri, e, StateBackoff)
		e.handle = types.InvalidHandle
		e.failures++
		e.backoff = l.cfg.Backoff(e.failures)
		e.backoffUntil = l.clock.Now().Add(e.backoff)
		log.Debug("进入退避", "uri", uri, "failures", e.failures, "backoff", e.backoff)
	}
	l.mu.Unlock()

	l.fire(t)
}

// Disconnect 忘记对端（任意状态 -> UNKNOWN），返回其当前句柄
func (l *List) Disconnect(uri types.URI) (types.Handle, bool) {
	l.mu.Lock()
	e, ok := l.peers[uri]
	if !ok {
		l.mu.Unlock()
		return types.InvalidHandle, false
	}
	h := e.handle
	t := l.setState(uri, e, StateUnknown)
	delete(l.peers, uri)
	l.mu.Unlock()

	l.fire(t)
	return h, h.IsValid()
}

// State 返回对端状态，未跟踪时为 UNKNOWN
func (l *List) State(uri types.URI) State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.peers[uri]; ok {
		return e.state
	}
	return StateUnknown
}

// BackoffWindow 最近一次失败后的退避窗口
func (l *List) BackoffWindow(uri types.URI) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.peers[uri]; ok {
		return e.backoff
	}
	return 0
}

// Handle 返回对端当前连接句柄
func (l *List) Handle(uri types.URI) (types.Handle, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.peers[uri]; ok && e.handle.IsValid() {
		return e.handle, true
	}
	return types.InvalidHandle, false
}

// IsPersistent 是否为持久对端
func (l *List) IsPersistent(uri types.URI) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.peers[uri]
	return ok && e.persistent
}

// PeersToConnectTo 需要拨号的持久对端: UNKNOWN，或退避已到期的 BACKOFF
func (l *List) PeersToConnectTo() []types.URI {
	now := l.clock.Now()

	l.mu.Lock()
	var out []types.URI
	for uri, e := range l.peers {
		if !e.persistent {
			continue
		}
		switch e.state {
		case StateUnknown:
			out = append(out, uri)
		case StateBackoff:
			if !now.Before(e.backoffUntil) {
				out = append(out, uri)
			}
		}
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Snapshot 返回全部对端状态，按 URI 排序
func (l *List) Snapshot() []Peer {
	l.mu.Lock()
	out := make([]Peer, 0, len(l.peers))
	for uri, e := range l.peers {
		out = append(out, Peer{
			URI:          uri,
			State:        e.state,
			Handle:       e.handle,
			Persistent:   e.persistent,
			Failures:     e.failures,
			Backoff:      e.backoff,
			BackoffUntil: e.backoffUntil,
			LastAttempt:  e.lastAttempt,
		})
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].URI.String() < out[j].URI.String() })
	return out
}

// CountByState 各状态的对端数
func (l *List) CountByState() map[State]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[State]int, 4)
	for _, e := range l.peers {
		out[e.state]++
	}
	return out
}

// setState 调用方持有 l.mu
func (l *List) setState(uri types.URI, e *peerEntry, to State) transition {
	t := transition{uri: uri, from: e.state, to: to}
	e.state = to
	return t
}

func (l *List) fire(t transition) {
	if t.from == t.to {
		return
	}
	l.cbMu.RLock()
	handlers := l.onChange
	l.cbMu.RUnlock()
	for _, fn := range handlers {
		fn(t.uri, t.from, t.to)
	}
}
