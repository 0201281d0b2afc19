// Package router 按节点地址路由数据包
//
// 入站数据包依次经过签名校验、直连握手、本地投递、广播去重与中继；
// 出站数据包优先走精确路由，启用 Kademlia 时退而发往距离目标更近的直连邻居。
//
// 路由表以先到先得的方式维护: 直连路由可以替换间接路由，反之不行；
// 同一地址出现第二条直连路由时报告 UpdateDuplicateDirect，由上层决定关闭哪条连接。
package router

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"github.com/dep2p/go-muddle/internal/core/connection"
	"github.com/dep2p/go-muddle/internal/core/dispatcher"
	"github.com/dep2p/go-muddle/internal/core/metrics"
	"github.com/dep2p/go-muddle/internal/core/packet"
	"github.com/dep2p/go-muddle/internal/util/logger"
	"github.com/dep2p/go-muddle/pkg/lib/promise"
	"github.com/dep2p/go-muddle/pkg/types"
)

var log = logger.Logger("muddle.router")

// UpdateStatus 路由表更新结果
type UpdateStatus int

const (
	UpdateNoChange UpdateStatus = iota
	UpdateUpdated
	UpdateDuplicateDirect
)

func (s UpdateStatus) String() string {
	switch s {
	case UpdateNoChange:
		return "no-change"
	case UpdateUpdated:
		return "updated"
	case UpdateDuplicateDirect:
		return "duplicate-direct"
	default:
		return "invalid"
	}
}

// Route 路由表条目
type Route struct {
	Address types.Address
	Handle  types.Handle
	Direct  bool
}

type routeEntry struct {
	handle types.Handle
	direct bool
}

// DirectHandler 处理相邻节点发来的直连消息
type DirectHandler func(h types.Handle, p *packet.Packet)

// Params 路由器依赖
type Params struct {
	Config     Config
	Signer     packet.Signer
	Verify     packet.VerifyFunc
	Register   *connection.Register
	Dispatcher *dispatcher.Dispatcher
	Reporter   metrics.Reporter
}

// Router 路由器
type Router struct {
	cfg        Config
	self       types.Address
	signer     packet.Signer
	verify     packet.VerifyFunc
	register   *connection.Register
	dispatcher *dispatcher.Dispatcher
	reporter   metrics.Reporter

	registrar *registrar
	echo      *echoCache
	limiter   *rate.Limiter

	mu     sync.RWMutex
	routes map[types.Address]routeEntry

	directMu      sync.RWMutex
	directHandler DirectHandler
}

// New 创建路由器
func New(p Params) (*Router, error) {
	if p.Signer == nil {
		return nil, ErrNilSigner
	}
	if p.Register == nil {
		return nil, ErrNilRegister
	}
	if p.Dispatcher == nil {
		return nil, ErrNilDispatcher
	}
	if p.Reporter == nil {
		p.Reporter = metrics.Nop{}
	}
	cfg := p.Config
	cfg.applyDefaults()

	r := &Router{
		cfg:        cfg,
		self:       p.Signer.Address(),
		signer:     p.Signer,
		verify:     p.Verify,
		register:   p.Register,
		dispatcher: p.Dispatcher,
		reporter:   p.Reporter,
		registrar:  newRegistrar(),
		echo:       newEchoCache(cfg.EchoCacheSize, cfg.EchoCacheTTL),
		routes:     make(map[types.Address]routeEntry),
	}
	if cfg.RelayRate > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RelayRate), cfg.RelayBurst)
	}
	return r, nil
}

// Address 本节点地址
func (r *Router) Address() types.Address {
	return r.self
}

// SetDirectHandler 设置直连消息处理函数
func (r *Router) SetDirectHandler(h DirectHandler) {
	r.directMu.Lock()
	r.directHandler = h
	r.directMu.Unlock()
}

// ============================================================================
//                              入站
// ============================================================================

// RouteRaw 解码并路由一条入站消息
func (r *Router) RouteRaw(h types.Handle, msg []byte) {
	p, err := packet.Decode(msg)
	if err != nil {
		r.drop(metrics.DropDecode, "解码失败", "handle", h, "err", err)
		return
	}
	r.Route(h, p)
}

// Route 路由一个入站数据包
func (r *Router) Route(h types.Handle, p *packet.Packet) {
	if !r.genuine(h, p) {
		return
	}

	switch {
	case p.Direct:
		r.reporter.PacketReceived(metrics.KindDirect, p.WireSize())
		r.dispatchDirect(h, p)

	case p.Sender == r.self:
		r.drop(metrics.DropEcho, "收到自己发出的数据包", "handle", h)

	case p.Broadcast:
		r.reporter.PacketReceived(metrics.KindBroadcast, p.WireSize())
		r.AssociateHandleWithAddress(h, p.Sender, false)
		r.routeBroadcast(p)

	case p.Target == r.self:
		kind := metrics.KindReply
		if p.Exchange {
			kind = metrics.KindExchange
		}
		r.reporter.PacketReceived(kind, p.WireSize())
		// 回复沿来路返回
		r.AssociateHandleWithAddress(h, p.Sender, false)
		r.dispatchLocal(p)

	default:
		r.reporter.PacketReceived(metrics.KindRelay, p.WireSize())
		r.AssociateHandleWithAddress(h, p.Sender, false)
		r.relay(p)
	}
}

// genuine 校验签名；要求签名时拒绝未签名的数据包
func (r *Router) genuine(h types.Handle, p *packet.Packet) bool {
	if p.IsStamped() {
		if r.verify == nil || !packet.Verify(p, r.verify) {
			r.drop(metrics.DropInvalidStamp, "签名校验失败", "handle", h, "sender", p.Sender.ShortString())
			return false
		}
		return true
	}
	if r.cfg.RequireStamps {
		r.drop(metrics.DropMissingStamp, "缺少签名", "handle", h, "sender", p.Sender.ShortString())
		return false
	}
	return true
}

func (r *Router) dispatchDirect(h types.Handle, p *packet.Packet) {
	r.directMu.RLock()
	fn := r.directHandler
	r.directMu.RUnlock()
	if fn == nil {
		r.drop(metrics.DropUnhandled, "没有直连消息处理函数", "handle", h)
		return
	}
	fn(h, p)
}

func (r *Router) routeBroadcast(p *packet.Packet) {
	if r.echo.seen(p) {
		r.reporter.PacketDropped(metrics.DropEcho)
		return
	}

	r.dispatchLocal(p)

	if p.TTL <= 2 {
		r.drop(metrics.DropTTL, "广播 TTL 耗尽", "sender", p.Sender.ShortString())
		return
	}
	fwd := p.Clone()
	fwd.TTL--
	r.broadcast(fwd)
}

func (r *Router) relay(p *packet.Packet) {
	if !r.cfg.RelayEnabled {
		r.drop(metrics.DropRelayOff, "未启用中继", "target", p.Target.ShortString())
		return
	}
	if p.TTL <= 2 {
		r.drop(metrics.DropTTL, "TTL 耗尽", "target", p.Target.ShortString())
		return
	}
	if r.limiter != nil && !r.limiter.Allow() {
		r.reporter.PacketDropped(metrics.DropRateLimited)
		return
	}

	fwd := p.Clone()
	fwd.TTL--
	if err := r.routeOutbound(fwd); err != nil {
		r.drop(metrics.DropNoRoute, "无法中继", "target", p.Target.ShortString(), "err", err)
	}
}

// dispatchLocal 非交换的单播包先交给分发器认领回复，再交给订阅
//
// 广播不会是交换的回复，不经过分发器。
func (r *Router) dispatchLocal(p *packet.Packet) {
	if !p.Exchange && !p.Broadcast && r.dispatcher.Dispatch(p) {
		return
	}
	if r.registrar.dispatch(p) {
		return
	}
	r.drop(metrics.DropUnhandled, "没有处理该消息的订阅",
		"service", p.Service, "channel", p.Channel, "sender", p.Sender.ShortString())
}

func (r *Router) drop(reason, msg string, args ...any) {
	r.reporter.PacketDropped(reason)
	log.Debug(msg, args...)
}

// ============================================================================
//                              出站
// ============================================================================

// NextCounter 分配消息计数器
func (r *Router) NextCounter() uint16 {
	return r.dispatcher.NextCounter()
}

// Send 发送普通数据包
func (r *Router) Send(target types.Address, service, channel uint16, payload []byte) error {
	return r.SendWithCounter(target, service, channel, r.NextCounter(), payload, false)
}

// SendWithCounter 以指定计数器发送；exchange 为 true 表示期待回复
func (r *Router) SendWithCounter(target types.Address, service, channel, counter uint16, payload []byte, exchange bool) error {
	p := r.newPacket(service, channel, counter, payload)
	p.Target = target
	p.Exchange = exchange
	r.stamp(p)
	return r.routeOutbound(p)
}

// Exchange 发送请求并返回等待回复的 Promise
func (r *Router) Exchange(target types.Address, service, channel uint16, payload []byte) (*promise.Promise, error) {
	return r.ExchangeFunc(target, service, channel, func(uint64) ([]byte, error) {
		return payload, nil
	})
}

// ExchangeFunc 先登记交换，再用交换 ID（即 Promise ID）构造负载并发送
//
// 发送失败时 Promise 以 CodeCouldNotDeliver 失败并从分发器移除，错误同时返回给调用方。
func (r *Router) ExchangeFunc(target types.Address, service, channel uint16, build func(exchangeID uint64) ([]byte, error)) (*promise.Promise, error) {
	key := dispatcher.Key{Service: service, Channel: channel, Counter: r.NextCounter(), Address: target}
	pr, err := r.dispatcher.RegisterExchange(key.Service, key.Channel, key.Counter, key.Address)
	if err != nil {
		return nil, err
	}

	payload, err := build(pr.ID())
	if err == nil {
		err = r.SendWithCounter(target, service, channel, key.Counter, payload, true)
	}
	if err != nil {
		r.dispatcher.Abort(key, types.NewException(types.CodeCouldNotDeliver, "%v", err))
		return pr, err
	}
	return pr, nil
}

// Broadcast 向全网广播
func (r *Router) Broadcast(service, channel uint16, payload []byte) error {
	p := r.newPacket(service, channel, r.NextCounter(), payload)
	p.Broadcast = true
	r.stamp(p)
	r.echo.seen(p)
	return r.broadcast(p)
}

// SendDirect 向相邻连接发送直连消息，不经过路由表
func (r *Router) SendDirect(h types.Handle, service, channel uint16, payload []byte) error {
	p := r.newPacket(service, channel, 0, payload)
	p.Direct = true
	r.stamp(p)
	return r.sendToConnection(h, p, metrics.KindDirect)
}

func (r *Router) newPacket(service, channel, counter uint16, payload []byte) *packet.Packet {
	return &packet.Packet{
		Sender:  r.self,
		Service: service,
		Channel: channel,
		Counter: counter,
		TTL:     r.cfg.DefaultTTL,
		Payload: payload,
	}
}

func (r *Router) stamp(p *packet.Packet) {
	if r.cfg.SignPackets {
		packet.Sign(p, r.signer)
	}
}

func (r *Router) broadcast(p *packet.Packet) error {
	buf, err := packet.Marshal(p)
	if err != nil {
		return err
	}
	n := r.register.Broadcast(buf)
	for i := 0; i < n; i++ {
		r.reporter.PacketSent(metrics.KindBroadcast, len(buf))
	}
	return nil
}

// routeOutbound 目标为自身时本地投递；否则精确路由，再尝试 Kademlia 邻居
func (r *Router) routeOutbound(p *packet.Packet) error {
	if p.Target == r.self {
		r.dispatchLocal(p)
		return nil
	}

	h, ok := r.Lookup(p.Target)
	if !ok && r.cfg.KademliaRouting {
		h, ok = r.closestHandle(p.Target)
	}
	if !ok {
		return types.NewException(types.CodeNoRoute, "target %s", p.Target.ShortString())
	}

	kind := metrics.KindReply
	switch {
	case p.Sender != r.self:
		kind = metrics.KindRelay
	case p.Exchange:
		kind = metrics.KindExchange
	}
	return r.sendToConnection(h, p, kind)
}

func (r *Router) sendToConnection(h types.Handle, p *packet.Packet, kind string) error {
	conn, ok := r.register.Lookup(h)
	if !ok {
		return types.NewException(types.CodeCouldNotDeliver, "connection %s not available", h)
	}

	// 记录交换经由的连接，连接断开时分发器据此失败对应的 Promise
	if p.Exchange && p.Sender == r.self {
		r.dispatcher.NotifyMessage(h, p.Service, p.Channel, p.Counter, p.Target)
	}

	buf, err := packet.Marshal(p)
	if err != nil {
		return err
	}
	if err := conn.Send(buf); err != nil {
		return types.NewException(types.CodeCouldNotDeliver, "connection %s: %v", h, err)
	}
	r.reporter.PacketSent(kind, len(buf))
	return nil
}

// closestHandle 直连邻居中距离目标最近、且比本节点更近的那个
func (r *Router) closestHandle(target types.Address) (types.Handle, bool) {
	best := r.self.DistanceTo(target)
	var handle types.Handle

	r.mu.RLock()
	defer r.mu.RUnlock()
	for addr, e := range r.routes {
		if !e.direct {
			continue
		}
		if d := addr.DistanceTo(target); d < best {
			best = d
			handle = e.handle
		}
	}
	return handle, handle.IsValid()
}

// ============================================================================
//                              订阅
// ============================================================================

// Subscribe 订阅发往本节点的 (service, channel) 消息
func (r *Router) Subscribe(service, channel uint16) *Subscription {
	return r.registrar.subscribe(service, channel)
}

// SubscribeAddress 只订阅来自 addr 的 (service, channel) 消息
func (r *Router) SubscribeAddress(addr types.Address, service, channel uint16) *Subscription {
	return r.registrar.subscribeAddress(addr, service, channel)
}

// ============================================================================
//                              路由表
// ============================================================================

// AssociateHandleWithAddress 把地址关联到连接
func (r *Router) AssociateHandleWithAddress(h types.Handle, addr types.Address, direct bool) UpdateStatus {
	if addr == r.self || addr.IsZero() || !h.IsValid() {
		return UpdateNoChange
	}

	r.mu.Lock()
	e, exists := r.routes[addr]

	sameHandle := exists && e.handle == h
	duplicateDirect := exists && direct && e.direct && !sameHandle
	upgrade := exists && !e.direct && direct
	downgrade := exists && e.direct && !direct

	status := UpdateNoChange
	switch {
	case duplicateDirect:
		status = UpdateDuplicateDirect
	case !exists, upgrade, !sameHandle && !downgrade:
		r.routes[addr] = routeEntry{handle: h, direct: direct}
		status = UpdateUpdated
	}
	r.mu.Unlock()

	if status == UpdateUpdated && (!exists || upgrade) {
		log.Info("新增路由", "address", addr.ShortString(), "handle", h, "direct", direct)
	}
	return status
}

// ReplaceDirectRoute 把 addr 的路由强制指向直连 h
func (r *Router) ReplaceDirectRoute(h types.Handle, addr types.Address) {
	if addr == r.self || !h.IsValid() {
		return
	}
	r.mu.Lock()
	r.routes[addr] = routeEntry{handle: h, direct: true}
	r.mu.Unlock()
}

// ConnectionDropped 移除经由 h 的全部路由
func (r *Router) ConnectionDropped(h types.Handle) int {
	r.mu.Lock()
	n := 0
	for addr, e := range r.routes {
		if e.handle == h {
			delete(r.routes, addr)
			n++
		}
	}
	r.mu.Unlock()

	if n > 0 {
		log.Debug("连接断开，移除路由", "handle", h, "routes", n)
	}
	return n
}

// Lookup 精确查找地址对应的连接
func (r *Router) Lookup(addr types.Address) (types.Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.routes[addr]
	return e.handle, ok
}

// IsConnected 是否存在到 addr 的直连路由
func (r *Router) IsConnected(addr types.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.routes[addr]
	return ok && e.direct
}

// DirectlyConnectedPeers 直连邻居地址
func (r *Router) DirectlyConnectedPeers() []types.Address {
	r.mu.RLock()
	out := make([]types.Address, 0, len(r.routes))
	for addr, e := range r.routes {
		if e.direct {
			out = append(out, addr)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Routes 路由表快照
func (r *Router) Routes() []Route {
	r.mu.RLock()
	out := make([]Route, 0, len(r.routes))
	for addr, e := range r.routes {
		out = append(out, Route{Address: addr, Handle: e.handle, Direct: e.direct})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Address.String() < out[j].Address.String() })
	return out
}

// Cleanup 移除指向已不在注册表中的连接的路由
func (r *Router) Cleanup() int {
	live := make(map[types.Handle]struct{})
	for _, h := range r.register.Handles() {
		live[h] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for addr, e := range r.routes {
		if _, ok := live[e.handle]; !ok {
			delete(r.routes, addr)
			n++
		}
	}
	return n
}

func (r *Router) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fmt.Sprintf("router(%s, routes=%d, subs=%d, echoes=%d)",
		r.self.ShortString(), len(r.routes), r.registrar.len(), r.echo.len())
}
