// Package muddle 组装 Muddle 节点引擎
//
// Muddle 持有连接注册表、路由器、分发器与对端连接表，负责:
//   - 在配置的 URI 上监听，接入入站连接
//   - 按退避策略拨号持久对端
//   - 连接接入后双方互发握手，把对端地址登记为直连路由
//   - 连接离开时清理路由、失败在途交换、推进对端状态
//   - 周期维护: 重连、超时清理、指标
package muddle

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dep2p/go-muddle/internal/core/connection"
	"github.com/dep2p/go-muddle/internal/core/dispatcher"
	"github.com/dep2p/go-muddle/internal/core/identity"
	"github.com/dep2p/go-muddle/internal/core/metrics"
	"github.com/dep2p/go-muddle/internal/core/packet"
	"github.com/dep2p/go-muddle/internal/core/peerlist"
	"github.com/dep2p/go-muddle/internal/core/router"
	"github.com/dep2p/go-muddle/internal/util/logger"
	"github.com/dep2p/go-muddle/pkg/types"
)

var log = logger.Logger("muddle.engine")

type connInfo struct {
	kind      connection.Kind
	direction connection.Direction
	remote    string
	// uris 经由此连接视为已连接的拨出对端
	uris []types.URI
}

// ConnectionInfo 连接快照
type ConnectionInfo struct {
	Handle    types.Handle
	Address   types.Address
	Kind      connection.Kind
	Direction connection.Direction
	Remote    string
	URIs      []types.URI
}

type runState struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// Muddle 节点引擎
type Muddle struct {
	id       *identity.Identity
	cfg      Config
	clock    clock.Clock
	reporter metrics.Reporter
	log      *slog.Logger
	instance string

	extraTransports []connection.Transport
	transports      *connection.Transports
	register        *connection.Register
	dispatcher      *dispatcher.Dispatcher
	router          *router.Router
	peers           *peerlist.List
	dialSem         *semaphore.Weighted

	mu          sync.Mutex
	conns       map[types.Handle]*connInfo
	announced   map[types.Address][]types.URI
	listeners   []connection.Listener
	lastCleanup time.Time
	lastStats   dispatcher.Stats

	runMu sync.Mutex
	run   atomic.Pointer[runState]
}

// New 创建节点引擎
func New(cfg Config, id *identity.Identity, opts ...Option) (*Muddle, error) {
	if id == nil {
		return nil, ErrNilIdentity
	}
	cfg.applyDefaults()

	m := &Muddle{
		id:        id,
		cfg:       cfg,
		clock:     clock.New(),
		reporter:  metrics.Nop{},
		instance:  uuid.NewString(),
		register:  connection.NewRegister(),
		conns:     make(map[types.Handle]*connInfo),
		announced: make(map[types.Address][]types.URI),
		dialSem:   semaphore.NewWeighted(cfg.MaxConcurrentDials),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = log.With("node", id.Address().ShortString(), "instance", m.instance)

	quicTransport, err := connection.NewQUICTransport(cfg.Connection, id.PrivateKey())
	if err != nil {
		return nil, fmt.Errorf("quic transport: %w", err)
	}
	m.transports = connection.NewTransports(
		connection.NewTCPTransport(cfg.Connection),
		quicTransport,
	)
	for _, t := range m.extraTransports {
		m.transports.Add(t)
	}

	m.dispatcher = dispatcher.New(cfg.ExchangeTimeout, m.clock)
	m.router, err = router.New(router.Params{
		Config:     cfg.Router,
		Signer:     id,
		Verify:     identity.Verify,
		Register:   m.register,
		Dispatcher: m.dispatcher,
		Reporter:   m.reporter,
	})
	if err != nil {
		return nil, err
	}
	m.router.SetDirectHandler(m.onDirect)

	m.peers = peerlist.New(cfg.PeerList, m.clock)
	m.peers.OnStateChange(func(uri types.URI, from, to peerlist.State) {
		m.log.Debug("对端状态变化", "uri", uri, "from", from, "to", to)
	})
	for _, uri := range cfg.Peers {
		m.peers.AddPersistentPeer(uri)
	}

	m.register.OnLeave(m.onLeave)
	return m, nil
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 开始监听并启动维护循环
//
// 后台协程的生命周期与 Stop 绑定，不随 ctx 结束。
func (m *Muddle) Start(_ context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.run.Load() != nil {
		return ErrAlreadyStarted
	}

	var listeners []connection.Listener
	for _, uri := range m.cfg.Listen {
		ln, err := m.transports.Listen(uri, m.accept)
		if err != nil {
			return multierr.Append(fmt.Errorf("listen %s: %w", uri, err), closeListeners(listeners))
		}
		m.log.Info("开始监听", "uri", ln.URI())
		listeners = append(listeners, ln)
	}

	m.mu.Lock()
	m.listeners = listeners
	m.lastCleanup = m.clock.Now()
	m.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	st := &runState{ctx: ctx, cancel: cancel, group: &errgroup.Group{}}
	m.run.Store(st)

	st.group.Go(func() error {
		return m.maintenanceLoop(ctx)
	})
	m.RunMaintenance(m.clock.Now())

	m.log.Info("节点已启动", "address", m.Address())
	return nil
}

// Stop 关闭监听与全部连接，失败所有在途交换，等待后台协程退出
func (m *Muddle) Stop() error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	st := m.run.Swap(nil)
	if st == nil {
		return nil
	}
	st.cancel()

	m.mu.Lock()
	listeners := m.listeners
	m.listeners = nil
	m.mu.Unlock()

	err := closeListeners(listeners)
	err = multierr.Append(err, m.register.CloseAll())
	m.dispatcher.FailAll(types.NewException(types.CodeConnectionFailed, "node stopped"))
	err = multierr.Append(err, st.group.Wait())

	m.log.Info("节点已停止")
	return err
}

func closeListeners(ls []connection.Listener) error {
	var err error
	for _, ln := range ls {
		err = multierr.Append(err, ln.Close())
	}
	return err
}

func (m *Muddle) maintenanceLoop(ctx context.Context) error {
	ticker := m.clock.Ticker(m.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.RunMaintenance(m.clock.Now())
		}
	}
}

// RunMaintenance 执行一轮维护: 拨号到期对端、超时清理、更新指标
func (m *Muddle) RunMaintenance(now time.Time) {
	for _, uri := range m.peers.PeersToConnectTo() {
		if err := m.dial(uri); err != nil {
			m.log.Debug("跳过拨号", "uri", uri, "err", err)
		}
	}

	m.mu.Lock()
	due := now.Sub(m.lastCleanup) >= m.cfg.CleanupInterval
	if due {
		m.lastCleanup = now
	}
	m.mu.Unlock()

	if due {
		if n := m.dispatcher.Cleanup(now); n > 0 {
			m.log.Debug("交换超时", "count", n)
		}
		m.router.Cleanup()
	}

	m.reportGauges()
}

func (m *Muddle) reportGauges() {
	m.reporter.SetConnections(m.register.Len())
	m.reporter.SetPendingExchanges(m.dispatcher.Pending())

	counts := m.peers.CountByState()
	for _, s := range []peerlist.State{peerlist.StateUnknown, peerlist.StateTrying, peerlist.StateConnected, peerlist.StateBackoff} {
		m.reporter.SetPeers(s.String(), counts[s])
	}

	stats := m.dispatcher.Stats()
	m.mu.Lock()
	prev := m.lastStats
	m.lastStats = stats
	m.mu.Unlock()
	m.reporter.ExchangeResolved(metrics.OutcomeSuccess, stats.Fulfilled-prev.Fulfilled)
	m.reporter.ExchangeResolved(metrics.OutcomeFailed, stats.Failed-prev.Failed)
	m.reporter.ExchangeResolved(metrics.OutcomeTimedOut, stats.TimedOut-prev.TimedOut)
}

// ============================================================================
//                              对端管理
// ============================================================================

// AddPeer 添加持久对端，已启动时立即尝试连接
func (m *Muddle) AddPeer(uri types.URI) {
	m.peers.AddPersistentPeer(uri)
	if m.run.Load() != nil {
		if err := m.dial(uri); err != nil {
			m.log.Debug("跳过拨号", "uri", uri, "err", err)
		}
	}
}

// RemovePeer 取消持久对端，已有连接保留到断开
func (m *Muddle) RemovePeer(uri types.URI) {
	m.peers.RemovePersistentPeer(uri)
}

// ConnectTo 一次性连接，失败或断开后不重连
func (m *Muddle) ConnectTo(uri types.URI) error {
	return m.dial(uri)
}

// DisconnectFrom 忘记对端并关闭其连接
func (m *Muddle) DisconnectFrom(uri types.URI) {
	h, ok := m.peers.Disconnect(uri)
	if !ok {
		return
	}

	m.mu.Lock()
	if info, exists := m.conns[h]; exists {
		info.uris = removeURI(info.uris, uri)
	}
	m.mu.Unlock()

	m.requestDisconnect(h)
}

// requestDisconnect 通知对端断开，对端未在 disconnectGrace 内关闭时本端关闭
func (m *Muddle) requestDisconnect(h types.Handle) {
	req := hello{kind: kindDisconnect}
	if err := m.router.SendDirect(h, ServiceMuddle, ChannelHandshake, req.marshal()); err != nil {
		m.closeHandle(h)
		return
	}
	m.clock.AfterFunc(disconnectGrace, func() { m.closeHandle(h) })
}

func (m *Muddle) dial(uri types.URI) error {
	st := m.run.Load()
	if st == nil {
		return ErrNotStarted
	}
	if !m.peers.AddConnection(uri, types.InvalidHandle) {
		return ErrAlreadyConnecting
	}
	st.group.Go(func() error {
		m.dialOne(st.ctx, uri)
		return nil
	})
	return nil
}

func (m *Muddle) dialOne(ctx context.Context, uri types.URI) {
	if err := m.dialSem.Acquire(ctx, 1); err != nil {
		if _, adopted := m.peers.Handle(uri); !adopted {
			m.peers.RemoveConnection(uri)
		}
		return
	}
	defer m.dialSem.Release(1)

	dctx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	defer cancel()

	conn, err := m.transports.Dial(dctx, uri)

	// 拨号期间对端可能已主动连入并被绑定到该地址
	if _, adopted := m.peers.Handle(uri); adopted {
		if err == nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		m.log.Debug("拨号失败", "uri", uri, "err", err)
		m.peers.RemoveConnection(uri)
		return
	}
	if ctx.Err() != nil {
		_ = conn.Close()
		m.peers.RemoveConnection(uri)
		return
	}

	// 拨号期间对端可能已被 DisconnectFrom 忘记
	h := conn.Handle()
	if !m.peers.BindDialed(uri, h) {
		m.log.Debug("拨号完成时对端已不再跟踪，关闭连接", "uri", uri)
		_ = conn.Close()
		return
	}
	m.attach(conn, uri)
	if bound, ok := m.peers.Handle(uri); !ok || bound != h {
		m.closeHandle(h)
	}
}

// ============================================================================
//                              连接接入与离开
// ============================================================================

func (m *Muddle) accept(c connection.Connection) {
	m.attach(c, types.URI{})
}

func (m *Muddle) attach(c connection.Connection, uri types.URI) {
	h := c.Handle()
	info := &connInfo{kind: c.Kind(), direction: c.Direction(), remote: c.RemoteAddress()}
	if !uri.IsZero() {
		info.uris = []types.URI{uri}
	}

	m.mu.Lock()
	m.conns[h] = info
	m.mu.Unlock()

	m.register.Enter(c)
	m.reporter.ConnectionOpened(c.Kind().String(), c.Direction().String())

	c.OnMessage(func(msg []byte) {
		m.router.RouteRaw(h, msg)
	})
	c.OnClose(func(h types.Handle) {
		m.register.Leave(h)
	})
	c.Start()

	// 注册关闭回调之前就已断开的连接不会触发回调
	if !c.IsAlive() {
		m.register.Leave(h)
		return
	}

	m.log.Debug("连接接入", "handle", h, "kind", c.Kind(), "direction", c.Direction(), "remote", c.RemoteAddress())

	announce := hello{kind: kindAnnounce, listen: m.ListenURIs()}
	if err := m.router.SendDirect(h, ServiceMuddle, ChannelHandshake, announce.marshal()); err != nil {
		m.log.Debug("发送握手失败", "handle", h, "err", err)
	}
}

func (m *Muddle) onLeave(h types.Handle, addr types.Address) {
	m.router.ConnectionDropped(h)
	failed := m.dispatcher.NotifyConnectionFailure(h)

	m.mu.Lock()
	info, ok := m.conns[h]
	delete(m.conns, h)
	m.mu.Unlock()

	if ok {
		for _, uri := range info.uris {
			if cur, bound := m.peers.Handle(uri); bound && cur == h {
				m.peers.RemoveConnection(uri)
			}
		}
		m.reporter.ConnectionClosed(info.kind.String())
	}

	m.log.Debug("连接离开", "handle", h, "peer", addr.ShortString(), "failed_exchanges", failed)
}

func (m *Muddle) closeHandle(h types.Handle) {
	if c, ok := m.register.Lookup(h); ok {
		_ = c.Close()
		return
	}
	m.register.Leave(h)
}

// ============================================================================
//                              握手
// ============================================================================

func (m *Muddle) onDirect(h types.Handle, p *packet.Packet) {
	if p.Service != ServiceMuddle || p.Channel != ChannelHandshake {
		m.log.Debug("未知的直连消息", "handle", h, "service", p.Service, "channel", p.Channel)
		return
	}

	msg, err := unmarshalHello(p.Payload)
	if err != nil {
		m.log.Warn("握手消息无效，断开连接", "handle", h, "err", err)
		m.closeHandle(h)
		return
	}

	switch msg.kind {
	case kindDisconnect:
		m.log.Debug("对端请求断开", "handle", h, "peer", p.Sender.ShortString())
		m.closeHandle(h)
	case kindAnnounce:
		m.onAnnounce(h, p.Sender, msg.listen)
	}
}

func (m *Muddle) onAnnounce(h types.Handle, sender types.Address, listen []types.URI) {
	if sender == m.Address() {
		m.mu.Lock()
		var uris []types.URI
		info, ok := m.conns[h]
		if ok && info.direction == connection.Inbound {
			// 由拨出的一端断开并忘记地址
			m.mu.Unlock()
			return
		}
		if ok {
			uris, info.uris = info.uris, nil
		}
		m.mu.Unlock()

		m.log.Warn("连接到了自身，断开并忘记该地址", "handle", h, "uris", uris)
		for _, uri := range uris {
			m.peers.Disconnect(uri)
		}
		m.closeHandle(h)
		return
	}

	m.register.UpdateAddress(h, sender)
	m.mu.Lock()
	m.announced[sender] = listen
	m.mu.Unlock()
	m.adoptAnnounced(h, listen)

	switch m.router.AssociateHandleWithAddress(h, sender, true) {
	case router.UpdateDuplicateDirect:
		m.resolveDuplicate(h, sender)
	default:
		m.markEstablished(h)
	}
}

// resolveDuplicate 同一对端存在两条直连时只保留一条
//
// 两端按同一规则裁决: 保留地址较小一方拨出的连接。
// 两条连接由同一方拨出时，只由拨号方关闭较新的那条。
func (m *Muddle) resolveDuplicate(n types.Handle, peer types.Address) {
	existing, ok := m.router.Lookup(peer)
	if !ok || existing == n {
		m.markEstablished(n)
		return
	}

	self := m.Address()
	dialerExisting, dialerNew := m.dialerOf(existing, peer), m.dialerOf(n, peer)

	var keep, drop types.Handle
	switch {
	case dialerExisting == dialerNew && dialerNew != self:
		return
	case dialerExisting == dialerNew:
		keep, drop = existing, n
	default:
		preferred := self
		if bytes.Compare(peer[:], self[:]) < 0 {
			preferred = peer
		}
		if dialerNew == preferred {
			keep, drop = n, existing
		} else {
			keep, drop = existing, n
		}
	}

	if keep == n {
		m.router.ReplaceDirectRoute(n, peer)
	}
	m.moveURIs(drop, keep)
	m.markEstablished(keep)

	m.log.Info("重复连接", "peer", peer.ShortString(), "keep", keep, "drop", drop)
	m.closeHandle(drop)
}

// adoptAnnounced 对端通告的监听地址若是尚未绑定连接的持久对端，就把它绑定到 h
//
// 对端主动连入时，本节点不必再拨出一条重复的连接。
func (m *Muddle) adoptAnnounced(h types.Handle, listen []types.URI) {
	for _, uri := range listen {
		if !m.peers.IsPersistent(uri) {
			continue
		}
		if _, bound := m.peers.Handle(uri); bound {
			continue
		}

		switch m.peers.State(uri) {
		case peerlist.StateUnknown, peerlist.StateBackoff:
			m.peers.AddConnection(uri, h)
		case peerlist.StateTrying:
			m.peers.SetHandle(uri, h)
		default:
			continue
		}

		m.mu.Lock()
		if info, ok := m.conns[h]; ok {
			info.uris = appendURI(info.uris, uri)
		}
		m.mu.Unlock()
	}
}

func (m *Muddle) dialerOf(h types.Handle, peer types.Address) types.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.conns[h]; ok && info.direction == connection.Outbound {
		return m.Address()
	}
	return peer
}

func (m *Muddle) moveURIs(from, to types.Handle) {
	m.mu.Lock()
	var moved []types.URI
	src, dst := m.conns[from], m.conns[to]
	if src != nil && dst != nil {
		moved = src.uris
		src.uris = nil
		for _, uri := range moved {
			dst.uris = appendURI(dst.uris, uri)
		}
	}
	m.mu.Unlock()

	for _, uri := range moved {
		m.peers.SetHandle(uri, to)
	}
}

func (m *Muddle) markEstablished(h types.Handle) {
	m.mu.Lock()
	var uris []types.URI
	if info, ok := m.conns[h]; ok {
		uris = append(uris, info.uris...)
	}
	m.mu.Unlock()

	for _, uri := range uris {
		m.peers.OnConnectionEstablished(uri)
	}
}

// ============================================================================
//                              访问器
// ============================================================================

// Address 本节点地址
func (m *Muddle) Address() types.Address {
	return m.id.Address()
}

// Identity 本节点身份
func (m *Muddle) Identity() *identity.Identity {
	return m.id
}

// Router 路由器
func (m *Muddle) Router() *router.Router {
	return m.router
}

// Dispatcher 交换分发器
func (m *Muddle) Dispatcher() *dispatcher.Dispatcher {
	return m.dispatcher
}

// Peers 对端连接表
func (m *Muddle) Peers() *peerlist.List {
	return m.peers
}

// Register 连接注册表
func (m *Muddle) Register() *connection.Register {
	return m.register
}

// ListenURIs 实际监听的地址
func (m *Muddle) ListenURIs() []types.URI {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.URI, 0, len(m.listeners))
	for _, ln := range m.listeners {
		out = append(out, ln.URI())
	}
	return out
}

// AnnouncedURIs 对端握手时通告的监听地址
func (m *Muddle) AnnouncedURIs(addr types.Address) []types.URI {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.URI(nil), m.announced[addr]...)
}

// Connections 当前连接快照，按句柄排序
func (m *Muddle) Connections() []ConnectionInfo {
	m.mu.Lock()
	out := make([]ConnectionInfo, 0, len(m.conns))
	for h, info := range m.conns {
		out = append(out, ConnectionInfo{
			Handle:    h,
			Kind:      info.kind,
			Direction: info.direction,
			Remote:    info.remote,
			URIs:      append([]types.URI(nil), info.uris...),
		})
	}
	m.mu.Unlock()

	for i := range out {
		out[i].Address, _ = m.register.Address(out[i].Handle)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

func appendURI(uris []types.URI, uri types.URI) []types.URI {
	for _, u := range uris {
		if u == uri {
			return uris
		}
	}
	return append(uris, uri)
}

func removeURI(uris []types.URI, uri types.URI) []types.URI {
	out := uris[:0]
	for _, u := range uris {
		if u != uri {
			out = append(out, u)
		}
	}
	return out
}
