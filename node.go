package muddle

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"github.com/dep2p/go-muddle/config"
	engine "github.com/dep2p/go-muddle/internal/core/muddle"
	"github.com/dep2p/go-muddle/internal/core/router"
	"github.com/dep2p/go-muddle/internal/protocol/ping"
	"github.com/dep2p/go-muddle/internal/protocol/rpc"
	"github.com/dep2p/go-muddle/internal/util/logger"
	"github.com/dep2p/go-muddle/pkg/lib/promise"
	"github.com/dep2p/go-muddle/pkg/types"
)

var log = logger.Logger("muddle")

// stopTimeout Fx App 停止超时
const stopTimeout = 10 * time.Second

// NodeState 节点状态
type NodeState int

const (
	// StateIdle 已创建，未启动
	StateIdle NodeState = iota
	// StateRunning 运行中
	StateRunning
	// StateStopped 已停止，不能再次启动
	StateStopped
)

// String 返回状态的字符串表示
func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Node Muddle 节点
//
// Node 是用户与 Muddle 网络交互的入口，聚合路由引擎、RPC 客户端/服务端
// 和指标。组件由 Fx 装配，Start/Stop 驱动各组件的生命周期。
//
// 使用示例：
//
//	node, err := muddle.New(ctx,
//	    muddle.WithListen("tcp://0.0.0.0:8100"),
//	    muddle.WithPeers("tcp://10.0.0.2:8100"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := node.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Stop(ctx)
//
//	rtt, err := node.Ping(ctx, peer, []byte("hello"))
type Node struct {
	config   *config.Config
	registry *prometheus.Registry
	app      *fx.App

	// 由 Fx 注入
	engine *engine.Muddle
	client *rpc.Client
	server *rpc.Server

	mu    sync.Mutex
	state NodeState
}

// New 创建节点，不启动
func New(_ context.Context, opts ...Option) (*Node, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	if err := o.config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}

	n := &Node{config: o.config, registry: o.registry}
	n.app = fx.New(fxOptions(o, n)...)
	if err := n.app.Err(); err != nil {
		return nil, fmt.Errorf("build node: %w", err)
	}
	return n, nil
}

// Start 创建并启动节点
func Start(ctx context.Context, opts ...Option) (*Node, error) {
	n, err := New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if err := n.Start(ctx); err != nil {
		return nil, err
	}
	return n, nil
}

// Start 启动监听、拨号持久对端并开始周期维护
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateRunning:
		return ErrAlreadyStarted
	case StateStopped:
		return ErrNodeClosed
	}

	if err := n.app.Start(ctx); err != nil {
		log.Error("节点启动失败", "error", err)
		n.state = StateStopped
		return fmt.Errorf("start: %w", err)
	}
	n.state = StateRunning
	log.Info("节点已启动", "address", n.engine.Address(), "listen", n.engine.ListenURIs())
	return nil
}

// Stop 停止节点，关闭全部连接并失败所有等待中的交换
//
// 重复调用返回 nil。
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state != StateRunning {
		n.state = StateStopped
		return nil
	}
	n.state = StateStopped

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, stopTimeout)
		defer cancel()
	}
	if err := n.app.Stop(ctx); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	log.Info("节点已停止")
	return nil
}

// Close 等同于 Stop(context.Background())
func (n *Node) Close() error {
	return n.Stop(context.Background())
}

// State 当前状态
func (n *Node) State() NodeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *Node) running() error {
	switch n.State() {
	case StateIdle:
		return ErrNotStarted
	case StateStopped:
		return ErrNodeClosed
	}
	return nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              身份与地址
// ════════════════════════════════════════════════════════════════════════════

// Address 节点地址
func (n *Node) Address() types.Address {
	return n.engine.Address()
}

// ListenURIs 实际监听的 URI
func (n *Node) ListenURIs() []types.URI {
	return n.engine.ListenURIs()
}

// Config 节点配置
func (n *Node) Config() *config.Config {
	return n.config
}

// ════════════════════════════════════════════════════════════════════════════
//                              连接
// ════════════════════════════════════════════════════════════════════════════

// AddPeer 添加持久对端，断开后自动重连
func (n *Node) AddPeer(uri string) error {
	u, err := types.ParseURI(uri)
	if err != nil {
		return err
	}
	n.engine.AddPeer(u)
	return nil
}

// RemovePeer 不再重连该对端，已有连接保留
func (n *Node) RemovePeer(uri string) error {
	u, err := types.ParseURI(uri)
	if err != nil {
		return err
	}
	n.engine.RemovePeer(u)
	return nil
}

// Connect 拨号一次，失败或断开后不重连
func (n *Node) Connect(uri string) error {
	if err := n.running(); err != nil {
		return err
	}
	u, err := types.ParseURI(uri)
	if err != nil {
		return err
	}
	return n.engine.ConnectTo(u)
}

// Disconnect 断开到 uri 的连接并忘记该对端
func (n *Node) Disconnect(uri string) error {
	u, err := types.ParseURI(uri)
	if err != nil {
		return err
	}
	n.engine.DisconnectFrom(u)
	return nil
}

// IsConnected 是否有到 addr 的路由
func (n *Node) IsConnected(addr types.Address) bool {
	return n.engine.Router().IsConnected(addr)
}

// Peers 直连对端地址
func (n *Node) Peers() []types.Address {
	return n.engine.Router().DirectlyConnectedPeers()
}

// Connections 当前连接快照
func (n *Node) Connections() []engine.ConnectionInfo {
	return n.engine.Connections()
}

// ════════════════════════════════════════════════════════════════════════════
//                              消息与 RPC
// ════════════════════════════════════════════════════════════════════════════

// Send 向 addr 发送数据包
func (n *Node) Send(addr types.Address, service, channel uint16, payload []byte) error {
	if err := n.running(); err != nil {
		return err
	}
	return n.engine.Router().Send(addr, service, channel, payload)
}

// Broadcast 向全网广播
func (n *Node) Broadcast(service, channel uint16, payload []byte) error {
	if err := n.running(); err != nil {
		return err
	}
	return n.engine.Router().Broadcast(service, channel, payload)
}

// Subscribe 订阅 (service, channel) 上发给本节点的数据包
func (n *Node) Subscribe(service, channel uint16) *router.Subscription {
	return n.engine.Router().Subscribe(service, channel)
}

// Exchange 发送请求，回复以相同 (service, channel, counter) 返回
func (n *Node) Exchange(addr types.Address, service, channel uint16, payload []byte) (*promise.Promise, error) {
	if err := n.running(); err != nil {
		return nil, err
	}
	return n.engine.Router().Exchange(addr, service, channel, payload)
}

// Call 发起 RPC 调用
func (n *Node) Call(ctx context.Context, addr types.Address, protocol, function uint64, args ...rpc.Arg) *promise.Promise {
	if err := n.running(); err != nil {
		p := promise.New()
		p.Fail(err)
		return p
	}
	return n.client.Call(ctx, addr, protocol, function, args...)
}

// Ping 测量到 addr 的 RPC 往返时间
func (n *Node) Ping(ctx context.Context, addr types.Address, payload []byte) (time.Duration, error) {
	if err := n.running(); err != nil {
		return 0, err
	}
	return ping.Ping(ctx, n.client, addr, payload)
}

// Client RPC 客户端
func (n *Node) Client() *rpc.Client {
	return n.client
}

// Server RPC 服务端，用于注册协议
func (n *Node) Server() *rpc.Server {
	return n.server
}

// Engine 路由引擎
func (n *Node) Engine() *engine.Muddle {
	return n.engine
}

// ════════════════════════════════════════════════════════════════════════════
//                              指标
// ════════════════════════════════════════════════════════════════════════════

// MetricsHandler 返回 /metrics HTTP 处理器
func (n *Node) MetricsHandler() (http.Handler, error) {
	if !n.config.Metrics.Enabled {
		return nil, ErrNoMetrics
	}
	return promhttp.HandlerFor(n.registry, promhttp.HandlerOpts{
		Timeout: n.config.Metrics.ScrapeTimeout.Duration(),
	}), nil
}

// Registry 指标注册表
func (n *Node) Registry() *prometheus.Registry {
	return n.registry
}
