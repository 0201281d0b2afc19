package muddle

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-muddle/config"
	"github.com/dep2p/go-muddle/internal/core/connection"
	"github.com/dep2p/go-muddle/internal/core/identity"
	"github.com/dep2p/go-muddle/internal/core/packet"
	"github.com/dep2p/go-muddle/internal/core/peerlist"
	"github.com/dep2p/go-muddle/pkg/lib/promise"
	"github.com/dep2p/go-muddle/pkg/types"
)

const (
	waitFor = 5 * time.Second
	tick    = 5 * time.Millisecond
)

func loopURI(name string) types.URI {
	return types.MustParseURI("loop://" + name)
}

func testConfig(name string, peers ...string) Config {
	cfg := DefaultConfig()
	cfg.Listen = []types.URI{loopURI(name)}
	for _, p := range peers {
		cfg.Peers = append(cfg.Peers, loopURI(p))
	}
	cfg.MaintenanceInterval = 20 * time.Millisecond
	cfg.PeerList.InitialBackoff = 10 * time.Millisecond
	cfg.PeerList.MaxBackoff = 100 * time.Millisecond
	return cfg
}

func startNode(t *testing.T, hub *connection.LoopbackHub, cfg Config, opts ...Option) *Muddle {
	t.Helper()
	id, err := identity.Generate()
	require.NoError(t, err)

	opts = append(opts, WithTransport(connection.NewLoopbackTransport(hub, cfg.Connection)))
	m, err := New(cfg, id, opts...)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Stop() })
	return m
}

func waitConnected(t *testing.T, a, b *Muddle) {
	t.Helper()
	require.Eventually(t, func() bool {
		return a.Router().IsConnected(b.Address()) && b.Router().IsConnected(a.Address())
	}, waitFor, tick)
}

// echoReplies 在 (service, channel) 上把收到的请求原样回复
func echoReplies(m *Muddle, service, channel uint16) {
	m.Router().Subscribe(service, channel).SetMessageHandler(func(p *packet.Packet) {
		_ = m.Router().SendWithCounter(p.Sender, service, channel, p.Counter, p.Payload, false)
	})
}

func TestNew_RequiresIdentity(t *testing.T) {
	_, err := New(DefaultConfig(), nil)
	assert.ErrorIs(t, err, ErrNilIdentity)
}

func TestMuddle_HandshakeAndPeerState(t *testing.T) {
	hub := connection.NewLoopbackHub()
	b := startNode(t, hub, testConfig("b"))
	a := startNode(t, hub, testConfig("a", "b"))

	waitConnected(t, a, b)
	require.Eventually(t, func() bool {
		return a.Peers().State(loopURI("b")) == peerlist.StateConnected
	}, waitFor, tick)

	assert.Equal(t, []types.Address{b.Address()}, a.Router().DirectlyConnectedPeers())
	assert.Equal(t, []types.URI{loopURI("b")}, a.AnnouncedURIs(b.Address()))
	assert.Equal(t, []types.URI{loopURI("a")}, b.AnnouncedURIs(a.Address()))

	conns := a.Connections()
	require.Len(t, conns, 1)
	assert.Equal(t, b.Address(), conns[0].Address)
	assert.Equal(t, connection.Outbound, conns[0].Direction)
	assert.Equal(t, []types.URI{loopURI("b")}, conns[0].URIs)
}

func TestMuddle_ExchangeRoundTrip(t *testing.T) {
	hub := connection.NewLoopbackHub()
	b := startNode(t, hub, testConfig("b"))
	a := startNode(t, hub, testConfig("a", "b"))
	waitConnected(t, a, b)

	echoReplies(b, 10, 1)

	p, err := a.Router().Exchange(b.Address(), 10, 1, []byte("ping"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	v, err := p.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), v)
	assert.Zero(t, a.Dispatcher().Pending())
}

func TestMuddle_RelayThroughMiddleNode(t *testing.T) {
	hub := connection.NewLoopbackHub()
	mid := startNode(t, hub, testConfig("mid"))
	left := startNode(t, hub, testConfig("left", "mid"))
	right := startNode(t, hub, testConfig("right", "mid"))
	waitConnected(t, left, mid)
	waitConnected(t, right, mid)

	echoReplies(right, 11, 1)

	// left 只与 mid 直连，把 right 的间接路由指向 mid
	h, ok := left.Router().Lookup(mid.Address())
	require.True(t, ok)
	left.Router().AssociateHandleWithAddress(h, right.Address(), false)

	p, err := left.Router().Exchange(right.Address(), 11, 1, []byte("hop"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	v, err := p.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("hop"), v)
}

func TestMuddle_DisconnectFailsPendingExchanges(t *testing.T) {
	hub := connection.NewLoopbackHub()
	b := startNode(t, hub, testConfig("b"))
	a := startNode(t, hub, testConfig("a", "b"))
	waitConnected(t, a, b)

	// b 不回复，交换保持等待
	b.Router().Subscribe(12, 1).SetMessageHandler(func(*packet.Packet) {})

	var pending []*promise.Promise
	for i := 0; i < 3; i++ {
		p, err := a.Router().Exchange(b.Address(), 12, 1, nil)
		require.NoError(t, err)
		pending = append(pending, p)
	}

	a.DisconnectFrom(loopURI("b"))

	for _, p := range pending {
		require.Eventually(t, p.IsResolved, waitFor, tick)
		assert.Equal(t, promise.Failed, p.State())
		assert.ErrorIs(t, p.Err(), types.ErrConnectionFailed)
	}
	assert.Equal(t, peerlist.StateUnknown, a.Peers().State(loopURI("b")))
	require.Eventually(t, func() bool { return a.Register().Len() == 0 }, waitFor, tick)
	assert.False(t, a.Router().IsConnected(b.Address()))
}

// gatedTransport 拨号在 release 关闭前阻塞
type gatedTransport struct {
	connection.Transport
	dialing chan struct{}
	release chan struct{}
}

func (g *gatedTransport) Dial(ctx context.Context, uri types.URI) (connection.Connection, error) {
	g.dialing <- struct{}{}
	<-g.release
	return g.Transport.Dial(ctx, uri)
}

func TestMuddle_DisconnectDuringDial(t *testing.T) {
	hub := connection.NewLoopbackHub()
	b := startNode(t, hub, testConfig("b"))

	cfg := testConfig("a")
	gated := &gatedTransport{
		Transport: connection.NewLoopbackTransport(hub, cfg.Connection),
		dialing:   make(chan struct{}, 1),
		release:   make(chan struct{}),
	}
	id, err := identity.Generate()
	require.NoError(t, err)
	a, err := New(cfg, id, WithTransport(gated))
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { _ = a.Stop() })

	uri := loopURI("b")
	require.NoError(t, a.ConnectTo(uri))
	select {
	case <-gated.dialing:
	case <-time.After(waitFor):
		t.Fatal("dial not started")
	}
	assert.Equal(t, peerlist.StateTrying, a.Peers().State(uri))

	a.DisconnectFrom(uri)
	assert.Equal(t, peerlist.StateUnknown, a.Peers().State(uri))
	close(gated.release)

	require.Eventually(t, func() bool { return b.Register().Len() == 0 }, waitFor, tick)
	assert.Never(t, func() bool { return a.Register().Len() > 0 }, 100*time.Millisecond, tick)
	assert.False(t, a.Router().IsConnected(b.Address()))
	assert.Equal(t, peerlist.StateUnknown, a.Peers().State(uri))
}

func TestMuddle_DisconnectRequestClosesRemote(t *testing.T) {
	hub := connection.NewLoopbackHub()
	b := startNode(t, hub, testConfig("b"))
	// 模拟时钟下本端的兜底关闭不会触发，连接只能由对端关闭
	a := startNode(t, hub, testConfig("a", "b"), WithClock(clock.NewMock()))
	waitConnected(t, a, b)

	a.DisconnectFrom(loopURI("b"))

	require.Eventually(t, func() bool {
		return a.Register().Len() == 0 && b.Register().Len() == 0
	}, waitFor, tick)
	assert.False(t, b.Router().IsConnected(a.Address()))
}

func TestMuddle_ReconnectsPersistentPeer(t *testing.T) {
	hub := connection.NewLoopbackHub()
	b := startNode(t, hub, testConfig("b"))
	a := startNode(t, hub, testConfig("a", "b"))
	waitConnected(t, a, b)

	h, ok := a.Router().Lookup(b.Address())
	require.True(t, ok)
	c, ok := a.Register().Lookup(h)
	require.True(t, ok)
	require.NoError(t, c.Close())

	require.Eventually(t, func() bool {
		nh, ok := a.Router().Lookup(b.Address())
		return ok && nh != h && a.Peers().State(loopURI("b")) == peerlist.StateConnected
	}, waitFor, tick)
}

func TestMuddle_DialFailureBacksOff(t *testing.T) {
	clk := clock.NewMock()
	hub := connection.NewLoopbackHub()
	cfg := testConfig("a", "nowhere")
	cfg.PeerList.InitialBackoff = time.Second
	cfg.PeerList.MaxBackoff = time.Minute
	a := startNode(t, hub, cfg, WithClock(clk))

	uri := loopURI("nowhere")
	require.Eventually(t, func() bool {
		return a.Peers().State(uri) == peerlist.StateBackoff
	}, waitFor, tick)
	assert.Equal(t, time.Second, a.Peers().BackoffWindow(uri))

	a.RunMaintenance(clk.Now())
	assert.Equal(t, peerlist.StateBackoff, a.Peers().State(uri), "退避期内不重拨")
	assert.Equal(t, time.Second, a.Peers().BackoffWindow(uri))

	clk.Add(time.Second)
	a.RunMaintenance(clk.Now())
	require.Eventually(t, func() bool {
		return a.Peers().BackoffWindow(uri) == 2*time.Second
	}, waitFor, tick)
}

func TestMuddle_ExchangeTimesOutOnMaintenance(t *testing.T) {
	clk := clock.NewMock()
	hub := connection.NewLoopbackHub()
	b := startNode(t, hub, testConfig("b"))

	cfg := testConfig("a", "b")
	cfg.ExchangeTimeout = 30 * time.Second
	cfg.CleanupInterval = 10 * time.Second
	a := startNode(t, hub, cfg, WithClock(clk))
	waitConnected(t, a, b)

	p, err := a.Router().Exchange(b.Address(), 13, 1, nil)
	require.NoError(t, err)

	clk.Add(31 * time.Second)
	a.RunMaintenance(clk.Now())

	// 维护循环的 ticker 也会被 clk.Add 触发，清理可能在另一个协程完成
	require.Eventually(t, p.IsResolved, waitFor, tick)
	assert.Equal(t, promise.TimedOut, p.State())
	assert.ErrorIs(t, p.Err(), types.ErrTimeout)
}

func TestMuddle_SelfConnectionForgotten(t *testing.T) {
	hub := connection.NewLoopbackHub()
	a := startNode(t, hub, testConfig("a", "a"))

	require.Eventually(t, func() bool {
		return a.Peers().State(loopURI("a")) == peerlist.StateUnknown && a.Register().Len() == 0
	}, waitFor, tick)
	assert.Empty(t, a.Peers().PeersToConnectTo())
	assert.Empty(t, a.Router().Routes())
}

func TestMuddle_DuplicateConnectionsConverge(t *testing.T) {
	hub := connection.NewLoopbackHub()
	a := startNode(t, hub, testConfig("a", "b"))
	b := startNode(t, hub, testConfig("b", "a"))

	require.Eventually(t, func() bool {
		return a.Register().Len() == 1 && b.Register().Len() == 1 &&
			a.Router().IsConnected(b.Address()) && b.Router().IsConnected(a.Address()) &&
			a.Peers().State(loopURI("b")) == peerlist.StateConnected &&
			b.Peers().State(loopURI("a")) == peerlist.StateConnected
	}, waitFor, tick)
}

func TestMuddle_StartStop(t *testing.T) {
	hub := connection.NewLoopbackHub()
	a := startNode(t, hub, testConfig("a"))

	assert.ErrorIs(t, a.Start(context.Background()), ErrAlreadyStarted)
	assert.Equal(t, []types.URI{loopURI("a")}, a.ListenURIs())

	require.NoError(t, a.Stop())
	require.NoError(t, a.Stop())
	assert.ErrorIs(t, a.ConnectTo(loopURI("b")), ErrNotStarted)
	assert.Empty(t, a.ListenURIs())
}

func TestMuddle_ListenConflict(t *testing.T) {
	hub := connection.NewLoopbackHub()
	startNode(t, hub, testConfig("a"))

	id, err := identity.Generate()
	require.NoError(t, err)
	cfg := testConfig("a")
	m, err := New(cfg, id, WithTransport(connection.NewLoopbackTransport(hub, cfg.Connection)))
	require.NoError(t, err)
	assert.ErrorIs(t, m.Start(context.Background()), connection.ErrAddressInUse)
}

func TestMuddle_ConnectToIsOneShot(t *testing.T) {
	hub := connection.NewLoopbackHub()
	a := startNode(t, hub, testConfig("a"))

	require.NoError(t, a.ConnectTo(loopURI("missing")))
	require.Eventually(t, func() bool {
		return a.Peers().State(loopURI("missing")) == peerlist.StateUnknown
	}, waitFor, tick)
	assert.Empty(t, a.Peers().PeersToConnectTo())
}

func TestHello_RoundTrip(t *testing.T) {
	in := hello{kind: kindAnnounce, listen: []types.URI{loopURI("x"), types.MustParseURI("tcp://1.2.3.4:5")}}
	out, err := unmarshalHello(in.marshal())
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = unmarshalHello([]byte{0xFF})
	assert.ErrorIs(t, err, ErrBadHandshake)
	_, err = unmarshalHello(hello{kind: 99}.marshal())
	assert.ErrorIs(t, err, ErrBadHandshake)
}

func TestConfigFromUnified(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Network.Listen = []string{"tcp://127.0.0.1:0", "loop://x"}
	cfg.Network.Peers = []string{"quic://10.0.0.1:8101"}

	out, err := ConfigFromUnified(cfg)
	require.NoError(t, err)
	assert.Len(t, out.Listen, 2)
	assert.Equal(t, types.SchemeQUIC, out.Peers[0].Scheme)
	assert.Equal(t, 2500*time.Millisecond, out.MaintenanceInterval)
	assert.Equal(t, uint8(40), out.Router.DefaultTTL)
	assert.Equal(t, time.Second, out.PeerList.InitialBackoff)

	cfg.Network.Peers = []string{"bogus"}
	_, err = ConfigFromUnified(cfg)
	assert.ErrorIs(t, err, types.ErrInvalidURI)
}
