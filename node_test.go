package muddle

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-muddle/config"
	"github.com/dep2p/go-muddle/internal/core/identity"
	"github.com/dep2p/go-muddle/internal/core/packet"
	"github.com/dep2p/go-muddle/internal/protocol/ping"
	"github.com/dep2p/go-muddle/internal/protocol/rpc"
	"github.com/dep2p/go-muddle/pkg/lib/promise"
	"github.com/dep2p/go-muddle/pkg/types"
)

const (
	waitFor = 5 * time.Second
	tick    = 5 * time.Millisecond
)

func startTestNode(t *testing.T, network *Network, name string, opts ...Option) *Node {
	t.Helper()
	opts = append([]Option{
		WithPreset(config.PresetTest),
		WithNetwork(network),
		WithListen("loop://" + name),
	}, opts...)

	n, err := Start(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func TestNode_Lifecycle(t *testing.T) {
	n, err := New(context.Background(),
		WithPreset(config.PresetTest),
		WithNetwork(NewNetwork()),
		WithListen("loop://lifecycle"),
	)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, n.State())
	assert.ErrorIs(t, n.Connect("loop://nowhere"), ErrNotStarted)

	ctx := context.Background()
	require.NoError(t, n.Start(ctx))
	assert.Equal(t, StateRunning, n.State())
	assert.ErrorIs(t, n.Start(ctx), ErrAlreadyStarted)
	assert.Equal(t, []types.URI{types.MustParseURI("loop://lifecycle")}, n.ListenURIs())
	assert.False(t, n.Address().IsZero())

	require.NoError(t, n.Stop(ctx))
	require.NoError(t, n.Stop(ctx))
	assert.Equal(t, StateStopped, n.State())
	assert.ErrorIs(t, n.Start(ctx), ErrNodeClosed)

	p := n.Call(ctx, n.Address(), ping.Protocol, ping.FuncAddress)
	assert.ErrorIs(t, p.Err(), ErrNodeClosed)
}

func TestNode_PingAndCall(t *testing.T) {
	network := NewNetwork()
	a := startTestNode(t, network, "a")
	b := startTestNode(t, network, "b", WithPeers("loop://a"))

	require.Eventually(t, func() bool {
		return a.IsConnected(b.Address()) && b.IsConnected(a.Address())
	}, waitFor, tick)
	assert.Equal(t, []types.Address{a.Address()}, b.Peers())

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	rtt, err := b.Ping(ctx, a.Address(), []byte("hello"))
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))

	proto := rpc.NewProtocol()
	require.NoError(t, proto.Expose(1, func(_ context.Context, req *rpc.Request) ([]byte, error) {
		x, err := req.Args.Int64()
		if err != nil {
			return nil, err
		}
		y, err := req.Args.Int64()
		if err != nil {
			return nil, err
		}
		return rpc.NewEncoder().Int64(x + y).Encoded(), nil
	}))
	require.NoError(t, a.Server().Add(42, proto))

	p := b.Call(ctx, a.Address(), 42, 1, rpc.Int64(40), rpc.Int64(2))
	require.True(t, p.Wait(waitFor), "call failed: %v", p.Err())
	sum, err := rpc.NewDecoder(p.Value()).Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(42), sum)
}

func TestNode_StopFailsPendingCalls(t *testing.T) {
	network := NewNetwork()
	a := startTestNode(t, network, "a")
	b := startTestNode(t, network, "b", WithPeers("loop://a"))
	require.Eventually(t, func() bool { return b.IsConnected(a.Address()) }, waitFor, tick)

	block := make(chan struct{})
	defer close(block)
	proto := rpc.NewProtocol()
	require.NoError(t, proto.Expose(1, func(ctx context.Context, _ *rpc.Request) ([]byte, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil, nil
	}))
	require.NoError(t, a.Server().Add(9, proto))

	p := b.Call(context.Background(), a.Address(), 9, 1)
	require.NoError(t, b.Close())

	require.Eventually(t, p.IsResolved, waitFor, tick)
	assert.Equal(t, promise.Failed, p.State())
	assert.ErrorIs(t, p.Err(), types.ErrConnectionFailed)
}

func TestNode_ExchangeAndSubscribe(t *testing.T) {
	network := NewNetwork()
	a := startTestNode(t, network, "a")
	b := startTestNode(t, network, "b", WithPeers("loop://a"))
	require.Eventually(t, func() bool { return b.IsConnected(a.Address()) }, waitFor, tick)

	a.Subscribe(100, 1).SetMessageHandler(func(p *packet.Packet) {
		reply := bytes.ToUpper(p.Payload)
		_ = a.Engine().Router().SendWithCounter(p.Sender, p.Service, p.Channel, p.Counter, reply, false)
	})
	notes := make(chan string, 1)
	a.Subscribe(100, 2).SetMessageHandler(func(p *packet.Packet) {
		notes <- string(p.Payload)
	})

	pr, err := b.Exchange(a.Address(), 100, 1, []byte("hi"))
	require.NoError(t, err)
	require.True(t, pr.Wait(waitFor))
	assert.Equal(t, "HI", string(pr.Value()))

	require.NoError(t, b.Send(a.Address(), 100, 2, []byte("note")))
	select {
	case got := <-notes:
		assert.Equal(t, "note", got)
	case <-time.After(waitFor):
		t.Fatal("message not delivered")
	}
}

func TestNode_Disconnect(t *testing.T) {
	network := NewNetwork()
	a := startTestNode(t, network, "a")
	b := startTestNode(t, network, "b")

	require.NoError(t, b.Connect("loop://a"))
	require.Eventually(t, func() bool { return b.IsConnected(a.Address()) }, waitFor, tick)
	require.Len(t, b.Connections(), 1)

	require.NoError(t, b.Disconnect("loop://a"))
	require.Eventually(t, func() bool {
		return !b.IsConnected(a.Address()) && !a.IsConnected(b.Address())
	}, waitFor, tick)
	assert.Empty(t, b.Connections())
}

func TestNode_PrivateKeyDeterminesAddress(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 7
	key := ed25519.NewKeyFromSeed(seed)
	id, err := identity.FromPrivateKey(key)
	require.NoError(t, err)

	n := startTestNode(t, NewNetwork(), "keyed", WithPrivateKey(key))
	assert.Equal(t, id.Address(), n.Address())
}

func TestNode_MetricsHandler(t *testing.T) {
	n, err := Start(context.Background(),
		WithNetwork(NewNetwork()),
		WithListen("loop://metrics"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })

	n.Engine().RunMaintenance(time.Now())
	h, err := n.MetricsHandler()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "muddle_connections 0")
	assert.Contains(t, rec.Body.String(), "muddle_exchanges_pending 0")

	disabled := startTestNode(t, NewNetwork(), "nometrics")
	_, err = disabled.MetricsHandler()
	assert.ErrorIs(t, err, ErrNoMetrics)
}

func TestNode_Options(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"bad listen", WithListen("ftp://x")},
		{"bad peer", WithPeers("nonsense")},
		{"short key", WithPrivateKey(ed25519.PrivateKey{1, 2, 3})},
		{"nil config", WithConfig(nil)},
		{"unknown preset", WithPreset("nope")},
		{"missing file", WithConfigFile("/nonexistent/muddle.json")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), tt.opt)
			assert.Error(t, err)
		})
	}

	cfg := config.NewConfig()
	cfg.Dispatcher.ExchangeTimeout = 0
	_, err := New(context.Background(), WithConfig(cfg))
	assert.ErrorIs(t, err, config.ErrInvalidValue)
}

func TestNode_FxAssembly(t *testing.T) {
	o := defaultOptions()
	require.NoError(t, WithPreset(config.PresetTest)(o))
	require.NoError(t, WithNetwork(NewNetwork())(o))
	require.NoError(t, WithListen("loop://fx")(o))
	o.registry = prometheus.NewRegistry()

	n := &Node{config: o.config, registry: o.registry}
	app := fxtest.New(t, fxOptions(o, n)...)
	app.RequireStart()

	require.NotNil(t, n.engine)
	require.NotNil(t, n.client)
	require.NotNil(t, n.server)
	assert.Equal(t, []uint64{ping.Protocol}, n.server.Protocols())
	assert.Equal(t, []types.URI{types.MustParseURI("loop://fx")}, n.engine.ListenURIs())

	app.RequireStop()
	assert.Empty(t, n.engine.ListenURIs())
}
