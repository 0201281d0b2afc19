package connection

import (
	"context"
	"fmt"
	"sync"

	"github.com/dep2p/go-muddle/pkg/types"
)

// LoopbackHub 进程内的回环"网络"，按名称登记监听者
type LoopbackHub struct {
	mu        sync.Mutex
	listeners map[string]AcceptFunc
}

// NewLoopbackHub 创建回环网络
func NewLoopbackHub() *LoopbackHub {
	return &LoopbackHub{listeners: make(map[string]AcceptFunc)}
}

// LoopbackTransport 连接到同一个 LoopbackHub 的传输
type LoopbackTransport struct {
	hub  *LoopbackHub
	opts Options
}

// NewLoopbackTransport 创建回环传输
func NewLoopbackTransport(hub *LoopbackHub, opts Options) *LoopbackTransport {
	return &LoopbackTransport{hub: hub, opts: opts}
}

func (t *LoopbackTransport) Scheme() string { return types.SchemeLoopback }

// Dial 创建一对连接，一端交给监听者，另一端返回
func (t *LoopbackTransport) Dial(_ context.Context, uri types.URI) (Connection, error) {
	t.hub.mu.Lock()
	accept, ok := t.hub.listeners[uri.Host]
	t.hub.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrListenerNotFound, uri)
	}

	local, remote := NewLoopbackPair(t.opts.SendQueueSize)
	accept(remote)
	return local, nil
}

// Listen 在 hub 上登记名称
func (t *LoopbackTransport) Listen(uri types.URI, accept AcceptFunc) (Listener, error) {
	t.hub.mu.Lock()
	defer t.hub.mu.Unlock()
	if _, exists := t.hub.listeners[uri.Host]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAddressInUse, uri)
	}
	t.hub.listeners[uri.Host] = accept
	return &loopbackListener{hub: t.hub, uri: uri}, nil
}

type loopbackListener struct {
	hub *LoopbackHub
	uri types.URI
}

func (l *loopbackListener) URI() types.URI { return l.uri }

func (l *loopbackListener) Close() error {
	l.hub.mu.Lock()
	delete(l.hub.listeners, l.uri.Host)
	l.hub.mu.Unlock()
	return nil
}
