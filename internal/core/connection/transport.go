package connection

import (
	"context"
	"fmt"
	"sync"

	"github.com/dep2p/go-muddle/pkg/types"
)

// AcceptFunc 监听者收到新连接时调用，连接尚未 Start
type AcceptFunc func(c Connection)

// Listener 正在监听的地址
type Listener interface {
	// URI 实际绑定的地址（端口 0 时为分配后的端口）
	URI() types.URI
	Close() error
}

// Transport 按 URI scheme 拨号与监听
type Transport interface {
	Scheme() string
	Dial(ctx context.Context, uri types.URI) (Connection, error)
	Listen(uri types.URI, accept AcceptFunc) (Listener, error)
}

// Transports 按 scheme 选择传输
type Transports struct {
	mu    sync.RWMutex
	byKey map[string]Transport
}

// NewTransports 创建并注册传输
func NewTransports(ts ...Transport) *Transports {
	r := &Transports{byKey: make(map[string]Transport)}
	for _, t := range ts {
		r.Add(t)
	}
	return r
}

// Add 注册传输，同 scheme 覆盖
func (r *Transports) Add(t Transport) {
	r.mu.Lock()
	r.byKey[t.Scheme()] = t
	r.mu.Unlock()
}

func (r *Transports) get(scheme string) (Transport, error) {
	r.mu.RLock()
	t, ok := r.byKey[scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoTransport, scheme)
	}
	return t, nil
}

// Dial 按 URI 拨号
func (r *Transports) Dial(ctx context.Context, uri types.URI) (Connection, error) {
	t, err := r.get(uri.Scheme)
	if err != nil {
		return nil, err
	}
	return t.Dial(ctx, uri)
}

// Listen 按 URI 监听
func (r *Transports) Listen(uri types.URI, accept AcceptFunc) (Listener, error) {
	t, err := r.get(uri.Scheme)
	if err != nil {
		return nil, err
	}
	return t.Listen(uri, accept)
}
