package connection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/dep2p/go-muddle/pkg/types"
)

// TCPTransport TCP 传输
type TCPTransport struct {
	opts Options
}

// NewTCPTransport 创建 TCP 传输
func NewTCPTransport(opts Options) *TCPTransport {
	return &TCPTransport{opts: opts}
}

func (t *TCPTransport) Scheme() string { return types.SchemeTCP }

// Dial 建立 TCP 连接
func (t *TCPTransport) Dial(ctx context.Context, uri types.URI) (Connection, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", uri.Host)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", uri, err)
	}
	return newStreamConn(KindTCP, Outbound, nc.RemoteAddr().String(), nc, t.opts), nil
}

// Listen 监听并在后台接受连接
func (t *TCPTransport) Listen(uri types.URI, accept AcceptFunc) (Listener, error) {
	nl, err := net.Listen("tcp", uri.Host)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", uri, err)
	}

	l := &tcpListener{
		nl:   nl,
		uri:  types.URI{Scheme: types.SchemeTCP, Host: nl.Addr().String()},
		done: make(chan struct{}),
	}
	go l.acceptLoop(t.opts, accept)
	return l, nil
}

type tcpListener struct {
	nl        net.Listener
	uri       types.URI
	done      chan struct{}
	closeOnce sync.Once
}

func (l *tcpListener) URI() types.URI { return l.uri }

func (l *tcpListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.nl.Close()
		<-l.done
	})
	return err
}

func (l *tcpListener) acceptLoop(opts Options, accept AcceptFunc) {
	defer close(l.done)
	for {
		nc, err := l.nl.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Warn("接受 TCP 连接失败", "listen", l.uri, "err", err)
			}
			return
		}
		accept(newStreamConn(KindTCP, Inbound, nc.RemoteAddr().String(), nc, opts))
	}
}
