package connection

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-muddle/pkg/types"
)

// ALPN QUIC 应用层协议标识
const ALPN = "muddle/1"

// quicAcceptStreamTimeout 入站 QUIC 连接打开首条流的等待上限
const quicAcceptStreamTimeout = 10 * time.Second

// QUICTransport QUIC 传输，每个连接只使用一条双向流
//
// TLS 证书是以节点私钥自签的，对端不校验证书；数据包的真实性由签名保证。
type QUICTransport struct {
	opts       Options
	serverConf *tls.Config
	clientConf *tls.Config
	quicConf   *quic.Config
}

// NewQUICTransport 以节点私钥创建 QUIC 传输
func NewQUICTransport(opts Options, key ed25519.PrivateKey) (*QUICTransport, error) {
	cert, err := selfSignedCert(key)
	if err != nil {
		return nil, fmt.Errorf("生成 QUIC 证书失败: %w", err)
	}
	return &QUICTransport{
		opts: opts,
		serverConf: &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{ALPN},
		},
		clientConf: &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec
			NextProtos:         []string{ALPN},
		},
		quicConf: &quic.Config{
			KeepAlivePeriod: 15 * time.Second,
			MaxIdleTimeout:  60 * time.Second,
		},
	}, nil
}

func (t *QUICTransport) Scheme() string { return types.SchemeQUIC }

// Dial 建立 QUIC 连接并打开一条双向流
func (t *QUICTransport) Dial(ctx context.Context, uri types.URI) (Connection, error) {
	qc, err := quic.DialAddr(ctx, uri.Host, t.clientConf, t.quicConf)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", uri, err)
	}
	stream, err := qc.OpenStreamSync(ctx)
	if err != nil {
		_ = qc.CloseWithError(0, "open stream failed")
		return nil, fmt.Errorf("open stream %s: %w", uri, err)
	}
	return newStreamConn(KindQUIC, Outbound, qc.RemoteAddr().String(), &quicStream{Stream: stream, conn: qc}, t.opts), nil
}

// Listen 监听 UDP 地址
func (t *QUICTransport) Listen(uri types.URI, accept AcceptFunc) (Listener, error) {
	ql, err := quic.ListenAddr(uri.Host, t.serverConf, t.quicConf)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", uri, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &quicListener{
		ql:     ql,
		uri:    types.URI{Scheme: types.SchemeQUIC, Host: ql.Addr().String()},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go l.acceptLoop(ctx, t.opts, accept)
	return l, nil
}

type quicListener struct {
	ql        *quic.Listener
	uri       types.URI
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func (l *quicListener) URI() types.URI { return l.uri }

func (l *quicListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.cancel()
		err = l.ql.Close()
		<-l.done
	})
	return err
}

func (l *quicListener) acceptLoop(ctx context.Context, opts Options, accept AcceptFunc) {
	defer close(l.done)
	for {
		qc, err := l.ql.Accept(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, quic.ErrServerClosed) {
				log.Warn("接受 QUIC 连接失败", "listen", l.uri, "err", err)
			}
			return
		}
		go func(qc quic.Connection) {
			sctx, cancel := context.WithTimeout(ctx, quicAcceptStreamTimeout)
			defer cancel()
			stream, err := qc.AcceptStream(sctx)
			if err != nil {
				log.Debug("等待 QUIC 流失败", "remote", qc.RemoteAddr(), "err", err)
				_ = qc.CloseWithError(0, "no stream")
				return
			}
			accept(newStreamConn(KindQUIC, Inbound, qc.RemoteAddr().String(), &quicStream{Stream: stream, conn: qc}, opts))
		}(qc)
	}
}

// quicStream 关闭流时一并关闭所属 QUIC 连接
type quicStream struct {
	quic.Stream
	conn quic.Connection
}

func (s *quicStream) Close() error {
	s.Stream.CancelRead(0)
	_ = s.Stream.Close()
	return s.conn.CloseWithError(0, "closed")
}

func selfSignedCert(key ed25519.PrivateKey) (tls.Certificate, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return tls.Certificate{}, err
	}
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}
