package types

import (
	"fmt"
	"net"
	"strings"
)

// URI scheme
const (
	SchemeTCP      = "tcp"
	SchemeQUIC     = "quic"
	SchemeLoopback = "loop"
)

// URI 对端地址，形如 tcp://127.0.0.1:8000
type URI struct {
	Scheme string
	// Host 对 tcp/quic 为 host:port，对 loop 为任意名称
	Host string
}

// ParseURI 解析 URI
func ParseURI(s string) (URI, error) {
	scheme, host, ok := strings.Cut(strings.TrimSpace(s), "://")
	if !ok || host == "" {
		return URI{}, fmt.Errorf("%w: %q", ErrInvalidURI, s)
	}

	scheme = strings.ToLower(scheme)
	switch scheme {
	case SchemeTCP, SchemeQUIC:
		if _, _, err := net.SplitHostPort(host); err != nil {
			return URI{}, fmt.Errorf("%w: %q: %v", ErrInvalidURI, s, err)
		}
	case SchemeLoopback:
	default:
		return URI{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}

	return URI{Scheme: scheme, Host: host}, nil
}

// MustParseURI 解析 URI，失败时 panic（用于测试与常量）
func MustParseURI(s string) URI {
	u, err := ParseURI(s)
	if err != nil {
		panic(err)
	}
	return u
}

func (u URI) String() string {
	if u.Scheme == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// IsZero 是否为空 URI
func (u URI) IsZero() bool {
	return u.Scheme == "" && u.Host == ""
}
