package muddle

import (
	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-muddle/internal/core/connection"
	"github.com/dep2p/go-muddle/internal/core/metrics"
)

// Option 引擎选项
type Option func(*Muddle)

// WithClock 替换时钟，测试中配合 clock.Mock 驱动维护循环
func WithClock(clk clock.Clock) Option {
	return func(m *Muddle) {
		if clk != nil {
			m.clock = clk
		}
	}
}

// WithReporter 设置指标记录器
func WithReporter(r metrics.Reporter) Option {
	return func(m *Muddle) {
		if r != nil {
			m.reporter = r
		}
	}
}

// WithTransport 追加或覆盖同 scheme 的传输
func WithTransport(t connection.Transport) Option {
	return func(m *Muddle) {
		m.extraTransports = append(m.extraTransports, t)
	}
}
