package config

import (
	"fmt"
	"time"
)

// RPCConfig RPC 配置
type RPCConfig struct {
	// Service RPC 使用的服务号
	Service uint16 `json:"service"`

	// Channel RPC 使用的通道号
	Channel uint16 `json:"channel"`

	// MaxConcurrentCalls 服务端同时执行的处理函数上限
	MaxConcurrentCalls int64 `json:"max_concurrent_calls"`
}

// DefaultRPCConfig 默认 RPC 配置
func DefaultRPCConfig() RPCConfig {
	return RPCConfig{
		Service:            2,
		Channel:            1,
		MaxConcurrentCalls: 64,
	}
}

// Validate 校验并发上限与服务号
func (c RPCConfig) Validate() error {
	if c.MaxConcurrentCalls <= 0 {
		return fmt.Errorf("%w: max_concurrent_calls must be positive", ErrInvalidValue)
	}
	if c.Service == 0 {
		return fmt.Errorf("%w: service 0 is reserved", ErrInvalidValue)
	}
	return nil
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	Enabled bool `json:"enabled"`

	// Namespace 指标名前缀
	Namespace string `json:"namespace"`

	// ListenAddr /metrics HTTP 监听地址，为空则不启动
	ListenAddr string `json:"listen_addr,omitempty"`

	// ScrapeTimeout HTTP 处理超时
	ScrapeTimeout Duration `json:"scrape_timeout"`
}

// DefaultMetricsConfig 默认启用，不监听 HTTP
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:       true,
		Namespace:     "muddle",
		ScrapeTimeout: Duration(10 * time.Second),
	}
}

// Validate 启用时要求命名空间
func (c MetricsConfig) Validate() error {
	if c.Enabled && c.Namespace == "" {
		return fmt.Errorf("%w: metrics namespace must not be empty", ErrInvalidValue)
	}
	return nil
}
