package rpc

import "github.com/dep2p/go-muddle/config"

// Config RPC 配置
type Config struct {
	// Service/Channel 调用与回复使用的服务号和通道号
	Service uint16
	Channel uint16

	// MaxConcurrentCalls 服务端同时执行的处理函数上限
	MaxConcurrentCalls int64
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	def := config.DefaultRPCConfig()
	return Config{
		Service:            def.Service,
		Channel:            def.Channel,
		MaxConcurrentCalls: def.MaxConcurrentCalls,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Service == 0 {
		c.Service = def.Service
	}
	if c.MaxConcurrentCalls <= 0 {
		c.MaxConcurrentCalls = def.MaxConcurrentCalls
	}
}

// ConfigFromUnified 从统一配置转换
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return Config{
		Service:            cfg.RPC.Service,
		Channel:            cfg.RPC.Channel,
		MaxConcurrentCalls: cfg.RPC.MaxConcurrentCalls,
	}
}
