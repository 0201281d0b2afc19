package config

import (
	"fmt"
	"time"
)

// RouterConfig 路由配置
type RouterConfig struct {
	// RelayEnabled 是否转发目标不是本节点的数据包
	RelayEnabled bool `json:"relay_enabled"`

	// KademliaRouting 没有直连路由时是否发往距离目标最近的邻居
	KademliaRouting bool `json:"kademlia_routing"`

	// DefaultTTL 新数据包的 TTL
	DefaultTTL uint8 `json:"default_ttl"`

	// SignPackets 是否对发出的数据包签名
	SignPackets bool `json:"sign_packets"`

	// RequireStamps 是否丢弃未签名的数据包
	RequireStamps bool `json:"require_stamps"`

	// EchoCacheSize 广播回声缓存容量
	EchoCacheSize int `json:"echo_cache_size"`

	// EchoCacheTTL 广播回声记录保留时长
	EchoCacheTTL Duration `json:"echo_cache_ttl"`

	// RelayRate 每秒允许转发的数据包数，0 表示不限制
	RelayRate float64 `json:"relay_rate"`

	// RelayBurst 转发突发上限
	RelayBurst int `json:"relay_burst"`
}

// DefaultRouterConfig 默认路由配置
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		RelayEnabled:    true,
		KademliaRouting: true,
		DefaultTTL:      40,
		SignPackets:     true,
		EchoCacheSize:   16384,
		EchoCacheTTL:    Duration(600 * time.Second),
		RelayRate:       0,
		RelayBurst:      256,
	}
}

// Validate 校验路由参数
func (c RouterConfig) Validate() error {
	if c.DefaultTTL < 3 {
		return fmt.Errorf("%w: default_ttl must be at least 3", ErrInvalidValue)
	}
	if c.EchoCacheSize <= 0 {
		return fmt.Errorf("%w: echo_cache_size must be positive", ErrInvalidValue)
	}
	if c.EchoCacheTTL <= 0 {
		return fmt.Errorf("%w: echo_cache_ttl must be positive", ErrInvalidValue)
	}
	if c.RelayRate < 0 || c.RelayBurst < 0 {
		return fmt.Errorf("%w: relay rate and burst must not be negative", ErrInvalidValue)
	}
	if c.RequireStamps && !c.SignPackets {
		return fmt.Errorf("%w: require_stamps needs sign_packets", ErrInvalidValue)
	}
	return nil
}
