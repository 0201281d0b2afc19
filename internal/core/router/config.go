package router

import (
	"time"

	"github.com/dep2p/go-muddle/internal/core/packet"
)

// Config 路由配置
type Config struct {
	// RelayEnabled 转发目标不是本节点的数据包
	RelayEnabled bool
	// KademliaRouting 没有直达路由时发往更接近目标的直连邻居
	KademliaRouting bool
	// DefaultTTL 本节点发出的数据包 TTL
	DefaultTTL uint8
	// SignPackets 对发出的数据包签名
	SignPackets bool
	// RequireStamps 丢弃未签名的数据包
	RequireStamps bool

	EchoCacheSize int
	EchoCacheTTL  time.Duration

	// RelayRate 每秒转发上限，0 不限制
	RelayRate  float64
	RelayBurst int
}

// DefaultConfig 默认路由配置
func DefaultConfig() Config {
	return Config{
		RelayEnabled:    true,
		KademliaRouting: true,
		DefaultTTL:      packet.DefaultTTL,
		SignPackets:     true,
		EchoCacheSize:   16384,
		EchoCacheTTL:    600 * time.Second,
		RelayBurst:      256,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.DefaultTTL == 0 {
		c.DefaultTTL = def.DefaultTTL
	}
	if c.EchoCacheSize <= 0 {
		c.EchoCacheSize = def.EchoCacheSize
	}
	if c.EchoCacheTTL <= 0 {
		c.EchoCacheTTL = def.EchoCacheTTL
	}
	if c.RelayBurst <= 0 {
		c.RelayBurst = def.RelayBurst
	}
}
