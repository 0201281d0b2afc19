package muddle

import (
	"fmt"
	"time"

	"github.com/dep2p/go-muddle/config"
	"github.com/dep2p/go-muddle/internal/core/connection"
	"github.com/dep2p/go-muddle/internal/core/peerlist"
	"github.com/dep2p/go-muddle/internal/core/router"
	"github.com/dep2p/go-muddle/pkg/types"
)

// Config 节点引擎配置
type Config struct {
	Listen []types.URI
	Peers  []types.URI

	MaintenanceInterval time.Duration
	CleanupInterval     time.Duration
	ExchangeTimeout     time.Duration

	DialTimeout        time.Duration
	MaxConcurrentDials int64

	Connection connection.Options
	Router     router.Config
	PeerList   peerlist.Config
}

// DefaultConfig 默认引擎配置，不监听任何地址
func DefaultConfig() Config {
	return Config{
		MaintenanceInterval: 2500 * time.Millisecond,
		CleanupInterval:     10 * time.Second,
		ExchangeTimeout:     30 * time.Second,
		DialTimeout:         10 * time.Second,
		MaxConcurrentDials:  16,
		Connection:          connection.DefaultOptions(),
		Router:              router.DefaultConfig(),
		PeerList:            peerlist.DefaultConfig(),
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = def.MaintenanceInterval
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = def.CleanupInterval
	}
	if c.ExchangeTimeout <= 0 {
		c.ExchangeTimeout = def.ExchangeTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.MaxConcurrentDials <= 0 {
		c.MaxConcurrentDials = def.MaxConcurrentDials
	}
	if c.Connection.MaxFrameSize == 0 {
		c.Connection.MaxFrameSize = def.Connection.MaxFrameSize
	}
	if c.Connection.SendQueueSize <= 0 {
		c.Connection.SendQueueSize = def.Connection.SendQueueSize
	}
}

// ConfigFromUnified 从统一配置创建引擎配置
func ConfigFromUnified(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return DefaultConfig(), nil
	}

	out := Config{
		MaintenanceInterval: cfg.Network.MaintenanceInterval.Duration(),
		CleanupInterval:     cfg.Dispatcher.CleanupInterval.Duration(),
		ExchangeTimeout:     cfg.Dispatcher.ExchangeTimeout.Duration(),
		DialTimeout:         cfg.Connection.DialTimeout.Duration(),
		MaxConcurrentDials:  DefaultConfig().MaxConcurrentDials,
		Connection: connection.Options{
			MaxFrameSize:  cfg.Connection.MaxFrameSize,
			SendQueueSize: cfg.Connection.SendQueueSize,
		},
		Router: router.Config{
			RelayEnabled:    cfg.Router.RelayEnabled,
			KademliaRouting: cfg.Router.KademliaRouting,
			DefaultTTL:      cfg.Router.DefaultTTL,
			SignPackets:     cfg.Router.SignPackets,
			RequireStamps:   cfg.Router.RequireStamps,
			EchoCacheSize:   cfg.Router.EchoCacheSize,
			EchoCacheTTL:    cfg.Router.EchoCacheTTL.Duration(),
			RelayRate:       cfg.Router.RelayRate,
			RelayBurst:      cfg.Router.RelayBurst,
		},
		PeerList: peerlist.Config{
			InitialBackoff: cfg.PeerList.InitialBackoff.Duration(),
			MaxBackoff:     cfg.PeerList.MaxBackoff.Duration(),
			Multiplier:     cfg.PeerList.Multiplier,
		},
	}

	for _, s := range cfg.Network.Listen {
		u, err := types.ParseURI(s)
		if err != nil {
			return Config{}, fmt.Errorf("listen: %w", err)
		}
		out.Listen = append(out.Listen, u)
	}
	for _, s := range cfg.Network.Peers {
		u, err := types.ParseURI(s)
		if err != nil {
			return Config{}, fmt.Errorf("peer: %w", err)
		}
		out.Peers = append(out.Peers, u)
	}
	return out, nil
}
