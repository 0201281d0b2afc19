package config

import (
	"fmt"
	"time"
)

// 预设名称
const (
	// PresetRelay 参与转发的完整节点
	PresetRelay = "relay"
	// PresetLeaf 只处理发给自己的数据包
	PresetLeaf = "leaf"
	// PresetTest 本地测试：回环监听、短超时、不签名
	PresetTest = "test"
)

// ApplyPreset 在配置上应用预设
func ApplyPreset(cfg *Config, name string) error {
	if cfg == nil {
		return ErrNilConfig
	}

	switch name {
	case PresetRelay:
		cfg.Router.RelayEnabled = true
		cfg.Router.KademliaRouting = true
	case PresetLeaf:
		cfg.Router.RelayEnabled = false
		cfg.Router.KademliaRouting = false
	case PresetTest:
		cfg.Network.Listen = []string{"tcp://127.0.0.1:0"}
		cfg.Network.MaintenanceInterval = Duration(100 * time.Millisecond)
		cfg.Connection.DialTimeout = Duration(2 * time.Second)
		cfg.Dispatcher.ExchangeTimeout = Duration(5 * time.Second)
		cfg.Dispatcher.CleanupInterval = Duration(100 * time.Millisecond)
		cfg.PeerList.InitialBackoff = Duration(50 * time.Millisecond)
		cfg.PeerList.MaxBackoff = Duration(time.Second)
		cfg.Metrics.Enabled = false
	default:
		return fmt.Errorf("%w: %s", ErrUnknownPreset, name)
	}
	return nil
}
