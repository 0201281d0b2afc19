// Package config 提供 Muddle 节点配置
//
// 主 Config 聚合各组件的子配置，每个子配置在独立文件中定义，
// 支持 JSON 加载/保存和预设：
//
//	cfg := config.NewConfig()
//	cfg.Network.Peers = []string{"tcp://10.0.0.2:8100"}
//
//	cfg, err := config.Load("muddle.json")
//
//	config.ApplyPreset(cfg, config.PresetRelay)
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config Muddle 节点完整配置
type Config struct {
	// Identity 节点密钥
	Identity IdentityConfig `json:"identity"`

	// Network 监听地址、持久对端与维护周期
	Network NetworkConfig `json:"network"`

	// Connection 连接与分帧参数
	Connection ConnectionConfig `json:"connection"`

	// Router 路由、中继与签名
	Router RouterConfig `json:"router"`

	// Dispatcher 交换超时
	Dispatcher DispatcherConfig `json:"dispatcher"`

	// PeerList 重连退避
	PeerList PeerListConfig `json:"peer_list"`

	// RPC 调用参数
	RPC RPCConfig `json:"rpc"`

	// Metrics Prometheus 指标
	Metrics MetricsConfig `json:"metrics"`
}

// NewConfig 返回默认配置
func NewConfig() *Config {
	return &Config{
		Identity:   DefaultIdentityConfig(),
		Network:    DefaultNetworkConfig(),
		Connection: DefaultConnectionConfig(),
		Router:     DefaultRouterConfig(),
		Dispatcher: DefaultDispatcherConfig(),
		PeerList:   DefaultPeerListConfig(),
		RPC:        DefaultRPCConfig(),
		Metrics:    DefaultMetricsConfig(),
	}
}

// Validate 逐个校验子配置
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	for _, v := range []interface{ Validate() error }{
		c.Identity, c.Network, c.Connection, c.Router,
		c.Dispatcher, c.PeerList, c.RPC, c.Metrics,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// FromJSON 在默认配置之上解析 JSON，未出现的字段保持默认值
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load 从文件加载配置
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return FromJSON(data)
}

// ToJSON 序列化为缩进 JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Save 写入文件
func (c *Config) Save(path string) error {
	data, err := c.ToJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
