package config

import (
	"fmt"
	"time"

	"github.com/dep2p/go-muddle/pkg/types"
)

// NetworkConfig 网络配置
type NetworkConfig struct {
	// Listen 监听 URI，如 "tcp://0.0.0.0:8100"、"quic://0.0.0.0:8101"
	Listen []string `json:"listen"`

	// Peers 持久对端，断开后按退避策略重连
	Peers []string `json:"peers,omitempty"`

	// MaintenanceInterval 周期维护间隔（重连、超时清理）
	MaintenanceInterval Duration `json:"maintenance_interval"`
}

// DefaultNetworkConfig 默认网络配置
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		Listen:              []string{"tcp://0.0.0.0:8100"},
		MaintenanceInterval: Duration(2500 * time.Millisecond),
	}
}

// Validate 校验 URI 与间隔
func (c NetworkConfig) Validate() error {
	for _, s := range c.Listen {
		if _, err := types.ParseURI(s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidListen, err)
		}
	}
	for _, s := range c.Peers {
		if _, err := types.ParseURI(s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPeer, err)
		}
	}
	if c.MaintenanceInterval <= 0 {
		return fmt.Errorf("%w: maintenance_interval must be positive", ErrInvalidValue)
	}
	return nil
}

// ConnectionConfig 连接配置
type ConnectionConfig struct {
	// MaxFrameSize 单帧最大字节数，超出即关闭连接
	MaxFrameSize uint64 `json:"max_frame_size"`

	// DialTimeout 拨号超时
	DialTimeout Duration `json:"dial_timeout"`

	// SendQueueSize 每连接发送队列长度
	SendQueueSize int `json:"send_queue_size"`
}

// DefaultConnectionConfig 默认连接配置
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		MaxFrameSize:  16 << 20,
		DialTimeout:   Duration(10 * time.Second),
		SendQueueSize: 256,
	}
}

// Validate 校验连接参数
func (c ConnectionConfig) Validate() error {
	if c.MaxFrameSize == 0 {
		return fmt.Errorf("%w: max_frame_size must be positive", ErrInvalidValue)
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("%w: dial_timeout must be positive", ErrInvalidValue)
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("%w: send_queue_size must be positive", ErrInvalidValue)
	}
	return nil
}
