package config

import (
	"fmt"
	"time"
)

// DispatcherConfig 交换分发配置
type DispatcherConfig struct {
	// ExchangeTimeout 未收到回复的交换在此时长后超时
	ExchangeTimeout Duration `json:"exchange_timeout"`

	// CleanupInterval 超时清理的最小间隔
	CleanupInterval Duration `json:"cleanup_interval"`
}

// DefaultDispatcherConfig 默认分发配置
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		ExchangeTimeout: Duration(30 * time.Second),
		CleanupInterval: Duration(10 * time.Second),
	}
}

// Validate 校验超时
func (c DispatcherConfig) Validate() error {
	if c.ExchangeTimeout <= 0 {
		return fmt.Errorf("%w: exchange_timeout must be positive", ErrInvalidValue)
	}
	if c.CleanupInterval < 0 {
		return fmt.Errorf("%w: cleanup_interval must not be negative", ErrInvalidValue)
	}
	return nil
}
