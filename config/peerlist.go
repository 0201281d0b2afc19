package config

import (
	"fmt"
	"time"
)

// PeerListConfig 重连退避配置
//
// 第 n 次连续失败后的退避窗口为 InitialBackoff * Multiplier^(n-1)，上限 MaxBackoff。
type PeerListConfig struct {
	InitialBackoff Duration `json:"initial_backoff"`
	MaxBackoff     Duration `json:"max_backoff"`
	Multiplier     float64  `json:"multiplier"`
}

// DefaultPeerListConfig 1s 起步，每次翻倍，上限 2048s
func DefaultPeerListConfig() PeerListConfig {
	return PeerListConfig{
		InitialBackoff: Duration(time.Second),
		MaxBackoff:     Duration(2048 * time.Second),
		Multiplier:     2.0,
	}
}

// Validate 校验退避参数
func (c PeerListConfig) Validate() error {
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("%w: initial_backoff must be positive", ErrInvalidValue)
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("%w: max_backoff must not be less than initial_backoff", ErrInvalidValue)
	}
	if c.Multiplier < 1 {
		return fmt.Errorf("%w: multiplier must be at least 1", ErrInvalidValue)
	}
	return nil
}
