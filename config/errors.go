package config

import "errors"

var (
	// ErrNilConfig 配置为空
	ErrNilConfig = errors.New("config is nil")

	// ErrInvalidListen 监听地址无效
	ErrInvalidListen = errors.New("invalid listen uri")

	// ErrInvalidPeer 对端地址无效
	ErrInvalidPeer = errors.New("invalid peer uri")

	// ErrInvalidValue 数值越界
	ErrInvalidValue = errors.New("invalid config value")

	// ErrUnknownPreset 未知预设
	ErrUnknownPreset = errors.New("unknown preset")
)
