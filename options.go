package muddle

import (
	"crypto/ed25519"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-muddle/config"
	"github.com/dep2p/go-muddle/internal/core/connection"
	"github.com/dep2p/go-muddle/pkg/types"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	config *config.Config

	privateKey ed25519.PrivateKey

	registry *prometheus.Registry

	// network 进程内网络，非空时注册 loop:// 传输
	network *Network

	userFxOptions []fx.Option
}

func defaultOptions() *options {
	return &options{config: config.NewConfig()}
}

// WithConfig 使用完整配置，替换默认配置
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return config.ErrNilConfig
		}
		o.config = cfg
		return nil
	}
}

// WithConfigFile 从 JSON 文件加载配置
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		o.config = cfg
		return nil
	}
}

// WithPreset 在当前配置上应用预设
func WithPreset(name string) Option {
	return func(o *options) error {
		return config.ApplyPreset(o.config, name)
	}
}

// WithListen 设置监听 URI
func WithListen(uris ...string) Option {
	return func(o *options) error {
		for _, s := range uris {
			if _, err := types.ParseURI(s); err != nil {
				return fmt.Errorf("listen %q: %w", s, err)
			}
		}
		o.config.Network.Listen = append([]string(nil), uris...)
		return nil
	}
}

// WithPeers 追加持久对端
func WithPeers(uris ...string) Option {
	return func(o *options) error {
		for _, s := range uris {
			if _, err := types.ParseURI(s); err != nil {
				return fmt.Errorf("peer %q: %w", s, err)
			}
		}
		o.config.Network.Peers = append(o.config.Network.Peers, uris...)
		return nil
	}
}

// WithPrivateKey 使用指定私钥，优先于配置中的密钥文件
func WithPrivateKey(key ed25519.PrivateKey) Option {
	return func(o *options) error {
		if len(key) != ed25519.PrivateKeySize {
			return fmt.Errorf("private key: want %d bytes, got %d", ed25519.PrivateKeySize, len(key))
		}
		o.privateKey = key
		return nil
	}
}

// WithKeyFile 从 PEM 文件加载私钥，文件不存在时生成
func WithKeyFile(path string) Option {
	return func(o *options) error {
		o.config.Identity.KeyFile = path
		o.config.Identity.AutoGenerate = true
		return nil
	}
}

// WithMetricsRegistry 指定指标注册表，默认每个节点独立创建
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(o *options) error {
		o.registry = reg
		return nil
	}
}

// WithNetwork 接入进程内网络，监听和拨号 loop:// URI
func WithNetwork(n *Network) Option {
	return func(o *options) error {
		o.network = n
		return nil
	}
}

// WithFxOption 追加自定义 Fx 选项
func WithFxOption(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}

// Network 进程内网络
//
// 同一 Network 上的节点通过 loop://<name> 互相连接，不占用端口。
type Network struct {
	hub *connection.LoopbackHub
}

// NewNetwork 创建进程内网络
func NewNetwork() *Network {
	return &Network{hub: connection.NewLoopbackHub()}
}
