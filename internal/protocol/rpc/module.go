package rpc

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-muddle/internal/core/muddle"
)

// ClientParams 客户端依赖参数
type ClientParams struct {
	fx.In

	Config Config
	Muddle *muddle.Muddle
}

// ProvideClient 基于节点路由器创建客户端
func ProvideClient(p ClientParams) (*Client, error) {
	return NewClient(p.Muddle.Router(), p.Config)
}

// ServerParams 服务端依赖参数
type ServerParams struct {
	fx.In

	LC     fx.Lifecycle
	Config Config
	Muddle *muddle.Muddle
}

// ProvideServer 基于节点路由器创建服务端，节点停止时关闭
func ProvideServer(p ServerParams) (*Server, error) {
	s, err := NewServer(p.Muddle.Router(), p.Config)
	if err != nil {
		return nil, err
	}
	p.LC.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return s.Close()
		},
	})
	return s, nil
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("rpc",
		fx.Provide(
			ConfigFromUnified,
			ProvideClient,
			ProvideServer,
		),
	)
}
