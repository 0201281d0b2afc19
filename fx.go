package muddle

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-muddle/config"
	"github.com/dep2p/go-muddle/internal/core/connection"
	"github.com/dep2p/go-muddle/internal/core/identity"
	"github.com/dep2p/go-muddle/internal/core/metrics"
	engine "github.com/dep2p/go-muddle/internal/core/muddle"
	"github.com/dep2p/go-muddle/internal/protocol/ping"
	"github.com/dep2p/go-muddle/internal/protocol/rpc"
)

// fxOptions 组装节点的全部 Fx 选项
//
// 加载顺序（按依赖）：
//  1. 配置、私钥、指标注册表
//  2. Identity → Metrics → Muddle 引擎
//  3. RPC 客户端/服务端 → Ping 协议
//  4. 用户扩展
func fxOptions(o *options, node *Node) []fx.Option {
	modules := []fx.Option{
		fx.Supply(o.config),
		fx.Provide(func() prometheus.Registerer { return o.registry }),

		identity.Module(),
		metrics.Module,
		engine.Module(),

		rpc.Module(),
		ping.Module(),
	}

	if o.privateKey != nil {
		modules = append(modules, fx.Supply(fx.Annotated{Name: "private_key", Target: o.privateKey}))
	}

	if o.network != nil {
		hub := o.network.hub
		modules = append(modules, fx.Provide(
			fx.Annotate(
				func(cfg *config.Config) connection.Transport {
					return connection.NewLoopbackTransport(hub, connection.Options{
						MaxFrameSize:  cfg.Connection.MaxFrameSize,
						SendQueueSize: cfg.Connection.SendQueueSize,
					})
				},
				fx.ResultTags(`group:"muddle_transports"`),
			),
		))
	}

	modules = append(modules, o.userFxOptions...)

	modules = append(modules,
		fx.Invoke(injectNodeComponents(node)),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)
	return modules
}

// nodeInjectParams Node 组件注入参数
type nodeInjectParams struct {
	fx.In

	Engine *engine.Muddle
	Client *rpc.Client
	Server *rpc.Server
}

func injectNodeComponents(node *Node) interface{} {
	return func(p nodeInjectParams) {
		node.engine = p.Engine
		node.client = p.Client
		node.server = p.Server
	}
}
