package muddle

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-muddle/internal/core/connection"
	"github.com/dep2p/go-muddle/internal/core/identity"
	"github.com/dep2p/go-muddle/internal/core/metrics"
)

// Params 引擎依赖
type Params struct {
	fx.In

	Config   Config
	Identity *identity.Identity
	Reporter metrics.Reporter `optional:"true"`

	Clock      clock.Clock            `name:"muddle_clock" optional:"true"`
	Transports []connection.Transport `group:"muddle_transports"`
}

// Provide 创建引擎
func Provide(p Params) (*Muddle, error) {
	opts := []Option{WithReporter(p.Reporter), WithClock(p.Clock)}
	for _, t := range p.Transports {
		if t != nil {
			opts = append(opts, WithTransport(t))
		}
	}
	return New(p.Config, p.Identity, opts...)
}

type lifecycleInput struct {
	fx.In

	LC     fx.Lifecycle
	Muddle *Muddle
}

func registerLifecycle(in lifecycleInput) {
	in.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return in.Muddle.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return in.Muddle.Stop()
		},
	})
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("muddle",
		fx.Provide(
			ConfigFromUnified,
			Provide,
		),
		fx.Invoke(registerLifecycle),
	)
}
