package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-muddle/config"
)

// Params Reporter 依赖参数
type Params struct {
	fx.In

	Config     *config.Config        `optional:"true"`
	Registerer prometheus.Registerer `optional:"true"`
}

// NewReporter 按配置创建 Reporter，指标关闭时返回 Nop
func NewReporter(p Params) (Reporter, error) {
	if p.Config == nil || !p.Config.Metrics.Enabled {
		return Nop{}, nil
	}
	return NewPrometheus(p.Config.Metrics.Namespace, p.Registerer)
}

// Module 是 metrics 的 Fx 模块
var Module = fx.Module("metrics",
	fx.Provide(NewReporter),
)
