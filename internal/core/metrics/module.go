package metrics

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-lanconnect/config"
)

// Params Metrics 依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Module 返回 metrics Fx 模块
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(NewFromParams),
	)
}

// NewFromParams 按配置创建指标；关闭时返回 nil
func NewFromParams(p Params) *Metrics {
	if p.UnifiedCfg != nil && !p.UnifiedCfg.Metrics.Enabled {
		return nil
	}
	return New()
}
