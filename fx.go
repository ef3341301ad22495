package lanconnect

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-lanconnect/config"
	"github.com/dep2p/go-lanconnect/internal/core/certstore"
	"github.com/dep2p/go-lanconnect/internal/core/lan"
	"github.com/dep2p/go-lanconnect/internal/core/metrics"
	"github.com/dep2p/go-lanconnect/internal/core/registry"
	"github.com/dep2p/go-lanconnect/internal/core/storage"
	"github.com/dep2p/go-lanconnect/internal/discovery/mdns"
	"github.com/dep2p/go-lanconnect/pkg/interfaces"
)

// ════════════════════════════════════════════════════════════════════════════
//                              Fx 应用构建
// ════════════════════════════════════════════════════════════════════════════

// buildFxApp 构建 Fx 应用
//
// 模块按依赖顺序排列，OnStart 依此顺序执行，OnStop 逆序执行：
//  1. storage: 持久化引擎
//  2. certstore: 迁移旧数据、加载本机身份
//  3. metrics: 可选的 Prometheus 指标
//  4. lan: UDP 发现与 TLS 链路
//  5. registry: 设备注册表与配对
//  6. discovery.mdns: 可选的补充发现
func buildFxApp(cfg *config.Config, clk clock.Clock, node *Node, extra []fx.Option) *fx.App {
	modules := []fx.Option{
		fx.Supply(cfg),
		fx.Provide(func() clock.Clock { return clk }),

		storage.Module(),
		certstore.Module(),
		metrics.Module(),
		lan.Module(),
		registry.Module(),
		mdns.Module(),

		fx.Invoke(injectNodeComponents(node)),
	}
	modules = append(modules, extra...)
	modules = append(modules,
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)
	return fx.New(modules...)
}

// nodeInjectParams Node 组件注入参数
type nodeInjectParams struct {
	fx.In

	Identity *certstore.Certificate
	Store    *certstore.Store
	Provider *lan.Provider
	Registry *registry.Registry
	Engine   interfaces.Engine

	Metrics *metrics.Metrics `optional:"true"`
}

// injectNodeComponents 创建 Node 组件注入函数
func injectNodeComponents(node *Node) interface{} {
	return func(params nodeInjectParams) {
		node.identity = params.Identity
		node.store = params.Store
		node.provider = params.Provider
		node.registry = params.Registry
		node.metrics = params.Metrics
		node.engine = params.Engine
	}
}
