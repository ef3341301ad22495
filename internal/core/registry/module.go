package registry

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-lanconnect/config"
	"github.com/dep2p/go-lanconnect/internal/core/certstore"
	"github.com/dep2p/go-lanconnect/internal/core/lan"
	"github.com/dep2p/go-lanconnect/internal/core/metrics"
)

// Params 注册表依赖
type Params struct {
	fx.In

	Config   *config.Config
	Store    *certstore.Store
	Provider *lan.Provider
	Clock    clock.Clock
	Metrics  *metrics.Metrics `optional:"true"`
}

// Module 返回注册表 Fx 模块
//
// 注册表在链路提供者启动前注册为连接接收者，并恢复已配对设备。
func Module() fx.Option {
	return fx.Module("registry",
		fx.Provide(ProvideRegistry),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideRegistry 创建注册表
func ProvideRegistry(p Params) (*Registry, error) {
	r := New(p.Store, Config{
		EvictionGrace:  p.Config.Registry.EvictionGrace.Duration(),
		PairingTimeout: p.Config.Pairing.Timeout.Duration(),
	}, p.Clock, p.Metrics)

	if _, err := r.LoadRememberedDevices(); err != nil {
		_ = r.Close()
		return nil, err
	}
	p.Provider.AddConnectionReceiver(r)
	return r, nil
}

func registerLifecycle(lc fx.Lifecycle, r *Registry, p *lan.Provider) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			p.RemoveConnectionReceiver(r)
			return r.Close()
		},
	})
}
