package mdns

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-lanconnect/config"
	"github.com/dep2p/go-lanconnect/internal/core/certstore"
	"github.com/dep2p/go-lanconnect/internal/core/lan"
)

// Params mDNS 依赖
type Params struct {
	fx.In

	Config   *config.Config
	Identity *certstore.Certificate
	Provider *lan.Provider
	Clock    clock.Clock
}

// Module 返回 mDNS Fx 模块；配置关闭时不做任何事
func Module() fx.Option {
	return fx.Module("discovery.mdns",
		fx.Invoke(register),
	)
}

func register(lc fx.Lifecycle, p Params) {
	mc := p.Config.Discovery.MDNS
	if !mc.Enabled {
		return
	}
	local := lan.LocalIdentityFromConfig(p.Config.Device, p.Identity).Info

	var d *Discoverer
	lc.Append(fx.Hook{
		// 链路提供者先启动，这里才能拿到实际绑定的发现端口
		OnStart: func(ctx context.Context) error {
			port := p.Config.Network.DiscoveryPort
			if addr := p.Provider.UDPAddr(); addr != nil {
				port = addr.Port
			}
			d = New(Config{Interval: mc.Interval.Duration(), Interface: mc.Interface}, local, port, p.Provider, p.Clock)
			return d.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			if d == nil {
				return nil
			}
			return d.Stop()
		},
	})
}
