package lan

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-lanconnect/config"
	"github.com/dep2p/go-lanconnect/internal/core/certstore"
	"github.com/dep2p/go-lanconnect/internal/core/metrics"
	"github.com/dep2p/go-lanconnect/pkg/packet"
	"github.com/dep2p/go-lanconnect/pkg/types"
)

// Params 链路提供者依赖
type Params struct {
	fx.In

	Config   *config.Config
	Identity *certstore.Certificate
	Store    *certstore.Store
	Clock    clock.Clock
	Metrics  *metrics.Metrics `optional:"true"`
}

// Module 返回链路提供者 Fx 模块
func Module() fx.Option {
	return fx.Module("lan",
		fx.Provide(ProvideProvider),
		fx.Invoke(registerLifecycle),
	)
}

// LocalIdentityFromConfig 由设备配置与本机证书组装本机身份
func LocalIdentityFromConfig(dev config.DeviceConfig, cert *certstore.Certificate) LocalIdentity {
	return LocalIdentity{
		Info: types.DeviceInfo{
			ID:                   cert.DeviceID,
			Name:                 dev.Name,
			Type:                 types.ParseDeviceType(dev.Type),
			ProtocolVersion:      packet.ProtocolVersion,
			IncomingCapabilities: dev.IncomingCapabilities,
			OutgoingCapabilities: dev.OutgoingCapabilities,
		},
		Certificate: cert,
	}
}

// ProvideProvider 创建链路提供者
func ProvideProvider(p Params) (*Provider, error) {
	local := LocalIdentityFromConfig(p.Config.Device, p.Identity)
	return New(ConfigFromUnified(p.Config), local, p.Store, p.Clock, p.Metrics)
}

func registerLifecycle(lc fx.Lifecycle, p *Provider) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return p.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return p.Stop()
		},
	})
}
