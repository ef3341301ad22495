package certstore

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-lanconnect/config"
	"github.com/dep2p/go-lanconnect/pkg/interfaces"
)

// Params 证书存储依赖
type Params struct {
	fx.In

	Engine interfaces.Engine
	Config *config.Config
	Clock  clock.Clock
}

// Result 证书存储提供的结果
type Result struct {
	fx.Out

	Store    *Store
	Identity *Certificate
}

// Module 返回证书存储 Fx 模块
//
// 构造时先完成旧版数据迁移，再加载或生成本机身份。
func Module() fx.Option {
	return fx.Module("certstore",
		fx.Provide(Provide),
	)
}

// Provide 打开存储、迁移并准备本机身份
func Provide(p Params) (Result, error) {
	opts := Options{
		Passphrase: p.Config.Security.Passphrase,
		Clock:      p.Clock,
	}
	switch {
	case opts.Passphrase != "":
	case p.Config.Storage.InMemory:
		// 内存存储随进程结束消失，密钥同样只保存在内存中
		key, err := newRandomKey()
		if err != nil {
			return Result{}, err
		}
		opts.Key = key
	default:
		opts.KeyFile = p.Config.Security.KeyFilePath(p.Config.Storage.DataDir)
	}

	store, err := New(p.Engine, opts)
	if err != nil {
		return Result{}, err
	}
	if _, err := store.MigrateIfNeeded(); err != nil {
		return Result{}, err
	}
	id, err := store.GetOrCreateLocalIdentity(p.Config.Device.ID)
	if err != nil {
		return Result{}, err
	}
	return Result{Store: store, Identity: id}, nil
}
