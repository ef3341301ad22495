package lanconnect

import (
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-lanconnect/config"
	"github.com/dep2p/go-lanconnect/pkg/types"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
//
// 基础配置来自 WithConfig（默认 config.NewConfig()），随后依次应用
// 预设和逐项覆盖。
type options struct {
	config *config.Config
	preset string

	deviceID   string
	deviceName string
	deviceType string

	dataDir    *string
	inMemory   *bool
	passphrase *string

	bindAddress     *string
	discoveryPort   *int
	staticAddresses []string

	mdns    *bool
	metrics *bool

	clock     clock.Clock
	fxOptions []fx.Option
}

// toConfig 生成最终配置并验证
func (o *options) toConfig() (*config.Config, error) {
	cfg := config.CloneConfig(o.config)
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := config.ApplyPreset(cfg, o.preset); err != nil {
		return nil, err
	}

	if o.deviceID != "" {
		cfg.Device.ID = o.deviceID
	}
	if o.deviceName != "" {
		cfg.Device.Name = o.deviceName
	}
	if o.deviceType != "" {
		cfg.Device.Type = o.deviceType
	}
	if o.dataDir != nil {
		cfg.Storage.DataDir = *o.dataDir
	}
	if o.inMemory != nil {
		cfg.Storage.InMemory = *o.inMemory
	}
	if o.passphrase != nil {
		cfg.Security.Passphrase = *o.passphrase
	}
	if o.bindAddress != nil {
		cfg.Network.BindAddress = *o.bindAddress
	}
	if o.discoveryPort != nil {
		cfg.Network.DiscoveryPort = *o.discoveryPort
	}
	if len(o.staticAddresses) > 0 {
		cfg.Network.StaticAddresses = append(cfg.Network.StaticAddresses, o.staticAddresses...)
	}
	if o.mdns != nil {
		cfg.Discovery.MDNS.Enabled = *o.mdns
	}
	if o.metrics != nil {
		cfg.Metrics.Enabled = *o.metrics
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              配置来源
// ════════════════════════════════════════════════════════════════════════════

// WithConfig 使用完整配置作为基础，节点持有其副本
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		o.config = config.CloneConfig(cfg)
		return nil
	}
}

// WithPreset 应用预设（desktop / test）
func WithPreset(name string) Option {
	return func(o *options) error {
		o.preset = name
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              设备描述
// ════════════════════════════════════════════════════════════════════════════

// WithDeviceID 固定本机设备 ID（32 位小写十六进制或 UUID 形式）
func WithDeviceID(id string) Option {
	return func(o *options) error {
		if !types.IsValidDeviceID(id) {
			return fmt.Errorf("%w: %q", types.ErrInvalidDeviceID, id)
		}
		o.deviceID = id
		return nil
	}
}

// WithDeviceName 设置本机显示名称
func WithDeviceName(name string) Option {
	return func(o *options) error {
		if name == "" {
			return errors.New("device name is empty")
		}
		o.deviceName = name
		return nil
	}
}

// WithDeviceType 设置本机设备类型（desktop, laptop, phone, tablet, tv）
func WithDeviceType(t string) Option {
	return func(o *options) error {
		o.deviceType = t
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              存储与安全
// ════════════════════════════════════════════════════════════════════════════

// WithDataDir 设置数据目录
func WithDataDir(dir string) Option {
	return func(o *options) error {
		o.dataDir = &dir
		return nil
	}
}

// WithInMemoryStorage 使用内存存储，进程退出后身份与信任列表丢失
func WithInMemoryStorage() Option {
	return func(o *options) error {
		v := true
		o.inMemory = &v
		return nil
	}
}

// WithPassphrase 以口令派生证书存储加密密钥
func WithPassphrase(passphrase string) Option {
	return func(o *options) error {
		o.passphrase = &passphrase
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              网络
// ════════════════════════════════════════════════════════════════════════════

// WithBindAddress 设置 UDP/TCP 绑定地址
func WithBindAddress(addr string) Option {
	return func(o *options) error {
		o.bindAddress = &addr
		return nil
	}
}

// WithDiscoveryPort 设置 UDP 发现端口（0 由系统分配）
func WithDiscoveryPort(port int) Option {
	return func(o *options) error {
		o.discoveryPort = &port
		return nil
	}
}

// WithStaticAddresses 追加单播身份的目标地址（ip 或 ip:port）
func WithStaticAddresses(addrs ...string) Option {
	return func(o *options) error {
		o.staticAddresses = append(o.staticAddresses, addrs...)
		return nil
	}
}

// WithMDNS 开关 mDNS 补充发现
func WithMDNS(enable bool) Option {
	return func(o *options) error {
		o.mdns = &enable
		return nil
	}
}

// WithMetrics 开关 Prometheus 指标
func WithMetrics(enable bool) Option {
	return func(o *options) error {
		o.metrics = &enable
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              高级选项
// ════════════════════════════════════════════════════════════════════════════

// WithClock 注入时钟（测试中使用 clock.NewMock）
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		if clk == nil {
			return errors.New("clock is nil")
		}
		o.clock = clk
		return nil
	}
}

// WithFxOptions 追加 Fx 选项（替换或装饰组件）
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.fxOptions = append(o.fxOptions, opts...)
		return nil
	}
}
