// Package config 提供统一的配置管理
//
// 主 Config 结构体嵌入所有子配置，每个子配置在独立文件中定义，
// 支持从 JSON 加载以及预设（desktop/test）。
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Device.Name = "workstation"
//	cfg.Storage.DataDir = "/var/lib/lanconnect"
//
//	// 从 JSON 加载
//	cfg, err := config.FromJSON(data)
package config

// Config 是 lanconnect 的完整配置结构
//
//   - Device: 本机设备描述
//   - Network: 发现端口、TCP 端口段、广播
//   - RateLimit: 发现报文按设备限流
//   - Security: 证书存储加密与握手
//   - Pairing: 配对超时
//   - Registry: 设备注册表
//   - Storage: 持久化目录
//   - Discovery: mDNS 补充发现
//   - Metrics: 指标
type Config struct {
	Device    DeviceConfig    `json:"device"`
	Network   NetworkConfig   `json:"network"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Security  SecurityConfig  `json:"security"`
	Pairing   PairingConfig   `json:"pairing"`
	Registry  RegistryConfig  `json:"registry"`
	Storage   StorageConfig   `json:"storage"`
	Discovery DiscoveryConfig `json:"discovery"`
	Metrics   MetricsConfig   `json:"metrics"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Device:    DefaultDeviceConfig(),
		Network:   DefaultNetworkConfig(),
		RateLimit: DefaultRateLimitConfig(),
		Security:  DefaultSecurityConfig(),
		Pairing:   DefaultPairingConfig(),
		Registry:  DefaultRegistryConfig(),
		Storage:   DefaultStorageConfig(),
		Discovery: DefaultDiscoveryConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&c.Device,
		&c.Network,
		&c.RateLimit,
		&c.Security,
		&c.Pairing,
		&c.Registry,
		&c.Storage,
		&c.Discovery,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}
