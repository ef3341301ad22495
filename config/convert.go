package config

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FromJSON 从 JSON 数据创建配置
//
// 未出现的字段保留默认值。
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// ToJSON 将配置编码为缩进 JSON
func ToJSON(cfg *Config) ([]byte, error) {
	return json.MarshalIndent(cfg, "", "  ")
}

// ApplyPreset 应用预设配置
//
// 支持的预设：
//   - "desktop": 默认
//   - "test": 内存存储、系统分配端口、关闭 mDNS 与周期广播
func ApplyPreset(cfg *Config, presetName string) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	switch presetName {
	case "", "desktop":
		return nil
	case "test":
		cfg.Storage.InMemory = true
		cfg.Network.DiscoveryPort = 0
		cfg.Network.TCPPortMin = 0
		cfg.Network.TCPPortMax = 0
		cfg.Network.BroadcastAddress = "127.0.0.1"
		cfg.Network.BroadcastInterval = 0
		cfg.Discovery.MDNS.Enabled = false
		cfg.Metrics.Enabled = false
		return nil
	default:
		return fmt.Errorf("unknown preset: %s", presetName)
	}
}

// CloneConfig 深拷贝配置
func CloneConfig(cfg *Config) *Config {
	if cfg == nil {
		return nil
	}
	clone := *cfg
	clone.Device.IncomingCapabilities = append([]string(nil), cfg.Device.IncomingCapabilities...)
	clone.Device.OutgoingCapabilities = append([]string(nil), cfg.Device.OutgoingCapabilities...)
	clone.Network.StaticAddresses = append([]string(nil), cfg.Network.StaticAddresses...)
	return &clone
}
