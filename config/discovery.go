package config

import (
	"fmt"
	"time"
)

// DiscoveryConfig 补充发现配置
type DiscoveryConfig struct {
	MDNS MDNSConfig `json:"mdns"`
}

// MDNSConfig mDNS 发现配置
type MDNSConfig struct {
	// Enabled 是否启用 mDNS 通告与浏览
	Enabled bool `json:"enabled"`

	// Interval 浏览间隔
	Interval Duration `json:"interval"`

	// Interface 限定网卡名，空表示默认
	Interface string `json:"interface,omitempty"`
}

// DefaultDiscoveryConfig 返回默认发现配置
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		MDNS: MDNSConfig{
			Enabled:  true,
			Interval: Duration(30 * time.Second),
		},
	}
}

// Validate 验证发现配置
func (c *DiscoveryConfig) Validate() error {
	if c.MDNS.Enabled && c.MDNS.Interval < Duration(time.Second) {
		return fmt.Errorf("discovery: mdns interval must be at least 1s")
	}
	return nil
}
