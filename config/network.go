package config

import (
	"fmt"
	"net"
	"time"
)

// 默认端口
const (
	DefaultDiscoveryPort  = 1716
	DefaultTCPPortMin     = 1716
	DefaultTCPPortMax     = 1738
	DefaultPayloadPortMin = 1739
	DefaultPayloadPortMax = 1764
)

// NetworkConfig 网络配置
//
// 端口取 0 表示由系统分配（用于测试）。
type NetworkConfig struct {
	// BindAddress 监听地址，空表示所有接口
	BindAddress string `json:"bind_address,omitempty"`

	// DiscoveryPort UDP 发现端口
	DiscoveryPort int `json:"discovery_port"`

	// TCPPortMin/TCPPortMax TCP 监听端口段，取段内第一个可用端口
	TCPPortMin int `json:"tcp_port_min"`
	TCPPortMax int `json:"tcp_port_max"`

	// PayloadPortMin/PayloadPortMax 负载传输端口段（由上层插件使用）
	PayloadPortMin int `json:"payload_port_min"`
	PayloadPortMax int `json:"payload_port_max"`

	// BroadcastAddress 身份广播目标地址
	BroadcastAddress string `json:"broadcast_address"`

	// BroadcastInterval 周期广播间隔，0 表示只在启动和手动触发时广播
	BroadcastInterval Duration `json:"broadcast_interval"`

	// BroadcastBurst 手动广播的令牌桶容量（每秒补充 1 个）
	BroadcastBurst int `json:"broadcast_burst"`

	// StaticAddresses 额外单播身份的地址（无法广播的网络）
	StaticAddresses []string `json:"static_addresses,omitempty"`

	// HandshakeTimeout 明文身份行与 TLS 握手的总超时
	HandshakeTimeout Duration `json:"handshake_timeout"`
}

// DefaultNetworkConfig 返回默认网络配置
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		DiscoveryPort:     DefaultDiscoveryPort,
		TCPPortMin:        DefaultTCPPortMin,
		TCPPortMax:        DefaultTCPPortMax,
		PayloadPortMin:    DefaultPayloadPortMin,
		PayloadPortMax:    DefaultPayloadPortMax,
		BroadcastAddress:  "255.255.255.255",
		BroadcastInterval: Duration(time.Minute),
		BroadcastBurst:    3,
		HandshakeTimeout:  Duration(10 * time.Second),
	}
}

// Validate 验证网络配置
func (c *NetworkConfig) Validate() error {
	if !validPort(c.DiscoveryPort) {
		return fmt.Errorf("network: invalid discovery_port %d", c.DiscoveryPort)
	}
	if !validPort(c.TCPPortMin) || !validPort(c.TCPPortMax) || c.TCPPortMin > c.TCPPortMax {
		return fmt.Errorf("network: invalid tcp port range %d-%d", c.TCPPortMin, c.TCPPortMax)
	}
	if !validPort(c.PayloadPortMin) || !validPort(c.PayloadPortMax) || c.PayloadPortMin > c.PayloadPortMax {
		return fmt.Errorf("network: invalid payload port range %d-%d", c.PayloadPortMin, c.PayloadPortMax)
	}
	if net.ParseIP(c.BroadcastAddress) == nil {
		return fmt.Errorf("network: invalid broadcast_address %q", c.BroadcastAddress)
	}
	if c.BindAddress != "" && net.ParseIP(c.BindAddress) == nil {
		return fmt.Errorf("network: invalid bind_address %q", c.BindAddress)
	}
	for _, addr := range c.StaticAddresses {
		if net.ParseIP(addr) == nil {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				return fmt.Errorf("network: invalid static address %q", addr)
			}
		}
	}
	if c.BroadcastInterval < 0 {
		return fmt.Errorf("network: broadcast_interval cannot be negative")
	}
	if c.BroadcastBurst <= 0 {
		return fmt.Errorf("network: broadcast_burst must be positive")
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("network: handshake_timeout must be positive")
	}
	return nil
}

func validPort(p int) bool {
	return p >= 0 && p <= 65535
}

// RateLimitConfig 发现报文限流配置
type RateLimitConfig struct {
	// Cooldown 同一设备 ID 两次被处理的最小间隔
	Cooldown Duration `json:"cooldown"`

	// MaxEntries 限流表最大条目数（LRU 淘汰）
	MaxEntries int `json:"max_entries"`
}

// DefaultRateLimitConfig 返回默认限流配置
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Cooldown:   Duration(time.Second),
		MaxEntries: 256,
	}
}

// Validate 验证限流配置
func (c *RateLimitConfig) Validate() error {
	if c.Cooldown < 0 {
		return fmt.Errorf("rate_limit: cooldown cannot be negative")
	}
	if c.MaxEntries <= 0 {
		return fmt.Errorf("rate_limit: max_entries must be positive")
	}
	return nil
}
