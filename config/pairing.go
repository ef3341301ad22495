package config

import (
	"fmt"
	"time"
)

// PairingConfig 配对配置
type PairingConfig struct {
	// Timeout 配对请求等待应答的时长
	Timeout Duration `json:"timeout"`
}

// DefaultPairingConfig 返回默认配对配置
func DefaultPairingConfig() PairingConfig {
	return PairingConfig{Timeout: Duration(30 * time.Second)}
}

// Validate 验证配对配置
func (c *PairingConfig) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("pairing: timeout must be positive")
	}
	return nil
}

// RegistryConfig 设备注册表配置
type RegistryConfig struct {
	// EvictionGrace 未配对设备失去最后一条链路后保留的时长
	EvictionGrace Duration `json:"eviction_grace"`
}

// DefaultRegistryConfig 返回默认注册表配置
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{EvictionGrace: Duration(time.Second)}
}

// Validate 验证注册表配置
func (c *RegistryConfig) Validate() error {
	if c.EvictionGrace < 0 {
		return fmt.Errorf("registry: eviction_grace cannot be negative")
	}
	return nil
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enabled 是否采集 Prometheus 指标
	Enabled bool `json:"enabled"`

	// ListenAddress /metrics 监听地址，空表示不暴露
	ListenAddress string `json:"listen_address,omitempty"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Enabled: true}
}
