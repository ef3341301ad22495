package config

import (
	"fmt"

	"github.com/dep2p/go-lanconnect/pkg/types"
)

// DeviceConfig 本机设备描述
//
// ID 为空时由证书存储首次启动时生成并持久化。
type DeviceConfig struct {
	// ID 设备 ID（32-38 位字母数字或下划线）
	ID string `json:"id,omitempty"`

	// Name 设备名称
	Name string `json:"name"`

	// Type 设备类型: desktop/laptop/phone/tablet/tv
	Type string `json:"type"`

	// IncomingCapabilities 可接收的包类型
	IncomingCapabilities []string `json:"incoming_capabilities,omitempty"`

	// OutgoingCapabilities 可发送的包类型
	OutgoingCapabilities []string `json:"outgoing_capabilities,omitempty"`
}

// DefaultDeviceConfig 返回默认设备配置
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		Name: "lanconnect",
		Type: string(types.DeviceTypeDesktop),
	}
}

// Validate 验证设备配置
func (c *DeviceConfig) Validate() error {
	if c.ID != "" && !types.IsValidDeviceID(c.ID) {
		return fmt.Errorf("device: %w: %q", types.ErrInvalidDeviceID, c.ID)
	}
	if c.Name == "" {
		return fmt.Errorf("device: name cannot be empty")
	}
	if string(types.ParseDeviceType(c.Type)) != c.Type && c.Type != "smartphone" {
		return fmt.Errorf("device: unknown type %q", c.Type)
	}
	return nil
}
