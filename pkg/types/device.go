package types

import (
	"regexp"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// ============================================================================
//                              设备类型
// ============================================================================

// DeviceType 设备类型
type DeviceType string

const (
	DeviceTypeDesktop DeviceType = "desktop"
	DeviceTypeLaptop  DeviceType = "laptop"
	DeviceTypePhone   DeviceType = "phone"
	DeviceTypeTablet  DeviceType = "tablet"
	DeviceTypeTV      DeviceType = "tv"
)

// ParseDeviceType 解析设备类型，未知值按 desktop 处理
//
// 兼容旧协议中的 "smartphone"。
func ParseDeviceType(s string) DeviceType {
	switch strings.ToLower(s) {
	case "phone", "smartphone":
		return DeviceTypePhone
	case "laptop":
		return DeviceTypeLaptop
	case "tablet":
		return DeviceTypeTablet
	case "tv":
		return DeviceTypeTV
	default:
		return DeviceTypeDesktop
	}
}

// String 返回协议中使用的字符串
func (t DeviceType) String() string {
	return string(t)
}

// ============================================================================
//                              设备 ID
// ============================================================================

var deviceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_]{32,38}$`)

// IsValidDeviceID 校验设备 ID 格式
//
// 32 位为当前格式；38 位兼容旧版 UUID 中以下划线替换连字符的形式。
func IsValidDeviceID(id string) bool {
	return deviceIDPattern.MatchString(id)
}

// NewDeviceID 生成新的设备 ID（32 位十六进制）
func NewDeviceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ============================================================================
//                              设备信息
// ============================================================================

// DeviceInfo 设备描述信息（来自身份包）
type DeviceInfo struct {
	ID                   string
	Name                 string
	Type                 DeviceType
	ProtocolVersion      int
	IncomingCapabilities []string
	OutgoingCapabilities []string
}

// Equal 比较描述字段（ID 以外）是否一致
func (i DeviceInfo) Equal(o DeviceInfo) bool {
	return i.ID == o.ID &&
		i.Name == o.Name &&
		i.Type == o.Type &&
		i.ProtocolVersion == o.ProtocolVersion &&
		slices.Equal(i.IncomingCapabilities, o.IncomingCapabilities) &&
		slices.Equal(i.OutgoingCapabilities, o.OutgoingCapabilities)
}

// Clone 深拷贝
func (i DeviceInfo) Clone() DeviceInfo {
	i.IncomingCapabilities = slices.Clone(i.IncomingCapabilities)
	i.OutgoingCapabilities = slices.Clone(i.OutgoingCapabilities)
	return i
}
