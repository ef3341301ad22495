package lanconnect

import (
	"github.com/dep2p/go-lanconnect/internal/core/registry"
	"github.com/dep2p/go-lanconnect/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              类型别名
// ════════════════════════════════════════════════════════════════════════════

// Device 远端设备快照
type Device = registry.Device

// DeviceInfo 设备描述
type DeviceInfo = types.DeviceInfo

// PairState 配对状态
type PairState = types.PairState

// DeviceListChangedFunc 设备列表变化回调
type DeviceListChangedFunc = registry.DeviceListChangedFunc

// PairingStateFunc 配对状态回调，reason 为可读原因
type PairingStateFunc = registry.PairingStateFunc

// PacketFunc 入站业务包回调
type PacketFunc = registry.PacketFunc
