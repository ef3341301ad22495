package registry

import (
	"github.com/dep2p/go-lanconnect/pkg/packet"
	"github.com/dep2p/go-lanconnect/pkg/types"
)

// DeviceListChangedEvent 设备集合或设备描述、可达性发生变化
type DeviceListChangedEvent struct{}

// PairingStateChangedEvent 配对状态变化
type PairingStateChangedEvent struct {
	DeviceID string
	State    types.PairState
	Reason   string
}

// PacketEvent 已配对设备发来的业务包
type PacketEvent struct {
	DeviceID string
	Packet   *packet.Packet
}

// DeviceListChangedFunc 设备列表变化回调
type DeviceListChangedFunc func()

// PairingStateFunc 配对状态回调
type PairingStateFunc func(deviceID string, state types.PairState, reason string)

// PacketFunc 入站业务包回调
type PacketFunc func(deviceID string, p *packet.Packet)
