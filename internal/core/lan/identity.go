package lan

import (
	"fmt"

	"github.com/dep2p/go-lanconnect/pkg/packet"
	"github.com/dep2p/go-lanconnect/pkg/types"
)

// 身份包字段
const (
	fieldDeviceID        = "deviceId"
	fieldDeviceName      = "deviceName"
	fieldDeviceType      = "deviceType"
	fieldProtocolVersion = "protocolVersion"
	fieldIncoming        = "incomingCapabilities"
	fieldOutgoing        = "outgoingCapabilities"
	fieldTCPPort         = "tcpPort"
	fieldFingerprint     = "certificateFingerprint"
)

// announcement 从身份包解析出的通告
type announcement struct {
	Info        types.DeviceInfo
	TCPPort     int
	Fingerprint string
}

// newIdentityPacket 构造本机身份包
func newIdentityPacket(info types.DeviceInfo, tcpPort int, fingerprint string) *packet.Packet {
	p := packet.New(packet.TypeIdentity)
	p.Body.SetString(fieldDeviceID, info.ID)
	p.Body.SetString(fieldDeviceName, info.Name)
	p.Body.SetString(fieldDeviceType, info.Type.String())
	p.Body.SetInt(fieldProtocolVersion, packet.ProtocolVersion)
	p.Body.SetStringList(fieldIncoming, info.IncomingCapabilities)
	p.Body.SetStringList(fieldOutgoing, info.OutgoingCapabilities)
	if tcpPort > 0 {
		p.Body.SetInt(fieldTCPPort, tcpPort)
	}
	if fingerprint != "" {
		p.Body.SetString(fieldFingerprint, fingerprint)
	}
	return p
}

// parseIdentity 解析身份包
func parseIdentity(p *packet.Packet) (announcement, error) {
	if p.Type != packet.TypeIdentity {
		return announcement{}, fmt.Errorf("%w: unexpected packet type %q", types.ErrParse, p.Type)
	}
	id := p.Body.GetString(fieldDeviceID)
	if !types.IsValidDeviceID(id) {
		return announcement{}, fmt.Errorf("%w: %q", types.ErrInvalidDeviceID, id)
	}
	return announcement{
		Info: types.DeviceInfo{
			ID:                   id,
			Name:                 p.Body.GetString(fieldDeviceName),
			Type:                 types.ParseDeviceType(p.Body.GetString(fieldDeviceType)),
			ProtocolVersion:      p.Body.GetIntOr(fieldProtocolVersion, 0),
			IncomingCapabilities: p.Body.GetStringList(fieldIncoming),
			OutgoingCapabilities: p.Body.GetStringList(fieldOutgoing),
		},
		TCPPort:     p.Body.GetIntOr(fieldTCPPort, 0),
		Fingerprint: p.Body.GetString(fieldFingerprint),
	}, nil
}

// IdentityInfo 从身份包中提取设备描述（供注册表处理链路上的身份包）
func IdentityInfo(p *packet.Packet) (types.DeviceInfo, error) {
	a, err := parseIdentity(p)
	if err != nil {
		return types.DeviceInfo{}, err
	}
	return a.Info, nil
}
