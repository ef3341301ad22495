package interfaces

import (
	"crypto/x509"
	"net"

	"github.com/dep2p/go-lanconnect/pkg/packet"
	"github.com/dep2p/go-lanconnect/pkg/types"
)

// ============================================================================
//                              链路
// ============================================================================

// PacketHandler 链路入站数据包回调
//
// 同一链路上的回调按接收顺序串行调用。
type PacketHandler func(link Link, p *packet.Packet)

// Link 到对端设备的一条已认证 TLS 链路
type Link interface {
	// DeviceID 对端设备 ID（等于证书 CN）
	DeviceID() string

	// Info 对端在握手时通告的身份信息
	Info() types.DeviceInfo

	// Certificate 对端叶子证书
	Certificate() *x509.Certificate

	// Fingerprint 对端证书 SHA-256 指纹（十六进制）
	Fingerprint() string

	// Provider 创建该链路的提供者
	Provider() LinkProvider

	// RemoteAddr 对端地址
	RemoteAddr() net.Addr

	// SendPacket 序列化并发送数据包（线程安全）
	SendPacket(p *packet.Packet) error

	// Start 启动读循环，只有第一次调用生效
	Start(handler PacketHandler)

	// Close 关闭链路，多次调用安全
	Close() error

	// Done 链路关闭后关闭的 channel
	Done() <-chan struct{}
}

// LinkProvider 链路提供者
type LinkProvider interface {
	// Name 提供者名称
	Name() string

	// PayloadPortRange 负载传输端口段
	PayloadPortRange() (min, max int)
}

// ConnectionReceiver 链路事件接收者
type ConnectionReceiver interface {
	// OnConnectionReceived 新链路建立（已完成证书校验）
	OnConnectionReceived(link Link)

	// OnConnectionLost 链路关闭
	OnConnectionLost(link Link)
}
