package mocks

import (
	"crypto/x509"
	"net"
	"sync"

	"github.com/dep2p/go-lanconnect/pkg/interfaces"
	"github.com/dep2p/go-lanconnect/pkg/packet"
	"github.com/dep2p/go-lanconnect/pkg/types"
)

// MockLink 模拟 Link 接口实现
type MockLink struct {
	// 基本属性
	DeviceInfo     types.DeviceInfo
	Cert           *x509.Certificate
	FingerprintStr string
	Addr           net.Addr
	LinkProvider   interfaces.LinkProvider

	// 可覆盖的方法
	SendPacketFunc func(p *packet.Packet) error
	CloseFunc      func() error

	mu      sync.Mutex
	sent    []*packet.Packet
	handler interfaces.PacketHandler
	started int
	closed  bool
	done    chan struct{}
}

var _ interfaces.Link = (*MockLink)(nil)

// NewMockLink 创建 MockLink
func NewMockLink(info types.DeviceInfo, cert *x509.Certificate, fingerprint string) *MockLink {
	return &MockLink{
		DeviceInfo:     info,
		Cert:           cert,
		FingerprintStr: fingerprint,
		Addr:           &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1716},
		done:           make(chan struct{}),
	}
}

// DeviceID 返回设备 ID
func (m *MockLink) DeviceID() string { return m.DeviceInfo.ID }

// Info 返回设备描述
func (m *MockLink) Info() types.DeviceInfo { return m.DeviceInfo.Clone() }

// Certificate 返回证书
func (m *MockLink) Certificate() *x509.Certificate { return m.Cert }

// Fingerprint 返回指纹
func (m *MockLink) Fingerprint() string { return m.FingerprintStr }

// Provider 返回提供者
func (m *MockLink) Provider() interfaces.LinkProvider { return m.LinkProvider }

// RemoteAddr 返回远端地址
func (m *MockLink) RemoteAddr() net.Addr { return m.Addr }

// SendPacket 记录发送的包
func (m *MockLink) SendPacket(p *packet.Packet) error {
	if m.SendPacketFunc != nil {
		if err := m.SendPacketFunc(p); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return types.ErrLinkClosed
	}
	m.sent = append(m.sent, p)
	return nil
}

// Start 记录处理函数
func (m *MockLink) Start(handler interfaces.PacketHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
	if m.handler == nil {
		m.handler = handler
	}
}

// Deliver 模拟收到一个包
func (m *MockLink) Deliver(p *packet.Packet) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h(m, p)
	}
}

// Close 关闭链路
func (m *MockLink) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.done)
	m.mu.Unlock()

	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Done 关闭后关闭
func (m *MockLink) Done() <-chan struct{} { return m.done }

// Sent 返回已发送的包
func (m *MockLink) Sent() []*packet.Packet {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*packet.Packet, len(m.sent))
	copy(out, m.sent)
	return out
}

// Started 返回 Start 调用次数
func (m *MockLink) Started() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// IsClosed 是否已关闭
func (m *MockLink) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
