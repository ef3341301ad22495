package lan

import (
	"bufio"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/dep2p/go-lanconnect/internal/core/certstore"
	"github.com/dep2p/go-lanconnect/internal/core/metrics"
	"github.com/dep2p/go-lanconnect/internal/util/logger"
	"github.com/dep2p/go-lanconnect/pkg/interfaces"
	"github.com/dep2p/go-lanconnect/pkg/packet"
	"github.com/dep2p/go-lanconnect/pkg/types"
)

// Link 一条已认证的 TLS 链路
type Link struct {
	provider *Provider
	conn     net.Conn
	info     types.DeviceInfo
	cert     *certstore.Certificate
	metrics  *metrics.Metrics
	maxLine  int
	outbound bool

	writeMu sync.Mutex

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	onClose   func(*Link)
}

var _ interfaces.Link = (*Link)(nil)

func newLink(p *Provider, conn net.Conn, info types.DeviceInfo, cert *certstore.Certificate, onClose func(*Link)) *Link {
	l := &Link{
		provider: p,
		conn:     conn,
		info:     info,
		cert:     cert,
		maxLine:  MaxControlPacketSize,
		done:     make(chan struct{}),
		onClose:  onClose,
	}
	if p != nil {
		l.metrics = p.metrics
	}
	return l
}

// DeviceID 对端设备 ID
func (l *Link) DeviceID() string { return l.info.ID }

// Info 对端通告的设备描述
func (l *Link) Info() types.DeviceInfo { return l.info.Clone() }

// Certificate 对端叶子证书
func (l *Link) Certificate() *x509.Certificate { return l.cert.X509() }

// Fingerprint 对端证书指纹
func (l *Link) Fingerprint() string { return l.cert.Fingerprint }

// Provider 创建该链路的提供者
func (l *Link) Provider() interfaces.LinkProvider { return l.provider }

// RemoteAddr 对端地址
func (l *Link) RemoteAddr() net.Addr { return l.conn.RemoteAddr() }

// LocalAddr 本端地址
func (l *Link) LocalAddr() net.Addr { return l.conn.LocalAddr() }

// Outbound 本机是否为 TCP 拨号方
func (l *Link) Outbound() bool { return l.outbound }

func (l *Link) canonical() bool {
	if l.provider == nil {
		return true
	}
	return canonicalSession(l.provider.local.Info.ID, l.info.ID, l.outbound)
}

// Done 链路关闭后关闭
func (l *Link) Done() <-chan struct{} { return l.done }

// SendPacket 序列化并写出一行
func (l *Link) SendPacket(p *packet.Packet) error {
	data, err := packet.Serialize(p)
	if err != nil {
		return err
	}

	select {
	case <-l.done:
		return types.ErrLinkClosed
	default:
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	_ = l.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	n, err := l.conn.Write(data)
	l.metrics.BytesSent(n)
	if err != nil {
		go l.Close()
		return fmt.Errorf("%w: %v", types.ErrLinkClosed, err)
	}
	return nil
}

// Start 启动读循环，只有第一次调用生效
func (l *Link) Start(handler interfaces.PacketHandler) {
	l.startOnce.Do(func() {
		go l.readLoop(handler)
	})
}

func (l *Link) readLoop(handler interfaces.PacketHandler) {
	defer l.Close()

	r := bufio.NewReaderSize(l.conn, readBufferSize)
	for {
		line, tooLong, err := readLine(r, l.maxLine)
		if tooLong {
			l.metrics.LineDiscarded()
			log.Warn("discarding oversized packet", "deviceId", logger.TruncateID(l.info.ID, 8), "limit", l.maxLine)
		} else if len(line) > 0 {
			l.metrics.BytesReceived(len(line))
			l.dispatch(handler, line)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Debug("link read failed", "deviceId", logger.TruncateID(l.info.ID, 8), "err", err)
			}
			return
		}
	}
}

func (l *Link) dispatch(handler interfaces.PacketHandler, line []byte) {
	p, err := packet.Deserialize(line)
	if err != nil {
		l.metrics.LineDiscarded()
		log.Debug("skipping unparsable packet", "deviceId", logger.TruncateID(l.info.ID, 8), "err", err)
		return
	}
	if handler != nil {
		handler(l, p)
	}
}

// Close 关闭链路
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.conn.Close()
		if l.onClose != nil {
			l.onClose(l)
		}
	})
	return err
}

// String 调试输出
func (l *Link) String() string {
	return fmt.Sprintf("lan link %s@%s", logger.TruncateID(l.info.ID, 8), l.conn.RemoteAddr())
}
