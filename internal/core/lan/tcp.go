package lan

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	temperr "github.com/jbenet/go-temp-err-catcher"

	"github.com/dep2p/go-lanconnect/pkg/packet"
	"github.com/dep2p/go-lanconnect/pkg/types"
)

// listenTCPRange 监听端口段内第一个可用端口
func listenTCPRange(ctx context.Context, bind string, min, max int) (net.Listener, error) {
	lc := net.ListenConfig{Control: tcpControl}
	var lastErr error
	for port := min; port <= max; port++ {
		ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(bind, strconv.Itoa(port)))
		if err == nil {
			return ln, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no free tcp port in %d-%d: %w", min, max, lastErr)
}

// ============================================================================
//                              入站
// ============================================================================

// acceptLoop 接受入站连接，临时错误退避重试
func (p *Provider) acceptLoop(ctx context.Context) error {
	var catcher temperr.TempErrCatcher
	for {
		conn, err := p.tcp.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if catcher.IsTemporary(err) {
				log.Debug("temporary accept error", "err", err)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		catcher.Reset()

		p.connWg.Add(1)
		go func() {
			defer p.connWg.Done()
			if _, err := p.handleIncoming(conn); err != nil {
				log.Warn("incoming connection rejected", "remote", conn.RemoteAddr().String(), "err", err)
			}
		}()
	}
}

// bufferedConn 先读出 bufio 中已缓冲的数据，再读底层连接
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(b []byte) (int, error) {
	return c.r.Read(b)
}

// handleIncoming 读取明文身份行并完成 TLS 握手
func (p *Provider) handleIncoming(conn net.Conn) (*Link, error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.HandshakeTimeout)
	defer cancel()

	deadline, _ := ctx.Deadline()
	_ = conn.SetDeadline(deadline)

	r := bufio.NewReaderSize(conn, 4096)
	line, tooLong, err := readLine(r, MaxControlPacketSize)
	if err != nil || tooLong {
		_ = conn.Close()
		if tooLong {
			return nil, fmt.Errorf("%w: identity line too long", types.ErrParse)
		}
		return nil, fmt.Errorf("read identity: %w", err)
	}

	pkt, err := packet.Deserialize(line)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	ann, err := parseIdentity(pkt)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if ann.Info.ID == p.local.Info.ID {
		_ = conn.Close()
		return nil, errOwnDatagram
	}
	if p.hasCanonicalLink(ann.Info.ID) && !canonicalSession(p.local.Info.ID, ann.Info.ID, false) {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s", errDuplicate, ann.Info.ID)
	}

	return p.upgrade(ctx, &bufferedConn{Conn: conn, r: r}, ann, false)
}

// ============================================================================
//                              出站
// ============================================================================

// dial 连接对端通告的 TCP 端口，发送明文身份后升级为 TLS
func (p *Provider) dial(ann announcement, ip net.IP) (*Link, error) {
	if p.hasCanonicalLink(ann.Info.ID) && !canonicalSession(p.local.Info.ID, ann.Info.ID, true) {
		return nil, fmt.Errorf("%w: %s", errDuplicate, ann.Info.ID)
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.HandshakeTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.tcpAddr(ip, ann.TCPPort))
	if err != nil {
		return nil, err
	}
	deadline, _ := ctx.Deadline()
	_ = conn.SetDeadline(deadline)

	data, err := packet.Serialize(p.identityPacket())
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := conn.Write(data); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send identity: %w", err)
	}

	return p.upgrade(ctx, conn, ann, true)
}

// ============================================================================
//                              TLS 升级
// ============================================================================

// upgrade 按设备 ID 顺序选择 TLS 角色，握手并校验证书
//
// outbound 表示本机是 TCP 拨号方，决定会话是否为规范会话。
func (p *Provider) upgrade(ctx context.Context, conn net.Conn, ann announcement, outbound bool) (*Link, error) {
	peerID := ann.Info.ID
	server := isTLSServer(p.local.Info.ID, peerID)
	role := roleClient
	var tconn *tls.Conn
	if server {
		role = roleServer
		tconn = tls.Server(conn, p.tlsConf)
	} else {
		tconn = tls.Client(conn, p.tlsConf)
	}

	if err := tconn.HandshakeContext(ctx); err != nil {
		p.metrics.Handshake(role, false)
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s: %v", types.ErrHandshakeFailure, peerID, err)
	}

	cert, err := verifyPeer(tconn.ConnectionState(), peerID, ann.Fingerprint, p.trust, p.clock.Now())
	if err != nil {
		p.metrics.Handshake(role, false)
		_ = tconn.Close()
		return nil, err
	}
	p.metrics.Handshake(role, true)

	// TLS 之上重发身份，对端以此更新设备描述
	data, err := packet.Serialize(p.identityPacket())
	if err == nil {
		_, err = tconn.Write(data)
	}
	if err != nil {
		_ = tconn.Close()
		return nil, fmt.Errorf("send identity over tls: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})

	l := newLink(p, tconn, ann.Info, cert, nil)
	l.outbound = outbound
	if err := p.addLink(l); err != nil {
		return nil, err
	}
	return l, nil
}
