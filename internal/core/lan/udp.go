package lan

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	temperr "github.com/jbenet/go-temp-err-catcher"

	"github.com/dep2p/go-lanconnect/internal/core/metrics"
	"github.com/dep2p/go-lanconnect/pkg/packet"
	"github.com/dep2p/go-lanconnect/pkg/types"
)

// 数据报被丢弃的内部原因
var (
	errOwnDatagram   = errors.New("own identity datagram")
	errAlreadyLinked = errors.New("device already linked")
	errOversize      = errors.New("datagram exceeds size limit")
	errDuplicate     = errors.New("duplicate session for linked device")
)

func listenUDP(ctx context.Context, bind string, port int) (net.PacketConn, error) {
	lc := net.ListenConfig{Control: udpControl}
	return lc.ListenPacket(ctx, "udp4", net.JoinHostPort(bind, strconv.Itoa(port)))
}

// udpLoop 接收发现数据报
func (p *Provider) udpLoop(ctx context.Context) error {
	buf := make([]byte, MaxDiscoveryPacketSize+1)
	var catcher temperr.TempErrCatcher

	for {
		n, from, err := p.udp.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if catcher.IsTemporary(err) {
				continue
			}
			return fmt.Errorf("discovery read: %w", err)
		}
		catcher.Reset()

		addr, ok := from.(*net.UDPAddr)
		if !ok {
			continue
		}
		data := append([]byte(nil), buf[:n]...)
		if err := p.handleDatagram(data, addr); err != nil {
			log.Debug("identity datagram dropped", "from", addr.String(), "reason", err)
		}
	}
}

// handleDatagram 处理一个发现数据报
//
// 只做过滤与登记，连接建立交给独立 goroutine。
func (p *Provider) handleDatagram(data []byte, from *net.UDPAddr) error {
	p.metrics.DatagramReceived()

	if len(data) > MaxDiscoveryPacketSize {
		p.metrics.DatagramDropped(metrics.DropOversize)
		return errOversize
	}
	pkt, err := packet.Deserialize(data)
	if err != nil {
		p.metrics.DatagramDropped(metrics.DropMalformed)
		return err
	}
	if pkt.Type != packet.TypeIdentity {
		p.metrics.DatagramDropped(metrics.DropNotIdentity)
		return fmt.Errorf("%w: unexpected packet type %q", types.ErrParse, pkt.Type)
	}
	ann, err := parseIdentity(pkt)
	if err != nil {
		p.metrics.DatagramDropped(metrics.DropInvalidID)
		return err
	}
	peerID := ann.Info.ID
	if peerID == p.local.Info.ID {
		p.metrics.DatagramDropped(metrics.DropOwnID)
		return errOwnDatagram
	}
	if p.RateLimitByDeviceID(peerID) {
		p.metrics.DatagramDropped(metrics.DropRateLimited)
		return fmt.Errorf("%w: %s", types.ErrRateLimited, peerID)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return net.ErrClosed
	}
	_, linked := p.visible[peerID]
	_, dialing := p.dialing[peerID]
	if linked || dialing {
		p.mu.Unlock()
		p.metrics.DatagramDropped(metrics.DropLinked)
		return errAlreadyLinked
	}

	server := isTLSServer(p.local.Info.ID, peerID)
	if !server {
		p.dialing[peerID] = struct{}{}
	}
	p.connWg.Add(1)
	p.mu.Unlock()

	if server {
		// 由对端拨入
		go func() {
			defer p.connWg.Done()
			if err := p.SendIdentityTo(from); err != nil {
				log.Debug("identity reply failed", "to", from.String(), "err", err)
			}
		}()
		return nil
	}

	go func() {
		defer p.connWg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.dialing, peerID)
			p.mu.Unlock()
		}()
		if _, err := p.dial(ann, from.IP); err != nil {
			log.Warn("outgoing connection failed", "deviceId", peerID, "addr", from.IP.String(), "err", err)
		}
	}()
	return nil
}

// ============================================================================
//                              发送身份
// ============================================================================

// SendIdentityTo 向指定地址发送单播身份数据报
func (p *Provider) SendIdentityTo(addr *net.UDPAddr) error {
	p.mu.Lock()
	udp := p.udp
	p.mu.Unlock()
	if udp == nil {
		return ErrNotStarted
	}

	data, err := packet.Serialize(p.identityPacket())
	if err != nil {
		return err
	}
	_, err = udp.WriteTo(data, addr)
	return err
}

// Broadcast 立即广播身份（令牌桶限速）
func (p *Provider) Broadcast() error {
	if !p.broadcastLimiter.Allow() {
		return fmt.Errorf("%w: broadcast", types.ErrRateLimited)
	}
	return p.broadcast()
}

func (p *Provider) broadcast() error {
	port := p.cfg.DiscoveryPort
	if port == 0 {
		if addr := p.UDPAddr(); addr != nil {
			port = addr.Port
		}
	}

	var targets []*net.UDPAddr
	if ip := net.ParseIP(p.cfg.BroadcastAddress); ip != nil {
		targets = append(targets, &net.UDPAddr{IP: ip, Port: port})
	}
	for _, s := range p.cfg.StaticAddresses {
		addr, err := resolveStatic(s, port)
		if err != nil {
			log.Warn("invalid static address", "addr", s, "err", err)
			continue
		}
		targets = append(targets, addr)
	}

	var firstErr error
	for _, t := range targets {
		if err := p.SendIdentityTo(t); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func resolveStatic(s string, defaultPort int) (*net.UDPAddr, error) {
	if ip := net.ParseIP(s); ip != nil {
		return &net.UDPAddr{IP: ip, Port: defaultPort}, nil
	}
	return net.ResolveUDPAddr("udp4", s)
}

// broadcastLoop 周期广播
func (p *Provider) broadcastLoop(ctx context.Context) error {
	ticker := p.clock.Ticker(p.cfg.BroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.broadcast(); err != nil {
				log.Debug("periodic broadcast failed", "err", err)
			}
		}
	}
}
