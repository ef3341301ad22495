package lan

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-lanconnect/config"
	"github.com/dep2p/go-lanconnect/internal/core/certstore"
	"github.com/dep2p/go-lanconnect/internal/core/metrics"
	"github.com/dep2p/go-lanconnect/internal/util/logger"
	"github.com/dep2p/go-lanconnect/pkg/interfaces"
	"github.com/dep2p/go-lanconnect/pkg/packet"
	"github.com/dep2p/go-lanconnect/pkg/types"
)

var log = logger.Logger("lan")

// 提供者状态错误
var (
	ErrNotStarted     = errors.New("lan provider not started")
	ErrAlreadyStarted = errors.New("lan provider already started")
)

// ============================================================================
//                              配置
// ============================================================================

// Config 链路提供者配置
type Config struct {
	BindAddress       string
	DiscoveryPort     int
	TCPPortMin        int
	TCPPortMax        int
	PayloadPortMin    int
	PayloadPortMax    int
	BroadcastAddress  string
	BroadcastInterval time.Duration
	BroadcastBurst    int
	StaticAddresses   []string
	HandshakeTimeout  time.Duration
	RateLimitCooldown time.Duration
	RateLimitEntries  int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return ConfigFromUnified(config.NewConfig())
}

// ConfigFromUnified 从统一配置创建
func ConfigFromUnified(cfg *config.Config) Config {
	n := cfg.Network
	return Config{
		BindAddress:       n.BindAddress,
		DiscoveryPort:     n.DiscoveryPort,
		TCPPortMin:        n.TCPPortMin,
		TCPPortMax:        n.TCPPortMax,
		PayloadPortMin:    n.PayloadPortMin,
		PayloadPortMax:    n.PayloadPortMax,
		BroadcastAddress:  n.BroadcastAddress,
		BroadcastInterval: n.BroadcastInterval.Duration(),
		BroadcastBurst:    n.BroadcastBurst,
		StaticAddresses:   slices.Clone(n.StaticAddresses),
		HandshakeTimeout:  n.HandshakeTimeout.Duration(),
		RateLimitCooldown: cfg.RateLimit.Cooldown.Duration(),
		RateLimitEntries:  cfg.RateLimit.MaxEntries,
	}
}

// LocalIdentity 本机身份
type LocalIdentity struct {
	Info        types.DeviceInfo
	Certificate *certstore.Certificate
}

// ============================================================================
//                              Provider
// ============================================================================

// Provider 局域网链路提供者
type Provider struct {
	cfg     Config
	local   LocalIdentity
	tlsConf *tls.Config
	trust   TrustSource
	clock   clock.Clock
	metrics *metrics.Metrics

	limiter          *rateLimiter
	broadcastLimiter *rate.Limiter

	mu        sync.Mutex
	visible   map[string]*Link
	dialing   map[string]struct{}
	receivers []interfaces.ConnectionReceiver
	udp       net.PacketConn
	tcp       net.Listener
	started   bool
	closed    bool

	cancel context.CancelFunc
	ctx    context.Context
	group  *errgroup.Group
	connWg sync.WaitGroup
}

var _ interfaces.LinkProvider = (*Provider)(nil)

// New 创建链路提供者
//
// trust 与 m 可以为 nil。
func New(cfg Config, local LocalIdentity, trust TrustSource, clk clock.Clock, m *metrics.Metrics) (*Provider, error) {
	if local.Certificate == nil || local.Info.ID != local.Certificate.DeviceID {
		return nil, fmt.Errorf("%w: local certificate does not match device id", types.ErrCertificateInvalid)
	}
	cert, err := local.Certificate.TLSCertificate()
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.BroadcastBurst <= 0 {
		cfg.BroadcastBurst = 1
	}

	return &Provider{
		cfg:              cfg,
		local:            local,
		tlsConf:          newTLSConfig(cert),
		trust:            trust,
		clock:            clk,
		metrics:          m,
		limiter:          newRateLimiter(clk, cfg.RateLimitCooldown, cfg.RateLimitEntries),
		broadcastLimiter: rate.NewLimiter(rate.Every(time.Second), cfg.BroadcastBurst),
		visible:          make(map[string]*Link),
		dialing:          make(map[string]struct{}),
	}, nil
}

// Name 提供者名称
func (p *Provider) Name() string { return providerName }

// PayloadPortRange 负载传输端口段
func (p *Provider) PayloadPortRange() (int, int) {
	return p.cfg.PayloadPortMin, p.cfg.PayloadPortMax
}

// LocalDeviceID 本机设备 ID
func (p *Provider) LocalDeviceID() string { return p.local.Info.ID }

// ============================================================================
//                              生命周期
// ============================================================================

// Start 绑定 UDP 与 TCP 端口并启动工作循环
func (p *Provider) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}

	udp, err := listenUDP(ctx, p.cfg.BindAddress, p.cfg.DiscoveryPort)
	if err != nil {
		return fmt.Errorf("bind discovery port %d: %w", p.cfg.DiscoveryPort, err)
	}
	tcp, err := listenTCPRange(ctx, p.cfg.BindAddress, p.cfg.TCPPortMin, p.cfg.TCPPortMax)
	if err != nil {
		_ = udp.Close()
		return err
	}

	p.udp = udp
	p.tcp = tcp
	p.started = true

	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.group, p.ctx = errgroup.WithContext(runCtx)

	p.group.Go(func() error { return p.udpLoop(p.ctx) })
	p.group.Go(func() error { return p.acceptLoop(p.ctx) })
	if p.cfg.BroadcastInterval > 0 {
		p.group.Go(func() error { return p.broadcastLoop(p.ctx) })
	}

	log.Info("lan provider started",
		"deviceId", p.local.Info.ID,
		"udp", udp.LocalAddr().String(),
		"tcp", tcp.Addr().String())

	go func() {
		if err := p.Broadcast(); err != nil {
			log.Debug("initial broadcast failed", "err", err)
		}
	}()
	return nil
}

// Stop 关闭套接字与所有链路
func (p *Provider) Stop() error {
	p.mu.Lock()
	if !p.started || p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.cancel()
	var errs error
	errs = multierr.Append(errs, ignoreClosed(p.udp.Close()))
	errs = multierr.Append(errs, ignoreClosed(p.tcp.Close()))
	links := make([]*Link, 0, len(p.visible))
	for _, l := range p.visible {
		links = append(links, l)
	}
	p.mu.Unlock()

	errs = multierr.Append(errs, p.group.Wait())
	for _, l := range links {
		errs = multierr.Append(errs, ignoreClosed(l.Close()))
	}
	p.connWg.Wait()

	log.Info("lan provider stopped", "err", errs)
	return errs
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// ============================================================================
//                              接收者
// ============================================================================

// AddConnectionReceiver 注册链路事件接收者；重复注册会收到重复通知
func (p *Provider) AddConnectionReceiver(r interfaces.ConnectionReceiver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.receivers = append(p.receivers, r)
}

// RemoveConnectionReceiver 移除一次注册
func (p *Provider) RemoveConnectionReceiver(r interfaces.ConnectionReceiver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i := slices.Index(p.receivers, r); i >= 0 {
		p.receivers = slices.Delete(p.receivers, i, i+1)
	}
}

// ============================================================================
//                              可见链路
// ============================================================================

// Link 返回设备当前的可见链路
func (p *Provider) Link(deviceID string) (*Link, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.visible[deviceID]
	return l, ok
}

// Links 返回所有可见链路
func (p *Provider) Links() []*Link {
	p.mu.Lock()
	defer p.mu.Unlock()
	links := make([]*Link, 0, len(p.visible))
	for _, l := range p.visible {
		links = append(links, l)
	}
	return links
}

// addLink 登记新链路并通知接收者
//
// 已有规范会话时丢弃新的非规范会话；否则新链路替换旧链路，旧链路随后关闭。
func (p *Provider) addLink(l *Link) error {
	id := l.DeviceID()
	canonical := canonicalSession(p.local.Info.ID, id, l.outbound)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = l.conn.Close()
		return net.ErrClosed
	}
	old := p.visible[id]
	if old != nil && !canonical && old.canonical() {
		p.mu.Unlock()
		_ = l.conn.Close()
		log.Debug("dropping duplicate session", "deviceId", id, "remote", l.RemoteAddr().String())
		return fmt.Errorf("%w: %s", errDuplicate, id)
	}
	p.visible[id] = l
	l.onClose = p.linkClosed
	receivers := slices.Clone(p.receivers)
	p.mu.Unlock()

	p.metrics.LinkOpened()
	log.Info("link established", "deviceId", id, "name", l.info.Name,
		"remote", l.RemoteAddr().String(), "outbound", l.outbound)

	for _, r := range receivers {
		r.OnConnectionReceived(l)
	}
	if old != nil {
		log.Debug("replacing previous link", "deviceId", id)
		_ = old.Close()
	}
	return nil
}

// hasCanonicalLink 设备是否已有规范会话
func (p *Provider) hasCanonicalLink(deviceID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.visible[deviceID]
	return ok && l.canonical()
}

func (p *Provider) linkClosed(l *Link) {
	p.mu.Lock()
	if p.visible[l.DeviceID()] == l {
		delete(p.visible, l.DeviceID())
	}
	receivers := slices.Clone(p.receivers)
	p.mu.Unlock()

	p.metrics.LinkClosed()
	log.Info("link closed", "deviceId", l.DeviceID())

	for _, r := range receivers {
		r.OnConnectionLost(l)
	}
}

// ============================================================================
//                              限流
// ============================================================================

// RateLimitByDeviceID 冷却窗口内返回 true；否则记录本次尝试并返回 false
func (p *Provider) RateLimitByDeviceID(deviceID string) bool {
	return p.limiter.limited(deviceID)
}

// ============================================================================
//                              身份
// ============================================================================

func (p *Provider) identityPacket() *packet.Packet {
	port := 0
	if p.tcp != nil {
		port = p.tcp.Addr().(*net.TCPAddr).Port
	}
	return newIdentityPacket(p.local.Info, port, p.local.Certificate.Fingerprint)
}

// TCPPort 实际监听的 TCP 端口
func (p *Provider) TCPPort() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tcp == nil {
		return 0
	}
	return p.tcp.Addr().(*net.TCPAddr).Port
}

// UDPAddr 实际绑定的发现地址
func (p *Provider) UDPAddr() *net.UDPAddr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.udp == nil {
		return nil
	}
	return p.udp.LocalAddr().(*net.UDPAddr)
}

func (p *Provider) tcpAddr(ip net.IP, port int) string {
	if port <= 0 {
		port = MinTCPPort
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(port))
}
