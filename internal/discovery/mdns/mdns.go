// Package mdns 通过 mDNS 通告本机并浏览局域网内的其他设备
//
// 广播被路由器或防火墙过滤时，mDNS 仍可能到达对端。发现的每个设备
// 会收到一个单播身份数据报，之后的连接流程与 UDP 广播发现完全一致。
package mdns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/mdns"

	"github.com/dep2p/go-lanconnect/internal/util/logger"
	"github.com/dep2p/go-lanconnect/pkg/types"
)

var log = logger.Logger("discovery.mdns")

// 服务常量
const (
	ServiceType   = "_kdeconnect._udp"
	Domain        = "local."
	queryTimeout  = 5 * time.Second
	entryBuffer   = 16
	txtID         = "id"
	txtName       = "name"
	txtType       = "type"
	txtProtocol   = "protocol"
	maxTXTLen     = 255
	instanceLimit = 63
)

// ErrNoAddress 没有可通告的局域网地址
var ErrNoAddress = errors.New("no lan address to announce")

// IdentitySender 接收发现结果的一方
type IdentitySender interface {
	SendIdentityTo(addr *net.UDPAddr) error
}

// Config mDNS 配置
type Config struct {
	// Interval 浏览间隔
	Interval time.Duration

	// Interface 限定网卡，空表示默认
	Interface string
}

// Discoverer mDNS 通告与浏览
type Discoverer struct {
	cfg    Config
	local  types.DeviceInfo
	port   int
	sender IdentitySender
	clock  clock.Clock

	mu      sync.Mutex
	server  *mdns.Server
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New 创建发现器
//
// port 为本机发现 UDP 端口，写入服务记录供对端单播身份。
func New(cfg Config, local types.DeviceInfo, port int, sender IdentitySender, clk clock.Clock) *Discoverer {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Discoverer{
		cfg:    cfg,
		local:  local,
		port:   port,
		sender: sender,
		clock:  clk,
	}
}

// Start 启动通告与周期浏览
//
// 通告失败不影响浏览。
func (d *Discoverer) Start(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}

	if err := d.startServer(); err != nil {
		log.Warn("mdns announce unavailable", "err", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.running = true
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.browseLoop(ctx)
	}()
	return nil
}

// Stop 停止通告与浏览
func (d *Discoverer) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.cancel()
	server := d.server
	d.server = nil
	d.mu.Unlock()

	d.wg.Wait()
	if server != nil {
		return server.Shutdown()
	}
	return nil
}

// ============================================================================
//                              通告
// ============================================================================

func (d *Discoverer) startServer() error {
	ips, err := localIPs(d.cfg.Interface)
	if err != nil {
		return err
	}
	if len(ips) == 0 {
		return ErrNoAddress
	}

	service, err := mdns.NewMDNSService(instanceName(d.local), ServiceType, Domain, "", d.port, ips, buildTXT(d.local))
	if err != nil {
		return fmt.Errorf("create mdns service: %w", err)
	}
	conf := &mdns.Config{Zone: service}
	if iface := d.iface(); iface != nil {
		conf.Iface = iface
	}
	server, err := mdns.NewServer(conf)
	if err != nil {
		return fmt.Errorf("start mdns server: %w", err)
	}
	d.server = server
	log.Info("mdns service announced", "instance", instanceName(d.local), "port", d.port, "ips", len(ips))
	return nil
}

func (d *Discoverer) iface() *net.Interface {
	if d.cfg.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(d.cfg.Interface)
	if err != nil {
		log.Warn("mdns interface not found", "interface", d.cfg.Interface, "err", err)
		return nil
	}
	return iface
}

// instanceName 服务实例名，DNS 标签长度上限 63
func instanceName(info types.DeviceInfo) string {
	name := info.ID
	if len(name) > instanceLimit {
		name = name[:instanceLimit]
	}
	return name
}

// buildTXT 构建 TXT 记录，每条不超过 255 字节
func buildTXT(info types.DeviceInfo) []string {
	records := []string{
		txtID + "=" + info.ID,
		txtName + "=" + info.Name,
		txtType + "=" + info.Type.String(),
		txtProtocol + "=" + strconv.Itoa(info.ProtocolVersion),
	}
	for i, r := range records {
		if len(r) > maxTXTLen {
			records[i] = r[:maxTXTLen]
		}
	}
	return records
}

// parseTXT 解析 key=value 形式的 TXT 记录
func parseTXT(fields []string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}

// ============================================================================
//                              浏览
// ============================================================================

func (d *Discoverer) browseLoop(ctx context.Context) {
	d.browse(ctx)

	ticker := d.clock.Ticker(d.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.browse(ctx)
		}
	}
}

func (d *Discoverer) browse(ctx context.Context) {
	entries := make(chan *mdns.ServiceEntry, entryBuffer)
	params := &mdns.QueryParam{
		Service:             ServiceType,
		Domain:              Domain,
		Timeout:             queryTimeout,
		Entries:             entries,
		DisableIPv6:         true,
		WantUnicastResponse: true,
		Interface:           d.iface(),
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			if ctx.Err() != nil {
				continue
			}
			if err := d.handleEntry(e); err != nil {
				log.Debug("mdns entry ignored", "name", e.Name, "reason", err)
			}
		}
	}()

	if err := mdns.Query(params); err != nil {
		log.Debug("mdns query failed", "err", err)
	}
	close(entries)
	<-done
}

// handleEntry 对发现的设备发送单播身份
func (d *Discoverer) handleEntry(e *mdns.ServiceEntry) error {
	txt := parseTXT(e.InfoFields)
	id := txt[txtID]
	if !types.IsValidDeviceID(id) {
		return fmt.Errorf("%w: %q", types.ErrInvalidDeviceID, id)
	}
	if id == d.local.ID {
		return errors.New("own service")
	}
	ip := e.AddrV4
	if ip == nil {
		return errors.New("no ipv4 address")
	}
	port := e.Port
	if port <= 0 {
		port = d.port
	}

	addr := &net.UDPAddr{IP: ip, Port: port}
	log.Debug("mdns device found", "deviceId", id, "name", txt[txtName], "addr", addr.String())
	return d.sender.SendIdentityTo(addr)
}

// ============================================================================
//                              地址
// ============================================================================

// 虚拟网卡前缀，这些地址跨机通常不可达
var virtualInterfacePrefixes = []string{
	"docker", "br-", "veth", "virbr", "vboxnet", "vmnet",
	"utun", "tun", "tap", "wg", "tailscale", "awdl", "llw",
}

func isVirtualInterface(name string) bool {
	name = strings.ToLower(name)
	for _, p := range virtualInterfacePrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// localIPs 返回可通告的 IPv4 局域网地址
func localIPs(only string) ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if only != "" && iface.Name != only {
			continue
		}
		if only == "" && isVirtualInterface(iface.Name) {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipNet.IP.To4(); ip4 != nil && ip4.IsPrivate() {
				ips = append(ips, ip4)
			}
		}
	}
	return ips, nil
}
