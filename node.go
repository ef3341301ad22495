package lanconnect

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-lanconnect/config"
	"github.com/dep2p/go-lanconnect/internal/core/certstore"
	"github.com/dep2p/go-lanconnect/internal/core/lan"
	"github.com/dep2p/go-lanconnect/internal/core/metrics"
	"github.com/dep2p/go-lanconnect/internal/core/registry"
	"github.com/dep2p/go-lanconnect/internal/util/logger"
	"github.com/dep2p/go-lanconnect/pkg/interfaces"
	"github.com/dep2p/go-lanconnect/pkg/packet"
)

var log = logger.Logger("node")

const (
	// startTimeout Fx App 启动超时
	startTimeout = 30 * time.Second

	// stopTimeout Close 使用的停止超时
	stopTimeout = 10 * time.Second
)

// ════════════════════════════════════════════════════════════════════════════
//                              节点状态
// ════════════════════════════════════════════════════════════════════════════

// NodeState 节点状态
type NodeState int

const (
	// StateIdle 已创建未启动
	StateIdle NodeState = iota
	// StateStarting 启动中
	StateStarting
	// StateRunning 运行中
	StateRunning
	// StateStopping 停止中
	StateStopping
	// StateStopped 已停止（不可再次启动）
	StateStopped
)

// String 返回状态名称
func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              Node
// ════════════════════════════════════════════════════════════════════════════

// Node 局域网互联节点
//
// Node 是调用方唯一持有的服务对象，内部组件由 Fx 装配。创建后须
// 调用 Start 才会绑定端口；Stop/Close 之后节点不可复用。
type Node struct {
	mu    sync.Mutex
	state NodeState

	cfg *config.Config
	app *fx.App

	// 由 Fx 注入
	identity *certstore.Certificate
	store    *certstore.Store
	provider *lan.Provider
	registry *registry.Registry
	metrics  *metrics.Metrics
	engine   interfaces.Engine
}

// New 创建节点
//
// 构造阶段打开存储、完成迁移并加载或生成本机身份，但不绑定任何端口。
func New(opts ...Option) (*Node, error) {
	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	cfg, err := o.toConfig()
	if err != nil {
		return nil, err
	}
	clk := o.clock
	if clk == nil {
		clk = clock.New()
	}

	n := &Node{cfg: cfg}
	n.app = buildFxApp(cfg, clk, n, o.fxOptions)
	if err := n.app.Err(); err != nil {
		return nil, fmt.Errorf("build node: %w", err)
	}
	log.Info("node created", "deviceId", n.identity.DeviceID, "name", cfg.Device.Name)
	return n, nil
}

// Start 启动节点：绑定 UDP 发现端口与 TCP 端口，开始广播
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateIdle:
	case StateRunning, StateStarting:
		return ErrAlreadyStarted
	default:
		return ErrNodeClosed
	}

	n.state = StateStarting
	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	if err := n.app.Start(startCtx); err != nil {
		log.Error("node start failed", "err", err)
		// Start 失败时 Fx 已回滚已启动的模块
		n.state = StateStopped
		return fmt.Errorf("start failed: %w", err)
	}
	n.state = StateRunning
	log.Info("node started",
		"deviceId", n.identity.DeviceID,
		"tcpPort", n.provider.TCPPort(),
		"discovery", n.DiscoveryAddr())
	return nil
}

// Stop 停止节点，按逆序关闭所有组件
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stopLocked(ctx)
}

func (n *Node) stopLocked(ctx context.Context) error {
	switch n.state {
	case StateStopped:
		return ErrNodeClosed
	case StateIdle:
		// 未启动的 Fx App 不执行 OnStop，构造阶段打开的组件在此释放
		n.state = StateStopped
		return multierr.Combine(n.registry.Close(), n.engine.Close())
	}

	n.state = StateStopping
	var err error
	if n.registry != nil {
		err = multierr.Append(err, n.registry.Flush(ctx))
	}
	err = multierr.Append(err, n.app.Stop(ctx))
	n.state = StateStopped
	if err != nil {
		log.Warn("node stop finished with errors", "err", err)
		return fmt.Errorf("stop: %w", err)
	}
	log.Info("node stopped")
	return nil
}

// Close 关闭节点并释放资源；重复调用返回 nil
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateStopped {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return n.stopLocked(ctx)
}

// State 返回当前状态
func (n *Node) State() NodeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// ════════════════════════════════════════════════════════════════════════════
//                              本机信息
// ════════════════════════════════════════════════════════════════════════════

// LocalDeviceID 返回本机设备 ID
func (n *Node) LocalDeviceID() string {
	return n.identity.DeviceID
}

// LocalFingerprint 返回本机证书指纹（小写十六进制 SHA-256）
func (n *Node) LocalFingerprint() string {
	return n.identity.Fingerprint
}

// Config 返回节点配置副本
func (n *Node) Config() *config.Config {
	return config.CloneConfig(n.cfg)
}

// TCPPort 返回实际监听的 TCP 端口，未启动时为 0
func (n *Node) TCPPort() int {
	return n.provider.TCPPort()
}

// DiscoveryAddr 返回 UDP 发现套接字地址，未启动时为 nil
func (n *Node) DiscoveryAddr() *net.UDPAddr {
	return n.provider.UDPAddr()
}

// PayloadPortRange 返回负载传输端口段
func (n *Node) PayloadPortRange() (lo, hi int) {
	return n.provider.PayloadPortRange()
}

// MetricsRegistry 返回 Prometheus 注册表，指标关闭时为 nil
func (n *Node) MetricsRegistry() *prometheus.Registry {
	return n.metrics.Registry()
}

// ════════════════════════════════════════════════════════════════════════════
//                              发现
// ════════════════════════════════════════════════════════════════════════════

// Broadcast 立即广播本机身份（受令牌桶限速）
func (n *Node) Broadcast() error {
	if n.State() != StateRunning {
		return ErrNotStarted
	}
	return n.provider.Broadcast()
}

// AnnounceTo 向单个地址（ip:port）单播本机身份
func (n *Node) AnnounceTo(addr string) error {
	if n.State() != StateRunning {
		return ErrNotStarted
	}
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return err
	}
	return n.provider.SendIdentityTo(udpAddr)
}

// ════════════════════════════════════════════════════════════════════════════
//                              设备与配对
// ════════════════════════════════════════════════════════════════════════════

// Devices 返回所有已知设备快照，按 ID 排序
func (n *Node) Devices() []Device {
	return n.registry.Devices()
}

// Device 返回单个设备快照
func (n *Node) Device(id string) (Device, bool) {
	return n.registry.Device(id)
}

// RequestPairing 向设备发起配对
func (n *Node) RequestPairing(id string) error {
	return n.registry.RequestPairing(id)
}

// AcceptPairing 接受设备的配对请求
func (n *Node) AcceptPairing(id string) error {
	return n.registry.AcceptPairing(id)
}

// RejectPairing 拒绝设备的配对请求
func (n *Node) RejectPairing(id string) error {
	return n.registry.RejectPairing(id)
}

// CancelPairing 取消本机发起的配对请求
func (n *Node) CancelPairing(id string) error {
	return n.registry.CancelPairing(id)
}

// Unpair 解除配对并删除信任
func (n *Node) Unpair(id string) error {
	return n.registry.Unpair(id)
}

// ════════════════════════════════════════════════════════════════════════════
//                              数据包
// ════════════════════════════════════════════════════════════════════════════

// SendPacket 向已配对设备发送数据包
func (n *Node) SendPacket(id string, p *packet.Packet) error {
	return n.registry.SendPacket(id, p)
}

// SubscribePackets 订阅已配对设备的入站数据包；同 key 重复订阅时替换
func (n *Node) SubscribePackets(key string, fn PacketFunc) {
	n.registry.SubscribePackets(key, fn)
}

// UnsubscribePackets 取消订阅
func (n *Node) UnsubscribePackets(key string) {
	n.registry.UnsubscribePackets(key)
}

// ════════════════════════════════════════════════════════════════════════════
//                              监听器
// ════════════════════════════════════════════════════════════════════════════

// AddDeviceListChangedListener 注册设备列表变化监听；同 key 替换
func (n *Node) AddDeviceListChangedListener(key string, fn DeviceListChangedFunc) {
	n.registry.AddDeviceListChangedListener(key, fn)
}

// RemoveDeviceListChangedListener 移除设备列表变化监听
func (n *Node) RemoveDeviceListChangedListener(key string) {
	n.registry.RemoveDeviceListChangedListener(key)
}

// AddPairingStateListener 注册配对状态监听；同 key 替换
func (n *Node) AddPairingStateListener(key string, fn PairingStateFunc) {
	n.registry.AddPairingStateListener(key, fn)
}

// RemovePairingStateListener 移除配对状态监听
func (n *Node) RemovePairingStateListener(key string) {
	n.registry.RemovePairingStateListener(key)
}

// TrustedDeviceIDs 返回证书存储中已信任的设备 ID
func (n *Node) TrustedDeviceIDs() ([]string, error) {
	return n.store.TrustedDeviceIDs()
}
