package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/dep2p/go-lanconnect/internal/core/certstore"
	"github.com/dep2p/go-lanconnect/internal/core/eventbus"
	"github.com/dep2p/go-lanconnect/internal/core/lan"
	"github.com/dep2p/go-lanconnect/internal/core/metrics"
	"github.com/dep2p/go-lanconnect/internal/core/pairing"
	"github.com/dep2p/go-lanconnect/internal/util/logger"
	"github.com/dep2p/go-lanconnect/pkg/interfaces"
	"github.com/dep2p/go-lanconnect/pkg/packet"
	"github.com/dep2p/go-lanconnect/pkg/types"
)

var log = logger.Logger("registry")

// DefaultEvictionGrace 无链路且未配对的设备保留时长
const DefaultEvictionGrace = time.Second

// 监听键前缀，两类 UI 事件共用一条总线
const (
	listKeyPrefix = "devices/"
	pairKeyPrefix = "pairing/"
)

// Store 注册表使用的信任存储
type Store interface {
	pairing.TrustStore
	IsTrusted(deviceID string) (bool, error)
	LoadPeerCertificate(deviceID string) (*certstore.Certificate, error)
	TrustedDeviceIDs() ([]string, error)
	StoreDeviceInfo(info types.DeviceInfo) error
	LoadDeviceInfo(deviceID string) (types.DeviceInfo, error)
}

// Config 注册表配置
type Config struct {
	// EvictionGrace 驱逐宽限期
	EvictionGrace time.Duration

	// PairingTimeout 配对请求超时
	PairingTimeout time.Duration
}

// eviction 一次待执行的驱逐
type eviction struct {
	timer *clock.Timer
}

// Registry 设备注册表
type Registry struct {
	store   Store
	cfg     Config
	clock   clock.Clock
	metrics *metrics.Metrics

	ui      *eventbus.Bus
	packets *eventbus.Bus

	mu        sync.Mutex
	devices   map[string]*device
	evictions map[string]*eviction
	closed    bool
}

var _ interfaces.ConnectionReceiver = (*Registry)(nil)

// New 创建注册表
func New(store Store, cfg Config, clk clock.Clock, m *metrics.Metrics) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.EvictionGrace <= 0 {
		cfg.EvictionGrace = DefaultEvictionGrace
	}
	if cfg.PairingTimeout <= 0 {
		cfg.PairingTimeout = pairing.DefaultTimeout
	}
	return &Registry{
		store:     store,
		cfg:       cfg,
		clock:     clk,
		metrics:   m,
		ui:        eventbus.New("ui"),
		packets:   eventbus.New("packets"),
		devices:   make(map[string]*device),
		evictions: make(map[string]*eviction),
	}
}

// Close 停止计时器并排空事件总线
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for id, ev := range r.evictions {
		ev.timer.Stop()
		delete(r.evictions, id)
	}
	handlers := make([]*pairing.Handler, 0, len(r.devices))
	for _, d := range r.devices {
		handlers = append(handlers, d.pairing)
	}
	r.mu.Unlock()

	for _, h := range handlers {
		h.Close()
	}
	return multierr.Combine(r.ui.Close(), r.packets.Close())
}

// Flush 等待已入队的事件全部投递
func (r *Registry) Flush(ctx context.Context) error {
	if err := r.ui.Flush(ctx); err != nil {
		return err
	}
	return r.packets.Flush(ctx)
}

// ============================================================================
//                              设备
// ============================================================================

// newDeviceLocked 创建并登记设备；trusted 非 nil 时设备以已配对状态开始
func (r *Registry) newDeviceLocked(info types.DeviceInfo, trusted *certstore.Certificate) *device {
	id := info.ID
	state := types.PairStateUnpaired
	if trusted != nil {
		state = types.PairStatePaired
	}
	d := &device{
		info:    info.Clone(),
		trusted: trusted,
		state:   state,
	}
	d.pairing = pairing.New(id, state, pairing.Options{
		Clock:        r.clock,
		Timeout:      r.cfg.PairingTimeout,
		Trust:        r.store,
		Links:        func() []interfaces.Link { return r.links(id) },
		OnTransition: r.onTransition,
	})
	r.devices[id] = d
	r.metrics.SetDevicesKnown(len(r.devices))
	return d
}

func (r *Registry) links(id string) []interfaces.Link {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[id]; ok {
		return slices.Clone(d.links)
	}
	return nil
}

// Devices 返回所有设备快照（按 ID 排序）
func (r *Registry) Devices() []Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Info.ID < out[j].Info.ID })
	return out
}

// Device 返回单个设备快照
func (r *Registry) Device(id string) (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return Device{}, false
	}
	return d.snapshot(), true
}

// loadTrusted 读取已信任设备的证书；证书失效时清除信任记录
func (r *Registry) loadTrusted(id string) *certstore.Certificate {
	if r.store == nil {
		return nil
	}
	trusted, err := r.store.IsTrusted(id)
	if err != nil {
		log.Warn("reading trust record failed", "deviceId", id, "err", err)
		return nil
	}
	if !trusted {
		return nil
	}
	cert, err := r.store.LoadPeerCertificate(id)
	if err != nil {
		log.Warn("trusted certificate rejected, forgetting device", "deviceId", id, "err", err)
		if err := r.store.DeletePeerCertificate(id); err != nil {
			log.Warn("deleting trust record failed", "deviceId", id, "err", err)
		}
		return nil
	}
	return cert
}

// LoadRememberedDevices 从信任列表恢复已配对设备（不可达状态）
func (r *Registry) LoadRememberedDevices() (int, error) {
	if r.store == nil {
		return 0, nil
	}
	ids, err := r.store.TrustedDeviceIDs()
	if err != nil {
		return 0, err
	}

	loaded := 0
	for _, id := range ids {
		cert := r.loadTrusted(id)
		if cert == nil {
			continue
		}
		info, err := r.store.LoadDeviceInfo(id)
		if err != nil {
			if !errors.Is(err, types.ErrNotFound) {
				log.Debug("remembered device info unavailable", "deviceId", id, "err", err)
			}
			info = types.DeviceInfo{ID: id}
		}

		r.mu.Lock()
		if _, exists := r.devices[id]; !exists {
			r.newDeviceLocked(info, cert)
			loaded++
		}
		r.mu.Unlock()
	}

	if loaded > 0 {
		log.Info("remembered devices loaded", "count", loaded)
		r.emitListChanged()
	}
	return loaded, nil
}

// ============================================================================
//                              链路事件
// ============================================================================

// OnConnectionReceived 挂接新链路
func (r *Registry) OnConnectionReceived(l interfaces.Link) {
	id := l.DeviceID()

	r.mu.Lock()
	_, exists := r.devices[id]
	r.mu.Unlock()

	var remembered *certstore.Certificate
	if !exists {
		remembered = r.loadTrusted(id)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = l.Close()
		return
	}
	d, exists := r.devices[id]
	if !exists {
		d = r.newDeviceLocked(l.Info(), remembered)
	}
	if d.paired() && d.trusted != nil && l.Fingerprint() != d.trusted.Fingerprint {
		r.mu.Unlock()
		log.Warn("rejecting link with untrusted certificate", "deviceId", id, "remote", l.RemoteAddr())
		_ = l.Close()
		if !exists {
			r.emitListChanged()
		}
		return
	}
	wasReachable := d.reachable()
	d.attach(l)
	r.cancelEvictionLocked(id)
	changed := d.mergeInfo(l.Info())
	r.mu.Unlock()

	log.Debug("link attached", "deviceId", id, "remote", l.RemoteAddr())
	l.Start(r.handlePacket)

	if !exists || !wasReachable || changed {
		r.emitListChanged()
	}
}

// OnConnectionLost 卸下链路；无链路且未配对时安排驱逐
func (r *Registry) OnConnectionLost(l interfaces.Link) {
	id := l.DeviceID()

	r.mu.Lock()
	d, ok := r.devices[id]
	if !ok || !d.detach(l) {
		r.mu.Unlock()
		return
	}
	unreachable := !d.reachable()
	if unreachable && !d.paired() && !r.closed {
		r.scheduleEvictionLocked(id)
	}
	r.mu.Unlock()

	log.Debug("link detached", "deviceId", id)
	if unreachable {
		r.emitListChanged()
	}
}

// OnDeviceInfoUpdated 合并设备描述，有变化时通知
func (r *Registry) OnDeviceInfoUpdated(info types.DeviceInfo) {
	r.mu.Lock()
	d, ok := r.devices[info.ID]
	if !ok {
		r.mu.Unlock()
		return
	}
	changed := d.mergeInfo(info)
	paired := d.paired()
	merged := d.info.Clone()
	r.mu.Unlock()

	if !changed {
		return
	}
	if paired && r.store != nil {
		if err := r.store.StoreDeviceInfo(merged); err != nil {
			log.Warn("remembering device info failed", "deviceId", info.ID, "err", err)
		}
	}
	r.emitListChanged()
}

// ============================================================================
//                              驱逐
// ============================================================================

func (r *Registry) scheduleEvictionLocked(id string) {
	r.cancelEvictionLocked(id)
	ev := &eviction{}
	r.evictions[id] = ev
	ev.timer = r.clock.AfterFunc(r.cfg.EvictionGrace, func() { r.evict(id, ev) })
}

func (r *Registry) cancelEvictionLocked(id string) {
	if ev, ok := r.evictions[id]; ok {
		ev.timer.Stop()
		delete(r.evictions, id)
	}
}

func (r *Registry) evict(id string, ev *eviction) {
	r.mu.Lock()
	if r.evictions[id] != ev {
		r.mu.Unlock()
		return
	}
	delete(r.evictions, id)

	d, ok := r.devices[id]
	if !ok || d.reachable() || d.paired() {
		r.mu.Unlock()
		return
	}
	delete(r.devices, id)
	r.metrics.SetDevicesKnown(len(r.devices))
	r.mu.Unlock()

	d.pairing.Close()
	log.Debug("device evicted", "deviceId", id)
	r.emitListChanged()
}

// ============================================================================
//                              配对
// ============================================================================

// onTransition 由配对状态机在其锁内调用
func (r *Registry) onTransition(id string, state types.PairState, reason string) {
	r.mu.Lock()
	var remember *types.DeviceInfo
	if d, ok := r.devices[id]; ok {
		d.state = state
		switch state {
		case types.PairStatePaired:
			r.cancelEvictionLocked(id)
			if len(d.links) > 0 {
				d.trusted = certstore.FromX509(d.links[0].Certificate())
			}
			info := d.info.Clone()
			remember = &info
		case types.PairStateUnpaired:
			d.trusted = nil
			if !d.reachable() && !r.closed {
				r.scheduleEvictionLocked(id)
			}
		}
	}
	r.mu.Unlock()

	if remember != nil && r.store != nil {
		if err := r.store.StoreDeviceInfo(*remember); err != nil {
			log.Warn("remembering device info failed", "deviceId", id, "err", err)
		}
	}

	r.metrics.PairingTransition(state)
	if err := r.ui.Emit(PairingStateChangedEvent{DeviceID: id, State: state, Reason: reason}); err != nil {
		log.Debug("pairing event dropped", "deviceId", id, "err", err)
	}
}

func (r *Registry) handler(id string) (*pairing.Handler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownDevice, id)
	}
	return d.pairing, nil
}

// RequestPairing 向设备发起配对
func (r *Registry) RequestPairing(id string) error {
	h, err := r.handler(id)
	if err != nil {
		return err
	}
	return h.RequestPairing()
}

// AcceptPairing 接受设备的配对请求
func (r *Registry) AcceptPairing(id string) error {
	h, err := r.handler(id)
	if err != nil {
		return err
	}
	return h.AcceptPairing()
}

// RejectPairing 拒绝设备的配对请求
func (r *Registry) RejectPairing(id string) error {
	h, err := r.handler(id)
	if err != nil {
		return err
	}
	return h.RejectPairing()
}

// CancelPairing 取消发出的配对请求
func (r *Registry) CancelPairing(id string) error {
	h, err := r.handler(id)
	if err != nil {
		return err
	}
	return h.CancelPairing()
}

// Unpair 解除配对
func (r *Registry) Unpair(id string) error {
	h, err := r.handler(id)
	if err != nil {
		return err
	}
	return h.Unpair()
}

// ============================================================================
//                              收发
// ============================================================================

// SendPacket 经设备的第一条可用链路发送
//
// 未配对设备只允许发送配对包与身份包。
func (r *Registry) SendPacket(id string, p *packet.Packet) error {
	r.mu.Lock()
	d, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %w: %s", types.ErrNotReachable, types.ErrUnknownDevice, id)
	}
	if !d.paired() && p.Type != packet.TypePair && p.Type != packet.TypeIdentity {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", types.ErrNotPaired, id)
	}
	links := slices.Clone(d.links)
	r.mu.Unlock()

	if len(links) == 0 {
		return fmt.Errorf("%w: %s", types.ErrNotReachable, id)
	}
	var errs error
	for _, l := range links {
		err := l.SendPacket(p)
		if err == nil {
			return nil
		}
		errs = multierr.Append(errs, err)
	}
	return fmt.Errorf("%w: %s: %w", types.ErrNotReachable, id, errs)
}

// handlePacket 链路读循环的入站处理
func (r *Registry) handlePacket(l interfaces.Link, p *packet.Packet) {
	id := l.DeviceID()

	switch p.Type {
	case packet.TypeIdentity:
		info, err := lan.IdentityInfo(p)
		if err != nil || info.ID != id {
			log.Debug("ignoring identity packet on link", "deviceId", id, "err", err)
			return
		}
		r.OnDeviceInfoUpdated(info)

	case packet.TypePair:
		h, err := r.handler(id)
		if err != nil {
			return
		}
		if err := h.HandlePacket(l, p); err != nil {
			log.Debug("invalid pair packet", "deviceId", id, "err", err)
		}

	default:
		r.mu.Lock()
		d, ok := r.devices[id]
		paired := ok && d.paired()
		r.mu.Unlock()

		if !paired {
			log.Debug("dropping packet from unpaired device", "deviceId", id, "type", p.Type)
			unpair := packet.New(packet.TypePair)
			unpair.Body.SetBool("pair", false)
			_ = l.SendPacket(unpair)
			return
		}
		if err := r.packets.Emit(PacketEvent{DeviceID: id, Packet: p}); err != nil {
			log.Debug("packet dropped", "deviceId", id, "err", err)
		}
	}
}

// ============================================================================
//                              监听
// ============================================================================

func (r *Registry) emitListChanged() {
	if err := r.ui.Emit(DeviceListChangedEvent{}); err != nil {
		log.Debug("device list event dropped", "err", err)
	}
}

// AddDeviceListChangedListener 注册设备列表监听；同键替换
func (r *Registry) AddDeviceListChangedListener(key string, fn DeviceListChangedFunc) {
	r.ui.Subscribe(listKeyPrefix+key, func(ev any) {
		if _, ok := ev.(DeviceListChangedEvent); ok {
			fn()
		}
	})
}

// RemoveDeviceListChangedListener 移除设备列表监听
func (r *Registry) RemoveDeviceListChangedListener(key string) {
	r.ui.Unsubscribe(listKeyPrefix + key)
}

// AddPairingStateListener 注册配对状态监听；同键替换
func (r *Registry) AddPairingStateListener(key string, fn PairingStateFunc) {
	r.ui.Subscribe(pairKeyPrefix+key, func(ev any) {
		if e, ok := ev.(PairingStateChangedEvent); ok {
			fn(e.DeviceID, e.State, e.Reason)
		}
	})
}

// RemovePairingStateListener 移除配对状态监听
func (r *Registry) RemovePairingStateListener(key string) {
	r.ui.Unsubscribe(pairKeyPrefix + key)
}

// SubscribePackets 订阅入站业务包；同键替换
func (r *Registry) SubscribePackets(key string, fn PacketFunc) {
	r.packets.Subscribe(key, func(ev any) {
		if e, ok := ev.(PacketEvent); ok {
			fn(e.DeviceID, e.Packet)
		}
	})
}

// UnsubscribePackets 取消订阅
func (r *Registry) UnsubscribePackets(key string) {
	r.packets.Unsubscribe(key)
}
