package pairing

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-lanconnect/internal/core/certstore"
	"github.com/dep2p/go-lanconnect/internal/util/logger"
	"github.com/dep2p/go-lanconnect/pkg/interfaces"
	"github.com/dep2p/go-lanconnect/pkg/packet"
	"github.com/dep2p/go-lanconnect/pkg/types"
)

var log = logger.Logger("pairing")

// DefaultTimeout 等待对端或本地决定的时长
const DefaultTimeout = 30 * time.Second

// 配对包字段
const fieldPair = "pair"

// 状态变化原因
const (
	ReasonRequested       = "requested"
	ReasonRequestedByPeer = "requested by peer"
	ReasonAccepted        = "accepted"
	ReasonAcceptedByPeer  = "accepted by peer"
	ReasonRejected        = "rejected"
	ReasonRejectedByPeer  = "rejected by peer"
	ReasonCancelled       = "cancelled"
	ReasonCancelledByPeer = "cancelled by peer"
	ReasonUnpaired        = "unpaired"
	ReasonUnpairedByPeer  = "unpaired by peer"
	ReasonTimeout         = "timed out"
	ReasonCertMismatch    = "certificate mismatch"
	ReasonStorage         = "storage failure"
)

// TrustStore 信任持久化
type TrustStore interface {
	Validate(cert *certstore.Certificate) error
	StorePeerCertificate(deviceID string, cert *certstore.Certificate) error
	DeletePeerCertificate(deviceID string) error
	TrustedFingerprint(deviceID string) (string, error)
}

// TransitionFunc 状态变化回调
//
// 在状态机锁内调用，实现不得阻塞，也不得回调同一个 Handler。
type TransitionFunc func(deviceID string, state types.PairState, reason string)

// Options 状态机参数
type Options struct {
	// Clock 时钟，nil 时使用真实时钟
	Clock clock.Clock

	// Timeout 请求超时，<=0 时使用 DefaultTimeout
	Timeout time.Duration

	// Trust 信任存储
	Trust TrustStore

	// Links 返回设备当前的活动链路
	Links func() []interfaces.Link

	// OnTransition 状态变化回调，可为 nil
	OnTransition TransitionFunc
}

// Handler 单个设备的配对状态机
type Handler struct {
	deviceID string
	opts     Options

	mu    sync.Mutex
	state types.PairState
	timer *clock.Timer
	// gen 每次启动或停止计时器递增，过期回调据此识别自己是否仍有效
	gen uint64
}

// New 创建配对状态机
//
// initial 只能是 Unpaired 或 Paired（来自信任存储）。
func New(deviceID string, initial types.PairState, opts Options) *Handler {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Links == nil {
		opts.Links = func() []interfaces.Link { return nil }
	}
	if initial != types.PairStatePaired {
		initial = types.PairStateUnpaired
	}
	return &Handler{
		deviceID: deviceID,
		opts:     opts,
		state:    initial,
	}
}

// DeviceID 设备 ID
func (h *Handler) DeviceID() string { return h.deviceID }

// State 当前状态
func (h *Handler) State() types.PairState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// IsPaired 是否已配对
func (h *Handler) IsPaired() bool {
	return h.State() == types.PairStatePaired
}

// Close 停止计时器
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopTimerLocked()
}

// ============================================================================
//                              本地操作
// ============================================================================

// RequestPairing 发出配对请求
func (h *Handler) RequestPairing() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != types.PairStateUnpaired {
		return h.invalid("request")
	}
	if err := h.sendLocked(true); err != nil {
		return err
	}
	h.startTimerLocked()
	h.setLocked(types.PairStateRequested, ReasonRequested)
	return nil
}

// AcceptPairing 接受对端的配对请求
func (h *Handler) AcceptPairing() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != types.PairStateRequestedByPeer {
		return h.invalid("accept")
	}
	h.stopTimerLocked()

	if reason, err := h.persistTrustLocked(); err != nil {
		_ = h.sendLocked(false)
		h.setLocked(types.PairStateUnpaired, reason)
		return err
	}
	if err := h.sendLocked(true); err != nil {
		log.Warn("sending pair acceptance failed", "deviceId", h.deviceID, "err", err)
	}
	h.setLocked(types.PairStatePaired, ReasonAccepted)
	return nil
}

// RejectPairing 拒绝对端的配对请求
func (h *Handler) RejectPairing() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != types.PairStateRequestedByPeer {
		return h.invalid("reject")
	}
	h.stopTimerLocked()
	_ = h.sendLocked(false)
	h.setLocked(types.PairStateUnpaired, ReasonRejected)
	return nil
}

// CancelPairing 取消本地发出的请求
func (h *Handler) CancelPairing() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != types.PairStateRequested {
		return h.invalid("cancel")
	}
	h.stopTimerLocked()
	_ = h.sendLocked(false)
	h.setLocked(types.PairStateUnpaired, ReasonCancelled)
	return nil
}

// Unpair 解除配对并删除信任记录
func (h *Handler) Unpair() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != types.PairStatePaired {
		return h.invalid("unpair")
	}
	// 对端不可达时仍然解除本地信任
	_ = h.sendLocked(false)
	err := h.forgetLocked()
	h.setLocked(types.PairStateUnpaired, ReasonUnpaired)
	return err
}

// ============================================================================
//                              对端报文
// ============================================================================

// HandlePacket 处理对端的配对包
func (h *Handler) HandlePacket(link interfaces.Link, p *packet.Packet) error {
	if p.Type != packet.TypePair {
		return fmt.Errorf("%w: not a pair packet: %q", types.ErrParse, p.Type)
	}
	pair, ok := p.LookupBool(fieldPair)
	if !ok {
		return fmt.Errorf("%w: pair packet without %q", types.ErrParse, fieldPair)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if pair {
		h.onPairTrueLocked(link)
	} else {
		h.onPairFalseLocked()
	}
	return nil
}

func (h *Handler) onPairTrueLocked(link interfaces.Link) {
	switch h.state {
	case types.PairStateUnpaired:
		h.startTimerLocked()
		h.setLocked(types.PairStateRequestedByPeer, ReasonRequestedByPeer)

	case types.PairStateRequested:
		h.stopTimerLocked()
		if reason, err := h.persistTrustLocked(); err != nil {
			log.Warn("pairing aborted", "deviceId", h.deviceID, "err", err)
			_ = h.sendLocked(false)
			h.setLocked(types.PairStateUnpaired, reason)
			return
		}
		h.setLocked(types.PairStatePaired, ReasonAcceptedByPeer)

	case types.PairStateRequestedByPeer:
		log.Debug("duplicate pair request ignored", "deviceId", h.deviceID)

	case types.PairStatePaired:
		// 对端可能丢失了信任，重新确认
		if link != nil {
			if err := link.SendPacket(newPairPacket(true)); err != nil {
				log.Debug("re-acknowledging pair failed", "deviceId", h.deviceID, "err", err)
			}
		}
	}
}

func (h *Handler) onPairFalseLocked() {
	switch h.state {
	case types.PairStateRequested:
		h.stopTimerLocked()
		h.setLocked(types.PairStateUnpaired, ReasonRejectedByPeer)

	case types.PairStateRequestedByPeer:
		h.stopTimerLocked()
		h.setLocked(types.PairStateUnpaired, ReasonCancelledByPeer)

	case types.PairStatePaired:
		if err := h.forgetLocked(); err != nil {
			log.Warn("deleting trusted certificate failed", "deviceId", h.deviceID, "err", err)
		}
		h.setLocked(types.PairStateUnpaired, ReasonUnpairedByPeer)

	case types.PairStateUnpaired:
	}
}

// ============================================================================
//                              内部
// ============================================================================

func (h *Handler) invalid(op string) error {
	return fmt.Errorf("%w: cannot %s in state %s", types.ErrInvalidState, op, h.state)
}

func (h *Handler) setLocked(state types.PairState, reason string) {
	prev := h.state
	h.state = state
	log.Info("pair state changed", "deviceId", h.deviceID, "from", prev.String(), "to", state.String(), "reason", reason)
	if h.opts.OnTransition != nil {
		h.opts.OnTransition(h.deviceID, state, reason)
	}
}

func newPairPacket(pair bool) *packet.Packet {
	p := packet.New(packet.TypePair)
	p.Body.SetBool(fieldPair, pair)
	return p
}

// sendLocked 经第一条可用链路发送配对包
func (h *Handler) sendLocked(pair bool) error {
	links := h.opts.Links()
	if len(links) == 0 {
		return fmt.Errorf("%w: %s", types.ErrNotReachable, h.deviceID)
	}
	var errs []error
	for _, l := range links {
		err := l.SendPacket(newPairPacket(pair))
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("%w: %w", types.ErrNotReachable, errors.Join(errs...))
}

// persistTrustLocked 保存当前链路证书并核对所有活动链路的指纹
//
// 失败时返回应报告的原因。
func (h *Handler) persistTrustLocked() (string, error) {
	links := h.opts.Links()
	if len(links) == 0 {
		return ReasonCertMismatch, fmt.Errorf("%w: %s", types.ErrNotReachable, h.deviceID)
	}
	if h.opts.Trust == nil {
		return ReasonStorage, fmt.Errorf("%w: no trust store", types.ErrStorage)
	}

	cert := certstore.FromX509(links[0].Certificate())
	if cert.DeviceID != h.deviceID {
		return ReasonCertMismatch, fmt.Errorf("%w: certificate belongs to %q", types.ErrCertificateInvalid, cert.DeviceID)
	}
	if err := h.opts.Trust.Validate(cert); err != nil {
		return ReasonCertMismatch, err
	}
	if err := h.opts.Trust.StorePeerCertificate(h.deviceID, cert); err != nil {
		return ReasonStorage, err
	}

	stored, err := h.opts.Trust.TrustedFingerprint(h.deviceID)
	if err != nil {
		return ReasonStorage, err
	}
	for _, l := range links {
		if l.Fingerprint() != stored {
			_ = h.opts.Trust.DeletePeerCertificate(h.deviceID)
			return ReasonCertMismatch, fmt.Errorf("%w: link fingerprint differs from trusted certificate", types.ErrCertificateInvalid)
		}
	}
	return "", nil
}

func (h *Handler) forgetLocked() error {
	if h.opts.Trust == nil {
		return nil
	}
	return h.opts.Trust.DeletePeerCertificate(h.deviceID)
}

// ============================================================================
//                              计时器
// ============================================================================

func (h *Handler) startTimerLocked() {
	h.stopTimerLocked()
	gen := h.gen
	h.timer = h.opts.Clock.AfterFunc(h.opts.Timeout, func() { h.expire(gen) })
}

func (h *Handler) stopTimerLocked() {
	h.gen++
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

func (h *Handler) expire(gen uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if gen != h.gen {
		return
	}
	h.timer = nil

	switch h.state {
	case types.PairStateRequested:
		h.setLocked(types.PairStateUnpaired, ReasonTimeout)
	case types.PairStateRequestedByPeer:
		_ = h.sendLocked(false)
		h.setLocked(types.PairStateUnpaired, ReasonTimeout)
	}
}
