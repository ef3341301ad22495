package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dep2p/go-lanconnect/pkg/types"
)

const namespace = "lanconnect"

// 数据报丢弃原因
const (
	DropOversize    = "oversize"
	DropMalformed   = "malformed"
	DropNotIdentity = "not_identity"
	DropOwnID       = "own_id"
	DropInvalidID   = "invalid_id"
	DropRateLimited = "rate_limited"
	DropLinked      = "already_linked"
)

// Metrics lanconnect 指标集合
type Metrics struct {
	registry *prometheus.Registry

	datagramsReceived  prometheus.Counter
	datagramsDropped   *prometheus.CounterVec
	handshakes         *prometheus.CounterVec
	linksActive        prometheus.Gauge
	bytesSent          prometheus.Counter
	bytesReceived      prometheus.Counter
	linesDiscarded     prometheus.Counter
	pairingTransitions *prometheus.CounterVec
	devicesKnown       prometheus.Gauge
}

// New 创建指标集合
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		datagramsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "datagrams_received_total",
			Help:      "Identity datagrams received.",
		}),
		datagramsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "datagrams_dropped_total",
			Help:      "Identity datagrams dropped, by reason.",
		}, []string{"reason"}),
		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "handshakes_total",
			Help:      "TLS handshakes, by role and result.",
		}, []string{"role", "result"}),
		linksActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "active",
			Help:      "Currently open links.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "sent_bytes_total",
			Help:      "Bytes written to links.",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "received_bytes_total",
			Help:      "Bytes read from links.",
		}),
		linesDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "lines_discarded_total",
			Help:      "Inbound lines discarded as oversized or unparsable.",
		}),
		pairingTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pairing",
			Name:      "transitions_total",
			Help:      "Pairing state transitions, by target state.",
		}, []string{"state"}),
		devicesKnown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "devices",
			Help:      "Devices currently known to the registry.",
		}),
	}

	m.registry.MustRegister(
		m.datagramsReceived,
		m.datagramsDropped,
		m.handshakes,
		m.linksActive,
		m.bytesSent,
		m.bytesReceived,
		m.linesDiscarded,
		m.pairingTransitions,
		m.devicesKnown,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry 返回私有 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// DatagramReceived 记录收到一个发现数据报
func (m *Metrics) DatagramReceived() {
	if m == nil {
		return
	}
	m.datagramsReceived.Inc()
}

// DatagramDropped 记录丢弃一个发现数据报
func (m *Metrics) DatagramDropped(reason string) {
	if m == nil {
		return
	}
	m.datagramsDropped.WithLabelValues(reason).Inc()
}

// Handshake 记录一次 TLS 握手结果
func (m *Metrics) Handshake(role string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.handshakes.WithLabelValues(role, result).Inc()
}

// LinkOpened 链路建立
func (m *Metrics) LinkOpened() {
	if m == nil {
		return
	}
	m.linksActive.Inc()
}

// LinkClosed 链路关闭
func (m *Metrics) LinkClosed() {
	if m == nil {
		return
	}
	m.linksActive.Dec()
}

// BytesSent 记录写出字节数
func (m *Metrics) BytesSent(n int) {
	if m == nil {
		return
	}
	m.bytesSent.Add(float64(n))
}

// BytesReceived 记录读入字节数
func (m *Metrics) BytesReceived(n int) {
	if m == nil {
		return
	}
	m.bytesReceived.Add(float64(n))
}

// LineDiscarded 记录丢弃一行入站数据
func (m *Metrics) LineDiscarded() {
	if m == nil {
		return
	}
	m.linesDiscarded.Inc()
}

// PairingTransition 记录配对状态迁移
func (m *Metrics) PairingTransition(state types.PairState) {
	if m == nil {
		return
	}
	m.pairingTransitions.WithLabelValues(state.String()).Inc()
}

// SetDevicesKnown 设置已知设备数
func (m *Metrics) SetDevicesKnown(n int) {
	if m == nil {
		return
	}
	m.devicesKnown.Set(float64(n))
}
