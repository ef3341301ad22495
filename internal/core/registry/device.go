package registry

import (
	"slices"

	"github.com/dep2p/go-lanconnect/internal/core/certstore"
	"github.com/dep2p/go-lanconnect/internal/core/pairing"
	"github.com/dep2p/go-lanconnect/pkg/interfaces"
	"github.com/dep2p/go-lanconnect/pkg/types"
)

// device 注册表内部的设备聚合，由 Registry.mu 保护
type device struct {
	info    types.DeviceInfo
	links   []interfaces.Link
	trusted *certstore.Certificate
	pairing *pairing.Handler
	// state 由配对回调同步，读取时无需进入状态机锁
	state types.PairState
}

func (d *device) reachable() bool { return len(d.links) > 0 }

func (d *device) paired() bool { return d.state == types.PairStatePaired }

func (d *device) snapshot() Device {
	s := Device{
		Info:      d.info.Clone(),
		PairState: d.state,
		Reachable: d.reachable(),
		Links:     len(d.links),
	}
	if d.trusted != nil {
		s.Fingerprint = d.trusted.Fingerprint
	}
	return s
}

func (d *device) attach(l interfaces.Link) bool {
	if slices.Contains(d.links, l) {
		return false
	}
	d.links = append(d.links, l)
	return true
}

func (d *device) detach(l interfaces.Link) bool {
	i := slices.Index(d.links, l)
	if i < 0 {
		return false
	}
	d.links = slices.Delete(d.links, i, i+1)
	return true
}

// mergeInfo 合并可变描述字段，返回是否有变化
func (d *device) mergeInfo(info types.DeviceInfo) bool {
	next := d.info
	if info.Name != "" {
		next.Name = info.Name
	}
	if info.Type != "" {
		next.Type = info.Type
	}
	if info.ProtocolVersion != 0 {
		next.ProtocolVersion = info.ProtocolVersion
	}
	if info.IncomingCapabilities != nil {
		next.IncomingCapabilities = slices.Clone(info.IncomingCapabilities)
	}
	if info.OutgoingCapabilities != nil {
		next.OutgoingCapabilities = slices.Clone(info.OutgoingCapabilities)
	}
	if next.Equal(d.info) {
		return false
	}
	d.info = next
	return true
}

// Device 设备快照
type Device struct {
	Info        types.DeviceInfo
	PairState   types.PairState
	Reachable   bool
	Links       int
	Fingerprint string
}

// IsReachable 是否有活动链路
func (d Device) IsReachable() bool { return d.Reachable }

// IsPaired 是否已配对
func (d Device) IsPaired() bool { return d.PairState == types.PairStatePaired }
