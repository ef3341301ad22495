package types

// PairState 设备配对状态
type PairState int

const (
	// PairStateUnpaired 未配对（初始/终止状态）
	PairStateUnpaired PairState = iota
	// PairStateRequested 本地已发出配对请求，等待对端
	PairStateRequested
	// PairStateRequestedByPeer 对端发来配对请求，等待本地决定
	PairStateRequestedByPeer
	// PairStatePaired 已配对
	PairStatePaired
)

// String 返回状态名
func (s PairState) String() string {
	switch s {
	case PairStateUnpaired:
		return "unpaired"
	case PairStateRequested:
		return "requested"
	case PairStateRequestedByPeer:
		return "requested_by_peer"
	case PairStatePaired:
		return "paired"
	default:
		return "unknown"
	}
}

// IsPending 是否处于等待决定的中间状态
func (s PairState) IsPending() bool {
	return s == PairStateRequested || s == PairStateRequestedByPeer
}
