package lanconnect

import (
	"errors"

	"github.com/dep2p/go-lanconnect/pkg/types"
)

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 节点生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted 节点未启动
	ErrNotStarted = errors.New("node not started")

	// ErrAlreadyStarted 节点已启动
	ErrAlreadyStarted = errors.New("node already started")

	// ErrNodeClosed 节点已关闭
	ErrNodeClosed = errors.New("node closed")

	// ────────────────────────────────────────────────────────────────────────
	// 设备相关错误（与 pkg/types 同一实例，便于 errors.Is）
	// ────────────────────────────────────────────────────────────────────────

	ErrNotReachable       = types.ErrNotReachable
	ErrNotPaired          = types.ErrNotPaired
	ErrUnknownDevice      = types.ErrUnknownDevice
	ErrInvalidState       = types.ErrInvalidState
	ErrCertificateInvalid = types.ErrCertificateInvalid
	ErrRateLimited        = types.ErrRateLimited
)
