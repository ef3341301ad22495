// Package types 定义 lanconnect 的基础类型
//
// 本文件定义所有公共错误类型。调用方使用 errors.Is 判断错误种类，
// 各组件以 %w 包装并附带上下文。
package types

import "errors"

// ============================================================================
//                              传输层错误
// ============================================================================

var (
	// ErrParse 数据包字节格式错误（JSON 非法、缺少 id 或 type）
	ErrParse = errors.New("malformed packet")

	// ErrHandshakeFailure TLS 协商失败
	ErrHandshakeFailure = errors.New("tls handshake failed")

	// ErrRateLimited 冷却窗口内的重复连接尝试被抑制
	ErrRateLimited = errors.New("connection attempt rate limited")
)

// ============================================================================
//                              证书与存储错误
// ============================================================================

var (
	// ErrCertificateInvalid 证书过期、尚未生效或指纹不匹配
	ErrCertificateInvalid = errors.New("certificate invalid")

	// ErrStorage 证书持久化失败
	ErrStorage = errors.New("certificate storage failure")

	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("not found")
)

// ============================================================================
//                              设备与配对错误
// ============================================================================

var (
	// ErrInvalidDeviceID 设备 ID 格式非法
	ErrInvalidDeviceID = errors.New("invalid device id")

	// ErrNotReachable 设备当前没有可用链路
	ErrNotReachable = errors.New("device not reachable")

	// ErrNotPaired 设备未配对
	ErrNotPaired = errors.New("device not paired")

	// ErrInvalidState 当前配对状态不允许该操作
	ErrInvalidState = errors.New("invalid pairing state")

	// ErrUnknownDevice 注册表中不存在该设备
	ErrUnknownDevice = errors.New("unknown device")

	// ErrLinkClosed 链路已关闭
	ErrLinkClosed = errors.New("link closed")
)
