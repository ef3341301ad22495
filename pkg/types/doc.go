// Package types 定义 lanconnect 的基础类型
//
// 包含设备描述（DeviceInfo / DeviceType）、配对状态（PairState）、
// 设备 ID 工具函数以及所有公共错误类型。
package types
