// Package metrics 提供 Prometheus 指标
//
// 所有指标注册在私有 Registry 上，由 cmd 按需通过 promhttp 暴露。
// *Metrics 为 nil 时所有记录方法都是空操作，关闭指标时直接传 nil。
package metrics
