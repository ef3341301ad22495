// Package registry 维护 deviceId → Device 的权威映射
//
// 注册表接收链路提供者的连接事件，合并设备描述，驱动配对状态机，
// 并通过两条串行事件总线对外通知：
//
//   - ui 总线：设备列表变化、配对状态变化
//   - packets 总线：已配对设备发来的业务包，按到达顺序投递
//
// 锁顺序：配对状态机锁 → 注册表锁。注册表持锁期间不调用状态机，
// 也不关闭链路（关闭会同步回调 OnConnectionLost）。
package registry
