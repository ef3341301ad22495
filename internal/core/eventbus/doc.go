// Package eventbus 实现串行事件分发
//
// 每个 Bus 持有一个工作 goroutine 与无界 FIFO 队列。监听者以字符串键
// 注册，同键重复注册替换旧监听者并保留原位置。所有监听者在同一个
// goroutine 上按注册顺序依次调用，事件之间不会交错。
//
//	bus := eventbus.New("ui")
//	defer bus.Close()
//
//	bus.Subscribe("tray", func(ev any) {
//	    // 处理事件
//	})
//	bus.Emit(DeviceListChanged{})
//
// 监听者内部的 panic 被恢复并记录日志，不影响后续事件。
package eventbus
