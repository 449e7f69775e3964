// Package channel 实现 Slot 管道
//
// Channel 是绑定到单个事件循环的有序 Slot 链，负责：
//   - 在相邻 Slot 之间路由读/写消息
//   - 读方向窗口（背压）记账
//   - 两阶段关闭：读方向从左到右，写方向从右到左
//   - 周期性统计采样
//
// # Slot 存储
//
// Slot 存放在 Channel 持有的 arena 中，邻居以下标表示，链上不会出现环。
// Slot 被 Remove 后其下标作废，不再复用。
//
// # 线程模型
//
// 除 Shutdown、ShutdownState 和 Slot.IncrementReadWindow 外，所有方法
// 只能在 Channel 的事件循环 goroutine 上调用。其它 goroutine 通过
// ScheduleTaskNow 把操作转成循环上的任务。
//
// # 使用示例
//
//	ch := channel.New(channel.Options{
//	    Loop: group.Next(),
//	    OnSetupCompleted: func(ch *channel.Channel, err error) {
//	        slot, _ := ch.NewSlot()
//	        _ = slot.SetHandler(handler)
//	    },
//	    OnShutdownCompleted: func(ch *channel.Channel, err error) {},
//	})
package channel
