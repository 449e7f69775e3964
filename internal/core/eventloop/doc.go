// Package eventloop 实现单 goroutine 事件循环
//
// Loop 串行执行任务，任务按 (运行时间, 调度序号) 排序。
// 运行时间相同的任务严格保持调度顺序：Channel 依赖这一点保证
// 先于关闭请求的窗口更新一定先执行。
//
// 时间来源是 clock.Clock，测试中可注入 clock.NewMock() 精确控制定时任务。
//
// # 使用示例
//
//	loop := eventloop.New(eventloop.WithName("io-0"))
//	if err := loop.Start(); err != nil {
//	    return err
//	}
//	defer loop.Stop()
//
//	loop.ScheduleTaskNow(eventloopif.NewTask("hello", func(status types.TaskStatus) {
//	    // 在循环 goroutine 上执行
//	}))
package eventloop
