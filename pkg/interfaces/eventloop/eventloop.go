// Package eventloop 定义事件循环接口
//
// 管道核心只消费事件循环的四个能力：
// - 立即调度任务
// - 在指定时间调度任务
// - 读取当前时间
// - 判断调用方是否在循环 goroutine 上
package eventloop

import (
	"time"

	"github.com/dep2p/go-netio/pkg/types"
)

// ============================================================================
//                              Task
// ============================================================================

// TaskFunc 任务函数
//
// status 为 types.TaskCanceled 时任务未真正执行，只需完成回调。
type TaskFunc func(status types.TaskStatus)

// Task 可调度任务
//
// 同一个 Task 同一时刻最多在一个事件循环中排队一次。
type Task struct {
	// Name 任务名，用于日志
	Name string

	fn TaskFunc
}

// NewTask 创建任务
func NewTask(name string, fn TaskFunc) *Task {
	return &Task{Name: name, fn: fn}
}

// Run 执行任务
func (t *Task) Run(status types.TaskStatus) {
	if t.fn != nil {
		t.fn(status)
	}
}

// ============================================================================
//                              EventLoop 接口
// ============================================================================

// EventLoop 事件循环接口
//
// 同一循环上的任务严格串行执行，按 (运行时间, 调度顺序) 排序：
// 运行时间相同的任务保持调度顺序。
type EventLoop interface {
	// ScheduleTaskNow 尽快执行任务
	// 任何 goroutine 均可调用，不阻塞
	ScheduleTaskNow(task *Task)

	// ScheduleTaskFuture 在 runAt 之后执行任务
	ScheduleTaskFuture(task *Task, runAt time.Time)

	// CancelTask 取消排队中的任务
	// 任务会以 types.TaskCanceled 被调用一次；未排队时为空操作
	CancelTask(task *Task)

	// CurrentTime 返回循环时钟的当前时间
	CurrentTime() time.Time

	// IsOnCallersThread 调用方是否运行在循环 goroutine 上
	IsOnCallersThread() bool
}

// Group 事件循环组
type Group interface {
	// Next 按轮询返回下一个事件循环
	Next() EventLoop

	// Size 返回循环数量
	Size() int
}
