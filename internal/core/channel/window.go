package channel

import (
	eventloopif "github.com/dep2p/go-netio/pkg/interfaces/eventloop"
	"github.com/dep2p/go-netio/pkg/types"
)

// IncrementReadWindow 请求扩大当前 Slot 的读窗口
//
// 增量先累加到批次中，由 Channel 上唯一的窗口更新任务统一生效；
// 从其它 goroutine 调用时先转成循环任务。负数增量视为窗口下溢，
// Channel 以 ErrInvalidState 关闭。
func (s *slot) IncrementReadWindow(size int) {
	if !s.ch.IsOnCallersThread() {
		s.ch.ScheduleTaskNow(eventloopif.NewTask("slot_increment_window", func(types.TaskStatus) {
			s.incrementReadWindow(size)
		}))
		return
	}
	s.incrementReadWindow(size)
}

func (s *slot) incrementReadWindow(size int) {
	if size < 0 {
		s.ch.Shutdown(types.Wrap(types.ErrInvalidState, "window underflow on slot %d: %d", s.index, size))
		return
	}
	c := s.ch
	if !c.backPressure || c.ShutdownState() == types.ShutdownComplete || !s.linked {
		return
	}

	s.windowBatch = saturatingAdd(s.windowBatch, size)
	if !c.windowUpdateScheduled {
		c.windowUpdateScheduled = true
		c.loop.ScheduleTaskNow(c.windowTask)
	}
}

func (c *Channel) runWindowUpdate(status types.TaskStatus) {
	if !c.windowUpdateScheduled {
		return
	}
	c.windowUpdateScheduled = false
	if status == types.TaskCanceled {
		return
	}
	c.applyWindowUpdates()
}

// flushWindowUpdates 立即执行排队中的窗口更新
func (c *Channel) flushWindowUpdates() {
	if c.windowUpdateScheduled {
		c.windowUpdateScheduled = false
		c.applyWindowUpdates()
	}
}

// applyWindowUpdates 从链尾向链头依次生效窗口增量
//
// 每个 Slot 的批次加到自身窗口上，再通知左侧 Handler 可以继续发送。
func (c *Channel) applyWindowUpdates() {
	if c.ShutdownState() == types.ShutdownComplete {
		return
	}

	for s := c.last(); s != nil; s = c.at(s.left) {
		left := c.at(s.left)
		if left == nil || left.handler == nil || s.windowBatch == 0 {
			continue
		}

		size := s.windowBatch
		s.windowBatch = 0
		s.window = saturatingAdd(s.window, size)

		if err := left.handler.IncrementReadWindow(left, size); err != nil {
			c.Shutdown(err)
			return
		}
	}
}

func saturatingAdd(a, b int) int {
	if a > unboundedWindow-b {
		return unboundedWindow
	}
	return a + b
}
