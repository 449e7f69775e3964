package channel

import (
	eventloopif "github.com/dep2p/go-netio/pkg/interfaces/eventloop"
	"github.com/dep2p/go-netio/pkg/types"
)

// ShutdownState 返回关闭状态，任何 goroutine 均可调用
func (c *Channel) ShutdownState() types.ShutdownState {
	return types.ShutdownState(c.state.Load())
}

// ShutdownError 返回触发关闭的错误
func (c *Channel) ShutdownError() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.shutdownErr
}

func (c *Channel) setShutdownErr(err error) {
	c.errMu.Lock()
	c.shutdownErr = err
	c.errMu.Unlock()
}

// Shutdown 发起关闭
//
// 任何 goroutine 均可调用，不阻塞。关闭总是作为循环任务执行；
// 重复调用被忽略，保留第一次的错误（nil 表示本地正常关闭）。
func (c *Channel) Shutdown(err error) {
	c.shutdown(err, false)
}

// Abort 立即关闭，Handler 不必冲刷缓冲数据
func (c *Channel) Abort(err error) {
	c.shutdown(err, true)
}

func (c *Channel) shutdown(err error, abort bool) {
	if !c.shutdownRequested.CompareAndSwap(false, true) {
		return
	}
	c.setShutdownErr(err)
	c.abortImmediately = abort

	if err != nil {
		logger.Debug("Channel 请求关闭", "channel", c.shortID(), "err", err)
	} else {
		logger.Debug("Channel 请求关闭", "channel", c.shortID())
	}
	c.loop.ScheduleTaskNow(c.shutdownTask)
}

// runShutdown 启动读方向关闭
//
// 循环已停止（任务被取消）时按 abort 方式继续，保证关闭回调仍然触发。
func (c *Channel) runShutdown(status types.TaskStatus) {
	if c.ShutdownState() != types.ShutdownNotStarted {
		return
	}
	abort := c.abortImmediately || status == types.TaskCanceled

	// 关闭前已请求的窗口更新必须先生效
	if status == types.TaskRunReady {
		c.flushWindowUpdates()
	}

	c.state.Store(int32(types.ShutdownReading))
	err := c.ShutdownError()

	first := c.at(c.first)
	if first == nil {
		c.scheduleComplete()
		return
	}
	first.shutdown(types.DirRead, err, abort)
}

// shutdown 通知当前 Slot 的 Handler 关闭 dir 方向
func (s *slot) shutdown(dir types.Direction, err error, abort bool) {
	if s.shutdownNotified[dir] {
		return
	}
	s.shutdownNotified[dir] = true

	if s.handler == nil {
		_ = s.OnHandlerShutdownComplete(dir, err, abort)
		return
	}
	if herr := s.handler.Shutdown(s, dir, err, abort); herr != nil {
		logger.Warn("Handler 关闭失败", "channel", s.ch.shortID(), "slot", s.index, "dir", dir, "err", herr)
		_ = s.OnHandlerShutdownComplete(dir, err, abort)
	}
}

// OnHandlerShutdownComplete Handler 完成 dir 方向关闭
//
// 读方向完成后通知右侧邻居；到达链尾后转入写方向，从链尾向链头传播；
// 写方向到达链头后 Channel 关闭完成。
func (s *slot) OnHandlerShutdownComplete(dir types.Direction, err error, abort bool) error {
	c := s.ch
	if c.ShutdownState() == types.ShutdownComplete || s.shutdownDone[dir] {
		return nil
	}
	if !s.shutdownNotified[dir] {
		return types.Wrap(types.ErrInvalidState, "slot %d completed %s shutdown before notification", s.index, dir)
	}
	s.shutdownDone[dir] = true

	if dir == types.DirRead {
		if r := c.at(s.right); r != nil {
			r.shutdown(types.DirRead, err, abort)
			return nil
		}
		// 读方向到达链尾，写方向作为新任务开始，避免调用栈过深
		c.state.Store(int32(types.ShutdownWriting))
		c.ScheduleTaskNow(newShutdownWriteTask(s, err, abort))
		return nil
	}

	if l := c.at(s.left); l != nil {
		l.shutdown(types.DirWrite, err, abort)
		return nil
	}
	c.scheduleComplete()
	return nil
}

// newShutdownWriteTask 从链尾开始写方向关闭
func newShutdownWriteTask(last *slot, err error, abort bool) *eventloopif.Task {
	return eventloopif.NewTask("channel_shutdown_write", func(status types.TaskStatus) {
		last.shutdown(types.DirWrite, err, abort || status == types.TaskCanceled)
	})
}

// scheduleComplete 调度最终完成任务
func (c *Channel) scheduleComplete() {
	c.state.Store(int32(types.ShutdownWriting))
	c.ScheduleTaskNow(c.finalTask)
}

// runShutdownComplete 触发关闭回调并销毁所有 Handler
func (c *Channel) runShutdownComplete(types.TaskStatus) {
	if c.ShutdownState() == types.ShutdownComplete {
		return
	}
	c.state.Store(int32(types.ShutdownComplete))
	err := c.ShutdownError()

	c.stopStatistics()

	if err != nil {
		logger.Info("Channel 已关闭", "channel", c.shortID(), "err", err)
	} else {
		logger.Info("Channel 已关闭", "channel", c.shortID())
	}

	if c.onShutdown != nil {
		c.onShutdown(c, err)
	}

	for s := c.at(c.first); s != nil; s = c.at(s.right) {
		if s.handler != nil {
			s.handler.Destroy()
		}
	}
}
