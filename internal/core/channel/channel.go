package channel

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	channelif "github.com/dep2p/go-netio/pkg/interfaces/channel"
	eventloopif "github.com/dep2p/go-netio/pkg/interfaces/eventloop"
	"github.com/dep2p/go-netio/pkg/lib/log"
	"github.com/dep2p/go-netio/pkg/types"
)

var logger = log.Logger("core/channel")

// ErrNoEventLoop 未提供事件循环
var ErrNoEventLoop = errors.New("channel: event loop is required")

// 确保实现接口
var _ channelif.Channel = (*Channel)(nil)

// Options Channel 创建选项
type Options struct {
	// Loop 绑定的事件循环（必填）
	Loop eventloopif.EventLoop

	// OnSetupCompleted 建立完成回调，在循环上调用且只调用一次
	// err 非 nil 时 Channel 已不可用，随后还会收到 OnShutdownCompleted
	OnSetupCompleted func(ch *Channel, err error)

	// OnShutdownCompleted 关闭完成回调，在循环上调用且只调用一次
	OnShutdownCompleted func(ch *Channel, err error)

	// EnableReadBackPressure 是否启用读方向背压
	EnableReadBackPressure bool

	// MaxFragmentSize 消息最大字节数，0 使用默认值
	MaxFragmentSize int

	// StatisticsInterval 统计采样间隔，0 表示关闭
	StatisticsInterval time.Duration

	// StatisticsReporter 统计接收方，为空时不采样
	StatisticsReporter channelif.StatisticsReporter
}

// Channel Slot 管道
type Channel struct {
	id   string
	loop eventloopif.EventLoop
	pool *types.MessagePool

	backPressure bool
	onSetup      func(*Channel, error)
	onShutdown   func(*Channel, error)

	// arena 与链头，只在循环上访问
	slots []*slot
	first int

	// 关闭
	state             atomic.Int32
	shutdownRequested atomic.Bool
	errMu             sync.Mutex
	shutdownErr       error
	shutdownTask      *eventloopif.Task
	finalTask         *eventloopif.Task
	abortImmediately  bool

	// 窗口更新
	windowTask            *eventloopif.Task
	windowUpdateScheduled bool

	// 统计
	statsInterval time.Duration
	statsReporter channelif.StatisticsReporter
	statsTask     *eventloopif.Task
	statsLast     time.Time
}

// New 创建 Channel
//
// 建立任务立即调度到事件循环；OnSetupCompleted 在该任务中调用。
func New(opts Options) (*Channel, error) {
	if opts.Loop == nil {
		return nil, ErrNoEventLoop
	}

	ch := &Channel{
		id:            uuid.NewString(),
		loop:          opts.Loop,
		pool:          types.NewMessagePool(opts.MaxFragmentSize),
		backPressure:  opts.EnableReadBackPressure,
		onSetup:       opts.OnSetupCompleted,
		onShutdown:    opts.OnShutdownCompleted,
		first:         noSlot,
		statsInterval: opts.StatisticsInterval,
		statsReporter: opts.StatisticsReporter,
	}
	ch.shutdownTask = eventloopif.NewTask("channel_shutdown", ch.runShutdown)
	ch.finalTask = eventloopif.NewTask("channel_shutdown_complete", ch.runShutdownComplete)
	ch.windowTask = eventloopif.NewTask("channel_window_update", ch.runWindowUpdate)
	ch.statsTask = eventloopif.NewTask("channel_statistics", ch.runStatistics)

	ch.loop.ScheduleTaskNow(eventloopif.NewTask("channel_setup", ch.runSetup))

	logger.Debug("创建 Channel", "channel", log.TruncateID(ch.id, 8), "backPressure", ch.backPressure)
	return ch, nil
}

// ID 返回 Channel 唯一标识
func (c *Channel) ID() string {
	return c.id
}

// EventLoop 返回绑定的事件循环
func (c *Channel) EventLoop() eventloopif.EventLoop {
	return c.loop
}

// MaxFragmentSize 返回最大分片大小
func (c *Channel) MaxFragmentSize() int {
	return c.pool.FragmentSize()
}

// IsReadBackPressureEnabled 是否启用读方向背压
func (c *Channel) IsReadBackPressureEnabled() bool {
	return c.backPressure
}

// AcquireMessage 从消息池获取容量不超过分片大小的空消息
func (c *Channel) AcquireMessage(dir types.Direction, sizeHint int) (*types.Message, error) {
	return c.pool.Acquire(dir, sizeHint)
}

// OutstandingMessages 返回尚未释放的池消息数
func (c *Channel) OutstandingMessages() int64 {
	return c.pool.Outstanding()
}

// ============================================================================
//                              任务转发
// ============================================================================

// ScheduleTaskNow 在 Channel 循环上尽快执行任务
func (c *Channel) ScheduleTaskNow(task *eventloopif.Task) {
	c.loop.ScheduleTaskNow(task)
}

// ScheduleTaskFuture 在 Channel 循环上定时执行任务
func (c *Channel) ScheduleTaskFuture(task *eventloopif.Task, runAt time.Time) {
	c.loop.ScheduleTaskFuture(task, runAt)
}

// CancelTask 取消任务
func (c *Channel) CancelTask(task *eventloopif.Task) {
	c.loop.CancelTask(task)
}

// CurrentTime 返回循环时钟时间
func (c *Channel) CurrentTime() time.Time {
	return c.loop.CurrentTime()
}

// IsOnCallersThread 调用方是否在 Channel 循环上
func (c *Channel) IsOnCallersThread() bool {
	return c.loop.IsOnCallersThread()
}

// ============================================================================
//                              建立
// ============================================================================

func (c *Channel) runSetup(status types.TaskStatus) {
	if status == types.TaskCanceled {
		logger.Warn("Channel 建立任务被取消", "channel", log.TruncateID(c.id, 8))
		c.shutdownRequested.Store(true)
		c.setShutdownErr(types.ErrTaskCanceled)
		c.state.Store(int32(types.ShutdownComplete))
		if c.onSetup != nil {
			c.onSetup(c, types.ErrTaskCanceled)
		}
		if c.onShutdown != nil {
			c.onShutdown(c, types.ErrTaskCanceled)
		}
		return
	}

	if c.statsInterval > 0 && c.statsReporter != nil {
		c.statsLast = c.loop.CurrentTime()
		c.loop.ScheduleTaskFuture(c.statsTask, c.statsLast.Add(c.statsInterval))
	}

	if c.onSetup != nil {
		c.onSetup(c, nil)
	}
}
