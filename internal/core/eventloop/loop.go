package eventloop

import (
	"container/heap"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/petermattis/goid"

	eventloopif "github.com/dep2p/go-netio/pkg/interfaces/eventloop"
	"github.com/dep2p/go-netio/pkg/lib/log"
	"github.com/dep2p/go-netio/pkg/types"
)

var logger = log.Logger("core/eventloop")

// 错误定义
var (
	// ErrAlreadyStarted 循环已启动
	ErrAlreadyStarted = errors.New("eventloop: already started")

	// ErrStopped 循环已停止，不能再启动
	ErrStopped = errors.New("eventloop: stopped")
)

// 循环状态
const (
	stateCreated int32 = iota
	stateRunning
	stateStopped
)

// 确保实现接口
var _ eventloopif.EventLoop = (*Loop)(nil)

// Option 循环选项
type Option func(*Loop)

// WithClock 注入时钟（测试使用 clock.NewMock()）
func WithClock(c clock.Clock) Option {
	return func(l *Loop) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithName 设置循环名称，用于日志
func WithName(name string) Option {
	return func(l *Loop) {
		l.name = name
	}
}

// Loop 单 goroutine 事件循环
type Loop struct {
	name  string
	clock clock.Clock

	mu      sync.Mutex
	queue   taskQueue
	pending map[*eventloopif.Task]*taskEntry
	seq     uint64
	stopped bool

	state atomic.Int32
	gid   atomic.Int64

	// drainOnExit 在循环 goroutine 上调用 Stop 时，由 run 退出前取消剩余任务
	drainOnExit atomic.Bool

	wake   chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}

	stopOnce sync.Once
}

// New 创建事件循环
func New(opts ...Option) *Loop {
	l := &Loop{
		name:    "eventloop",
		clock:   clock.New(),
		pending: make(map[*eventloopif.Task]*taskEntry),
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name 返回循环名称
func (l *Loop) Name() string {
	return l.name
}

// Clock 返回循环时钟
func (l *Loop) Clock() clock.Clock {
	return l.clock
}

// Start 启动循环 goroutine
func (l *Loop) Start() error {
	if !l.state.CompareAndSwap(stateCreated, stateRunning) {
		if l.state.Load() == stateStopped {
			return ErrStopped
		}
		return ErrAlreadyStarted
	}
	go l.run()
	logger.Debug("事件循环已启动", "loop", l.name)
	return nil
}

// Stop 停止循环
//
// 等待当前任务执行完毕后退出，剩余任务以 types.TaskCanceled 调用。
// 在循环 goroutine 上调用时不等待退出，剩余任务在当前任务返回后取消。幂等。
func (l *Loop) Stop() error {
	l.stopOnce.Do(func() {
		prev := l.state.Swap(stateStopped)
		onLoop := prev == stateRunning && l.IsOnCallersThread()
		if onLoop {
			l.drainOnExit.Store(true)
		}
		close(l.stopCh)

		switch {
		case onLoop:
		case prev == stateRunning:
			<-l.doneCh
			l.cancelAll()
		default:
			close(l.doneCh)
			l.cancelAll()
		}
		logger.Debug("事件循环已停止", "loop", l.name)
	})
	return nil
}

// Done 循环 goroutine 退出后关闭
func (l *Loop) Done() <-chan struct{} {
	return l.doneCh
}

// ScheduleTaskNow 尽快执行任务
func (l *Loop) ScheduleTaskNow(task *eventloopif.Task) {
	l.ScheduleTaskFuture(task, l.clock.Now())
}

// ScheduleTaskFuture 在 runAt 之后执行任务
//
// 已排队的同一任务会被移动到新的位置。
func (l *Loop) ScheduleTaskFuture(task *eventloopif.Task, runAt time.Time) {
	if task == nil {
		return
	}

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		task.Run(types.TaskCanceled)
		return
	}
	if e, ok := l.pending[task]; ok {
		heap.Remove(&l.queue, e.index)
	}
	l.seq++
	e := &taskEntry{task: task, runAt: runAt, seq: l.seq}
	heap.Push(&l.queue, e)
	l.pending[task] = e
	l.mu.Unlock()

	l.signal()
}

// CancelTask 取消排队中的任务
func (l *Loop) CancelTask(task *eventloopif.Task) {
	if task == nil {
		return
	}

	l.mu.Lock()
	e, ok := l.pending[task]
	if ok {
		heap.Remove(&l.queue, e.index)
		delete(l.pending, task)
	}
	l.mu.Unlock()

	if ok {
		task.Run(types.TaskCanceled)
	}
}

// CurrentTime 返回循环时钟当前时间
func (l *Loop) CurrentTime() time.Time {
	return l.clock.Now()
}

// IsOnCallersThread 调用方是否在循环 goroutine 上
func (l *Loop) IsOnCallersThread() bool {
	gid := l.gid.Load()
	return gid != 0 && gid == goid.Get()
}

// PendingTasks 返回排队任务数
func (l *Loop) PendingTasks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// ============================================================================
//                              内部方法
// ============================================================================

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// next 取出到期任务；没有到期任务时返回距下一个任务的等待时长
func (l *Loop) next(now time.Time) (task *eventloopif.Task, wait time.Duration, hasNext bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		return nil, 0, false
	}
	head := l.queue[0]
	if head.runAt.After(now) {
		return nil, head.runAt.Sub(now), true
	}
	heap.Pop(&l.queue)
	delete(l.pending, head.task)
	return head.task, 0, true
}

func (l *Loop) run() {
	l.gid.Store(goid.Get())
	defer func() {
		if l.drainOnExit.Load() {
			l.cancelAll()
		}
		close(l.doneCh)
	}()

	for {
		select {
		case <-l.stopCh:
			return
		default:
		}

		task, wait, hasNext := l.next(l.clock.Now())
		if task != nil {
			task.Run(types.TaskRunReady)
			continue
		}

		var timer *clock.Timer
		var timerC <-chan time.Time
		if hasNext {
			timer = l.clock.Timer(wait)
			timerC = timer.C
		}

		select {
		case <-l.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-l.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// cancelAll 以取消状态执行所有剩余任务
func (l *Loop) cancelAll() {
	for {
		l.mu.Lock()
		l.stopped = true
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		e := heap.Pop(&l.queue).(*taskEntry)
		delete(l.pending, e.task)
		l.mu.Unlock()

		e.task.Run(types.TaskCanceled)
	}
}
