package channel

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-netio/internal/core/eventloop"
	channelif "github.com/dep2p/go-netio/pkg/interfaces/channel"
	eventloopif "github.com/dep2p/go-netio/pkg/interfaces/eventloop"
	"github.com/dep2p/go-netio/pkg/types"
)

const waitTimeout = 5 * time.Second

// testContext 单个测试的 Channel 环境
type testContext struct {
	t    *testing.T
	loop *eventloop.Loop
	ch   *Channel

	setup    chan error
	shutdown chan error
}

func newTestContext(t *testing.T, opts Options, loopOpts ...eventloop.Option) *testContext {
	t.Helper()

	loop := eventloop.New(loopOpts...)
	require.NoError(t, loop.Start())
	t.Cleanup(func() { _ = loop.Stop() })

	tc := &testContext{
		t:        t,
		loop:     loop,
		setup:    make(chan error, 4),
		shutdown: make(chan error, 4),
	}
	opts.Loop = loop
	opts.OnSetupCompleted = func(_ *Channel, err error) { tc.setup <- err }
	opts.OnShutdownCompleted = func(_ *Channel, err error) { tc.shutdown <- err }

	ch, err := New(opts)
	require.NoError(t, err)
	tc.ch = ch
	require.NoError(t, tc.waitSetup())
	return tc
}

func (tc *testContext) waitSetup() error {
	select {
	case err := <-tc.setup:
		return err
	case <-time.After(waitTimeout):
		tc.t.Fatal("等待 setup 回调超时")
		return nil
	}
}

func (tc *testContext) waitShutdown() error {
	tc.t.Helper()
	select {
	case err := <-tc.shutdown:
		return err
	case <-time.After(waitTimeout):
		tc.t.Fatal("等待 shutdown 回调超时")
		return nil
	}
}

// onLoop 在循环上执行 fn 并等待完成
func (tc *testContext) onLoop(fn func()) {
	tc.t.Helper()
	done := make(chan struct{})
	tc.loop.ScheduleTaskNow(eventloopif.NewTask("test", func(types.TaskStatus) {
		fn()
		close(done)
	}))
	select {
	case <-done:
	case <-time.After(waitTimeout):
		tc.t.Fatal("循环任务超时")
	}
}

// flush 等待当前排队的任务执行完
func (tc *testContext) flush() {
	tc.onLoop(func() {})
}

// buildChain 在循环上依次创建 Slot 并设置 Handler
func (tc *testContext) buildChain(handlers ...channelif.Handler) []channelif.Slot {
	tc.t.Helper()
	slots := make([]channelif.Slot, len(handlers))
	tc.onLoop(func() {
		for i, h := range handlers {
			s, err := tc.ch.NewSlot()
			require.NoError(tc.t, err)
			if i > 0 {
				require.NoError(tc.t, slots[i-1].InsertRight(s))
			}
			if rw, ok := h.(*ReadWriteHandler); ok {
				require.NoError(tc.t, rw.Attach(s))
			} else {
				require.NoError(tc.t, s.SetHandler(h))
			}
			slots[i] = s
		}
	})
	return slots
}

// ============================================================================
//                              eventLog
// ============================================================================

// eventLog 按发生顺序记录各 Handler 事件
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(ev string) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// ============================================================================
//                              edgeHandler
// ============================================================================

// edgeHandler 模拟链头传输层：记录写出的数据、窗口增量与关闭顺序
type edgeHandler struct {
	name   string
	log    *eventLog
	window int

	// asyncShutdown 为 true 时关闭通过新任务异步完成
	asyncShutdown bool

	// failRead 非 nil 时 ProcessReadMessage 返回该错误
	failRead error

	mu         sync.Mutex
	written    []byte
	increments []int
	destroyed  bool
	stats      channelif.Statistics
}

func newEdgeHandler(name string, log *eventLog, window int) *edgeHandler {
	return &edgeHandler{name: name, log: log, window: window}
}

func (h *edgeHandler) ProcessReadMessage(slot channelif.Slot, msg *types.Message) error {
	if h.failRead != nil {
		msg.Release()
		return h.failRead
	}
	h.mu.Lock()
	h.stats.BytesRead += uint64(msg.Len())
	h.mu.Unlock()
	if slot.Right() == nil {
		msg.Release()
		return nil
	}
	return slot.SendMessage(msg, types.DirRead)
}

func (h *edgeHandler) ProcessWriteMessage(_ channelif.Slot, msg *types.Message) error {
	h.mu.Lock()
	h.written = append(h.written, msg.Bytes()...)
	h.stats.BytesWritten += uint64(msg.Len())
	h.mu.Unlock()
	msg.Complete(nil)
	msg.Release()
	return nil
}

func (h *edgeHandler) IncrementReadWindow(slot channelif.Slot, size int) error {
	h.mu.Lock()
	h.increments = append(h.increments, size)
	h.mu.Unlock()
	if h.log != nil {
		h.log.add(h.name + ":window")
	}
	if slot.Left() != nil {
		slot.IncrementReadWindow(size)
	}
	return nil
}

func (h *edgeHandler) Shutdown(slot channelif.Slot, dir types.Direction, err error, abort bool) error {
	if h.log != nil {
		h.log.add(h.name + ":" + dir.String())
	}
	if !h.asyncShutdown {
		return slot.OnHandlerShutdownComplete(dir, err, abort)
	}
	slot.Channel().ScheduleTaskNow(eventloopif.NewTask("edge_shutdown", func(types.TaskStatus) {
		_ = slot.OnHandlerShutdownComplete(dir, err, abort)
	}))
	return nil
}

func (h *edgeHandler) InitialWindowSize() int { return h.window }

func (h *edgeHandler) MessageOverhead() int { return 0 }

func (h *edgeHandler) Destroy() {
	h.mu.Lock()
	h.destroyed = true
	h.mu.Unlock()
}

func (h *edgeHandler) Statistics() channelif.Statistics {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.stats
	s.Kind = h.name
	return s
}

func (h *edgeHandler) ResetStatistics() {
	h.mu.Lock()
	h.stats = channelif.Statistics{}
	h.mu.Unlock()
}

func (h *edgeHandler) Written() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]byte(nil), h.written...)
}

func (h *edgeHandler) Increments() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.increments...)
}

func (h *edgeHandler) Destroyed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.destroyed
}

// pushRead 在循环上从 slot 向右发送读消息
func pushRead(tc *testContext, slot channelif.Slot, data []byte) error {
	var err error
	tc.onLoop(func() {
		err = slot.SendMessage(types.NewMessage(types.DirRead, data), types.DirRead)
	})
	return err
}

// ============================================================================
//                              fakeReporter
// ============================================================================

type report struct {
	channelID string
	interval  time.Duration
	stats     []channelif.Statistics
}

type fakeReporter struct {
	reports chan report
	closed  chan string
}

func newFakeReporter() *fakeReporter {
	return &fakeReporter{reports: make(chan report, 16), closed: make(chan string, 1)}
}

func (r *fakeReporter) ReportStatistics(channelID string, interval time.Duration, stats []channelif.Statistics) {
	r.reports <- report{channelID: channelID, interval: interval, stats: stats}
}

func (r *fakeReporter) Close(channelID string) {
	r.closed <- channelID
}

// advanceClock 推进 mock 时钟并唤醒循环
func advanceClock(tc *testContext, mock *clock.Mock, d time.Duration) {
	mock.Add(d)
	tc.flush()
}
