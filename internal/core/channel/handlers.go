package channel

import (
	"sync"
	"sync/atomic"

	channelif "github.com/dep2p/go-netio/pkg/interfaces/channel"
	eventloopif "github.com/dep2p/go-netio/pkg/interfaces/eventloop"
	"github.com/dep2p/go-netio/pkg/types"
)

// ============================================================================
//                              ReadWriteHandler - 应用层 Handler
// ============================================================================

// ReadWriteOptions 应用层 Handler 选项
type ReadWriteOptions struct {
	// InitialWindow 初始读窗口
	InitialWindow int

	// AutoIncrementWindow 每次读完后自动归还等量窗口
	AutoIncrementWindow bool

	// OnRead 收到数据时在循环上调用，data 仅在回调期间有效
	OnRead func(h *ReadWriteHandler, data []byte)

	// OnShutdown 每个方向关闭时在循环上调用
	OnShutdown func(h *ReadWriteHandler, dir types.Direction, err error)
}

// ReadWriteHandler 位于链尾的应用层 Handler
//
// 读方向把数据交给 OnRead；Write 可在任意 goroutine 调用，数据按分片
// 大小切分后向左发送。
type ReadWriteHandler struct {
	opts ReadWriteOptions

	mu   sync.Mutex
	slot channelif.Slot

	readInvocations atomic.Int64
	bytesRead       atomic.Uint64
	bytesWritten    atomic.Uint64
	destroyed       atomic.Bool
}

// 确保实现接口
var (
	_ channelif.Handler            = (*ReadWriteHandler)(nil)
	_ channelif.StatisticsProvider = (*ReadWriteHandler)(nil)
)

// NewReadWriteHandler 创建应用层 Handler
func NewReadWriteHandler(opts ReadWriteOptions) *ReadWriteHandler {
	return &ReadWriteHandler{opts: opts}
}

// Attach 把 Handler 设置到 slot 上
func (h *ReadWriteHandler) Attach(slot channelif.Slot) error {
	if err := slot.SetHandler(h); err != nil {
		return err
	}
	h.mu.Lock()
	h.slot = slot
	h.mu.Unlock()
	return nil
}

// Slot 返回所在 Slot
func (h *ReadWriteHandler) Slot() channelif.Slot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.slot
}

// ReadInvocations 返回 OnRead 调用次数
func (h *ReadWriteHandler) ReadInvocations() int {
	return int(h.readInvocations.Load())
}

// Destroyed 是否已销毁
func (h *ReadWriteHandler) Destroyed() bool {
	return h.destroyed.Load()
}

// Write 发送数据，可在任意 goroutine 调用
//
// onComplete 在最后一个分片被传输层写出后调用，可为空。
func (h *ReadWriteHandler) Write(data []byte, onComplete func(error)) {
	slot := h.Slot()
	if slot == nil {
		if onComplete != nil {
			onComplete(types.Wrap(types.ErrInvalidState, "handler is not attached"))
		}
		return
	}
	buf := append([]byte(nil), data...)
	ch := slot.Channel()
	ch.ScheduleTaskNow(eventloopif.NewTask("rw_handler_write", func(status types.TaskStatus) {
		if status == types.TaskCanceled {
			if onComplete != nil {
				onComplete(types.ErrTaskCanceled)
			}
			return
		}
		if err := h.writeFragments(slot, buf, onComplete); err != nil {
			ch.Shutdown(err)
		}
	}))
}

// writeFragments 按分片发送，扣除上游 Handler 的消息开销
func (h *ReadWriteHandler) writeFragments(slot channelif.Slot, data []byte, onComplete func(error)) error {
	ch := slot.Channel()
	fragment := ch.MaxFragmentSize() - slot.UpstreamMessageOverhead()
	if fragment <= 0 {
		return types.Wrap(types.ErrResourceExhausted, "upstream overhead exceeds fragment size")
	}

	for len(data) > 0 {
		msg, err := ch.AcquireMessage(types.DirWrite, min(len(data), fragment))
		if err != nil {
			if onComplete != nil {
				onComplete(err)
			}
			return err
		}
		n := msg.Append(data)
		data = data[n:]
		if len(data) == 0 {
			msg.OnCompletion = onComplete
		}
		h.bytesWritten.Add(uint64(n))
		if err := slot.SendMessage(msg, types.DirWrite); err != nil {
			if len(data) > 0 && onComplete != nil {
				onComplete(err)
			}
			return err
		}
	}
	return nil
}

// IncrementWindow 归还读窗口，可在任意 goroutine 调用
func (h *ReadWriteHandler) IncrementWindow(size int) {
	if slot := h.Slot(); slot != nil {
		slot.IncrementReadWindow(size)
	}
}

// ProcessReadMessage 把数据交给 OnRead
func (h *ReadWriteHandler) ProcessReadMessage(slot channelif.Slot, msg *types.Message) error {
	defer msg.Release()

	n := msg.Len()
	h.readInvocations.Add(1)
	h.bytesRead.Add(uint64(n))
	if h.opts.OnRead != nil {
		h.opts.OnRead(h, msg.Bytes())
	}
	if h.opts.AutoIncrementWindow && n > 0 {
		slot.IncrementReadWindow(n)
	}
	return nil
}

// ProcessWriteMessage 链尾不会收到写消息
func (h *ReadWriteHandler) ProcessWriteMessage(_ channelif.Slot, msg *types.Message) error {
	msg.Complete(types.ErrInvalidSlotTopology)
	msg.Release()
	return types.Wrap(types.ErrInvalidSlotTopology, "write message reached application handler")
}

// IncrementReadWindow 链尾没有下游
func (h *ReadWriteHandler) IncrementReadWindow(channelif.Slot, int) error {
	return nil
}

// Shutdown 立即完成
func (h *ReadWriteHandler) Shutdown(slot channelif.Slot, dir types.Direction, err error, abort bool) error {
	if h.opts.OnShutdown != nil {
		h.opts.OnShutdown(h, dir, err)
	}
	return slot.OnHandlerShutdownComplete(dir, err, abort)
}

// InitialWindowSize 初始读窗口
func (h *ReadWriteHandler) InitialWindowSize() int {
	return h.opts.InitialWindow
}

// MessageOverhead 无额外开销
func (h *ReadWriteHandler) MessageOverhead() int {
	return 0
}

// Destroy 标记销毁
func (h *ReadWriteHandler) Destroy() {
	h.destroyed.Store(true)
}

// Statistics 返回读写字节数
func (h *ReadWriteHandler) Statistics() channelif.Statistics {
	return channelif.Statistics{
		Kind:         channelif.KindApp,
		BytesRead:    h.bytesRead.Load(),
		BytesWritten: h.bytesWritten.Load(),
	}
}

// ResetStatistics 重置计数
func (h *ReadWriteHandler) ResetStatistics() {
	h.bytesRead.Store(0)
	h.bytesWritten.Store(0)
}

// ============================================================================
//                              NoopHandler - 透传 Handler
// ============================================================================

// NoopHandler 双向透传消息的 Handler
//
// 用于占位或在链中间观察流量。
type NoopHandler struct {
	window   int
	overhead int

	destroyed atomic.Bool
}

// 确保实现接口
var _ channelif.Handler = (*NoopHandler)(nil)

// NewNoopHandler 创建透传 Handler
func NewNoopHandler(initialWindow, overhead int) *NoopHandler {
	return &NoopHandler{window: initialWindow, overhead: overhead}
}

// ProcessReadMessage 转发给右侧，没有右侧时丢弃
func (h *NoopHandler) ProcessReadMessage(slot channelif.Slot, msg *types.Message) error {
	if slot.Right() == nil {
		msg.Release()
		return nil
	}
	return slot.SendMessage(msg, types.DirRead)
}

// ProcessWriteMessage 转发给左侧，没有左侧时视为已写出
func (h *NoopHandler) ProcessWriteMessage(slot channelif.Slot, msg *types.Message) error {
	if slot.Left() == nil {
		msg.Complete(nil)
		msg.Release()
		return nil
	}
	return slot.SendMessage(msg, types.DirWrite)
}

// IncrementReadWindow 把窗口增量继续向上游传递
func (h *NoopHandler) IncrementReadWindow(slot channelif.Slot, size int) error {
	slot.IncrementReadWindow(size)
	return nil
}

// Shutdown 立即完成
func (h *NoopHandler) Shutdown(slot channelif.Slot, dir types.Direction, err error, abort bool) error {
	return slot.OnHandlerShutdownComplete(dir, err, abort)
}

// InitialWindowSize 初始读窗口
func (h *NoopHandler) InitialWindowSize() int {
	return h.window
}

// MessageOverhead 配置的消息开销
func (h *NoopHandler) MessageOverhead() int {
	return h.overhead
}

// Destroy 标记销毁
func (h *NoopHandler) Destroy() {
	h.destroyed.Store(true)
}

// Destroyed 是否已销毁
func (h *NoopHandler) Destroyed() bool {
	return h.destroyed.Load()
}
