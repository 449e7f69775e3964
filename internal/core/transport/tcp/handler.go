package tcp

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	channelif "github.com/dep2p/go-netio/pkg/interfaces/channel"
	eventloopif "github.com/dep2p/go-netio/pkg/interfaces/eventloop"
	"github.com/dep2p/go-netio/pkg/lib/log"
	"github.com/dep2p/go-netio/pkg/types"
)

var logger = log.Logger("core/transport/tcp")

// SocketOptions 套接字 Handler 选项
type SocketOptions struct {
	// ReadTimeout 单次读取的空闲超时，0 表示不限制
	ReadTimeout time.Duration
}

// ============================================================================
//                              SocketHandler
// ============================================================================

// SocketHandler 把 net.Conn 接到 Channel 的第一个 Slot
//
// 读写各由一个 goroutine 驱动，结果都以任务形式回到循环；
// 除 Statistics 外的方法都在循环上调用。
type SocketHandler struct {
	conn net.Conn
	opts SocketOptions

	slot channelif.Slot
	ch   channelif.Channel

	// ─── 读方向（循环独占） ───

	resume chan struct{}
	// reading 读 goroutine 持有读取许可，结果尚未回到循环
	reading bool
	pending []byte
	readErr error
	// readStopped 读方向已关闭或已上报错误
	readStopped bool

	// ─── 写方向 ───

	wmu      sync.Mutex
	wqueue   []*types.Message
	wclosing bool
	wsignal  chan struct{}

	// writerExited / writeShutdown / writeDone 循环独占
	writerExited  bool
	writeShutdown *shutdownRequest
	writeDone     bool

	done      chan struct{}
	closeOnce sync.Once
	doneOnce  sync.Once

	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
}

type shutdownRequest struct {
	err   error
	abort bool
}

// 确保实现接口
var (
	_ channelif.Handler            = (*SocketHandler)(nil)
	_ channelif.StatisticsProvider = (*SocketHandler)(nil)
)

// NewSocketHandler 创建套接字 Handler，连接的所有权随之转移
func NewSocketHandler(conn net.Conn, opts SocketOptions) *SocketHandler {
	return &SocketHandler{
		conn:    conn,
		opts:    opts,
		resume:  make(chan struct{}, 1),
		wsignal: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Install 把 Handler 设置到 slot 上并启动读写 goroutine
//
// 必须在循环上调用。slot 应是 Channel 的第一个 Slot。
func (h *SocketHandler) Install(slot channelif.Slot) error {
	if slot.Left() != nil {
		return types.Wrap(types.ErrInvalidSlotTopology, "socket handler must be installed in the first slot")
	}
	if err := slot.SetHandler(h); err != nil {
		return err
	}
	h.slot = slot
	h.ch = slot.Channel()

	logger.Debug("套接字接入管道",
		"channel", log.TruncateID(h.ch.ID(), 8),
		"local", h.conn.LocalAddr(),
		"remote", h.conn.RemoteAddr())

	go h.readLoop()
	go h.writeLoop()
	h.requestRead()
	return nil
}

// Conn 返回底层连接
func (h *SocketHandler) Conn() net.Conn {
	return h.conn
}

// ============================================================================
//                              读方向
// ============================================================================

// readLoop 每拿到一次许可读取一次
func (h *SocketHandler) readLoop() {
	buf := make([]byte, h.ch.MaxFragmentSize())
	for {
		select {
		case <-h.resume:
		case <-h.done:
			return
		}

		if h.opts.ReadTimeout > 0 {
			_ = h.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
		}
		n, err := h.conn.Read(buf)
		var data []byte
		if n > 0 {
			data = append([]byte(nil), buf[:n]...)
		}
		h.ch.ScheduleTaskNow(eventloopif.NewTask("socket_read", func(status types.TaskStatus) {
			if status == types.TaskCanceled {
				return
			}
			h.onRead(data, err)
		}))
		if err != nil {
			return
		}
	}
}

// requestRead 给读 goroutine 一次读取许可
func (h *SocketHandler) requestRead() {
	if h.reading || h.readStopped || h.readErr != nil || len(h.pending) > 0 {
		return
	}
	h.reading = true
	select {
	case h.resume <- struct{}{}:
	default:
	}
}

// onRead 在循环上处理一次读取结果
func (h *SocketHandler) onRead(data []byte, err error) {
	h.reading = false
	if h.readStopped {
		return
	}
	if len(data) > 0 {
		h.bytesRead.Add(uint64(len(data)))
		h.pending = append(h.pending, data...)
	}
	if err != nil {
		h.readErr = classifyError(err)
		logger.Debug("套接字读取结束",
			"channel", log.TruncateID(h.ch.ID(), 8),
			"err", err)
	}
	h.deliver()
}

// deliver 在右侧窗口允许的范围内投递缓存数据
func (h *SocketHandler) deliver() {
	if h.readStopped {
		return
	}
	fragment := h.ch.MaxFragmentSize()
	for len(h.pending) > 0 {
		right := h.slot.Right()
		if right == nil || right.Handler() == nil {
			return
		}
		size := min(len(h.pending), h.slot.DownstreamReadWindow(), fragment)
		if size <= 0 {
			return
		}
		msg, err := h.ch.AcquireMessage(types.DirRead, size)
		if err != nil {
			h.failRead(err)
			return
		}
		n := msg.Append(h.pending[:size])
		h.pending = h.pending[n:]
		if err := h.slot.SendMessage(msg, types.DirRead); err != nil {
			h.failRead(err)
			return
		}
		if h.readStopped {
			return
		}
	}
	h.pending = nil

	if h.readErr != nil {
		h.failRead(h.readErr)
		return
	}
	h.requestRead()
}

// failRead 停止读取并关闭 Channel
func (h *SocketHandler) failRead(err error) {
	h.readStopped = true
	h.pending = nil
	h.ch.Shutdown(err)
}

// ============================================================================
//                              写方向
// ============================================================================

// writeLoop 按顺序写出队列中的消息
func (h *SocketHandler) writeLoop() {
	var exitErr error
	defer func() {
		h.ch.ScheduleTaskNow(eventloopif.NewTask("socket_writer_exit", func(status types.TaskStatus) {
			if status == types.TaskCanceled {
				h.closeConn()
				h.failQueued(types.ErrTaskCanceled)
				return
			}
			h.onWriterExit(exitErr)
		}))
	}()

	for {
		msg, closing := h.nextWrite()
		if msg == nil {
			if closing {
				return
			}
			select {
			case <-h.wsignal:
				continue
			case <-h.done:
				return
			}
		}

		n, err := h.conn.Write(msg.Bytes())
		h.bytesWritten.Add(uint64(n))
		err = classifyError(err)
		h.completeOnLoop(msg, err)
		if err != nil {
			exitErr = err
			return
		}
	}
}

// nextWrite 取出队首消息；队列为空时返回是否正在关闭
func (h *SocketHandler) nextWrite() (*types.Message, bool) {
	h.wmu.Lock()
	defer h.wmu.Unlock()
	if len(h.wqueue) == 0 {
		return nil, h.wclosing
	}
	msg := h.wqueue[0]
	h.wqueue[0] = nil
	h.wqueue = h.wqueue[1:]
	return msg, false
}

// completeOnLoop 在循环上调用完成回调并释放消息
func (h *SocketHandler) completeOnLoop(msg *types.Message, err error) {
	h.ch.ScheduleTaskNow(eventloopif.NewTask("socket_write_complete", func(status types.TaskStatus) {
		if status == types.TaskCanceled && err == nil {
			err = types.ErrTaskCanceled
		}
		msg.Complete(err)
		msg.Release()
	}))
}

// signalWriter 唤醒写 goroutine
func (h *SocketHandler) signalWriter() {
	select {
	case h.wsignal <- struct{}{}:
	default:
	}
}

// failQueued 以 err 完成所有未写出的消息
func (h *SocketHandler) failQueued(err error) {
	h.wmu.Lock()
	queued := h.wqueue
	h.wqueue = nil
	h.wmu.Unlock()

	for _, msg := range queued {
		msg.Complete(err)
		msg.Release()
	}
}

// onWriterExit 写 goroutine 退出后在循环上收尾
func (h *SocketHandler) onWriterExit(err error) {
	h.writerExited = true
	if err != nil {
		h.failQueued(err)
	} else {
		h.failQueued(types.ErrSocketClosed)
	}
	h.closeConn()

	if req := h.writeShutdown; req != nil {
		h.completeWriteShutdown(req)
		return
	}
	if err != nil {
		logger.Warn("套接字写入失败",
			"channel", log.TruncateID(h.ch.ID(), 8),
			"err", err)
		h.ch.Shutdown(err)
	}
}

func (h *SocketHandler) completeWriteShutdown(req *shutdownRequest) {
	if h.writeDone {
		return
	}
	h.writeDone = true
	if err := h.slot.OnHandlerShutdownComplete(types.DirWrite, req.err, req.abort); err != nil {
		logger.Debug("写方向关闭完成通知失败", "err", err)
	}
}

// ProcessWriteMessage 消息入队，由写 goroutine 写出
func (h *SocketHandler) ProcessWriteMessage(_ channelif.Slot, msg *types.Message) error {
	h.wmu.Lock()
	if h.wclosing {
		h.wmu.Unlock()
		msg.Complete(types.ErrSocketClosed)
		msg.Release()
		return types.Wrap(types.ErrSocketClosed, "write after socket shutdown")
	}
	h.wqueue = append(h.wqueue, msg)
	h.wmu.Unlock()

	h.signalWriter()
	return nil
}

// ============================================================================
//                              channelif.Handler 其余方法
// ============================================================================

// ProcessReadMessage 第一个 Slot 不会收到读消息
func (h *SocketHandler) ProcessReadMessage(_ channelif.Slot, msg *types.Message) error {
	msg.Release()
	return types.Wrap(types.ErrInvalidSlotTopology, "read message reached socket handler")
}

// IncrementReadWindow 右侧窗口扩大后继续投递
func (h *SocketHandler) IncrementReadWindow(channelif.Slot, int) error {
	h.deliver()
	return nil
}

// Shutdown 读方向停止读取；写方向写完队列（abort 时丢弃）后关闭连接
func (h *SocketHandler) Shutdown(slot channelif.Slot, dir types.Direction, err error, abort bool) error {
	if dir == types.DirRead {
		h.readStopped = true
		h.pending = nil
		return slot.OnHandlerShutdownComplete(dir, err, abort)
	}

	req := &shutdownRequest{err: err, abort: abort}
	h.writeShutdown = req
	if h.writerExited {
		h.closeConn()
		h.completeWriteShutdown(req)
		return nil
	}

	h.wmu.Lock()
	h.wclosing = true
	h.wmu.Unlock()

	if abort {
		h.failQueued(types.ErrSocketClosed)
		h.closeConn()
	}
	h.signalWriter()
	return nil
}

// InitialWindowSize 第一个 Slot 没有左侧邻居
func (h *SocketHandler) InitialWindowSize() int {
	return 0
}

// MessageOverhead 无额外开销
func (h *SocketHandler) MessageOverhead() int {
	return 0
}

// Destroy 关闭连接并停止读写 goroutine
func (h *SocketHandler) Destroy() {
	h.closeConn()
	h.doneOnce.Do(func() { close(h.done) })
	h.failQueued(types.ErrSocketClosed)
	h.readStopped = true
	h.pending = nil
}

func (h *SocketHandler) closeConn() {
	h.closeOnce.Do(func() {
		if err := h.conn.Close(); err != nil {
			logger.Debug("关闭连接失败", "err", err)
		}
	})
}

// ============================================================================
//                              统计
// ============================================================================

// Statistics 返回字节计数
func (h *SocketHandler) Statistics() channelif.Statistics {
	return channelif.Statistics{
		Kind:         channelif.KindSocket,
		BytesRead:    h.bytesRead.Load(),
		BytesWritten: h.bytesWritten.Load(),
	}
}

// ResetStatistics 重置字节计数
func (h *SocketHandler) ResetStatistics() {
	h.bytesRead.Store(0)
	h.bytesWritten.Store(0)
}
