package tls

import (
	"context"
	"crypto/tls"
	"errors"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	channelif "github.com/dep2p/go-netio/pkg/interfaces/channel"
	eventloopif "github.com/dep2p/go-netio/pkg/interfaces/eventloop"
	"github.com/dep2p/go-netio/pkg/lib/log"
	"github.com/dep2p/go-netio/pkg/types"
)

var logger = log.Logger("core/security/tls")

const (
	// maxRecordSize TLS 记录最大明文长度
	maxRecordSize = 16 * 1024

	// RecordOverhead 每条记录的估算开销（头部、MAC/Tag、填充）
	RecordOverhead = 53

	// handshakeWindow 协商期间的初始读窗口
	handshakeWindow = maxRecordSize + RecordOverhead
)

// ============================================================================
//                              Handler
// ============================================================================

// Handler Channel 上的 TLS Handler
//
// 除 State/Protocol/ServerName/Statistics 外，所有方法都在循环上调用。
type Handler struct {
	opts *ConnectionOptions
	role types.TLSRole

	slot channelif.Slot
	ch   channelif.Channel

	br   *bridge
	conn *tls.Conn

	state atomic.Int32

	// callbackFired 协商结果回调已触发
	callbackFired bool

	hsCancel    context.CancelFunc
	timeoutTask *eventloopif.Task
	flushTask   *eventloopif.Task

	// pending 已解密但下游窗口暂时容纳不下的明文
	pending []byte
	readBuf []byte

	// peerClosed 对端关闭或解密失败后不再读取
	peerClosed bool

	// readShutdown 读方向已收到关闭通知；deferredRead 非 nil 表示关闭等待缓存清空
	readShutdown bool
	deferredRead *deferredShutdown
	readDone     bool

	destroyed bool

	mu             sync.Mutex
	protocol       string
	serverName     string
	handshakeStart time.Time
	handshakeEnd   time.Time

	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
}

type deferredShutdown struct {
	err   error
	abort bool
}

// 确保实现接口
var (
	_ channelif.Handler            = (*Handler)(nil)
	_ channelif.StatisticsProvider = (*Handler)(nil)
)

// NewHandler 创建 TLS Handler，角色由上下文决定
//
// opts 会被复制，Handler 持有上下文的一个引用直到销毁。
func NewHandler(opts *ConnectionOptions) (*Handler, error) {
	if opts == nil || !opts.Context.Valid() {
		return nil, types.ErrTLSContextInvalid
	}
	cp := opts.Copy()
	if cp.Context == nil {
		return nil, types.ErrTLSContextInvalid
	}
	return &Handler{opts: cp, role: cp.Context.Role()}, nil
}

// Install 把 Handler 设置到 slot 上
//
// 客户端立即开始协商；服务端等待对端第一条消息。必须在循环上调用。
func (h *Handler) Install(slot channelif.Slot) error {
	if err := slot.SetHandler(h); err != nil {
		return err
	}
	h.slot = slot
	h.ch = slot.Channel()
	h.flushTask = eventloopif.NewTask("tls_flush_outbound", h.runFlush)
	h.br = newBridge(func() { h.ch.ScheduleTaskNow(h.flushTask) })

	cfg := h.opts.Context.config(h.opts.ServerName, h.opts.ALPN)
	if h.role == types.RoleServer {
		h.conn = tls.Server(h.br, cfg)
	} else {
		h.conn = tls.Client(h.br, cfg)
		h.StartNegotiation()
	}
	return nil
}

// AppendTLSHandler 在 last 所在链的链尾追加一个 TLS Handler
//
// 用于多层 TLS：上一层协商成功后在回调中调用。必须在循环上调用。
func AppendTLSHandler(last channelif.Slot, opts *ConnectionOptions) (*Handler, error) {
	h, err := NewHandler(opts)
	if err != nil {
		return nil, err
	}
	ch := last.Channel()
	slot, err := ch.NewSlot()
	if err != nil {
		h.Destroy()
		return nil, err
	}
	if err := last.InsertEnd(slot); err != nil {
		h.Destroy()
		return nil, err
	}
	if err := h.Install(slot); err != nil {
		_ = slot.Remove()
		h.Destroy()
		return nil, err
	}
	return h, nil
}

// ============================================================================
//                              状态查询
// ============================================================================

// State 协商状态，任何 goroutine 均可调用
func (h *Handler) State() types.NegotiationState {
	return types.NegotiationState(h.state.Load())
}

// Role 握手角色
func (h *Handler) Role() types.TLSRole {
	return h.role
}

// Protocol 协商出的 ALPN 协议，未协商时为空
func (h *Handler) Protocol() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.protocol
}

// ServerName 客户端使用的 SNI，服务端收到的 SNI
func (h *Handler) ServerName() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.serverName
}

// Slot 所在 Slot
func (h *Handler) Slot() channelif.Slot {
	return h.slot
}

// ============================================================================
//                              协商
// ============================================================================

// StartNegotiation 开始协商，重复调用被忽略
//
// 可在任意 goroutine 调用，不在循环上时转成循环任务。
func (h *Handler) StartNegotiation() {
	if h.ch == nil {
		return
	}
	if !h.ch.IsOnCallersThread() {
		h.ch.ScheduleTaskNow(eventloopif.NewTask("tls_start_negotiation", func(status types.TaskStatus) {
			if status == types.TaskRunReady {
				h.startNegotiation()
			}
		}))
		return
	}
	h.startNegotiation()
}

func (h *Handler) startNegotiation() {
	if h.State() != types.NegotiationInit || h.destroyed {
		return
	}
	h.state.Store(int32(types.NegotiationNegotiating))

	now := h.ch.CurrentTime()
	h.mu.Lock()
	h.handshakeStart = now
	h.mu.Unlock()

	if h.opts.Timeout > 0 {
		h.timeoutTask = eventloopif.NewTask("tls_negotiation_timeout", h.runTimeout)
		h.ch.ScheduleTaskFuture(h.timeoutTask, now.Add(h.opts.Timeout))
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.hsCancel = cancel
	conn := h.conn

	logger.Debug("开始 TLS 协商", "channel", log.TruncateID(h.ch.ID(), 8), "role", h.role)

	go func() {
		err := conn.HandshakeContext(ctx)
		var cs tls.ConnectionState
		if err == nil {
			cs = conn.ConnectionState()
		}
		h.ch.ScheduleTaskNow(eventloopif.NewTask("tls_handshake_result", func(status types.TaskStatus) {
			h.onHandshakeResult(status, cs, err)
		}))
	}()
}

func (h *Handler) onHandshakeResult(status types.TaskStatus, cs tls.ConnectionState, err error) {
	if h.State() != types.NegotiationNegotiating {
		return
	}
	if status == types.TaskCanceled {
		h.failNegotiation(types.ErrTaskCanceled, true)
		return
	}
	if err != nil {
		h.failNegotiation(classifyError(err), true)
		return
	}

	h.cancelTimeout()
	h.br.setNonBlocking()
	h.state.Store(int32(types.NegotiationNegotiated))

	h.mu.Lock()
	h.protocol = cs.NegotiatedProtocol
	if h.role == types.RoleServer {
		h.serverName = cs.ServerName
	} else {
		h.serverName = h.opts.ServerName
	}
	h.handshakeEnd = h.ch.CurrentTime()
	h.mu.Unlock()

	logger.Info("TLS 协商成功",
		"channel", log.TruncateID(h.ch.ID(), 8),
		"role", h.role,
		"alpn", cs.NegotiatedProtocol,
		"version", tls.VersionName(cs.Version))

	h.fireResult(nil)

	// 回调中可能刚追加了下游 Handler，随后再投递已到达的数据
	if err := h.drain(); err != nil {
		h.ch.Shutdown(err)
		return
	}
	h.updateWindow()
}

// failNegotiation 协商失败：触发回调，按需关闭 Channel
func (h *Handler) failNegotiation(err error, shutdown bool) {
	if h.State() != types.NegotiationNegotiating && h.State() != types.NegotiationInit {
		return
	}
	h.state.Store(int32(types.NegotiationFailed))
	h.cancelTimeout()
	if h.hsCancel != nil {
		h.hsCancel()
	}

	h.mu.Lock()
	h.handshakeEnd = h.ch.CurrentTime()
	h.mu.Unlock()

	logger.Warn("TLS 协商失败", "channel", log.TruncateID(h.ch.ID(), 8), "role", h.role, "err", err)

	h.fireResult(err)
	if shutdown {
		h.ch.Shutdown(err)
	}
}

func (h *Handler) fireResult(err error) {
	if h.callbackFired {
		return
	}
	h.callbackFired = true
	if h.opts.OnNegotiationResult != nil {
		h.opts.OnNegotiationResult(h, h.slot, err)
	}
}

func (h *Handler) runTimeout(status types.TaskStatus) {
	if status == types.TaskCanceled || h.State() != types.NegotiationNegotiating {
		return
	}
	h.timeoutTask = nil
	h.failNegotiation(types.Wrap(types.ErrTLSNegotiationTimeout, "no result after %s", h.opts.Timeout), true)
}

func (h *Handler) cancelTimeout() {
	if h.timeoutTask == nil {
		return
	}
	task := h.timeoutTask
	h.timeoutTask = nil
	h.ch.CancelTask(task)
}

// ============================================================================
//                              读方向
// ============================================================================

// ProcessReadMessage 接收左侧送来的密文
func (h *Handler) ProcessReadMessage(slot channelif.Slot, msg *types.Message) error {
	n := msg.Len()
	h.bytesRead.Add(uint64(n))
	h.br.feed(msg.Bytes())
	msg.Release()

	switch h.State() {
	case types.NegotiationInit:
		// 服务端在收到第一条消息时开始协商
		h.startNegotiation()
		slot.IncrementReadWindow(n)
		return nil
	case types.NegotiationNegotiating:
		// 握手数据直接消费，立即归还窗口
		slot.IncrementReadWindow(n)
		return nil
	case types.NegotiationNegotiated:
		if err := h.drain(); err != nil {
			return err
		}
		h.updateWindow()
		return nil
	default:
		return nil
	}
}

// drain 先投递缓存的明文，再在下游有空间时继续解密
//
// 读方向关闭被延迟时，缓存清空后完成关闭。
func (h *Handler) drain() error {
	var readErr error
	for {
		if err := h.flushPending(); err != nil {
			return err
		}
		if len(h.pending) > 0 || h.peerClosed || h.State() != types.NegotiationNegotiated || !h.hasDownstream() {
			break
		}

		if h.readBuf == nil {
			h.readBuf = make([]byte, h.ch.MaxFragmentSize())
		}
		n, err := h.conn.Read(h.readBuf)
		if n > 0 {
			h.pending = append(h.pending, h.readBuf[:n]...)
		}
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				if n == 0 {
					break
				}
				continue
			}
			h.peerClosed = true
			readErr = classifyError(err)
		}
	}

	if h.deferredRead != nil && len(h.pending) == 0 {
		d := h.deferredRead
		h.deferredRead = nil
		h.completeReadShutdown(d.err, d.abort)
		return nil
	}
	if readErr != nil && !h.readShutdown {
		// 对端 close_notify 或连接关闭
		logger.Debug("TLS 读结束", "channel", log.TruncateID(h.ch.ID(), 8), "err", readErr)
		return readErr
	}
	return nil
}

// hasDownstream 右侧是否有可接收明文的 Handler
func (h *Handler) hasDownstream() bool {
	right := h.slot.Right()
	return right != nil && right.Handler() != nil
}

// flushPending 按下游窗口投递缓存的明文
func (h *Handler) flushPending() error {
	for len(h.pending) > 0 && h.hasDownstream() {
		window := h.slot.DownstreamReadWindow()
		if window <= 0 {
			return nil
		}
		size := min(len(h.pending), window, h.ch.MaxFragmentSize())

		msg, err := h.ch.AcquireMessage(types.DirRead, size)
		if err != nil {
			return err
		}
		msg.Append(h.pending[:size])
		h.pending = h.pending[size:]
		if len(h.pending) == 0 {
			h.pending = nil
		}
		if err := h.slot.SendMessage(msg, types.DirRead); err != nil {
			return err
		}
	}
	return nil
}

// IncrementReadWindow 下游归还窗口：先投递缓存，再扩大自身窗口
func (h *Handler) IncrementReadWindow(_ channelif.Slot, _ int) error {
	if h.State() != types.NegotiationNegotiated || h.readDone {
		return nil
	}
	if err := h.drain(); err != nil {
		return err
	}
	h.updateWindow()
	return nil
}

// updateWindow 让自身窗口跟上下游窗口加上记录开销
func (h *Handler) updateWindow() {
	down := h.slot.DownstreamReadWindow()
	if down == math.MaxInt || h.readDone || len(h.pending) > 0 {
		return
	}
	records := (down + maxRecordSize - 1) / maxRecordSize
	desired := down + records*RecordOverhead
	if desired < 0 {
		desired = math.MaxInt
	}
	// 至少能收下一条完整记录，否则半条记录永远无法解密
	desired = max(desired, handshakeWindow)
	// 已到达但还未解密的密文也计入
	cur := h.slot.WindowSize() + h.br.buffered()
	if desired > cur {
		h.slot.IncrementReadWindow(desired - cur)
	}
}

// ============================================================================
//                              写方向
// ============================================================================

// ProcessWriteMessage 加密右侧写入的明文并向左发送
func (h *Handler) ProcessWriteMessage(slot channelif.Slot, msg *types.Message) error {
	if h.State() != types.NegotiationNegotiated {
		err := types.Wrap(types.ErrInvalidState, "write before tls negotiation completed")
		msg.Complete(err)
		msg.Release()
		return err
	}

	onComplete := msg.OnCompletion
	msg.OnCompletion = nil
	_, err := h.conn.Write(msg.Bytes())
	msg.Release()
	if err != nil {
		err = classifyError(err)
		if onComplete != nil {
			onComplete(err)
		}
		return err
	}
	return h.flushOutbound(onComplete)
}

func (h *Handler) runFlush(status types.TaskStatus) {
	if status == types.TaskCanceled || h.destroyed {
		return
	}
	if err := h.flushOutbound(nil); err != nil {
		h.ch.Shutdown(err)
	}
}

// flushOutbound 把 tls.Conn 产生的密文按分片向左发送
//
// onComplete 挂在最后一个分片上；没有密文时立即调用。
func (h *Handler) flushOutbound(onComplete func(error)) error {
	chunks := h.br.takeOutbound()
	fragment := h.ch.MaxFragmentSize()

	var msgs []*types.Message
	for _, chunk := range chunks {
		for len(chunk) > 0 {
			size := min(len(chunk), fragment)
			msg, err := h.ch.AcquireMessage(types.DirWrite, size)
			if err != nil {
				for _, m := range msgs {
					m.Release()
				}
				if onComplete != nil {
					onComplete(err)
				}
				return err
			}
			msg.Append(chunk[:size])
			chunk = chunk[size:]
			msgs = append(msgs, msg)
		}
	}

	if len(msgs) == 0 {
		if onComplete != nil {
			onComplete(nil)
		}
		return nil
	}
	msgs[len(msgs)-1].OnCompletion = onComplete

	for i, msg := range msgs {
		h.bytesWritten.Add(uint64(msg.Len()))
		if err := h.slot.SendMessage(msg, types.DirWrite); err != nil {
			for _, rest := range msgs[i+1:] {
				rest.Complete(err)
				rest.Release()
			}
			return err
		}
	}
	return nil
}

// MessageOverhead 每条消息的记录开销
func (h *Handler) MessageOverhead() int {
	return RecordOverhead
}

// InitialWindowSize 协商期间至少能容纳一条完整记录
func (h *Handler) InitialWindowSize() int {
	return handshakeWindow
}

// ============================================================================
//                              关闭与销毁
// ============================================================================

// Shutdown 关闭 dir 方向
//
// 读方向：协商中则以触发错误（为空时 ErrSocketClosed）结束协商；
// 仍有缓存明文且不是 abort 时延迟完成。
// 写方向：已协商且不是 abort 时先发送 close_notify。
func (h *Handler) Shutdown(slot channelif.Slot, dir types.Direction, err error, abort bool) error {
	if dir == types.DirRead {
		h.readShutdown = true
		if st := h.State(); st == types.NegotiationNegotiating || st == types.NegotiationInit {
			h.failNegotiation(errOrClosed(err), false)
		}
		if !abort && h.State() == types.NegotiationNegotiated && !h.readDone {
			h.deferredRead = &deferredShutdown{err: err, abort: abort}
			if derr := h.drain(); derr != nil && h.deferredRead != nil {
				logger.Debug("关闭期间投递缓存失败", "channel", log.TruncateID(h.ch.ID(), 8), "err", derr)
				h.deferredRead = nil
				h.completeReadShutdown(err, abort)
			}
			return nil
		}
		h.completeReadShutdown(err, abort)
		return nil
	}

	h.cancelTimeout()
	if h.hsCancel != nil {
		h.hsCancel()
	}
	if h.State() == types.NegotiationNegotiated && !abort {
		// 发送 close_notify 并关闭桥接
		if cerr := h.conn.Close(); cerr != nil {
			logger.Debug("发送 close_notify 失败", "channel", log.TruncateID(h.ch.ID(), 8), "err", cerr)
		}
		if ferr := h.flushOutbound(nil); ferr != nil {
			logger.Debug("冲刷 close_notify 失败", "channel", log.TruncateID(h.ch.ID(), 8), "err", ferr)
		}
	} else {
		_ = h.br.Close()
	}
	return slot.OnHandlerShutdownComplete(types.DirWrite, err, abort)
}

func (h *Handler) completeReadShutdown(err error, abort bool) {
	if h.readDone {
		return
	}
	h.readDone = true
	h.pending = nil
	if cerr := h.slot.OnHandlerShutdownComplete(types.DirRead, err, abort); cerr != nil {
		logger.Warn("完成读方向关闭失败", "channel", log.TruncateID(h.ch.ID(), 8), "err", cerr)
	}
}

// Destroy 释放连接资源和上下文引用
func (h *Handler) Destroy() {
	if h.destroyed {
		return
	}
	h.destroyed = true
	if h.hsCancel != nil {
		h.hsCancel()
	}
	if h.br != nil {
		_ = h.br.Close()
	}
	h.pending = nil
	h.opts.Close()
}

// ============================================================================
//                              统计
// ============================================================================

// Statistics 返回密文读写字节数和协商信息
func (h *Handler) Statistics() channelif.Statistics {
	h.mu.Lock()
	start, end := h.handshakeStart, h.handshakeEnd
	h.mu.Unlock()
	return channelif.Statistics{
		Kind:             channelif.KindTLS,
		BytesRead:        h.bytesRead.Load(),
		BytesWritten:     h.bytesWritten.Load(),
		NegotiationState: h.State(),
		HandshakeStart:   start,
		HandshakeEnd:     end,
	}
}

// ResetStatistics 重置字节计数，协商信息保留
func (h *Handler) ResetStatistics() {
	h.bytesRead.Store(0)
	h.bytesWritten.Store(0)
}
