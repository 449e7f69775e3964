package bootstrap

import (
	"net"
	"sync/atomic"

	"github.com/dep2p/go-netio/config"
	"github.com/dep2p/go-netio/internal/core/channel"
	"github.com/dep2p/go-netio/internal/core/security/tls"
	"github.com/dep2p/go-netio/internal/core/transport/tcp"
	channelif "github.com/dep2p/go-netio/pkg/interfaces/channel"
	eventloopif "github.com/dep2p/go-netio/pkg/interfaces/eventloop"
	"github.com/dep2p/go-netio/pkg/lib/log"
	"github.com/dep2p/go-netio/pkg/types"
)

var logger = log.Logger("core/bootstrap")

// HandlerFactory 为新 Channel 创建链尾的应用层 Handler
//
// 在循环上调用。Handler 若实现 Attach(channelif.Slot) error，
// 由 Attach 完成安装，否则直接 SetHandler。
type HandlerFactory func(ch *channel.Channel) channelif.Handler

// ChannelCallback 在循环上调用的 Channel 回调
type ChannelCallback func(ch *channel.Channel, err error)

// attacher 需要记住自身 Slot 的 Handler
type attacher interface {
	Attach(slot channelif.Slot) error
}

// Options 客户端与服务端共用的引导选项
type Options struct {
	// Group 事件循环组，每个 Channel 按轮询绑定一个循环
	Group eventloopif.Group

	// Channel 管道配置
	Channel config.ChannelConfig

	// Socket 套接字配置
	Socket config.SocketConfig

	// Reporter 统计接收方，可为空
	Reporter channelif.StatisticsReporter
}

// base 客户端/服务端共用的状态
type base struct {
	opts      Options
	transport *tcp.Transport
	live      atomic.Int64
}

func newBase(opts Options) base {
	return base{opts: opts, transport: tcp.NewTransport()}
}

// LiveChannels 返回尚未关闭完成的 Channel 数
func (b *base) LiveChannels() int64 {
	return b.live.Load()
}

func (b *base) channelOptions(loop eventloopif.EventLoop) channel.Options {
	return channel.Options{
		Loop:                   loop,
		EnableReadBackPressure: b.opts.Channel.EnableBackPressure,
		MaxFragmentSize:        b.opts.Channel.MaxFragmentSize,
		StatisticsInterval:     b.opts.Channel.StatisticsInterval.Duration(),
		StatisticsReporter:     b.opts.Reporter,
	}
}

// ============================================================================
//                              pipeline - 单个连接的建立流程
// ============================================================================

// pipeline 把一条连接装配成 Channel
//
//	socket → TLS × levels → 应用层 Handler
//
// 建立结果只通过 onSetup 上报一次；建立成功后 onShutdown 恰好调用一次。
// 除 start 外的方法都在循环上运行。
type pipeline struct {
	b    *base
	role types.TLSRole
	conn net.Conn

	// tlsOpts 本连接持有的选项副本，Channel 关闭后释放
	tlsOpts *tls.ConnectionOptions
	levels  int

	socketOpts tcp.SocketOptions
	handler    HandlerFactory
	onSetup    ChannelCallback
	onShutdown ChannelCallback

	ch         *channel.Channel
	negotiated int
	setupDone  bool
	setupErr   error
}

// start 创建 Channel；失败时关闭连接并通过 onSetup 上报
//
// p.ch 在建立回调中赋值，之后只在循环上访问。
func (p *pipeline) start(loop eventloopif.EventLoop) {
	if p.tlsOpts != nil {
		p.tlsOpts.OnNegotiationResult = p.onNegotiated
	}

	opts := p.b.channelOptions(loop)
	opts.OnSetupCompleted = p.onChannelSetup
	opts.OnShutdownCompleted = p.onChannelShutdown

	p.b.live.Add(1)
	if _, err := channel.New(opts); err != nil {
		p.b.live.Add(-1)
		_ = p.conn.Close()
		p.tlsOpts.Close()
		p.onSetup(nil, err)
	}
}

func (p *pipeline) onChannelSetup(ch *channel.Channel, err error) {
	p.ch = ch
	if err != nil {
		p.setupErr = err
		_ = p.conn.Close()
		return
	}

	first, err := ch.NewSlot()
	if err != nil {
		_ = p.conn.Close()
		p.fail(err)
		return
	}
	socket := tcp.NewSocketHandler(p.conn, p.socketOpts)
	if err := socket.Install(first); err != nil {
		_ = p.conn.Close()
		p.fail(err)
		return
	}

	logger.Debug("连接接入 Channel",
		"channel", log.TruncateID(ch.ID(), 8),
		"role", p.role,
		"remote", p.conn.RemoteAddr(),
		"levels", p.levels)

	if p.levels == 0 {
		p.installApp(first)
		return
	}
	p.appendTLS(first)
}

// appendTLS 在 last 之后追加一层 TLS
func (p *pipeline) appendTLS(last channelif.Slot) {
	if _, err := tls.AppendTLSHandler(last, p.tlsOpts); err != nil {
		p.fail(err)
	}
}

// onNegotiated 每层协商结果；全部成功后安装应用层 Handler
func (p *pipeline) onNegotiated(h *tls.Handler, slot channelif.Slot, err error) {
	if err != nil {
		if p.setupErr == nil {
			p.setupErr = err
		}
		return
	}

	p.negotiated++
	logger.Debug("TLS 层协商完成",
		"channel", log.TruncateID(p.ch.ID(), 8),
		"level", p.negotiated,
		"protocol", h.Protocol())

	if p.negotiated < p.levels {
		p.appendTLS(slot)
		return
	}
	p.installApp(slot)
}

// installApp 安装应用层 Handler 并上报建立成功
func (p *pipeline) installApp(last channelif.Slot) {
	h := p.handler(p.ch)
	if h == nil {
		p.fail(types.Wrap(types.ErrInvalidState, "handler factory returned nil"))
		return
	}

	slot, err := p.ch.NewSlot()
	if err == nil {
		err = last.InsertEnd(slot)
	}
	if err == nil {
		if a, ok := h.(attacher); ok {
			err = a.Attach(slot)
		} else {
			err = slot.SetHandler(h)
		}
	}
	if err != nil {
		h.Destroy()
		p.fail(err)
		return
	}

	p.setupDone = true
	logger.Info("Channel 建立完成",
		"channel", log.TruncateID(p.ch.ID(), 8),
		"role", p.role,
		"remote", p.conn.RemoteAddr())
	p.onSetup(p.ch, nil)
}

// fail 记录首个建立错误并关闭 Channel
func (p *pipeline) fail(err error) {
	if p.setupErr == nil {
		p.setupErr = err
	}
	p.ch.Shutdown(err)
}

func (p *pipeline) onChannelShutdown(ch *channel.Channel, err error) {
	p.b.live.Add(-1)
	p.tlsOpts.Close()

	if p.setupDone {
		if p.onShutdown != nil {
			p.onShutdown(ch, err)
		}
		return
	}

	setupErr := p.setupErr
	if setupErr == nil {
		setupErr = err
	}
	if setupErr == nil {
		setupErr = types.Wrap(types.ErrSocketClosed, "channel closed during setup")
	}
	logger.Warn("Channel 建立失败",
		"channel", log.TruncateID(ch.ID(), 8),
		"role", p.role,
		"err", setupErr)
	p.onSetup(ch, setupErr)
}
