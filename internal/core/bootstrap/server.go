package bootstrap

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-netio/internal/core/security/tls"
	"github.com/dep2p/go-netio/internal/core/transport/tcp"
	"github.com/dep2p/go-netio/pkg/types"
)

// acceptRetryDelay 临时 Accept 错误后的等待
const acceptRetryDelay = 50 * time.Millisecond

// ============================================================================
//                              ServerBootstrap
// ============================================================================

// ServerOptions 监听选项
type ServerOptions struct {
	// Address 监听地址（host:port），端口为 0 时由系统分配
	Address string

	// TLS 服务端 TLS 选项，为空时不加密
	TLS *tls.ConnectionOptions

	// TLSLevels TLS 嵌套层数，TLS 非空且为 0 时按 1 层
	TLSLevels int

	// ReadTimeout 套接字读空闲超时，0 表示不限制
	ReadTimeout time.Duration

	// OnIncomingSetup 每个入站 Channel 的建立结果
	OnIncomingSetup ChannelCallback

	// OnIncomingShutdown 建立成功的入站 Channel 关闭时调用
	OnIncomingShutdown ChannelCallback

	// Handler 应用层 Handler 工厂
	Handler HandlerFactory

	// AcceptRate 每秒接受的连接数上限，0 使用引导配置
	AcceptRate float64

	// AcceptBurst 接入突发量，0 使用引导配置
	AcceptBurst int
}

// ServerBootstrap 监听并装配服务端 Channel
type ServerBootstrap struct {
	base

	mu        sync.Mutex
	listeners map[*Listener]struct{}
}

// NewServerBootstrap 创建服务端引导
func NewServerBootstrap(opts Options) *ServerBootstrap {
	return &ServerBootstrap{
		base:      newBase(opts),
		listeners: make(map[*Listener]struct{}),
	}
}

// Listen 开始监听，每个入站连接在组内下一个循环上建立 Channel
func (b *ServerBootstrap) Listen(opts ServerOptions) (*Listener, error) {
	if opts.Address == "" {
		return nil, ErrNoAddress
	}
	if opts.Handler == nil {
		return nil, ErrNoHandler
	}
	if opts.OnIncomingSetup == nil {
		return nil, ErrNoSetupCallback
	}

	tlsOpts, levels, err := prepareTLS(opts.TLS, opts.TLSLevels, types.RoleServer)
	if err != nil {
		return nil, err
	}

	ln, err := b.transport.Listen(opts.Address)
	if err != nil {
		tlsOpts.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		b:       b,
		ln:      ln,
		opts:    opts,
		tlsOpts: tlsOpts,
		levels:  levels,
		limiter: b.acceptLimiter(opts),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()

	logger.Info("开始接受连接", "addr", ln.Addr(), "tlsLevels", levels)
	go l.acceptLoop()
	return l, nil
}

// acceptLimiter AcceptRate 为 0 时不限速
func (b *ServerBootstrap) acceptLimiter(opts ServerOptions) *rate.Limiter {
	r, burst := opts.AcceptRate, opts.AcceptBurst
	if r == 0 {
		r = b.opts.Socket.AcceptRate
	}
	if burst == 0 {
		burst = b.opts.Socket.AcceptBurst
	}
	if r <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(r), burst)
}

// Close 关闭所有监听器；已建立的 Channel 不受影响
func (b *ServerBootstrap) Close() error {
	b.mu.Lock()
	listeners := make([]*Listener, 0, len(b.listeners))
	for l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.Unlock()

	var err error
	for _, l := range listeners {
		err = multierr.Append(err, l.Close())
	}
	return multierr.Append(err, b.transport.Close())
}

func (b *ServerBootstrap) removeListener(l *Listener) {
	b.mu.Lock()
	delete(b.listeners, l)
	b.mu.Unlock()
}

// ============================================================================
//                              Listener
// ============================================================================

// Listener 一个监听地址
type Listener struct {
	b    *ServerBootstrap
	ln   *tcp.Listener
	opts ServerOptions

	tlsOpts *tls.ConnectionOptions
	levels  int
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Addr 返回实际监听地址
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close 停止接受新连接并等待接入循环退出
func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		l.cancel()
		err = l.ln.Close()
		<-l.done
		l.tlsOpts.Close()
		l.b.removeListener(l)
		logger.Info("停止接受连接", "addr", l.ln.Addr())
	})
	return err
}

// acceptLoop 接受连接循环
func (l *Listener) acceptLoop() {
	defer close(l.done)

	for {
		if err := l.limiter.Wait(l.ctx); err != nil {
			return
		}

		conn, err := l.ln.Accept()
		if err != nil {
			if l.ctx.Err() != nil || errors.Is(err, types.ErrSocketClosed) {
				return
			}
			logger.Debug("接受连接失败，稍后重试", "addr", l.ln.Addr(), "err", err)
			select {
			case <-time.After(acceptRetryDelay):
				continue
			case <-l.ctx.Done():
				return
			}
		}

		l.serve(conn)
	}
}

// serve 为入站连接建立 Channel
func (l *Listener) serve(conn net.Conn) {
	var tlsOpts *tls.ConnectionOptions
	if l.tlsOpts != nil {
		tlsOpts = l.tlsOpts.Copy()
		if tlsOpts.Context == nil {
			_ = conn.Close()
			l.opts.OnIncomingSetup(nil, types.ErrTLSContextInvalid)
			return
		}
	}

	logger.Debug("接受新连接", "remote", conn.RemoteAddr())
	p := &pipeline{
		b:          &l.b.base,
		role:       types.RoleServer,
		conn:       conn,
		tlsOpts:    tlsOpts,
		levels:     l.levels,
		socketOpts: tcp.SocketOptions{ReadTimeout: l.opts.ReadTimeout},
		handler:    l.opts.Handler,
		onSetup:    l.opts.OnIncomingSetup,
		onShutdown: l.opts.OnIncomingShutdown,
	}
	p.start(l.b.opts.Group.Next())
}
