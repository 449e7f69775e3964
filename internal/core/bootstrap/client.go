package bootstrap

import (
	"context"
	"errors"
	"time"

	"github.com/dep2p/go-netio/internal/core/security/tls"
	"github.com/dep2p/go-netio/internal/core/transport/tcp"
	"github.com/dep2p/go-netio/pkg/types"
)

var (
	// ErrNoAddress 未指定地址
	ErrNoAddress = errors.New("bootstrap: address is required")

	// ErrNoHandler 未指定应用层 Handler
	ErrNoHandler = errors.New("bootstrap: handler factory is required")

	// ErrNoSetupCallback 未指定建立回调
	ErrNoSetupCallback = errors.New("bootstrap: setup callback is required")
)

// ============================================================================
//                              ClientBootstrap
// ============================================================================

// ClientOptions 单次连接选项
type ClientOptions struct {
	// Address 目标地址（host:port）
	Address string

	// TLS 客户端 TLS 选项，为空时不加密
	TLS *tls.ConnectionOptions

	// TLSLevels TLS 嵌套层数，TLS 非空且为 0 时按 1 层
	TLSLevels int

	// ReadTimeout 套接字读空闲超时，0 表示不限制
	ReadTimeout time.Duration

	// OnSetup 建立结果，恰好调用一次；拨号失败时 ch 为 nil
	OnSetup ChannelCallback

	// OnShutdown 建立成功后 Channel 关闭时调用一次
	OnShutdown ChannelCallback

	// Handler 应用层 Handler 工厂
	Handler HandlerFactory
}

// ClientBootstrap 拨号并装配客户端 Channel
type ClientBootstrap struct {
	base
	connectTimeout time.Duration
}

// NewClientBootstrap 创建客户端引导
func NewClientBootstrap(opts Options) *ClientBootstrap {
	return &ClientBootstrap{
		base:           newBase(opts),
		connectTimeout: opts.Socket.ConnectTimeout.Duration(),
	}
}

// Connect 异步建立连接
//
// 返回的错误只涉及选项校验；拨号与协商结果通过 OnSetup 上报。
// 拨号失败时 OnSetup 在拨号 goroutine 上调用，其余回调都在 Channel 的循环上。
func (b *ClientBootstrap) Connect(ctx context.Context, opts ClientOptions) error {
	if opts.Address == "" {
		return ErrNoAddress
	}
	if opts.Handler == nil {
		return ErrNoHandler
	}
	if opts.OnSetup == nil {
		return ErrNoSetupCallback
	}

	tlsOpts, levels, err := prepareTLS(opts.TLS, opts.TLSLevels, types.RoleClient)
	if err != nil {
		return err
	}

	go func() {
		conn, err := b.transport.Dial(ctx, opts.Address, tcp.DialOptions{
			Timeout:   b.connectTimeout,
			KeepAlive: 30 * time.Second,
			NoDelay:   true,
		})
		if err != nil {
			tlsOpts.Close()
			logger.Warn("拨号失败", "addr", opts.Address, "err", err)
			opts.OnSetup(nil, err)
			return
		}

		p := &pipeline{
			b:          &b.base,
			role:       types.RoleClient,
			conn:       conn,
			tlsOpts:    tlsOpts,
			levels:     levels,
			socketOpts: tcp.SocketOptions{ReadTimeout: opts.ReadTimeout},
			handler:    opts.Handler,
			onSetup:    opts.OnSetup,
			onShutdown: opts.OnShutdown,
		}
		p.start(b.opts.Group.Next())
	}()
	return nil
}

// prepareTLS 复制 TLS 选项并校验角色与层数
func prepareTLS(opts *tls.ConnectionOptions, levels int, role types.TLSRole) (*tls.ConnectionOptions, int, error) {
	if levels < 0 {
		return nil, 0, types.Wrap(types.ErrInvalidState, "negative tls levels %d", levels)
	}
	if opts == nil {
		if levels > 0 {
			return nil, 0, types.Wrap(types.ErrTLSContextInvalid, "tls levels %d without tls options", levels)
		}
		return nil, 0, nil
	}

	cp := opts.Copy()
	if cp.Context == nil {
		return nil, 0, types.ErrTLSContextInvalid
	}
	if cp.Context.Role() != role {
		cp.Close()
		return nil, 0, types.Wrap(types.ErrTLSContextInvalid, "context role %s, want %s", opts.Context.Role(), role)
	}
	if levels == 0 {
		levels = 1
	}
	return cp, levels, nil
}

// Close 停止新的拨号；已建立的 Channel 不受影响
func (b *ClientBootstrap) Close() error {
	return b.transport.Close()
}
