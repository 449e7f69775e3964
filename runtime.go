package netio

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"github.com/dep2p/go-netio/config"
	"github.com/dep2p/go-netio/internal/core/bootstrap"
	"github.com/dep2p/go-netio/internal/core/eventloop"
	"github.com/dep2p/go-netio/internal/core/metrics"
	"github.com/dep2p/go-netio/internal/core/security/tls"
	"github.com/dep2p/go-netio/pkg/lib/log"
	"github.com/dep2p/go-netio/pkg/types"
)

var logger = log.Logger("netio")

const (
	// startTimeout 启动 Fx 应用的超时
	startTimeout = 15 * time.Second

	// closeTimeout Close 停止 Fx 应用的超时
	closeTimeout = 30 * time.Second
)

// ════════════════════════════════════════════════════════════════════════════
//                              Runtime
// ════════════════════════════════════════════════════════════════════════════

// Runtime 组装事件循环、TLS、指标与引导模块
//
// 创建后调用 Start 启动循环组，之后通过 Connect / Listen 建立 Channel。
type Runtime struct {
	cfg *config.Config
	app *fx.App

	// 由 Fx 注入
	group    *eventloop.Group
	contexts *tls.Contexts
	recorder *metrics.Recorder
	registry *prometheus.Registry
	client   *bootstrap.ClientBootstrap
	server   *bootstrap.ServerBootstrap

	mu      sync.Mutex
	started bool
	closed  bool
}

// New 创建运行时但不启动
//
// 示例：
//
//	rt, err := netio.New(
//	    netio.WithThreads(4),
//	    netio.WithTLSCertificate("cert.pem", "key.pem"),
//	)
func New(opts ...Option) (*Runtime, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	rt := &Runtime{cfg: o.config}
	app, err := buildFxApp(o, rt)
	if err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	rt.app = app
	return rt, nil
}

// Start 快捷启动函数，等价于 New() + Start()
func Start(ctx context.Context, opts ...Option) (*Runtime, error) {
	rt, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := rt.Start(ctx); err != nil {
		return nil, fmt.Errorf("start runtime: %w", err)
	}
	return rt, nil
}

// Start 启动所有模块
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRuntimeClosed
	}
	if r.started {
		return ErrAlreadyStarted
	}

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := r.app.Start(startCtx); err != nil {
		logger.Error("运行时启动失败", "err", err)
		return err
	}

	r.started = true
	logger.Info("运行时已启动",
		"threads", r.group.Size(),
		"tlsLevels", r.cfg.TLS.Levels)
	return nil
}

// Stop 停止所有模块：关闭监听器与拨号，释放 TLS 上下文，停止循环组
//
// 已建立的 Channel 随循环停止而取消；Stop 之后不能再次 Start。
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		if r.closed {
			return nil
		}
		return ErrNotStarted
	}

	err := r.app.Stop(ctx)
	r.started = false
	r.closed = true
	if err != nil {
		logger.Warn("运行时停止出错", "err", err)
		return err
	}
	logger.Info("运行时已停止")
	return nil
}

// Close 停止运行时，可重复调用
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	if !r.started {
		r.closed = true
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return r.Stop(ctx)
}

// running 检查运行状态
func (r *Runtime) running() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRuntimeClosed
	}
	if !r.started {
		return ErrNotStarted
	}
	return nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              连接
// ════════════════════════════════════════════════════════════════════════════

// Connect 异步建立客户端 Channel
//
// opts.TLS 为空且配置了 TLS 层数时，使用运行时的客户端上下文与配置层数。
func (r *Runtime) Connect(ctx context.Context, opts bootstrap.ClientOptions) error {
	if err := r.running(); err != nil {
		return err
	}
	if opts.TLS == nil && opts.TLSLevels == 0 && r.cfg.TLS.Levels > 0 {
		opts.TLS = r.contexts.ConnectionOptions(types.RoleClient)
		opts.TLSLevels = r.cfg.TLS.Levels
	}
	return r.client.Connect(ctx, opts)
}

// Listen 开始监听
//
// opts.TLS 为空且配置了 TLS 层数时，使用运行时的服务端上下文；
// 没有服务端证书时返回 ErrNoServerCertificate。
func (r *Runtime) Listen(opts bootstrap.ServerOptions) (*bootstrap.Listener, error) {
	if err := r.running(); err != nil {
		return nil, err
	}
	if opts.TLS == nil && opts.TLSLevels == 0 && r.cfg.TLS.Levels > 0 {
		opts.TLS = r.contexts.ConnectionOptions(types.RoleServer)
		if opts.TLS == nil {
			return nil, ErrNoServerCertificate
		}
		opts.TLSLevels = r.cfg.TLS.Levels
	}
	return r.server.Listen(opts)
}

// ════════════════════════════════════════════════════════════════════════════
//                              访问器
// ════════════════════════════════════════════════════════════════════════════

// Config 返回运行时配置
func (r *Runtime) Config() *config.Config {
	return r.cfg
}

// Group 返回事件循环组
func (r *Runtime) Group() *eventloop.Group {
	return r.group
}

// TLS 返回 TLS 上下文
func (r *Runtime) TLS() *tls.Contexts {
	return r.contexts
}

// Client 返回客户端引导
func (r *Runtime) Client() *bootstrap.ClientBootstrap {
	return r.client
}

// Server 返回服务端引导
func (r *Runtime) Server() *bootstrap.ServerBootstrap {
	return r.server
}

// Metrics 返回统计汇总
func (r *Runtime) Metrics() *metrics.Recorder {
	return r.recorder
}

// MetricsHandler 返回导出 Prometheus 指标的 HTTP Handler
func (r *Runtime) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
