package netio

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-netio/config"
	"github.com/dep2p/go-netio/internal/core/bootstrap"
	"github.com/dep2p/go-netio/internal/core/eventloop"
	"github.com/dep2p/go-netio/internal/core/metrics"
	"github.com/dep2p/go-netio/internal/core/security/tls"
	"github.com/dep2p/go-netio/pkg/lib/log"
)

var fxLogger = log.Logger("netio/fx")

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. EventLoop: 循环组
//  2. TLS: 客户端/服务端上下文
//  3. Metrics: 统计汇总与 Prometheus 注册表
//  4. Bootstrap: 依赖循环组与统计接收方
func buildFxApp(o *options, rt *Runtime) (*fx.App, error) {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 配置验证（前置）
	// ════════════════════════════════════════════════════════════════════════
	if err := config.ValidateAll(o.config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 配置注入与核心模块
	// ════════════════════════════════════════════════════════════════════════
	modules := []fx.Option{
		fx.Supply(o.config),
	}
	if o.clock != nil {
		clk := o.clock
		modules = append(modules, fx.Provide(func() clock.Clock { return clk }))
	}
	modules = append(modules,
		eventloop.Module(),
		tls.Module(),
		metrics.Module(),
		bootstrap.Module(),
	)

	// ════════════════════════════════════════════════════════════════════════
	// 3. 用户扩展（Fx Options）
	// ════════════════════════════════════════════════════════════════════════
	if len(o.fxOptions) > 0 {
		modules = append(modules, o.fxOptions...)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 4. Runtime 组件注入
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		fx.Populate(
			&rt.group,
			&rt.contexts,
			&rt.recorder,
			&rt.registry,
			&rt.client,
			&rt.server,
		),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		fxLogger.Warn("构建 Fx 应用失败", "err", err)
		return nil, err
	}
	return app, nil
}
