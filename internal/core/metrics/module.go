package metrics

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-netio/config"
	channelif "github.com/dep2p/go-netio/pkg/interfaces/channel"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	// Config 配置（可选）
	Config *config.Config `optional:"true"`

	// Clock 时钟（可选，测试注入 mock）
	Clock clock.Clock `optional:"true"`
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	// Recorder 统计汇总
	Recorder *Recorder

	// Reporter 供 Channel 上报统计，指标关闭时为 nil
	Reporter channelif.StatisticsReporter

	// Registry 已注册 Collector 的 Prometheus 注册表
	Registry *prometheus.Registry

	// Snapshots 快照收集器
	Snapshots *SnapshotCollector
}

// ============================================================================
//                              服务提供
// ============================================================================

// ProvideServices 提供模块服务
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	cfg := config.DefaultMetricsConfig()
	if input.Config != nil {
		cfg = input.Config.Metrics
	}
	if err := cfg.Validate(); err != nil {
		return ModuleOutput{}, err
	}

	clk := input.Clock
	if clk == nil {
		clk = clock.New()
	}

	rec := NewRecorder(NewBandwidthCounter(clk), clk)
	registry := prometheus.NewRegistry()
	if err := registry.Register(NewCollector(rec)); err != nil {
		return ModuleOutput{}, err
	}

	out := ModuleOutput{
		Recorder:  rec,
		Registry:  registry,
		Snapshots: NewSnapshotCollector(rec, clk, cfg.IdleTimeout.Duration()),
	}
	if cfg.Enabled {
		out.Reporter = rec
	}
	return out, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In
	LC        fx.Lifecycle
	Config    *config.Config `optional:"true"`
	Snapshots *SnapshotCollector
}

// registerLifecycle 按配置启动快照
func registerLifecycle(input lifecycleInput) {
	if input.Config == nil || input.Config.Metrics.SnapshotInterval <= 0 {
		return
	}
	interval := input.Config.Metrics.SnapshotInterval.Duration()
	input.LC.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			input.Snapshots.Start(interval)
			return nil
		},
		OnStop: func(_ context.Context) error {
			input.Snapshots.Stop()
			return nil
		},
	})
}

// ============================================================================
//                              模块元信息
// ============================================================================

// 模块元信息常量
const (
	Version     = "1.0.0"
	Name        = "metrics"
	Description = "指标模块，汇总 Channel 统计并导出 Prometheus 指标与周期快照"
)
