package bootstrap

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-netio/config"
	"github.com/dep2p/go-netio/internal/core/eventloop"
	channelif "github.com/dep2p/go-netio/pkg/interfaces/channel"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	// Group 事件循环组
	Group *eventloop.Group

	// Config 配置（可选）
	Config *config.Config `optional:"true"`

	// Reporter 统计接收方（可选）
	Reporter channelif.StatisticsReporter `optional:"true"`
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	// Client 客户端引导
	Client *ClientBootstrap

	// Server 服务端引导
	Server *ServerBootstrap
}

// ============================================================================
//                              服务提供
// ============================================================================

// ProvideServices 提供模块服务
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	cfg := config.NewConfig()
	if input.Config != nil {
		cfg = input.Config
	}
	if err := cfg.Channel.Validate(); err != nil {
		return ModuleOutput{}, err
	}
	if err := cfg.Socket.Validate(); err != nil {
		return ModuleOutput{}, err
	}

	opts := Options{
		Group:    input.Group,
		Channel:  cfg.Channel,
		Socket:   cfg.Socket,
		Reporter: input.Reporter,
	}
	return ModuleOutput{
		Client: NewClientBootstrap(opts),
		Server: NewServerBootstrap(opts),
	}, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In
	LC     fx.Lifecycle
	Client *ClientBootstrap
	Server *ServerBootstrap
}

// registerLifecycle 停止时关闭监听器与拨号
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return multierr.Combine(
				input.Server.Close(),
				input.Client.Close(),
			)
		},
	})
}

// ============================================================================
//                              模块元信息
// ============================================================================

// 模块元信息常量
const (
	Version     = "1.0.0"
	Name        = "bootstrap"
	Description = "引导模块，负责拨号/监听并装配 socket、TLS 与应用层 Handler"
)
