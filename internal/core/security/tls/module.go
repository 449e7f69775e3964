package tls

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-netio/config"
	"github.com/dep2p/go-netio/pkg/types"
)

// Contexts 按配置创建的客户端/服务端上下文
type Contexts struct {
	// Client 客户端上下文
	Client *Context

	// Server 服务端上下文，未配置证书时为 nil
	Server *Context

	// Config 创建上下文所用的配置
	Config config.TLSConfig
}

// ConnectionOptions 为指定角色生成连接选项，对应上下文不存在时返回 nil
func (c *Contexts) ConnectionOptions(role types.TLSRole) *ConnectionOptions {
	ctx := c.Client
	if role == types.RoleServer {
		ctx = c.Server
	}
	if ctx == nil {
		return nil
	}
	return ConnectionOptionsFromConfig(ctx, c.Config)
}

// Release 释放两个上下文
func (c *Contexts) Release() {
	c.Client.Release()
	c.Server.Release()
}

// NewContexts 按配置创建上下文
func NewContexts(cfg config.TLSConfig) (*Contexts, error) {
	if err := cfg.Validate(); err != nil {
		return nil, types.Wrap(types.ErrTLSContextInvalid, "%v", err)
	}

	clientOpts, err := OptionsFromConfig(cfg, types.RoleClient)
	if err != nil {
		return nil, err
	}
	// 服务端只在配置了 CA 时要求客户端证书，此时客户端出示同一证书
	if cfg.CAFile == "" {
		clientOpts.CertFile, clientOpts.KeyFile = "", ""
	}
	client, err := NewContext(clientOpts)
	if err != nil {
		return nil, err
	}

	out := &Contexts{Client: client, Config: cfg}
	if cfg.CertFile != "" {
		serverOpts, err := OptionsFromConfig(cfg, types.RoleServer)
		if err != nil {
			client.Release()
			return nil, err
		}
		server, err := NewContext(serverOpts)
		if err != nil {
			client.Release()
			return nil, err
		}
		out.Server = server
	}
	return out, nil
}

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	// Config 配置（可选）
	Config *config.Config `optional:"true"`
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	// Contexts TLS 上下文
	Contexts *Contexts
}

// ============================================================================
//                              服务提供
// ============================================================================

// ProvideServices 提供模块服务
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	cfg := config.DefaultTLSConfig()
	if input.Config != nil {
		cfg = input.Config.TLS
	}

	contexts, err := NewContexts(cfg)
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{Contexts: contexts}, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("tls",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In
	LC       fx.Lifecycle
	Contexts *Contexts
}

// registerLifecycle 注册生命周期
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			input.Contexts.Release()
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
	Name        = "tls"
	Description = "TLS 模块，提供共享上下文与 Channel 上的 TLS Handler"
)
