package eventloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-netio/config"
)

// TestModule 测试 fx 模块按配置创建循环组并管理生命周期
func TestModule(t *testing.T) {
	cfg := config.NewConfig()
	cfg.EventLoop.Threads = 2

	var g *Group
	app := fxtest.New(t,
		fx.Supply(cfg),
		Module(),
		fx.Populate(&g),
		fx.NopLogger,
	)
	app.RequireStart()

	require.NotNil(t, g)
	assert.Equal(t, 2, g.Size())

	app.RequireStop()
	<-g.Loop(0).Done()
	<-g.Loop(1).Done()
}

// TestModule_InvalidConfig 非法配置导致启动失败
func TestModule_InvalidConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.EventLoop.Threads = -1

	app := fx.New(fx.Supply(cfg), Module(), fx.Invoke(func(*Group) {}), fx.NopLogger)
	assert.Error(t, app.Err())
}

// TestModule_Metadata 测试模块元信息
func TestModule_Metadata(t *testing.T) {
	assert.Equal(t, "eventloop", Name)
	assert.NotEmpty(t, Version)
	assert.NotEmpty(t, Description)
}
