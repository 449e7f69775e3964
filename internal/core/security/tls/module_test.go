package tls

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-netio/config"
)

// TestModule 测试 fx 模块创建上下文并在停止时释放
func TestModule(t *testing.T) {
	certs := newTestCerts(t)
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.TLS.CertFile = filepath.Join(dir, "cert.pem")
	cfg.TLS.KeyFile = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(cfg.TLS.CertFile, certs.certPEM, 0o600))
	require.NoError(t, os.WriteFile(cfg.TLS.KeyFile, certs.keyPEM, 0o600))

	var contexts *Contexts
	app := fxtest.New(t,
		fx.Supply(cfg),
		Module(),
		fx.Populate(&contexts),
		fx.NopLogger,
	)
	app.RequireStart()

	require.NotNil(t, contexts)
	assert.True(t, contexts.Client.Valid())
	assert.True(t, contexts.Server.Valid())

	app.RequireStop()
	assert.False(t, contexts.Client.Valid())
	assert.False(t, contexts.Server.Valid())
}

// TestModule_InvalidConfig 非法配置导致启动失败
func TestModule_InvalidConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.TLS.MinVersion = "0.9"

	app := fx.New(fx.Supply(cfg), Module(), fx.NopLogger)
	assert.Error(t, app.Err())
}

// TestModule_Metadata 测试模块元信息
func TestModule_Metadata(t *testing.T) {
	assert.Equal(t, "tls", Name)
	assert.NotEmpty(t, Version)
	assert.NotEmpty(t, Description)
}
