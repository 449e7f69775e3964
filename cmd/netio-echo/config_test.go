package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-netio/config"
)

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("NETIO_THREADS", "3")
	t.Setenv("NETIO_TLS_LEVELS", "2")
	t.Setenv("NETIO_TLS_ALPN", " echo/1, echo/2 ,")
	t.Setenv("NETIO_TLS_SERVER_NAME", "example.com")
	t.Setenv("NETIO_BACK_PRESSURE", "yes")

	cfg := config.NewConfig()
	applyEnvOverrides(cfg)

	assert.Equal(t, 3, cfg.EventLoop.Threads)
	assert.Equal(t, 2, cfg.TLS.Levels)
	assert.Equal(t, []string{"echo/1", "echo/2"}, cfg.TLS.ALPN)
	assert.Equal(t, "example.com", cfg.TLS.ServerName)
	assert.True(t, cfg.Channel.EnableBackPressure)
}

func TestApplyEnvOverrides_InvalidIgnored(t *testing.T) {
	t.Setenv("NETIO_THREADS", "-1")
	t.Setenv("NETIO_TLS_LEVELS", "abc")

	cfg := config.NewConfig()
	want := cfg.EventLoop.Threads
	applyEnvOverrides(cfg)

	assert.Equal(t, want, cfg.EventLoop.Threads)
	assert.Equal(t, config.DefaultTLSConfig().Levels, cfg.TLS.Levels)
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"true", "1", "YES", " on "} {
		assert.True(t, parseBool(v), v)
	}
	for _, v := range []string{"false", "0", "", "nope"} {
		assert.False(t, parseBool(v), v)
	}
}

func TestLoadConfig(t *testing.T) {
	// 没有配置文件时默认明文
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.TLS.Levels)

	path := filepath.Join(t.TempDir(), "netio.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"event_loop": {"threads": 0}, "channel": {"enable_back_pressure": true, "initial_window": 0}, "tls": {"levels": 2}}`), 0o600))

	// 可修复的取值被修正
	cfg, err = loadConfig(path)
	require.NoError(t, err)
	assert.Positive(t, cfg.EventLoop.Threads)
	assert.Equal(t, cfg.Channel.MaxFragmentSize, cfg.Channel.InitialWindow)
	assert.Equal(t, 2, cfg.TLS.Levels)

	// 环境变量覆盖配置文件
	t.Setenv("NETIO_TLS_LEVELS", "1")
	cfg, err = loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.TLS.Levels)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
