package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dep2p/go-netio/config"
)

// ============================================================================
//                              环境变量（CLI 专用）
// ============================================================================

// 环境变量前缀与名称
const (
	envPrefix      = "NETIO_"
	envThreads     = "THREADS"
	envTLSLevels   = "TLS_LEVELS"
	envALPN        = "TLS_ALPN"
	envServerName  = "TLS_SERVER_NAME"
	envBackPress   = "BACK_PRESSURE"
	envLogFile     = "LOG_FILE"
	envMetricsAddr = "METRICS_ADDR"
)

// applyEnvOverrides 应用环境变量覆盖配置
//
// 环境变量优先级高于配置文件，但低于命令行参数。
// 支持的环境变量（均使用 NETIO_ 前缀）：
//   - NETIO_THREADS: 事件循环数量
//   - NETIO_TLS_LEVELS: TLS 层数
//   - NETIO_TLS_ALPN: ALPN 列表（逗号分隔）
//   - NETIO_TLS_SERVER_NAME: 客户端 SNI
//   - NETIO_BACK_PRESSURE: 启用读方向背压
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv(envPrefix + envThreads); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EventLoop.Threads = n
		}
	}

	if v := os.Getenv(envPrefix + envTLSLevels); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.TLS.Levels = n
		}
	}

	if v := os.Getenv(envPrefix + envALPN); v != "" {
		cfg.TLS.ALPN = splitAndTrim(v, ",")
	}

	if v := os.Getenv(envPrefix + envServerName); v != "" {
		cfg.TLS.ServerName = v
	}

	if v := os.Getenv(envPrefix + envBackPress); v != "" {
		cfg.Channel.EnableBackPressure = parseBool(v)
	}
}

// loadConfig 加载配置文件并应用环境变量覆盖
//
// 没有配置文件时默认明文。文件或环境变量中可修复的取值
// （非正的循环数、负的 TLS 层数等）由 config.ValidateAndFix 修正。
func loadConfig(path string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.TLS.Levels = 0
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件: %w", err)
		}
		if cfg, err = config.FromJSON(data); err != nil {
			return nil, err
		}
	}
	applyEnvOverrides(cfg)
	return config.ValidateAndFix(cfg)
}

// getLogFileFromEnv 从环境变量获取日志文件路径
func getLogFileFromEnv() string {
	return os.Getenv(envPrefix + envLogFile)
}

// getMetricsAddrFromEnv 从环境变量获取指标监听地址
func getMetricsAddrFromEnv() string {
	return os.Getenv(envPrefix + envMetricsAddr)
}

// ============================================================================
//                              辅助函数
// ============================================================================

// parseBool 解析布尔值字符串
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// splitAndTrim 分割字符串并去除空白
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
