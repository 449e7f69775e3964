// Package main 提供 netio-echo 命令行入口
//
// 服务端把每个 Channel 上收到的数据原样写回；客户端连上后发送消息并等待回显。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dep2p/go-netio"
	"github.com/dep2p/go-netio/internal/core/bootstrap"
	"github.com/dep2p/go-netio/internal/core/channel"
	channelif "github.com/dep2p/go-netio/pkg/interfaces/channel"
	"github.com/dep2p/go-netio/pkg/lib/log"
)

var logger = log.Logger("netio/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
//	命令行参数：运行时覆盖 / 快速测试
//	JSON 配置文件：持久化配置（循环数、窗口、TLS 版本与超时等）
//
// ═══════════════════════════════════════════════════════════════════════════
var (
	// ─────────────────────────────────────────────────────────────────────
	// 运行模式
	// ─────────────────────────────────────────────────────────────────────
	mode       = flag.String("mode", "server", "运行模式 (server/client)")
	addr       = flag.String("addr", "127.0.0.1:9000", "监听或拨号地址")
	configFile = flag.String("config", "", "配置文件路径")

	// ─────────────────────────────────────────────────────────────────────
	// TLS
	// ─────────────────────────────────────────────────────────────────────
	certFile   = flag.String("cert", "", "服务端证书文件（PEM）")
	keyFile    = flag.String("key", "", "服务端私钥文件（PEM）")
	caFile     = flag.String("ca", "", "信任根证书文件（PEM）")
	serverName = flag.String("server-name", "", "客户端 SNI 与校验名称")
	alpn       = flag.String("alpn", "", "ALPN 列表（逗号分隔）")
	levels     = flag.Int("levels", 0, "TLS 嵌套层数（0 = 明文）")
	insecure   = flag.Bool("insecure", false, "不校验对端证书")

	// ─────────────────────────────────────────────────────────────────────
	// 客户端
	// ─────────────────────────────────────────────────────────────────────
	message = flag.String("message", "hello netio", "客户端发送的消息")
	count   = flag.Int("count", 1, "客户端发送次数")
	timeout = flag.Duration("timeout", 10*time.Second, "客户端等待回显的超时")

	// ─────────────────────────────────────────────────────────────────────
	// 观测
	// ─────────────────────────────────────────────────────────────────────
	metricsAddr = flag.String("metrics-addr", "", "Prometheus 指标监听地址（空 = 不导出）")
	statsEvery  = flag.Duration("stats-interval", 5*time.Second, "Channel 统计采样间隔")
	logFile     = flag.String("log", "", "日志文件路径")

	// ─────────────────────────────────────────────────────────────────────
	// 信息显示
	// ─────────────────────────────────────────────────────────────────────
	showVersion = flag.Bool("version", false, "显示版本信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		printVersion()
		return nil
	}

	if closeLog, err := setupLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "警告: %v\n", err)
	} else if closeLog != nil {
		defer closeLog()
	}

	opts, err := buildOptions()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Printf("📦 %s\n", netio.VersionInfo())
	rt, err := netio.Start(ctx, opts...)
	if err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	defer func() { _ = rt.Close() }()

	stopMetrics := serveMetrics(rt)
	defer stopMetrics()

	switch *mode {
	case "server":
		return runServer(rt)
	case "client":
		return runClient(ctx, rt)
	default:
		return fmt.Errorf("未知模式: %s", *mode)
	}
}

// buildOptions 构建选项
//
// 配置优先级（从高到低）：命令行参数 > 环境变量 > 配置文件 > 默认值
func buildOptions() ([]netio.Option, error) {
	cfg, err := loadConfig(*configFile)
	if err != nil {
		return nil, err
	}

	opts := []netio.Option{netio.WithConfig(cfg)}
	if isFlagSet("levels") {
		opts = append(opts, netio.WithTLSLevels(*levels))
	}
	if *certFile != "" || *keyFile != "" {
		opts = append(opts, netio.WithTLSCertificate(*certFile, *keyFile))
	}
	if *caFile != "" {
		opts = append(opts, netio.WithTLSRootCA(*caFile))
	}
	if *serverName != "" {
		opts = append(opts, netio.WithTLSServerName(*serverName))
	}
	if *alpn != "" {
		opts = append(opts, netio.WithALPN(splitAndTrim(*alpn, ",")...))
	}
	if *insecure {
		opts = append(opts, netio.WithInsecureSkipVerify())
	}
	if *metricsAddr != "" || getMetricsAddrFromEnv() != "" {
		opts = append(opts, netio.WithStatistics(*statsEvery))
	}
	return opts, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 服务端
// ═══════════════════════════════════════════════════════════════════════════

func runServer(rt *netio.Runtime) error {
	ln, err := rt.Listen(bootstrap.ServerOptions{
		Address: *addr,
		Handler: echoHandler,
		OnIncomingSetup: func(ch *channel.Channel, err error) {
			if err != nil {
				logger.Warn("入站连接建立失败", "err", err)
				return
			}
			logger.Info("入站连接已建立", "channel", log.TruncateID(ch.ID(), 8))
		},
		OnIncomingShutdown: func(ch *channel.Channel, err error) {
			logger.Info("入站连接已关闭", "channel", log.TruncateID(ch.ID(), 8), "err", err)
		},
	})
	if err != nil {
		return fmt.Errorf("监听失败: %w", err)
	}

	fmt.Printf("回显服务已启动: %s (TLS 层数 %d)，按 Ctrl+C 退出\n", ln.Addr(), rt.Config().TLS.Levels)
	waitForSignal()
	fmt.Println("\n正在关闭...")
	return ln.Close()
}

// echoHandler 原样写回
func echoHandler(*channel.Channel) channelif.Handler {
	return channel.NewReadWriteHandler(channel.ReadWriteOptions{
		InitialWindow:       64 * 1024,
		AutoIncrementWindow: true,
		OnRead: func(h *channel.ReadWriteHandler, data []byte) {
			h.Write(data, nil)
		},
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// 客户端
// ═══════════════════════════════════════════════════════════════════════════

// echoClient 收集回显数据
type echoClient struct {
	want int

	mu       sync.Mutex
	app      *channel.ReadWriteHandler
	received []byte
	done     chan struct{}
	once     sync.Once

	setup    chan error
	shutdown chan error
}

func (c *echoClient) handler(*channel.Channel) channelif.Handler {
	app := channel.NewReadWriteHandler(channel.ReadWriteOptions{
		InitialWindow:       64 * 1024,
		AutoIncrementWindow: true,
		OnRead: func(_ *channel.ReadWriteHandler, data []byte) {
			c.mu.Lock()
			c.received = append(c.received, data...)
			n := len(c.received)
			c.mu.Unlock()
			if n >= c.want {
				c.once.Do(func() { close(c.done) })
			}
		},
	})
	c.mu.Lock()
	c.app = app
	c.mu.Unlock()
	return app
}

func runClient(ctx context.Context, rt *netio.Runtime) error {
	payload := []byte(*message)
	if len(payload) == 0 || *count <= 0 {
		return errors.New("message 与 count 必须非空")
	}

	c := &echoClient{
		want:     len(payload) * *count,
		done:     make(chan struct{}),
		setup:    make(chan error, 1),
		shutdown: make(chan error, 1),
	}
	err := rt.Connect(ctx, bootstrap.ClientOptions{
		Address:    *addr,
		Handler:    c.handler,
		OnSetup:    func(_ *channel.Channel, err error) { c.setup <- err },
		OnShutdown: func(_ *channel.Channel, err error) { c.shutdown <- err },
	})
	if err != nil {
		return err
	}

	timer := time.NewTimer(*timeout)
	defer timer.Stop()

	select {
	case err := <-c.setup:
		if err != nil {
			return fmt.Errorf("连接失败: %w", err)
		}
	case <-timer.C:
		return errors.New("连接超时")
	}

	start := time.Now()
	for i := 0; i < *count; i++ {
		c.app.Write(payload, nil)
	}

	select {
	case <-c.done:
	case err := <-c.shutdown:
		return fmt.Errorf("连接提前关闭: %w", err)
	case <-timer.C:
		return errors.New("等待回显超时")
	}

	c.mu.Lock()
	received := string(c.received)
	c.mu.Unlock()
	fmt.Printf("收到回显 %d 字节，用时 %v\n", len(received), time.Since(start).Round(time.Microsecond))
	if *count == 1 {
		fmt.Println(received)
	} else if received != strings.Repeat(*message, *count) {
		return errors.New("回显内容不一致")
	}

	c.app.Slot().Channel().Shutdown(nil)
	select {
	case err := <-c.shutdown:
		return err
	case <-time.After(*timeout):
		return errors.New("等待关闭超时")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 辅助函数
// ═══════════════════════════════════════════════════════════════════════════

// serveMetrics 按需启动指标 HTTP 服务，返回停止函数
func serveMetrics(rt *netio.Runtime) func() {
	listenAddr := *metricsAddr
	if listenAddr == "" {
		listenAddr = getMetricsAddrFromEnv()
	}
	if listenAddr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", rt.MetricsHandler())
	srv := &http.Server{Addr: listenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("指标服务退出", "err", err)
		}
	}()
	fmt.Printf("指标: http://%s/metrics\n", displayAddr(listenAddr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// displayAddr 补全省略的主机名
func displayAddr(a string) string {
	host, port, err := net.SplitHostPort(a)
	if err != nil || host != "" {
		return a
	}
	return net.JoinHostPort("localhost", port)
}

// setupLogging 设置日志输出，返回关闭函数
func setupLogging() (func(), error) {
	path := *logFile
	if path == "" {
		path = getLogFileFromEnv()
	}
	if path == "" {
		return nil, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("打开日志文件失败: %w", err)
	}
	log.SetOutput(file)
	return func() { _ = file.Close() }, nil
}

// isFlagSet 检查命令行参数是否被显式设置
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// waitForSignal 等待退出信号
func waitForSignal() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals
}

func printVersion() {
	fmt.Printf("netio-echo %s\n", netio.Version)
	if netio.GitCommit != "" {
		fmt.Printf("  commit: %s\n", netio.GitCommit)
	}
	if netio.BuildDate != "" {
		fmt.Printf("  built:  %s\n", netio.BuildDate)
	}
}
