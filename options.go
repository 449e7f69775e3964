package netio

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-netio/config"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// config 完整配置，未设置时使用默认配置
	config *config.Config

	// clock 注入的时钟，供事件循环与指标使用
	clock clock.Clock

	// fxOptions 用户扩展的 fx 选项
	fxOptions []fx.Option
}

func newOptions() *options {
	return &options{config: config.NewConfig()}
}

// ════════════════════════════════════════════════════════════════════════════
//                              配置来源
// ════════════════════════════════════════════════════════════════════════════

// WithConfig 使用完整配置替换默认配置
//
// 之后的选项在此配置上继续修改。
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		o.config = config.CloneConfig(cfg)
		return nil
	}
}

// WithConfigFile 从 JSON 文件加载配置
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		o.config = cfg
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              事件循环与管道
// ════════════════════════════════════════════════════════════════════════════

// WithThreads 设置事件循环数量
func WithThreads(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return fmt.Errorf("threads must be positive, got %d", n)
		}
		o.config.EventLoop.Threads = n
		return nil
	}
}

// WithBackPressure 启用读方向背压，window 为应用层初始窗口
func WithBackPressure(window int) Option {
	return func(o *options) error {
		if window < 0 {
			return fmt.Errorf("window must be non-negative, got %d", window)
		}
		o.config.Channel.EnableBackPressure = true
		o.config.Channel.InitialWindow = window
		return nil
	}
}

// WithMaxFragmentSize 设置单条消息最大字节数
func WithMaxFragmentSize(size int) Option {
	return func(o *options) error {
		if size <= 0 {
			return fmt.Errorf("fragment size must be positive, got %d", size)
		}
		o.config.Channel.MaxFragmentSize = size
		return nil
	}
}

// WithStatistics 设置 Channel 统计采样间隔，0 关闭采样
func WithStatistics(interval time.Duration) Option {
	return func(o *options) error {
		o.config.Channel.StatisticsInterval = config.Duration(interval)
		o.config.Metrics.Enabled = interval > 0
		return nil
	}
}

// WithSnapshotInterval 设置指标快照日志间隔
func WithSnapshotInterval(interval time.Duration) Option {
	return func(o *options) error {
		o.config.Metrics.SnapshotInterval = config.Duration(interval)
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              套接字
// ════════════════════════════════════════════════════════════════════════════

// WithConnectTimeout 设置拨号超时
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("connect timeout must be positive, got %v", d)
		}
		o.config.Socket.ConnectTimeout = config.Duration(d)
		return nil
	}
}

// WithAcceptRate 限制每秒接受的入站连接数
func WithAcceptRate(perSecond float64, burst int) Option {
	return func(o *options) error {
		o.config.Socket.AcceptRate = perSecond
		o.config.Socket.AcceptBurst = burst
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              TLS
// ════════════════════════════════════════════════════════════════════════════

// WithTLSCertificate 设置服务端证书与私钥文件
func WithTLSCertificate(certFile, keyFile string) Option {
	return func(o *options) error {
		o.config.TLS.CertFile = certFile
		o.config.TLS.KeyFile = keyFile
		return nil
	}
}

// WithTLSRootCA 使用指定根证书替换系统根证书
func WithTLSRootCA(caFile string) Option {
	return func(o *options) error {
		o.config.TLS.CAFile = caFile
		return nil
	}
}

// WithTLSServerName 设置客户端 SNI 与校验名称
func WithTLSServerName(name string) Option {
	return func(o *options) error {
		o.config.TLS.ServerName = name
		return nil
	}
}

// WithALPN 设置应用层协议列表
func WithALPN(protocols ...string) Option {
	return func(o *options) error {
		o.config.TLS.ALPN = append([]string(nil), protocols...)
		return nil
	}
}

// WithTLSLevels 设置 TLS 嵌套层数，0 表示明文
func WithTLSLevels(levels int) Option {
	return func(o *options) error {
		if levels < 0 {
			return fmt.Errorf("tls levels must be non-negative, got %d", levels)
		}
		o.config.TLS.Levels = levels
		return nil
	}
}

// WithInsecureSkipVerify 关闭对端证书校验
func WithInsecureSkipVerify() Option {
	return func(o *options) error {
		o.config.TLS.VerifyPeer = false
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              扩展
// ════════════════════════════════════════════════════════════════════════════

// WithClock 注入时钟，主要用于测试
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		o.clock = clk
		return nil
	}
}

// WithFxOptions 追加 fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.fxOptions = append(o.fxOptions, opts...)
		return nil
	}
}
