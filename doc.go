// Package netio 提供异步 Channel 管道与 TLS 协商的运行时
//
// 每条连接对应一个 Channel：一串有序的 Slot，每个 Slot 持有一个 Handler。
// 读方向数据从左向右流动（套接字 → TLS → 应用），写方向从右向左。
// 读方向受窗口控制，写方向不受限。Channel 上的所有 Handler 调用都发生在
// 同一个事件循环上。
//
// # 快速开始
//
//	import "github.com/dep2p/go-netio"
//
//	rt, err := netio.Start(ctx,
//	    netio.WithTLSCertificate("cert.pem", "key.pem"),
//	    netio.WithALPN("echo/1"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	ln, err := rt.Listen(bootstrap.ServerOptions{
//	    Address: "127.0.0.1:9000",
//	    Handler: func(ch *channel.Channel) channelif.Handler {
//	        return channel.NewReadWriteHandler(...)
//	    },
//	    OnIncomingSetup: func(ch *channel.Channel, err error) { ... },
//	})
//
// # 模块结构
//
//	┌─────────────────────────────────────────────────────────────────┐
//	│  入口层       Runtime  netio.New() / netio.Start()              │
//	├─────────────────────────────────────────────────────────────────┤
//	│  引导层       ClientBootstrap / ServerBootstrap                 │
//	├─────────────────────────────────────────────────────────────────┤
//	│  管道层       Channel ─ Slot ─ Handler（socket │ tls │ app）    │
//	├─────────────────────────────────────────────────────────────────┤
//	│  基础层       EventLoop Group │ TLS Context │ Metrics            │
//	└─────────────────────────────────────────────────────────────────┘
//
// # 文件组织
//
//   - netio.go: 版本信息
//   - runtime.go: Runtime 生命周期、连接入口与访问器
//   - options.go: 函数式选项
//   - fx.go: Fx 模块组装
//   - errors.go: 公共错误
//
// # 指标
//
// 配置 WithStatistics 后各 Channel 周期上报统计，Runtime.Metrics 返回汇总，
// Runtime.MetricsHandler 以 Prometheus 文本格式导出。
package netio
