// Package metrics 汇总 Channel 统计并导出指标
//
// Channel 按 StatisticsInterval 周期采样链上各 Handler 的 Statistics，
// 交给 channelif.StatisticsReporter。本包的 Recorder 实现该接口：
//
//   - 第一项（套接字）的字节数计入全局与 Channel 级线上流量
//   - 每一项按 Kind 计入类别流量
//   - TLS Handler 进入终态时记录一次协商结果与握手耗时
//   - Channel 关闭时移除其 Channel 级统计
//
// # 快速开始
//
//	rec := metrics.NewRecorder(nil, nil)
//	registry := prometheus.NewRegistry()
//	registry.MustRegister(metrics.NewCollector(rec))
//
//	bootstrap.NewClientBootstrap(bootstrap.Options{
//	    Group:    group,
//	    Channel:  cfg.Channel, // StatisticsInterval > 0
//	    Socket:   cfg.Socket,
//	    Reporter: rec,
//	})
//
// # 速率
//
// RateMeter 以 60 个一秒桶计算最近一分钟的平均速率，时钟可注入，
// 测试使用 clock.NewMock()。
//
// # 快照
//
// SnapshotCollector 按 Metrics.SnapshotInterval 输出一行汇总日志，
// 并在配置了 IdleTimeout 时清理长时间没有上报的 Channel。
package metrics
