// Package bootstrap 拨号/监听并把连接装配成 Channel
//
// 每条连接的 Channel 结构：
//
//	[socket] → [TLS 1] → … → [TLS n] → [应用层 Handler]
//
// 客户端拨号成功、服务端接受连接后，按组内轮询选一个事件循环创建 Channel，
// 先装 socket Handler，再逐层追加 TLS：上一层协商成功的回调里追加下一层，
// 最后一层成功后安装应用层 Handler 并调用建立回调。
//
// # 回调约定
//
//   - OnSetup 恰好调用一次：全部成功时 err 为 nil；否则为第一个错误
//     （拨号失败、协商失败、建立期间关闭），此时 Channel 已关闭完毕
//   - OnShutdown 只在建立成功后调用，且恰好一次
//
// # 使用示例
//
//	client := bootstrap.NewClientBootstrap(bootstrap.Options{Group: group, Socket: cfg.Socket})
//	err := client.Connect(ctx, bootstrap.ClientOptions{
//	    Address:   "127.0.0.1:8443",
//	    TLS:       contexts.ConnectionOptions(types.RoleClient),
//	    Handler:   func(ch *channel.Channel) channelif.Handler { return app },
//	    OnSetup:   func(ch *channel.Channel, err error) { ... },
//	})
package bootstrap
