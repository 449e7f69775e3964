// Package tls 实现 Channel 上的 TLS Handler
//
// TLS Handler 插在传输层 Handler 右侧，把左侧送来的密文解密后向右投递，
// 把右侧写入的明文加密后向左发送。协商由 crypto/tls 完成：握手在辅助
// goroutine 上通过内存桥接连接进行，结果以循环任务的形式回到 Channel；
// 协商成功后解密在循环上以非阻塞方式进行。
//
// # 协商状态
//
//	INIT → NEGOTIATING → NEGOTIATED
//	                   ↘ FAILED
//
// 协商结果回调恰好触发一次：成功、失败、超时，或协商期间 Channel 关闭。
//
// # 流控
//
// 解密后的明文按下游窗口切分投递，超出部分缓存在 Handler 中，
// 下游归还窗口时优先发送，顺序不变。读方向关闭时若仍有缓存
// 且不是 abort，关闭延迟到缓存全部投递之后完成。
//
// # 多层 TLS
//
// 一层协商成功后可在链尾再追加一个 TLS Handler，新层的“密文”就是
// 上一层的明文：
//
//	ctx, _ := tls.NewContext(tls.ContextOptions{Role: types.RoleClient, ...})
//	defer ctx.Release()
//
//	h, err := tls.AppendTLSHandler(socketSlot, &tls.ConnectionOptions{
//	    Context:    ctx,
//	    ServerName: "example.com",
//	    OnNegotiationResult: func(h *tls.Handler, slot channelif.Slot, err error) {
//	        // 追加下一层 TLS 或应用层 Handler
//	    },
//	})
package tls
