// Package tcp 把 TCP 连接接入 Channel
//
// SocketHandler 位于 Channel 的第一个 Slot，一侧是 net.Conn，一侧是管道：
//
//	net.Conn ──读 goroutine──▶ 循环任务 ──SendMessage(DirRead)──▶ 右侧 Handler
//	net.Conn ◀──写 goroutine── 有序队列 ◀──ProcessWriteMessage── 右侧 Handler
//
// # 读方向
//
// 读 goroutine 每次最多读一个分片，交给循环投递；只有上一次读到的数据
// 全部投递给右侧（受其窗口限制）之后才会再次读取，窗口满时 TCP 自身的
// 流控把压力传回对端。
//
// # 写方向
//
// 写消息按到达顺序进入队列，由写 goroutine 依次写出，完成回调在循环上调用。
// 写方向关闭时先写完队列再关闭连接；abort 时直接关闭并丢弃队列。
//
// # 错误
//
//   - io.EOF、连接重置 → types.ErrSocketClosed
//   - 读超时 → types.ErrSocketTimeout
//   - 拨号超时 → types.ErrConnectTimeout
//   - 拨号被拒 → types.ErrConnectionRefused
//
// # 使用示例
//
//	t := tcp.NewTransport()
//	ln, err := t.Listen("127.0.0.1:0")
//	conn, err := t.Dial(ctx, ln.Addr().String(), tcp.DefaultDialOptions())
//
//	// 在 Channel 循环上
//	h := tcp.NewSocketHandler(conn, tcp.SocketOptions{})
//	err = h.Install(ch.FirstSlot())
package tcp
