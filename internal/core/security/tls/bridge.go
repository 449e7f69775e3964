package tls

import (
	"bytes"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// bridge 供 crypto/tls 使用的内存连接
//
// 读方向：Handler 把左侧送来的密文 feed 进来，tls.Conn 从中读取。
// 握手期间读取会阻塞等待数据；协商成功后切换为非阻塞模式，没有数据时
// 返回 os.ErrDeadlineExceeded，tls.Conn 把它当作可恢复的超时。
//
// 写方向：tls.Conn 产生的密文追加到出站队列，由 Handler 在循环上取走发送。
type bridge struct {
	mu sync.Mutex

	in          bytes.Buffer
	nonBlocking bool
	closed      bool

	out      [][]byte
	notified bool

	readable chan struct{}
	done     chan struct{}

	// onWrite 出站队列从空变为非空时调用
	onWrite func()
}

// 确保实现接口
var _ net.Conn = (*bridge)(nil)

func newBridge(onWrite func()) *bridge {
	return &bridge{
		readable: make(chan struct{}, 1),
		done:     make(chan struct{}),
		onWrite:  onWrite,
	}
}

// feed 写入收到的密文
func (b *bridge) feed(p []byte) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.in.Write(p)
	b.mu.Unlock()

	select {
	case b.readable <- struct{}{}:
	default:
	}
}

// buffered 未被 tls.Conn 取走的密文字节数
func (b *bridge) buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.in.Len()
}

// setNonBlocking 切换为非阻塞读
func (b *bridge) setNonBlocking() {
	b.mu.Lock()
	b.nonBlocking = true
	b.mu.Unlock()
}

// takeOutbound 取走出站队列
func (b *bridge) takeOutbound() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.out
	b.out = nil
	b.notified = false
	return out
}

// Read 实现 net.Conn
func (b *bridge) Read(p []byte) (int, error) {
	for {
		b.mu.Lock()
		if b.in.Len() > 0 {
			n, _ := b.in.Read(p)
			b.mu.Unlock()
			return n, nil
		}
		if b.closed {
			b.mu.Unlock()
			return 0, io.EOF
		}
		if b.nonBlocking {
			b.mu.Unlock()
			return 0, os.ErrDeadlineExceeded
		}
		b.mu.Unlock()

		select {
		case <-b.readable:
		case <-b.done:
		}
	}
}

// Write 实现 net.Conn，从不阻塞
func (b *bridge) Write(p []byte) (int, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, net.ErrClosed
	}
	b.out = append(b.out, append([]byte(nil), p...))
	notify := !b.notified
	b.notified = true
	b.mu.Unlock()

	if notify && b.onWrite != nil {
		b.onWrite()
	}
	return len(p), nil
}

// Close 实现 net.Conn，可重复调用
func (b *bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
	return nil
}

func (b *bridge) LocalAddr() net.Addr  { return bridgeAddr{} }
func (b *bridge) RemoteAddr() net.Addr { return bridgeAddr{} }

func (b *bridge) SetDeadline(time.Time) error      { return nil }
func (b *bridge) SetReadDeadline(time.Time) error  { return nil }
func (b *bridge) SetWriteDeadline(time.Time) error { return nil }

// bridgeAddr 内存连接地址
type bridgeAddr struct{}

func (bridgeAddr) Network() string { return "channel" }
func (bridgeAddr) String() string  { return "channel" }
