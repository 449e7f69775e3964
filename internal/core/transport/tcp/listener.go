package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// ============================================================================
//                              Listener
// ============================================================================

// Listener TCP 监听器
type Listener struct {
	listener *net.TCPListener
	closed   atomic.Bool
	onClose  func()
}

// NewListener 在 addr（host:port）上创建监听器
func NewListener(addr string) (*Listener, error) {
	lc := net.ListenConfig{
		KeepAlive: 30 * time.Second,
	}

	l, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("监听 %s 失败: %w", addr, err)
	}

	tcpListener, ok := l.(*net.TCPListener)
	if !ok {
		_ = l.Close()
		return nil, fmt.Errorf("不是 TCP 监听器: %T", l)
	}

	logger.Debug("开始监听", "addr", tcpListener.Addr())
	return &Listener{listener: tcpListener}, nil
}

// Accept 接受入站连接
//
// 监听器关闭后返回 types.ErrSocketClosed；临时错误原样返回，调用方可重试。
func (l *Listener) Accept() (net.Conn, error) {
	conn, err := l.listener.AcceptTCP()
	if err != nil {
		if l.closed.Load() || errors.Is(err, net.ErrClosed) {
			return nil, classifyAcceptError(err)
		}
		return nil, err
	}

	_ = conn.SetNoDelay(true)
	_ = conn.SetKeepAlive(true)
	return conn, nil
}

// Addr 返回实际监听地址
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Close 关闭监听器，重复关闭为空操作
func (l *Listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	if l.onClose != nil {
		l.onClose()
	}
	return l.listener.Close()
}

// IsClosed 检查监听器是否已关闭
func (l *Listener) IsClosed() bool {
	return l.closed.Load()
}
