package tcp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
)

// DialOptions 拨号选项
type DialOptions struct {
	// Timeout 拨号超时，0 表示只受 ctx 限制
	Timeout time.Duration

	// KeepAlive TCP 保活间隔，0 使用系统默认，负值关闭
	KeepAlive time.Duration

	// NoDelay 关闭 Nagle 算法
	NoDelay bool
}

// DefaultDialOptions 返回默认拨号选项
func DefaultDialOptions() DialOptions {
	return DialOptions{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		NoDelay:   true,
	}
}

// ============================================================================
//                              Transport
// ============================================================================

// Transport TCP 拨号与监听
//
// 记录由它创建的监听器，Close 时一并关闭。
type Transport struct {
	listeners   map[string]*Listener
	listenersMu sync.Mutex

	closed atomic.Bool
}

// NewTransport 创建 TCP 传输
func NewTransport() *Transport {
	return &Transport{
		listeners: make(map[string]*Listener),
	}
}

// Dial 建立出站连接，错误已归类为传输错误
func (t *Transport) Dial(ctx context.Context, addr string, opts DialOptions) (net.Conn, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}

	dialer := &net.Dialer{
		Timeout:   opts.Timeout,
		KeepAlive: opts.KeepAlive,
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("连接 %s 失败: %w", addr, classifyDialError(err))
	}

	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		_ = conn.Close()
		return nil, fmt.Errorf("不是 TCP 连接: %T", conn)
	}
	if opts.NoDelay {
		_ = tcpConn.SetNoDelay(true)
	}

	logger.Debug("拨号成功", "remote", addr, "local", tcpConn.LocalAddr())
	return tcpConn, nil
}

// Listen 在 addr（host:port）上监听，端口为 0 时由系统分配
func (t *Transport) Listen(addr string) (*Listener, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}

	l, err := NewListener(addr)
	if err != nil {
		return nil, err
	}

	key := l.Addr().String()
	t.listenersMu.Lock()
	t.listeners[key] = l
	t.listenersMu.Unlock()
	l.onClose = func() {
		t.listenersMu.Lock()
		delete(t.listeners, key)
		t.listenersMu.Unlock()
	}
	return l, nil
}

// ListenerCount 返回仍在监听的数量
func (t *Transport) ListenerCount() int {
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()
	return len(t.listeners)
}

// Close 关闭传输和它创建的所有监听器
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.listenersMu.Lock()
	listeners := make([]*Listener, 0, len(t.listeners))
	for _, l := range t.listeners {
		listeners = append(listeners, l)
	}
	t.listenersMu.Unlock()

	var err error
	for _, l := range listeners {
		err = multierr.Append(err, l.Close())
	}
	return err
}

// IsClosed 检查传输是否已关闭
func (t *Transport) IsClosed() bool {
	return t.closed.Load()
}
