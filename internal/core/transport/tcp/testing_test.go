package tcp

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-netio/internal/core/channel"
	"github.com/dep2p/go-netio/internal/core/eventloop"
	eventloopif "github.com/dep2p/go-netio/pkg/interfaces/eventloop"
	"github.com/dep2p/go-netio/pkg/types"
)

const waitTimeout = 5 * time.Second

// newConnPair 通过回环地址建立一对 TCP 连接
func newConnPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()

	tr := NewTransport()
	t.Cleanup(func() { _ = tr.Close() })

	ln, err := tr.Listen("127.0.0.1:0")
	require.NoError(t, err)

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	local, err := tr.Dial(context.Background(), ln.Addr().String(), DefaultDialOptions())
	require.NoError(t, err)

	var peer net.Conn
	select {
	case peer = <-accepted:
	case <-time.After(waitTimeout):
		t.Fatal("等待入站连接超时")
	}
	t.Cleanup(func() {
		_ = local.Close()
		_ = peer.Close()
	})
	return local, peer
}

type testerOptions struct {
	backPressure bool
	appWindow    int
	autoIncrease bool
	socket       SocketOptions
}

// socketTester 一端接入 Channel，另一端是裸连接
type socketTester struct {
	t    *testing.T
	loop *eventloop.Loop
	ch   *channel.Channel

	socket *SocketHandler
	app    *channel.ReadWriteHandler
	peer   net.Conn

	shutdown chan error

	mu       sync.Mutex
	received []byte
}

func newSocketTester(t *testing.T, to testerOptions) *socketTester {
	t.Helper()

	loop := eventloop.New()
	require.NoError(t, loop.Start())
	t.Cleanup(func() { _ = loop.Stop() })

	if to.appWindow <= 0 {
		to.appWindow = 64 * 1024
	}

	local, peer := newConnPair(t)
	st := &socketTester{
		t:        t,
		loop:     loop,
		peer:     peer,
		socket:   NewSocketHandler(local, to.socket),
		shutdown: make(chan error, 2),
	}
	st.app = channel.NewReadWriteHandler(channel.ReadWriteOptions{
		InitialWindow:       to.appWindow,
		AutoIncrementWindow: to.autoIncrease,
		OnRead: func(_ *channel.ReadWriteHandler, data []byte) {
			st.mu.Lock()
			st.received = append(st.received, data...)
			st.mu.Unlock()
		},
	})

	setup := make(chan error, 1)
	ch, err := channel.New(channel.Options{
		Loop:                   loop,
		EnableReadBackPressure: to.backPressure,
		OnSetupCompleted:       func(_ *channel.Channel, err error) { setup <- err },
		OnShutdownCompleted:    func(_ *channel.Channel, err error) { st.shutdown <- err },
	})
	require.NoError(t, err)
	st.ch = ch
	require.NoError(t, waitErr(t, setup))

	st.onLoop(func() {
		first, err := ch.NewSlot()
		require.NoError(t, err)
		require.NoError(t, st.socket.Install(first))

		last, err := ch.NewSlot()
		require.NoError(t, err)
		require.NoError(t, first.InsertEnd(last))
		require.NoError(t, st.app.Attach(last))
	})
	return st
}

// onLoop 在循环上执行 fn 并等待完成
func (st *socketTester) onLoop(fn func()) {
	st.t.Helper()
	done := make(chan struct{})
	st.loop.ScheduleTaskNow(eventloopif.NewTask("test", func(types.TaskStatus) {
		defer close(done)
		fn()
	}))
	select {
	case <-done:
	case <-time.After(waitTimeout):
		st.t.Fatal("等待循环任务超时")
	}
}

func (st *socketTester) Received() []byte {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]byte(nil), st.received...)
}

func (st *socketTester) waitReceived(n int) []byte {
	st.t.Helper()
	require.Eventually(st.t, func() bool {
		return len(st.Received()) >= n
	}, waitTimeout, time.Millisecond)
	return st.Received()
}

func (st *socketTester) waitShutdown() error {
	st.t.Helper()
	return waitErr(st.t, st.shutdown)
}

// write 由应用层写出并等待完成回调
func (st *socketTester) write(data []byte) error {
	st.t.Helper()
	done := make(chan error, 1)
	st.app.Write(data, func(err error) { done <- err })
	return waitErr(st.t, done)
}

// peerRead 从裸连接读取 n 字节
func (st *socketTester) peerRead(n int) []byte {
	st.t.Helper()
	require.NoError(st.t, st.peer.SetReadDeadline(time.Now().Add(waitTimeout)))
	buf := make([]byte, n)
	_, err := io.ReadFull(st.peer, buf)
	require.NoError(st.t, err)
	return buf
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("等待回调超时")
		return nil
	}
}
