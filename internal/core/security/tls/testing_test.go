package tls

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-netio/internal/core/channel"
	"github.com/dep2p/go-netio/internal/core/eventloop"
	channelif "github.com/dep2p/go-netio/pkg/interfaces/channel"
	eventloopif "github.com/dep2p/go-netio/pkg/interfaces/eventloop"
	"github.com/dep2p/go-netio/pkg/types"
)

const (
	waitTimeout = 10 * time.Second
	testALPN    = "netio/1"
	testHost    = "localhost"
)

// ============================================================================
//                              证书
// ============================================================================

// testCerts 测试用自签名证书
type testCerts struct {
	certPEM []byte
	keyPEM  []byte
}

func newTestCerts(t *testing.T) testCerts {
	t.Helper()
	certPEM, keyPEM, err := GenerateSelfSigned([]string{testHost, "127.0.0.1"}, time.Hour)
	require.NoError(t, err)
	return testCerts{certPEM: certPEM, keyPEM: keyPEM}
}

func (c testCerts) serverContext(t *testing.T) *Context {
	t.Helper()
	ctx, err := NewContext(ContextOptions{
		Role:    types.RoleServer,
		ALPN:    []string{testALPN},
		CertPEM: c.certPEM,
		KeyPEM:  c.keyPEM,
	})
	require.NoError(t, err)
	return ctx
}

func (c testCerts) clientContext(t *testing.T) *Context {
	t.Helper()
	ctx, err := NewContext(ContextOptions{
		Role:       types.RoleClient,
		VerifyPeer: true,
		ALPN:       []string{testALPN},
		CAPEM:      c.certPEM,
	})
	require.NoError(t, err)
	return ctx
}

// ============================================================================
//                              pipeHandler - 内存传输
// ============================================================================

// pipeHandler 链头的内存传输 Handler
//
// 写出的数据投递到对端 pipeHandler 所在的循环，对端按下游窗口向右投递；
// 写方向关闭时通知对端，对端数据投递完后以 ErrSocketClosed 关闭 Channel。
type pipeHandler struct {
	slot channelif.Slot
	peer *pipeHandler

	// 以下字段只在本端循环上访问
	inbound    []byte
	peerClosed bool
	reported   bool
}

func (p *pipeHandler) deliver(data []byte) {
	ch := p.slot.Channel()
	ch.ScheduleTaskNow(eventloopif.NewTask("pipe_deliver", func(status types.TaskStatus) {
		if status == types.TaskCanceled {
			return
		}
		p.inbound = append(p.inbound, data...)
		p.pump()
	}))
}

func (p *pipeHandler) closeFromPeer() {
	ch := p.slot.Channel()
	ch.ScheduleTaskNow(eventloopif.NewTask("pipe_peer_closed", func(status types.TaskStatus) {
		if status == types.TaskCanceled {
			return
		}
		p.peerClosed = true
		p.pump()
	}))
}

// pump 按下游窗口投递收到的数据
func (p *pipeHandler) pump() {
	ch := p.slot.Channel()
	for len(p.inbound) > 0 && p.slot.Right() != nil && ch.ShutdownState() == types.ShutdownNotStarted {
		window := p.slot.DownstreamReadWindow()
		if window <= 0 {
			return
		}
		size := min(len(p.inbound), window, ch.MaxFragmentSize())
		msg := types.NewMessage(types.DirRead, p.inbound[:size])
		p.inbound = p.inbound[size:]
		if err := p.slot.SendMessage(msg, types.DirRead); err != nil {
			return
		}
	}
	if len(p.inbound) == 0 && p.peerClosed && !p.reported {
		p.reported = true
		ch.Shutdown(types.ErrSocketClosed)
	}
}

func (p *pipeHandler) ProcessReadMessage(_ channelif.Slot, msg *types.Message) error {
	msg.Release()
	return nil
}

func (p *pipeHandler) ProcessWriteMessage(_ channelif.Slot, msg *types.Message) error {
	data := append([]byte(nil), msg.Bytes()...)
	msg.Complete(nil)
	msg.Release()
	if p.peer != nil {
		p.peer.deliver(data)
	}
	return nil
}

func (p *pipeHandler) IncrementReadWindow(channelif.Slot, int) error {
	p.pump()
	return nil
}

func (p *pipeHandler) Shutdown(slot channelif.Slot, dir types.Direction, err error, abort bool) error {
	if dir == types.DirWrite && p.peer != nil {
		p.peer.closeFromPeer()
	}
	return slot.OnHandlerShutdownComplete(dir, err, abort)
}

func (p *pipeHandler) InitialWindowSize() int { return 0 }
func (p *pipeHandler) MessageOverhead() int   { return 0 }
func (p *pipeHandler) Destroy()               {}

// ============================================================================
//                              tlsTester - 单端测试环境
// ============================================================================

// tlsTester 一端的 Channel、TLS Handler 与应用层 Handler
type tlsTester struct {
	t    *testing.T
	loop *eventloop.Loop
	ch   *channel.Channel
	pipe *pipeHandler
	app  *channel.ReadWriteHandler

	// levels 嵌套层数；每层协商成功后追加下一层，最后追加应用层
	levels int
	opts   *ConnectionOptions

	negotiated chan error
	shutdown   chan error

	mu       sync.Mutex
	handlers []*Handler
	received []byte
}

type testerOptions struct {
	backPressure bool
	appWindow    int
	autoIncrease bool
	levels       int
	loopOpts     []eventloop.Option
}

func newTLSTester(t *testing.T, opts *ConnectionOptions, to testerOptions) *tlsTester {
	t.Helper()

	loop := eventloop.New(to.loopOpts...)
	require.NoError(t, loop.Start())
	t.Cleanup(func() { _ = loop.Stop() })

	if to.levels <= 0 {
		to.levels = 1
	}
	if to.appWindow <= 0 {
		to.appWindow = 64 * 1024
	}

	tt := &tlsTester{
		t:          t,
		loop:       loop,
		pipe:       &pipeHandler{},
		levels:     to.levels,
		negotiated: make(chan error, 8),
		shutdown:   make(chan error, 2),
	}
	tt.app = channel.NewReadWriteHandler(channel.ReadWriteOptions{
		InitialWindow:       to.appWindow,
		AutoIncrementWindow: to.autoIncrease,
		OnRead: func(_ *channel.ReadWriteHandler, data []byte) {
			tt.mu.Lock()
			tt.received = append(tt.received, data...)
			tt.mu.Unlock()
		},
	})

	if opts != nil {
		cp := *opts
		cp.OnNegotiationResult = tt.onNegotiationResult
		tt.opts = &cp
	}

	setup := make(chan error, 1)
	ch, err := channel.New(channel.Options{
		Loop:                   loop,
		EnableReadBackPressure: to.backPressure,
		OnSetupCompleted:       func(_ *channel.Channel, err error) { setup <- err },
		OnShutdownCompleted:    func(_ *channel.Channel, err error) { tt.shutdown <- err },
	})
	require.NoError(t, err)
	tt.ch = ch
	require.NoError(t, waitErr(t, setup))

	tt.onLoop(func() {
		s, err := ch.NewSlot()
		require.NoError(t, err)
		require.NoError(t, s.SetHandler(tt.pipe))
		tt.pipe.slot = s
	})
	return tt
}

// connect 把两端的传输连起来
func connect(a, b *tlsTester) {
	a.pipe.peer = b.pipe
	b.pipe.peer = a.pipe
}

// install 在传输右侧安装第一层 TLS
func (tt *tlsTester) install() {
	tt.onLoop(func() {
		h, err := AppendTLSHandler(tt.pipe.slot, tt.opts)
		require.NoError(tt.t, err)
		tt.addHandler(h)
	})
}

func (tt *tlsTester) addHandler(h *Handler) {
	tt.mu.Lock()
	tt.handlers = append(tt.handlers, h)
	tt.mu.Unlock()
}

func (tt *tlsTester) handler(i int) *Handler {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return tt.handlers[i]
}

func (tt *tlsTester) onNegotiationResult(h *Handler, slot channelif.Slot, err error) {
	if err == nil {
		tt.mu.Lock()
		level := len(tt.handlers)
		tt.mu.Unlock()

		if level < tt.levels {
			next, aerr := AppendTLSHandler(slot, tt.opts)
			if aerr != nil {
				err = aerr
			} else {
				tt.addHandler(next)
			}
		} else {
			s, serr := slot.Channel().NewSlot()
			if serr == nil {
				serr = slot.InsertEnd(s)
			}
			if serr == nil {
				serr = tt.app.Attach(s)
			}
			err = serr
		}
	}
	tt.negotiated <- err
}

// waitNegotiated 等待 n 次协商结果
func (tt *tlsTester) waitNegotiated(n int) error {
	tt.t.Helper()
	for i := 0; i < n; i++ {
		if err := waitErr(tt.t, tt.negotiated); err != nil {
			return err
		}
	}
	return nil
}

func (tt *tlsTester) waitShutdown() error {
	tt.t.Helper()
	return waitErr(tt.t, tt.shutdown)
}

func (tt *tlsTester) onLoop(fn func()) {
	tt.t.Helper()
	done := make(chan struct{})
	tt.loop.ScheduleTaskNow(eventloopif.NewTask("test", func(types.TaskStatus) {
		defer close(done)
		fn()
	}))
	select {
	case <-done:
	case <-time.After(waitTimeout):
		tt.t.Fatal("循环任务超时")
	}
}

func (tt *tlsTester) Received() []byte {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return append([]byte(nil), tt.received...)
}

// waitReceived 等待累计收到 n 字节
func (tt *tlsTester) waitReceived(n int) []byte {
	tt.t.Helper()
	require.Eventually(tt.t, func() bool {
		return len(tt.Received()) >= n
	}, waitTimeout, time.Millisecond)
	return tt.Received()
}

// write 通过应用层 Handler 写出并等待完成
func (tt *tlsTester) write(data []byte) error {
	tt.t.Helper()
	done := make(chan error, 1)
	tt.app.Write(data, func(err error) { done <- err })
	return waitErr(tt.t, done)
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("等待结果超时")
		return nil
	}
}
