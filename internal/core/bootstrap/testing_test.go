package bootstrap

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-netio/config"
	"github.com/dep2p/go-netio/internal/core/channel"
	"github.com/dep2p/go-netio/internal/core/eventloop"
	"github.com/dep2p/go-netio/internal/core/security/tls"
	channelif "github.com/dep2p/go-netio/pkg/interfaces/channel"
	"github.com/dep2p/go-netio/pkg/types"
)

const (
	waitTimeout = 10 * time.Second
	testHost    = "localhost"
	testALPN    = "netio/1"
)

// newTestGroup 启动两个循环的事件循环组
func newTestGroup(t *testing.T) *eventloop.Group {
	t.Helper()
	g := eventloop.NewGroup(2)
	require.NoError(t, g.Start())
	t.Cleanup(func() { _ = g.Stop() })
	return g
}

func newTestOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		Group:   newTestGroup(t),
		Channel: config.DefaultChannelConfig(),
		Socket:  config.DefaultSocketConfig(),
	}
}

// testCerts 自签名证书，同时用作服务端证书与客户端信任库
type testCerts struct {
	certPEM []byte
	keyPEM  []byte
}

func newTestCerts(t *testing.T) testCerts {
	t.Helper()
	certPEM, keyPEM, err := tls.GenerateSelfSigned([]string{testHost}, time.Hour)
	require.NoError(t, err)
	return testCerts{certPEM: certPEM, keyPEM: keyPEM}
}

func (c testCerts) serverOptions(t *testing.T) *tls.ConnectionOptions {
	t.Helper()
	ctx, err := tls.NewContext(tls.ContextOptions{
		Role:    types.RoleServer,
		CertPEM: c.certPEM,
		KeyPEM:  c.keyPEM,
		ALPN:    []string{testALPN},
	})
	require.NoError(t, err)
	t.Cleanup(ctx.Release)
	return &tls.ConnectionOptions{Context: ctx, Timeout: 5 * time.Second}
}

func (c testCerts) clientOptions(t *testing.T) *tls.ConnectionOptions {
	t.Helper()
	ctx, err := tls.NewContext(tls.ContextOptions{
		Role:       types.RoleClient,
		VerifyPeer: true,
		CAPEM:      c.certPEM,
		ALPN:       []string{testALPN},
	})
	require.NoError(t, err)
	t.Cleanup(ctx.Release)
	return &tls.ConnectionOptions{Context: ctx, ServerName: testHost, Timeout: 5 * time.Second}
}

// echoHandler 原样回写收到的数据
func echoHandler(*channel.Channel) channelif.Handler {
	return channel.NewReadWriteHandler(channel.ReadWriteOptions{
		InitialWindow:       64 * 1024,
		AutoIncrementWindow: true,
		OnRead: func(h *channel.ReadWriteHandler, data []byte) {
			h.Write(data, nil)
		},
	})
}

// endpoint 记录一端的回调与收到的数据
type endpoint struct {
	t *testing.T

	setup    chan error
	shutdown chan error

	mu       sync.Mutex
	ch       *channel.Channel
	app      *channel.ReadWriteHandler
	received []byte
}

func newEndpoint(t *testing.T) *endpoint {
	return &endpoint{
		t:        t,
		setup:    make(chan error, 4),
		shutdown: make(chan error, 4),
	}
}

func (e *endpoint) handler(*channel.Channel) channelif.Handler {
	app := channel.NewReadWriteHandler(channel.ReadWriteOptions{
		InitialWindow:       64 * 1024,
		AutoIncrementWindow: true,
		OnRead: func(_ *channel.ReadWriteHandler, data []byte) {
			e.mu.Lock()
			e.received = append(e.received, data...)
			e.mu.Unlock()
		},
	})
	e.mu.Lock()
	e.app = app
	e.mu.Unlock()
	return app
}

func (e *endpoint) onSetup(ch *channel.Channel, err error) {
	e.mu.Lock()
	e.ch = ch
	e.mu.Unlock()
	e.setup <- err
}

func (e *endpoint) onShutdown(_ *channel.Channel, err error) {
	e.shutdown <- err
}

func (e *endpoint) channel() *channel.Channel {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ch
}

func (e *endpoint) App() *channel.ReadWriteHandler {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.app
}

func (e *endpoint) Received() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]byte(nil), e.received...)
}

func (e *endpoint) waitReceived(n int) []byte {
	e.t.Helper()
	require.Eventually(e.t, func() bool {
		return len(e.Received()) >= n
	}, waitTimeout, time.Millisecond)
	return e.Received()
}

func (e *endpoint) waitSetup() error {
	e.t.Helper()
	return waitErr(e.t, e.setup)
}

func (e *endpoint) waitShutdown() error {
	e.t.Helper()
	return waitErr(e.t, e.shutdown)
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
