package tls

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-netio/internal/core/eventloop"
	channelif "github.com/dep2p/go-netio/pkg/interfaces/channel"
	"github.com/dep2p/go-netio/pkg/types"
)

// newPair 创建已连接的一对客户端/服务端
func newPair(t *testing.T, client, server testerOptions) (*tlsTester, *tlsTester, *Context, *Context) {
	t.Helper()
	certs := newTestCerts(t)
	sctx := certs.serverContext(t)
	cctx := certs.clientContext(t)
	t.Cleanup(func() {
		sctx.Release()
		cctx.Release()
	})

	s := newTLSTester(t, &ConnectionOptions{Context: sctx, Timeout: 5 * time.Second}, server)
	c := newTLSTester(t, &ConnectionOptions{Context: cctx, ServerName: testHost, Timeout: 5 * time.Second}, client)
	connect(c, s)
	s.install()
	c.install()
	return c, s, cctx, sctx
}

// TestTLS_Echo 双向收发并检查协商结果
func TestTLS_Echo(t *testing.T) {
	c, s, _, _ := newPair(t, testerOptions{autoIncrease: true}, testerOptions{autoIncrease: true})

	require.NoError(t, s.waitNegotiated(1))
	require.NoError(t, c.waitNegotiated(1))

	ch, sh := c.handler(0), s.handler(0)
	assert.Equal(t, types.NegotiationNegotiated, ch.State())
	assert.Equal(t, types.NegotiationNegotiated, sh.State())
	assert.Equal(t, testALPN, ch.Protocol())
	assert.Equal(t, testALPN, sh.Protocol())
	assert.Equal(t, testHost, ch.ServerName())
	assert.Equal(t, testHost, sh.ServerName())
	assert.Equal(t, types.RoleClient, ch.Role())
	assert.Equal(t, types.RoleServer, sh.Role())

	clientMsg := []byte("I'm a big teapot")
	serverMsg := []byte("I'm a little teapot.")

	require.NoError(t, c.write(clientMsg))
	assert.Equal(t, clientMsg, s.waitReceived(len(clientMsg)))

	require.NoError(t, s.write(serverMsg))
	assert.Equal(t, serverMsg, c.waitReceived(len(serverMsg)))

	stats := ch.Statistics()
	assert.Equal(t, channelif.KindTLS, stats.Kind)
	assert.Equal(t, types.NegotiationNegotiated, stats.NegotiationState)
	assert.NotZero(t, stats.BytesRead)
	assert.NotZero(t, stats.BytesWritten)
	assert.False(t, stats.HandshakeStart.IsZero())
	assert.False(t, stats.HandshakeEnd.Before(stats.HandshakeStart))

	c.ch.Shutdown(nil)
	assert.NoError(t, c.waitShutdown())
	assert.ErrorIs(t, s.waitShutdown(), types.ErrSocketClosed)
	assert.True(t, c.app.Destroyed())
}

// TestTLS_BackPressure 明文按下游窗口投递，归还窗口后继续投递
func TestTLS_BackPressure(t *testing.T) {
	msg := []byte("I'm a big teapot")
	c, s, _, _ := newPair(t,
		testerOptions{backPressure: true, appWindow: len(msg) / 2},
		testerOptions{},
	)
	require.NoError(t, s.waitNegotiated(1))
	require.NoError(t, c.waitNegotiated(1))

	require.NoError(t, s.write(msg))
	assert.Equal(t, msg[:len(msg)/2], c.waitReceived(len(msg)/2))
	assert.Equal(t, 1, c.app.ReadInvocations())

	c.app.IncrementWindow(100)
	assert.Equal(t, msg, c.waitReceived(len(msg)))
	assert.Equal(t, 2, c.app.ReadInvocations())
}

// TestTLS_ShutdownWithCache 读方向关闭等待缓存的明文投递完
func TestTLS_ShutdownWithCache(t *testing.T) {
	msg := []byte("I'm a big teapot")

	t.Run("WindowUpdateAfterShutdown", func(t *testing.T) {
		c, s, _, _ := newPair(t,
			testerOptions{backPressure: true, appWindow: len(msg) / 2},
			testerOptions{},
		)
		require.NoError(t, s.waitNegotiated(1))
		require.NoError(t, c.waitNegotiated(1))

		require.NoError(t, s.write(msg))
		c.waitReceived(len(msg) / 2)

		// 服务端关闭后客户端收到 close_notify 和连接关闭
		s.ch.Shutdown(nil)
		require.NoError(t, s.waitShutdown())
		require.Eventually(t, func() bool {
			return c.ch.ShutdownState() != types.ShutdownNotStarted
		}, waitTimeout, time.Millisecond)

		// 缓存未清空前关闭不会完成
		select {
		case err := <-c.shutdown:
			t.Fatalf("关闭过早完成: %v", err)
		case <-time.After(50 * time.Millisecond):
		}

		c.app.IncrementWindow(100)
		assert.ErrorIs(t, c.waitShutdown(), types.ErrSocketClosed)
		assert.Equal(t, msg, c.Received())
		assert.Equal(t, 2, c.app.ReadInvocations())
	})

	t.Run("WindowUpdateBeforeShutdown", func(t *testing.T) {
		c, s, _, _ := newPair(t,
			testerOptions{backPressure: true, appWindow: len(msg) / 2},
			testerOptions{},
		)
		require.NoError(t, s.waitNegotiated(1))
		require.NoError(t, c.waitNegotiated(1))

		require.NoError(t, s.write(msg))
		c.waitReceived(len(msg) / 2)

		c.onLoop(func() {
			c.app.IncrementWindow(100)
			c.ch.Shutdown(nil)
		})
		assert.NoError(t, c.waitShutdown())
		assert.Equal(t, msg, c.Received())
		assert.Equal(t, 2, c.app.ReadInvocations())
	})
}

// TestTLS_NegotiationTimeout 对端不响应时协商超时
func TestTLS_NegotiationTimeout(t *testing.T) {
	certs := newTestCerts(t)
	cctx := certs.clientContext(t)
	defer cctx.Release()

	mock := clock.NewMock()
	c := newTLSTester(t,
		&ConnectionOptions{Context: cctx, ServerName: testHost, Timeout: 3 * time.Second},
		testerOptions{loopOpts: []eventloop.Option{eventloop.WithClock(mock)}},
	)
	c.install()
	assert.Equal(t, types.NegotiationNegotiating, c.handler(0).State())

	mock.Add(3 * time.Second)
	c.onLoop(func() {})

	err := c.waitNegotiated(1)
	assert.ErrorIs(t, err, types.ErrTLSNegotiationTimeout)
	assert.True(t, types.IsTLSError(err))
	assert.ErrorIs(t, c.waitShutdown(), types.ErrTLSNegotiationTimeout)
	assert.Equal(t, types.NegotiationFailed, c.handler(0).State())

	// 回调只触发一次
	select {
	case err := <-c.negotiated:
		t.Fatalf("协商回调重复触发: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestTLS_ShutdownDuringNegotiation 协商中关闭以 ErrSocketClosed 结束协商
func TestTLS_ShutdownDuringNegotiation(t *testing.T) {
	certs := newTestCerts(t)
	cctx := certs.clientContext(t)
	defer cctx.Release()

	c := newTLSTester(t, &ConnectionOptions{Context: cctx, ServerName: testHost}, testerOptions{})
	c.install()

	c.ch.Shutdown(nil)
	assert.ErrorIs(t, c.waitNegotiated(1), types.ErrSocketClosed)
	assert.NoError(t, c.waitShutdown())
	assert.Equal(t, types.NegotiationFailed, c.handler(0).State())
}

// TestTLS_CertificateRejected 客户端不信任服务端证书
func TestTLS_CertificateRejected(t *testing.T) {
	certs := newTestCerts(t)
	other := newTestCerts(t)

	sctx := certs.serverContext(t)
	defer sctx.Release()
	// 信任库中是另一张证书
	cctx := other.clientContext(t)
	defer cctx.Release()

	s := newTLSTester(t, &ConnectionOptions{Context: sctx}, testerOptions{})
	c := newTLSTester(t, &ConnectionOptions{Context: cctx, ServerName: testHost}, testerOptions{})
	connect(c, s)
	s.install()
	c.install()

	err := c.waitNegotiated(1)
	assert.ErrorIs(t, err, types.ErrTLSCertificate)
	assert.ErrorIs(t, c.waitShutdown(), types.ErrTLSCertificate)

	assert.Error(t, s.waitNegotiated(1))
	assert.Error(t, s.waitShutdown())
}

// TestTLS_MultiHop 两层 TLS 嵌套
func TestTLS_MultiHop(t *testing.T) {
	c, s, _, _ := newPair(t,
		testerOptions{levels: 2, autoIncrease: true},
		testerOptions{levels: 2, autoIncrease: true},
	)

	require.NoError(t, s.waitNegotiated(2))
	require.NoError(t, c.waitNegotiated(2))

	for i := 0; i < 2; i++ {
		assert.Equal(t, types.NegotiationNegotiated, c.handler(i).State())
		assert.Equal(t, types.NegotiationNegotiated, s.handler(i).State())
	}
	assert.Equal(t, 4, c.ch.SlotCount())

	msg := []byte("I'm a big teapot")
	require.NoError(t, c.write(msg))
	assert.Equal(t, msg, s.waitReceived(len(msg)))

	reply := []byte("I'm a little teapot.")
	require.NoError(t, s.write(reply))
	assert.Equal(t, reply, c.waitReceived(len(reply)))

	// 外层密文比内层多
	assert.Greater(t, c.handler(0).Statistics().BytesWritten, c.handler(1).Statistics().BytesWritten)
}

// TestTLS_LargeWrite 超过一个分片的数据按序到达
func TestTLS_LargeWrite(t *testing.T) {
	c, s, _, _ := newPair(t,
		testerOptions{autoIncrease: true},
		testerOptions{backPressure: true, appWindow: 4096, autoIncrease: true},
	)
	require.NoError(t, s.waitNegotiated(1))
	require.NoError(t, c.waitNegotiated(1))

	data := make([]byte, 100*1024)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, c.write(data))
	assert.Equal(t, data, s.waitReceived(len(data)))
}

// TestTLS_ContextReleasedAfterShutdown Handler 销毁后释放上下文引用
func TestTLS_ContextReleasedAfterShutdown(t *testing.T) {
	certs := newTestCerts(t)
	cctx := certs.clientContext(t)

	c := newTLSTester(t, &ConnectionOptions{Context: cctx, ServerName: testHost}, testerOptions{})
	c.install()

	// 调用方释放自己的引用后，Handler 仍持有一个
	cctx.Release()
	assert.True(t, cctx.Valid())

	c.ch.Shutdown(nil)
	require.NoError(t, c.waitShutdown())
	assert.False(t, cctx.Valid())
}
