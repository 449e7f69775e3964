package tcp

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	channelif "github.com/dep2p/go-netio/pkg/interfaces/channel"
	"github.com/dep2p/go-netio/pkg/types"
)

// TestSocket_ReadWrite 双向收发
func TestSocket_ReadWrite(t *testing.T) {
	st := newSocketTester(t, testerOptions{autoIncrease: true})

	require.NoError(t, st.write([]byte("I'm a big teapot")))
	assert.Equal(t, []byte("I'm a big teapot"), st.peerRead(16))

	_, err := st.peer.Write([]byte("I'm a little teapot."))
	require.NoError(t, err)
	assert.Equal(t, []byte("I'm a little teapot."), st.waitReceived(20))

	stats := st.socket.Statistics()
	assert.Equal(t, channelif.KindSocket, stats.Kind)
	assert.Equal(t, uint64(20), stats.BytesRead)
	assert.Equal(t, uint64(16), stats.BytesWritten)

	st.socket.ResetStatistics()
	assert.Zero(t, st.socket.Statistics().BytesRead)

	st.ch.Shutdown(nil)
	assert.NoError(t, st.waitShutdown())
	assert.True(t, st.app.Destroyed())
}

// TestSocket_PeerClose 对端关闭时以 ErrSocketClosed 关闭 Channel
func TestSocket_PeerClose(t *testing.T) {
	st := newSocketTester(t, testerOptions{autoIncrease: true})

	_, err := st.peer.Write([]byte("bye"))
	require.NoError(t, err)
	require.NoError(t, st.peer.Close())

	err = st.waitShutdown()
	assert.ErrorIs(t, err, types.ErrSocketClosed)
	assert.Equal(t, types.ClassTransport, types.ClassOf(err))
	// 关闭前的数据已投递
	assert.Equal(t, []byte("bye"), st.Received())
}

// TestSocket_ShutdownFlushesWrites 写方向关闭前写完队列
func TestSocket_ShutdownFlushesWrites(t *testing.T) {
	st := newSocketTester(t, testerOptions{autoIncrease: true})

	data := make([]byte, 256*1024)
	for i := range data {
		data[i] = byte(i % 251)
	}

	completed := make(chan error, 1)
	st.app.Write(data, func(err error) { completed <- err })
	st.ch.Shutdown(nil)

	read := make(chan []byte, 1)
	go func() {
		_ = st.peer.SetReadDeadline(time.Now().Add(waitTimeout))
		got, _ := io.ReadAll(st.peer)
		read <- got
	}()

	assert.NoError(t, waitErr(t, completed))
	assert.NoError(t, st.waitShutdown())

	select {
	case got := <-read:
		assert.Equal(t, data, got)
	case <-time.After(waitTimeout):
		t.Fatal("对端读取超时")
	}
}

// TestSocket_BackPressure 按下游窗口投递，归还窗口后继续
func TestSocket_BackPressure(t *testing.T) {
	st := newSocketTester(t, testerOptions{backPressure: true, appWindow: 4})

	_, err := st.peer.Write([]byte("0123456789"))
	require.NoError(t, err)

	assert.Equal(t, []byte("0123"), st.waitReceived(4))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []byte("0123"), st.Received())

	st.app.IncrementWindow(100)
	assert.Equal(t, []byte("0123456789"), st.waitReceived(10))
}

// TestSocket_PeerCloseWithPendingData 缓存数据投递完之后才关闭
func TestSocket_PeerCloseWithPendingData(t *testing.T) {
	st := newSocketTester(t, testerOptions{backPressure: true, appWindow: 4})

	_, err := st.peer.Write([]byte("0123456789"))
	require.NoError(t, err)
	st.waitReceived(4)
	require.NoError(t, st.peer.Close())

	select {
	case err := <-st.shutdown:
		t.Fatalf("关闭过早完成: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	st.app.IncrementWindow(100)
	assert.ErrorIs(t, st.waitShutdown(), types.ErrSocketClosed)
	assert.Equal(t, []byte("0123456789"), st.Received())
}

// TestSocket_ReadTimeout 空闲超时以 ErrSocketTimeout 关闭
func TestSocket_ReadTimeout(t *testing.T) {
	st := newSocketTester(t, testerOptions{socket: SocketOptions{ReadTimeout: 50 * time.Millisecond}})

	err := st.waitShutdown()
	assert.ErrorIs(t, err, types.ErrSocketTimeout)
}

// TestSocket_Abort abort 时直接关闭连接，保留原始错误
func TestSocket_Abort(t *testing.T) {
	st := newSocketTester(t, testerOptions{})
	boom := errors.New("boom")

	st.ch.Abort(boom)
	assert.Equal(t, boom, st.waitShutdown())

	require.NoError(t, st.peer.SetReadDeadline(time.Now().Add(waitTimeout)))
	_, err := st.peer.Read(make([]byte, 1))
	assert.Error(t, err)
}

// TestSocket_InstallNotFirst 只能装在第一个 Slot
func TestSocket_InstallNotFirst(t *testing.T) {
	st := newSocketTester(t, testerOptions{})
	local, _ := newConnPair(t)
	other := NewSocketHandler(local, SocketOptions{})

	st.onLoop(func() {
		s, err := st.ch.NewSlot()
		require.NoError(t, err)
		require.NoError(t, st.ch.LastSlot().InsertEnd(s))
		err = other.Install(s)
		assert.ErrorIs(t, err, types.ErrInvalidSlotTopology)
	})
}

// TestSocket_WriteAfterShutdown 关闭后应用层写入以错误完成
func TestSocket_WriteAfterShutdown(t *testing.T) {
	st := newSocketTester(t, testerOptions{})
	st.ch.Shutdown(nil)
	require.NoError(t, st.waitShutdown())

	done := make(chan error, 1)
	st.app.Write([]byte("late"), func(err error) { done <- err })
	assert.Error(t, waitErr(t, done))
}
