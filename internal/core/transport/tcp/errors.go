package tcp

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/dep2p/go-netio/pkg/types"
)

var (
	// ErrTransportClosed 传输已关闭
	ErrTransportClosed = errors.New("tcp: transport closed")
)

// classifyError 把套接字读写错误归入传输错误
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var typed *types.Error
	if errors.As(err, &typed) {
		return err
	}

	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return types.Wrap(types.ErrSocketTimeout, "%v", err)
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return types.Wrap(types.ErrSocketClosed, "%v", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.Wrap(types.ErrSocketTimeout, "%v", err)
	}
	return types.Wrap(types.ErrSocketClosed, "%v", err)
}

// classifyDialError 把拨号错误归入传输错误
func classifyDialError(err error) error {
	if err == nil {
		return nil
	}
	var typed *types.Error
	if errors.As(err, &typed) {
		return err
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return types.Wrap(types.ErrConnectionRefused, "%v", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.Wrap(types.ErrConnectTimeout, "%v", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.Wrap(types.ErrConnectTimeout, "%v", err)
	}
	if errors.Is(err, context.Canceled) {
		return types.Wrap(types.ErrChannelShutdown, "dial canceled: %v", err)
	}
	return classifyError(err)
}

// classifyAcceptError 监听器关闭后的 Accept 错误
func classifyAcceptError(err error) error {
	if err == nil {
		return nil
	}
	return types.Wrap(types.ErrSocketClosed, "accept: %v", err)
}
