package types

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesCode(t *testing.T) {
	wrapped := Wrap(ErrTLSCertificate, "peer %s", "example.com")

	assert.ErrorIs(t, wrapped, ErrTLSCertificate)
	assert.NotErrorIs(t, wrapped, ErrTLSProtocol)
	assert.Contains(t, wrapped.Error(), "peer example.com")

	// 二次包装仍可匹配
	outer := fmt.Errorf("connect: %w", wrapped)
	assert.ErrorIs(t, outer, ErrTLSCertificate)
	assert.Equal(t, CodeTLSCertificate, CodeOf(outer))
}

func TestClassOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ClassNone},
		{"protocol", ErrReadWouldExceedWindow, ClassProtocol},
		{"transport", ErrSocketClosed, ClassTransport},
		{"tls", Wrap(ErrTLSNegotiationTimeout, "after %d ms", 10), ClassTLS},
		{"resource", ErrResourceExhausted, ClassResource},
		{"canceled", ErrTaskCanceled, ClassCanceled},
		{"context", context.Canceled, ClassCanceled},
		{"eof", io.EOF, ClassTransport},
		{"net closed", net.ErrClosed, ClassTransport},
		{"unknown", errors.New("boom"), ClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassOf(tt.err))
		})
	}
}

func TestCodeOfAndHelpers(t *testing.T) {
	assert.Equal(t, CodeSuccess, CodeOf(nil))
	assert.Equal(t, ErrorCode(-1), CodeOf(errors.New("x")))

	assert.True(t, IsTLSError(ErrTLSCipher))
	assert.False(t, IsTLSError(ErrSocketTimeout))
	assert.True(t, IsTransportError(ErrConnectionRefused))
	assert.False(t, IsTransportError(nil))

	assert.Equal(t, "tls", ClassTLS.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}
