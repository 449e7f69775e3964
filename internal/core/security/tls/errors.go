package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/dep2p/go-netio/pkg/types"
)

// TLS 告警码
const (
	alertHandshakeFailure     tls.AlertError = 40
	alertBadCertificate       tls.AlertError = 42
	alertUnsupportedCert      tls.AlertError = 43
	alertCertificateRevoked   tls.AlertError = 44
	alertCertificateExpired   tls.AlertError = 45
	alertCertificateUnknown   tls.AlertError = 46
	alertUnknownCA            tls.AlertError = 48
	alertInsufficientSecurity tls.AlertError = 71
	alertCertificateRequired  tls.AlertError = 116
)

// classifyError 把 crypto/tls 返回的错误归入 TLS 错误类别
//
// 已分类的错误原样返回；对端关闭归入 ErrSocketClosed。
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var typed *types.Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return types.Wrap(types.ErrSocketClosed, "%v", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.Wrap(types.ErrTLSNegotiationTimeout, "%v", err)
	}
	if errors.Is(err, context.Canceled) {
		return types.Wrap(types.ErrChannelShutdown, "%v", err)
	}

	if isCertificateError(err) {
		return types.Wrap(types.ErrTLSCertificate, "%v", err)
	}

	var alert tls.AlertError
	if errors.As(err, &alert) {
		switch alert {
		case alertBadCertificate, alertUnsupportedCert, alertCertificateRevoked,
			alertCertificateExpired, alertCertificateUnknown, alertUnknownCA, alertCertificateRequired:
			return types.Wrap(types.ErrTLSCertificate, "%v", err)
		case alertHandshakeFailure, alertInsufficientSecurity:
			return types.Wrap(types.ErrTLSCipher, "%v", err)
		default:
			return types.Wrap(types.ErrTLSProtocol, "%v", err)
		}
	}

	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return types.Wrap(types.ErrTLSProtocol, "%v", err)
	}

	// crypto/tls 的部分本地错误只有文本
	msg := err.Error()
	switch {
	case strings.Contains(msg, "no cipher suite"), strings.Contains(msg, "no mutual cipher"),
		strings.Contains(msg, "no ECDHE curve"), strings.Contains(msg, "insufficient security"),
		strings.Contains(msg, "handshake failure"):
		return types.Wrap(types.ErrTLSCipher, "%v", err)
	case strings.Contains(msg, "protocol version"), strings.Contains(msg, "unexpected message"),
		strings.Contains(msg, "no application protocol"), strings.Contains(msg, "record overflow"):
		return types.Wrap(types.ErrTLSProtocol, "%v", err)
	case strings.Contains(msg, "certificate"):
		return types.Wrap(types.ErrTLSCertificate, "%v", err)
	}
	return types.Wrap(types.ErrTLSNegotiationFailure, "%v", err)
}

func isCertificateError(err error) bool {
	var (
		verifyErr   *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		invalid     x509.CertificateInvalidError
		hostname    x509.HostnameError
		constraint  x509.ConstraintViolationError
	)
	return errors.As(err, &verifyErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &invalid) ||
		errors.As(err, &hostname) ||
		errors.As(err, &constraint)
}

// errOrClosed 协商被关闭打断时上报的错误
func errOrClosed(err error) error {
	if err == nil {
		return types.ErrSocketClosed
	}
	return err
}
