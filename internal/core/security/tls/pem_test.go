package tls

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-netio/pkg/types"
)

// TestSanitizePEM 去掉块外的注释与空白
func TestSanitizePEM(t *testing.T) {
	certPEM, _, err := GenerateSelfSigned([]string{testHost}, time.Hour)
	require.NoError(t, err)

	dirty := "# comment line\n\n   " + string(certPEM) + "\ntrailing garbage\n"
	clean, err := SanitizePEM([]byte(dirty))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(string(clean), "-----BEGIN CERTIFICATE-----"))
	assert.True(t, strings.HasSuffix(string(clean), "-----END CERTIFICATE-----\n"))
	assert.NotContains(t, string(clean), "garbage")
	assert.Equal(t, certPEM, clean)

	_, err = SanitizePEM([]byte("no pem here"))
	assert.ErrorIs(t, err, types.ErrTLSContextInvalid)
}

// TestSanitizePEM_MultipleBlocks 保留多个块及其顺序
func TestSanitizePEM_MultipleBlocks(t *testing.T) {
	a, _, err := GenerateSelfSigned([]string{"a.example"}, time.Hour)
	require.NoError(t, err)
	b, _, err := GenerateSelfSigned([]string{"b.example"}, time.Hour)
	require.NoError(t, err)

	clean, err := SanitizePEM(append(append(a, []byte("\n-- separator --\n")...), b...))
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte(nil), a...), b...), clean)

	pool, err := ParseCertPool(clean)
	require.NoError(t, err)
	assert.NotNil(t, pool)
}

// TestSanitizePEM_InlineBegin BEGIN 前有同一行的杂项或缩进
func TestSanitizePEM_InlineBegin(t *testing.T) {
	certPEM, _, err := GenerateSelfSigned([]string{testHost}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		input string
	}{
		{"leading spaces", "    " + string(certPEM)},
		{"same line garbage", "garbage before-the-block" + string(certPEM)},
		{"tab and crlf", "\t\r\n\t" + string(certPEM)},
		{"broken block first", "-----BEGIN CERTIFICATE-----\nnot base64!!\n" + string(certPEM)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clean, err := SanitizePEM([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, certPEM, clean)
		})
	}

	_, err = SanitizePEM([]byte("-----BEGIN without an end"))
	assert.ErrorIs(t, err, types.ErrTLSContextInvalid)
}

// TestParseCertificate 解析证书并填充 Leaf
func TestParseCertificate(t *testing.T) {
	certPEM, keyPEM, err := GenerateSelfSigned([]string{testHost, "127.0.0.1"}, time.Hour)
	require.NoError(t, err)

	cert, err := ParseCertificate(certPEM, keyPEM)
	require.NoError(t, err)
	require.NotNil(t, cert.Leaf)
	assert.Equal(t, []string{testHost}, cert.Leaf.DNSNames)
	require.Len(t, cert.Leaf.IPAddresses, 1)
	assert.Equal(t, "127.0.0.1", cert.Leaf.IPAddresses[0].String())
	assert.NoError(t, cert.Leaf.VerifyHostname(testHost))

	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, certPEM, 0o600))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o600))

	loaded, err := LoadCertificate(certFile, keyFile)
	require.NoError(t, err)
	assert.Equal(t, cert.Certificate, loaded.Certificate)

	_, err = LoadCertificate(filepath.Join(dir, "missing.pem"), keyFile)
	assert.ErrorIs(t, err, types.ErrTLSContextInvalid)

	_, err = LoadCertPool(filepath.Join(dir, "missing.pem"))
	assert.ErrorIs(t, err, types.ErrTLSContextInvalid)
}
