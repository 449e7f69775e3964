package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"

	"github.com/dep2p/go-netio/pkg/types"
)

// DefaultCertificateValidity 自签名证书默认有效期
const DefaultCertificateValidity = 365 * 24 * time.Hour

// GenerateSelfSigned 生成自签名证书，返回 PEM 编码的证书与私钥
//
// hosts 中的 IP 写入 IPAddresses，其余写入 DNSNames。证书同时可作为
// 信任根使用，测试和本地部署可以直接把它放进对端的信任库。
func GenerateSelfSigned(hosts []string, validity time.Duration) (certPEM, keyPEM []byte, err error) {
	if validity <= 0 {
		validity = DefaultCertificateValidity
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("生成私钥失败: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, nil, fmt.Errorf("生成序列号失败: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"go-netio"},
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}
	if len(hosts) > 0 {
		template.Subject.CommonName = hosts[0]
	}

	// 创建自签名证书
	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("创建证书失败: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("编码私钥失败: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, nil
}

// ParseCertificate 从 PEM 解析证书链和私钥，并填充 Leaf
func ParseCertificate(certPEM, keyPEM []byte) (*tls.Certificate, error) {
	certPEM, err := SanitizePEM(certPEM)
	if err != nil {
		return nil, err
	}
	keyPEM, err = SanitizePEM(keyPEM)
	if err != nil {
		return nil, err
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, types.Wrap(types.ErrTLSContextInvalid, "parse key pair: %v", err)
	}

	// 解析 Leaf 方便查看证书信息
	if len(cert.Certificate) > 0 && cert.Leaf == nil {
		leaf, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return nil, types.Wrap(types.ErrTLSContextInvalid, "parse leaf: %v", err)
		}
		cert.Leaf = leaf
	}
	return &cert, nil
}

// LoadCertificate 从文件加载证书和私钥
func LoadCertificate(certFile, keyFile string) (*tls.Certificate, error) {
	// 读取证书文件
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return nil, types.Wrap(types.ErrTLSContextInvalid, "read cert file: %v", err)
	}

	// 读取私钥文件
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, types.Wrap(types.ErrTLSContextInvalid, "read key file: %v", err)
	}

	return ParseCertificate(certPEM, keyPEM)
}
