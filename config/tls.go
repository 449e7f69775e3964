package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"time"
)

// TLSConfig TLS 协商配置
type TLSConfig struct {
	// MinVersion 最小 TLS 版本
	// 可选值: "1.2", "1.3"
	MinVersion string `json:"min_version"`

	// VerifyPeer 是否校验对端证书
	VerifyPeer bool `json:"verify_peer"`

	// ALPN 应用层协议列表，按优先级排列
	ALPN []string `json:"alpn,omitempty"`

	// CAFile 信任根证书文件（PEM），为空时使用系统根证书
	CAFile string `json:"ca_file,omitempty"`

	// CertFile / KeyFile 本端证书与私钥（PEM），服务端必填
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`

	// ServerName 客户端 SNI 与证书校验使用的名称
	ServerName string `json:"server_name,omitempty"`

	// NegotiationTimeout 协商超时，0 表示不限
	NegotiationTimeout Duration `json:"negotiation_timeout"`

	// Levels TLS 嵌套层数
	Levels int `json:"levels"`
}

// DefaultTLSConfig 返回默认 TLS 配置
func DefaultTLSConfig() TLSConfig {
	return TLSConfig{
		MinVersion:         "1.2",                      // 最小版本：TLS 1.2
		VerifyPeer:         true,                       // 默认校验对端
		NegotiationTimeout: Duration(10 * time.Second), // 协商超时：10 秒
		Levels:             1,                          // 单层 TLS
	}
}

// Validate 验证 TLS 配置
func (c TLSConfig) Validate() error {
	if _, err := c.TLSMinVersion(); err != nil {
		return err
	}
	if c.NegotiationTimeout < 0 {
		return errors.New("negotiation_timeout must be non-negative")
	}
	if c.Levels < 0 {
		return errors.New("levels must be non-negative")
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.New("cert_file and key_file must be set together")
	}
	return nil
}

// TLSMinVersion 返回 crypto/tls 版本常量
func (c TLSConfig) TLSMinVersion() (uint16, error) {
	switch c.MinVersion {
	case "", "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported min_version %q", c.MinVersion)
	}
}
