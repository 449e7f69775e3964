package tls

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/dep2p/go-netio/pkg/types"
)

var pemBegin = []byte("-----BEGIN")

// SanitizePEM 清理 PEM 数据
//
// 只保留完整的 BEGIN/END 块，丢弃块之间和前后的注释、空白等杂项。
// BEGIN 标记可以出现在行内任意位置，之前的内容一并丢弃；无法解析的块跳过。
// 一个块都没有时返回 ErrTLSContextInvalid。
func SanitizePEM(data []byte) ([]byte, error) {
	var out bytes.Buffer
	rest := data
	for {
		i := bytes.Index(rest, pemBegin)
		if i < 0 {
			break
		}
		block, after := pem.Decode(rest[i:])
		if block == nil {
			rest = rest[i+len(pemBegin):]
			continue
		}
		rest = after

		// 去掉块头部的附加字段
		clean := &pem.Block{Type: block.Type, Bytes: block.Bytes}
		if err := pem.Encode(&out, clean); err != nil {
			return nil, types.Wrap(types.ErrTLSContextInvalid, "encode pem: %v", err)
		}
	}
	if out.Len() == 0 {
		return nil, types.Wrap(types.ErrTLSContextInvalid, "no pem block found")
	}
	return out.Bytes(), nil
}

// ParseCertPool 从 PEM 数据构建信任库
func ParseCertPool(pemData []byte) (*x509.CertPool, error) {
	clean, err := SanitizePEM(pemData)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(clean) {
		return nil, types.Wrap(types.ErrTLSContextInvalid, "no certificate in trust store")
	}
	return pool, nil
}

// LoadCertPool 从文件加载信任库
func LoadCertPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.Wrap(types.ErrTLSContextInvalid, "read ca file: %v", err)
	}
	return ParseCertPool(data)
}
