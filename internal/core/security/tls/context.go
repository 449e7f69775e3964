package tls

import (
	"crypto/tls"
	"crypto/x509"
	"sync/atomic"
	"time"

	"github.com/dep2p/go-netio/config"
	channelif "github.com/dep2p/go-netio/pkg/interfaces/channel"
	"github.com/dep2p/go-netio/pkg/types"
)

// ============================================================================
//                              ContextOptions
// ============================================================================

// ContextOptions TLS 上下文选项
type ContextOptions struct {
	// Role 握手角色
	Role types.TLSRole

	// MinVersion 最小版本，0 表示 TLS 1.2
	MinVersion uint16

	// VerifyPeer 是否校验对端证书
	//
	// 客户端关闭后不校验服务端证书；服务端仅在同时提供信任库时要求并校验客户端证书。
	VerifyPeer bool

	// ALPN 默认应用层协议列表，可被连接选项覆盖
	ALPN []string

	// CAFile / CAPEM 信任库覆盖，两者都为空时使用系统根证书
	CAFile string
	CAPEM  []byte

	// CertFile/KeyFile、CertPEM/KeyPEM 或 Certificate 三选一，服务端必填
	CertFile    string
	KeyFile     string
	CertPEM     []byte
	KeyPEM      []byte
	Certificate *tls.Certificate
}

// OptionsFromConfig 从配置构建上下文选项
func OptionsFromConfig(cfg config.TLSConfig, role types.TLSRole) (ContextOptions, error) {
	version, err := cfg.TLSMinVersion()
	if err != nil {
		return ContextOptions{}, types.Wrap(types.ErrTLSContextInvalid, "%v", err)
	}
	return ContextOptions{
		Role:       role,
		MinVersion: version,
		VerifyPeer: cfg.VerifyPeer,
		ALPN:       append([]string(nil), cfg.ALPN...),
		CAFile:     cfg.CAFile,
		CertFile:   cfg.CertFile,
		KeyFile:    cfg.KeyFile,
	}, nil
}

// ============================================================================
//                              Context
// ============================================================================

// Context 可在多个连接间共享的 TLS 上下文
//
// 引用计数：NewContext 返回时持有一个引用，Acquire 增加、Release 减少。
// 计数归零后上下文失效，继续创建 Handler 返回 ErrTLSContextInvalid；
// 之后的 Release 是空操作。nil 上下文的方法都是空操作。
type Context struct {
	role       types.TLSRole
	base       *tls.Config
	verifyPeer bool

	refs     atomic.Int32
	released atomic.Bool
}

// NewContext 创建 TLS 上下文
func NewContext(opts ContextOptions) (*Context, error) {
	minVersion := opts.MinVersion
	if minVersion == 0 {
		minVersion = tls.VersionTLS12
	}

	base := &tls.Config{
		MinVersion: minVersion,
		NextProtos: append([]string(nil), opts.ALPN...),
	}

	roots, err := loadTrustStore(opts)
	if err != nil {
		return nil, err
	}

	cert, err := loadIdentity(opts)
	if err != nil {
		return nil, err
	}
	if cert != nil {
		base.Certificates = []tls.Certificate{*cert}
	}

	switch opts.Role {
	case types.RoleServer:
		if cert == nil {
			return nil, types.Wrap(types.ErrTLSContextInvalid, "server context requires a certificate")
		}
		if opts.VerifyPeer && roots != nil {
			base.ClientCAs = roots
			base.ClientAuth = tls.RequireAndVerifyClientCert
		}
	default:
		base.RootCAs = roots
		base.InsecureSkipVerify = !opts.VerifyPeer
	}

	c := &Context{role: opts.Role, base: base, verifyPeer: opts.VerifyPeer}
	c.refs.Store(1)

	logger.Debug("创建 TLS 上下文", "role", opts.Role, "verifyPeer", opts.VerifyPeer, "alpn", opts.ALPN)
	return c, nil
}

func loadTrustStore(opts ContextOptions) (*x509.CertPool, error) {
	switch {
	case len(opts.CAPEM) > 0:
		return ParseCertPool(opts.CAPEM)
	case opts.CAFile != "":
		return LoadCertPool(opts.CAFile)
	default:
		return nil, nil
	}
}

func loadIdentity(opts ContextOptions) (*tls.Certificate, error) {
	switch {
	case opts.Certificate != nil:
		return opts.Certificate, nil
	case len(opts.CertPEM) > 0 || len(opts.KeyPEM) > 0:
		return ParseCertificate(opts.CertPEM, opts.KeyPEM)
	case opts.CertFile != "" || opts.KeyFile != "":
		return LoadCertificate(opts.CertFile, opts.KeyFile)
	default:
		return nil, nil
	}
}

// Role 握手角色
func (c *Context) Role() types.TLSRole {
	if c == nil {
		return types.RoleClient
	}
	return c.role
}

// Valid 上下文是否仍可使用
func (c *Context) Valid() bool {
	return c != nil && !c.released.Load()
}

// Acquire 增加一个引用，已失效时返回 nil
func (c *Context) Acquire() *Context {
	if c == nil {
		return nil
	}
	for {
		n := c.refs.Load()
		if n <= 0 {
			return nil
		}
		if c.refs.CompareAndSwap(n, n+1) {
			return c
		}
	}
}

// Release 释放一个引用
func (c *Context) Release() {
	if c == nil {
		return
	}
	for {
		n := c.refs.Load()
		if n <= 0 {
			return
		}
		if c.refs.CompareAndSwap(n, n-1) {
			if n == 1 {
				c.released.Store(true)
				logger.Debug("TLS 上下文已释放", "role", c.role)
			}
			return
		}
	}
}

// config 为单个连接生成 crypto/tls 配置
func (c *Context) config(serverName string, alpn []string) *tls.Config {
	cfg := c.base.Clone()
	if len(alpn) > 0 {
		cfg.NextProtos = append([]string(nil), alpn...)
	}
	if c.role == types.RoleClient {
		cfg.ServerName = serverName
	}
	return cfg
}

// ============================================================================
//                              ConnectionOptions
// ============================================================================

// NegotiationResultFunc 协商结果回调，在循环上调用且恰好一次
type NegotiationResultFunc func(h *Handler, slot channelif.Slot, err error)

// ConnectionOptions 单个连接的 TLS 选项
type ConnectionOptions struct {
	// Context 共享的 TLS 上下文
	Context *Context

	// ServerName 客户端 SNI 与证书校验名称
	ServerName string

	// ALPN 覆盖上下文的 ALPN 列表
	ALPN []string

	// Timeout 协商超时，0 表示不限
	Timeout time.Duration

	// OnNegotiationResult 协商结果回调
	OnNegotiationResult NegotiationResultFunc
}

// ConnectionOptionsFromConfig 从配置构建连接选项，Context 由调用方提供
func ConnectionOptionsFromConfig(ctx *Context, cfg config.TLSConfig) *ConnectionOptions {
	return &ConnectionOptions{
		Context:    ctx,
		ServerName: cfg.ServerName,
		ALPN:       append([]string(nil), cfg.ALPN...),
		Timeout:    cfg.NegotiationTimeout.Duration(),
	}
}

// Copy 深拷贝选项，并为副本持有上下文的一个引用
//
// 副本不再需要时调用 Close 释放引用。
func (o *ConnectionOptions) Copy() *ConnectionOptions {
	if o == nil {
		return nil
	}
	cp := *o
	cp.ALPN = append([]string(nil), o.ALPN...)
	cp.Context = o.Context.Acquire()
	return &cp
}

// Close 释放副本持有的上下文引用，可重复调用
func (o *ConnectionOptions) Close() {
	if o == nil || o.Context == nil {
		return
	}
	o.Context.Release()
	o.Context = nil
}
