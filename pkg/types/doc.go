// Package types 定义 go-netio 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他 go-netio 内部包。
//
// # 文件组织
//
//   - enums.go   - Direction, NegotiationState, ShutdownState, TLSRole, TaskStatus
//   - errors.go  - 错误码、错误类别与分类工具
//   - message.go - Message, MessagePool
//
// # 错误类别
//
//	┌────────────┬──────────────────────────────────────────────┐
//	│ protocol   │ 窗口违规、拓扑非法，对 Channel 致命         │
//	│ transport  │ 关闭、超时，通过回调上报                     │
//	│ tls        │ 握手、证书、协商超时                         │
//	│ resource   │ 资源耗尽                                     │
//	│ canceled   │ 任务取消                                     │
//	└────────────┴──────────────────────────────────────────────┘
//
// 使用 errors.Is 按错误码匹配，使用 ClassOf 取得类别：
//
//	if types.ClassOf(err) == types.ClassTLS {
//	    // 换一套 TLS 配置重试
//	}
package types
