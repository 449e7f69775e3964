package types

import (
	"sync"
	"sync/atomic"
)

// DefaultMaxFragmentSize 默认最大分片大小（一个 TLS 记录的明文上限）
const DefaultMaxFragmentSize = 16 * 1024

// ============================================================================
//                              Message - 管道消息
// ============================================================================

// Message 在 Slot 之间传递的消息
//
// 所有权随 SendMessage 转移：接收方处理完毕后必须调用 Release。
type Message struct {
	// Direction 消息方向
	Direction Direction

	// OnCompletion 写消息被传输层写出（或丢弃）后调用，可为空
	OnCompletion func(err error)

	data     []byte
	pool     *MessagePool
	released atomic.Bool
}

// NewMessage 创建不归属于任何池的消息，用于测试或一次性数据
func NewMessage(dir Direction, data []byte) *Message {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Message{Direction: dir, data: buf}
}

// Bytes 返回有效数据
func (m *Message) Bytes() []byte {
	return m.data
}

// Len 返回有效数据长度
func (m *Message) Len() int {
	return len(m.data)
}

// Capacity 返回底层缓冲区容量
func (m *Message) Capacity() int {
	return cap(m.data)
}

// Append 追加数据，返回实际写入的字节数（受容量限制）
func (m *Message) Append(p []byte) int {
	n := cap(m.data) - len(m.data)
	if n > len(p) {
		n = len(p)
	}
	m.data = append(m.data, p[:n]...)
	return n
}

// Complete 调用完成回调（只调用一次）
func (m *Message) Complete(err error) {
	if cb := m.OnCompletion; cb != nil {
		m.OnCompletion = nil
		cb(err)
	}
}

// Release 释放消息，归还缓冲区
//
// 重复释放为空操作。
func (m *Message) Release() {
	if m == nil || !m.released.CompareAndSwap(false, true) {
		return
	}
	if m.pool != nil {
		m.pool.put(m.data[:0])
	}
	m.data = nil
}

// ============================================================================
//                              MessagePool - 消息池
// ============================================================================

// MessagePool 按固定分片大小复用消息缓冲区
type MessagePool struct {
	fragmentSize int
	bufs         sync.Pool

	outstanding atomic.Int64
}

// NewMessagePool 创建消息池
func NewMessagePool(fragmentSize int) *MessagePool {
	if fragmentSize <= 0 {
		fragmentSize = DefaultMaxFragmentSize
	}
	p := &MessagePool{fragmentSize: fragmentSize}
	p.bufs.New = func() any {
		b := make([]byte, 0, fragmentSize)
		return &b
	}
	return p
}

// FragmentSize 返回分片大小
func (p *MessagePool) FragmentSize() int {
	return p.fragmentSize
}

// Acquire 获取容量为 min(sizeHint, 分片大小) 的空消息
func (p *MessagePool) Acquire(dir Direction, sizeHint int) (*Message, error) {
	if sizeHint <= 0 {
		return nil, Wrap(ErrResourceExhausted, "invalid message size %d", sizeHint)
	}
	var buf []byte
	if sizeHint < p.fragmentSize {
		buf = make([]byte, 0, sizeHint)
	} else {
		bp := p.bufs.Get().(*[]byte)
		buf = (*bp)[:0]
	}
	p.outstanding.Add(1)
	return &Message{Direction: dir, data: buf, pool: p}, nil
}

// Outstanding 返回尚未释放的消息数
func (p *MessagePool) Outstanding() int64 {
	return p.outstanding.Load()
}

func (p *MessagePool) put(buf []byte) {
	p.outstanding.Add(-1)
	// 小消息单独分配，不回收
	if cap(buf) < p.fragmentSize {
		return
	}
	full := buf[:0]
	p.bufs.Put(&full)
}
