package channel

import (
	"math"

	channelif "github.com/dep2p/go-netio/pkg/interfaces/channel"
	"github.com/dep2p/go-netio/pkg/types"
)

// noSlot 空邻居下标
const noSlot = -1

// unboundedWindow 关闭背压时的窗口
const unboundedWindow = math.MaxInt

// 确保实现接口
var _ channelif.Slot = (*slot)(nil)

// slot arena 中的一个位置
type slot struct {
	ch    *Channel
	index int

	left, right int
	linked      bool

	handler channelif.Handler

	// window 对左侧邻居开放的读窗口
	window int
	// windowBatch 尚未生效的窗口增量
	windowBatch int

	// 每个方向是否已通知/已完成关闭
	shutdownNotified [2]bool
	shutdownDone     [2]bool
}

// ============================================================================
//                              arena 访问
// ============================================================================

// NewSlot 创建 Slot
//
// Channel 还没有链头时，新 Slot 自动成为链头；否则返回未链接的 Slot，
// 需要通过 InsertRight/InsertLeft/InsertEnd 加入链中。
func (c *Channel) NewSlot() (channelif.Slot, error) {
	if c.ShutdownState() != types.ShutdownNotStarted {
		return nil, types.ErrChannelShutdown
	}

	s := &slot{
		ch:    c,
		index: len(c.slots),
		left:  noSlot,
		right: noSlot,
	}
	c.slots = append(c.slots, s)

	if c.first == noSlot {
		s.linked = true
		c.first = s.index
	}
	return s, nil
}

// FirstSlot 返回链头，链为空时返回 nil
func (c *Channel) FirstSlot() channelif.Slot {
	if s := c.at(c.first); s != nil {
		return s
	}
	return nil
}

// LastSlot 返回链尾，链为空时返回 nil
func (c *Channel) LastSlot() channelif.Slot {
	if s := c.last(); s != nil {
		return s
	}
	return nil
}

// SlotCount 返回链上的 Slot 数量
func (c *Channel) SlotCount() int {
	n := 0
	for s := c.at(c.first); s != nil; s = c.at(s.right) {
		n++
	}
	return n
}

func (c *Channel) at(idx int) *slot {
	if idx < 0 || idx >= len(c.slots) {
		return nil
	}
	return c.slots[idx]
}

func (c *Channel) last() *slot {
	s := c.at(c.first)
	if s == nil {
		return nil
	}
	for s.right != noSlot {
		s = c.slots[s.right]
	}
	return s
}

// own 校验 other 是本 Channel 上的 Slot
func (c *Channel) own(other channelif.Slot) (*slot, error) {
	s, ok := other.(*slot)
	if !ok || s == nil || s.ch != c || c.at(s.index) != s {
		return nil, types.Wrap(types.ErrInvalidSlotTopology, "slot does not belong to channel")
	}
	return s, nil
}

// ============================================================================
//                              Slot 基本访问
// ============================================================================

// Channel 返回所属 Channel
func (s *slot) Channel() channelif.Channel {
	return s.ch
}

// Handler 返回 Handler
func (s *slot) Handler() channelif.Handler {
	return s.handler
}

// Left 左侧邻居
func (s *slot) Left() channelif.Slot {
	if l := s.ch.at(s.left); l != nil {
		return l
	}
	return nil
}

// Right 右侧邻居
func (s *slot) Right() channelif.Slot {
	if r := s.ch.at(s.right); r != nil {
		return r
	}
	return nil
}

// SetHandler 设置 Handler，只能设置一次
func (s *slot) SetHandler(h channelif.Handler) error {
	if h == nil {
		return types.Wrap(types.ErrInvalidState, "nil handler")
	}
	if s.handler != nil {
		return types.ErrSlotHandlerAlreadySet
	}
	s.handler = h
	s.window = h.InitialWindowSize()
	if s.window < 0 {
		s.window = 0
	}
	s.windowBatch = 0
	return nil
}

// ============================================================================
//                              链操作
// ============================================================================

// InsertRight 把 toAdd 插入到当前 Slot 右侧
func (s *slot) InsertRight(toAdd channelif.Slot) error {
	n, err := s.linkable(toAdd)
	if err != nil {
		return err
	}

	n.left = s.index
	n.right = s.right
	if r := s.ch.at(s.right); r != nil {
		r.left = n.index
	}
	s.right = n.index
	n.linked = true
	return nil
}

// InsertLeft 把 toAdd 插入到当前 Slot 左侧
func (s *slot) InsertLeft(toAdd channelif.Slot) error {
	n, err := s.linkable(toAdd)
	if err != nil {
		return err
	}

	n.right = s.index
	n.left = s.left
	if l := s.ch.at(s.left); l != nil {
		l.right = n.index
	} else {
		s.ch.first = n.index
	}
	s.left = n.index
	n.linked = true
	return nil
}

// InsertEnd 把 toAdd 追加到链尾
func (s *slot) InsertEnd(toAdd channelif.Slot) error {
	if !s.linked {
		return types.Wrap(types.ErrInvalidSlotTopology, "slot is not linked")
	}
	return s.ch.last().InsertRight(toAdd)
}

// Remove 从链上摘除当前 Slot 并销毁其 Handler
func (s *slot) Remove() error {
	if !s.linked {
		return types.Wrap(types.ErrInvalidSlotTopology, "slot is not linked")
	}

	l, r := s.ch.at(s.left), s.ch.at(s.right)
	if l != nil {
		l.right = s.right
	} else {
		s.ch.first = s.right
	}
	if r != nil {
		r.left = s.left
	}

	s.left, s.right = noSlot, noSlot
	s.linked = false
	s.ch.slots[s.index] = nil

	if s.handler != nil {
		s.handler.Destroy()
		s.handler = nil
	}
	return nil
}

// Replace 用 replacement 替换当前 Slot 的位置，当前 Slot 被销毁
func (s *slot) Replace(replacement channelif.Slot) error {
	if err := s.InsertLeft(replacement); err != nil {
		return err
	}
	return s.Remove()
}

// linkable 校验 toAdd 可以加入链中
func (s *slot) linkable(toAdd channelif.Slot) (*slot, error) {
	n, err := s.ch.own(toAdd)
	if err != nil {
		return nil, err
	}
	if !s.linked {
		return nil, types.Wrap(types.ErrInvalidSlotTopology, "anchor slot is not linked")
	}
	if n == s || n.linked {
		return nil, types.Wrap(types.ErrInvalidSlotTopology, "slot %d is already linked", n.index)
	}
	return n, nil
}

// ============================================================================
//                              窗口与开销
// ============================================================================

// WindowSize 当前 Slot 对左侧邻居开放的窗口
func (s *slot) WindowSize() int {
	if !s.ch.backPressure {
		return unboundedWindow
	}
	return s.window
}

// DownstreamReadWindow 右侧邻居当前窗口
func (s *slot) DownstreamReadWindow() int {
	r := s.ch.at(s.right)
	if r == nil || !s.ch.backPressure {
		return unboundedWindow
	}
	return r.window
}

// UpstreamMessageOverhead 左侧所有 Handler 的消息开销之和
func (s *slot) UpstreamMessageOverhead() int {
	total := 0
	for l := s.ch.at(s.left); l != nil; l = s.ch.at(l.left) {
		if l.handler != nil {
			total += l.handler.MessageOverhead()
		}
	}
	return total
}

// ============================================================================
//                              消息路由
// ============================================================================

// SendMessage 把消息投递给 dir 方向上相邻 Slot 的 Handler
//
// 读方向受接收方窗口限制：超出窗口属于协议错误，拒绝投递并以
// ErrReadWouldExceedWindow 关闭 Channel。
// 接收方 Handler 返回错误时 Channel 以该错误关闭。
func (s *slot) SendMessage(msg *types.Message, dir types.Direction) error {
	if msg == nil {
		return types.Wrap(types.ErrInvalidState, "nil message")
	}

	var target *slot
	if dir == types.DirRead {
		target = s.ch.at(s.right)
	} else {
		target = s.ch.at(s.left)
	}
	if target == nil || target.handler == nil {
		return s.reject(msg, types.Wrap(types.ErrInvalidSlotTopology, "no %s neighbor for slot %d", dir, s.index))
	}
	if s.ch.ShutdownState() == types.ShutdownComplete {
		return s.reject(msg, types.ErrChannelShutdown)
	}

	msg.Direction = dir
	if dir == types.DirRead {
		if target.shutdownDone[types.DirRead] {
			return s.reject(msg, types.ErrChannelShutdown)
		}
		if s.ch.backPressure {
			if msg.Len() > target.window {
				err := s.reject(msg, types.Wrap(types.ErrReadWouldExceedWindow,
					"message of %d bytes, window %d", msg.Len(), target.window))
				s.ch.Shutdown(err)
				return err
			}
			target.window -= msg.Len()
		}
		if err := target.handler.ProcessReadMessage(target, msg); err != nil {
			s.ch.Shutdown(err)
			return err
		}
		return nil
	}

	if err := target.handler.ProcessWriteMessage(target, msg); err != nil {
		s.ch.Shutdown(err)
		return err
	}
	return nil
}

// reject 拒绝投递：完成写回调并释放消息
func (s *slot) reject(msg *types.Message, err error) error {
	msg.Complete(err)
	msg.Release()
	logger.Debug("拒绝投递消息", "channel", s.ch.shortID(), "slot", s.index, "err", err)
	return err
}

func (c *Channel) shortID() string {
	return c.id[:8]
}
