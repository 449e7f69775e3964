package eventloop

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	eventloopif "github.com/dep2p/go-netio/pkg/interfaces/eventloop"
)

// 确保实现接口
var _ eventloopif.Group = (*Group)(nil)

// Group 事件循环组
//
// 新建 Channel 时按轮询选择循环，使不同 Channel 分摊到不同 goroutine。
type Group struct {
	loops []*Loop
	next  atomic.Uint64
}

// NewGroup 创建包含 n 个循环的组；n <= 0 时使用 CPU 数
func NewGroup(n int, opts ...Option) *Group {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	g := &Group{loops: make([]*Loop, n)}
	for i := range g.loops {
		loopOpts := append([]Option{WithName(fmt.Sprintf("eventloop-%d", i))}, opts...)
		g.loops[i] = New(loopOpts...)
	}
	return g
}

// Start 启动所有循环
func (g *Group) Start() error {
	for _, l := range g.loops {
		if err := l.Start(); err != nil {
			return fmt.Errorf("启动事件循环 %s 失败: %w", l.Name(), err)
		}
	}
	logger.Info("事件循环组已启动", "size", len(g.loops))
	return nil
}

// Stop 并发停止所有循环
func (g *Group) Stop() error {
	var eg errgroup.Group
	for _, l := range g.loops {
		eg.Go(l.Stop)
	}
	err := eg.Wait()
	logger.Info("事件循环组已停止", "size", len(g.loops))
	return err
}

// Next 按轮询返回下一个循环
func (g *Group) Next() eventloopif.EventLoop {
	return g.NextLoop()
}

// NextLoop 按轮询返回下一个 *Loop
func (g *Group) NextLoop() *Loop {
	idx := g.next.Add(1) - 1
	return g.loops[idx%uint64(len(g.loops))]
}

// Loop 返回第 i 个循环
func (g *Group) Loop(i int) *Loop {
	return g.loops[i]
}

// Size 返回循环数量
func (g *Group) Size() int {
	return len(g.loops)
}
