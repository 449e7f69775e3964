package eventloop

import (
	"time"

	eventloopif "github.com/dep2p/go-netio/pkg/interfaces/eventloop"
)

// taskEntry 队列中的任务
type taskEntry struct {
	task  *eventloopif.Task
	runAt time.Time
	seq   uint64
	index int
}

// taskQueue 最小堆，按 (runAt, seq) 排序
//
// 实现 container/heap.Interface。
type taskQueue []*taskEntry

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].runAt.Equal(q[j].runAt) {
		return q[i].seq < q[j].seq
	}
	return q[i].runAt.Before(q[j].runAt)
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	e := x.(*taskEntry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}
