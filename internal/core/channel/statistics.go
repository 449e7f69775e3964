package channel

import (
	channelif "github.com/dep2p/go-netio/pkg/interfaces/channel"
	"github.com/dep2p/go-netio/pkg/types"
)

// runStatistics 采集各 Handler 的统计并上报，随后重置计数
func (c *Channel) runStatistics(status types.TaskStatus) {
	if status == types.TaskCanceled || c.ShutdownState() == types.ShutdownComplete {
		return
	}

	now := c.loop.CurrentTime()
	interval := now.Sub(c.statsLast)
	c.statsLast = now

	stats := c.collectStatistics()
	if len(stats) > 0 {
		c.statsReporter.ReportStatistics(c.id, interval, stats)
	}

	c.loop.ScheduleTaskFuture(c.statsTask, now.Add(c.statsInterval))
}

// collectStatistics 按链顺序收集并重置统计
func (c *Channel) collectStatistics() []channelif.Statistics {
	var stats []channelif.Statistics
	for s := c.at(c.first); s != nil; s = c.at(s.right) {
		p, ok := s.handler.(channelif.StatisticsProvider)
		if !ok {
			continue
		}
		stats = append(stats, p.Statistics())
		p.ResetStatistics()
	}
	return stats
}

// stopStatistics 取消采样，上报最后一个区间后通知接收方
func (c *Channel) stopStatistics() {
	if c.statsReporter == nil || c.statsInterval <= 0 {
		return
	}
	c.loop.CancelTask(c.statsTask)

	now := c.loop.CurrentTime()
	if stats := c.collectStatistics(); len(stats) > 0 {
		c.statsReporter.ReportStatistics(c.id, now.Sub(c.statsLast), stats)
	}
	c.statsReporter.Close(c.id)
}
