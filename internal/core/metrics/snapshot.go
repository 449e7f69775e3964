package metrics

import (
	"context"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-netio/pkg/lib/log"
)

var logger = log.Logger("core/metrics")

// Snapshot 管道指标快照
type Snapshot struct {
	Timestamp     time.Time     `json:"timestamp"`
	UptimeSeconds int64         `json:"uptimeSeconds"`
	Interval      time.Duration `json:"interval"`

	// Channel 统计
	ActiveChannels int   `json:"activeChannels"`
	ClosedChannels int64 `json:"closedChannels"`

	// 线上字节
	BytesSent   int64   `json:"bytesSent"`
	BytesRecv   int64   `json:"bytesRecv"`
	SendRateBps float64 `json:"sendRateBps"`
	RecvRateBps float64 `json:"recvRateBps"`

	// TLS 协商
	Negotiated        int64   `json:"negotiated"`
	NegotiationFailed int64   `json:"negotiationFailed"`
	FailedPerMin      float64 `json:"failedPerMin"`

	// 资源
	Goroutines  int     `json:"goroutines"`
	HeapAllocMB float64 `json:"heapAllocMB"`
}

// SnapshotCollector 周期性收集并输出快照
type SnapshotCollector struct {
	rec *Recorder
	clk clock.Clock

	// idleTimeout > 0 时每次快照顺带清理空闲 Channel
	idleTimeout time.Duration

	mu           sync.RWMutex
	startTime    time.Time
	lastSnapshot *Snapshot
	lastTime     time.Time
	lastFailed   int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSnapshotCollector 创建快照收集器
func NewSnapshotCollector(rec *Recorder, clk clock.Clock, idleTimeout time.Duration) *SnapshotCollector {
	if clk == nil {
		clk = clock.New()
	}
	now := clk.Now()
	return &SnapshotCollector{
		rec:         rec,
		clk:         clk,
		idleTimeout: idleTimeout,
		startTime:   now,
		lastTime:    now,
	}
}

// Start 启动周期性快照，重复调用被忽略
func (c *SnapshotCollector) Start(interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	ticker := c.clk.Ticker(interval)
	c.mu.Unlock()

	c.wg.Add(1)
	go c.loop(ctx, ticker)

	logger.Info("指标快照已启动", "interval", interval)
}

// Stop 停止快照
func (c *SnapshotCollector) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	c.wg.Wait()
	logger.Info("指标快照已停止")
}

func (c *SnapshotCollector) loop(ctx context.Context, ticker *clock.Ticker) {
	defer c.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.idleTimeout > 0 {
				if n := c.rec.TrimIdle(c.clk.Now().Add(-c.idleTimeout)); n > 0 {
					logger.Debug("清理空闲 Channel 统计", "count", n)
				}
			}
			c.logSnapshot(c.Collect())
		}
	}
}

// Collect 收集当前快照
func (c *SnapshotCollector) Collect() *Snapshot {
	now := c.clk.Now()

	c.mu.RLock()
	lastTime := c.lastTime
	lastFailed := c.lastFailed
	c.mu.RUnlock()

	elapsed := now.Sub(lastTime)
	minutes := elapsed.Minutes()
	if minutes <= 0 {
		minutes = 1.0 / 60.0
	}

	totals := c.rec.Bandwidth().GetBandwidthTotals()
	negotiated, failed := c.rec.Negotiations()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s := &Snapshot{
		Timestamp:         now,
		UptimeSeconds:     int64(now.Sub(c.startTime).Seconds()),
		Interval:          elapsed,
		ActiveChannels:    c.rec.ActiveChannels(),
		ClosedChannels:    c.rec.ClosedChannels(),
		BytesSent:         totals.TotalOut,
		BytesRecv:         totals.TotalIn,
		SendRateBps:       totals.RateOut,
		RecvRateBps:       totals.RateIn,
		Negotiated:        negotiated,
		NegotiationFailed: failed,
		FailedPerMin:      float64(failed-lastFailed) / minutes,
		Goroutines:        runtime.NumGoroutine(),
		HeapAllocMB:       float64(mem.HeapAlloc) / 1024 / 1024,
	}

	c.mu.Lock()
	c.lastSnapshot = s
	c.lastTime = now
	c.lastFailed = failed
	c.mu.Unlock()

	return s
}

// logSnapshot 输出快照日志
func (c *SnapshotCollector) logSnapshot(s *Snapshot) {
	logger.Info("管道指标快照",
		"uptime", s.UptimeSeconds,
		"activeChannels", s.ActiveChannels,
		"closedChannels", s.ClosedChannels,
		"bytesSent", s.BytesSent,
		"bytesRecv", s.BytesRecv,
		"sendRate", formatRate(s.SendRateBps),
		"recvRate", formatRate(s.RecvRateBps),
		"negotiated", s.Negotiated,
		"negotiationFailed", s.NegotiationFailed,
		"failedPerMin", formatFloat(s.FailedPerMin),
		"goroutines", s.Goroutines,
		"heapAllocMB", formatFloat(s.HeapAllocMB),
	)
}

// LastSnapshot 返回最近一次快照
func (c *SnapshotCollector) LastSnapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSnapshot
}

// formatRate 格式化速率
func formatRate(bps float64) string {
	switch {
	case bps < 1024:
		return formatFloat(bps) + " B/s"
	case bps < 1024*1024:
		return formatFloat(bps/1024) + " KB/s"
	default:
		return formatFloat(bps/1024/1024) + " MB/s"
	}
}

// formatFloat 保留两位小数
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}
