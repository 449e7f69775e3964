package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	channelif "github.com/dep2p/go-netio/pkg/interfaces/channel"
	"github.com/dep2p/go-netio/pkg/lib/log"
	"github.com/dep2p/go-netio/pkg/types"
)

// Reporter 提供记录和检索带宽的方法
type Reporter interface {
	// LogSentMessage 记录写出的线上字节
	LogSentMessage(int64)

	// LogRecvMessage 记录读入的线上字节
	LogRecvMessage(int64)

	// LogSentMessageKind 记录某类 Handler 写方向字节
	LogSentMessageKind(int64, string)

	// LogRecvMessageKind 记录某类 Handler 读方向字节
	LogRecvMessageKind(int64, string)

	// LogSentMessageChannel 记录某个 Channel 写出的线上字节
	LogSentMessageChannel(int64, string)

	// LogRecvMessageChannel 记录某个 Channel 读入的线上字节
	LogRecvMessageChannel(int64, string)

	// GetBandwidthForChannel 获取 Channel 带宽统计
	GetBandwidthForChannel(string) Stats

	// GetBandwidthForKind 获取 Handler 类别带宽统计
	GetBandwidthForKind(string) Stats

	// GetBandwidthTotals 获取总带宽统计
	GetBandwidthTotals() Stats

	// GetBandwidthByChannel 获取所有 Channel 带宽统计
	GetBandwidthByChannel() map[string]Stats

	// GetBandwidthByKind 获取所有类别带宽统计
	GetBandwidthByKind() map[string]Stats

	// Reset 重置所有统计
	Reset()

	// TrimIdle 清理空闲统计
	TrimIdle(since time.Time)
}

// 确保 BandwidthCounter 实现 Reporter 接口
var _ Reporter = (*BandwidthCounter)(nil)

// ============================================================================
//                              Recorder
// ============================================================================

// 统计类别，与内置 Handler 上报的 Kind 一致
const (
	KindSocket = channelif.KindSocket
	KindTLS    = channelif.KindTLS
	KindApp    = channelif.KindApp
)

// Recorder 把 Channel 的周期采样汇总到 BandwidthCounter
//
// 第一个统计项视为套接字，其字节数计入全局与 Channel 级线上流量；
// 每一项按 Kind 计入类别流量。TLS 协商进入终态时各计数一次。
type Recorder struct {
	bw  *BandwidthCounter
	clk clock.Clock

	mu       sync.Mutex
	channels map[string]*channelRecord

	negotiated atomic.Int64
	failed     atomic.Int64
	closed     atomic.Int64

	handshake prometheus.Histogram
}

// channelRecord 单个 Channel 的跟踪状态
type channelRecord struct {
	opened   time.Time
	lastSeen time.Time
	// settled 按 TLS Handler 在链上的序号记录已计数的终态
	settled map[int]bool
}

var _ channelif.StatisticsReporter = (*Recorder)(nil)

// NewRecorder 创建 Recorder
func NewRecorder(bw *BandwidthCounter, clk clock.Clock) *Recorder {
	if clk == nil {
		clk = clock.New()
	}
	if bw == nil {
		bw = NewBandwidthCounter(clk)
	}
	return &Recorder{
		bw:       bw,
		clk:      clk,
		channels: make(map[string]*channelRecord),
		handshake: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tls",
			Name:      "handshake_duration_seconds",
			Help:      "TLS negotiation duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
	}
}

// Bandwidth 返回底层带宽计数器
func (r *Recorder) Bandwidth() *BandwidthCounter {
	return r.bw
}

// ReportStatistics 汇总一次采样
func (r *Recorder) ReportStatistics(channelID string, _ time.Duration, stats []channelif.Statistics) {
	if len(stats) == 0 {
		return
	}

	wire := stats[0]
	r.bw.LogRecvMessage(int64(wire.BytesRead))
	r.bw.LogSentMessage(int64(wire.BytesWritten))
	r.bw.LogRecvMessageChannel(int64(wire.BytesRead), channelID)
	r.bw.LogSentMessageChannel(int64(wire.BytesWritten), channelID)

	for _, s := range stats {
		if s.Kind == "" {
			continue
		}
		r.bw.LogRecvMessageKind(int64(s.BytesRead), s.Kind)
		r.bw.LogSentMessageKind(int64(s.BytesWritten), s.Kind)
	}

	r.mu.Lock()
	rec := r.channels[channelID]
	if rec == nil {
		rec = &channelRecord{opened: r.clk.Now(), settled: make(map[int]bool)}
		r.channels[channelID] = rec
	}
	rec.lastSeen = r.clk.Now()

	level := 0
	for _, s := range stats {
		if s.Kind != KindTLS {
			continue
		}
		if s.NegotiationState.IsTerminal() && !rec.settled[level] {
			rec.settled[level] = true
			r.recordNegotiation(channelID, level, s)
		}
		level++
	}
	r.mu.Unlock()
}

func (r *Recorder) recordNegotiation(channelID string, level int, s channelif.Statistics) {
	if s.NegotiationState == types.NegotiationNegotiated {
		r.negotiated.Add(1)
	} else {
		r.failed.Add(1)
	}
	if !s.HandshakeStart.IsZero() && s.HandshakeEnd.After(s.HandshakeStart) {
		r.handshake.Observe(s.HandshakeEnd.Sub(s.HandshakeStart).Seconds())
	}
	logger.Debug("TLS 协商结果",
		"channel", log.TruncateID(channelID, 8),
		"level", level,
		"state", s.NegotiationState)
}

// Close Channel 关闭后移除其跟踪状态与 Channel 级统计
func (r *Recorder) Close(channelID string) {
	r.mu.Lock()
	_, ok := r.channels[channelID]
	delete(r.channels, channelID)
	r.mu.Unlock()

	if ok {
		r.closed.Add(1)
	}
	r.bw.RemoveChannel(channelID)
}

// ActiveChannels 返回已上报且尚未关闭的 Channel 数
func (r *Recorder) ActiveChannels() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

// Negotiations 返回 TLS 协商成功与失败次数
func (r *Recorder) Negotiations() (negotiated, failed int64) {
	return r.negotiated.Load(), r.failed.Load()
}

// ClosedChannels 返回已关闭的 Channel 数
func (r *Recorder) ClosedChannels() int64 {
	return r.closed.Load()
}

// TrimIdle 清理 since 之后没有上报的 Channel
func (r *Recorder) TrimIdle(since time.Time) int {
	r.mu.Lock()
	var idle []string
	for id, rec := range r.channels {
		if rec.lastSeen.Before(since) {
			idle = append(idle, id)
			delete(r.channels, id)
		}
	}
	r.mu.Unlock()

	for _, id := range idle {
		r.bw.RemoveChannel(id)
	}
	return len(idle)
}
