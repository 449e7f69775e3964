package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// BandwidthCounter 带宽计数器
//
// 跟踪三个层次的读写字节数：全部 Channel 的线上字节、按 Handler 类别
// （socket、tls…）以及按 Channel。计数器使用原子操作，并发安全。
type BandwidthCounter struct {
	clk clock.Clock

	// 全局计数器
	totalIn  atomic.Int64
	totalOut atomic.Int64

	totalInRate  *RateMeter
	totalOutRate *RateMeter

	// 类别级计数器
	kindMu  sync.RWMutex
	kindIn  map[string]*atomic.Int64
	kindOut map[string]*atomic.Int64

	// Channel 级计数器与速率
	channelMu      sync.RWMutex
	channelIn      map[string]*atomic.Int64
	channelOut     map[string]*atomic.Int64
	channelInRate  map[string]*RateMeter
	channelOutRate map[string]*RateMeter
}

// NewBandwidthCounter 创建 BandwidthCounter，clk 为空时使用系统时钟
func NewBandwidthCounter(clk clock.Clock) *BandwidthCounter {
	if clk == nil {
		clk = clock.New()
	}
	return &BandwidthCounter{
		clk:            clk,
		totalInRate:    NewRateMeter(clk),
		totalOutRate:   NewRateMeter(clk),
		kindIn:         make(map[string]*atomic.Int64),
		kindOut:        make(map[string]*atomic.Int64),
		channelIn:      make(map[string]*atomic.Int64),
		channelOut:     make(map[string]*atomic.Int64),
		channelInRate:  make(map[string]*RateMeter),
		channelOutRate: make(map[string]*RateMeter),
	}
}

// LogSentMessage 记录写出的线上字节
func (bwc *BandwidthCounter) LogSentMessage(size int64) {
	bwc.totalOut.Add(size)
	bwc.totalOutRate.Add(size)
}

// LogRecvMessage 记录读入的线上字节
func (bwc *BandwidthCounter) LogRecvMessage(size int64) {
	bwc.totalIn.Add(size)
	bwc.totalInRate.Add(size)
}

// LogSentMessageKind 记录某类 Handler 写方向处理的字节
func (bwc *BandwidthCounter) LogSentMessageKind(size int64, kind string) {
	bwc.kindCounter(bwc.kindOut, kind).Add(size)
}

// LogRecvMessageKind 记录某类 Handler 读方向处理的字节
func (bwc *BandwidthCounter) LogRecvMessageKind(size int64, kind string) {
	bwc.kindCounter(bwc.kindIn, kind).Add(size)
}

func (bwc *BandwidthCounter) kindCounter(m map[string]*atomic.Int64, kind string) *atomic.Int64 {
	bwc.kindMu.Lock()
	defer bwc.kindMu.Unlock()
	counter := m[kind]
	if counter == nil {
		counter = &atomic.Int64{}
		m[kind] = counter
	}
	return counter
}

// LogSentMessageChannel 记录某个 Channel 写出的线上字节
func (bwc *BandwidthCounter) LogSentMessageChannel(size int64, channelID string) {
	counter, meter := bwc.channelCounter(bwc.channelOut, bwc.channelOutRate, channelID)
	counter.Add(size)
	meter.Add(size)
}

// LogRecvMessageChannel 记录某个 Channel 读入的线上字节
func (bwc *BandwidthCounter) LogRecvMessageChannel(size int64, channelID string) {
	counter, meter := bwc.channelCounter(bwc.channelIn, bwc.channelInRate, channelID)
	counter.Add(size)
	meter.Add(size)
}

func (bwc *BandwidthCounter) channelCounter(counters map[string]*atomic.Int64, meters map[string]*RateMeter, id string) (*atomic.Int64, *RateMeter) {
	bwc.channelMu.Lock()
	defer bwc.channelMu.Unlock()
	counter := counters[id]
	if counter == nil {
		counter = &atomic.Int64{}
		counters[id] = counter
	}
	meter := meters[id]
	if meter == nil {
		meter = NewRateMeter(bwc.clk)
		meters[id] = meter
	}
	return counter, meter
}

// GetBandwidthForChannel 返回 Channel 带宽统计
func (bwc *BandwidthCounter) GetBandwidthForChannel(channelID string) Stats {
	bwc.channelMu.RLock()
	inCounter := bwc.channelIn[channelID]
	outCounter := bwc.channelOut[channelID]
	inRate := bwc.channelInRate[channelID]
	outRate := bwc.channelOutRate[channelID]
	bwc.channelMu.RUnlock()

	var stats Stats
	if inCounter != nil {
		stats.TotalIn = inCounter.Load()
	}
	if outCounter != nil {
		stats.TotalOut = outCounter.Load()
	}
	if inRate != nil {
		stats.RateIn = inRate.Rate()
	}
	if outRate != nil {
		stats.RateOut = outRate.Rate()
	}
	return stats
}

// GetBandwidthForKind 返回 Handler 类别带宽统计（不含速率）
func (bwc *BandwidthCounter) GetBandwidthForKind(kind string) Stats {
	bwc.kindMu.RLock()
	inCounter := bwc.kindIn[kind]
	outCounter := bwc.kindOut[kind]
	bwc.kindMu.RUnlock()

	var stats Stats
	if inCounter != nil {
		stats.TotalIn = inCounter.Load()
	}
	if outCounter != nil {
		stats.TotalOut = outCounter.Load()
	}
	return stats
}

// GetBandwidthTotals 返回线上字节总计
func (bwc *BandwidthCounter) GetBandwidthTotals() Stats {
	return Stats{
		TotalIn:  bwc.totalIn.Load(),
		TotalOut: bwc.totalOut.Load(),
		RateIn:   bwc.totalInRate.Rate(),
		RateOut:  bwc.totalOutRate.Rate(),
	}
}

// GetBandwidthByChannel 返回所有 Channel 的带宽统计
func (bwc *BandwidthCounter) GetBandwidthByChannel() map[string]Stats {
	bwc.channelMu.RLock()
	defer bwc.channelMu.RUnlock()

	result := make(map[string]Stats, len(bwc.channelIn))
	for id, counter := range bwc.channelIn {
		stats := result[id]
		stats.TotalIn = counter.Load()
		result[id] = stats
	}
	for id, counter := range bwc.channelOut {
		stats := result[id]
		stats.TotalOut = counter.Load()
		result[id] = stats
	}
	return result
}

// GetBandwidthByKind 返回所有类别的带宽统计
func (bwc *BandwidthCounter) GetBandwidthByKind() map[string]Stats {
	bwc.kindMu.RLock()
	defer bwc.kindMu.RUnlock()

	result := make(map[string]Stats, len(bwc.kindIn))
	for kind, counter := range bwc.kindIn {
		stats := result[kind]
		stats.TotalIn = counter.Load()
		result[kind] = stats
	}
	for kind, counter := range bwc.kindOut {
		stats := result[kind]
		stats.TotalOut = counter.Load()
		result[kind] = stats
	}
	return result
}

// RemoveChannel 删除 Channel 级统计，全局与类别计数保留
func (bwc *BandwidthCounter) RemoveChannel(channelID string) {
	bwc.channelMu.Lock()
	defer bwc.channelMu.Unlock()
	delete(bwc.channelIn, channelID)
	delete(bwc.channelOut, channelID)
	delete(bwc.channelInRate, channelID)
	delete(bwc.channelOutRate, channelID)
}

// Reset 清除所有统计
func (bwc *BandwidthCounter) Reset() {
	bwc.totalIn.Store(0)
	bwc.totalOut.Store(0)
	bwc.totalInRate.Reset()
	bwc.totalOutRate.Reset()

	bwc.kindMu.Lock()
	bwc.kindIn = make(map[string]*atomic.Int64)
	bwc.kindOut = make(map[string]*atomic.Int64)
	bwc.kindMu.Unlock()

	bwc.channelMu.Lock()
	bwc.channelIn = make(map[string]*atomic.Int64)
	bwc.channelOut = make(map[string]*atomic.Int64)
	bwc.channelInRate = make(map[string]*RateMeter)
	bwc.channelOutRate = make(map[string]*RateMeter)
	bwc.channelMu.Unlock()
}

// TrimIdle 清理 since 之后没有流量的 Channel 统计
func (bwc *BandwidthCounter) TrimIdle(since time.Time) {
	bwc.channelMu.Lock()
	defer bwc.channelMu.Unlock()

	for id := range bwc.channelIn {
		if idle(bwc.channelInRate[id], since) && idle(bwc.channelOutRate[id], since) {
			delete(bwc.channelIn, id)
			delete(bwc.channelOut, id)
			delete(bwc.channelInRate, id)
			delete(bwc.channelOutRate, id)
		}
	}
	for id := range bwc.channelOut {
		if idle(bwc.channelOutRate[id], since) {
			delete(bwc.channelOut, id)
			delete(bwc.channelOutRate, id)
		}
	}
}

func idle(m *RateMeter, since time.Time) bool {
	return m == nil || m.LastUpdate().Before(since)
}
