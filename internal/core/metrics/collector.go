package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "netio"

// Collector 把 Recorder 的统计导出为 Prometheus 指标
type Collector struct {
	rec *Recorder

	bytesRead      *prometheus.Desc
	bytesWritten   *prometheus.Desc
	wireRead       *prometheus.Desc
	wireWritten    *prometheus.Desc
	activeChannels *prometheus.Desc
	closedChannels *prometheus.Desc
	negotiations   *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector 创建 Collector
func NewCollector(rec *Recorder) *Collector {
	return &Collector{
		rec: rec,
		bytesRead: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "handler", "bytes_read_total"),
			"Bytes processed in the read direction, by handler kind.",
			[]string{"kind"}, nil),
		bytesWritten: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "handler", "bytes_written_total"),
			"Bytes processed in the write direction, by handler kind.",
			[]string{"kind"}, nil),
		wireRead: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "socket", "bytes_read_total"),
			"Bytes read from sockets.",
			nil, nil),
		wireWritten: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "socket", "bytes_written_total"),
			"Bytes written to sockets.",
			nil, nil),
		activeChannels: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "active"),
			"Channels that reported statistics and have not shut down.",
			nil, nil),
		closedChannels: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "closed_total"),
			"Channels that shut down after reporting statistics.",
			nil, nil),
		negotiations: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "tls", "negotiations_total"),
			"TLS negotiations by result.",
			[]string{"result"}, nil),
	}
}

// Describe 实现 prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.bytesRead
	ch <- c.bytesWritten
	ch <- c.wireRead
	ch <- c.wireWritten
	ch <- c.activeChannels
	ch <- c.closedChannels
	ch <- c.negotiations
	c.rec.handshake.Describe(ch)
}

// Collect 实现 prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for kind, stats := range c.rec.bw.GetBandwidthByKind() {
		ch <- prometheus.MustNewConstMetric(c.bytesRead, prometheus.CounterValue, float64(stats.TotalIn), kind)
		ch <- prometheus.MustNewConstMetric(c.bytesWritten, prometheus.CounterValue, float64(stats.TotalOut), kind)
	}

	totals := c.rec.bw.GetBandwidthTotals()
	ch <- prometheus.MustNewConstMetric(c.wireRead, prometheus.CounterValue, float64(totals.TotalIn))
	ch <- prometheus.MustNewConstMetric(c.wireWritten, prometheus.CounterValue, float64(totals.TotalOut))

	ch <- prometheus.MustNewConstMetric(c.activeChannels, prometheus.GaugeValue, float64(c.rec.ActiveChannels()))
	ch <- prometheus.MustNewConstMetric(c.closedChannels, prometheus.CounterValue, float64(c.rec.ClosedChannels()))

	negotiated, failed := c.rec.Negotiations()
	ch <- prometheus.MustNewConstMetric(c.negotiations, prometheus.CounterValue, float64(negotiated), "negotiated")
	ch <- prometheus.MustNewConstMetric(c.negotiations, prometheus.CounterValue, float64(failed), "failed")

	c.rec.handshake.Collect(ch)
}
