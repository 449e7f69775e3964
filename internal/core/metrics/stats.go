package metrics

// Stats 带宽统计快照
//
// TotalIn/TotalOut 为读/写方向累计字节数，RateIn/RateOut 为最近 60 秒的
// 平均速率（字节/秒）。
type Stats struct {
	TotalIn  int64   // 读方向累计字节
	TotalOut int64   // 写方向累计字节
	RateIn   float64 // 读方向速率（字节/秒）
	RateOut  float64 // 写方向速率（字节/秒）
}
