package metrics

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

// TestRateMeter_Window 数据在 60 秒窗口内计入速率
func TestRateMeter_Window(t *testing.T) {
	mock := clock.NewMock()
	m := NewRateMeter(mock)

	m.Add(600)
	assert.Equal(t, int64(600), m.Total())
	assert.InDelta(t, 10.0, m.Rate(), 0.001)

	mock.Add(30 * time.Second)
	m.Add(600)
	assert.Equal(t, int64(1200), m.Total())

	// 第一个桶滑出窗口
	mock.Add(30 * time.Second)
	assert.Equal(t, int64(600), m.Total())

	mock.Add(2 * time.Minute)
	assert.Equal(t, int64(0), m.Total())
	assert.Zero(t, m.Rate())
}

// TestRateMeter_LastUpdate 只有 Add 会刷新最后更新时间
func TestRateMeter_LastUpdate(t *testing.T) {
	mock := clock.NewMock()
	m := NewRateMeter(mock)
	start := mock.Now()

	mock.Add(5 * time.Second)
	_ = m.Total()
	assert.Equal(t, start, m.LastUpdate())

	m.Add(1)
	assert.Equal(t, mock.Now(), m.LastUpdate())

	mock.Add(time.Second)
	m.Reset()
	assert.Equal(t, int64(0), m.Total())
	assert.Equal(t, mock.Now(), m.LastUpdate())
}
