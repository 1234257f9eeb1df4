package obs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tradecore/internal/schema"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.ObserveEvent(schema.NewHeader(schema.EventTrade, schema.ChannelMarketData, 1, 100, 300))
	m.ObserveEvent(schema.NewHeader(schema.EventTrade, schema.ChannelMarketData, 2, 0, 0))
	m.IncDecodeError(schema.ChannelOrderUpdates)
	m.ObserveSubmission(schema.SubmissionAcked, 5*time.Millisecond)
	m.IncCallbackPanic()

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.EventCounts["trade"])
	assert.Equal(t, uint64(1), snap.DecodeErrors["order_updates"])
	assert.Equal(t, uint64(1), snap.SubmissionCounts["acked"])
	assert.Equal(t, uint64(1), snap.CallbackPanics)
	assert.Equal(t, uint64(1), snap.EventLatency.Count)
	assert.Equal(t, 200*time.Nanosecond, snap.EventLatency.Avg)
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.IncUnknownRef()
	m.ObserveDispatch(time.Millisecond)
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestLatencyStats(t *testing.T) {
	var l LatencyStats
	l.Observe(3 * time.Millisecond)
	l.Observe(time.Millisecond)
	l.Observe(-time.Second)
	l.Observe(2 * time.Millisecond)

	snap := l.Snapshot()
	assert.Equal(t, uint64(3), snap.Count)
	assert.Equal(t, time.Millisecond, snap.Min)
	assert.Equal(t, 3*time.Millisecond, snap.Max)
	assert.Equal(t, 2*time.Millisecond, snap.Avg)
}
