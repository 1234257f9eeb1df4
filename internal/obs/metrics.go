package obs

import (
	"sync/atomic"
	"time"

	"tradecore/internal/schema"
)

const (
	maxEventType = int(schema.EventStreamStatus)
	maxChannel   = int(schema.ChannelSubmission)
	maxStatus    = int(schema.SubmissionFailed)
)

// Metrics collects lightweight counters and latency stats. All methods are
// safe on a nil receiver.
type Metrics struct {
	eventCounts      [maxEventType + 1]uint64
	decodeErrors     [maxChannel + 1]uint64
	reconnects       [maxChannel + 1]uint64
	submissionCounts [maxStatus + 1]uint64

	duplicateUpdates uint64
	unknownRefs      uint64
	inconsistencies  uint64
	callbackErrors   uint64
	callbackPanics   uint64
	submitRejected   uint64
	journalDrops     uint64

	eventLatency    LatencyStats
	dispatchLatency LatencyStats
	submitLatency   LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64        `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts      map[string]uint64 `json:"eventCounts"`
	DecodeErrors     map[string]uint64 `json:"decodeErrors"`
	Reconnects       map[string]uint64 `json:"reconnects"`
	SubmissionCounts map[string]uint64 `json:"submissionCounts"`
	DuplicateUpdates uint64            `json:"duplicateUpdates"`
	UnknownRefs      uint64            `json:"unknownRefs"`
	Inconsistencies  uint64            `json:"inconsistencies"`
	CallbackErrors   uint64            `json:"callbackErrors"`
	CallbackPanics   uint64            `json:"callbackPanics"`
	SubmitRejected   uint64            `json:"submitRejected"`
	JournalDrops     uint64            `json:"journalDrops"`
	EventLatency     LatencySnapshot   `json:"eventLatency"`
	DispatchLatency  LatencySnapshot   `json:"dispatchLatency"`
	SubmitLatency    LatencySnapshot   `json:"submitLatency"`
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveEvent increments counters and tracks feed latency when timestamps
// are present.
func (m *Metrics) ObserveEvent(header schema.EventHeader) {
	if m == nil {
		return
	}
	inc(m.eventCounts[:], int(header.Type))
	if header.TsEvent > 0 && header.TsRecv > 0 {
		delta := header.TsRecv - header.TsEvent
		if delta >= 0 {
			m.eventLatency.Observe(time.Duration(delta))
		}
	}
}

// IncDecodeError records a dropped malformed message.
func (m *Metrics) IncDecodeError(ch schema.Channel) {
	if m == nil {
		return
	}
	inc(m.decodeErrors[:], int(ch))
}

// IncReconnect records a reconnect attempt.
func (m *Metrics) IncReconnect(ch schema.Channel) {
	if m == nil {
		return
	}
	inc(m.reconnects[:], int(ch))
}

// ObserveSubmission records a submission outcome and its round trip.
func (m *Metrics) ObserveSubmission(status schema.SubmissionStatus, latency time.Duration) {
	if m == nil {
		return
	}
	inc(m.submissionCounts[:], int(status))
	if latency > 0 {
		m.submitLatency.Observe(latency)
	}
}

// ObserveDispatch measures time spent handling one event.
func (m *Metrics) ObserveDispatch(d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchLatency.Observe(d)
}

func (m *Metrics) IncDuplicateUpdate() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.duplicateUpdates, 1)
}

func (m *Metrics) IncUnknownRef() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.unknownRefs, 1)
}

func (m *Metrics) IncInconsistency() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.inconsistencies, 1)
}

func (m *Metrics) IncCallbackError() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.callbackErrors, 1)
}

func (m *Metrics) IncCallbackPanic() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.callbackPanics, 1)
}

// IncSubmitRejected records a submission refused before reaching the broker.
func (m *Metrics) IncSubmitRejected() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.submitRejected, 1)
}

func (m *Metrics) IncJournalDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.journalDrops, 1)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		EventCounts:      collect(m.eventCounts[:], func(i int) string { return schema.EventType(i).String() }),
		DecodeErrors:     collect(m.decodeErrors[:], func(i int) string { return schema.Channel(i).String() }),
		Reconnects:       collect(m.reconnects[:], func(i int) string { return schema.Channel(i).String() }),
		SubmissionCounts: collect(m.submissionCounts[:], func(i int) string { return schema.SubmissionStatus(i).String() }),
		DuplicateUpdates: atomic.LoadUint64(&m.duplicateUpdates),
		UnknownRefs:      atomic.LoadUint64(&m.unknownRefs),
		Inconsistencies:  atomic.LoadUint64(&m.inconsistencies),
		CallbackErrors:   atomic.LoadUint64(&m.callbackErrors),
		CallbackPanics:   atomic.LoadUint64(&m.callbackPanics),
		SubmitRejected:   atomic.LoadUint64(&m.submitRejected),
		JournalDrops:     atomic.LoadUint64(&m.journalDrops),
		EventLatency:     m.eventLatency.Snapshot(),
		DispatchLatency:  m.dispatchLatency.Snapshot(),
		SubmitLatency:    m.submitLatency.Snapshot(),
	}
}

func inc(counters []uint64, idx int) {
	if idx >= 0 && idx < len(counters) {
		atomic.AddUint64(&counters[idx], 1)
	}
}

func collect(counters []uint64, name func(int) string) map[string]uint64 {
	out := make(map[string]uint64)
	for i := range counters {
		if v := atomic.LoadUint64(&counters[i]); v > 0 {
			out[name(i)] = v
		}
	}
	return out
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(atomic.LoadUint64(&l.sum) / count),
	}
}
