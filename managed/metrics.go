package managed

import (
	"time"

	"go.uber.org/zap/zapcore"
)

var _ zapcore.ObjectMarshaler = Metrics{}

// Metrics holds the lifecycle timing of a single pooled object.
//
// Metrics is a plain value. It is not synchronized; the pool mutates it only
// while it has exclusive access to the object, and hands copies to callers.
//
// All timestamps must come from one non-decreasing time source. A duration
// that would come out negative because that source moved backward is reported
// as zero.
type Metrics struct {
	Created      time.Time // when the object was constructed
	Recycled     time.Time // when the object was last recycled, zero if never
	RecycleCount uint64    // number of times the object was recycled
	Requested    time.Time // when the object was last requested
	Acquired     time.Time // when the object was last handed out
}

// NewMetrics returns the metrics of an object constructed just now.
func NewMetrics() Metrics { return NewMetricsAt(time.Now()) }

// NewMetricsAt returns the metrics of an object constructed at now.
func NewMetricsAt(now time.Time) Metrics {
	return Metrics{
		Created:   now,
		Requested: now,
		Acquired:  now,
	}
}

func (m *Metrics) Request(now time.Time) { m.Requested = now }
func (m *Metrics) Acquire(now time.Time) { m.Acquired = now }

func (m *Metrics) Recycle(now time.Time) {
	m.Recycled = now
	m.RecycleCount++
}

// LastRecycled reports when the object was last recycled, if ever.
func (m Metrics) LastRecycled() (time.Time, bool) {
	return m.Recycled, !m.Recycled.IsZero()
}

// Age returns how long ago the object was created.
func (m Metrics) Age() time.Duration { return m.AgeAt(time.Now()) }

func (m Metrics) AgeAt(now time.Time) time.Duration { return elapsed(m.Created, now) }

// LastUsed returns how long the object has been idle since it was last
// recycled, or since it was created if it never was.
func (m Metrics) LastUsed() time.Duration { return m.LastUsedAt(time.Now()) }

func (m Metrics) LastUsedAt(now time.Time) time.Duration {
	if recycled, ok := m.LastRecycled(); ok {
		return elapsed(recycled, now)
	}
	return elapsed(m.Created, now)
}

// AcquisitionLatency returns the time between the last request and the
// object being handed out for it.
func (m Metrics) AcquisitionLatency() time.Duration { return elapsed(m.Requested, m.Acquired) }

// CreateLatency returns the time spent constructing the object for the last
// request. It reports false once the object has been recycled.
func (m Metrics) CreateLatency() (time.Duration, bool) {
	if m.RecycleCount > 0 {
		return 0, false
	}
	return elapsed(m.Requested, m.Created), true
}

func (m Metrics) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddTime("created", m.Created)
	if recycled, ok := m.LastRecycled(); ok {
		enc.AddTime("recycled", recycled)
	}
	enc.AddUint64("recycle_count", m.RecycleCount)
	enc.AddDuration("acquisition_latency", m.AcquisitionLatency())
	if d, ok := m.CreateLatency(); ok {
		enc.AddDuration("create_latency", d)
	}
	return nil
}

// elapsed saturates at zero when to precedes from.
func elapsed(from, to time.Time) time.Duration {
	if d := to.Sub(from); d > 0 {
		return d
	}
	return 0
}
