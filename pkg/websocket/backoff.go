package websocket

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	defaultBackoffMin    = 250 * time.Millisecond
	defaultBackoffMax    = 30 * time.Second
	defaultBackoffFactor = 2.0
)

// DefaultBackoff provides conservative reconnect defaults.
func DefaultBackoff() Backoff {
	return Backoff{
		Min:    defaultBackoffMin,
		Max:    defaultBackoffMax,
		Factor: defaultBackoffFactor,
		Jitter: 0.2,
	}
}

// NewBackoff returns the default curve bounded by min and max. Zero values
// keep the defaults.
func NewBackoff(min, max time.Duration) Backoff {
	b := DefaultBackoff()
	if min > 0 {
		b.Min = min
	}
	if max > 0 {
		b.Max = max
	}
	if b.Max < b.Min {
		b.Max = b.Min
	}
	return b
}

// Next returns the wait before the given reconnect attempt (1-based). The
// result never exceeds Max plus jitter.
func (b Backoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	min := b.Min
	if min <= 0 {
		min = defaultBackoffMin
	}
	max := b.Max
	if max <= 0 {
		max = defaultBackoffMax
	}
	factor := b.Factor
	if factor <= 1 {
		factor = defaultBackoffFactor
	}

	raw := float64(min) * math.Pow(factor, float64(attempt-1))
	wait := max
	if raw < float64(max) {
		wait = time.Duration(raw)
	}

	jitter := math.Min(b.Jitter, 1)
	if jitter <= 0 {
		return wait
	}
	delta := float64(wait) * jitter
	return wait - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
}
