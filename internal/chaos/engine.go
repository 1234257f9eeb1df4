// Package chaos perturbs event delivery to exercise idempotence and
// ordering assumptions in tests.
package chaos

import (
	"fmt"
	"math/rand"
	"time"

	"tradecore/internal/bus"
	"tradecore/internal/schema"
)

// Config controls chaos injection behavior.
type Config struct {
	Seed          int64
	DropRate      float64
	DuplicateRate float64
	ReorderWindow int
	MaxDelay      time.Duration
	// OrderKey groups events whose relative order must survive reordering.
	// Events with an empty key may move freely. Nil uses OrderKeyByOrder.
	OrderKey func(bus.Event) string
}

// Stats counts what the engine did to the stream.
type Stats struct {
	Seen       int
	Dropped    int
	Duplicated int
	// Moved counts events released ahead of an earlier buffered event.
	Moved int
}

// Engine applies chaos rules to events.
type Engine struct {
	cfg     Config
	rng     *rand.Rand
	pending []bus.Event
	stats   Stats
}

// NewEngine creates a chaos engine with validation.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.ReorderWindow <= 0 {
		cfg.ReorderWindow = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	if cfg.OrderKey == nil {
		cfg.OrderKey = OrderKeyByOrder
	}
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.DropRate < 0 || c.DropRate > 1 {
		return fmt.Errorf("dropRate must be between 0 and 1")
	}
	if c.DuplicateRate < 0 || c.DuplicateRate > 1 {
		return fmt.Errorf("duplicateRate must be between 0 and 1")
	}
	if c.ReorderWindow <= 0 {
		return fmt.Errorf("reorderWindow must be >= 1")
	}
	if c.MaxDelay < 0 {
		return fmt.Errorf("maxDelay must be >= 0")
	}
	return nil
}

// OrderKeyByOrder keeps updates of one order in sequence and lets everything
// else move.
func OrderKeyByOrder(ev bus.Event) string {
	if u, ok := ev.Payload.(schema.OrderUpdateEvent); ok {
		if u.ClientOrderID != "" {
			return u.ClientOrderID
		}
		return u.BrokerOrderID
	}
	return ""
}

// Process applies chaos to a single event and returns any output events.
func (e *Engine) Process(ev bus.Event) []bus.Event {
	if e == nil {
		return []bus.Event{ev}
	}
	e.stats.Seen++
	if e.shouldDrop() {
		e.stats.Dropped++
		return nil
	}
	ev = e.applyDelay(ev)
	if e.cfg.ReorderWindow <= 1 {
		return e.applyDuplicate(ev)
	}
	e.pending = append(e.pending, ev)
	if len(e.pending) < e.cfg.ReorderWindow {
		return nil
	}
	return e.applyDuplicate(e.take())
}

// Flush returns any buffered events after processing completes.
func (e *Engine) Flush() []bus.Event {
	if e == nil || len(e.pending) == 0 {
		return nil
	}
	out := make([]bus.Event, 0, len(e.pending))
	for len(e.pending) > 0 {
		out = append(out, e.applyDuplicate(e.take())...)
	}
	return out
}

// Apply runs a whole stream through the engine.
func (e *Engine) Apply(events []bus.Event) []bus.Event {
	out := make([]bus.Event, 0, len(events))
	for _, ev := range events {
		out = append(out, e.Process(ev)...)
	}
	return append(out, e.Flush()...)
}

// Stats returns the counters accumulated so far.
func (e *Engine) Stats() Stats {
	if e == nil {
		return Stats{}
	}
	return e.stats
}

// take removes a random pending event that is the earliest of its key.
func (e *Engine) take() bus.Event {
	seen := make(map[string]struct{}, len(e.pending))
	candidates := make([]int, 0, len(e.pending))
	for i, ev := range e.pending {
		key := e.cfg.OrderKey(ev)
		if key == "" {
			candidates = append(candidates, i)
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		candidates = append(candidates, i)
	}
	idx := candidates[e.rng.Intn(len(candidates))]
	if idx > 0 {
		e.stats.Moved++
	}
	out := e.pending[idx]
	e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	return out
}

func (e *Engine) shouldDrop() bool {
	return e.cfg.DropRate > 0 && e.rng.Float64() < e.cfg.DropRate
}

func (e *Engine) applyDuplicate(ev bus.Event) []bus.Event {
	out := []bus.Event{ev}
	if e.cfg.DuplicateRate > 0 && e.rng.Float64() < e.cfg.DuplicateRate {
		e.stats.Duplicated++
		out = append(out, ev)
	}
	return out
}

func (e *Engine) applyDelay(ev bus.Event) bus.Event {
	if e.cfg.MaxDelay <= 0 {
		return ev
	}
	maxDelay := e.cfg.MaxDelay.Nanoseconds()
	delay := time.Duration(e.rng.Int63n(maxDelay + 1))
	if delay == 0 {
		return ev
	}
	if ev.Header.TsRecv > 0 {
		ev.Header.TsRecv += int64(delay)
		return ev
	}
	if ev.Header.TsEvent > 0 {
		ev.Header.TsRecv = ev.Header.TsEvent + int64(delay)
	}
	return ev
}
