package core

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"tradecore/internal/bus"
	"tradecore/internal/obs"
	"tradecore/internal/ops"
	"tradecore/internal/risk"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// Config tunes the engine. Zero values pick defaults.
type Config struct {
	OrderRetention  time.Duration
	EvictInterval   time.Duration
	MaxTradeHistory int
	MaxBarHistory   int
	Risk            risk.Config

	Metrics *obs.Metrics
	Journal Journal
	Now     func() time.Time
}

// ConfigFrom maps the runtime configuration onto engine settings.
func ConfigFrom(cfg ops.Config, metrics *obs.Metrics, journal Journal) Config {
	return Config{
		OrderRetention:  cfg.OrderRetention,
		EvictInterval:   cfg.EvictInterval,
		MaxTradeHistory: cfg.MaxTradeHistory,
		MaxBarHistory:   cfg.MaxBarHistory,
		Risk:            cfg.Risk,
		Metrics:         metrics,
		Journal:         journal,
	}
}

// Snapshot is a consistent copy of the ledgers.
type Snapshot struct {
	Orders    []schema.OrderRecord    `json:"orders"`
	Open      int                     `json:"open"`
	Positions []schema.PositionRecord `json:"positions"`
	TakenAt   time.Time               `json:"takenAt"`
}

type command func(d *Dispatcher)

// Engine runs the dispatcher loop and serves other goroutines through
// commands executed on that loop.
type Engine struct {
	dispatcher    *Dispatcher
	events        *bus.Queue
	commands      chan command
	evictInterval time.Duration

	running atomic.Bool
	stopped chan struct{}
}

// NewEngine wires a strategy to the bus. submitter may be nil, in which case
// every submission fails with exception.ErrEngineStopped.
func NewEngine(cfg Config, strategy Strategy, events *bus.Queue, submitter Submitter) (*Engine, error) {
	if strategy == nil || events == nil {
		return nil, exception.ErrNilInstance
	}
	return &Engine{
		dispatcher:    newDispatcher(cfg, strategy, submitter),
		events:        events,
		commands:      make(chan command),
		evictInterval: cfg.EvictInterval,
		stopped:       make(chan struct{}),
	}, nil
}

// Seed restores positions. It must be called before Run.
func (e *Engine) Seed(positions []schema.PositionRecord) error {
	if e.running.Load() {
		return exception.ErrEngineAlreadyRunning
	}
	e.dispatcher.positions.Seed(positions)
	return nil
}

// Run dispatches events until ctx is done or the bus is closed and drained.
func (e *Engine) Run(ctx context.Context) error {
	if e.running.Swap(true) {
		return exception.ErrEngineAlreadyRunning
	}
	defer close(e.stopped)

	var evict <-chan time.Time
	if e.evictInterval > 0 {
		ticker := time.NewTicker(e.evictInterval)
		defer ticker.Stop()
		evict = ticker.C
	}

	logs.Info("engine: dispatch loop started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-e.events.Events():
			e.dispatcher.Handle(ev)
		case cmd := <-e.commands:
			cmd(e.dispatcher)
		case <-evict:
			e.dispatcher.evict()
		case <-e.events.Done():
			for {
				select {
				case ev := <-e.events.Events():
					e.dispatcher.Handle(ev)
				default:
					logs.Info("engine: bus closed, dispatch loop stopped")
					return nil
				}
			}
		}
	}
}

// Stopped is closed once Run has returned.
func (e *Engine) Stopped() <-chan struct{} {
	return e.stopped
}

// do runs fn on the dispatch loop. ctx bounds only the wait for the loop to
// take the command; once taken, do returns after fn has run.
func (e *Engine) do(ctx context.Context, fn command) error {
	done := make(chan struct{})
	cmd := func(d *Dispatcher) {
		fn(d)
		close(done)
	}
	select {
	case e.commands <- cmd:
	case <-e.stopped:
		return exception.ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

// SubmitOrder submits from outside the dispatcher goroutine.
func (e *Engine) SubmitOrder(ctx context.Context, req schema.OrderRequest) (schema.OrderRecord, error) {
	var (
		rec    schema.OrderRecord
		submit error
	)
	if err := e.do(ctx, func(d *Dispatcher) {
		rec, submit = d.SubmitOrder(req)
	}); err != nil {
		return schema.OrderRecord{}, err
	}
	return rec, submit
}

// Snapshot copies both ledgers.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := e.do(ctx, func(d *Dispatcher) {
		snap = d.snapshot()
	})
	return snap, err
}

// Order looks an order up by client or broker id.
func (e *Engine) Order(ctx context.Context, id string) (schema.OrderRecord, bool, error) {
	var (
		rec schema.OrderRecord
		ok  bool
	)
	err := e.do(ctx, func(d *Dispatcher) {
		rec, ok = d.Order(id)
	})
	return rec, ok, err
}

// Position returns the symbol's position.
func (e *Engine) Position(ctx context.Context, symbol string) (schema.PositionRecord, error) {
	var pos schema.PositionRecord
	err := e.do(ctx, func(d *Dispatcher) {
		pos = d.Position(symbol)
	})
	return pos, err
}

// Positions returns every tracked position. After Run has returned it reads
// the ledger directly, which is how the final checkpoint is taken.
func (e *Engine) Positions(ctx context.Context) ([]schema.PositionRecord, error) {
	select {
	case <-e.stopped:
		return e.dispatcher.positions.Snapshot(), nil
	default:
	}
	var out []schema.PositionRecord
	err := e.do(ctx, func(d *Dispatcher) {
		out = d.positions.Snapshot()
	})
	return out, err
}
