package core

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"tradecore/internal/bus"
	"tradecore/internal/obs"
	"tradecore/internal/og"
	"tradecore/internal/risk"
	"tradecore/internal/schema"
	"tradecore/internal/state"
	"tradecore/pkg/exception"
)

// Submitter queues an order request for the broker without blocking.
type Submitter interface {
	Handle(req schema.OrderRequest) error
}

// Journal records ledger changes off the hot path. Implementations must not
// block.
type Journal interface {
	RecordOrder(rec schema.OrderRecord)
	RecordFill(fill schema.Fill)
	RecordPosition(pos schema.PositionRecord)
}

// Dispatcher owns the ledgers. Every method must be called from the single
// dispatch goroutine; it also serves as the Port handed to the strategy.
type Dispatcher struct {
	orders    *og.Ledger
	positions *state.PositionLedger
	market    *state.MarketCache
	risk      *risk.Engine

	strategy  Strategy
	submitter Submitter
	journal   Journal
	metrics   *obs.Metrics
	now       func() time.Time
}

var _ Port = (*Dispatcher)(nil)

func newDispatcher(cfg Config, strategy Strategy, submitter Submitter) *Dispatcher {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		orders:    og.NewLedger(og.Config{Retention: cfg.OrderRetention, Now: now}),
		positions: state.NewPositionLedger(),
		market:    state.NewMarketCache(cfg.MaxTradeHistory, cfg.MaxBarHistory),
		risk:      risk.NewEngine(cfg.Risk),
		strategy:  strategy,
		submitter: submitter,
		journal:   cfg.Journal,
		metrics:   cfg.Metrics,
		now:       now,
	}
}

// Handle processes one bus event: ledgers first, then the strategy.
func (d *Dispatcher) Handle(e bus.Event) {
	start := time.Now()
	d.metrics.ObserveEvent(e.Header)
	defer func() {
		d.metrics.ObserveDispatch(time.Since(start))
	}()

	switch p := e.Payload.(type) {
	case schema.MarketBar:
		d.market.ApplyBar(p)
		d.invoke("OnBar", func() error { return d.strategy.OnBar(d, p) })
	case schema.Trade:
		d.market.ApplyTrade(p)
		d.invoke("OnTrade", func() error { return d.strategy.OnTrade(d, p) })
	case schema.Quote:
		d.market.ApplyQuote(p)
		d.invoke("OnQuote", func() error { return d.strategy.OnQuote(d, p) })
	case schema.OrderUpdateEvent:
		d.handleOrderUpdate(p)
	case schema.SubmissionResult:
		d.handleSubmission(p)
	case schema.StreamStatus:
		d.handleStatus(p)
	default:
		logs.Errorf("dispatcher: drop event %s with payload %T", e.Header.Type, e.Payload)
	}
}

func (d *Dispatcher) handleOrderUpdate(ev schema.OrderUpdateEvent) {
	out, err := d.orders.ApplyUpdate(ev)
	if err != nil {
		var inconsistency *exception.LedgerInconsistencyError
		switch {
		case errors.Is(err, exception.ErrStaleUpdate), errors.Is(err, exception.ErrOrderTerminal):
			d.metrics.IncDuplicateUpdate()
			logs.Infof("dispatcher: discard %s update, err: %v", ev.Event, err)
		case errors.Is(err, exception.ErrUnknownOrderReference):
			d.metrics.IncUnknownRef()
			logs.Infof("dispatcher: ignore %s update, err: %v", ev.Event, err)
		case errors.As(err, &inconsistency):
			d.metrics.IncInconsistency()
			logs.Errorf("dispatcher: halt order, err: %+v", err)
			d.recordOrder(out.Record)
		default:
			logs.Errorf("dispatcher: apply %s update failed, err: %+v", ev.Event, err)
		}
		return
	}

	if out.Changed() || out.Fill != nil {
		d.recordOrder(out.Record)
	}
	if out.Fill == nil {
		return
	}

	fill := *out.Fill
	pos := d.positions.ApplyFill(fill.Symbol, fill.Qty, fill.Price)
	if d.journal != nil {
		d.journal.RecordFill(fill)
		d.journal.RecordPosition(pos)
	}
	d.invoke("OnPositionChange", func() error { return d.strategy.OnPositionChange(d, pos) })
}

func (d *Dispatcher) handleSubmission(res schema.SubmissionResult) {
	rec, err := d.orders.ApplySubmission(res)
	if err != nil {
		d.metrics.IncUnknownRef()
		logs.Infof("dispatcher: ignore submission result %s, err: %v", res.Status, err)
		return
	}
	d.recordOrder(rec)

	if l, ok := d.strategy.(SubmissionListener); ok {
		d.invoke("OnSubmissionResult", func() error { return l.OnSubmissionResult(d, res, rec) })
	}
}

func (d *Dispatcher) handleStatus(st schema.StreamStatus) {
	if l, ok := d.strategy.(StatusListener); ok {
		d.invoke("OnStreamStatus", func() error { return l.OnStreamStatus(d, st) })
	}
}

// invoke runs a strategy callback, recovering panics.
func (d *Dispatcher) invoke(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.IncCallbackPanic()
			logs.Errorf("strategy %s panic: %v\n%s", name, r, debug.Stack())
		}
	}()
	if err := fn(); err != nil {
		d.metrics.IncCallbackError()
		logs.Errorf("strategy %s failed, err: %+v", name, err)
	}
}

func (d *Dispatcher) recordOrder(rec schema.OrderRecord) {
	if d.journal != nil {
		d.journal.RecordOrder(rec)
	}
}

// SubmitOrder validates, applies pre-trade guards, registers the order and
// queues it. An empty client id is filled in. The record is rolled back when
// the queue refuses the request.
func (d *Dispatcher) SubmitOrder(req schema.OrderRequest) (schema.OrderRecord, error) {
	if req.ClientOrderID == "" {
		req.ClientOrderID = schema.NewClientOrderID()
	}
	if err := og.Validate(req); err != nil {
		d.metrics.IncSubmitRejected()
		return schema.OrderRecord{}, err
	}
	if _, exists := d.orders.Get(req.ClientOrderID); exists {
		d.metrics.IncSubmitRejected()
		return schema.OrderRecord{}, fmt.Errorf("%w: %s", exception.ErrDuplicateOrder, req.ClientOrderID)
	}

	ref, _ := d.market.ReferencePrice(req.Symbol)
	decision := d.risk.Evaluate(req, risk.StateView{
		Position:       d.positions.Position(req.Symbol).Qty,
		ReferencePrice: ref,
		Now:            d.now(),
	})
	if !decision.Allowed {
		d.metrics.IncSubmitRejected()
		return schema.OrderRecord{}, &exception.RiskDeniedError{ClientOrderID: req.ClientOrderID, Reason: decision.Reason.String()}
	}

	rec, err := d.orders.Submit(req)
	if err != nil {
		d.metrics.IncSubmitRejected()
		return schema.OrderRecord{}, err
	}
	if d.submitter == nil {
		d.orders.Remove(req.ClientOrderID)
		return schema.OrderRecord{}, exception.ErrEngineStopped
	}
	if err := d.submitter.Handle(req); err != nil {
		d.orders.Remove(req.ClientOrderID)
		d.metrics.IncSubmitRejected()
		return schema.OrderRecord{}, err
	}
	d.recordOrder(rec)
	return rec, nil
}

func (d *Dispatcher) Position(symbol string) schema.PositionRecord {
	return d.positions.Position(symbol)
}

func (d *Dispatcher) CheckLimit(symbol string, delta schema.Quantity) bool {
	return d.positions.CheckLimit(symbol, delta, d.risk.MaxPosition(symbol))
}

func (d *Dispatcher) Order(id string) (schema.OrderRecord, bool) {
	return d.orders.Get(id)
}

func (d *Dispatcher) LastTradePrice(symbol string) (decimal.Decimal, bool) {
	return d.market.LastTradePrice(symbol)
}

func (d *Dispatcher) LastMidPrice(symbol string) (decimal.Decimal, bool) {
	return d.market.LastMidPrice(symbol)
}

func (d *Dispatcher) Bars(symbol string, n int) []schema.MarketBar {
	return d.market.Bars(symbol, n)
}

// evict drops terminal orders past the retention window.
func (d *Dispatcher) evict() {
	if n := d.orders.Evict(d.now()); n > 0 {
		logs.Infof("dispatcher: evicted %d terminal orders", n)
	}
}

func (d *Dispatcher) snapshot() Snapshot {
	return Snapshot{
		Orders:    d.orders.Snapshot(),
		Open:      len(d.orders.Open()),
		Positions: d.positions.Snapshot(),
		TakenAt:   d.now(),
	}
}
