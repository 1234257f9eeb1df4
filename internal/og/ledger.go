// Package og keeps the authoritative view of every order the process has
// submitted.
package og

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// Config controls ledger retention.
type Config struct {
	// Retention is how long terminal orders stay queryable. Zero keeps them
	// forever.
	Retention time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

type entry struct {
	rec        schema.OrderRecord
	applied    bool
	terminalAt time.Time
}

// Outcome describes the effect of one applied update.
type Outcome struct {
	Record   schema.OrderRecord
	Previous schema.OrderState
	// Fill is set when the update carried a new execution. It must be
	// forwarded to the position ledger exactly once.
	Fill *schema.Fill
}

// Changed reports whether the update moved the order to a new state.
func (o Outcome) Changed() bool {
	return o.Previous != o.Record.State
}

// Ledger tracks orders by client id with a broker id index. It is owned by
// a single goroutine and does no locking.
type Ledger struct {
	cfg      Config
	orders   map[string]*entry
	byBroker map[string]string
}

// NewLedger creates an empty ledger.
func NewLedger(cfg Config) *Ledger {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Ledger{
		cfg:      cfg,
		orders:   make(map[string]*entry),
		byBroker: make(map[string]string),
	}
}

// Submit validates and registers a new order. The returned record is in
// Submitted state.
func (l *Ledger) Submit(req schema.OrderRequest) (schema.OrderRecord, error) {
	if err := Validate(req); err != nil {
		return schema.OrderRecord{}, err
	}
	if _, ok := l.orders[req.ClientOrderID]; ok {
		return schema.OrderRecord{}, fmt.Errorf("%w: %s", exception.ErrDuplicateOrder, req.ClientOrderID)
	}

	e := &entry{rec: schema.OrderRecord{
		OrderRequest: req,
		State:        schema.OrderStateCreated,
		AvgFillPrice: decimal.Zero,
		UpdatedAt:    l.cfg.Now(),
	}}
	e.rec.State = schema.OrderStateSubmitted
	l.orders[req.ClientOrderID] = e
	return e.rec, nil
}

// Validate checks the submission constraints of an order request.
func Validate(req schema.OrderRequest) error {
	switch {
	case req.ClientOrderID == "":
		return &exception.InvalidOrderError{Field: "client_order_id", Reason: "empty"}
	case req.Symbol == "":
		return &exception.InvalidOrderError{Field: "symbol", Reason: "empty"}
	case req.Side != schema.OrderSideBuy && req.Side != schema.OrderSideSell:
		return &exception.InvalidOrderError{Field: "side", Reason: "unknown"}
	case req.Type != schema.OrderTypeLimit:
		return &exception.InvalidOrderError{Field: "type", Reason: "only limit orders are accepted"}
	case req.TimeInForce != schema.TimeInForceIOC:
		return &exception.InvalidOrderError{Field: "time_in_force", Reason: "only IOC is accepted"}
	case req.Qty <= 0:
		return &exception.InvalidOrderError{Field: "qty", Reason: "must be positive"}
	case !req.LimitPrice.IsPositive():
		return &exception.InvalidOrderError{Field: "limit_price", Reason: "must be positive"}
	}
	return nil
}

// Remove drops an order that never reached the broker.
func (l *Ledger) Remove(clientOrderID string) {
	e, ok := l.orders[clientOrderID]
	if !ok {
		return
	}
	if e.rec.BrokerOrderID != "" {
		delete(l.byBroker, e.rec.BrokerOrderID)
	}
	delete(l.orders, clientOrderID)
}

// ApplyUpdate applies one order update. Updates at or below the last applied
// sequence of the order are discarded with exception.ErrStaleUpdate.
func (l *Ledger) ApplyUpdate(ev schema.OrderUpdateEvent) (Outcome, error) {
	e := l.lookup(ev.ClientOrderID, ev.BrokerOrderID)
	if e == nil {
		return Outcome{}, fmt.Errorf("%w: client=%q broker=%q", exception.ErrUnknownOrderReference, ev.ClientOrderID, ev.BrokerOrderID)
	}
	rec := &e.rec
	out := Outcome{Previous: rec.State}

	if rec.Halted {
		out.Record = *rec
		return out, fmt.Errorf("%w: %s", exception.ErrOrderHalted, rec.ClientOrderID)
	}
	if e.applied && ev.Sequence <= rec.LastSeq {
		out.Record = *rec
		return out, fmt.Errorf("%w: %s seq %d <= %d", exception.ErrStaleUpdate, rec.ClientOrderID, ev.Sequence, rec.LastSeq)
	}
	if rec.State.Terminal() {
		out.Record = *rec
		return out, fmt.Errorf("%w: %s is %s", exception.ErrOrderTerminal, rec.ClientOrderID, rec.State)
	}

	now := l.cfg.Now()
	e.applied = true
	rec.LastSeq = ev.Sequence
	rec.UpdatedAt = now
	l.bindBroker(e, ev.BrokerOrderID)

	if ev.FilledQty > 0 {
		total := rec.FilledQty + ev.FilledQty
		if total > rec.Qty {
			rec.Halted = true
			e.terminalAt = now
			out.Record = *rec
			return out, &exception.LedgerInconsistencyError{
				ClientOrderID: rec.ClientOrderID,
				Detail:        fmt.Sprintf("fill %d brings total to %d over requested %d", ev.FilledQty, total, rec.Qty),
			}
		}
		rec.AvgFillPrice = rec.AvgFillPrice.Mul(decimal.NewFromInt(int64(rec.FilledQty))).
			Add(ev.FillPrice.Mul(decimal.NewFromInt(int64(ev.FilledQty)))).
			Div(decimal.NewFromInt(int64(total)))
		rec.FilledQty = total
		ts := ev.Timestamp
		if ts.IsZero() {
			ts = now
		}
		out.Fill = &schema.Fill{
			ClientOrderID: rec.ClientOrderID,
			Symbol:        rec.Symbol,
			Qty:           schema.Quantity(rec.Side.Sign()) * ev.FilledQty,
			Price:         ev.FillPrice,
			Sequence:      ev.Sequence,
			Timestamp:     ts,
		}
	}

	if next := nextState(rec, ev.Event); next != rec.State && canTransition(rec.State, next) {
		rec.State = next
		if next.Terminal() {
			e.terminalAt = now
		}
	}
	out.Record = *rec
	return out, nil
}

// ApplySubmission folds the broker's answer to a submission into the
// ledger. A failed submission removes the order unless stream updates have
// already proven it reached the broker.
func (l *Ledger) ApplySubmission(res schema.SubmissionResult) (schema.OrderRecord, error) {
	e, ok := l.orders[res.ClientOrderID]
	if !ok {
		return schema.OrderRecord{}, fmt.Errorf("%w: client=%q", exception.ErrUnknownOrderReference, res.ClientOrderID)
	}
	rec := &e.rec
	now := l.cfg.Now()

	switch res.Status {
	case schema.SubmissionAcked:
		l.bindBroker(e, res.BrokerOrderID)
		if rec.State == schema.OrderStateSubmitted {
			rec.State = schema.OrderStateAcknowledged
			rec.UpdatedAt = now
		}
	case schema.SubmissionRejected:
		l.bindBroker(e, res.BrokerOrderID)
		if canTransition(rec.State, schema.OrderStateRejected) {
			rec.State = schema.OrderStateRejected
			rec.Reason = res.Reason
			rec.UpdatedAt = now
			e.terminalAt = now
		}
	default:
		if rec.State == schema.OrderStateSubmitted && !e.applied {
			l.Remove(rec.ClientOrderID)
			return *rec, nil
		}
	}
	return *rec, nil
}

// Get returns a copy of the order with the given client or broker id.
func (l *Ledger) Get(id string) (schema.OrderRecord, bool) {
	e := l.lookup(id, id)
	if e == nil {
		return schema.OrderRecord{}, false
	}
	return e.rec, true
}

// Open returns copies of all non-terminal orders.
func (l *Ledger) Open() []schema.OrderRecord {
	out := make([]schema.OrderRecord, 0, len(l.orders))
	for _, e := range l.orders {
		if !e.rec.State.Terminal() {
			out = append(out, e.rec)
		}
	}
	sortRecords(out)
	return out
}

// Snapshot returns copies of every tracked order.
func (l *Ledger) Snapshot() []schema.OrderRecord {
	out := make([]schema.OrderRecord, 0, len(l.orders))
	for _, e := range l.orders {
		out = append(out, e.rec)
	}
	sortRecords(out)
	return out
}

// Len returns the number of tracked orders.
func (l *Ledger) Len() int {
	return len(l.orders)
}

// Evict drops terminal and halted orders that ended more than the retention
// window before now. It returns the number of evicted orders.
func (l *Ledger) Evict(now time.Time) int {
	if l.cfg.Retention <= 0 {
		return 0
	}
	cutoff := now.Add(-l.cfg.Retention)
	n := 0
	for id, e := range l.orders {
		if !(e.rec.State.Terminal() || e.rec.Halted) || e.terminalAt.After(cutoff) {
			continue
		}
		l.Remove(id)
		n++
	}
	return n
}

func (l *Ledger) lookup(clientOrderID, brokerOrderID string) *entry {
	if clientOrderID != "" {
		if e, ok := l.orders[clientOrderID]; ok {
			return e
		}
	}
	if brokerOrderID != "" {
		if id, ok := l.byBroker[brokerOrderID]; ok {
			return l.orders[id]
		}
	}
	return nil
}

func (l *Ledger) bindBroker(e *entry, brokerOrderID string) {
	if brokerOrderID == "" || e.rec.BrokerOrderID == brokerOrderID {
		return
	}
	if e.rec.BrokerOrderID != "" {
		delete(l.byBroker, e.rec.BrokerOrderID)
	}
	e.rec.BrokerOrderID = brokerOrderID
	l.byBroker[brokerOrderID] = e.rec.ClientOrderID
}

func sortRecords(recs []schema.OrderRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].UpdatedAt.Equal(recs[j].UpdatedAt) {
			return recs[i].UpdatedAt.Before(recs[j].UpdatedAt)
		}
		return recs[i].ClientOrderID < recs[j].ClientOrderID
	})
}
