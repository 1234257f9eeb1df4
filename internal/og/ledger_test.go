package og

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func newLedger(retention time.Duration) (*Ledger, *clock) {
	c := &clock{now: time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)}
	return NewLedger(Config{Retention: retention, Now: c.Now}), c
}

func buy(id string, qty schema.Quantity) schema.OrderRequest {
	req := schema.NewIOCLimit("SYM", schema.OrderSideBuy, qty, decimal.NewFromInt(10))
	req.ClientOrderID = id
	return req
}

func upd(id string, ev schema.OrderEvent, qty schema.Quantity, price string, seq uint64) schema.OrderUpdateEvent {
	u := schema.OrderUpdateEvent{Event: ev, ClientOrderID: id, FilledQty: qty, Sequence: seq}
	if price != "" {
		u.FillPrice = decimal.RequireFromString(price)
	}
	return u
}

func TestSubmitValidation(t *testing.T) {
	l, _ := newLedger(0)

	rec, err := l.Submit(buy("c1", 100))
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStateSubmitted, rec.State)
	assert.Zero(t, rec.FilledQty)

	_, err = l.Submit(buy("c1", 50))
	assert.ErrorIs(t, err, exception.ErrDuplicateOrder)

	bad := map[string]func(*schema.OrderRequest){
		"qty":           func(r *schema.OrderRequest) { r.Qty = 0 },
		"limit_price":   func(r *schema.OrderRequest) { r.LimitPrice = decimal.Zero },
		"side":          func(r *schema.OrderRequest) { r.Side = schema.OrderSideUnknown },
		"time_in_force": func(r *schema.OrderRequest) { r.TimeInForce = schema.TimeInForceUnknown },
		"type":          func(r *schema.OrderRequest) { r.Type = schema.OrderTypeUnknown },
		"symbol":        func(r *schema.OrderRequest) { r.Symbol = "" },
	}
	for field, mutate := range bad {
		t.Run(field, func(t *testing.T) {
			req := buy("x-"+field, 10)
			mutate(&req)
			_, err := l.Submit(req)
			var invalid *exception.InvalidOrderError
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, field, invalid.Field)
		})
	}
	assert.Equal(t, 1, l.Len())
}

func TestPartialThenFill(t *testing.T) {
	l, _ := newLedger(0)
	_, err := l.Submit(buy("c1", 100))
	require.NoError(t, err)

	out, err := l.ApplyUpdate(upd("c1", schema.OrderEventNew, 0, "", 1))
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStateAcknowledged, out.Record.State)
	assert.Nil(t, out.Fill)

	out, err = l.ApplyUpdate(upd("c1", schema.OrderEventPartialFill, 60, "10", 2))
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStatePartiallyFilled, out.Record.State)
	require.NotNil(t, out.Fill)
	assert.Equal(t, schema.Quantity(60), out.Fill.Qty)

	out, err = l.ApplyUpdate(upd("c1", schema.OrderEventFill, 40, "10", 3))
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStateFilled, out.Record.State)
	assert.Equal(t, schema.Quantity(100), out.Record.FilledQty)
	assert.True(t, out.Changed())
	assert.True(t, out.Record.AvgFillPrice.Equal(decimal.NewFromInt(10)))
}

func TestDuplicateUpdateIgnored(t *testing.T) {
	l, _ := newLedger(0)
	_, err := l.Submit(buy("c1", 100))
	require.NoError(t, err)

	_, err = l.ApplyUpdate(upd("c1", schema.OrderEventPartialFill, 60, "10", 2))
	require.NoError(t, err)
	out, err := l.ApplyUpdate(upd("c1", schema.OrderEventPartialFill, 60, "10", 2))
	assert.ErrorIs(t, err, exception.ErrStaleUpdate)
	assert.Nil(t, out.Fill)
	assert.False(t, out.Changed())

	_, err = l.ApplyUpdate(upd("c1", schema.OrderEventPartialFill, 10, "10", 1))
	assert.ErrorIs(t, err, exception.ErrStaleUpdate)

	rec, ok := l.Get("c1")
	require.True(t, ok)
	assert.Equal(t, schema.Quantity(60), rec.FilledQty)
	assert.Equal(t, uint64(2), rec.LastSeq)
}

func TestAveragesFillPrice(t *testing.T) {
	l, _ := newLedger(0)
	_, err := l.Submit(buy("c1", 100))
	require.NoError(t, err)

	_, err = l.ApplyUpdate(upd("c1", schema.OrderEventPartialFill, 25, "10", 1))
	require.NoError(t, err)
	out, err := l.ApplyUpdate(upd("c1", schema.OrderEventPartialFill, 75, "12", 2))
	require.NoError(t, err)
	assert.True(t, out.Record.AvgFillPrice.Equal(decimal.RequireFromString("11.5")), "avg %s", out.Record.AvgFillPrice)
	assert.Equal(t, schema.OrderStateFilled, out.Record.State)
}

func TestUpdateOvertakesAck(t *testing.T) {
	l, _ := newLedger(0)
	_, err := l.Submit(buy("c1", 100))
	require.NoError(t, err)

	out, err := l.ApplyUpdate(upd("c1", schema.OrderEventFill, 100, "10", 1))
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStateSubmitted, out.Previous)
	assert.Equal(t, schema.OrderStateFilled, out.Record.State)

	rec, err := l.ApplySubmission(schema.SubmissionResult{ClientOrderID: "c1", Status: schema.SubmissionAcked, BrokerOrderID: "b1"})
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStateFilled, rec.State)
	assert.Equal(t, "b1", rec.BrokerOrderID)
}

func TestTerminalOrdersIgnoreUpdates(t *testing.T) {
	l, _ := newLedger(0)
	_, err := l.Submit(buy("c1", 100))
	require.NoError(t, err)
	_, err = l.ApplyUpdate(upd("c1", schema.OrderEventCanceled, 0, "", 1))
	require.NoError(t, err)

	out, err := l.ApplyUpdate(upd("c1", schema.OrderEventFill, 10, "10", 2))
	assert.ErrorIs(t, err, exception.ErrOrderTerminal)
	assert.Nil(t, out.Fill)
	assert.Equal(t, schema.OrderStateCanceled, out.Record.State)
}

func TestCancelAfterPartialKeepsFill(t *testing.T) {
	l, _ := newLedger(0)
	_, err := l.Submit(buy("c1", 100))
	require.NoError(t, err)
	_, err = l.ApplyUpdate(upd("c1", schema.OrderEventPartialFill, 30, "10", 1))
	require.NoError(t, err)

	out, err := l.ApplyUpdate(upd("c1", schema.OrderEventCanceled, 0, "", 2))
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStateCanceled, out.Record.State)
	assert.Equal(t, schema.Quantity(30), out.Record.FilledQty)
	assert.Equal(t, schema.Quantity(70), out.Record.LeavesQty())
}

func TestOverfillHaltsOrder(t *testing.T) {
	l, _ := newLedger(0)
	_, err := l.Submit(buy("c1", 100))
	require.NoError(t, err)
	_, err = l.Submit(buy("c2", 10))
	require.NoError(t, err)

	_, err = l.ApplyUpdate(upd("c1", schema.OrderEventPartialFill, 60, "10", 1))
	require.NoError(t, err)

	out, err := l.ApplyUpdate(upd("c1", schema.OrderEventFill, 50, "10", 2))
	var inconsistent *exception.LedgerInconsistencyError
	require.True(t, errors.As(err, &inconsistent))
	assert.Equal(t, "c1", inconsistent.ClientOrderID)
	assert.Nil(t, out.Fill)
	assert.True(t, out.Record.Halted)
	assert.Equal(t, schema.Quantity(60), out.Record.FilledQty)

	_, err = l.ApplyUpdate(upd("c1", schema.OrderEventFill, 40, "10", 3))
	assert.ErrorIs(t, err, exception.ErrOrderHalted)

	out, err = l.ApplyUpdate(upd("c2", schema.OrderEventFill, 10, "10", 1))
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStateFilled, out.Record.State)
}

func TestEvictHaltedOrders(t *testing.T) {
	l, c := newLedger(time.Hour)
	_, err := l.Submit(buy("halted", 10))
	require.NoError(t, err)
	_, err = l.Submit(buy("live", 10))
	require.NoError(t, err)
	_, err = l.ApplyUpdate(upd("halted", schema.OrderEventFill, 20, "10", 1))
	require.Error(t, err)

	assert.Zero(t, l.Evict(c.now.Add(30*time.Minute)))
	rec, ok := l.Get("halted")
	require.True(t, ok)
	assert.True(t, rec.Halted)

	assert.Equal(t, 1, l.Evict(c.now.Add(2*time.Hour)))
	_, ok = l.Get("halted")
	assert.False(t, ok)
	_, ok = l.Get("live")
	assert.True(t, ok)
}

func TestUnknownReference(t *testing.T) {
	l, _ := newLedger(0)
	_, err := l.ApplyUpdate(upd("ghost", schema.OrderEventFill, 1, "1", 1))
	assert.ErrorIs(t, err, exception.ErrUnknownOrderReference)

	_, err = l.ApplySubmission(schema.SubmissionResult{ClientOrderID: "ghost", Status: schema.SubmissionAcked})
	assert.ErrorIs(t, err, exception.ErrUnknownOrderReference)
}

func TestBrokerIDLookup(t *testing.T) {
	l, _ := newLedger(0)
	_, err := l.Submit(buy("c1", 100))
	require.NoError(t, err)
	_, err = l.ApplySubmission(schema.SubmissionResult{ClientOrderID: "c1", Status: schema.SubmissionAcked, BrokerOrderID: "b1"})
	require.NoError(t, err)

	out, err := l.ApplyUpdate(schema.OrderUpdateEvent{
		Event:         schema.OrderEventPartialFill,
		BrokerOrderID: "b1",
		FilledQty:     5,
		FillPrice:     decimal.NewFromInt(10),
		Sequence:      4,
	})
	require.NoError(t, err)
	assert.Equal(t, "c1", out.Record.ClientOrderID)
	assert.Equal(t, "c1", out.Fill.ClientOrderID)

	rec, ok := l.Get("b1")
	require.True(t, ok)
	assert.Equal(t, schema.OrderStatePartiallyFilled, rec.State)
}

func TestApplySubmissionOutcomes(t *testing.T) {
	l, _ := newLedger(0)
	for _, id := range []string{"ack", "rej", "fail", "fail-after-fill"} {
		_, err := l.Submit(buy(id, 10))
		require.NoError(t, err)
	}

	rec, err := l.ApplySubmission(schema.SubmissionResult{ClientOrderID: "ack", Status: schema.SubmissionAcked, BrokerOrderID: "b-ack"})
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStateAcknowledged, rec.State)

	rec, err = l.ApplySubmission(schema.SubmissionResult{ClientOrderID: "rej", Status: schema.SubmissionRejected, Reason: "insufficient buying power"})
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStateRejected, rec.State)
	assert.Equal(t, "insufficient buying power", rec.Reason)

	_, err = l.ApplySubmission(schema.SubmissionResult{ClientOrderID: "fail", Status: schema.SubmissionFailed, Err: &exception.SubmissionTimeoutError{ClientOrderID: "fail"}})
	require.NoError(t, err)
	_, ok := l.Get("fail")
	assert.False(t, ok)

	_, err = l.ApplyUpdate(upd("fail-after-fill", schema.OrderEventPartialFill, 5, "10", 1))
	require.NoError(t, err)
	_, err = l.ApplySubmission(schema.SubmissionResult{ClientOrderID: "fail-after-fill", Status: schema.SubmissionFailed})
	require.NoError(t, err)
	rec, ok = l.Get("fail-after-fill")
	require.True(t, ok)
	assert.Equal(t, schema.Quantity(5), rec.FilledQty)

	open := l.Open()
	require.Len(t, open, 2)
	assert.Len(t, l.Snapshot(), 3)
}

func TestEvictTerminalOrders(t *testing.T) {
	l, c := newLedger(time.Hour)
	_, err := l.Submit(buy("done", 10))
	require.NoError(t, err)
	_, err = l.Submit(buy("live", 10))
	require.NoError(t, err)
	_, err = l.ApplySubmission(schema.SubmissionResult{ClientOrderID: "done", Status: schema.SubmissionAcked, BrokerOrderID: "b-done"})
	require.NoError(t, err)
	_, err = l.ApplyUpdate(upd("done", schema.OrderEventFill, 10, "10", 1))
	require.NoError(t, err)

	assert.Zero(t, l.Evict(c.now.Add(30*time.Minute)))

	c.now = c.now.Add(3 * time.Hour)
	assert.Equal(t, 1, l.Evict(c.now))
	_, ok := l.Get("done")
	assert.False(t, ok)
	_, ok = l.Get("b-done")
	assert.False(t, ok)
	_, ok = l.Get("live")
	assert.True(t, ok)

	l2, _ := newLedger(0)
	_, err = l2.Submit(buy("c1", 10))
	require.NoError(t, err)
	_, err = l2.ApplyUpdate(upd("c1", schema.OrderEventExpired, 0, "", 1))
	require.NoError(t, err)
	assert.Zero(t, l2.Evict(c.now.Add(1000*time.Hour)))
}
