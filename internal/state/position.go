package state

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/schema"
)

// PositionLedger keeps one weighted-average position per symbol. It is owned
// by the dispatcher goroutine and does no locking.
type PositionLedger struct {
	positions map[string]*schema.PositionRecord
	now       func() time.Time
}

// NewPositionLedger creates an empty ledger.
func NewPositionLedger() *PositionLedger {
	return &PositionLedger{
		positions: make(map[string]*schema.PositionRecord),
		now:       time.Now,
	}
}

// ApplyFill folds a signed execution into the symbol's position and returns
// the new record.
func (l *PositionLedger) ApplyFill(symbol string, qty schema.Quantity, price decimal.Decimal) schema.PositionRecord {
	p, ok := l.positions[symbol]
	if !ok {
		p = &schema.PositionRecord{Symbol: symbol, AvgCost: decimal.Zero, RealizedPnL: decimal.Zero}
		l.positions[symbol] = p
	}
	if qty == 0 {
		return *p
	}

	cur := p.Qty
	next := cur + qty
	switch {
	case cur == 0 || (cur > 0) == (qty > 0):
		// opening or adding
		p.AvgCost = p.AvgCost.Mul(decimal.NewFromInt(int64(cur.Abs()))).
			Add(price.Mul(decimal.NewFromInt(int64(qty.Abs())))).
			Div(decimal.NewFromInt(int64(next.Abs())))
	default:
		closed := qty.Abs()
		if closed > cur.Abs() {
			closed = cur.Abs()
		}
		pnl := price.Sub(p.AvgCost).Mul(decimal.NewFromInt(int64(closed)))
		if cur < 0 {
			pnl = pnl.Neg()
		}
		p.RealizedPnL = p.RealizedPnL.Add(pnl)
		switch {
		case next == 0:
			p.AvgCost = decimal.Zero
		case (next > 0) != (cur > 0):
			p.AvgCost = price
		}
	}
	p.Qty = next
	p.UpdatedAt = l.now()
	return *p
}

// Position returns the symbol's position, flat if unknown.
func (l *PositionLedger) Position(symbol string) schema.PositionRecord {
	if p, ok := l.positions[symbol]; ok {
		return *p
	}
	return schema.PositionRecord{Symbol: symbol, AvgCost: decimal.Zero, RealizedPnL: decimal.Zero}
}

// CheckLimit reports whether applying delta keeps the absolute position
// within max. A max of zero or less means unlimited, and deltas that reduce
// exposure are always allowed.
func (l *PositionLedger) CheckLimit(symbol string, delta, max schema.Quantity) bool {
	if max <= 0 {
		return true
	}
	cur := l.Position(symbol).Qty
	next := cur + delta
	if next.Abs() <= cur.Abs() {
		return true
	}
	return next.Abs() <= max
}

// Seed replaces all positions, typically from a checkpoint or the broker.
func (l *PositionLedger) Seed(records []schema.PositionRecord) {
	l.positions = make(map[string]*schema.PositionRecord, len(records))
	for _, r := range records {
		if r.Symbol == "" {
			continue
		}
		rec := r
		if rec.Qty == 0 {
			rec.AvgCost = decimal.Zero
		}
		l.positions[r.Symbol] = &rec
	}
}

// Snapshot returns copies of every position, sorted by symbol.
func (l *PositionLedger) Snapshot() []schema.PositionRecord {
	out := make([]schema.PositionRecord, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// Count returns the number of tracked symbols.
func (l *PositionLedger) Count() int {
	return len(l.positions)
}
