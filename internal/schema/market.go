package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quantity is a signed share count.
type Quantity int64

// Abs returns the absolute quantity.
func (q Quantity) Abs() Quantity {
	if q < 0 {
		return -q
	}
	return q
}

// MarketBar is an aggregated OHLCV bar. Immutable once received.
type MarketBar struct {
	Symbol    string
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
	Timestamp time.Time
}

// Trade is a single print on the tape.
type Trade struct {
	Symbol    string
	Price     decimal.Decimal
	Size      Quantity
	Timestamp time.Time
}

// Quote is the top of book.
type Quote struct {
	Symbol    string
	BidPrice  decimal.Decimal
	BidSize   Quantity
	AskPrice  decimal.Decimal
	AskSize   Quantity
	Timestamp time.Time
}

// MidPrice returns the average of bid and ask rounded to cents.
// It reports false when either side of the book is empty.
func (q Quote) MidPrice() (decimal.Decimal, bool) {
	if q.BidPrice.IsZero() || q.AskPrice.IsZero() {
		return decimal.Zero, false
	}
	return q.BidPrice.Add(q.AskPrice).Div(decimal.NewFromInt(2)).Round(2), true
}
