package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill is a confirmed execution forwarded from the order ledger to the
// position ledger. Qty is signed: positive buys, negative sells.
type Fill struct {
	ClientOrderID string
	Symbol        string
	Qty           Quantity
	Price         decimal.Decimal
	Sequence      uint64
	Timestamp     time.Time
}

// PositionRecord is the current holding of one instrument.
type PositionRecord struct {
	Symbol      string
	Qty         Quantity
	AvgCost     decimal.Decimal
	RealizedPnL decimal.Decimal
	UpdatedAt   time.Time
}

// Flat reports whether the position holds nothing.
func (p PositionRecord) Flat() bool {
	return p.Qty == 0
}
