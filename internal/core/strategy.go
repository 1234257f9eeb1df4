package core

import (
	"github.com/shopspring/decimal"

	"tradecore/internal/schema"
)

// Strategy receives market data and position changes. Callbacks run on the
// dispatcher goroutine after the ledgers reflect the triggering event. A
// returned error is logged and counted; it never stops dispatch.
type Strategy interface {
	OnBar(port Port, bar schema.MarketBar) error
	OnTrade(port Port, trade schema.Trade) error
	OnQuote(port Port, quote schema.Quote) error
	OnPositionChange(port Port, position schema.PositionRecord) error
}

// SubmissionListener is optionally implemented by a Strategy to observe the
// broker's answer to its orders.
type SubmissionListener interface {
	OnSubmissionResult(port Port, result schema.SubmissionResult, order schema.OrderRecord) error
}

// StatusListener is optionally implemented by a Strategy to observe
// connection transitions. A reconnect is a gap, not proof of silence.
type StatusListener interface {
	OnStreamStatus(port Port, status schema.StreamStatus) error
}

// Port is the view of the core handed to strategy callbacks. It must only be
// used from within a callback.
type Port interface {
	// SubmitOrder registers the order and queues it for the broker without
	// blocking.
	SubmitOrder(req schema.OrderRequest) (schema.OrderRecord, error)
	Position(symbol string) schema.PositionRecord
	// CheckLimit reports whether delta keeps the symbol within its configured
	// maximum position.
	CheckLimit(symbol string, delta schema.Quantity) bool
	Order(id string) (schema.OrderRecord, bool)
	LastTradePrice(symbol string) (decimal.Decimal, bool)
	LastMidPrice(symbol string) (decimal.Decimal, bool)
	Bars(symbol string, n int) []schema.MarketBar
}

// FlattenRequest builds an IOC limit order that closes position at price.
// It reports false for a flat position.
func FlattenRequest(position schema.PositionRecord, price decimal.Decimal) (schema.OrderRequest, bool) {
	switch {
	case position.Qty > 0:
		return schema.NewIOCLimit(position.Symbol, schema.OrderSideSell, position.Qty, price), true
	case position.Qty < 0:
		return schema.NewIOCLimit(position.Symbol, schema.OrderSideBuy, -position.Qty, price), true
	default:
		return schema.OrderRequest{}, false
	}
}
