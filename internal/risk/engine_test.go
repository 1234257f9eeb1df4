package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"tradecore/internal/schema"
)

func order(side schema.OrderSide, qty schema.Quantity, price string) schema.OrderRequest {
	return schema.NewIOCLimit("SYM", side, qty, decimal.RequireFromString(price))
}

func TestEvaluateDefaultsAllowEverything(t *testing.T) {
	e := NewEngine(Config{})
	d := e.Evaluate(order(schema.OrderSideBuy, 1_000_000, "1"), StateView{})
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonNone, d.Reason)
	assert.Zero(t, e.MaxPosition("SYM"))
}

func TestEvaluateKillSwitch(t *testing.T) {
	d := NewEngine(Config{KillSwitch: true}).Evaluate(order(schema.OrderSideBuy, 1, "1"), StateView{})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonKillSwitch, d.Reason)
}

func TestEvaluateRateLimitWindow(t *testing.T) {
	e := NewEngine(Config{OrderRateLimit: 2, OrderRateWindow: time.Second})
	now := time.Unix(100, 0)
	req := order(schema.OrderSideBuy, 1, "1")

	assert.True(t, e.Evaluate(req, StateView{Now: now}).Allowed)
	assert.True(t, e.Evaluate(req, StateView{Now: now}).Allowed)
	assert.Equal(t, ReasonRateLimit, e.Evaluate(req, StateView{Now: now}).Reason)
	assert.True(t, e.Evaluate(req, StateView{Now: now.Add(time.Second)}).Allowed)
}

func TestEvaluateMaxQtyAndPriceBand(t *testing.T) {
	e := NewEngine(Config{MaxOrderQty: 100, MaxPriceDeviationBps: 100})

	assert.Equal(t, ReasonMaxQty, e.Evaluate(order(schema.OrderSideBuy, 101, "10"), StateView{}).Reason)

	ref := StateView{ReferencePrice: decimal.NewFromInt(10)}
	assert.True(t, e.Evaluate(order(schema.OrderSideBuy, 10, "10.10"), ref).Allowed)
	assert.Equal(t, ReasonPriceBand, e.Evaluate(order(schema.OrderSideBuy, 10, "10.11"), ref).Reason)
}

func TestPositionLimitTable(t *testing.T) {
	cfg := Config{
		DefaultMaxPosition:   50,
		MaxPosition:          map[string]schema.Quantity{"SYM": 100},
		EnforcePositionLimit: true,
	}
	e := NewEngine(cfg)
	assert.Equal(t, schema.Quantity(100), e.MaxPosition("SYM"))
	assert.Equal(t, schema.Quantity(50), e.MaxPosition("OTHER"))

	assert.True(t, e.Evaluate(order(schema.OrderSideBuy, 40, "1"), StateView{Position: 60}).Allowed)
	assert.Equal(t, ReasonPositionLimit, e.Evaluate(order(schema.OrderSideBuy, 41, "1"), StateView{Position: 60}).Reason)
	// reducing exposure is never blocked, even from beyond the limit
	assert.True(t, e.Evaluate(order(schema.OrderSideSell, 10, "1"), StateView{Position: 150}).Allowed)
}
