package state

import (
	"github.com/shopspring/decimal"

	"tradecore/internal/schema"
)

const (
	DefaultMaxTradeHistory = 100
	DefaultMaxBarHistory   = 500
)

// MarketCache keeps the latest market view per symbol. Owned by the
// dispatcher goroutine.
type MarketCache struct {
	maxTrades int
	maxBars   int
	symbols   map[string]*symbolCache
}

type symbolCache struct {
	lastTrade schema.Trade
	hasTrade  bool
	lastQuote schema.Quote
	hasQuote  bool
	trades    ring[schema.Trade]
	bars      ring[schema.MarketBar]
}

// NewMarketCache creates a cache with bounded trade and bar histories.
// Non-positive bounds fall back to the defaults.
func NewMarketCache(maxTrades, maxBars int) *MarketCache {
	if maxTrades <= 0 {
		maxTrades = DefaultMaxTradeHistory
	}
	if maxBars <= 0 {
		maxBars = DefaultMaxBarHistory
	}
	return &MarketCache{
		maxTrades: maxTrades,
		maxBars:   maxBars,
		symbols:   make(map[string]*symbolCache),
	}
}

func (c *MarketCache) symbol(s string) *symbolCache {
	sc, ok := c.symbols[s]
	if !ok {
		sc = &symbolCache{
			trades: newRing[schema.Trade](c.maxTrades),
			bars:   newRing[schema.MarketBar](c.maxBars),
		}
		c.symbols[s] = sc
	}
	return sc
}

func (c *MarketCache) ApplyTrade(t schema.Trade) {
	sc := c.symbol(t.Symbol)
	sc.lastTrade = t
	sc.hasTrade = true
	sc.trades.push(t)
}

func (c *MarketCache) ApplyQuote(q schema.Quote) {
	sc := c.symbol(q.Symbol)
	sc.lastQuote = q
	sc.hasQuote = true
}

func (c *MarketCache) ApplyBar(b schema.MarketBar) {
	c.symbol(b.Symbol).bars.push(b)
}

// LastTradePrice returns the most recent trade price.
func (c *MarketCache) LastTradePrice(symbol string) (decimal.Decimal, bool) {
	sc, ok := c.symbols[symbol]
	if !ok || !sc.hasTrade {
		return decimal.Zero, false
	}
	return sc.lastTrade.Price, true
}

// LastQuote returns the most recent top of book.
func (c *MarketCache) LastQuote(symbol string) (schema.Quote, bool) {
	sc, ok := c.symbols[symbol]
	if !ok || !sc.hasQuote {
		return schema.Quote{}, false
	}
	return sc.lastQuote, true
}

// LastMidPrice returns the mid of the latest quote.
func (c *MarketCache) LastMidPrice(symbol string) (decimal.Decimal, bool) {
	q, ok := c.LastQuote(symbol)
	if !ok {
		return decimal.Zero, false
	}
	return q.MidPrice()
}

// Trades returns up to the last n trades, oldest first. n <= 0 returns all
// retained trades.
func (c *MarketCache) Trades(symbol string, n int) []schema.Trade {
	sc, ok := c.symbols[symbol]
	if !ok {
		return nil
	}
	return sc.trades.last(n)
}

// Bars returns up to the last n bars, oldest first. n <= 0 returns all
// retained bars.
func (c *MarketCache) Bars(symbol string, n int) []schema.MarketBar {
	sc, ok := c.symbols[symbol]
	if !ok {
		return nil
	}
	return sc.bars.last(n)
}

// ReferencePrice prefers the mid price and falls back to the last trade.
func (c *MarketCache) ReferencePrice(symbol string) (decimal.Decimal, bool) {
	if mid, ok := c.LastMidPrice(symbol); ok {
		return mid, true
	}
	return c.LastTradePrice(symbol)
}

type ring[T any] struct {
	buf   []T
	start int
	size  int
}

func newRing[T any](capacity int) ring[T] {
	return ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring[T]) last(n int) []T {
	if n <= 0 || n > r.size {
		n = r.size
	}
	out := make([]T, n)
	offset := r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.start+offset+i)%len(r.buf)]
	}
	return out
}
