package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/schema"
)

// Reason explains a risk decision.
type Reason uint16

const (
	ReasonNone Reason = iota
	ReasonKillSwitch
	ReasonRateLimit
	ReasonMaxQty
	ReasonPriceBand
	ReasonPositionLimit
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonKillSwitch:
		return "kill_switch"
	case ReasonRateLimit:
		return "rate_limit"
	case ReasonMaxQty:
		return "max_order_qty"
	case ReasonPriceBand:
		return "price_band"
	case ReasonPositionLimit:
		return "position_limit"
	default:
		return "unknown"
	}
}

// Config defines simple risk limits. Zero values disable a check.
type Config struct {
	KillSwitch           bool
	MaxOrderQty          schema.Quantity
	OrderRateLimit       int
	OrderRateWindow      time.Duration
	MaxPriceDeviationBps int64
	DefaultMaxPosition   schema.Quantity
	MaxPosition          map[string]schema.Quantity
	// EnforcePositionLimit turns the position check into a hard guard. By
	// default it is only reported through Engine.MaxPosition.
	EnforcePositionLimit bool
}

// StateView provides the current position and reference price.
type StateView struct {
	Position       schema.Quantity
	ReferencePrice decimal.Decimal
	Now            time.Time
}

// Decision is the result of Evaluate.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Engine evaluates pre-trade guards. Not safe for concurrent use; the
// dispatcher owns it.
type Engine struct {
	cfg             Config
	rateWindowStart time.Time
	rateCount       int
}

// NewEngine creates a risk engine with static limits.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// MaxPosition returns the absolute position limit for symbol, or zero when
// unlimited.
func (e *Engine) MaxPosition(symbol string) schema.Quantity {
	if max, ok := e.cfg.MaxPosition[symbol]; ok {
		return max
	}
	return e.cfg.DefaultMaxPosition
}

// Evaluate applies the configured guards to an order request.
func (e *Engine) Evaluate(req schema.OrderRequest, state StateView) Decision {
	now := state.Now
	if now.IsZero() {
		now = time.Now()
	}

	if e.cfg.KillSwitch {
		return deny(ReasonKillSwitch)
	}

	if e.cfg.OrderRateLimit > 0 && e.cfg.OrderRateWindow > 0 {
		if e.rateWindowStart.IsZero() || now.Sub(e.rateWindowStart) >= e.cfg.OrderRateWindow {
			e.rateWindowStart = now
			e.rateCount = 0
		}
		e.rateCount++
		if e.rateCount > e.cfg.OrderRateLimit {
			return deny(ReasonRateLimit)
		}
	}

	if e.cfg.MaxOrderQty > 0 && req.Qty > e.cfg.MaxOrderQty {
		return deny(ReasonMaxQty)
	}

	if e.cfg.MaxPriceDeviationBps > 0 && state.ReferencePrice.IsPositive() && req.LimitPrice.IsPositive() {
		if exceedsDeviation(req.LimitPrice, state.ReferencePrice, e.cfg.MaxPriceDeviationBps) {
			return deny(ReasonPriceBand)
		}
	}

	if e.cfg.EnforcePositionLimit {
		max := e.MaxPosition(req.Symbol)
		next := state.Position + schema.Quantity(req.Side.Sign())*req.Qty
		if max > 0 && next.Abs() > max && next.Abs() > state.Position.Abs() {
			return deny(ReasonPositionLimit)
		}
	}

	return Decision{Allowed: true, Reason: ReasonNone}
}

func deny(reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

func exceedsDeviation(price, ref decimal.Decimal, bps int64) bool {
	diff := price.Sub(ref).Abs()
	limit := ref.Mul(decimal.NewFromInt(bps)).Div(decimal.NewFromInt(10000))
	return diff.GreaterThan(limit)
}
