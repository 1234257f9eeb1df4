package schema

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderSide describes order direction.
type OrderSide uint16

const (
	OrderSideUnknown OrderSide = iota
	OrderSideBuy
	OrderSideSell
)

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "buy"
	case OrderSideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// Sign returns +1 for buys, -1 for sells and 0 otherwise.
func (s OrderSide) Sign() int64 {
	switch s {
	case OrderSideBuy:
		return 1
	case OrderSideSell:
		return -1
	default:
		return 0
	}
}

// ParseOrderSide maps the wire representation to an OrderSide.
func ParseOrderSide(s string) OrderSide {
	switch s {
	case "buy", "BUY":
		return OrderSideBuy
	case "sell", "SELL":
		return OrderSideSell
	default:
		return OrderSideUnknown
	}
}

// OrderType describes order type.
type OrderType uint16

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeLimit
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeLimit:
		return "limit"
	default:
		return "unknown"
	}
}

// TimeInForce describes order time-in-force.
type TimeInForce uint16

const (
	TimeInForceUnknown TimeInForce = iota
	TimeInForceIOC
)

func (t TimeInForce) String() string {
	switch t {
	case TimeInForceIOC:
		return "IOC"
	default:
		return "unknown"
	}
}

// OrderState tracks the lifecycle of an order.
type OrderState uint16

const (
	OrderStateUnknown OrderState = iota
	OrderStateCreated
	OrderStateSubmitted
	OrderStateAcknowledged
	OrderStatePartiallyFilled
	OrderStateFilled
	OrderStateCanceled
	OrderStateRejected
	OrderStateExpired
)

var orderStateNames = [...]string{
	OrderStateUnknown:         "unknown",
	OrderStateCreated:         "created",
	OrderStateSubmitted:       "submitted",
	OrderStateAcknowledged:    "acknowledged",
	OrderStatePartiallyFilled: "partially_filled",
	OrderStateFilled:          "filled",
	OrderStateCanceled:        "canceled",
	OrderStateRejected:        "rejected",
	OrderStateExpired:         "expired",
}

func (s OrderState) String() string {
	if int(s) < len(orderStateNames) {
		return orderStateNames[s]
	}
	return orderStateNames[OrderStateUnknown]
}

// Terminal reports whether the state accepts no further transitions.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCanceled, OrderStateRejected, OrderStateExpired:
		return true
	default:
		return false
	}
}

// OrderRequest is created by the strategy and owned by the order ledger once
// submitted.
type OrderRequest struct {
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	Type          OrderType
	TimeInForce   TimeInForce
	Qty           Quantity
	LimitPrice    decimal.Decimal
}

// NewClientOrderID returns a fresh client order id.
func NewClientOrderID() string {
	return uuid.NewString()
}

// NewIOCLimit builds an immediate-or-cancel limit order with a fresh id.
func NewIOCLimit(symbol string, side OrderSide, qty Quantity, price decimal.Decimal) OrderRequest {
	return OrderRequest{
		ClientOrderID: NewClientOrderID(),
		Symbol:        symbol,
		Side:          side,
		Type:          OrderTypeLimit,
		TimeInForce:   TimeInForceIOC,
		Qty:           qty,
		LimitPrice:    price,
	}
}

// OrderRecord is the ledger's view of an order.
type OrderRecord struct {
	OrderRequest

	State         OrderState
	FilledQty     Quantity
	AvgFillPrice  decimal.Decimal
	BrokerOrderID string
	LastSeq       uint64
	Reason        string
	Halted        bool
	UpdatedAt     time.Time
}

// LeavesQty is the unfilled remainder.
func (r OrderRecord) LeavesQty() Quantity {
	return r.Qty - r.FilledQty
}

// OrderEvent is the kind of an order update message.
type OrderEvent uint16

const (
	OrderEventUnknown OrderEvent = iota
	OrderEventNew
	OrderEventFill
	OrderEventPartialFill
	OrderEventCanceled
	OrderEventRejected
	OrderEventExpired
)

var orderEventNames = [...]string{
	OrderEventUnknown:     "unknown",
	OrderEventNew:         "new",
	OrderEventFill:        "fill",
	OrderEventPartialFill: "partial_fill",
	OrderEventCanceled:    "canceled",
	OrderEventRejected:    "rejected",
	OrderEventExpired:     "expired",
}

func (e OrderEvent) String() string {
	if int(e) < len(orderEventNames) {
		return orderEventNames[e]
	}
	return orderEventNames[OrderEventUnknown]
}

// ParseOrderEvent maps the wire representation to an OrderEvent.
func ParseOrderEvent(s string) OrderEvent {
	for i, name := range orderEventNames {
		if i != int(OrderEventUnknown) && name == s {
			return OrderEvent(i)
		}
	}
	return OrderEventUnknown
}

// OrderUpdateEvent is a lifecycle update from the broker. FilledQty is the
// fill delta carried by this event.
type OrderUpdateEvent struct {
	Event         OrderEvent
	ClientOrderID string
	BrokerOrderID string
	FilledQty     Quantity
	FillPrice     decimal.Decimal
	Sequence      uint64
	Timestamp     time.Time
}

// SubmissionStatus is the outcome of an outbound order request.
type SubmissionStatus uint16

const (
	SubmissionUnknown SubmissionStatus = iota
	SubmissionAcked
	SubmissionRejected
	SubmissionFailed
)

// SubmissionResult reports the broker response for a submitted order.
type SubmissionResult struct {
	ClientOrderID string
	Status        SubmissionStatus
	BrokerOrderID string
	Reason        string
	Err           error
	Latency       time.Duration
}

func (s SubmissionStatus) String() string {
	switch s {
	case SubmissionAcked:
		return "acked"
	case SubmissionRejected:
		return "rejected"
	case SubmissionFailed:
		return "failed"
	default:
		return "unknown"
	}
}
