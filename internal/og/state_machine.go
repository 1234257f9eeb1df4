package og

import "tradecore/internal/schema"

// canTransition reports whether an order may move from one state to another.
// Submitted may skip Acknowledged because a stream update can overtake the
// REST acknowledgment.
func canTransition(from, to schema.OrderState) bool {
	if from == to {
		return to == schema.OrderStatePartiallyFilled
	}
	if from.Terminal() {
		return false
	}
	switch to {
	case schema.OrderStateSubmitted:
		return from == schema.OrderStateCreated
	case schema.OrderStateAcknowledged:
		return from == schema.OrderStateSubmitted
	case schema.OrderStatePartiallyFilled, schema.OrderStateFilled,
		schema.OrderStateCanceled, schema.OrderStateExpired:
		return from != schema.OrderStateCreated
	case schema.OrderStateRejected:
		return from == schema.OrderStateSubmitted || from == schema.OrderStateAcknowledged
	default:
		return false
	}
}

// nextState derives the state an update leads to. Fill states follow the
// cumulative quantity rather than the event name.
func nextState(rec *schema.OrderRecord, ev schema.OrderEvent) schema.OrderState {
	if rec.FilledQty > 0 && rec.FilledQty == rec.Qty {
		return schema.OrderStateFilled
	}
	switch ev {
	case schema.OrderEventNew:
		if rec.State == schema.OrderStateSubmitted {
			return schema.OrderStateAcknowledged
		}
		return rec.State
	case schema.OrderEventFill, schema.OrderEventPartialFill:
		if rec.FilledQty > 0 {
			return schema.OrderStatePartiallyFilled
		}
		return rec.State
	case schema.OrderEventCanceled:
		return schema.OrderStateCanceled
	case schema.OrderEventExpired:
		return schema.OrderStateExpired
	case schema.OrderEventRejected:
		if rec.FilledQty > 0 {
			return schema.OrderStateCanceled
		}
		return schema.OrderStateRejected
	default:
		return rec.State
	}
}
