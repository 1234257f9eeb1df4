package codec

import (
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"tradecore/internal/schema"
	"tradecore/pkg/exception"
	"tradecore/pkg/scanner"
)

type wireOrderUpdate struct {
	Event         string           `json:"event"`
	ClientOrderID string           `json:"client_order_id"`
	BrokerOrderID string           `json:"broker_order_id"`
	FilledQty     *decimal.Decimal `json:"filled_qty"`
	FillPrice     *decimal.Decimal `json:"fill_price"`
	Sequence      *uint64          `json:"sequence"`
	Timestamp     time.Time        `json:"timestamp"`
}

// DecodeOrderUpdates decodes an order update frame. Frames without an
// "event" field are treated as control frames.
func DecodeOrderUpdates(frame []byte) ([]Message, []error) {
	raws, err := splitFrame(frame)
	if err != nil {
		return nil, []error{err}
	}
	msgs := make([]Message, 0, len(raws))
	var errs []error
	for _, raw := range raws {
		msg, err := decodeOrderMessage(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, errs
}

func decodeOrderMessage(raw []byte) (Message, error) {
	if !scanner.HasField(raw, keyEvent) {
		kind, ok := scanner.ScanStringField(raw, keyType)
		if !ok {
			return Message{}, exception.NewMalformedEventError(raw, missing("event"))
		}
		ck := parseControlKind(string(kind))
		if ck == ControlUnknown {
			return Message{}, exception.NewMalformedEventError(raw, exception.ErrUnknownMessageType)
		}
		return decodeControl(raw, ck)
	}

	var w wireOrderUpdate
	if err := sonic.Unmarshal(raw, &w); err != nil {
		return Message{}, exception.NewMalformedEventError(raw, err)
	}
	ev := schema.ParseOrderEvent(w.Event)
	if ev == schema.OrderEventUnknown {
		return Message{}, exception.NewMalformedEventError(raw, exception.ErrUnknownMessageType)
	}
	if w.ClientOrderID == "" && w.BrokerOrderID == "" {
		return Message{}, exception.NewMalformedEventError(raw, missing("client_order_id"))
	}
	if w.Sequence == nil {
		return Message{}, exception.NewMalformedEventError(raw, missing("sequence"))
	}

	var filled schema.Quantity
	if w.FilledQty != nil {
		q, err := quantity(raw, "filled_qty", w.FilledQty)
		if err != nil {
			return Message{}, err
		}
		if q < 0 {
			return Message{}, exception.NewMalformedEventError(raw, &fieldError{field: "filled_qty", reason: "negative"})
		}
		filled = q
	}
	price := decimal.Zero
	if filled > 0 {
		if w.FillPrice == nil {
			return Message{}, exception.NewMalformedEventError(raw, missing("fill_price"))
		}
		if !w.FillPrice.IsPositive() {
			return Message{}, exception.NewMalformedEventError(raw, &fieldError{field: "fill_price", reason: "not positive"})
		}
		price = *w.FillPrice
	}

	update := schema.OrderUpdateEvent{
		Event:         ev,
		ClientOrderID: w.ClientOrderID,
		BrokerOrderID: w.BrokerOrderID,
		FilledQty:     filled,
		FillPrice:     price,
		Sequence:      *w.Sequence,
		Timestamp:     w.Timestamp,
	}
	return Message{Type: schema.EventOrderUpdate, Payload: update, TsEvent: unixNano(w.Timestamp)}, nil
}
