package codec

import (
	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// TradeUpdatesStream is the order update stream name used when listening.
const TradeUpdatesStream = "trade_updates"

type authRequest struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

// EncodeAuth builds the authentication frame sent right after connecting.
func EncodeAuth(key, secret string) ([]byte, error) {
	return sonic.Marshal(authRequest{Action: "auth", Key: key, Secret: secret})
}

type subscribeRequest struct {
	Action string   `json:"action"`
	Bars   []string `json:"bars"`
	Trades []string `json:"trades"`
	Quotes []string `json:"quotes"`
}

// Subscription lists the symbols requested per market data kind.
type Subscription struct {
	Bars   []string
	Trades []string
	Quotes []string
}

// Empty reports whether nothing is requested.
func (s Subscription) Empty() bool {
	return len(s.Bars) == 0 && len(s.Trades) == 0 && len(s.Quotes) == 0
}

// EncodeSubscribe builds a market data subscription frame.
func EncodeSubscribe(sub Subscription) ([]byte, error) {
	return sonic.Marshal(subscribeRequest{
		Action: "subscribe",
		Bars:   nonNil(sub.Bars),
		Trades: nonNil(sub.Trades),
		Quotes: nonNil(sub.Quotes),
	})
}

type listenRequest struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

// EncodeListen builds the order update listen frame.
func EncodeListen(streams ...string) ([]byte, error) {
	return sonic.Marshal(listenRequest{Action: "listen", Streams: nonNil(streams)})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type orderRequest struct {
	ClientOrderID string          `json:"client_order_id"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Qty           int64           `json:"qty"`
	LimitPrice    decimal.Decimal `json:"limit_price"`
	Type          string          `json:"type"`
	TimeInForce   string          `json:"time_in_force"`
}

// EncodeOrderRequest builds the REST body for an order submission.
func EncodeOrderRequest(req schema.OrderRequest) ([]byte, error) {
	return sonic.Marshal(orderRequest{
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side.String(),
		Qty:           int64(req.Qty),
		LimitPrice:    req.LimitPrice,
		Type:          req.Type.String(),
		TimeInForce:   req.TimeInForce.String(),
	})
}

// OrderReply is the broker answer to a submission.
type OrderReply struct {
	BrokerOrderID string
	Rejected      bool
	Reason        string
}

type wireOrderReply struct {
	ID            string `json:"id"`
	BrokerOrderID string `json:"broker_order_id"`
	Status        string `json:"status"`
	Reason        string `json:"reason"`
	Message       string `json:"message"`
}

// DecodeOrderReply interprets a REST submission response. Non-2xx statuses
// are rejections; a body that cannot be read is returned as an error.
func DecodeOrderReply(statusCode int, body []byte) (OrderReply, error) {
	var w wireOrderReply
	if len(body) > 0 {
		if err := sonic.Unmarshal(body, &w); err != nil && statusCode/100 == 2 {
			return OrderReply{}, exception.ErrOrderDecodeResponse
		}
	}
	reason := w.Reason
	if reason == "" {
		reason = w.Message
	}

	if statusCode/100 != 2 {
		if reason == "" {
			reason = string(body)
		}
		return OrderReply{Rejected: true, Reason: reason}, nil
	}

	id := w.BrokerOrderID
	if id == "" {
		id = w.ID
	}
	if w.Status == "rejected" {
		return OrderReply{BrokerOrderID: id, Rejected: true, Reason: reason}, nil
	}
	if id == "" {
		return OrderReply{}, exception.ErrOrderEmptyResponseID
	}
	return OrderReply{BrokerOrderID: id}, nil
}

type wirePosition struct {
	Symbol        string           `json:"symbol"`
	Qty           *decimal.Decimal `json:"qty"`
	AvgEntryPrice *decimal.Decimal `json:"avg_entry_price"`
	Side          string           `json:"side"`
}

// DecodePositions parses the broker positions listing.
func DecodePositions(body []byte) ([]schema.PositionRecord, error) {
	var ws []wirePosition
	if err := sonic.Unmarshal(body, &ws); err != nil {
		return nil, exception.NewMalformedEventError(body, err)
	}
	out := make([]schema.PositionRecord, 0, len(ws))
	for _, w := range ws {
		if w.Symbol == "" {
			return nil, exception.NewMalformedEventError(body, missing("symbol"))
		}
		qty, err := quantity(body, "qty", w.Qty)
		if err != nil {
			return nil, err
		}
		if w.Side == "short" && qty > 0 {
			qty = -qty
		}
		cost := decimal.Zero
		if w.AvgEntryPrice != nil {
			cost = *w.AvgEntryPrice
		}
		out = append(out, schema.PositionRecord{Symbol: w.Symbol, Qty: qty, AvgCost: cost})
	}
	return out, nil
}
