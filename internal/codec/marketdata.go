package codec

import (
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"tradecore/internal/schema"
	"tradecore/pkg/exception"
	"tradecore/pkg/scanner"
)

type wireMarketData struct {
	Type      string           `json:"type"`
	Symbol    string           `json:"symbol"`
	Open      *decimal.Decimal `json:"open"`
	High      *decimal.Decimal `json:"high"`
	Low       *decimal.Decimal `json:"low"`
	Close     *decimal.Decimal `json:"close"`
	Volume    *decimal.Decimal `json:"volume"`
	Price     *decimal.Decimal `json:"price"`
	Size      *decimal.Decimal `json:"size"`
	BidPrice  *decimal.Decimal `json:"bid_price"`
	BidSize   *decimal.Decimal `json:"bid_size"`
	AskPrice  *decimal.Decimal `json:"ask_price"`
	AskSize   *decimal.Decimal `json:"ask_size"`
	Timestamp time.Time        `json:"timestamp"`
}

// DecodeMarketData decodes a market data frame. Messages that fail to decode
// are returned as errors without affecting the others in the same frame.
func DecodeMarketData(frame []byte) ([]Message, []error) {
	raws, err := splitFrame(frame)
	if err != nil {
		return nil, []error{err}
	}
	msgs := make([]Message, 0, len(raws))
	var errs []error
	for _, raw := range raws {
		msg, err := decodeMarketMessage(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, errs
}

func decodeMarketMessage(raw []byte) (Message, error) {
	kind, ok := scanner.ScanStringField(raw, keyType)
	if !ok {
		return Message{}, exception.NewMalformedEventError(raw, missing("type"))
	}
	switch string(kind) {
	case "bar", "trade", "quote":
	default:
		if ck := parseControlKind(string(kind)); ck != ControlUnknown {
			return decodeControl(raw, ck)
		}
		return Message{}, exception.NewMalformedEventError(raw, exception.ErrUnknownMessageType)
	}

	var w wireMarketData
	if err := sonic.Unmarshal(raw, &w); err != nil {
		return Message{}, exception.NewMalformedEventError(raw, err)
	}
	if w.Symbol == "" {
		return Message{}, exception.NewMalformedEventError(raw, missing("symbol"))
	}

	switch w.Type {
	case "bar":
		bar, err := w.bar(raw)
		if err != nil {
			return Message{}, err
		}
		return Message{Type: schema.EventBar, Payload: bar, TsEvent: unixNano(bar.Timestamp)}, nil
	case "trade":
		trade, err := w.trade(raw)
		if err != nil {
			return Message{}, err
		}
		return Message{Type: schema.EventTrade, Payload: trade, TsEvent: unixNano(trade.Timestamp)}, nil
	default:
		quote, err := w.quote(raw)
		if err != nil {
			return Message{}, err
		}
		return Message{Type: schema.EventQuote, Payload: quote, TsEvent: unixNano(quote.Timestamp)}, nil
	}
}

func (w *wireMarketData) bar(raw []byte) (schema.MarketBar, error) {
	prices := []struct {
		name string
		v    *decimal.Decimal
	}{
		{"open", w.Open}, {"high", w.High}, {"low", w.Low}, {"close", w.Close},
	}
	for _, p := range prices {
		if p.v == nil {
			return schema.MarketBar{}, exception.NewMalformedEventError(raw, missing(p.name))
		}
	}
	vol, err := quantity(raw, "volume", w.Volume)
	if err != nil {
		return schema.MarketBar{}, err
	}
	return schema.MarketBar{
		Symbol:    w.Symbol,
		Open:      *w.Open,
		High:      *w.High,
		Low:       *w.Low,
		Close:     *w.Close,
		Volume:    int64(vol),
		Timestamp: w.Timestamp,
	}, nil
}

func (w *wireMarketData) trade(raw []byte) (schema.Trade, error) {
	if w.Price == nil {
		return schema.Trade{}, exception.NewMalformedEventError(raw, missing("price"))
	}
	size, err := quantity(raw, "size", w.Size)
	if err != nil {
		return schema.Trade{}, err
	}
	return schema.Trade{
		Symbol:    w.Symbol,
		Price:     *w.Price,
		Size:      size,
		Timestamp: w.Timestamp,
	}, nil
}

func (w *wireMarketData) quote(raw []byte) (schema.Quote, error) {
	if w.BidPrice == nil {
		return schema.Quote{}, exception.NewMalformedEventError(raw, missing("bid_price"))
	}
	if w.AskPrice == nil {
		return schema.Quote{}, exception.NewMalformedEventError(raw, missing("ask_price"))
	}
	bidSize, err := quantity(raw, "bid_size", w.BidSize)
	if err != nil {
		return schema.Quote{}, err
	}
	askSize, err := quantity(raw, "ask_size", w.AskSize)
	if err != nil {
		return schema.Quote{}, err
	}
	return schema.Quote{
		Symbol:    w.Symbol,
		BidPrice:  *w.BidPrice,
		BidSize:   bidSize,
		AskPrice:  *w.AskPrice,
		AskSize:   askSize,
		Timestamp: w.Timestamp,
	}, nil
}

func unixNano(ts time.Time) int64 {
	if ts.IsZero() {
		return 0
	}
	return ts.UnixNano()
}
