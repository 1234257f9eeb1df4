package probe

import (
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/schema"
)

type HealthResponse struct {
	Status     string            `json:"status"`
	Streams    map[string]string `json:"streams"`
	OpenOrders int               `json:"openOrders"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type OrderView struct {
	ClientOrderID string          `json:"clientOrderId"`
	BrokerOrderID string          `json:"brokerOrderId,omitempty"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Qty           int64           `json:"qty"`
	LimitPrice    decimal.Decimal `json:"limitPrice"`
	State         string          `json:"state"`
	FilledQty     int64           `json:"filledQty"`
	AvgFillPrice  decimal.Decimal `json:"avgFillPrice"`
	LastSeq       uint64          `json:"lastSeq"`
	Reason        string          `json:"reason,omitempty"`
	Halted        bool            `json:"halted,omitempty"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type PositionView struct {
	Symbol      string          `json:"symbol"`
	Qty         int64           `json:"qty"`
	AvgCost     decimal.Decimal `json:"avgCost"`
	RealizedPnL decimal.Decimal `json:"realizedPnl"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func orderView(r schema.OrderRecord) OrderView {
	return OrderView{
		ClientOrderID: r.ClientOrderID,
		BrokerOrderID: r.BrokerOrderID,
		Symbol:        r.Symbol,
		Side:          r.Side.String(),
		Qty:           int64(r.Qty),
		LimitPrice:    r.LimitPrice,
		State:         r.State.String(),
		FilledQty:     int64(r.FilledQty),
		AvgFillPrice:  r.AvgFillPrice,
		LastSeq:       r.LastSeq,
		Reason:        r.Reason,
		Halted:        r.Halted,
		UpdatedAt:     r.UpdatedAt,
	}
}

func positionView(p schema.PositionRecord) PositionView {
	return PositionView{
		Symbol:      p.Symbol,
		Qty:         int64(p.Qty),
		AvgCost:     p.AvgCost,
		RealizedPnL: p.RealizedPnL,
		UpdatedAt:   p.UpdatedAt,
	}
}
