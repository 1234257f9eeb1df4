package store

import (
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/schema"
)

// OrderRow is the latest journaled state of an order.
type OrderRow struct {
	ClientOrderID string          `gorm:"primaryKey;size:64"`
	BrokerOrderID string          `gorm:"index;size:64"`
	Symbol        string          `gorm:"index;size:32"`
	Side          string          `gorm:"size:8"`
	Type          string          `gorm:"size:16"`
	TimeInForce   string          `gorm:"size:8"`
	Qty           int64           `gorm:"not null"`
	LimitPrice    decimal.Decimal `gorm:"type:numeric"`
	State         string          `gorm:"index;size:20"`
	FilledQty     int64           `gorm:"not null"`
	AvgFillPrice  decimal.Decimal `gorm:"type:numeric"`
	LastSeq       int64
	Reason        string
	Halted        bool
	UpdatedAt     time.Time
}

func (OrderRow) TableName() string { return "orders" }

// FillRow is one confirmed execution. (client_order_id, sequence) is unique
// so replays are ignored.
type FillRow struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement"`
	ClientOrderID string          `gorm:"size:64;uniqueIndex:idx_fill_order_seq"`
	Sequence      int64           `gorm:"uniqueIndex:idx_fill_order_seq"`
	Symbol        string          `gorm:"index;size:32"`
	Qty           int64           `gorm:"not null"`
	Price         decimal.Decimal `gorm:"type:numeric"`
	Timestamp     time.Time
}

func (FillRow) TableName() string { return "fills" }

// PositionRow is the latest position per symbol.
type PositionRow struct {
	Symbol      string          `gorm:"primaryKey;size:32"`
	Qty         int64           `gorm:"not null"`
	AvgCost     decimal.Decimal `gorm:"type:numeric"`
	RealizedPnL decimal.Decimal `gorm:"column:realized_pnl;type:numeric"`
	UpdatedAt   time.Time
}

func (PositionRow) TableName() string { return "positions" }

func orderRow(r schema.OrderRecord) OrderRow {
	return OrderRow{
		ClientOrderID: r.ClientOrderID,
		BrokerOrderID: r.BrokerOrderID,
		Symbol:        r.Symbol,
		Side:          r.Side.String(),
		Type:          r.Type.String(),
		TimeInForce:   r.TimeInForce.String(),
		Qty:           int64(r.Qty),
		LimitPrice:    r.LimitPrice,
		State:         r.State.String(),
		FilledQty:     int64(r.FilledQty),
		AvgFillPrice:  r.AvgFillPrice,
		LastSeq:       int64(r.LastSeq),
		Reason:        r.Reason,
		Halted:        r.Halted,
		UpdatedAt:     r.UpdatedAt,
	}
}

func fillRow(f schema.Fill) FillRow {
	return FillRow{
		ClientOrderID: f.ClientOrderID,
		Sequence:      int64(f.Sequence),
		Symbol:        f.Symbol,
		Qty:           int64(f.Qty),
		Price:         f.Price,
		Timestamp:     f.Timestamp,
	}
}

func positionRow(p schema.PositionRecord) PositionRow {
	return PositionRow{
		Symbol:      p.Symbol,
		Qty:         int64(p.Qty),
		AvgCost:     p.AvgCost,
		RealizedPnL: p.RealizedPnL,
		UpdatedAt:   p.UpdatedAt,
	}
}

// Record converts a journaled position back into a ledger record.
func (p PositionRow) Record() schema.PositionRecord {
	return schema.PositionRecord{
		Symbol:      p.Symbol,
		Qty:         schema.Quantity(p.Qty),
		AvgCost:     p.AvgCost,
		RealizedPnL: p.RealizedPnL,
		UpdatedAt:   p.UpdatedAt,
	}
}
