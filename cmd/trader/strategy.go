package main

import (
	"github.com/yanun0323/logs"

	"tradecore/internal/core"
	"tradecore/internal/schema"
)

// logStrategy only observes. It logs bars, position changes and stream
// transitions, and never submits.
type logStrategy struct {
	trades map[string]uint64
}

func newLogStrategy() *logStrategy {
	return &logStrategy{trades: make(map[string]uint64)}
}

var (
	_ core.Strategy           = (*logStrategy)(nil)
	_ core.SubmissionListener = (*logStrategy)(nil)
	_ core.StatusListener     = (*logStrategy)(nil)
)

func (s *logStrategy) OnBar(port core.Port, bar schema.MarketBar) error {
	pos := port.Position(bar.Symbol)
	logs.Infof("bar %s close %s volume %d, position %d, trades since last bar %d",
		bar.Symbol, bar.Close, bar.Volume, pos.Qty, s.trades[bar.Symbol])
	s.trades[bar.Symbol] = 0
	return nil
}

func (s *logStrategy) OnTrade(_ core.Port, trade schema.Trade) error {
	s.trades[trade.Symbol]++
	return nil
}

func (s *logStrategy) OnQuote(core.Port, schema.Quote) error {
	return nil
}

func (s *logStrategy) OnPositionChange(_ core.Port, pos schema.PositionRecord) error {
	logs.Infof("position %s qty %d avg cost %s realized %s", pos.Symbol, pos.Qty, pos.AvgCost, pos.RealizedPnL)
	return nil
}

func (s *logStrategy) OnSubmissionResult(_ core.Port, res schema.SubmissionResult, rec schema.OrderRecord) error {
	logs.Infof("order %s %s: %s", rec.ClientOrderID, res.Status, rec.State)
	return nil
}

func (s *logStrategy) OnStreamStatus(_ core.Port, st schema.StreamStatus) error {
	logs.Infof("stream %s is %s (attempt %d)", st.Channel, st.State, st.Attempt)
	return nil
}
