// Command chaos drives randomly generated order lifecycles through the
// dispatcher with duplicated, reordered or dropped order updates and checks
// that the resulting positions equal the signed sum of the unique fills.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"
	"github.com/yanun0323/logs"

	"tradecore/internal/bus"
	"tradecore/internal/chaos"
	"tradecore/internal/core"
	"tradecore/internal/obs"
	"tradecore/internal/schema"
	"tradecore/internal/state"
)

func main() {
	orders := flag.Int("orders", 200, "Number of orders to simulate")
	symbolList := flag.String("symbols", "AAA,BBB,CCC", "Comma separated symbols")
	seed := flag.Int64("seed", 0, "RNG seed (0=now)")
	dropRate := flag.Float64("drop-rate", 0, "Drop probability [0-1]")
	dupRate := flag.Float64("dup-rate", 0.3, "Duplicate probability [0-1]")
	reorderWindow := flag.Int("reorder-window", 8, "Reorder window (>=1)")
	snapshotPath := flag.String("snapshot", "", "Write the resulting positions to this checkpoint file")
	flag.Parse()

	if *orders <= 0 {
		log.Fatalf("orders must be > 0")
	}
	symbols := strings.Split(*symbolList, ",")
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	injector, err := chaos.NewEngine(chaos.Config{
		Seed:          *seed,
		DropRate:      *dropRate,
		DuplicateRate: *dupRate,
		ReorderWindow: *reorderWindow,
	})
	if err != nil {
		log.Fatalf("chaos config invalid: %v", err)
	}

	ctx := context.Background()
	metrics := obs.NewMetrics()
	// seven updates per order at most, each delivered at most twice
	events := bus.NewQueue(*orders * 14)
	engine, err := core.NewEngine(core.Config{Metrics: metrics}, quietStrategy{}, events, acceptAll{})
	if err != nil {
		log.Fatalf("engine init failed: %v", err)
	}

	var wg conc.WaitGroup
	wg.Go(func() {
		if err := engine.Run(ctx); err != nil {
			logs.Errorf("engine stopped, err: %+v", err)
		}
	})

	rng := rand.New(rand.NewSource(*seed))
	expected := state.NewPositionLedger()
	var updates []bus.Event
	for i := 0; i < *orders; i++ {
		req := randomOrder(rng, symbols)
		if _, err := engine.SubmitOrder(ctx, req); err != nil {
			log.Fatalf("submit %s failed: %v", req.ClientOrderID, err)
		}
		for _, u := range lifecycle(rng, req) {
			if u.FilledQty > 0 {
				expected.ApplyFill(req.Symbol, u.FilledQty*schema.Quantity(req.Side.Sign()), u.FillPrice)
			}
			updates = append(updates, bus.Event{Payload: u})
		}
	}

	delivered := injector.Apply(updates)
	now := time.Now().UnixNano()
	for i, ev := range delivered {
		ev.Header = schema.NewHeader(schema.EventOrderUpdate, schema.ChannelOrderUpdates, uint64(i+1), now, now)
		if err := events.TryPublish(ev); err != nil {
			log.Fatalf("publish failed: %v", err)
		}
	}
	events.Close()
	wg.Wait()

	positions, err := engine.Positions(ctx)
	if err != nil {
		log.Fatalf("read positions failed: %v", err)
	}
	snap := metrics.Snapshot()
	stats := injector.Stats()
	logs.Infof("seed %d: %d updates generated, %d dropped, %d duplicated, %d moved, %d delivered",
		*seed, stats.Seen, stats.Dropped, stats.Duplicated, stats.Moved, len(delivered))
	logs.Infof("dispatcher discarded %d stale updates, %d inconsistencies", snap.DuplicateUpdates, snap.Inconsistencies)

	actual := state.NewSnapshot(positions, time.Now())
	if *snapshotPath != "" {
		if err := state.WriteSnapshot(*snapshotPath, actual); err != nil {
			log.Fatalf("write snapshot failed: %v", err)
		}
	}
	if err := state.CompareSnapshots(state.NewSnapshot(expected.Snapshot(), time.Now()), actual); err != nil {
		log.Fatalf("positions diverged: %v", err)
	}
	logs.Infof("positions match across %d symbols", len(positions))
}

func randomOrder(rng *rand.Rand, symbols []string) schema.OrderRequest {
	side := schema.OrderSideBuy
	if rng.Intn(2) == 0 {
		side = schema.OrderSideSell
	}
	qty := schema.Quantity(rng.Int63n(500) + 1)
	price := decimal.New(rng.Int63n(10000)+100, -2)
	return schema.NewIOCLimit(symbols[rng.Intn(len(symbols))], side, qty, price)
}

// lifecycle draws an ack, up to five fill deltas that never exceed the
// requested quantity and, when something is left, a cancel.
func lifecycle(rng *rand.Rand, req schema.OrderRequest) []schema.OrderUpdateEvent {
	brokerID := "b-" + req.ClientOrderID
	seq := uint64(1)
	out := []schema.OrderUpdateEvent{{Event: schema.OrderEventNew, ClientOrderID: req.ClientOrderID, BrokerOrderID: brokerID, Sequence: seq}}

	var filled schema.Quantity
	for n := rng.Intn(6); n > 0 && filled < req.Qty; n-- {
		seq++
		delta := schema.Quantity(rng.Int63n(int64(req.Qty-filled)) + 1)
		filled += delta
		ev := schema.OrderEventPartialFill
		if filled == req.Qty {
			ev = schema.OrderEventFill
		}
		out = append(out, schema.OrderUpdateEvent{
			Event:         ev,
			ClientOrderID: req.ClientOrderID,
			BrokerOrderID: brokerID,
			FilledQty:     delta,
			FillPrice:     req.LimitPrice,
			Sequence:      seq,
		})
	}
	if filled < req.Qty {
		seq++
		out = append(out, schema.OrderUpdateEvent{Event: schema.OrderEventCanceled, ClientOrderID: req.ClientOrderID, BrokerOrderID: brokerID, Sequence: seq})
	}
	return out
}

type acceptAll struct{}

func (acceptAll) Handle(schema.OrderRequest) error { return nil }

type quietStrategy struct{}

func (quietStrategy) OnBar(core.Port, schema.MarketBar) error { return nil }
func (quietStrategy) OnTrade(core.Port, schema.Trade) error { return nil }
func (quietStrategy) OnQuote(core.Port, schema.Quote) error { return nil }
func (quietStrategy) OnPositionChange(core.Port, schema.PositionRecord) error { return nil }
