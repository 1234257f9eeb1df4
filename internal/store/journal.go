// Package store journals order, fill and position changes to postgres off
// the dispatch goroutine.
package store

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"tradecore/internal/obs"
	"tradecore/internal/schema"
)

const (
	DefaultQueueSize = 1024
	maxBatch         = 256
	flushTimeout     = 5 * time.Second
)

type entryKind uint8

const (
	entryOrder entryKind = iota + 1
	entryFill
	entryPosition
)

type entry struct {
	kind     entryKind
	order    schema.OrderRecord
	fill     schema.Fill
	position schema.PositionRecord
}

// Journal queues ledger changes and writes them in batches. Appends never
// block; a full queue drops the entry and counts it.
type Journal struct {
	sink    Sink
	metrics *obs.Metrics
	queue   chan entry
	drops   atomic.Uint64
}

func NewJournal(sink Sink, queueSize int, metrics *obs.Metrics) *Journal {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Journal{
		sink:    sink,
		metrics: metrics,
		queue:   make(chan entry, queueSize),
	}
}

func (j *Journal) RecordOrder(rec schema.OrderRecord) {
	j.TryAppend(entry{kind: entryOrder, order: rec})
}

func (j *Journal) RecordFill(fill schema.Fill) {
	j.TryAppend(entry{kind: entryFill, fill: fill})
}

func (j *Journal) RecordPosition(pos schema.PositionRecord) {
	j.TryAppend(entry{kind: entryPosition, position: pos})
}

// TryAppend enqueues an entry without blocking and reports whether it was
// accepted.
func (j *Journal) TryAppend(e entry) bool {
	select {
	case j.queue <- e:
		return true
	default:
		j.metrics.IncJournalDrop()
		if n := j.drops.Add(1); n == 1 || n%1000 == 0 {
			logs.Errorf("journal queue full, %d entries dropped so far", n)
		}
		return false
	}
}

// Dropped returns the number of entries lost to a full queue.
func (j *Journal) Dropped() uint64 {
	return j.drops.Load()
}

// Run writes queued entries until ctx is done, then flushes what is left.
func (j *Journal) Run(ctx context.Context) {
	batch := make([]entry, 0, maxBatch)
	for {
		select {
		case <-ctx.Done():
			batch = j.collect(batch)
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			j.flush(flushCtx, batch)
			cancel()
			return
		case e := <-j.queue:
			batch = j.collect(append(batch, e))
			j.flush(ctx, batch)
			batch = batch[:0]
		}
	}
}

// collect drains whatever is queued without waiting, up to maxBatch.
func (j *Journal) collect(batch []entry) []entry {
	for len(batch) < maxBatch {
		select {
		case e := <-j.queue:
			batch = append(batch, e)
		default:
			return batch
		}
	}
	return batch
}

// flush writes a batch. Within a batch only the latest order and position
// state per key is written.
func (j *Journal) flush(ctx context.Context, batch []entry) {
	if len(batch) == 0 {
		return
	}
	var (
		orders    []OrderRow
		fills     []FillRow
		positions []PositionRow
		orderIdx  = make(map[string]int)
		posIdx    = make(map[string]int)
	)
	for _, e := range batch {
		switch e.kind {
		case entryOrder:
			row := orderRow(e.order)
			if i, ok := orderIdx[row.ClientOrderID]; ok {
				orders[i] = row
				continue
			}
			orderIdx[row.ClientOrderID] = len(orders)
			orders = append(orders, row)
		case entryFill:
			fills = append(fills, fillRow(e.fill))
		case entryPosition:
			row := positionRow(e.position)
			if i, ok := posIdx[row.Symbol]; ok {
				positions[i] = row
				continue
			}
			posIdx[row.Symbol] = len(positions)
			positions = append(positions, row)
		}
	}

	if err := j.sink.SaveOrders(ctx, orders); err != nil {
		logs.Errorf("journal: save orders failed, err: %+v", err)
	}
	if err := j.sink.SaveFills(ctx, fills); err != nil {
		logs.Errorf("journal: save fills failed, err: %+v", err)
	}
	if err := j.sink.SavePositions(ctx, positions); err != nil {
		logs.Errorf("journal: save positions failed, err: %+v", err)
	}
}
