package chaos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/bus"
	"tradecore/internal/schema"
)

func update(id string, seq uint64) bus.Event {
	return bus.Event{
		Header:  schema.NewHeader(schema.EventOrderUpdate, schema.ChannelOrderUpdates, seq, 0, 0),
		Payload: schema.OrderUpdateEvent{ClientOrderID: id, Sequence: seq},
	}
}

func TestConfigValidate(t *testing.T) {
	_, err := NewEngine(Config{DropRate: 2})
	require.Error(t, err)
	_, err = NewEngine(Config{DuplicateRate: -1})
	require.Error(t, err)
	_, err = NewEngine(Config{MaxDelay: -1})
	require.Error(t, err)
}

func TestReorderKeepsPerOrderSequence(t *testing.T) {
	var events []bus.Event
	for seq := uint64(1); seq <= 20; seq++ {
		events = append(events, update("a", seq), update("b", seq), update("c", seq))
	}

	for seed := int64(1); seed <= 20; seed++ {
		e, err := NewEngine(Config{Seed: seed, ReorderWindow: 8, DuplicateRate: 0.3})
		require.NoError(t, err)
		out := e.Apply(events)
		stats := e.Stats()
		require.Equal(t, len(events), stats.Seen)
		require.Len(t, out, len(events)+stats.Duplicated)

		last := map[string]uint64{}
		unique := map[string]map[uint64]bool{}
		for _, ev := range out {
			u := ev.Payload.(schema.OrderUpdateEvent)
			assert.GreaterOrEqual(t, u.Sequence, last[u.ClientOrderID], "seed %d order %s", seed, u.ClientOrderID)
			last[u.ClientOrderID] = u.Sequence
			if unique[u.ClientOrderID] == nil {
				unique[u.ClientOrderID] = map[uint64]bool{}
			}
			unique[u.ClientOrderID][u.Sequence] = true
		}
		for _, id := range []string{"a", "b", "c"} {
			assert.Len(t, unique[id], 20)
		}
	}
}

func TestDropAll(t *testing.T) {
	e, err := NewEngine(Config{Seed: 1, DropRate: 1})
	require.NoError(t, err)
	assert.Empty(t, e.Apply([]bus.Event{update("a", 1), update("a", 2)}))
	assert.Equal(t, Stats{Seen: 2, Dropped: 2}, e.Stats())
}

func TestNilEnginePassesThrough(t *testing.T) {
	var e *Engine
	ev := update("a", 1)
	assert.Equal(t, []bus.Event{ev}, e.Process(ev))
	assert.Nil(t, e.Flush())
	assert.Zero(t, e.Stats())
}
