package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/schema"
)

func TestSnapshotRoundTrip(t *testing.T) {
	l := NewPositionLedger()
	l.ApplyFill("AAA", 10, px("12.34"))
	l.ApplyFill("BBB", -4, px("99"))
	l.ApplyFill("BBB", 2, px("90"))

	path := filepath.Join(t.TempDir(), "nested", "positions.json")
	want := NewSnapshot(l.Snapshot(), time.Unix(1700000000, 0))
	require.NoError(t, WriteSnapshot(path, want))

	got, err := ReadSnapshot(path)
	require.NoError(t, err)
	require.NoError(t, CompareSnapshots(want, got))
	assert.Equal(t, want.Timestamp, got.Timestamp)

	restored := NewPositionLedger()
	restored.Seed(got.Records())
	b := restored.Position("BBB")
	assert.Equal(t, schema.Quantity(-2), b.Qty)
	assertDecimal(t, "99", b.AvgCost)
	assertDecimal(t, "18", b.RealizedPnL)
}

func TestCompareSnapshotsMismatch(t *testing.T) {
	a := Snapshot{Positions: []PositionEntry{{Symbol: "AAA", Qty: 1}}}
	b := Snapshot{Positions: []PositionEntry{{Symbol: "AAA", Qty: 2}}}
	c := Snapshot{Positions: []PositionEntry{{Symbol: "ZZZ", Qty: 1}}}
	assert.Error(t, CompareSnapshots(a, b))
	assert.Error(t, CompareSnapshots(a, c))
	assert.Error(t, CompareSnapshots(a, Snapshot{}))
}

type fakeSource struct {
	positions []schema.PositionRecord
	err       error
}

func (f fakeSource) Positions(context.Context) ([]schema.PositionRecord, error) {
	return f.positions, f.err
}

func TestRecoverPositions(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "positions.json")
	require.NoError(t, WriteSnapshot(path, NewSnapshot([]schema.PositionRecord{{Symbol: "SNAP", Qty: 5, AvgCost: px("1")}}, time.Now())))

	broker := fakeSource{positions: []schema.PositionRecord{{Symbol: "LIVE", Qty: 3, AvgCost: px("2")}}}
	res, err := RecoverPositions(ctx, RecoverConfig{Broker: broker, SnapshotPath: path})
	require.NoError(t, err)
	assert.Equal(t, RecoverBroker, res.Source)
	require.Len(t, res.Positions, 1)
	assert.Equal(t, "LIVE", res.Positions[0].Symbol)

	down := fakeSource{err: errors.New("connection refused")}
	res, err = RecoverPositions(ctx, RecoverConfig{Broker: down, SnapshotPath: path})
	require.NoError(t, err)
	assert.Equal(t, RecoverSnapshot, res.Source)
	require.Len(t, res.Positions, 1)
	assert.Equal(t, "SNAP", res.Positions[0].Symbol)

	_, err = RecoverPositions(ctx, RecoverConfig{Broker: down})
	assert.Error(t, err)

	res, err = RecoverPositions(ctx, RecoverConfig{SnapshotPath: filepath.Join(t.TempDir(), "missing.json")})
	require.NoError(t, err)
	assert.Equal(t, RecoverNone, res.Source)
	assert.Empty(t, res.Positions)
}
