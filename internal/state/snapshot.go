package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"tradecore/internal/schema"
)

// Snapshot is the on-disk position checkpoint.
type Snapshot struct {
	Timestamp int64           `json:"timestamp"`
	Positions []PositionEntry `json:"positions"`
}

// PositionEntry is a single symbol position entry.
type PositionEntry struct {
	Symbol      string          `json:"symbol"`
	Qty         schema.Quantity `json:"qty"`
	AvgCost     decimal.Decimal `json:"avgCost"`
	RealizedPnL decimal.Decimal `json:"realizedPnl"`
}

// NewSnapshot builds a checkpoint from position records.
func NewSnapshot(records []schema.PositionRecord, at time.Time) Snapshot {
	entries := make([]PositionEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, PositionEntry{
			Symbol:      r.Symbol,
			Qty:         r.Qty,
			AvgCost:     r.AvgCost,
			RealizedPnL: r.RealizedPnL,
		})
	}
	return Snapshot{Timestamp: at.UTC().UnixNano(), Positions: entries}
}

// Records converts a checkpoint back into position records.
func (s Snapshot) Records() []schema.PositionRecord {
	at := time.Unix(0, s.Timestamp).UTC()
	out := make([]schema.PositionRecord, 0, len(s.Positions))
	for _, e := range s.Positions {
		out = append(out, schema.PositionRecord{
			Symbol:      e.Symbol,
			Qty:         e.Qty,
			AvgCost:     e.AvgCost,
			RealizedPnL: e.RealizedPnL,
			UpdatedAt:   at,
		})
	}
	return out
}

// WriteSnapshot writes a snapshot to disk as JSON. The file is replaced
// atomically.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := sonic.ConfigStd.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create snapshot dir %s", dir)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "write snapshot %s", tmp)
	}
	return os.Rename(tmp, path)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, errors.Wrapf(err, "decode snapshot %s", path)
	}
	return snap, nil
}

// CompareSnapshots checks if two snapshots hold the same quantities.
func CompareSnapshots(expected, actual Snapshot) error {
	if len(expected.Positions) != len(actual.Positions) {
		return fmt.Errorf("snapshot length mismatch: expected=%d actual=%d", len(expected.Positions), len(actual.Positions))
	}
	expectedMap := make(map[string]schema.Quantity, len(expected.Positions))
	for _, entry := range expected.Positions {
		expectedMap[entry.Symbol] = entry.Qty
	}
	for _, entry := range actual.Positions {
		want, ok := expectedMap[entry.Symbol]
		if !ok {
			return fmt.Errorf("snapshot missing symbol: %s", entry.Symbol)
		}
		if want != entry.Qty {
			return fmt.Errorf("snapshot qty mismatch: symbol=%s expected=%d actual=%d", entry.Symbol, want, entry.Qty)
		}
	}
	return nil
}
