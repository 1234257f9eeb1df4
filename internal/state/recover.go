package state

import (
	"context"
	"errors"
	"io/fs"

	"github.com/yanun0323/logs"

	"tradecore/internal/schema"
)

// PositionSource lists the broker's current positions.
type PositionSource interface {
	Positions(ctx context.Context) ([]schema.PositionRecord, error)
}

// RecoverConfig controls startup position recovery.
type RecoverConfig struct {
	Broker       PositionSource
	SnapshotPath string
}

// RecoverSource names where recovered positions came from.
type RecoverSource string

const (
	RecoverNone     RecoverSource = "none"
	RecoverBroker   RecoverSource = "broker"
	RecoverSnapshot RecoverSource = "snapshot"
)

// RecoverResult contains recovered positions and their origin.
type RecoverResult struct {
	Positions []schema.PositionRecord
	Source    RecoverSource
}

// RecoverPositions asks the broker first and falls back to the checkpoint
// file. A missing checkpoint is not an error.
func RecoverPositions(ctx context.Context, cfg RecoverConfig) (RecoverResult, error) {
	if cfg.Broker != nil {
		positions, err := cfg.Broker.Positions(ctx)
		if err == nil {
			return RecoverResult{Positions: positions, Source: RecoverBroker}, nil
		}
		if cfg.SnapshotPath == "" {
			return RecoverResult{}, err
		}
		logs.Errorf("recover positions from broker failed, falling back to snapshot %s, err: %+v", cfg.SnapshotPath, err)
	}

	if cfg.SnapshotPath == "" {
		return RecoverResult{Source: RecoverNone}, nil
	}
	snap, err := ReadSnapshot(cfg.SnapshotPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return RecoverResult{Source: RecoverNone}, nil
		}
		return RecoverResult{}, err
	}
	return RecoverResult{Positions: snap.Records(), Source: RecoverSnapshot}, nil
}
