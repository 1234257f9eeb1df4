package store

import (
	"context"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Sink persists journal batches.
type Sink interface {
	SaveOrders(ctx context.Context, rows []OrderRow) error
	SaveFills(ctx context.Context, rows []FillRow) error
	SavePositions(ctx context.Context, rows []PositionRow) error
}

// GormSink writes journal batches through gorm.
type GormSink struct {
	db *gorm.DB
}

func NewGormSink(db *gorm.DB) *GormSink {
	return &GormSink{db: db}
}

// Migrate creates or updates the journal tables.
func (s *GormSink) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&OrderRow{}, &FillRow{}, &PositionRow{})
}

var (
	orderConflict    = clause.OnConflict{Columns: []clause.Column{{Name: "client_order_id"}}, UpdateAll: true}
	fillConflict     = clause.OnConflict{Columns: []clause.Column{{Name: "client_order_id"}, {Name: "sequence"}}, DoNothing: true}
	positionConflict = clause.OnConflict{Columns: []clause.Column{{Name: "symbol"}}, UpdateAll: true}
)

func upsert(tx *gorm.DB, conflict clause.OnConflict, rows any) *gorm.DB {
	return tx.Clauses(conflict).Create(rows)
}

func (s *GormSink) SaveOrders(ctx context.Context, rows []OrderRow) error {
	if len(rows) == 0 {
		return nil
	}
	if err := upsert(s.db.WithContext(ctx), orderConflict, &rows).Error; err != nil {
		return errors.Wrapf(err, "upsert %d orders", len(rows))
	}
	return nil
}

func (s *GormSink) SaveFills(ctx context.Context, rows []FillRow) error {
	if len(rows) == 0 {
		return nil
	}
	if err := upsert(s.db.WithContext(ctx), fillConflict, &rows).Error; err != nil {
		return errors.Wrapf(err, "insert %d fills", len(rows))
	}
	return nil
}

func (s *GormSink) SavePositions(ctx context.Context, rows []PositionRow) error {
	if len(rows) == 0 {
		return nil
	}
	if err := upsert(s.db.WithContext(ctx), positionConflict, &rows).Error; err != nil {
		return errors.Wrapf(err, "upsert %d positions", len(rows))
	}
	return nil
}

// LoadPositions reads the journaled positions.
func (s *GormSink) LoadPositions(ctx context.Context) ([]PositionRow, error) {
	var rows []PositionRow
	if err := s.db.WithContext(ctx).Order("symbol").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load positions")
	}
	return rows, nil
}
