package countstore

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CountEntry is one counter bucket row. Day- and hour-scoped buckets embed
// the period number in the key, so stale rows simply stop being queried.
type CountEntry struct {
	Bucket string `gorm:"column:bucket;primarykey"`
	Count  int64  `gorm:"column:count;not null;default:0"`
}

func (CountEntry) TableName() string {
	return "count_entry"
}

// GormCountStore keeps counters in the same database as the rest of the
// engine, with single-statement conditional writes for atomicity.
type GormCountStore struct {
	db *gorm.DB
}

func NewGormCountStore(db *gorm.DB) (*GormCountStore, error) {
	if err := db.AutoMigrate(CountEntry{}); err != nil {
		return nil, err
	}
	return &GormCountStore{db: db}, nil
}

func (s *GormCountStore) GetCount(ctx context.Context, name, val, period string) (int, error) {
	var entry CountEntry
	err := s.db.WithContext(ctx).First(&entry, "bucket = ?", periodBucket(name, val, period)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return int(entry.Count), nil
}

func (s *GormCountStore) Increment(ctx context.Context, name, val string) error {
	for _, p := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		if err := s.upsertIncrement(ctx, periodBucket(name, val, p)); err != nil {
			return err
		}
	}
	return nil
}

func (s *GormCountStore) upsertIncrement(ctx context.Context, bucket string) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bucket"}},
		DoUpdates: clause.Assignments(map[string]any{"count": gorm.Expr("count + 1")}),
	}).Create(&CountEntry{Bucket: bucket, Count: 1}).Error
}

func (s *GormCountStore) CheckAndIncrement(ctx context.Context, name, val, period string, limit int) (int, error) {
	if limit <= 0 {
		return 0, ErrLimitExceeded
	}
	bucket := periodBucket(name, val, period)

	// conditional update is the atomic check-and-increment: it only lands
	// when the stored count is still below the limit
	res := s.db.WithContext(ctx).Model(&CountEntry{}).
		Where("bucket = ? AND count < ?", bucket, limit).
		Update("count", gorm.Expr("count + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 1 {
		var entry CountEntry
		if err := s.db.WithContext(ctx).First(&entry, "bucket = ?", bucket).Error; err != nil {
			return 0, err
		}
		return int(entry.Count), nil
	}

	// no row updated: either the bucket does not exist yet, or it is at the
	// limit
	var entry CountEntry
	err := s.db.WithContext(ctx).First(&entry, "bucket = ?", bucket).Error
	if err == nil {
		return int(entry.Count), ErrLimitExceeded
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	createErr := s.db.WithContext(ctx).Create(&CountEntry{Bucket: bucket, Count: 1}).Error
	if createErr == nil {
		return 1, nil
	}
	if errors.Is(createErr, gorm.ErrDuplicatedKey) {
		// lost a create race; the conditional update settles it
		res := s.db.WithContext(ctx).Model(&CountEntry{}).
			Where("bucket = ? AND count < ?", bucket, limit).
			Update("count", gorm.Expr("count + 1"))
		if res.Error != nil {
			return 0, res.Error
		}
		if res.RowsAffected == 0 {
			return limit, ErrLimitExceeded
		}
		var entry CountEntry
		if err := s.db.WithContext(ctx).First(&entry, "bucket = ?", bucket).Error; err != nil {
			return 0, err
		}
		return int(entry.Count), nil
	}
	return 0, createErr
}
