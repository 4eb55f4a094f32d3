package sqlite

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/user/prober-service/internal/entity"
)

// recordRow is the gorm model for the records table.
type recordRow struct {
	ID             uint              `gorm:"primaryKey"`
	Identifier     string            `gorm:"uniqueIndex;not null"`
	DisplayName    string            `gorm:"not null;default:''"`
	Classification string            `gorm:"index;not null"`
	Attributes     map[string]string `gorm:"serializer:json"`
	FirstSeenAt    time.Time         `gorm:"not null"`
	LastSeenAt     time.Time         `gorm:"index;not null"`
}

func (recordRow) TableName() string { return "records" }

// RecordRepoImpl implements repository.RecordRepository on an embedded SQLite file.
type RecordRepoImpl struct {
	db *gorm.DB
}

// Open opens dsn, applies pragmas and migrates the records table.
func Open(dsn string) (*RecordRepoImpl, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	// One connection serializes writers.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	return NewRecordRepo(db)
}

// NewRecordRepo migrates the schema on an existing gorm handle.
func NewRecordRepo(db *gorm.DB) (*RecordRepoImpl, error) {
	if err := db.AutoMigrate(&recordRow{}); err != nil {
		return nil, fmt.Errorf("migrate records: %w", err)
	}
	return &RecordRepoImpl{db: db}, nil
}

func (r *RecordRepoImpl) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *RecordRepoImpl) Upsert(ctx context.Context, record *entity.Record) error {
	row := toRow(record)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identifier"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "classification", "attributes", "last_seen_at"}),
	}).Create(&row).Error
}

func (r *RecordRepoImpl) List(ctx context.Context, filter entity.RecordFilter) ([]entity.Record, error) {
	q := r.db.WithContext(ctx).Model(&recordRow{})
	if filter.Classification != nil {
		q = q.Where("classification = ?", string(*filter.Classification))
	}
	q = q.Order("last_seen_at DESC").Order("identifier ASC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []recordRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return fromRows(rows), nil
}

func (r *RecordRepoImpl) ExportAll(ctx context.Context) ([]entity.Record, error) {
	var rows []recordRow
	if err := r.db.WithContext(ctx).Order("identifier ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return fromRows(rows), nil
}

func toRow(rec *entity.Record) recordRow {
	attrs := rec.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	return recordRow{
		Identifier:     rec.Identifier,
		DisplayName:    rec.DisplayName,
		Classification: string(rec.Classification),
		Attributes:     attrs,
		FirstSeenAt:    rec.FirstSeenAt.UTC(),
		LastSeenAt:     rec.LastSeenAt.UTC(),
	}
}

func fromRows(rows []recordRow) []entity.Record {
	out := make([]entity.Record, 0, len(rows))
	for _, row := range rows {
		attrs := row.Attributes
		if attrs == nil {
			attrs = map[string]string{}
		}
		out = append(out, entity.Record{
			Identifier:     row.Identifier,
			DisplayName:    row.DisplayName,
			Classification: entity.Classification(row.Classification),
			Attributes:     attrs,
			FirstSeenAt:    row.FirstSeenAt,
			LastSeenAt:     row.LastSeenAt,
		})
	}
	return out
}
