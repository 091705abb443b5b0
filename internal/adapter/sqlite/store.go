// Package sqlite persists earthquake records in SQLite through gorm.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/watkajtys/earthquake-sub007/internal/domain"
)

// maxRowsPerStatement keeps each INSERT under SQLite's bound-variable limit
// (10 columns per row).
const maxRowsPerStatement = 90

// mutableColumns are overwritten when an id already exists.
var mutableColumns = []string{
	"event_time", "latitude", "longitude", "depth", "magnitude",
	"place", "detail_url", "raw_feature", "retrieved_at",
}

type event struct {
	ID          string  `gorm:"column:id;primaryKey"`
	EventTime   int64   `gorm:"column:event_time;not null;index"`
	Latitude    float64 `gorm:"column:latitude;not null"`
	Longitude   float64 `gorm:"column:longitude;not null"`
	Depth       float64 `gorm:"column:depth;not null"`
	Magnitude   float64 `gorm:"column:magnitude;not null"`
	Place       string  `gorm:"column:place;not null"`
	DetailURL   string  `gorm:"column:detail_url;not null"`
	RawFeature  string  `gorm:"column:raw_feature;not null"`
	RetrievedAt int64   `gorm:"column:retrieved_at;not null"`
}

func (event) TableName() string { return "earthquake_events" }

// Store is a SQLite-backed record store.
type Store struct {
	db *gorm.DB
}

// Open opens the database at dsn, creating its directory if needed, and
// migrates the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if err := ensureDirectory(dsn); err != nil {
		return nil, err
	}
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	return New(ctx, db)
}

// New wraps an open gorm handle and migrates the schema.
func New(ctx context.Context, db *gorm.DB) (*Store, error) {
	if err := db.WithContext(ctx).AutoMigrate(&event{}); err != nil {
		return nil, fmt.Errorf("migrate earthquake_events: %w", err)
	}
	return &Store{db: db}, nil
}

// UpsertBatch writes records in one transaction. An existing id has its
// mutable columns replaced by the incoming values.
func (s *Store) UpsertBatch(ctx context.Context, records []domain.EarthquakeRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]event, 0, len(records))
	for i := range records {
		rows = append(rows, toRow(records[i]))
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(mutableColumns),
		}).CreateInBatches(&rows, maxRowsPerStatement).Error
	})
	if err != nil {
		return domain.PersistenceError("upsert earthquake_events", err)
	}
	return nil
}

// Get returns the record with the given id, or domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (domain.EarthquakeRecord, error) {
	var row event
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.EarthquakeRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.EarthquakeRecord{}, domain.PersistenceError("query earthquake_events", err)
	}
	return fromRow(row), nil
}

// Recent returns records with event_time >= sinceMillis, newest first.
func (s *Store) Recent(ctx context.Context, sinceMillis int64, limit int) ([]domain.EarthquakeRecord, error) {
	query := s.db.WithContext(ctx).Where("event_time >= ?", sinceMillis).Order("event_time desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []event
	if err := query.Find(&rows).Error; err != nil {
		return nil, domain.PersistenceError("query earthquake_events", err)
	}
	out := make([]domain.EarthquakeRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

// Ping checks the underlying connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(r domain.EarthquakeRecord) event {
	return event{
		ID:          r.ID,
		EventTime:   r.EventTime,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		Depth:       r.Depth,
		Magnitude:   r.Magnitude,
		Place:       r.Place,
		DetailURL:   r.DetailURL,
		RawFeature:  string(r.RawFeature),
		RetrievedAt: r.RetrievedAt,
	}
}

func fromRow(e event) domain.EarthquakeRecord {
	return domain.EarthquakeRecord{
		ID:          e.ID,
		EventTime:   e.EventTime,
		Latitude:    e.Latitude,
		Longitude:   e.Longitude,
		Depth:       e.Depth,
		Magnitude:   e.Magnitude,
		Place:       e.Place,
		DetailURL:   e.DetailURL,
		RawFeature:  []byte(e.RawFeature),
		RetrievedAt: e.RetrievedAt,
	}
}

func ensureDirectory(dsn string) error {
	candidate := strings.TrimSpace(dsn)
	if candidate == "" || candidate == ":memory:" || strings.Contains(candidate, "mode=memory") {
		return nil
	}
	candidate = strings.TrimPrefix(candidate, "file:")
	if idx := strings.Index(candidate, "?"); idx >= 0 {
		candidate = candidate[:idx]
	}
	dir := filepath.Dir(candidate)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sqlite directory %q: %w", dir, err)
	}
	return nil
}
