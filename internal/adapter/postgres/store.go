// Package postgres persists earthquake records in PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/watkajtys/earthquake-sub007/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS earthquake_events (
	id           TEXT PRIMARY KEY,
	event_time   BIGINT NOT NULL,
	latitude     DOUBLE PRECISION NOT NULL,
	longitude    DOUBLE PRECISION NOT NULL,
	depth        DOUBLE PRECISION NOT NULL,
	magnitude    DOUBLE PRECISION NOT NULL,
	place        TEXT NOT NULL,
	detail_url   TEXT NOT NULL,
	raw_feature  TEXT NOT NULL,
	retrieved_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS earthquake_events_event_time_idx ON earthquake_events (event_time DESC);
`

const upsertSQL = `
INSERT INTO earthquake_events
	(id, event_time, latitude, longitude, depth, magnitude, place, detail_url, raw_feature, retrieved_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
	event_time = excluded.event_time,
	latitude = excluded.latitude,
	longitude = excluded.longitude,
	depth = excluded.depth,
	magnitude = excluded.magnitude,
	place = excluded.place,
	detail_url = excluded.detail_url,
	raw_feature = excluded.raw_feature,
	retrieved_at = excluded.retrieved_at`

const selectColumns = `id, event_time, latitude, longitude, depth, magnitude, place, detail_url, raw_feature, retrieved_at`

// Store is a PostgreSQL-backed record store.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for dsn and ensures the schema exists.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// UpsertBatch queues one upsert per record and sends them in one transaction.
func (s *Store) UpsertBatch(ctx context.Context, records []domain.EarthquakeRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range records {
			batch.Queue(upsertSQL, r.ID, r.EventTime, r.Latitude, r.Longitude, r.Depth,
				r.Magnitude, r.Place, r.DetailURL, string(r.RawFeature), r.RetrievedAt)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return domain.PersistenceError("upsert earthquake_events", err)
	}
	return nil
}

// Get returns the record with the given id, or domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (domain.EarthquakeRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+selectColumns+` FROM earthquake_events WHERE id = $1`, id)
	if err != nil {
		return domain.EarthquakeRecord{}, domain.PersistenceError("query earthquake_events", err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EarthquakeRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.EarthquakeRecord{}, domain.PersistenceError("scan earthquake_events", err)
	}
	return rec, nil
}

// Recent returns records with event_time >= sinceMillis, newest first.
// limit <= 0 returns every match.
func (s *Store) Recent(ctx context.Context, sinceMillis int64, limit int) ([]domain.EarthquakeRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM earthquake_events WHERE event_time >= $1 ORDER BY event_time DESC`
	args := []any{sinceMillis}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.PersistenceError("query earthquake_events", err)
	}
	out, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, domain.PersistenceError("scan earthquake_events", err)
	}
	return out, nil
}

// Ping checks that the database answers queries.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.pool.QueryRow(ctx, "select 1").Scan(&one)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanRecord(row pgx.CollectableRow) (domain.EarthquakeRecord, error) {
	var (
		r   domain.EarthquakeRecord
		raw string
	)
	err := row.Scan(&r.ID, &r.EventTime, &r.Latitude, &r.Longitude, &r.Depth,
		&r.Magnitude, &r.Place, &r.DetailURL, &raw, &r.RetrievedAt)
	r.RawFeature = []byte(raw)
	return r, err
}
