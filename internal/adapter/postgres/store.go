// Package postgres stores ERA5 grids in PostgreSQL, one row per band, and
// serves them as a GridSource.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/couchcryptid/era5-humidity-service/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS era5_grids (
	ts    TIMESTAMPTZ      NOT NULL,
	band  TEXT             NOT NULL,
	west  DOUBLE PRECISION NOT NULL,
	south DOUBLE PRECISION NOT NULL,
	east  DOUBLE PRECISION NOT NULL,
	north DOUBLE PRECISION NOT NULL,
	rows  INTEGER          NOT NULL,
	cols  INTEGER          NOT NULL,
	vals  DOUBLE PRECISION[] NOT NULL,
	PRIMARY KEY (ts, band)
);
CREATE INDEX IF NOT EXISTS idx_era5_grids_ts ON era5_grids (ts);`

// Bounding boxes touch-or-overlap, matching domain.Region.Intersects.
const filter = `ts >= $1 AND ts < $2 AND west <= $3 AND east >= $4 AND south <= $5 AND north >= $6`

const (
	queryGrids = `SELECT ts, band, west, south, east, north, rows, cols, vals
FROM era5_grids WHERE ` + filter + ` ORDER BY ts, band`

	countGrids = `SELECT COUNT(DISTINCT ts) FROM era5_grids WHERE ` + filter

	upsertBand = `INSERT INTO era5_grids (ts, band, west, south, east, north, rows, cols, vals)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (ts, band) DO UPDATE SET
	west = EXCLUDED.west, south = EXCLUDED.south, east = EXCLUDED.east, north = EXCLUDED.north,
	rows = EXCLUDED.rows, cols = EXCLUDED.cols, vals = EXCLUDED.vals`
)

// Store is a GridSource over the era5_grids table.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, domain.SourceError("ping database", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	return NewStore(db), nil
}

// NewStore wraps an existing connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// InitSchema creates the table and index when missing.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Insert upserts every band of every grid in one transaction.
func (s *Store) Insert(ctx context.Context, grids ...domain.RasterGrid) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.SourceError("begin insert", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertBand)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range toRows(grids) {
		if _, err := stmt.ExecContext(ctx,
			row.ts, row.band,
			row.extent.West, row.extent.South, row.extent.East, row.extent.North,
			row.rows, row.cols, pq.Array(row.vals),
		); err != nil {
			return fmt.Errorf("insert %s %s: %w", row.ts.Format(time.RFC3339), row.band, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.SourceError("commit insert", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, window domain.TimeWindow, region domain.Region) (domain.RasterSeries, error) {
	rows, err := s.db.QueryContext(ctx, queryGrids, filterArgs(window, region)...)
	if err != nil {
		return nil, domain.SourceError("postgres query", err)
	}
	defer rows.Close()

	var out []gridRow
	for rows.Next() {
		var (
			r    gridRow
			vals pq.Float64Array
		)
		if err := rows.Scan(&r.ts, &r.band,
			&r.extent.West, &r.extent.South, &r.extent.East, &r.extent.North,
			&r.rows, &r.cols, &vals); err != nil {
			return nil, fmt.Errorf("scan grid row: %w", err)
		}
		r.vals = vals
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.SourceError("postgres query", err)
	}
	return assemble(out)
}

func (s *Store) Count(ctx context.Context, window domain.TimeWindow, region domain.Region) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, countGrids, filterArgs(window, region)...).Scan(&n); err != nil {
		return 0, domain.SourceError("postgres count", err)
	}
	return n, nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
