package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	readings "sitewatch/internal/readings/domain"
)

const defaultReadingsTable = "readings"

// ReadingRepository is a Postgres implementation of the reading store.
type ReadingRepository struct {
	db    *sql.DB
	table string
}

// NewReadingRepository constructs a repository.
func NewReadingRepository(db *sql.DB, opts ...Option) *ReadingRepository {
	repo := &ReadingRepository{db: db, table: defaultReadingsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Option configures the repository.
type Option func(*ReadingRepository)

// WithTable overrides the default table name.
func WithTable(table string) Option {
	return func(repo *ReadingRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Insert appends a reading. Readings are immutable once written.
func (r *ReadingRepository) Insert(ctx context.Context, reading *readings.Reading) error {
	if r == nil || r.db == nil {
		return errors.New("reading repo: nil db")
	}
	if reading == nil {
		return errors.New("reading repo: nil reading")
	}
	if err := reading.Validate(); err != nil {
		return err
	}
	if reading.CreatedAt.IsZero() {
		reading.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(reading.Data)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (asset_id, reading_type, ts, data, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`, r.table)
	return r.db.QueryRowContext(ctx, query,
		reading.AssetID,
		string(reading.ReadingType),
		reading.Timestamp.UTC(),
		data,
		reading.CreatedAt,
	).Scan(&reading.ID)
}

// LatestByAsset returns the newest reading for one asset.
func (r *ReadingRepository) LatestByAsset(ctx context.Context, assetID int64) (*readings.Reading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, asset_id, reading_type, ts, data, created_at
FROM %s
WHERE asset_id = $1
ORDER BY ts DESC, id DESC
LIMIT 1`, r.table)
	return scanReading(r.db.QueryRowContext(ctx, query, assetID))
}

// LatestByAssets returns the newest reading per asset for the given set.
func (r *ReadingRepository) LatestByAssets(ctx context.Context, assetIDs []int64) ([]readings.Reading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if len(assetIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
SELECT DISTINCT ON (asset_id) id, asset_id, reading_type, ts, data, created_at
FROM %s
WHERE asset_id = ANY($1)
ORDER BY asset_id, ts DESC, id DESC`, r.table)
	return r.query(ctx, query, assetIDs)
}

// WindowByAsset returns readings for an asset within [from, to), oldest first.
func (r *ReadingRepository) WindowByAsset(ctx context.Context, assetID int64, from, to time.Time) ([]readings.Reading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if !to.After(from) {
		return nil, errors.New("reading repo: empty window")
	}
	query := fmt.Sprintf(`
SELECT id, asset_id, reading_type, ts, data, created_at
FROM %s
WHERE asset_id = $1 AND ts >= $2 AND ts < $3
ORDER BY ts ASC, id ASC`, r.table)
	return r.query(ctx, query, assetID, from.UTC(), to.UTC())
}

// RecentByAsset returns the N newest readings for an asset, newest first.
func (r *ReadingRepository) RecentByAsset(ctx context.Context, assetID int64, limit int) ([]readings.Reading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if limit < 1 {
		limit = 1
	}
	query := fmt.Sprintf(`
SELECT id, asset_id, reading_type, ts, data, created_at
FROM %s
WHERE asset_id = $1
ORDER BY ts DESC, id DESC
LIMIT $2`, r.table)
	return r.query(ctx, query, assetID, limit)
}

func (r *ReadingRepository) query(ctx context.Context, query string, args ...any) ([]readings.Reading, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []readings.Reading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *reading)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type readingScanner interface {
	Scan(dest ...any) error
}

func scanReading(row readingScanner) (*readings.Reading, error) {
	var reading readings.Reading
	var readingType string
	var data []byte
	if err := row.Scan(
		&reading.ID,
		&reading.AssetID,
		&readingType,
		&reading.Timestamp,
		&data,
		&reading.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	reading.ReadingType = readings.ReadingType(readingType)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &reading.Data); err != nil {
			return nil, err
		}
	}
	reading.Timestamp = reading.Timestamp.UTC()
	reading.CreatedAt = reading.CreatedAt.UTC()
	return &reading, nil
}
