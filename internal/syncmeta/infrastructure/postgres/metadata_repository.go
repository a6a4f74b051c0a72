package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	syncmeta "sitewatch/internal/syncmeta/domain"
)

const defaultSyncTable = "sync_metadata"

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// MetadataRepository is a Postgres implementation of
// syncmeta.MetadataRepository. The table holds a single row with id 1.
type MetadataRepository struct {
	db    DBTX
	table string
}

// NewMetadataRepository constructs a repository.
func NewMetadataRepository(db DBTX, opts ...MetadataOption) *MetadataRepository {
	repo := &MetadataRepository{db: db, table: defaultSyncTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// MetadataOption configures the repository.
type MetadataOption func(*MetadataRepository)

// WithSyncTable overrides the default table name.
func WithSyncTable(table string) MetadataOption {
	return func(repo *MetadataRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Get loads the singleton row.
func (r *MetadataRepository) Get(ctx context.Context) (*syncmeta.Metadata, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("sync repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT last_sync_time, last_success_time, status, sites_synced, assets_synced,
	readings_synced, errors, updated_at
FROM %s
WHERE id = 1`, r.table)

	var (
		metadata        syncmeta.Metadata
		lastSync        sql.NullTime
		lastSuccess     sql.NullTime
		updatedAt       sql.NullTime
		encodedFailures []byte
	)
	err := r.db.QueryRowContext(ctx, query).Scan(
		&lastSync,
		&lastSuccess,
		&metadata.Status,
		&metadata.SitesSynced,
		&metadata.AssetsSynced,
		&metadata.ReadingsSynced,
		&encodedFailures,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastSync.Valid {
		metadata.LastSyncTime = lastSync.Time
	}
	if lastSuccess.Valid {
		metadata.LastSuccessTime = lastSuccess.Time
	}
	if updatedAt.Valid {
		metadata.UpdatedAt = updatedAt.Time
	}
	if len(encodedFailures) > 0 {
		if err := json.Unmarshal(encodedFailures, &metadata.Errors); err != nil {
			return nil, fmt.Errorf("sync repo: decode errors: %w", err)
		}
	}
	return &metadata, nil
}

// Save upserts the singleton row.
func (r *MetadataRepository) Save(ctx context.Context, metadata *syncmeta.Metadata) error {
	if r == nil || r.db == nil {
		return errors.New("sync repo: nil db")
	}
	if metadata == nil {
		return errors.New("sync repo: nil metadata")
	}

	failures, err := json.Marshal(metadata.Errors)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (id, last_sync_time, last_success_time, status, sites_synced,
	assets_synced, readings_synced, errors, updated_at)
VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
	last_sync_time = EXCLUDED.last_sync_time,
	last_success_time = EXCLUDED.last_success_time,
	status = EXCLUDED.status,
	sites_synced = EXCLUDED.sites_synced,
	assets_synced = EXCLUDED.assets_synced,
	readings_synced = EXCLUDED.readings_synced,
	errors = EXCLUDED.errors,
	updated_at = EXCLUDED.updated_at`, r.table)
	_, err = r.db.ExecContext(ctx, query,
		nullableTime(metadata.LastSyncTime),
		nullableTime(metadata.LastSuccessTime),
		metadata.Status,
		metadata.SitesSynced,
		metadata.AssetsSynced,
		metadata.ReadingsSynced,
		failures,
		time.Now(),
	)
	return err
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
