package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	masterdata "sitewatch/internal/masterdata/domain"
)

const defaultAssetsTable = "assets"

// AssetRepository is a Postgres implementation for assets.
type AssetRepository struct {
	db    DBTX
	table string
}

// NewAssetRepository constructs a repository.
func NewAssetRepository(db DBTX, opts ...AssetOption) *AssetRepository {
	repo := &AssetRepository{db: db, table: defaultAssetsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// AssetOption configures the repository.
type AssetOption func(*AssetRepository)

// WithAssetsTable overrides the default table name.
func WithAssetsTable(table string) AssetOption {
	return func(repo *AssetRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

const assetColumns = "id, external_id, site_id, name, type, last_reading_at, tenant_channels, config, created_at, updated_at"

// Get loads an asset by id.
func (r *AssetRepository) Get(ctx context.Context, id int64) (*masterdata.Asset, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("asset repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE id = $1
LIMIT 1`, assetColumns, r.table)
	return scanAsset(r.db.QueryRowContext(ctx, query, id))
}

// List returns all assets.
func (r *AssetRepository) List(ctx context.Context) ([]masterdata.Asset, error) {
	return r.list(ctx, "", nil)
}

// ListBySite returns assets belonging to a site.
func (r *AssetRepository) ListBySite(ctx context.Context, siteID int64) ([]masterdata.Asset, error) {
	return r.list(ctx, "WHERE site_id = $1", []any{siteID})
}

// ListBySites returns assets belonging to any of the given sites.
func (r *AssetRepository) ListBySites(ctx context.Context, siteIDs []int64) ([]masterdata.Asset, error) {
	if len(siteIDs) == 0 {
		return nil, nil
	}
	return r.list(ctx, "WHERE site_id = ANY($1)", []any{siteIDs})
}

func (r *AssetRepository) list(ctx context.Context, where string, args []any) ([]masterdata.Asset, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("asset repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
%s
ORDER BY id ASC`, assetColumns, r.table, where)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []masterdata.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *asset)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save upserts an asset.
func (r *AssetRepository) Save(ctx context.Context, asset *masterdata.Asset) error {
	if r == nil || r.db == nil {
		return errors.New("asset repo: nil db")
	}
	if asset == nil {
		return errors.New("asset repo: nil asset")
	}
	if err := asset.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = now
	}
	asset.UpdatedAt = now

	channels, err := json.Marshal(asset.TenantChannels)
	if err != nil {
		return err
	}
	config, err := json.Marshal(asset.Config)
	if err != nil {
		return err
	}

	if asset.ID != 0 {
		query := fmt.Sprintf(`
UPDATE %s
SET external_id = $1, site_id = $2, name = $3, type = $4,
	tenant_channels = $5, config = $6, updated_at = $7
WHERE id = $8`, r.table)
		_, err := r.db.ExecContext(ctx, query,
			nullableString(asset.ExternalID), asset.SiteID, asset.Name, string(asset.Type),
			channels, config, asset.UpdatedAt, asset.ID)
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (external_id, site_id, name, type, tenant_channels, config, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`, r.table)
	return r.db.QueryRowContext(ctx, query,
		nullableString(asset.ExternalID), asset.SiteID, asset.Name, string(asset.Type),
		channels, config, asset.CreatedAt, asset.UpdatedAt).Scan(&asset.ID)
}

// TouchLastReading bumps the asset's last reading timestamp.
func (r *AssetRepository) TouchLastReading(ctx context.Context, id int64, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("asset repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET last_reading_at = GREATEST(COALESCE(last_reading_at, 'epoch'::timestamptz), $1), updated_at = $2
WHERE id = $3`, r.table)
	_, err := r.db.ExecContext(ctx, query, at.UTC(), time.Now().UTC(), id)
	return err
}

func scanAsset(row rowScanner) (*masterdata.Asset, error) {
	var asset masterdata.Asset
	var externalID sql.NullString
	var assetType string
	var lastReading sql.NullTime
	var channels, config []byte
	if err := row.Scan(
		&asset.ID,
		&externalID,
		&asset.SiteID,
		&asset.Name,
		&assetType,
		&lastReading,
		&channels,
		&config,
		&asset.CreatedAt,
		&asset.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if externalID.Valid {
		asset.ExternalID = externalID.String
	}
	asset.Type = masterdata.AssetType(assetType)
	if lastReading.Valid {
		asset.LastReadingAt = lastReading.Time.UTC()
	}
	if len(channels) > 0 {
		if err := json.Unmarshal(channels, &asset.TenantChannels); err != nil {
			return nil, err
		}
	}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &asset.Config); err != nil {
			return nil, err
		}
	}
	asset.CreatedAt = asset.CreatedAt.UTC()
	asset.UpdatedAt = asset.UpdatedAt.UTC()
	return &asset, nil
}
