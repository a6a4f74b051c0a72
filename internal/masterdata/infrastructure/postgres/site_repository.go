package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	masterdata "sitewatch/internal/masterdata/domain"
)

const defaultSitesTable = "sites"

// SiteRepository is a Postgres implementation for sites.
type SiteRepository struct {
	db    DBTX
	table string
}

// NewSiteRepository constructs a repository.
func NewSiteRepository(db DBTX, opts ...SiteOption) *SiteRepository {
	repo := &SiteRepository{db: db, table: defaultSitesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// SiteOption configures the repository.
type SiteOption func(*SiteRepository)

// WithSitesTable overrides the default table name.
func WithSitesTable(table string) SiteOption {
	return func(repo *SiteRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Get loads a site by id.
func (r *SiteRepository) Get(ctx context.Context, id int64) (*masterdata.Site, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("site repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, external_id, name, region, zone, cluster_code, created_at, updated_at
FROM %s
WHERE id = $1
LIMIT 1`, r.table)
	return scanSite(r.db.QueryRowContext(ctx, query, id))
}

// GetByName loads a site by name.
func (r *SiteRepository) GetByName(ctx context.Context, name string) (*masterdata.Site, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("site repo: nil db")
	}
	if name == "" {
		return nil, errors.New("site repo: empty name")
	}
	query := fmt.Sprintf(`
SELECT id, external_id, name, region, zone, cluster_code, created_at, updated_at
FROM %s
WHERE name = $1
LIMIT 1`, r.table)
	return scanSite(r.db.QueryRowContext(ctx, query, name))
}

// List returns all sites.
func (r *SiteRepository) List(ctx context.Context) ([]masterdata.Site, error) {
	return r.list(ctx, "", nil)
}

// ListByRegion returns sites in a region or zone.
func (r *SiteRepository) ListByRegion(ctx context.Context, region string) ([]masterdata.Site, error) {
	if region == "" {
		return nil, errors.New("site repo: empty region")
	}
	return r.list(ctx, "WHERE region = $1 OR zone = $1", []any{region})
}

// ListByCluster returns sites with a cluster code.
func (r *SiteRepository) ListByCluster(ctx context.Context, clusterCode string) ([]masterdata.Site, error) {
	if clusterCode == "" {
		return nil, errors.New("site repo: empty cluster code")
	}
	return r.list(ctx, "WHERE cluster_code = $1", []any{clusterCode})
}

func (r *SiteRepository) list(ctx context.Context, where string, args []any) ([]masterdata.Site, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("site repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, external_id, name, region, zone, cluster_code, created_at, updated_at
FROM %s
%s
ORDER BY name ASC`, r.table, where)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []masterdata.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *site)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save upserts a site keyed by external id when present, otherwise inserts.
func (r *SiteRepository) Save(ctx context.Context, site *masterdata.Site) error {
	if r == nil || r.db == nil {
		return errors.New("site repo: nil db")
	}
	if site == nil {
		return errors.New("site repo: nil site")
	}
	if err := site.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if site.CreatedAt.IsZero() {
		site.CreatedAt = now
	}
	site.UpdatedAt = now

	if site.ID != 0 {
		query := fmt.Sprintf(`
UPDATE %s
SET external_id = $1, name = $2, region = $3, zone = $4, cluster_code = $5, updated_at = $6
WHERE id = $7`, r.table)
		_, err := r.db.ExecContext(ctx, query,
			nullableString(site.ExternalID), site.Name, site.Region, site.Zone,
			site.ClusterCode, site.UpdatedAt, site.ID)
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (external_id, name, region, zone, cluster_code, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`, r.table)
	return r.db.QueryRowContext(ctx, query,
		nullableString(site.ExternalID), site.Name, site.Region, site.Zone,
		site.ClusterCode, site.CreatedAt, site.UpdatedAt).Scan(&site.ID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSite(row rowScanner) (*masterdata.Site, error) {
	var site masterdata.Site
	var externalID sql.NullString
	if err := row.Scan(
		&site.ID,
		&externalID,
		&site.Name,
		&site.Region,
		&site.Zone,
		&site.ClusterCode,
		&site.CreatedAt,
		&site.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if externalID.Valid {
		site.ExternalID = externalID.String
	}
	site.CreatedAt = site.CreatedAt.UTC()
	site.UpdatedAt = site.UpdatedAt.UTC()
	return &site, nil
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
