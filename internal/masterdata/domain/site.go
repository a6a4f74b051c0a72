package masterdata

import (
	"context"
	"errors"
	"time"
)

// Site represents a monitored physical location.
type Site struct {
	ID          int64     `json:"id"`
	ExternalID  string    `json:"external_id,omitempty"`
	Name        string    `json:"name"`
	Region      string    `json:"region"`
	Zone        string    `json:"zone,omitempty"`
	ClusterCode string    `json:"cluster_code,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks site invariants.
func (s Site) Validate() error {
	if s.Name == "" {
		return errors.New("site: empty name")
	}
	return nil
}

// Synced reports whether the site is reconciled against the live ingestion
// feed. Placeholder sites have no external id and are skipped by sync.
func (s Site) Synced() bool {
	return s.ExternalID != ""
}

// SiteRepository manages site persistence.
type SiteRepository interface {
	Get(ctx context.Context, id int64) (*Site, error)
	GetByName(ctx context.Context, name string) (*Site, error)
	List(ctx context.Context) ([]Site, error)
	ListByRegion(ctx context.Context, region string) ([]Site, error)
	ListByCluster(ctx context.Context, clusterCode string) ([]Site, error)
	Save(ctx context.Context, site *Site) error
}
