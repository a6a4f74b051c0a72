package masterdata

import (
	"context"
	"errors"
	"time"
)

// AssetType enumerates monitored device kinds.
type AssetType string

const (
	AssetGenerator AssetType = "GENERATOR"
	AssetACMeter   AssetType = "AC_METER"
	AssetDCMeter   AssetType = "DC_METER"
	AssetFuelLevel AssetType = "FUEL_LEVEL"
	AssetRectifier AssetType = "RECTIFIER"
)

// Valid returns true when the asset type is supported.
func (t AssetType) Valid() bool {
	switch t {
	case AssetGenerator, AssetACMeter, AssetDCMeter, AssetFuelLevel, AssetRectifier:
		return true
	default:
		return false
	}
}

// TenantChannel describes one sub-metered tenant feed on a DC meter.
type TenantChannel struct {
	Channel string `json:"channel"`
	Tenant  string `json:"tenant"`
}

// Asset represents a monitored device at a site.
type Asset struct {
	ID             int64             `json:"id"`
	ExternalID     string            `json:"external_id,omitempty"`
	SiteID         int64             `json:"site_id"`
	Name           string            `json:"name"`
	Type           AssetType         `json:"type"`
	LastReadingAt  time.Time         `json:"last_reading_at,omitempty"`
	TenantChannels []TenantChannel   `json:"tenant_channels,omitempty"`
	Config         map[string]string `json:"config,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Validate checks asset invariants.
func (a Asset) Validate() error {
	if a.SiteID == 0 {
		return errors.New("asset: empty site id")
	}
	if a.Name == "" {
		return errors.New("asset: empty name")
	}
	if !a.Type.Valid() {
		return errors.New("asset: invalid type")
	}
	return nil
}

// AssetRepository manages asset persistence.
type AssetRepository interface {
	Get(ctx context.Context, id int64) (*Asset, error)
	List(ctx context.Context) ([]Asset, error)
	ListBySite(ctx context.Context, siteID int64) ([]Asset, error)
	ListBySites(ctx context.Context, siteIDs []int64) ([]Asset, error)
	Save(ctx context.Context, asset *Asset) error
	TouchLastReading(ctx context.Context, id int64, at time.Time) error
}
