package readings

import (
	"context"
	"errors"
	"time"
)

// ReadingType enumerates measurement categories per asset.
type ReadingType string

const (
	TypePower       ReadingType = "POWER"
	TypeFuel        ReadingType = "FUEL"
	TypeTemperature ReadingType = "TEMPERATURE"
	TypeEnergy      ReadingType = "ENERGY"
)

// Reading is one immutable sampled observation for an asset. Data is a flat
// channel-indexed map of numeric values as delivered by the ingestion feed.
type Reading struct {
	ID          int64              `json:"id"`
	AssetID     int64              `json:"asset_id"`
	ReadingType ReadingType        `json:"reading_type"`
	Timestamp   time.Time          `json:"timestamp"`
	Data        map[string]float64 `json:"data"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Validate checks reading invariants.
func (r Reading) Validate() error {
	if r.AssetID == 0 {
		return errors.New("reading: empty asset id")
	}
	if r.ReadingType == "" {
		return errors.New("reading: empty reading type")
	}
	if r.Timestamp.IsZero() {
		return errors.New("reading: zero timestamp")
	}
	if len(r.Data) == 0 {
		return errors.New("reading: empty data")
	}
	return nil
}

// ReadingRepository manages the append-only reading store. The current value
// for an (asset, reading type) pair is the row with the maximum timestamp.
type ReadingRepository interface {
	Insert(ctx context.Context, reading *Reading) error
	LatestByAsset(ctx context.Context, assetID int64) (*Reading, error)
	LatestByAssets(ctx context.Context, assetIDs []int64) ([]Reading, error)
	WindowByAsset(ctx context.Context, assetID int64, from, to time.Time) ([]Reading, error)
	RecentByAsset(ctx context.Context, assetID int64, limit int) ([]Reading, error)
}
