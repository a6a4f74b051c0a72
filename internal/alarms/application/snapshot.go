package application

import (
	"context"
	"errors"
	"time"

	masterdata "sitewatch/internal/masterdata/domain"
	readings "sitewatch/internal/readings/domain"
	rules "sitewatch/internal/rules/domain"
)

// SnapshotBuilder resolves a rule's scope into the set of entity readings
// the evaluator sees.
type SnapshotBuilder struct {
	sites    masterdata.SiteRepository
	assets   masterdata.AssetRepository
	readings readings.ReadingRepository
}

// NewSnapshotBuilder constructs a builder.
func NewSnapshotBuilder(sites masterdata.SiteRepository, assets masterdata.AssetRepository, store readings.ReadingRepository) (*SnapshotBuilder, error) {
	if sites == nil || assets == nil || store == nil {
		return nil, errors.New("snapshot: nil repository")
	}
	return &SnapshotBuilder{sites: sites, assets: assets, readings: store}, nil
}

// Build assembles the snapshot for one rule at the given instant. Historical
// rules get their trailing window prefetched, rate change rules their
// previous reading. Assets without any reading are left out.
func (b *SnapshotBuilder) Build(ctx context.Context, rule rules.CompositeRule, at time.Time) (Snapshot, error) {
	scopeSites, err := b.scopeSites(ctx, rule)
	if err != nil {
		return Snapshot{}, err
	}
	if len(scopeSites) == 0 {
		return Snapshot{At: at}, nil
	}

	siteByID := make(map[int64]masterdata.Site, len(scopeSites))
	siteIDs := make([]int64, 0, len(scopeSites))
	for _, site := range scopeSites {
		siteByID[site.ID] = site
		siteIDs = append(siteIDs, site.ID)
	}

	assets, err := b.assets.ListBySites(ctx, siteIDs)
	if err != nil {
		return Snapshot{}, err
	}
	if len(assets) == 0 {
		return Snapshot{At: at}, nil
	}

	assetIDs := make([]int64, 0, len(assets))
	for _, asset := range assets {
		assetIDs = append(assetIDs, asset.ID)
	}
	latest, err := b.readings.LatestByAssets(ctx, assetIDs)
	if err != nil {
		return Snapshot{}, err
	}
	latestByAsset := make(map[int64]readings.Reading, len(latest))
	for _, reading := range latest {
		latestByAsset[reading.AssetID] = reading
	}

	snapshot := Snapshot{At: at}
	for _, asset := range assets {
		entity := EntityReading{Asset: asset, Site: siteByID[asset.SiteID]}
		if reading, ok := latestByAsset[asset.ID]; ok {
			r := reading
			entity.Latest = &r
		}

		switch rule.RuleType {
		case rules.RuleTypeHistorical:
			from := at.Add(-time.Duration(rule.TimeWindowMinutes) * time.Minute)
			window, err := b.readings.WindowByAsset(ctx, asset.ID, from, at)
			if err != nil {
				return Snapshot{}, err
			}
			entity.Window = window
		case rules.RuleTypeRateChange:
			recent, err := b.readings.RecentByAsset(ctx, asset.ID, 2)
			if err != nil {
				return Snapshot{}, err
			}
			if len(recent) > 1 {
				prev := recent[1]
				entity.Previous = &prev
			}
		}

		if entity.Latest == nil && len(entity.Window) == 0 {
			continue
		}
		snapshot.Entities = append(snapshot.Entities, entity)
	}
	return snapshot, nil
}

func (b *SnapshotBuilder) scopeSites(ctx context.Context, rule rules.CompositeRule) ([]masterdata.Site, error) {
	switch rule.AppliesTo {
	case rules.ScopeRegion:
		return b.sites.ListByRegion(ctx, rule.Region)
	case rules.ScopeCluster:
		return b.sites.ListByCluster(ctx, rule.ClusterCode)
	case rules.ScopeSite:
		site, err := b.sites.Get(ctx, rule.SiteID)
		if err != nil || site == nil {
			return nil, err
		}
		return []masterdata.Site{*site}, nil
	default:
		return b.sites.List(ctx)
	}
}
