package application

import (
	"context"
	"errors"
	"log"
	"time"

	masterdata "sitewatch/internal/masterdata/domain"
	readings "sitewatch/internal/readings/domain"
)

const (
	// DefaultMixHours is the trailing span of the energy mix series.
	DefaultMixHours = 24
	// MaxMixHours caps the span; longer queries scan too much telemetry.
	MaxMixHours = 168
)

// EnergyMixPoint is one hour bucket of aggregated source output in kW.
type EnergyMixPoint struct {
	Time      string  `json:"time"`
	Grid      float64 `json:"grid"`
	Generator float64 `json:"generator"`
	Solar     float64 `json:"solar"`
	Battery   float64 `json:"battery"`
}

// EnergyMixService computes the hourly source-mix timeseries over the
// trailing window.
type EnergyMixService struct {
	sites    masterdata.SiteRepository
	assets   masterdata.AssetRepository
	readings readings.ReadingRepository
	logger   *log.Logger
	now      func() time.Time
}

// NewEnergyMixService constructs the service.
func NewEnergyMixService(sites masterdata.SiteRepository, assets masterdata.AssetRepository, store readings.ReadingRepository, logger *log.Logger) (*EnergyMixService, error) {
	if sites == nil || assets == nil || store == nil {
		return nil, errors.New("energy mix: nil repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &EnergyMixService{sites: sites, assets: assets, readings: store, logger: logger, now: time.Now}, nil
}

// Series buckets readings of the scoped sites into one point per hour,
// oldest first. Within a bucket only the newest reading per asset counts,
// so assets reporting faster than hourly are not double counted.
func (s *EnergyMixService) Series(ctx context.Context, scope Scope, hours int) ([]EnergyMixPoint, error) {
	if hours <= 0 {
		hours = DefaultMixHours
	}
	if hours > MaxMixHours {
		hours = MaxMixHours
	}

	sites, err := s.resolveSites(ctx, scope)
	if err != nil {
		return nil, err
	}
	assets, err := s.assets.ListBySites(ctx, siteIDs(sites))
	if err != nil {
		return nil, err
	}

	now := s.now()
	cutoff := now.Add(-time.Duration(hours) * time.Hour)

	type bucketKey struct {
		hour  string
		asset int64
	}
	type candidate struct {
		id    int64
		asset masterdata.Asset
		data  map[string]float64
	}
	latestByBucket := make(map[bucketKey]candidate)

	for _, asset := range assets {
		switch asset.Type {
		case masterdata.AssetACMeter, masterdata.AssetGenerator, masterdata.AssetDCMeter:
		default:
			continue
		}
		window, err := s.readings.WindowByAsset(ctx, asset.ID, cutoff, now)
		if err != nil {
			return nil, err
		}
		for _, r := range window {
			key := bucketKey{hour: r.Timestamp.Format("15:00"), asset: asset.ID}
			if existing, ok := latestByBucket[key]; ok && existing.id >= r.ID {
				continue
			}
			latestByBucket[key] = candidate{id: r.ID, asset: asset, data: r.Data}
		}
	}

	type mix struct {
		grid, generator, solar, battery float64
	}
	buckets := make(map[string]*mix, hours)
	order := make([]string, 0, hours)
	for i := hours - 1; i >= 0; i-- {
		key := now.Add(-time.Duration(i) * time.Hour).Format("15:00")
		if _, ok := buckets[key]; !ok {
			buckets[key] = &mix{}
			order = append(order, key)
		}
	}

	for key, c := range latestByBucket {
		bucket, ok := buckets[key.hour]
		if !ok {
			continue
		}
		switch c.asset.Type {
		case masterdata.AssetACMeter:
			if p, ok := pick(c.data, "total_active_power", "total_power_kw", "Total_Active_Power (kW)"); ok {
				bucket.grid += max(0, sanitizeKW(normalizeKW(p)))
			}
		case masterdata.AssetGenerator:
			if p, ok := pick(c.data, "power_kw", "total_active_power", "total_power_kw", "Gen_Total_Power"); ok {
				bucket.generator += max(0, sanitizeKW(normalizeKW(p)))
			}
		case masterdata.AssetDCMeter:
			// Negative battery flow is charging; the mix only shows supply.
			if p, ok := pick(c.data, "Power1", "battery_power", "Battery_Power", "p1_batt"); ok {
				bucket.battery += max(0, sanitizeKW(normalizeKW(p)))
			}
			if p, ok := pick(c.data, "Power2", "solar_power", "Solar_Power", "p2_solar_y2"); ok {
				bucket.solar += max(0, sanitizeKW(normalizeKW(p)))
			}
		}
	}

	series := make([]EnergyMixPoint, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		series = append(series, EnergyMixPoint{
			Time:      key,
			Grid:      round(b.grid, 2),
			Generator: round(b.generator, 2),
			Solar:     round(b.solar, 2),
			Battery:   round(b.battery, 2),
		})
	}
	return series, nil
}

func (s *EnergyMixService) resolveSites(ctx context.Context, scope Scope) ([]masterdata.Site, error) {
	switch {
	case scope.Site != "":
		site, err := s.sites.GetByName(ctx, scope.Site)
		if err != nil {
			return nil, err
		}
		if site == nil {
			return nil, ErrScopeEmpty
		}
		return []masterdata.Site{*site}, nil
	case scope.Region != "":
		return requireSites(s.sites.ListByRegion(ctx, scope.Region))
	case scope.Cluster != "":
		return requireSites(s.sites.ListByCluster(ctx, scope.Cluster))
	default:
		return requireSites(s.sites.List(ctx))
	}
}
