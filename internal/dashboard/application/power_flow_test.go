package application

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	masterdata "sitewatch/internal/masterdata/domain"
	readings "sitewatch/internal/readings/domain"
)

type stubSites struct {
	sites []masterdata.Site
}

func (s *stubSites) Get(_ context.Context, id int64) (*masterdata.Site, error) {
	for _, site := range s.sites {
		if site.ID == id {
			copied := site
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *stubSites) GetByName(_ context.Context, name string) (*masterdata.Site, error) {
	for _, site := range s.sites {
		if site.Name == name {
			copied := site
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *stubSites) List(context.Context) ([]masterdata.Site, error) { return s.sites, nil }

func (s *stubSites) ListByRegion(_ context.Context, region string) ([]masterdata.Site, error) {
	var out []masterdata.Site
	for _, site := range s.sites {
		if site.Region == region {
			out = append(out, site)
		}
	}
	return out, nil
}

func (s *stubSites) ListByCluster(_ context.Context, cluster string) ([]masterdata.Site, error) {
	var out []masterdata.Site
	for _, site := range s.sites {
		if site.ClusterCode == cluster {
			out = append(out, site)
		}
	}
	return out, nil
}

func (s *stubSites) Save(context.Context, *masterdata.Site) error { return nil }

type stubAssets struct {
	assets []masterdata.Asset
}

func (s *stubAssets) Get(_ context.Context, id int64) (*masterdata.Asset, error) {
	for _, asset := range s.assets {
		if asset.ID == id {
			copied := asset
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *stubAssets) List(context.Context) ([]masterdata.Asset, error) { return s.assets, nil }

func (s *stubAssets) ListBySite(ctx context.Context, siteID int64) ([]masterdata.Asset, error) {
	return s.ListBySites(ctx, []int64{siteID})
}

func (s *stubAssets) ListBySites(_ context.Context, siteIDs []int64) ([]masterdata.Asset, error) {
	allowed := map[int64]bool{}
	for _, id := range siteIDs {
		allowed[id] = true
	}
	var out []masterdata.Asset
	for _, asset := range s.assets {
		if allowed[asset.SiteID] {
			out = append(out, asset)
		}
	}
	return out, nil
}

func (s *stubAssets) Save(context.Context, *masterdata.Asset) error { return nil }

func (s *stubAssets) TouchLastReading(context.Context, int64, time.Time) error { return nil }

type stubReadings struct {
	latest  map[int64]readings.Reading
	windows map[int64][]readings.Reading
}

func (s *stubReadings) Insert(context.Context, *readings.Reading) error { return nil }

func (s *stubReadings) LatestByAsset(_ context.Context, assetID int64) (*readings.Reading, error) {
	if r, ok := s.latest[assetID]; ok {
		copied := r
		return &copied, nil
	}
	return nil, nil
}

func (s *stubReadings) LatestByAssets(_ context.Context, assetIDs []int64) ([]readings.Reading, error) {
	var out []readings.Reading
	for _, id := range assetIDs {
		if r, ok := s.latest[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubReadings) WindowByAsset(_ context.Context, assetID int64, from, to time.Time) ([]readings.Reading, error) {
	var out []readings.Reading
	for _, r := range s.windows[assetID] {
		if r.Timestamp.Before(from) || r.Timestamp.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *stubReadings) RecentByAsset(_ context.Context, assetID int64, _ int) ([]readings.Reading, error) {
	if r, ok := s.latest[assetID]; ok {
		return []readings.Reading{r}, nil
	}
	return nil, nil
}

func testLogger() *log.Logger { return log.New(os.Stdout, "", 0) }

func fullSiteFixture() (*stubSites, *stubAssets, *stubReadings) {
	sites := &stubSites{sites: []masterdata.Site{
		{ID: 1, Name: "Site A", Region: "North", ClusterCode: "N1"},
	}}
	assets := &stubAssets{assets: []masterdata.Asset{
		{ID: 10, SiteID: 1, Name: "Grid Meter", Type: masterdata.AssetACMeter},
		{ID: 11, SiteID: 1, Name: "Generator 1", Type: masterdata.AssetGenerator},
		{ID: 12, SiteID: 1, Name: "DC Meter", Type: masterdata.AssetDCMeter},
		{ID: 13, SiteID: 1, Name: "Rectifier", Type: masterdata.AssetRectifier},
		{ID: 14, SiteID: 1, Name: "Fuel Tank", Type: masterdata.AssetFuelLevel},
	}}
	store := &stubReadings{latest: map[int64]readings.Reading{
		10: {ID: 1, AssetID: 10, Data: map[string]float64{
			"voltage_1": 230, "voltage_2": 231, "voltage_3": 229,
			"frequency":          50,
			"total_active_power": 15000,
		}},
		11: {ID: 2, AssetID: 11, Data: map[string]float64{
			"power_kw": 4294967295,
		}},
		12: {ID: 3, AssetID: 12, Data: map[string]float64{
			"p1_batt":      -2,
			"p2_solar_y2":  0.5,
			"vrms1_batt":   48.2,
			"irms2_solar_y2": 10.4,
		}},
		13: {ID: 4, AssetID: 13, Data: map[string]float64{
			"System_DC_Voltage":     48,
			"Total_DC_Load_Current": 100,
		}},
		14: {ID: 5, AssetID: 14, Data: map[string]float64{
			"fuel_level": 500,
		}},
	}}
	return sites, assets, store
}

func TestPowerFlowSnapshotOnGrid(t *testing.T) {
	sites, assets, store := fullSiteFixture()
	service, err := NewPowerFlowService(sites, assets, store, testLogger())
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	snapshot, err := service.Snapshot(context.Background(), Scope{})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if !snapshot.Grid.Available {
		t.Fatal("grid should be available at 230 V")
	}
	if snapshot.Grid.Voltage != 230 {
		t.Fatalf("grid voltage = %v, want 230", snapshot.Grid.Voltage)
	}
	if snapshot.Grid.Frequency != 50 {
		t.Fatalf("grid frequency = %v, want 50", snapshot.Grid.Frequency)
	}
	// 15000 W scales to 15 kW.
	if snapshot.Grid.Power != 15 {
		t.Fatalf("grid power = %v, want 15", snapshot.Grid.Power)
	}

	// The u32 sentinel from the generator meter must be discarded.
	if snapshot.Generator.Power != 0 || snapshot.Generator.Status != "stopped" {
		t.Fatalf("generator = %+v, want stopped with zero power", snapshot.Generator)
	}
	if snapshot.Generator.Fuel != 500 {
		t.Fatalf("fuel = %v, want 500", snapshot.Generator.Fuel)
	}

	if snapshot.Battery.Charging {
		t.Fatal("battery discharging at -2 kW must not report charging")
	}
	if snapshot.Battery.Power != 2 {
		t.Fatalf("battery power = %v, want 2", snapshot.Battery.Power)
	}
	if snapshot.Battery.Voltage != 48.2 {
		t.Fatalf("battery voltage = %v, want 48.2", snapshot.Battery.Voltage)
	}
	if snapshot.Solar.Power != 0.5 || snapshot.Solar.Current != 10.4 {
		t.Fatalf("solar = %+v", snapshot.Solar)
	}

	// Rectifier DC load wins over derived totals: 48 V * 100 A = 4.8 kW.
	if snapshot.Load.Total != 4.8 || snapshot.Load.Rectifier != 4.8 {
		t.Fatalf("load = %+v, want 4.8 kW", snapshot.Load)
	}

	if snapshot.ActiveSource != "grid" {
		t.Fatalf("active source = %q, want grid", snapshot.ActiveSource)
	}
	if snapshot.Meta.SitesCount != 1 || snapshot.Meta.Availability.Grid != 100 {
		t.Fatalf("meta = %+v", snapshot.Meta)
	}
}

func TestPowerFlowBrownoutFallsBackToGenerator(t *testing.T) {
	sites := &stubSites{sites: []masterdata.Site{{ID: 1, Name: "Site A"}}}
	assets := &stubAssets{assets: []masterdata.Asset{
		{ID: 10, SiteID: 1, Name: "Grid Meter", Type: masterdata.AssetACMeter},
		{ID: 11, SiteID: 1, Name: "Generator 1", Type: masterdata.AssetGenerator},
	}}
	store := &stubReadings{latest: map[int64]readings.Reading{
		10: {ID: 1, AssetID: 10, Data: map[string]float64{"voltage_1": 170, "total_active_power": 12}},
		11: {ID: 2, AssetID: 11, Data: map[string]float64{"p1": 3, "p2": 2.5, "p3": 2.5}},
	}}
	service, err := NewPowerFlowService(sites, assets, store, testLogger())
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	snapshot, err := service.Snapshot(context.Background(), Scope{})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.Grid.Available {
		t.Fatal("170 V is below the brownout floor")
	}
	if snapshot.Generator.Status != "running" || snapshot.Generator.Power != 8 {
		t.Fatalf("generator = %+v, want running at 8 kW from phase sum", snapshot.Generator)
	}
	if snapshot.ActiveSource != "generator" {
		t.Fatalf("active source = %q, want generator", snapshot.ActiveSource)
	}
}

func TestPowerFlowSolarTakesPriorityOverGenerator(t *testing.T) {
	sites := &stubSites{sites: []masterdata.Site{{ID: 1, Name: "Site A"}}}
	assets := &stubAssets{assets: []masterdata.Asset{
		{ID: 11, SiteID: 1, Name: "Generator 1", Type: masterdata.AssetGenerator},
		{ID: 12, SiteID: 1, Name: "Solar DC Meter", Type: masterdata.AssetDCMeter},
	}}
	store := &stubReadings{latest: map[int64]readings.Reading{
		11: {ID: 1, AssetID: 11, Data: map[string]float64{"power_kw": 5}},
		12: {ID: 2, AssetID: 12, Data: map[string]float64{"p2_solar_y2": 3}},
	}}
	service, err := NewPowerFlowService(sites, assets, store, testLogger())
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	snapshot, err := service.Snapshot(context.Background(), Scope{})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.ActiveSource != "solar" {
		t.Fatalf("active source = %q, want solar", snapshot.ActiveSource)
	}
}

func TestPowerFlowTenantChannels(t *testing.T) {
	sites := &stubSites{sites: []masterdata.Site{{ID: 1, Name: "Site A"}}}
	assets := &stubAssets{assets: []masterdata.Asset{
		{ID: 12, SiteID: 1, Name: "DC Meter", Type: masterdata.AssetDCMeter, TenantChannels: []masterdata.TenantChannel{
			{Channel: "Power3", Tenant: "Tenant A"},
			{Channel: "Power4", Tenant: "Tenant B"},
		}},
	}}
	store := &stubReadings{latest: map[int64]readings.Reading{
		12: {ID: 1, AssetID: 12, Data: map[string]float64{"Power3": 2.5, "Power4": 1.5}},
	}}
	service, err := NewPowerFlowService(sites, assets, store, testLogger())
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	snapshot, err := service.Snapshot(context.Background(), Scope{})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.Load.Tenant != 4 {
		t.Fatalf("tenant load = %v, want 4", snapshot.Load.Tenant)
	}
	if snapshot.Load.Total != 4 {
		t.Fatalf("total load = %v, want tenant fallback 4", snapshot.Load.Total)
	}
	if len(snapshot.Load.Tenants) != 2 {
		t.Fatalf("expected 2 tenant feeds, got %+v", snapshot.Load.Tenants)
	}
}

func TestPowerFlowScopeResolution(t *testing.T) {
	sites := &stubSites{sites: []masterdata.Site{
		{ID: 1, Name: "Site A", Region: "North", ClusterCode: "N1"},
		{ID: 2, Name: "Site B", Region: "South", ClusterCode: "S1"},
	}}
	assets := &stubAssets{}
	store := &stubReadings{}
	service, err := NewPowerFlowService(sites, assets, store, testLogger())
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	ctx := context.Background()

	snapshot, err := service.Snapshot(ctx, Scope{Region: "North"})
	if err != nil {
		t.Fatalf("region scope: %v", err)
	}
	if snapshot.Meta.SitesCount != 1 {
		t.Fatalf("region scope sites = %d, want 1", snapshot.Meta.SitesCount)
	}

	if _, err := service.Snapshot(ctx, Scope{Site: "Nowhere"}); !errors.Is(err, ErrScopeEmpty) {
		t.Fatalf("unknown site should return ErrScopeEmpty, got %v", err)
	}
	if _, err := service.Snapshot(ctx, Scope{Region: "West"}); !errors.Is(err, ErrScopeEmpty) {
		t.Fatalf("empty region should return ErrScopeEmpty, got %v", err)
	}
}
