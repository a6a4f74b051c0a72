package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sitewatch/internal/dashboard/application"
	masterdata "sitewatch/internal/masterdata/domain"
	readings "sitewatch/internal/readings/domain"
)

type fixedSites struct {
	sites []masterdata.Site
}

func (s fixedSites) Get(context.Context, int64) (*masterdata.Site, error) { return nil, nil }

func (s fixedSites) GetByName(_ context.Context, name string) (*masterdata.Site, error) {
	for _, site := range s.sites {
		if site.Name == name {
			copied := site
			return &copied, nil
		}
	}
	return nil, nil
}

func (s fixedSites) List(context.Context) ([]masterdata.Site, error) { return s.sites, nil }

func (s fixedSites) ListByRegion(_ context.Context, region string) ([]masterdata.Site, error) {
	var out []masterdata.Site
	for _, site := range s.sites {
		if site.Region == region {
			out = append(out, site)
		}
	}
	return out, nil
}

func (s fixedSites) ListByCluster(context.Context, string) ([]masterdata.Site, error) {
	return nil, nil
}

func (s fixedSites) Save(context.Context, *masterdata.Site) error { return nil }

type noAssets struct{}

func (noAssets) Get(context.Context, int64) (*masterdata.Asset, error)            { return nil, nil }
func (noAssets) List(context.Context) ([]masterdata.Asset, error)                 { return nil, nil }
func (noAssets) ListBySite(context.Context, int64) ([]masterdata.Asset, error)    { return nil, nil }
func (noAssets) ListBySites(context.Context, []int64) ([]masterdata.Asset, error) { return nil, nil }
func (noAssets) Save(context.Context, *masterdata.Asset) error                    { return nil }
func (noAssets) TouchLastReading(context.Context, int64, time.Time) error         { return nil }

type noReadings struct{}

func (noReadings) Insert(context.Context, *readings.Reading) error { return nil }
func (noReadings) LatestByAsset(context.Context, int64) (*readings.Reading, error) {
	return nil, nil
}
func (noReadings) LatestByAssets(context.Context, []int64) ([]readings.Reading, error) {
	return nil, nil
}
func (noReadings) WindowByAsset(context.Context, int64, time.Time, time.Time) ([]readings.Reading, error) {
	return nil, nil
}
func (noReadings) RecentByAsset(context.Context, int64, int) ([]readings.Reading, error) {
	return nil, nil
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	sites := fixedSites{sites: []masterdata.Site{{ID: 1, Name: "Site A", Region: "North"}}}
	powerFlow, err := application.NewPowerFlowService(sites, noAssets{}, noReadings{}, nil)
	if err != nil {
		t.Fatalf("power flow service: %v", err)
	}
	energyMix, err := application.NewEnergyMixService(sites, noAssets{}, noReadings{}, nil)
	if err != nil {
		t.Fatalf("energy mix service: %v", err)
	}
	handler, err := NewHandler(powerFlow, energyMix)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	return handler
}

func TestPowerFlowEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/power-flow?region=North", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var payload map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := payload["activeSource"]; !ok {
		t.Fatalf("missing activeSource: %v", payload)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/power-flow?site=Nowhere", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown site should 404, got %d", rec.Code)
	}
}

func TestEnergyMixEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/energy-mix?hours=6", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var series []map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&series); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(series) != 6 {
		t.Fatalf("expected 6 points, got %d", len(series))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/energy-mix?hours=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid hours should 400, got %d", rec.Code)
	}
}

func TestDashboardRouting(t *testing.T) {
	handler := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/dashboard/power-flow", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST should 405, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/other", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown path should 404, got %d", rec.Code)
	}
}
