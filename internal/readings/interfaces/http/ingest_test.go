package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	masterdata "sitewatch/internal/masterdata/domain"
	readings "sitewatch/internal/readings/domain"
)

type recordingStore struct {
	inserted []readings.Reading
}

func (s *recordingStore) Insert(_ context.Context, reading *readings.Reading) error {
	reading.ID = int64(len(s.inserted) + 1)
	s.inserted = append(s.inserted, *reading)
	return nil
}

func (s *recordingStore) LatestByAsset(context.Context, int64) (*readings.Reading, error) {
	return nil, nil
}

func (s *recordingStore) LatestByAssets(context.Context, []int64) ([]readings.Reading, error) {
	return nil, nil
}

func (s *recordingStore) WindowByAsset(context.Context, int64, time.Time, time.Time) ([]readings.Reading, error) {
	return nil, nil
}

func (s *recordingStore) RecentByAsset(context.Context, int64, int) ([]readings.Reading, error) {
	return nil, nil
}

type touchingAssets struct {
	touched map[int64]time.Time
}

func (a *touchingAssets) Get(context.Context, int64) (*masterdata.Asset, error) { return nil, nil }
func (a *touchingAssets) List(context.Context) ([]masterdata.Asset, error)      { return nil, nil }
func (a *touchingAssets) ListBySite(context.Context, int64) ([]masterdata.Asset, error) {
	return nil, nil
}
func (a *touchingAssets) ListBySites(context.Context, []int64) ([]masterdata.Asset, error) {
	return nil, nil
}
func (a *touchingAssets) Save(context.Context, *masterdata.Asset) error { return nil }

func (a *touchingAssets) TouchLastReading(_ context.Context, id int64, at time.Time) error {
	if a.touched == nil {
		a.touched = map[int64]time.Time{}
	}
	a.touched[id] = at
	return nil
}

func TestIngestReadings(t *testing.T) {
	store := &recordingStore{}
	assets := &touchingAssets{}
	handler, err := NewIngestHandler(store, assets, nil)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	body := `{"readings":[
		{"asset_id":10,"reading_type":"FUEL","timestamp":"2026-03-10T12:00:00Z","data":{"fuel_level":480}},
		{"asset_id":11,"reading_type":"POWER","timestamp":"2026-03-10T12:00:00Z","data":{"total_active_power":14.2}}
	]}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest/readings", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["inserted"] != 2 {
		t.Fatalf("inserted = %d, want 2", resp["inserted"])
	}
	if len(store.inserted) != 2 {
		t.Fatalf("store got %d readings", len(store.inserted))
	}
	if store.inserted[0].AssetID != 10 || store.inserted[0].ReadingType != readings.TypeFuel {
		t.Fatalf("unexpected first reading: %+v", store.inserted[0])
	}
	if store.inserted[0].Data["fuel_level"] != 480 {
		t.Fatalf("payload lost: %+v", store.inserted[0].Data)
	}
	if _, ok := assets.touched[10]; !ok {
		t.Fatal("asset 10 last_reading_at not touched")
	}
}

func TestIngestRejectsBadPayloads(t *testing.T) {
	handler, err := NewIngestHandler(&recordingStore{}, &touchingAssets{}, nil)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ingest/readings", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET should 405, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest/readings", strings.NewReader("{nope")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid json should 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest/readings", strings.NewReader(`{"readings":[]}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty batch should 400, got %d", rec.Code)
	}
}
