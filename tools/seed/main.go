// Command seed populates a sitewatch database with demo sites, assets and a
// trailing window of telemetry. Readings go through POST /ingest/readings when
// -base-url is set, otherwise straight into the reading table.
package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	masterdata "sitewatch/internal/masterdata/domain"
	masterdatarepo "sitewatch/internal/masterdata/infrastructure/postgres"
	readings "sitewatch/internal/readings/domain"
	readingrepo "sitewatch/internal/readings/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type config struct {
	dsn             string
	baseURL         string
	sitePrefix      string
	siteCount       int
	hours           int
	intervalMinutes int
	seed            int64
}

var regions = []string{"North", "South", "East", "West"}

func main() {
	cfg := parseConfig()
	if cfg.dsn == "" {
		log.Fatal("PG_DSN or DATABASE_URL is required")
	}
	if cfg.siteCount <= 0 {
		log.Fatal("site-count must be > 0")
	}
	if cfg.hours <= 0 {
		log.Fatal("hours must be > 0")
	}
	if cfg.intervalMinutes <= 0 {
		log.Fatal("interval-minutes must be > 0")
	}

	db, err := sql.Open("pgx", cfg.dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	rng := rand.New(rand.NewSource(cfg.seed))

	siteRepo := masterdatarepo.NewSiteRepository(db)
	assetRepo := masterdatarepo.NewAssetRepository(db)

	log.Printf("seeding master data: sites=%d", cfg.siteCount)
	sites, assetsBySite, err := seedMasterData(ctx, siteRepo, assetRepo, cfg)
	if err != nil {
		log.Fatalf("seed master data: %v", err)
	}

	var sink readingSink
	if cfg.baseURL != "" {
		sink = &httpSink{baseURL: strings.TrimRight(cfg.baseURL, "/"), client: &http.Client{Timeout: 30 * time.Second}}
		log.Printf("feeding readings through %s/ingest/readings", strings.TrimRight(cfg.baseURL, "/"))
	} else {
		sink = &dbSink{repo: readingrepo.NewReadingRepository(db), assets: assetRepo}
		log.Printf("inserting readings directly")
	}

	total := 0
	start := time.Now().UTC().Add(-time.Duration(cfg.hours) * time.Hour).Truncate(time.Minute)
	for _, site := range sites {
		batch := buildReadings(rng, assetsBySite[site.ID], start, cfg.hours, cfg.intervalMinutes)
		if err := sink.write(ctx, batch); err != nil {
			log.Fatalf("write readings for %s: %v", site.Name, err)
		}
		total += len(batch)
		log.Printf("seeded %s: assets=%d readings=%d", site.Name, len(assetsBySite[site.ID]), len(batch))
	}
	log.Printf("seed completed: sites=%d readings=%d", len(sites), total)
}

func parseConfig() config {
	cfg := config{}
	flag.StringVar(&cfg.dsn, "pg-dsn", envOrDefault("PG_DSN", envOrDefault("DATABASE_URL", "")), "Postgres DSN")
	flag.StringVar(&cfg.baseURL, "base-url", envOrDefault("BASE_URL", ""), "monitor base URL; empty writes readings directly")
	flag.StringVar(&cfg.sitePrefix, "site-prefix", envOrDefault("SITE_PREFIX", "Demo Site "), "site name prefix")
	flag.IntVar(&cfg.siteCount, "site-count", envOrInt("SITE_COUNT", 5), "number of sites to seed")
	flag.IntVar(&cfg.hours, "hours", envOrInt("HOURS", 24), "trailing hours of telemetry")
	flag.IntVar(&cfg.intervalMinutes, "interval-minutes", envOrInt("INTERVAL_MINUTES", 15), "minutes between readings")
	flag.Int64Var(&cfg.seed, "seed", 1, "random seed")
	flag.Parse()
	return cfg
}

func seedMasterData(ctx context.Context, siteRepo *masterdatarepo.SiteRepository, assetRepo *masterdatarepo.AssetRepository, cfg config) ([]masterdata.Site, map[int64][]masterdata.Asset, error) {
	sites := make([]masterdata.Site, 0, cfg.siteCount)
	assetsBySite := make(map[int64][]masterdata.Asset, cfg.siteCount)

	for i := 1; i <= cfg.siteCount; i++ {
		region := regions[(i-1)%len(regions)]
		site := masterdata.Site{
			ExternalID:  fmt.Sprintf("seed-site-%04d", i),
			Name:        fmt.Sprintf("%s%d", cfg.sitePrefix, i),
			Region:      region,
			ClusterCode: fmt.Sprintf("%s%d", strings.ToUpper(region[:1]), (i-1)/len(regions)+1),
		}
		existing, err := siteRepo.GetByName(ctx, site.Name)
		if err != nil {
			return nil, nil, err
		}
		if existing != nil {
			site.ID = existing.ID
		}
		if err := siteRepo.Save(ctx, &site); err != nil {
			return nil, nil, err
		}

		templates := []masterdata.Asset{
			{Name: "Grid Meter", Type: masterdata.AssetACMeter},
			{Name: "Generator 1", Type: masterdata.AssetGenerator},
			{Name: "DC Meter", Type: masterdata.AssetDCMeter, TenantChannels: []masterdata.TenantChannel{
				{Channel: "Power3", Tenant: "Tenant A"},
			}},
			{Name: "Rectifier", Type: masterdata.AssetRectifier},
			{Name: "Fuel Tank", Type: masterdata.AssetFuelLevel},
		}
		current, err := assetRepo.ListBySite(ctx, site.ID)
		if err != nil {
			return nil, nil, err
		}
		byName := make(map[string]int64, len(current))
		for _, a := range current {
			byName[a.Name] = a.ID
		}
		for j := range templates {
			asset := templates[j]
			asset.SiteID = site.ID
			asset.ExternalID = fmt.Sprintf("%s-a%d", site.ExternalID, j+1)
			asset.ID = byName[asset.Name]
			if err := assetRepo.Save(ctx, &asset); err != nil {
				return nil, nil, err
			}
			assetsBySite[site.ID] = append(assetsBySite[site.ID], asset)
		}
		sites = append(sites, site)
	}
	return sites, assetsBySite, nil
}

func buildReadings(rng *rand.Rand, assets []masterdata.Asset, start time.Time, hours, intervalMinutes int) []readings.Reading {
	samples := hours * 60 / intervalMinutes
	fuel := 800 + rng.Float64()*200
	batch := make([]readings.Reading, 0, samples*len(assets))

	for s := 0; s < samples; s++ {
		ts := start.Add(time.Duration(s*intervalMinutes) * time.Minute)
		// Fuel drains slowly and every so often the tank is refilled.
		fuel -= rng.Float64() * 2
		if fuel < 150 {
			fuel = 800 + rng.Float64()*200
		}
		for _, asset := range assets {
			reading := readings.Reading{
				AssetID:   asset.ID,
				Timestamp: ts,
			}
			switch asset.Type {
			case masterdata.AssetACMeter:
				reading.ReadingType = readings.TypePower
				reading.Data = map[string]float64{
					"voltage_1":          225 + rng.Float64()*15,
					"voltage_2":          225 + rng.Float64()*15,
					"voltage_3":          225 + rng.Float64()*15,
					"frequency":          49.5 + rng.Float64(),
					"total_active_power": 8 + rng.Float64()*10,
				}
			case masterdata.AssetGenerator:
				reading.ReadingType = readings.TypePower
				reading.Data = map[string]float64{
					"power_kw": rng.Float64() * 0.2,
				}
			case masterdata.AssetDCMeter:
				reading.ReadingType = readings.TypePower
				reading.Data = map[string]float64{
					"p1_batt":        -1 + rng.Float64()*2,
					"p2_solar_y2":    rng.Float64() * 4,
					"vrms1_batt":     47 + rng.Float64()*3,
					"irms2_solar_y2": rng.Float64() * 40,
					"Power3":         1 + rng.Float64()*2,
				}
			case masterdata.AssetRectifier:
				reading.ReadingType = readings.TypePower
				reading.Data = map[string]float64{
					"System_DC_Voltage":     47 + rng.Float64()*3,
					"Total_DC_Load_Current": 60 + rng.Float64()*60,
				}
			case masterdata.AssetFuelLevel:
				reading.ReadingType = readings.TypeFuel
				reading.Data = map[string]float64{
					"fuel_level": fuel,
				}
			default:
				continue
			}
			batch = append(batch, reading)
		}
	}
	return batch
}

type readingSink interface {
	write(ctx context.Context, batch []readings.Reading) error
}

type dbSink struct {
	repo   *readingrepo.ReadingRepository
	assets *masterdatarepo.AssetRepository
}

func (s *dbSink) write(ctx context.Context, batch []readings.Reading) error {
	for i := range batch {
		if err := s.repo.Insert(ctx, &batch[i]); err != nil {
			return err
		}
		if err := s.assets.TouchLastReading(ctx, batch[i].AssetID, batch[i].Timestamp); err != nil {
			return err
		}
	}
	return nil
}

type httpSink struct {
	baseURL string
	client  *http.Client
}

const ingestBatchSize = 500

func (s *httpSink) write(ctx context.Context, batch []readings.Reading) error {
	for offset := 0; offset < len(batch); offset += ingestBatchSize {
		end := offset + ingestBatchSize
		if end > len(batch) {
			end = len(batch)
		}
		if err := s.post(ctx, batch[offset:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *httpSink) post(ctx context.Context, chunk []readings.Reading) error {
	type ingestReading struct {
		AssetID     int64              `json:"asset_id"`
		ReadingType string             `json:"reading_type"`
		Timestamp   time.Time          `json:"timestamp"`
		Data        map[string]float64 `json:"data"`
	}
	payload := struct {
		Readings []ingestReading `json:"readings"`
	}{Readings: make([]ingestReading, 0, len(chunk))}
	for _, r := range chunk {
		payload.Readings = append(payload.Readings, ingestReading{
			AssetID:     r.AssetID,
			ReadingType: string(r.ReadingType),
			Timestamp:   r.Timestamp,
			Data:        r.Data,
		})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/ingest/readings", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ingest failed: http %d", resp.StatusCode)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
