package application

import (
	"context"
	"errors"
	"log"
	"strings"

	masterdata "sitewatch/internal/masterdata/domain"
	readings "sitewatch/internal/readings/domain"
)

// GridStatus summarizes mains supply across the scoped sites.
type GridStatus struct {
	Available bool    `json:"available"`
	Voltage   float64 `json:"voltage"`
	Frequency float64 `json:"frequency"`
	Power     float64 `json:"power"`
}

// GeneratorStatus summarizes diesel generation across the scoped sites.
type GeneratorStatus struct {
	Status string  `json:"status"`
	Fuel   float64 `json:"fuel"`
	Power  float64 `json:"power"`
}

// SolarStatus summarizes photovoltaic output across the scoped sites.
type SolarStatus struct {
	Current float64 `json:"current"`
	Power   float64 `json:"power"`
}

// BatteryStatus summarizes the DC bank across the scoped sites.
type BatteryStatus struct {
	Voltage  float64 `json:"voltage"`
	SOC      float64 `json:"soc"`
	Charging bool    `json:"charging"`
	Power    float64 `json:"power"`
}

// TenantLoad is one sub-metered tenant feed.
type TenantLoad struct {
	Name  string  `json:"name"`
	Power float64 `json:"power"`
}

// LoadStatus summarizes consumption across the scoped sites.
type LoadStatus struct {
	Total     float64      `json:"total"`
	Rectifier float64      `json:"rectifier"`
	Tenant    float64      `json:"tenant"`
	Tenants   []TenantLoad `json:"tenants"`
}

// Availability holds per-source site ratios for the scoped sample.
type Availability struct {
	Grid               float64 `json:"grid"`
	Generator          float64 `json:"generator"`
	Solar              float64 `json:"solar"`
	BatteryCharging    int     `json:"battery_charging"`
	BatteryDischarging int     `json:"battery_discharging"`
}

// SnapshotMeta describes the scope the snapshot was computed over.
type SnapshotMeta struct {
	Region       string       `json:"region,omitempty"`
	Cluster      string       `json:"cluster,omitempty"`
	Site         string       `json:"site,omitempty"`
	SitesCount   int          `json:"sites_count"`
	Availability Availability `json:"availability"`
}

// PowerFlowSnapshot is the live source-to-load view served to dashboards.
type PowerFlowSnapshot struct {
	Grid         GridStatus      `json:"grid"`
	Generator    GeneratorStatus `json:"generator"`
	Solar        SolarStatus     `json:"solar"`
	Battery      BatteryStatus   `json:"battery"`
	Load         LoadStatus      `json:"load"`
	ActiveSource string          `json:"activeSource"`
	Meta         SnapshotMeta    `json:"meta"`
}

// siteBucket accumulates the latest readings of one site before the
// scope-level collapse.
type siteBucket struct {
	gridAvailable bool
	gridVoltage   float64
	gridFrequency float64
	gridPower     float64
	genPower      float64
	solarPower    float64
	solarCurrent  float64
	batteryNetKW  float64
	batteryV      float64
	batterySOC    float64
	hasSOC        bool
	rectifierKW   float64
	fuelLevel     float64
	tenantLoadKW  float64
	tenantLoads   map[string]float64
}

// PowerFlowService computes live power flow snapshots from the latest
// reading per asset.
type PowerFlowService struct {
	sites    masterdata.SiteRepository
	assets   masterdata.AssetRepository
	readings readings.ReadingRepository
	logger   *log.Logger
}

// NewPowerFlowService constructs the service.
func NewPowerFlowService(sites masterdata.SiteRepository, assets masterdata.AssetRepository, store readings.ReadingRepository, logger *log.Logger) (*PowerFlowService, error) {
	if sites == nil || assets == nil || store == nil {
		return nil, errors.New("power flow: nil repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &PowerFlowService{sites: sites, assets: assets, readings: store, logger: logger}, nil
}

// Snapshot aggregates the latest reading of every asset in scope into one
// source-to-load view. A named site narrows to that site, a region or
// cluster to its members, otherwise every site counts.
func (s *PowerFlowService) Snapshot(ctx context.Context, scope Scope) (*PowerFlowSnapshot, error) {
	sites, err := s.resolveSites(ctx, scope)
	if err != nil {
		return nil, err
	}

	assets, err := s.assets.ListBySites(ctx, siteIDs(sites))
	if err != nil {
		return nil, err
	}
	assetByID := make(map[int64]masterdata.Asset, len(assets))
	assetIDs := make([]int64, 0, len(assets))
	for _, a := range assets {
		assetByID[a.ID] = a
		assetIDs = append(assetIDs, a.ID)
	}

	latest, err := s.readings.LatestByAssets(ctx, assetIDs)
	if err != nil {
		return nil, err
	}

	buckets := make(map[int64]*siteBucket, len(sites))
	for _, site := range sites {
		buckets[site.ID] = &siteBucket{tenantLoads: map[string]float64{}}
	}

	for _, reading := range latest {
		asset, ok := assetByID[reading.AssetID]
		if !ok {
			continue
		}
		bucket, ok := buckets[asset.SiteID]
		if !ok {
			continue
		}
		s.applyReading(bucket, asset, reading.Data)
	}

	return collapse(scope, sites, buckets), nil
}

func (s *PowerFlowService) resolveSites(ctx context.Context, scope Scope) ([]masterdata.Site, error) {
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

func requireSites(sites []masterdata.Site, err error) ([]masterdata.Site, error) {
	if err != nil {
		return nil, err
	}
	if len(sites) == 0 {
		return nil, ErrScopeEmpty
	}
	return sites, nil
}

func siteIDs(sites []masterdata.Site) []int64 {
	ids := make([]int64, 0, len(sites))
	for _, s := range sites {
		ids = append(ids, s.ID)
	}
	return ids
}

// applyReading folds one asset's latest sample into its site bucket.
// Field names vary per meter vendor, so each source probes a list of
// known aliases.
func (s *PowerFlowService) applyReading(bucket *siteBucket, asset masterdata.Asset, data map[string]float64) {
	switch asset.Type {
	case masterdata.AssetACMeter:
		var phases []float64
		if v, ok := pick(data, "voltage_1", "voltage_l1", "Voltage_1 (VAC)", "V_L1_N"); ok && v > 0 {
			phases = append(phases, v)
		}
		if v, ok := pick(data, "voltage_2", "voltage_l2", "Voltage_2 (VAC)", "V_L2_N"); ok && v > 0 {
			phases = append(phases, v)
		}
		if v, ok := pick(data, "voltage_3", "voltage_l3", "Voltage_3 (VAC)", "V_L3_N"); ok && v > 0 {
			phases = append(phases, v)
		}
		avgV := avg(phases)
		if avgV > 0 {
			bucket.gridVoltage = avgV
		}
		// 174 V is the brownout floor below which mains counts as absent.
		if avgV >= 174 {
			bucket.gridAvailable = true
		}
		if f, ok := pick(data, "frequency", "Frequency (Hz)", "AC_Frequency"); ok && f > 0 {
			bucket.gridFrequency = f
		}
		if p, ok := pick(data, "total_active_power", "total_power_kw", "total_power", "Total_Active_Power (kW)"); ok {
			bucket.gridPower += max(0, sanitizeKW(normalizeKW(p)))
		}

	case masterdata.AssetGenerator:
		p, ok := pick(data, "power_kw", "gen_total_watt", "Gen_Total_Power", "total_power_kw", "total_active_power", "P_SUM")
		if !ok || p == 0 {
			p1, _ := pick(data, "p1", "P1")
			p2, _ := pick(data, "p2", "P2")
			p3, _ := pick(data, "p3", "P3")
			p = p1 + p2 + p3
		}
		bucket.genPower += max(0, sanitizeKW(normalizeKW(p)))

	case masterdata.AssetDCMeter:
		name := strings.ToLower(asset.Name)

		battKW, _ := pick(data, "p1_batt", "battery_power", "Battery_Power", "Power1")
		solarKW, _ := pick(data, "p2_solar_y2", "solar_power", "Solar_Power", "Power2")
		battKW = sanitizeKW(normalizeKW(battKW))
		solarKW = sanitizeKW(normalizeKW(solarKW))

		battV, _ := pick(data, "vrms1_batt", "battery_voltage", "Battery_V", "System_DC_Voltage")
		solarV, _ := pick(data, "vrms2_solar_y2", "vrms1_batt")
		if strings.Contains(name, "solar") && solarV == 0 {
			solarV = battV
		}

		bucket.batteryNetKW += battKW
		// Charging sign conventions differ per meter; mix views only care
		// about magnitude.
		bucket.solarPower += absKW(solarKW)
		if battV > 0 && battV > bucket.batteryV {
			bucket.batteryV = battV
		}
		if c, ok := pick(data, "irms2_solar_y2", "Current2", "solar_current"); ok && c > bucket.solarCurrent {
			bucket.solarCurrent = c
		}
		if soc, ok := pick(data, "battery_soc", "state_of_charge"); ok {
			bucket.batterySOC = soc
			bucket.hasSOC = true
		}

		for _, ch := range asset.TenantChannels {
			p, ok := pick(data, ch.Channel)
			if !ok {
				continue
			}
			kw := absKW(sanitizeKW(normalizeKW(p)))
			if kw == 0 {
				continue
			}
			bucket.tenantLoadKW += kw
			bucket.tenantLoads[ch.Tenant] = kw
		}

	case masterdata.AssetRectifier:
		dcV, _ := pick(data, "System_DC_Voltage", "dc_voltage", "DC_Output_V", "Battery_V")
		dcI, _ := pick(data, "Total_DC_Load_Current", "Total_DC_Load_Current (A)", "Total_DC_Load_Amp")
		if dcV > 0 && dcI > 0 {
			bucket.rectifierKW += (dcV * dcI) / 1000.0
		}

	case masterdata.AssetFuelLevel:
		if fuel, ok := pick(data, "fuel_level", "Fuel Level", "Fuel Level (L)", "fuel_level_liters"); ok && fuel > 0 {
			bucket.fuelLevel = fuel
		}
	}
}

// collapse folds the per-site buckets into the scope-level snapshot.
func collapse(scope Scope, sites []masterdata.Site, buckets map[int64]*siteBucket) *PowerFlowSnapshot {
	var (
		gridSites, genSites, solarSites int
		charging, discharging           int

		gridVoltages, gridFrequencies []float64
		batteryVoltages, socs         []float64
		fuelLevels, solarCurrents     []float64

		gridPower, genPower, solarPower float64
		batteryNetKW, rectifierKW       float64
		tenantLoadKW                    float64
	)
	tenants := make([]TenantLoad, 0)

	for _, b := range buckets {
		if b.gridAvailable {
			gridSites++
		}
		if b.genPower > 0.1 {
			genSites++
		}
		if b.solarPower > 0.1 {
			solarSites++
		}
		if b.batteryNetKW > 0.1 {
			charging++
		}
		if b.batteryNetKW < -0.1 {
			discharging++
		}
		if b.gridVoltage > 0 {
			gridVoltages = append(gridVoltages, b.gridVoltage)
		}
		// Only plausible mains frequencies count toward the average.
		if b.gridFrequency >= 40 && b.gridFrequency <= 70 {
			gridFrequencies = append(gridFrequencies, b.gridFrequency)
		}
		if b.batteryV > 0 {
			batteryVoltages = append(batteryVoltages, b.batteryV)
		}
		if b.hasSOC {
			socs = append(socs, b.batterySOC)
		}
		if b.fuelLevel > 0 {
			fuelLevels = append(fuelLevels, b.fuelLevel)
		}
		if b.solarCurrent > 0 {
			solarCurrents = append(solarCurrents, b.solarCurrent)
		}
		gridPower += b.gridPower
		genPower += b.genPower
		solarPower += b.solarPower
		batteryNetKW += b.batteryNetKW
		rectifierKW += b.rectifierKW
		tenantLoadKW += b.tenantLoadKW
		for name, kw := range b.tenantLoads {
			tenants = append(tenants, TenantLoad{Name: name, Power: round(kw, 2)})
		}
	}

	chargingFlag := batteryNetKW >= 0
	if charging > 0 && discharging == 0 {
		chargingFlag = true
	} else if discharging > 0 && charging == 0 {
		chargingFlag = false
	}
	batteryPower := absKW(batteryNetKW)

	// Load preference: rectifier when metered, then tenant channels, then
	// the sum of all sources.
	totalLoad := rectifierKW
	if totalLoad <= 0 {
		totalLoad = tenantLoadKW
	}
	if totalLoad <= 0 {
		totalLoad = gridPower + genPower + solarPower + batteryPower
	}

	activeSource := "battery"
	switch {
	case gridSites > 0 && gridPower > powerThresholdKW:
		activeSource = "grid"
	case solarPower > powerThresholdKW:
		activeSource = "solar"
	case genPower > powerThresholdKW:
		activeSource = "generator"
	}

	total := len(sites)
	ratio := func(n int) float64 {
		if total == 0 {
			return 0
		}
		return round(float64(n)/float64(total)*100, 1)
	}

	genStatus := "stopped"
	if genPower > powerThresholdKW {
		genStatus = "running"
	}

	tenantTotal := round(tenantLoadKW, 2)
	if tenantLoadKW <= 0 {
		tenantTotal = round(totalLoad, 2)
	}

	return &PowerFlowSnapshot{
		Grid: GridStatus{
			Available: gridSites > 0,
			Voltage:   round(avg(gridVoltages), 0),
			Frequency: round(avg(gridFrequencies), 1),
			Power:     round(gridPower, 2),
		},
		Generator: GeneratorStatus{
			Status: genStatus,
			Fuel:   round(avg(fuelLevels), 1),
			Power:  round(genPower, 2),
		},
		Solar: SolarStatus{
			Current: round(avg(solarCurrents), 2),
			Power:   round(solarPower, 2),
		},
		Battery: BatteryStatus{
			Voltage:  round(avg(batteryVoltages), 1),
			SOC:      round(avg(socs), 1),
			Charging: chargingFlag,
			Power:    round(batteryPower, 2),
		},
		Load: LoadStatus{
			Total:     round(totalLoad, 2),
			Rectifier: round(rectifierKW, 2),
			Tenant:    tenantTotal,
			Tenants:   tenants,
		},
		ActiveSource: activeSource,
		Meta: SnapshotMeta{
			Region:     scope.Region,
			Cluster:    scope.Cluster,
			Site:       scope.Site,
			SitesCount: total,
			Availability: Availability{
				Grid:               ratio(gridSites),
				Generator:          ratio(genSites),
				Solar:              ratio(solarSites),
				BatteryCharging:    charging,
				BatteryDischarging: discharging,
			},
		},
	}
}

func absKW(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
