package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	alarms "sitewatch/internal/alarms/domain"
	alarmmemory "sitewatch/internal/alarms/infrastructure/memory"
	masterdata "sitewatch/internal/masterdata/domain"
	readings "sitewatch/internal/readings/domain"
	rules "sitewatch/internal/rules/domain"
	rulememory "sitewatch/internal/rules/infrastructure/memory"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

type stubSites struct {
	sites   []masterdata.Site
	failIDs map[int64]bool
}

func (s *stubSites) Get(_ context.Context, id int64) (*masterdata.Site, error) {
	if s.failIDs[id] {
		return nil, fmt.Errorf("site %d unavailable", id)
	}
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

func (s *stubAssets) ListBySite(_ context.Context, siteID int64) ([]masterdata.Asset, error) {
	return s.ListBySites(context.Background(), []int64{siteID})
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
	latest map[int64]readings.Reading
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

func (s *stubReadings) WindowByAsset(context.Context, int64, time.Time, time.Time) ([]readings.Reading, error) {
	return nil, nil
}

func (s *stubReadings) RecentByAsset(_ context.Context, assetID int64, _ int) ([]readings.Reading, error) {
	if r, ok := s.latest[assetID]; ok {
		return []readings.Reading{r}, nil
	}
	return nil, nil
}

type lifecycleFixture struct {
	service  *Service
	alarms   *alarmmemory.AlarmRepository
	rules    *rulememory.RuleRepository
	readings *stubReadings
	clock    *fixedClock
	rule     rules.CompositeRule
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()

	sites := &stubSites{sites: []masterdata.Site{
		{ID: 1, Name: "Site A", Region: "North"},
	}}
	assets := &stubAssets{assets: []masterdata.Asset{
		{ID: 10, SiteID: 1, Name: "Fuel Tank A", Type: masterdata.AssetFuelLevel},
	}}
	store := &stubReadings{latest: map[int64]readings.Reading{
		10: {
			ID:        1,
			AssetID:   10,
			Timestamp: time.Date(2026, 3, 10, 11, 59, 0, 0, time.UTC),
			Data:      map[string]float64{"fuel_level": 80},
		},
	}}

	snapshots, err := NewSnapshotBuilder(sites, assets, store)
	if err != nil {
		t.Fatalf("snapshot builder: %v", err)
	}

	alarmRepo := alarmmemory.NewAlarmRepository()
	ruleRepo := rulememory.NewRuleRepository()
	clock := &fixedClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}

	service, err := NewService(alarmRepo, ruleRepo, snapshots, log.New(os.Stdout, "", 0), WithClock(clock))
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	rule := rules.CompositeRule{
		Name:     "Fuel Level Low",
		Severity: "high",
		Category: "Fuel",
		RuleType: rules.RuleTypeSimple,
		Enabled:  true,
		Conditions: []rules.Condition{
			{Parameter: "fuel_level", Comparator: rules.ComparatorLess, Value: 100, Unit: "L"},
		},
		LogicalOperator: rules.LogicalAnd,
		AppliesTo:       rules.ScopeAll,
	}
	if err := ruleRepo.Save(context.Background(), &rule); err != nil {
		t.Fatalf("save rule: %v", err)
	}

	return &lifecycleFixture{
		service:  service,
		alarms:   alarmRepo,
		rules:    ruleRepo,
		readings: store,
		clock:    clock,
		rule:     rule,
	}
}

func (f *lifecycleFixture) openAlarm(t *testing.T) alarms.Alarm {
	t.Helper()
	list, err := f.alarms.List(context.Background(), alarms.Filter{IncludeArchived: true})
	if err != nil {
		t.Fatalf("list alarms: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected exactly 1 alarm, got %d", len(list))
	}
	return list[0]
}

func (f *lifecycleFixture) setFuelLevel(value float64) {
	reading := f.readings.latest[10]
	reading.ID++
	reading.Timestamp = f.clock.now
	reading.Data = map[string]float64{"fuel_level": value}
	f.readings.latest[10] = reading
}

func TestEvaluateRuleCreatesAlarm(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	if err := f.service.EvaluateRule(ctx, f.rule); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	alarm := f.openAlarm(t)
	if alarm.Status != alarms.StatusActive {
		t.Fatalf("expected active alarm, got %q", alarm.Status)
	}
	if alarm.Message != "Fuel Level Low: 80.00L at Fuel Tank A" {
		t.Fatalf("unexpected message: %q", alarm.Message)
	}
	if alarm.SiteName != "Site A" || alarm.Region != "North" || alarm.Severity != "high" {
		t.Fatalf("unexpected alarm fields: %+v", alarm)
	}
	if alarm.Details["parameter"] != "fuel_level" || alarm.Details["currentValue"] != "80.00L" {
		t.Fatalf("unexpected details: %+v", alarm.Details)
	}

	stored, err := f.rules.Get(ctx, f.rule.ID)
	if err != nil {
		t.Fatalf("get rule: %v", err)
	}
	if stored.TriggerCount != 1 {
		t.Fatalf("expected trigger count 1, got %d", stored.TriggerCount)
	}
	if !stored.LastTriggered.Equal(f.clock.now) {
		t.Fatalf("last triggered not recorded: %v", stored.LastTriggered)
	}
}

func TestEvaluateRuleRetriggerIsIdempotent(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.clock.now = f.clock.now.Add(2 * time.Minute)
		if err := f.service.EvaluateRule(ctx, f.rule); err != nil {
			t.Fatalf("evaluate %d: %v", i, err)
		}
	}

	alarm := f.openAlarm(t)
	if alarm.Status != alarms.StatusActive {
		t.Fatalf("expected active, got %q", alarm.Status)
	}

	stored, _ := f.rules.Get(ctx, f.rule.ID)
	if stored.TriggerCount != 1 {
		t.Fatalf("re-trigger must not increment trigger count: %d", stored.TriggerCount)
	}
}

func TestEvaluateRulePreservesAcknowledgement(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	if err := f.service.EvaluateRule(ctx, f.rule); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	alarm := f.openAlarm(t)
	if _, err := f.service.Acknowledge(ctx, alarm.ID, "operator"); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	f.clock.now = f.clock.now.Add(2 * time.Minute)
	if err := f.service.EvaluateRule(ctx, f.rule); err != nil {
		t.Fatalf("re-evaluate: %v", err)
	}

	refreshed := f.openAlarm(t)
	if refreshed.Status != alarms.StatusAcknowledged {
		t.Fatalf("acknowledgement lost on re-trigger: %q", refreshed.Status)
	}
	if refreshed.AcknowledgedBy != "operator" {
		t.Fatalf("acknowledged_by lost: %q", refreshed.AcknowledgedBy)
	}
}

func TestEvaluateRuleAutoResolves(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	if err := f.service.EvaluateRule(ctx, f.rule); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	f.clock.now = f.clock.now.Add(2 * time.Minute)
	f.setFuelLevel(150)
	if err := f.service.EvaluateRule(ctx, f.rule); err != nil {
		t.Fatalf("re-evaluate: %v", err)
	}

	alarm := f.openAlarm(t)
	if alarm.Status != alarms.StatusResolved {
		t.Fatalf("expected resolved, got %q", alarm.Status)
	}
	if alarm.ResolvedBy != alarms.ResolvedBySystem {
		t.Fatalf("expected system resolution, got %q", alarm.ResolvedBy)
	}

	stored, _ := f.rules.Get(ctx, f.rule.ID)
	if stored.TriggerCount != 1 {
		t.Fatalf("auto-resolve must not change trigger count: %d", stored.TriggerCount)
	}
}

func TestAcknowledgeInvalidTransitions(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	if err := f.service.EvaluateRule(ctx, f.rule); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	alarm := f.openAlarm(t)

	if _, err := f.service.Resolve(ctx, alarm.ID, "operator"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := f.service.Acknowledge(ctx, alarm.ID, "operator"); !errors.Is(err, alarms.ErrInvalidTransition) {
		t.Fatalf("acknowledging a resolved alarm should fail, got %v", err)
	}
	if _, err := f.service.UpdateStatus(ctx, alarm.ID, alarms.StatusArchived, "operator"); !errors.Is(err, alarms.ErrInvalidTransition) {
		t.Fatalf("archiving via status update should fail, got %v", err)
	}

	// Resolving twice is a no-op, not an error.
	if _, err := f.service.Resolve(ctx, alarm.ID, "operator"); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
}

func TestClearArchivePreservesRuleStats(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	if err := f.service.EvaluateRule(ctx, f.rule); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	count, err := f.service.Clear(ctx, alarms.ClearArchive, alarms.Filter{})
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 cleared, got %d", count)
	}

	alarm := f.openAlarm(t)
	if alarm.Status != alarms.StatusArchived {
		t.Fatalf("expected archived, got %q", alarm.Status)
	}
	stored, _ := f.rules.Get(ctx, f.rule.ID)
	if stored.TriggerCount != 1 {
		t.Fatalf("clear must not touch trigger count: %d", stored.TriggerCount)
	}
}

func TestClearDelete(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	if err := f.service.EvaluateRule(ctx, f.rule); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	count, err := f.service.Clear(ctx, alarms.ClearDelete, alarms.Filter{})
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 deleted, got %d", count)
	}
	list, _ := f.alarms.List(ctx, alarms.Filter{IncludeArchived: true})
	if len(list) != 0 {
		t.Fatalf("expected no alarms after delete, got %d", len(list))
	}
}

func TestClearRejectsUnknownAction(t *testing.T) {
	f := newLifecycleFixture(t)
	if _, err := f.service.Clear(context.Background(), "purge", alarms.Filter{}); err == nil {
		t.Fatal("expected error for unknown clear action")
	}
}

func TestApplyStartupPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("off", func(t *testing.T) {
		f := newLifecycleFixture(t)
		if err := f.service.EvaluateRule(ctx, f.rule); err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if err := f.service.ApplyStartupPolicy(ctx, StartupOff); err != nil {
			t.Fatalf("off policy: %v", err)
		}
		if f.openAlarm(t).Status != alarms.StatusActive {
			t.Fatal("off policy must not touch alarms")
		}
	})

	t.Run("archive", func(t *testing.T) {
		f := newLifecycleFixture(t)
		if err := f.service.EvaluateRule(ctx, f.rule); err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if err := f.service.ApplyStartupPolicy(ctx, StartupArchive); err != nil {
			t.Fatalf("archive policy: %v", err)
		}
		if f.openAlarm(t).Status != alarms.StatusArchived {
			t.Fatal("archive policy should archive open alarms")
		}
	})

	t.Run("delete", func(t *testing.T) {
		f := newLifecycleFixture(t)
		if err := f.service.EvaluateRule(ctx, f.rule); err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if err := f.service.ApplyStartupPolicy(ctx, StartupDelete); err != nil {
			t.Fatalf("delete policy: %v", err)
		}
		list, _ := f.alarms.List(ctx, alarms.Filter{IncludeArchived: true})
		if len(list) != 0 {
			t.Fatalf("delete policy should remove alarms, got %d", len(list))
		}
	})

	t.Run("unknown", func(t *testing.T) {
		f := newLifecycleFixture(t)
		if err := f.service.ApplyStartupPolicy(ctx, "explode"); err == nil {
			t.Fatal("expected error for unknown policy")
		}
	})
}
