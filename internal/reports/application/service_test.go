package application

import (
	"context"
	"errors"
	"log"
	"os"
	"sort"
	"testing"
	"time"

	alarms "sitewatch/internal/alarms/domain"
	reports "sitewatch/internal/reports/domain"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type stubAlarms struct {
	list []alarms.Alarm
}

func (s *stubAlarms) Get(_ context.Context, id string) (*alarms.Alarm, error) {
	for _, a := range s.list {
		if a.ID == id {
			copied := a
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *stubAlarms) List(_ context.Context, filter alarms.Filter) ([]alarms.Alarm, error) {
	var out []alarms.Alarm
	for _, a := range s.list {
		if filter.Severity != "" && a.Severity != filter.Severity {
			continue
		}
		if filter.Category != "" && a.Category != filter.Category {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *stubAlarms) Trigger(context.Context, *alarms.Alarm) (bool, error) { return false, nil }

func (s *stubAlarms) ResolveOpenExcept(context.Context, int64, []int64, string, time.Time) ([]alarms.Alarm, error) {
	return nil, nil
}

func (s *stubAlarms) MarkAcknowledged(context.Context, string, string, time.Time) error { return nil }
func (s *stubAlarms) MarkResolved(context.Context, string, string, time.Time) error     { return nil }
func (s *stubAlarms) Delete(context.Context, string) error                              { return nil }

func (s *stubAlarms) Clear(context.Context, alarms.ClearAction, alarms.Filter) (int64, error) {
	return 0, nil
}

type memoryReports struct {
	data map[string]reports.GeneratedReport
}

func newMemoryReports() *memoryReports {
	return &memoryReports{data: map[string]reports.GeneratedReport{}}
}

func (m *memoryReports) Get(_ context.Context, id string) (*reports.GeneratedReport, error) {
	report, ok := m.data[id]
	if !ok {
		return nil, nil
	}
	copied := report
	return &copied, nil
}

func (m *memoryReports) List(_ context.Context, reportType reports.ReportType, limit int) ([]reports.GeneratedReport, error) {
	var out []reports.GeneratedReport
	for _, report := range m.data {
		if reportType != "" && report.Type != reportType {
			continue
		}
		out = append(out, report)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GeneratedAt.After(out[j].GeneratedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryReports) Save(_ context.Context, report *reports.GeneratedReport) error {
	m.data[report.ID] = *report
	return nil
}

var reportNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func reportAlarm(id, site, region, severity, category, parameter string, age time.Duration) alarms.Alarm {
	ts := reportNow.Add(-age)
	return alarms.Alarm{
		ID:        id,
		Timestamp: ts,
		SiteName:  site,
		Region:    region,
		Severity:  severity,
		Category:  category,
		Status:    alarms.StatusActive,
		Details:   map[string]string{"parameter": parameter},
	}
}

func newReportService(t *testing.T, store *stubAlarms) (*Service, *memoryReports) {
	t.Helper()
	cache := newMemoryReports()
	service, err := NewService(cache, store, log.New(os.Stdout, "", 0), WithClock(fixedClock{now: reportNow}))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return service, cache
}

func TestGenerateAlarmSummary(t *testing.T) {
	resolved := reportAlarm("a1", "Site A", "North", "high", "Fuel", "fuel_level", 2*time.Hour)
	resolved.Status = alarms.StatusResolved
	resolved.AcknowledgedAt = resolved.Timestamp.Add(time.Hour)
	resolved.ResolvedAt = resolved.Timestamp.Add(90 * time.Minute)

	store := &stubAlarms{list: []alarms.Alarm{
		resolved,
		reportAlarm("a2", "Site A", "North", "low", "Battery", "battery_voltage", 3*time.Hour),
		reportAlarm("a3", "Site B", "South", "high", "Fuel", "fuel_level", 4*time.Hour),
	}}
	service, _ := newReportService(t, store)

	report, err := service.Generate(context.Background(), reports.TypeAlarmSummary, 7, reports.Filters{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	summary := report.Report.Summary
	if summary.TotalAlarms != 3 {
		t.Fatalf("total = %d, want 3", summary.TotalAlarms)
	}
	if summary.BySeverity["high"] != 2 || summary.BySeverity["low"] != 1 {
		t.Fatalf("by_severity = %+v", summary.BySeverity)
	}
	if summary.ByStatus["resolved"] != 1 || summary.ByStatus["active"] != 2 {
		t.Fatalf("by_status = %+v", summary.ByStatus)
	}
	if summary.MTTAHours != 1 {
		t.Fatalf("mtta = %v, want 1", summary.MTTAHours)
	}
	if summary.MTTRHours != 1.5 {
		t.Fatalf("mttr = %v, want 1.5", summary.MTTRHours)
	}

	if len(report.Report.TopSites) != 2 || report.Report.TopSites[0].SiteName != "Site A" {
		t.Fatalf("top sites = %+v", report.Report.TopSites)
	}
	if len(report.Report.TopCategories) != 2 || report.Report.TopCategories[0].Category != "Fuel" {
		t.Fatalf("top categories = %+v", report.Report.TopCategories)
	}
	if len(report.Report.Trend) != 1 || report.Report.Trend[0].Count != 3 {
		t.Fatalf("trend = %+v", report.Report.Trend)
	}
}

func TestGenerateExcludesAlarmsOutsidePeriod(t *testing.T) {
	store := &stubAlarms{list: []alarms.Alarm{
		reportAlarm("a1", "Site A", "North", "high", "Fuel", "fuel_level", 2*time.Hour),
		reportAlarm("a2", "Site A", "North", "high", "Fuel", "fuel_level", 10*24*time.Hour),
	}}
	service, _ := newReportService(t, store)

	report, err := service.Generate(context.Background(), reports.TypeAlarmSummary, 7, reports.Filters{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.Report.Summary.TotalAlarms != 1 {
		t.Fatalf("total = %d, want 1", report.Report.Summary.TotalAlarms)
	}
	if report.PeriodDays != 7 {
		t.Fatalf("period = %d, want 7", report.PeriodDays)
	}
}

func TestGenerateRecurringAlarms(t *testing.T) {
	store := &stubAlarms{list: []alarms.Alarm{
		reportAlarm("a1", "Site A", "North", "high", "Fuel", "fuel_level", 1*time.Hour),
		reportAlarm("a2", "Site A", "North", "high", "Fuel", "fuel_level", 2*time.Hour),
		reportAlarm("a3", "Site A", "North", "high", "Fuel", "fuel_level", 3*time.Hour),
		reportAlarm("a4", "Site B", "South", "low", "Battery", "battery_voltage", 1*time.Hour),
		reportAlarm("a5", "Site B", "South", "low", "Battery", "battery_voltage", 2*time.Hour),
	}}
	service, _ := newReportService(t, store)

	report, err := service.Generate(context.Background(), reports.TypeAlarmSummary, 7, reports.Filters{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	recurring := report.Report.Recurring
	if len(recurring) != 1 {
		t.Fatalf("recurring = %+v, want only the 3x pattern", recurring)
	}
	if recurring[0].SiteName != "Site A" || recurring[0].Parameter != "fuel_level" || recurring[0].OccurrenceCount != 3 {
		t.Fatalf("recurring = %+v", recurring[0])
	}
}

func TestGenerateAppliesFilters(t *testing.T) {
	store := &stubAlarms{list: []alarms.Alarm{
		reportAlarm("a1", "Site A", "North", "high", "Fuel", "fuel_level", 1*time.Hour),
		reportAlarm("a2", "Site B", "South", "high", "Fuel", "fuel_level", 1*time.Hour),
		reportAlarm("a3", "Site A", "North", "low", "Battery", "battery_voltage", 1*time.Hour),
	}}
	service, _ := newReportService(t, store)
	ctx := context.Background()

	report, err := service.Generate(ctx, reports.TypeAlarmSummary, 7, reports.Filters{Region: "North"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.Report.Summary.TotalAlarms != 2 {
		t.Fatalf("region filter total = %d, want 2", report.Report.Summary.TotalAlarms)
	}

	report, err = service.Generate(ctx, reports.TypeAlarmSummary, 7, reports.Filters{Site: "Site B", Severity: "high"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.Report.Summary.TotalAlarms != 1 {
		t.Fatalf("site filter total = %d, want 1", report.Report.Summary.TotalAlarms)
	}
}

func TestGenerateUnknownType(t *testing.T) {
	service, _ := newReportService(t, &stubAlarms{})
	if _, err := service.Generate(context.Background(), "uptime", 7, reports.Filters{}); !errors.Is(err, reports.ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestGeneratedReportIsCached(t *testing.T) {
	store := &stubAlarms{list: []alarms.Alarm{
		reportAlarm("a1", "Site A", "North", "high", "Fuel", "fuel_level", 1*time.Hour),
	}}
	service, _ := newReportService(t, store)
	ctx := context.Background()

	report, err := service.Generate(ctx, reports.TypeAlarmSummary, 7, reports.Filters{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	cached, err := service.Get(ctx, report.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cached.ID != report.ID || cached.Report.Summary.TotalAlarms != 1 {
		t.Fatalf("cached = %+v", cached)
	}

	if _, err := service.Get(ctx, "report-missing"); !errors.Is(err, reports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	list, err := service.List(ctx, reports.TypeAlarmSummary, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("list = %d entries, want 1", len(list))
	}
}
