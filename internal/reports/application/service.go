package application

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	alarms "sitewatch/internal/alarms/domain"
	reports "sitewatch/internal/reports/domain"
)

const topSitesLimit = 10

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ServiceOption customizes the report service.
type ServiceOption func(*Service)

// WithClock overrides the clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// Service generates alarm reports and caches them.
type Service struct {
	reports reports.ReportRepository
	alarms  alarms.AlarmRepository
	clock   Clock
	logger  *log.Logger
}

// NewService constructs the service.
func NewService(cache reports.ReportRepository, alarmStore alarms.AlarmRepository, logger *log.Logger, opts ...ServiceOption) (*Service, error) {
	if cache == nil {
		return nil, errors.New("report service: nil report repository")
	}
	if alarmStore == nil {
		return nil, errors.New("report service: nil alarm repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Service{reports: cache, alarms: alarmStore, clock: systemClock{}, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Generate runs the generator for the requested type, caches the result and
// returns it. Archived alarms count: a report covers everything that fired
// in the period, whatever happened to it since.
func (s *Service) Generate(ctx context.Context, reportType reports.ReportType, periodDays int, filters reports.Filters) (*reports.GeneratedReport, error) {
	if !reportType.Valid() {
		return nil, fmt.Errorf("%w: %q", reports.ErrUnknownType, reportType)
	}
	if periodDays <= 0 {
		periodDays = 7
	}

	now := s.clock.Now()
	since := now.AddDate(0, 0, -periodDays)

	population, err := s.loadAlarms(ctx, since, now, filters)
	if err != nil {
		return nil, err
	}

	report := &reports.GeneratedReport{
		ID:          buildReportID(reportType, now),
		Type:        reportType,
		PeriodDays:  periodDays,
		Filters:     filters,
		Report:      buildAlarmReport(population),
		GeneratedAt: now,
	}
	if err := s.reports.Save(ctx, report); err != nil {
		return nil, err
	}
	s.logger.Printf("report generated type=%s id=%s alarms=%d period_days=%d",
		reportType, report.ID, len(population), periodDays)
	return report, nil
}

// Get returns a cached report.
func (s *Service) Get(ctx context.Context, id string) (*reports.GeneratedReport, error) {
	report, err := s.reports.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, reports.ErrNotFound
	}
	return report, nil
}

// List returns recent cached reports, newest first.
func (s *Service) List(ctx context.Context, reportType reports.ReportType, limit int) ([]reports.GeneratedReport, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.reports.List(ctx, reportType, limit)
}

func (s *Service) loadAlarms(ctx context.Context, since, until time.Time, filters reports.Filters) ([]alarms.Alarm, error) {
	all, err := s.alarms.List(ctx, alarms.Filter{
		Severity:        filters.Severity,
		Category:        filters.Category,
		IncludeArchived: true,
	})
	if err != nil {
		return nil, err
	}
	matched := make([]alarms.Alarm, 0, len(all))
	for _, a := range all {
		if a.Timestamp.Before(since) || a.Timestamp.After(until) {
			continue
		}
		if filters.Site != "" && a.SiteName != filters.Site {
			continue
		}
		if filters.Region != "" && a.Region != filters.Region {
			continue
		}
		matched = append(matched, a)
	}
	return matched, nil
}

func buildAlarmReport(population []alarms.Alarm) reports.AlarmReport {
	return reports.AlarmReport{
		Summary:       buildSummary(population),
		TopSites:      buildTopSites(population),
		TopCategories: buildTopCategories(population),
		Trend:         buildTrend(population),
		Recurring:     buildRecurring(population),
	}
}

func buildSummary(population []alarms.Alarm) reports.AlarmSummary {
	summary := reports.AlarmSummary{
		TotalAlarms: len(population),
		BySeverity:  map[string]int{},
		ByStatus:    map[string]int{},
	}

	var ackHours, resolveHours float64
	var ackCount, resolveCount int
	for _, a := range population {
		summary.BySeverity[a.Severity]++
		summary.ByStatus[string(a.Status)]++
		if !a.AcknowledgedAt.IsZero() && a.AcknowledgedAt.After(a.Timestamp) {
			ackHours += a.AcknowledgedAt.Sub(a.Timestamp).Hours()
			ackCount++
		}
		if !a.ResolvedAt.IsZero() && a.ResolvedAt.After(a.Timestamp) {
			resolveHours += a.ResolvedAt.Sub(a.Timestamp).Hours()
			resolveCount++
		}
	}
	if ackCount > 0 {
		summary.MTTAHours = round2(ackHours / float64(ackCount))
	}
	if resolveCount > 0 {
		summary.MTTRHours = round2(resolveHours / float64(resolveCount))
	}
	return summary
}

func buildTopSites(population []alarms.Alarm) []reports.SiteAlarmCount {
	bySite := map[string]*reports.SiteAlarmCount{}
	for _, a := range population {
		name := a.SiteName
		if name == "" {
			name = "Unknown"
		}
		entry, ok := bySite[name]
		if !ok {
			entry = &reports.SiteAlarmCount{SiteName: name, BySeverity: map[string]int{}}
			bySite[name] = entry
		}
		entry.AlarmCount++
		entry.BySeverity[a.Severity]++
	}

	ranked := make([]reports.SiteAlarmCount, 0, len(bySite))
	for _, entry := range bySite {
		ranked = append(ranked, *entry)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].AlarmCount != ranked[j].AlarmCount {
			return ranked[i].AlarmCount > ranked[j].AlarmCount
		}
		return ranked[i].SiteName < ranked[j].SiteName
	})
	if len(ranked) > topSitesLimit {
		ranked = ranked[:topSitesLimit]
	}
	return ranked
}

func buildTopCategories(population []alarms.Alarm) []reports.CategoryCount {
	counts := map[string]int{}
	for _, a := range population {
		category := a.Category
		if category == "" {
			category = "Unknown"
		}
		counts[category]++
	}
	ranked := make([]reports.CategoryCount, 0, len(counts))
	for category, count := range counts {
		ranked = append(ranked, reports.CategoryCount{Category: category, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Category < ranked[j].Category
	})
	if len(ranked) > 5 {
		ranked = ranked[:5]
	}
	return ranked
}

func buildTrend(population []alarms.Alarm) []reports.TrendPoint {
	byDay := map[string]*reports.TrendPoint{}
	for _, a := range population {
		day := a.Timestamp.Format("2006-01-02")
		point, ok := byDay[day]
		if !ok {
			point = &reports.TrendPoint{Date: day, BySeverity: map[string]int{}}
			byDay[day] = point
		}
		point.Count++
		point.BySeverity[a.Severity]++
	}
	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	trend := make([]reports.TrendPoint, 0, len(days))
	for _, day := range days {
		trend = append(trend, *byDay[day])
	}
	return trend
}

func buildRecurring(population []alarms.Alarm) []reports.RecurringAlarm {
	type key struct {
		site      string
		parameter string
	}
	counts := map[key]int{}
	for _, a := range population {
		parameter := a.Details["parameter"]
		if parameter == "" {
			parameter = a.Category
		}
		site := a.SiteName
		if site == "" {
			site = "Unknown"
		}
		counts[key{site: site, parameter: parameter}]++
	}

	recurring := make([]reports.RecurringAlarm, 0)
	for k, count := range counts {
		if count <= 2 {
			continue
		}
		recurring = append(recurring, reports.RecurringAlarm{
			SiteName:        k.site,
			Parameter:       k.parameter,
			OccurrenceCount: count,
		})
	}
	sort.Slice(recurring, func(i, j int) bool {
		if recurring[i].OccurrenceCount != recurring[j].OccurrenceCount {
			return recurring[i].OccurrenceCount > recurring[j].OccurrenceCount
		}
		return recurring[i].SiteName < recurring[j].SiteName
	})
	if len(recurring) > topSitesLimit {
		recurring = recurring[:topSitesLimit]
	}
	return recurring
}

func buildReportID(reportType reports.ReportType, at time.Time) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%s", reportType, at.Format(time.RFC3339Nano))))
	return "report-" + hex.EncodeToString(sum[:])[:12]
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
