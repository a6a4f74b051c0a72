package reports

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a report id does not exist.
var ErrNotFound = errors.New("report: not found")

// ErrUnknownType is returned for report types without a generator.
var ErrUnknownType = errors.New("report: unknown report type")

// ReportType selects the generator a report request runs through.
type ReportType string

const (
	TypeAlarmSummary ReportType = "alarm_summary"
)

// Valid returns true when the report type has a generator.
func (t ReportType) Valid() bool {
	return t == TypeAlarmSummary
}

// Filters narrows the alarm population a report covers. Empty fields match
// everything.
type Filters struct {
	Severity string `json:"severity,omitempty"`
	Category string `json:"category,omitempty"`
	Site     string `json:"site,omitempty"`
	Region   string `json:"region,omitempty"`
}

// AlarmSummary holds the headline figures of an alarm report.
type AlarmSummary struct {
	TotalAlarms int            `json:"total_alarms"`
	BySeverity  map[string]int `json:"by_severity"`
	ByStatus    map[string]int `json:"by_status"`
	MTTAHours   float64        `json:"mtta_hours"`
	MTTRHours   float64        `json:"mttr_hours"`
}

// SiteAlarmCount is one row of the noisiest-sites ranking.
type SiteAlarmCount struct {
	SiteName   string         `json:"site_name"`
	AlarmCount int            `json:"alarm_count"`
	BySeverity map[string]int `json:"by_severity"`
}

// CategoryCount is one row of the category ranking.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// TrendPoint is one day of the alarm volume timeseries.
type TrendPoint struct {
	Date       string         `json:"date"`
	Count      int            `json:"count"`
	BySeverity map[string]int `json:"by_severity"`
}

// RecurringAlarm marks a (site, parameter) pair that fired repeatedly.
type RecurringAlarm struct {
	SiteName        string `json:"site_name"`
	Parameter       string `json:"parameter"`
	OccurrenceCount int    `json:"occurrence_count"`
}

// AlarmReport is the full payload of an alarm summary report.
type AlarmReport struct {
	Summary       AlarmSummary     `json:"summary"`
	TopSites      []SiteAlarmCount `json:"top_sites"`
	TopCategories []CategoryCount  `json:"top_categories"`
	Trend         []TrendPoint     `json:"trend"`
	Recurring     []RecurringAlarm `json:"recurring_alarms"`
}

// GeneratedReport is a cached report run.
type GeneratedReport struct {
	ID          string      `json:"id"`
	Type        ReportType  `json:"report_type"`
	PeriodDays  int         `json:"period_days"`
	Filters     Filters     `json:"filters"`
	Report      AlarmReport `json:"data"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// ReportRepository caches generated reports.
type ReportRepository interface {
	Get(ctx context.Context, id string) (*GeneratedReport, error)
	List(ctx context.Context, reportType ReportType, limit int) ([]GeneratedReport, error)
	Save(ctx context.Context, report *GeneratedReport) error
}
