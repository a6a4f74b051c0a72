package alarms

import (
	"context"
	"time"
)

const (
	StatusActive       = "active"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
	StatusArchived     = "archived"
)

// ResolvedBySystem marks alarms closed by the evaluation pass rather than
// an operator.
const ResolvedBySystem = "system"

// Alarm is a raised rule violation. It is the only lifecycle-bearing entity:
// rules and readings stay immutable while the alarm moves through
// active -> acknowledged -> resolved -> archived.
type Alarm struct {
	ID              string            `json:"id"`
	Timestamp       time.Time         `json:"timestamp"`
	SiteID          int64             `json:"site_id"`
	SiteName        string            `json:"site"`
	Region          string            `json:"region"`
	Severity        string            `json:"severity"`
	Category        string            `json:"category"`
	Message         string            `json:"message"`
	Status          string            `json:"status"`
	Details         map[string]string `json:"details,omitempty"`
	CompositeRuleID int64             `json:"composite_rule_id"`
	ThresholdID     int64             `json:"threshold_id,omitempty"`
	AssetID         int64             `json:"asset_id"`
	ReadingID       int64             `json:"reading_id,omitempty"`
	Source          string            `json:"source,omitempty"`
	AcknowledgedAt  time.Time         `json:"acknowledged_at,omitempty"`
	AcknowledgedBy  string            `json:"acknowledged_by,omitempty"`
	ResolvedAt      time.Time         `json:"resolved_at,omitempty"`
	ResolvedBy      string            `json:"resolved_by,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Open reports whether the alarm still counts against the
// one-open-alarm-per-trigger-key invariant.
func (a Alarm) Open() bool {
	return a.Status == StatusActive || a.Status == StatusAcknowledged
}

// ValidStatus returns true for a known lifecycle status.
func ValidStatus(status string) bool {
	switch status {
	case StatusActive, StatusAcknowledged, StatusResolved, StatusArchived:
		return true
	default:
		return false
	}
}

// ClearAction selects what a bulk clear does with matching alarms.
type ClearAction string

const (
	ClearArchive ClearAction = "archive"
	ClearDelete  ClearAction = "delete"
)

// Valid returns true when the action is supported.
func (a ClearAction) Valid() bool {
	return a == ClearArchive || a == ClearDelete
}

// Filter narrows alarm queries. Zero values mean no constraint; archived
// alarms are excluded unless IncludeArchived is set.
type Filter struct {
	Status          string
	Severity        string
	Category        string
	SiteID          int64
	IncludeArchived bool
}

// AlarmRepository abstracts alarm persistence. Trigger applies the
// create-or-refresh step for one (rule, asset) key atomically.
type AlarmRepository interface {
	Get(ctx context.Context, id string) (*Alarm, error)
	List(ctx context.Context, filter Filter) ([]Alarm, error)
	Trigger(ctx context.Context, alarm *Alarm) (created bool, err error)
	ResolveOpenExcept(ctx context.Context, ruleID int64, matchedAssets []int64, by string, at time.Time) ([]Alarm, error)
	MarkAcknowledged(ctx context.Context, id, by string, at time.Time) error
	MarkResolved(ctx context.Context, id, by string, at time.Time) error
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context, action ClearAction, filter Filter) (int64, error)
}
