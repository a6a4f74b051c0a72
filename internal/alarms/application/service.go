package application

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	alarms "sitewatch/internal/alarms/domain"
	"sitewatch/internal/observability/metrics"
	rules "sitewatch/internal/rules/domain"
)

// AlarmNotifier publishes alarm lifecycle events.
type AlarmNotifier interface {
	Notify(ctx context.Context, event AlarmEvent)
}

// AlarmEvent represents a lifecycle update.
type AlarmEvent struct {
	Type  string       `json:"type"`
	Alarm alarms.Alarm `json:"alarm"`
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// StartupPolicy governs pre-existing alarms when the process starts.
type StartupPolicy string

const (
	StartupArchive StartupPolicy = "archive"
	StartupOff     StartupPolicy = "off"
	StartupDelete  StartupPolicy = "delete"
)

// Valid returns true when the policy is supported.
func (p StartupPolicy) Valid() bool {
	return p == StartupArchive || p == StartupOff || p == StartupDelete
}

// Service owns alarm state transitions and the per-rule evaluation step.
type Service struct {
	alarms    alarms.AlarmRepository
	rules     rules.CompositeRuleRepository
	snapshots *SnapshotBuilder
	notifier  AlarmNotifier
	clock     Clock
	logger    *log.Logger
}

// ServiceOption customizes the alarm service.
type ServiceOption func(*Service)

// WithNotifier assigns a notifier.
func WithNotifier(notifier AlarmNotifier) ServiceOption {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		s.clock = clock
	}
}

// NewService constructs an alarm service.
func NewService(alarmRepo alarms.AlarmRepository, ruleRepo rules.CompositeRuleRepository, snapshots *SnapshotBuilder, logger *log.Logger, opts ...ServiceOption) (*Service, error) {
	if alarmRepo == nil || ruleRepo == nil {
		return nil, errors.New("alarms: nil repository")
	}
	if snapshots == nil {
		return nil, errors.New("alarms: nil snapshot builder")
	}
	service := &Service{
		alarms:    alarmRepo,
		rules:     ruleRepo,
		snapshots: snapshots,
		logger:    logger,
		clock:     systemClock{},
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// EvaluateRule runs one rule against its scope snapshot and applies the
// resulting transitions. Re-running on unchanged readings is idempotent:
// open alarms are refreshed in place, never duplicated.
func (s *Service) EvaluateRule(ctx context.Context, rule rules.CompositeRule) error {
	if s == nil {
		return errors.New("alarms: nil service")
	}
	now := s.clock.Now().UTC()
	snapshot, err := s.snapshots.Build(ctx, rule, now)
	if err != nil {
		return err
	}
	result := Evaluate(rule, snapshot)

	matchedAssets := make([]int64, 0, len(result.Matches))
	for _, match := range result.Matches {
		matchedAssets = append(matchedAssets, match.Asset.ID)
		alarm := s.buildAlarm(rule, match, now)
		created, err := s.alarms.Trigger(ctx, alarm)
		if err != nil {
			return err
		}
		if created {
			if err := s.rules.RecordTrigger(ctx, rule.ID, now); err != nil {
				return err
			}
			s.notify(ctx, "active", *alarm)
		}
	}

	resolved, err := s.alarms.ResolveOpenExcept(ctx, rule.ID, matchedAssets, alarms.ResolvedBySystem, now)
	if err != nil {
		return err
	}
	for _, alarm := range resolved {
		s.notify(ctx, "resolved", alarm)
	}
	return nil
}

// Get loads an alarm by id.
func (s *Service) Get(ctx context.Context, id string) (*alarms.Alarm, error) {
	if s == nil {
		return nil, errors.New("alarms: nil service")
	}
	alarm, err := s.alarms.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if alarm == nil {
		return nil, alarms.ErrNotFound
	}
	return alarm, nil
}

// List returns alarms matching the filter.
func (s *Service) List(ctx context.Context, filter alarms.Filter) ([]alarms.Alarm, error) {
	if s == nil {
		return nil, errors.New("alarms: nil service")
	}
	return s.alarms.List(ctx, filter)
}

// UpdateStatus applies an operator-driven status change.
func (s *Service) UpdateStatus(ctx context.Context, id, status, actor string) (*alarms.Alarm, error) {
	switch status {
	case alarms.StatusAcknowledged:
		return s.Acknowledge(ctx, id, actor)
	case alarms.StatusResolved:
		return s.Resolve(ctx, id, actor)
	default:
		return nil, fmt.Errorf("%w: cannot set status %q", alarms.ErrInvalidTransition, status)
	}
}

// Acknowledge marks an active alarm as acknowledged.
func (s *Service) Acknowledge(ctx context.Context, id, actor string) (*alarms.Alarm, error) {
	alarm, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if alarm.Status == alarms.StatusAcknowledged {
		return alarm, nil
	}
	if alarm.Status != alarms.StatusActive {
		return nil, fmt.Errorf("%w: acknowledge from %s", alarms.ErrInvalidTransition, alarm.Status)
	}
	at := s.clock.Now().UTC()
	if err := s.alarms.MarkAcknowledged(ctx, id, actor, at); err != nil {
		return nil, err
	}
	alarm.Status = alarms.StatusAcknowledged
	alarm.AcknowledgedAt = at
	alarm.AcknowledgedBy = actor
	alarm.UpdatedAt = at
	s.notify(ctx, "acknowledged", *alarm)
	return alarm, nil
}

// Resolve marks an open alarm as resolved by an operator.
func (s *Service) Resolve(ctx context.Context, id, actor string) (*alarms.Alarm, error) {
	alarm, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if alarm.Status == alarms.StatusResolved {
		return alarm, nil
	}
	if !alarm.Open() {
		return nil, fmt.Errorf("%w: resolve from %s", alarms.ErrInvalidTransition, alarm.Status)
	}
	at := s.clock.Now().UTC()
	if err := s.alarms.MarkResolved(ctx, id, actor, at); err != nil {
		return nil, err
	}
	alarm.Status = alarms.StatusResolved
	alarm.ResolvedAt = at
	alarm.ResolvedBy = actor
	alarm.UpdatedAt = at
	s.notify(ctx, "resolved", *alarm)
	return alarm, nil
}

// Delete removes an alarm row.
func (s *Service) Delete(ctx context.Context, id string) error {
	if s == nil {
		return errors.New("alarms: nil service")
	}
	return s.alarms.Delete(ctx, id)
}

// Clear archives or deletes alarms in bulk. Rule trigger stats are left
// untouched; clearing is a presentation reset, not a rule mutation.
func (s *Service) Clear(ctx context.Context, action alarms.ClearAction, filter alarms.Filter) (int64, error) {
	if s == nil {
		return 0, errors.New("alarms: nil service")
	}
	if !action.Valid() {
		return 0, fmt.Errorf("alarms: unknown clear action %q", action)
	}
	cleared, err := s.alarms.Clear(ctx, action, filter)
	if err != nil {
		return 0, err
	}
	metrics.IncAlarmEvent("cleared")
	if s.logger != nil {
		s.logger.Printf("alarms: cleared %d alarms (action=%s)", cleared, action)
	}
	return cleared, nil
}

// ApplyStartupPolicy runs the configured one-time cleanup before the
// scheduler starts.
func (s *Service) ApplyStartupPolicy(ctx context.Context, policy StartupPolicy) error {
	if s == nil {
		return errors.New("alarms: nil service")
	}
	switch policy {
	case StartupOff:
		return nil
	case StartupDelete:
		_, err := s.Clear(ctx, alarms.ClearDelete, alarms.Filter{})
		return err
	case StartupArchive, "":
		_, err := s.Clear(ctx, alarms.ClearArchive, alarms.Filter{})
		return err
	default:
		return fmt.Errorf("alarms: unknown startup policy %q", policy)
	}
}

func (s *Service) buildAlarm(rule rules.CompositeRule, match Match, now time.Time) *alarms.Alarm {
	unit := match.Condition.Unit
	details := map[string]string{
		"parameter":    match.Condition.Parameter,
		"currentValue": fmt.Sprintf("%.2f%s", match.Value, unit),
		"threshold":    fmt.Sprintf("%s %g%s", match.Condition.Comparator, match.Condition.Value, unit),
		"asset":        match.Asset.Name,
		"siteId":       strconv.FormatInt(match.Site.ID, 10),
		"region":       match.Site.Region,
	}
	if match.Site.Zone != "" {
		details["location"] = match.Site.Zone
	}
	if match.Samples > 0 {
		details["samples"] = strconv.Itoa(match.Samples)
	}
	return &alarms.Alarm{
		ID:              buildAlarmID(rule.ID, match.Asset.ID, now),
		Timestamp:       now,
		SiteID:          match.Site.ID,
		SiteName:        match.Site.Name,
		Region:          match.Site.Region,
		Severity:        rule.Severity,
		Category:        rule.Category,
		Message:         fmt.Sprintf("%s: %.2f%s at %s", rule.Name, match.Value, unit, match.Asset.Name),
		Status:          alarms.StatusActive,
		Details:         details,
		CompositeRuleID: rule.ID,
		ThresholdID:     rule.ID,
		AssetID:         match.Asset.ID,
		ReadingID:       match.ReadingID,
		Source:          "monitor",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (s *Service) notify(ctx context.Context, eventType string, alarm alarms.Alarm) {
	if s == nil {
		return
	}
	metrics.IncAlarmEvent(eventType)
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, AlarmEvent{Type: eventType, Alarm: alarm})
}

func buildAlarmID(ruleID, assetID int64, startAt time.Time) string {
	sum := sha1.Sum([]byte(strconv.FormatInt(ruleID, 10) + "|" + strconv.FormatInt(assetID, 10) + "|" + startAt.Format(time.RFC3339Nano)))
	return "alarm-" + hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
