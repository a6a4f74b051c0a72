package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	alarms "sitewatch/internal/alarms/domain"
)

// AlarmRepository is an in-memory implementation of alarms.AlarmRepository.
// A single mutex stands in for the transaction boundary the Postgres
// repository uses.
type AlarmRepository struct {
	mu   sync.Mutex
	data map[string]alarms.Alarm
}

// NewAlarmRepository constructs a repository.
func NewAlarmRepository() *AlarmRepository {
	return &AlarmRepository{data: make(map[string]alarms.Alarm)}
}

// Get fetches an alarm by id.
func (r *AlarmRepository) Get(ctx context.Context, id string) (*alarms.Alarm, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	alarm, ok := r.data[id]
	if !ok {
		return nil, nil
	}
	copy := cloneAlarm(alarm)
	return &copy, nil
}

// List returns alarms matching the filter, newest first.
func (r *AlarmRepository) List(ctx context.Context, filter alarms.Filter) ([]alarms.Alarm, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []alarms.Alarm
	for _, alarm := range r.data {
		if matchesFilter(alarm, filter) {
			result = append(result, cloneAlarm(alarm))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.After(result[j].Timestamp) })
	return result, nil
}

// Trigger creates an alarm for its (rule, asset) key, or refreshes the open
// one in place.
func (r *AlarmRepository) Trigger(ctx context.Context, alarm *alarms.Alarm) (bool, error) {
	_ = ctx
	if alarm == nil {
		return false, errors.New("alarm repo: nil alarm")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.data {
		if existing.CompositeRuleID == alarm.CompositeRuleID && existing.AssetID == alarm.AssetID && existing.Open() {
			existing.Timestamp = alarm.Timestamp
			existing.Message = alarm.Message
			existing.Details = alarm.Details
			existing.ReadingID = alarm.ReadingID
			existing.UpdatedAt = alarm.UpdatedAt
			r.data[id] = existing
			*alarm = cloneAlarm(existing)
			return false, nil
		}
	}

	r.data[alarm.ID] = cloneAlarm(*alarm)
	return true, nil
}

// ResolveOpenExcept resolves open alarms of a rule whose asset is not in
// the matched set.
func (r *AlarmRepository) ResolveOpenExcept(ctx context.Context, ruleID int64, matchedAssets []int64, by string, at time.Time) ([]alarms.Alarm, error) {
	_ = ctx
	matched := make(map[int64]bool, len(matchedAssets))
	for _, id := range matchedAssets {
		matched[id] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	var resolved []alarms.Alarm
	for id, alarm := range r.data {
		if alarm.CompositeRuleID != ruleID || !alarm.Open() || matched[alarm.AssetID] {
			continue
		}
		alarm.Status = alarms.StatusResolved
		alarm.ResolvedAt = at.UTC()
		alarm.ResolvedBy = by
		alarm.UpdatedAt = at.UTC()
		r.data[id] = alarm
		resolved = append(resolved, cloneAlarm(alarm))
	}
	return resolved, nil
}

// MarkAcknowledged marks an alarm as acknowledged.
func (r *AlarmRepository) MarkAcknowledged(ctx context.Context, id, by string, at time.Time) error {
	return r.update(ctx, id, func(alarm *alarms.Alarm) {
		alarm.Status = alarms.StatusAcknowledged
		alarm.AcknowledgedAt = at.UTC()
		alarm.AcknowledgedBy = by
		alarm.UpdatedAt = at.UTC()
	})
}

// MarkResolved marks an alarm as resolved.
func (r *AlarmRepository) MarkResolved(ctx context.Context, id, by string, at time.Time) error {
	return r.update(ctx, id, func(alarm *alarms.Alarm) {
		alarm.Status = alarms.StatusResolved
		alarm.ResolvedAt = at.UTC()
		alarm.ResolvedBy = by
		alarm.UpdatedAt = at.UTC()
	})
}

// Delete removes an alarm row.
func (r *AlarmRepository) Delete(ctx context.Context, id string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return alarms.ErrNotFound
	}
	delete(r.data, id)
	return nil
}

// Clear archives or deletes alarms matching the filter.
func (r *AlarmRepository) Clear(ctx context.Context, action alarms.ClearAction, filter alarms.Filter) (int64, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	var cleared int64
	for id, alarm := range r.data {
		if !matchesFilter(alarm, filter) {
			continue
		}
		switch action {
		case alarms.ClearArchive:
			alarm.Status = alarms.StatusArchived
			alarm.UpdatedAt = time.Now().UTC()
			r.data[id] = alarm
		case alarms.ClearDelete:
			delete(r.data, id)
		default:
			return 0, fmt.Errorf("alarm repo: unknown clear action %q", action)
		}
		cleared++
	}
	return cleared, nil
}

func (r *AlarmRepository) update(ctx context.Context, id string, apply func(*alarms.Alarm)) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	alarm, ok := r.data[id]
	if !ok {
		return alarms.ErrNotFound
	}
	apply(&alarm)
	r.data[id] = alarm
	return nil
}

func matchesFilter(alarm alarms.Alarm, filter alarms.Filter) bool {
	if filter.Status != "" {
		if alarm.Status != filter.Status {
			return false
		}
	} else if !filter.IncludeArchived && alarm.Status == alarms.StatusArchived {
		return false
	}
	if filter.Severity != "" && alarm.Severity != filter.Severity {
		return false
	}
	if filter.Category != "" && alarm.Category != filter.Category {
		return false
	}
	if filter.SiteID != 0 && alarm.SiteID != filter.SiteID {
		return false
	}
	return true
}

func cloneAlarm(alarm alarms.Alarm) alarms.Alarm {
	copy := alarm
	if alarm.Details != nil {
		copy.Details = make(map[string]string, len(alarm.Details))
		for k, v := range alarm.Details {
			copy.Details[k] = v
		}
	}
	return copy
}
