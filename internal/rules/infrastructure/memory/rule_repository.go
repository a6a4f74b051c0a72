package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	rules "sitewatch/internal/rules/domain"
)

// RuleRepository is an in-memory implementation of rules.CompositeRuleRepository.
type RuleRepository struct {
	mu     sync.RWMutex
	nextID int64
	data   map[int64]rules.CompositeRule
}

// NewRuleRepository constructs a repository.
func NewRuleRepository() *RuleRepository {
	return &RuleRepository{nextID: 1, data: make(map[int64]rules.CompositeRule)}
}

// Get loads a rule by id.
func (r *RuleRepository) Get(ctx context.Context, id int64) (*rules.CompositeRule, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.data[id]
	if !ok {
		return nil, nil
	}
	copy := cloneRule(rule)
	return &copy, nil
}

// List returns all rules ordered by id.
func (r *RuleRepository) List(ctx context.Context) ([]rules.CompositeRule, error) {
	return r.list(ctx, false)
}

// ListEnabled returns enabled rules ordered by id.
func (r *RuleRepository) ListEnabled(ctx context.Context) ([]rules.CompositeRule, error) {
	return r.list(ctx, true)
}

func (r *RuleRepository) list(ctx context.Context, enabledOnly bool) ([]rules.CompositeRule, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []rules.CompositeRule
	for _, rule := range r.data {
		if enabledOnly && !rule.Enabled {
			continue
		}
		result = append(result, cloneRule(rule))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Save validates and stores a rule, assigning an id on insert.
func (r *RuleRepository) Save(ctx context.Context, rule *rules.CompositeRule) error {
	_ = ctx
	if rule == nil {
		return errors.New("rule repo: nil rule")
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()
	if rule.ID == 0 {
		rule.ID = r.nextID
		r.nextID++
	} else if existing, ok := r.data[rule.ID]; ok {
		rule.TriggerCount = existing.TriggerCount
		rule.LastTriggered = existing.LastTriggered
	}
	r.data[rule.ID] = cloneRule(*rule)
	return nil
}

// Delete removes a rule.
func (r *RuleRepository) Delete(ctx context.Context, id int64) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return rules.ErrNotFound
	}
	delete(r.data, id)
	return nil
}

// RecordTrigger increments the trigger count and stamps last_triggered.
func (r *RuleRepository) RecordTrigger(ctx context.Context, id int64, at time.Time) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.data[id]
	if !ok {
		return rules.ErrNotFound
	}
	rule.TriggerCount++
	rule.LastTriggered = at.UTC()
	rule.UpdatedAt = at.UTC()
	r.data[id] = rule
	return nil
}

func cloneRule(rule rules.CompositeRule) rules.CompositeRule {
	copy := rule
	copy.Conditions = append([]rules.Condition(nil), rule.Conditions...)
	if rule.Tolerance != nil {
		tolerance := *rule.Tolerance
		copy.Tolerance = &tolerance
	}
	return copy
}
