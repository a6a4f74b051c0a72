package application

import (
	"context"
	"errors"
	"log"

	rules "sitewatch/internal/rules/domain"
)

// Service handles rule CRUD and the derived threshold view.
type Service struct {
	repo   rules.CompositeRuleRepository
	logger *log.Logger
}

// NewService constructs a rule service.
func NewService(repo rules.CompositeRuleRepository, logger *log.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("rules: nil repository")
	}
	return &Service{repo: repo, logger: logger}, nil
}

// CreateRule validates, applies defaults and persists a new rule.
func (s *Service) CreateRule(ctx context.Context, rule *rules.CompositeRule) error {
	if s == nil || s.repo == nil {
		return errors.New("rules: nil service")
	}
	if rule == nil {
		return errors.New("rules: nil rule")
	}
	rule.ID = 0
	applyDefaults(rule)
	if err := s.repo.Save(ctx, rule); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.Printf("rules: created rule %d (%s)", rule.ID, rule.Name)
	}
	return nil
}

// UpdateRule validates and persists changes to an existing rule.
func (s *Service) UpdateRule(ctx context.Context, rule *rules.CompositeRule) error {
	if s == nil || s.repo == nil {
		return errors.New("rules: nil service")
	}
	if rule == nil {
		return errors.New("rules: nil rule")
	}
	if rule.ID == 0 {
		return rules.ErrNotFound
	}
	existing, err := s.repo.Get(ctx, rule.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return rules.ErrNotFound
	}
	rule.CreatedAt = existing.CreatedAt
	rule.TriggerCount = existing.TriggerCount
	rule.LastTriggered = existing.LastTriggered
	applyDefaults(rule)
	return s.repo.Save(ctx, rule)
}

// DeleteRule removes a rule.
func (s *Service) DeleteRule(ctx context.Context, id int64) error {
	if s == nil || s.repo == nil {
		return errors.New("rules: nil service")
	}
	return s.repo.Delete(ctx, id)
}

// GetRule loads a rule by id.
func (s *Service) GetRule(ctx context.Context, id int64) (*rules.CompositeRule, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("rules: nil service")
	}
	rule, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, rules.ErrNotFound
	}
	return rule, nil
}

// ListRules returns all rules.
func (s *Service) ListRules(ctx context.Context) ([]rules.CompositeRule, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("rules: nil service")
	}
	return s.repo.List(ctx)
}

// ListThresholds projects every rule into the legacy threshold shape.
func (s *Service) ListThresholds(ctx context.Context) ([]rules.Threshold, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("rules: nil service")
	}
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	thresholds := make([]rules.Threshold, 0, len(all))
	for _, rule := range all {
		thresholds = append(thresholds, rules.ProjectThreshold(rule))
	}
	return thresholds, nil
}

// GetThreshold projects one rule into the legacy threshold shape.
func (s *Service) GetThreshold(ctx context.Context, id int64) (*rules.Threshold, error) {
	rule, err := s.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	threshold := rules.ProjectThreshold(*rule)
	return &threshold, nil
}

func applyDefaults(rule *rules.CompositeRule) {
	if rule.Severity == "" {
		rule.Severity = "medium"
	}
	if rule.LogicalOperator == "" {
		rule.LogicalOperator = rules.LogicalAnd
	}
	if rule.RuleType == "" {
		if len(rule.Conditions) > 1 {
			rule.RuleType = rules.RuleTypeComposite
		} else {
			rule.RuleType = rules.RuleTypeSimple
		}
	}
	if rule.RuleType == rules.RuleTypeHistorical && rule.Aggregation == "" {
		rule.Aggregation = rules.AggregationAvg
	}
	if rule.RuleType == rules.RuleTypeHistorical && rule.MinSamples == 0 {
		rule.MinSamples = 1
	}
	if rule.AppliesTo == "" {
		rule.AppliesTo = rules.ScopeAll
	}
}
