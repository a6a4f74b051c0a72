package application

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"

	rules "sitewatch/internal/rules/domain"
	"sitewatch/internal/rules/infrastructure/memory"
)

func newTestService(t *testing.T) (*Service, *memory.RuleRepository) {
	t.Helper()
	repo := memory.NewRuleRepository()
	service, err := NewService(repo, log.New(os.Stdout, "", 0))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return service, repo
}

func TestCreateRuleAppliesDefaults(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	rule := rules.CompositeRule{
		Name: "Fuel Level Low",
		Conditions: []rules.Condition{
			{Parameter: "fuel_level", Comparator: rules.ComparatorLess, Value: 100, Unit: "L"},
		},
	}
	if err := service.CreateRule(ctx, &rule); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rule.ID == 0 {
		t.Fatal("expected assigned id")
	}
	if rule.Severity != "medium" {
		t.Fatalf("expected default severity medium, got %q", rule.Severity)
	}
	if rule.RuleType != rules.RuleTypeSimple {
		t.Fatalf("single condition should default to simple, got %q", rule.RuleType)
	}
	if rule.LogicalOperator != rules.LogicalAnd {
		t.Fatalf("expected default AND, got %q", rule.LogicalOperator)
	}
	if rule.AppliesTo != rules.ScopeAll {
		t.Fatalf("expected default scope all, got %q", rule.AppliesTo)
	}
}

func TestCreateRuleCompositeDefault(t *testing.T) {
	service, _ := newTestService(t)

	rule := rules.CompositeRule{
		Name: "Battery Stress",
		Conditions: []rules.Condition{
			{Parameter: "battery_voltage", Comparator: rules.ComparatorLess, Value: 47},
			{Parameter: "temperature", Comparator: rules.ComparatorGreater, Value: 40},
		},
	}
	if err := service.CreateRule(context.Background(), &rule); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rule.RuleType != rules.RuleTypeComposite {
		t.Fatalf("multi condition should default to composite, got %q", rule.RuleType)
	}
}

func TestCreateRuleInvalid(t *testing.T) {
	service, _ := newTestService(t)
	err := service.CreateRule(context.Background(), &rules.CompositeRule{Name: "no conditions"})
	if !errors.Is(err, rules.ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule, got %v", err)
	}
}

func TestUpdateRulePreservesTriggerStats(t *testing.T) {
	service, repo := newTestService(t)
	ctx := context.Background()

	rule := rules.CompositeRule{
		Name: "Fuel Level Low",
		Conditions: []rules.Condition{
			{Parameter: "fuel_level", Comparator: rules.ComparatorLess, Value: 100},
		},
	}
	if err := service.CreateRule(ctx, &rule); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.RecordTrigger(ctx, rule.ID, rule.CreatedAt); err != nil {
		t.Fatalf("record trigger: %v", err)
	}

	update := rule
	update.TriggerCount = 0
	update.Conditions = []rules.Condition{
		{Parameter: "fuel_level", Comparator: rules.ComparatorLess, Value: 80},
	}
	if err := service.UpdateRule(ctx, &update); err != nil {
		t.Fatalf("update: %v", err)
	}

	stored, err := service.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.TriggerCount != 1 {
		t.Fatalf("trigger count lost on update: %d", stored.TriggerCount)
	}
	if stored.Conditions[0].Value != 80 {
		t.Fatalf("condition not updated: %+v", stored.Conditions[0])
	}
}

func TestUpdateRuleNotFound(t *testing.T) {
	service, _ := newTestService(t)
	rule := rules.CompositeRule{
		ID:   99,
		Name: "Ghost",
		Conditions: []rules.Condition{
			{Parameter: "fuel_level", Comparator: rules.ComparatorLess, Value: 1},
		},
	}
	err := service.UpdateRule(context.Background(), &rule)
	if !errors.Is(err, rules.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListThresholds(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	rule := rules.CompositeRule{
		Name: "Grid Voltage Low",
		Conditions: []rules.Condition{
			{Parameter: "voltage", Comparator: rules.ComparatorLess, Value: 174, Unit: "V"},
		},
	}
	if err := service.CreateRule(ctx, &rule); err != nil {
		t.Fatalf("create: %v", err)
	}

	thresholds, err := service.ListThresholds(ctx)
	if err != nil {
		t.Fatalf("list thresholds: %v", err)
	}
	if len(thresholds) != 1 {
		t.Fatalf("expected 1 threshold, got %d", len(thresholds))
	}
	if thresholds[0].CompositeRuleID != rule.ID || thresholds[0].Parameter != "voltage" {
		t.Fatalf("unexpected projection: %+v", thresholds[0])
	}
}

func TestGetRuleNotFound(t *testing.T) {
	service, _ := newTestService(t)
	_, err := service.GetRule(context.Background(), 404)
	if !errors.Is(err, rules.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
