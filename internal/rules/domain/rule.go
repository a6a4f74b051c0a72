package rules

import (
	"context"
	"fmt"
	"time"
)

type Comparator string

const (
	ComparatorGreater        Comparator = ">"
	ComparatorGreaterOrEqual Comparator = ">="
	ComparatorLess           Comparator = "<"
	ComparatorLessOrEqual    Comparator = "<="
	ComparatorEqual          Comparator = "=="
	ComparatorNotEqual       Comparator = "!="
)

// Valid returns true when the comparator is supported.
func (c Comparator) Valid() bool {
	switch c {
	case ComparatorGreater, ComparatorGreaterOrEqual, ComparatorLess,
		ComparatorLessOrEqual, ComparatorEqual, ComparatorNotEqual:
		return true
	default:
		return false
	}
}

type Aggregation string

const (
	AggregationAvg   Aggregation = "avg"
	AggregationSum   Aggregation = "sum"
	AggregationMin   Aggregation = "min"
	AggregationMax   Aggregation = "max"
	AggregationCount Aggregation = "count"
)

// Valid returns true when the aggregation is supported.
func (a Aggregation) Valid() bool {
	switch a {
	case AggregationAvg, AggregationSum, AggregationMin, AggregationMax, AggregationCount:
		return true
	default:
		return false
	}
}

type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// Valid returns true when the operator is AND or OR.
func (o LogicalOperator) Valid() bool {
	return o == LogicalAnd || o == LogicalOr
}

type Scope string

const (
	ScopeAll     Scope = "all"
	ScopeRegion  Scope = "region"
	ScopeCluster Scope = "cluster"
	ScopeSite    Scope = "site"
)

// Valid returns true when the scope is supported.
func (s Scope) Valid() bool {
	switch s {
	case ScopeAll, ScopeRegion, ScopeCluster, ScopeSite:
		return true
	default:
		return false
	}
}

type RuleType string

const (
	RuleTypeSimple     RuleType = "simple"
	RuleTypeComposite  RuleType = "composite"
	RuleTypeHistorical RuleType = "historical"
	RuleTypeRateChange RuleType = "rate_change"
)

// Valid returns true when the rule type is supported.
func (t RuleType) Valid() bool {
	switch t {
	case RuleTypeSimple, RuleTypeComposite, RuleTypeHistorical, RuleTypeRateChange:
		return true
	default:
		return false
	}
}

// Condition is one comparison inside a composite rule.
type Condition struct {
	Parameter  string     `json:"parameter"`
	Comparator Comparator `json:"comparator"`
	Value      float64    `json:"value"`
	Unit       string     `json:"unit,omitempty"`
}

// CompositeRule is the canonical alarm rule definition. Thresholds are a
// derived projection of it, never edited independently.
type CompositeRule struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	Severity          string          `json:"severity"`
	Category          string          `json:"category"`
	RuleType          RuleType        `json:"rule_type"`
	Enabled           bool            `json:"enabled"`
	Conditions        []Condition     `json:"conditions"`
	LogicalOperator   LogicalOperator `json:"logical_operator"`
	TimeWindowMinutes int             `json:"time_window_minutes,omitempty"`
	Aggregation       Aggregation     `json:"aggregation_type,omitempty"`
	MinSamples        int             `json:"min_samples,omitempty"`
	Tolerance         *float64        `json:"tolerance,omitempty"`
	AppliesTo         Scope           `json:"applies_to"`
	Region            string          `json:"region,omitempty"`
	ClusterCode       string          `json:"cluster_code,omitempty"`
	SiteID            int64           `json:"site_id,omitempty"`
	TriggerCount      int64           `json:"trigger_count"`
	LastTriggered     time.Time       `json:"last_triggered,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Validate checks rule invariants. Violations wrap ErrInvalidRule.
func (r CompositeRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidRule)
	}
	if !r.RuleType.Valid() {
		return fmt.Errorf("%w: unknown rule type %q", ErrInvalidRule, r.RuleType)
	}
	if len(r.Conditions) == 0 {
		return fmt.Errorf("%w: no conditions", ErrInvalidRule)
	}
	for i, cond := range r.Conditions {
		if cond.Parameter == "" {
			return fmt.Errorf("%w: condition %d: empty parameter", ErrInvalidRule, i)
		}
		if !cond.Comparator.Valid() {
			return fmt.Errorf("%w: condition %d: unknown comparator %q", ErrInvalidRule, i, cond.Comparator)
		}
	}
	if !r.LogicalOperator.Valid() {
		return fmt.Errorf("%w: unknown logical operator %q", ErrInvalidRule, r.LogicalOperator)
	}
	if r.TimeWindowMinutes < 0 {
		return fmt.Errorf("%w: negative time window", ErrInvalidRule)
	}
	if r.Aggregation != "" && !r.Aggregation.Valid() {
		return fmt.Errorf("%w: unknown aggregation %q", ErrInvalidRule, r.Aggregation)
	}
	if r.RuleType == RuleTypeHistorical && r.TimeWindowMinutes == 0 {
		return fmt.Errorf("%w: historical rule requires a time window", ErrInvalidRule)
	}
	if r.MinSamples < 0 {
		return fmt.Errorf("%w: negative min samples", ErrInvalidRule)
	}
	if r.Tolerance != nil && *r.Tolerance < 0 {
		return fmt.Errorf("%w: negative tolerance", ErrInvalidRule)
	}
	if !r.AppliesTo.Valid() {
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidRule, r.AppliesTo)
	}
	switch r.AppliesTo {
	case ScopeRegion:
		if r.Region == "" {
			return fmt.Errorf("%w: region scope requires a region", ErrInvalidRule)
		}
	case ScopeCluster:
		if r.ClusterCode == "" {
			return fmt.Errorf("%w: cluster scope requires a cluster code", ErrInvalidRule)
		}
	case ScopeSite:
		if r.SiteID <= 0 {
			return fmt.Errorf("%w: site scope requires a site id", ErrInvalidRule)
		}
	}
	return nil
}

// CompositeRuleRepository abstracts rule persistence.
type CompositeRuleRepository interface {
	Get(ctx context.Context, id int64) (*CompositeRule, error)
	List(ctx context.Context) ([]CompositeRule, error)
	ListEnabled(ctx context.Context) ([]CompositeRule, error)
	Save(ctx context.Context, rule *CompositeRule) error
	Delete(ctx context.Context, id int64) error
	RecordTrigger(ctx context.Context, id int64, at time.Time) error
}
