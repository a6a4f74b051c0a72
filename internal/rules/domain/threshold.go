package rules

import "time"

// Threshold is the legacy single-condition view of a composite rule. It is
// derived on demand from the canonical rule and carries the first condition
// plus trigger bookkeeping.
type Threshold struct {
	ID              int64      `json:"id"`
	CompositeRuleID int64      `json:"composite_rule_id"`
	Name            string     `json:"name"`
	Severity        string     `json:"severity"`
	Category        string     `json:"category"`
	Parameter       string     `json:"parameter"`
	Comparator      Comparator `json:"condition"`
	Value           float64    `json:"value"`
	Unit            string     `json:"unit,omitempty"`
	Enabled         bool       `json:"enabled"`
	AppliesTo       Scope      `json:"applies_to"`
	Region          string     `json:"region,omitempty"`
	ClusterCode     string     `json:"cluster_code,omitempty"`
	SiteID          int64      `json:"site_id,omitempty"`
	TriggerCount    int64      `json:"trigger_count"`
	LastTriggered   time.Time  `json:"last_triggered,omitempty"`
}

// ProjectThreshold derives the legacy threshold shape from a rule.
func ProjectThreshold(rule CompositeRule) Threshold {
	t := Threshold{
		ID:              rule.ID,
		CompositeRuleID: rule.ID,
		Name:            rule.Name,
		Severity:        rule.Severity,
		Category:        rule.Category,
		Enabled:         rule.Enabled,
		AppliesTo:       rule.AppliesTo,
		Region:          rule.Region,
		ClusterCode:     rule.ClusterCode,
		SiteID:          rule.SiteID,
		TriggerCount:    rule.TriggerCount,
		LastTriggered:   rule.LastTriggered,
	}
	if len(rule.Conditions) > 0 {
		first := rule.Conditions[0]
		t.Parameter = first.Parameter
		t.Comparator = first.Comparator
		t.Value = first.Value
		t.Unit = first.Unit
	}
	return t
}
