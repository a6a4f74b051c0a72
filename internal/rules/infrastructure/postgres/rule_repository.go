package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	rules "sitewatch/internal/rules/domain"
)

const defaultRulesTable = "composite_rules"

const ruleColumns = `id, name, severity, category, rule_type, enabled, conditions,
	logical_operator, time_window_minutes, aggregation_type, min_samples, tolerance,
	applies_to, region, cluster_code, site_id, trigger_count, last_triggered,
	created_at, updated_at`

// RuleRepository is a Postgres implementation of rules.CompositeRuleRepository.
type RuleRepository struct {
	db    DBTX
	table string
}

// NewRuleRepository constructs a repository.
func NewRuleRepository(db DBTX, opts ...RuleOption) *RuleRepository {
	repo := &RuleRepository{db: db, table: defaultRulesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RuleOption configures the repository.
type RuleOption func(*RuleRepository)

// WithRulesTable overrides the default table name.
func WithRulesTable(table string) RuleOption {
	return func(repo *RuleRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Get loads a rule by id.
func (r *RuleRepository) Get(ctx context.Context, id int64) (*rules.CompositeRule, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("rule repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE id = $1
LIMIT 1`, ruleColumns, r.table)
	return scanRule(r.db.QueryRowContext(ctx, query, id))
}

// List returns all rules.
func (r *RuleRepository) List(ctx context.Context) ([]rules.CompositeRule, error) {
	return r.list(ctx, "")
}

// ListEnabled returns rules with the enabled flag set.
func (r *RuleRepository) ListEnabled(ctx context.Context) ([]rules.CompositeRule, error) {
	return r.list(ctx, "WHERE enabled = TRUE")
}

func (r *RuleRepository) list(ctx context.Context, where string) ([]rules.CompositeRule, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("rule repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
%s
ORDER BY id ASC`, ruleColumns, r.table, where)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []rules.CompositeRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save validates and upserts a rule, assigning the id on insert.
func (r *RuleRepository) Save(ctx context.Context, rule *rules.CompositeRule) error {
	if r == nil || r.db == nil {
		return errors.New("rule repo: nil db")
	}
	if rule == nil {
		return errors.New("rule repo: nil rule")
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	if rule.ID != 0 {
		query := fmt.Sprintf(`
UPDATE %s
SET name = $1, severity = $2, category = $3, rule_type = $4, enabled = $5,
	conditions = $6, logical_operator = $7, time_window_minutes = $8,
	aggregation_type = $9, min_samples = $10, tolerance = $11,
	applies_to = $12, region = $13, cluster_code = $14, site_id = $15,
	updated_at = $16
WHERE id = $17`, r.table)
		_, err := r.db.ExecContext(ctx, query,
			rule.Name, rule.Severity, rule.Category, string(rule.RuleType), rule.Enabled,
			conditions, string(rule.LogicalOperator), rule.TimeWindowMinutes,
			nullableString(string(rule.Aggregation)), rule.MinSamples, nullableFloat(rule.Tolerance),
			string(rule.AppliesTo), nullableString(rule.Region), nullableString(rule.ClusterCode),
			nullableInt64(rule.SiteID), rule.UpdatedAt, rule.ID)
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (name, severity, category, rule_type, enabled, conditions,
	logical_operator, time_window_minutes, aggregation_type, min_samples, tolerance,
	applies_to, region, cluster_code, site_id, trigger_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 0, $16, $17)
RETURNING id`, r.table)
	return r.db.QueryRowContext(ctx, query,
		rule.Name, rule.Severity, rule.Category, string(rule.RuleType), rule.Enabled,
		conditions, string(rule.LogicalOperator), rule.TimeWindowMinutes,
		nullableString(string(rule.Aggregation)), rule.MinSamples, nullableFloat(rule.Tolerance),
		string(rule.AppliesTo), nullableString(rule.Region), nullableString(rule.ClusterCode),
		nullableInt64(rule.SiteID), rule.CreatedAt, rule.UpdatedAt).Scan(&rule.ID)
}

// Delete removes a rule.
func (r *RuleRepository) Delete(ctx context.Context, id int64) error {
	if r == nil || r.db == nil {
		return errors.New("rule repo: nil db")
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", r.table)
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return rules.ErrNotFound
	}
	return nil
}

// RecordTrigger increments the trigger count and stamps last_triggered.
func (r *RuleRepository) RecordTrigger(ctx context.Context, id int64, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("rule repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET trigger_count = trigger_count + 1, last_triggered = $1, updated_at = $1
WHERE id = $2`, r.table)
	_, err := r.db.ExecContext(ctx, query, at.UTC(), id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*rules.CompositeRule, error) {
	var rule rules.CompositeRule
	var conditions []byte
	var ruleType, logicalOperator, appliesTo string
	var aggregation, region, clusterCode sql.NullString
	var tolerance sql.NullFloat64
	var siteID sql.NullInt64
	var lastTriggered sql.NullTime
	if err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Severity,
		&rule.Category,
		&ruleType,
		&rule.Enabled,
		&conditions,
		&logicalOperator,
		&rule.TimeWindowMinutes,
		&aggregation,
		&rule.MinSamples,
		&tolerance,
		&appliesTo,
		&region,
		&clusterCode,
		&siteID,
		&rule.TriggerCount,
		&lastTriggered,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
			return nil, err
		}
	}
	rule.RuleType = rules.RuleType(ruleType)
	rule.LogicalOperator = rules.LogicalOperator(logicalOperator)
	rule.AppliesTo = rules.Scope(appliesTo)
	if aggregation.Valid {
		rule.Aggregation = rules.Aggregation(aggregation.String)
	}
	if tolerance.Valid {
		value := tolerance.Float64
		rule.Tolerance = &value
	}
	if region.Valid {
		rule.Region = region.String
	}
	if clusterCode.Valid {
		rule.ClusterCode = clusterCode.String
	}
	if siteID.Valid {
		rule.SiteID = siteID.Int64
	}
	if lastTriggered.Valid {
		rule.LastTriggered = lastTriggered.Time.UTC()
	}
	rule.CreatedAt = rule.CreatedAt.UTC()
	rule.UpdatedAt = rule.UpdatedAt.UTC()
	return &rule, nil
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullableInt64(value int64) sql.NullInt64 {
	if value == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: value, Valid: true}
}

func nullableFloat(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}
